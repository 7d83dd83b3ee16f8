package bundb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	highscoredb "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/repositories"
	highscoremigrations "github.com/Black-And-White-Club/highscore-ledger/app/modules/highscore/infrastructure/repositories/migrations"
	"github.com/Black-And-White-Club/highscore-ledger/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	_ "modernc.org/sqlite"
)

// DBService owns the connection pool and the repositories built on it.
type DBService struct {
	HighscoreDB highscoredb.Repository
	db          *bun.DB
}

// GetDB returns the underlying database connection pool.
func (s *DBService) GetDB() *bun.DB {
	return s.db
}

// Close closes the connection pool.
func (s *DBService) Close() error {
	return s.db.Close()
}

// NewBunDBService opens the configured database and builds the repositories.
func NewBunDBService(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*DBService, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	db.RegisterModel((*highscoredb.ScoreRecord)(nil), (*highscoredb.ScoreRaise)(nil))

	logger.InfoContext(ctx, "Database connected",
		slog.String("driver", cfg.Driver),
		slog.String("dialect", db.Dialect().Name().String()),
	)

	return &DBService{
		HighscoreDB: highscoredb.NewRepository(db),
		db:          db,
	}, nil
}

// Open returns a bun.DB for the configured driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*bun.DB, error) {
	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch cfg.Driver {
	case config.DriverSQLite:
		sqldb, err = sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// one connection: sqlite allows a single writer and in-memory
		// databases are per connection
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case config.DriverPostgres, "":
		sqldb = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		if cfg.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// BunDB wraps an already opened Postgres connection pool, such as one from
// the pgx stdlib driver.
func BunDB(sqldb *sql.DB) *bun.DB {
	return bun.NewDB(sqldb, pgdialect.New())
}

// Migrators returns one migrator per module, keyed by module name.
func Migrators(db *bun.DB) map[string]*migrate.Migrator {
	return map[string]*migrate.Migrator{
		"highscore": migrate.NewMigrator(db, highscoremigrations.Migrations),
	}
}

// MigrateAll initialises the migration tables and applies every pending
// migration of every module.
func MigrateAll(ctx context.Context, db *bun.DB, logger *slog.Logger) error {
	for name, migrator := range Migrators(db) {
		if err := migrator.Init(ctx); err != nil {
			return fmt.Errorf("failed to init migrations for %s: %w", name, err)
		}
		if err := migrator.Lock(ctx); err != nil {
			return fmt.Errorf("failed to lock migrations for %s: %w", name, err)
		}
		group, err := migrator.Migrate(ctx)
		unlockErr := migrator.Unlock(ctx)
		if err != nil {
			return fmt.Errorf("failed to migrate %s: %w", name, err)
		}
		if unlockErr != nil {
			return fmt.Errorf("failed to unlock migrations for %s: %w", name, unlockErr)
		}
		if group.IsZero() {
			logger.InfoContext(ctx, "No new migrations", slog.String("module", name))
			continue
		}
		logger.InfoContext(ctx, "Migrated module",
			slog.String("module", name),
			slog.String("group", group.String()),
		)
	}
	return nil
}
