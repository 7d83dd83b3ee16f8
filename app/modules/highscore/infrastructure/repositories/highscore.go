package highscoredb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const pgUniqueViolation = "23505"

// Impl implements the Repository interface using Bun ORM.
type Impl struct {
	db bun.IDB
}

// NewRepository creates a new score record repository.
func NewRepository(db bun.IDB) Repository {
	return &Impl{db: db}
}

// resolveDB returns the provided db handle, falling back to the repository's
// default connection if db is nil.
func (r *Impl) resolveDB(db bun.IDB) bun.IDB {
	if db == nil {
		return r.db
	}
	return db
}

// Create inserts a new record.
func (r *Impl) Create(ctx context.Context, db bun.IDB, record *ScoreRecord) error {
	db = r.resolveDB(db)
	if _, err := db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert score record: %w", err)
	}
	return nil
}

// GetByAddress retrieves a record by its address.
func (r *Impl) GetByAddress(ctx context.Context, db bun.IDB, address string) (*ScoreRecord, error) {
	db = r.resolveDB(db)
	record := new(ScoreRecord)
	err := db.NewSelect().
		Model(record).
		Where("address = ?", address).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get score record: %w", err)
	}
	return record, nil
}

// GetForUpdate retrieves a record and takes a row lock on Postgres.
// SQLite has no row locks; its single writer serializes transactions instead.
func (r *Impl) GetForUpdate(ctx context.Context, db bun.IDB, address string) (*ScoreRecord, error) {
	db = r.resolveDB(db)
	record := new(ScoreRecord)
	q := db.NewSelect().
		Model(record).
		Where("address = ?", address)
	if db.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock score record: %w", err)
	}
	return record, nil
}

// UpdateScore sets a record's score and bumps updated_at.
func (r *Impl) UpdateScore(ctx context.Context, db bun.IDB, address string, score uint32, updatedAt time.Time) error {
	db = r.resolveDB(db)
	result, err := db.NewUpdate().
		Model((*ScoreRecord)(nil)).
		Set("score = ?", score).
		Set("updated_at = ?", updatedAt).
		Where("address = ?", address).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update score: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// InsertRaise appends an audit row.
func (r *Impl) InsertRaise(ctx context.Context, db bun.IDB, raise *ScoreRaise) error {
	db = r.resolveDB(db)
	if _, err := db.NewInsert().Model(raise).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert score raise: %w", err)
	}
	return nil
}

// ListTop returns the best records of a ledger. Earlier records win ties.
func (r *Impl) ListTop(ctx context.Context, db bun.IDB, ledgerID string, limit int) ([]ScoreRecord, error) {
	db = r.resolveDB(db)
	var records []ScoreRecord
	err := db.NewSelect().
		Model(&records).
		Where("ledger_id = ?", ledgerID).
		OrderExpr("score DESC, created_at ASC, address ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list top records: %w", err)
	}
	return records, nil
}

// ListRaises returns a record's audit trail in insertion order.
func (r *Impl) ListRaises(ctx context.Context, db bun.IDB, address string) ([]ScoreRaise, error) {
	db = r.resolveDB(db)
	var raises []ScoreRaise
	err := db.NewSelect().
		Model(&raises).
		Where("address = ?", address).
		OrderExpr("raised_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list score raises: %w", err)
	}
	return raises, nil
}

// isUniqueViolation recognises duplicate-key errors from every driver the
// repository runs on: pgdriver, pgx and modernc sqlite.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.IntegrityViolation() && pgErr.Field('C') == pgUniqueViolation
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == pgUniqueViolation
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
