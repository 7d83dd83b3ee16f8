// Package testutils provisions Postgres and NATS containers for integration tests.
package testutils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/uptrace/bun"

	"github.com/Black-And-White-Club/highscore-ledger/config"
	"github.com/Black-And-White-Club/highscore-ledger/db/bundb"
	"github.com/Black-And-White-Club/highscore-ledger/integration_tests/containers"
	"github.com/Black-And-White-Club/highscore-ledger/internal/eventbus"
)

const integrationLedger = "integration"

// TestEnvironment is one Postgres and one NATS server shared by the
// subtests of an integration test, plus clients connected to both.
type TestEnvironment struct {
	Ctx      context.Context
	Postgres *containers.Postgres
	NATS     *containers.NATS

	DB        *bun.DB
	NatsConn  *nats.Conn
	JetStream jetstream.JetStream
	EventBus  eventbus.EventBus

	Config *config.Config
	Logger *slog.Logger

	cancel context.CancelFunc
}

// NewTestEnvironment starts Postgres and NATS, migrates the schema and
// connects the event bus. Tests are skipped under -short.
func NewTestEnvironment(t *testing.T) *TestEnvironment {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	env := &TestEnvironment{
		Ctx:    ctx,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		cancel: cancel,
	}
	t.Cleanup(env.Cleanup)

	if err := env.start(ctx); err != nil {
		t.Fatalf("failed to set up test environment: %v", err)
	}
	return env
}

func (env *TestEnvironment) start(ctx context.Context) error {
	var err error
	if env.Postgres, err = containers.StartPostgres(ctx); err != nil {
		return err
	}
	if env.NATS, err = containers.StartNATS(ctx); err != nil {
		return err
	}

	cfg := config.Defaults()
	cfg.Ledger.ID = integrationLedger
	cfg.Database = config.DatabaseConfig{Driver: config.DriverPostgres, DSN: env.Postgres.DSN, MaxOpenConns: 10}
	cfg.NATS.URL = env.NATS.URL
	env.Config = &cfg

	// pgx here, pgdriver in the service: both must agree on the schema.
	sqlDB, err := sql.Open("pgx", env.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("open pgx connection: %w", err)
	}
	env.DB = bundb.BunDB(sqlDB)
	if err := bundb.MigrateAll(ctx, env.DB, env.Logger); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if env.NatsConn, err = nats.Connect(env.NATS.URL, nats.Timeout(10*time.Second)); err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	if env.JetStream, err = jetstream.New(env.NatsConn); err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}

	env.EventBus, err = eventbus.NewNATSEventBus(ctx, env.NATS.URL, integrationLedger, eventbus.DefaultStream, env.Logger)
	if err != nil {
		return fmt.Errorf("event bus: %w", err)
	}
	return nil
}

// ResetDatabase empties the ledger tables between subtests.
func (env *TestEnvironment) ResetDatabase(ctx context.Context) error {
	_, err := env.DB.ExecContext(ctx, "TRUNCATE TABLE score_raises, score_records RESTART IDENTITY CASCADE")
	return err
}

// CheckContainerHealth fails when either container has stopped or a client
// has lost its connection.
func (env *TestEnvironment) CheckContainerHealth() error {
	ctx, cancel := context.WithTimeout(env.Ctx, 10*time.Second)
	defer cancel()

	if err := containers.Running(ctx, env.Postgres.Container); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := containers.Running(ctx, env.NATS.Container); err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	if err := env.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if !env.NatsConn.IsConnected() {
		return errors.New("nats connection lost")
	}
	return nil
}

// Cleanup releases clients first, then stops the containers.
func (env *TestEnvironment) Cleanup() {
	env.cancel()

	var errs []error
	if env.EventBus != nil {
		errs = append(errs, env.EventBus.Close())
	}
	if env.NatsConn != nil {
		env.NatsConn.Close()
	}
	if env.DB != nil {
		errs = append(errs, env.DB.Close())
	}
	errs = append(errs, env.NATS.Terminate(), env.Postgres.Terminate())

	if err := errors.Join(errs...); err != nil {
		env.Logger.Error("integration environment cleanup", slog.Any("error", err))
	}
}
