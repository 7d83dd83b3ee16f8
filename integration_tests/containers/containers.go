// Package containers starts the backing services of the ledger in Docker.
package containers

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	PostgresImage = "postgres:16-alpine"
	NATSImage     = "nats:2.10-alpine"

	ledgerDatabase = "highscore"
	ledgerUser     = "ledger"
	ledgerPassword = "ledger"

	startupTimeout = 45 * time.Second
)

// Postgres is a running Postgres container and the DSN that reaches it.
type Postgres struct {
	Container *postgres.PostgresContainer
	DSN       string
}

// NATS is a running JetStream-enabled NATS container.
type NATS struct {
	Container *tcnats.NATSContainer
	URL       string
}

// StartPostgres runs Postgres and waits until the pgx driver can query it.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	container, err := postgres.Run(ctx,
		PostgresImage,
		postgres.WithDatabase(ledgerDatabase),
		postgres.WithUsername(ledgerUser),
		postgres.WithPassword(ledgerPassword),
		testcontainers.WithWaitStrategy(
			wait.ForSQL("5432/tcp", "pgx", ledgerDSN).WithStartupTimeout(startupTimeout),
		),
	)
	if err != nil {
		if container != nil {
			terminate(container)
		}
		return nil, fmt.Errorf("start postgres: %w", err)
	}

	raw, err := container.ConnectionString(ctx)
	if err != nil {
		terminate(container)
		return nil, fmt.Errorf("postgres connection string: %w", err)
	}
	dsn, err := withoutTLS(raw)
	if err != nil {
		terminate(container)
		return nil, err
	}
	return &Postgres{Container: container, DSN: dsn}, nil
}

// StartNATS runs a NATS server with JetStream and waits for the client port.
func StartNATS(ctx context.Context) (*NATS, error) {
	container, err := tcnats.Run(ctx,
		NATSImage,
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForLog("Server is ready"),
				wait.ForListeningPort("4222/tcp"),
			).WithDeadline(startupTimeout),
		),
	)
	if err != nil {
		if container != nil {
			terminate(container)
		}
		return nil, fmt.Errorf("start nats: %w", err)
	}

	natsURL, err := container.ConnectionString(ctx)
	if err != nil {
		terminate(container)
		return nil, fmt.Errorf("nats connection string: %w", err)
	}
	return &NATS{Container: container, URL: natsURL}, nil
}

// Terminate stops the container. It is safe on a nil receiver.
func (p *Postgres) Terminate() error {
	if p == nil || p.Container == nil {
		return nil
	}
	return testcontainers.TerminateContainer(p.Container)
}

// Terminate stops the container. It is safe on a nil receiver.
func (n *NATS) Terminate() error {
	if n == nil || n.Container == nil {
		return nil
	}
	return testcontainers.TerminateContainer(n.Container)
}

// Running reports whether the container is still up.
func Running(ctx context.Context, c testcontainers.Container) error {
	state, err := c.State(ctx)
	if err != nil {
		return err
	}
	if !state.Running {
		return fmt.Errorf("container %s is %s", c.GetContainerID(), state.Status)
	}
	return nil
}

func ledgerDSN(host string, port nat.Port) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		ledgerUser, ledgerPassword, host, port.Port(), ledgerDatabase)
}

func withoutTLS(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse postgres dsn: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func terminate(c testcontainers.Container) {
	_ = testcontainers.TerminateContainer(c)
}
