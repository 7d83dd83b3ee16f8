package highscoredb

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Repository defines the contract for score record persistence.
// Every method takes a bun.IDB so callers can pass a transaction; nil uses
// the repository's default connection.
type Repository interface {
	// Create inserts a new record. Returns ErrAlreadyExists if the address is taken.
	Create(ctx context.Context, db bun.IDB, record *ScoreRecord) error

	// GetByAddress returns the record at address or ErrNotFound.
	GetByAddress(ctx context.Context, db bun.IDB, address string) (*ScoreRecord, error)

	// GetForUpdate returns the record at address and, where the dialect
	// supports it, locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, db bun.IDB, address string) (*ScoreRecord, error)

	// UpdateScore sets the score of the record at address.
	UpdateScore(ctx context.Context, db bun.IDB, address string, score uint32, updatedAt time.Time) error

	// InsertRaise appends an audit row.
	InsertRaise(ctx context.Context, db bun.IDB, raise *ScoreRaise) error

	// ListTop returns the highest records of a ledger, best first.
	ListTop(ctx context.Context, db bun.IDB, ledgerID string, limit int) ([]ScoreRecord, error)

	// ListRaises returns the audit trail of a record, oldest first.
	ListRaises(ctx context.Context, db bun.IDB, address string) ([]ScoreRaise, error)
}
