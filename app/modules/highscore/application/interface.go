package highscoreservice

import (
	"context"

	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
)

// Service is the score ledger.
type Service interface {
	// CreateRecord allocates the caller's record with score 0.
	CreateRecord(ctx context.Context, caller identity.Identity) (*ScoreRecordView, error)

	// SubmitScore raises player's score to candidate when candidate is
	// strictly greater than the stored score. Only the owner may submit.
	SubmitScore(ctx context.Context, caller, player identity.Identity, candidate uint32) (*SubmitResult, error)

	// GetRecord returns player's record.
	GetRecord(ctx context.Context, player identity.Identity) (*ScoreRecordView, error)

	// ListTopRecords returns the ledger's best records, best first.
	ListTopRecords(ctx context.Context, limit int) ([]ScoreRecordView, error)

	// GetScoreHistory returns every raise of player's score, oldest first.
	GetScoreHistory(ctx context.Context, player identity.Identity) ([]ScoreRaiseView, error)

	// AddressOf returns the record address of player on this ledger.
	AddressOf(player identity.Identity) identity.Address
}

var _ Service = (*HighscoreService)(nil)
