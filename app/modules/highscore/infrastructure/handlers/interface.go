package highscorehandlers

import (
	"context"

	highscoreevents "github.com/Black-And-White-Club/highscore-ledger/internal/events/highscore"
	"github.com/Black-And-White-Club/highscore-ledger/internal/handlerwrapper"
	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
)

// Handlers defines the interface for highscore event handlers.
type Handlers interface {
	// HandleRecordCreateRequested allocates the token holder's record.
	HandleRecordCreateRequested(ctx context.Context, payload *highscoreevents.RecordCreateRequestedPayloadV1) ([]handlerwrapper.Result, error)

	// HandleScoreSubmitRequested offers a candidate score on behalf of the token holder.
	HandleScoreSubmitRequested(ctx context.Context, payload *highscoreevents.ScoreSubmitRequestedPayloadV1) ([]handlerwrapper.Result, error)

	// HandleRecordRetrieveRequested looks up a player's record.
	HandleRecordRetrieveRequested(ctx context.Context, payload *highscoreevents.RecordRetrieveRequestedPayloadV1) ([]handlerwrapper.Result, error)
}

// TokenVerifier turns a caller token into the identity that signed it.
type TokenVerifier interface {
	Verify(token string) (identity.Identity, error)
}

var _ TokenVerifier = (*identity.Verifier)(nil)
