package highscoreservice

import (
	"time"

	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
)

// ScoreRecordView is a read-only snapshot of a score record.
type ScoreRecordView struct {
	Address   identity.Address
	Owner     identity.Identity
	Score     uint32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubmitResult describes the effect of a submission. Record.Score is the
// score after the submission; Raised is false when the candidate was not
// strictly greater than Previous.
type SubmitResult struct {
	Record   ScoreRecordView
	Previous uint32
	Raised   bool
}

// ScoreRaiseView is one entry of a record's audit trail.
type ScoreRaiseView struct {
	Previous uint32
	New      uint32
	RaisedAt time.Time
}
