// Package highscoreevents defines the topics and payloads of the ledger's
// event interface.
package highscoreevents

import (
	"time"

	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
)

// Topics.
const (
	RecordCreateRequestedV1 = "highscore.record.create.requested.v1"
	RecordCreatedV1         = "highscore.record.created.v1"
	RecordCreateFailedV1    = "highscore.record.create.failed.v1"

	ScoreSubmitRequestedV1 = "highscore.score.submit.requested.v1"
	ScoreSubmittedV1       = "highscore.score.submitted.v1"
	ScoreSubmitFailedV1    = "highscore.score.submit.failed.v1"

	RecordRetrieveRequestedV1 = "highscore.record.retrieve.requested.v1"
	RecordRetrievedV1         = "highscore.record.retrieved.v1"
	RecordRetrieveFailedV1    = "highscore.record.retrieve.failed.v1"
)

// FailureCode classifies a domain failure on the wire.
type FailureCode string

const (
	CodeAlreadyExists   FailureCode = "already_exists"
	CodeNotFound        FailureCode = "not_found"
	CodeUnauthorized    FailureCode = "unauthorized"
	CodeUnauthenticated FailureCode = "unauthenticated"
	CodeInvalidIdentity FailureCode = "invalid_identity"
	CodeInvalidPayload  FailureCode = "invalid_payload"
)

// RecordV1 is the wire form of a score record.
type RecordV1 struct {
	Address   identity.Address  `json:"address"`
	Owner     identity.Identity `json:"owner"`
	Score     uint32            `json:"score"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// RecordCreateRequestedPayloadV1 asks the ledger to allocate the caller's record.
type RecordCreateRequestedPayloadV1 struct {
	Token string `json:"token"`
}

type RecordCreatedPayloadV1 struct {
	Record RecordV1 `json:"record"`
}

type RecordCreateFailedPayloadV1 struct {
	Player identity.Identity `json:"player"`
	Code   FailureCode       `json:"code"`
	Reason string            `json:"reason"`
}

// ScoreSubmitRequestedPayloadV1 offers a candidate score for player's record.
// The token must be signed by the record owner.
type ScoreSubmitRequestedPayloadV1 struct {
	Token  string            `json:"token"`
	Player identity.Identity `json:"player"`
	Score  uint32            `json:"score"`
}

type ScoreSubmittedPayloadV1 struct {
	Record   RecordV1 `json:"record"`
	Previous uint32   `json:"previous"`
	Raised   bool     `json:"raised"`
}

type ScoreSubmitFailedPayloadV1 struct {
	Player identity.Identity `json:"player"`
	Score  uint32            `json:"score"`
	Code   FailureCode       `json:"code"`
	Reason string            `json:"reason"`
}

type RecordRetrieveRequestedPayloadV1 struct {
	Player identity.Identity `json:"player"`
}

type RecordRetrievedPayloadV1 struct {
	Record RecordV1 `json:"record"`
}

type RecordRetrieveFailedPayloadV1 struct {
	Player identity.Identity `json:"player"`
	Code   FailureCode       `json:"code"`
	Reason string            `json:"reason"`
}
