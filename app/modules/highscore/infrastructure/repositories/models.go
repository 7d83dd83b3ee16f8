package highscoredb

import (
	"time"

	"github.com/uptrace/bun"
)

// ScoreRecord is the persisted high score of one player on one ledger.
// Scores are stored as bigint: Postgres integer is signed 32-bit and cannot
// hold the upper half of the uint32 range.
type ScoreRecord struct {
	bun.BaseModel `bun:"table:score_records,alias:sr"`

	Address   string    `bun:"address,pk,type:varchar(64)"`
	LedgerID  string    `bun:"ledger_id,notnull,type:varchar(128)"`
	Owner     string    `bun:"owner,notnull,type:varchar(56)"`
	Score     uint32    `bun:"score,notnull,type:bigint"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// ScoreRaise is an append-only audit row written whenever a record's score is raised.
type ScoreRaise struct {
	bun.BaseModel `bun:"table:score_raises,alias:rz"`

	ID            int64     `bun:"id,pk,autoincrement"`
	Address       string    `bun:"address,notnull,type:varchar(64)"`
	PreviousScore uint32    `bun:"previous_score,notnull,type:bigint"`
	NewScore      uint32    `bun:"new_score,notnull,type:bigint"`
	RaisedAt      time.Time `bun:"raised_at,notnull"`
}
