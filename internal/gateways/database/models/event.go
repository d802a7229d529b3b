package models

import (
	"time"

	"github.com/uptrace/bun"
)

// LedgerEvent is one row of the append-only event journal.
type LedgerEvent struct {
	bun.BaseModel `bun:"table:ledger_events,alias:le"`

	Seq         int64     `bun:"seq,pk,autoincrement"`
	Type        string    `bun:"type,notnull"`
	GoalID      int64     `bun:"goal_id,nullzero"`
	ChallengeID int64     `bun:"challenge_id,nullzero"`
	Actor       string    `bun:"actor,nullzero"`
	Subject     string    `bun:"subject,nullzero"`
	Amount      int64     `bun:"amount,notnull,default:0"`
	Winners     int       `bun:"winners,notnull,default:0"`
	Deadline    time.Time `bun:"deadline,nullzero"`
	StartTime   time.Time `bun:"start_time,nullzero"`
	Description string    `bun:"description,nullzero,type:text"`
	OccurredAt  time.Time `bun:"occurred_at,notnull"`
}
