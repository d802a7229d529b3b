package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Challenge struct {
	bun.BaseModel `bun:"table:challenges,alias:c"`

	ID                int64     `bun:"id,pk,autoincrement"`
	Creator           string    `bun:"creator,notnull"`
	Description       string    `bun:"description,notnull,type:text"`
	Goal              string    `bun:"goal,notnull,type:text"`
	EntryFee          int64     `bun:"entry_fee,notnull"`
	StartTime         time.Time `bun:"start_time,notnull"`
	Deadline          time.Time `bun:"deadline,notnull"`
	TotalParticipants int       `bun:"total_participants,notnull,default:0"`
	Winners           int       `bun:"winners,notnull,default:0"`
	Resolved          bool      `bun:"resolved,notnull,default:false"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// ChallengeParticipant rows are ordered by ID, which is the join order.
type ChallengeParticipant struct {
	bun.BaseModel `bun:"table:challenge_participants,alias:cp"`

	ID          int64     `bun:"id,pk,autoincrement"`
	ChallengeID int64     `bun:"challenge_id,notnull,unique:challenge_user"`
	UserID      string    `bun:"user_id,notnull,unique:challenge_user"`
	Seq         int       `bun:"seq,notnull"`
	Stake       int64     `bun:"stake,notnull"`
	Completed   bool      `bun:"completed,notnull,default:false"`
	Claimed     bool      `bun:"claimed,notnull,default:false"`
	Payout      int64     `bun:"payout,notnull,default:0"`
	JoinedAt    time.Time `bun:"joined_at,notnull,default:current_timestamp"`

	Challenge *Challenge `bun:"rel:belongs-to,join:challenge_id=id"`
}
