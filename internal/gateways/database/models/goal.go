package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Goal struct {
	bun.BaseModel `bun:"table:goals,alias:g"`

	ID          int64     `bun:"id,pk,autoincrement"`
	Owner       string    `bun:"owner,notnull"`
	Amount      int64     `bun:"amount,notnull"`
	Deadline    time.Time `bun:"deadline,notnull"`
	Description string    `bun:"description,notnull,type:text"`
	Completed   bool      `bun:"completed,notnull,default:false"`
	Claimed     bool      `bun:"claimed,notnull,default:false"`
	Forfeited   bool      `bun:"forfeited,notnull,default:false"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// Beneficiary receives the forfeited stakes of UserID.
type Beneficiary struct {
	bun.BaseModel `bun:"table:beneficiaries,alias:b"`

	UserID      string    `bun:"user_id,pk"`
	Beneficiary string    `bun:"beneficiary,notnull"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
