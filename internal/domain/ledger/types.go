// Package ledger keeps goal and challenge stakes in escrow and decides when they may move.
//
// The package is split the same way the ledger is operated:
//   - Store / MemoryStore hold the records and per-user indices,
//   - the Can* functions and ComputePayout decide transitions without side effects,
//   - Processor applies commands atomically and emits events,
//   - Query exposes read-only projections.
package ledger

import (
	"strings"
	"time"
)

// Address identifies an actor of the ledger (a Discord user id, a wallet address, the treasury...).
type Address string

func (a Address) IsZero() bool {
	return strings.TrimSpace(string(a)) == ""
}

func (a Address) String() string {
	return string(a)
}

// Goal is a single-owner staked commitment.
type Goal struct {
	ID          uint64    `json:"id"`
	Owner       Address   `json:"owner"`
	Amount      int64     `json:"amount"`
	Deadline    time.Time `json:"deadline"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	Claimed     bool      `json:"claimed"`
	Forfeited   bool      `json:"forfeited"`
	CreatedAt   time.Time `json:"created_at"`
}

// Locked reports whether the stake is still held in escrow.
func (g Goal) Locked() bool {
	return !g.Claimed && !g.Forfeited
}

// Challenge is a pooled-stake competition with a shared deadline.
type Challenge struct {
	ID                uint64    `json:"id"`
	Creator           Address   `json:"creator"`
	Description       string    `json:"description"`
	Goal              string    `json:"goal"`
	EntryFee          int64     `json:"entry_fee"`
	StartTime         time.Time `json:"start_time"`
	Deadline          time.Time `json:"deadline"`
	TotalParticipants int       `json:"total_participants"`
	Winners           int       `json:"winners"`
	Resolved          bool      `json:"resolved"`
	CreatedAt         time.Time `json:"created_at"`
}

// Pool is the total stake held for the challenge.
func (c Challenge) Pool() int64 {
	return c.EntryFee * int64(c.TotalParticipants)
}

// Participant is a user's entry in a challenge. Seq is the zero-based join order.
type Participant struct {
	ChallengeID uint64    `json:"challenge_id"`
	User        Address   `json:"user"`
	Seq         int       `json:"seq"`
	Stake       int64     `json:"stake"`
	Completed   bool      `json:"completed"`
	Claimed     bool      `json:"claimed"`
	Payout      int64     `json:"payout"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Transfer describes funds leaving escrow as the result of a command.
type Transfer struct {
	To     Address `json:"to"`
	Amount int64   `json:"amount"`
}

// Clock abstracts the wall clock so commands can be evaluated at a fixed instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads time.Now.
var SystemClock Clock = systemClock{}
