package ledger

import (
	"context"
	"time"
)

// EventType names a committed ledger fact.
type EventType string

const (
	EventGoalCreated              EventType = "GoalCreated"
	EventGoalCompleted            EventType = "GoalCompleted"
	EventStakeClaimed             EventType = "StakeClaimed"
	EventStakeForfeited           EventType = "StakeForfeited"
	EventBeneficiarySet           EventType = "BeneficiarySet"
	EventBeneficiaryCleared       EventType = "BeneficiaryCleared"
	EventChallengeCreated         EventType = "ChallengeCreated"
	EventChallengeJoined          EventType = "ChallengeJoined"
	EventChallengeGoalCompleted   EventType = "ChallengeGoalCompleted"
	EventChallengeResolved        EventType = "ChallengeResolved"
	EventChallengeWinningsClaimed EventType = "ChallengeWinningsClaimed"
	EventChallengeStakeRefunded   EventType = "ChallengeStakeRefunded"
	EventChallengePoolSwept       EventType = "ChallengePoolSwept"
)

// Event is an entry of the ledger journal. Seq is assigned by the store on append.
//
// Subject is the account the event is about: the goal owner, the participant, the beneficiary,
// or the recipient of funds for StakeClaimed / StakeForfeited / refunds / sweeps.
type Event struct {
	Seq         uint64    `json:"seq"`
	Type        EventType `json:"type"`
	GoalID      uint64    `json:"goal_id,omitempty"`
	ChallengeID uint64    `json:"challenge_id,omitempty"`
	Actor       Address   `json:"actor,omitempty"`
	Subject     Address   `json:"subject,omitempty"`
	Amount      int64     `json:"amount,omitempty"`
	Winners     int       `json:"winners,omitempty"`
	Deadline    time.Time `json:"deadline,omitempty"`
	StartTime   time.Time `json:"start_time,omitempty"`
	Description string    `json:"description,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Publisher receives events after the command that produced them committed.
// Delivery is best effort: a failing publisher never undoes the command.
type Publisher interface {
	Publish(ctx context.Context, events []Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, events []Event) error

func (f PublisherFunc) Publish(ctx context.Context, events []Event) error {
	return f(ctx, events)
}
