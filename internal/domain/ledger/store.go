package ledger

import "context"

// ReadTx is a consistent read view of the ledger.
type ReadTx interface {
	Goal(id uint64) (Goal, error)
	// UserGoals returns goal ids in creation order.
	UserGoals(user Address) ([]uint64, error)
	// Goals scans goals with ID >= fromID in id order.
	Goals(fromID uint64, limit int) ([]Goal, error)

	Challenge(id uint64) (Challenge, error)
	// UserChallenges returns joined challenge ids in join order.
	UserChallenges(user Address) ([]uint64, error)
	Challenges(fromID uint64, limit int) ([]Challenge, error)
	// Participants returns the challenge entries in join order.
	Participants(challengeID uint64) ([]Participant, error)
	Participant(challengeID uint64, user Address) (Participant, error)

	// Beneficiary returns the explicit beneficiary of user, if any.
	Beneficiary(user Address) (Address, bool, error)

	// Events returns journal entries with Seq > afterSeq in order.
	Events(afterSeq uint64, limit int) ([]Event, error)
}

// Tx is a read-write transaction. Index maintenance (userGoals, userChallenges) happens inside the
// same transaction as the insert that requires it.
type Tx interface {
	ReadTx

	// InsertGoal stores g, assigning the next id when g.ID is zero.
	InsertGoal(g Goal) (uint64, error)
	UpdateGoal(g Goal) error

	InsertChallenge(c Challenge) (uint64, error)
	UpdateChallenge(c Challenge) error
	InsertParticipant(p Participant) error
	UpdateParticipant(p Participant) error

	SetBeneficiary(user, beneficiary Address) error
	ClearBeneficiary(user Address) error

	AppendEvent(e Event) (uint64, error)
}

// Store owns every ledger record.
//
// Update runs fn atomically: when fn returns an error nothing it wrote becomes visible.
// Updates are serialized against each other for the records they touch.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx ReadTx) error) error
}
