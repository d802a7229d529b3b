package ledger

import "time"

// CanMarkGoalComplete: owner only, strictly before the deadline, once.
func CanMarkGoalComplete(g Goal, caller Address, now time.Time) bool {
	return !g.Completed && now.Before(g.Deadline) && caller == g.Owner
}

func CanClaimGoal(g Goal, now time.Time) bool {
	return g.Completed && !g.Claimed
}

// CanForfeitGoal holds from the deadline instant onwards (now == deadline forfeits).
func CanForfeitGoal(g Goal, now time.Time) bool {
	return !g.Completed && !now.Before(g.Deadline) && !g.Claimed && !g.Forfeited
}

func CanJoinChallenge(c Challenge, now time.Time) bool {
	return now.Before(c.StartTime)
}

func CanMarkChallengeComplete(p Participant, c Challenge, now time.Time) bool {
	return !now.Before(c.StartTime) && now.Before(c.Deadline) && !p.Completed
}

func CanResolveChallenge(c Challenge, now time.Time) bool {
	return !now.Before(c.Deadline) && !c.Resolved
}

func canClaimWinnings(p Participant, c Challenge) bool {
	return c.Resolved && p.Completed && !p.Claimed
}

// GoalStatus is the user-facing state of a goal.
type GoalStatus string

const (
	GoalStatusUpcoming  GoalStatus = "upcoming"
	GoalStatusClaimable GoalStatus = "claimable"
	GoalStatusCompleted GoalStatus = "completed"
	GoalStatusMissed    GoalStatus = "missed"
	GoalStatusForfeited GoalStatus = "forfeited"
)

func GoalStatusOf(g Goal, now time.Time) GoalStatus {
	switch {
	case g.Completed && g.Claimed:
		return GoalStatusCompleted
	case g.Completed:
		return GoalStatusClaimable
	case g.Forfeited:
		return GoalStatusForfeited
	case now.Before(g.Deadline):
		return GoalStatusUpcoming
	default:
		return GoalStatusMissed
	}
}

// ChallengePhase is the user-facing state of a challenge.
type ChallengePhase string

const (
	ChallengePhaseOpen     ChallengePhase = "open"
	ChallengePhaseActive   ChallengePhase = "active"
	ChallengePhaseEnded    ChallengePhase = "ended"
	ChallengePhaseResolved ChallengePhase = "resolved"
)

func ChallengePhaseOf(c Challenge, now time.Time) ChallengePhase {
	switch {
	case c.Resolved:
		return ChallengePhaseResolved
	case now.Before(c.StartTime):
		return ChallengePhaseOpen
	case now.Before(c.Deadline):
		return ChallengePhaseActive
	default:
		return ChallengePhaseEnded
	}
}
