package ledger

import (
	"context"
	"sort"
	"time"
)

// Query is the read side of the ledger. Every method reads the latest committed state.
type Query struct {
	store Store
	cfg   Config
	clock Clock
}

func NewQuery(store Store, cfg Config, clock Clock) *Query {
	if clock == nil {
		clock = SystemClock
	}
	if cfg.ZeroWinnerPolicy == "" {
		cfg.ZeroWinnerPolicy = DefaultZeroWinnerPolicy
	}
	return &Query{store: store, cfg: cfg, clock: clock}
}

func (q *Query) Config() Config {
	return q.cfg
}

func (q *Query) Now() time.Time {
	return q.clock.Now()
}

func (q *Query) GetGoal(ctx context.Context, id uint64) (Goal, error) {
	var g Goal
	err := q.store.View(ctx, func(tx ReadTx) error {
		var err error
		g, err = tx.Goal(id)
		return err
	})
	return g, err
}

func (q *Query) GetUserGoals(ctx context.Context, user Address) ([]uint64, error) {
	var ids []uint64
	err := q.store.View(ctx, func(tx ReadTx) error {
		var err error
		ids, err = tx.UserGoals(user)
		return err
	})
	return ids, err
}

func (q *Query) GetChallenge(ctx context.Context, id uint64) (Challenge, error) {
	var c Challenge
	err := q.store.View(ctx, func(tx ReadTx) error {
		var err error
		c, err = tx.Challenge(id)
		return err
	})
	return c, err
}

func (q *Query) GetUserChallenges(ctx context.Context, user Address) ([]uint64, error) {
	var ids []uint64
	err := q.store.View(ctx, func(tx ReadTx) error {
		var err error
		ids, err = tx.UserChallenges(user)
		return err
	})
	return ids, err
}

func (q *Query) GetChallengeParticipants(ctx context.Context, id uint64) ([]Participant, error) {
	var ps []Participant
	err := q.store.View(ctx, func(tx ReadTx) error {
		var err error
		ps, err = tx.Participants(id)
		return err
	})
	return ps, err
}

// GetBeneficiary returns who receives user's forfeited stakes. isDefault is set when that is the treasury.
func (q *Query) GetBeneficiary(ctx context.Context, user Address) (beneficiary Address, isDefault bool, err error) {
	err = q.store.View(ctx, func(tx ReadTx) error {
		b, ok, err := tx.Beneficiary(user)
		if err != nil {
			return err
		}
		if ok {
			beneficiary = b
			return nil
		}
		beneficiary, isDefault = q.cfg.Treasury, true
		return nil
	})
	return beneficiary, isDefault, err
}

// GoalView is a goal with its status at the time of the query.
type GoalView struct {
	Goal
	Status GoalStatus `json:"status"`
}

// UserGoalViews lists user's goals: upcoming ones first by nearest deadline, the rest newest first.
func (q *Query) UserGoalViews(ctx context.Context, user Address) ([]GoalView, error) {
	now := q.clock.Now()
	var views []GoalView
	err := q.store.View(ctx, func(tx ReadTx) error {
		ids, err := tx.UserGoals(user)
		if err != nil {
			return err
		}
		views = make([]GoalView, 0, len(ids))
		for _, id := range ids {
			g, err := tx.Goal(id)
			if err != nil {
				return err
			}
			views = append(views, GoalView{Goal: g, Status: GoalStatusOf(g, now)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(views, func(i, j int) bool {
		ui, uj := views[i].Status == GoalStatusUpcoming, views[j].Status == GoalStatusUpcoming
		if ui != uj {
			return ui
		}
		if ui {
			return views[i].Deadline.Before(views[j].Deadline)
		}
		return views[i].ID > views[j].ID
	})
	return views, nil
}

// TotalPledged sums the amounts of every goal user ever created.
func (q *Query) TotalPledged(ctx context.Context, user Address) (int64, error) {
	var total int64
	err := q.store.View(ctx, func(tx ReadTx) error {
		ids, err := tx.UserGoals(user)
		if err != nil {
			return err
		}
		for _, id := range ids {
			g, err := tx.Goal(id)
			if err != nil {
				return err
			}
			total += g.Amount
		}
		return nil
	})
	return total, err
}

const openChallengeScanBatch = 200

// OpenChallenges lists challenges that have not started and that user has not joined, soonest start first.
// An empty user lists every open challenge.
func (q *Query) OpenChallenges(ctx context.Context, user Address, limit int) ([]Challenge, error) {
	now := q.clock.Now()
	var open []Challenge
	err := q.store.View(ctx, func(tx ReadTx) error {
		joined := make(map[uint64]bool)
		if !user.IsZero() {
			ids, err := tx.UserChallenges(user)
			if err != nil {
				return err
			}
			for _, id := range ids {
				joined[id] = true
			}
		}

		var from uint64 = 1
		for {
			batch, err := tx.Challenges(from, openChallengeScanBatch)
			if err != nil {
				return err
			}
			for _, c := range batch {
				if CanJoinChallenge(c, now) && !joined[c.ID] {
					open = append(open, c)
				}
			}
			if len(batch) < openChallengeScanBatch {
				return nil
			}
			from = batch[len(batch)-1].ID + 1
		}
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(open, func(i, j int) bool { return open[i].StartTime.Before(open[j].StartTime) })
	if limit > 0 && len(open) > limit {
		open = open[:limit]
	}
	return open, nil
}

// Goals and Challenges expose id-range scans for settlement workers.
func (q *Query) Goals(ctx context.Context, fromID uint64, limit int) ([]Goal, error) {
	var out []Goal
	err := q.store.View(ctx, func(tx ReadTx) error {
		var err error
		out, err = tx.Goals(fromID, limit)
		return err
	})
	return out, err
}

func (q *Query) Challenges(ctx context.Context, fromID uint64, limit int) ([]Challenge, error) {
	var out []Challenge
	err := q.store.View(ctx, func(tx ReadTx) error {
		var err error
		out, err = tx.Challenges(fromID, limit)
		return err
	})
	return out, err
}

// Events pages through the journal for indexers.
func (q *Query) Events(ctx context.Context, afterSeq uint64, limit int) ([]Event, error) {
	var out []Event
	err := q.store.View(ctx, func(tx ReadTx) error {
		var err error
		out, err = tx.Events(afterSeq, limit)
		return err
	})
	return out, err
}
