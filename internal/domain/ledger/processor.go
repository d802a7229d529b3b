package ledger

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"
)

// Config holds the ledger parameters that were immutable contract settings.
type Config struct {
	// MinDeadlineBuffer is how far in the future a goal deadline must be at creation.
	MinDeadlineBuffer time.Duration    `json:"min_deadline_buffer"`
	Treasury          Address          `json:"treasury"`
	ZeroWinnerPolicy  ZeroWinnerPolicy `json:"zero_winner_policy"`
}

type Option func(p *Processor)

func WithClock(clock Clock) Option {
	return func(p *Processor) {
		p.clock = clock
	}
}

// WithPublisher adds a publisher that receives events after commit. It can be given more than once.
func WithPublisher(pub Publisher) Option {
	return func(p *Processor) {
		p.publishers = append(p.publishers, pub)
	}
}

// Processor validates and applies ledger commands.
type Processor struct {
	store      Store
	cfg        Config
	clock      Clock
	publishers []Publisher
}

func NewProcessor(store Store, cfg Config, opts ...Option) *Processor {
	if cfg.ZeroWinnerPolicy == "" {
		cfg.ZeroWinnerPolicy = DefaultZeroWinnerPolicy
	}
	p := &Processor{
		store: store,
		cfg:   cfg,
		clock: SystemClock,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Processor) Config() Config {
	return p.cfg
}

// execute runs fn inside one store transaction with a single clock reading.
// Events returned by fn are journaled in the same transaction and published after commit.
func (p *Processor) execute(ctx context.Context, name string, fn func(tx Tx, now time.Time) ([]Event, error)) error {
	start := time.Now()
	now := p.clock.Now()

	var committed []Event
	err := p.store.Update(ctx, func(tx Tx) error {
		events, err := fn(tx, now)
		if err != nil {
			return err
		}
		committed = committed[:0]
		for _, e := range events {
			e.OccurredAt = now
			seq, err := tx.AppendEvent(e)
			if err != nil {
				return err
			}
			e.Seq = seq
			committed = append(committed, e)
		}
		return nil
	})
	if err != nil {
		if IsRejection(err) {
			slog.Debug("Ledger command rejected",
				slog.String("type", "ledger"),
				slog.String("name", name),
				slog.String("reason", err.Error()),
			)
		} else {
			slog.Error("Ledger command failed",
				slog.String("type", "ledger"),
				slog.String("name", name),
				slog.Any("error", err),
			)
		}
		return err
	}

	slog.Info("Ledger command committed",
		slog.String("type", "ledger"),
		slog.String("name", name),
		slog.Int("events", len(committed)),
		slog.Duration("took", time.Since(start)),
	)
	p.publish(ctx, committed)
	return nil
}

func (p *Processor) publish(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, events); err != nil {
			slog.Warn("Failed to publish ledger events",
				slog.String("type", "ledger"),
				slog.Uint64("first_seq", events[0].Seq),
				slog.Any("error", err),
			)
		}
	}
}

func (p *Processor) CreateGoal(ctx context.Context, owner Address, amount int64, deadline time.Time, description string) (uint64, error) {
	description = strings.TrimSpace(description)

	var id uint64
	err := p.execute(ctx, "CreateGoal", func(tx Tx, now time.Time) ([]Event, error) {
		switch {
		case owner.IsZero():
			return nil, reject(ErrInvalidInput, "owner is required")
		case amount <= 0:
			return nil, reject(ErrInvalidInput, "amount must be positive, got %d", amount)
		case description == "":
			return nil, reject(ErrInvalidInput, "description is required")
		case !deadline.After(now.Add(p.cfg.MinDeadlineBuffer)):
			return nil, reject(ErrInvalidInput, "deadline must be more than %s in the future", p.cfg.MinDeadlineBuffer)
		}

		var err error
		id, err = tx.InsertGoal(Goal{
			Owner:       owner,
			Amount:      amount,
			Deadline:    deadline,
			Description: description,
			CreatedAt:   now,
		})
		if err != nil {
			return nil, err
		}
		return []Event{{
			Type:        EventGoalCreated,
			GoalID:      id,
			Actor:       owner,
			Subject:     owner,
			Amount:      amount,
			Deadline:    deadline,
			Description: description,
		}}, nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (p *Processor) MarkGoalComplete(ctx context.Context, id uint64, caller Address) error {
	return p.execute(ctx, "MarkGoalComplete", func(tx Tx, now time.Time) ([]Event, error) {
		g, err := tx.Goal(id)
		if err != nil {
			return nil, err
		}
		if caller != g.Owner {
			return nil, reject(ErrUnauthorized, "goal %d belongs to %s", id, g.Owner)
		}
		if !CanMarkGoalComplete(g, caller, now) {
			if g.Completed {
				return nil, reject(ErrInvalidTransition, "goal %d is already completed", id)
			}
			return nil, reject(ErrInvalidTransition, "goal %d deadline has passed", id)
		}

		g.Completed = true
		if err := tx.UpdateGoal(g); err != nil {
			return nil, err
		}
		return []Event{{Type: EventGoalCompleted, GoalID: id, Actor: caller, Subject: g.Owner}}, nil
	})
}

// ClaimGoal releases a completed goal's stake to `to`, or to the owner when `to` is empty.
func (p *Processor) ClaimGoal(ctx context.Context, id uint64, caller, to Address) (Transfer, error) {
	var out Transfer
	err := p.execute(ctx, "ClaimGoal", func(tx Tx, now time.Time) ([]Event, error) {
		g, err := tx.Goal(id)
		if err != nil {
			return nil, err
		}
		if caller != g.Owner {
			return nil, reject(ErrUnauthorized, "goal %d belongs to %s", id, g.Owner)
		}
		if !CanClaimGoal(g, now) {
			switch {
			case g.Claimed:
				return nil, reject(ErrInvalidTransition, "goal %d is already claimed", id)
			case g.Forfeited:
				return nil, reject(ErrInvalidTransition, "goal %d was forfeited", id)
			default:
				return nil, reject(ErrInvalidTransition, "goal %d is not completed", id)
			}
		}

		if to.IsZero() {
			to = g.Owner
		}
		g.Claimed = true
		if err := tx.UpdateGoal(g); err != nil {
			return nil, err
		}
		out = Transfer{To: to, Amount: g.Amount}
		return []Event{{Type: EventStakeClaimed, GoalID: id, Actor: caller, Subject: to, Amount: g.Amount}}, nil
	})
	if err != nil {
		return Transfer{}, err
	}
	return out, nil
}

// ForfeitGoal moves an overdue goal's stake to the owner's beneficiary, or the treasury.
// Any caller may push it once the deadline has passed.
func (p *Processor) ForfeitGoal(ctx context.Context, id uint64, caller Address) (Transfer, error) {
	var out Transfer
	err := p.execute(ctx, "ForfeitGoal", func(tx Tx, now time.Time) ([]Event, error) {
		if caller.IsZero() {
			return nil, reject(ErrInvalidInput, "caller is required")
		}
		g, err := tx.Goal(id)
		if err != nil {
			return nil, err
		}
		if !CanForfeitGoal(g, now) {
			switch {
			case g.Forfeited:
				return nil, reject(ErrInvalidTransition, "goal %d is already forfeited", id)
			case g.Completed:
				return nil, reject(ErrInvalidTransition, "goal %d was completed", id)
			default:
				return nil, reject(ErrInvalidTransition, "goal %d deadline has not passed", id)
			}
		}

		recipient, ok, err := tx.Beneficiary(g.Owner)
		if err != nil {
			return nil, err
		}
		if !ok {
			recipient = p.cfg.Treasury
		}

		g.Forfeited = true
		if err := tx.UpdateGoal(g); err != nil {
			return nil, err
		}
		out = Transfer{To: recipient, Amount: g.Amount}
		return []Event{{Type: EventStakeForfeited, GoalID: id, Actor: caller, Subject: recipient, Amount: g.Amount}}, nil
	})
	if err != nil {
		return Transfer{}, err
	}
	return out, nil
}

func (p *Processor) SetBeneficiary(ctx context.Context, user, beneficiary Address) error {
	return p.execute(ctx, "SetBeneficiary", func(tx Tx, _ time.Time) ([]Event, error) {
		switch {
		case user.IsZero():
			return nil, reject(ErrInvalidInput, "user is required")
		case beneficiary.IsZero():
			return nil, reject(ErrInvalidInput, "beneficiary is required")
		case beneficiary == user:
			return nil, reject(ErrInvalidInput, "beneficiary cannot be the user")
		}
		if err := tx.SetBeneficiary(user, beneficiary); err != nil {
			return nil, err
		}
		return []Event{{Type: EventBeneficiarySet, Actor: user, Subject: beneficiary}}, nil
	})
}

func (p *Processor) ClearBeneficiary(ctx context.Context, user Address) error {
	return p.execute(ctx, "ClearBeneficiary", func(tx Tx, _ time.Time) ([]Event, error) {
		if user.IsZero() {
			return nil, reject(ErrInvalidInput, "user is required")
		}
		previous, ok, err := tx.Beneficiary(user)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, reject(ErrInvalidTransition, "%s has no beneficiary", user)
		}
		if err := tx.ClearBeneficiary(user); err != nil {
			return nil, err
		}
		return []Event{{Type: EventBeneficiaryCleared, Actor: user, Subject: previous}}, nil
	})
}

func (p *Processor) CreateChallenge(ctx context.Context, creator Address, description string, entryFee int64, startTime, deadline time.Time, goal string) (uint64, error) {
	description = strings.TrimSpace(description)
	goal = strings.TrimSpace(goal)

	var id uint64
	err := p.execute(ctx, "CreateChallenge", func(tx Tx, now time.Time) ([]Event, error) {
		switch {
		case creator.IsZero():
			return nil, reject(ErrInvalidInput, "creator is required")
		case description == "":
			return nil, reject(ErrInvalidInput, "description is required")
		case goal == "":
			return nil, reject(ErrInvalidInput, "goal is required")
		case entryFee <= 0:
			return nil, reject(ErrInvalidInput, "entry fee must be positive, got %d", entryFee)
		case !startTime.After(now):
			return nil, reject(ErrInvalidInput, "start time must be in the future")
		case !startTime.Before(deadline):
			return nil, reject(ErrInvalidInput, "start time must be before the deadline")
		}

		var err error
		id, err = tx.InsertChallenge(Challenge{
			Creator:     creator,
			Description: description,
			Goal:        goal,
			EntryFee:    entryFee,
			StartTime:   startTime,
			Deadline:    deadline,
			CreatedAt:   now,
		})
		if err != nil {
			return nil, err
		}
		return []Event{{
			Type:        EventChallengeCreated,
			ChallengeID: id,
			Actor:       creator,
			Subject:     creator,
			Amount:      entryFee,
			StartTime:   startTime,
			Deadline:    deadline,
			Description: description,
		}}, nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (p *Processor) JoinChallenge(ctx context.Context, id uint64, user Address) error {
	return p.execute(ctx, "JoinChallenge", func(tx Tx, now time.Time) ([]Event, error) {
		if user.IsZero() {
			return nil, reject(ErrInvalidInput, "user is required")
		}
		c, err := tx.Challenge(id)
		if err != nil {
			return nil, err
		}
		if !CanJoinChallenge(c, now) {
			return nil, reject(ErrInvalidTransition, "challenge %d has already started", id)
		}
		if _, err := tx.Participant(id, user); err == nil {
			return nil, reject(ErrInvalidTransition, "%s already joined challenge %d", user, id)
		} else if KindOf(err) != ErrNotFound {
			return nil, err
		}
		if c.EntryFee > math.MaxInt64/int64(c.TotalParticipants+1) {
			return nil, reject(ErrInvalidTransition, "challenge %d pool is full", id)
		}

		if err := tx.InsertParticipant(Participant{
			ChallengeID: id,
			User:        user,
			Stake:       c.EntryFee,
			JoinedAt:    now,
		}); err != nil {
			return nil, err
		}
		c.TotalParticipants++
		if err := tx.UpdateChallenge(c); err != nil {
			return nil, err
		}
		return []Event{{Type: EventChallengeJoined, ChallengeID: id, Actor: user, Subject: user, Amount: c.EntryFee}}, nil
	})
}

func (p *Processor) MarkChallengeComplete(ctx context.Context, id uint64, user Address) error {
	return p.execute(ctx, "MarkChallengeComplete", func(tx Tx, now time.Time) ([]Event, error) {
		c, err := tx.Challenge(id)
		if err != nil {
			return nil, err
		}
		part, err := p.participant(tx, id, user)
		if err != nil {
			return nil, err
		}
		if !CanMarkChallengeComplete(part, c, now) {
			switch {
			case part.Completed:
				return nil, reject(ErrInvalidTransition, "%s already completed challenge %d", user, id)
			case now.Before(c.StartTime):
				return nil, reject(ErrInvalidTransition, "challenge %d has not started", id)
			default:
				return nil, reject(ErrInvalidTransition, "challenge %d deadline has passed", id)
			}
		}

		part.Completed = true
		if err := tx.UpdateParticipant(part); err != nil {
			return nil, err
		}
		return []Event{{Type: EventChallengeGoalCompleted, ChallengeID: id, Actor: user, Subject: user}}, nil
	})
}

// ResolveChallenge fixes the winner count and allocates the pool. Any caller may resolve after the deadline.
func (p *Processor) ResolveChallenge(ctx context.Context, id uint64, caller Address) (Payout, error) {
	var out Payout
	err := p.execute(ctx, "ResolveChallenge", func(tx Tx, now time.Time) ([]Event, error) {
		if caller.IsZero() {
			return nil, reject(ErrInvalidInput, "caller is required")
		}
		c, err := tx.Challenge(id)
		if err != nil {
			return nil, err
		}
		if !CanResolveChallenge(c, now) {
			if c.Resolved {
				return nil, reject(ErrInvalidTransition, "challenge %d is already resolved", id)
			}
			return nil, reject(ErrInvalidTransition, "challenge %d deadline has not passed", id)
		}
		participants, err := tx.Participants(id)
		if err != nil {
			return nil, err
		}

		payout := ComputePayout(c, participants, p.cfg.ZeroWinnerPolicy)

		events := make([]Event, 0, len(payout.Shares)+2)
		for _, part := range participants {
			share := payout.ShareOf(part.User)
			if share == 0 {
				continue
			}
			part.Payout = share
			if err := tx.UpdateParticipant(part); err != nil {
				return nil, err
			}
			if payout.Refund {
				events = append(events, Event{
					Type:        EventChallengeStakeRefunded,
					ChallengeID: id,
					Actor:       caller,
					Subject:     part.User,
					Amount:      share,
				})
			}
		}
		if payout.Treasury > 0 {
			events = append(events, Event{
				Type:        EventChallengePoolSwept,
				ChallengeID: id,
				Actor:       caller,
				Subject:     p.cfg.Treasury,
				Amount:      payout.Treasury,
			})
		}

		c.Resolved = true
		c.Winners = payout.Winners
		if err := tx.UpdateChallenge(c); err != nil {
			return nil, err
		}
		out = payout
		resolved := Event{
			Type:        EventChallengeResolved,
			ChallengeID: id,
			Actor:       caller,
			Amount:      payout.WinnerTotal(),
			Winners:     payout.Winners,
		}
		return append([]Event{resolved}, events...), nil
	})
	if err != nil {
		return Payout{}, err
	}
	return out, nil
}

func (p *Processor) ClaimChallengeWinnings(ctx context.Context, id uint64, user Address) (Transfer, error) {
	var out Transfer
	err := p.execute(ctx, "ClaimChallengeWinnings", func(tx Tx, _ time.Time) ([]Event, error) {
		c, err := tx.Challenge(id)
		if err != nil {
			return nil, err
		}
		part, err := p.participant(tx, id, user)
		if err != nil {
			return nil, err
		}
		if !canClaimWinnings(part, c) {
			switch {
			case !c.Resolved:
				return nil, reject(ErrInvalidTransition, "challenge %d is not resolved", id)
			case !part.Completed:
				return nil, reject(ErrInvalidTransition, "%s did not complete challenge %d", user, id)
			default:
				return nil, reject(ErrInvalidTransition, "%s already claimed challenge %d", user, id)
			}
		}

		part.Claimed = true
		if err := tx.UpdateParticipant(part); err != nil {
			return nil, err
		}
		out = Transfer{To: user, Amount: part.Payout}
		return []Event{{Type: EventChallengeWinningsClaimed, ChallengeID: id, Actor: user, Subject: user, Amount: part.Payout}}, nil
	})
	if err != nil {
		return Transfer{}, err
	}
	return out, nil
}

// participant resolves the caller's entry; a non-participant is not authorized to act on the challenge.
func (p *Processor) participant(tx ReadTx, id uint64, user Address) (Participant, error) {
	part, err := tx.Participant(id, user)
	if err == nil {
		return part, nil
	}
	if KindOf(err) == ErrNotFound {
		return Participant{}, reject(ErrUnauthorized, "%s is not a participant of challenge %d", user, id)
	}
	return Participant{}, err
}
