package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
	"github.com/goalpledge/pledgebot/internal/domain/ledger/mock"
)

const (
	usdc     = int64(1_000000)
	treasury = ledger.Address("treasury")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	ctx   context.Context
	clock *fakeClock
	store *ledger.MemoryStore
	proc  *ledger.Processor
	query *ledger.Query
	start time.Time
}

func newFixture(t *testing.T, policy ledger.ZeroWinnerPolicy, opts ...ledger.Option) *fixture {
	t.Helper()
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: start}
	store := ledger.NewMemoryStore()
	cfg := ledger.Config{MinDeadlineBuffer: time.Hour, Treasury: treasury, ZeroWinnerPolicy: policy}

	return &fixture{
		ctx:   context.Background(),
		clock: clock,
		store: store,
		proc:  ledger.NewProcessor(store, cfg, append([]ledger.Option{ledger.WithClock(clock)}, opts...)...),
		query: ledger.NewQuery(store, cfg, clock),
		start: start,
	}
}

func (f *fixture) at(d time.Duration) {
	f.clock.Set(f.start.Add(d))
}

func (f *fixture) events(t *testing.T) []ledger.Event {
	t.Helper()
	events, err := f.query.Events(f.ctx, 0, 0)
	require.NoError(t, err)
	return events
}

func TestProcessor_GoalClaimedAfterCompletion(t *testing.T) {
	f := newFixture(t, "")

	id, err := f.proc.CreateGoal(f.ctx, "alice", 10*usdc, f.start.Add(7*24*time.Hour), "Run 5k three times")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	f.at(24 * time.Hour)
	require.NoError(t, f.proc.MarkGoalComplete(f.ctx, id, "alice"))

	transfer, err := f.proc.ClaimGoal(f.ctx, id, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, ledger.Transfer{To: "alice", Amount: 10_000000}, transfer)

	g, err := f.query.GetGoal(f.ctx, id)
	require.NoError(t, err)
	assert.True(t, g.Completed)
	assert.True(t, g.Claimed)
	assert.False(t, g.Locked())

	_, err = f.proc.ClaimGoal(f.ctx, id, "alice", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)

	var types []ledger.EventType
	for _, e := range f.events(t) {
		types = append(types, e.Type)
	}
	assert.Equal(t, []ledger.EventType{ledger.EventGoalCreated, ledger.EventGoalCompleted, ledger.EventStakeClaimed}, types)
}

func TestProcessor_ClaimToOtherAddress(t *testing.T) {
	f := newFixture(t, "")
	id, err := f.proc.CreateGoal(f.ctx, "alice", 3*usdc, f.start.Add(48*time.Hour), "Read a book")
	require.NoError(t, err)
	require.NoError(t, f.proc.MarkGoalComplete(f.ctx, id, "alice"))

	_, err = f.proc.ClaimGoal(f.ctx, id, "mallory", "mallory")
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	transfer, err := f.proc.ClaimGoal(f.ctx, id, "alice", "wallet-2")
	require.NoError(t, err)
	assert.Equal(t, ledger.Address("wallet-2"), transfer.To)
}

func TestProcessor_ForfeitGoesToBeneficiaryOrTreasury(t *testing.T) {
	f := newFixture(t, "")
	deadline := f.start.Add(2 * time.Hour)

	first, err := f.proc.CreateGoal(f.ctx, "alice", 10*usdc, deadline, "Meditate daily")
	require.NoError(t, err)
	second, err := f.proc.CreateGoal(f.ctx, "bob", 4*usdc, deadline, "No sugar")
	require.NoError(t, err)
	require.NoError(t, f.proc.SetBeneficiary(f.ctx, "alice", "charity"))

	f.at(2*time.Hour - time.Second)
	_, err = f.proc.ForfeitGoal(f.ctx, first, "keeper")
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)

	f.at(2*time.Hour + time.Second)
	transfer, err := f.proc.ForfeitGoal(f.ctx, first, "keeper")
	require.NoError(t, err)
	assert.Equal(t, ledger.Transfer{To: "charity", Amount: 10 * usdc}, transfer)

	transfer, err = f.proc.ForfeitGoal(f.ctx, second, "anyone")
	require.NoError(t, err)
	assert.Equal(t, ledger.Transfer{To: treasury, Amount: 4 * usdc}, transfer)

	_, err = f.proc.ForfeitGoal(f.ctx, first, "keeper")
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
	_, err = f.proc.ClaimGoal(f.ctx, first, "alice", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
	err = f.proc.MarkGoalComplete(f.ctx, first, "alice")
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
}

func TestProcessor_ForfeitAtDeadlineInstant(t *testing.T) {
	f := newFixture(t, "")
	id, err := f.proc.CreateGoal(f.ctx, "alice", usdc, f.start.Add(2*time.Hour), "Sleep by 11")
	require.NoError(t, err)

	f.at(2 * time.Hour)
	assert.ErrorIs(t, f.proc.MarkGoalComplete(f.ctx, id, "alice"), ledger.ErrInvalidTransition)
	_, err = f.proc.ForfeitGoal(f.ctx, id, "keeper")
	assert.NoError(t, err)
}

func TestProcessor_CreateGoalValidation(t *testing.T) {
	f := newFixture(t, "")

	tests := []struct {
		name        string
		owner       ledger.Address
		amount      int64
		deadline    time.Time
		description string
	}{
		{name: "zero amount", owner: "alice", amount: 0, deadline: f.start.Add(48 * time.Hour), description: "x"},
		{name: "negative amount", owner: "alice", amount: -1, deadline: f.start.Add(48 * time.Hour), description: "x"},
		{name: "blank description", owner: "alice", amount: 1, deadline: f.start.Add(48 * time.Hour), description: "   "},
		{name: "no owner", owner: "", amount: 1, deadline: f.start.Add(48 * time.Hour), description: "x"},
		{name: "deadline equal to buffer", owner: "alice", amount: 1, deadline: f.start.Add(time.Hour), description: "x"},
		{name: "deadline in the past", owner: "alice", amount: 1, deadline: f.start.Add(-time.Hour), description: "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.proc.CreateGoal(f.ctx, tt.owner, tt.amount, tt.deadline, tt.description)
			assert.ErrorIs(t, err, ledger.ErrInvalidInput)
		})
	}

	_, err := f.proc.CreateGoal(f.ctx, "alice", 1, f.start.Add(time.Hour+time.Second), "x")
	assert.NoError(t, err)
}

func TestProcessor_UnknownRecords(t *testing.T) {
	f := newFixture(t, "")

	assert.ErrorIs(t, f.proc.MarkGoalComplete(f.ctx, 42, "alice"), ledger.ErrNotFound)
	_, err := f.proc.ForfeitGoal(f.ctx, 42, "alice")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.ErrorIs(t, f.proc.JoinChallenge(f.ctx, 7, "alice"), ledger.ErrNotFound)
	_, err = f.proc.ResolveChallenge(f.ctx, 7, "alice")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	_, err = f.query.GetChallengeParticipants(f.ctx, 7)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestProcessor_Beneficiary(t *testing.T) {
	f := newFixture(t, "")

	b, isDefault, err := f.query.GetBeneficiary(f.ctx, "alice")
	require.NoError(t, err)
	assert.True(t, isDefault)
	assert.Equal(t, treasury, b)

	assert.ErrorIs(t, f.proc.SetBeneficiary(f.ctx, "alice", "alice"), ledger.ErrInvalidInput)
	assert.ErrorIs(t, f.proc.ClearBeneficiary(f.ctx, "alice"), ledger.ErrInvalidTransition)

	require.NoError(t, f.proc.SetBeneficiary(f.ctx, "alice", "mom"))
	b, isDefault, err = f.query.GetBeneficiary(f.ctx, "alice")
	require.NoError(t, err)
	assert.False(t, isDefault)
	assert.Equal(t, ledger.Address("mom"), b)

	require.NoError(t, f.proc.ClearBeneficiary(f.ctx, "alice"))
	b, isDefault, err = f.query.GetBeneficiary(f.ctx, "alice")
	require.NoError(t, err)
	assert.True(t, isDefault)
	assert.Equal(t, treasury, b)

	events := f.events(t)
	require.Len(t, events, 2)
	assert.Equal(t, ledger.EventBeneficiaryCleared, events[1].Type)
	assert.Equal(t, ledger.Address("mom"), events[1].Subject)
}

func TestProcessor_ChallengeTwoWinners(t *testing.T) {
	f := newFixture(t, "")
	startTime, deadline := f.start.Add(time.Hour), f.start.Add(8*24*time.Hour)

	id, err := f.proc.CreateChallenge(f.ctx, "host", "Spring steps", 5*usdc, startTime, deadline, "10k steps every day")
	require.NoError(t, err)

	for _, u := range []ledger.Address{"a", "b", "c", "d"} {
		require.NoError(t, f.proc.JoinChallenge(f.ctx, id, u))
	}
	assert.ErrorIs(t, f.proc.JoinChallenge(f.ctx, id, "a"), ledger.ErrInvalidTransition)

	// not started yet
	assert.ErrorIs(t, f.proc.MarkChallengeComplete(f.ctx, id, "a"), ledger.ErrInvalidTransition)

	f.at(2 * time.Hour)
	assert.ErrorIs(t, f.proc.JoinChallenge(f.ctx, id, "e"), ledger.ErrInvalidTransition)
	assert.ErrorIs(t, f.proc.MarkChallengeComplete(f.ctx, id, "e"), ledger.ErrUnauthorized)
	require.NoError(t, f.proc.MarkChallengeComplete(f.ctx, id, "a"))
	require.NoError(t, f.proc.MarkChallengeComplete(f.ctx, id, "c"))

	_, err = f.proc.ResolveChallenge(f.ctx, id, "anyone")
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
	_, err = f.proc.ClaimChallengeWinnings(f.ctx, id, "a")
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)

	f.at(8*24*time.Hour + time.Second)
	assert.ErrorIs(t, f.proc.MarkChallengeComplete(f.ctx, id, "b"), ledger.ErrInvalidTransition)

	payout, err := f.proc.ResolveChallenge(f.ctx, id, "anyone")
	require.NoError(t, err)
	assert.Equal(t, 20*usdc, payout.Pool)
	assert.Equal(t, 2, payout.Winners)
	assert.Equal(t, 10*usdc, payout.ShareOf("a"))
	assert.Equal(t, 10*usdc, payout.ShareOf("c"))

	_, err = f.proc.ResolveChallenge(f.ctx, id, "anyone")
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)

	c, err := f.query.GetChallenge(f.ctx, id)
	require.NoError(t, err)
	assert.True(t, c.Resolved)
	assert.Equal(t, 2, c.Winners)
	assert.Equal(t, 4, c.TotalParticipants)

	transfer, err := f.proc.ClaimChallengeWinnings(f.ctx, id, "a")
	require.NoError(t, err)
	assert.Equal(t, ledger.Transfer{To: "a", Amount: 10 * usdc}, transfer)

	_, err = f.proc.ClaimChallengeWinnings(f.ctx, id, "a")
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
	_, err = f.proc.ClaimChallengeWinnings(f.ctx, id, "b")
	assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
	_, err = f.proc.ClaimChallengeWinnings(f.ctx, id, "nobody")
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	ps, err := f.query.GetChallengeParticipants(f.ctx, id)
	require.NoError(t, err)
	require.Len(t, ps, 4)
	for _, p := range ps {
		if p.Claimed {
			assert.True(t, p.Completed, "claimed implies completed for %s", p.User)
		}
	}

	var resolved ledger.Event
	for _, e := range f.events(t) {
		if e.Type == ledger.EventChallengeResolved {
			resolved = e
		}
	}
	assert.Equal(t, 2, resolved.Winners)
	assert.Equal(t, 20*usdc, resolved.Amount)
}

func TestProcessor_ZeroWinnerPolicies(t *testing.T) {
	tests := []struct {
		policy   ledger.ZeroWinnerPolicy
		refunds  int
		swept    int64
		stranded int64
	}{
		{policy: ledger.ZeroWinnerRefund, refunds: 3},
		{policy: ledger.ZeroWinnerTreasury, swept: 6 * usdc},
		{policy: ledger.ZeroWinnerStrand, stranded: 6 * usdc},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			f := newFixture(t, tt.policy)
			id, err := f.proc.CreateChallenge(f.ctx, "host", "Cold showers", 2*usdc, f.start.Add(time.Hour), f.start.Add(2*time.Hour), "Every morning")
			require.NoError(t, err)
			for _, u := range []ledger.Address{"a", "b", "c"} {
				require.NoError(t, f.proc.JoinChallenge(f.ctx, id, u))
			}

			f.at(3 * time.Hour)
			payout, err := f.proc.ResolveChallenge(f.ctx, id, "keeper")
			require.NoError(t, err)
			assert.Equal(t, tt.policy, payout.Policy)
			assert.Equal(t, tt.stranded, payout.Stranded)
			assert.Equal(t, payout.Pool, payout.Allocated())

			var refunds int
			var swept int64
			for _, e := range f.events(t) {
				switch e.Type {
				case ledger.EventChallengeStakeRefunded:
					refunds++
					assert.Equal(t, 2*usdc, e.Amount)
				case ledger.EventChallengePoolSwept:
					swept += e.Amount
					assert.Equal(t, treasury, e.Subject)
				}
			}
			assert.Equal(t, tt.refunds, refunds)
			assert.Equal(t, tt.swept, swept)

			// refunded stakes are not winnings
			_, err = f.proc.ClaimChallengeWinnings(f.ctx, id, "a")
			assert.ErrorIs(t, err, ledger.ErrInvalidTransition)
		})
	}
}

func TestProcessor_CreateChallengeValidation(t *testing.T) {
	f := newFixture(t, "")
	start, end := f.start.Add(time.Hour), f.start.Add(2*time.Hour)

	tests := []struct {
		name        string
		description string
		fee         int64
		start, end  time.Time
		goal        string
	}{
		{name: "no fee", description: "d", fee: 0, start: start, end: end, goal: "g"},
		{name: "no description", description: "", fee: 1, start: start, end: end, goal: "g"},
		{name: "no goal", description: "d", fee: 1, start: start, end: end, goal: " "},
		{name: "start in the past", description: "d", fee: 1, start: f.start, end: end, goal: "g"},
		{name: "start after deadline", description: "d", fee: 1, start: end, end: start, goal: "g"},
		{name: "start equals deadline", description: "d", fee: 1, start: start, end: start, goal: "g"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.proc.CreateChallenge(f.ctx, "host", tt.description, tt.fee, tt.start, tt.end, tt.goal)
			assert.ErrorIs(t, err, ledger.ErrInvalidInput)
		})
	}
}

func TestProcessor_RejectionLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t, "")
	goalID, err := f.proc.CreateGoal(f.ctx, "alice", usdc, f.start.Add(2*time.Hour), "Walk")
	require.NoError(t, err)
	chID, err := f.proc.CreateChallenge(f.ctx, "host", "Plank", usdc, f.start.Add(time.Hour), f.start.Add(2*time.Hour), "2 min")
	require.NoError(t, err)
	require.NoError(t, f.proc.JoinChallenge(f.ctx, chID, "alice"))

	snapshot := func() (ledger.Goal, ledger.Challenge, []ledger.Participant, []ledger.Event) {
		g, err := f.query.GetGoal(f.ctx, goalID)
		require.NoError(t, err)
		c, err := f.query.GetChallenge(f.ctx, chID)
		require.NoError(t, err)
		ps, err := f.query.GetChallengeParticipants(f.ctx, chID)
		require.NoError(t, err)
		return g, c, ps, f.events(t)
	}
	g0, c0, p0, e0 := snapshot()

	rejected := []func() error{
		func() error { return f.proc.MarkGoalComplete(f.ctx, goalID, "bob") },
		func() error { _, err := f.proc.ClaimGoal(f.ctx, goalID, "alice", ""); return err },
		func() error { _, err := f.proc.ForfeitGoal(f.ctx, goalID, "keeper"); return err },
		func() error { return f.proc.JoinChallenge(f.ctx, chID, "alice") },
		func() error { return f.proc.MarkChallengeComplete(f.ctx, chID, "alice") },
		func() error { _, err := f.proc.ResolveChallenge(f.ctx, chID, "keeper"); return err },
		func() error { return f.proc.ClearBeneficiary(f.ctx, "alice") },
	}
	for i, cmd := range rejected {
		err := cmd()
		require.Error(t, err, "command %d", i)
		assert.True(t, ledger.IsRejection(err), "command %d: %v", i, err)
	}

	g1, c1, p1, e1 := snapshot()
	assert.Equal(t, g0, g1)
	assert.Equal(t, c0, c1)
	assert.Equal(t, p0, p1)
	assert.Equal(t, e0, e1)
}

func TestProcessor_PublishesAfterCommit(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := mock.NewMockPublisher(ctrl)
	f := newFixture(t, "", ledger.WithPublisher(pub))

	pub.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, events []ledger.Event) error {
			require.Len(t, events, 1)
			assert.Equal(t, ledger.EventGoalCreated, events[0].Type)
			assert.Equal(t, uint64(1), events[0].Seq)
			assert.Equal(t, f.start, events[0].OccurredAt)
			return errors.New("discord unavailable")
		})

	// a failing publisher never undoes the command
	id, err := f.proc.CreateGoal(f.ctx, "alice", usdc, f.start.Add(48*time.Hour), "Journal")
	require.NoError(t, err)

	_, err = f.query.GetGoal(f.ctx, id)
	assert.NoError(t, err)

	// rejected commands publish nothing
	_, err = f.proc.CreateGoal(f.ctx, "alice", 0, f.start.Add(48*time.Hour), "Journal")
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestProcessor_ConcurrentJoins(t *testing.T) {
	f := newFixture(t, "")
	id, err := f.proc.CreateChallenge(f.ctx, "host", "Crowd", 1, f.start.Add(time.Hour), f.start.Add(2*time.Hour), "show up")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := ledger.Address(string(rune('A'+i%26)) + string(rune('a'+i/26)))
			assert.NoError(t, f.proc.JoinChallenge(f.ctx, id, user))
		}(i)
	}
	wg.Wait()

	c, err := f.query.GetChallenge(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 50, c.TotalParticipants)
	ps, err := f.query.GetChallengeParticipants(f.ctx, id)
	require.NoError(t, err)
	for i, p := range ps {
		assert.Equal(t, i, p.Seq)
	}
}
