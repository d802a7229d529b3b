package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
)

func TestQuery_UserGoalViews(t *testing.T) {
	f := newFixture(t, "")
	day := 24 * time.Hour

	late, err := f.proc.CreateGoal(f.ctx, "alice", 5*usdc, f.start.Add(10*day), "late")
	require.NoError(t, err)
	soon, err := f.proc.CreateGoal(f.ctx, "alice", 2*usdc, f.start.Add(2*day), "soon")
	require.NoError(t, err)
	done, err := f.proc.CreateGoal(f.ctx, "alice", 1*usdc, f.start.Add(3*day), "done")
	require.NoError(t, err)
	missed, err := f.proc.CreateGoal(f.ctx, "alice", 4*usdc, f.start.Add(2*time.Hour), "missed")
	require.NoError(t, err)
	_, err = f.proc.CreateGoal(f.ctx, "bob", 9*usdc, f.start.Add(2*day), "not alice")
	require.NoError(t, err)

	require.NoError(t, f.proc.MarkGoalComplete(f.ctx, done, "alice"))
	f.at(day)

	views, err := f.query.UserGoalViews(f.ctx, "alice")
	require.NoError(t, err)
	require.Len(t, views, 4)

	assert.Equal(t, soon, views[0].ID)
	assert.Equal(t, ledger.GoalStatusUpcoming, views[0].Status)
	assert.Equal(t, late, views[1].ID)
	assert.Equal(t, missed, views[2].ID)
	assert.Equal(t, ledger.GoalStatusMissed, views[2].Status)
	assert.Equal(t, done, views[3].ID)
	assert.Equal(t, ledger.GoalStatusClaimable, views[3].Status)

	total, err := f.query.TotalPledged(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 12*usdc, total)

	ids, err := f.query.GetUserGoals(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []uint64{late, soon, done, missed}, ids)
}

func TestQuery_OpenChallenges(t *testing.T) {
	f := newFixture(t, "")

	third, err := f.proc.CreateChallenge(f.ctx, "host", "third", 1, f.start.Add(3*time.Hour), f.start.Add(5*time.Hour), "g")
	require.NoError(t, err)
	first, err := f.proc.CreateChallenge(f.ctx, "host", "first", 1, f.start.Add(1*time.Hour), f.start.Add(5*time.Hour), "g")
	require.NoError(t, err)
	second, err := f.proc.CreateChallenge(f.ctx, "host", "second", 1, f.start.Add(2*time.Hour), f.start.Add(5*time.Hour), "g")
	require.NoError(t, err)
	require.NoError(t, f.proc.JoinChallenge(f.ctx, second, "alice"))

	open, err := f.query.OpenChallenges(f.ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, first, open[0].ID)
	assert.Equal(t, third, open[1].ID)

	open, err = f.query.OpenChallenges(f.ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, first, open[0].ID)
	assert.Equal(t, second, open[1].ID)

	f.at(90 * time.Minute)
	open, err = f.query.OpenChallenges(f.ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, second, open[0].ID)

	ids, err := f.query.GetUserChallenges(f.ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []uint64{second}, ids)
}

func TestQuery_Config(t *testing.T) {
	f := newFixture(t, "")

	cfg := f.query.Config()
	assert.Equal(t, treasury, cfg.Treasury)
	assert.Equal(t, time.Hour, cfg.MinDeadlineBuffer)
	assert.Equal(t, ledger.ZeroWinnerRefund, cfg.ZeroWinnerPolicy)
	assert.Equal(t, cfg, f.proc.Config())
}
