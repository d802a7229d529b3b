package ledger

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func participantsOf(fee int64, completed ...bool) (Challenge, []Participant) {
	c := Challenge{ID: 1, EntryFee: fee, TotalParticipants: len(completed)}
	ps := make([]Participant, len(completed))
	for i, done := range completed {
		ps[i] = Participant{
			ChallengeID: 1,
			User:        Address(fmt.Sprintf("user-%d", i)),
			Seq:         i,
			Stake:       fee,
			Completed:   done,
		}
	}
	return c, ps
}

func TestComputePayout(t *testing.T) {
	t.Run("two of four winners split the pool", func(t *testing.T) {
		c, ps := participantsOf(5_000000, true, false, true, false)

		got := ComputePayout(c, ps, ZeroWinnerRefund)

		assert.Equal(t, int64(20_000000), got.Pool)
		assert.Equal(t, 2, got.Winners)
		assert.False(t, got.Refund)
		assert.Equal(t, []Share{{User: "user-0", Amount: 10_000000}, {User: "user-2", Amount: 10_000000}}, got.Shares)
		assert.Equal(t, got.Pool, got.Allocated())
	})

	t.Run("single winner takes everything", func(t *testing.T) {
		c, ps := participantsOf(3, false, true, false)

		got := ComputePayout(c, ps, ZeroWinnerRefund)

		assert.Equal(t, []Share{{User: "user-1", Amount: 9}}, got.Shares)
		assert.Equal(t, int64(9), got.WinnerTotal())
	})

	t.Run("remainder goes to earliest winners", func(t *testing.T) {
		c, ps := participantsOf(10, true, true, true, false, false, false, false)

		got := ComputePayout(c, ps, ZeroWinnerRefund)

		// 70 / 3 = 23 rest 1
		assert.Equal(t, []Share{
			{User: "user-0", Amount: 24},
			{User: "user-1", Amount: 23},
			{User: "user-2", Amount: 23},
		}, got.Shares)
		assert.Equal(t, int64(70), got.Allocated())
	})

	t.Run("join order wins over slice order", func(t *testing.T) {
		c, ps := participantsOf(1, true, true, false, false, false)
		ps[0], ps[1] = ps[1], ps[0]

		got := ComputePayout(c, ps, ZeroWinnerRefund)

		require.Len(t, got.Shares, 2)
		assert.Equal(t, Share{User: "user-0", Amount: 3}, got.Shares[0])
		assert.Equal(t, Share{User: "user-1", Amount: 2}, got.Shares[1])
	})
}

func TestComputePayout_ZeroWinners(t *testing.T) {
	c, ps := participantsOf(5, false, false, false)

	tests := []struct {
		name     string
		policy   ZeroWinnerPolicy
		refund   bool
		shares   int
		treasury int64
		stranded int64
	}{
		{name: "refund", policy: ZeroWinnerRefund, refund: true, shares: 3},
		{name: "default is refund", policy: "", refund: true, shares: 3},
		{name: "treasury", policy: ZeroWinnerTreasury, treasury: 15},
		{name: "strand", policy: ZeroWinnerStrand, stranded: 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputePayout(c, ps, tt.policy)

			assert.Equal(t, 0, got.Winners)
			assert.Equal(t, tt.refund, got.Refund)
			assert.Len(t, got.Shares, tt.shares)
			assert.Equal(t, tt.treasury, got.Treasury)
			assert.Equal(t, tt.stranded, got.Stranded)
			assert.Equal(t, int64(15), got.Allocated())
			assert.Zero(t, got.WinnerTotal())
		})
	}

	t.Run("no participants", func(t *testing.T) {
		got := ComputePayout(Challenge{EntryFee: 5}, nil, ZeroWinnerRefund)
		assert.Zero(t, got.Pool)
		assert.Zero(t, got.Allocated())
	})
}

func TestParseZeroWinnerPolicy(t *testing.T) {
	for in, want := range map[string]ZeroWinnerPolicy{
		"":          ZeroWinnerRefund,
		"refund":    ZeroWinnerRefund,
		" Treasury": ZeroWinnerTreasury,
		"STRAND":    ZeroWinnerStrand,
	} {
		got, err := ParseZeroWinnerPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseZeroWinnerPolicy("burn")
	assert.Error(t, err)
}

func TestComputePayout_Conservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	policies := []ZeroWinnerPolicy{ZeroWinnerRefund, ZeroWinnerTreasury, ZeroWinnerStrand}

	properties.Property("allocations always sum to the pool", prop.ForAll(
		func(fee int64, n int, mask uint64, policy int) bool {
			completed := make([]bool, n)
			for i := range completed {
				completed[i] = mask&(1<<uint(i)) != 0
			}
			c, ps := participantsOf(fee, completed...)
			return ComputePayout(c, ps, policies[policy]).Allocated() == c.Pool()
		},
		gen.Int64Range(1, 1_000_000_000_000),
		gen.IntRange(0, 64),
		gen.UInt64(),
		gen.IntRange(0, len(policies)-1),
	))

	properties.Property("winner shares differ by at most one unit and never increase in join order", prop.ForAll(
		func(fee int64, n int, mask uint64) bool {
			completed := make([]bool, n)
			for i := range completed {
				completed[i] = mask&(1<<uint(i)) != 0
			}
			c, ps := participantsOf(fee, completed...)
			out := ComputePayout(c, ps, ZeroWinnerStrand)
			for i := 1; i < len(out.Shares); i++ {
				d := out.Shares[i-1].Amount - out.Shares[i].Amount
				if d < 0 || d > 1 {
					return false
				}
			}
			return true
		},
		gen.Int64Range(1, 1_000_000),
		gen.IntRange(1, 64),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
