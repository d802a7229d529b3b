package ledger

import (
	"fmt"
	"sort"
	"strings"
)

// ZeroWinnerPolicy decides where a challenge pool goes when nobody completed the goal.
type ZeroWinnerPolicy string

const (
	// ZeroWinnerRefund returns every participant's stake at resolution. This is the default.
	ZeroWinnerRefund ZeroWinnerPolicy = "refund"
	// ZeroWinnerTreasury sweeps the pool to the treasury.
	ZeroWinnerTreasury ZeroWinnerPolicy = "treasury"
	// ZeroWinnerStrand leaves the pool in escrow.
	ZeroWinnerStrand ZeroWinnerPolicy = "strand"
)

const DefaultZeroWinnerPolicy = ZeroWinnerRefund

// ParseZeroWinnerPolicy accepts the policy names case-insensitively; empty means the default.
func ParseZeroWinnerPolicy(s string) (ZeroWinnerPolicy, error) {
	switch p := ZeroWinnerPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DefaultZeroWinnerPolicy, nil
	case ZeroWinnerRefund, ZeroWinnerTreasury, ZeroWinnerStrand:
		return p, nil
	default:
		return "", fmt.Errorf("unknown zero-winner policy %q", s)
	}
}

// Share is one user's allocation of a challenge pool.
type Share struct {
	User   Address `json:"user"`
	Amount int64   `json:"amount"`
}

// Payout is the allocation of a resolved challenge pool.
// Shares are in join order. Refund is set when Shares are stake refunds rather than winnings.
type Payout struct {
	Pool     int64            `json:"pool"`
	Winners  int              `json:"winners"`
	Shares   []Share          `json:"shares"`
	Refund   bool             `json:"refund"`
	Treasury int64            `json:"treasury"`
	Stranded int64            `json:"stranded"`
	Policy   ZeroWinnerPolicy `json:"policy,omitempty"`
}

// Allocated sums everything the payout assigns; it always equals Pool.
func (p Payout) Allocated() int64 {
	total := p.Treasury + p.Stranded
	for _, s := range p.Shares {
		total += s.Amount
	}
	return total
}

// WinnerTotal sums the amounts owed to winners (zero for refunds).
func (p Payout) WinnerTotal() int64 {
	if p.Refund {
		return 0
	}
	var total int64
	for _, s := range p.Shares {
		total += s.Amount
	}
	return total
}

// ShareOf returns the amount allocated to user.
func (p Payout) ShareOf(user Address) int64 {
	for _, s := range p.Shares {
		if s.User == user {
			return s.Amount
		}
	}
	return 0
}

// ComputePayout splits the pool among completed participants.
// The integer remainder goes one unit each to the earliest winners by join order.
func ComputePayout(c Challenge, participants []Participant, policy ZeroWinnerPolicy) Payout {
	ordered := make([]Participant, len(participants))
	copy(ordered, participants)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	var winners []Participant
	for _, p := range ordered {
		if p.Completed {
			winners = append(winners, p)
		}
	}

	pool := c.Pool()
	out := Payout{Pool: pool, Winners: len(winners)}

	if len(winners) == 0 {
		if policy == "" {
			policy = DefaultZeroWinnerPolicy
		}
		out.Policy = policy
		switch policy {
		case ZeroWinnerRefund:
			out.Refund = true
			var refunded int64
			for _, p := range ordered {
				out.Shares = append(out.Shares, Share{User: p.User, Amount: p.Stake})
				refunded += p.Stake
			}
			// stakes always equal the entry fee, but never let a mismatch leak units
			if rest := pool - refunded; rest != 0 {
				out.Stranded = rest
			}
		case ZeroWinnerTreasury:
			out.Treasury = pool
		default:
			out.Stranded = pool
		}
		return out
	}

	n := int64(len(winners))
	base, rem := pool/n, pool%n
	for i, w := range winners {
		amount := base
		if int64(i) < rem {
			amount++
		}
		out.Shares = append(out.Shares, Share{User: w.User, Amount: amount})
	}
	return out
}
