package utils

import (
	"github.com/goalpledge/pledgebot/internal/domain/ledger"
)

const (
	ItemsPerPage = 6

	ErrorColor     = 0xFF0000
	SuccessColor   = 0x00FF00
	InfoColor      = 0x0099FF
	WarningColor   = 0xFFAA00
	EmbedDarkColor = 0x2B2D31
)

var goalStatusLabels = map[ledger.GoalStatus]string{
	ledger.GoalStatusUpcoming:  "⏳ Upcoming",
	ledger.GoalStatusClaimable: "🎯 Claimable",
	ledger.GoalStatusCompleted: "✅ Completed",
	ledger.GoalStatusMissed:    "⌛ Missed",
	ledger.GoalStatusForfeited: "💸 Forfeited",
}

var goalStatusColors = map[ledger.GoalStatus]int{
	ledger.GoalStatusUpcoming:  InfoColor,
	ledger.GoalStatusClaimable: SuccessColor,
	ledger.GoalStatusCompleted: SuccessColor,
	ledger.GoalStatusMissed:    WarningColor,
	ledger.GoalStatusForfeited: ErrorColor,
}

var phaseLabels = map[ledger.ChallengePhase]string{
	ledger.ChallengePhaseOpen:     "🟢 Open",
	ledger.ChallengePhaseActive:   "🏁 Active",
	ledger.ChallengePhaseEnded:    "⏱️ Awaiting resolution",
	ledger.ChallengePhaseResolved: "🏆 Resolved",
}

func GoalStatusLabel(s ledger.GoalStatus) string {
	if l, ok := goalStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

func GoalStatusColor(s ledger.GoalStatus) int {
	if c, ok := goalStatusColors[s]; ok {
		return c
	}
	return EmbedDarkColor
}

func ChallengePhaseLabel(p ledger.ChallengePhase) string {
	if l, ok := phaseLabels[p]; ok {
		return l
	}
	return string(p)
}

// Mention renders a ledger address as a Discord mention when it is a user snowflake.
func Mention(a ledger.Address) string {
	s := string(a)
	if s == "" {
		return "nobody"
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return "`" + s + "`"
		}
	}
	return "<@" + s + ">"
}
