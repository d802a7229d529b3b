package repositories

import (
	"github.com/goalpledge/pledgebot/internal/domain/ledger"
	"github.com/goalpledge/pledgebot/internal/gateways/database/models"
)

func goalFromModel(m *models.Goal) ledger.Goal {
	return ledger.Goal{
		ID:          uint64(m.ID),
		Owner:       ledger.Address(m.Owner),
		Amount:      m.Amount,
		Deadline:    m.Deadline,
		Description: m.Description,
		Completed:   m.Completed,
		Claimed:     m.Claimed,
		Forfeited:   m.Forfeited,
		CreatedAt:   m.CreatedAt,
	}
}

func goalToModel(g ledger.Goal) *models.Goal {
	return &models.Goal{
		ID:          int64(g.ID),
		Owner:       string(g.Owner),
		Amount:      g.Amount,
		Deadline:    g.Deadline,
		Description: g.Description,
		Completed:   g.Completed,
		Claimed:     g.Claimed,
		Forfeited:   g.Forfeited,
		CreatedAt:   g.CreatedAt,
	}
}

func challengeFromModel(m *models.Challenge) ledger.Challenge {
	return ledger.Challenge{
		ID:                uint64(m.ID),
		Creator:           ledger.Address(m.Creator),
		Description:       m.Description,
		Goal:              m.Goal,
		EntryFee:          m.EntryFee,
		StartTime:         m.StartTime,
		Deadline:          m.Deadline,
		TotalParticipants: m.TotalParticipants,
		Winners:           m.Winners,
		Resolved:          m.Resolved,
		CreatedAt:         m.CreatedAt,
	}
}

func challengeToModel(c ledger.Challenge) *models.Challenge {
	return &models.Challenge{
		ID:                int64(c.ID),
		Creator:           string(c.Creator),
		Description:       c.Description,
		Goal:              c.Goal,
		EntryFee:          c.EntryFee,
		StartTime:         c.StartTime,
		Deadline:          c.Deadline,
		TotalParticipants: c.TotalParticipants,
		Winners:           c.Winners,
		Resolved:          c.Resolved,
		CreatedAt:         c.CreatedAt,
	}
}

func participantFromModel(m *models.ChallengeParticipant) ledger.Participant {
	return ledger.Participant{
		ChallengeID: uint64(m.ChallengeID),
		User:        ledger.Address(m.UserID),
		Seq:         m.Seq,
		Stake:       m.Stake,
		Completed:   m.Completed,
		Claimed:     m.Claimed,
		Payout:      m.Payout,
		JoinedAt:    m.JoinedAt,
	}
}

func participantToModel(p ledger.Participant) *models.ChallengeParticipant {
	return &models.ChallengeParticipant{
		ChallengeID: int64(p.ChallengeID),
		UserID:      string(p.User),
		Seq:         p.Seq,
		Stake:       p.Stake,
		Completed:   p.Completed,
		Claimed:     p.Claimed,
		Payout:      p.Payout,
		JoinedAt:    p.JoinedAt,
	}
}

func eventFromModel(m *models.LedgerEvent) ledger.Event {
	return ledger.Event{
		Seq:         uint64(m.Seq),
		Type:        ledger.EventType(m.Type),
		GoalID:      uint64(m.GoalID),
		ChallengeID: uint64(m.ChallengeID),
		Actor:       ledger.Address(m.Actor),
		Subject:     ledger.Address(m.Subject),
		Amount:      m.Amount,
		Winners:     m.Winners,
		Deadline:    m.Deadline,
		StartTime:   m.StartTime,
		Description: m.Description,
		OccurredAt:  m.OccurredAt,
	}
}

func eventToModel(e ledger.Event) *models.LedgerEvent {
	return &models.LedgerEvent{
		Type:        string(e.Type),
		GoalID:      int64(e.GoalID),
		ChallengeID: int64(e.ChallengeID),
		Actor:       string(e.Actor),
		Subject:     string(e.Subject),
		Amount:      e.Amount,
		Winners:     e.Winners,
		Deadline:    e.Deadline,
		StartTime:   e.StartTime,
		Description: e.Description,
		OccurredAt:  e.OccurredAt,
	}
}
