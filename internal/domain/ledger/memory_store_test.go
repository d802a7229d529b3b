package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_InsertMaintainsIndexes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Update(ctx, func(tx Tx) error {
		for i := 0; i < 3; i++ {
			id, err := tx.InsertGoal(Goal{Owner: "alice", Amount: 1, Deadline: t0})
			require.NoError(t, err)
			assert.Equal(t, uint64(i+1), id)
		}
		_, err := tx.InsertGoal(Goal{Owner: "bob", Amount: 1, Deadline: t0})
		return err
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx ReadTx) error {
		ids, err := tx.UserGoals("alice")
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2, 3}, ids)

		ids, err = tx.UserGoals("bob")
		require.NoError(t, err)
		assert.Equal(t, []uint64{4}, ids)

		goals, err := tx.Goals(2, 2)
		require.NoError(t, err)
		require.Len(t, goals, 2)
		assert.Equal(t, uint64(2), goals[0].ID)
		assert.Equal(t, uint64(3), goals[1].ID)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_FailedUpdateIsDiscarded(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx Tx) error {
		if _, err := tx.InsertGoal(Goal{Owner: "alice", Amount: 1}); err != nil {
			return err
		}
		id, err := tx.InsertChallenge(Challenge{Creator: "host", EntryFee: 1})
		if err != nil {
			return err
		}
		if err := tx.InsertParticipant(Participant{ChallengeID: id, User: "alice"}); err != nil {
			return err
		}
		if err := tx.SetBeneficiary("alice", "mom"); err != nil {
			return err
		}
		if _, err := tx.AppendEvent(Event{Type: EventGoalCreated}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.View(ctx, func(tx ReadTx) error {
		_, err := tx.Goal(1)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = tx.Challenge(1)
		assert.ErrorIs(t, err, ErrNotFound)
		ids, _ := tx.UserGoals("alice")
		assert.Empty(t, ids)
		ids, _ = tx.UserChallenges("alice")
		assert.Empty(t, ids)
		_, ok, _ := tx.Beneficiary("alice")
		assert.False(t, ok)
		events, _ := tx.Events(0, 0)
		assert.Empty(t, events)
		return nil
	})
	require.NoError(t, err)

	// ids are not consumed by a discarded transaction
	err = s.Update(ctx, func(tx Tx) error {
		id, err := tx.InsertGoal(Goal{Owner: "alice", Amount: 1})
		assert.Equal(t, uint64(1), id)
		return err
	})
	require.NoError(t, err)
}

func TestMemoryStore_Duplicates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		_, err := tx.InsertGoal(Goal{ID: 5, Owner: "alice"})
		return err
	}))

	err := s.Update(ctx, func(tx Tx) error {
		_, err := tx.InsertGoal(Goal{ID: 5, Owner: "bob"})
		return err
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	err = s.Update(ctx, func(tx Tx) error {
		id, err := tx.InsertGoal(Goal{Owner: "bob"})
		assert.Equal(t, uint64(6), id)
		return err
	})
	require.NoError(t, err)

	err = s.Update(ctx, func(tx Tx) error {
		id, err := tx.InsertChallenge(Challenge{Creator: "host"})
		if err != nil {
			return err
		}
		if err := tx.InsertParticipant(Participant{ChallengeID: id, User: "alice"}); err != nil {
			return err
		}
		return tx.InsertParticipant(Participant{ChallengeID: id, User: "alice"})
	})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryStore_UpdatesRequireExistingRecords(t *testing.T) {
	s := NewMemoryStore()

	err := s.Update(context.Background(), func(tx Tx) error {
		assert.ErrorIs(t, tx.UpdateGoal(Goal{ID: 9}), ErrNotFound)
		assert.ErrorIs(t, tx.UpdateChallenge(Challenge{ID: 9}), ErrNotFound)
		assert.ErrorIs(t, tx.UpdateParticipant(Participant{ChallengeID: 9, User: "x"}), ErrNotFound)
		assert.ErrorIs(t, tx.InsertParticipant(Participant{ChallengeID: 9, User: "x"}), ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_ReadsAreCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		id, err := tx.InsertChallenge(Challenge{Creator: "host", StartTime: t0, Deadline: t0.Add(time.Hour)})
		if err != nil {
			return err
		}
		return tx.InsertParticipant(Participant{ChallengeID: id, User: "alice", Stake: 3})
	}))

	require.NoError(t, s.View(ctx, func(tx ReadTx) error {
		ps, err := tx.Participants(1)
		require.NoError(t, err)
		ps[0].Stake = 1000
		ids, _ := tx.UserChallenges("alice")
		ids[0] = 99
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx ReadTx) error {
		p, err := tx.Participant(1, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(3), p.Stake)
		ids, _ := tx.UserChallenges("alice")
		assert.Equal(t, []uint64{1}, ids)
		return nil
	}))
}

func TestMemoryStore_ViewIsReadOnly(t *testing.T) {
	s := NewMemoryStore()

	err := s.View(context.Background(), func(tx ReadTx) error {
		_, err := tx.(Tx).InsertGoal(Goal{Owner: "alice"})
		return err
	})
	assert.ErrorIs(t, err, errReadOnly)
}

func TestMemoryStore_EventsPaging(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Update(ctx, func(tx Tx) error {
			_, err := tx.AppendEvent(Event{Type: EventGoalCreated, GoalID: uint64(i + 1)})
			return err
		}))
	}

	require.NoError(t, s.View(ctx, func(tx ReadTx) error {
		events, err := tx.Events(2, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, uint64(3), events[0].Seq)
		assert.Equal(t, uint64(4), events[1].Seq)
		return nil
	}))
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewMemoryStore().Update(ctx, func(tx Tx) error {
		t.Fatal("callback must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
