package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
)

func newMockStore(t *testing.T) (*LedgerStore, sqlmock.Sqlmock) {
	t.Helper()
	sqldb, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })
	return NewLedgerStore(db), mock
}

func TestLedgerStore_GoalNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM "goals"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := store.View(context.Background(), func(tx ledger.ReadTx) error {
		_, err := tx.Goal(7)
		return err
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_GoalFound(t *testing.T) {
	store, mock := newMockStore(t)
	deadline := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM "goals"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner", "amount", "deadline", "description", "completed", "claimed", "forfeited", "created_at"}).
			AddRow(7, "alice", 10_000000, deadline, "Run", true, false, false, deadline.Add(-time.Hour)))

	var got ledger.Goal
	err := store.View(context.Background(), func(tx ledger.ReadTx) error {
		var err error
		got, err = tx.Goal(7)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.ID)
	assert.Equal(t, ledger.Address("alice"), got.Owner)
	assert.Equal(t, int64(10_000000), got.Amount)
	assert.True(t, got.Completed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_UpdateCommits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "goals"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "ledger_events"`).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(40))
	mock.ExpectCommit()

	var id, seq uint64
	err := store.Update(context.Background(), func(tx ledger.Tx) error {
		var err error
		id, err = tx.InsertGoal(ledger.Goal{Owner: "alice", Amount: 1, Deadline: time.Now().Add(time.Hour), Description: "x", CreatedAt: time.Now()})
		if err != nil {
			return err
		}
		seq, err = tx.AppendEvent(ledger.Event{Type: ledger.EventGoalCreated, GoalID: id, OccurredAt: time.Now()})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(12), id)
	assert.Equal(t, uint64(40), seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_AppendEventLocksJournalOnce(t *testing.T) {
	store, mock := newMockStore(t)
	mock.MatchExpectationsInOrder(true)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "ledger_events"`).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(5))
	mock.ExpectQuery(`INSERT INTO "ledger_events"`).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(6))
	mock.ExpectCommit()

	var seqs []uint64
	err := store.Update(context.Background(), func(tx ledger.Tx) error {
		for _, typ := range []ledger.EventType{ledger.EventGoalCompleted, ledger.EventStakeClaimed} {
			seq, err := tx.AppendEvent(ledger.Event{Type: typ, GoalID: 3, OccurredAt: time.Now()})
			if err != nil {
				return err
			}
			seqs = append(seqs, seq)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{5, 6}, seqs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_AppendEventLockFailure(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("lock timeout")

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(`).WillReturnError(boom)
	mock.ExpectRollback()

	err := store.Update(context.Background(), func(tx ledger.Tx) error {
		_, err := tx.AppendEvent(ledger.Event{Type: ledger.EventGoalCompleted, GoalID: 3, OccurredAt: time.Now()})
		return err
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_UpdateRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	boom := errors.New("rejected")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.Update(context.Background(), func(tx ledger.Tx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_UpdateMissingGoal(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "goals"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Update(context.Background(), func(tx ledger.Tx) error {
		return tx.UpdateGoal(ledger.Goal{ID: 99, Owner: "alice"})
	})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_BeneficiaryUnset(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM "beneficiaries"`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "beneficiary"}))

	err := store.View(context.Background(), func(tx ledger.ReadTx) error {
		b, ok, err := tx.Beneficiary("alice")
		assert.False(t, ok)
		assert.True(t, b.IsZero())
		return err
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_UserGoals(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .*id.* FROM "goals"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3).AddRow(8))

	var ids []uint64
	err := store.View(context.Background(), func(tx ledger.ReadTx) error {
		var err error
		ids, err = tx.UserGoals("alice")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 8}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
