package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
	"github.com/goalpledge/pledgebot/internal/gateways/database/models"
)

const (
	serializationRetries = 3

	// journalLockKey guards ledger_events appends so seq order matches commit order.
	journalLockKey int64 = 0x706c6564676531
)

// LedgerStore is the Postgres implementation of ledger.Store.
// Updates run in serializable transactions and lock the rows they read.
type LedgerStore struct {
	db *bun.DB
}

var _ ledger.Store = (*LedgerStore)(nil)

func NewLedgerStore(db *bun.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) DB() *bun.DB {
	return s.db
}

func (s *LedgerStore) Update(ctx context.Context, fn func(tx ledger.Tx) error) error {
	var err error
	for attempt := 1; attempt <= serializationRetries; attempt++ {
		err = s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, func(ctx context.Context, tx bun.Tx) error {
			return fn(&ledgerTx{ctx: ctx, db: tx, forUpdate: true})
		})
		if !isSerializationFailure(err) {
			return err
		}
		slog.Warn("Retrying ledger transaction",
			slog.String("type", "db"),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}
	return fmt.Errorf("failed to commit ledger transaction: %w", err)
}

// View reads outside of a transaction; each lookup sees the latest committed row.
func (s *LedgerStore) View(ctx context.Context, fn func(tx ledger.ReadTx) error) error {
	return fn(&ledgerTx{ctx: ctx, db: s.db})
}

type ledgerTx struct {
	ctx       context.Context
	db        bun.IDB
	forUpdate bool

	journalLocked bool
}

func (t *ledgerTx) selectQuery(model interface{}) *bun.SelectQuery {
	q := t.db.NewSelect().Model(model)
	if t.forUpdate {
		q = q.For("UPDATE")
	}
	return q
}

func (t *ledgerTx) Goal(id uint64) (ledger.Goal, error) {
	row := new(models.Goal)
	err := t.selectQuery(row).Where("id = ?", int64(id)).Scan(t.ctx)
	if err != nil {
		return ledger.Goal{}, notFound(err, "goal %d", id)
	}
	return goalFromModel(row), nil
}

func (t *ledgerTx) UserGoals(user ledger.Address) ([]uint64, error) {
	var ids []int64
	err := t.db.NewSelect().
		Model((*models.Goal)(nil)).
		Column("id").
		Where("owner = ?", string(user)).
		Order("id ASC").
		Scan(t.ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals of %s: %w", user, err)
	}
	return toUint64s(ids), nil
}

func (t *ledgerTx) Goals(fromID uint64, limit int) ([]ledger.Goal, error) {
	var rows []*models.Goal
	q := t.db.NewSelect().Model(&rows).Where("id >= ?", int64(fromID)).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(t.ctx); err != nil {
		return nil, fmt.Errorf("failed to scan goals: %w", err)
	}
	out := make([]ledger.Goal, len(rows))
	for i, row := range rows {
		out[i] = goalFromModel(row)
	}
	return out, nil
}

func (t *ledgerTx) Challenge(id uint64) (ledger.Challenge, error) {
	row := new(models.Challenge)
	err := t.selectQuery(row).Where("id = ?", int64(id)).Scan(t.ctx)
	if err != nil {
		return ledger.Challenge{}, notFound(err, "challenge %d", id)
	}
	return challengeFromModel(row), nil
}

func (t *ledgerTx) UserChallenges(user ledger.Address) ([]uint64, error) {
	var ids []int64
	err := t.db.NewSelect().
		Model((*models.ChallengeParticipant)(nil)).
		Column("challenge_id").
		Where("user_id = ?", string(user)).
		Order("id ASC").
		Scan(t.ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges of %s: %w", user, err)
	}
	return toUint64s(ids), nil
}

func (t *ledgerTx) Challenges(fromID uint64, limit int) ([]ledger.Challenge, error) {
	var rows []*models.Challenge
	q := t.db.NewSelect().Model(&rows).Where("id >= ?", int64(fromID)).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(t.ctx); err != nil {
		return nil, fmt.Errorf("failed to scan challenges: %w", err)
	}
	out := make([]ledger.Challenge, len(rows))
	for i, row := range rows {
		out[i] = challengeFromModel(row)
	}
	return out, nil
}

func (t *ledgerTx) Participants(challengeID uint64) ([]ledger.Participant, error) {
	if _, err := t.Challenge(challengeID); err != nil {
		return nil, err
	}
	var rows []*models.ChallengeParticipant
	err := t.selectQuery(&rows).
		Where("challenge_id = ?", int64(challengeID)).
		Order("seq ASC").
		Scan(t.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants of challenge %d: %w", challengeID, err)
	}
	out := make([]ledger.Participant, len(rows))
	for i, row := range rows {
		out[i] = participantFromModel(row)
	}
	return out, nil
}

func (t *ledgerTx) Participant(challengeID uint64, user ledger.Address) (ledger.Participant, error) {
	row := new(models.ChallengeParticipant)
	err := t.selectQuery(row).
		Where("challenge_id = ?", int64(challengeID)).
		Where("user_id = ?", string(user)).
		Scan(t.ctx)
	if err != nil {
		return ledger.Participant{}, notFound(err, "participant %s in challenge %d", user, challengeID)
	}
	return participantFromModel(row), nil
}

func (t *ledgerTx) Beneficiary(user ledger.Address) (ledger.Address, bool, error) {
	row := new(models.Beneficiary)
	err := t.selectQuery(row).Where("user_id = ?", string(user)).Scan(t.ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get beneficiary of %s: %w", user, err)
	}
	return ledger.Address(row.Beneficiary), true, nil
}

func (t *ledgerTx) Events(afterSeq uint64, limit int) ([]ledger.Event, error) {
	var rows []*models.LedgerEvent
	q := t.db.NewSelect().Model(&rows).Where("seq > ?", int64(afterSeq)).Order("seq ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(t.ctx); err != nil {
		return nil, fmt.Errorf("failed to read ledger events: %w", err)
	}
	out := make([]ledger.Event, len(rows))
	for i, row := range rows {
		out[i] = eventFromModel(row)
	}
	return out, nil
}

func (t *ledgerTx) InsertGoal(g ledger.Goal) (uint64, error) {
	row := goalToModel(g)
	_, err := t.db.NewInsert().Model(row).Returning("id").Exec(t.ctx)
	if err != nil {
		return 0, alreadyExists(err, "goal %d", g.ID)
	}
	return uint64(row.ID), nil
}

func (t *ledgerTx) UpdateGoal(g ledger.Goal) error {
	res, err := t.db.NewUpdate().Model(goalToModel(g)).WherePK().Exec(t.ctx)
	return affectedOne(res, err, "goal %d", g.ID)
}

func (t *ledgerTx) InsertChallenge(c ledger.Challenge) (uint64, error) {
	row := challengeToModel(c)
	_, err := t.db.NewInsert().Model(row).Returning("id").Exec(t.ctx)
	if err != nil {
		return 0, alreadyExists(err, "challenge %d", c.ID)
	}
	return uint64(row.ID), nil
}

func (t *ledgerTx) UpdateChallenge(c ledger.Challenge) error {
	res, err := t.db.NewUpdate().Model(challengeToModel(c)).WherePK().Exec(t.ctx)
	return affectedOne(res, err, "challenge %d", c.ID)
}

func (t *ledgerTx) InsertParticipant(p ledger.Participant) error {
	c, err := t.Challenge(p.ChallengeID)
	if err != nil {
		return err
	}
	// the challenge row is locked, so the count cannot move under us
	count, err := t.db.NewSelect().
		Model((*models.ChallengeParticipant)(nil)).
		Where("challenge_id = ?", int64(c.ID)).
		Count(t.ctx)
	if err != nil {
		return fmt.Errorf("failed to count participants: %w", err)
	}
	p.Seq = count

	_, err = t.db.NewInsert().Model(participantToModel(p)).Exec(t.ctx)
	if err != nil {
		return alreadyExists(err, "participant %s in challenge %d", p.User, p.ChallengeID)
	}
	return nil
}

func (t *ledgerTx) UpdateParticipant(p ledger.Participant) error {
	res, err := t.db.NewUpdate().
		Model((*models.ChallengeParticipant)(nil)).
		Set("completed = ?", p.Completed).
		Set("claimed = ?", p.Claimed).
		Set("payout = ?", p.Payout).
		Where("challenge_id = ?", int64(p.ChallengeID)).
		Where("user_id = ?", string(p.User)).
		Exec(t.ctx)
	return affectedOne(res, err, "participant %s in challenge %d", p.User, p.ChallengeID)
}

func (t *ledgerTx) SetBeneficiary(user, beneficiary ledger.Address) error {
	_, err := t.db.NewInsert().
		Model(&models.Beneficiary{UserID: string(user), Beneficiary: string(beneficiary)}).
		On("CONFLICT (user_id) DO UPDATE").
		Set("beneficiary = EXCLUDED.beneficiary").
		Set("updated_at = current_timestamp").
		Exec(t.ctx)
	if err != nil {
		return fmt.Errorf("failed to set beneficiary of %s: %w", user, err)
	}
	return nil
}

func (t *ledgerTx) ClearBeneficiary(user ledger.Address) error {
	_, err := t.db.NewDelete().
		Model((*models.Beneficiary)(nil)).
		Where("user_id = ?", string(user)).
		Exec(t.ctx)
	if err != nil {
		return fmt.Errorf("failed to clear beneficiary of %s: %w", user, err)
	}
	return nil
}

// lockJournal takes a transaction-scoped advisory lock before the first append. Without it a
// later seq can commit first and a reader paging by seq skips the earlier one for good.
func (t *ledgerTx) lockJournal() error {
	if t.journalLocked {
		return nil
	}
	if _, err := t.db.ExecContext(t.ctx, "SELECT pg_advisory_xact_lock(?)", journalLockKey); err != nil {
		return fmt.Errorf("failed to lock event journal: %w", err)
	}
	t.journalLocked = true
	return nil
}

func (t *ledgerTx) AppendEvent(e ledger.Event) (uint64, error) {
	if err := t.lockJournal(); err != nil {
		return 0, err
	}
	row := eventToModel(e)
	_, err := t.db.NewInsert().Model(row).Returning("seq").Exec(t.ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to append %s event: %w", e.Type, err)
	}
	return uint64(row.Seq), nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("failed to load %s: %w", fmt.Sprintf(format, args...), err)
}

func alreadyExists(err error, format string, args ...any) error {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == "23505" {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyExists, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("failed to insert %s: %w", fmt.Sprintf(format, args...), err)
}

func affectedOne(res sql.Result, err error, format string, args ...any) error {
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", fmt.Sprintf(format, args...), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, fmt.Sprintf(format, args...))
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "40001"
}

func toUint64s(ids []int64) []uint64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}
