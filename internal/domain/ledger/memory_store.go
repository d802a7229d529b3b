package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var errReadOnly = errors.New("ledger: write in read-only transaction")

type memState struct {
	goals           map[uint64]Goal
	userGoals       map[Address][]uint64
	challenges      map[uint64]Challenge
	participants    map[uint64][]Participant
	userChallenges  map[Address][]uint64
	beneficiaries   map[Address]Address
	events          []Event
	nextGoalID      uint64
	nextChallengeID uint64
}

// MemoryStore implements Store in memory.
// All updates go through one lock, which makes it a single global sequencer.
// Writes are staged per transaction and only merged when the callback succeeds.
type MemoryStore struct {
	mu    sync.RWMutex
	state memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memState{
			goals:           make(map[uint64]Goal),
			userGoals:       make(map[Address][]uint64),
			challenges:      make(map[uint64]Challenge),
			participants:    make(map[uint64][]Participant),
			userChallenges:  make(map[Address][]uint64),
			beneficiaries:   make(map[Address]Address),
			nextGoalID:      1,
			nextChallengeID: 1,
		},
	}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newMemTx(&s.state, false)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx ReadTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newMemTx(&s.state, true))
}

type memTx struct {
	base     *memState
	readOnly bool

	goals           map[uint64]Goal
	userGoals       map[Address][]uint64
	challenges      map[uint64]Challenge
	participants    map[uint64][]Participant
	userChallenges  map[Address][]uint64
	beneficiaries   map[Address]Address
	cleared         map[Address]bool
	events          []Event
	nextGoalID      uint64
	nextChallengeID uint64
}

func newMemTx(base *memState, readOnly bool) *memTx {
	return &memTx{
		base:            base,
		readOnly:        readOnly,
		goals:           make(map[uint64]Goal),
		userGoals:       make(map[Address][]uint64),
		challenges:      make(map[uint64]Challenge),
		participants:    make(map[uint64][]Participant),
		userChallenges:  make(map[Address][]uint64),
		beneficiaries:   make(map[Address]Address),
		cleared:         make(map[Address]bool),
		nextGoalID:      base.nextGoalID,
		nextChallengeID: base.nextChallengeID,
	}
}

func (t *memTx) commit() {
	b := t.base
	for id, g := range t.goals {
		b.goals[id] = g
	}
	for user, ids := range t.userGoals {
		b.userGoals[user] = ids
	}
	for id, c := range t.challenges {
		b.challenges[id] = c
	}
	for id, ps := range t.participants {
		b.participants[id] = ps
	}
	for user, ids := range t.userChallenges {
		b.userChallenges[user] = ids
	}
	for user := range t.cleared {
		delete(b.beneficiaries, user)
	}
	for user, ben := range t.beneficiaries {
		b.beneficiaries[user] = ben
	}
	b.events = append(b.events, t.events...)
	b.nextGoalID = t.nextGoalID
	b.nextChallengeID = t.nextChallengeID
}

func (t *memTx) Goal(id uint64) (Goal, error) {
	if g, ok := t.goals[id]; ok {
		return g, nil
	}
	if g, ok := t.base.goals[id]; ok {
		return g, nil
	}
	return Goal{}, reject(ErrNotFound, "goal %d", id)
}

func (t *memTx) UserGoals(user Address) ([]uint64, error) {
	return copyIDs(t.userGoalIDs(user)), nil
}

func (t *memTx) userGoalIDs(user Address) []uint64 {
	if ids, ok := t.userGoals[user]; ok {
		return ids
	}
	return t.base.userGoals[user]
}

func (t *memTx) Goals(fromID uint64, limit int) ([]Goal, error) {
	ids := mergedKeys(t.base.goals, t.goals, fromID)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]Goal, 0, len(ids))
	for _, id := range ids {
		g, _ := t.Goal(id)
		out = append(out, g)
	}
	return out, nil
}

func (t *memTx) Challenge(id uint64) (Challenge, error) {
	if c, ok := t.challenges[id]; ok {
		return c, nil
	}
	if c, ok := t.base.challenges[id]; ok {
		return c, nil
	}
	return Challenge{}, reject(ErrNotFound, "challenge %d", id)
}

func (t *memTx) UserChallenges(user Address) ([]uint64, error) {
	return copyIDs(t.userChallengeIDs(user)), nil
}

func (t *memTx) userChallengeIDs(user Address) []uint64 {
	if ids, ok := t.userChallenges[user]; ok {
		return ids
	}
	return t.base.userChallenges[user]
}

func (t *memTx) Challenges(fromID uint64, limit int) ([]Challenge, error) {
	ids := mergedKeys(t.base.challenges, t.challenges, fromID)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]Challenge, 0, len(ids))
	for _, id := range ids {
		c, _ := t.Challenge(id)
		out = append(out, c)
	}
	return out, nil
}

func (t *memTx) participantList(challengeID uint64) []Participant {
	if ps, ok := t.participants[challengeID]; ok {
		return ps
	}
	return t.base.participants[challengeID]
}

func (t *memTx) Participants(challengeID uint64) ([]Participant, error) {
	if _, err := t.Challenge(challengeID); err != nil {
		return nil, err
	}
	ps := t.participantList(challengeID)
	out := make([]Participant, len(ps))
	copy(out, ps)
	return out, nil
}

func (t *memTx) Participant(challengeID uint64, user Address) (Participant, error) {
	for _, p := range t.participantList(challengeID) {
		if p.User == user {
			return p, nil
		}
	}
	return Participant{}, reject(ErrNotFound, "participant %s in challenge %d", user, challengeID)
}

func (t *memTx) Beneficiary(user Address) (Address, bool, error) {
	if b, ok := t.beneficiaries[user]; ok {
		return b, true, nil
	}
	if t.cleared[user] {
		return "", false, nil
	}
	b, ok := t.base.beneficiaries[user]
	return b, ok, nil
}

func (t *memTx) Events(afterSeq uint64, limit int) ([]Event, error) {
	all := append(append([]Event(nil), t.base.events...), t.events...)
	var out []Event
	for _, e := range all {
		if e.Seq <= afterSeq {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *memTx) InsertGoal(g Goal) (uint64, error) {
	if t.readOnly {
		return 0, errReadOnly
	}
	if g.ID == 0 {
		g.ID = t.nextGoalID
	}
	if _, err := t.Goal(g.ID); err == nil {
		return 0, reject(ErrAlreadyExists, "goal %d", g.ID)
	}
	if g.ID >= t.nextGoalID {
		t.nextGoalID = g.ID + 1
	}
	t.goals[g.ID] = g
	t.userGoals[g.Owner] = append(copyIDs(t.userGoalIDs(g.Owner)), g.ID)
	return g.ID, nil
}

func (t *memTx) UpdateGoal(g Goal) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, err := t.Goal(g.ID); err != nil {
		return err
	}
	t.goals[g.ID] = g
	return nil
}

func (t *memTx) InsertChallenge(c Challenge) (uint64, error) {
	if t.readOnly {
		return 0, errReadOnly
	}
	if c.ID == 0 {
		c.ID = t.nextChallengeID
	}
	if _, err := t.Challenge(c.ID); err == nil {
		return 0, reject(ErrAlreadyExists, "challenge %d", c.ID)
	}
	if c.ID >= t.nextChallengeID {
		t.nextChallengeID = c.ID + 1
	}
	t.challenges[c.ID] = c
	return c.ID, nil
}

func (t *memTx) UpdateChallenge(c Challenge) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, err := t.Challenge(c.ID); err != nil {
		return err
	}
	t.challenges[c.ID] = c
	return nil
}

func (t *memTx) InsertParticipant(p Participant) error {
	if t.readOnly {
		return errReadOnly
	}
	if _, err := t.Challenge(p.ChallengeID); err != nil {
		return err
	}
	if _, err := t.Participant(p.ChallengeID, p.User); err == nil {
		return reject(ErrAlreadyExists, "participant %s in challenge %d", p.User, p.ChallengeID)
	}
	current := t.participantList(p.ChallengeID)
	staged := make([]Participant, len(current), len(current)+1)
	copy(staged, current)
	p.Seq = len(staged)
	t.participants[p.ChallengeID] = append(staged, p)
	t.userChallenges[p.User] = append(copyIDs(t.userChallengeIDs(p.User)), p.ChallengeID)
	return nil
}

func (t *memTx) UpdateParticipant(p Participant) error {
	if t.readOnly {
		return errReadOnly
	}
	current := t.participantList(p.ChallengeID)
	for i, existing := range current {
		if existing.User != p.User {
			continue
		}
		staged := make([]Participant, len(current))
		copy(staged, current)
		p.Seq = existing.Seq
		staged[i] = p
		t.participants[p.ChallengeID] = staged
		return nil
	}
	return reject(ErrNotFound, "participant %s in challenge %d", p.User, p.ChallengeID)
}

func (t *memTx) SetBeneficiary(user, beneficiary Address) error {
	if t.readOnly {
		return errReadOnly
	}
	delete(t.cleared, user)
	t.beneficiaries[user] = beneficiary
	return nil
}

func (t *memTx) ClearBeneficiary(user Address) error {
	if t.readOnly {
		return errReadOnly
	}
	delete(t.beneficiaries, user)
	t.cleared[user] = true
	return nil
}

func (t *memTx) AppendEvent(e Event) (uint64, error) {
	if t.readOnly {
		return 0, errReadOnly
	}
	e.Seq = uint64(len(t.base.events)+len(t.events)) + 1
	t.events = append(t.events, e)
	return e.Seq, nil
}

func copyIDs(ids []uint64) []uint64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

func mergedKeys[V any](base, staged map[uint64]V, fromID uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(staged))
	var ids []uint64
	for id := range staged {
		if id >= fromID {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for id := range base {
		if _, dup := seen[id]; !dup && id >= fromID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
