package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/predikt/prediction-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Transactions clone the whole state and swap it back in on
// commit, so a failed atomic unit leaves nothing behind — the same
// all-or-nothing guarantee the PostgreSQL implementation gets from
// ROLLBACK. The store mutex is held for the duration of a transaction,
// which serializes them the way row locks would (coarsely, but correctly).
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	users       map[uuid.UUID]*model.User
	entries     []model.LedgerEntry
	allowances  map[uuid.UUID]*model.Allowance
	events      map[uuid.UUID]*model.Event
	predictions map[uuid.UUID]*model.Prediction
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func newMemState() *memState {
	return &memState{
		users:       make(map[uuid.UUID]*model.User),
		allowances:  make(map[uuid.UUID]*model.Allowance),
		events:      make(map[uuid.UUID]*model.Event),
		predictions: make(map[uuid.UUID]*model.Prediction),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for id, u := range s.users {
		cp := *u
		c.users[id] = &cp
	}
	c.entries = append([]model.LedgerEntry(nil), s.entries...)
	for id, a := range s.allowances {
		cp := *a
		c.allowances[id] = &cp
	}
	for id, e := range s.events {
		cp := *e
		cp.Outcomes = append([]string(nil), e.Outcomes...)
		cp.OddsSnapshot = append([]model.OutcomePrice(nil), e.OddsSnapshot...)
		c.events[id] = &cp
	}
	for id, p := range s.predictions {
		cp := *p
		c.predictions[id] = &cp
	}
	return c
}

// WithTx clones the state, runs fn against the clone, and swaps the clone
// in only when fn returns nil.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	draft := s.state.clone()
	if err := fn(&memTx{state: draft}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = draft
	return nil
}

// --- Store reads/writes outside transactions ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *u
	s.state.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id uuid.UUID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.state.users[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) SumLedgerEntries(_ context.Context, userID uuid.UUID, currency model.Currency) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, e := range s.state.entries {
		if e.UserID == userID && e.Currency == currency {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (s *MemoryStore) ListLedgerEntries(_ context.Context, userID uuid.UUID, currency model.Currency, kind *model.EntryKind, limit, offset int) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []model.LedgerEntry
	for _, e := range s.state.entries {
		if e.UserID != userID || e.Currency != currency {
			continue
		}
		if kind != nil && e.Kind != *kind {
			continue
		}
		matched = append(matched, e)
	}

	// Reverse-chronological: entries are appended in order, so walk backwards.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) CreateEvent(_ context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	cp.Outcomes = append([]string(nil), e.Outcomes...)
	s.state.events[e.ID] = &cp
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id uuid.UUID) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.state.events[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *e
	cp.Outcomes = append([]string(nil), e.Outcomes...)
	cp.OddsSnapshot = append([]model.OutcomePrice(nil), e.OddsSnapshot...)
	return &cp, nil
}

func (s *MemoryStore) ListEvents(_ context.Context, status *model.EventStatus) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []model.Event
	for _, e := range s.state.events {
		if status != nil && e.Status != *status {
			continue
		}
		cp := *e
		cp.Outcomes = append([]string(nil), e.Outcomes...)
		events = append(events, cp)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}

func (s *MemoryStore) UpdateEventOdds(_ context.Context, id uuid.UUID, snapshot []model.OutcomePrice, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.state.events[id]
	if !ok {
		return model.ErrNotFound
	}
	e.OddsSnapshot = append([]model.OutcomePrice(nil), snapshot...)
	t := at
	e.OddsUpdatedAt = &t
	return nil
}

func (s *MemoryStore) LockStartedEvents(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, e := range s.state.events {
		if e.Status == model.EventOpen && !e.StartsAt.After(now) {
			e.Status = model.EventLocked
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListSettleableEvents(_ context.Context, limit int) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []model.Event
	for _, e := range s.state.events {
		if e.Status != model.EventLocked || e.ExternalID == "" || e.SportKey == "" {
			continue
		}
		cp := *e
		cp.Outcomes = append([]string(nil), e.Outcomes...)
		events = append(events, cp)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].StartsAt.Before(events[j].StartsAt)
	})
	if limit > 0 && limit < len(events) {
		events = events[:limit]
	}
	return events, nil
}

func (s *MemoryStore) GetPrediction(_ context.Context, id uuid.UUID) (*model.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.state.predictions[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListPredictionsByUser(_ context.Context, userID uuid.UUID) ([]model.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listPredictions(func(p *model.Prediction) bool { return p.UserID == userID }), nil
}

func (s *MemoryStore) ListPredictionsByEvent(_ context.Context, eventID uuid.UUID) ([]model.Prediction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listPredictions(func(p *model.Prediction) bool { return p.EventID == eventID }), nil
}

func (s *memState) listPredictions(match func(*model.Prediction) bool) []model.Prediction {
	var preds []model.Prediction
	for _, p := range s.predictions {
		if match(p) {
			preds = append(preds, *p)
		}
	}
	sort.Slice(preds, func(i, j int) bool {
		return preds[i].CreatedAt.Before(preds[j].CreatedAt)
	})
	return preds
}

// --- Transaction view ---

// memTx mutates the draft state. The store mutex is already held, so no
// further locking is needed; ForUpdate semantics are implied.
type memTx struct {
	state *memState
}

func (t *memTx) GetBalanceForUpdate(_ context.Context, userID uuid.UUID, currency model.Currency) (int64, error) {
	u, ok := t.state.users[userID]
	if !ok {
		return 0, model.ErrNotFound
	}
	if currency == model.CurrencyPoints {
		return u.PointsBalance, nil
	}
	return u.TokenBalance, nil
}

func (t *memTx) SetBalance(_ context.Context, userID uuid.UUID, currency model.Currency, balance int64) error {
	u, ok := t.state.users[userID]
	if !ok {
		return model.ErrNotFound
	}
	if currency == model.CurrencyPoints {
		u.PointsBalance = balance
	} else {
		u.TokenBalance = balance
	}
	return nil
}

func (t *memTx) InsertLedgerEntry(_ context.Context, e *model.LedgerEntry) error {
	t.state.entries = append(t.state.entries, *e)
	return nil
}

func (t *memTx) SumLedgerEntries(_ context.Context, userID uuid.UUID, currency model.Currency) (int64, error) {
	var sum int64
	for _, e := range t.state.entries {
		if e.UserID == userID && e.Currency == currency {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (t *memTx) GetAllowanceForUpdate(_ context.Context, userID uuid.UUID) (*model.Allowance, error) {
	a, ok := t.state.allowances[userID]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (t *memTx) PutAllowance(_ context.Context, a *model.Allowance) error {
	cp := *a
	t.state.allowances[a.UserID] = &cp
	return nil
}

func (t *memTx) GetEventForUpdate(_ context.Context, id uuid.UUID) (*model.Event, error) {
	e, ok := t.state.events[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *e
	cp.Outcomes = append([]string(nil), e.Outcomes...)
	return &cp, nil
}

func (t *memTx) UpdateEvent(_ context.Context, e *model.Event) error {
	if _, ok := t.state.events[e.ID]; !ok {
		return model.ErrNotFound
	}
	cp := *e
	cp.Outcomes = append([]string(nil), e.Outcomes...)
	t.state.events[e.ID] = &cp
	return nil
}

func (t *memTx) ListPendingPredictionsForUpdate(_ context.Context, eventID uuid.UUID) ([]model.Prediction, error) {
	return t.state.listPredictions(func(p *model.Prediction) bool {
		return p.EventID == eventID && p.Status == model.PredictionPending
	}), nil
}

func (t *memTx) GetPredictionForUpdate(_ context.Context, id uuid.UUID) (*model.Prediction, error) {
	p, ok := t.state.predictions[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) CreatePrediction(_ context.Context, p *model.Prediction) error {
	for _, existing := range t.state.predictions {
		if existing.UserID == p.UserID && existing.EventID == p.EventID {
			return model.ErrAlreadyPredicted
		}
	}
	cp := *p
	t.state.predictions[p.ID] = &cp
	return nil
}

func (t *memTx) UpdatePrediction(_ context.Context, p *model.Prediction) error {
	if _, ok := t.state.predictions[p.ID]; !ok {
		return model.ErrNotFound
	}
	cp := *p
	t.state.predictions[p.ID] = &cp
	return nil
}
