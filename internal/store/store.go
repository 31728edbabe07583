// Package store defines the persistence boundary for the prediction engine.
// PostgreSQL is the source of truth; an in-memory implementation with the
// same transactional semantics backs the tests.
//
// All serialization is achieved through exclusive row locks taken inside
// transactions: Tx methods named ...ForUpdate block concurrent mutators of
// the same row until the transaction commits or rolls back. Operations on
// different users/events proceed fully in parallel.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/predikt/prediction-engine/internal/model"
)

// Store is the persistence interface. Mutations of balances, allowances,
// events and predictions happen inside WithTx; plain reads do not.
type Store interface {
	// WithTx runs fn inside one atomic unit. Any error from fn rolls the
	// whole unit back — no partial writes are ever observable.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// --- Users ---

	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)

	// --- Ledger reads (audit / history, no locks) ---

	// SumLedgerEntries recomputes a balance from the immutable log.
	SumLedgerEntries(ctx context.Context, userID uuid.UUID, currency model.Currency) (int64, error)

	// ListLedgerEntries returns entries reverse-chronologically, optionally
	// filtered by kind.
	ListLedgerEntries(ctx context.Context, userID uuid.UUID, currency model.Currency, kind *model.EntryKind, limit, offset int) ([]model.LedgerEntry, error)

	// --- Events ---

	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (*model.Event, error)
	ListEvents(ctx context.Context, status *model.EventStatus) ([]model.Event, error)

	// UpdateEventOdds refreshes the cached odds snapshot on an event.
	UpdateEventOdds(ctx context.Context, id uuid.UUID, snapshot []model.OutcomePrice, at time.Time) error

	// LockStartedEvents transitions every OPEN event whose start time has
	// passed to LOCKED. Idempotent; returns the number transitioned.
	LockStartedEvents(ctx context.Context, now time.Time) (int64, error)

	// ListSettleableEvents returns LOCKED events carrying external
	// identifiers, bounded to limit, for the settlement worker.
	ListSettleableEvents(ctx context.Context, limit int) ([]model.Event, error)

	// --- Predictions ---

	GetPrediction(ctx context.Context, id uuid.UUID) (*model.Prediction, error)
	ListPredictionsByUser(ctx context.Context, userID uuid.UUID) ([]model.Prediction, error)
	ListPredictionsByEvent(ctx context.Context, eventID uuid.UUID) ([]model.Prediction, error)
}

// Tx is the set of operations available inside one atomic unit.
// ...ForUpdate methods take an exclusive lock on the rows they return.
type Tx interface {
	// GetBalanceForUpdate locks the user's balance row for one currency and
	// returns the cached value. Returns model.ErrNotFound for unknown users.
	GetBalanceForUpdate(ctx context.Context, userID uuid.UUID, currency model.Currency) (int64, error)

	// SetBalance writes the cached balance. Only the ledger engine calls
	// this, always after GetBalanceForUpdate in the same transaction.
	SetBalance(ctx context.Context, userID uuid.UUID, currency model.Currency, balance int64) error

	// InsertLedgerEntry appends one immutable entry to the currency's log.
	InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error

	// SumLedgerEntries recomputes a balance from the immutable log inside
	// the transaction, after GetBalanceForUpdate has locked the row.
	SumLedgerEntries(ctx context.Context, userID uuid.UUID, currency model.Currency) (int64, error)

	// GetAllowanceForUpdate locks and returns the user's allowance row.
	// Returns model.ErrNotFound when no record exists yet.
	GetAllowanceForUpdate(ctx context.Context, userID uuid.UUID) (*model.Allowance, error)

	// PutAllowance creates or replaces the allowance row.
	PutAllowance(ctx context.Context, a *model.Allowance) error

	// GetEventForUpdate locks and returns the event row.
	GetEventForUpdate(ctx context.Context, id uuid.UUID) (*model.Event, error)

	// UpdateEvent writes status, final outcome and audit fields.
	UpdateEvent(ctx context.Context, e *model.Event) error

	// ListPendingPredictionsForUpdate locks and returns every PENDING
	// prediction for an event, in stable creation order.
	ListPendingPredictionsForUpdate(ctx context.Context, eventID uuid.UUID) ([]model.Prediction, error)

	// GetPredictionForUpdate locks and returns one prediction row.
	GetPredictionForUpdate(ctx context.Context, id uuid.UUID) (*model.Prediction, error)

	// CreatePrediction inserts a new prediction. Returns
	// model.ErrAlreadyPredicted when one already exists for (user, event).
	CreatePrediction(ctx context.Context, p *model.Prediction) error

	// UpdatePrediction writes status, payout and settlement fields.
	UpdatePrediction(ctx context.Context, p *model.Prediction) error
}
