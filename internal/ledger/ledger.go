// Package ledger implements the atomic credit/debit primitive over a cached
// balance and an immutable transaction log. One engine, two configurations:
// the token ledger and the points ledger share this code path, so both
// currencies get identical invariants.
//
// Every mutation reads the user's balance under an exclusive row lock,
// computes the new value, appends the immutable entry with its
// balance-after snapshot, and writes the cached balance — all inside one
// atomic unit. A violation anywhere aborts the whole unit.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/predikt/prediction-engine/internal/metrics"
	"github.com/predikt/prediction-engine/internal/model"
	"github.com/predikt/prediction-engine/internal/store"
)

// Entry describes one requested ledger operation. Amount is always given
// positive; Debit negates it internally.
type Entry struct {
	UserID      uuid.UUID
	Amount      int64
	Kind        model.EntryKind
	RefType     string
	RefID       *uuid.UUID
	Description string
}

// Result is returned from a successful credit or debit.
type Result struct {
	EntryID uuid.UUID
	Balance int64
}

// Ledger is one currency's view of the engine.
type Ledger struct {
	store    store.Store
	currency model.Currency
	allowed  map[model.EntryKind]bool
	reserved map[model.EntryKind]bool
}

// NewTokenLedger configures the engine for the stake currency.
func NewTokenLedger(st store.Store) *Ledger {
	return &Ledger{
		store:    st,
		currency: model.CurrencyTokens,
		allowed: map[model.EntryKind]bool{
			model.KindDailyAllowance: true,
			model.KindSignupBonus:    true,
			model.KindStake:          true,
			model.KindRefund:         true,
			model.KindAdminCredit:    true,
			model.KindAdminDebit:     true,
		},
		reserved: map[model.EntryKind]bool{
			model.KindPurchase: true,
		},
	}
}

// NewPointsLedger configures the engine for the winnings currency.
func NewPointsLedger(st store.Store) *Ledger {
	return &Ledger{
		store:    st,
		currency: model.CurrencyPoints,
		allowed: map[model.EntryKind]bool{
			model.KindWin:              true,
			model.KindCashout:          true,
			model.KindRedemption:       true,
			model.KindRedemptionRefund: true,
			model.KindAdminCredit:      true,
			model.KindAdminDebit:       true,
		},
	}
}

// Currency returns the currency this instance writes.
func (l *Ledger) Currency() model.Currency {
	return l.currency
}

// Credit adds amount to the user's balance. When tx is nil the operation
// opens its own atomic unit; otherwise it joins the caller's, so multiple
// ledger operations plus non-ledger writes commit or roll back together.
func (l *Ledger) Credit(ctx context.Context, tx store.Tx, e Entry) (*Result, error) {
	return l.apply(ctx, tx, e, +1)
}

// Debit subtracts amount from the user's balance. Fails with
// InsufficientBalanceError when the balance would go negative; the whole
// enclosing unit rolls back and neither the entry nor the balance is
// written.
func (l *Ledger) Debit(ctx context.Context, tx store.Tx, e Entry) (*Result, error) {
	return l.apply(ctx, tx, e, -1)
}

func (l *Ledger) apply(ctx context.Context, tx store.Tx, e Entry, sign int64) (*Result, error) {
	if e.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %d", model.ErrInvalidAmount, e.Amount)
	}
	if l.reserved[e.Kind] {
		return nil, fmt.Errorf("%w: kind %s is reserved", model.ErrForbidden, e.Kind)
	}
	if !l.allowed[e.Kind] {
		return nil, fmt.Errorf("%w: kind %s not valid for %s ledger", model.ErrForbidden, e.Kind, l.currency)
	}

	var res *Result
	run := func(tx store.Tx) error {
		balance, err := tx.GetBalanceForUpdate(ctx, e.UserID, l.currency)
		if err != nil {
			return err
		}

		amount := e.Amount * sign
		newBalance := balance + amount
		if newBalance < 0 {
			return &model.InsufficientBalanceError{
				Currency:  l.currency,
				Required:  e.Amount,
				Available: balance,
			}
		}

		entry := &model.LedgerEntry{
			ID:           uuid.New(),
			UserID:       e.UserID,
			Currency:     l.currency,
			Amount:       amount,
			BalanceAfter: newBalance,
			Kind:         e.Kind,
			RefType:      e.RefType,
			RefID:        e.RefID,
			Description:  e.Description,
			CreatedAt:    time.Now().UTC(),
		}
		if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, e.UserID, l.currency, newBalance); err != nil {
			return err
		}

		res = &Result{EntryID: entry.ID, Balance: newBalance}
		return nil
	}

	if tx != nil {
		if err := run(tx); err != nil {
			return nil, err
		}
	} else if err := l.store.WithTx(ctx, run); err != nil {
		return nil, err
	}

	metrics.LedgerEntriesTotal.WithLabelValues(string(l.currency), string(e.Kind)).Inc()
	return res, nil
}

// BalanceReport pairs the cached balance with the independently recomputed
// sum over the immutable log.
type BalanceReport struct {
	Cached     int64 `json:"cached"`
	Recomputed int64 `json:"recomputed"`
}

// Consistent reports whether the cached projection matches the log.
func (r BalanceReport) Consistent() bool {
	return r.Cached == r.Recomputed
}

// Balance returns both the cached value and the recomputed ledger sum.
func (l *Ledger) Balance(ctx context.Context, userID uuid.UUID) (*BalanceReport, error) {
	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, err := l.store.SumLedgerEntries(ctx, userID, l.currency)
	if err != nil {
		return nil, err
	}
	cached := u.TokenBalance
	if l.currency == model.CurrencyPoints {
		cached = u.PointsBalance
	}
	return &BalanceReport{Cached: cached, Recomputed: sum}, nil
}

// Verify checks the cached balance against the ledger sum. Out-of-band
// auditing only; never called on the hot path.
func (l *Ledger) Verify(ctx context.Context, userID uuid.UUID) (*BalanceReport, error) {
	return l.Balance(ctx, userID)
}

// Repair forces the cached balance back to the recomputed sum and returns
// the report from before the repair. Manually invoked recovery path.
func (l *Ledger) Repair(ctx context.Context, userID uuid.UUID) (*BalanceReport, error) {
	var report *BalanceReport
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		cached, err := tx.GetBalanceForUpdate(ctx, userID, l.currency)
		if err != nil {
			return err
		}
		sum, err := tx.SumLedgerEntries(ctx, userID, l.currency)
		if err != nil {
			return err
		}
		report = &BalanceReport{Cached: cached, Recomputed: sum}
		if cached == sum {
			return nil
		}
		return tx.SetBalance(ctx, userID, l.currency, sum)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// History returns ledger entries for a user, newest first, optionally
// filtered by kind.
func (l *Ledger) History(ctx context.Context, userID uuid.UUID, kind *model.EntryKind, limit, offset int) ([]model.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return l.store.ListLedgerEntries(ctx, userID, l.currency, kind, limit, offset)
}
