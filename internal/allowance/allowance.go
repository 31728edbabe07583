// Package allowance manages the daily token grant. Replenishment runs
// lazily on every status check and consume — there is no scheduled job —
// and every grant or consumption goes through the token ledger so the
// allowance record and the ledger stay consistent.
package allowance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/predikt/prediction-engine/internal/ledger"
	"github.com/predikt/prediction-engine/internal/model"
	"github.com/predikt/prediction-engine/internal/store"
)

// Config holds the grant tunables.
type Config struct {
	DailyGrant   int64 // tokens granted per UTC day
	MaxAllowance int64 // cap on stacked unconsumed grants
}

// DefaultConfig returns the production grant sizes.
func DefaultConfig() Config {
	return Config{
		DailyGrant:   1000,
		MaxAllowance: 2000,
	}
}

// Manager computes and applies daily token grants on top of the token
// ledger.
type Manager struct {
	store  store.Store
	tokens *ledger.Ledger
	cfg    Config

	// now is swappable for tests.
	now func() time.Time
}

// NewManager creates an allowance manager.
func NewManager(st store.Store, tokens *ledger.Ledger, cfg Config) *Manager {
	return &Manager{
		store:  st,
		tokens: tokens,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Tests only.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Status returns the user's current allowance, creating a first-time
// record (crediting the full daily grant) if none exists, and applying any
// pending replenishment.
func (m *Manager) Status(ctx context.Context, userID uuid.UUID) (*model.Allowance, error) {
	var a *model.Allowance
	err := m.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		a, err = m.ensure(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ConsumeTokens debits the token ledger for a stake and decrements the
// allowance counter, as one atomic unit. When tx is non-nil the operation
// joins the caller's transaction (prediction placement composes this with
// creating the prediction row). The counter is clamped at zero — it is
// distinct from the user's token balance, which the ledger debit guards.
func (m *Manager) ConsumeTokens(ctx context.Context, tx store.Tx, userID uuid.UUID, amount int64, predictionID uuid.UUID) (*model.Allowance, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: consume amount must be positive, got %d", model.ErrInvalidAmount, amount)
	}

	var a *model.Allowance
	run := func(tx store.Tx) error {
		var err error
		a, err = m.ensure(ctx, tx, userID)
		if err != nil {
			return err
		}

		refID := predictionID
		if _, err := m.tokens.Debit(ctx, tx, ledger.Entry{
			UserID:  userID,
			Amount:  amount,
			Kind:    model.KindStake,
			RefType: model.RefPrediction,
			RefID:   &refID,
		}); err != nil {
			return err
		}

		a.TokensRemaining -= amount
		if a.TokensRemaining < 0 {
			a.TokensRemaining = 0
		}
		return tx.PutAllowance(ctx, a)
	}

	if tx != nil {
		if err := run(tx); err != nil {
			return nil, err
		}
		return a, nil
	}
	if err := m.store.WithTx(ctx, run); err != nil {
		return nil, err
	}
	return a, nil
}

// ensure loads the allowance row under its exclusive lock and advances it
// to today. Top-up = min(daysElapsed × dailyGrant, headroom to the cap);
// when the cap already absorbs everything, the reset date still advances
// so days never stack beyond maxAllowance.
func (m *Manager) ensure(ctx context.Context, tx store.Tx, userID uuid.UUID) (*model.Allowance, error) {
	today := utcDate(m.now())

	a, err := tx.GetAllowanceForUpdate(ctx, userID)
	if errors.Is(err, model.ErrNotFound) {
		if _, err := m.tokens.Credit(ctx, tx, ledger.Entry{
			UserID:      userID,
			Amount:      m.cfg.DailyGrant,
			Kind:        model.KindDailyAllowance,
			Description: "initial daily allowance",
		}); err != nil {
			return nil, err
		}
		a = &model.Allowance{
			UserID:          userID,
			TokensRemaining: m.cfg.DailyGrant,
			LastResetDate:   today,
		}
		return a, tx.PutAllowance(ctx, a)
	}
	if err != nil {
		return nil, err
	}

	days := daysBetween(utcDate(a.LastResetDate), today)
	if days <= 0 {
		return a, nil
	}

	headroom := m.cfg.MaxAllowance - a.TokensRemaining
	if headroom < 0 {
		headroom = 0
	}
	topUp := min64(days*m.cfg.DailyGrant, headroom)

	if topUp > 0 {
		if _, err := m.tokens.Credit(ctx, tx, ledger.Entry{
			UserID:      userID,
			Amount:      topUp,
			Kind:        model.KindDailyAllowance,
			Description: fmt.Sprintf("daily allowance (%d day(s))", days),
		}); err != nil {
			return nil, err
		}
		a.TokensRemaining = min64(a.TokensRemaining+topUp, m.cfg.MaxAllowance)
	}

	a.LastResetDate = today
	return a, tx.PutAllowance(ctx, a)
}

func utcDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int64 {
	return int64(to.Sub(from).Hours() / 24)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
