// Package prediction implements stake placement and early cashout.
//
// Placement talks to the external price provider before opening the
// transaction — network calls never run under row locks — then re-checks
// the event state inside the lock, so a concurrent lock/settle between the
// price fetch and the commit is caught rather than raced.
package prediction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/predikt/prediction-engine/internal/allowance"
	"github.com/predikt/prediction-engine/internal/ledger"
	"github.com/predikt/prediction-engine/internal/metrics"
	"github.com/predikt/prediction-engine/internal/model"
	"github.com/predikt/prediction-engine/internal/odds"
	"github.com/predikt/prediction-engine/internal/outcome"
	"github.com/predikt/prediction-engine/internal/pricing"
	"github.com/predikt/prediction-engine/internal/store"
)

// Config holds the stake bounds.
type Config struct {
	MinStake int64
	MaxStake int64
}

// DefaultConfig returns the production stake bounds.
func DefaultConfig() Config {
	return Config{MinStake: 10, MaxStake: 500}
}

// Quote is a point-in-time cashout valuation. It is informational only;
// Cashout recomputes the value at execution time.
type Quote struct {
	PredictionID uuid.UUID       `json:"prediction_id"`
	Value        int64           `json:"value"`
	OriginalOdds decimal.Decimal `json:"original_odds"`
	CurrentOdds  decimal.Decimal `json:"current_odds"`
	EventStarted bool            `json:"event_started"`
}

// Service places and manages predictions.
type Service struct {
	store     store.Store
	tokens    *ledger.Ledger
	points    *ledger.Ledger
	allowance *allowance.Manager
	provider  odds.Provider
	cfg       Config

	now func() time.Time
}

// NewService creates a prediction service. provider may be nil, in which
// case no live prices are captured and cashout is unavailable.
func NewService(st store.Store, tokens, points *ledger.Ledger, am *allowance.Manager, provider odds.Provider, cfg Config) *Service {
	return &Service{
		store:     st,
		tokens:    tokens,
		points:    points,
		allowance: am,
		provider:  provider,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Place stakes tokens on one outcome of an open event. The stake is
// debited through the allowance manager and the current provider price for
// the chosen outcome is captured on the prediction; when no price is
// available the prediction carries zero odds and settles at the event
// multiplier.
func (s *Service) Place(ctx context.Context, userID, eventID uuid.UUID, outcomeLabel string, stake int64) (*model.Prediction, error) {
	if stake < s.cfg.MinStake || stake > s.cfg.MaxStake {
		return nil, fmt.Errorf("%w: stake must be between %d and %d tokens",
			model.ErrInvalidAmount, s.cfg.MinStake, s.cfg.MaxStake)
	}

	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	canonical, ok := canonicalOutcome(ev.Outcomes, outcomeLabel)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an outcome of this event", model.ErrInvalidInput, outcomeLabel)
	}

	// Price fetch happens before the transaction; a failure here degrades
	// to multiplier-based payout instead of blocking placement.
	captured := s.fetchPrice(ctx, ev, canonical)

	p := &model.Prediction{
		ID:        uuid.New(),
		UserID:    userID,
		EventID:   eventID,
		Outcome:   canonical,
		Stake:     stake,
		Odds:      captured,
		Status:    model.PredictionPending,
		CreatedAt: s.now(),
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		locked, err := tx.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if locked.Status.Terminal() {
			return model.ErrEventAlreadySettled
		}
		if locked.Status != model.EventOpen {
			return model.ErrEventNotOpen
		}
		if !locked.StartsAt.IsZero() && !s.now().Before(locked.StartsAt) {
			return model.ErrEventAlreadyStarted
		}

		if err := tx.CreatePrediction(ctx, p); err != nil {
			return err
		}
		_, err = s.allowance.ConsumeTokens(ctx, tx, userID, stake, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.PredictionsPlaced.Inc()
	slog.Info("prediction placed",
		"id", p.ID,
		"user_id", userID,
		"event_id", eventID,
		"outcome", canonical,
		"stake", stake,
		"odds", p.Odds,
	)
	return p, nil
}

// Get returns one prediction, enforcing ownership.
func (s *Service) Get(ctx context.Context, userID, predictionID uuid.UUID) (*model.Prediction, error) {
	p, err := s.store.GetPrediction(ctx, predictionID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, model.ErrForbidden
	}
	return p, nil
}

// ListByUser returns all of a user's predictions, oldest first.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Prediction, error) {
	return s.store.ListPredictionsByUser(ctx, userID)
}

// CashoutValue quotes an early exit for a pending prediction. It returns
// ErrCashoutUnavailable whenever the position cannot be priced: the
// prediction is no longer pending, the event is terminal or has no
// external mapping, or no sufficiently fresh current price exists.
func (s *Service) CashoutValue(ctx context.Context, userID, predictionID uuid.UUID) (*Quote, error) {
	p, err := s.store.GetPrediction(ctx, predictionID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, model.ErrForbidden
	}
	return s.quote(ctx, p)
}

// Cashout executes an early exit: the quoted value is credited to the
// points ledger and the prediction becomes CASHED_OUT. The value is
// recomputed and the prediction re-verified under its row lock, so a
// settlement that slipped in since the quote wins and the cashout fails.
func (s *Service) Cashout(ctx context.Context, userID, predictionID uuid.UUID) (*model.Prediction, error) {
	p, err := s.store.GetPrediction(ctx, predictionID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, model.ErrForbidden
	}

	// Priced outside the transaction, same as placement.
	q, err := s.quote(ctx, p)
	if err != nil {
		return nil, err
	}
	if q.Value <= 0 {
		return nil, fmt.Errorf("%w: current value is zero", model.ErrCashoutUnavailable)
	}

	var out *model.Prediction
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		locked, err := tx.GetPredictionForUpdate(ctx, predictionID)
		if err != nil {
			return err
		}
		if locked.Status != model.PredictionPending {
			return model.ErrCashoutUnavailable
		}
		ev, err := tx.GetEventForUpdate(ctx, locked.EventID)
		if err != nil {
			return err
		}
		if ev.Status.Terminal() {
			return model.ErrCashoutUnavailable
		}

		refID := locked.ID
		if _, err := s.points.Credit(ctx, tx, ledger.Entry{
			UserID:      userID,
			Amount:      q.Value,
			Kind:        model.KindCashout,
			RefType:     model.RefPrediction,
			RefID:       &refID,
			Description: "early cashout",
		}); err != nil {
			return err
		}

		now := s.now()
		value := q.Value
		locked.Status = model.PredictionCashedOut
		locked.Payout = q.Value
		locked.CashoutAmount = &value
		locked.CashedOutAt = &now
		if err := tx.UpdatePrediction(ctx, locked); err != nil {
			return err
		}
		out = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("prediction cashed out",
		"id", predictionID,
		"user_id", userID,
		"value", q.Value,
		"original_odds", q.OriginalOdds,
		"current_odds", q.CurrentOdds,
	)
	return out, nil
}

func (s *Service) quote(ctx context.Context, p *model.Prediction) (*Quote, error) {
	if p.Status != model.PredictionPending {
		return nil, fmt.Errorf("%w: prediction is %s", model.ErrCashoutUnavailable, p.Status)
	}

	ev, err := s.store.GetEvent(ctx, p.EventID)
	if err != nil {
		return nil, err
	}
	if ev.Status.Terminal() {
		return nil, fmt.Errorf("%w: event is %s", model.ErrCashoutUnavailable, ev.Status)
	}
	if s.provider == nil || ev.ExternalID == "" || ev.SportKey == "" {
		return nil, fmt.Errorf("%w: no live price source for this event", model.ErrCashoutUnavailable)
	}

	current, err := s.provider.GetEventOdds(ctx, ev.SportKey, ev.ExternalID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if current == nil || !pricing.Fresh(current.UpdatedAt, now) {
		return nil, fmt.Errorf("%w: no fresh price available", model.ErrCashoutUnavailable)
	}
	price, ok := current.PriceFor(func(name string) bool { return outcome.Equal(name, p.Outcome) })
	if !ok {
		return nil, fmt.Errorf("%w: outcome not priced", model.ErrCashoutUnavailable)
	}

	original := p.Odds
	if original.LessThanOrEqual(decimal.Zero) {
		original = ev.Multiplier
	}
	started := !ev.StartsAt.IsZero() && !now.Before(ev.StartsAt)

	return &Quote{
		PredictionID: p.ID,
		Value:        pricing.CashoutValue(p.Stake, original, price, started),
		OriginalOdds: original,
		CurrentOdds:  price,
		EventStarted: started,
	}, nil
}

// fetchPrice captures the provider's current price for one outcome, or
// zero when no price can be had.
func (s *Service) fetchPrice(ctx context.Context, ev *model.Event, outcomeLabel string) decimal.Decimal {
	if s.provider == nil || ev.ExternalID == "" || ev.SportKey == "" {
		return decimal.Decimal{}
	}
	current, err := s.provider.GetEventOdds(ctx, ev.SportKey, ev.ExternalID)
	if err != nil {
		slog.Warn("price fetch failed, placing at multiplier", "event_id", ev.ID, "error", err)
		return decimal.Decimal{}
	}
	if current == nil {
		return decimal.Decimal{}
	}
	price, ok := current.PriceFor(func(name string) bool { return outcome.Equal(name, outcomeLabel) })
	if !ok {
		return decimal.Decimal{}
	}
	return price
}

// canonicalOutcome resolves a user-supplied label to the event's stored
// outcome label, so predictions always carry the canonical form.
func canonicalOutcome(outcomes []string, label string) (string, bool) {
	for _, o := range outcomes {
		if outcome.Equal(o, label) {
			return o, true
		}
	}
	return "", false
}
