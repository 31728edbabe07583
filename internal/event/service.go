// Package event owns the event lifecycle state machine and its two
// terminal transactions. Settlement and cancellation are multi-row
// financial operations: the event row and every PENDING prediction are
// locked exclusively inside one transaction, so two concurrent attempts
// (a manual override racing the automated worker) cannot both pay out.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/predikt/prediction-engine/internal/ledger"
	"github.com/predikt/prediction-engine/internal/model"
	"github.com/predikt/prediction-engine/internal/outcome"
	"github.com/predikt/prediction-engine/internal/pricing"
	"github.com/predikt/prediction-engine/internal/store"
)

// SettleTimeout bounds the settlement/cancellation transaction so an event
// with hundreds of predictions cannot hold its row lock indefinitely. A
// timeout rolls back and leaves the event LOCKED for retry.
const SettleTimeout = 30 * time.Second

// Notifier receives terminal-transition broadcasts. Pass nil to disable.
type Notifier interface {
	EventSettled(eventID uuid.UUID, finalOutcome string, winners, losers int)
	EventCancelled(eventID uuid.UUID, refunded int)
}

// Summary reports what one settlement resolved.
type Summary struct {
	EventID      uuid.UUID `json:"event_id"`
	FinalOutcome string    `json:"final_outcome"`
	Processed    int       `json:"processed"`
	Winners      int       `json:"winners"`
	Losers       int       `json:"losers"`
	TotalPayout  int64     `json:"total_payout"`
}

// Service manages event state transitions.
type Service struct {
	store    store.Store
	points   *ledger.Ledger
	tokens   *ledger.Ledger
	notifier Notifier
}

// NewService creates an event service. notifier may be nil.
func NewService(st store.Store, points, tokens *ledger.Ledger, notifier Notifier) *Service {
	return &Service{
		store:    st,
		points:   points,
		tokens:   tokens,
		notifier: notifier,
	}
}

// Create validates and persists a new OPEN event.
func (s *Service) Create(ctx context.Context, e *model.Event) (*model.Event, error) {
	if e.Title == "" {
		return nil, fmt.Errorf("%w: title is required", model.ErrInvalidInput)
	}
	if len(e.Outcomes) < 2 {
		return nil, fmt.Errorf("%w: at least two outcome labels required", model.ErrInvalidInput)
	}
	for i, a := range e.Outcomes {
		for _, b := range e.Outcomes[i+1:] {
			if outcome.Equal(a, b) {
				return nil, fmt.Errorf("%w: duplicate outcome label %q", model.ErrInvalidInput, b)
			}
		}
	}
	if e.Multiplier.LessThanOrEqual(decimal.Zero) {
		e.Multiplier = decimal.NewFromInt(2)
	}

	e.ID = uuid.New()
	e.Status = model.EventOpen
	e.CreatedAt = time.Now().UTC()

	if err := s.store.CreateEvent(ctx, e); err != nil {
		return nil, err
	}
	slog.Info("event created", "id", e.ID, "title", e.Title, "starts_at", e.StartsAt)
	return e, nil
}

// Get retrieves one event.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	return s.store.GetEvent(ctx, id)
}

// List returns events, optionally filtered by status.
func (s *Service) List(ctx context.Context, status *model.EventStatus) ([]model.Event, error) {
	return s.store.ListEvents(ctx, status)
}

// Lock transitions an OPEN event to LOCKED.
func (s *Service) Lock(ctx context.Context, eventID uuid.UUID) error {
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		ev, err := tx.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.Status.Terminal() {
			return model.ErrEventAlreadySettled
		}
		if ev.Status != model.EventOpen {
			return model.ErrEventNotOpen
		}
		ev.Status = model.EventLocked
		return tx.UpdateEvent(ctx, ev)
	})
}

// Settle resolves an event to finalOutcome: every PENDING prediction is
// locked and marked WON (with a points credit) or LOST, then the event is
// marked SETTLED. One atomic unit; any failure rolls everything back.
// Predictions no longer PENDING at lock time (already cashed out) are
// skipped — settlement only resolves still-open exposure.
func (s *Service) Settle(ctx context.Context, eventID uuid.UUID, finalOutcome, settledBy string) (*Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, SettleTimeout)
	defer cancel()

	var summary *Summary
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		ev, err := tx.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		// Re-check inside the lock: this is what stops two concurrent
		// settlement attempts from both succeeding.
		if ev.Status.Terminal() {
			return model.ErrEventAlreadySettled
		}
		if !outcome.Contains(ev.Outcomes, finalOutcome) {
			return fmt.Errorf("%w: %q is not an outcome of this event", model.ErrInvalidInput, finalOutcome)
		}

		preds, err := tx.ListPendingPredictionsForUpdate(ctx, eventID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		sum := &Summary{EventID: eventID, FinalOutcome: finalOutcome, Processed: len(preds)}

		for i := range preds {
			p := &preds[i]
			settledAt := now

			if outcome.Equal(p.Outcome, finalOutcome) {
				odds := p.Odds
				if odds.LessThanOrEqual(decimal.Zero) {
					odds = ev.Multiplier
				}
				payout := pricing.Payout(p.Stake, odds)

				if payout > 0 {
					refID := p.ID
					if _, err := s.points.Credit(ctx, tx, ledger.Entry{
						UserID:  p.UserID,
						Amount:  payout,
						Kind:    model.KindWin,
						RefType: model.RefPrediction,
						RefID:   &refID,
					}); err != nil {
						return err
					}
				}

				p.Status = model.PredictionWon
				p.Payout = payout
				sum.Winners++
				sum.TotalPayout += payout
			} else {
				p.Status = model.PredictionLost
				p.Payout = 0
				sum.Losers++
			}

			p.SettledAt = &settledAt
			if err := tx.UpdatePrediction(ctx, p); err != nil {
				return err
			}
		}

		ev.Status = model.EventSettled
		ev.FinalOutcome = finalOutcome
		ev.SettledBy = settledBy
		settledAt := now
		ev.SettledAt = &settledAt
		if err := tx.UpdateEvent(ctx, ev); err != nil {
			return err
		}

		summary = sum
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("event settled",
		"id", eventID,
		"outcome", finalOutcome,
		"settled_by", settledBy,
		"winners", summary.Winners,
		"losers", summary.Losers,
		"total_payout", summary.TotalPayout,
	)
	if s.notifier != nil {
		s.notifier.EventSettled(eventID, finalOutcome, summary.Winners, summary.Losers)
	}
	return summary, nil
}

// Cancel voids an event: every PENDING stake is refunded to the token
// ledger and the prediction marked REFUNDED; the event becomes CANCELLED.
// Same locking discipline as Settle.
func (s *Service) Cancel(ctx context.Context, eventID uuid.UUID, cancelledBy string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, SettleTimeout)
	defer cancel()

	refunded := 0
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		ev, err := tx.GetEventForUpdate(ctx, eventID)
		if err != nil {
			return err
		}
		if ev.Status.Terminal() {
			return model.ErrEventAlreadySettled
		}

		preds, err := tx.ListPendingPredictionsForUpdate(ctx, eventID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		for i := range preds {
			p := &preds[i]
			refID := p.ID
			if _, err := s.tokens.Credit(ctx, tx, ledger.Entry{
				UserID:      p.UserID,
				Amount:      p.Stake,
				Kind:        model.KindRefund,
				RefType:     model.RefPrediction,
				RefID:       &refID,
				Description: "event cancelled",
			}); err != nil {
				return err
			}

			settledAt := now
			p.Status = model.PredictionRefunded
			p.SettledAt = &settledAt
			if err := tx.UpdatePrediction(ctx, p); err != nil {
				return err
			}
			refunded++
		}

		ev.Status = model.EventCancelled
		ev.SettledBy = cancelledBy
		settledAt := now
		ev.SettledAt = &settledAt
		return tx.UpdateEvent(ctx, ev)
	})
	if err != nil {
		return 0, err
	}

	slog.Info("event cancelled", "id", eventID, "cancelled_by", cancelledBy, "refunded", refunded)
	if s.notifier != nil {
		s.notifier.EventCancelled(eventID, refunded)
	}
	return refunded, nil
}

// AutoLockStartedEvents bulk-transitions every OPEN event whose start time
// has passed to LOCKED. Idempotent; a no-op on repeat calls.
func (s *Service) AutoLockStartedEvents(ctx context.Context) (int64, error) {
	n, err := s.store.LockStartedEvents(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("auto-locked started events", "count", n)
	}
	return n, nil
}
