package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/predikt/prediction-engine/internal/metrics"
	"github.com/predikt/prediction-engine/internal/model"
	"github.com/predikt/prediction-engine/internal/odds"
	"github.com/predikt/prediction-engine/internal/store"
)

// OddsNotifier receives snapshot-change broadcasts. Pass nil to disable.
type OddsNotifier interface {
	OddsUpdated(eventID uuid.UUID, snapshot []model.OutcomePrice)
}

// Refresher periodically refreshes the cached odds snapshot on every open
// event with an external mapping. Snapshots feed the event listing; they
// are advisory and never used to settle, so a refresh failure only means a
// staler display.
type Refresher struct {
	store    store.Store
	provider odds.Provider
	notifier OddsNotifier

	running atomic.Bool
}

// NewRefresher creates an odds refresher. notifier may be nil.
func NewRefresher(st store.Store, provider odds.Provider, notifier OddsNotifier) *Refresher {
	return &Refresher{
		store:    st,
		provider: provider,
		notifier: notifier,
	}
}

// RunOnce refreshes every refreshable event once. Returns the number of
// snapshots updated, or ok=false when another refresh is in flight.
func (r *Refresher) RunOnce(ctx context.Context) (int, bool) {
	if !r.running.CompareAndSwap(false, true) {
		return 0, false
	}
	defer r.running.Store(false)

	open := model.EventOpen
	events, err := r.store.ListEvents(ctx, &open)
	if err != nil {
		slog.Error("odds refresh: listing events failed", "error", err)
		return 0, true
	}

	updated := 0
	for _, ev := range events {
		if ev.ExternalID == "" || ev.SportKey == "" {
			continue
		}
		if r.refreshOne(ctx, &ev) {
			updated++
		}
	}
	return updated, true
}

func (r *Refresher) refreshOne(ctx context.Context, ev *model.Event) bool {
	current, err := r.provider.GetEventOdds(ctx, ev.SportKey, ev.ExternalID)
	if err != nil {
		slog.Warn("odds refresh: fetch failed", "event_id", ev.ID, "error", err)
		metrics.OddsRefreshTotal.WithLabelValues("failed").Inc()
		return false
	}
	if current == nil {
		metrics.OddsRefreshTotal.WithLabelValues("empty").Inc()
		return false
	}

	snapshot := make([]model.OutcomePrice, 0, len(current.Outcomes))
	for _, o := range current.Outcomes {
		snapshot = append(snapshot, model.OutcomePrice{Name: o.Name, Price: o.Price})
	}
	if err := r.store.UpdateEventOdds(ctx, ev.ID, snapshot, current.UpdatedAt); err != nil {
		slog.Warn("odds refresh: store update failed", "event_id", ev.ID, "error", err)
		metrics.OddsRefreshTotal.WithLabelValues("failed").Inc()
		return false
	}

	metrics.OddsRefreshTotal.WithLabelValues("updated").Inc()
	if r.notifier != nil {
		r.notifier.OddsUpdated(ev.ID, snapshot)
	}
	return true
}

// Start runs the refresh loop until ctx is cancelled.
func (r *Refresher) Start(ctx context.Context, interval time.Duration) {
	slog.Info("odds refresher started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("odds refresher stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}
