// Package worker runs the background jobs: the settlement sweep, which
// resolves locked events from external results, and the odds refresher,
// which keeps event price snapshots current.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/predikt/prediction-engine/internal/event"
	"github.com/predikt/prediction-engine/internal/metrics"
	"github.com/predikt/prediction-engine/internal/model"
	"github.com/predikt/prediction-engine/internal/odds"
	"github.com/predikt/prediction-engine/internal/outcome"
	"github.com/predikt/prediction-engine/internal/store"
)

// SettledBySystem is the audit identity recorded on automated settlements.
const SettledBySystem = "system:settlement-worker"

// EventError records one event the sweep could not settle.
type EventError struct {
	EventID uuid.UUID `json:"event_id"`
	Error   string    `json:"error"`
}

// RunReport summarizes one settlement sweep.
type RunReport struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Examined  int           `json:"examined"`
	Settled   int           `json:"settled"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Errors    []EventError  `json:"errors,omitempty"`
}

// Settler binds the settlement sweep to a batch of locked events. Each
// sweep fetches completion reports per sport, maps the reported winner to
// an event outcome, and hands the event to the event service; settlement
// idempotency lives there, not here, so a sweep racing a manual settle is
// harmless.
type Settler struct {
	store    store.Store
	events   *event.Service
	provider odds.Provider
	batch    int

	running atomic.Bool

	mu   sync.Mutex
	last *RunReport
}

// NewSettler creates a settlement worker.
func NewSettler(st store.Store, events *event.Service, provider odds.Provider, batch int) *Settler {
	if batch <= 0 {
		batch = 50
	}
	return &Settler{
		store:    st,
		events:   events,
		provider: provider,
		batch:    batch,
	}
}

// Status returns the report of the most recent sweep, or nil before the
// first one, plus whether a sweep is in flight.
func (s *Settler) Status() (*RunReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	running := s.running.Load()
	if s.last == nil {
		return nil, running
	}
	cp := *s.last
	cp.Errors = append([]EventError(nil), s.last.Errors...)
	return &cp, running
}

// RunOnce executes one settlement sweep. At most one sweep runs at a time;
// a call that finds another in flight returns immediately with ok=false.
func (s *Settler) RunOnce(ctx context.Context) (*RunReport, bool) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, false
	}
	defer s.running.Store(false)

	start := time.Now()
	report := &RunReport{StartedAt: start.UTC()}

	events, err := s.store.ListSettleableEvents(ctx, s.batch)
	if err != nil {
		slog.Error("settlement sweep: listing events failed", "error", err)
		report.Errors = append(report.Errors, EventError{Error: err.Error()})
		s.finish(report, start)
		return report, true
	}
	report.Examined = len(events)

	// One scores call per sport covers every event in that sport.
	bySport := make(map[string][]model.Event)
	for _, ev := range events {
		bySport[ev.SportKey] = append(bySport[ev.SportKey], ev)
	}

	for sportKey, group := range bySport {
		scores, err := s.provider.GetScores(ctx, sportKey)
		if err != nil {
			slog.Error("settlement sweep: scores fetch failed", "sport_key", sportKey, "error", err)
			for _, ev := range group {
				report.Failed++
				report.Errors = append(report.Errors, EventError{EventID: ev.ID, Error: err.Error()})
				metrics.SettlementsTotal.WithLabelValues("failed").Inc()
			}
			continue
		}

		byID := make(map[string]odds.EventScore, len(scores))
		for _, sc := range scores {
			byID[sc.ID] = sc
		}

		for _, ev := range group {
			s.settleOne(ctx, ev, byID, report)
		}
	}

	s.finish(report, start)
	return report, true
}

func (s *Settler) settleOne(ctx context.Context, ev model.Event, byID map[string]odds.EventScore, report *RunReport) {
	sc, ok := byID[ev.ExternalID]
	if !ok || !sc.Completed {
		report.Skipped++
		metrics.SettlementsTotal.WithLabelValues("skipped").Inc()
		return
	}

	winner, ok := winnerFromScores(sc)
	if !ok {
		slog.Warn("settlement sweep: unusable score report", "event_id", ev.ID, "external_id", ev.ExternalID)
		report.Skipped++
		metrics.SettlementsTotal.WithLabelValues("skipped").Inc()
		return
	}

	label, fuzzy, ok := outcome.Match(winner, ev.Outcomes)
	if !ok {
		// A winner we cannot map is left for manual settlement rather than
		// guessed at.
		slog.Warn("settlement sweep: winner matches no outcome",
			"event_id", ev.ID, "winner", winner, "outcomes", ev.Outcomes)
		report.Skipped++
		metrics.SettlementsTotal.WithLabelValues("skipped").Inc()
		return
	}
	if fuzzy {
		slog.Info("settlement sweep: fuzzy outcome match",
			"event_id", ev.ID, "winner", winner, "outcome", label)
	}

	sum, err := s.events.Settle(ctx, ev.ID, label, SettledBySystem)
	if errors.Is(err, model.ErrEventAlreadySettled) {
		// Someone else settled between listing and locking. Fine.
		report.Skipped++
		metrics.SettlementsTotal.WithLabelValues("skipped").Inc()
		return
	}
	if err != nil {
		slog.Error("settlement sweep: settle failed", "event_id", ev.ID, "error", err)
		report.Failed++
		report.Errors = append(report.Errors, EventError{EventID: ev.ID, Error: err.Error()})
		metrics.SettlementsTotal.WithLabelValues("failed").Inc()
		return
	}

	report.Settled++
	metrics.SettlementsTotal.WithLabelValues("settled").Inc()
	slog.Info("settlement sweep: event settled",
		"event_id", ev.ID, "outcome", label, "winners", sum.Winners, "losers", sum.Losers)
}

func (s *Settler) finish(report *RunReport, start time.Time) {
	report.Duration = time.Since(start)
	metrics.SettlementRunDuration.Observe(report.Duration.Seconds())

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
}

// Start runs the sweep loop until ctx is cancelled. Each tick first
// auto-locks events whose start time has passed, then sweeps.
func (s *Settler) Start(ctx context.Context, interval time.Duration) {
	slog.Info("settlement worker started", "interval", interval, "batch", s.batch)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("settlement worker stopped")
			return
		case <-ticker.C:
			if _, err := s.events.AutoLockStartedEvents(ctx); err != nil {
				slog.Error("auto-lock failed", "error", err)
			}
			s.RunOnce(ctx)
		}
	}
}

// winnerFromScores picks the winning side from a completion report. Equal
// top scores mean a draw.
func winnerFromScores(sc odds.EventScore) (string, bool) {
	if len(sc.Scores) < 2 {
		return "", false
	}
	best := sc.Scores[0]
	tie := false
	for _, side := range sc.Scores[1:] {
		switch {
		case side.Score > best.Score:
			best = side
			tie = false
		case side.Score == best.Score:
			tie = true
		}
	}
	if tie {
		return "Draw", true
	}
	return best.Name, true
}
