package prediction_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/predikt/prediction-engine/internal/allowance"
	"github.com/predikt/prediction-engine/internal/ledger"
	"github.com/predikt/prediction-engine/internal/model"
	"github.com/predikt/prediction-engine/internal/odds"
	"github.com/predikt/prediction-engine/internal/prediction"
	"github.com/predikt/prediction-engine/internal/store"
)

type testEnv struct {
	store    *store.MemoryStore
	tokens   *ledger.Ledger
	points   *ledger.Ledger
	provider *odds.StaticProvider
	svc      *prediction.Service
	userID   uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ms := store.NewMemoryStore()
	tokens := ledger.NewTokenLedger(ms)
	points := ledger.NewPointsLedger(ms)
	am := allowance.NewManager(ms, tokens, allowance.Config{DailyGrant: 1000, MaxAllowance: 2000})
	provider := odds.NewStaticProvider()
	svc := prediction.NewService(ms, tokens, points, am, provider, prediction.Config{MinStake: 10, MaxStake: 500})

	userID := uuid.New()
	if err := ms.CreateUser(context.Background(), &model.User{ID: userID, Username: "tester"}); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return &testEnv{store: ms, tokens: tokens, points: points, provider: provider, svc: svc, userID: userID}
}

func (env *testEnv) seedEvent(t *testing.T, mutate func(*model.Event)) *model.Event {
	t.Helper()
	e := &model.Event{
		ID:         uuid.New(),
		Title:      "Arsenal vs Chelsea",
		StartsAt:   time.Now().Add(time.Hour),
		Outcomes:   []string{"Arsenal", "Chelsea", "Draw"},
		Multiplier: decimal.NewFromInt(2),
		Status:     model.EventOpen,
		ExternalID: "ext-1",
		SportKey:   "soccer_epl",
		CreatedAt:  time.Now().UTC(),
	}
	if mutate != nil {
		mutate(e)
	}
	if err := env.store.CreateEvent(context.Background(), e); err != nil {
		t.Fatalf("failed to seed event: %v", err)
	}
	return e
}

func (env *testEnv) setPrice(e *model.Event, name string, price float64) {
	env.provider.SetOdds(e.SportKey, e.ExternalID, &odds.EventOdds{
		Outcomes:  []odds.OutcomeOdds{{Name: name, Price: decimal.NewFromFloat(price)}},
		UpdatedAt: time.Now(),
	})
}

func TestPlace_CapturesPriceAndDebitsTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	e := env.seedEvent(t, nil)
	env.setPrice(e, "Arsenal", 1.85)

	p, err := env.svc.Place(ctx, env.userID, e.ID, "  ARSENAL ", 100)
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if p.Outcome != "Arsenal" {
		t.Errorf("outcome = %q, want canonical %q", p.Outcome, "Arsenal")
	}
	if !p.Odds.Equal(decimal.NewFromFloat(1.85)) {
		t.Errorf("captured odds = %s, want 1.85", p.Odds)
	}
	if p.Status != model.PredictionPending {
		t.Errorf("status = %s, want PENDING", p.Status)
	}

	// First-time allowance grant (1000) minus the stake.
	report, _ := env.tokens.Balance(ctx, env.userID)
	if report.Cached != 900 || !report.Consistent() {
		t.Errorf("tokens: cached=%d recomputed=%d, want 900/900", report.Cached, report.Recomputed)
	}

	kind := model.KindStake
	entries, _ := env.tokens.History(ctx, env.userID, &kind, 10, 0)
	if len(entries) != 1 || entries[0].RefID == nil || *entries[0].RefID != p.ID {
		t.Error("stake entry should reference the prediction")
	}
}

func TestPlace_ZeroOddsWhenProviderHasNoPrice(t *testing.T) {
	env := newTestEnv(t)

	e := env.seedEvent(t, nil)
	p, err := env.svc.Place(context.Background(), env.userID, e.ID, "Draw", 50)
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	if !p.Odds.IsZero() {
		t.Errorf("expected zero odds without a price, got %s", p.Odds)
	}
}

func TestPlace_SucceedsWhenProviderFails(t *testing.T) {
	env := newTestEnv(t)

	e := env.seedEvent(t, nil)
	env.provider.Fail(errors.New("provider down"))

	p, err := env.svc.Place(context.Background(), env.userID, e.ID, "Arsenal", 50)
	if err != nil {
		t.Fatalf("placement must survive a provider outage: %v", err)
	}
	if !p.Odds.IsZero() {
		t.Errorf("expected zero odds after provider failure, got %s", p.Odds)
	}
}

func TestPlace_StakeBounds(t *testing.T) {
	env := newTestEnv(t)
	e := env.seedEvent(t, nil)

	for _, stake := range []int64{0, 9, 501, -50} {
		if _, err := env.svc.Place(context.Background(), env.userID, e.ID, "Arsenal", stake); !errors.Is(err, model.ErrInvalidAmount) {
			t.Errorf("stake %d: expected ErrInvalidAmount, got %v", stake, err)
		}
	}
}

func TestPlace_RejectsUnknownOutcome(t *testing.T) {
	env := newTestEnv(t)
	e := env.seedEvent(t, nil)

	_, err := env.svc.Place(context.Background(), env.userID, e.ID, "Tottenham", 50)
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPlace_RejectsNonOpenEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	locked := env.seedEvent(t, func(e *model.Event) { e.Status = model.EventLocked })
	if _, err := env.svc.Place(ctx, env.userID, locked.ID, "Arsenal", 50); !errors.Is(err, model.ErrEventNotOpen) {
		t.Errorf("locked event: expected ErrEventNotOpen, got %v", err)
	}

	settled := env.seedEvent(t, func(e *model.Event) { e.Status = model.EventSettled })
	if _, err := env.svc.Place(ctx, env.userID, settled.ID, "Arsenal", 50); !errors.Is(err, model.ErrEventAlreadySettled) {
		t.Errorf("settled event: expected ErrEventAlreadySettled, got %v", err)
	}

	started := env.seedEvent(t, func(e *model.Event) { e.StartsAt = time.Now().Add(-time.Minute) })
	if _, err := env.svc.Place(ctx, env.userID, started.ID, "Arsenal", 50); !errors.Is(err, model.ErrEventAlreadyStarted) {
		t.Errorf("started event: expected ErrEventAlreadyStarted, got %v", err)
	}
}

func TestPlace_OnePredictionPerUserPerEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	e := env.seedEvent(t, nil)
	if _, err := env.svc.Place(ctx, env.userID, e.ID, "Arsenal", 100); err != nil {
		t.Fatalf("first place failed: %v", err)
	}
	if _, err := env.svc.Place(ctx, env.userID, e.ID, "Chelsea", 100); !errors.Is(err, model.ErrAlreadyPredicted) {
		t.Fatalf("expected ErrAlreadyPredicted, got %v", err)
	}

	// The rejected attempt must not have debited anything.
	report, _ := env.tokens.Balance(ctx, env.userID)
	if report.Cached != 900 || !report.Consistent() {
		t.Errorf("tokens after duplicate: cached=%d recomputed=%d, want 900/900", report.Cached, report.Recomputed)
	}
}

func TestPlace_SimultaneousDuplicatesRaceForOneSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	e := env.seedEvent(t, nil)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Place(ctx, env.userID, e.ID, "Arsenal", 100)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, model.ErrAlreadyPredicted):
			lost++
		default:
			t.Fatalf("unexpected error from racing place: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("race outcome: %d succeeded, %d rejected, want 1/1", won, lost)
	}

	preds, _ := env.svc.ListByUser(ctx, env.userID)
	if len(preds) != 1 || preds[0].Status != model.PredictionPending {
		t.Fatalf("expected exactly one PENDING prediction, got %d", len(preds))
	}

	// Exactly one stake debit; the loser's unit rolled back whole.
	kind := model.KindStake
	entries, _ := env.tokens.History(ctx, env.userID, &kind, 10, 0)
	if len(entries) != 1 {
		t.Errorf("stake entries = %d, want 1", len(entries))
	}
	report, _ := env.tokens.Balance(ctx, env.userID)
	if report.Cached != 900 || !report.Consistent() {
		t.Errorf("tokens: cached=%d recomputed=%d, want 900/900", report.Cached, report.Recomputed)
	}
}

func TestPlace_InsufficientBalanceRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	e := env.seedEvent(t, nil)
	// Three placements of 400 against a 1000 grant: third must fail whole.
	others := []*model.Event{env.seedEvent(t, nil), env.seedEvent(t, nil)}
	if _, err := env.svc.Place(ctx, env.userID, e.ID, "Arsenal", 400); err != nil {
		t.Fatalf("place 1 failed: %v", err)
	}
	if _, err := env.svc.Place(ctx, env.userID, others[0].ID, "Arsenal", 400); err != nil {
		t.Fatalf("place 2 failed: %v", err)
	}

	_, err := env.svc.Place(ctx, env.userID, others[1].ID, "Arsenal", 400)
	var ib *model.InsufficientBalanceError
	if !errors.As(err, &ib) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}

	preds, _ := env.svc.ListByUser(ctx, env.userID)
	if len(preds) != 2 {
		t.Errorf("failed placement left a prediction behind: %d predictions", len(preds))
	}
	report, _ := env.tokens.Balance(ctx, env.userID)
	if report.Cached != 200 || !report.Consistent() {
		t.Errorf("tokens: cached=%d recomputed=%d, want 200/200", report.Cached, report.Recomputed)
	}
}

func TestGet_EnforcesOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	e := env.seedEvent(t, nil)
	p, err := env.svc.Place(ctx, env.userID, e.ID, "Arsenal", 50)
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}

	if _, err := env.svc.Get(ctx, uuid.New(), p.ID); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("expected ErrForbidden for foreign user, got %v", err)
	}
	if _, err := env.svc.Get(ctx, env.userID, p.ID); err != nil {
		t.Errorf("owner read failed: %v", err)
	}
}

func TestCashoutValue_FavorableMove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	e := env.seedEvent(t, nil)
	env.setPrice(e, "Arsenal", 3)
	p, err := env.svc.Place(ctx, env.userID, e.ID, "Arsenal", 100)
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}

	// Market moved in the predictor's favor: 3 → 2.
	env.setPrice(e, "Arsenal", 2)

	q, err := env.svc.CashoutValue(ctx, env.userID, p.ID)
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	// floor(100 × 3/2 × 0.95) = 142 before the event starts.
	if q.Value != 142 {
		t.Errorf("value = %d, want 142", q.Value)
	}
	if q.EventStarted {
		t.Error("event has not started yet")
	}
}

func TestCashoutValue_WiderMarginAfterStart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	e := env.seedEvent(t, nil)
	env.setPrice(e, "Arsenal", 3)
	p, err := env.svc.Place(ctx, env.userID, e.ID, "Arsenal", 100)
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}

	// Start the event, then quote: margin drops from 0.95 to 0.90.
	err = env.store.WithTx(ctx, func(tx store.Tx) error {
		ev, err := tx.GetEventForUpdate(ctx, e.ID)
		if err != nil {
			return err
		}
		ev.Status = model.EventLocked
		return tx.UpdateEvent(ctx, ev)
	})
	if err != nil {
		t.Fatalf("failed to lock event: %v", err)
	}
	env.svc.SetClock(func() time.Time { return e.StartsAt.Add(time.Minute) })
	env.provider.SetOdds(e.SportKey, e.ExternalID, &odds.EventOdds{
		Outcomes:  []odds.OutcomeOdds{{Name: "Arsenal", Price: decimal.NewFromInt(2)}},
		UpdatedAt: e.StartsAt.Add(time.Minute),
	})

	q, err := env.svc.CashoutValue(ctx, env.userID, p.ID)
	if err != nil {
		t.Fatalf("quote failed: %v", err)
	}
	// floor(100 × 3/2 × 0.90) = 135 once underway.
	if q.Value != 135 {
		t.Errorf("value = %d, want 135", q.Value)
	}
	if !q.EventStarted {
		t.Error("event should count as started")
	}
}

func TestCashoutValue_Unavailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("no external mapping", func(t *testing.T) {
		e := env.seedEvent(t, func(e *model.Event) { e.ExternalID = "" })
		p, err := env.svc.Place(ctx, env.userID, e.ID, "Arsenal", 50)
		if err != nil {
			t.Fatalf("place failed: %v", err)
		}
		if _, err := env.svc.CashoutValue(ctx, env.userID, p.ID); !errors.Is(err, model.ErrCashoutUnavailable) {
			t.Errorf("expected ErrCashoutUnavailable, got %v", err)
		}
	})

	t.Run("stale price", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.seedEvent(t, nil)
		env.setPrice(e, "Arsenal", 3)
		p, err := env.svc.Place(ctx, env.userID, e.ID, "Arsenal", 50)
		if err != nil {
			t.Fatalf("place failed: %v", err)
		}

		env.provider.SetOdds(e.SportKey, e.ExternalID, &odds.EventOdds{
			Outcomes:  []odds.OutcomeOdds{{Name: "Arsenal", Price: decimal.NewFromInt(2)}},
			UpdatedAt: time.Now().Add(-10 * time.Minute),
		})
		if _, err := env.svc.CashoutValue(ctx, env.userID, p.ID); !errors.Is(err, model.ErrCashoutUnavailable) {
			t.Errorf("expected ErrCashoutUnavailable for stale price, got %v", err)
		}
	})

	t.Run("no current price", func(t *testing.T) {
		env := newTestEnv(t)
		e := env.seedEvent(t, nil)
		env.setPrice(e, "Arsenal", 3)
		p, err := env.svc.Place(ctx, env.userID, e.ID, "Arsenal", 50)
		if err != nil {
			t.Fatalf("place failed: %v", err)
		}

		env.provider.SetOdds(e.SportKey, e.ExternalID, nil)
		if _, err := env.svc.CashoutValue(ctx, env.userID, p.ID); !errors.Is(err, model.ErrCashoutUnavailable) {
			t.Errorf("expected ErrCashoutUnavailable with no prices, got %v", err)
		}
	})
}

func TestCashout_CreditsPointsAndIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	e := env.seedEvent(t, nil)
	env.setPrice(e, "Arsenal", 3)
	p, err := env.svc.Place(ctx, env.userID, e.ID, "Arsenal", 100)
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}
	env.setPrice(e, "Arsenal", 2)

	out, err := env.svc.Cashout(ctx, env.userID, p.ID)
	if err != nil {
		t.Fatalf("cashout failed: %v", err)
	}
	if out.Status != model.PredictionCashedOut || out.Payout != 142 {
		t.Errorf("prediction = %s/%d, want CASHED_OUT/142", out.Status, out.Payout)
	}
	if out.CashoutAmount == nil || *out.CashoutAmount != 142 {
		t.Error("cashout amount not recorded")
	}

	report, _ := env.points.Balance(ctx, env.userID)
	if report.Cached != 142 || !report.Consistent() {
		t.Errorf("points: cached=%d recomputed=%d, want 142/142", report.Cached, report.Recomputed)
	}

	// A second cashout of the same prediction must fail.
	if _, err := env.svc.Cashout(ctx, env.userID, p.ID); !errors.Is(err, model.ErrCashoutUnavailable) {
		t.Errorf("double cashout: expected ErrCashoutUnavailable, got %v", err)
	}
	report, _ = env.points.Balance(ctx, env.userID)
	if report.Cached != 142 {
		t.Errorf("double cashout paid again: %d points", report.Cached)
	}
}

func TestCashout_RejectsZeroValue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	e := env.seedEvent(t, nil)
	env.setPrice(e, "Arsenal", 1.1)
	p, err := env.svc.Place(ctx, env.userID, e.ID, "Arsenal", 10)
	if err != nil {
		t.Fatalf("place failed: %v", err)
	}

	// Unfavorable move: floor(10 × 1.1/100 × 0.95) = 0.
	env.setPrice(e, "Arsenal", 100)
	if _, err := env.svc.Cashout(ctx, env.userID, p.ID); !errors.Is(err, model.ErrCashoutUnavailable) {
		t.Errorf("expected ErrCashoutUnavailable for zero value, got %v", err)
	}
}
