package allowance_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/predikt/prediction-engine/internal/allowance"
	"github.com/predikt/prediction-engine/internal/ledger"
	"github.com/predikt/prediction-engine/internal/model"
	"github.com/predikt/prediction-engine/internal/store"
)

type testEnv struct {
	store   *store.MemoryStore
	tokens  *ledger.Ledger
	manager *allowance.Manager
	userID  uuid.UUID
	clock   *fakeClock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEnv(t *testing.T, cfg allowance.Config) *testEnv {
	t.Helper()
	ms := store.NewMemoryStore()
	tokens := ledger.NewTokenLedger(ms)
	m := allowance.NewManager(ms, tokens, cfg)

	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	m.SetClock(clock.now)

	userID := uuid.New()
	if err := ms.CreateUser(context.Background(), &model.User{ID: userID, Username: "tester"}); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return &testEnv{store: ms, tokens: tokens, manager: m, userID: userID, clock: clock}
}

func TestStatus_FirstTimeGrantsDailyAllowance(t *testing.T) {
	env := newTestEnv(t, allowance.Config{DailyGrant: 1000, MaxAllowance: 2000})

	a, err := env.manager.Status(context.Background(), env.userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.TokensRemaining != 1000 {
		t.Errorf("expected 1000 tokens remaining, got %d", a.TokensRemaining)
	}

	// The grant must be visible in the token ledger, not just the counter.
	report, _ := env.tokens.Balance(context.Background(), env.userID)
	if report.Cached != 1000 || !report.Consistent() {
		t.Errorf("ledger balance: cached=%d recomputed=%d, want 1000/1000",
			report.Cached, report.Recomputed)
	}
}

func TestStatus_ReplenishesAfterOneDay(t *testing.T) {
	env := newTestEnv(t, allowance.Config{DailyGrant: 1000, MaxAllowance: 2000})

	env.manager.Status(context.Background(), env.userID)
	env.clock.advance(25 * time.Hour)

	a, err := env.manager.Status(context.Background(), env.userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.TokensRemaining != 2000 {
		t.Errorf("expected 2000 after one day, got %d", a.TokensRemaining)
	}
}

func TestStatus_CapNeverExceeded(t *testing.T) {
	env := newTestEnv(t, allowance.Config{DailyGrant: 1000, MaxAllowance: 2000})

	env.manager.Status(context.Background(), env.userID)

	// A long absence must not stack grants past the cap.
	env.clock.advance(10 * 24 * time.Hour)
	a, err := env.manager.Status(context.Background(), env.userID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.TokensRemaining != 2000 {
		t.Errorf("expected cap of 2000 after 10 days, got %d", a.TokensRemaining)
	}

	// Repeated checks on the same day change nothing.
	for i := 0; i < 3; i++ {
		a, _ = env.manager.Status(context.Background(), env.userID)
		if a.TokensRemaining > 2000 {
			t.Fatalf("check %d pushed remaining above cap: %d", i, a.TokensRemaining)
		}
	}
}

func TestStatus_AtCapStillAdvancesResetDate(t *testing.T) {
	env := newTestEnv(t, allowance.Config{DailyGrant: 1000, MaxAllowance: 1000})

	env.manager.Status(context.Background(), env.userID)
	env.clock.advance(48 * time.Hour)

	// Already at cap: no ledger write, but the window must advance.
	a, _ := env.manager.Status(context.Background(), env.userID)
	wantDate := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	if !a.LastResetDate.Equal(wantDate) {
		t.Errorf("last reset date = %v, want %v", a.LastResetDate, wantDate)
	}

	entries, _ := env.tokens.History(context.Background(), env.userID, nil, 50, 0)
	if len(entries) != 1 {
		t.Errorf("expected no top-up entry at cap, ledger has %d entries", len(entries))
	}
}

func TestConsumeTokens_DebitsLedgerAndCounter(t *testing.T) {
	env := newTestEnv(t, allowance.Config{DailyGrant: 1000, MaxAllowance: 2000})
	predID := uuid.New()

	a, err := env.manager.ConsumeTokens(context.Background(), nil, env.userID, 300, predID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.TokensRemaining != 700 {
		t.Errorf("expected 700 remaining, got %d", a.TokensRemaining)
	}

	report, _ := env.tokens.Balance(context.Background(), env.userID)
	if report.Cached != 700 || !report.Consistent() {
		t.Errorf("ledger: cached=%d recomputed=%d, want 700/700", report.Cached, report.Recomputed)
	}

	kind := model.KindStake
	entries, _ := env.tokens.History(context.Background(), env.userID, &kind, 10, 0)
	if len(entries) != 1 {
		t.Fatalf("expected 1 stake entry, got %d", len(entries))
	}
	if entries[0].RefID == nil || *entries[0].RefID != predID {
		t.Error("stake entry should reference the prediction")
	}
}

func TestConsumeTokens_CounterClampsAtZero(t *testing.T) {
	env := newTestEnv(t, allowance.Config{DailyGrant: 1000, MaxAllowance: 2000})

	// Refund tokens outside the allowance window so the balance exceeds
	// the remaining counter.
	env.manager.Status(context.Background(), env.userID)
	env.tokens.Credit(context.Background(), nil, ledger.Entry{
		UserID: env.userID, Amount: 500, Kind: model.KindRefund,
	})

	a, err := env.manager.ConsumeTokens(context.Background(), nil, env.userID, 1200, uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.TokensRemaining != 0 {
		t.Errorf("counter should clamp at zero, got %d", a.TokensRemaining)
	}

	report, _ := env.tokens.Balance(context.Background(), env.userID)
	if report.Cached != 300 {
		t.Errorf("expected ledger balance 300 (1500-1200), got %d", report.Cached)
	}
}

func TestConsumeTokens_InsufficientBalanceRollsBack(t *testing.T) {
	env := newTestEnv(t, allowance.Config{DailyGrant: 100, MaxAllowance: 200})

	_, err := env.manager.ConsumeTokens(context.Background(), nil, env.userID, 500, uuid.New())
	var ib *model.InsufficientBalanceError
	if !errors.As(err, &ib) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}

	// The first-time grant inside the failed unit must also be gone.
	report, _ := env.tokens.Balance(context.Background(), env.userID)
	if report.Cached != 0 || report.Recomputed != 0 {
		t.Errorf("failed consume leaked writes: cached=%d recomputed=%d", report.Cached, report.Recomputed)
	}
}

func TestConsumeTokens_RejectsNonPositive(t *testing.T) {
	env := newTestEnv(t, allowance.Config{DailyGrant: 1000, MaxAllowance: 2000})

	_, err := env.manager.ConsumeTokens(context.Background(), nil, env.userID, 0, uuid.New())
	if !errors.Is(err, model.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}
