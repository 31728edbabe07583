// Package model defines the core domain types shared across the prediction
// engine. All odds prices use shopspring/decimal — never float64 for money.
// Token and point amounts are whole integers.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Currency identifies one of the two independent ledgers. Tokens are the
// stake currency (daily allowance); points are the winnings currency.
// They never mix.
type Currency string

const (
	CurrencyTokens Currency = "TOKENS"
	CurrencyPoints Currency = "POINTS"
)

// EntryKind is the closed set of transaction kinds. Each currency accepts
// its own subset; the ledger engine rejects everything else.
type EntryKind string

// Token ledger kinds.
const (
	KindDailyAllowance EntryKind = "DAILY_ALLOWANCE"
	KindSignupBonus    EntryKind = "SIGNUP_BONUS"
	KindStake          EntryKind = "STAKE"
	KindRefund         EntryKind = "REFUND"

	// KindPurchase is reserved for a regulated token-purchase flow that is
	// not built yet. The ledger engine refuses to write it.
	KindPurchase EntryKind = "PURCHASE"
)

// Points ledger kinds.
const (
	KindWin              EntryKind = "WIN"
	KindCashout          EntryKind = "CASHOUT"
	KindRedemption       EntryKind = "REDEMPTION"
	KindRedemptionRefund EntryKind = "REDEMPTION_REFUND"
)

// Shared kinds (both ledgers, ops only).
const (
	KindAdminCredit EntryKind = "ADMIN_CREDIT"
	KindAdminDebit  EntryKind = "ADMIN_DEBIT"
)

// Reference entity types recorded on ledger entries.
const (
	RefPrediction = "PREDICTION"
	RefEvent      = "EVENT"
	RefRedemption = "REDEMPTION"
)

// LedgerEntry is an immutable record of one balance change. Once created,
// entries are never modified or deleted; the cached balance on the user row
// is a derived projection of their sum.
type LedgerEntry struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Currency     Currency   `json:"currency"`
	Amount       int64      `json:"amount"`        // signed: +credit, -debit
	BalanceAfter int64      `json:"balance_after"` // snapshot after this entry
	Kind         EntryKind  `json:"kind"`
	RefType      string     `json:"ref_type,omitempty"` // e.g. "PREDICTION"
	RefID        *uuid.UUID `json:"ref_id,omitempty"`
	Description  string     `json:"description,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// User carries the two cached balances. Balances are mutated only by the
// ledger engine, never written directly by any other component.
type User struct {
	ID            uuid.UUID `json:"id"`
	Username      string    `json:"username"`
	TokenBalance  int64     `json:"token_balance"`
	PointsBalance int64     `json:"points_balance"`
	CreatedAt     time.Time `json:"created_at"`
}

// Allowance tracks the daily token grant window for one user.
// TokensRemaining is the unconsumed part of the current grant — distinct
// from the user's total token balance, which can also hold refunds.
type Allowance struct {
	UserID          uuid.UUID `json:"user_id"`
	TokensRemaining int64     `json:"tokens_remaining"`
	LastResetDate   time.Time `json:"last_reset_date"` // UTC calendar day
}

// EventStatus is the event lifecycle state machine:
// OPEN → LOCKED → SETTLED, with CANCELLED reachable from OPEN or LOCKED.
// SETTLED and CANCELLED are terminal.
type EventStatus string

const (
	EventOpen      EventStatus = "OPEN"
	EventLocked    EventStatus = "LOCKED"
	EventSettled   EventStatus = "SETTLED"
	EventCancelled EventStatus = "CANCELLED"
)

// Terminal reports whether the status permits no further transitions.
func (s EventStatus) Terminal() bool {
	return s == EventSettled || s == EventCancelled
}

// OutcomePrice is one priced outcome from the external provider, also used
// for the cached odds snapshot on an event.
type OutcomePrice struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// Event is a predictable real-world event with a finite list of mutually
// exclusive outcome labels.
type Event struct {
	ID           uuid.UUID       `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	StartsAt     time.Time       `json:"starts_at"`
	Outcomes     []string        `json:"outcomes"`   // ≥2 labels
	Multiplier   decimal.Decimal `json:"multiplier"` // payout fallback when no price was captured
	Status       EventStatus     `json:"status"`
	FinalOutcome string          `json:"final_outcome,omitempty"` // set only at settlement

	// External identifiers used to fetch live prices and results.
	// Empty means the event can only be settled manually.
	ExternalID string `json:"external_id,omitempty"`
	SportKey   string `json:"sport_key,omitempty"`

	// Cached current odds snapshot, refreshed by the odds job.
	OddsSnapshot  []OutcomePrice `json:"odds_snapshot,omitempty"`
	OddsUpdatedAt *time.Time     `json:"odds_updated_at,omitempty"`

	CreatedBy string     `json:"created_by,omitempty"`
	SettledBy string     `json:"settled_by,omitempty"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// PredictionStatus is the prediction state machine: PENDING at placement,
// then exactly one of WON, LOST, REFUNDED, or CASHED_OUT — never more than
// one terminal transition per prediction.
type PredictionStatus string

const (
	PredictionPending   PredictionStatus = "PENDING"
	PredictionWon       PredictionStatus = "WON"
	PredictionLost      PredictionStatus = "LOST"
	PredictionRefunded  PredictionStatus = "REFUNDED"
	PredictionCashedOut PredictionStatus = "CASHED_OUT"
)

// Prediction is one user's stake on one event outcome. At most one
// prediction exists per (user, event) pair.
type Prediction struct {
	ID      uuid.UUID `json:"id"`
	UserID  uuid.UUID `json:"user_id"`
	EventID uuid.UUID `json:"event_id"`
	Outcome string    `json:"outcome"`
	Stake   int64     `json:"stake"`

	// Odds is the price captured at placement. Zero means no live price was
	// available; settlement then falls back to the event multiplier.
	Odds decimal.Decimal `json:"odds"`

	Status        PredictionStatus `json:"status"`
	Payout        int64            `json:"payout"` // set on WON / CASHED_OUT
	CashoutAmount *int64           `json:"cashout_amount,omitempty"`
	CashedOutAt   *time.Time       `json:"cashed_out_at,omitempty"`
	SettledAt     *time.Time       `json:"settled_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}
