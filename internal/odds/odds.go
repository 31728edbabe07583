// Package odds defines the external price/results provider boundary and
// its implementations: a live HTTP client, a Redis read-through cache
// decorator, and a static in-memory provider for testing and development.
//
// The engine treats a nil result as "cannot price / settle now" — never
// as zero.
package odds

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OutcomeOdds is one priced outcome reported by the provider.
type OutcomeOdds struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// EventOdds is the current price set for one event, with the provider's
// own timestamp. The freshness gate in cashout valuation checks UpdatedAt,
// not the fetch time.
type EventOdds struct {
	Outcomes  []OutcomeOdds `json:"outcomes"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// PriceFor returns the price for an outcome name, matched exactly after
// trimming/case-folding by the caller's own rules.
func (e *EventOdds) PriceFor(match func(name string) bool) (decimal.Decimal, bool) {
	for _, o := range e.Outcomes {
		if match(o.Name) {
			return o.Price, true
		}
	}
	return decimal.Decimal{}, false
}

// SideScore is one side's final score in a completed event.
type SideScore struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// EventScore is the provider's completion report for one external event.
type EventScore struct {
	ID        string      `json:"id"`
	Completed bool        `json:"completed"`
	Scores    []SideScore `json:"scores"`
}

// Provider is the external price/results collaborator.
type Provider interface {
	// GetEventOdds returns current outcome prices for one event, or
	// (nil, nil) when the provider has no prices for it.
	GetEventOdds(ctx context.Context, sportKey, externalID string) (*EventOdds, error)

	// GetScores returns completion reports for a sport. Events not yet
	// completed appear with Completed=false.
	GetScores(ctx context.Context, sportKey string) ([]EventScore, error)
}
