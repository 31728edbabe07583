// Package pricing holds the payout and cashout valuation math.
// It is stateless and pure: prediction and event state are passed as
// arguments, never stored.
//
// All odds use shopspring/decimal — never float64 for money. Results are
// whole token/point amounts, always floored in the house's favor.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	// MarginPreStart is the cashout multiplier before the event starts:
	// the house retains a 5% spread.
	MarginPreStart = decimal.NewFromFloat(0.95)

	// MarginPostStart is the cashout multiplier once the event is underway:
	// the spread widens to 10%.
	MarginPostStart = decimal.NewFromFloat(0.90)
)

// OddsFreshnessWindow is the maximum age of a fetched price that may be
// used to value an early exit. Stale prices cannot price a cashout.
const OddsFreshnessWindow = 5 * time.Minute

// Payout computes the points paid to a winning prediction:
//
//	payout = floor(stake × odds)
//
// odds is the price captured at placement, or the event's default
// multiplier when no price was captured. A zero stake pays zero.
func Payout(stake int64, odds decimal.Decimal) int64 {
	if stake <= 0 {
		return 0
	}
	return decimal.NewFromInt(stake).Mul(odds).Floor().IntPart()
}

// CashoutValue computes the points offered for exiting a pending
// prediction early:
//
//	value = max(0, floor(stake × (originalOdds / currentOdds) × margin))
//
// The value rises when the market has moved in the predictor's favor
// (original odds above current odds) and falls otherwise.
func CashoutValue(stake int64, originalOdds, currentOdds decimal.Decimal, eventStarted bool) int64 {
	if stake <= 0 || originalOdds.LessThanOrEqual(decimal.Zero) || currentOdds.LessThanOrEqual(decimal.Zero) {
		return 0
	}

	margin := MarginPreStart
	if eventStarted {
		margin = MarginPostStart
	}

	value := decimal.NewFromInt(stake).
		Mul(originalOdds).
		Div(currentOdds).
		Mul(margin).
		Floor().
		IntPart()
	if value < 0 {
		return 0
	}
	return value
}

// Fresh reports whether a price timestamp is recent enough to value a
// cashout against, as of now.
func Fresh(updatedAt, now time.Time) bool {
	return now.Sub(updatedAt) <= OddsFreshnessWindow
}
