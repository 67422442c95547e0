// Package position implements the per-(market, user, side) share and
// volume-weighted-average-price bookkeeping described in spec.md §3 and
// §4.4.3.
//
// This generalizes the teacher's internal/strategy/inventory.go — which
// tracked one bot's own YES/NO holdings with a float64 moving average per
// side — into a side-agnostic, exact-decimal update applicable to any
// (market, user, side) triple, since the matcher must maintain this for
// both the aggressor and the counterparty of every trade, for arbitrary
// users.
package position

import (
	"time"

	"github.com/jamhan/predictionmarket/internal/money"
	"github.com/jamhan/predictionmarket/pkg/types"
)

// Apply folds a fill (deltaShares at price) into an existing position and
// returns the updated value. deltaShares is positive for the aggressor
// (buyer) side and negative for the counterparty's opposite-side
// adjustment (spec.md §4.4.3's "source convention" for short inventory).
//
// If the combined position's shares land exactly on zero, the average
// price resets to zero rather than dividing by zero (spec.md §4.4.3).
func Apply(old types.Position, deltaShares, price money.Decimal, now time.Time) types.Position {
	newShares := old.Shares.Add(deltaShares)

	var newAvg money.Decimal
	if newShares.IsZero() {
		newAvg = money.Zero
	} else {
		weightedTotal := old.Shares.Mul(old.AvgPrice).Add(deltaShares.Mul(price))
		newAvg = weightedTotal.Div(newShares)
	}

	return types.Position{
		MarketID:  old.MarketID,
		UserID:    old.UserID,
		Side:      old.Side,
		Shares:    newShares,
		AvgPrice:  newAvg,
		UpdatedAt: now,
	}
}
