// Package persistence implements the narrow port spec.md §4.5 requires the
// matcher to depend on: trade creation, order fill/status mutation,
// position upserts, last-price publication, and active-order reload for
// warm-load. Two implementations are provided — MemStore for tests and
// FileStore for durable JSON-file storage — generalizing the teacher's
// internal/store.Store (one pos_<marketID>.json per market) to the full
// port: orders, trades, positions, and last-prices each get their own
// directory of JSON records under the store's data directory, written with
// the same write-to-.tmp-then-rename crash-safe pattern.
package persistence

import (
	"github.com/jamhan/predictionmarket/internal/money"
	"github.com/jamhan/predictionmarket/pkg/types"
)

// Store is the persistence port the matcher and engine depend on. All
// methods may fail with a wrapped error; callers treat any error as a
// PersistenceFailure per spec.md §7 and must not assume partial writes
// committed.
type Store interface {
	// CreateOrder persists a newly submitted order before matching begins,
	// so that a crash mid-match still leaves the order recoverable via
	// ActiveOrders. This supplements spec.md §4.5's six operations — without
	// it, a resting order that survives to Load would never have been
	// written in the first place.
	CreateOrder(order types.Order) error

	CreateTrade(trade types.Trade) error
	SetOrderFilled(orderID string, cumulativeFilled money.Decimal) error
	SetOrderStatus(orderID string, status types.OrderStatus) error
	UpsertPosition(marketID, userID string, side types.Side, deltaShares, price money.Decimal) error
	SetLastPrices(marketID string, yesPrice, noPrice money.Decimal) error

	// ActiveOrders returns every order in a market whose status is resting
	// (PENDING or PARTIAL), for warm-load only.
	ActiveOrders(marketID string) ([]types.Order, error)

	// LastPrices returns the most recently published YES/NO prices for a
	// market, or ok=false if none have ever been set.
	LastPrices(marketID string) (yesPrice, noPrice money.Decimal, ok bool, err error)
}

// orderRecord is the on-disk/in-memory representation of an order. It is
// an alias of types.Order; records are stored by value, so the storage
// layer never aliases the matcher's live mutable order pointers (see
// internal/book's ownership note).
type orderRecord = types.Order

type positionKey struct {
	marketID string
	userID   string
	side     types.Side
}

type marketPrices struct {
	Yes money.Decimal
	No  money.Decimal
}
