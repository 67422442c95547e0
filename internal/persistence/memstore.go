package persistence

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamhan/predictionmarket/internal/money"
	"github.com/jamhan/predictionmarket/internal/position"
	"github.com/jamhan/predictionmarket/pkg/types"
)

// MemStore is an in-memory Store, safe for concurrent use, intended for
// tests and the matcher's own test doubles (spec.md §4.5's "in-memory mock"
// implementation).
type MemStore struct {
	mu        sync.Mutex
	orders    map[string]orderRecord
	trades    map[string]types.Trade
	positions map[positionKey]types.Position
	prices    map[string]marketPrices
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		orders:    make(map[string]orderRecord),
		trades:    make(map[string]types.Trade),
		positions: make(map[positionKey]types.Position),
		prices:    make(map[string]marketPrices),
	}
}

func (m *MemStore) CreateOrder(order types.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
	return nil
}

func (m *MemStore) CreateTrade(trade types.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[trade.ID] = trade
	return nil
}

func (m *MemStore) SetOrderFilled(orderID string, cumulativeFilled money.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("memstore: set order filled: %w", errUnknownOrder(orderID))
	}
	o.Filled = cumulativeFilled
	o.UpdatedAt = time.Now()
	m.orders[orderID] = o
	return nil
}

func (m *MemStore) SetOrderStatus(orderID string, status types.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("memstore: set order status: %w", errUnknownOrder(orderID))
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	m.orders[orderID] = o
	return nil
}

func (m *MemStore) UpsertPosition(marketID, userID string, side types.Side, deltaShares, price money.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := positionKey{marketID: marketID, userID: userID, side: side}
	old, ok := m.positions[key]
	if !ok {
		old = types.Position{MarketID: marketID, UserID: userID, Side: side}
	}
	m.positions[key] = position.Apply(old, deltaShares, price, time.Now())
	return nil
}

func (m *MemStore) SetLastPrices(marketID string, yesPrice, noPrice money.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[marketID] = marketPrices{Yes: yesPrice, No: noPrice}
	return nil
}

func (m *MemStore) ActiveOrders(marketID string) ([]types.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.Order
	for _, o := range m.orders {
		if o.MarketID == marketID && o.Status.Resting() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Position returns the current bookkeeping for a (market, user, side)
// triple. It is not part of the Store port — callers that only need the
// port should go through UpsertPosition's effects indirectly — but is
// useful to tests and to any host surface that wants to expose positions
// read-only.
func (m *MemStore) Position(marketID, userID string, side types.Side) (types.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[positionKey{marketID: marketID, userID: userID, side: side}]
	return p, ok
}

func (m *MemStore) LastPrices(marketID string) (yesPrice, noPrice money.Decimal, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.prices[marketID]
	if !ok {
		return money.Zero, money.Zero, false, nil
	}
	return p.Yes, p.No, true, nil
}

type unknownOrderError struct{ orderID string }

func (e *unknownOrderError) Error() string { return "unknown order " + e.orderID }

func errUnknownOrder(orderID string) error { return &unknownOrderError{orderID: orderID} }
