// Package engine implements the facade of spec.md §4.6: it owns the
// per-market book registry, warm-loads resting orders from persistence,
// and dispatches submissions to the matcher while holding the
// per-market lock across the entire critical section (book mutation plus
// every persistence write), per spec.md §5.
//
// The per-market registry pattern — a map guarded by one mutex, entries
// created lazily on first reference — is grounded on the retrieval
// pack's acagliol-arbitrax matching engine (GetOrCreateOrderBook), and on
// the teacher's own cmd/bot/main.go, which wires a single long-lived
// component per process the same way.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jamhan/predictionmarket/internal/book"
	"github.com/jamhan/predictionmarket/internal/matching"
	"github.com/jamhan/predictionmarket/internal/money"
	"github.com/jamhan/predictionmarket/internal/persistence"
	"github.com/jamhan/predictionmarket/pkg/types"
)

// ErrInvalidOrder is returned when a submission is malformed — rejected
// at the facade boundary before matching, with no state change
// (spec.md §7).
var ErrInvalidOrder = errors.New("engine: invalid order")

// ErrMarketUnknown is returned when the engine is configured with a
// restricted set of known markets and the submission targets a market
// outside it.
var ErrMarketUnknown = errors.New("engine: unknown market")

type marketState struct {
	mu            sync.Mutex
	book          *book.Book
	lastCreatedAt time.Time
}

// Engine is the embeddable facade a host process wires up: construct one
// per process, call Load for each market worth warm-loading at startup,
// then forward host requests to Submit/Cancel/Snapshot.
type Engine struct {
	regMu   sync.Mutex
	markets map[string]*marketState

	// known restricts Submit to a fixed set of market ids when non-empty.
	// Empty means unrestricted: any market id lazily creates a book.
	known map[string]struct{}

	store   persistence.Store
	matcher *matching.Matcher
	log     *slog.Logger
}

// New creates an Engine backed by store. knownMarkets, if non-empty,
// restricts Submit to that set; pass nil to accept any market id. Load,
// Cancel and Snapshot do not check the set.
func New(store persistence.Store, knownMarkets []string, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	var known map[string]struct{}
	if len(knownMarkets) > 0 {
		known = make(map[string]struct{}, len(knownMarkets))
		for _, id := range knownMarkets {
			known[id] = struct{}{}
		}
	}
	return &Engine{
		markets: make(map[string]*marketState),
		known:   known,
		store:   store,
		matcher: matching.New(store, log),
		log:     log.With("component", "engine"),
	}
}

func (e *Engine) getOrCreateMarket(marketID string) *marketState {
	e.regMu.Lock()
	defer e.regMu.Unlock()

	ms, ok := e.markets[marketID]
	if !ok {
		ms = &marketState{book: book.New(marketID)}
		e.markets[marketID] = ms
	}
	return ms
}

func (e *Engine) knownMarket(marketID string) bool {
	if len(e.known) == 0 {
		return true
	}
	_, ok := e.known[marketID]
	return ok
}

func (e *Engine) validate(order *types.Order) error {
	if order.ID == "" || order.MarketID == "" || order.OwnerID == "" {
		return fmt.Errorf("%w: missing required field", ErrInvalidOrder)
	}
	switch order.Type {
	case types.Market, types.Limit, types.IOC, types.FOK:
	default:
		return fmt.Errorf("%w: unknown order type %q", ErrInvalidOrder, order.Type)
	}
	if order.Size.IsNegative() || order.Size.IsZero() {
		return fmt.Errorf("%w: size must be positive", ErrInvalidOrder)
	}
	if order.Type != types.Market && !order.Price.InRange01() {
		return fmt.Errorf("%w: price must be in [0,1]", ErrInvalidOrder)
	}
	return nil
}

// Submit dispatches order per its type's policy (spec.md §4.4.4),
// holding the target market's lock across book mutation and every
// persistence write it triggers.
func (e *Engine) Submit(order *types.Order) (types.SubmitResult, error) {
	if err := e.validate(order); err != nil {
		return types.SubmitResult{}, err
	}
	if !e.knownMarket(order.MarketID) {
		return types.SubmitResult{}, fmt.Errorf("%w: %s", ErrMarketUnknown, order.MarketID)
	}

	ms := e.getOrCreateMarket(order.MarketID)
	ms.mu.Lock()
	defer ms.mu.Unlock()

	// Creation timestamps must be strictly monotone per market (spec.md
	// §3) since they are the sole source of time priority within a level.
	if !order.CreatedAt.After(ms.lastCreatedAt) {
		order.CreatedAt = ms.lastCreatedAt.Add(time.Nanosecond)
	}
	ms.lastCreatedAt = order.CreatedAt
	order.Status = types.Pending

	if err := e.store.CreateOrder(*order); err != nil {
		e.log.Error("persist order create", "order_id", order.ID, "market_id", order.MarketID, "error", err)
		return types.SubmitResult{}, fmt.Errorf("engine: create order: %w", err)
	}

	res, err := e.matcher.Submit(ms.book, order)
	if err != nil {
		e.log.Error("match submission", "order_id", order.ID, "market_id", order.MarketID, "error", err)
		return types.SubmitResult{}, fmt.Errorf("engine: %w", err)
	}
	return res, nil
}

// Cancel removes order_id from market_id's book and marks it CANCELLED.
// side is accepted to mirror spec.md §4.6's literal signature; the book
// resolves an order by id alone, so it is not required to locate it.
func (e *Engine) Cancel(marketID, orderID string, side types.Side) error {
	_ = side
	ms := e.getOrCreateMarket(marketID)
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, err := ms.book.Cancel(orderID); err != nil {
		return fmt.Errorf("engine: cancel: %w", err)
	}
	if err := e.store.SetOrderStatus(orderID, types.Cancelled); err != nil {
		e.log.Error("persist cancel", "order_id", orderID, "market_id", marketID, "error", err)
		return fmt.Errorf("engine: persist cancel: %w", err)
	}
	return nil
}

// Snapshot returns a read-only view of both sides of a market's book.
func (e *Engine) Snapshot(marketID string) types.BookSnapshot {
	ms := e.getOrCreateMarket(marketID)
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.book.Snapshot()
}

// LastPrices returns the most recently published top-of-book prices for
// a market, defaulting to 0.5/0.5 if none have been published yet
// (spec.md §3 invariant 4).
func (e *Engine) LastPrices(marketID string) (yesPrice, noPrice money.Decimal, err error) {
	yes, no, ok, err := e.store.LastPrices(marketID)
	if err != nil {
		return money.Zero, money.Zero, fmt.Errorf("engine: last prices: %w", err)
	}
	if !ok {
		half := money.MustParse("0.5")
		return half, half, nil
	}
	return yes, no, nil
}

// Load warm-loads market_id's active resting orders from persistence and
// inserts them into the book in ascending creation-timestamp order, so
// time priority across a restart matches what it was before (spec.md
// §4.6, round-trip property of spec.md §8).
func (e *Engine) Load(marketID string) error {
	ms := e.getOrCreateMarket(marketID)
	ms.mu.Lock()
	defer ms.mu.Unlock()

	orders, err := e.store.ActiveOrders(marketID)
	if err != nil {
		return fmt.Errorf("engine: load active orders: %w", err)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })

	for i := range orders {
		o := orders[i]
		ms.book.Insert(&o)
		if o.CreatedAt.After(ms.lastCreatedAt) {
			ms.lastCreatedAt = o.CreatedAt
		}
	}
	e.log.Info("warm-loaded market", "market_id", marketID, "orders", len(orders))
	return nil
}
