// Package book implements the per-market, per-side price-level order book
// described in spec.md §4.3.
//
// Each side (YES, NO) is a balanced tree of price levels — a
// github.com/tidwall/btree.BTreeG, following the same structure
// saiputravu-Exchange's internal/engine/orderbook.go uses for its bid/ask
// books — because mid-queue iteration is required for the FOK pre-scan and
// because level aggregates must be maintained incrementally; a heap alone
// cannot do either. Each level owns a FIFO queue (container/list) of
// resting orders, giving O(1) front access and O(K) arbitrary removal by id.
//
// A side's orders are indexed twice: by price level (for price-time
// priority matching) and by order id (for O(log L + K) cancel), per the
// ownership note in spec.md §9. Both indices point at the same *types.Order
// value — there is exactly one mutable owner of each resting order's state.
package book

import (
	"container/list"
	"errors"
	"sync"

	"github.com/tidwall/btree"

	"github.com/jamhan/predictionmarket/internal/money"
	"github.com/jamhan/predictionmarket/pkg/types"
)

// ErrUnknownOrder is returned by Cancel when the order is not resting.
var ErrUnknownOrder = errors.New("book: order not resting")

type priceLevel struct {
	price money.Decimal
	queue *list.List    // of *types.Order, front = oldest (time priority)
	size  money.Decimal // aggregate remaining size across the queue
}

type levels = btree.BTreeG[*priceLevel]

// handle locates a resting order within its side without a linear scan.
type handle struct {
	side  types.Side
	level *priceLevel
	elem  *list.Element
}

// bookSide is one side (YES or NO) of one market's book. YES sorts
// descending by price (highest YES is most aggressive); NO sorts
// ascending (lowest NO is most aggressive) — mirroring
// saiputravu-Exchange's bids/asks pair (orderbook.go: bids sorted
// greatest-first, asks sorted least-first). tree.Min() must always
// yield the side's best (most crossable) price.
type bookSide struct {
	tree *levels
}

func newBookSide(side types.Side) *bookSide {
	if side == types.YES {
		return &bookSide{
			tree: btree.NewBTreeG(func(a, b *priceLevel) bool {
				return a.price.GT(b.price) // descending: highest YES first
			}),
		}
	}
	return &bookSide{
		tree: btree.NewBTreeG(func(a, b *priceLevel) bool {
			return a.price.LT(b.price) // ascending: lowest NO first
		}),
	}
}

// Book is one market's two-sided order book plus the id index used for
// cancel and fill mutation.
type Book struct {
	mu       sync.Mutex
	marketID string
	sides    map[types.Side]*bookSide
	byID     map[string]*handle
}

// New creates an empty book for a market.
func New(marketID string) *Book {
	return &Book{
		marketID: marketID,
		sides: map[types.Side]*bookSide{
			types.YES: newBookSide(types.YES),
			types.NO:  newBookSide(types.NO),
		},
		byID: make(map[string]*handle),
	}
}

// MarketID returns the market this book belongs to.
func (b *Book) MarketID() string { return b.marketID }

// Insert places a resting order into the correct side's price level,
// appended to that level's FIFO queue (spec.md §4.3 insert).
func (b *Book) Insert(o *types.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.insertLocked(o)
}

func (b *Book) insertLocked(o *types.Order) {
	side := b.sides[o.Side]
	key := &priceLevel{price: o.Price}
	lvl, ok := side.tree.Get(key)
	if !ok {
		lvl = &priceLevel{price: o.Price, queue: list.New()}
		side.tree.Set(lvl)
	}
	elem := lvl.queue.PushBack(o)
	lvl.size = lvl.size.Add(o.Remaining())
	b.byID[o.ID] = &handle{side: o.Side, level: lvl, elem: elem}
}

// PeekBest returns the best price on a side, or ok=false if empty.
func (b *Book) PeekBest(side types.Side) (price money.Decimal, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lvl, ok := b.sides[side].tree.Min()
	if !ok {
		return money.Zero, false
	}
	return lvl.price, true
}

// BestQueueFront returns the oldest resting order at the best level of a
// side, or ok=false if the side is empty. The returned pointer is the live
// order record; callers in the persistence-write path must not mutate it
// directly except through DecrementFront.
func (b *Book) BestQueueFront(side types.Side) (order *types.Order, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lvl, ok := b.sides[side].tree.Min()
	if !ok {
		return nil, false
	}
	front := lvl.queue.Front()
	if front == nil {
		return nil, false
	}
	return front.Value.(*types.Order), true
}

// DecrementFront applies a fill of size `amount` to the front order of the
// best level on a side: increases its cumulative Filled, sets its Status
// to PARTIAL (or FILLED once nothing remains), decreases the level's
// aggregate remaining size, and — if the order is now fully filled — pops
// it from the queue (removing the level if it is left empty).
// Returns the order mutated and whether it was fully consumed (popped).
func (b *Book) DecrementFront(side types.Side, amount money.Decimal) (order *types.Order, consumed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.sides[side]
	lvl, ok := s.tree.Min()
	if !ok {
		return nil, false
	}
	elem := lvl.queue.Front()
	if elem == nil {
		return nil, false
	}
	o := elem.Value.(*types.Order)

	o.Filled = o.Filled.Add(amount)
	lvl.size = lvl.size.Sub(amount)

	if o.Remaining().IsZero() {
		o.Status = types.Filled
		lvl.queue.Remove(elem)
		delete(b.byID, o.ID)
		if lvl.queue.Len() == 0 {
			s.tree.Delete(lvl)
		}
		return o, true
	}
	o.Status = types.Partial
	return o, false
}

// Cancel removes a resting order by id, wherever it sits in its level's
// queue (O(K) at that level, as noted in spec.md §9 — acceptable because
// cancels are rare compared to front-of-queue fills).
func (b *Book) Cancel(orderID string) (*types.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.byID[orderID]
	if !ok {
		return nil, ErrUnknownOrder
	}
	o := h.elem.Value.(*types.Order)
	h.level.size = h.level.size.Sub(o.Remaining())
	h.level.queue.Remove(h.elem)
	delete(b.byID, orderID)

	if h.level.queue.Len() == 0 {
		b.sides[h.side].tree.Delete(h.level)
	}
	return o, nil
}

// MaxFillable walks the opposite side of `side` in priority order, summing
// resting remainders while crossTest holds, stopping as soon as the running
// total reaches limit (or the test fails). Used by FOK's pre-scan — it
// never mutates the book. crossTest receives the resting level's price.
func (b *Book) MaxFillable(side types.Side, limit money.Decimal, crossTest func(restPrice money.Decimal) bool) money.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	opposite := b.sides[side.Opposite()]
	total := money.Zero
	var stop bool
	opposite.tree.Scan(func(lvl *priceLevel) bool {
		if !crossTest(lvl.price) {
			stop = true
			return false
		}
		total = total.Add(lvl.size)
		return total.LT(limit)
	})
	_ = stop
	return money.Min(total, limit)
}

// Snapshot returns both sides as ordered arrays of (price, aggregate size,
// order-id list), best price first.
func (b *Book) Snapshot() types.BookSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return types.BookSnapshot{
		MarketID: b.marketID,
		Yes:      snapshotSide(b.sides[types.YES]),
		No:       snapshotSide(b.sides[types.NO]),
	}
}

func snapshotSide(s *bookSide) []types.PriceLevel {
	out := make([]types.PriceLevel, 0, s.tree.Len())
	s.tree.Scan(func(lvl *priceLevel) bool {
		ids := make([]string, 0, lvl.queue.Len())
		for e := lvl.queue.Front(); e != nil; e = e.Next() {
			ids = append(ids, e.Value.(*types.Order).ID)
		}
		out = append(out, types.PriceLevel{
			Price:    lvl.price,
			Size:     lvl.size,
			OrderIDs: ids,
		})
		return true
	})
	return out
}

// IsEmpty reports whether a side has no resting orders.
func (b *Book) IsEmpty(side types.Side) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sides[side].tree.Len() == 0
}
