// Package matching implements the order-type policies and cross-side
// matching loop of spec.md §4.4: MARKET, LIMIT, IOC, and FOK dispatch onto
// one shared loop that walks the opposite side of the book in price-time
// priority, producing trades and mutating both the book and persisted
// state in lockstep. The binary-market crossing convention (a YES
// incoming crosses the NO book and vice versa, compared by direct price,
// not the complement p_yes + p_no ≥ 1) is reproduced exactly as specified,
// including the open question flagged about its unusual economics.
//
// There is no teacher file for a matching engine in this retrieval pack's
// chosen teacher (0xtitan6-polymarket-mm is a market-making bot, not an
// exchange); the matching loop and FOK pre-scan are grounded on
// saiputravu-Exchange's internal/engine package, which implements the
// same price-time priority walk over a btree-backed book.
package matching

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jamhan/predictionmarket/internal/book"
	"github.com/jamhan/predictionmarket/internal/money"
	"github.com/jamhan/predictionmarket/internal/persistence"
	"github.com/jamhan/predictionmarket/pkg/types"
)

// ErrFOKUnfillable is the reject reason for a fill-or-kill order that
// cannot be completely filled against the current book (spec.md §4.4.4).
var ErrFOKUnfillable = errors.New("FOK order cannot be completely filled")

// Matcher runs the matching loop against a market's book, persisting
// every mutation through the store as it goes (spec.md §5 requires
// persistence writes to complete inside the same critical section as the
// book mutation; callers are expected to hold the per-market lock for the
// full duration of Submit).
type Matcher struct {
	store persistence.Store
	log   *slog.Logger
}

// New creates a Matcher writing through store. A nil logger defaults to
// slog.Default().
func New(store persistence.Store, log *slog.Logger) *Matcher {
	if log == nil {
		log = slog.Default()
	}
	return &Matcher{store: store, log: log.With("component", "matcher")}
}

// Submit runs order against book per its type's policy (spec.md §4.4.4)
// and returns the terminal/resting order, the trades produced, and
// whether it was rejected (FOK insufficiency only — the matcher never
// errors on non-crossing or zero-size orders).
func (m *Matcher) Submit(b *book.Book, order *types.Order) (types.SubmitResult, error) {
	switch order.Type {
	case types.Market:
		return m.submitMarket(b, order)
	case types.Limit:
		return m.submitLimit(b, order)
	case types.IOC:
		return m.submitIOC(b, order)
	case types.FOK:
		return m.submitFOK(b, order)
	default:
		return types.SubmitResult{}, fmt.Errorf("matching: unknown order type %q", order.Type)
	}
}

func crossTestFor(order *types.Order) func(restPrice money.Decimal) bool {
	if order.Side == types.YES {
		return func(restPrice money.Decimal) bool { return order.Price.GTE(restPrice) }
	}
	return func(restPrice money.Decimal) bool { return order.Price.LTE(restPrice) }
}

func (m *Matcher) submitLimit(b *book.Book, order *types.Order) (types.SubmitResult, error) {
	trades, err := m.runLoop(b, order, crossTestFor(order))
	if err != nil {
		return types.SubmitResult{}, err
	}

	remaining := order.Remaining()
	switch {
	case remaining.IsZero():
		order.Status = types.Filled
	case len(trades) > 0:
		order.Status = types.Partial
		b.Insert(order)
	default:
		order.Status = types.Pending
		b.Insert(order)
	}

	if err := m.finalize(b, order); err != nil {
		return types.SubmitResult{}, err
	}
	return types.SubmitResult{Order: *order, Trades: trades}, nil
}

func (m *Matcher) submitMarket(b *book.Book, order *types.Order) (types.SubmitResult, error) {
	trades, err := m.runLoop(b, order, nil)
	if err != nil {
		return types.SubmitResult{}, err
	}

	switch {
	case order.Remaining().IsZero():
		order.Status = types.Filled
	case len(trades) > 0:
		order.Status = types.Partial
	default:
		order.Status = types.Pending
	}

	if err := m.finalize(b, order); err != nil {
		return types.SubmitResult{}, err
	}
	return types.SubmitResult{Order: *order, Trades: trades}, nil
}

func (m *Matcher) submitIOC(b *book.Book, order *types.Order) (types.SubmitResult, error) {
	trades, err := m.runLoop(b, order, crossTestFor(order))
	if err != nil {
		return types.SubmitResult{}, err
	}

	switch {
	case order.Remaining().IsZero():
		order.Status = types.Filled
	case len(trades) > 0:
		order.Status = types.Partial
	default:
		order.Status = types.Cancelled
	}

	if err := m.finalize(b, order); err != nil {
		return types.SubmitResult{}, err
	}
	return types.SubmitResult{Order: *order, Trades: trades}, nil
}

func (m *Matcher) submitFOK(b *book.Book, order *types.Order) (types.SubmitResult, error) {
	test := crossTestFor(order)
	fillable := b.MaxFillable(order.Side, order.Remaining(), test)

	if fillable.LT(order.Remaining()) {
		order.Status = types.Cancelled
		if err := m.store.SetOrderStatus(order.ID, types.Cancelled); err != nil {
			m.log.Error("persist FOK cancel", "order_id", order.ID, "error", err)
			return types.SubmitResult{}, fmt.Errorf("matching: persist FOK cancel: %w", err)
		}
		return types.SubmitResult{
			Order:        *order,
			Trades:       nil,
			Rejected:     true,
			RejectReason: ErrFOKUnfillable.Error(),
		}, nil
	}

	trades, err := m.runLoop(b, order, test)
	if err != nil {
		return types.SubmitResult{}, err
	}
	order.Status = types.Filled

	if err := m.finalize(b, order); err != nil {
		return types.SubmitResult{}, err
	}
	return types.SubmitResult{Order: *order, Trades: trades}, nil
}

// runLoop walks the opposite side of order's side in price-time priority
// (spec.md §4.4.2), producing trades. crossTest nil means MARKET policy:
// match top-down regardless of price.
func (m *Matcher) runLoop(b *book.Book, order *types.Order, crossTest func(money.Decimal) bool) ([]types.Trade, error) {
	var trades []types.Trade
	opposite := order.Side.Opposite()

	for {
		if order.Remaining().IsZero() {
			break
		}
		price, ok := b.PeekBest(opposite)
		if !ok {
			break
		}
		if crossTest != nil && !crossTest(price) {
			break
		}
		front, ok := b.BestQueueFront(opposite)
		if !ok {
			break
		}

		matchSize := money.Min(order.Remaining(), front.Remaining())

		trade := types.Trade{
			ID:        uuid.NewString(),
			MarketID:  order.MarketID,
			Side:      order.Side,
			Price:     front.Price,
			Size:      matchSize,
			CreatedAt: time.Now(),
		}
		// Incoming is always the conceptual buyer, regardless of side
		// (spec.md §4.4.1's buy/sell attribution).
		trade.BuyOrderID, trade.SellOrderID = order.ID, front.ID
		trade.BuyerID, trade.SellerID = order.OwnerID, front.OwnerID

		if err := m.store.CreateTrade(trade); err != nil {
			return nil, fmt.Errorf("matching: create trade: %w", err)
		}

		restingOrder, consumed := b.DecrementFront(opposite, matchSize)

		if err := m.store.SetOrderFilled(restingOrder.ID, restingOrder.Filled); err != nil {
			return nil, fmt.Errorf("matching: set counterparty filled: %w", err)
		}
		if consumed {
			if err := m.store.SetOrderStatus(restingOrder.ID, types.Filled); err != nil {
				return nil, fmt.Errorf("matching: set counterparty status: %w", err)
			}
		}

		order.Filled = order.Filled.Add(matchSize)
		if err := m.store.SetOrderFilled(order.ID, order.Filled); err != nil {
			return nil, fmt.Errorf("matching: set aggressor filled: %w", err)
		}

		if err := m.store.UpsertPosition(order.MarketID, order.OwnerID, trade.Side, matchSize, trade.Price); err != nil {
			return nil, fmt.Errorf("matching: upsert aggressor position: %w", err)
		}
		if err := m.store.UpsertPosition(order.MarketID, restingOrder.OwnerID, trade.Side.Opposite(), matchSize.Neg(), trade.Price); err != nil {
			return nil, fmt.Errorf("matching: upsert counterparty position: %w", err)
		}

		trades = append(trades, trade)
	}

	return trades, nil
}

// finalize persists the aggressor's terminal/resting status and
// republishes last prices for both sides (spec.md §4.4.5).
func (m *Matcher) finalize(b *book.Book, order *types.Order) error {
	if err := m.store.SetOrderStatus(order.ID, order.Status); err != nil {
		return fmt.Errorf("matching: set aggressor status: %w", err)
	}

	yes := money.MustParse("0.5")
	if p, ok := b.PeekBest(types.YES); ok {
		yes = p
	}
	no := money.MustParse("0.5")
	if p, ok := b.PeekBest(types.NO); ok {
		no = p
	}
	if err := m.store.SetLastPrices(order.MarketID, yes, no); err != nil {
		return fmt.Errorf("matching: set last prices: %w", err)
	}
	return nil
}
