package api

import (
	"time"

	"github.com/jamhan/predictionmarket/internal/money"
	"github.com/jamhan/predictionmarket/pkg/types"
)

// orderBookUpdateEvent builds the ORDER_BOOK_UPDATE frame for a market's
// current snapshot (spec.md §6 Subscribe).
func orderBookUpdateEvent(marketID string, snap types.BookSnapshot) types.StreamEvent {
	return types.StreamEvent{
		Type:      types.EventOrderBookUpdate,
		Timestamp: time.Now(),
		MarketID:  marketID,
		Data: types.OrderBookUpdatePayload{
			Yes: toWireLevels(snap.Yes),
			No:  toWireLevels(snap.No),
		},
	}
}

func toWireLevels(levels []types.PriceLevel) []types.WireLevel {
	out := make([]types.WireLevel, len(levels))
	for i, lvl := range levels {
		out[i] = types.WireLevel{
			Price:    lvl.Price.String(),
			Size:     lvl.Size.String(),
			OrderIDs: lvl.OrderIDs,
		}
	}
	return out
}

// tradeUpdateEvents builds one TRADE_UPDATE frame per trade produced by
// a submission.
func tradeUpdateEvents(marketID string, trades []types.Trade) []types.StreamEvent {
	out := make([]types.StreamEvent, len(trades))
	for i, tr := range trades {
		out[i] = types.StreamEvent{
			Type:      types.EventTradeUpdate,
			Timestamp: tr.CreatedAt,
			MarketID:  marketID,
			Data: types.TradeUpdatePayload{
				ID:          tr.ID,
				BuyOrderID:  tr.BuyOrderID,
				SellOrderID: tr.SellOrderID,
				Side:        string(tr.Side),
				Price:       tr.Price.String(),
				Size:        tr.Size.String(),
			},
		}
	}
	return out
}

// marketUpdateEvent builds the MARKET_UPDATE frame for the new
// top-of-book prices after a submission (spec.md §4.4.5).
func marketUpdateEvent(marketID string, yes, no money.Decimal) types.StreamEvent {
	return types.StreamEvent{
		Type:      types.EventMarketUpdate,
		Timestamp: time.Now(),
		MarketID:  marketID,
		Data: types.MarketUpdatePayload{
			YesPrice: yes.String(),
			NoPrice:  no.String(),
		},
	}
}
