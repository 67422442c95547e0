package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/jamhan/predictionmarket/internal/config"
	"github.com/jamhan/predictionmarket/internal/engine"
	"github.com/jamhan/predictionmarket/internal/money"
	"github.com/jamhan/predictionmarket/pkg/types"
)

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	engine *engine.Engine
	cfg    config.APIConfig
	hub    *Hub
	logger *slog.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(eng *engine.Engine, cfg config.APIConfig, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		engine: eng,
		cfg:    cfg,
		hub:    hub,
		logger: logger.With("component", "api-handlers"),
	}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleSubmitOrder handles POST /orders.
func (h *Handlers) HandleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	order, err := decodeOrder(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.engine.Submit(order)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidOrder):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, engine.ErrMarketUnknown):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			h.logger.Error("submit failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	h.publishSubmitResult(order.MarketID, res)
	writeJSON(w, http.StatusOK, toSubmitOrderResponse(res))
}

// HandleCancelOrder handles DELETE /orders/{id}?market_id=...&side=....
func (h *Handlers) HandleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("id")
	marketID := r.URL.Query().Get("market_id")
	side := types.Side(strings.ToUpper(r.URL.Query().Get("side")))
	if orderID == "" || marketID == "" || (side != types.YES && side != types.NO) {
		writeError(w, http.StatusBadRequest, "market_id and side query parameters are required")
		return
	}

	if err := h.engine.Cancel(marketID, orderID, side); err != nil {
		h.logger.Warn("cancel failed", "order_id", orderID, "market_id", marketID, "error", err)
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	h.publishBookUpdate(marketID)
	writeJSON(w, http.StatusOK, CancelOrderResponse{OK: true})
}

// HandleSnapshot handles GET /markets/{id}/snapshot.
func (h *Handlers) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	marketID := r.PathValue("id")
	snap := h.engine.Snapshot(marketID)
	writeJSON(w, http.StatusOK, buildSnapshotResponse(snap))
}

// HandleWebSocket upgrades the connection and creates a new WebSocket
// client for the Subscribe stream (spec.md §6).
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return isOriginAllowed(req.Header.Get("Origin"), h.cfg, req.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	marketID := r.URL.Query().Get("market_id")
	client := NewClient(h.hub, conn, marketID)

	if marketID != "" {
		snap := h.engine.Snapshot(marketID)
		data, err := json.Marshal(orderBookUpdateEvent(marketID, snap))
		if err != nil {
			h.logger.Error("failed to marshal initial snapshot", "error", err)
			return
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn("failed to send initial snapshot to client")
		}
	}
}

func (h *Handlers) publishSubmitResult(marketID string, res types.SubmitResult) {
	h.publishBookUpdate(marketID)
	for _, evt := range tradeUpdateEvents(marketID, res.Trades) {
		h.hub.BroadcastEvent(evt)
	}
	yes, no, err := h.engine.LastPrices(marketID)
	if err != nil {
		h.logger.Warn("publish last prices", "market_id", marketID, "error", err)
		return
	}
	h.hub.BroadcastEvent(marketUpdateEvent(marketID, yes, no))
}

func (h *Handlers) publishBookUpdate(marketID string) {
	snap := h.engine.Snapshot(marketID)
	h.hub.BroadcastEvent(orderBookUpdateEvent(marketID, snap))
}

func decodeOrder(req SubmitOrderRequest) (*types.Order, error) {
	side := types.Side(strings.ToUpper(req.Side))
	if side != types.YES && side != types.NO {
		return nil, errors.New("side must be YES or NO")
	}

	typ := types.OrderType(strings.ToUpper(req.Type))
	switch typ {
	case types.Market, types.Limit, types.IOC, types.FOK:
	default:
		return nil, errors.New("type must be one of MARKET, LIMIT, IOC, FOK")
	}

	size, err := money.Parse(req.Size)
	if err != nil {
		return nil, errors.New("size must be a decimal string")
	}

	price := money.Zero
	if typ != types.Market {
		price, err = money.Parse(req.Price)
		if err != nil {
			return nil, errors.New("price must be a decimal string")
		}
	}

	if req.MarketID == "" || req.UserID == "" {
		return nil, errors.New("market_id and user_id are required")
	}

	return &types.Order{
		ID:       uuid.NewString(),
		MarketID: req.MarketID,
		OwnerID:  req.UserID,
		Side:     side,
		Type:     typ,
		Price:    price,
		Size:     size,
	}, nil
}

func toSubmitOrderResponse(res types.SubmitResult) SubmitOrderResponse {
	trades := make([]TradeWire, len(res.Trades))
	for i, tr := range res.Trades {
		trades[i] = TradeWire{
			ID:    tr.ID,
			Price: tr.Price.String(),
			Size:  tr.Size.String(),
			Side:  string(tr.Side),
		}
	}
	return SubmitOrderResponse{
		OrderID:      res.Order.ID,
		Status:       string(res.Order.Status),
		Filled:       res.Order.Filled.String(),
		Trades:       trades,
		Rejected:     res.Rejected,
		RejectReason: res.RejectReason,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func isOriginAllowed(origin string, cfg config.APIConfig, reqHost string) bool {
	if origin == "" {
		// Non-browser clients often omit Origin; keep this path functional.
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	normalized := normalizeOrigin(originURL.Scheme, originURL.Host)
	if normalized == "" {
		return false
	}

	if len(cfg.AllowedOrigins) > 0 {
		for _, allowed := range cfg.AllowedOrigins {
			u, err := url.Parse(allowed)
			if err != nil {
				continue
			}
			if normalized == normalizeOrigin(u.Scheme, u.Host) {
				return true
			}
		}
		return false
	}

	host := strings.ToLower(originURL.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	reqHostname := normalizeHost(reqHost)
	return reqHostname != "" && host == reqHostname
}

func normalizeOrigin(scheme, host string) string {
	if scheme == "" || host == "" {
		return ""
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host)
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostport)
}
