package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jamhan/predictionmarket/internal/config"
	"github.com/jamhan/predictionmarket/internal/engine"
	"github.com/jamhan/predictionmarket/internal/persistence"
)

func TestIsOriginAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		origin  string
		cfg     config.APIConfig
		reqHost string
		want    bool
	}{
		{
			name:    "empty origin is allowed",
			origin:  "",
			cfg:     config.APIConfig{},
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "localhost origin allowed by default",
			origin:  "http://localhost:8080",
			cfg:     config.APIConfig{},
			reqHost: "localhost:8080",
			want:    true,
		},
		{
			name:    "non-local origin denied by default",
			origin:  "https://evil.example",
			cfg:     config.APIConfig{},
			reqHost: "localhost:8080",
			want:    false,
		},
		{
			name:    "allowlist permits exact origin",
			origin:  "https://dash.example.com",
			cfg:     config.APIConfig{AllowedOrigins: []string{"https://dash.example.com"}},
			reqHost: "0.0.0.0:8080",
			want:    true,
		},
		{
			name:    "allowlist denies everything else",
			origin:  "https://evil.example",
			cfg:     config.APIConfig{AllowedOrigins: []string{"https://dash.example.com"}},
			reqHost: "0.0.0.0:8080",
			want:    false,
		},
		{
			name:    "same host allowed when no allowlist",
			origin:  "https://mm.internal:8080",
			cfg:     config.APIConfig{},
			reqHost: "mm.internal:8080",
			want:    true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isOriginAllowed(tt.origin, tt.cfg, tt.reqHost); got != tt.want {
				t.Fatalf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	store := persistence.NewMemStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(store, nil, log)
	hub := NewHub(log)
	return NewHandlers(eng, config.APIConfig{}, hub, log)
}

func TestHandleSubmitOrderCreatesRestingOrder(t *testing.T) {
	t.Parallel()
	h := newTestHandlers(t)

	body, _ := json.Marshal(SubmitOrderRequest{
		MarketID: "m1",
		UserID:   "alice",
		Side:     "YES",
		Type:     "LIMIT",
		Price:    "0.40",
		Size:     "10",
	})
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleSubmitOrder(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp SubmitOrderResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Status != "PENDING" {
		t.Fatalf("status = %q, want PENDING", resp.Status)
	}
	if len(resp.Trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(resp.Trades))
	}
}

func TestHandleSubmitOrderRejectsBadSide(t *testing.T) {
	t.Parallel()
	h := newTestHandlers(t)

	body, _ := json.Marshal(SubmitOrderRequest{
		MarketID: "m1",
		UserID:   "alice",
		Side:     "MAYBE",
		Type:     "LIMIT",
		Price:    "0.40",
		Size:     "10",
	})
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleSubmitOrder(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleSubmitOrderMatchesRestingOrder(t *testing.T) {
	t.Parallel()
	h := newTestHandlers(t)

	mkBody := func(req SubmitOrderRequest) *bytes.Reader {
		b, _ := json.Marshal(req)
		return bytes.NewReader(b)
	}

	restReq := httptest.NewRequest(http.MethodPost, "/orders", mkBody(SubmitOrderRequest{
		MarketID: "m1", UserID: "maker", Side: "NO", Type: "LIMIT", Price: "0.60", Size: "10",
	}))
	restRec := httptest.NewRecorder()
	h.HandleSubmitOrder(restRec, restReq)
	if restRec.Code != http.StatusOK {
		t.Fatalf("resting order status = %d", restRec.Code)
	}

	takeReq := httptest.NewRequest(http.MethodPost, "/orders", mkBody(SubmitOrderRequest{
		MarketID: "m1", UserID: "taker", Side: "YES", Type: "LIMIT", Price: "0.60", Size: "10",
	}))
	takeRec := httptest.NewRecorder()
	h.HandleSubmitOrder(takeRec, takeReq)
	if takeRec.Code != http.StatusOK {
		t.Fatalf("taker order status = %d, body = %s", takeRec.Code, takeRec.Body.String())
	}

	var resp SubmitOrderResponse
	if err := json.Unmarshal(takeRec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Status != "FILLED" {
		t.Fatalf("status = %q, want FILLED", resp.Status)
	}
	if len(resp.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(resp.Trades))
	}
	if resp.Trades[0].Price != "0.6" {
		t.Fatalf("trade price = %q, want 0.6", resp.Trades[0].Price)
	}
}

func TestHandleSnapshotReturnsEmptyBookForUnknownMarket(t *testing.T) {
	t.Parallel()
	h := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/markets/nonexistent/snapshot", nil)
	req.SetPathValue("id", "nonexistent")
	rec := httptest.NewRecorder()

	h.HandleSnapshot(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp SnapshotResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Yes) != 0 || len(resp.No) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", resp)
	}
}

func TestHandleCancelOrderRemovesRestingOrder(t *testing.T) {
	t.Parallel()
	h := newTestHandlers(t)

	body, _ := json.Marshal(SubmitOrderRequest{
		MarketID: "m1", UserID: "alice", Side: "YES", Type: "LIMIT", Price: "0.40", Size: "10",
	})
	submitReq := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body))
	submitRec := httptest.NewRecorder()
	h.HandleSubmitOrder(submitRec, submitReq)

	var submitResp SubmitOrderResponse
	if err := json.Unmarshal(submitRec.Body.Bytes(), &submitResp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	cancelReq := httptest.NewRequest(http.MethodDelete, "/orders/"+submitResp.OrderID+"?market_id=m1&side=YES", nil)
	cancelReq.SetPathValue("id", submitResp.OrderID)
	cancelRec := httptest.NewRecorder()

	h.HandleCancelOrder(cancelRec, cancelReq)

	if cancelRec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", cancelRec.Code, cancelRec.Body.String())
	}

	snapReq := httptest.NewRequest(http.MethodGet, "/markets/m1/snapshot", nil)
	snapReq.SetPathValue("id", "m1")
	snapRec := httptest.NewRecorder()
	h.HandleSnapshot(snapRec, snapReq)

	var snap SnapshotResponse
	if err := json.Unmarshal(snapRec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if len(snap.Yes) != 0 {
		t.Fatalf("expected cancelled order removed from book, got %+v", snap.Yes)
	}
}

func TestHandleCancelOrderRejectsMissingParams(t *testing.T) {
	t.Parallel()
	h := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodDelete, "/orders/abc", nil)
	req.SetPathValue("id", "abc")
	rec := httptest.NewRecorder()

	h.HandleCancelOrder(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
