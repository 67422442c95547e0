package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jamhan/predictionmarket/internal/money"
	"github.com/jamhan/predictionmarket/internal/position"
	"github.com/jamhan/predictionmarket/pkg/types"
)

// FileStore persists every record kind (orders, trades, positions,
// last-prices) as one JSON file per record under its own subdirectory of
// the store's data directory, using the teacher's internal/store.Store
// write pattern: marshal, write to a .tmp sibling, then rename over the
// target so a crash never leaves a partially written file. All operations
// are mutex-protected, as in the teacher's store — one store is shared by
// every market, and the per-market locks do not serialize different
// markets' writes; the mutex also guards the directory-scan path used by
// ActiveOrders.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// Open creates (or reuses) a file-backed store rooted at dir, creating the
// per-record-kind subdirectories it needs.
func Open(dir string) (*FileStore, error) {
	for _, sub := range []string{"orders", "trades", "positions", "prices"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return &FileStore{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}

func (s *FileStore) readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func (s *FileStore) orderPath(orderID string) string {
	return filepath.Join(s.dir, "orders", orderID+".json")
}

func (s *FileStore) tradePath(tradeID string) string {
	return filepath.Join(s.dir, "trades", tradeID+".json")
}

func (s *FileStore) positionPath(marketID, userID string, side types.Side) string {
	name := fmt.Sprintf("%s_%s_%s.json", marketID, userID, side)
	return filepath.Join(s.dir, "positions", name)
}

func (s *FileStore) pricesPath(marketID string) string {
	return filepath.Join(s.dir, "prices", marketID+".json")
}

func (s *FileStore) CreateOrder(order types.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(s.orderPath(order.ID), order)
}

func (s *FileStore) CreateTrade(trade types.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(s.tradePath(trade.ID), trade)
}

func (s *FileStore) loadOrder(orderID string) (types.Order, bool, error) {
	var o types.Order
	ok, err := s.readJSON(s.orderPath(orderID), &o)
	return o, ok, err
}

func (s *FileStore) SetOrderFilled(orderID string, cumulativeFilled money.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok, err := s.loadOrder(orderID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("filestore: set order filled: %w", errUnknownOrder(orderID))
	}
	o.Filled = cumulativeFilled
	o.UpdatedAt = time.Now()
	return s.writeJSON(s.orderPath(orderID), o)
}

func (s *FileStore) SetOrderStatus(orderID string, status types.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok, err := s.loadOrder(orderID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("filestore: set order status: %w", errUnknownOrder(orderID))
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	return s.writeJSON(s.orderPath(orderID), o)
}

func (s *FileStore) UpsertPosition(marketID, userID string, side types.Side, deltaShares, price money.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.positionPath(marketID, userID, side)
	old := types.Position{MarketID: marketID, UserID: userID, Side: side}
	if _, err := s.readJSON(path, &old); err != nil {
		return err
	}
	updated := position.Apply(old, deltaShares, price, time.Now())
	return s.writeJSON(path, updated)
}

func (s *FileStore) SetLastPrices(marketID string, yesPrice, noPrice money.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(s.pricesPath(marketID), marketPrices{Yes: yesPrice, No: noPrice})
}

func (s *FileStore) ActiveOrders(marketID string) ([]types.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, "orders"))
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	var out []types.Order
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var o types.Order
		ok, err := s.readJSON(filepath.Join(s.dir, "orders", e.Name()), &o)
		if err != nil {
			return nil, err
		}
		if ok && o.MarketID == marketID && o.Status.Resting() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *FileStore) LastPrices(marketID string) (yesPrice, noPrice money.Decimal, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p marketPrices
	found, err := s.readJSON(s.pricesPath(marketID), &p)
	if err != nil {
		return money.Zero, money.Zero, false, err
	}
	if !found {
		return money.Zero, money.Zero, false, nil
	}
	return p.Yes, p.No, true, nil
}
