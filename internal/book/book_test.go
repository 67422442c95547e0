package book

import (
	"testing"
	"time"

	"github.com/jamhan/predictionmarket/internal/money"
	"github.com/jamhan/predictionmarket/pkg/types"
)

func mkOrder(id string, side types.Side, price, size string, createdAt time.Time) *types.Order {
	return &types.Order{
		ID:        id,
		Side:      side,
		Type:      types.Limit,
		Price:     money.MustParse(price),
		Size:      money.MustParse(size),
		Filled:    money.Zero,
		Status:    types.Pending,
		CreatedAt: createdAt,
	}
}

func TestInsertAndPeekBestDescending(t *testing.T) {
	t.Parallel()
	b := New("m1")
	t0 := time.Now()

	b.Insert(mkOrder("o1", types.YES, "0.40", "10", t0))
	b.Insert(mkOrder("o2", types.YES, "0.60", "10", t0.Add(time.Second)))
	b.Insert(mkOrder("o3", types.YES, "0.50", "10", t0.Add(2*time.Second)))

	price, ok := b.PeekBest(types.YES)
	if !ok {
		t.Fatal("expected non-empty book")
	}
	if !price.Equal(money.MustParse("0.60")) {
		t.Errorf("best price = %s, want 0.60", price)
	}
}

func TestTimePriorityWithinLevel(t *testing.T) {
	t.Parallel()
	b := New("m1")
	t0 := time.Now()

	first := mkOrder("first", types.NO, "0.40", "10", t0)
	second := mkOrder("second", types.NO, "0.40", "10", t0.Add(time.Second))
	b.Insert(first)
	b.Insert(second)

	front, ok := b.BestQueueFront(types.NO)
	if !ok {
		t.Fatal("expected front order")
	}
	if front.ID != "first" {
		t.Errorf("front = %s, want first (time priority)", front.ID)
	}
}

func TestDecrementFrontPopsWhenFilled(t *testing.T) {
	t.Parallel()
	b := New("m1")
	t0 := time.Now()

	b.Insert(mkOrder("o1", types.NO, "0.40", "10", t0))

	o, consumed := b.DecrementFront(types.NO, money.MustParse("10"))
	if !consumed {
		t.Fatal("expected order to be fully consumed")
	}
	if !o.Filled.Equal(money.MustParse("10")) {
		t.Errorf("Filled = %s, want 10", o.Filled)
	}
	if !b.IsEmpty(types.NO) {
		t.Error("expected book side empty after full decrement")
	}
}

func TestDecrementFrontPartial(t *testing.T) {
	t.Parallel()
	b := New("m1")
	t0 := time.Now()

	b.Insert(mkOrder("o1", types.NO, "0.40", "10", t0))

	o, consumed := b.DecrementFront(types.NO, money.MustParse("4"))
	if consumed {
		t.Fatal("did not expect full consumption")
	}
	if !o.Remaining().Equal(money.MustParse("6")) {
		t.Errorf("Remaining = %s, want 6", o.Remaining())
	}
	if b.IsEmpty(types.NO) {
		t.Error("order should still be resting")
	}
}

func TestCancelRemovesFromMidQueue(t *testing.T) {
	t.Parallel()
	b := New("m1")
	t0 := time.Now()

	b.Insert(mkOrder("o1", types.YES, "0.40", "10", t0))
	b.Insert(mkOrder("o2", types.YES, "0.40", "10", t0.Add(time.Second)))
	b.Insert(mkOrder("o3", types.YES, "0.40", "10", t0.Add(2*time.Second)))

	if _, err := b.Cancel("o2"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	front, _ := b.BestQueueFront(types.YES)
	if front.ID != "o1" {
		t.Errorf("front after cancel = %s, want o1", front.ID)
	}

	if _, err := b.Cancel("o2"); err == nil {
		t.Error("expected error cancelling already-removed order")
	}
}

func TestSnapshotOrdering(t *testing.T) {
	t.Parallel()
	b := New("m1")
	t0 := time.Now()

	b.Insert(mkOrder("lo", types.YES, "0.30", "10", t0))
	b.Insert(mkOrder("hi", types.YES, "0.70", "5", t0.Add(time.Second)))

	snap := b.Snapshot()
	if len(snap.Yes) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(snap.Yes))
	}
	if !snap.Yes[0].Price.Equal(money.MustParse("0.70")) {
		t.Errorf("first level = %s, want 0.70 (descending)", snap.Yes[0].Price)
	}
}

func TestNOSideSortsAscending(t *testing.T) {
	t.Parallel()
	b := New("m1")
	t0 := time.Now()

	b.Insert(mkOrder("lo", types.NO, "0.30", "10", t0))
	b.Insert(mkOrder("hi", types.NO, "0.70", "5", t0.Add(time.Second)))

	price, ok := b.PeekBest(types.NO)
	if !ok {
		t.Fatal("expected non-empty book")
	}
	if !price.Equal(money.MustParse("0.30")) {
		t.Errorf("best NO price = %s, want 0.30 (ascending, lowest first)", price)
	}

	snap := b.Snapshot()
	if len(snap.No) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(snap.No))
	}
	if !snap.No[0].Price.Equal(money.MustParse("0.30")) {
		t.Errorf("first NO level = %s, want 0.30 (ascending)", snap.No[0].Price)
	}
}

func TestMaxFillableStopsAtNonCrossingLevel(t *testing.T) {
	t.Parallel()
	b := New("m1")
	t0 := time.Now()

	// NO resting levels at 0.50 and 0.70; incoming YES at 0.60 crosses only 0.50.
	b.Insert(mkOrder("s1", types.NO, "0.50", "30", t0))
	b.Insert(mkOrder("s2", types.NO, "0.70", "100", t0.Add(time.Second)))

	incomingPrice := money.MustParse("0.60")
	fillable := b.MaxFillable(types.YES, money.MustParse("100"), func(restPrice money.Decimal) bool {
		return incomingPrice.GTE(restPrice)
	})

	if !fillable.Equal(money.MustParse("30")) {
		t.Errorf("MaxFillable = %s, want 30", fillable)
	}
}
