package orderbook

import (
	"errors"
	"testing"

	"github.com/akshitanchan/marketsim/internal/domain"
)

func makeLimit(id uint64, side domain.Side, price, qty int64) *domain.Order {
	return &domain.Order{
		ID:      id,
		AgentID: "test",
		Side:    side,
		Type:    domain.LimitOrder,
		Price:   price,
		Qty:     qty,
	}
}

func makeMarket(id uint64, side domain.Side, qty int64) *domain.Order {
	return &domain.Order{
		ID:      id,
		AgentID: "test",
		Side:    side,
		Type:    domain.MarketOrder,
		Qty:     qty,
	}
}

func mustSubmit(t *testing.T, book *Book, o *domain.Order) []domain.Trade {
	t.Helper()
	trades, err := book.Submit(o)
	if err != nil {
		t.Fatalf("submit %d: %v", o.ID, err)
	}
	book.AssertInvariants()
	return trades
}

// TestFIFOWithinPriceLevel verifies that orders at the same price are
// filled in arrival (insertion) order.
func TestFIFOWithinPriceLevel(t *testing.T) {
	book := New()

	mustSubmit(t, book, makeLimit(1, domain.Sell, 1000, 10))
	mustSubmit(t, book, makeLimit(2, domain.Sell, 1000, 10))
	mustSubmit(t, book, makeLimit(3, domain.Sell, 1000, 10))

	// A buy market order for 15 should fill orders 1 (10) and 2 (5 partial).
	trades := mustSubmit(t, book, makeMarket(100, domain.Buy, 15))

	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].SellOrderID != 1 || trades[0].Qty != 10 {
		t.Errorf("trade 0: expected sell order 1 qty 10, got sell %d qty %d",
			trades[0].SellOrderID, trades[0].Qty)
	}
	if trades[1].SellOrderID != 2 || trades[1].Qty != 5 {
		t.Errorf("trade 1: expected sell order 2 qty 5, got sell %d qty %d",
			trades[1].SellOrderID, trades[1].Qty)
	}

	if pos := book.QueuePosition(2); pos != 1 {
		t.Errorf("order 2 should be at position 1, got %d", pos)
	}
	if pos := book.QueuePosition(3); pos != 2 {
		t.Errorf("order 3 should be at position 2, got %d", pos)
	}
}

// TestMarketOrderSweepsMultipleLevels verifies that a large market order
// sweeps across multiple price levels.
func TestMarketOrderSweepsMultipleLevels(t *testing.T) {
	book := New()

	mustSubmit(t, book, makeLimit(1, domain.Sell, 100, 5))
	mustSubmit(t, book, makeLimit(2, domain.Sell, 101, 5))
	mustSubmit(t, book, makeLimit(3, domain.Sell, 102, 5))

	trades := mustSubmit(t, book, makeMarket(100, domain.Buy, 12))

	if len(trades) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(trades))
	}
	if trades[0].Price != 100 || trades[0].Qty != 5 {
		t.Errorf("trade 0: expected price 100 qty 5, got %d/%d", trades[0].Price, trades[0].Qty)
	}
	if trades[1].Price != 101 || trades[1].Qty != 5 {
		t.Errorf("trade 1: expected price 101 qty 5, got %d/%d", trades[1].Price, trades[1].Qty)
	}
	if trades[2].Price != 102 || trades[2].Qty != 2 {
		t.Errorf("trade 2: expected price 102 qty 2, got %d/%d", trades[2].Price, trades[2].Qty)
	}

	l2 := book.L2(5)
	if len(l2.Asks) != 1 || l2.Asks[0].Price != 102 || l2.Asks[0].Qty != 3 {
		t.Errorf("expected ask ladder [102/3], got %+v", l2.Asks)
	}
}

// TestMarketRemainderIsDiscarded verifies that market orders never rest.
func TestMarketRemainderIsDiscarded(t *testing.T) {
	book := New()
	mustSubmit(t, book, makeLimit(1, domain.Sell, 100, 4))

	o := makeMarket(2, domain.Buy, 10)
	trades := mustSubmit(t, book, o)

	if len(trades) != 1 || trades[0].Qty != 4 {
		t.Fatalf("expected a single fill of 4, got %+v", trades)
	}
	if o.Remaining != 6 {
		t.Errorf("expected 6 unfilled, got %d", o.Remaining)
	}
	if _, ok := book.Lookup(2); ok {
		t.Error("market order remainder must not rest")
	}
	if bids, asks := book.Depth(); bids != 0 || asks != 0 {
		t.Errorf("expected empty book, got %d/%d levels", bids, asks)
	}
}

// TestCancelRemovesRemainingOnly verifies that cancel removes the resting
// order without affecting previously filled quantity.
func TestCancelRemovesRemainingOnly(t *testing.T) {
	book := New()

	mustSubmit(t, book, makeLimit(1, domain.Sell, 100, 10))
	trades := mustSubmit(t, book, makeMarket(2, domain.Buy, 3))
	if len(trades) != 1 || trades[0].Qty != 3 {
		t.Fatalf("expected 1 trade of qty 3, got %d trades", len(trades))
	}

	canceled, err := book.Cancel(1)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	book.AssertInvariants()
	if canceled.Remaining != 7 {
		t.Errorf("expected 7 canceled, got %d", canceled.Remaining)
	}

	bidLevels, askLevels := book.Depth()
	if bidLevels != 0 || askLevels != 0 {
		t.Errorf("expected empty book, got %d bid levels, %d ask levels", bidLevels, askLevels)
	}
}

// TestCancelUnknownOrderSignalsNotFound verifies that canceling a
// non-existent order reports not-found and leaves the book intact.
func TestCancelUnknownOrderSignalsNotFound(t *testing.T) {
	book := New()
	mustSubmit(t, book, makeLimit(1, domain.Sell, 100, 10))

	if _, err := book.Cancel(999); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	book.AssertInvariants()

	_, askLevels := book.Depth()
	if askLevels != 1 {
		t.Errorf("expected 1 ask level, got %d", askLevels)
	}
}

// TestCancelFilledOrderSignalsNotFound covers a cancel racing a full fill.
func TestCancelFilledOrderSignalsNotFound(t *testing.T) {
	book := New()
	mustSubmit(t, book, makeLimit(1, domain.Sell, 100, 5))
	mustSubmit(t, book, makeMarket(2, domain.Buy, 5))

	if _, err := book.Cancel(1); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for filled order, got %v", err)
	}
	if _, err := book.Cancel(1); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("second cancel: expected ErrOrderNotFound, got %v", err)
	}
}

// TestCrossedLimitOrderMatchesImmediately verifies that a crossing limit
// order is matched immediately (no crossed book).
func TestCrossedLimitOrderMatchesImmediately(t *testing.T) {
	book := New()

	mustSubmit(t, book, makeLimit(1, domain.Sell, 100, 10))
	trades := mustSubmit(t, book, makeLimit(2, domain.Buy, 101, 5))

	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].Price != 100 {
		t.Errorf("expected trade at resting price 100, got %d", trades[0].Price)
	}
	if trades[0].Qty != 5 {
		t.Errorf("expected trade qty 5, got %d", trades[0].Qty)
	}
	if trades[0].AggressorOrderID != 2 || trades[0].PassiveOrderID != 1 {
		t.Errorf("unexpected attribution: %+v", trades[0])
	}
}

// TestCrossingLimitRemainderRests verifies that a limit order that exhausts
// the crossing liquidity rests its remainder at its own price.
func TestCrossingLimitRemainderRests(t *testing.T) {
	book := New()

	mustSubmit(t, book, makeLimit(1, domain.Sell, 100, 3))
	mustSubmit(t, book, makeLimit(2, domain.Sell, 105, 3))
	trades := mustSubmit(t, book, makeLimit(3, domain.Buy, 102, 10))

	if len(trades) != 1 || trades[0].Qty != 3 {
		t.Fatalf("expected only the 100 level to fill, got %+v", trades)
	}
	bid, ok := book.BestBid()
	if !ok || bid != 102 {
		t.Fatalf("expected resting bid at 102, got %d (%v)", bid, ok)
	}
	if l2 := book.L2(1); l2.Bids[0].Qty != 7 {
		t.Errorf("expected 7 resting, got %d", l2.Bids[0].Qty)
	}
}

// TestL1Updates verifies L1 is correct after various operations.
func TestL1Updates(t *testing.T) {
	book := New()

	l1 := book.L1(0)
	if l1.BestBid != nil || l1.BestAsk != nil || l1.Mid != nil {
		t.Error("expected absent L1 on empty book")
	}

	mustSubmit(t, book, makeLimit(1, domain.Buy, 99, 10))
	l1 = book.L1(0)
	if l1.BestBid == nil || *l1.BestBid != 99 {
		t.Errorf("expected bid 99, got %v", l1.BestBid)
	}
	if l1.Mid != nil {
		t.Error("mid must be absent with one side empty")
	}

	mustSubmit(t, book, makeLimit(2, domain.Sell, 102, 10))
	l1 = book.L1(0)
	if l1.Mid == nil || *l1.Mid != 100.5 {
		t.Errorf("expected mid 100.5, got %v", l1.Mid)
	}

	mustSubmit(t, book, makeLimit(3, domain.Buy, 100, 5))
	l1 = book.L1(0)
	if *l1.BestBid != 100 {
		t.Errorf("expected bid 100 after improvement, got %d", *l1.BestBid)
	}
	if *l1.Mid != 101 {
		t.Errorf("expected mid 101, got %f", *l1.Mid)
	}
}

// TestPartialFillKeepsOrderOnBook verifies that partially filled limit orders
// remain on the book with reduced quantity.
func TestPartialFillKeepsOrderOnBook(t *testing.T) {
	book := New()

	mustSubmit(t, book, makeLimit(1, domain.Sell, 100, 10))
	mustSubmit(t, book, makeMarket(2, domain.Buy, 3))

	o, ok := book.Lookup(1)
	if !ok || o.Remaining != 7 {
		t.Errorf("expected 7 remaining on order 1, got %+v", o)
	}
	if l2 := book.L2(1); l2.Asks[0].Qty != 7 {
		t.Errorf("expected 7 at ask level, got %d", l2.Asks[0].Qty)
	}
}

// TestEmptyBookMarketOrderNoTrades verifies a market order on an empty
// opposite side produces no trades.
func TestEmptyBookMarketOrderNoTrades(t *testing.T) {
	book := New()

	trades := mustSubmit(t, book, makeMarket(1, domain.Buy, 10))
	if len(trades) != 0 {
		t.Errorf("expected 0 trades on empty book, got %d", len(trades))
	}
}

// TestMultipleBidLevels verifies correct bid-side sorting and matching.
func TestMultipleBidLevels(t *testing.T) {
	book := New()

	mustSubmit(t, book, makeLimit(1, domain.Buy, 98, 10))
	mustSubmit(t, book, makeLimit(2, domain.Buy, 100, 5))
	mustSubmit(t, book, makeLimit(3, domain.Buy, 99, 8))

	if bid, _ := book.BestBid(); bid != 100 {
		t.Errorf("expected best bid 100, got %d", bid)
	}

	trades := mustSubmit(t, book, makeMarket(10, domain.Sell, 7))

	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].Price != 100 || trades[0].Qty != 5 {
		t.Errorf("trade 0: expected 100/5, got %d/%d", trades[0].Price, trades[0].Qty)
	}
	if trades[1].Price != 99 || trades[1].Qty != 2 {
		t.Errorf("trade 1: expected 99/2, got %d/%d", trades[1].Price, trades[1].Qty)
	}
}

// TestQueuePosition verifies queue position tracking.
func TestQueuePosition(t *testing.T) {
	book := New()

	mustSubmit(t, book, makeLimit(1, domain.Buy, 100, 10))
	mustSubmit(t, book, makeLimit(2, domain.Buy, 100, 5))
	mustSubmit(t, book, makeLimit(3, domain.Buy, 100, 8))

	for id, want := range map[uint64]int{1: 1, 2: 2, 3: 3, 999: 0} {
		if pos := book.QueuePosition(id); pos != want {
			t.Errorf("order %d position: expected %d, got %d", id, want, pos)
		}
	}

	if _, err := book.Cancel(2); err != nil {
		t.Fatal(err)
	}
	if pos := book.QueuePosition(3); pos != 2 {
		t.Errorf("order 3 should move up to 2 after cancel, got %d", pos)
	}
}

// TestL2DepthBounded verifies the ladder is truncated to the requested depth.
func TestL2DepthBounded(t *testing.T) {
	book := New()
	for i := int64(0); i < 10; i++ {
		mustSubmit(t, book, makeLimit(uint64(i+1), domain.Buy, 90+i, 1))
		mustSubmit(t, book, makeLimit(uint64(i+100), domain.Sell, 110+i, 2))
	}

	snap := book.Snapshot(3, 0)
	if len(snap.L2.Bids) != 3 || len(snap.L2.Asks) != 3 {
		t.Fatalf("expected 3 levels per side, got %d/%d", len(snap.L2.Bids), len(snap.L2.Asks))
	}
	if snap.L2.Bids[0].Price != 99 || snap.L2.Bids[2].Price != 97 {
		t.Errorf("bids not best-first: %+v", snap.L2.Bids)
	}
	if snap.L2.Asks[0].Price != 110 || snap.L2.Asks[2].Price != 112 {
		t.Errorf("asks not best-first: %+v", snap.L2.Asks)
	}
	if *snap.L1.Mid != 104.5 {
		t.Errorf("expected mid 104.5, got %f", *snap.L1.Mid)
	}
}

func TestSubmitRejectsInvalidOrders(t *testing.T) {
	book := New()
	mustSubmit(t, book, makeLimit(1, domain.Sell, 100, 5))

	cases := []struct {
		name  string
		order *domain.Order
		want  error
	}{
		{"zero qty", makeLimit(2, domain.Buy, 100, 0), ErrInvalidQuantity},
		{"negative qty", makeMarket(3, domain.Buy, -4), ErrInvalidQuantity},
		{"bad side", makeLimit(4, domain.Side(0), 100, 1), ErrInvalidSide},
		{"zero price", makeLimit(5, domain.Buy, 0, 1), ErrInvalidPrice},
		{"bad type", &domain.Order{ID: 6, Side: domain.Buy, Type: domain.OrderType(9), Qty: 1}, ErrInvalidType},
		{"duplicate id", makeLimit(1, domain.Buy, 90, 1), ErrDuplicateOrderID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			trades, err := book.Submit(tc.order)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(trades) != 0 {
				t.Fatalf("rejected order traded: %+v", trades)
			}
			book.AssertInvariants()
		})
	}

	if o, _ := book.Lookup(1); o.Remaining != 5 {
		t.Errorf("rejections must not touch resting liquidity, got %d", o.Remaining)
	}
}
