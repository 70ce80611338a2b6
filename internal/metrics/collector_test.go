package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/akshitanchan/marketsim/internal/domain"
	"github.com/akshitanchan/marketsim/internal/marketlog"
)

func l1At(sec int, mid float64) marketlog.L1Record {
	return marketlog.L1Record{Time: time.Duration(sec) * time.Second, Mid: domain.Ptr(mid)}
}

func TestCollectorAttributesBothSides(t *testing.T) {
	history := []marketlog.L1Record{l1At(0, 100), l1At(10, 104)}
	trades := []domain.Trade{
		{
			ID: 1, Price: 101, Qty: 4, Time: 2 * time.Second,
			BuyOrderID: 10, SellOrderID: 20, BuyAgent: "taker", SellAgent: "maker",
			PassiveOrderID: 20, AggressorOrderID: 10, AggressorSide: domain.Buy,
		},
		{
			ID: 2, Price: 99, Qty: 6, Time: 3 * time.Second,
			BuyOrderID: 30, SellOrderID: 40, BuyAgent: "maker", SellAgent: "taker",
			PassiveOrderID: 30, AggressorOrderID: 40, AggressorSide: domain.Sell,
		},
	}

	m := ComputeFromRun(trades, history)

	taker := m["taker"]
	if taker.Fills != 2 || taker.BoughtQty != 4 || taker.SoldQty != 6 || taker.NetQty != -2 {
		t.Fatalf("unexpected taker totals: %+v", taker)
	}
	if taker.PassiveQty != 0 || taker.MakerShare != 0 {
		t.Errorf("taker never rested, got passive %d share %v", taker.PassiveQty, taker.MakerShare)
	}
	// Bought 4 at 101 vs mid 100 (+1), sold 6 at 99 vs mid 100 (+1): slippage 1.
	if math.Abs(taker.AvgSlippage-1) > 1e-12 {
		t.Errorf("expected taker slippage 1, got %v", taker.AvgSlippage)
	}
	if math.Abs(taker.SlippageBps-100) > 1e-9 {
		t.Errorf("expected 100 bps, got %v", taker.SlippageBps)
	}

	maker := m["maker"]
	if maker.MakerShare != 1 {
		t.Errorf("expected maker share 1, got %v", maker.MakerShare)
	}
	if maker.AvgBuyPrice != 99 || maker.AvgSellPrice != 101 {
		t.Errorf("unexpected maker prices %v / %v", maker.AvgBuyPrice, maker.AvgSellPrice)
	}
	if maker.AvgSlippage != -1 {
		t.Errorf("maker captured the spread, expected slippage -1, got %v", maker.AvgSlippage)
	}

	if got := SortedIDs(m); len(got) != 2 || got[0] != "maker" || got[1] != "taker" {
		t.Errorf("unexpected ids %v", got)
	}
}

func TestCollectorAdverseSelection(t *testing.T) {
	history := []marketlog.L1Record{l1At(0, 100), l1At(6, 110)}
	trades := []domain.Trade{{
		Price: 100, Qty: 1, Time: time.Second,
		BuyOrderID: 1, SellOrderID: 2, BuyAgent: "B", SellAgent: "S",
		PassiveOrderID: 2, AggressorOrderID: 1, AggressorSide: domain.Buy,
	}}

	m := ComputeFromRun(trades, history)
	if m["B"].AvgPriceMoveAfterFill != 10 {
		t.Errorf("buyer should see +10 after fill, got %v", m["B"].AvgPriceMoveAfterFill)
	}
	if m["S"].AvgPriceMoveAfterFill != -10 {
		t.Errorf("seller should see -10 after fill, got %v", m["S"].AvgPriceMoveAfterFill)
	}
}

func TestCollectorSkipsUndefinedMids(t *testing.T) {
	history := []marketlog.L1Record{{Time: 0}, {Time: time.Second}}
	trades := []domain.Trade{{
		Price: 100, Qty: 1, Time: time.Second, BuyAgent: "B", SellAgent: "S",
		BuyOrderID: 1, SellOrderID: 2, PassiveOrderID: 2,
	}}

	m := ComputeFromRun(trades, history)
	if m["B"].AvgSlippage != 0 || m["B"].SlippageBps != 0 {
		t.Errorf("no mid available, expected zero slippage, got %+v", m["B"])
	}
}
