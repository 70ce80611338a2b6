package orderbook

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/akshitanchan/marketsim/internal/domain"
)

type orderSpec struct {
	side   domain.Side
	market bool
	price  int64
	qty    int64
	cancel bool
}

func drawSpecs(t *rapid.T) []orderSpec {
	n := rapid.IntRange(1, 60).Draw(t, "n")
	specs := make([]orderSpec, n)
	for i := range specs {
		side := domain.Buy
		if rapid.Bool().Draw(t, fmt.Sprintf("sell-%d", i)) {
			side = domain.Sell
		}
		specs[i] = orderSpec{
			side:   side,
			market: rapid.IntRange(0, 4).Draw(t, fmt.Sprintf("kind-%d", i)) == 0,
			price:  rapid.Int64Range(90, 110).Draw(t, fmt.Sprintf("price-%d", i)),
			qty:    rapid.Int64Range(1, 20).Draw(t, fmt.Sprintf("qty-%d", i)),
			cancel: rapid.IntRange(0, 6).Draw(t, fmt.Sprintf("cancel-%d", i)) == 0,
		}
	}
	return specs
}

// Property: after every submit, best bid < best ask whenever both exist, and
// the book's structural invariants hold.
func TestPropertyNoCrossedBook(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := New()
		for i, s := range drawSpecs(t) {
			id := uint64(i + 1)
			if s.cancel && i > 0 {
				_, _ = book.Cancel(uint64(i))
			}
			o := makeLimit(id, s.side, s.price, s.qty)
			if s.market {
				o = makeMarket(id, s.side, s.qty)
			}
			if _, err := book.Submit(o); err != nil {
				t.Fatalf("submit %d: %v", id, err)
			}
			book.AssertInvariants()

			bid, hasBid := book.BestBid()
			ask, hasAsk := book.BestAsk()
			if hasBid && hasAsk && bid >= ask {
				t.Fatalf("crossed book after order %d: bid %d >= ask %d", id, bid, ask)
			}
		}
	})
}

// Property: fills touching an order never exceed its original quantity,
// and resting + filled + canceled accounts for every submitted unit.
func TestPropertyQuantityConservation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := New()
		orders := make(map[uint64]*domain.Order)
		filled := make(map[uint64]int64)
		canceled := make(map[uint64]int64)
		discarded := make(map[uint64]int64)

		for i, s := range drawSpecs(t) {
			id := uint64(i + 1)
			if s.cancel && i > 0 {
				if c, err := book.Cancel(uint64(i)); err == nil {
					canceled[c.ID] += c.Remaining
				}
			}
			o := makeLimit(id, s.side, s.price, s.qty)
			if s.market {
				o = makeMarket(id, s.side, s.qty)
			}
			orders[id] = o

			trades, err := book.Submit(o)
			if err != nil {
				t.Fatalf("submit %d: %v", id, err)
			}
			var perCall int64
			for _, tr := range trades {
				if tr.Qty <= 0 {
					t.Fatalf("non-positive trade qty %d", tr.Qty)
				}
				if tr.BuyOrderID == tr.SellOrderID {
					t.Fatalf("self-referencing trade %+v", tr)
				}
				filled[tr.BuyOrderID] += tr.Qty
				filled[tr.SellOrderID] += tr.Qty
				perCall += tr.Qty
			}
			if perCall > o.Qty {
				t.Fatalf("order %d: traded %d > original %d", id, perCall, o.Qty)
			}
			if o.Type == domain.MarketOrder {
				discarded[id] = o.Remaining
			}
		}

		for id, o := range orders {
			if filled[id] > o.Qty {
				t.Fatalf("order %d overfilled: %d > %d", id, filled[id], o.Qty)
			}
			var resting int64
			if r, ok := book.Lookup(id); ok {
				resting = r.Remaining
			}
			total := filled[id] + resting + canceled[id] + discarded[id]
			if total != o.Qty {
				t.Fatalf("order %d: filled %d + resting %d + canceled %d + discarded %d != qty %d",
					id, filled[id], resting, canceled[id], discarded[id], o.Qty)
			}
		}
	})
}

// Property: at one price level, earlier orders fill before later ones.
func TestPropertyFIFOAtLevel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := New()
		n := rapid.IntRange(2, 10).Draw(t, "resting")
		var total int64
		for i := 0; i < n; i++ {
			qty := rapid.Int64Range(1, 10).Draw(t, fmt.Sprintf("qty-%d", i))
			total += qty
			if _, err := book.Submit(makeLimit(uint64(i+1), domain.Sell, 100, qty)); err != nil {
				t.Fatal(err)
			}
		}
		take := rapid.Int64Range(1, total).Draw(t, "take")
		trades, err := book.Submit(makeMarket(1000, domain.Buy, take))
		if err != nil {
			t.Fatal(err)
		}
		for i := 1; i < len(trades); i++ {
			if trades[i].SellOrderID <= trades[i-1].SellOrderID {
				t.Fatalf("fill order violated FIFO: %d after %d", trades[i].SellOrderID, trades[i-1].SellOrderID)
			}
		}
		if trades[0].SellOrderID != 1 {
			t.Fatalf("first fill must hit the oldest order, got %d", trades[0].SellOrderID)
		}
	})
}
