// Package agent implements rule-based market participants: a random trader,
// an inventory-skewed market maker, a fair-value noise trader and an SMA
// momentum trader.
package agent

import (
	"math/rand"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/akshitanchan/marketsim/internal/domain"
	"github.com/akshitanchan/marketsim/internal/engine"
)

// Base carries the bookkeeping shared by every strategy: position, cash,
// resting orders and the agent's own random stream.
type Base struct {
	id        string
	rng       *rand.Rand
	inventory int64
	cash      decimal.Decimal

	// Resting orders this agent has on the book, id -> remaining qty.
	active map[uint64]int64
}

// NewBase creates the shared state for an agent.
func NewBase(id string, seed int64, cash decimal.Decimal, inventory int64) Base {
	return Base{
		id:        id,
		rng:       rand.New(rand.NewSource(seed)),
		inventory: inventory,
		cash:      cash,
		active:    make(map[uint64]int64),
	}
}

func (b *Base) ID() string { return b.id }

// Inventory returns the net position in units.
func (b *Base) Inventory() int64 { return b.inventory }

// Cash returns the cash balance.
func (b *Base) Cash() decimal.Decimal { return b.cash }

// OnTrade updates position and cash, and the remaining size of the order
// that was hit if it is one of ours.
func (b *Base) OnTrade(trade domain.Trade, side domain.Side) {
	notional := decimal.NewFromInt(trade.Price).Mul(decimal.NewFromInt(trade.Qty))
	orderID := trade.SellOrderID
	if side == domain.Buy {
		b.inventory += trade.Qty
		b.cash = b.cash.Sub(notional)
		orderID = trade.BuyOrderID
	} else {
		b.inventory -= trade.Qty
		b.cash = b.cash.Add(notional)
	}

	if remaining, ok := b.active[orderID]; ok {
		remaining -= trade.Qty
		if remaining <= 0 {
			delete(b.active, orderID)
		} else {
			b.active[orderID] = remaining
		}
	}
}

// OnActionResult tracks resting placements and forgets canceled orders.
// Fills of the aggressing part are reported through OnTrade before the result
// arrives, so the resting size is derived from the result's trades.
func (b *Base) OnActionResult(res engine.ActionResult) {
	switch res.Action.Kind {
	case domain.ActionPlaceLimit:
		if !res.Resting {
			return
		}
		remaining := res.Action.Qty
		for _, tr := range res.Trades {
			remaining -= tr.Qty
		}
		b.active[res.OrderID] = remaining
	case domain.ActionCancel:
		// Not-found means the order already filled; either way it is gone.
		delete(b.active, res.Action.OrderID)
	}
}

// ActiveOrders returns resting order ids in ascending order.
func (b *Base) ActiveOrders() []uint64 {
	ids := make([]uint64, 0, len(b.active))
	for id := range b.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (b *Base) randomSide() domain.Side {
	if b.rng.Intn(2) == 0 {
		return domain.Buy
	}
	return domain.Sell
}

// canAfford reports whether cash covers qty units at price.
func (b *Base) canAfford(price float64, qty int64) bool {
	cost := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(qty))
	return b.cash.GreaterThanOrEqual(cost)
}

// referencePrice is the mid when defined, otherwise fallback.
func referencePrice(state domain.MarketState, fallback float64) float64 {
	if state.Mid != nil {
		return *state.Mid
	}
	return fallback
}
