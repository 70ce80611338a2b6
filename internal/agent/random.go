package agent

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/akshitanchan/marketsim/internal/domain"
)

// DefaultReferencePrice is used by agents that need a price when the book
// has no mid.
const DefaultReferencePrice = 100.0

// Random sends a coin-flip mix of small market and near-mid limit orders.
type Random struct {
	Base
	MaxQty int64
}

// NewRandom creates a random agent with no cash constraint.
func NewRandom(id string, seed int64) *Random {
	return &Random{
		Base:   NewBase(id, seed, decimal.Zero, 0),
		MaxQty: 5,
	}
}

func (a *Random) GetAction(state domain.MarketState) []domain.Action {
	side := a.randomSide()
	qty := 1 + a.rng.Int63n(a.MaxQty)

	if a.rng.Float64() < 0.5 {
		return []domain.Action{domain.PlaceMarket(side, qty)}
	}

	offsets := [...]int64{-2, -1, 1, 2}
	ref := int64(math.Round(referencePrice(state, DefaultReferencePrice)))
	price := ref + offsets[a.rng.Intn(len(offsets))]
	if price < 1 {
		price = 1
	}
	return []domain.Action{domain.PlaceLimit(side, price, qty)}
}
