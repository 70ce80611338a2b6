package agent

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/akshitanchan/marketsim/internal/domain"
)

// MarketMakerParams configures a MarketMaker.
type MarketMakerParams struct {
	BaseSpread    float64 // ticks between quotes before skew
	InventorySkew float64 // ticks of quote shift per unit of inventory
	MaxInventory  int64
	QuoteQty      int64
	Cash          decimal.Decimal
}

// DefaultMarketMakerParams returns the standard single-lot maker.
func DefaultMarketMakerParams() MarketMakerParams {
	return MarketMakerParams{
		BaseSpread:    1,
		InventorySkew: 0.1,
		MaxInventory:  20,
		QuoteQty:      1,
		Cash:          decimal.NewFromInt(100_000),
	}
}

// MarketMaker quotes both sides around the mid, shifting both quotes down
// when long and up when short. The ask moves with the bid rather than away
// from it, so a long maker leans toward selling instead of widening its
// spread. Every arrival cancels its previous quotes and requotes.
type MarketMaker struct {
	Base
	Params MarketMakerParams
}

// NewMarketMaker creates a market maker.
func NewMarketMaker(id string, seed int64, p MarketMakerParams) *MarketMaker {
	return &MarketMaker{
		Base:   NewBase(id, seed, p.Cash, 0),
		Params: p,
	}
}

// Quotes returns the bid and ask the maker would post for state, and false
// when the improved quotes would cross.
func (m *MarketMaker) Quotes(state domain.MarketState) (bid, ask int64, ok bool) {
	mid := referencePrice(state, DefaultReferencePrice)
	skew := m.Params.InventorySkew * float64(m.inventory)
	half := m.Params.BaseSpread / 2

	bid = int64(math.Floor(mid - half - skew))
	ask = int64(math.Ceil(mid + half - skew))

	if state.BestBid != nil && state.BestAsk != nil {
		// Step inside the spread when the book is two-sided.
		bid = max(*state.BestBid+1, bid)
		ask = min(*state.BestAsk-1, ask)
		if bid >= ask {
			return 0, 0, false
		}
	}
	if bid < 1 || ask <= bid {
		return 0, 0, false
	}
	return bid, ask, true
}

func (m *MarketMaker) GetAction(state domain.MarketState) []domain.Action {
	bid, ask, ok := m.Quotes(state)
	if !ok {
		return nil
	}

	var actions []domain.Action
	for _, id := range m.ActiveOrders() {
		actions = append(actions, domain.Cancel(id))
	}
	if m.inventory < m.Params.MaxInventory {
		actions = append(actions, domain.PlaceLimit(domain.Buy, bid, m.Params.QuoteQty))
	}
	if m.inventory > -m.Params.MaxInventory {
		actions = append(actions, domain.PlaceLimit(domain.Sell, ask, m.Params.QuoteQty))
	}
	return actions
}
