package engine

import (
	"github.com/akshitanchan/marketsim/internal/domain"
)

// Agent is the capability the engine needs from a strategy. The engine never
// depends on concrete agent types.
type Agent interface {
	ID() string
	// GetAction returns zero or more actions, applied in order.
	GetAction(state domain.MarketState) []domain.Action
	// OnTrade is called once per fill the agent participates in, with the
	// side the agent was on.
	OnTrade(trade domain.Trade, side domain.Side)
}

// InventoryReporter is implemented by agents whose net position should be
// recorded on every snapshot.
type InventoryReporter interface {
	Inventory() int64
}

// ActionReporter is implemented by agents that want to learn the outcome of
// each action, including the order id assigned to accepted placements.
type ActionReporter interface {
	OnActionResult(result ActionResult)
}

// ActionResult is the engine's reply to one action.
type ActionResult struct {
	Action  domain.Action
	OrderID uint64 // assigned id for placements; zero on rejection or for cancels
	Resting bool   // a limit remainder is on the book under OrderID
	Trades  []domain.Trade
	Err     error
}

// OK reports whether the action was accepted.
func (r ActionResult) OK() bool {
	return r.Err == nil
}
