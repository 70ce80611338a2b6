// Package domain defines the core types used across the simulation:
// orders, trades, book views, agent actions, and scheduler events
package domain

import (
	"fmt"
	"strings"
	"time"
)

// --- Time representation ---
// Simulated time is an offset from run start. It is integer nanoseconds so
// that ordering comparisons are exact and runs are reproducible

type Time = time.Duration

// Seconds converts a float number of simulated seconds to Time
func Seconds(s float64) Time {
	return Time(s * float64(time.Second))
}

// --- Enums ---

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is Buy or Sell
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

func (s Side) Opposite() Side {
	return -s
}

// MarshalJSON serializes Side as a human-readable string
func (s Side) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON deserializes Side from a string or integer
func (s *Side) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	switch str {
	case "BUY", "1":
		*s = Buy
	case "SELL", "-1":
		*s = Sell
	default:
		return fmt.Errorf("unknown Side: %s", str)
	}
	return nil
}

type OrderType int8

const (
	LimitOrder OrderType = iota
	MarketOrder
)

func (t OrderType) String() string {
	switch t {
	case LimitOrder:
		return "LIMIT"
	case MarketOrder:
		return "MARKET"
	default:
		return "UNKNOWN"
	}
}

// EventKind discriminates scheduler events
type EventKind int8

const (
	EventAgentArrival EventKind = iota
	EventSnapshot
	EventFairValueUpdate
	EventMarketClose
	EventOrderSubmission
)

func (k EventKind) String() string {
	switch k {
	case EventAgentArrival:
		return "AGENT_ARRIVAL"
	case EventSnapshot:
		return "SNAPSHOT"
	case EventFairValueUpdate:
		return "FAIR_VALUE_UPDATE"
	case EventMarketClose:
		return "MARKET_CLOSE"
	case EventOrderSubmission:
		return "ORDER_SUBMISSION"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON serializes EventKind as a human-readable string
func (k EventKind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

type ActionKind int8

const (
	ActionPlaceLimit ActionKind = iota
	ActionPlaceMarket
	ActionCancel
)

func (k ActionKind) String() string {
	switch k {
	case ActionPlaceLimit:
		return "PLACE_LIMIT"
	case ActionPlaceMarket:
		return "PLACE_MARKET"
	case ActionCancel:
		return "CANCEL"
	default:
		return "UNKNOWN"
	}
}

// --- Core structures ---

// Order is a limit or market instruction. Once submitted it is owned by the
// order book and mutated only by fills and cancels
type Order struct {
	ID        uint64    `json:"id"`
	AgentID   string    `json:"agent_id"`
	Side      Side      `json:"side"`
	Type      OrderType `json:"type"`
	Price     int64     `json:"price,omitempty"` // ticks; limit orders only
	Qty       int64     `json:"qty"`
	Remaining int64     `json:"remaining"`
	Time      Time      `json:"time"`
}

// IsFilled returns true if the order has no remaining quantity
func (o *Order) IsFilled() bool {
	return o.Remaining <= 0
}

// Trade is a single fill between a resting and an aggressing order
type Trade struct {
	ID          uint64 `json:"id"`
	Price       int64  `json:"price"` // always the resting order's price
	Qty         int64  `json:"qty"`
	Time        Time   `json:"time"`
	BuyOrderID  uint64 `json:"buy_order_id"`
	SellOrderID uint64 `json:"sell_order_id"`
	BuyAgent    string `json:"buy_agent"`
	SellAgent   string `json:"sell_agent"`

	PassiveOrderID   uint64 `json:"passive_order_id"`
	AggressorOrderID uint64 `json:"aggressor_order_id"`
	AggressorSide    Side   `json:"aggressor_side"`
}

// Level is one aggregated price level of an L2 ladder
type Level struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// L1 is the best bid / best ask / mid summary. Absent values are nil
type L1 struct {
	Time    Time     `json:"time"`
	BestBid *int64   `json:"best_bid"`
	BestAsk *int64   `json:"best_ask"`
	Mid     *float64 `json:"mid"`
}

// NewL1 builds an L1 view, deriving Mid only when both sides are present
func NewL1(now Time, bid, ask *int64) L1 {
	l1 := L1{Time: now, BestBid: bid, BestAsk: ask}
	if bid != nil && ask != nil {
		mid := (float64(*bid) + float64(*ask)) / 2
		l1.Mid = &mid
	}
	return l1
}

// L2 is a depth-bounded ladder, best price first on both sides
type L2 struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

// Snapshot pairs the L1 and L2 views of the book at one instant
type Snapshot struct {
	L1 L1 `json:"l1"`
	L2 L2 `json:"l2"`
}

// MarketState is the view handed to agents on arrival
type MarketState struct {
	Time      Time
	Mid       *float64
	BestBid   *int64
	BestAsk   *int64
	L2        L2
	FairValue *float64 // nil when the run has no fair-value process
}

// Action is one agent instruction. Exactly the fields relevant to Kind are read
type Action struct {
	Kind    ActionKind `json:"kind"`
	Side    Side       `json:"side,omitempty"`
	Price   int64      `json:"price,omitempty"`
	Qty     int64      `json:"qty,omitempty"`
	OrderID uint64     `json:"order_id,omitempty"`
}

// PlaceLimit builds a limit-order action
func PlaceLimit(side Side, price, qty int64) Action {
	return Action{Kind: ActionPlaceLimit, Side: side, Price: price, Qty: qty}
}

// PlaceMarket builds a market-order action
func PlaceMarket(side Side, qty int64) Action {
	return Action{Kind: ActionPlaceMarket, Side: side, Qty: qty}
}

// Cancel builds a cancel action for a previously placed order
func Cancel(orderID uint64) Action {
	return Action{Kind: ActionCancel, OrderID: orderID}
}

func (a Action) String() string {
	switch a.Kind {
	case ActionPlaceLimit:
		return fmt.Sprintf("PlaceLimit(%s, %d, %d)", a.Side, a.Price, a.Qty)
	case ActionPlaceMarket:
		return fmt.Sprintf("PlaceMarket(%s, %d)", a.Side, a.Qty)
	case ActionCancel:
		return fmt.Sprintf("Cancel(%d)", a.OrderID)
	default:
		return "Action(UNKNOWN)"
	}
}

// Event is the unit of work in the scheduler. It is immutable once scheduled
type Event struct {
	Seq  uint64    `json:"seq"` // set by the scheduler; FIFO tie-break
	Time Time      `json:"time"`
	Kind EventKind `json:"kind"`

	// AgentID is set for AgentArrival and OrderSubmission
	AgentID string `json:"agent_id,omitempty"`
	// Interval is the reschedule cadence for Snapshot and FairValueUpdate
	Interval Time `json:"interval,omitempty"`
	// Action is set for OrderSubmission
	Action *Action `json:"action,omitempty"`
}

// Ptr returns a pointer to a copy of v
func Ptr[T any](v T) *T {
	return &v
}
