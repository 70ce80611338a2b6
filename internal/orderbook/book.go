// Package orderbook implements a single-instrument limit order book
// with price-time priority matching
package orderbook

import (
	"errors"
	"fmt"
	"sort"

	"github.com/akshitanchan/marketsim/internal/domain"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrInvalidSide      = errors.New("invalid side")
	ErrInvalidPrice     = errors.New("limit price must be positive")
	ErrInvalidType      = errors.New("invalid order type")
	ErrDuplicateOrderID = errors.New("duplicate order id")
	ErrOrderNotFound    = errors.New("order not found")
)

// PriceLevel holds all resting orders at a single price, in FIFO order.
// Qty is the sum of the orders' remaining quantities
type PriceLevel struct {
	Price  int64
	Qty    int64
	Orders []*domain.Order
}

// Book is a single-instrument limit order book
type Book struct {
	Bids []*PriceLevel // sorted descending by price (best bid first)
	Asks []*PriceLevel // sorted ascending by price (best ask first)

	// orderIndex maps order ID to the resting order for cancel lookup
	orderIndex map[uint64]*domain.Order

	nextTradeID uint64
}

// New creates an empty order book
func New() *Book {
	return &Book{
		orderIndex: make(map[uint64]*domain.Order),
	}
}

func validate(order *domain.Order) error {
	if order.Qty <= 0 {
		return fmt.Errorf("order %d: %w", order.ID, ErrInvalidQuantity)
	}
	if !order.Side.Valid() {
		return fmt.Errorf("order %d: %w: %d", order.ID, ErrInvalidSide, order.Side)
	}
	switch order.Type {
	case domain.LimitOrder:
		if order.Price <= 0 {
			return fmt.Errorf("order %d: %w: %d", order.ID, ErrInvalidPrice, order.Price)
		}
	case domain.MarketOrder:
	default:
		return fmt.Errorf("order %d: %w: %d", order.ID, ErrInvalidType, order.Type)
	}
	return nil
}

// Submit matches an incoming order against the opposite side and rests any
// limit remainder. Market remainders are discarded. The returned trades are
// in execution order
func (b *Book) Submit(order *domain.Order) ([]domain.Trade, error) {
	if err := validate(order); err != nil {
		return nil, err
	}
	if _, exists := b.orderIndex[order.ID]; exists {
		return nil, fmt.Errorf("order %d: %w", order.ID, ErrDuplicateOrderID)
	}

	order.Remaining = order.Qty
	trades := b.match(order)

	if order.Type == domain.LimitOrder && order.Remaining > 0 {
		b.insert(order)
	}
	return trades, nil
}

// Cancel removes a resting order and returns it with its unfilled quantity.
// Unknown or already-filled ids yield ErrOrderNotFound
func (b *Book) Cancel(orderID uint64) (*domain.Order, error) {
	target, exists := b.orderIndex[orderID]
	if !exists || target.Remaining <= 0 {
		return nil, fmt.Errorf("cancel %d: %w", orderID, ErrOrderNotFound)
	}

	b.removeOrder(target)
	delete(b.orderIndex, target.ID)
	return target, nil
}

// Lookup returns a resting order by id
func (b *Book) Lookup(orderID uint64) (*domain.Order, bool) {
	o, ok := b.orderIndex[orderID]
	return o, ok
}

// match fills the incoming order against the opposite side
func (b *Book) match(incoming *domain.Order) []domain.Trade {
	var trades []domain.Trade
	var oppositeSide *[]*PriceLevel

	if incoming.Side == domain.Buy {
		oppositeSide = &b.Asks
	} else {
		oppositeSide = &b.Bids
	}

	for incoming.Remaining > 0 && len(*oppositeSide) > 0 {
		level := (*oppositeSide)[0]

		if incoming.Type == domain.LimitOrder {
			if incoming.Side == domain.Buy && incoming.Price < level.Price {
				break
			}
			if incoming.Side == domain.Sell && incoming.Price > level.Price {
				break
			}
		}

		// Walk the level front to back
		filled := 0
		for _, resting := range level.Orders {
			if incoming.Remaining == 0 {
				break
			}
			fillQty := min(incoming.Remaining, resting.Remaining)

			incoming.Remaining -= fillQty
			resting.Remaining -= fillQty
			level.Qty -= fillQty

			b.nextTradeID++
			trade := domain.Trade{
				ID:               b.nextTradeID,
				Price:            level.Price,
				Qty:              fillQty,
				Time:             incoming.Time,
				PassiveOrderID:   resting.ID,
				AggressorOrderID: incoming.ID,
				AggressorSide:    incoming.Side,
			}
			if incoming.Side == domain.Buy {
				trade.BuyOrderID, trade.BuyAgent = incoming.ID, incoming.AgentID
				trade.SellOrderID, trade.SellAgent = resting.ID, resting.AgentID
			} else {
				trade.SellOrderID, trade.SellAgent = incoming.ID, incoming.AgentID
				trade.BuyOrderID, trade.BuyAgent = resting.ID, resting.AgentID
			}
			trades = append(trades, trade)

			if resting.Remaining == 0 {
				delete(b.orderIndex, resting.ID)
				filled++
			}
		}

		// Fully filled orders are always a prefix of the level
		if filled > 0 {
			clear(level.Orders[:filled])
			level.Orders = level.Orders[filled:]
		}

		if len(level.Orders) == 0 {
			*oppositeSide = (*oppositeSide)[1:]
		}
	}

	return trades
}

// insert places a resting order at the tail of its price level
func (b *Book) insert(order *domain.Order) {
	b.orderIndex[order.ID] = order

	if order.Side == domain.Buy {
		b.Bids = insertIntoLevels(b.Bids, order, true)
	} else {
		b.Asks = insertIntoLevels(b.Asks, order, false)
	}
}

func searchLevels(levels []*PriceLevel, price int64, descending bool) int {
	return sort.Search(len(levels), func(i int) bool {
		if descending {
			return levels[i].Price <= price
		}
		return levels[i].Price >= price
	})
}

// insertIntoLevels inserts an order into a sorted price level slice
// descending=true for bids, false for asks
func insertIntoLevels(levels []*PriceLevel, order *domain.Order, descending bool) []*PriceLevel {
	idx := searchLevels(levels, order.Price, descending)

	if idx < len(levels) && levels[idx].Price == order.Price {
		levels[idx].Orders = append(levels[idx].Orders, order)
		levels[idx].Qty += order.Remaining
		return levels
	}

	newLevel := &PriceLevel{
		Price:  order.Price,
		Qty:    order.Remaining,
		Orders: []*domain.Order{order},
	}
	levels = append(levels, nil)
	copy(levels[idx+1:], levels[idx:])
	levels[idx] = newLevel
	return levels
}

// removeOrder unlinks a resting order and prunes its level if emptied
func (b *Book) removeOrder(order *domain.Order) {
	levels := &b.Asks
	descending := false
	if order.Side == domain.Buy {
		levels = &b.Bids
		descending = true
	}

	i := searchLevels(*levels, order.Price, descending)
	if i >= len(*levels) || (*levels)[i].Price != order.Price {
		return
	}
	level := (*levels)[i]
	for j, o := range level.Orders {
		if o.ID == order.ID {
			level.Orders = append(level.Orders[:j], level.Orders[j+1:]...)
			level.Qty -= o.Remaining
			if len(level.Orders) == 0 {
				*levels = append((*levels)[:i], (*levels)[i+1:]...)
			}
			return
		}
	}
}

// BestBid returns the highest resting bid price
func (b *Book) BestBid() (int64, bool) {
	if len(b.Bids) == 0 {
		return 0, false
	}
	return b.Bids[0].Price, true
}

// BestAsk returns the lowest resting ask price
func (b *Book) BestAsk() (int64, bool) {
	if len(b.Asks) == 0 {
		return 0, false
	}
	return b.Asks[0].Price, true
}

// L1 returns the top-of-book summary. Empty sides are nil, as is the mid
// whenever either side is empty
func (b *Book) L1(now domain.Time) domain.L1 {
	var bid, ask *int64
	if p, ok := b.BestBid(); ok {
		bid = domain.Ptr(p)
	}
	if p, ok := b.BestAsk(); ok {
		ask = domain.Ptr(p)
	}
	return domain.NewL1(now, bid, ask)
}

// L2 returns up to depth aggregated levels per side
func (b *Book) L2(depth int) domain.L2 {
	return domain.L2{
		Bids: ladder(b.Bids, depth),
		Asks: ladder(b.Asks, depth),
	}
}

func ladder(levels []*PriceLevel, depth int) []domain.Level {
	n := min(depth, len(levels))
	if n <= 0 {
		return []domain.Level{}
	}
	out := make([]domain.Level, n)
	for i := 0; i < n; i++ {
		out[i] = domain.Level{Price: levels[i].Price, Qty: levels[i].Qty}
	}
	return out
}

// Snapshot returns the L1 and depth-bounded L2 views of the current book
func (b *Book) Snapshot(depth int, now domain.Time) domain.Snapshot {
	return domain.Snapshot{L1: b.L1(now), L2: b.L2(depth)}
}

// QueuePosition returns the position (1-based) of an order at its price level
// Returns 0 if the order is not found on the book
func (b *Book) QueuePosition(orderID uint64) int {
	order, exists := b.orderIndex[orderID]
	if !exists {
		return 0
	}

	levels, descending := b.Asks, false
	if order.Side == domain.Buy {
		levels, descending = b.Bids, true
	}

	i := searchLevels(levels, order.Price, descending)
	if i >= len(levels) || levels[i].Price != order.Price {
		return 0
	}
	for j, o := range levels[i].Orders {
		if o.ID == orderID {
			return j + 1
		}
	}
	return 0
}

// Depth returns the number of price levels on each side
func (b *Book) Depth() (bidLevels, askLevels int) {
	return len(b.Bids), len(b.Asks)
}

// TotalVolume returns total resting volume on each side
func (b *Book) TotalVolume() (bidVol, askVol int64) {
	for _, level := range b.Bids {
		bidVol += level.Qty
	}
	for _, level := range b.Asks {
		askVol += level.Qty
	}
	return
}

// RestingOrders returns the number of orders on the book
func (b *Book) RestingOrders() int {
	return len(b.orderIndex)
}

// AssertInvariants checks all book invariants. Panics on violation
func (b *Book) AssertInvariants() {
	// 1. Bids sorted descending
	for i := 1; i < len(b.Bids); i++ {
		if b.Bids[i].Price >= b.Bids[i-1].Price {
			panic(fmt.Sprintf("bid levels not sorted descending: %d >= %d at index %d",
				b.Bids[i].Price, b.Bids[i-1].Price, i))
		}
	}

	// 2. Asks sorted ascending
	for i := 1; i < len(b.Asks); i++ {
		if b.Asks[i].Price <= b.Asks[i-1].Price {
			panic(fmt.Sprintf("ask levels not sorted ascending: %d <= %d at index %d",
				b.Asks[i].Price, b.Asks[i-1].Price, i))
		}
	}

	// 3. No crossed book
	if len(b.Bids) > 0 && len(b.Asks) > 0 {
		if b.Bids[0].Price >= b.Asks[0].Price {
			panic(fmt.Sprintf("crossed book: best bid %d >= best ask %d",
				b.Bids[0].Price, b.Asks[0].Price))
		}
	}

	// 4. Levels non-empty, positive, and aggregated correctly
	count := 0
	for _, side := range [][]*PriceLevel{b.Bids, b.Asks} {
		for _, level := range side {
			if len(level.Orders) == 0 {
				panic(fmt.Sprintf("empty level at price %d", level.Price))
			}
			var sum int64
			for _, o := range level.Orders {
				if o.Remaining <= 0 {
					panic(fmt.Sprintf("order %d on book with remaining qty %d", o.ID, o.Remaining))
				}
				if o.Price != level.Price {
					panic(fmt.Sprintf("order %d price %d filed under level %d", o.ID, o.Price, level.Price))
				}
				sum += o.Remaining
			}
			if sum != level.Qty {
				panic(fmt.Sprintf("level %d qty %d != sum of orders %d", level.Price, level.Qty, sum))
			}
			count += len(level.Orders)
		}
	}

	// 5. orderIndex consistency
	if count != len(b.orderIndex) {
		panic(fmt.Sprintf("orderIndex size %d != book order count %d", len(b.orderIndex), count))
	}
}
