package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/akshitanchan/marketsim/internal/arrival"
	"github.com/akshitanchan/marketsim/internal/domain"
	"github.com/akshitanchan/marketsim/internal/fairvalue"
	"github.com/akshitanchan/marketsim/internal/marketlog"
	"github.com/akshitanchan/marketsim/internal/orderbook"
)

var (
	ErrDuplicateAgent = errors.New("agent already registered")
	ErrInvalidAgentID = errors.New("agent id must be non-empty")
	ErrUnknownAgent   = errors.New("unknown agent")
	ErrNotOwner       = errors.New("order not owned by agent")
	ErrInvalidAction  = errors.New("invalid action")
)

// DefaultDepth is the L2 depth handed to agents when Options.Depth is unset.
const DefaultDepth = 5

// Options configures an Engine.
type Options struct {
	// Seed drives per-agent arrival processes. Agent i (registration order)
	// draws from Seed + ArrivalSeedStride*(i+1).
	Seed  int64
	Depth int
	// FairValue is optional; when nil, FairValueUpdate events are no-ops and
	// MarketState.FairValue is nil.
	FairValue *fairvalue.Process
	Log       *slog.Logger
	// CheckInvariants asserts book invariants after every accepted action.
	CheckInvariants bool
}

const ArrivalSeedStride = 7919

type registered struct {
	agent    Agent
	arrivals *arrival.Process
}

// Engine owns the book, run log, scheduler and agent registry, and dispatches
// scheduled events to them.
type Engine struct {
	book  *orderbook.Book
	log   *marketlog.Logger
	sched *Scheduler
	fv    *fairvalue.Process
	slog  *slog.Logger

	seed   int64
	depth  int
	strict bool

	agents map[string]*registered
	order  []string // registration order, for deterministic iteration

	nextOrderID uint64
	owners      map[uint64]string // resting order id -> agent id

	trades   []domain.Trade
	rejected uint64
	panics   uint64
}

// New creates an engine over book and log.
func New(book *orderbook.Book, log *marketlog.Logger, opts Options) *Engine {
	if opts.Depth <= 0 {
		opts.Depth = DefaultDepth
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	e := &Engine{
		book:   book,
		log:    log,
		fv:     opts.FairValue,
		slog:   opts.Log,
		seed:   opts.Seed,
		depth:  opts.Depth,
		strict: opts.CheckInvariants,
		agents: make(map[string]*registered),
		owners: make(map[uint64]string),
	}
	e.sched = NewScheduler(e.handleEvent)
	return e
}

// Register adds an agent and schedules its first arrival.
func (e *Engine) Register(a Agent, rate float64) error {
	id := a.ID()
	if id == "" {
		return ErrInvalidAgentID
	}
	if _, exists := e.agents[id]; exists {
		return fmt.Errorf("register %q: %w", id, ErrDuplicateAgent)
	}
	seed := e.seed + ArrivalSeedStride*int64(len(e.order)+1)
	arrivals, err := arrival.New(rate, seed)
	if err != nil {
		return fmt.Errorf("register %q: %w", id, err)
	}

	e.agents[id] = &registered{agent: a, arrivals: arrivals}
	e.order = append(e.order, id)
	e.sched.Schedule(&domain.Event{
		Time:    arrivals.Next(e.sched.Now()),
		Kind:    domain.EventAgentArrival,
		AgentID: id,
	})
	return nil
}

// Agents returns registered agent ids in registration order.
func (e *Engine) Agents() []string {
	return append([]string(nil), e.order...)
}

// Agent returns a registered agent by id.
func (e *Engine) Agent(id string) (Agent, bool) {
	r, ok := e.agents[id]
	if !ok {
		return nil, false
	}
	return r.agent, true
}

// Time returns the current simulated time.
func (e *Engine) Time() domain.Time { return e.sched.Now() }

// Schedule enqueues an event. Panics with *CausalityError for past times.
func (e *Engine) Schedule(event *domain.Event) { e.sched.Schedule(event) }

func (e *Engine) Run() { e.sched.Run() }

func (e *Engine) Step() bool { return e.sched.Step() }

func (e *Engine) RunUntil(until domain.Time) bool { return e.sched.RunUntil(until) }

func (e *Engine) Scheduler() *Scheduler { return e.sched }

func (e *Engine) Book() *orderbook.Book { return e.book }

func (e *Engine) Logger() *marketlog.Logger { return e.log }

// Trades returns every trade executed so far, in execution order.
func (e *Engine) Trades() []domain.Trade {
	return append([]domain.Trade(nil), e.trades...)
}

// Rejected returns how many actions were refused.
func (e *Engine) Rejected() uint64 { return e.rejected }

// AgentPanics returns how many agent callbacks panicked and were isolated.
func (e *Engine) AgentPanics() uint64 { return e.panics }

// MarketState builds the view handed to agents at the current time.
func (e *Engine) MarketState() domain.MarketState {
	snap := e.book.Snapshot(e.depth, e.sched.Now())
	state := domain.MarketState{
		Time:    snap.L1.Time,
		Mid:     snap.L1.Mid,
		BestBid: snap.L1.BestBid,
		BestAsk: snap.L1.BestAsk,
		L2:      snap.L2,
	}
	if e.fv != nil {
		state.FairValue = domain.Ptr(e.fv.Get())
	}
	return state
}

// Submit applies one action on behalf of agentID at the current time.
// Rejections are reported in the result, never panicked.
func (e *Engine) Submit(agentID string, action domain.Action) ActionResult {
	res := ActionResult{Action: action}
	if agentID == "" {
		res.Err = ErrInvalidAgentID
		e.rejected++
		return res
	}

	switch action.Kind {
	case domain.ActionPlaceLimit, domain.ActionPlaceMarket:
		typ := domain.LimitOrder
		if action.Kind == domain.ActionPlaceMarket {
			typ = domain.MarketOrder
		}
		e.nextOrderID++
		order := &domain.Order{
			ID:      e.nextOrderID,
			AgentID: agentID,
			Side:    action.Side,
			Type:    typ,
			Price:   action.Price,
			Qty:     action.Qty,
			Time:    e.sched.Now(),
		}
		trades, err := e.book.Submit(order)
		if err != nil {
			res.Err = err
			break
		}
		res.OrderID = order.ID
		res.Trades = trades
		if typ == domain.LimitOrder && !order.IsFilled() {
			res.Resting = true
			e.owners[order.ID] = agentID
		}

	case domain.ActionCancel:
		owner, ok := e.owners[action.OrderID]
		if !ok {
			res.Err = fmt.Errorf("cancel %d: %w", action.OrderID, orderbook.ErrOrderNotFound)
			break
		}
		if owner != agentID {
			res.Err = fmt.Errorf("cancel %d by %q: %w", action.OrderID, agentID, ErrNotOwner)
			break
		}
		if _, err := e.book.Cancel(action.OrderID); err != nil {
			res.Err = err
		}
		delete(e.owners, action.OrderID)

	default:
		res.Err = fmt.Errorf("%w: kind %d", ErrInvalidAction, action.Kind)
	}

	if res.Err != nil {
		e.rejected++
		e.slog.Debug("Action rejected",
			slog.String("agent", agentID),
			slog.String("action", action.String()),
			slog.Any("error", res.Err))
		return res
	}
	if e.strict {
		e.book.AssertInvariants()
	}

	for _, tr := range res.Trades {
		e.trades = append(e.trades, tr)
		if _, resting := e.book.Lookup(tr.PassiveOrderID); !resting {
			delete(e.owners, tr.PassiveOrderID)
		}
		e.notifyTrade(tr.BuyAgent, tr, domain.Buy)
		e.notifyTrade(tr.SellAgent, tr, domain.Sell)
	}
	return res
}

func (e *Engine) notifyTrade(agentID string, tr domain.Trade, side domain.Side) {
	r, ok := e.agents[agentID]
	if !ok {
		return
	}
	e.isolate(agentID, "on_trade", func() { r.agent.OnTrade(tr, side) })
}

func (e *Engine) reportResult(r *registered, res ActionResult) {
	reporter, ok := r.agent.(ActionReporter)
	if !ok {
		return
	}
	e.isolate(r.agent.ID(), "on_action_result", func() { reporter.OnActionResult(res) })
}

// isolate runs fn and swallows any panic so that one agent cannot halt the
// run. Returns false if fn panicked.
func (e *Engine) isolate(agentID, call string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.panics++
			e.slog.Warn("Agent panic isolated",
				slog.String("agent", agentID),
				slog.String("call", call),
				slog.Any("panic", r))
			ok = false
		}
	}()
	fn()
	return true
}

// handleEvent is the central event dispatcher.
func (e *Engine) handleEvent(event *domain.Event) []*domain.Event {
	switch event.Kind {
	case domain.EventAgentArrival:
		return e.handleArrival(event)
	case domain.EventSnapshot:
		return e.handleSnapshot(event)
	case domain.EventFairValueUpdate:
		return e.handleFairValue(event)
	case domain.EventMarketClose:
		e.slog.Info("Market closed",
			slog.Duration("time", event.Time),
			slog.Int("trades", len(e.trades)),
			slog.Uint64("events", e.sched.Dispatched()))
		return nil
	case domain.EventOrderSubmission:
		return e.handleSubmission(event)
	default:
		e.slog.Warn("Unknown event kind", slog.Any("kind", event.Kind))
		return nil
	}
}

func (e *Engine) handleArrival(event *domain.Event) []*domain.Event {
	r, ok := e.agents[event.AgentID]
	if !ok {
		e.slog.Warn("Arrival for unknown agent dropped", slog.String("agent", event.AgentID))
		return nil
	}

	var actions []domain.Action
	state := e.MarketState()
	e.isolate(event.AgentID, "get_action", func() { actions = r.agent.GetAction(state) })

	for _, a := range actions {
		res := e.Submit(event.AgentID, a)
		e.reportResult(r, res)
	}

	return []*domain.Event{{
		Time:    r.arrivals.Next(event.Time),
		Kind:    domain.EventAgentArrival,
		AgentID: event.AgentID,
	}}
}

func (e *Engine) handleSnapshot(event *domain.Event) []*domain.Event {
	now := event.Time
	e.log.RecordL1(e.book.L1(now))
	for _, id := range e.order {
		if inv, ok := e.agents[id].agent.(InventoryReporter); ok {
			e.log.RecordInventory(now, id, inv.Inventory())
		}
	}
	return reschedule(event)
}

func (e *Engine) handleFairValue(event *domain.Event) []*domain.Event {
	if e.fv != nil {
		e.fv.Advance(event.Interval)
	}
	return reschedule(event)
}

func (e *Engine) handleSubmission(event *domain.Event) []*domain.Event {
	if event.Action == nil {
		e.slog.Warn("Order submission without action", slog.String("agent", event.AgentID))
		return nil
	}
	res := e.Submit(event.AgentID, *event.Action)
	if r, ok := e.agents[event.AgentID]; ok {
		e.reportResult(r, res)
	}
	return nil
}

// reschedule repeats a periodic event after its interval. A zero interval
// makes the event one-shot.
func reschedule(event *domain.Event) []*domain.Event {
	if event.Interval <= 0 {
		return nil
	}
	return []*domain.Event{{
		Time:     event.Time + event.Interval,
		Kind:     event.Kind,
		Interval: event.Interval,
	}}
}
