// Package engine provides the deterministic discrete-event scheduler and the
// market engine that dispatches its events to the order book and agents
package engine

import (
	"container/heap"
	"fmt"

	"github.com/akshitanchan/marketsim/internal/domain"
)

// Handler processes an event and may return new events to enqueue
type Handler func(event *domain.Event) []*domain.Event

// CausalityError is raised (as a panic value) when an event is scheduled
// strictly before the scheduler's current time
type CausalityError struct {
	Scheduled domain.Time
	Now       domain.Time
	Kind      domain.EventKind
}

func (e *CausalityError) Error() string {
	return fmt.Sprintf("causality violation: %s scheduled at %v, now %v", e.Kind, e.Scheduled, e.Now)
}

// eventHeap is a min-heap of events ordered by (Time, Seq)
type eventHeap []*domain.Event

func (h eventHeap) Len() int      { return len(h) }
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h eventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].Seq < h[j].Seq
}

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*domain.Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	*h = old[:n-1]
	return item
}

// Scheduler is the time-ordered event queue driving a run
type Scheduler struct {
	queue   eventHeap
	seq     uint64
	handler Handler

	now        domain.Time
	dispatched uint64
	closed     bool
}

// NewScheduler creates a scheduler that dispatches to handler
func NewScheduler(handler Handler) *Scheduler {
	s := &Scheduler{handler: handler}
	heap.Init(&s.queue)
	return s
}

// Schedule adds a copy of event to the queue, so later changes to the
// caller's value do not affect ordering. Its Seq is assigned here so that
// events with equal times dispatch in insertion order.
// Panics with *CausalityError if event.Time < Now().
func (s *Scheduler) Schedule(event *domain.Event) {
	if event.Time < s.now {
		panic(&CausalityError{Scheduled: event.Time, Now: s.now, Kind: event.Kind})
	}
	s.seq++
	ev := *event
	ev.Seq = s.seq
	heap.Push(&s.queue, &ev)
}

// Run dispatches events until a MarketClose has been processed or the queue
// is empty
func (s *Scheduler) Run() {
	for s.Step() {
	}
}

// Step dispatches exactly one event. It returns false when nothing was
// dispatched because the queue is empty or the market has closed.
func (s *Scheduler) Step() bool {
	if s.closed || s.queue.Len() == 0 {
		return false
	}
	s.dispatch(heap.Pop(&s.queue).(*domain.Event))
	return true
}

// RunUntil dispatches every event with Time <= until.
// Returns true if events remain that could still be dispatched.
func (s *Scheduler) RunUntil(until domain.Time) bool {
	for !s.closed && s.queue.Len() > 0 {
		if s.queue[0].Time > until {
			return true
		}
		s.dispatch(heap.Pop(&s.queue).(*domain.Event))
	}
	return false
}

func (s *Scheduler) dispatch(event *domain.Event) {
	s.now = event.Time
	s.dispatched++
	if event.Kind == domain.EventMarketClose {
		s.closed = true
	}

	for _, e := range s.handler(event) {
		s.Schedule(e)
	}
}

// Now returns the time of the most recently dispatched event
func (s *Scheduler) Now() domain.Time { return s.now }

// Pending returns the number of events still in the queue
func (s *Scheduler) Pending() int { return s.queue.Len() }

// Dispatched returns the number of events processed so far
func (s *Scheduler) Dispatched() uint64 { return s.dispatched }

// Closed reports whether a MarketClose event has been dispatched
func (s *Scheduler) Closed() bool { return s.closed }
