// Package arrival implements per-agent exponential inter-arrival times.
package arrival

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/akshitanchan/marketsim/internal/domain"
)

var ErrNonPositiveRate = errors.New("arrival rate must be positive")

// Process draws memoryless inter-arrival gaps for a single agent.
type Process struct {
	Rate float64 // expected arrivals per simulated second
	rng  *rand.Rand
}

// New creates an arrival process with the given rate and seed.
func New(rate float64, seed int64) (*Process, error) {
	if !(rate > 0) {
		return nil, fmt.Errorf("arrival: rate %v: %w", rate, ErrNonPositiveRate)
	}
	return &Process{
		Rate: rate,
		rng:  rand.New(rand.NewSource(seed)),
	}, nil
}

// Next returns the time of the next arrival after now. The gap is at least
// one nanosecond so an agent never re-arrives at the same instant.
func (p *Process) Next(now domain.Time) domain.Time {
	gap := domain.Seconds(p.rng.ExpFloat64() / p.Rate)
	if gap < 1 {
		gap = 1
	}
	return now + gap
}
