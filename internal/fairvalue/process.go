// Package fairvalue implements the exogenous reference-price random walk
package fairvalue

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/akshitanchan/marketsim/internal/domain"
)

var (
	ErrNonPositiveVolatility = errors.New("volatility must be positive")
	ErrNonPositiveValue      = errors.New("initial fair value must be positive")
)

// Process is a Gaussian-increment random walk. Its path is fully determined
// by its seed and the sequence of Advance calls.
type Process struct {
	value float64
	sigma float64 // per sqrt(second)
	rng   *rand.Rand
	steps uint64
}

// New creates a fair-value process starting at initial
func New(initial, sigma float64, seed int64) (*Process, error) {
	if !(sigma > 0) {
		return nil, fmt.Errorf("fairvalue: sigma %v: %w", sigma, ErrNonPositiveVolatility)
	}
	if !(initial > 0) {
		return nil, fmt.Errorf("fairvalue: initial %v: %w", initial, ErrNonPositiveValue)
	}
	return &Process{
		value: initial,
		sigma: sigma,
		rng:   rand.New(rand.NewSource(seed)),
	}, nil
}

// Get returns the current value
func (p *Process) Get() float64 {
	return p.value
}

// Advance moves the process forward by dt of simulated time.
// Non-positive dt is a no-op.
func (p *Process) Advance(dt domain.Time) {
	if dt <= 0 {
		return
	}
	p.value += p.sigma * math.Sqrt(dt.Seconds()) * p.rng.NormFloat64()
	p.steps++
}

// Steps returns how many increments have been applied
func (p *Process) Steps() uint64 {
	return p.steps
}

// Sigma returns the volatility parameter
func (p *Process) Sigma() float64 {
	return p.sigma
}
