package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/akshitanchan/marketsim/internal/domain"
)

var ErrInvalidConfig = errors.New("invalid environment config")

// Config holds the cadence of the recurring processes.
type Config struct {
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	FairValueStep    time.Duration `yaml:"fair_value_step"`
}

// DefaultConfig snapshots and steps fair value once per simulated second.
func DefaultConfig() Config {
	return Config{
		SnapshotInterval: time.Second,
		FairValueStep:    time.Second,
	}
}

// Validate checks both intervals are positive.
func (c Config) Validate() error {
	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("%w: snapshot interval %v", ErrInvalidConfig, c.SnapshotInterval)
	}
	if c.FairValueStep <= 0 {
		return fmt.Errorf("%w: fair value step %v", ErrInvalidConfig, c.FairValueStep)
	}
	return nil
}

// Environment seeds the periodic snapshot and fair-value processes on top of
// an Engine and hands control to its scheduler.
type Environment struct {
	engine  *Engine
	cfg     Config
	started bool
}

// NewEnvironment validates cfg and wraps engine.
func NewEnvironment(engine *Engine, cfg Config) (*Environment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Environment{engine: engine, cfg: cfg}, nil
}

// Engine returns the wrapped engine.
func (env *Environment) Engine() *Engine { return env.engine }

// Start schedules the first Snapshot and FairValueUpdate at the engine's
// current time, which is zero for a fresh engine.
// Calling it more than once has no effect.
func (env *Environment) Start() {
	if env.started {
		return
	}
	env.started = true
	now := env.engine.Time()
	env.engine.Schedule(&domain.Event{
		Time:     now,
		Kind:     domain.EventSnapshot,
		Interval: env.cfg.SnapshotInterval,
	})
	env.engine.Schedule(&domain.Event{
		Time:     now,
		Kind:     domain.EventFairValueUpdate,
		Interval: env.cfg.FairValueStep,
	})
}

// Run starts the recurring processes, schedules MarketClose at horizon and
// runs the engine until it is dispatched.
func (env *Environment) Run(horizon domain.Time) {
	env.Start()
	env.engine.Schedule(&domain.Event{Time: horizon, Kind: domain.EventMarketClose})
	env.engine.Run()
}
