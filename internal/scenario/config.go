// Package scenario defines run configurations, the built-in presets and
// YAML loading
package scenario

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Kind names a built-in agent strategy
type Kind string

const (
	KindNoise       Kind = "noise"
	KindMarketMaker Kind = "market_maker"
	KindMomentum    Kind = "momentum"
	KindRandom      Kind = "random"
)

// Environment variables that override file values
const (
	EnvSeed    = "MARKETSIM_SEED"
	EnvHorizon = "MARKETSIM_HORIZON"
)

var ErrInvalidConfig = errors.New("invalid scenario config")

// Config holds all parameters for a simulation run
type Config struct {
	Name    string        `yaml:"name"`
	Seed    int64         `yaml:"seed"`
	Horizon time.Duration `yaml:"horizon"`

	Market MarketConfig  `yaml:"market"`
	Agents []AgentConfig `yaml:"agents"`
}

// MarketConfig holds the fair-value process and environment cadence
type MarketConfig struct {
	InitialFairValue float64       `yaml:"initial_fair_value"`
	Volatility       float64       `yaml:"volatility"` // per sqrt(second)
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	FairValueStep    time.Duration `yaml:"fair_value_step"`
	Depth            int           `yaml:"depth"` // L2 levels visible to agents
}

// AgentConfig describes one participant. Zero-valued optional fields take
// the strategy's defaults.
type AgentConfig struct {
	ID     string          `yaml:"id"`
	Kind   Kind            `yaml:"kind"`
	Rate   float64         `yaml:"rate"` // arrivals per simulated second
	Window int             `yaml:"window,omitempty"`
	MaxQty int64           `yaml:"max_qty,omitempty"`
	Cash   decimal.Decimal `yaml:"cash,omitempty"`
}

func defaultMarket() MarketConfig {
	return MarketConfig{
		InitialFairValue: 100,
		Volatility:       0.5,
		SnapshotInterval: time.Second,
		FairValueStep:    time.Second,
		Depth:            5,
	}
}

// Default returns the reference population: three noise traders, one
// market maker and two momentum traders over 1000 simulated seconds
func Default(seed int64) *Config {
	return &Config{
		Name:    "default",
		Seed:    seed,
		Horizon: 1000 * time.Second,
		Market:  defaultMarket(),
		Agents: []AgentConfig{
			{ID: "N1", Kind: KindNoise, Rate: 1.2},
			{ID: "N2", Kind: KindNoise, Rate: 1.2},
			{ID: "N3", Kind: KindNoise, Rate: 1.2},
			{ID: "MM1", Kind: KindMarketMaker, Rate: 0.5},
			{ID: "M1", Kind: KindMomentum, Rate: 0.8, Window: 50},
			{ID: "M2", Kind: KindMomentum, Rate: 0.8, Window: 50},
		},
	}
}

// Thin returns a sparse market with a single slow maker
func Thin(seed int64) *Config {
	return &Config{
		Name:    "thin",
		Seed:    seed,
		Horizon: 500 * time.Second,
		Market:  defaultMarket(),
		Agents: []AgentConfig{
			{ID: "N1", Kind: KindNoise, Rate: 0.4},
			{ID: "MM1", Kind: KindMarketMaker, Rate: 0.2},
			{ID: "R1", Kind: KindRandom, Rate: 0.3},
		},
	}
}

// Volatile returns a fast fair value with a trend-following majority
func Volatile(seed int64) *Config {
	cfg := &Config{
		Name:    "volatile",
		Seed:    seed,
		Horizon: 1000 * time.Second,
		Market:  defaultMarket(),
		Agents: []AgentConfig{
			{ID: "N1", Kind: KindNoise, Rate: 1.5},
			{ID: "N2", Kind: KindNoise, Rate: 1.5},
			{ID: "MM1", Kind: KindMarketMaker, Rate: 1.0},
			{ID: "M1", Kind: KindMomentum, Rate: 1.2, Window: 20},
			{ID: "M2", Kind: KindMomentum, Rate: 1.2, Window: 20},
			{ID: "M3", Kind: KindMomentum, Rate: 1.2, Window: 20},
		},
	}
	cfg.Market.Volatility = 2.0
	return cfg
}

// Names lists the built-in presets
func Names() []string {
	return []string{"default", "thin", "volatile"}
}

// Get returns the preset for a name, or nil if unknown
func Get(name string, seed int64) *Config {
	switch name {
	case "default":
		return Default(seed)
	case "thin":
		return Thin(seed)
	case "volatile":
		return Volatile(seed)
	default:
		return nil
	}
}

// Load reads a YAML config, fills unset market fields with defaults, applies
// environment overrides and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load for an in-memory document
func Parse(data []byte) (*Config, error) {
	cfg := &Config{Market: defaultMarket()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overrideWithEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvSeed); ok {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", EnvSeed, v, err)
		}
		cfg.Seed = seed
	}
	if v, ok := os.LookupEnv(EnvHorizon); ok {
		horizon, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", EnvHorizon, v, err)
		}
		cfg.Horizon = horizon
	}
	return nil
}

// Marshal encodes the config as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Horizon <= 0 {
		return fmt.Errorf("%w: horizon must be positive, got %v", ErrInvalidConfig, c.Horizon)
	}
	m := c.Market
	if !(m.InitialFairValue > 0) {
		return fmt.Errorf("%w: initial_fair_value must be positive", ErrInvalidConfig)
	}
	if !(m.Volatility > 0) {
		return fmt.Errorf("%w: volatility must be positive", ErrInvalidConfig)
	}
	if m.SnapshotInterval <= 0 || m.FairValueStep <= 0 {
		return fmt.Errorf("%w: snapshot_interval and fair_value_step must be positive", ErrInvalidConfig)
	}
	if m.Depth < 1 {
		return fmt.Errorf("%w: depth must be at least 1", ErrInvalidConfig)
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("%w: at least one agent is required", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("%w: agent %d has no id", ErrInvalidConfig, i)
		}
		if seen[a.ID] {
			return fmt.Errorf("%w: duplicate agent id %q", ErrInvalidConfig, a.ID)
		}
		seen[a.ID] = true

		switch a.Kind {
		case KindNoise, KindMarketMaker, KindMomentum, KindRandom:
		default:
			return fmt.Errorf("%w: agent %q: unknown kind %q", ErrInvalidConfig, a.ID, a.Kind)
		}
		if !(a.Rate > 0) {
			return fmt.Errorf("%w: agent %q: rate must be positive", ErrInvalidConfig, a.ID)
		}
		if a.Window < 0 || a.MaxQty < 0 || a.Cash.IsNegative() {
			return fmt.Errorf("%w: agent %q: window, max_qty and cash must not be negative", ErrInvalidConfig, a.ID)
		}
	}
	return nil
}
