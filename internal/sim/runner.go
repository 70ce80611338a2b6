// Package sim wires together the order book, engine, environment, agents
// and run log into a complete simulation run.
package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/akshitanchan/marketsim/internal/agent"
	"github.com/akshitanchan/marketsim/internal/domain"
	"github.com/akshitanchan/marketsim/internal/engine"
	"github.com/akshitanchan/marketsim/internal/fairvalue"
	"github.com/akshitanchan/marketsim/internal/marketlog"
	"github.com/akshitanchan/marketsim/internal/metrics"
	"github.com/akshitanchan/marketsim/internal/orderbook"
	"github.com/akshitanchan/marketsim/internal/scenario"
)

// agentSeedStride separates agent strategy streams from the engine's
// arrival streams, which use engine.ArrivalSeedStride.
const agentSeedStride = 104729

// runNamespace scopes run ids so the same scenario and seed always map to
// the same RunID.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("marketsim/run"))

// AgentSummary is one participant's end-of-run position.
type AgentSummary struct {
	ID               string          `json:"id"`
	Kind             scenario.Kind   `json:"kind"`
	InitialCash      decimal.Decimal `json:"initial_cash"`
	InitialInventory int64           `json:"initial_inventory"`
	Cash             decimal.Decimal `json:"cash"`
	Inventory        int64           `json:"inventory"`
}

// Result holds the output of a simulation run.
type Result struct {
	RunID       string           `json:"run_id"`
	Config      *scenario.Config `json:"config"`
	EventCount  uint64           `json:"event_count"`
	TradeCount  int              `json:"trade_count"`
	Rejected    uint64           `json:"rejected_actions"`
	AgentPanics uint64           `json:"agent_panics"`
	Wall        time.Duration    `json:"wall_duration"`
	Digest      string           `json:"digest"`
	OutputDir   string           `json:"output_dir,omitempty"`

	Agents      []AgentSummary                   `json:"agents"`
	Metrics     map[string]*metrics.AgentMetrics `json:"metrics"`
	Performance []metrics.Performance            `json:"performance"`
	Facts       metrics.Facts                    `json:"facts"`

	Logger *marketlog.Logger `json:"-"`
	Trades []domain.Trade    `json:"-"`
}

// Options configures a Runner.
type Options struct {
	// OutputDir, when set, receives config.yaml, trades.json, log.jsonl and
	// result.json under a per-run subdirectory.
	OutputDir string
	Log       *slog.Logger
}

type participant struct {
	cfg              scenario.AgentConfig
	agent            trackedAgent
	initialCash      decimal.Decimal
	initialInventory int64
}

// trackedAgent is what every built-in strategy exposes through agent.Base.
type trackedAgent interface {
	engine.Agent
	Inventory() int64
	Cash() decimal.Decimal
}

// Runner executes one configured simulation.
type Runner struct {
	cfg  *scenario.Config
	opts Options
	log  *slog.Logger

	book   *orderbook.Book
	mlog   *marketlog.Logger
	engine *engine.Engine
	env    *engine.Environment

	participants []participant
}

// NewRunner validates cfg and builds the book, engine and agents.
func NewRunner(cfg *scenario.Config, opts Options) (*Runner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", scenario.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	fv, err := fairvalue.New(cfg.Market.InitialFairValue, cfg.Market.Volatility, cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("fair value: %w", err)
	}

	r := &Runner{
		cfg:  cfg,
		opts: opts,
		log:  log,
		book: orderbook.New(),
		mlog: marketlog.New(),
	}
	r.engine = engine.New(r.book, r.mlog, engine.Options{
		Seed:            cfg.Seed,
		Depth:           cfg.Market.Depth,
		FairValue:       fv,
		Log:             log,
		CheckInvariants: true,
	})

	for i, ac := range cfg.Agents {
		a := buildAgent(ac, cfg.Seed+agentSeedStride*int64(i+1))
		if err := r.engine.Register(a, ac.Rate); err != nil {
			return nil, err
		}
		r.participants = append(r.participants, participant{
			cfg:              ac,
			agent:            a,
			initialCash:      a.Cash(),
			initialInventory: a.Inventory(),
		})
	}

	r.env, err = engine.NewEnvironment(r.engine, engine.Config{
		SnapshotInterval: cfg.Market.SnapshotInterval,
		FairValueStep:    cfg.Market.FairValueStep,
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// buildAgent constructs the strategy for ac, applying its overrides on top
// of the strategy defaults.
func buildAgent(ac scenario.AgentConfig, seed int64) trackedAgent {
	switch ac.Kind {
	case scenario.KindNoise:
		p := agent.DefaultNoiseParams()
		if ac.MaxQty > 0 {
			p.MaxQty = ac.MaxQty
		}
		if ac.Cash.IsPositive() {
			p.Cash = ac.Cash
		}
		return agent.NewNoiseTrader(ac.ID, seed, p)
	case scenario.KindMarketMaker:
		p := agent.DefaultMarketMakerParams()
		if ac.MaxQty > 0 {
			p.QuoteQty = ac.MaxQty
		}
		if ac.Cash.IsPositive() {
			p.Cash = ac.Cash
		}
		return agent.NewMarketMaker(ac.ID, seed, p)
	case scenario.KindMomentum:
		p := agent.DefaultMomentumParams()
		if ac.Window > 0 {
			p.Window = ac.Window
		}
		if ac.MaxQty > 0 {
			p.MaxQty = ac.MaxQty
		}
		if ac.Cash.IsPositive() {
			p.Cash = ac.Cash
		}
		return agent.NewMomentum(ac.ID, seed, p)
	default:
		a := agent.NewRandom(ac.ID, seed)
		if ac.MaxQty > 0 {
			a.MaxQty = ac.MaxQty
		}
		return a
	}
}

// Engine exposes the underlying engine, mainly for tests.
func (r *Runner) Engine() *engine.Engine { return r.engine }

// Run executes the simulation up to the configured horizon and returns results.
func (r *Runner) Run() (*Result, error) {
	startWall := time.Now()
	r.log.Info("Run started",
		slog.String("scenario", r.cfg.Name),
		slog.Int64("seed", r.cfg.Seed),
		slog.Duration("horizon", r.cfg.Horizon),
		slog.Int("agents", len(r.participants)),
	)

	if err := r.runEnvironment(); err != nil {
		r.log.Error("Run aborted", slog.String("scenario", r.cfg.Name), slog.Any("error", err))
		return nil, err
	}

	trades := r.engine.Trades()
	history := r.mlog.L1()
	res := &Result{
		RunID:       RunID(r.cfg.Name, r.cfg.Seed),
		Config:      r.cfg,
		EventCount:  r.engine.Scheduler().Dispatched(),
		TradeCount:  len(trades),
		Rejected:    r.engine.Rejected(),
		AgentPanics: r.engine.AgentPanics(),
		Digest:      r.mlog.Digest(),
		Metrics:     metrics.ComputeFromRun(trades, history),
		Facts:       metrics.StylizedFacts(r.mlog, metrics.DefaultACFLags),
		Logger:      r.mlog,
		Trades:      trades,
	}
	for _, p := range r.participants {
		res.Agents = append(res.Agents, AgentSummary{
			ID:               p.cfg.ID,
			Kind:             p.cfg.Kind,
			InitialCash:      p.initialCash,
			InitialInventory: p.initialInventory,
			Cash:             p.agent.Cash(),
			Inventory:        p.agent.Inventory(),
		})
		res.Performance = append(res.Performance,
			metrics.ComputePerformance(history, trades, p.cfg.ID, p.initialCash, p.initialInventory))
	}
	res.Wall = time.Since(startWall)

	if r.opts.OutputDir != "" {
		dir, err := r.writeOutputs(res)
		if err != nil {
			return nil, err
		}
		res.OutputDir = dir
	}

	r.log.Info("Run completed",
		slog.String("run_id", res.RunID),
		slog.Uint64("events", res.EventCount),
		slog.Int("trades", res.TradeCount),
		slog.Uint64("rejected", res.Rejected),
		slog.String("digest", res.Digest),
		slog.Duration("wall", res.Wall),
	)
	return res, nil
}

// runEnvironment converts a causality panic into the run's error. Any other
// panic is a bug and propagates.
func (r *Runner) runEnvironment() (err error) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if e, ok := rec.(error); ok {
			var ce *engine.CausalityError
			if errors.As(e, &ce) {
				err = fmt.Errorf("run %s: %w", r.cfg.Name, ce)
				return
			}
		}
		panic(rec)
	}()
	r.env.Run(r.cfg.Horizon)
	return nil
}

func (r *Runner) writeOutputs(res *Result) (string, error) {
	dir := filepath.Join(r.opts.OutputDir, r.cfg.Name+"_seed"+strconv.FormatInt(r.cfg.Seed, 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	cfgData, err := r.cfg.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), cfgData, 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}

	if err := writeJSON(filepath.Join(dir, "trades.json"), res.Trades); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(dir, "result.json"), res); err != nil {
		return "", err
	}

	f, err := os.Create(filepath.Join(dir, "log.jsonl"))
	if err != nil {
		return "", fmt.Errorf("create run log: %w", err)
	}
	if err := r.mlog.WriteJSONL(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write run log: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close run log: %w", err)
	}
	return dir, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// RunID derives a stable identifier for a scenario name and seed.
func RunID(name string, seed int64) string {
	return uuid.NewSHA1(runNamespace, []byte(name+"/"+strconv.FormatInt(seed, 10))).String()
}

// Run builds and executes cfg with default options.
func Run(cfg *scenario.Config) (*Result, error) {
	r, err := NewRunner(cfg, Options{})
	if err != nil {
		return nil, err
	}
	return r.Run()
}

// RunSeed runs the default population with the given seed up to horizon and
// returns the populated run log.
func RunSeed(seed int64, horizon domain.Time) (*marketlog.Logger, error) {
	cfg := scenario.Default(seed)
	cfg.Horizon = horizon
	res, err := Run(cfg)
	if err != nil {
		return nil, err
	}
	return res.Logger, nil
}
