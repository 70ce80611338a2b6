package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/akshitanchan/marketsim/internal/marketlog"
	"github.com/akshitanchan/marketsim/internal/metrics"
	"github.com/akshitanchan/marketsim/internal/report"
	"github.com/akshitanchan/marketsim/internal/scenario"
	"github.com/akshitanchan/marketsim/internal/sim"
)

const defaultRunsDir = "runs"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "demo":
		err = cmdDemo(os.Args[2:])
	case "report":
		err = cmdReport(os.Args[2:])
	case "replay":
		err = cmdReplay(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: marketsim <command> [options]

Commands:
  run      Run one scenario and print its summary
  demo     Run every preset and print a cross-scenario comparison
  report   Print the markdown report of a previous run
  replay   Recompute stylized facts from a run log and verify its digest

Run options:
  --scenario <name>   Preset: default, thin, volatile (default: default)
  --config <path>     YAML scenario file (overrides --scenario)
  --seed <n>          Random seed (default: 42, or the file's seed)
  --horizon <dur>     Simulated horizon, e.g. 500s
  --out <dir>         Output directory (default: runs)
  --dump-config       Print the resolved config as YAML and exit
  --verbose           Debug logging

Demo options:
  --seed <n>          Random seed (default: 42)
  --horizon <dur>     Simulated horizon for every preset
  --out <dir>         Output directory (default: runs)

Report options:
  --last-run          Use the most recent run
  --run-dir <path>    Path to a specific run directory
  --run-id <id>       Run directory name under runs/, e.g. default_seed42

Replay options:
  --run-dir <path>    Path to a run directory
  --run-id <id>       Run directory name under runs/
  --log <path>        Path to a run log (log.jsonl)

Environment:
  MARKETSIM_SEED, MARKETSIM_HORIZON override values read from --config`)
}

type runOptions struct {
	scenario   string
	configPath string
	seed       int64
	seedSet    bool
	horizon    time.Duration
	outDir     string
	dumpConfig bool
	verbose    bool
}

func parseRunArgs(args []string) (runOptions, error) {
	opts := runOptions{scenario: "default", seed: 42, outDir: defaultRunsDir}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--dump-config":
			opts.dumpConfig = true
			continue
		case "--verbose":
			opts.verbose = true
			continue
		}

		flag := args[i]
		i++
		if i >= len(args) {
			return opts, fmt.Errorf("%s requires a value", flag)
		}
		value := args[i]
		switch flag {
		case "--scenario":
			opts.scenario = value
		case "--config":
			opts.configPath = value
		case "--seed":
			seed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return opts, fmt.Errorf("--seed %q: %w", value, err)
			}
			opts.seed = seed
			opts.seedSet = true
		case "--horizon":
			horizon, err := time.ParseDuration(value)
			if err != nil {
				return opts, fmt.Errorf("--horizon %q: %w", value, err)
			}
			opts.horizon = horizon
		case "--out":
			opts.outDir = value
		default:
			return opts, fmt.Errorf("unknown option %s", flag)
		}
	}
	return opts, nil
}

// resolveConfig loads the file or preset and applies command-line overrides.
func resolveConfig(opts runOptions) (*scenario.Config, error) {
	var cfg *scenario.Config
	if opts.configPath != "" {
		loaded, err := scenario.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		if opts.seedSet {
			cfg.Seed = opts.seed
		}
	} else {
		cfg = scenario.Get(opts.scenario, opts.seed)
		if cfg == nil {
			return nil, fmt.Errorf("unknown scenario %q (available: %s)", opts.scenario, strings.Join(scenario.Names(), ", "))
		}
	}
	if opts.horizon != 0 {
		cfg.Horizon = opts.horizon
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func cmdRun(args []string) error {
	opts, err := parseRunArgs(args)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}
	if opts.dumpConfig {
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	}

	runner, err := sim.NewRunner(cfg, sim.Options{OutputDir: opts.outDir, Log: newLogger(opts.verbose)})
	if err != nil {
		return fmt.Errorf("initializing: %w", err)
	}
	result, err := runner.Run()
	if err != nil {
		return fmt.Errorf("running simulation: %w", err)
	}

	rpt := report.New(result)
	if err := rpt.Render(os.Stdout); err != nil {
		return err
	}
	if err := rpt.Generate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not generate report: %v\n", err)
	} else {
		fmt.Printf("\nReport written to: %s\n", filepath.Join(result.OutputDir, "report.md"))
	}
	return markLastRun(opts.outDir, result.OutputDir)
}

func markLastRun(outDir, runDir string) error {
	if err := os.WriteFile(filepath.Join(outDir, "last-run"), []byte(runDir), 0o644); err != nil {
		return fmt.Errorf("record last run: %w", err)
	}
	return nil
}

func cmdDemo(args []string) error {
	opts, err := parseRunArgs(args)
	if err != nil {
		return err
	}
	log := newLogger(opts.verbose)

	var results []*sim.Result
	for _, name := range scenario.Names() {
		cfg := scenario.Get(name, opts.seed)
		if opts.horizon != 0 {
			cfg.Horizon = opts.horizon
		}
		fmt.Printf("Running scenario: %s (seed=%d)...\n", name, opts.seed)

		runner, err := sim.NewRunner(cfg, sim.Options{OutputDir: opts.outDir, Log: log})
		if err != nil {
			return fmt.Errorf("initializing %s: %w", name, err)
		}
		result, err := runner.Run()
		if err != nil {
			return fmt.Errorf("running %s: %w", name, err)
		}
		fmt.Printf("  %s: %d events, %d trades, %v\n", name, result.EventCount, result.TradeCount, result.Wall)

		if err := report.New(result).Generate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: report generation failed for %s: %v\n", name, err)
		}
		results = append(results, result)
	}

	cross := report.NewCrossReport(results)
	if err := cross.Render(os.Stdout); err != nil {
		return err
	}
	if err := cross.Generate(opts.outDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cross-scenario report failed: %v\n", err)
	} else {
		fmt.Printf("\nCross-scenario report: %s\n", filepath.Join(opts.outDir, "cross-scenario-report.md"))
	}
	return nil
}

type locateOptions struct {
	runDir  string
	logPath string
	lastRun bool
}

func parseLocateArgs(args []string) (locateOptions, error) {
	var opts locateOptions
	for i := 0; i < len(args); i++ {
		if args[i] == "--last-run" {
			opts.lastRun = true
			continue
		}
		flag := args[i]
		i++
		if i >= len(args) {
			return opts, fmt.Errorf("%s requires a value", flag)
		}
		switch flag {
		case "--run-dir":
			opts.runDir = args[i]
		case "--run-id":
			if opts.runDir == "" {
				opts.runDir = filepath.Join(defaultRunsDir, args[i])
			}
		case "--log":
			opts.logPath = args[i]
		default:
			return opts, fmt.Errorf("unknown option %s", flag)
		}
	}
	if opts.lastRun {
		data, err := os.ReadFile(filepath.Join(defaultRunsDir, "last-run"))
		if err != nil {
			return opts, errors.New("no last run found, run a simulation first")
		}
		opts.runDir = strings.TrimSpace(string(data))
	}
	if opts.logPath == "" && opts.runDir != "" {
		opts.logPath = filepath.Join(opts.runDir, "log.jsonl")
	}
	return opts, nil
}

func cmdReport(args []string) error {
	opts, err := parseLocateArgs(args)
	if err != nil {
		return err
	}
	if opts.runDir == "" {
		return errors.New("--last-run, --run-dir, or --run-id required")
	}

	data, err := os.ReadFile(filepath.Join(opts.runDir, "report.md"))
	if err != nil {
		return fmt.Errorf("reading report: %w", err)
	}
	fmt.Println(string(data))

	if plots, err := os.ReadFile(filepath.Join(opts.runDir, "plots.txt")); err == nil {
		fmt.Println(string(plots))
	}
	return nil
}

// replayLog reads a run log back and recomputes its digest and stylized facts.
func replayLog(path string) (*marketlog.Logger, metrics.Facts, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, metrics.Facts{}, fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	l, err := marketlog.ReadJSONL(f)
	if err != nil {
		return nil, metrics.Facts{}, err
	}
	return l, metrics.StylizedFacts(l, metrics.DefaultACFLags), nil
}

// recordedDigest returns the digest stored in a run directory's result.json.
func recordedDigest(runDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(runDir, "result.json"))
	if err != nil {
		return "", err
	}
	var res struct {
		Digest string `json:"digest"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return "", fmt.Errorf("decode result: %w", err)
	}
	return res.Digest, nil
}

func cmdReplay(args []string) error {
	opts, err := parseLocateArgs(args)
	if err != nil {
		return err
	}
	if opts.logPath == "" {
		return errors.New("--run-id, --run-dir, or --log required")
	}

	fmt.Printf("Replaying run log: %s\n", opts.logPath)
	l, facts, err := replayLog(opts.logPath)
	if err != nil {
		return err
	}

	fmt.Printf("  L1 records:        %d\n", len(l.L1()))
	fmt.Printf("  Inventory records: %d\n", len(l.Inventory()))
	fmt.Printf("  Returns:           %d\n", facts.Returns)
	fmt.Printf("  Std return:        %.3e\n", facts.StdReturn)
	fmt.Printf("  Kurtosis:          %.3f\n", facts.Kurtosis)
	if len(facts.AbsReturnACF) > 0 {
		fmt.Printf("  |r| ACF lag 1:     %.3f\n", facts.AbsReturnACF[0])
	}

	digest := l.Digest()
	if opts.runDir == "" {
		fmt.Printf("\nRun log digest: %s\n", digest)
		return nil
	}
	orig, err := recordedDigest(opts.runDir)
	if err != nil {
		fmt.Printf("\nRun log digest: %s (no recorded digest: %v)\n", digest, err)
		return nil
	}
	if orig != digest {
		return fmt.Errorf("run log digest mismatch\n  recorded: %s\n  replayed: %s", orig, digest)
	}
	fmt.Printf("\nRun log digest matches recorded: %s...\n", digest[:16])
	return nil
}
