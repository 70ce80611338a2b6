// Package report renders run summaries for the terminal and writes the
// markdown report next to a run's outputs
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/akshitanchan/marketsim/internal/metrics"
	"github.com/akshitanchan/marketsim/internal/sim"
)

// ErrNoOutputDir is returned by Generate for runs executed without an
// output directory.
var ErrNoOutputDir = errors.New("run has no output directory")

// Report renders one simulation run
type Report struct {
	res *sim.Result
}

// New creates a report for res
func New(res *sim.Result) *Report {
	return &Report{res: res}
}

// Render writes the styled terminal summary to w
func (r *Report) Render(w io.Writer) error {
	view := lipgloss.JoinVertical(lipgloss.Left,
		r.renderRunPanel(),
		lipgloss.JoinHorizontal(lipgloss.Top, r.renderFactsPanel(), r.renderPositionsPanel()),
		r.renderExecutionPanel(),
	)
	_, err := fmt.Fprintln(w, view)
	return err
}

func (r *Report) renderRunPanel() string {
	res := r.res
	var b strings.Builder
	kv := func(k, v string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", k)))
		b.WriteString(rowStyle.Render(v))
		b.WriteString("\n")
	}
	kv("run", res.RunID)
	kv("scenario", res.Config.Name)
	kv("seed", fmt.Sprintf("%d", res.Config.Seed))
	kv("horizon", res.Config.Horizon.String())
	kv("events", fmt.Sprintf("%d", res.EventCount))
	kv("trades", fmt.Sprintf("%d", res.TradeCount))
	kv("rejected", fmt.Sprintf("%d", res.Rejected))
	if res.AgentPanics > 0 {
		kv("panics", accentStyle.Render(fmt.Sprintf("%d", res.AgentPanics)))
	}
	kv("digest", mutedStyle.Render(res.Digest))
	kv("wall", res.Wall.String())
	return panel("Market Simulation", strings.TrimRight(b.String(), "\n"))
}

func (r *Report) renderFactsPanel() string {
	f := r.res.Facts
	var b strings.Builder
	line := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-16s", label)))
		b.WriteString(rowStyle.Render(fmt.Sprintf("%12s", value)))
		b.WriteString("\n")
	}
	line("snapshots", fmt.Sprintf("%d", f.Snapshots))
	line("defined mids", fmt.Sprintf("%d", f.DefinedMids))
	line("returns", fmt.Sprintf("%d", f.Returns))
	line("mean return", formatFloat(f.MeanReturn, "%.2e"))
	line("std return", formatFloat(f.StdReturn, "%.2e"))
	line("kurtosis", formatFloat(f.Kurtosis, "%.3f"))
	for _, lag := range []int{1, 5, 10} {
		if lag <= len(f.AbsReturnACF) {
			line(fmt.Sprintf("|r| acf lag %d", lag), formatFloat(f.AbsReturnACF[lag-1], "%.3f"))
		}
	}
	return panel("Stylized Facts", strings.TrimRight(b.String(), "\n"))
}

func (r *Report) renderPositionsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-6s %-13s %6s %12s %9s %8s", "Agent", "Kind", "Inv", "Cash", "Return", "MaxDD")))
	b.WriteString("\n")
	perf := make(map[string]metrics.Performance, len(r.res.Performance))
	for _, p := range r.res.Performance {
		perf[p.AgentID] = p
	}
	for _, a := range r.res.Agents {
		p := perf[a.ID]
		b.WriteString(rowStyle.Render(fmt.Sprintf("%-6s %-13s %6d %12s ", a.ID, a.Kind, a.Inventory, a.Cash.StringFixed(2))))
		b.WriteString(signed(p.TotalReturn, fmt.Sprintf("%8.2f%%", p.TotalReturn*100)))
		b.WriteString(rowStyle.Render(fmt.Sprintf(" %7.2f%%", p.MaxDrawdown*100)))
		b.WriteString("\n")
	}
	return panel("Positions", strings.TrimRight(b.String(), "\n"))
}

func (r *Report) renderExecutionPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-6s %6s %7s %7s %7s %9s %9s %10s", "Agent", "Fills", "Bought", "Sold", "Maker%", "AvgBuy", "AvgSell", "Slip(bps)")))
	b.WriteString(headerStyle.Render(fmt.Sprintf(" %10s", "Adv(bps)")))
	b.WriteString("\n")
	for _, a := range r.res.Agents {
		m, ok := r.res.Metrics[a.ID]
		if !ok {
			b.WriteString(mutedStyle.Render(fmt.Sprintf("%-6s %6s", a.ID, "-")))
			b.WriteString("\n")
			continue
		}
		b.WriteString(rowStyle.Render(fmt.Sprintf("%-6s %6d %7d %7d %6.1f%% %9.2f %9.2f ",
			a.ID, m.Fills, m.BoughtQty, m.SoldQty, m.MakerShare*100, m.AvgBuyPrice, m.AvgSellPrice)))
		b.WriteString(signed(-m.SlippageBps, fmt.Sprintf("%10.2f", m.SlippageBps)))
		b.WriteString(signed(m.AdverseSelectionBps, fmt.Sprintf(" %10.2f", m.AdverseSelectionBps)))
		b.WriteString("\n")
	}
	return panel("Execution", strings.TrimRight(b.String(), "\n"))
}

// Generate writes metrics.json, report.md and plots.txt into the run's
// output directory
func (r *Report) Generate() error {
	dir := r.res.OutputDir
	if dir == "" {
		return ErrNoOutputDir
	}

	metricsData, err := json.MarshalIndent(struct {
		Execution   map[string]*metrics.AgentMetrics `json:"execution"`
		Performance []metrics.Performance            `json:"performance"`
		Facts       metrics.Facts                    `json:"facts"`
	}{r.res.Metrics, r.res.Performance, r.res.Facts}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metrics.json"), metricsData, 0o644); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "report.md"), []byte(r.renderMarkdown()), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "plots.txt"), []byte(r.renderPlots()), 0o644); err != nil {
		return fmt.Errorf("write plots: %w", err)
	}
	return nil
}

func (r *Report) renderMarkdown() string {
	res := r.res
	cfg := res.Config
	var sb strings.Builder

	sb.WriteString("# Market Simulation Report\n\n")
	sb.WriteString(fmt.Sprintf("**Scenario:** %s | **Seed:** %d | **Horizon:** %s | **Run:** `%s`\n\n",
		cfg.Name, cfg.Seed, cfg.Horizon, res.RunID))

	sb.WriteString("## Market\n\n")
	sb.WriteString("| Parameter | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Initial fair value | %.2f |\n", cfg.Market.InitialFairValue))
	sb.WriteString(fmt.Sprintf("| Volatility (per sqrt s) | %.3f |\n", cfg.Market.Volatility))
	sb.WriteString(fmt.Sprintf("| Snapshot interval | %s |\n", cfg.Market.SnapshotInterval))
	sb.WriteString(fmt.Sprintf("| Fair value step | %s |\n", cfg.Market.FairValueStep))
	sb.WriteString(fmt.Sprintf("| Events | %d |\n", res.EventCount))
	sb.WriteString(fmt.Sprintf("| Trades | %d |\n", res.TradeCount))
	sb.WriteString(fmt.Sprintf("| Rejected actions | %d |\n", res.Rejected))
	sb.WriteString(fmt.Sprintf("| Log digest | `%s` |\n\n", res.Digest))

	sb.WriteString("## Participants\n\n")
	sb.WriteString("| Agent | Kind | Rate | Inventory | Cash | Return | Sharpe | Max DD |\n")
	sb.WriteString("|-------|------|------|-----------|------|--------|--------|--------|\n")
	perf := make(map[string]metrics.Performance, len(res.Performance))
	for _, p := range res.Performance {
		perf[p.AgentID] = p
	}
	for i, a := range res.Agents {
		p := perf[a.ID]
		sb.WriteString(fmt.Sprintf("| %s | %s | %.2f | %d | %s | %+.2f%% | %.3f | %.2f%% |\n",
			a.ID, a.Kind, cfg.Agents[i].Rate, a.Inventory, a.Cash.StringFixed(2),
			p.TotalReturn*100, p.Sharpe, p.MaxDrawdown*100))
	}
	sb.WriteString("\n")

	sb.WriteString("## Execution Metrics\n\n")
	sb.WriteString("| Agent | Fills | Bought | Sold | Maker Share | Slippage (bps) | Adverse Selection (bps) |\n")
	sb.WriteString("|-------|-------|--------|------|-------------|----------------|-------------------------|\n")
	for _, id := range metrics.SortedIDs(res.Metrics) {
		m := res.Metrics[id]
		sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %.1f%% | %.2f | %.2f |\n",
			id, m.Fills, m.BoughtQty, m.SoldQty, m.MakerShare*100, m.SlippageBps, m.AdverseSelectionBps))
	}
	sb.WriteString("\n")

	returns := metrics.LogReturns(res.Logger.MidSeries())
	sorted := slices.Clone(returns)
	slices.Sort(sorted)
	sb.WriteString("## Return Distribution\n\n")
	sb.WriteString("| Percentile | Log Return |\n")
	sb.WriteString("|------------|------------|\n")
	for _, p := range []float64{0.01, 0.05, 0.25, 0.50, 0.75, 0.95, 0.99} {
		sb.WriteString(fmt.Sprintf("| P%.0f | %+.6f |\n", p*100, percentile(sorted, p)))
	}
	sb.WriteString("\n")

	sb.WriteString("## Stylized Facts\n\n")
	sb.WriteString(r.generateExplanation())
	return sb.String()
}

func (r *Report) generateExplanation() string {
	f := r.res.Facts
	var sb strings.Builder

	if f.Returns < 2 {
		sb.WriteString("Too few defined mid prices to characterize returns.\n")
		return sb.String()
	}

	sb.WriteString("### Tails\n\n")
	sb.WriteString(fmt.Sprintf("Kurtosis of mid log returns is **%.2f** over %d returns. ", f.Kurtosis, f.Returns))
	switch {
	case math.IsNaN(f.Kurtosis):
		sb.WriteString("Returns have no variance, so the tails are undefined.\n\n")
	case f.Kurtosis > 3:
		sb.WriteString("That is above the normal value of 3: large moves happen more often than a Gaussian would predict.\n\n")
	default:
		sb.WriteString("That is at or below the normal value of 3, so the tails are no heavier than Gaussian.\n\n")
	}

	sb.WriteString("### Volatility Clustering\n\n")
	if len(f.AbsReturnACF) > 0 {
		lag1 := f.AbsReturnACF[0]
		sb.WriteString(fmt.Sprintf("Autocorrelation of absolute returns at lag 1 is **%.3f**. ", lag1))
		if lag1 > 0.05 {
			sb.WriteString("Large moves tend to follow large moves.\n\n")
		} else {
			sb.WriteString("Absolute returns show little persistence at this horizon.\n\n")
		}
	}

	if coverage := float64(f.DefinedMids) / float64(max(f.Snapshots, 1)); coverage < 0.9 {
		sb.WriteString("### Liquidity\n\n")
		sb.WriteString(fmt.Sprintf("The book was two-sided in only %.0f%% of snapshots. ", coverage*100))
		sb.WriteString("One-sided snapshots have no mid and are excluded from the return series.\n")
	}
	return sb.String()
}

func (r *Report) renderPlots() string {
	var sb strings.Builder

	sb.WriteString("=== Log Return Distribution (ASCII Histogram) ===\n\n")
	sb.WriteString(asciiHistogram(metrics.LogReturns(r.res.Logger.MidSeries()), 20))
	sb.WriteString("\n")

	sb.WriteString("=== |Return| Autocorrelation ===\n\n")
	sb.WriteString(asciiACF(r.res.Facts.AbsReturnACF))
	return sb.String()
}

// asciiHistogram draws a simple text histogram
func asciiHistogram(values []float64, bins int) string {
	if len(values) == 0 {
		return "  (no data)\n"
	}

	minV, maxV := slices.Min(values), slices.Max(values)
	if minV == maxV {
		return fmt.Sprintf("  all values = %.6f\n", minV)
	}

	binWidth := (maxV - minV) / float64(bins)
	counts := make([]int, bins)
	maxCount := 0
	for _, v := range values {
		idx := min(int((v-minV)/binWidth), bins-1)
		counts[idx]++
		maxCount = max(maxCount, counts[idx])
	}

	var sb strings.Builder
	barMax := 40
	for i, c := range counts {
		lo := minV + float64(i)*binWidth
		hi := lo + binWidth
		bar := strings.Repeat("█", c*barMax/maxCount)
		sb.WriteString(fmt.Sprintf("  %+9.6f to %+9.6f | %s (%d)\n", lo, hi, bar, c))
	}
	return sb.String()
}

// asciiACF draws one bar per lag, scaled to |acf| <= 1
func asciiACF(acf []float64) string {
	if len(acf) == 0 {
		return "  (no data)\n"
	}
	var sb strings.Builder
	for i, v := range acf {
		if math.IsNaN(v) {
			sb.WriteString(fmt.Sprintf("  lag %2d:      n/a |\n", i+1))
			continue
		}
		bar := strings.Repeat("▓", int(math.Abs(v)*40))
		sb.WriteString(fmt.Sprintf("  lag %2d: %+7.3f | %s\n", i+1, v, bar))
	}
	return sb.String()
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := p * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper || upper >= len(sorted) {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func formatFloat(v float64, format string) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf(format, v)
}
