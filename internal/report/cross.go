package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/akshitanchan/marketsim/internal/metrics"
	"github.com/akshitanchan/marketsim/internal/scenario"
	"github.com/akshitanchan/marketsim/internal/sim"
)

// CrossReport compares stylized facts and market activity across runs
type CrossReport struct {
	results []*sim.Result
}

// NewCrossReport creates a cross-scenario report
func NewCrossReport(results []*sim.Result) *CrossReport {
	return &CrossReport{results: results}
}

type rowDef struct {
	label string
	get   func(res *sim.Result) string
}

func (cr *CrossReport) rows() []rowDef {
	return []rowDef{
		{"Seed", func(res *sim.Result) string { return fmt.Sprintf("%d", res.Config.Seed) }},
		{"Agents", func(res *sim.Result) string { return fmt.Sprintf("%d", len(res.Agents)) }},
		{"Events", func(res *sim.Result) string { return fmt.Sprintf("%d", res.EventCount) }},
		{"Trades", func(res *sim.Result) string { return fmt.Sprintf("%d", res.TradeCount) }},
		{"Two-sided (%)", func(res *sim.Result) string {
			return fmt.Sprintf("%.1f", 100*float64(res.Facts.DefinedMids)/float64(max(res.Facts.Snapshots, 1)))
		}},
		{"Std return", func(res *sim.Result) string { return formatFloat(res.Facts.StdReturn, "%.2e") }},
		{"Kurtosis", func(res *sim.Result) string { return formatFloat(res.Facts.Kurtosis, "%.2f") }},
		{"|r| ACF lag 1", func(res *sim.Result) string {
			if len(res.Facts.AbsReturnACF) == 0 {
				return "n/a"
			}
			return formatFloat(res.Facts.AbsReturnACF[0], "%.3f")
		}},
		{"Maker return (%)", func(res *sim.Result) string {
			p, ok := makerPerformance(res)
			if !ok {
				return "n/a"
			}
			return fmt.Sprintf("%+.2f", p.TotalReturn*100)
		}},
	}
}

// makerPerformance returns the first market maker's performance, if any.
func makerPerformance(res *sim.Result) (metrics.Performance, bool) {
	for i, a := range res.Agents {
		if a.Kind == scenario.KindMarketMaker && i < len(res.Performance) {
			return res.Performance[i], true
		}
	}
	return metrics.Performance{}, false
}

// Render writes the styled comparison table to w
func (cr *CrossReport) Render(w io.Writer) error {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-18s", "Metric")))
	for _, res := range cr.results {
		b.WriteString(headerStyle.Render(fmt.Sprintf(" %12s", res.Config.Name)))
	}
	b.WriteString("\n")
	for _, row := range cr.rows() {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-18s", row.label)))
		for _, res := range cr.results {
			b.WriteString(rowStyle.Render(fmt.Sprintf(" %12s", row.get(res))))
		}
		b.WriteString("\n")
	}
	view := lipgloss.JoinVertical(lipgloss.Left,
		panel("Cross-Scenario Comparison", strings.TrimRight(b.String(), "\n")))
	_, err := fmt.Fprintln(w, view)
	return err
}

type scenarioSummary struct {
	Scenario    string                           `json:"scenario"`
	RunID       string                           `json:"run_id"`
	Digest      string                           `json:"digest"`
	Facts       metrics.Facts                    `json:"facts"`
	Execution   map[string]*metrics.AgentMetrics `json:"execution"`
	Performance []metrics.Performance            `json:"performance"`
}

func (cr *CrossReport) buildSummary() []scenarioSummary {
	summaries := make([]scenarioSummary, 0, len(cr.results))
	for _, res := range cr.results {
		summaries = append(summaries, scenarioSummary{
			Scenario:    res.Config.Name,
			RunID:       res.RunID,
			Digest:      res.Digest,
			Facts:       res.Facts,
			Execution:   res.Metrics,
			Performance: res.Performance,
		})
	}
	return summaries
}

// Generate writes cross-scenario-report.md and cross-scenario-metrics.json
// into outDir
func (cr *CrossReport) Generate(outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "cross-scenario-report.md"), []byte(cr.renderMarkdown()), 0o644); err != nil {
		return fmt.Errorf("write cross report: %w", err)
	}
	data, err := json.MarshalIndent(cr.buildSummary(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cross metrics: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "cross-scenario-metrics.json"), data, 0o644); err != nil {
		return fmt.Errorf("write cross metrics: %w", err)
	}
	return nil
}

func (cr *CrossReport) renderMarkdown() string {
	var sb strings.Builder

	sb.WriteString("# Cross-Scenario Comparison\n\n")
	sb.WriteString("Stylized facts and market activity for each preset population.\n\n")

	sb.WriteString("| Metric |")
	for _, res := range cr.results {
		sb.WriteString(fmt.Sprintf(" %s |", res.Config.Name))
	}
	sb.WriteString("\n|--------|")
	for range cr.results {
		sb.WriteString("--------|")
	}
	sb.WriteString("\n")
	for _, row := range cr.rows() {
		sb.WriteString(fmt.Sprintf("| %s |", row.label))
		for _, res := range cr.results {
			sb.WriteString(fmt.Sprintf(" %s |", row.get(res)))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Run Digests\n\n")
	for _, res := range cr.results {
		sb.WriteString(fmt.Sprintf("- **%s** (seed %d): `%s`\n", res.Config.Name, res.Config.Seed, res.Digest))
	}
	return sb.String()
}
