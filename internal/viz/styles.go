package viz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Panel with a rounded border for the solve summary.
	SummaryPanel = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444466")).
			Padding(1, 2)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00ffff"))

	Subtle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#666688"))

	MetricValue = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00ccff")).
			Bold(true)

	MetricLabel = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888899"))

	StatusConverged = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00ff88"))

	StatusDiverged = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ff4444"))
)

// SolveSummary lays out the headline numbers of a finished solve.
func SolveSummary(model string, converged bool, iterations int, kktError, cost float64, metrics map[string]float64) string {
	status := StatusConverged.Render("converged")
	if !converged {
		status = StatusDiverged.Render("not converged")
	}
	var b strings.Builder
	b.WriteString(Title.Render(model) + "  " + status + "\n\n")
	fmt.Fprintf(&b, "%s %s\n", MetricLabel.Render("iterations"), MetricValue.Render(fmt.Sprintf("%d", iterations)))
	fmt.Fprintf(&b, "%s  %s\n", MetricLabel.Render("KKT error"), MetricValue.Render(fmt.Sprintf("%.3e", kktError)))
	fmt.Fprintf(&b, "%s       %s\n", MetricLabel.Render("cost"), MetricValue.Render(fmt.Sprintf("%.6g", cost)))
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "%s %s\n", MetricLabel.Render(name), MetricValue.Render(fmt.Sprintf("%.4g", metrics[name])))
	}
	return SummaryPanel.Render(strings.TrimRight(b.String(), "\n"))
}
