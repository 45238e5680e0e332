package viz

import (
	"fmt"
	"math"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/trajopt/internal/trajectory"
)

// ConvergencePlot draws the KKT error per iteration on a log10 axis.
func ConvergencePlot(kktError []float64) string {
	if len(kktError) == 0 {
		return ""
	}
	data := make([]float64, len(kktError))
	for i, e := range kktError {
		if e <= 0 {
			e = math.SmallestNonzeroFloat64
		}
		data[i] = math.Log10(e)
	}
	return asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("log10 KKT error vs iteration"),
	)
}

// SeriesPlot draws one scalar series against its sample index.
func SeriesPlot(data []float64, caption string) string {
	if len(data) == 0 {
		return ""
	}
	return asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
}

// TrajectoryPlots renders the leading configuration, velocity, and control
// components of the trajectory, capped at maxPlots graphs.
func TrajectoryPlots(tr *trajectory.Trajectory, maxPlots int) string {
	if tr.Len() == 0 {
		return ""
	}
	var b strings.Builder
	plots := 0
	blocks := []struct {
		name string
		rows []trajectory.Sample
	}{
		{"q", tr.Q},
		{"v", tr.V},
		{"u", tr.U},
	}
	for _, block := range blocks {
		for k := 0; k < len(block.rows[0]) && plots < maxPlots; k++ {
			data := make([]float64, tr.Len())
			for i := range data {
				data[i] = block.rows[i][k]
			}
			b.WriteString(SeriesPlot(data, fmt.Sprintf("%s%d vs time", block.name, k)))
			b.WriteString("\n\n")
			plots++
		}
	}
	return b.String()
}
