// Package metrics computes summary statistics of a solved trajectory.
package metrics

import "github.com/san-kum/trajopt/internal/trajectory"

type Metric interface {
	Name() string
	Observe(t float64, q, v, u, f trajectory.Sample)
	Value() float64
	Reset()
}

// Evaluate runs every metric over the trajectory and collects the values by
// name.
func Evaluate(tr *trajectory.Trajectory, ms ...Metric) map[string]float64 {
	for _, m := range ms {
		m.Reset()
	}
	for i := 0; i < tr.Len(); i++ {
		for _, m := range ms {
			m.Observe(tr.Times[i], tr.Q[i], tr.V[i], tr.U[i], tr.F[i])
		}
	}
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name()] = m.Value()
	}
	return out
}

// Standard returns the metric set reported after a solve.
func Standard() []Metric {
	return []Metric{
		NewControlEffort(),
		NewPeakTorque(),
		NewPathLength(),
		NewMaxVelocity(),
		NewMaxNormalForce(),
	}
}
