package metrics

import (
	"github.com/san-kum/trajopt/internal/robot"
	"github.com/san-kum/trajopt/internal/trajectory"
)

// MaxNormalForce tracks the largest normal component over all contact
// candidates. Force rows stack ContactDim entries per candidate with the
// normal last.
type MaxNormalForce struct {
	name string
	max  float64
}

func NewMaxNormalForce() *MaxNormalForce {
	return &MaxNormalForce{name: "max_normal_force"}
}

func (m *MaxNormalForce) Name() string {
	return m.name
}

func (m *MaxNormalForce) Observe(t float64, q, v, u, f trajectory.Sample) {
	for i := robot.ContactDim - 1; i < len(f); i += robot.ContactDim {
		if f[i] > m.max {
			m.max = f[i]
		}
	}
}

func (m *MaxNormalForce) Value() float64 {
	return m.max
}

func (m *MaxNormalForce) Reset() {
	m.max = 0
}
