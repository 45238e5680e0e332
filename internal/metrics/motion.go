package metrics

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/trajopt/internal/trajectory"
)

type PathLength struct {
	name    string
	length  float64
	prevQ   trajectory.Sample
	started bool
}

func NewPathLength() *PathLength {
	return &PathLength{name: "path_length"}
}

func (p *PathLength) Name() string {
	return p.name
}

func (p *PathLength) Observe(t float64, q, v, u, f trajectory.Sample) {
	if p.started {
		p.length += floats.Distance(q, p.prevQ, 2)
	}
	p.prevQ = q.Clone()
	p.started = true
}

func (p *PathLength) Value() float64 {
	return p.length
}

func (p *PathLength) Reset() {
	p.length = 0
	p.prevQ = nil
	p.started = false
}

type MaxVelocity struct {
	name string
	max  float64
}

func NewMaxVelocity() *MaxVelocity {
	return &MaxVelocity{name: "max_velocity"}
}

func (m *MaxVelocity) Name() string {
	return m.name
}

func (m *MaxVelocity) Observe(t float64, q, v, u, f trajectory.Sample) {
	if n := v.Norm(); n > m.max {
		m.max = n
	}
}

func (m *MaxVelocity) Value() float64 {
	return m.max
}

func (m *MaxVelocity) Reset() {
	m.max = 0
}
