package metrics

import (
	"math"

	"github.com/san-kum/trajopt/internal/trajectory"
)

type ControlEffort struct {
	name    string
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(t float64, q, v, u, f trajectory.Sample) {
	for _, val := range u {
		c.sum += math.Abs(val)
	}
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}

type PeakTorque struct {
	name string
	peak float64
}

func NewPeakTorque() *PeakTorque {
	return &PeakTorque{name: "peak_torque"}
}

func (p *PeakTorque) Name() string {
	return p.name
}

func (p *PeakTorque) Observe(t float64, q, v, u, f trajectory.Sample) {
	for _, val := range u {
		if a := math.Abs(val); a > p.peak {
			p.peak = a
		}
	}
}

func (p *PeakTorque) Value() float64 {
	return p.peak
}

func (p *PeakTorque) Reset() {
	p.peak = 0
}
