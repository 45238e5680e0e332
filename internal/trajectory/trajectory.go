// Package trajectory flattens a solved horizon into a time-indexed record
// for metrics, storage, and plotting. Impulse and auxiliary stages are
// spliced into the grid in time order, so a row exists for every shooting
// node the solver optimized.
package trajectory

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/hybrid"
	"github.com/san-kum/trajopt/internal/robot"
)

type Sample []float64

func (s Sample) Clone() Sample {
	c := make(Sample, len(s))
	copy(c, s)
	return c
}

// IsValid reports whether every entry is finite.
func (s Sample) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Norm returns the Euclidean norm.
func (s Sample) Norm() float64 {
	return floats.Norm(s, 2)
}

// Trajectory is the flattened record of one solved horizon. F rows stack the
// forces of all contact candidates, inactive candidates included.
type Trajectory struct {
	Times []float64
	Q     []Sample
	V     []Sample
	U     []Sample
	F     []Sample
}

// Len returns the number of samples.
func (tr *Trajectory) Len() int { return len(tr.Times) }

// IsValid reports whether every sample is finite.
func (tr *Trajectory) IsValid() bool {
	for i := range tr.Times {
		if !tr.Q[i].IsValid() || !tr.V[i].IsValid() || !tr.U[i].IsValid() || !tr.F[i].IsValid() {
			return false
		}
	}
	return true
}

// sampleOf copies v into a sample of length dim, zero-padded. Impulse stages
// carry no control, so their u rows record zeros to keep the columns fixed
// width.
func sampleOf(v *mat.VecDense, dim int) Sample {
	out := make(Sample, dim)
	for i := 0; v != nil && i < v.Len() && i < dim; i++ {
		out[i] = v.AtVec(i)
	}
	return out
}

func forceSample(s *core.SplitSolution, maxContacts int) Sample {
	out := make(Sample, robot.ContactDim*maxContacts)
	for i := 0; i < maxContacts; i++ {
		for k := 0; k < robot.ContactDim; k++ {
			out[i*robot.ContactDim+k] = s.F[i].AtVec(k)
		}
	}
	return out
}

// FromSolution flattens the solution over the discretized horizon. The robot
// supplies the contact candidate count for the force columns.
func FromSolution(rb robot.Robot, disc *hybrid.Discretization, s *core.Solution) *Trajectory {
	n := disc.N()
	tr := &Trajectory{}
	push := func(t float64, ss *core.SplitSolution) {
		tr.Times = append(tr.Times, t)
		tr.Q = append(tr.Q, sampleOf(ss.Q, rb.Dimq()))
		tr.V = append(tr.V, sampleOf(ss.V, rb.Dimv()))
		tr.U = append(tr.U, sampleOf(ss.U, rb.Dimu()))
		tr.F = append(tr.F, forceSample(ss, rb.MaxNumContacts()))
	}
	for i := 0; i <= n; i++ {
		push(disc.Time(i), s.Grid[i])
		if i < n && disc.IsStageBeforeImpulse(i) {
			idx := disc.ImpulseIndexAfterStage(i)
			push(disc.TimeImpulse(idx), s.Impulse[idx])
			push(disc.TimeImpulse(idx), s.Aux[idx])
		}
		if i < n && disc.IsStageBeforeLift(i) {
			idx := disc.LiftIndexAfterStage(i)
			push(disc.TimeLift(idx), s.Lift[idx])
		}
	}
	return tr
}
