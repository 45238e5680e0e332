// Package core defines the per-stage primal-dual variables and the dense
// KKT blocks exchanged between the direct multiple shooting sweep and the
// Riccati recursion. One set of types serves regular, impulse, auxiliary,
// lift, and terminal stages: at an impulse stage the acceleration slot holds
// the impulse velocity change and the control is unused.
package core

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/robot"
)

// SplitSolution holds the primal and dual variables of one stage.
type SplitSolution struct {
	// Q is the configuration, V the generalized velocity.
	Q, V *mat.VecDense
	// A is the generalized acceleration; at an impulse stage it holds the
	// impulse change in the generalized velocity.
	A *mat.VecDense
	// U is the actuated joint torque.
	U *mat.VecDense
	// F holds the contact force of every candidate; only entries of active
	// contacts are meaningful.
	F []*mat.VecDense
	// Lmd and Gmm are the costate of the state equation w.r.t. q and v.
	Lmd, Gmm *mat.VecDense
	// Beta is the multiplier of the inverse-dynamics constraint.
	Beta *mat.VecDense
	// Mu holds the multiplier of the contact constraint per candidate.
	Mu []*mat.VecDense
	// NuPassive is the multiplier of the passive-joint constraint.
	NuPassive *mat.VecDense
	// Xi is the multiplier of the switching constraint when the stage
	// carries one; nil for robots without contact candidates.
	Xi *mat.VecDense

	fStack, muStack *mat.VecDense
	dimf, dimi      int
}

// NewSplitSolution allocates a split solution sized for rb.
func NewSplitSolution(rb robot.Robot) *SplitSolution {
	dimv := rb.Dimv()
	nc := rb.MaxNumContacts()
	s := &SplitSolution{
		Q:         mat.NewVecDense(rb.Dimq(), nil),
		V:         mat.NewVecDense(dimv, nil),
		A:         mat.NewVecDense(dimv, nil),
		U:         newVec(rb.Dimu()),
		Lmd:       mat.NewVecDense(dimv, nil),
		Gmm:       mat.NewVecDense(dimv, nil),
		Beta:      mat.NewVecDense(dimv, nil),
		NuPassive: newVec(rb.DimPassive()),
		F:         make([]*mat.VecDense, nc),
		Mu:        make([]*mat.VecDense, nc),
	}
	if nc > 0 {
		s.fStack = mat.NewVecDense(robot.ContactDim*nc, nil)
		s.muStack = mat.NewVecDense(robot.ContactDim*nc, nil)
		s.Xi = mat.NewVecDense(robot.ContactDim*nc, nil)
	}
	for i := 0; i < nc; i++ {
		s.F[i] = mat.NewVecDense(robot.ContactDim, nil)
		s.Mu[i] = mat.NewVecDense(robot.ContactDim, nil)
	}
	return s
}

// newVec allocates a vector, or returns nil for a zero dimension since
// gonum rejects zero-length vectors.
func newVec(n int) *mat.VecDense {
	if n == 0 {
		return nil
	}
	return mat.NewVecDense(n, nil)
}

// SetContactStatus resizes the active force and multiplier stacks.
func (s *SplitSolution) SetContactStatus(cs *robot.ContactStatus) {
	s.dimf = cs.Dimf()
	s.activeFlagsFrom(func(i int) bool { return cs.IsContactActive(i) })
}

// SetImpulseStatus resizes the stacks for an impulse stage.
func (s *SplitSolution) SetImpulseStatus(is *robot.ImpulseStatus) {
	s.dimf = is.Dimi()
	s.activeFlagsFrom(func(i int) bool { return is.IsImpulseActive(i) })
}

func (s *SplitSolution) activeFlagsFrom(active func(int) bool) {
	s.SetFStack(active)
	s.SetMuStack(active)
}

// Dimf returns the active contact-force dimension.
func (s *SplitSolution) Dimf() int { return s.dimf }

// SetSwitchingConstraintDimension sets the dimension of the switching
// constraint carried by this stage, zero when none.
func (s *SplitSolution) SetSwitchingConstraintDimension(dimi int) { s.dimi = dimi }

// Dimi returns the switching-constraint dimension.
func (s *SplitSolution) Dimi() int { return s.dimi }

// XiStack returns the active switching-constraint multiplier, or nil when
// the stage carries no switching constraint.
func (s *SplitSolution) XiStack() *mat.VecDense {
	if s.dimi == 0 {
		return nil
	}
	return s.Xi.SliceVec(0, s.dimi).(*mat.VecDense)
}

// FStack returns the stacked forces of the active contacts.
func (s *SplitSolution) FStack() *mat.VecDense {
	if s.dimf == 0 {
		return nil
	}
	return s.fStack.SliceVec(0, s.dimf).(*mat.VecDense)
}

// MuStack returns the stacked multipliers of the active contacts.
func (s *SplitSolution) MuStack() *mat.VecDense {
	if s.dimf == 0 {
		return nil
	}
	return s.muStack.SliceVec(0, s.dimf).(*mat.VecDense)
}

// SetFStack packs the per-contact forces of active contacts into the stack.
func (s *SplitSolution) SetFStack(active func(int) bool) {
	row := 0
	for i := range s.F {
		if !active(i) {
			continue
		}
		for k := 0; k < robot.ContactDim; k++ {
			s.fStack.SetVec(row+k, s.F[i].AtVec(k))
		}
		row += robot.ContactDim
	}
}

// SetMuStack packs the per-contact multipliers of active contacts.
func (s *SplitSolution) SetMuStack(active func(int) bool) {
	row := 0
	for i := range s.Mu {
		if !active(i) {
			continue
		}
		for k := 0; k < robot.ContactDim; k++ {
			s.muStack.SetVec(row+k, s.Mu[i].AtVec(k))
		}
		row += robot.ContactDim
	}
}

// unpackStacks writes the stacked values back into the per-contact vectors.
func (s *SplitSolution) unpackStacks(active func(int) bool) {
	row := 0
	for i := range s.F {
		if !active(i) {
			continue
		}
		for k := 0; k < robot.ContactDim; k++ {
			s.F[i].SetVec(k, s.fStack.AtVec(row+k))
			s.Mu[i].SetVec(k, s.muStack.AtVec(row+k))
		}
		row += robot.ContactDim
	}
}

// Integrate advances the solution along direction d with the given step
// size. The costate is advanced with the same (primal) step size; constraint
// slack and dual variables are handled by the constraint container.
func (s *SplitSolution) Integrate(rb robot.Robot, stepSize float64, d *SplitDirection, active func(int) bool) {
	rb.IntegrateConfiguration(d.Dq(), stepSize, s.Q)
	s.V.AddScaledVec(s.V, stepSize, d.Dv())
	s.A.AddScaledVec(s.A, stepSize, d.Da())
	if s.U != nil {
		s.U.AddScaledVec(s.U, stepSize, d.Du)
	}
	s.Lmd.AddScaledVec(s.Lmd, stepSize, d.Dlmd())
	s.Gmm.AddScaledVec(s.Gmm, stepSize, d.Dgmm())
	s.Beta.AddScaledVec(s.Beta, stepSize, d.Dbeta())
	if s.NuPassive != nil {
		s.NuPassive.AddScaledVec(s.NuPassive, stepSize, d.DnuPassive)
	}
	if s.dimf > 0 {
		fs := s.FStack()
		fs.AddScaledVec(fs, stepSize, d.Df())
		mus := s.MuStack()
		mus.AddScaledVec(mus, stepSize, d.Dmu())
		if active != nil {
			s.unpackStacks(active)
		}
	}
	if s.dimi > 0 {
		xis := s.XiStack()
		xis.AddScaledVec(xis, stepSize, d.DxiStack())
	}
}

// CopyPrimal copies q, v, a, u, and f from another solution.
func (s *SplitSolution) CopyPrimal(other *SplitSolution) {
	s.Q.CloneFromVec(other.Q)
	s.V.CloneFromVec(other.V)
	s.A.CloneFromVec(other.A)
	if s.U != nil {
		s.U.CloneFromVec(other.U)
	}
	for i := range s.F {
		s.F[i].CloneFromVec(other.F[i])
	}
	s.dimf = other.dimf
	if s.fStack != nil {
		s.fStack.CloneFromVec(other.fStack)
	}
}
