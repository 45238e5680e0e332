package core

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/robot"
)

// SplitDirection is the Newton step of one stage, shaped like SplitSolution.
// The state step dx stacks (dq, dv); the condensed step daf stacks (da, df)
// and dbetamu the corresponding multipliers.
type SplitDirection struct {
	// Dx stacks the configuration and velocity steps.
	Dx *mat.VecDense
	// Du is the control step.
	Du *mat.VecDense
	// Daf stacks the acceleration (or impulse velocity-change) step and the
	// active contact-force step.
	Daf *mat.VecDense
	// Dlmdgmm stacks the costate steps.
	Dlmdgmm *mat.VecDense
	// Dbetamu stacks the inverse-dynamics and contact multiplier steps.
	Dbetamu *mat.VecDense
	// DnuPassive is the passive-joint multiplier step.
	DnuPassive *mat.VecDense
	// Dxi is the switching-constraint multiplier step; nil for robots
	// without contact candidates.
	Dxi *mat.VecDense
	// Dts is the switching-time step when STO is enabled for the stage.
	Dts float64

	dimv, dimf, dimi int
}

// NewSplitDirection allocates a direction sized for rb.
func NewSplitDirection(rb robot.Robot) *SplitDirection {
	dimv := rb.Dimv()
	maxf := robot.ContactDim * rb.MaxNumContacts()
	d := &SplitDirection{
		Dx:         mat.NewVecDense(2*dimv, nil),
		Du:         newVec(rb.Dimu()),
		Daf:        mat.NewVecDense(dimv+maxf, nil),
		Dlmdgmm:    mat.NewVecDense(2*dimv, nil),
		Dbetamu:    mat.NewVecDense(dimv+maxf, nil),
		DnuPassive: newVec(rb.DimPassive()),
		dimv:       dimv,
	}
	if maxf > 0 {
		d.Dxi = mat.NewVecDense(maxf, nil)
	}
	return d
}

// SetContactDimension sets the active contact-force dimension.
func (d *SplitDirection) SetContactDimension(dimf int) { d.dimf = dimf }

// Dimf returns the active contact-force dimension.
func (d *SplitDirection) Dimf() int { return d.dimf }

// Dq returns the configuration step view.
func (d *SplitDirection) Dq() *mat.VecDense { return d.Dx.SliceVec(0, d.dimv).(*mat.VecDense) }

// Dv returns the velocity step view.
func (d *SplitDirection) Dv() *mat.VecDense { return d.Dx.SliceVec(d.dimv, 2*d.dimv).(*mat.VecDense) }

// Da returns the acceleration step view.
func (d *SplitDirection) Da() *mat.VecDense { return d.Daf.SliceVec(0, d.dimv).(*mat.VecDense) }

// Df returns the active contact-force step view, or nil without contacts.
func (d *SplitDirection) Df() *mat.VecDense {
	if d.dimf == 0 {
		return nil
	}
	return d.Daf.SliceVec(d.dimv, d.dimv+d.dimf).(*mat.VecDense)
}

// DafActive returns the (da, df) stack truncated to the active dimension.
func (d *SplitDirection) DafActive() *mat.VecDense {
	return d.Daf.SliceVec(0, d.dimv+d.dimf).(*mat.VecDense)
}

// Dlmd returns the q-costate step view.
func (d *SplitDirection) Dlmd() *mat.VecDense { return d.Dlmdgmm.SliceVec(0, d.dimv).(*mat.VecDense) }

// Dgmm returns the v-costate step view.
func (d *SplitDirection) Dgmm() *mat.VecDense {
	return d.Dlmdgmm.SliceVec(d.dimv, 2*d.dimv).(*mat.VecDense)
}

// Dbeta returns the inverse-dynamics multiplier step view.
func (d *SplitDirection) Dbeta() *mat.VecDense { return d.Dbetamu.SliceVec(0, d.dimv).(*mat.VecDense) }

// Dmu returns the contact multiplier step view, or nil without contacts.
func (d *SplitDirection) Dmu() *mat.VecDense {
	if d.dimf == 0 {
		return nil
	}
	return d.Dbetamu.SliceVec(d.dimv, d.dimv+d.dimf).(*mat.VecDense)
}

// DbetamuActive returns the (dbeta, dmu) stack truncated to active size.
func (d *SplitDirection) DbetamuActive() *mat.VecDense {
	return d.Dbetamu.SliceVec(0, d.dimv+d.dimf).(*mat.VecDense)
}

// SetSwitchingConstraintDimension sets the stage's switching-constraint
// dimension, zero when it carries none.
func (d *SplitDirection) SetSwitchingConstraintDimension(dimi int) { d.dimi = dimi }

// Dimi returns the switching-constraint dimension.
func (d *SplitDirection) Dimi() int { return d.dimi }

// DxiStack returns the active switching-constraint multiplier step, or nil
// when the stage carries no switching constraint.
func (d *SplitDirection) DxiStack() *mat.VecDense {
	if d.dimi == 0 {
		return nil
	}
	return d.Dxi.SliceVec(0, d.dimi).(*mat.VecDense)
}

// Zero clears every component.
func (d *SplitDirection) Zero() {
	d.Dx.Zero()
	if d.Du != nil {
		d.Du.Zero()
	}
	d.Daf.Zero()
	d.Dlmdgmm.Zero()
	d.Dbetamu.Zero()
	if d.DnuPassive != nil {
		d.DnuPassive.Zero()
	}
	if d.Dxi != nil {
		d.Dxi.Zero()
	}
	d.Dts = 0
}
