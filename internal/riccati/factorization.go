// Package riccati solves the condensed stage-wise KKT system for the Newton
// direction by a backward value-function recursion and a forward rollout.
// The backward pass visits stages in reverse order, chaining through the
// impulse and auxiliary stages an event inserts; a stage carrying a
// switching constraint gets an equality-constrained feedback gain and the
// constraint multiplier step.
package riccati

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/robot"
)

// SplitRiccatiFactorization is the quadratic value-function model of one
// stage: V(dx) = 0.5*dx^T P dx - S^T dx.
type SplitRiccatiFactorization struct {
	P *mat.Dense
	S *mat.VecDense
}

// NewSplitRiccatiFactorization allocates the factorization sized for rb.
func NewSplitRiccatiFactorization(rb robot.Robot) *SplitRiccatiFactorization {
	dimx := 2 * rb.Dimv()
	return &SplitRiccatiFactorization{
		P: mat.NewDense(dimx, dimx, nil),
		S: mat.NewVecDense(dimx, nil),
	}
}

// LQRPolicy is the affine feedback du = K dx + k of one stage.
type LQRPolicy struct {
	K *mat.Dense
	K0 *mat.VecDense
}

// NewLQRPolicy allocates the policy sized for rb.
func NewLQRPolicy(rb robot.Robot) *LQRPolicy {
	return &LQRPolicy{
		K:  mat.NewDense(rb.Dimu(), 2*rb.Dimv(), nil),
		K0: mat.NewVecDense(rb.Dimu(), nil),
	}
}

// SwitchingFactorization is the affine multiplier law dxi = M dx + m of a
// stage carrying a switching constraint.
type SwitchingFactorization struct {
	mFull  *mat.Dense
	m0Full *mat.VecDense
	dimi   int
	dimx   int
}

// NewSwitchingFactorization allocates for the contact-candidate bound of rb.
func NewSwitchingFactorization(rb robot.Robot) *SwitchingFactorization {
	maxDimi := robot.ContactDim * rb.MaxNumContacts()
	if maxDimi == 0 {
		return &SwitchingFactorization{}
	}
	dimx := 2 * rb.Dimv()
	return &SwitchingFactorization{
		mFull:  mat.NewDense(maxDimi, dimx, nil),
		m0Full: mat.NewVecDense(maxDimi, nil),
		dimx:   dimx,
	}
}

// SetDimension sets the active constraint dimension.
func (sf *SwitchingFactorization) SetDimension(dimi int) { sf.dimi = dimi }

// Dimi returns the active constraint dimension.
func (sf *SwitchingFactorization) Dimi() int { return sf.dimi }

// M returns the feedback part of the multiplier law.
func (sf *SwitchingFactorization) M() *mat.Dense {
	return sf.mFull.Slice(0, sf.dimi, 0, sf.dimx).(*mat.Dense)
}

// M0 returns the feedforward part of the multiplier law.
func (sf *SwitchingFactorization) M0() *mat.VecDense {
	return sf.m0Full.SliceVec(0, sf.dimi).(*mat.VecDense)
}
