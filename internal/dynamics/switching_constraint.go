package dynamics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/robot"
)

// SwitchingConstraintJacobian holds the derivatives of the switching
// constraint with respect to the state, acceleration, control, and the
// switching time, sliced to the impulse dimension.
type SwitchingConstraintJacobian struct {
	Phix *mat.Dense
	Phia *mat.Dense
	Phiu *mat.Dense
	Phit *mat.VecDense
}

// SwitchingConstraintResidual holds the constraint residual.
type SwitchingConstraintResidual struct {
	P *mat.VecDense
}

// SquaredNorm returns the squared norm of the residual.
func (r *SwitchingConstraintResidual) SquaredNorm() float64 {
	return mat.Dot(r.P, r.P)
}

// SwitchingConstraint requires the contact frames activated by an upcoming
// impulse to reach their placements at the impulse time. The constraint is
// imposed on the stage two steps before the impulse, on the configuration
// predicted over the two intervals dt1 and dt2:
//
//	q_pred = q (+) (dt1+dt2)*v (+) (dt1*dt2)*a
type SwitchingConstraint struct {
	dimv, dimu, dimq, maxDimi int

	phixFull *mat.Dense
	phiaFull *mat.Dense
	phiuFull *mat.Dense
	phitFull *mat.VecDense
	pFull    *mat.VecDense
	pqFull   *mat.Dense

	qPred *mat.VecDense
	dimi  int
}

// NewSwitchingConstraint creates the workspace for one robot model.
func NewSwitchingConstraint(rb robot.Robot) *SwitchingConstraint {
	dimv := rb.Dimv()
	dimu := rb.Dimu()
	maxDimi := robot.ContactDim * rb.MaxNumContacts()
	m := maxOne(maxDimi)
	nu := maxOne(dimu)
	return &SwitchingConstraint{
		dimv:     dimv,
		dimu:     dimu,
		dimq:     rb.Dimq(),
		maxDimi:  maxDimi,
		phixFull: mat.NewDense(m, 2*dimv, nil),
		phiaFull: mat.NewDense(m, dimv, nil),
		phiuFull: mat.NewDense(m, nu, nil),
		phitFull: mat.NewVecDense(m, nil),
		pFull:    mat.NewVecDense(m, nil),
		pqFull:   mat.NewDense(m, dimv, nil),
		qPred:    mat.NewVecDense(rb.Dimq(), nil),
	}
}

// Jacobian returns the Jacobian sliced to the current impulse dimension.
func (sc *SwitchingConstraint) Jacobian() *SwitchingConstraintJacobian {
	return &SwitchingConstraintJacobian{
		Phix: sc.phixFull.Slice(0, sc.dimi, 0, 2*sc.dimv).(*mat.Dense),
		Phia: sc.phiaFull.Slice(0, sc.dimi, 0, sc.dimv).(*mat.Dense),
		Phiu: sc.phiuFull.Slice(0, sc.dimi, 0, sc.dimu).(*mat.Dense),
		Phit: sc.phitFull.SliceVec(0, sc.dimi).(*mat.VecDense),
	}
}

// Residual returns the residual sliced to the current impulse dimension.
func (sc *SwitchingConstraint) Residual() *SwitchingConstraintResidual {
	return &SwitchingConstraintResidual{P: sc.pFull.SliceVec(0, sc.dimi).(*mat.VecDense)}
}

// Linearize evaluates the switching constraint at the predicted
// configuration and fills the residual and Jacobians. dt1 is the length of
// the stage interval carrying the constraint, dt2 the interval reaching the
// impulse.
func (sc *SwitchingConstraint) Linearize(rb robot.Robot, status *robot.ImpulseStatus, dt1, dt2 float64, s *core.SplitSolution) {
	if dt1 <= 0 || dt2 <= 0 {
		panic("dynamics: nonpositive switching intervals")
	}
	sc.dimi = status.Dimi()
	if sc.dimi == 0 {
		return
	}

	sc.qPred.CloneFromVec(s.Q)
	rb.IntegrateConfiguration(s.V, dt1+dt2, sc.qPred)
	rb.IntegrateConfiguration(s.A, dt1*dt2, sc.qPred)
	rb.UpdateKinematics(sc.qPred, s.V, s.A)

	p := sc.pFull.SliceVec(0, sc.dimi).(*mat.VecDense)
	pq := sc.pqFull.Slice(0, sc.dimi, 0, sc.dimv).(*mat.Dense)
	rb.ComputeContactPositionResidual(status, p)
	rb.ComputeContactPositionDerivative(status, pq)

	phiq := sc.phixFull.Slice(0, sc.dimi, 0, sc.dimv).(*mat.Dense)
	phiv := sc.phixFull.Slice(0, sc.dimi, sc.dimv, 2*sc.dimv).(*mat.Dense)
	phia := sc.phiaFull.Slice(0, sc.dimi, 0, sc.dimv).(*mat.Dense)
	phiq.Copy(pq)
	phiv.Scale(dt1+dt2, pq)
	phia.Scale(dt1*dt2, pq)

	// Time sensitivity of the predicted contact position.
	phit := sc.phitFull.SliceVec(0, sc.dimi).(*mat.VecDense)
	var vtmp mat.VecDense
	vtmp.ReuseAsVec(sc.dimv)
	vtmp.AddScaledVec(s.V, dt1, s.A)
	phit.MulVec(pq, &vtmp)
}

// AddDualResidual accumulates the multiplier terms of the switching
// constraint into the stage KKT residual. Call after Linearize.
func (sc *SwitchingConstraint) AddDualResidual(s *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	if sc.dimi == 0 || s.Dimi() == 0 {
		return
	}
	jac := sc.Jacobian()
	xi := s.XiStack()
	addMulVecT(kktRes.Lx, jac.Phix, xi, 1)
	addMulVecT(kktRes.La, jac.Phia, xi, 1)
}

// Dimi returns the impulse dimension of the last linearization.
func (sc *SwitchingConstraint) Dimi() int { return sc.dimi }
