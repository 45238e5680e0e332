// Package robot defines the rigid-body capability consumed by the solver
// core together with the contact bookkeeping types. The solver never looks
// inside a Robot; it only calls the methods below. Concrete models live in
// internal/models.
package robot

import "gonum.org/v1/gonum/mat"

// Robot is the rigid-body dynamics capability of one robot model.
//
// Implementations are NOT thread-safe: kinematics calls mutate internal
// caches. The solver keeps one Clone per worker thread and never shares a
// live instance across workers.
type Robot interface {
	// Dimq returns the dimension of the configuration.
	Dimq() int
	// Dimv returns the dimension of the generalized velocity.
	Dimv() int
	// Dimu returns the dimension of the actuated joint torques.
	Dimu() int
	// DimPassive returns the dimension of the passive (unactuated) joints.
	DimPassive() int
	// MaxNumContacts returns the number of point-contact candidates.
	MaxNumContacts() int
	// HasFloatingBase reports whether the base is unactuated.
	HasFloatingBase() bool

	// IntegrateConfiguration performs q <- q (+) dt*v.
	IntegrateConfiguration(v mat.Vector, dt float64, q *mat.VecDense)
	// SubtractConfiguration computes qf (-) q0 into diff.
	SubtractConfiguration(qf, q0 mat.Vector, diff *mat.VecDense)

	// UpdateKinematics refreshes frame placements and Jacobians for (q, v, a).
	UpdateKinematics(q, v, a mat.Vector)
	// FramePosition writes the current world position of the contact frame.
	FramePosition(contactIndex int, p *mat.VecDense)

	// SetContactForces registers the active contact forces so that RNEA
	// includes the term -J^T f.
	SetContactForces(status *ContactStatus, f []*mat.VecDense)
	// SetImpulseForces registers the active impulse forces for RNEAImpulse.
	SetImpulseForces(status *ImpulseStatus, f []*mat.VecDense)

	// RNEA computes the inverse dynamics tau = M(q)a + h(q, v) - J^T f.
	RNEA(q, v, a mat.Vector, tau *mat.VecDense)
	// RNEADerivatives computes the partial derivatives of RNEA.
	RNEADerivatives(q, v, a mat.Vector, dIDdq, dIDdv, dIDda *mat.Dense)
	// RNEAImpulse computes the impulse dynamics M(q)dv - J^T f.
	RNEAImpulse(q, dv mat.Vector, res *mat.VecDense)
	// RNEAImpulseDerivatives computes the partial derivatives of RNEAImpulse.
	RNEAImpulseDerivatives(q, dv mat.Vector, dIDdq, dIDddv *mat.Dense)

	// ComputeBaumgarteResidual evaluates the acceleration-level contact
	// constraint of the active contacts after UpdateKinematics.
	ComputeBaumgarteResidual(status *ContactStatus, res *mat.VecDense)
	// ComputeBaumgarteDerivatives evaluates the Jacobians of the Baumgarte
	// residual with respect to q, v, and a.
	ComputeBaumgarteDerivatives(status *ContactStatus, dCdq, dCdv, dCda *mat.Dense)

	// ComputeImpulseVelocityResidual evaluates the post-impulse contact
	// velocity constraint J(v + dv) of the active impulses.
	ComputeImpulseVelocityResidual(status *ImpulseStatus, v, dv mat.Vector, res *mat.VecDense)
	// ComputeImpulseVelocityDerivatives evaluates its Jacobians.
	ComputeImpulseVelocityDerivatives(status *ImpulseStatus, dCdq, dCdv *mat.Dense)

	// ComputeContactPositionResidual evaluates p(q) - p_ref of the active
	// impulses, used by the switching constraint.
	ComputeContactPositionResidual(status *ImpulseStatus, res *mat.VecDense)
	// ComputeContactPositionDerivative evaluates its configuration Jacobian.
	ComputeContactPositionDerivative(status *ImpulseStatus, dPdq *mat.Dense)

	// ComputeMJtJinv inverts the contact-dynamics KKT block
	// [[M, J^T], [J, 0]] given M = dIDda and J = dCda. The result has
	// dimension (dimv+dimf) x (dimv+dimf).
	ComputeMJtJinv(dIDda, dCda *mat.Dense, out *mat.Dense)

	// Clone returns a deep copy whose mutable kinematics caches are
	// independent of the receiver.
	Clone() Robot
}
