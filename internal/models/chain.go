// Package models provides analytic robot models implementing the
// robot.Robot capability. They keep the dynamics simple enough to verify by
// hand while still exercising every code path of the solver core: diagonal
// mass matrices, pendulum-style gravity terms, and point contacts with
// constant Jacobians.
package models

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/robot"
)

// Chain is a fixed-base serial chain with decoupled joint dynamics
//
//	m_i*a_i + d_i*v_i + m_i*g*l_i*sin(q_i) = u_i
//
// It has no contact candidates and no passive joints.
type Chain struct {
	NumJoints int
	Mass      float64
	Length    float64
	Damping   float64
	Gravity   float64

	q, v, a *mat.VecDense
}

// NewChain creates a chain with default parameters.
func NewChain(numJoints int) *Chain {
	return &Chain{
		NumJoints: numJoints,
		Mass:      1.0,
		Length:    1.0,
		Damping:   0.1,
		Gravity:   9.81,
		q:         mat.NewVecDense(numJoints, nil),
		v:         mat.NewVecDense(numJoints, nil),
		a:         mat.NewVecDense(numJoints, nil),
	}
}

func (c *Chain) Dimq() int            { return c.NumJoints }
func (c *Chain) Dimv() int            { return c.NumJoints }
func (c *Chain) Dimu() int            { return c.NumJoints }
func (c *Chain) DimPassive() int      { return 0 }
func (c *Chain) MaxNumContacts() int  { return 0 }
func (c *Chain) HasFloatingBase() bool { return false }

func (c *Chain) IntegrateConfiguration(v mat.Vector, dt float64, q *mat.VecDense) {
	q.AddScaledVec(q, dt, v)
}

func (c *Chain) SubtractConfiguration(qf, q0 mat.Vector, diff *mat.VecDense) {
	diff.SubVec(qf, q0)
}

func (c *Chain) UpdateKinematics(q, v, a mat.Vector) {
	c.q.CloneFromVec(q)
	c.v.CloneFromVec(v)
	c.a.CloneFromVec(a)
}

func (c *Chain) FramePosition(contactIndex int, p *mat.VecDense) {
	panic("models: Chain has no contact frames")
}

func (c *Chain) SetContactForces(status *robot.ContactStatus, f []*mat.VecDense) {}
func (c *Chain) SetImpulseForces(status *robot.ImpulseStatus, f []*mat.VecDense) {}

// inertia returns the rotational inertia m*l^2 of each joint.
func (c *Chain) inertia() float64 { return c.Mass * c.Length * c.Length }

func (c *Chain) RNEA(q, v, a mat.Vector, tau *mat.VecDense) {
	mgl := c.Mass * c.Gravity * c.Length
	in := c.inertia()
	for i := 0; i < c.NumJoints; i++ {
		tau.SetVec(i, in*a.AtVec(i)+c.Damping*v.AtVec(i)+mgl*math.Sin(q.AtVec(i)))
	}
}

func (c *Chain) RNEADerivatives(q, v, a mat.Vector, dIDdq, dIDdv, dIDda *mat.Dense) {
	mgl := c.Mass * c.Gravity * c.Length
	in := c.inertia()
	dIDdq.Zero()
	dIDdv.Zero()
	dIDda.Zero()
	for i := 0; i < c.NumJoints; i++ {
		dIDdq.Set(i, i, mgl*math.Cos(q.AtVec(i)))
		dIDdv.Set(i, i, c.Damping)
		dIDda.Set(i, i, in)
	}
}

func (c *Chain) RNEAImpulse(q, dv mat.Vector, res *mat.VecDense) {
	in := c.inertia()
	for i := 0; i < c.NumJoints; i++ {
		res.SetVec(i, in*dv.AtVec(i))
	}
}

func (c *Chain) RNEAImpulseDerivatives(q, dv mat.Vector, dIDdq, dIDddv *mat.Dense) {
	dIDdq.Zero()
	dIDddv.Zero()
	in := c.inertia()
	for i := 0; i < c.NumJoints; i++ {
		dIDddv.Set(i, i, in)
	}
}

func (c *Chain) ComputeBaumgarteResidual(status *robot.ContactStatus, res *mat.VecDense) {}
func (c *Chain) ComputeBaumgarteDerivatives(status *robot.ContactStatus, dCdq, dCdv, dCda *mat.Dense) {
}

func (c *Chain) ComputeImpulseVelocityResidual(status *robot.ImpulseStatus, v, dv mat.Vector, res *mat.VecDense) {
}
func (c *Chain) ComputeImpulseVelocityDerivatives(status *robot.ImpulseStatus, dCdq, dCdv *mat.Dense) {
}

func (c *Chain) ComputeContactPositionResidual(status *robot.ImpulseStatus, res *mat.VecDense) {}
func (c *Chain) ComputeContactPositionDerivative(status *robot.ImpulseStatus, dPdq *mat.Dense)  {}

func (c *Chain) ComputeMJtJinv(dIDda, dCda *mat.Dense, out *mat.Dense) {
	computeMJtJinv(c.NumJoints, dIDda, dCda, out)
}

func (c *Chain) Clone() robot.Robot {
	clone := NewChain(c.NumJoints)
	clone.Mass = c.Mass
	clone.Length = c.Length
	clone.Damping = c.Damping
	clone.Gravity = c.Gravity
	return clone
}

// computeMJtJinv assembles the contact-dynamics KKT block
// [[M, J^T], [J, 0]] and inverts it densely. Shared by all models.
func computeMJtJinv(dimv int, dIDda, dCda *mat.Dense, out *mat.Dense) {
	dimf := 0
	if dCda != nil {
		dimf, _ = dCda.Dims()
	}
	dim := dimv + dimf
	kkt := mat.NewDense(dim, dim, nil)
	kkt.Slice(0, dimv, 0, dimv).(*mat.Dense).Copy(dIDda)
	if dimf > 0 {
		kkt.Slice(0, dimv, dimv, dim).(*mat.Dense).Copy(dCda.T())
		kkt.Slice(dimv, dim, 0, dimv).(*mat.Dense).Copy(dCda)
	}
	if err := out.Inverse(kkt); err != nil {
		panic("models: contact-dynamics KKT block is singular: " + err.Error())
	}
}
