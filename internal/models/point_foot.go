package models

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/robot"
)

// PointFoot is a floating-base robot reduced to a point-mass base and
// point-mass feet. The configuration stacks the 3D base position followed by
// the 3D offset of each foot from the base, so each foot's world position is
//
//	p_i(q) = q[0:3] + q[3+3i : 6+3i]
//
// and the contact Jacobians are constant. The three base coordinates are
// passive; the foot offsets are directly actuated. The generalized dynamics
// are diagonal with damping, plus a restoring spring on each foot offset
// toward its rest pose.
type PointFoot struct {
	NumFeet   int
	BaseMass  float64
	FootMass  float64
	Damping   float64
	Stiffness float64
	Gravity   float64
	// Baumgarte stabilization gains on velocity and position.
	BaumgarteVel float64
	BaumgartePos float64
	// RestOffset is the rest pose of every foot offset.
	RestOffset *mat.VecDense

	q, v, a *mat.VecDense
	// jtf is the generalized contact force J^T f, refreshed by
	// SetContactForces / SetImpulseForces.
	jtf *mat.VecDense
}

// NewPointFoot creates a point-foot robot with numFeet contact candidates.
func NewPointFoot(numFeet int) *PointFoot {
	dim := 3 + 3*numFeet
	rest := mat.NewVecDense(3, nil)
	rest.SetVec(2, -0.5)
	return &PointFoot{
		NumFeet:      numFeet,
		BaseMass:     10.0,
		FootMass:     1.0,
		Damping:      0.5,
		Stiffness:    20.0,
		Gravity:      9.81,
		BaumgarteVel: 20.0,
		BaumgartePos: 100.0,
		RestOffset:   rest,
		q:            mat.NewVecDense(dim, nil),
		v:            mat.NewVecDense(dim, nil),
		a:            mat.NewVecDense(dim, nil),
		jtf:          mat.NewVecDense(dim, nil),
	}
}

func (p *PointFoot) Dimq() int             { return 3 + 3*p.NumFeet }
func (p *PointFoot) Dimv() int             { return 3 + 3*p.NumFeet }
func (p *PointFoot) Dimu() int             { return 3 * p.NumFeet }
func (p *PointFoot) DimPassive() int       { return 3 }
func (p *PointFoot) MaxNumContacts() int   { return p.NumFeet }
func (p *PointFoot) HasFloatingBase() bool { return true }

func (p *PointFoot) IntegrateConfiguration(v mat.Vector, dt float64, q *mat.VecDense) {
	q.AddScaledVec(q, dt, v)
}

func (p *PointFoot) SubtractConfiguration(qf, q0 mat.Vector, diff *mat.VecDense) {
	diff.SubVec(qf, q0)
}

func (p *PointFoot) UpdateKinematics(q, v, a mat.Vector) {
	p.q.CloneFromVec(q)
	p.v.CloneFromVec(v)
	p.a.CloneFromVec(a)
}

// FramePosition writes the world position of foot contactIndex using the
// configuration from the last UpdateKinematics call.
func (p *PointFoot) FramePosition(contactIndex int, pos *mat.VecDense) {
	off := 3 + 3*contactIndex
	for k := 0; k < 3; k++ {
		pos.SetVec(k, p.q.AtVec(k)+p.q.AtVec(off+k))
	}
}

// frameVelocity and frameAcceleration exploit the constant Jacobian.
func (p *PointFoot) frameDeriv(contactIndex int, src *mat.VecDense, out *mat.VecDense) {
	off := 3 + 3*contactIndex
	for k := 0; k < 3; k++ {
		out.SetVec(k, src.AtVec(k)+src.AtVec(off+k))
	}
}

func (p *PointFoot) SetContactForces(status *robot.ContactStatus, f []*mat.VecDense) {
	p.jtf.Zero()
	for i := 0; i < status.MaxNumContacts(); i++ {
		if !status.IsContactActive(i) {
			continue
		}
		off := 3 + 3*i
		for k := 0; k < 3; k++ {
			p.jtf.SetVec(k, p.jtf.AtVec(k)+f[i].AtVec(k))
			p.jtf.SetVec(off+k, p.jtf.AtVec(off+k)+f[i].AtVec(k))
		}
	}
}

func (p *PointFoot) SetImpulseForces(status *robot.ImpulseStatus, f []*mat.VecDense) {
	p.SetContactForces(status.ContactStatus(), f)
}

// massAt returns the diagonal generalized inertia of coordinate i.
func (p *PointFoot) massAt(i int) float64 {
	if i < 3 {
		return p.BaseMass
	}
	return p.FootMass
}

// springAt returns the restoring force of coordinate i at configuration q.
func (p *PointFoot) springAt(i int, q mat.Vector) float64 {
	if i < 3 {
		return 0
	}
	return p.Stiffness * (q.AtVec(i) - p.RestOffset.AtVec((i-3)%3))
}

// gravityAt returns the gravity term of coordinate i. Gravity loads the
// vertical (z) components of the base and of each foot offset.
func (p *PointFoot) gravityAt(i int) float64 {
	if i == 2 {
		return p.BaseMass * p.Gravity
	}
	if i >= 3 && (i-3)%3 == 2 {
		return p.FootMass * p.Gravity
	}
	return 0
}

func (p *PointFoot) RNEA(q, v, a mat.Vector, tau *mat.VecDense) {
	dim := p.Dimv()
	for i := 0; i < dim; i++ {
		tau.SetVec(i, p.massAt(i)*a.AtVec(i)+p.Damping*v.AtVec(i)+
			p.springAt(i, q)+p.gravityAt(i)-p.jtf.AtVec(i))
	}
}

func (p *PointFoot) RNEADerivatives(q, v, a mat.Vector, dIDdq, dIDdv, dIDda *mat.Dense) {
	dim := p.Dimv()
	dIDdq.Zero()
	dIDdv.Zero()
	dIDda.Zero()
	for i := 0; i < dim; i++ {
		if i >= 3 {
			dIDdq.Set(i, i, p.Stiffness)
		}
		dIDdv.Set(i, i, p.Damping)
		dIDda.Set(i, i, p.massAt(i))
	}
}

func (p *PointFoot) RNEAImpulse(q, dv mat.Vector, res *mat.VecDense) {
	dim := p.Dimv()
	for i := 0; i < dim; i++ {
		res.SetVec(i, p.massAt(i)*dv.AtVec(i)-p.jtf.AtVec(i))
	}
}

func (p *PointFoot) RNEAImpulseDerivatives(q, dv mat.Vector, dIDdq, dIDddv *mat.Dense) {
	dIDdq.Zero()
	dIDddv.Zero()
	for i := 0; i < p.Dimv(); i++ {
		dIDddv.Set(i, i, p.massAt(i))
	}
}

// contactJacobianRows writes the constant Jacobian of contact i into the
// three rows of dst starting at row.
func (p *PointFoot) contactJacobianRows(i, row int, dst *mat.Dense, scale float64) {
	off := 3 + 3*i
	for k := 0; k < 3; k++ {
		dst.Set(row+k, k, scale)
		dst.Set(row+k, off+k, scale)
	}
}

func (p *PointFoot) ComputeBaumgarteResidual(status *robot.ContactStatus, res *mat.VecDense) {
	pos := mat.NewVecDense(3, nil)
	vel := mat.NewVecDense(3, nil)
	acc := mat.NewVecDense(3, nil)
	row := 0
	for i := 0; i < status.MaxNumContacts(); i++ {
		if !status.IsContactActive(i) {
			continue
		}
		p.FramePosition(i, pos)
		p.frameDeriv(i, p.v, vel)
		p.frameDeriv(i, p.a, acc)
		ref := status.ContactPlacement(i)
		for k := 0; k < 3; k++ {
			res.SetVec(row+k, acc.AtVec(k)+p.BaumgarteVel*vel.AtVec(k)+
				p.BaumgartePos*(pos.AtVec(k)-ref.AtVec(k)))
		}
		row += 3
	}
}

func (p *PointFoot) ComputeBaumgarteDerivatives(status *robot.ContactStatus, dCdq, dCdv, dCda *mat.Dense) {
	dCdq.Zero()
	dCdv.Zero()
	dCda.Zero()
	row := 0
	for i := 0; i < status.MaxNumContacts(); i++ {
		if !status.IsContactActive(i) {
			continue
		}
		p.contactJacobianRows(i, row, dCdq, p.BaumgartePos)
		p.contactJacobianRows(i, row, dCdv, p.BaumgarteVel)
		p.contactJacobianRows(i, row, dCda, 1.0)
		row += 3
	}
}

func (p *PointFoot) ComputeImpulseVelocityResidual(status *robot.ImpulseStatus, v, dv mat.Vector, res *mat.VecDense) {
	row := 0
	for i := 0; i < status.MaxNumContacts(); i++ {
		if !status.IsImpulseActive(i) {
			continue
		}
		off := 3 + 3*i
		for k := 0; k < 3; k++ {
			res.SetVec(row+k, v.AtVec(k)+v.AtVec(off+k)+dv.AtVec(k)+dv.AtVec(off+k))
		}
		row += 3
	}
}

func (p *PointFoot) ComputeImpulseVelocityDerivatives(status *robot.ImpulseStatus, dCdq, dCdv *mat.Dense) {
	dCdq.Zero()
	dCdv.Zero()
	row := 0
	for i := 0; i < status.MaxNumContacts(); i++ {
		if !status.IsImpulseActive(i) {
			continue
		}
		p.contactJacobianRows(i, row, dCdv, 1.0)
		row += 3
	}
}

func (p *PointFoot) ComputeContactPositionResidual(status *robot.ImpulseStatus, res *mat.VecDense) {
	pos := mat.NewVecDense(3, nil)
	row := 0
	for i := 0; i < status.MaxNumContacts(); i++ {
		if !status.IsImpulseActive(i) {
			continue
		}
		p.FramePosition(i, pos)
		ref := status.ContactPlacement(i)
		for k := 0; k < 3; k++ {
			res.SetVec(row+k, pos.AtVec(k)-ref.AtVec(k))
		}
		row += 3
	}
}

func (p *PointFoot) ComputeContactPositionDerivative(status *robot.ImpulseStatus, dPdq *mat.Dense) {
	dPdq.Zero()
	row := 0
	for i := 0; i < status.MaxNumContacts(); i++ {
		if !status.IsImpulseActive(i) {
			continue
		}
		p.contactJacobianRows(i, row, dPdq, 1.0)
		row += 3
	}
}

func (p *PointFoot) ComputeMJtJinv(dIDda, dCda *mat.Dense, out *mat.Dense) {
	computeMJtJinv(p.Dimv(), dIDda, dCda, out)
}

func (p *PointFoot) Clone() robot.Robot {
	clone := NewPointFoot(p.NumFeet)
	clone.BaseMass = p.BaseMass
	clone.FootMass = p.FootMass
	clone.Damping = p.Damping
	clone.Stiffness = p.Stiffness
	clone.Gravity = p.Gravity
	clone.BaumgarteVel = p.BaumgarteVel
	clone.BaumgartePos = p.BaumgartePos
	clone.RestOffset.CloneFromVec(p.RestOffset)
	return clone
}
