package constraints

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/robot"
)

// coneRows is the number of linear pyramid rows per point contact.
const coneRows = 5

// FrictionCone keeps every active contact force inside a linearized friction
// pyramid. Per contact the rows are
//
//	-fz <= 0
//	 fx - (mu/sqrt(2)) fz <= 0
//	-fx - (mu/sqrt(2)) fz <= 0
//	 fy - (mu/sqrt(2)) fz <= 0
//	-fy - (mu/sqrt(2)) fz <= 0
//
// with the friction coefficient taken from the contact status. Rows of
// inactive contacts are carried with zero residual so the slack and dual
// vectors keep a fixed layout across contact-mode changes.
type FrictionCone struct {
	maxNumContacts int
}

// NewFrictionCone creates the component for a robot with the given number of
// contact candidates.
func NewFrictionCone(maxNumContacts int) *FrictionCone {
	return &FrictionCone{maxNumContacts: maxNumContacts}
}

func (c *FrictionCone) KinematicsLevel() KinematicsLevel { return AccelerationLevel }
func (c *FrictionCone) Dimc() int                        { return coneRows * c.maxNumContacts }
func (c *FrictionCone) AppliesToImpulse() bool           { return true }
func (c *FrictionCone) AllocateExtraData(*Data)          {}

// coneResidual writes the five pyramid values of one contact force.
func coneResidual(mu float64, f *mat.VecDense, out []float64) {
	m := mu / math.Sqrt2
	fx, fy, fz := f.AtVec(0), f.AtVec(1), f.AtVec(2)
	out[0] = -fz
	out[1] = fx - m*fz
	out[2] = -fx - m*fz
	out[3] = fy - m*fz
	out[4] = -fy - m*fz
}

// coneJacobian returns the 5x3 row-major Jacobian of the pyramid rows.
func coneJacobian(mu float64) [coneRows][3]float64 {
	m := mu / math.Sqrt2
	return [coneRows][3]float64{
		{0, 0, -1},
		{1, 0, -m},
		{-1, 0, -m},
		{0, 1, -m},
		{0, -1, -m},
	}
}

func (c *FrictionCone) IsFeasible(_ robot.Robot, status *robot.ContactStatus, _ *Data, s *core.SplitSolution) bool {
	var g [coneRows]float64
	for i := 0; i < c.maxNumContacts; i++ {
		if !status.IsContactActive(i) {
			continue
		}
		coneResidual(status.FrictionCoefficient(i), s.F[i], g[:])
		for _, gi := range g {
			if gi >= 0 {
				return false
			}
		}
	}
	return true
}

func (c *FrictionCone) SetSlack(_ robot.Robot, status *robot.ContactStatus, data *Data, s *core.SplitSolution) {
	var g [coneRows]float64
	for i := 0; i < c.maxNumContacts; i++ {
		if !status.IsContactActive(i) {
			continue
		}
		coneResidual(status.FrictionCoefficient(i), s.F[i], g[:])
		for r, gi := range g {
			data.Slack.SetVec(coneRows*i+r, -gi)
		}
	}
}

func (c *FrictionCone) EvalConstraint(_ robot.Robot, status *robot.ContactStatus, barrier float64, data *Data, s *core.SplitSolution) {
	data.Residual.Zero()
	data.Cmpl.Zero()
	data.LogBarrierValue = 0
	var g [coneRows]float64
	for i := 0; i < c.maxNumContacts; i++ {
		if !status.IsContactActive(i) {
			continue
		}
		coneResidual(status.FrictionCoefficient(i), s.F[i], g[:])
		for r, gi := range g {
			row := coneRows*i + r
			data.Residual.SetVec(row, gi+data.Slack.AtVec(row))
			data.Cmpl.SetVec(row, ComplementarySlackness(barrier,
				data.Slack.AtVec(row), data.Dual.AtVec(row)))
			data.LogBarrierValue -= barrier * math.Log(data.Slack.AtVec(row))
		}
	}
}

func (c *FrictionCone) EvalDerivatives(_ robot.Robot, status *robot.ContactStatus, data *Data, _ *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	lf := kktRes.LfActive()
	offset := 0
	for i := 0; i < c.maxNumContacts; i++ {
		if !status.IsContactActive(i) {
			continue
		}
		jac := coneJacobian(status.FrictionCoefficient(i))
		for r := 0; r < coneRows; r++ {
			dual := data.Dual.AtVec(coneRows*i + r)
			for k := 0; k < 3; k++ {
				lf.SetVec(offset+k, lf.AtVec(offset+k)+jac[r][k]*dual)
			}
		}
		offset += robot.ContactDim
	}
}

func (c *FrictionCone) CondenseSlackAndDual(status *robot.ContactStatus, data *Data, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	if !status.HasActiveContacts() {
		return
	}
	qff := kktMat.QffActive()
	lf := kktRes.LfActive()
	offset := 0
	for i := 0; i < c.maxNumContacts; i++ {
		if !status.IsContactActive(i) {
			continue
		}
		jac := coneJacobian(status.FrictionCoefficient(i))
		for r := 0; r < coneRows; r++ {
			row := coneRows*i + r
			w := data.Dual.AtVec(row) / data.Slack.AtVec(row)
			cond := data.Cond.AtVec(row)
			for k := 0; k < 3; k++ {
				if jac[r][k] == 0 {
					continue
				}
				lf.SetVec(offset+k, lf.AtVec(offset+k)+jac[r][k]*cond)
				for l := 0; l < 3; l++ {
					if jac[r][l] == 0 {
						continue
					}
					qff.Set(offset+k, offset+l,
						qff.At(offset+k, offset+l)+w*jac[r][k]*jac[r][l])
				}
			}
		}
		offset += robot.ContactDim
	}
}

func (c *FrictionCone) ExpandSlackAndDual(status *robot.ContactStatus, data *Data, d *core.SplitDirection) {
	df := d.Df()
	offset := 0
	for i := 0; i < c.maxNumContacts; i++ {
		if !status.IsContactActive(i) {
			continue
		}
		jac := coneJacobian(status.FrictionCoefficient(i))
		for r := 0; r < coneRows; r++ {
			row := coneRows*i + r
			jdf := 0.0
			for k := 0; k < 3; k++ {
				jdf += jac[r][k] * df.AtVec(offset+k)
			}
			data.Dslack.SetVec(row, -jdf-data.Residual.AtVec(row))
		}
		offset += robot.ContactDim
	}
}
