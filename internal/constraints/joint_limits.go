package constraints

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/robot"
)

func validBound(name string, bound *mat.VecDense) error {
	if bound == nil || bound.Len() == 0 {
		return fmt.Errorf("constraints: %s bound must be non-empty", name)
	}
	return nil
}

// JointPositionUpperLimit bounds the tail of the configuration from above.
// The bound covers the actuated joints; the floating base, if any, is left
// unconstrained.
type JointPositionUpperLimit struct {
	qmax *mat.VecDense
}

// NewJointPositionUpperLimit creates the component. The bound length selects
// how many trailing configuration entries are constrained.
func NewJointPositionUpperLimit(qmax *mat.VecDense) (*JointPositionUpperLimit, error) {
	if err := validBound("joint position upper", qmax); err != nil {
		return nil, err
	}
	return &JointPositionUpperLimit{qmax: mat.VecDenseCopyOf(qmax)}, nil
}

func (c *JointPositionUpperLimit) KinematicsLevel() KinematicsLevel { return PositionLevel }
func (c *JointPositionUpperLimit) Dimc() int                        { return c.qmax.Len() }
func (c *JointPositionUpperLimit) AppliesToImpulse() bool           { return false }
func (c *JointPositionUpperLimit) AllocateExtraData(*Data)          {}

func (c *JointPositionUpperLimit) tail(rb robot.Robot, s *core.SplitSolution) *mat.VecDense {
	start := rb.Dimq() - c.qmax.Len()
	return s.Q.SliceVec(start, rb.Dimq()).(*mat.VecDense)
}

func (c *JointPositionUpperLimit) IsFeasible(rb robot.Robot, _ *robot.ContactStatus, _ *Data, s *core.SplitSolution) bool {
	q := c.tail(rb, s)
	for i := 0; i < c.qmax.Len(); i++ {
		if c.qmax.AtVec(i)-q.AtVec(i) <= 0 {
			return false
		}
	}
	return true
}

func (c *JointPositionUpperLimit) SetSlack(rb robot.Robot, _ *robot.ContactStatus, data *Data, s *core.SplitSolution) {
	data.Slack.SubVec(c.qmax, c.tail(rb, s))
}

func (c *JointPositionUpperLimit) EvalConstraint(rb robot.Robot, _ *robot.ContactStatus, barrier float64, data *Data, s *core.SplitSolution) {
	data.Residual.SubVec(c.tail(rb, s), c.qmax)
	data.Residual.AddVec(data.Residual, data.Slack)
	ComputeComplementarySlackness(barrier, data)
	data.LogBarrierValue = LogBarrier(barrier, data.Slack)
}

func (c *JointPositionUpperLimit) EvalDerivatives(rb robot.Robot, _ *robot.ContactStatus, data *Data, _ *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	lq := kktRes.Lq()
	start := rb.Dimv() - c.qmax.Len()
	for i := 0; i < c.qmax.Len(); i++ {
		lq.SetVec(start+i, lq.AtVec(start+i)+data.Dual.AtVec(i))
	}
}

func (c *JointPositionUpperLimit) CondenseSlackAndDual(_ *robot.ContactStatus, data *Data, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	qqq := kktMat.Qqq()
	lq := kktRes.Lq()
	start := lq.Len() - c.qmax.Len()
	for i := 0; i < c.qmax.Len(); i++ {
		j := start + i
		qqq.Set(j, j, qqq.At(j, j)+data.Dual.AtVec(i)/data.Slack.AtVec(i))
		lq.SetVec(j, lq.AtVec(j)+data.Cond.AtVec(i))
	}
}

func (c *JointPositionUpperLimit) ExpandSlackAndDual(_ *robot.ContactStatus, data *Data, d *core.SplitDirection) {
	dq := d.Dq()
	start := dq.Len() - c.qmax.Len()
	for i := 0; i < c.qmax.Len(); i++ {
		data.Dslack.SetVec(i, -dq.AtVec(start+i)-data.Residual.AtVec(i))
	}
}

// JointPositionLowerLimit bounds the tail of the configuration from below.
type JointPositionLowerLimit struct {
	qmin *mat.VecDense
}

// NewJointPositionLowerLimit creates the component.
func NewJointPositionLowerLimit(qmin *mat.VecDense) (*JointPositionLowerLimit, error) {
	if err := validBound("joint position lower", qmin); err != nil {
		return nil, err
	}
	return &JointPositionLowerLimit{qmin: mat.VecDenseCopyOf(qmin)}, nil
}

func (c *JointPositionLowerLimit) KinematicsLevel() KinematicsLevel { return PositionLevel }
func (c *JointPositionLowerLimit) Dimc() int                        { return c.qmin.Len() }
func (c *JointPositionLowerLimit) AppliesToImpulse() bool           { return false }
func (c *JointPositionLowerLimit) AllocateExtraData(*Data)          {}

func (c *JointPositionLowerLimit) tail(rb robot.Robot, s *core.SplitSolution) *mat.VecDense {
	start := rb.Dimq() - c.qmin.Len()
	return s.Q.SliceVec(start, rb.Dimq()).(*mat.VecDense)
}

func (c *JointPositionLowerLimit) IsFeasible(rb robot.Robot, _ *robot.ContactStatus, _ *Data, s *core.SplitSolution) bool {
	q := c.tail(rb, s)
	for i := 0; i < c.qmin.Len(); i++ {
		if q.AtVec(i)-c.qmin.AtVec(i) <= 0 {
			return false
		}
	}
	return true
}

func (c *JointPositionLowerLimit) SetSlack(rb robot.Robot, _ *robot.ContactStatus, data *Data, s *core.SplitSolution) {
	data.Slack.SubVec(c.tail(rb, s), c.qmin)
}

func (c *JointPositionLowerLimit) EvalConstraint(rb robot.Robot, _ *robot.ContactStatus, barrier float64, data *Data, s *core.SplitSolution) {
	data.Residual.SubVec(c.qmin, c.tail(rb, s))
	data.Residual.AddVec(data.Residual, data.Slack)
	ComputeComplementarySlackness(barrier, data)
	data.LogBarrierValue = LogBarrier(barrier, data.Slack)
}

func (c *JointPositionLowerLimit) EvalDerivatives(rb robot.Robot, _ *robot.ContactStatus, data *Data, _ *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	lq := kktRes.Lq()
	start := rb.Dimv() - c.qmin.Len()
	for i := 0; i < c.qmin.Len(); i++ {
		lq.SetVec(start+i, lq.AtVec(start+i)-data.Dual.AtVec(i))
	}
}

func (c *JointPositionLowerLimit) CondenseSlackAndDual(_ *robot.ContactStatus, data *Data, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	qqq := kktMat.Qqq()
	lq := kktRes.Lq()
	start := lq.Len() - c.qmin.Len()
	for i := 0; i < c.qmin.Len(); i++ {
		j := start + i
		qqq.Set(j, j, qqq.At(j, j)+data.Dual.AtVec(i)/data.Slack.AtVec(i))
		lq.SetVec(j, lq.AtVec(j)-data.Cond.AtVec(i))
	}
}

func (c *JointPositionLowerLimit) ExpandSlackAndDual(_ *robot.ContactStatus, data *Data, d *core.SplitDirection) {
	dq := d.Dq()
	start := dq.Len() - c.qmin.Len()
	for i := 0; i < c.qmin.Len(); i++ {
		data.Dslack.SetVec(i, dq.AtVec(start+i)-data.Residual.AtVec(i))
	}
}

// JointVelocityUpperLimit bounds the tail of the generalized velocity from
// above.
type JointVelocityUpperLimit struct {
	vmax *mat.VecDense
}

// NewJointVelocityUpperLimit creates the component.
func NewJointVelocityUpperLimit(vmax *mat.VecDense) (*JointVelocityUpperLimit, error) {
	if err := validBound("joint velocity upper", vmax); err != nil {
		return nil, err
	}
	return &JointVelocityUpperLimit{vmax: mat.VecDenseCopyOf(vmax)}, nil
}

func (c *JointVelocityUpperLimit) KinematicsLevel() KinematicsLevel { return VelocityLevel }
func (c *JointVelocityUpperLimit) Dimc() int                        { return c.vmax.Len() }
func (c *JointVelocityUpperLimit) AppliesToImpulse() bool           { return false }
func (c *JointVelocityUpperLimit) AllocateExtraData(*Data)          {}

func (c *JointVelocityUpperLimit) tail(rb robot.Robot, s *core.SplitSolution) *mat.VecDense {
	start := rb.Dimv() - c.vmax.Len()
	return s.V.SliceVec(start, rb.Dimv()).(*mat.VecDense)
}

func (c *JointVelocityUpperLimit) IsFeasible(rb robot.Robot, _ *robot.ContactStatus, _ *Data, s *core.SplitSolution) bool {
	v := c.tail(rb, s)
	for i := 0; i < c.vmax.Len(); i++ {
		if c.vmax.AtVec(i)-v.AtVec(i) <= 0 {
			return false
		}
	}
	return true
}

func (c *JointVelocityUpperLimit) SetSlack(rb robot.Robot, _ *robot.ContactStatus, data *Data, s *core.SplitSolution) {
	data.Slack.SubVec(c.vmax, c.tail(rb, s))
}

func (c *JointVelocityUpperLimit) EvalConstraint(rb robot.Robot, _ *robot.ContactStatus, barrier float64, data *Data, s *core.SplitSolution) {
	data.Residual.SubVec(c.tail(rb, s), c.vmax)
	data.Residual.AddVec(data.Residual, data.Slack)
	ComputeComplementarySlackness(barrier, data)
	data.LogBarrierValue = LogBarrier(barrier, data.Slack)
}

func (c *JointVelocityUpperLimit) EvalDerivatives(rb robot.Robot, _ *robot.ContactStatus, data *Data, _ *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	lv := kktRes.Lv()
	start := rb.Dimv() - c.vmax.Len()
	for i := 0; i < c.vmax.Len(); i++ {
		lv.SetVec(start+i, lv.AtVec(start+i)+data.Dual.AtVec(i))
	}
}

func (c *JointVelocityUpperLimit) CondenseSlackAndDual(_ *robot.ContactStatus, data *Data, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	qvv := kktMat.Qvv()
	lv := kktRes.Lv()
	start := lv.Len() - c.vmax.Len()
	for i := 0; i < c.vmax.Len(); i++ {
		j := start + i
		qvv.Set(j, j, qvv.At(j, j)+data.Dual.AtVec(i)/data.Slack.AtVec(i))
		lv.SetVec(j, lv.AtVec(j)+data.Cond.AtVec(i))
	}
}

func (c *JointVelocityUpperLimit) ExpandSlackAndDual(_ *robot.ContactStatus, data *Data, d *core.SplitDirection) {
	dv := d.Dv()
	start := dv.Len() - c.vmax.Len()
	for i := 0; i < c.vmax.Len(); i++ {
		data.Dslack.SetVec(i, -dv.AtVec(start+i)-data.Residual.AtVec(i))
	}
}

// JointVelocityLowerLimit bounds the tail of the generalized velocity from
// below.
type JointVelocityLowerLimit struct {
	vmin *mat.VecDense
}

// NewJointVelocityLowerLimit creates the component.
func NewJointVelocityLowerLimit(vmin *mat.VecDense) (*JointVelocityLowerLimit, error) {
	if err := validBound("joint velocity lower", vmin); err != nil {
		return nil, err
	}
	return &JointVelocityLowerLimit{vmin: mat.VecDenseCopyOf(vmin)}, nil
}

func (c *JointVelocityLowerLimit) KinematicsLevel() KinematicsLevel { return VelocityLevel }
func (c *JointVelocityLowerLimit) Dimc() int                        { return c.vmin.Len() }
func (c *JointVelocityLowerLimit) AppliesToImpulse() bool           { return false }
func (c *JointVelocityLowerLimit) AllocateExtraData(*Data)          {}

func (c *JointVelocityLowerLimit) tail(rb robot.Robot, s *core.SplitSolution) *mat.VecDense {
	start := rb.Dimv() - c.vmin.Len()
	return s.V.SliceVec(start, rb.Dimv()).(*mat.VecDense)
}

func (c *JointVelocityLowerLimit) IsFeasible(rb robot.Robot, _ *robot.ContactStatus, _ *Data, s *core.SplitSolution) bool {
	v := c.tail(rb, s)
	for i := 0; i < c.vmin.Len(); i++ {
		if v.AtVec(i)-c.vmin.AtVec(i) <= 0 {
			return false
		}
	}
	return true
}

func (c *JointVelocityLowerLimit) SetSlack(rb robot.Robot, _ *robot.ContactStatus, data *Data, s *core.SplitSolution) {
	data.Slack.SubVec(c.tail(rb, s), c.vmin)
}

func (c *JointVelocityLowerLimit) EvalConstraint(rb robot.Robot, _ *robot.ContactStatus, barrier float64, data *Data, s *core.SplitSolution) {
	data.Residual.SubVec(c.vmin, c.tail(rb, s))
	data.Residual.AddVec(data.Residual, data.Slack)
	ComputeComplementarySlackness(barrier, data)
	data.LogBarrierValue = LogBarrier(barrier, data.Slack)
}

func (c *JointVelocityLowerLimit) EvalDerivatives(rb robot.Robot, _ *robot.ContactStatus, data *Data, _ *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	lv := kktRes.Lv()
	start := rb.Dimv() - c.vmin.Len()
	for i := 0; i < c.vmin.Len(); i++ {
		lv.SetVec(start+i, lv.AtVec(start+i)-data.Dual.AtVec(i))
	}
}

func (c *JointVelocityLowerLimit) CondenseSlackAndDual(_ *robot.ContactStatus, data *Data, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	qvv := kktMat.Qvv()
	lv := kktRes.Lv()
	start := lv.Len() - c.vmin.Len()
	for i := 0; i < c.vmin.Len(); i++ {
		j := start + i
		qvv.Set(j, j, qvv.At(j, j)+data.Dual.AtVec(i)/data.Slack.AtVec(i))
		lv.SetVec(j, lv.AtVec(j)-data.Cond.AtVec(i))
	}
}

func (c *JointVelocityLowerLimit) ExpandSlackAndDual(_ *robot.ContactStatus, data *Data, d *core.SplitDirection) {
	dv := d.Dv()
	start := dv.Len() - c.vmin.Len()
	for i := 0; i < c.vmin.Len(); i++ {
		data.Dslack.SetVec(i, dv.AtVec(start+i)-data.Residual.AtVec(i))
	}
}

// JointTorqueUpperLimit bounds the joint torques from above. The bound must
// span the whole input.
type JointTorqueUpperLimit struct {
	umax *mat.VecDense
}

// NewJointTorqueUpperLimit creates the component.
func NewJointTorqueUpperLimit(umax *mat.VecDense) (*JointTorqueUpperLimit, error) {
	if err := validBound("joint torque upper", umax); err != nil {
		return nil, err
	}
	return &JointTorqueUpperLimit{umax: mat.VecDenseCopyOf(umax)}, nil
}

func (c *JointTorqueUpperLimit) KinematicsLevel() KinematicsLevel { return AccelerationLevel }
func (c *JointTorqueUpperLimit) Dimc() int                        { return c.umax.Len() }
func (c *JointTorqueUpperLimit) AppliesToImpulse() bool           { return false }
func (c *JointTorqueUpperLimit) AllocateExtraData(*Data)          {}

func (c *JointTorqueUpperLimit) IsFeasible(_ robot.Robot, _ *robot.ContactStatus, _ *Data, s *core.SplitSolution) bool {
	for i := 0; i < c.umax.Len(); i++ {
		if c.umax.AtVec(i)-s.U.AtVec(i) <= 0 {
			return false
		}
	}
	return true
}

func (c *JointTorqueUpperLimit) SetSlack(_ robot.Robot, _ *robot.ContactStatus, data *Data, s *core.SplitSolution) {
	data.Slack.SubVec(c.umax, s.U)
}

func (c *JointTorqueUpperLimit) EvalConstraint(_ robot.Robot, _ *robot.ContactStatus, barrier float64, data *Data, s *core.SplitSolution) {
	data.Residual.SubVec(s.U, c.umax)
	data.Residual.AddVec(data.Residual, data.Slack)
	ComputeComplementarySlackness(barrier, data)
	data.LogBarrierValue = LogBarrier(barrier, data.Slack)
}

func (c *JointTorqueUpperLimit) EvalDerivatives(_ robot.Robot, _ *robot.ContactStatus, data *Data, _ *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	kktRes.Lu.AddVec(kktRes.Lu, data.Dual)
}

func (c *JointTorqueUpperLimit) CondenseSlackAndDual(_ *robot.ContactStatus, data *Data, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	for i := 0; i < c.umax.Len(); i++ {
		kktMat.Quu.Set(i, i, kktMat.Quu.At(i, i)+data.Dual.AtVec(i)/data.Slack.AtVec(i))
	}
	kktRes.Lu.AddVec(kktRes.Lu, data.Cond)
}

func (c *JointTorqueUpperLimit) ExpandSlackAndDual(_ *robot.ContactStatus, data *Data, d *core.SplitDirection) {
	data.Dslack.AddVec(data.Residual, d.Du)
	data.Dslack.ScaleVec(-1, data.Dslack)
}

// JointTorqueLowerLimit bounds the joint torques from below.
type JointTorqueLowerLimit struct {
	umin *mat.VecDense
}

// NewJointTorqueLowerLimit creates the component.
func NewJointTorqueLowerLimit(umin *mat.VecDense) (*JointTorqueLowerLimit, error) {
	if err := validBound("joint torque lower", umin); err != nil {
		return nil, err
	}
	return &JointTorqueLowerLimit{umin: mat.VecDenseCopyOf(umin)}, nil
}

func (c *JointTorqueLowerLimit) KinematicsLevel() KinematicsLevel { return AccelerationLevel }
func (c *JointTorqueLowerLimit) Dimc() int                        { return c.umin.Len() }
func (c *JointTorqueLowerLimit) AppliesToImpulse() bool           { return false }
func (c *JointTorqueLowerLimit) AllocateExtraData(*Data)          {}

func (c *JointTorqueLowerLimit) IsFeasible(_ robot.Robot, _ *robot.ContactStatus, _ *Data, s *core.SplitSolution) bool {
	for i := 0; i < c.umin.Len(); i++ {
		if s.U.AtVec(i)-c.umin.AtVec(i) <= 0 {
			return false
		}
	}
	return true
}

func (c *JointTorqueLowerLimit) SetSlack(_ robot.Robot, _ *robot.ContactStatus, data *Data, s *core.SplitSolution) {
	data.Slack.SubVec(s.U, c.umin)
}

func (c *JointTorqueLowerLimit) EvalConstraint(_ robot.Robot, _ *robot.ContactStatus, barrier float64, data *Data, s *core.SplitSolution) {
	data.Residual.SubVec(c.umin, s.U)
	data.Residual.AddVec(data.Residual, data.Slack)
	ComputeComplementarySlackness(barrier, data)
	data.LogBarrierValue = LogBarrier(barrier, data.Slack)
}

func (c *JointTorqueLowerLimit) EvalDerivatives(_ robot.Robot, _ *robot.ContactStatus, data *Data, _ *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	kktRes.Lu.SubVec(kktRes.Lu, data.Dual)
}

func (c *JointTorqueLowerLimit) CondenseSlackAndDual(_ *robot.ContactStatus, data *Data, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	for i := 0; i < c.umin.Len(); i++ {
		kktMat.Quu.Set(i, i, kktMat.Quu.At(i, i)+data.Dual.AtVec(i)/data.Slack.AtVec(i))
	}
	kktRes.Lu.SubVec(kktRes.Lu, data.Cond)
}

func (c *JointTorqueLowerLimit) ExpandSlackAndDual(_ *robot.ContactStatus, data *Data, d *core.SplitDirection) {
	data.Dslack.SubVec(d.Du, data.Residual)
}
