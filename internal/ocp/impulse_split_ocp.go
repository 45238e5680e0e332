package ocp

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/constraints"
	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/cost"
	"github.com/san-kum/trajopt/internal/dynamics"
	"github.com/san-kum/trajopt/internal/robot"
)

// ImpulseSplitOCP is the subproblem of an impulse stage. The stage has no
// control and no interval length; the acceleration slot of the solution
// holds the impulse change of the generalized velocity, and the kinematics
// are evaluated at the post-impulse velocity.
type ImpulseSplitOCP struct {
	cost        *cost.CostFunction
	costData    *cost.Data
	constraints *constraints.Constraints
	cdata       *constraints.StageData
	stateEq     *dynamics.StateEquation
	impulseDyn  *dynamics.ImpulseDynamics

	vPlus     *mat.VecDense
	stageCost float64
}

// NewImpulseSplitOCP creates the subproblem of one impulse stage.
func NewImpulseSplitOCP(rb robot.Robot, cf *cost.CostFunction, cons *constraints.Constraints) *ImpulseSplitOCP {
	return &ImpulseSplitOCP{
		cost:        cf,
		costData:    cost.NewData(rb),
		constraints: cons,
		cdata:       cons.CreateStageData(-1),
		stateEq:     dynamics.NewStateEquation(rb),
		impulseDyn:  dynamics.NewImpulseDynamics(rb),
		vPlus:       mat.NewVecDense(rb.Dimv(), nil),
	}
}

// InitConstraints initializes strictly positive slack and dual variables at s.
func (io *ImpulseSplitOCP) InitConstraints(rb robot.Robot, status *robot.ImpulseStatus, s *core.SplitSolution) {
	s.SetImpulseStatus(status)
	io.constraints.SetSlackAndDual(rb, status.ContactStatus(), io.cdata, s)
}

// IsFeasible reports whether s strictly satisfies the impulse constraints.
func (io *ImpulseSplitOCP) IsFeasible(rb robot.Robot, status *robot.ImpulseStatus, s *core.SplitSolution) bool {
	s.SetImpulseStatus(status)
	return io.constraints.IsFeasible(rb, status.ContactStatus(), io.cdata, s)
}

// EvalOCP evaluates the impulse cost, constraints, and dynamics residuals.
func (io *ImpulseSplitOCP) EvalOCP(rb robot.Robot, status *robot.ImpulseStatus, t float64, s, sNext *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	s.SetImpulseStatus(status)
	kktRes.SetContactDimension(status.Dimi())
	kktRes.Zero()
	io.updateKinematics(rb, s)
	io.stageCost = io.cost.EvalImpulseCost(rb, status, io.costData, t, s)
	io.constraints.EvalConstraint(rb, status.ContactStatus(), io.cdata, s)
	io.stageCost += io.cdata.LogBarrier()
	io.stateEq.EvalImpulse(rb, s, sNext.Q, sNext.V, kktRes)
	io.impulseDyn.Eval(rb, status, s)
}

// ComputeKKTResidual linearizes the impulse stage without condensation.
func (io *ImpulseSplitOCP) ComputeKKTResidual(rb robot.Robot, status *robot.ImpulseStatus, t float64, s, sNext *core.SplitSolution, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	io.linearize(rb, status, t, s, sNext, kktMat, kktRes)
}

// ComputeKKTSystem linearizes and condenses the impulse stage KKT system.
func (io *ImpulseSplitOCP) ComputeKKTSystem(rb robot.Robot, status *robot.ImpulseStatus, t float64, s, sNext *core.SplitSolution, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	io.linearize(rb, status, t, s, sNext, kktMat, kktRes)
	io.constraints.CondenseSlackAndDual(status.ContactStatus(), io.cdata, kktMat, kktRes)
	io.impulseDyn.Condense(rb, status, kktMat, kktRes)
}

func (io *ImpulseSplitOCP) linearize(rb robot.Robot, status *robot.ImpulseStatus, t float64, s, sNext *core.SplitSolution, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	s.SetImpulseStatus(status)
	kktMat.SetContactDimension(status.Dimi())
	kktRes.SetContactDimension(status.Dimi())
	kktMat.Zero()
	kktRes.Zero()
	io.updateKinematics(rb, s)
	io.stageCost = io.cost.QuadratizeImpulseCost(rb, status, io.costData, t, s, kktRes, kktMat)
	io.constraints.LinearizeConstraints(rb, status.ContactStatus(), io.cdata, s, kktRes)
	io.stageCost += io.cdata.LogBarrier()
	io.stateEq.LinearizeImpulse(rb, s, sNext.Lmd, sNext.Gmm, sNext.Q, sNext.V, kktMat, kktRes)
	io.impulseDyn.Linearize(rb, status, s, kktRes)
}

func (io *ImpulseSplitOCP) updateKinematics(rb robot.Robot, s *core.SplitSolution) {
	io.vPlus.AddVec(s.V, s.A)
	rb.UpdateKinematics(s.Q, io.vPlus, s.A)
}

// StageCost returns the cost of the last evaluation, including the
// log-barrier value.
func (io *ImpulseSplitOCP) StageCost() float64 { return io.stageCost }

// KKTError returns the squared KKT residual norm of the impulse stage.
func (io *ImpulseSplitOCP) KKTError(kktRes *core.SplitKKTResidual) float64 {
	return kktRes.SquaredNorm(false) + io.impulseDyn.SquaredNormKKTResidual() + io.cdata.KKTError()
}

// ConstraintViolation returns the l1 norm of the primal infeasibility.
func (io *ImpulseSplitOCP) ConstraintViolation(kktRes *core.SplitKKTResidual) float64 {
	return l1Norm(kktRes.Fx) + io.impulseDyn.PrimalFeasibility() + io.cdata.PrimalFeasibility()
}

// ExpandPrimal recovers the eliminated impulse-velocity, force, slack, and
// dual directions.
func (io *ImpulseSplitOCP) ExpandPrimal(status *robot.ImpulseStatus, d *core.SplitDirection) {
	d.SetContactDimension(status.Dimi())
	io.impulseDyn.ExpandPrimal(d)
	io.constraints.ExpandSlackAndDual(status.ContactStatus(), io.cdata, d)
}

// ExpandDual recovers the eliminated multiplier directions.
func (io *ImpulseSplitOCP) ExpandDual(dNext, d *core.SplitDirection) {
	io.impulseDyn.ExpandDual(dNext.Dgmm(), d)
}

// MaxPrimalStepSize returns the fraction-to-boundary bound on the primal step.
func (io *ImpulseSplitOCP) MaxPrimalStepSize() float64 {
	return io.constraints.MaxSlackStepSize(io.cdata)
}

// MaxDualStepSize returns the fraction-to-boundary bound on the dual step.
func (io *ImpulseSplitOCP) MaxDualStepSize() float64 {
	return io.constraints.MaxDualStepSize(io.cdata)
}

// UpdatePrimal advances the primal variables and slacks along d.
func (io *ImpulseSplitOCP) UpdatePrimal(rb robot.Robot, status *robot.ImpulseStatus, stepSize float64, d *core.SplitDirection, s *core.SplitSolution) {
	s.Integrate(rb, stepSize, d, status.IsImpulseActive)
	io.constraints.UpdateSlack(io.cdata, stepSize)
}

// UpdateDual advances the constraint duals.
func (io *ImpulseSplitOCP) UpdateDual(stepSize float64) {
	io.constraints.UpdateDual(io.cdata, stepSize)
}
