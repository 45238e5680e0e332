// Package ocp assembles the per-stage KKT subproblems of the hybrid optimal
// control problem and runs the direct multiple shooting sweep over them.
// Every stage kind (regular, terminal, impulse, auxiliary, lift) owns its
// cost data, constraint data, and dynamics workspace, so the sweep can visit
// stages from different goroutines without shared mutable state.
package ocp

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/constraints"
	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/cost"
	"github.com/san-kum/trajopt/internal/dynamics"
	"github.com/san-kum/trajopt/internal/robot"
)

// SplitOCP is the subproblem of one regular (or auxiliary or lift) stage.
// It linearizes the stage cost, the inequality constraints, the state
// equation, and the contact dynamics, and condenses the acceleration and
// contact forces out of the stage KKT system. A stage two steps ahead of an
// impulse additionally carries the switching constraint.
type SplitOCP struct {
	cost        *cost.CostFunction
	costData    *cost.Data
	constraints *constraints.Constraints
	cdata       *constraints.StageData
	stateEq     *dynamics.StateEquation
	contactDyn  *dynamics.ContactDynamics
	switching   *dynamics.SwitchingConstraint

	stageCost    float64
	hasSwitching bool
}

// NewSplitOCP creates the subproblem of the given time stage.
func NewSplitOCP(rb robot.Robot, cf *cost.CostFunction, cons *constraints.Constraints, timeStage int) *SplitOCP {
	return &SplitOCP{
		cost:        cf,
		costData:    cost.NewData(rb),
		constraints: cons,
		cdata:       cons.CreateStageData(timeStage),
		stateEq:     dynamics.NewStateEquation(rb),
		contactDyn:  dynamics.NewContactDynamics(rb),
		switching:   dynamics.NewSwitchingConstraint(rb),
	}
}

// InitConstraints initializes strictly positive slack and dual variables at s.
func (so *SplitOCP) InitConstraints(rb robot.Robot, status *robot.ContactStatus, s *core.SplitSolution) {
	s.SetContactStatus(status)
	so.constraints.SetSlackAndDual(rb, status, so.cdata, s)
}

// IsFeasible reports whether s strictly satisfies the inequality constraints.
func (so *SplitOCP) IsFeasible(rb robot.Robot, status *robot.ContactStatus, s *core.SplitSolution) bool {
	s.SetContactStatus(status)
	return so.constraints.IsFeasible(rb, status, so.cdata, s)
}

// EvalOCP evaluates the stage cost, the constraint residuals, and the
// dynamics residuals without derivatives. The state-equation residual is
// written into kktRes.
func (so *SplitOCP) EvalOCP(rb robot.Robot, status *robot.ContactStatus, t, dt float64, s, sNext *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	so.hasSwitching = false
	s.SetContactStatus(status)
	kktRes.SetContactDimension(status.Dimf())
	kktRes.Zero()
	rb.UpdateKinematics(s.Q, s.V, s.A)
	so.stageCost = so.cost.EvalStageCost(rb, status, so.costData, t, dt, s)
	so.constraints.EvalConstraint(rb, status, so.cdata, s)
	so.stageCost += so.cdata.LogBarrier()
	so.stateEq.Eval(rb, dt, s, sNext.Q, sNext.V, kktRes)
	so.contactDyn.Eval(rb, status, s)
}

// EvalOCPWithSwitching additionally evaluates the switching constraint over
// the intervals dt (this stage) and dtNext (the stage reaching the impulse).
func (so *SplitOCP) EvalOCPWithSwitching(rb robot.Robot, status *robot.ContactStatus, impulseStatus *robot.ImpulseStatus, t, dt, dtNext float64, s, sNext *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	so.EvalOCP(rb, status, t, dt, s, sNext, kktRes)
	s.SetSwitchingConstraintDimension(impulseStatus.Dimi())
	so.switching.Linearize(rb, impulseStatus, dt, dtNext, s)
	so.hasSwitching = true
}

// ComputeKKTResidual linearizes the stage without condensation.
func (so *SplitOCP) ComputeKKTResidual(rb robot.Robot, status *robot.ContactStatus, t, dt float64, s, sNext *core.SplitSolution, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	so.hasSwitching = false
	so.linearize(rb, status, t, dt, s, sNext, kktMat, kktRes)
}

// ComputeKKTResidualWithSwitching linearizes a stage carrying the switching
// constraint without condensation.
func (so *SplitOCP) ComputeKKTResidualWithSwitching(rb robot.Robot, status *robot.ContactStatus, impulseStatus *robot.ImpulseStatus, t, dt, dtNext float64, s, sNext *core.SplitSolution, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	so.linearize(rb, status, t, dt, s, sNext, kktMat, kktRes)
	so.linearizeSwitching(rb, impulseStatus, dt, dtNext, s, kktRes)
}

// ComputeKKTSystem linearizes and condenses the stage KKT system.
func (so *SplitOCP) ComputeKKTSystem(rb robot.Robot, status *robot.ContactStatus, t, dt float64, s, sNext *core.SplitSolution, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	so.hasSwitching = false
	so.linearize(rb, status, t, dt, s, sNext, kktMat, kktRes)
	so.condense(rb, status, dt, kktMat, kktRes)
}

// ComputeKKTSystemWithSwitching linearizes and condenses a stage carrying
// the switching constraint. The switching Jacobian is condensed through the
// same Schur complement as the contact dynamics.
func (so *SplitOCP) ComputeKKTSystemWithSwitching(rb robot.Robot, status *robot.ContactStatus, impulseStatus *robot.ImpulseStatus, t, dt, dtNext float64, s, sNext *core.SplitSolution, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	so.linearize(rb, status, t, dt, s, sNext, kktMat, kktRes)
	so.linearizeSwitching(rb, impulseStatus, dt, dtNext, s, kktRes)
	so.condense(rb, status, dt, kktMat, kktRes)
	so.contactDyn.CondenseSwitchingConstraint(so.switching.Jacobian(), so.switching.Residual())
}

// linearize shares the derivative pass of the residual and system paths.
// The switching constraint, when present, must be linearized afterwards and
// before condensation: it re-evaluates kinematics at the predicted
// configuration and invalidates the cache for the current one.
func (so *SplitOCP) linearize(rb robot.Robot, status *robot.ContactStatus, t, dt float64, s, sNext *core.SplitSolution, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	s.SetContactStatus(status)
	kktMat.SetContactDimension(status.Dimf())
	kktRes.SetContactDimension(status.Dimf())
	kktMat.Zero()
	kktRes.Zero()
	rb.UpdateKinematics(s.Q, s.V, s.A)
	so.stageCost = so.cost.QuadratizeStageCost(rb, status, so.costData, t, dt, s, kktRes, kktMat)
	so.constraints.LinearizeConstraints(rb, status, so.cdata, s, kktRes)
	so.stageCost += so.cdata.LogBarrier()
	so.stateEq.Linearize(rb, dt, s, sNext.Lmd, sNext.Gmm, sNext.Q, sNext.V, kktMat, kktRes)
	so.contactDyn.Linearize(rb, status, s, kktRes)
}

func (so *SplitOCP) linearizeSwitching(rb robot.Robot, impulseStatus *robot.ImpulseStatus, dt, dtNext float64, s *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	s.SetSwitchingConstraintDimension(impulseStatus.Dimi())
	so.switching.Linearize(rb, impulseStatus, dt, dtNext, s)
	so.switching.AddDualResidual(s, kktRes)
	so.hasSwitching = true
}

func (so *SplitOCP) condense(rb robot.Robot, status *robot.ContactStatus, dt float64, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	so.constraints.CondenseSlackAndDual(status, so.cdata, kktMat, kktRes)
	so.contactDyn.Condense(rb, status, dt, kktMat, kktRes)
}

// StageCost returns the cost of the last evaluation, including the
// log-barrier value.
func (so *SplitOCP) StageCost() float64 { return so.stageCost }

// HasSwitching reports whether the last linearization carried the switching
// constraint.
func (so *SplitOCP) HasSwitching() bool { return so.hasSwitching }

// SwitchingJacobian returns the condensed switching-constraint Jacobian.
func (so *SplitOCP) SwitchingJacobian() *dynamics.SwitchingConstraintJacobian {
	return so.switching.Jacobian()
}

// SwitchingResidual returns the switching-constraint residual.
func (so *SplitOCP) SwitchingResidual() *dynamics.SwitchingConstraintResidual {
	return so.switching.Residual()
}

// KKTError returns the squared KKT residual norm of the stage.
func (so *SplitOCP) KKTError(kktRes *core.SplitKKTResidual, dt float64) float64 {
	err := kktRes.SquaredNorm(false)
	err += dt * dt * so.contactDyn.SquaredNormKKTResidual()
	err += so.cdata.KKTError()
	if so.hasSwitching {
		err += so.switching.Residual().SquaredNorm()
	}
	return err
}

// ConstraintViolation returns the l1 norm of the primal infeasibility.
func (so *SplitOCP) ConstraintViolation(kktRes *core.SplitKKTResidual, dt float64) float64 {
	vio := l1Norm(kktRes.Fx)
	vio += dt * so.contactDyn.PrimalFeasibility()
	vio += so.cdata.PrimalFeasibility()
	if so.hasSwitching {
		vio += l1Norm(so.switching.Residual().P)
	}
	return vio
}

// ExpandPrimal recovers the eliminated acceleration, force, slack, and dual
// directions from the state and control directions.
func (so *SplitOCP) ExpandPrimal(status *robot.ContactStatus, d *core.SplitDirection) {
	d.SetContactDimension(status.Dimf())
	so.contactDyn.ExpandPrimal(d)
	so.constraints.ExpandSlackAndDual(status, so.cdata, d)
}

// ExpandDual recovers the eliminated multiplier directions. dNext is the
// direction of the stage the state equation couples to.
func (so *SplitOCP) ExpandDual(dt float64, dNext, d *core.SplitDirection) {
	if so.hasSwitching {
		so.contactDyn.ExpandDualWithSwitching(dt, dNext.Dgmm(), so.switching.Jacobian(), d)
		return
	}
	so.contactDyn.ExpandDual(dt, dNext.Dgmm(), d)
}

// MaxPrimalStepSize returns the fraction-to-boundary bound on the primal step.
func (so *SplitOCP) MaxPrimalStepSize() float64 {
	return so.constraints.MaxSlackStepSize(so.cdata)
}

// MaxDualStepSize returns the fraction-to-boundary bound on the dual step.
func (so *SplitOCP) MaxDualStepSize() float64 {
	return so.constraints.MaxDualStepSize(so.cdata)
}

// UpdatePrimal advances the primal variables and slacks along d.
func (so *SplitOCP) UpdatePrimal(rb robot.Robot, status *robot.ContactStatus, stepSize float64, d *core.SplitDirection, s *core.SplitSolution) {
	s.Integrate(rb, stepSize, d, status.IsContactActive)
	so.constraints.UpdateSlack(so.cdata, stepSize)
}

// UpdateDual advances the constraint duals.
func (so *SplitOCP) UpdateDual(stepSize float64) {
	so.constraints.UpdateDual(so.cdata, stepSize)
}

// ComputeInitialStateDirection writes the deviation of the measured initial
// state from the first-stage solution into d.
func (so *SplitOCP) ComputeInitialStateDirection(rb robot.Robot, q0, v0 mat.Vector, s *core.SplitSolution, d *core.SplitDirection) {
	rb.SubtractConfiguration(q0, s.Q, d.Dq())
	d.Dv().SubVec(v0, s.V)
}

func l1Norm(v *mat.VecDense) float64 {
	sum := 0.0
	for i := 0; i < v.Len(); i++ {
		sum += math.Abs(v.AtVec(i))
	}
	return sum
}
