package ocp

import (
	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/cost"
	"github.com/san-kum/trajopt/internal/dynamics"
	"github.com/san-kum/trajopt/internal/robot"
)

// TerminalOCP is the subproblem of the last grid stage. It carries only the
// terminal cost and the costate terms of the state equation; there is no
// control, dynamics, or inequality constraint to eliminate.
type TerminalOCP struct {
	cost     *cost.CostFunction
	costData *cost.Data
	stateEq  *dynamics.StateEquation

	terminalCost float64
}

// NewTerminalOCP creates the terminal subproblem.
func NewTerminalOCP(rb robot.Robot, cf *cost.CostFunction) *TerminalOCP {
	return &TerminalOCP{
		cost:     cf,
		costData: cost.NewData(rb),
		stateEq:  dynamics.NewStateEquation(rb),
	}
}

// EvalOCP evaluates the terminal cost.
func (to *TerminalOCP) EvalOCP(rb robot.Robot, t float64, s *core.SplitSolution) {
	rb.UpdateKinematics(s.Q, s.V, s.A)
	to.terminalCost = to.cost.EvalTerminalCost(rb, to.costData, t, s)
}

// ComputeKKTResidual linearizes the terminal stage.
func (to *TerminalOCP) ComputeKKTResidual(rb robot.Robot, t float64, s *core.SplitSolution, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	kktMat.SetContactDimension(0)
	kktRes.SetContactDimension(0)
	kktMat.Zero()
	kktRes.Zero()
	rb.UpdateKinematics(s.Q, s.V, s.A)
	to.terminalCost = to.cost.LinearizeTerminalCost(rb, to.costData, t, s, kktRes)
	to.stateEq.LinearizeTerminal(s, kktRes)
}

// ComputeKKTSystem linearizes and quadratizes the terminal stage. Nothing
// is condensed; the terminal Hessian seeds the backward Riccati recursion.
func (to *TerminalOCP) ComputeKKTSystem(rb robot.Robot, t float64, s *core.SplitSolution, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	kktMat.SetContactDimension(0)
	kktRes.SetContactDimension(0)
	kktMat.Zero()
	kktRes.Zero()
	rb.UpdateKinematics(s.Q, s.V, s.A)
	to.terminalCost = to.cost.QuadratizeTerminalCost(rb, to.costData, t, s, kktRes, kktMat)
	to.stateEq.LinearizeTerminal(s, kktRes)
}

// TerminalCost returns the cost of the last evaluation.
func (to *TerminalOCP) TerminalCost() float64 { return to.terminalCost }

// KKTError returns the squared KKT residual norm of the terminal stage.
func (to *TerminalOCP) KKTError(kktRes *core.SplitKKTResidual) float64 {
	return kktRes.SquaredNorm(false)
}

// UpdatePrimal advances the terminal state and costate along d.
func (to *TerminalOCP) UpdatePrimal(rb robot.Robot, stepSize float64, d *core.SplitDirection, s *core.SplitSolution) {
	s.Integrate(rb, stepSize, d, nil)
}
