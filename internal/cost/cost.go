// Package cost implements the stage, terminal, and impulse cost terms of the
// optimal control problem together with their gradients and Gauss-Newton
// Hessians accumulated into the stage KKT blocks.
package cost

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/robot"
)

// Data holds per-thread scratch for cost evaluation. One instance per worker;
// never shared across goroutines.
type Data struct {
	Qdiff *mat.VecDense
	Vdiff *mat.VecDense
	Udiff *mat.VecDense
	Fdiff *mat.VecDense
}

// NewData allocates the scratch for one robot model.
func NewData(rb robot.Robot) *Data {
	dimu := rb.Dimu()
	if dimu == 0 {
		dimu = 1
	}
	return &Data{
		Qdiff: mat.NewVecDense(rb.Dimv(), nil),
		Vdiff: mat.NewVecDense(rb.Dimv(), nil),
		Udiff: mat.NewVecDense(dimu, nil),
		Fdiff: mat.NewVecDense(robot.ContactDim, nil),
	}
}

// Component is one additive cost term.
type Component interface {
	// EvalStageCost returns the running cost of one stage over [t, t+dt).
	EvalStageCost(rb robot.Robot, status *robot.ContactStatus, data *Data, t, dt float64, s *core.SplitSolution) float64
	// EvalStageCostDerivatives accumulates the stage gradient.
	EvalStageCostDerivatives(rb robot.Robot, status *robot.ContactStatus, data *Data, t, dt float64, s *core.SplitSolution, kktRes *core.SplitKKTResidual)
	// EvalStageCostHessian accumulates the Gauss-Newton stage Hessian.
	EvalStageCostHessian(rb robot.Robot, status *robot.ContactStatus, data *Data, t, dt float64, s *core.SplitSolution, kktMat *core.SplitKKTMatrix)

	// EvalTerminalCost returns the terminal cost at time t.
	EvalTerminalCost(rb robot.Robot, data *Data, t float64, s *core.SplitSolution) float64
	// EvalTerminalCostDerivatives accumulates the terminal gradient.
	EvalTerminalCostDerivatives(rb robot.Robot, data *Data, t float64, s *core.SplitSolution, kktRes *core.SplitKKTResidual)
	// EvalTerminalCostHessian accumulates the terminal Hessian.
	EvalTerminalCostHessian(rb robot.Robot, data *Data, t float64, s *core.SplitSolution, kktMat *core.SplitKKTMatrix)

	// EvalImpulseCost returns the cost of one impulse stage. The impulse
	// change of velocity is read from the A slot of the solution.
	EvalImpulseCost(rb robot.Robot, status *robot.ImpulseStatus, data *Data, t float64, s *core.SplitSolution) float64
	// EvalImpulseCostDerivatives accumulates the impulse gradient.
	EvalImpulseCostDerivatives(rb robot.Robot, status *robot.ImpulseStatus, data *Data, t float64, s *core.SplitSolution, kktRes *core.SplitKKTResidual)
	// EvalImpulseCostHessian accumulates the impulse Hessian.
	EvalImpulseCostHessian(rb robot.Robot, status *robot.ImpulseStatus, data *Data, t float64, s *core.SplitSolution, kktMat *core.SplitKKTMatrix)
}

// CostFunction sums a set of components.
type CostFunction struct {
	components []Component
}

// NewCostFunction creates an empty cost function.
func NewCostFunction() *CostFunction {
	return &CostFunction{}
}

// Add registers a component.
func (c *CostFunction) Add(comp Component) {
	c.components = append(c.components, comp)
}

// NumComponents returns the number of registered components.
func (c *CostFunction) NumComponents() int { return len(c.components) }

// EvalStageCost sums the running cost of one stage.
func (c *CostFunction) EvalStageCost(rb robot.Robot, status *robot.ContactStatus, data *Data, t, dt float64, s *core.SplitSolution) float64 {
	total := 0.0
	for _, comp := range c.components {
		total += comp.EvalStageCost(rb, status, data, t, dt, s)
	}
	return total
}

// LinearizeStageCost sums the cost and accumulates the gradient.
func (c *CostFunction) LinearizeStageCost(rb robot.Robot, status *robot.ContactStatus, data *Data, t, dt float64, s *core.SplitSolution, kktRes *core.SplitKKTResidual) float64 {
	total := 0.0
	for _, comp := range c.components {
		total += comp.EvalStageCost(rb, status, data, t, dt, s)
		comp.EvalStageCostDerivatives(rb, status, data, t, dt, s, kktRes)
	}
	return total
}

// QuadratizeStageCost sums the cost and accumulates gradient and Hessian.
func (c *CostFunction) QuadratizeStageCost(rb robot.Robot, status *robot.ContactStatus, data *Data, t, dt float64, s *core.SplitSolution, kktRes *core.SplitKKTResidual, kktMat *core.SplitKKTMatrix) float64 {
	total := 0.0
	for _, comp := range c.components {
		total += comp.EvalStageCost(rb, status, data, t, dt, s)
		comp.EvalStageCostDerivatives(rb, status, data, t, dt, s, kktRes)
		comp.EvalStageCostHessian(rb, status, data, t, dt, s, kktMat)
	}
	return total
}

// EvalTerminalCost sums the terminal cost.
func (c *CostFunction) EvalTerminalCost(rb robot.Robot, data *Data, t float64, s *core.SplitSolution) float64 {
	total := 0.0
	for _, comp := range c.components {
		total += comp.EvalTerminalCost(rb, data, t, s)
	}
	return total
}

// LinearizeTerminalCost sums the terminal cost and accumulates the gradient.
func (c *CostFunction) LinearizeTerminalCost(rb robot.Robot, data *Data, t float64, s *core.SplitSolution, kktRes *core.SplitKKTResidual) float64 {
	total := 0.0
	for _, comp := range c.components {
		total += comp.EvalTerminalCost(rb, data, t, s)
		comp.EvalTerminalCostDerivatives(rb, data, t, s, kktRes)
	}
	return total
}

// QuadratizeTerminalCost sums the terminal cost and accumulates gradient and
// Hessian.
func (c *CostFunction) QuadratizeTerminalCost(rb robot.Robot, data *Data, t float64, s *core.SplitSolution, kktRes *core.SplitKKTResidual, kktMat *core.SplitKKTMatrix) float64 {
	total := 0.0
	for _, comp := range c.components {
		total += comp.EvalTerminalCost(rb, data, t, s)
		comp.EvalTerminalCostDerivatives(rb, data, t, s, kktRes)
		comp.EvalTerminalCostHessian(rb, data, t, s, kktMat)
	}
	return total
}

// EvalImpulseCost sums the impulse cost.
func (c *CostFunction) EvalImpulseCost(rb robot.Robot, status *robot.ImpulseStatus, data *Data, t float64, s *core.SplitSolution) float64 {
	total := 0.0
	for _, comp := range c.components {
		total += comp.EvalImpulseCost(rb, status, data, t, s)
	}
	return total
}

// LinearizeImpulseCost sums the impulse cost and accumulates the gradient.
func (c *CostFunction) LinearizeImpulseCost(rb robot.Robot, status *robot.ImpulseStatus, data *Data, t float64, s *core.SplitSolution, kktRes *core.SplitKKTResidual) float64 {
	total := 0.0
	for _, comp := range c.components {
		total += comp.EvalImpulseCost(rb, status, data, t, s)
		comp.EvalImpulseCostDerivatives(rb, status, data, t, s, kktRes)
	}
	return total
}

// QuadratizeImpulseCost sums the impulse cost and accumulates gradient and
// Hessian.
func (c *CostFunction) QuadratizeImpulseCost(rb robot.Robot, status *robot.ImpulseStatus, data *Data, t float64, s *core.SplitSolution, kktRes *core.SplitKKTResidual, kktMat *core.SplitKKTMatrix) float64 {
	total := 0.0
	for _, comp := range c.components {
		total += comp.EvalImpulseCost(rb, status, data, t, s)
		comp.EvalImpulseCostDerivatives(rb, status, data, t, s, kktRes)
		comp.EvalImpulseCostHessian(rb, status, data, t, s, kktMat)
	}
	return total
}
