package constraints

import (
	"fmt"

	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/robot"
)

// KinematicsLevel classifies which derivatives a component needs.
type KinematicsLevel int

const (
	PositionLevel KinematicsLevel = iota
	VelocityLevel
	AccelerationLevel
)

// Component is the uniform contract of one inequality-constraint kind.
// Implementations are stateless across calls: all per-stage state lives in
// the Data object they are handed.
type Component interface {
	// KinematicsLevel returns the derivative level of the component.
	KinematicsLevel() KinematicsLevel
	// Dimc returns the number of constraint rows.
	Dimc() int
	// AppliesToImpulse reports whether the component also constrains
	// impulse stages.
	AppliesToImpulse() bool
	// AllocateExtraData lets the component attach scratch vectors to data.
	AllocateExtraData(data *Data)
	// IsFeasible checks strict positivity of the primal margin at s.
	IsFeasible(rb robot.Robot, status *robot.ContactStatus, data *Data, s *core.SplitSolution) bool
	// SetSlack initializes the slack from the primal margin at s.
	SetSlack(rb robot.Robot, status *robot.ContactStatus, data *Data, s *core.SplitSolution)
	// EvalConstraint computes the primal residual, the complementarity
	// residual, and the log-barrier value.
	EvalConstraint(rb robot.Robot, status *robot.ContactStatus, barrier float64, data *Data, s *core.SplitSolution)
	// EvalDerivatives accumulates the Jacobian-transpose-times-dual terms
	// into the KKT residual. Always called just after EvalConstraint.
	EvalDerivatives(rb robot.Robot, status *robot.ContactStatus, data *Data, s *core.SplitSolution, kktRes *core.SplitKKTResidual)
	// CondenseSlackAndDual Schur-eliminates the slack and dual into the KKT
	// blocks. The update is diagonal since the rows are independent.
	CondenseSlackAndDual(status *robot.ContactStatus, data *Data, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual)
	// ExpandSlackAndDual back-substitutes the primal step into the slack and
	// dual directions.
	ExpandSlackAndDual(status *robot.ContactStatus, data *Data, d *core.SplitDirection)
}

// Constraints owns the component set of a problem together with the shared
// barrier parameter and fraction-to-boundary margin. Components are added
// once during problem construction and referred to only through the
// container afterwards.
type Constraints struct {
	position     []Component
	velocity     []Component
	acceleration []Component
	impulse      []Component

	barrier              float64
	fractionToBoundary   float64
}

// NewConstraints creates an empty container.
func NewConstraints(barrierParam, fractionToBoundaryRule float64) (*Constraints, error) {
	if barrierParam <= 0 {
		return nil, fmt.Errorf("constraints: barrier param must be positive, got %g", barrierParam)
	}
	if fractionToBoundaryRule <= 0 || fractionToBoundaryRule >= 1 {
		return nil, fmt.Errorf("constraints: fraction-to-boundary rule must be in (0, 1), got %g",
			fractionToBoundaryRule)
	}
	return &Constraints{
		barrier:            barrierParam,
		fractionToBoundary: fractionToBoundaryRule,
	}, nil
}

// Add registers a component.
func (c *Constraints) Add(comp Component) {
	switch comp.KinematicsLevel() {
	case PositionLevel:
		c.position = append(c.position, comp)
	case VelocityLevel:
		c.velocity = append(c.velocity, comp)
	default:
		c.acceleration = append(c.acceleration, comp)
	}
	if comp.AppliesToImpulse() {
		c.impulse = append(c.impulse, comp)
	}
}

// BarrierParam returns the shared barrier parameter.
func (c *Constraints) BarrierParam() float64 { return c.barrier }

// FractionToBoundaryRule returns the shared step-size margin.
func (c *Constraints) FractionToBoundaryRule() float64 { return c.fractionToBoundary }

// SetBarrierParam sets the shared barrier parameter.
func (c *Constraints) SetBarrierParam(b float64) error {
	if b <= 0 {
		return fmt.Errorf("constraints: barrier param must be positive, got %g", b)
	}
	c.barrier = b
	return nil
}

// SetFractionToBoundaryRule sets the shared step-size margin.
func (c *Constraints) SetFractionToBoundaryRule(r float64) error {
	if r <= 0 || r >= 1 {
		return fmt.Errorf("constraints: fraction-to-boundary rule must be in (0, 1), got %g", r)
	}
	c.fractionToBoundary = r
	return nil
}

// CreateStageData allocates the per-component data of one stage. Negative
// time stages denote impulse stages.
func (c *Constraints) CreateStageData(timeStage int) *StageData {
	sd := NewStageData(timeStage)
	alloc := func(comps []Component) []*Data {
		out := make([]*Data, len(comps))
		for i, comp := range comps {
			out[i] = NewData(comp.Dimc(), c.barrier)
			comp.AllocateExtraData(out[i])
		}
		return out
	}
	sd.Position = alloc(c.position)
	sd.Velocity = alloc(c.velocity)
	sd.Acceleration = alloc(c.acceleration)
	sd.Impulse = alloc(c.impulse)
	return sd
}

// forEachValid pairs every valid-level component with its data.
func (c *Constraints) forEachValid(sd *StageData, fn func(Component, *Data)) {
	if sd.IsPositionLevelValid() {
		for i, comp := range c.position {
			fn(comp, sd.Position[i])
		}
	}
	if sd.IsVelocityLevelValid() {
		for i, comp := range c.velocity {
			fn(comp, sd.Velocity[i])
		}
	}
	if sd.IsAccelerationLevelValid() {
		for i, comp := range c.acceleration {
			fn(comp, sd.Acceleration[i])
		}
	}
	if sd.IsImpulseLevelValid() {
		for i, comp := range c.impulse {
			fn(comp, sd.Impulse[i])
		}
	}
}

// IsFeasible checks every valid component at s.
func (c *Constraints) IsFeasible(rb robot.Robot, status *robot.ContactStatus, sd *StageData, s *core.SplitSolution) bool {
	feasible := true
	c.forEachValid(sd, func(comp Component, d *Data) {
		if !comp.IsFeasible(rb, status, d, s) {
			feasible = false
		}
	})
	return feasible
}

// SetSlackAndDual initializes strictly positive slack and dual variables,
// independent of warm start.
func (c *Constraints) SetSlackAndDual(rb robot.Robot, status *robot.ContactStatus, sd *StageData, s *core.SplitSolution) {
	c.forEachValid(sd, func(comp Component, d *Data) {
		comp.SetSlack(rb, status, d, s)
		SetSlackAndDualPositive(c.barrier, d)
	})
}

// EvalConstraint computes the primal residual, complementarity, and
// log-barrier value of every valid component.
func (c *Constraints) EvalConstraint(rb robot.Robot, status *robot.ContactStatus, sd *StageData, s *core.SplitSolution) {
	c.forEachValid(sd, func(comp Component, d *Data) {
		comp.EvalConstraint(rb, status, c.barrier, d, s)
	})
}

// LinearizeConstraints evaluates the constraints and accumulates the
// first-order terms into the KKT residual.
func (c *Constraints) LinearizeConstraints(rb robot.Robot, status *robot.ContactStatus, sd *StageData, s *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	c.forEachValid(sd, func(comp Component, d *Data) {
		comp.EvalConstraint(rb, status, c.barrier, d, s)
		comp.EvalDerivatives(rb, status, d, s, kktRes)
	})
}

// CondenseSlackAndDual eliminates the slack and dual variables into the KKT
// Hessian and residual of the stage.
func (c *Constraints) CondenseSlackAndDual(status *robot.ContactStatus, sd *StageData, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	c.forEachValid(sd, func(comp Component, d *Data) {
		ComputeCondensingCoefficient(d)
		comp.CondenseSlackAndDual(status, d, kktMat, kktRes)
	})
}

// ExpandSlackAndDual computes the slack and dual directions from the primal
// direction of the stage.
func (c *Constraints) ExpandSlackAndDual(status *robot.ContactStatus, sd *StageData, d *core.SplitDirection) {
	c.forEachValid(sd, func(comp Component, data *Data) {
		data.ResetDirections()
		comp.ExpandSlackAndDual(status, data, d)
		ComputeDualDirection(data)
	})
}

// MaxSlackStepSize returns the fraction-to-boundary step bound over every
// valid component's slack direction.
func (c *Constraints) MaxSlackStepSize(sd *StageData) float64 {
	step := 1.0
	c.forEachValid(sd, func(_ Component, d *Data) {
		if s := FractionToBoundarySlack(c.fractionToBoundary, d); s < step {
			step = s
		}
	})
	return step
}

// MaxDualStepSize returns the fraction-to-boundary step bound over every
// valid component's dual direction.
func (c *Constraints) MaxDualStepSize(sd *StageData) float64 {
	step := 1.0
	c.forEachValid(sd, func(_ Component, d *Data) {
		if s := FractionToBoundaryDual(c.fractionToBoundary, d); s < step {
			step = s
		}
	})
	return step
}

// UpdateSlack advances every valid component's slack.
func (c *Constraints) UpdateSlack(sd *StageData, stepSize float64) {
	c.forEachValid(sd, func(_ Component, d *Data) { d.UpdateSlack(stepSize) })
}

// UpdateDual advances every valid component's dual.
func (c *Constraints) UpdateDual(sd *StageData, stepSize float64) {
	c.forEachValid(sd, func(_ Component, d *Data) { d.UpdateDual(stepSize) })
}
