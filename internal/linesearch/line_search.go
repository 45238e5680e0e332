package linesearch

import (
	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/hybrid"
	"github.com/san-kum/trajopt/internal/ocp"
	"github.com/san-kum/trajopt/internal/robot"
)

// LineSearch backtracks from the fraction-to-boundary step size until the
// filter accepts the trial iterate. The trial solution and residual buffers
// are owned by the line search and reused across iterations.
type LineSearch struct {
	filter                *Filter
	stepSizeReductionRate float64
	minStepSize           float64
	trial                 *core.Solution
	kktRes                *core.KKTResidual
}

// NewLineSearch allocates the trial buffers for a horizon of N stages and at
// most maxNumImpulse impulse and lift events.
func NewLineSearch(rb robot.Robot, N, maxNumImpulse int) *LineSearch {
	return &LineSearch{
		filter:                NewFilter(),
		stepSizeReductionRate: 0.75,
		minStepSize:           0.05,
		trial:                 core.NewSolution(rb, N, maxNumImpulse),
		kktRes:                core.NewKKTResidual(rb, N, maxNumImpulse),
	}
}

// SetStepSizeReductionRate sets the backtracking factor.
func (ls *LineSearch) SetStepSizeReductionRate(rate float64) error {
	if err := validRate("step size reduction rate", rate); err != nil {
		return err
	}
	ls.stepSizeReductionRate = rate
	return nil
}

// SetMinStepSize sets the smallest step size returned by Compute.
func (ls *LineSearch) SetMinStepSize(size float64) error {
	if err := validRate("minimum step size", size); err != nil {
		return err
	}
	ls.minStepSize = size
	return nil
}

// Reset clears the filter, e.g. after the contact sequence changes.
func (ls *LineSearch) Reset() { ls.filter.Clear() }

// Compute returns the accepted primal step size, backtracking from
// maxPrimalStepSize. The current iterate seeds the filter on the first call.
func (ls *LineSearch) Compute(o *ocp.OCP, dms *ocp.DirectMultipleShooting, robots []robot.Robot, cs *hybrid.ContactSequence, s *core.Solution, d *core.Direction, maxPrimalStepSize float64) float64 {
	if ls.filter.IsEmpty() {
		dms.EvalOCP(o, robots, cs, s, ls.kktRes)
		ls.filter.Augment(dms.TotalCost(o), dms.TotalConstraintViolation(o, ls.kktRes))
	}
	step := maxPrimalStepSize
	for step > ls.minStepSize {
		ls.integrateTrial(o, robots[0], cs, s, d, step)
		dms.EvalOCP(o, robots, cs, ls.trial, ls.kktRes)
		cost := dms.TotalCost(o)
		violation := dms.TotalConstraintViolation(o, ls.kktRes)
		if ls.filter.IsAccepted(cost, violation) {
			ls.filter.Augment(cost, violation)
			return step
		}
		step *= ls.stepSizeReductionRate
	}
	return ls.minStepSize
}

func (ls *LineSearch) integrateTrial(o *ocp.OCP, rb robot.Robot, cs *hybrid.ContactSequence, s *core.Solution, d *core.Direction, step float64) {
	disc := o.Discretization()
	n := disc.N()
	for i := 0; i <= n; i++ {
		ls.trial.Grid[i].CopyPrimal(s.Grid[i])
		var active func(int) bool
		if i < n {
			active = cs.ContactStatus(disc.ContactPhase(i)).IsContactActive
		}
		ls.trial.Grid[i].Integrate(rb, step, d.Grid[i], active)
	}
	for idx := 0; idx < disc.NumImpulseStages(); idx++ {
		is := cs.ImpulseStatus(idx)
		ls.trial.Impulse[idx].CopyPrimal(s.Impulse[idx])
		ls.trial.Impulse[idx].Integrate(rb, step, d.Impulse[idx], is.IsImpulseActive)
		status := cs.ContactStatus(disc.ContactPhaseAfterImpulse(idx))
		ls.trial.Aux[idx].CopyPrimal(s.Aux[idx])
		ls.trial.Aux[idx].Integrate(rb, step, d.Aux[idx], status.IsContactActive)
	}
	for idx := 0; idx < disc.NumLiftStages(); idx++ {
		status := cs.ContactStatus(disc.ContactPhaseAfterLift(idx))
		ls.trial.Lift[idx].CopyPrimal(s.Lift[idx])
		ls.trial.Lift[idx].Integrate(rb, step, d.Lift[idx], status.IsContactActive)
	}
}
