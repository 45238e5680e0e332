package ocp

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/hybrid"
	"github.com/san-kum/trajopt/internal/robot"
)

// DirectMultipleShooting sweeps the per-stage subproblems in parallel. The
// flattened stage index covers the N regular stages, the terminal stage,
// and the impulse, auxiliary, and lift stages of the current discretization.
// Stages never read another stage's mutable state during a sweep; adjacent
// stages couple only through the read-only solution and direction of their
// neighbors. Each worker owns one Robot clone since kinematics caches are
// not thread-safe.
type DirectMultipleShooting struct {
	nthreads int
	kktError []float64
}

// NewDirectMultipleShooting creates a sweep driver with the given number of
// worker goroutines.
func NewDirectMultipleShooting(nthreads int) (*DirectMultipleShooting, error) {
	if nthreads <= 0 {
		return nil, fmt.Errorf("ocp: nthreads must be positive, got %d", nthreads)
	}
	return &DirectMultipleShooting{nthreads: nthreads}, nil
}

// parallelFor visits every flattened stage index once, striping indices
// across the fixed worker set so each index always sees one worker's robot.
func (dms *DirectMultipleShooting) parallelFor(nAll int, fn func(worker, i int)) {
	var wg sync.WaitGroup
	for w := 0; w < dms.nthreads; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := worker; i < nAll; i += dms.nthreads {
				fn(worker, i)
			}
		}(w)
	}
	wg.Wait()
}

func numAll(disc *hybrid.Discretization) int {
	return disc.N() + 1 + 2*disc.NumImpulseStages() + disc.NumLiftStages()
}

// nextSolution resolves the stage the state equation of regular stage i
// couples to: the impulse or lift stage when one splits the interval, the
// next grid stage otherwise.
func nextSolution(disc *hybrid.Discretization, s *core.Solution, i int) *core.SplitSolution {
	if disc.IsStageBeforeImpulse(i) {
		return s.Impulse[disc.ImpulseIndexAfterStage(i)]
	}
	if disc.IsStageBeforeLift(i) {
		return s.Lift[disc.LiftIndexAfterStage(i)]
	}
	return s.Grid[i+1]
}

func nextDirection(disc *hybrid.Discretization, d *core.Direction, i int) *core.SplitDirection {
	if disc.IsStageBeforeImpulse(i) {
		return d.Impulse[disc.ImpulseIndexAfterStage(i)]
	}
	if disc.IsStageBeforeLift(i) {
		return d.Lift[disc.LiftIndexAfterStage(i)]
	}
	return d.Grid[i+1]
}

// InitConstraints initializes the slack and dual variables of every stage.
func (dms *DirectMultipleShooting) InitConstraints(o *OCP, robots []robot.Robot, cs *hybrid.ContactSequence, s *core.Solution) {
	disc := o.Discretization()
	n := disc.N()
	ni := disc.NumImpulseStages()
	dms.parallelFor(numAll(disc), func(w, i int) {
		rb := robots[w]
		switch {
		case i < n:
			status := cs.ContactStatus(disc.ContactPhase(i))
			o.Stages[i].InitConstraints(rb, status, s.Grid[i])
		case i == n:
			// The terminal stage carries no inequality constraints.
		case i < n+1+ni:
			idx := i - (n + 1)
			o.Impulse[idx].InitConstraints(rb, cs.ImpulseStatus(idx), s.Impulse[idx])
		case i < n+1+2*ni:
			idx := i - (n + 1 + ni)
			status := cs.ContactStatus(disc.ContactPhaseAfterImpulse(idx))
			o.Aux[idx].InitConstraints(rb, status, s.Aux[idx])
		default:
			idx := i - (n + 1 + 2*ni)
			status := cs.ContactStatus(disc.ContactPhaseAfterLift(idx))
			o.Lift[idx].InitConstraints(rb, status, s.Lift[idx])
		}
	})
}

// IsFeasible reports whether every stage strictly satisfies its inequality
// constraints at s.
func (dms *DirectMultipleShooting) IsFeasible(o *OCP, robots []robot.Robot, cs *hybrid.ContactSequence, s *core.Solution) bool {
	disc := o.Discretization()
	n := disc.N()
	ni := disc.NumImpulseStages()
	nAll := numAll(disc)
	feasible := make([]bool, nAll)
	dms.parallelFor(nAll, func(w, i int) {
		rb := robots[w]
		switch {
		case i < n:
			status := cs.ContactStatus(disc.ContactPhase(i))
			feasible[i] = o.Stages[i].IsFeasible(rb, status, s.Grid[i])
		case i == n:
			feasible[i] = true
		case i < n+1+ni:
			idx := i - (n + 1)
			feasible[i] = o.Impulse[idx].IsFeasible(rb, cs.ImpulseStatus(idx), s.Impulse[idx])
		case i < n+1+2*ni:
			idx := i - (n + 1 + ni)
			status := cs.ContactStatus(disc.ContactPhaseAfterImpulse(idx))
			feasible[i] = o.Aux[idx].IsFeasible(rb, status, s.Aux[idx])
		default:
			idx := i - (n + 1 + 2*ni)
			status := cs.ContactStatus(disc.ContactPhaseAfterLift(idx))
			feasible[i] = o.Lift[idx].IsFeasible(rb, status, s.Lift[idx])
		}
	})
	for _, f := range feasible {
		if !f {
			return false
		}
	}
	return true
}

// ComputeKKTSystem linearizes and condenses every stage of the horizon.
func (dms *DirectMultipleShooting) ComputeKKTSystem(o *OCP, robots []robot.Robot, cs *hybrid.ContactSequence, s *core.Solution, kktMat *core.KKTMatrix, kktRes *core.KKTResidual) {
	dms.sweep(o, robots, cs, s, kktMat, kktRes, true)
}

// ComputeKKTResidual linearizes every stage without condensation, for KKT
// error and constraint-violation evaluation at the current iterate.
func (dms *DirectMultipleShooting) ComputeKKTResidual(o *OCP, robots []robot.Robot, cs *hybrid.ContactSequence, s *core.Solution, kktMat *core.KKTMatrix, kktRes *core.KKTResidual) {
	dms.sweep(o, robots, cs, s, kktMat, kktRes, false)
}

func (dms *DirectMultipleShooting) sweep(o *OCP, robots []robot.Robot, cs *hybrid.ContactSequence, s *core.Solution, kktMat *core.KKTMatrix, kktRes *core.KKTResidual, condense bool) {
	disc := o.Discretization()
	n := disc.N()
	ni := disc.NumImpulseStages()
	dms.parallelFor(numAll(disc), func(w, i int) {
		rb := robots[w]
		switch {
		case i < n:
			status := cs.ContactStatus(disc.ContactPhase(i))
			t := disc.Time(i)
			dt := disc.Dt(i)
			sNext := nextSolution(disc, s, i)
			if i+1 < n && disc.IsStageBeforeImpulse(i+1) {
				impIdx := disc.ImpulseIndexAfterStage(i + 1)
				is := cs.ImpulseStatus(impIdx)
				dtNext := disc.Dt(i + 1)
				if condense {
					o.Stages[i].ComputeKKTSystemWithSwitching(rb, status, is, t, dt, dtNext, s.Grid[i], sNext, kktMat.Grid[i], kktRes.Grid[i])
				} else {
					o.Stages[i].ComputeKKTResidualWithSwitching(rb, status, is, t, dt, dtNext, s.Grid[i], sNext, kktMat.Grid[i], kktRes.Grid[i])
				}
			} else if condense {
				o.Stages[i].ComputeKKTSystem(rb, status, t, dt, s.Grid[i], sNext, kktMat.Grid[i], kktRes.Grid[i])
			} else {
				o.Stages[i].ComputeKKTResidual(rb, status, t, dt, s.Grid[i], sNext, kktMat.Grid[i], kktRes.Grid[i])
			}
		case i == n:
			if condense {
				o.Terminal.ComputeKKTSystem(rb, disc.Time(n), s.Grid[n], kktMat.Grid[n], kktRes.Grid[n])
			} else {
				o.Terminal.ComputeKKTResidual(rb, disc.Time(n), s.Grid[n], kktMat.Grid[n], kktRes.Grid[n])
			}
		case i < n+1+ni:
			idx := i - (n + 1)
			is := cs.ImpulseStatus(idx)
			t := disc.TimeImpulse(idx)
			if condense {
				o.Impulse[idx].ComputeKKTSystem(rb, is, t, s.Impulse[idx], s.Aux[idx], kktMat.Impulse[idx], kktRes.Impulse[idx])
			} else {
				o.Impulse[idx].ComputeKKTResidual(rb, is, t, s.Impulse[idx], s.Aux[idx], kktMat.Impulse[idx], kktRes.Impulse[idx])
			}
		case i < n+1+2*ni:
			idx := i - (n + 1 + ni)
			status := cs.ContactStatus(disc.ContactPhaseAfterImpulse(idx))
			t := disc.TimeImpulse(idx)
			dt := disc.DtAux(idx)
			sNext := s.Grid[disc.StageAfterImpulse(idx)]
			if condense {
				o.Aux[idx].ComputeKKTSystem(rb, status, t, dt, s.Aux[idx], sNext, kktMat.Aux[idx], kktRes.Aux[idx])
			} else {
				o.Aux[idx].ComputeKKTResidual(rb, status, t, dt, s.Aux[idx], sNext, kktMat.Aux[idx], kktRes.Aux[idx])
			}
		default:
			idx := i - (n + 1 + 2*ni)
			status := cs.ContactStatus(disc.ContactPhaseAfterLift(idx))
			t := disc.TimeLift(idx)
			dt := disc.DtLift(idx)
			sNext := s.Grid[disc.StageAfterLift(idx)]
			if condense {
				o.Lift[idx].ComputeKKTSystem(rb, status, t, dt, s.Lift[idx], sNext, kktMat.Lift[idx], kktRes.Lift[idx])
			} else {
				o.Lift[idx].ComputeKKTResidual(rb, status, t, dt, s.Lift[idx], sNext, kktMat.Lift[idx], kktRes.Lift[idx])
			}
		}
	})
}

// EvalOCP evaluates the cost and residuals of every stage without
// derivatives, writing the state-equation residuals into kktRes. Used by
// the line search on trial solutions; slack and dual variables are left
// untouched.
func (dms *DirectMultipleShooting) EvalOCP(o *OCP, robots []robot.Robot, cs *hybrid.ContactSequence, s *core.Solution, kktRes *core.KKTResidual) {
	disc := o.Discretization()
	n := disc.N()
	ni := disc.NumImpulseStages()
	dms.parallelFor(numAll(disc), func(w, i int) {
		rb := robots[w]
		switch {
		case i < n:
			status := cs.ContactStatus(disc.ContactPhase(i))
			t := disc.Time(i)
			dt := disc.Dt(i)
			sNext := nextSolution(disc, s, i)
			if i+1 < n && disc.IsStageBeforeImpulse(i+1) {
				impIdx := disc.ImpulseIndexAfterStage(i + 1)
				o.Stages[i].EvalOCPWithSwitching(rb, status, cs.ImpulseStatus(impIdx), t, dt, disc.Dt(i+1), s.Grid[i], sNext, kktRes.Grid[i])
			} else {
				o.Stages[i].EvalOCP(rb, status, t, dt, s.Grid[i], sNext, kktRes.Grid[i])
			}
		case i == n:
			o.Terminal.EvalOCP(rb, disc.Time(n), s.Grid[n])
		case i < n+1+ni:
			idx := i - (n + 1)
			o.Impulse[idx].EvalOCP(rb, cs.ImpulseStatus(idx), disc.TimeImpulse(idx), s.Impulse[idx], s.Aux[idx], kktRes.Impulse[idx])
		case i < n+1+2*ni:
			idx := i - (n + 1 + ni)
			status := cs.ContactStatus(disc.ContactPhaseAfterImpulse(idx))
			sNext := s.Grid[disc.StageAfterImpulse(idx)]
			o.Aux[idx].EvalOCP(rb, status, disc.TimeImpulse(idx), disc.DtAux(idx), s.Aux[idx], sNext, kktRes.Aux[idx])
		default:
			idx := i - (n + 1 + 2*ni)
			status := cs.ContactStatus(disc.ContactPhaseAfterLift(idx))
			sNext := s.Grid[disc.StageAfterLift(idx)]
			o.Lift[idx].EvalOCP(rb, status, disc.TimeLift(idx), disc.DtLift(idx), s.Lift[idx], sNext, kktRes.Lift[idx])
		}
	})
}

// KKTError aggregates the per-stage squared KKT residual norms of the last
// sweep into one scalar, returned as its square root.
func (dms *DirectMultipleShooting) KKTError(o *OCP, kktRes *core.KKTResidual) float64 {
	disc := o.Discretization()
	n := disc.N()
	ni := disc.NumImpulseStages()
	nAll := numAll(disc)
	if len(dms.kktError) < nAll {
		dms.kktError = make([]float64, nAll)
	}
	dms.parallelFor(nAll, func(_, i int) {
		switch {
		case i < n:
			dms.kktError[i] = o.Stages[i].KKTError(kktRes.Grid[i], disc.Dt(i))
		case i == n:
			dms.kktError[i] = o.Terminal.KKTError(kktRes.Grid[n])
		case i < n+1+ni:
			idx := i - (n + 1)
			dms.kktError[i] = o.Impulse[idx].KKTError(kktRes.Impulse[idx])
		case i < n+1+2*ni:
			idx := i - (n + 1 + ni)
			dms.kktError[i] = o.Aux[idx].KKTError(kktRes.Aux[idx], disc.DtAux(idx))
			if disc.IsSTOEnabledImpulse(idx) {
				// Stationarity of the switching time couples the
				// sensitivities of the stages adjacent to the event.
				before := disc.StageBeforeImpulse(idx)
				hdiff := kktRes.Grid[before].H - kktRes.Aux[idx].H
				if before >= 1 {
					hdiff += kktRes.Grid[before-1].H
				}
				dms.kktError[i] += hdiff * hdiff
			}
		default:
			idx := i - (n + 1 + 2*ni)
			dms.kktError[i] = o.Lift[idx].KKTError(kktRes.Lift[idx], disc.DtLift(idx))
			if disc.IsSTOEnabledLift(idx) {
				hdiff := kktRes.Grid[disc.StageBeforeLift(idx)].H - kktRes.Lift[idx].H
				dms.kktError[i] += hdiff * hdiff
			}
		}
	})
	sum := 0.0
	for i := 0; i < nAll; i++ {
		sum += dms.kktError[i]
	}
	return math.Sqrt(sum)
}

// TotalCost sums the stage costs of the last sweep, including the terminal
// cost and the inserted event stages.
func (dms *DirectMultipleShooting) TotalCost(o *OCP) float64 {
	disc := o.Discretization()
	total := 0.0
	for i := 0; i < disc.N(); i++ {
		total += o.Stages[i].StageCost()
	}
	total += o.Terminal.TerminalCost()
	for i := 0; i < disc.NumImpulseStages(); i++ {
		total += o.Impulse[i].StageCost()
		total += o.Aux[i].StageCost()
	}
	for i := 0; i < disc.NumLiftStages(); i++ {
		total += o.Lift[i].StageCost()
	}
	return total
}

// TotalConstraintViolation sums the per-stage l1 primal infeasibility of the
// last sweep.
func (dms *DirectMultipleShooting) TotalConstraintViolation(o *OCP, kktRes *core.KKTResidual) float64 {
	disc := o.Discretization()
	total := 0.0
	for i := 0; i < disc.N(); i++ {
		total += o.Stages[i].ConstraintViolation(kktRes.Grid[i], disc.Dt(i))
	}
	for i := 0; i < disc.NumImpulseStages(); i++ {
		total += o.Impulse[i].ConstraintViolation(kktRes.Impulse[i])
		total += o.Aux[i].ConstraintViolation(kktRes.Aux[i], disc.DtAux(i))
	}
	for i := 0; i < disc.NumLiftStages(); i++ {
		total += o.Lift[i].ConstraintViolation(kktRes.Lift[i], disc.DtLift(i))
	}
	return total
}

// ComputeInitialStateDirection fixes the first-stage state step to the
// deviation of the measured initial state from the current iterate.
func (dms *DirectMultipleShooting) ComputeInitialStateDirection(o *OCP, robots []robot.Robot, q0, v0 mat.Vector, s *core.Solution, d *core.Direction) {
	o.Stages[0].ComputeInitialStateDirection(robots[0], q0, v0, s.Grid[0], d.Grid[0])
}

// ExpandPrimal recovers the eliminated per-stage directions from the state
// and control steps produced by the Riccati sweep.
func (dms *DirectMultipleShooting) ExpandPrimal(o *OCP, cs *hybrid.ContactSequence, d *core.Direction) {
	disc := o.Discretization()
	n := disc.N()
	ni := disc.NumImpulseStages()
	dms.parallelFor(numAll(disc), func(_, i int) {
		switch {
		case i < n:
			status := cs.ContactStatus(disc.ContactPhase(i))
			o.Stages[i].ExpandPrimal(status, d.Grid[i])
		case i == n:
			// Terminal stage: nothing eliminated.
		case i < n+1+ni:
			idx := i - (n + 1)
			o.Impulse[idx].ExpandPrimal(cs.ImpulseStatus(idx), d.Impulse[idx])
		case i < n+1+2*ni:
			idx := i - (n + 1 + ni)
			status := cs.ContactStatus(disc.ContactPhaseAfterImpulse(idx))
			o.Aux[idx].ExpandPrimal(status, d.Aux[idx])
		default:
			idx := i - (n + 1 + 2*ni)
			status := cs.ContactStatus(disc.ContactPhaseAfterLift(idx))
			o.Lift[idx].ExpandPrimal(status, d.Lift[idx])
		}
	})
}

// MaxPrimalStepSize returns the smallest fraction-to-boundary primal bound
// over all stages.
func (dms *DirectMultipleShooting) MaxPrimalStepSize(o *OCP) float64 {
	disc := o.Discretization()
	step := 1.0
	for i := 0; i < disc.N(); i++ {
		step = math.Min(step, o.Stages[i].MaxPrimalStepSize())
	}
	for i := 0; i < disc.NumImpulseStages(); i++ {
		step = math.Min(step, o.Impulse[i].MaxPrimalStepSize())
		step = math.Min(step, o.Aux[i].MaxPrimalStepSize())
	}
	for i := 0; i < disc.NumLiftStages(); i++ {
		step = math.Min(step, o.Lift[i].MaxPrimalStepSize())
	}
	return step
}

// MaxDualStepSize returns the smallest fraction-to-boundary dual bound over
// all stages.
func (dms *DirectMultipleShooting) MaxDualStepSize(o *OCP) float64 {
	disc := o.Discretization()
	step := 1.0
	for i := 0; i < disc.N(); i++ {
		step = math.Min(step, o.Stages[i].MaxDualStepSize())
	}
	for i := 0; i < disc.NumImpulseStages(); i++ {
		step = math.Min(step, o.Impulse[i].MaxDualStepSize())
		step = math.Min(step, o.Aux[i].MaxDualStepSize())
	}
	for i := 0; i < disc.NumLiftStages(); i++ {
		step = math.Min(step, o.Lift[i].MaxDualStepSize())
	}
	return step
}

// IntegrateSolution expands the eliminated multiplier directions and
// advances the primal and dual variables of every stage. A stage preceding
// an impulse or lift event pulls that event stage's direction for the dual
// expansion; the coupling is read-only.
func (dms *DirectMultipleShooting) IntegrateSolution(o *OCP, robots []robot.Robot, cs *hybrid.ContactSequence, primalStepSize, dualStepSize float64, d *core.Direction, s *core.Solution) {
	disc := o.Discretization()
	n := disc.N()
	ni := disc.NumImpulseStages()
	dms.parallelFor(numAll(disc), func(w, i int) {
		rb := robots[w]
		switch {
		case i < n:
			status := cs.ContactStatus(disc.ContactPhase(i))
			o.Stages[i].ExpandDual(disc.Dt(i), nextDirection(disc, d, i), d.Grid[i])
			o.Stages[i].UpdatePrimal(rb, status, primalStepSize, d.Grid[i], s.Grid[i])
			o.Stages[i].UpdateDual(dualStepSize)
		case i == n:
			o.Terminal.UpdatePrimal(rb, primalStepSize, d.Grid[n], s.Grid[n])
		case i < n+1+ni:
			idx := i - (n + 1)
			o.Impulse[idx].ExpandDual(d.Aux[idx], d.Impulse[idx])
			o.Impulse[idx].UpdatePrimal(rb, cs.ImpulseStatus(idx), primalStepSize, d.Impulse[idx], s.Impulse[idx])
			o.Impulse[idx].UpdateDual(dualStepSize)
		case i < n+1+2*ni:
			idx := i - (n + 1 + ni)
			status := cs.ContactStatus(disc.ContactPhaseAfterImpulse(idx))
			dNext := d.Grid[disc.StageAfterImpulse(idx)]
			o.Aux[idx].ExpandDual(disc.DtAux(idx), dNext, d.Aux[idx])
			o.Aux[idx].UpdatePrimal(rb, status, primalStepSize, d.Aux[idx], s.Aux[idx])
			o.Aux[idx].UpdateDual(dualStepSize)
		default:
			idx := i - (n + 1 + 2*ni)
			status := cs.ContactStatus(disc.ContactPhaseAfterLift(idx))
			dNext := d.Grid[disc.StageAfterLift(idx)]
			o.Lift[idx].ExpandDual(disc.DtLift(idx), dNext, d.Lift[idx])
			o.Lift[idx].UpdatePrimal(rb, status, primalStepSize, d.Lift[idx], s.Lift[idx])
			o.Lift[idx].UpdateDual(dualStepSize)
		}
	})
}
