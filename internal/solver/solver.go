package solver

import (
	"fmt"
	"time"

	"github.com/edaniels/golog"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/constraints"
	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/cost"
	"github.com/san-kum/trajopt/internal/hybrid"
	"github.com/san-kum/trajopt/internal/linesearch"
	"github.com/san-kum/trajopt/internal/ocp"
	"github.com/san-kum/trajopt/internal/riccati"
	"github.com/san-kum/trajopt/internal/robot"
)

// OCPSolver owns the horizon problem, its iterate, and the workspaces of the
// Newton iteration. One solver instance is reused across Solve calls, e.g.
// in a receding-horizon loop.
type OCPSolver struct {
	opts   Options
	rb     robot.Robot
	o      *ocp.OCP
	dms    *ocp.DirectMultipleShooting
	rec    *riccati.RiccatiRecursion
	ls     *linesearch.LineSearch
	robots []robot.Robot
	cs     *hybrid.ContactSequence
	s      *core.Solution
	d      *core.Direction
	kktMat *core.KKTMatrix
	kktRes *core.KKTResidual
	logger golog.Logger
	stats  Statistics
}

// NewOCPSolver builds a solver for the given robot, cost, constraints, and
// contact sequence. A nil logger falls back to a named default logger.
func NewOCPSolver(rb robot.Robot, cf *cost.CostFunction, cons *constraints.Constraints, cs *hybrid.ContactSequence, opts Options, logger golog.Logger) (*OCPSolver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if cs == nil {
		return nil, fmt.Errorf("solver: contact sequence must not be nil")
	}
	maxImp := cs.MaxNumImpulse()
	o, err := ocp.NewOCP(rb, cf, cons, opts.Horizon, opts.NumStages, maxImp)
	if err != nil {
		return nil, err
	}
	dms, err := ocp.NewDirectMultipleShooting(opts.NumThreads)
	if err != nil {
		return nil, err
	}
	rec, err := riccati.NewRiccatiRecursion(rb, opts.NumStages, maxImp)
	if err != nil {
		return nil, err
	}
	ls := linesearch.NewLineSearch(rb, opts.NumStages, maxImp)
	if err := ls.SetStepSizeReductionRate(opts.LineSearchReductionRate); err != nil {
		return nil, err
	}
	if err := ls.SetMinStepSize(opts.MinLineSearchStep); err != nil {
		return nil, err
	}
	robots := make([]robot.Robot, opts.NumThreads)
	for i := range robots {
		robots[i] = rb.Clone()
	}
	if logger == nil {
		logger = golog.NewLogger("trajopt")
	}
	return &OCPSolver{
		opts:   opts,
		rb:     rb,
		o:      o,
		dms:    dms,
		rec:    rec,
		ls:     ls,
		robots: robots,
		cs:     cs,
		s:      core.NewSolution(rb, opts.NumStages, maxImp),
		d:      core.NewDirection(rb, opts.NumStages, maxImp),
		kktMat: core.NewKKTMatrix(rb, opts.NumStages, maxImp),
		kktRes: core.NewKKTResidual(rb, opts.NumStages, maxImp),
		logger: logger,
	}, nil
}

// Solution returns the current iterate.
func (sv *OCPSolver) Solution() *core.Solution { return sv.s }

// Discretization returns the stage plan of the last Solve call.
func (sv *OCPSolver) Discretization() *hybrid.Discretization { return sv.o.Discretization() }

// SetSolution seeds every stage of the iterate with the configuration q and
// velocity v.
func (sv *OCPSolver) SetSolution(q, v mat.Vector) error {
	if q.Len() != sv.rb.Dimq() {
		return fmt.Errorf("solver: configuration must have size %d, got %d", sv.rb.Dimq(), q.Len())
	}
	if v.Len() != sv.rb.Dimv() {
		return fmt.Errorf("solver: velocity must have size %d, got %d", sv.rb.Dimv(), v.Len())
	}
	apply := func(ss *core.SplitSolution) {
		ss.Q.CloneFromVec(q)
		ss.V.CloneFromVec(v)
	}
	for _, ss := range sv.s.Grid {
		apply(ss)
	}
	for i := range sv.s.Impulse {
		apply(sv.s.Impulse[i])
		apply(sv.s.Aux[i])
		apply(sv.s.Lift[i])
	}
	return nil
}

// SetContactForce seeds the force of one contact candidate on every stage,
// e.g. with a weight-bearing guess that keeps the friction cone strictly
// feasible.
func (sv *OCPSolver) SetContactForce(contact int, f mat.Vector) error {
	if contact < 0 || contact >= sv.rb.MaxNumContacts() {
		return fmt.Errorf("solver: contact index %d out of range [0, %d)", contact, sv.rb.MaxNumContacts())
	}
	if f.Len() != robot.ContactDim {
		return fmt.Errorf("solver: contact force must have size %d, got %d", robot.ContactDim, f.Len())
	}
	apply := func(ss *core.SplitSolution) { ss.F[contact].CloneFromVec(f) }
	for _, ss := range sv.s.Grid {
		apply(ss)
	}
	for i := range sv.s.Impulse {
		apply(sv.s.Impulse[i])
		apply(sv.s.Aux[i])
		apply(sv.s.Lift[i])
	}
	return nil
}

// TotalCost returns the cost of the last evaluated iterate.
func (sv *OCPSolver) TotalCost() float64 { return sv.dms.TotalCost(sv.o) }

// Solve runs the Newton iteration from the current iterate for the horizon
// starting at time t with initial state (q0, v0).
func (sv *OCPSolver) Solve(t float64, q0, v0 mat.Vector) (Statistics, error) {
	start := time.Now()
	sv.stats.reset()
	if q0.Len() != sv.rb.Dimq() {
		return sv.stats, fmt.Errorf("solver: initial configuration must have size %d, got %d", sv.rb.Dimq(), q0.Len())
	}
	if v0.Len() != sv.rb.Dimv() {
		return sv.stats, fmt.Errorf("solver: initial velocity must have size %d, got %d", sv.rb.Dimv(), v0.Len())
	}
	if err := sv.o.Discretize(sv.cs, t); err != nil {
		return sv.stats, err
	}
	sv.dms.InitConstraints(sv.o, sv.robots, sv.cs, sv.s)
	sv.ls.Reset()
	for iter := 0; iter < sv.opts.MaxIterations; iter++ {
		sv.dms.ComputeKKTSystem(sv.o, sv.robots, sv.cs, sv.s, sv.kktMat, sv.kktRes)
		kktErr := sv.dms.KKTError(sv.o, sv.kktRes)
		sv.stats.KKTError = append(sv.stats.KKTError, kktErr)
		if kktErr < sv.opts.KKTTolerance {
			sv.stats.Convergence = true
			break
		}
		if err := sv.rec.BackwardRecursion(sv.o, sv.kktMat, sv.kktRes); err != nil {
			return sv.stats, fmt.Errorf("solver: iteration %d: %w", iter, err)
		}
		sv.dms.ComputeInitialStateDirection(sv.o, sv.robots, q0, v0, sv.s, sv.d)
		sv.rec.ForwardRecursion(sv.o, sv.kktMat, sv.kktRes, sv.d)
		sv.dms.ExpandPrimal(sv.o, sv.cs, sv.d)
		primal := sv.dms.MaxPrimalStepSize(sv.o)
		dual := sv.dms.MaxDualStepSize(sv.o)
		if sv.opts.EnableLineSearch {
			primal = sv.ls.Compute(sv.o, sv.dms, sv.robots, sv.cs, sv.s, sv.d, primal)
		}
		sv.dms.IntegrateSolution(sv.o, sv.robots, sv.cs, primal, dual, sv.d, sv.s)
		sv.stats.PrimalStepSizes = append(sv.stats.PrimalStepSizes, primal)
		sv.stats.DualStepSizes = append(sv.stats.DualStepSizes, dual)
		sv.stats.Iterations++
		sv.logger.Debugf("iter %d: KKT error %.6e, primal step %.4f, dual step %.4f", iter, kktErr, primal, dual)
	}
	sv.stats.FinalCost = sv.dms.TotalCost(sv.o)
	sv.stats.CPUTime = time.Since(start)
	if sv.stats.Convergence {
		sv.logger.Infof("converged in %d iterations, cost %.6g, %v",
			sv.stats.Iterations, sv.stats.FinalCost, sv.stats.CPUTime)
	} else {
		sv.logger.Infof("stopped after %d iterations without reaching tolerance %.1e",
			sv.stats.Iterations, sv.opts.KKTTolerance)
	}
	return sv.stats, nil
}

// KKTError recomputes the KKT residual of the current iterate and returns
// its aggregate norm.
func (sv *OCPSolver) KKTError() float64 {
	sv.dms.ComputeKKTResidual(sv.o, sv.robots, sv.cs, sv.s, sv.kktMat, sv.kktRes)
	return sv.dms.KKTError(sv.o, sv.kktRes)
}
