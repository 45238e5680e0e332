package solver

import (
	"math"
	"testing"

	"github.com/edaniels/golog"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/constraints"
	"github.com/san-kum/trajopt/internal/cost"
	"github.com/san-kum/trajopt/internal/hybrid"
	"github.com/san-kum/trajopt/internal/models"
	"github.com/san-kum/trajopt/internal/robot"
)

func constVec(n int, v float64) *mat.VecDense {
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetVec(i, v)
	}
	return out
}

func chainSolver(t *testing.T, opts Options) *OCPSolver {
	t.Helper()
	rb := models.NewChain(2)
	c := cost.NewConfigurationSpaceCost(rb)
	if err := c.SetQWeight(constVec(2, 2.0)); err != nil {
		t.Fatal(err)
	}
	if err := c.SetQRef(constVec(2, 0.5)); err != nil {
		t.Fatal(err)
	}
	if err := c.SetVWeight(constVec(2, 1.0)); err != nil {
		t.Fatal(err)
	}
	if err := c.SetAWeight(constVec(2, 0.5)); err != nil {
		t.Fatal(err)
	}
	if err := c.SetUWeight(constVec(2, 0.1)); err != nil {
		t.Fatal(err)
	}
	if err := c.SetQfWeight(constVec(2, 3.0)); err != nil {
		t.Fatal(err)
	}
	if err := c.SetVfWeight(constVec(2, 1.5)); err != nil {
		t.Fatal(err)
	}
	cf := cost.NewCostFunction()
	cf.Add(c)
	cons, err := constraints.NewConstraints(1.0e-4, 0.995)
	if err != nil {
		t.Fatal(err)
	}
	upper, err := constraints.NewJointTorqueUpperLimit(constVec(2, 50.0))
	if err != nil {
		t.Fatal(err)
	}
	lower, err := constraints.NewJointTorqueLowerLimit(constVec(2, -50.0))
	if err != nil {
		t.Fatal(err)
	}
	cons.Add(upper)
	cons.Add(lower)
	cs, err := hybrid.NewContactSequence(0, robot.NewContactStatus(0))
	if err != nil {
		t.Fatal(err)
	}
	sv, err := NewOCPSolver(rb, cf, cons, cs, opts, golog.NewTestLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	return sv
}

func TestOptionsValidate(t *testing.T) {
	opts := Options{Horizon: 1.0, NumStages: 10}
	if err := opts.Validate(); err != nil {
		t.Fatal(err)
	}
	if opts.MaxIterations != DefaultMaxIterations {
		t.Errorf("max iterations = %d, want default %d", opts.MaxIterations, DefaultMaxIterations)
	}
	if opts.KKTTolerance != DefaultKKTTolerance {
		t.Errorf("KKT tolerance = %g, want default %g", opts.KKTTolerance, DefaultKKTTolerance)
	}

	bad := Options{Horizon: -1, NumStages: 10}
	if err := bad.Validate(); err == nil {
		t.Error("negative horizon should be rejected")
	}
	bad = Options{Horizon: 1.0, NumStages: 0}
	if err := bad.Validate(); err == nil {
		t.Error("zero stages should be rejected")
	}
}

func TestSolveChainConverges(t *testing.T) {
	opts := DefaultOptions()
	opts.Horizon = 1.0
	opts.NumStages = 10
	opts.KKTTolerance = 1.0e-6
	sv := chainSolver(t, opts)

	q0 := constVec(2, 0.3)
	v0 := constVec(2, -0.1)
	if err := sv.SetSolution(q0, v0); err != nil {
		t.Fatal(err)
	}
	stats, err := sv.Solve(0, q0, v0)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.Convergence {
		t.Fatalf("solver did not converge: %s", stats.String())
	}
	if stats.Iterations > 20 {
		t.Errorf("iterations = %d, want <= 20", stats.Iterations)
	}
	last := stats.KKTError[len(stats.KKTError)-1]
	if last >= opts.KKTTolerance {
		t.Errorf("final KKT error = %g, want < %g", last, opts.KKTTolerance)
	}
	if stats.FinalCost <= 0 || math.IsNaN(stats.FinalCost) {
		t.Errorf("final cost = %g, want positive finite", stats.FinalCost)
	}

	// The initial state of the converged trajectory matches (q0, v0).
	s := sv.Solution()
	for k := 0; k < 2; k++ {
		if got, want := s.Grid[0].Q.AtVec(k), q0.AtVec(k); math.Abs(got-want) > 1.0e-6 {
			t.Errorf("q[0][%d] = %g, want %g", k, got, want)
		}
		if got, want := s.Grid[0].V.AtVec(k), v0.AtVec(k); math.Abs(got-want) > 1.0e-6 {
			t.Errorf("v[0][%d] = %g, want %g", k, got, want)
		}
	}
}

func TestSolveChainWithLineSearch(t *testing.T) {
	opts := DefaultOptions()
	opts.Horizon = 1.0
	opts.NumStages = 10
	opts.KKTTolerance = 1.0e-6
	opts.EnableLineSearch = true
	sv := chainSolver(t, opts)

	q0 := constVec(2, 0.3)
	v0 := constVec(2, -0.1)
	if err := sv.SetSolution(q0, v0); err != nil {
		t.Fatal(err)
	}
	stats, err := sv.Solve(0, q0, v0)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.Convergence {
		t.Fatalf("solver with line search did not converge: %s", stats.String())
	}
	for i, step := range stats.PrimalStepSizes {
		if step <= 0 || step > 1 {
			t.Errorf("primal step %d = %g, want in (0, 1]", i, step)
		}
	}
}

func TestSolvePointFootImpulse(t *testing.T) {
	rb := models.NewPointFoot(1)
	c := cost.NewConfigurationSpaceCost(rb)
	if err := c.SetQWeight(constVec(rb.Dimv(), 1.0)); err != nil {
		t.Fatal(err)
	}
	if err := c.SetVWeight(constVec(rb.Dimv(), 1.0)); err != nil {
		t.Fatal(err)
	}
	if err := c.SetAWeight(constVec(rb.Dimv(), 0.1)); err != nil {
		t.Fatal(err)
	}
	if err := c.SetUWeight(constVec(rb.Dimu(), 0.1)); err != nil {
		t.Fatal(err)
	}
	if err := c.SetQiWeight(constVec(rb.Dimv(), 1.0)); err != nil {
		t.Fatal(err)
	}
	if err := c.SetViWeight(constVec(rb.Dimv(), 1.0)); err != nil {
		t.Fatal(err)
	}
	if err := c.SetDviWeight(constVec(rb.Dimv(), 0.1)); err != nil {
		t.Fatal(err)
	}
	cf := cost.NewCostFunction()
	cf.Add(c)

	cons, err := constraints.NewConstraints(1.0e-4, 0.995)
	if err != nil {
		t.Fatal(err)
	}
	cons.Add(constraints.NewFrictionCone(rb.MaxNumContacts()))

	initial := robot.NewContactStatus(1)
	active := robot.NewContactStatus(1)
	active.Activate(0)
	cs, err := hybrid.NewContactSequence(1, initial)
	if err != nil {
		t.Fatal(err)
	}
	if err := cs.PushBack(active, 0.37, false); err != nil {
		t.Fatal(err)
	}

	opts := DefaultOptions()
	opts.Horizon = 1.0
	opts.NumStages = 10
	opts.MaxIterations = 10
	sv, err := NewOCPSolver(rb, cf, cons, cs, opts, golog.NewTestLogger(t))
	if err != nil {
		t.Fatal(err)
	}

	q0 := constVec(rb.Dimq(), 0.0)
	v0 := constVec(rb.Dimv(), 0.0)
	if err := sv.SetSolution(q0, v0); err != nil {
		t.Fatal(err)
	}
	f := mat.NewVecDense(robot.ContactDim, []float64{0.0, 0.0, 9.81})
	if err := sv.SetContactForce(0, f); err != nil {
		t.Fatal(err)
	}

	stats, err := sv.Solve(0, q0, v0)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats.KKTError) == 0 {
		t.Fatal("no KKT error recorded")
	}
	first := stats.KKTError[0]
	last := stats.KKTError[len(stats.KKTError)-1]
	if math.IsNaN(last) || math.IsInf(last, 0) {
		t.Fatalf("final KKT error = %g, want finite", last)
	}
	if last >= first {
		t.Errorf("KKT error did not decrease: first %g, last %g", first, last)
	}
}
