package linesearch

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/constraints"
	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/cost"
	"github.com/san-kum/trajopt/internal/hybrid"
	"github.com/san-kum/trajopt/internal/models"
	"github.com/san-kum/trajopt/internal/ocp"
	"github.com/san-kum/trajopt/internal/riccati"
	"github.com/san-kum/trajopt/internal/robot"
)

func constVec(n int, v float64) *mat.VecDense {
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetVec(i, v)
	}
	return out
}

func TestFilterAcceptance(t *testing.T) {
	f := NewFilter()
	if !f.IsAccepted(10.0, 1.0) {
		t.Error("empty filter should accept any pair")
	}
	f.Augment(10.0, 1.0)
	if f.Size() != 1 {
		t.Fatalf("filter size = %d, want 1", f.Size())
	}
	if f.IsAccepted(10.0, 1.0) {
		t.Error("the augmented pair itself should be rejected by the envelope")
	}
	if !f.IsAccepted(5.0, 2.0) {
		t.Error("a pair with lower cost should be accepted")
	}
	if !f.IsAccepted(20.0, 0.5) {
		t.Error("a pair with lower violation should be accepted")
	}
	if f.IsAccepted(20.0, 2.0) {
		t.Error("a dominated pair should be rejected")
	}
}

func TestFilterAugmentPrunesDominatedEntries(t *testing.T) {
	f := NewFilter()
	f.Augment(10.0, 1.0)
	f.Augment(20.0, 0.5)
	if f.Size() != 2 {
		t.Fatalf("filter size = %d, want 2", f.Size())
	}
	// Dominates both existing entries.
	f.Augment(5.0, 0.1)
	if f.Size() != 1 {
		t.Errorf("filter size after dominating augment = %d, want 1", f.Size())
	}
	f.Clear()
	if !f.IsEmpty() {
		t.Error("filter should be empty after Clear")
	}
}

func chainProblem(t *testing.T) (*ocp.OCP, *ocp.DirectMultipleShooting, []robot.Robot, *hybrid.ContactSequence, *core.Solution, *core.Direction, *core.KKTMatrix, *core.KKTResidual) {
	t.Helper()
	rb := models.NewChain(2)
	const N = 4
	c := cost.NewConfigurationSpaceCost(rb)
	if err := c.SetQWeight(constVec(2, 2.0)); err != nil {
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
	o, err := ocp.NewOCP(rb, cf, cons, 1.0, N, 0)
	if err != nil {
		t.Fatal(err)
	}
	cs, err := hybrid.NewContactSequence(0, robot.NewContactStatus(0))
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Discretize(cs, 0); err != nil {
		t.Fatal(err)
	}
	dms, err := ocp.NewDirectMultipleShooting(1)
	if err != nil {
		t.Fatal(err)
	}
	robots := []robot.Robot{rb.Clone()}
	s := core.NewSolution(rb, N, 0)
	for i := 0; i <= N; i++ {
		s.Grid[i].Q.SetVec(0, 0.2)
		s.Grid[i].Q.SetVec(1, -0.1)
	}
	d := core.NewDirection(rb, N, 0)
	kktMat := core.NewKKTMatrix(rb, N, 0)
	kktRes := core.NewKKTResidual(rb, N, 0)
	dms.InitConstraints(o, robots, cs, s)
	return o, dms, robots, cs, s, d, kktMat, kktRes
}

func TestComputeReturnsMinStepForZeroDirection(t *testing.T) {
	o, dms, robots, cs, s, d, _, _ := chainProblem(t)
	rb := robots[0]
	ls := NewLineSearch(rb, o.N(), 0)

	// A zero direction reproduces the current iterate, which the filter
	// envelope rejects, so the search backtracks to the minimum step.
	step := ls.Compute(o, dms, robots, cs, s, d, 1.0)
	if step != 0.05 {
		t.Errorf("step = %g, want minimum step 0.05", step)
	}
}

func TestComputeAcceptsNewtonStep(t *testing.T) {
	o, dms, robots, cs, s, d, kktMat, kktRes := chainProblem(t)
	rb := robots[0]

	dms.ComputeKKTSystem(o, robots, cs, s, kktMat, kktRes)
	rec, err := riccati.NewRiccatiRecursion(rb, o.N(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.BackwardRecursion(o, kktMat, kktRes); err != nil {
		t.Fatal(err)
	}
	dms.ComputeInitialStateDirection(o, robots, s.Grid[0].Q, s.Grid[0].V, s, d)
	rec.ForwardRecursion(o, kktMat, kktRes, d)
	dms.ExpandPrimal(o, cs, d)
	maxStep := dms.MaxPrimalStepSize(o)

	ls := NewLineSearch(rb, o.N(), 0)
	step := ls.Compute(o, dms, robots, cs, s, d, maxStep)
	if step <= 0 || step > maxStep {
		t.Fatalf("step = %g, want in (0, %g]", step, maxStep)
	}
	if ls.filter.Size() < 2 {
		t.Errorf("filter size = %d, want the Newton trial accepted", ls.filter.Size())
	}
}

func TestSetParametersValidation(t *testing.T) {
	rb := models.NewChain(1)
	ls := NewLineSearch(rb, 2, 0)
	if err := ls.SetStepSizeReductionRate(0.5); err != nil {
		t.Errorf("valid reduction rate rejected: %v", err)
	}
	if err := ls.SetStepSizeReductionRate(1.0); err == nil {
		t.Error("reduction rate of 1 should be rejected")
	}
	if err := ls.SetMinStepSize(0.1); err != nil {
		t.Errorf("valid minimum step rejected: %v", err)
	}
	if err := ls.SetMinStepSize(0.0); err == nil {
		t.Error("zero minimum step should be rejected")
	}
}
