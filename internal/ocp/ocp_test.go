package ocp

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/constraints"
	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/cost"
	"github.com/san-kum/trajopt/internal/hybrid"
	"github.com/san-kum/trajopt/internal/models"
	"github.com/san-kum/trajopt/internal/robot"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

func constVec(n int, v float64) *mat.VecDense {
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetVec(i, v)
	}
	return out
}

func chainCost(rb robot.Robot) *cost.CostFunction {
	dim := rb.Dimv()
	c := cost.NewConfigurationSpaceCost(rb)
	if err := c.SetQWeight(constVec(dim, 2.0)); err != nil {
		panic(err)
	}
	if err := c.SetVWeight(constVec(dim, 1.0)); err != nil {
		panic(err)
	}
	if err := c.SetAWeight(constVec(dim, 0.5)); err != nil {
		panic(err)
	}
	if err := c.SetUWeight(constVec(rb.Dimu(), 0.1)); err != nil {
		panic(err)
	}
	if err := c.SetQfWeight(constVec(dim, 3.0)); err != nil {
		panic(err)
	}
	if err := c.SetVfWeight(constVec(dim, 1.5)); err != nil {
		panic(err)
	}
	cf := cost.NewCostFunction()
	cf.Add(c)
	return cf
}

func emptyConstraints(t *testing.T) *constraints.Constraints {
	t.Helper()
	cons, err := constraints.NewConstraints(1.0e-4, 0.995)
	if err != nil {
		t.Fatal(err)
	}
	return cons
}

func torqueConstraints(t *testing.T, rb robot.Robot, bound float64) *constraints.Constraints {
	t.Helper()
	cons := emptyConstraints(t)
	upper, err := constraints.NewJointTorqueUpperLimit(constVec(rb.Dimu(), bound))
	if err != nil {
		t.Fatal(err)
	}
	lower, err := constraints.NewJointTorqueLowerLimit(constVec(rb.Dimu(), -bound))
	if err != nil {
		t.Fatal(err)
	}
	cons.Add(upper)
	cons.Add(lower)
	return cons
}

func TestSplitOCPKKTSystemChain(t *testing.T) {
	rb := models.NewChain(1)
	so := NewSplitOCP(rb, chainCost(rb), emptyConstraints(t), 0)

	s := core.NewSplitSolution(rb)
	s.Q.SetVec(0, 0.3)
	s.V.SetVec(0, -0.2)
	s.A.SetVec(0, 0.4)
	s.U.SetVec(0, 0.1)
	sNext := core.NewSplitSolution(rb)
	sNext.Q.SetVec(0, 0.35)
	sNext.V.SetVec(0, -0.1)

	kktMat := core.NewSplitKKTMatrix(rb)
	kktRes := core.NewSplitKKTResidual(rb)
	status := robot.NewContactStatus(0)
	const dt = 0.1

	so.ComputeKKTSystem(rb, status, 0, dt, s, sNext, kktMat, kktRes)

	wantFq := s.Q.AtVec(0) + dt*s.V.AtVec(0) - sNext.Q.AtVec(0)
	if got := kktRes.Fq().AtVec(0); !almostEqual(got, wantFq, 1.0e-12) {
		t.Errorf("Fq = %g, want %g", got, wantFq)
	}

	dIDdq := mat.NewDense(1, 1, nil)
	dIDdv := mat.NewDense(1, 1, nil)
	dIDda := mat.NewDense(1, 1, nil)
	rb.RNEADerivatives(s.Q, s.V, s.A, dIDdq, dIDdv, dIDda)
	in := dIDda.At(0, 0)

	if got, want := kktMat.Fvu.At(0, 0), dt/in; !almostEqual(got, want, 1.0e-12) {
		t.Errorf("Fvu = %g, want %g", got, want)
	}
	// Quu carries the control weight plus the condensed acceleration weight.
	wantQuu := dt*0.1 + dt*0.5/(in*in)
	if got := kktMat.Quu.At(0, 0); !almostEqual(got, wantQuu, 1.0e-12) {
		t.Errorf("Quu = %g, want %g", got, wantQuu)
	}

	wantCost := 0.5 * dt * (2.0*s.Q.AtVec(0)*s.Q.AtVec(0) +
		1.0*s.V.AtVec(0)*s.V.AtVec(0) +
		0.5*s.A.AtVec(0)*s.A.AtVec(0) +
		0.1*s.U.AtVec(0)*s.U.AtVec(0))
	if got := so.StageCost(); !almostEqual(got, wantCost, 1.0e-12) {
		t.Errorf("stage cost = %g, want %g", got, wantCost)
	}
	if so.HasSwitching() {
		t.Error("stage unexpectedly carries a switching constraint")
	}
}

func TestSplitOCPEvalAndViolation(t *testing.T) {
	rb := models.NewChain(2)
	so := NewSplitOCP(rb, chainCost(rb), emptyConstraints(t), 1)

	s := core.NewSplitSolution(rb)
	s.Q.SetVec(0, 0.2)
	s.Q.SetVec(1, -0.1)
	s.V.SetVec(0, 0.5)
	s.A.SetVec(1, -0.3)
	sNext := core.NewSplitSolution(rb)
	sNext.Q.SetVec(0, 0.3)

	kktRes := core.NewSplitKKTResidual(rb)
	status := robot.NewContactStatus(0)
	const dt = 0.05

	so.EvalOCP(rb, status, 0, dt, s, sNext, kktRes)

	id := mat.NewVecDense(2, nil)
	rb.RNEA(s.Q, s.V, s.A, id)
	id.SubVec(id, s.U)

	want := 0.0
	for i := 0; i < 2; i++ {
		want += math.Abs(s.Q.AtVec(i) + dt*s.V.AtVec(i) - sNext.Q.AtVec(i))
		want += math.Abs(s.V.AtVec(i) + dt*s.A.AtVec(i) - sNext.V.AtVec(i))
		want += dt * math.Abs(id.AtVec(i))
	}
	if got := so.ConstraintViolation(kktRes, dt); !almostEqual(got, want, 1.0e-12) {
		t.Errorf("constraint violation = %g, want %g", got, want)
	}
	if so.StageCost() <= 0 {
		t.Errorf("stage cost = %g, want positive", so.StageCost())
	}
}

func TestTerminalOCPQuadratize(t *testing.T) {
	rb := models.NewChain(1)
	to := NewTerminalOCP(rb, chainCost(rb))

	s := core.NewSplitSolution(rb)
	s.Q.SetVec(0, 0.4)
	s.V.SetVec(0, -0.6)
	s.Lmd.SetVec(0, 0.2)
	s.Gmm.SetVec(0, -0.1)

	kktMat := core.NewSplitKKTMatrix(rb)
	kktRes := core.NewSplitKKTResidual(rb)
	to.ComputeKKTSystem(rb, 1.0, s, kktMat, kktRes)

	wantLq := 3.0*s.Q.AtVec(0) - s.Lmd.AtVec(0)
	if got := kktRes.Lq().AtVec(0); !almostEqual(got, wantLq, 1.0e-12) {
		t.Errorf("terminal Lq = %g, want %g", got, wantLq)
	}
	wantLv := 1.5*s.V.AtVec(0) - s.Gmm.AtVec(0)
	if got := kktRes.Lv().AtVec(0); !almostEqual(got, wantLv, 1.0e-12) {
		t.Errorf("terminal Lv = %g, want %g", got, wantLv)
	}
	wantCost := 0.5 * (3.0*s.Q.AtVec(0)*s.Q.AtVec(0) + 1.5*s.V.AtVec(0)*s.V.AtVec(0))
	if got := to.TerminalCost(); !almostEqual(got, wantCost, 1.0e-12) {
		t.Errorf("terminal cost = %g, want %g", got, wantCost)
	}
}

func chainHorizonFixture(t *testing.T, nthreads int) (*OCP, *DirectMultipleShooting, []robot.Robot, *hybrid.ContactSequence, *core.Solution, *core.KKTMatrix, *core.KKTResidual) {
	t.Helper()
	rb := models.NewChain(2)
	const N = 4
	o, err := NewOCP(rb, chainCost(rb), torqueConstraints(t, rb, 10.0), 1.0, N, 0)
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
	dms, err := NewDirectMultipleShooting(nthreads)
	if err != nil {
		t.Fatal(err)
	}
	robots := make([]robot.Robot, nthreads)
	for i := range robots {
		robots[i] = rb.Clone()
	}
	s := core.NewSolution(rb, N, 0)
	for i := 0; i <= N; i++ {
		s.Grid[i].Q.SetVec(0, 0.1*float64(i))
		s.Grid[i].Q.SetVec(1, -0.05*float64(i))
		s.Grid[i].V.SetVec(0, 0.2)
	}
	kktMat := core.NewKKTMatrix(rb, N, 0)
	kktRes := core.NewKKTResidual(rb, N, 0)
	return o, dms, robots, cs, s, kktMat, kktRes
}

func TestDirectMultipleShootingChainHorizon(t *testing.T) {
	o, dms, robots, cs, s, kktMat, kktRes := chainHorizonFixture(t, 2)

	dms.InitConstraints(o, robots, cs, s)
	if !dms.IsFeasible(o, robots, cs, s) {
		t.Fatal("zero-torque iterate should be strictly feasible")
	}

	dms.ComputeKKTResidual(o, robots, cs, s, kktMat, kktRes)
	err1 := dms.KKTError(o, kktRes)
	if err1 <= 0 || math.IsNaN(err1) {
		t.Fatalf("KKT error = %g, want positive finite", err1)
	}
	if got := dms.TotalCost(o); got <= 0 {
		t.Errorf("total cost = %g, want positive", got)
	}

	// The sweep is deterministic regardless of the number of workers.
	o1, dms1, robots1, cs1, s1, kktMat1, kktRes1 := chainHorizonFixture(t, 1)
	dms1.InitConstraints(o1, robots1, cs1, s1)
	dms1.ComputeKKTResidual(o1, robots1, cs1, s1, kktMat1, kktRes1)
	if err2 := dms1.KKTError(o1, kktRes1); !almostEqual(err1, err2, 1.0e-12) {
		t.Errorf("KKT error differs across worker counts: %g vs %g", err1, err2)
	}
}

func TestDirectMultipleShootingIntegrateSolution(t *testing.T) {
	o, dms, robots, cs, s, kktMat, kktRes := chainHorizonFixture(t, 2)
	dms.InitConstraints(o, robots, cs, s)
	dms.ComputeKKTSystem(o, robots, cs, s, kktMat, kktRes)

	N := o.N()
	rbDim := 2
	d := core.NewDirection(robots[0], N, 0)
	for i := 0; i <= N; i++ {
		for k := 0; k < rbDim; k++ {
			d.Grid[i].Dq().SetVec(k, 0.1)
			d.Grid[i].Dv().SetVec(k, -0.2)
		}
	}
	q0 := s.Grid[1].Q.AtVec(0)
	v0 := s.Grid[1].V.AtVec(0)

	dms.IntegrateSolution(o, robots, cs, 0.5, 0.5, d, s)

	if got, want := s.Grid[1].Q.AtVec(0), q0+0.5*0.1; !almostEqual(got, want, 1.0e-12) {
		t.Errorf("q after integrate = %g, want %g", got, want)
	}
	if got, want := s.Grid[1].V.AtVec(0), v0+0.5*(-0.2); !almostEqual(got, want, 1.0e-12) {
		t.Errorf("v after integrate = %g, want %g", got, want)
	}

	if step := dms.MaxPrimalStepSize(o); step <= 0 || step > 1 {
		t.Errorf("max primal step = %g, want in (0, 1]", step)
	}
	if step := dms.MaxDualStepSize(o); step <= 0 || step > 1 {
		t.Errorf("max dual step = %g, want in (0, 1]", step)
	}
}

func TestComputeInitialStateDirection(t *testing.T) {
	o, dms, robots, _, s, _, _ := chainHorizonFixture(t, 1)
	d := core.NewDirection(robots[0], o.N(), 0)
	q0 := constVec(2, 0.7)
	v0 := constVec(2, -0.4)

	dms.ComputeInitialStateDirection(o, robots, q0, v0, s, d)

	for k := 0; k < 2; k++ {
		if got, want := d.Grid[0].Dq().AtVec(k), q0.AtVec(k)-s.Grid[0].Q.AtVec(k); !almostEqual(got, want, 1.0e-12) {
			t.Errorf("dq[%d] = %g, want %g", k, got, want)
		}
		if got, want := d.Grid[0].Dv().AtVec(k), v0.AtVec(k)-s.Grid[0].V.AtVec(k); !almostEqual(got, want, 1.0e-12) {
			t.Errorf("dv[%d] = %g, want %g", k, got, want)
		}
	}
}

func TestDirectMultipleShootingImpulseHorizon(t *testing.T) {
	rb := models.NewPointFoot(1)
	const (
		n        = 5
		horizon  = 1.0
		nthreads = 2
	)

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

	cons := emptyConstraints(t)
	cons.Add(constraints.NewFrictionCone(rb.MaxNumContacts()))

	o, err := NewOCP(rb, cf, cons, horizon, n, 1)
	if err != nil {
		t.Fatal(err)
	}

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
	if err := o.Discretize(cs, 0); err != nil {
		t.Fatal(err)
	}
	disc := o.Discretization()
	if got := disc.NumImpulseStages(); got != 1 {
		t.Fatalf("impulse stages = %d, want 1", got)
	}

	dms, err := NewDirectMultipleShooting(nthreads)
	if err != nil {
		t.Fatal(err)
	}
	robots := make([]robot.Robot, nthreads)
	for i := range robots {
		robots[i] = rb.Clone()
	}

	s := core.NewSolution(rb, n, 1)
	setForces := func(ss *core.SplitSolution) {
		ss.F[0].SetVec(0, 0.1)
		ss.F[0].SetVec(1, -0.2)
		ss.F[0].SetVec(2, 5.0)
	}
	for i := 0; i <= n; i++ {
		setForces(s.Grid[i])
	}
	setForces(s.Impulse[0])
	setForces(s.Aux[0])

	kktMat := core.NewKKTMatrix(rb, n, 1)
	kktRes := core.NewKKTResidual(rb, n, 1)

	dms.InitConstraints(o, robots, cs, s)
	dms.ComputeKKTSystem(o, robots, cs, s, kktMat, kktRes)

	if got := s.Impulse[0].Dimf(); got != robot.ContactDim {
		t.Errorf("impulse stage dimf = %d, want %d", got, robot.ContactDim)
	}
	stageBefore := disc.StageBeforeImpulse(0)
	if stageBefore < 1 {
		t.Fatalf("stage before impulse = %d, want >= 1", stageBefore)
	}
	if !o.Stages[stageBefore-1].HasSwitching() {
		t.Error("stage ahead of the impulse should carry the switching constraint")
	}
	if o.Stages[stageBefore].HasSwitching() {
		t.Error("stage immediately before the impulse should not carry the switching constraint")
	}

	kktErr := dms.KKTError(o, kktRes)
	if kktErr <= 0 || math.IsNaN(kktErr) || math.IsInf(kktErr, 0) {
		t.Fatalf("KKT error = %g, want positive finite", kktErr)
	}
	if got := dms.TotalCost(o); math.IsNaN(got) || math.IsInf(got, 0) {
		t.Errorf("total cost = %g, want finite", got)
	}
}

func TestKKTErrorAddsSwitchingTimeCoupling(t *testing.T) {
	rb := models.NewPointFoot(1)
	const (
		n        = 5
		horizon  = 1.0
		nthreads = 2
	)

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
	cf := cost.NewCostFunction()
	cf.Add(c)

	o, err := NewOCP(rb, cf, emptyConstraints(t), horizon, n, 1)
	if err != nil {
		t.Fatal(err)
	}

	initial := robot.NewContactStatus(1)
	active := robot.NewContactStatus(1)
	active.Activate(0)
	cs, err := hybrid.NewContactSequence(1, initial)
	if err != nil {
		t.Fatal(err)
	}
	if err := cs.PushBack(active, 0.37, true); err != nil {
		t.Fatal(err)
	}
	if err := o.Discretize(cs, 0); err != nil {
		t.Fatal(err)
	}
	disc := o.Discretization()
	if !disc.IsSTOEnabledImpulse(0) {
		t.Fatal("impulse event should optimize its switching time")
	}

	dms, err := NewDirectMultipleShooting(nthreads)
	if err != nil {
		t.Fatal(err)
	}
	robots := make([]robot.Robot, nthreads)
	for i := range robots {
		robots[i] = rb.Clone()
	}
	s := core.NewSolution(rb, n, 1)
	kktMat := core.NewKKTMatrix(rb, n, 1)
	kktRes := core.NewKKTResidual(rb, n, 1)

	dms.InitConstraints(o, robots, cs, s)
	dms.ComputeKKTSystem(o, robots, cs, s, kktMat, kktRes)

	before := disc.StageBeforeImpulse(0)
	if before < 1 {
		t.Fatalf("stage before impulse = %d, want >= 1", before)
	}
	kktRes.Grid[before-1].H = 0.2
	kktRes.Grid[before].H = 0.3
	kktRes.Aux[0].H = 0.1

	base := 0.0
	for i := 0; i < n; i++ {
		base += o.Stages[i].KKTError(kktRes.Grid[i], disc.Dt(i))
	}
	base += o.Terminal.KKTError(kktRes.Grid[n])
	base += o.Impulse[0].KKTError(kktRes.Impulse[0])
	base += o.Aux[0].KKTError(kktRes.Aux[0], disc.DtAux(0))

	hdiff := kktRes.Grid[before-1].H + kktRes.Grid[before].H - kktRes.Aux[0].H
	want := math.Sqrt(base + hdiff*hdiff)
	if got := dms.KKTError(o, kktRes); !almostEqual(got, want, 1e-12) {
		t.Errorf("KKT error = %g, want %g", got, want)
	}
}
