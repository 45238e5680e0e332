package constraints

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/models"
	"github.com/san-kum/trajopt/internal/robot"
)

const tol = 1e-12

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestSetSlackAndDualPositive(t *testing.T) {
	barrier := 1e-3
	data := NewData(4, barrier)
	data.Slack.SetVec(0, -2.0)
	data.Slack.SetVec(1, 1e-8)
	data.Slack.SetVec(2, 0.5)
	data.Dual.SetVec(3, -1.0)

	SetSlackAndDualPositive(barrier, data)

	for i := 0; i < 4; i++ {
		if data.Slack.AtVec(i) < barrier {
			t.Errorf("slack[%d] = %g below barrier %g", i, data.Slack.AtVec(i), barrier)
		}
		if data.Dual.AtVec(i) < barrier {
			t.Errorf("dual[%d] = %g below barrier %g", i, data.Dual.AtVec(i), barrier)
		}
	}
	if got := data.Slack.AtVec(2); got != 0.5 {
		t.Errorf("feasible slack entry clamped: got %g, want 0.5", got)
	}
}

func TestFractionToBoundary(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		vec  []float64
		dvec []float64
		want float64
	}{
		{
			name: "negative direction limits the step",
			rate: 0.995,
			vec:  []float64{1.0, 1.0},
			dvec: []float64{-2.0, 1.0},
			want: 0.995 / 2.0,
		},
		{
			name: "all nonnegative directions give a full step",
			rate: 0.995,
			vec:  []float64{0.1, 2.0},
			dvec: []float64{0.0, 3.0},
			want: 1.0,
		},
		{
			name: "tightest row wins",
			rate: 0.5,
			vec:  []float64{4.0, 1.0, 2.0},
			dvec: []float64{-1.0, -1.0, -8.0},
			want: 0.5 * 2.0 / 8.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vec := mat.NewVecDense(len(tt.vec), tt.vec)
			dvec := mat.NewVecDense(len(tt.dvec), tt.dvec)
			got := FractionToBoundary(tt.rate, vec, dvec)
			if !almostEqual(got, tt.want, tol) {
				t.Errorf("got %g, want %g", got, tt.want)
			}
			// The returned step must keep every entry strictly positive.
			for i := 0; i < vec.Len(); i++ {
				if vec.AtVec(i)+got*dvec.AtVec(i) <= 0 {
					t.Errorf("entry %d nonpositive after step %g", i, got)
				}
			}
		})
	}
}

func TestComplementarySlacknessAndDualDirection(t *testing.T) {
	barrier := 1e-4
	data := NewData(3, barrier)
	slack := []float64{0.2, 1.5, 0.01}
	dual := []float64{0.3, 0.02, 2.0}
	dslack := []float64{-0.05, 0.4, 0.001}
	for i := 0; i < 3; i++ {
		data.Slack.SetVec(i, slack[i])
		data.Dual.SetVec(i, dual[i])
		data.Dslack.SetVec(i, dslack[i])
	}

	ComputeComplementarySlackness(barrier, data)
	ComputeDualDirection(data)

	for i := 0; i < 3; i++ {
		wantCmpl := slack[i]*dual[i] - barrier
		if !almostEqual(data.Cmpl.AtVec(i), wantCmpl, tol) {
			t.Errorf("cmpl[%d] = %g, want %g", i, data.Cmpl.AtVec(i), wantCmpl)
		}
		wantDdual := DualDirection(slack[i], dual[i], dslack[i], wantCmpl)
		if !almostEqual(data.Ddual.AtVec(i), wantDdual, tol) {
			t.Errorf("ddual[%d] = %g, want %g", i, data.Ddual.AtVec(i), wantDdual)
		}
		// Newton step of the perturbed complementarity condition:
		// dual*dslack + slack*ddual + cmpl = 0.
		res := dual[i]*dslack[i] + slack[i]*data.Ddual.AtVec(i) + wantCmpl
		if !almostEqual(res, 0, tol) {
			t.Errorf("linearized complementarity residual %g at row %d", res, i)
		}
	}
}

func TestLogBarrier(t *testing.T) {
	barrier := 1e-3
	slack := mat.NewVecDense(3, []float64{0.5, 2.0, 1.0})
	want := -barrier * (math.Log(0.5) + math.Log(2.0))
	if got := LogBarrier(barrier, slack); !almostEqual(got, want, tol) {
		t.Errorf("got %g, want %g", got, want)
	}
}

func TestCondensingCoefficient(t *testing.T) {
	barrier := 1e-3
	data := NewData(2, barrier)
	data.Slack.SetVec(0, 0.4)
	data.Dual.SetVec(0, 0.25)
	data.Residual.SetVec(0, 0.1)
	data.Slack.SetVec(1, 2.0)
	data.Dual.SetVec(1, 0.5)
	data.Residual.SetVec(1, -0.3)
	ComputeComplementarySlackness(barrier, data)
	ComputeCondensingCoefficient(data)
	for i := 0; i < 2; i++ {
		want := (data.Dual.AtVec(i)*data.Residual.AtVec(i) - data.Cmpl.AtVec(i)) / data.Slack.AtVec(i)
		if !almostEqual(data.Cond.AtVec(i), want, tol) {
			t.Errorf("cond[%d] = %g, want %g", i, data.Cond.AtVec(i), want)
		}
	}
}

func TestStageDataLevels(t *testing.T) {
	tests := []struct {
		stage                            int
		position, velocity, accel, impulse bool
	}{
		{stage: -1, impulse: true},
		{stage: 0, accel: true},
		{stage: 1, velocity: true, accel: true},
		{stage: 2, position: true, velocity: true, accel: true},
		{stage: 7, position: true, velocity: true, accel: true},
	}
	for _, tt := range tests {
		sd := NewStageData(tt.stage)
		if sd.IsPositionLevelValid() != tt.position ||
			sd.IsVelocityLevelValid() != tt.velocity ||
			sd.IsAccelerationLevelValid() != tt.accel ||
			sd.IsImpulseLevelValid() != tt.impulse {
			t.Errorf("stage %d: levels (%v, %v, %v, %v), want (%v, %v, %v, %v)",
				tt.stage,
				sd.IsPositionLevelValid(), sd.IsVelocityLevelValid(),
				sd.IsAccelerationLevelValid(), sd.IsImpulseLevelValid(),
				tt.position, tt.velocity, tt.accel, tt.impulse)
		}
	}
}

func newTorqueLimitedContainer(t *testing.T, bound float64, dimu int) *Constraints {
	t.Helper()
	cons, err := NewConstraints(1e-3, 0.995)
	if err != nil {
		t.Fatalf("NewConstraints: %v", err)
	}
	umax := mat.NewVecDense(dimu, nil)
	umin := mat.NewVecDense(dimu, nil)
	for i := 0; i < dimu; i++ {
		umax.SetVec(i, bound)
		umin.SetVec(i, -bound)
	}
	upper, err := NewJointTorqueUpperLimit(umax)
	if err != nil {
		t.Fatalf("NewJointTorqueUpperLimit: %v", err)
	}
	lower, err := NewJointTorqueLowerLimit(umin)
	if err != nil {
		t.Fatalf("NewJointTorqueLowerLimit: %v", err)
	}
	cons.Add(upper)
	cons.Add(lower)
	return cons
}

func TestTorqueLimitsLifecycle(t *testing.T) {
	rb := models.NewChain(2)
	cons := newTorqueLimitedContainer(t, 10.0, rb.Dimu())
	status := robot.NewContactStatus(0)
	sd := cons.CreateStageData(2)

	s := core.NewSplitSolution(rb)
	s.U.SetVec(0, 1.0)
	s.U.SetVec(1, -2.0)
	if !cons.IsFeasible(rb, status, sd, s) {
		t.Fatal("interior point reported infeasible")
	}

	s2 := core.NewSplitSolution(rb)
	s2.U.SetVec(0, 11.0)
	if cons.IsFeasible(rb, status, sd, s2) {
		t.Fatal("violated upper bound reported feasible")
	}

	cons.SetSlackAndDual(rb, status, sd, s)
	cons.EvalConstraint(rb, status, sd, s)
	// Slack was set exactly to the margin, so the primal residual is zero.
	if got := sd.PrimalFeasibility(); !almostEqual(got, 0, tol) {
		t.Errorf("primal feasibility = %g, want 0", got)
	}

	kktRes := core.NewSplitKKTResidual(rb)
	kktMat := core.NewSplitKKTMatrix(rb)
	cons.LinearizeConstraints(rb, status, sd, s, kktRes)
	cons.CondenseSlackAndDual(status, sd, kktMat, kktRes)
	for i := 0; i < rb.Dimu(); i++ {
		if kktMat.Quu.At(i, i) <= 0 {
			t.Errorf("condensed Quu diagonal %d not positive: %g", i, kktMat.Quu.At(i, i))
		}
	}

	d := core.NewSplitDirection(rb)
	d.Du.SetVec(0, 0.5)
	d.Du.SetVec(1, -0.5)
	cons.ExpandSlackAndDual(status, sd, d)

	// Upper limit: dslack = -du - residual; lower limit: dslack = du - residual.
	upper := sd.Acceleration[0]
	lower := sd.Acceleration[1]
	if !almostEqual(upper.Dslack.AtVec(0), -0.5, tol) || !almostEqual(upper.Dslack.AtVec(1), 0.5, tol) {
		t.Errorf("upper dslack = (%g, %g), want (-0.5, 0.5)",
			upper.Dslack.AtVec(0), upper.Dslack.AtVec(1))
	}
	if !almostEqual(lower.Dslack.AtVec(0), 0.5, tol) || !almostEqual(lower.Dslack.AtVec(1), -0.5, tol) {
		t.Errorf("lower dslack = (%g, %g), want (0.5, -0.5)",
			lower.Dslack.AtVec(0), lower.Dslack.AtVec(1))
	}

	primalStep := cons.MaxSlackStepSize(sd)
	dualStep := cons.MaxDualStepSize(sd)
	if primalStep <= 0 || primalStep > 1 || dualStep <= 0 || dualStep > 1 {
		t.Fatalf("step sizes out of range: primal %g, dual %g", primalStep, dualStep)
	}
	cons.UpdateSlack(sd, primalStep)
	cons.UpdateDual(sd, dualStep)
	for _, data := range sd.Acceleration {
		for i := 0; i < data.Dimc(); i++ {
			if data.Slack.AtVec(i) <= 0 || data.Dual.AtVec(i) <= 0 {
				t.Errorf("positivity lost after update: slack %g, dual %g",
					data.Slack.AtVec(i), data.Dual.AtVec(i))
			}
		}
	}
}

func TestJointPositionAndVelocityLimits(t *testing.T) {
	rb := models.NewChain(3)
	qmax := mat.NewVecDense(3, []float64{2.0, 2.0, 2.0})
	vmax := mat.NewVecDense(3, []float64{5.0, 5.0, 5.0})
	posUpper, err := NewJointPositionUpperLimit(qmax)
	if err != nil {
		t.Fatalf("NewJointPositionUpperLimit: %v", err)
	}
	velUpper, err := NewJointVelocityUpperLimit(vmax)
	if err != nil {
		t.Fatalf("NewJointVelocityUpperLimit: %v", err)
	}
	cons, err := NewConstraints(1e-3, 0.995)
	if err != nil {
		t.Fatalf("NewConstraints: %v", err)
	}
	cons.Add(posUpper)
	cons.Add(velUpper)

	status := robot.NewContactStatus(0)
	s := core.NewSplitSolution(rb)
	s.Q.SetVec(1, 1.0)
	s.V.SetVec(2, 4.0)

	// Stage 1 skips position-level rows even when the position bound is
	// violated there.
	sViol := core.NewSplitSolution(rb)
	sViol.Q.SetVec(0, 3.0)
	sdStage1 := cons.CreateStageData(1)
	if !cons.IsFeasible(rb, status, sdStage1, sViol) {
		t.Error("stage 1 should ignore position-level rows")
	}

	sdStage2 := cons.CreateStageData(2)
	if cons.IsFeasible(rb, status, sdStage2, sViol) {
		t.Error("stage 2 should check position-level rows")
	}
	if !cons.IsFeasible(rb, status, sdStage2, s) {
		t.Error("interior point reported infeasible")
	}

	cons.SetSlackAndDual(rb, status, sdStage2, s)
	cons.EvalConstraint(rb, status, sdStage2, s)
	if got := sdStage2.PrimalFeasibility(); !almostEqual(got, 0, tol) {
		t.Errorf("primal feasibility = %g, want 0", got)
	}

	kktRes := core.NewSplitKKTResidual(rb)
	cons.LinearizeConstraints(rb, status, sdStage2, s, kktRes)
	// Upper bounds add +dual to the gradient rows.
	for i := 0; i < rb.Dimv(); i++ {
		if kktRes.Lq().AtVec(i) <= 0 || kktRes.Lv().AtVec(i) <= 0 {
			t.Errorf("gradient row %d not positive: lq %g, lv %g",
				i, kktRes.Lq().AtVec(i), kktRes.Lv().AtVec(i))
		}
	}
}

func TestFrictionConeFeasibility(t *testing.T) {
	cone := NewFrictionCone(2)
	status := robot.NewContactStatus(2)
	status.Activate(0)
	if err := status.SetFrictionCoefficient(0, 0.7); err != nil {
		t.Fatalf("SetFrictionCoefficient: %v", err)
	}

	rb := models.NewPointFoot(2)
	data := NewData(cone.Dimc(), 1e-3)

	tests := []struct {
		name string
		f    []float64
		want bool
	}{
		{name: "inside the cone", f: []float64{0.1, 0.1, 1.0}, want: true},
		{name: "tangential force too large", f: []float64{1.0, 0.0, 0.1}, want: false},
		{name: "pulling force", f: []float64{0.0, 0.0, -0.5}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := core.NewSplitSolution(rb)
			s.SetContactStatus(status)
			for i, v := range tt.f {
				s.F[0].SetVec(i, v)
			}
			if got := cone.IsFeasible(rb, status, data, s); got != tt.want {
				t.Errorf("IsFeasible = %v, want %v", got, tt.want)
			}
		})
	}

	// The second, inactive contact never affects feasibility.
	s := core.NewSplitSolution(rb)
	s.SetContactStatus(status)
	s.F[0].SetVec(2, 1.0)
	s.F[1].SetVec(0, 100.0)
	if !cone.IsFeasible(rb, status, data, s) {
		t.Error("inactive contact force affected feasibility")
	}
}

func TestFrictionConeEvalAndExpand(t *testing.T) {
	mu := 0.7
	cone := NewFrictionCone(1)
	status := robot.NewContactStatus(1)
	status.Activate(0)
	if err := status.SetFrictionCoefficient(0, mu); err != nil {
		t.Fatalf("SetFrictionCoefficient: %v", err)
	}

	rb := models.NewPointFoot(1)
	barrier := 1e-3
	data := NewData(cone.Dimc(), barrier)
	s := core.NewSplitSolution(rb)
	s.SetContactStatus(status)
	s.F[0].SetVec(0, 0.1)
	s.F[0].SetVec(1, -0.2)
	s.F[0].SetVec(2, 2.0)
	s.SetFStack(status.IsContactActive)

	cone.SetSlack(rb, status, data, s)
	SetSlackAndDualPositive(barrier, data)
	cone.EvalConstraint(rb, status, barrier, data, s)
	for i := 0; i < cone.Dimc(); i++ {
		if !almostEqual(data.Residual.AtVec(i), 0, tol) {
			t.Errorf("residual[%d] = %g, want 0", i, data.Residual.AtVec(i))
		}
	}

	m := mu / math.Sqrt2
	wantSlack := []float64{
		2.0,
		-(0.1 - m*2.0),
		-(-0.1 - m*2.0),
		-(-0.2 - m*2.0),
		-(0.2 - m*2.0),
	}
	for i, want := range wantSlack {
		if !almostEqual(data.Slack.AtVec(i), want, tol) {
			t.Errorf("slack[%d] = %g, want %g", i, data.Slack.AtVec(i), want)
		}
	}

	d := core.NewSplitDirection(rb)
	d.SetContactDimension(status.Dimf())
	df := d.Df()
	df.SetVec(0, 0.3)
	df.SetVec(1, -0.1)
	df.SetVec(2, 0.5)
	cone.ExpandSlackAndDual(status, data, d)

	wantDslack := []float64{
		0.5,
		-(0.3 - m*0.5),
		-(-0.3 - m*0.5),
		-(-0.1 - m*0.5),
		-(0.1 - m*0.5),
	}
	for i, want := range wantDslack {
		if !almostEqual(data.Dslack.AtVec(i), want, tol) {
			t.Errorf("dslack[%d] = %g, want %g", i, data.Dslack.AtVec(i), want)
		}
	}
}

func TestFrictionConeCondense(t *testing.T) {
	cone := NewFrictionCone(1)
	status := robot.NewContactStatus(1)
	status.Activate(0)
	if err := status.SetFrictionCoefficient(0, 0.5); err != nil {
		t.Fatalf("SetFrictionCoefficient: %v", err)
	}

	rb := models.NewPointFoot(1)
	barrier := 1e-3
	data := NewData(cone.Dimc(), barrier)
	s := core.NewSplitSolution(rb)
	s.SetContactStatus(status)
	s.F[0].SetVec(2, 1.0)
	s.SetFStack(status.IsContactActive)

	cone.SetSlack(rb, status, data, s)
	SetSlackAndDualPositive(barrier, data)
	cone.EvalConstraint(rb, status, barrier, data, s)
	ComputeCondensingCoefficient(data)

	kktMat := core.NewSplitKKTMatrix(rb)
	kktMat.SetContactDimension(status.Dimf())
	kktRes := core.NewSplitKKTResidual(rb)
	kktRes.SetContactDimension(status.Dimf())
	cone.CondenseSlackAndDual(status, data, kktMat, kktRes)

	qff := kktMat.QffActive()
	for i := 0; i < 3; i++ {
		if qff.At(i, i) <= 0 {
			t.Errorf("condensed Qff diagonal %d not positive: %g", i, qff.At(i, i))
		}
		for j := 0; j < 3; j++ {
			if got, want := qff.At(i, j), qff.At(j, i); !almostEqual(got, want, tol) {
				t.Errorf("condensed Qff not symmetric at (%d, %d): %g vs %g", i, j, got, want)
			}
		}
	}
}
