package dynamics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/robot"
)

// StateEquation evaluates and linearizes the forward-Euler state equation
//
//	q_next = q (+) dt*v,  v_next = v + dt*a
//
// and the impulse state equation q_next = q, v_next = v + dv. The costate
// terms of the neighboring stages are folded into lq, lv, and la.
type StateEquation struct {
	dimv int
	qtmp *mat.VecDense
}

// NewStateEquation creates the scratch for one robot model.
func NewStateEquation(rb robot.Robot) *StateEquation {
	return &StateEquation{
		dimv: rb.Dimv(),
		qtmp: mat.NewVecDense(rb.Dimq(), nil),
	}
}

// Eval computes the state equation residual against the next stage.
func (se *StateEquation) Eval(rb robot.Robot, dt float64, s *core.SplitSolution, qNext, vNext mat.Vector, kktRes *core.SplitKKTResidual) {
	se.qtmp.CloneFromVec(s.Q)
	rb.IntegrateConfiguration(s.V, dt, se.qtmp)
	rb.SubtractConfiguration(se.qtmp, qNext, kktRes.Fq())
	fv := kktRes.Fv()
	fv.SubVec(s.V, vNext)
	fv.AddScaledVec(fv, dt, s.A)
}

// Linearize evaluates the residual and accumulates the costate gradient of
// the stage. lmdNext and gmmNext are the costates of the next stage.
func (se *StateEquation) Linearize(rb robot.Robot, dt float64, s *core.SplitSolution, lmdNext, gmmNext, qNext, vNext mat.Vector, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	se.Eval(rb, dt, s, qNext, vNext, kktRes)

	lq := kktRes.Lq()
	lq.AddVec(lq, lmdNext)
	lq.SubVec(lq, s.Lmd)
	lv := kktRes.Lv()
	lv.AddScaledVec(lv, dt, lmdNext)
	lv.AddVec(lv, gmmNext)
	lv.SubVec(lv, s.Gmm)
	kktRes.La.AddScaledVec(kktRes.La, dt, gmmNext)

	fqq := kktMat.Fqq()
	fqq.Zero()
	fqv := kktMat.Fqv()
	fqv.Zero()
	for i := 0; i < se.dimv; i++ {
		fqq.Set(i, i, 1)
		fqv.Set(i, i, dt)
	}
}

// LinearizeTerminal accumulates the terminal costate gradient. The terminal
// stage has no next stage and no state equation residual.
func (se *StateEquation) LinearizeTerminal(s *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	lq := kktRes.Lq()
	lq.SubVec(lq, s.Lmd)
	lv := kktRes.Lv()
	lv.SubVec(lv, s.Gmm)
}

// EvalImpulse computes the impulse state equation residual. dv is read from
// the A slot of the solution.
func (se *StateEquation) EvalImpulse(rb robot.Robot, s *core.SplitSolution, qNext, vNext mat.Vector, kktRes *core.SplitKKTResidual) {
	rb.SubtractConfiguration(s.Q, qNext, kktRes.Fq())
	fv := kktRes.Fv()
	fv.SubVec(s.V, vNext)
	fv.AddVec(fv, s.A)
}

// LinearizeImpulse evaluates the impulse residual and accumulates the
// costate gradient.
func (se *StateEquation) LinearizeImpulse(rb robot.Robot, s *core.SplitSolution, lmdNext, gmmNext, qNext, vNext mat.Vector, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	se.EvalImpulse(rb, s, qNext, vNext, kktRes)

	lq := kktRes.Lq()
	lq.AddVec(lq, lmdNext)
	lq.SubVec(lq, s.Lmd)
	lv := kktRes.Lv()
	lv.AddVec(lv, gmmNext)
	lv.SubVec(lv, s.Gmm)
	kktRes.La.AddVec(kktRes.La, gmmNext)

	fqq := kktMat.Fqq()
	fqq.Zero()
	kktMat.Fqv().Zero()
	for i := 0; i < se.dimv; i++ {
		fqq.Set(i, i, 1)
	}
}
