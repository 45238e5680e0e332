package riccati

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/dynamics"
	"github.com/san-kum/trajopt/internal/ocp"
	"github.com/san-kum/trajopt/internal/robot"
)

// RiccatiRecursion computes the Newton direction from the condensed KKT
// system. BackwardRecursion factorizes the stages from the terminal one down
// to the initial one, ForwardRecursion rolls the direction out and recovers
// the costate and switching-multiplier steps.
type RiccatiRecursion struct {
	dimv, dimx, dimu int
	maxDimi          int

	factGrid    []*SplitRiccatiFactorization
	factImpulse []*SplitRiccatiFactorization
	factAux     []*SplitRiccatiFactorization
	factLift    []*SplitRiccatiFactorization

	polGrid []*LQRPolicy
	polAux  []*LQRPolicy
	polLift []*LQRPolicy

	sw []*SwitchingFactorization

	b    *mat.Dense
	pa   *mat.Dense
	pb   *mat.Dense
	h    *mat.Dense
	g    *mat.Dense
	ginv *mat.Dense
	gh   *mat.Dense
	hk   *mat.Dense
	gkm  *mat.Dense

	w1  *mat.VecDense
	w2  *mat.VecDense
	wv  *mat.VecDense
	gu  *mat.VecDense
	gk0 *mat.VecDense
	guk *mat.VecDense

	gpFull   *mat.Dense
	sFull    *mat.Dense
	sInvFull *mat.Dense
	mxFull   *mat.Dense
	mvFull   *mat.VecDense
	kuFull   *mat.VecDense
}

// NewRiccatiRecursion allocates the recursion for a horizon of N stages and
// at most maxNumImpulse impulse and lift events.
func NewRiccatiRecursion(rb robot.Robot, N, maxNumImpulse int) (*RiccatiRecursion, error) {
	if N <= 0 {
		return nil, fmt.Errorf("riccati: number of stages must be positive, got %d", N)
	}
	if maxNumImpulse < 0 {
		return nil, fmt.Errorf("riccati: maximum number of impulses must be non-negative, got %d", maxNumImpulse)
	}
	dimv := rb.Dimv()
	dimx := 2 * dimv
	dimu := rb.Dimu()
	maxDimi := robot.ContactDim * rb.MaxNumContacts()
	r := &RiccatiRecursion{
		dimv:    dimv,
		dimx:    dimx,
		dimu:    dimu,
		maxDimi: maxDimi,

		factGrid:    make([]*SplitRiccatiFactorization, N+1),
		factImpulse: make([]*SplitRiccatiFactorization, maxNumImpulse),
		factAux:     make([]*SplitRiccatiFactorization, maxNumImpulse),
		factLift:    make([]*SplitRiccatiFactorization, maxNumImpulse),
		polGrid:     make([]*LQRPolicy, N),
		polAux:      make([]*LQRPolicy, maxNumImpulse),
		polLift:     make([]*LQRPolicy, maxNumImpulse),
		sw:          make([]*SwitchingFactorization, maxNumImpulse),

		b:    mat.NewDense(dimx, dimu, nil),
		pa:   mat.NewDense(dimx, dimx, nil),
		pb:   mat.NewDense(dimx, dimu, nil),
		h:    mat.NewDense(dimx, dimu, nil),
		g:    mat.NewDense(dimu, dimu, nil),
		ginv: mat.NewDense(dimu, dimu, nil),
		gh:   mat.NewDense(dimu, dimx, nil),
		hk:   mat.NewDense(dimx, dimx, nil),
		gkm:  mat.NewDense(dimu, dimx, nil),

		w1:  mat.NewVecDense(dimx, nil),
		w2:  mat.NewVecDense(dimx, nil),
		wv:  mat.NewVecDense(dimv, nil),
		gu:  mat.NewVecDense(dimu, nil),
		gk0: mat.NewVecDense(dimu, nil),
		guk: mat.NewVecDense(dimu, nil),
	}
	for i := range r.factGrid {
		r.factGrid[i] = NewSplitRiccatiFactorization(rb)
	}
	for i := 0; i < maxNumImpulse; i++ {
		r.factImpulse[i] = NewSplitRiccatiFactorization(rb)
		r.factAux[i] = NewSplitRiccatiFactorization(rb)
		r.factLift[i] = NewSplitRiccatiFactorization(rb)
		r.polAux[i] = NewLQRPolicy(rb)
		r.polLift[i] = NewLQRPolicy(rb)
		r.sw[i] = NewSwitchingFactorization(rb)
	}
	for i := range r.polGrid {
		r.polGrid[i] = NewLQRPolicy(rb)
	}
	if maxDimi > 0 {
		r.gpFull = mat.NewDense(dimu, maxDimi, nil)
		r.sFull = mat.NewDense(maxDimi, maxDimi, nil)
		r.sInvFull = mat.NewDense(maxDimi, maxDimi, nil)
		r.mxFull = mat.NewDense(maxDimi, dimx, nil)
		r.mvFull = mat.NewVecDense(maxDimi, nil)
		r.kuFull = mat.NewVecDense(dimu, nil)
	}
	return r, nil
}

// BackwardRecursion factorizes the value function at every stage from the
// KKT system assembled by the multiple-shooting sweep.
func (r *RiccatiRecursion) BackwardRecursion(o *ocp.OCP, kktMat *core.KKTMatrix, kktRes *core.KKTResidual) error {
	disc := o.Discretization()
	N := disc.N()
	r.factGrid[N].P.Copy(kktMat.Grid[N].Qxx)
	r.factGrid[N].S.ScaleVec(-1, kktRes.Grid[N].Lx)
	for i := N - 1; i >= 0; i-- {
		var next *SplitRiccatiFactorization
		switch {
		case disc.IsStageBeforeImpulse(i):
			idx := disc.ImpulseIndexAfterStage(i)
			if err := r.backwardStage(kktMat.Aux[idx], kktRes.Aux[idx], r.factGrid[i+1], r.polAux[idx], nil, nil, nil, r.factAux[idx]); err != nil {
				return fmt.Errorf("riccati: auxiliary stage %d: %w", idx, err)
			}
			r.backwardNoControl(kktMat.Impulse[idx], kktRes.Impulse[idx], r.factAux[idx], r.factImpulse[idx])
			next = r.factImpulse[idx]
		case disc.IsStageBeforeLift(i):
			idx := disc.LiftIndexAfterStage(i)
			if err := r.backwardStage(kktMat.Lift[idx], kktRes.Lift[idx], r.factGrid[i+1], r.polLift[idx], nil, nil, nil, r.factLift[idx]); err != nil {
				return fmt.Errorf("riccati: lift stage %d: %w", idx, err)
			}
			next = r.factLift[idx]
		default:
			next = r.factGrid[i+1]
		}
		var swJac *dynamics.SwitchingConstraintJacobian
		var swRes *dynamics.SwitchingConstraintResidual
		var swFact *SwitchingFactorization
		if o.Stages[i].HasSwitching() {
			swJac = o.Stages[i].SwitchingJacobian()
			swRes = o.Stages[i].SwitchingResidual()
			swFact = r.sw[disc.ImpulseIndexAfterStage(i+1)]
		}
		if err := r.backwardStage(kktMat.Grid[i], kktRes.Grid[i], next, r.polGrid[i], swJac, swRes, swFact, r.factGrid[i]); err != nil {
			return fmt.Errorf("riccati: stage %d: %w", i, err)
		}
	}
	return nil
}

// backwardStage performs one value-function step. With a switching Jacobian
// the feedback gain solves the equality-constrained subproblem and the
// multiplier law dxi = M dx + m is stored in swFact.
func (r *RiccatiRecursion) backwardStage(kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual, next *SplitRiccatiFactorization, pol *LQRPolicy, swJac *dynamics.SwitchingConstraintJacobian, swRes *dynamics.SwitchingConstraintResidual, swFact *SwitchingFactorization, out *SplitRiccatiFactorization) error {
	A := kktMat.Fxx
	r.b.Zero()
	r.b.Slice(r.dimv, r.dimx, 0, r.dimu).(*mat.Dense).Copy(kktMat.Fvu)
	r.pa.Mul(next.P, A)
	r.pb.Mul(next.P, r.b)
	out.P.Mul(A.T(), r.pa)
	out.P.Add(out.P, kktMat.Qxx)
	r.h.Mul(A.T(), r.pb)
	r.h.Add(r.h, kktMat.Qxu)
	r.g.Mul(r.b.T(), r.pb)
	r.g.Add(r.g, kktMat.Quu)
	if err := r.ginv.Inverse(r.g); err != nil {
		return fmt.Errorf("singular control Hessian: %w", err)
	}
	r.w1.MulVec(next.P, kktRes.Fx)
	r.w1.SubVec(r.w1, next.S)
	r.gu.MulVec(r.b.T(), r.w1)
	r.gu.AddVec(r.gu, kktRes.Lu)
	r.gh.Mul(r.ginv, r.h.T())
	r.gk0.MulVec(r.ginv, r.gu)
	if swJac != nil {
		dimi, _ := swJac.Phiu.Dims()
		gp := r.gpFull.Slice(0, r.dimu, 0, dimi).(*mat.Dense)
		s := r.sFull.Slice(0, dimi, 0, dimi).(*mat.Dense)
		sInv := r.sInvFull.Slice(0, dimi, 0, dimi).(*mat.Dense)
		mx := r.mxFull.Slice(0, dimi, 0, r.dimx).(*mat.Dense)
		mv := r.mvFull.SliceVec(0, dimi).(*mat.VecDense)
		gp.Mul(r.ginv, swJac.Phiu.T())
		s.Mul(swJac.Phiu, gp)
		if err := sInv.Inverse(s); err != nil {
			return fmt.Errorf("singular switching Schur complement: %w", err)
		}
		swFact.SetDimension(dimi)
		mx.Mul(swJac.Phiu, r.gh)
		mx.Sub(swJac.Phix, mx)
		swFact.M().Mul(sInv, mx)
		mv.MulVec(swJac.Phiu, r.gk0)
		mv.SubVec(swRes.P, mv)
		swFact.M0().MulVec(sInv, mv)
		pol.K.Mul(gp, swFact.M())
		pol.K.Add(pol.K, r.gh)
		pol.K.Scale(-1, pol.K)
		r.kuFull.MulVec(gp, swFact.M0())
		r.kuFull.AddVec(r.kuFull, r.gk0)
		pol.K0.ScaleVec(-1, r.kuFull)
	} else {
		pol.K.Scale(-1, r.gh)
		pol.K0.ScaleVec(-1, r.gk0)
	}
	r.hk.Mul(r.h, pol.K)
	out.P.Add(out.P, r.hk)
	out.P.Add(out.P, r.hk.T())
	r.gkm.Mul(r.g, pol.K)
	r.hk.Mul(pol.K.T(), r.gkm)
	out.P.Add(out.P, r.hk)
	r.w2.ScaleVec(-1, r.w1)
	out.S.MulVec(A.T(), r.w2)
	out.S.SubVec(out.S, kktRes.Lx)
	r.w2.MulVec(r.h, pol.K0)
	out.S.SubVec(out.S, r.w2)
	r.guk.MulVec(r.g, pol.K0)
	r.guk.AddVec(r.guk, r.gu)
	r.w2.MulVec(pol.K.T(), r.guk)
	out.S.SubVec(out.S, r.w2)
	return nil
}

// backwardNoControl propagates the value function through a stage without a
// control input, such as an impulse stage.
func (r *RiccatiRecursion) backwardNoControl(kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual, next *SplitRiccatiFactorization, out *SplitRiccatiFactorization) {
	A := kktMat.Fxx
	r.pa.Mul(next.P, A)
	out.P.Mul(A.T(), r.pa)
	out.P.Add(out.P, kktMat.Qxx)
	r.w1.MulVec(next.P, kktRes.Fx)
	r.w1.SubVec(next.S, r.w1)
	out.S.MulVec(A.T(), r.w1)
	out.S.SubVec(out.S, kktRes.Lx)
}

// ForwardRecursion rolls the state direction out from d.Grid[0].Dx, applying
// the stage feedback policies, and fills the costate and switching
// multiplier directions.
func (r *RiccatiRecursion) ForwardRecursion(o *ocp.OCP, kktMat *core.KKTMatrix, kktRes *core.KKTResidual, d *core.Direction) {
	disc := o.Discretization()
	N := disc.N()
	for i := 0; i < N; i++ {
		di := d.Grid[i]
		r.applyPolicy(r.polGrid[i], di)
		if o.Stages[i].HasSwitching() {
			sf := r.sw[disc.ImpulseIndexAfterStage(i+1)]
			di.SetSwitchingConstraintDimension(sf.Dimi())
			dxi := di.DxiStack()
			dxi.MulVec(sf.M(), di.Dx)
			dxi.AddVec(dxi, sf.M0())
		} else {
			di.SetSwitchingConstraintDimension(0)
		}
		switch {
		case disc.IsStageBeforeImpulse(i):
			idx := disc.ImpulseIndexAfterStage(i)
			r.rollout(kktMat.Grid[i], kktRes.Grid[i], di, d.Impulse[idx], true)
			r.rollout(kktMat.Impulse[idx], kktRes.Impulse[idx], d.Impulse[idx], d.Aux[idx], false)
			r.applyPolicy(r.polAux[idx], d.Aux[idx])
			r.rollout(kktMat.Aux[idx], kktRes.Aux[idx], d.Aux[idx], d.Grid[i+1], true)
		case disc.IsStageBeforeLift(i):
			idx := disc.LiftIndexAfterStage(i)
			r.rollout(kktMat.Grid[i], kktRes.Grid[i], di, d.Lift[idx], true)
			r.applyPolicy(r.polLift[idx], d.Lift[idx])
			r.rollout(kktMat.Lift[idx], kktRes.Lift[idx], d.Lift[idx], d.Grid[i+1], true)
		default:
			r.rollout(kktMat.Grid[i], kktRes.Grid[i], di, d.Grid[i+1], true)
		}
	}
	for i := 0; i <= N; i++ {
		costateDirection(r.factGrid[i], d.Grid[i])
	}
	for idx := 0; idx < disc.NumImpulseStages(); idx++ {
		costateDirection(r.factImpulse[idx], d.Impulse[idx])
		costateDirection(r.factAux[idx], d.Aux[idx])
	}
	for idx := 0; idx < disc.NumLiftStages(); idx++ {
		costateDirection(r.factLift[idx], d.Lift[idx])
	}
}

func (r *RiccatiRecursion) applyPolicy(pol *LQRPolicy, d *core.SplitDirection) {
	if d.Du == nil {
		return
	}
	d.Du.MulVec(pol.K, d.Dx)
	d.Du.AddVec(d.Du, pol.K0)
}

func (r *RiccatiRecursion) rollout(kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual, d, dNext *core.SplitDirection, withControl bool) {
	r.w1.MulVec(kktMat.Fxx, d.Dx)
	r.w1.AddVec(r.w1, kktRes.Fx)
	if withControl && d.Du != nil {
		r.wv.MulVec(kktMat.Fvu, d.Du)
		dv := r.w1.SliceVec(r.dimv, r.dimx).(*mat.VecDense)
		dv.AddVec(dv, r.wv)
	}
	dNext.Dx.CopyVec(r.w1)
}

func costateDirection(f *SplitRiccatiFactorization, d *core.SplitDirection) {
	d.Dlmdgmm.MulVec(f.P, d.Dx)
	d.Dlmdgmm.SubVec(d.Dlmdgmm, f.S)
}
