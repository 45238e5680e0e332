package dynamics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/robot"
)

// ImpulseDynamics eliminates the impulse change of velocity and the impulse
// forces from an impulse-stage KKT system. The stage carries the impulse
// dynamics constraint M(q)dv = J^T f and the post-impulse contact velocity
// constraint J(v + dv) = 0. The structure mirrors ContactDynamics without a
// control input and without time scaling.
type ImpulseDynamics struct {
	data *Data
	dimv int
}

// NewImpulseDynamics creates the workspace for one robot model.
func NewImpulseDynamics(rb robot.Robot) *ImpulseDynamics {
	return &ImpulseDynamics{
		data: NewData(rb),
		dimv: rb.Dimv(),
	}
}

// Data exposes the workspace.
func (id *ImpulseDynamics) Data() *Data { return id.data }

// Eval computes the impulse dynamics residual and the post-impulse velocity
// residual at s. The velocity change dv is read from the A slot.
func (id *ImpulseDynamics) Eval(rb robot.Robot, status *robot.ImpulseStatus, s *core.SplitSolution) {
	id.data.SetContactDimension(status.Dimi())
	rb.SetImpulseForces(status, s.F)
	rb.RNEAImpulse(s.Q, s.A, id.data.ID())
	rb.ComputeImpulseVelocityResidual(status, s.V, s.A, id.data.C())
}

// SquaredNormKKTResidual returns the squared norm of the impulse residual.
func (id *ImpulseDynamics) SquaredNormKKTResidual() float64 {
	idc := id.data.IDC()
	return mat.Dot(idc, idc)
}

// PrimalFeasibility returns the l1 norm of the impulse residual.
func (id *ImpulseDynamics) PrimalFeasibility() float64 {
	sum := 0.0
	idc := id.data.IDC()
	for i := 0; i < idc.Len(); i++ {
		if v := idc.AtVec(i); v < 0 {
			sum -= v
		} else {
			sum += v
		}
	}
	return sum
}

// Linearize evaluates the impulse dynamics and accumulates the Lagrangian
// gradients of beta and mu.
func (id *ImpulseDynamics) Linearize(rb robot.Robot, status *robot.ImpulseStatus, s *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	id.Eval(rb, status, s)
	d := id.data
	rb.RNEAImpulseDerivatives(s.Q, s.A, d.DIDdq(), d.DIDda)
	d.DIDdv().Zero()
	rb.ComputeImpulseVelocityDerivatives(status, d.DCdq(), d.DCdv())

	addMulVecT(kktRes.Lq(), d.DIDdq(), s.Beta, 1)
	addMulVecT(kktRes.La, d.DIDda, s.Beta, 1)
	addMulVec(kktRes.LfActive(), d.DCdv(), s.Beta, -1)

	mu := s.MuStack()
	addMulVecT(kktRes.Lq(), d.DCdq(), mu, 1)
	addMulVecT(kktRes.Lv(), d.DCdv(), mu, 1)
	addMulVecT(kktRes.La, d.DCdv(), mu, 1)
}

// Condense eliminates (dv, f) from the impulse-stage KKT system.
func (id *ImpulseDynamics) Condense(rb robot.Robot, status *robot.ImpulseStatus, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	d := id.data
	dimv := id.dimv
	dimf := d.Dimf()
	na := dimv + dimf

	rb.ComputeMJtJinv(d.DIDda, d.DCdv(), d.MJtJinv())
	w := d.MJtJinvDIDCdqv()
	w.Mul(d.MJtJinv(), d.DIDCdqv())
	d.MJtJinvIDC().MulVec(d.MJtJinv(), d.IDC())

	qafqv := d.Qafqv()
	for i := 0; i < dimv; i++ {
		qa := kktMat.Qaa.AtVec(i)
		for j := 0; j < 2*dimv; j++ {
			qafqv.Set(i, j, -qa*w.At(i, j))
		}
	}
	la := d.La()
	la.CopyVec(kktRes.La)
	for i := 0; i < dimv; i++ {
		la.SetVec(i, la.AtVec(i)-kktMat.Qaa.AtVec(i)*d.MJtJinvIDC().AtVec(i))
	}
	if dimf > 0 {
		qff := kktMat.QffActive()
		qqf := kktMat.QqfActive()
		wf := w.Slice(dimv, na, 0, 2*dimv).(*mat.Dense)
		qafqvF := qafqv.Slice(dimv, na, 0, 2*dimv).(*mat.Dense)
		qafqvF.Mul(qff, wf)
		qafqvF.Scale(-1, qafqvF)
		subT(qafqv.Slice(dimv, na, 0, dimv).(*mat.Dense), qqf)

		lf := d.Lf()
		lf.CopyVec(kktRes.LfActive())
		lf.ScaleVec(-1, lf)
		idcF := d.MJtJinvIDC().SliceVec(dimv, na).(*mat.VecDense)
		addMulVec(lf, qff, idcF, -1)
	}

	d.wxx.Mul(w.T(), qafqv)
	kktMat.Qxx.Sub(kktMat.Qxx, d.wxx)
	if dimf > 0 {
		qqf := kktMat.QqfActive()
		wf := w.Slice(dimv, na, 0, 2*dimv).(*mat.Dense)
		d.wvx.Mul(qqf, wf)
		qxxTop := kktMat.Qxx.Slice(0, dimv, 0, 2*dimv).(*mat.Dense)
		qxxTop.Add(qxxTop, d.wvx)
	}
	d.wx.MulVec(w.T(), d.Laf())
	kktRes.Lx.SubVec(kktRes.Lx, d.wx)
	if dimf > 0 {
		idcF := d.MJtJinvIDC().SliceVec(dimv, na).(*mat.VecDense)
		addMulVec(kktRes.Lq(), kktMat.QqfActive(), idcF, 1)
	}

	wTopLeft := w.Slice(0, dimv, 0, dimv).(*mat.Dense)
	wTopRight := w.Slice(0, dimv, dimv, 2*dimv).(*mat.Dense)
	fvq := kktMat.Fvq()
	fvq.Scale(-1, wTopLeft)
	fvv := kktMat.Fvv()
	fvv.Scale(-1, wTopRight)
	for i := 0; i < dimv; i++ {
		fvv.Set(i, i, fvv.At(i, i)+1)
	}
	idcHead := d.MJtJinvIDC().SliceVec(0, dimv).(*mat.VecDense)
	fv := kktRes.Fv()
	fv.SubVec(fv, idcHead)
}

// ExpandPrimal recovers the direction of (dv, f) from the state direction.
func (id *ImpulseDynamics) ExpandPrimal(d *core.SplitDirection) {
	data := id.data
	daf := d.DafActive()
	daf.MulVec(data.MJtJinvDIDCdqv(), d.Dx)
	daf.ScaleVec(-1, daf)
	daf.SubVec(daf, data.MJtJinvIDC())
	if data.Dimf() > 0 {
		df := d.Df()
		df.ScaleVec(-1, df)
	}
}

// ExpandDual recovers the direction of the multipliers beta and mu.
func (id *ImpulseDynamics) ExpandDual(dgmmNext mat.Vector, d *core.SplitDirection) {
	data := id.data
	na := id.dimv + data.Dimf()
	laf := data.Laf()
	waf := data.waf.SliceVec(0, na).(*mat.VecDense)
	waf.MulVec(data.Qafqv(), d.Dx)
	laf.AddVec(laf, waf)
	la := data.La()
	la.AddVec(la, dgmmNext)
	dbetamu := d.DbetamuActive()
	dbetamu.MulVec(data.MJtJinv(), laf)
	dbetamu.ScaleVec(-1, dbetamu)
}
