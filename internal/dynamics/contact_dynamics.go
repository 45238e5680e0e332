package dynamics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/robot"
)

// ContactDynamics eliminates the acceleration and the contact forces from
// the stage KKT system. The stage carries the inverse dynamics constraint
// ID(q, v, a, f) = u and the acceleration-level contact constraint
// C(q, v, a) = 0; both are condensed through the inverse of the contact KKT
// block [[M, J^T], [J, 0]].
type ContactDynamics struct {
	data              *Data
	hasFloatingBase   bool
	hasActiveContacts bool

	dimv, dimu, dimPassive int
}

// NewContactDynamics creates the workspace for one robot model.
func NewContactDynamics(rb robot.Robot) *ContactDynamics {
	return &ContactDynamics{
		data:            NewData(rb),
		hasFloatingBase: rb.HasFloatingBase(),
		dimv:            rb.Dimv(),
		dimu:            rb.Dimu(),
		dimPassive:      rb.DimPassive(),
	}
}

// Data exposes the workspace for sharing with the switching constraint.
func (cd *ContactDynamics) Data() *Data { return cd.data }

// Eval computes the inverse dynamics residual ID - u and the Baumgarte
// contact residual at s. Kinematics must be up to date.
func (cd *ContactDynamics) Eval(rb robot.Robot, status *robot.ContactStatus, s *core.SplitSolution) {
	cd.data.SetContactDimension(status.Dimf())
	cd.hasActiveContacts = status.HasActiveContacts()
	rb.SetContactForces(status, s.F)
	rb.RNEA(s.Q, s.V, s.A, cd.data.ID())
	idj := cd.data.IDJoint()
	idj.SubVec(idj, s.U)
	if cd.hasActiveContacts {
		rb.ComputeBaumgarteResidual(status, cd.data.C())
	}
}

// SquaredNormKKTResidual returns the squared norm of the dynamics residual.
func (cd *ContactDynamics) SquaredNormKKTResidual() float64 {
	idc := cd.data.IDC()
	return mat.Dot(idc, idc)
}

// PrimalFeasibility returns the l1 norm of the dynamics residual.
func (cd *ContactDynamics) PrimalFeasibility() float64 {
	sum := 0.0
	idc := cd.data.IDC()
	for i := 0; i < idc.Len(); i++ {
		if v := idc.AtVec(i); v < 0 {
			sum -= v
		} else {
			sum += v
		}
	}
	return sum
}

// Linearize evaluates the dynamics and accumulates the Lagrangian gradients
// of the multipliers beta (inverse dynamics) and mu (contact constraint).
func (cd *ContactDynamics) Linearize(rb robot.Robot, status *robot.ContactStatus, s *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	cd.Eval(rb, status, s)
	d := cd.data
	rb.RNEADerivatives(s.Q, s.V, s.A, d.DIDdq(), d.DIDdv(), d.DIDda)
	if cd.hasActiveContacts {
		rb.ComputeBaumgarteDerivatives(status, d.DCdq(), d.DCdv(), d.DCda())
	}

	addMulVecT(kktRes.Lq(), d.DIDdq(), s.Beta, 1)
	addMulVecT(kktRes.Lv(), d.DIDdv(), s.Beta, 1)
	addMulVecT(kktRes.La, d.DIDda, s.Beta, 1)
	if cd.hasActiveContacts {
		addMulVec(kktRes.LfActive(), d.DCda(), s.Beta, -1)
	}
	if cd.hasFloatingBase {
		d.LuPassive.CopyVec(s.NuPassive)
		betaPassive := s.Beta.SliceVec(0, cd.dimPassive).(*mat.VecDense)
		d.LuPassive.SubVec(d.LuPassive, betaPassive)
		betaJoint := s.Beta.SliceVec(cd.dimPassive, cd.dimv).(*mat.VecDense)
		kktRes.Lu.SubVec(kktRes.Lu, betaJoint)
	} else {
		kktRes.Lu.SubVec(kktRes.Lu, s.Beta)
	}
	if cd.hasActiveContacts {
		mu := s.MuStack()
		addMulVecT(kktRes.Lq(), d.DCdq(), mu, 1)
		addMulVecT(kktRes.Lv(), d.DCdv(), mu, 1)
		addMulVecT(kktRes.La, d.DCda(), mu, 1)
	}
}

// Condense eliminates (a, f) from the stage KKT system. Must be called
// after Linearize with the cost Hessian already accumulated.
func (cd *ContactDynamics) Condense(rb robot.Robot, status *robot.ContactStatus, dt float64, kktMat *core.SplitKKTMatrix, kktRes *core.SplitKKTResidual) {
	if dt <= 0 {
		panic("dynamics: nonpositive time step")
	}
	d := cd.data
	dimv, dimu, dimp := cd.dimv, cd.dimu, cd.dimPassive
	dimf := d.Dimf()
	na := dimv + dimf

	var dCda *mat.Dense
	if dimf > 0 {
		dCda = d.DCda()
	}
	rb.ComputeMJtJinv(d.DIDda, dCda, d.MJtJinv())
	w := d.MJtJinvDIDCdqv()
	w.Mul(d.MJtJinv(), d.DIDCdqv())
	d.MJtJinvIDC().MulVec(d.MJtJinv(), d.IDC())

	// Qafqv = -[diag(Qaa); Qff] * (MJtJinv * dIDCdqv), with the cross term
	// Qqf^T folded into the force rows.
	qafqv := d.Qafqv()
	for i := 0; i < dimv; i++ {
		qa := kktMat.Qaa.AtVec(i)
		for j := 0; j < 2*dimv; j++ {
			qafqv.Set(i, j, -qa*w.At(i, j))
		}
	}
	qafu := d.Qafu()
	mBase := d.MJtJinv().Slice(0, dimv, 0, dimv).(*mat.Dense)
	for i := 0; i < dimv; i++ {
		qa := kktMat.Qaa.AtVec(i)
		for j := 0; j < dimv; j++ {
			qafu.Set(i, j, qa*mBase.At(i, j))
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
		qafqvFq := qafqv.Slice(dimv, na, 0, dimv).(*mat.Dense)
		subT(qafqvFq, qqf)
		mForce := d.MJtJinv().Slice(dimv, na, 0, dimv).(*mat.Dense)
		qafuF := qafu.Slice(dimv, na, 0, dimv).(*mat.Dense)
		qafuF.Mul(qff, mForce)

		lf := d.Lf()
		lf.CopyVec(kktRes.LfActive())
		lf.ScaleVec(-1, lf)
		idcF := d.MJtJinvIDC().SliceVec(dimv, na).(*mat.VecDense)
		addMulVec(lf, qff, idcF, -1)
	}

	// State Hessian and gradient.
	d.wxx.Mul(w.T(), qafqv)
	kktMat.Qxx.Sub(kktMat.Qxx, d.wxx)
	if dimf > 0 {
		qqf := kktMat.QqfActive()
		wf := w.Slice(dimv, na, 0, 2*dimv).(*mat.Dense)
		d.wvx.Mul(qqf, wf)
		qxxTop := kktMat.Qxx.Slice(0, dimv, 0, 2*dimv).(*mat.Dense)
		qxxTop.Add(qxxTop, d.wvx)
	}
	if cd.hasFloatingBase {
		qafuPassive := qafu.Slice(0, na, 0, dimp).(*mat.Dense)
		d.QxuPassive.Mul(w.T(), qafuPassive)
		d.QxuPassive.Scale(-1, d.QxuPassive)
		qafuJoint := qafu.Slice(0, na, dimp, dimv).(*mat.Dense)
		wxuJoint := d.wxu.Slice(0, 2*dimv, 0, dimu).(*mat.Dense)
		wxuJoint.Mul(w.T(), qafuJoint)
		kktMat.Qxu.Sub(kktMat.Qxu, wxuJoint)
		if dimf > 0 {
			qqf := kktMat.QqfActive()
			mForce := d.MJtJinv().Slice(dimv, na, 0, dimv).(*mat.Dense)
			qxuPassiveTop := d.QxuPassive.Slice(0, dimv, 0, dimp).(*mat.Dense)
			wqp := d.wvx.Slice(0, dimv, 0, dimp).(*mat.Dense)
			wqp.Mul(qqf, mForce.Slice(0, dimf, 0, dimp).(*mat.Dense))
			qxuPassiveTop.Sub(qxuPassiveTop, wqp)
			qxuTop := kktMat.Qxu.Slice(0, dimv, 0, dimu).(*mat.Dense)
			wqu := d.wvx.Slice(0, dimv, 0, dimu).(*mat.Dense)
			wqu.Mul(qqf, mForce.Slice(0, dimf, dimp, dimv).(*mat.Dense))
			qxuTop.Sub(qxuTop, wqu)
		}
	} else {
		d.wxu.Mul(w.T(), qafu)
		kktMat.Qxu.Sub(kktMat.Qxu, d.wxu)
		if dimf > 0 {
			qqf := kktMat.QqfActive()
			mForce := d.MJtJinv().Slice(dimv, na, 0, dimv).(*mat.Dense)
			qxuTop := kktMat.Qxu.Slice(0, dimv, 0, dimu).(*mat.Dense)
			wqu := d.wvx.Slice(0, dimv, 0, dimv).(*mat.Dense)
			wqu.Mul(qqf, mForce)
			qxuTop.Sub(qxuTop, wqu)
		}
	}
	d.wx.MulVec(w.T(), d.Laf())
	kktRes.Lx.SubVec(kktRes.Lx, d.wx)
	if dimf > 0 {
		idcF := d.MJtJinvIDC().SliceVec(dimv, na).(*mat.VecDense)
		addMulVec(kktRes.Lq(), kktMat.QqfActive(), idcF, 1)
	}

	// Control Hessian and gradient.
	if cd.hasFloatingBase {
		mPassive := d.MJtJinv().Slice(0, dimp, 0, na).(*mat.Dense)
		qafuJoint := qafu.Slice(0, na, dimp, dimv).(*mat.Dense)
		d.QuuPassiveTopRight.Mul(mPassive, qafuJoint)
		mJoint := d.MJtJinv().Slice(dimp, dimp+dimu, 0, na).(*mat.Dense)
		d.wuu.Slice(0, dimu, 0, dimu).(*mat.Dense).Mul(mJoint, qafuJoint)
		kktMat.Quu.Add(kktMat.Quu, d.wuu.Slice(0, dimu, 0, dimu).(*mat.Dense))
		addMulVec(d.LuPassive, mPassive, d.Laf(), 1)
		addMulVec(kktRes.Lu, mJoint, d.Laf(), 1)
	} else {
		mAll := d.MJtJinv().Slice(0, dimv, 0, na).(*mat.Dense)
		d.wuu.Mul(mAll, qafu)
		kktMat.Quu.Add(kktMat.Quu, d.wuu)
		addMulVec(kktRes.Lu, mAll, d.Laf(), 1)
	}

	// Condensed state equation rows of the velocity.
	wTopLeft := w.Slice(0, dimv, 0, dimv).(*mat.Dense)
	wTopRight := w.Slice(0, dimv, dimv, 2*dimv).(*mat.Dense)
	fvq := kktMat.Fvq()
	fvq.Scale(-dt, wTopLeft)
	fvv := kktMat.Fvv()
	fvv.Scale(-dt, wTopRight)
	for i := 0; i < dimv; i++ {
		fvv.Set(i, i, fvv.At(i, i)+1)
	}
	mInput := d.MJtJinv().Slice(0, dimv, dimp, dimp+dimu).(*mat.Dense)
	kktMat.Fvu.Scale(dt, mInput)
	idcHead := d.MJtJinvIDC().SliceVec(0, dimv).(*mat.VecDense)
	fv := kktRes.Fv()
	fv.AddScaledVec(fv, -dt, idcHead)

	// Switching-time sensitivities.
	d.Ha().CopyVec(kktMat.Ha)
	if dimf > 0 {
		hf := d.Hf()
		hf.CopyVec(kktMat.HfActive())
		hf.ScaleVec(-1, hf)
	}
	kktRes.H -= mat.Dot(d.MJtJinvIDC(), d.Haf())
	d.wx.MulVec(w.T(), d.Haf())
	kktMat.Hx.SubVec(kktMat.Hx, d.wx)
	if dimf > 0 {
		idcF := d.MJtJinvIDC().SliceVec(dimv, na).(*mat.VecDense)
		hq := kktMat.Hx.SliceVec(0, dimv).(*mat.VecDense)
		d.waf.SliceVec(0, dimv).(*mat.VecDense).MulVec(kktMat.QqfActive(), idcF)
		hq.AddScaledVec(hq, 1.0/dt, d.waf.SliceVec(0, dimv).(*mat.VecDense))
	}
	if cd.hasFloatingBase {
		mJoint := d.MJtJinv().Slice(dimp, dimp+dimu, 0, na).(*mat.Dense)
		addMulVec(kktMat.Hu, mJoint, d.Haf(), 1)
	} else {
		mAll := d.MJtJinv().Slice(0, dimv, 0, na).(*mat.Dense)
		addMulVec(kktMat.Hu, mAll, d.Haf(), 1)
	}
}

// CondenseSwitchingConstraint folds the condensed acceleration dependency of
// the switching constraint into its state and control Jacobians.
func (cd *ContactDynamics) CondenseSwitchingConstraint(scJac *SwitchingConstraintJacobian, scRes *SwitchingConstraintResidual) {
	d := cd.data
	dimv, dimu, dimp := cd.dimv, cd.dimu, cd.dimPassive
	wTop := d.MJtJinvDIDCdqv().Slice(0, dimv, 0, 2*dimv).(*mat.Dense)
	var tmp mat.Dense
	tmp.Mul(scJac.Phia, wTop)
	scJac.Phix.Sub(scJac.Phix, &tmp)
	mInput := d.MJtJinv().Slice(0, dimv, dimp, dimp+dimu).(*mat.Dense)
	scJac.Phiu.Mul(scJac.Phia, mInput)
	idcHead := d.MJtJinvIDC().SliceVec(0, dimv).(*mat.VecDense)
	addMulVec(scJac.Phit, scJac.Phia, idcHead, -1)
	addMulVec(scRes.P, scJac.Phia, idcHead, -1)
}

// ExpandPrimal recovers the direction of the eliminated acceleration and
// forces from the state and control directions.
func (cd *ContactDynamics) ExpandPrimal(d *core.SplitDirection) {
	data := cd.data
	dimv, dimu, dimp := cd.dimv, cd.dimu, cd.dimPassive
	na := dimv + data.Dimf()
	daf := d.DafActive()
	daf.MulVec(data.MJtJinvDIDCdqv(), d.Dx)
	daf.ScaleVec(-1, daf)
	mInput := data.MJtJinv().Slice(0, na, dimp, dimp+dimu).(*mat.Dense)
	waf := data.waf.SliceVec(0, na).(*mat.VecDense)
	waf.MulVec(mInput, d.Du)
	daf.AddVec(daf, waf)
	daf.SubVec(daf, data.MJtJinvIDC())
	if data.Dimf() > 0 {
		df := d.Df()
		df.ScaleVec(-1, df)
	}
}

// ExpandDual recovers the direction of the eliminated multipliers beta and
// mu. dgmmNext is the costate direction of the next stage.
func (cd *ContactDynamics) ExpandDual(dt float64, dgmmNext mat.Vector, d *core.SplitDirection) {
	if dt <= 0 {
		panic("dynamics: nonpositive time step")
	}
	data := cd.data
	dimv, dimp := cd.dimv, cd.dimPassive
	na := dimv + data.Dimf()
	laf := data.Laf()
	waf := data.waf.SliceVec(0, na).(*mat.VecDense)
	waf.MulVec(data.Qafqv(), d.Dx)
	laf.AddVec(laf, waf)
	qafuJoint := data.Qafu().Slice(0, na, dimp, dimv).(*mat.Dense)
	waf.MulVec(qafuJoint, d.Du)
	laf.AddVec(laf, waf)
	la := data.La()
	la.AddScaledVec(la, dt, dgmmNext)
	dbetamu := d.DbetamuActive()
	dbetamu.MulVec(data.MJtJinv(), laf)
	dbetamu.ScaleVec(-1, dbetamu)
}

// ExpandDualWithSwitching recovers beta and mu at a stage carrying a
// switching constraint. The acceleration stationarity of such a stage
// includes the constraint multiplier, so its step enters the expansion.
func (cd *ContactDynamics) ExpandDualWithSwitching(dt float64, dgmmNext mat.Vector, scJac *SwitchingConstraintJacobian, d *core.SplitDirection) {
	if dxi := d.DxiStack(); dxi != nil {
		addMulVecT(cd.data.La(), scJac.Phia, dxi, 1)
	}
	cd.ExpandDual(dt, dgmmNext, d)
}

// addMulVec accumulates dst += scale * A * x.
func addMulVec(dst *mat.VecDense, a mat.Matrix, x mat.Vector, scale float64) {
	r, _ := a.Dims()
	var tmp mat.VecDense
	tmp.ReuseAsVec(r)
	tmp.MulVec(a, x)
	dst.AddScaledVec(dst, scale, &tmp)
}

// addMulVecT accumulates dst += scale * A^T * x.
func addMulVecT(dst *mat.VecDense, a mat.Matrix, x mat.Vector, scale float64) {
	addMulVec(dst, a.T(), x, scale)
}

// subT computes dst -= src^T elementwise.
func subT(dst *mat.Dense, src *mat.Dense) {
	r, c := dst.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			dst.Set(i, j, dst.At(i, j)-src.At(j, i))
		}
	}
}
