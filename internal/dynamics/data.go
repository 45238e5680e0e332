// Package dynamics condenses the equality constraints of each stage, the
// inverse dynamics and the acceleration-level contact constraint, into the
// state and control variables, and expands the resulting directions back to
// the eliminated variables.
package dynamics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/robot"
)

// Data holds the per-stage workspace of the contact dynamics condensation.
// Buffers are allocated once at the maximum contact dimension and sliced to
// the active dimension of the current contact mode.
type Data struct {
	dimv, dimu, dimPassive, maxDimf, dimf int

	// Inverse dynamics and contact constraint residual, stacked.
	IDCFull *mat.VecDense
	// Stacked Jacobian with respect to (q, v).
	DIDCdqvFull *mat.Dense
	// Jacobians with respect to the acceleration.
	DIDda    *mat.Dense
	DCdaFull *mat.Dense

	MJtJinvFull        *mat.Dense
	MJtJinvDIDCdqvFull *mat.Dense
	MJtJinvIDCFull     *mat.VecDense

	QafqvFull *mat.Dense
	QafuFull  *mat.Dense
	LafFull   *mat.VecDense
	HafFull   *mat.VecDense

	LuPassive          *mat.VecDense
	QxuPassive         *mat.Dense
	QuuPassiveTopRight *mat.Dense

	// Multiplication scratch.
	wxx *mat.Dense
	wvx *mat.Dense
	wxu *mat.Dense
	wuu *mat.Dense
	wx  *mat.VecDense
	waf *mat.VecDense
}

// NewData allocates the workspace for one robot model.
func NewData(rb robot.Robot) *Data {
	dimv := rb.Dimv()
	dimu := rb.Dimu()
	dimp := rb.DimPassive()
	maxDimf := robot.ContactDim * rb.MaxNumContacts()
	na := dimv + maxDimf
	nu := dimu
	if nu == 0 {
		nu = 1
	}
	np := dimp
	if np == 0 {
		np = 1
	}
	return &Data{
		dimv:               dimv,
		dimu:               dimu,
		dimPassive:         dimp,
		maxDimf:            maxDimf,
		IDCFull:            mat.NewVecDense(na, nil),
		DIDCdqvFull:        mat.NewDense(na, 2*dimv, nil),
		DIDda:              mat.NewDense(dimv, dimv, nil),
		DCdaFull:           mat.NewDense(maxOne(maxDimf), dimv, nil),
		MJtJinvFull:        mat.NewDense(na, na, nil),
		MJtJinvDIDCdqvFull: mat.NewDense(na, 2*dimv, nil),
		MJtJinvIDCFull:     mat.NewVecDense(na, nil),
		QafqvFull:          mat.NewDense(na, 2*dimv, nil),
		QafuFull:           mat.NewDense(na, dimv, nil),
		LafFull:            mat.NewVecDense(na, nil),
		HafFull:            mat.NewVecDense(na, nil),
		LuPassive:          mat.NewVecDense(np, nil),
		QxuPassive:         mat.NewDense(2*dimv, np, nil),
		QuuPassiveTopRight: mat.NewDense(np, nu, nil),
		wxx:                mat.NewDense(2*dimv, 2*dimv, nil),
		wvx:                mat.NewDense(dimv, 2*dimv, nil),
		wxu:                mat.NewDense(2*dimv, dimv, nil),
		wuu:                mat.NewDense(dimv, dimv, nil),
		wx:                 mat.NewVecDense(2*dimv, nil),
		waf:                mat.NewVecDense(na, nil),
	}
}

func maxOne(n int) int {
	if n == 0 {
		return 1
	}
	return n
}

// SetContactDimension slices the workspace to the active contact dimension.
func (d *Data) SetContactDimension(dimf int) { d.dimf = dimf }

// Dimf returns the active contact dimension.
func (d *Data) Dimf() int { return d.dimf }

func (d *Data) na() int { return d.dimv + d.dimf }

// IDC returns the stacked residual at the active dimension.
func (d *Data) IDC() *mat.VecDense { return d.IDCFull.SliceVec(0, d.na()).(*mat.VecDense) }

// ID returns the inverse dynamics part of the residual, all joints.
func (d *Data) ID() *mat.VecDense { return d.IDCFull.SliceVec(0, d.dimv).(*mat.VecDense) }

// IDJoint returns the actuated rows of the inverse dynamics residual.
func (d *Data) IDJoint() *mat.VecDense {
	return d.IDCFull.SliceVec(d.dimPassive, d.dimv).(*mat.VecDense)
}

// C returns the contact constraint part of the residual.
func (d *Data) C() *mat.VecDense {
	return d.IDCFull.SliceVec(d.dimv, d.na()).(*mat.VecDense)
}

// DIDCdqv returns the stacked (q, v) Jacobian at the active dimension.
func (d *Data) DIDCdqv() *mat.Dense { return d.DIDCdqvFull.Slice(0, d.na(), 0, 2*d.dimv).(*mat.Dense) }

// DIDdq returns the inverse dynamics Jacobian with respect to q.
func (d *Data) DIDdq() *mat.Dense { return d.DIDCdqvFull.Slice(0, d.dimv, 0, d.dimv).(*mat.Dense) }

// DIDdv returns the inverse dynamics Jacobian with respect to v.
func (d *Data) DIDdv() *mat.Dense {
	return d.DIDCdqvFull.Slice(0, d.dimv, d.dimv, 2*d.dimv).(*mat.Dense)
}

// DCdq returns the contact constraint Jacobian with respect to q.
func (d *Data) DCdq() *mat.Dense {
	return d.DIDCdqvFull.Slice(d.dimv, d.na(), 0, d.dimv).(*mat.Dense)
}

// DCdv returns the contact constraint Jacobian with respect to v.
func (d *Data) DCdv() *mat.Dense {
	return d.DIDCdqvFull.Slice(d.dimv, d.na(), d.dimv, 2*d.dimv).(*mat.Dense)
}

// DCda returns the contact constraint Jacobian with respect to a.
func (d *Data) DCda() *mat.Dense { return d.DCdaFull.Slice(0, d.dimf, 0, d.dimv).(*mat.Dense) }

// MJtJinv returns the inverted contact KKT block at the active dimension.
func (d *Data) MJtJinv() *mat.Dense { return d.MJtJinvFull.Slice(0, d.na(), 0, d.na()).(*mat.Dense) }

// MJtJinvDIDCdqv returns MJtJinv times the stacked (q, v) Jacobian.
func (d *Data) MJtJinvDIDCdqv() *mat.Dense {
	return d.MJtJinvDIDCdqvFull.Slice(0, d.na(), 0, 2*d.dimv).(*mat.Dense)
}

// MJtJinvIDC returns MJtJinv times the stacked residual.
func (d *Data) MJtJinvIDC() *mat.VecDense {
	return d.MJtJinvIDCFull.SliceVec(0, d.na()).(*mat.VecDense)
}

// Qafqv returns the condensed cross Hessian block.
func (d *Data) Qafqv() *mat.Dense { return d.QafqvFull.Slice(0, d.na(), 0, 2*d.dimv).(*mat.Dense) }

// Qafu returns the condensed control Hessian block, full input columns.
func (d *Data) Qafu() *mat.Dense { return d.QafuFull.Slice(0, d.na(), 0, d.dimv).(*mat.Dense) }

// Laf returns the stacked (a, f) gradient.
func (d *Data) Laf() *mat.VecDense { return d.LafFull.SliceVec(0, d.na()).(*mat.VecDense) }

// La returns the acceleration part of the stacked gradient.
func (d *Data) La() *mat.VecDense { return d.LafFull.SliceVec(0, d.dimv).(*mat.VecDense) }

// Lf returns the force part of the stacked gradient.
func (d *Data) Lf() *mat.VecDense {
	return d.LafFull.SliceVec(d.dimv, d.na()).(*mat.VecDense)
}

// Haf returns the stacked switching-time sensitivity.
func (d *Data) Haf() *mat.VecDense { return d.HafFull.SliceVec(0, d.na()).(*mat.VecDense) }

// Ha returns the acceleration part of the sensitivity.
func (d *Data) Ha() *mat.VecDense { return d.HafFull.SliceVec(0, d.dimv).(*mat.VecDense) }

// Hf returns the force part of the sensitivity.
func (d *Data) Hf() *mat.VecDense {
	return d.HafFull.SliceVec(d.dimv, d.na()).(*mat.VecDense)
}
