package core

import (
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/robot"
)

// SplitKKTMatrix holds the dense Hessian-approximation and state-transition
// blocks of one stage. Cost, constraint, and dynamics contributions are
// accumulated in place before the stage is handed to the Riccati recursion.
// Recomputed every iteration, never persisted.
type SplitKKTMatrix struct {
	// Qxx is the state Hessian block, (2v x 2v).
	Qxx *mat.Dense
	// Qaa is the diagonal of the acceleration Hessian block.
	Qaa *mat.VecDense
	// Qff is the contact-force Hessian block at the maximum dimension.
	Qff *mat.Dense
	// Qqf couples configuration and contact force.
	Qqf *mat.Dense
	// Qxu is the state-control Hessian block, (2v x u).
	Qxu *mat.Dense
	// Quu is the control Hessian block.
	Quu *mat.Dense
	// Fxx is the state-transition Jacobian [Fqq Fqv; Fvq Fvv].
	Fxx *mat.Dense
	// Fvu is the control column of the velocity transition.
	Fvu *mat.Dense
	// Hx, Hu, Ha, Hf are the switching-time sensitivity blocks.
	Hx, Hu, Ha, Hf *mat.VecDense
	// Qtt is the switching-time curvature.
	Qtt float64

	dimv, dimf int
}

// NewSplitKKTMatrix allocates the blocks at maximum contact dimension.
func NewSplitKKTMatrix(rb robot.Robot) *SplitKKTMatrix {
	dimv := rb.Dimv()
	dimu := rb.Dimu()
	maxf := robot.ContactDim * rb.MaxNumContacts()
	m := &SplitKKTMatrix{
		Qxx:  mat.NewDense(2*dimv, 2*dimv, nil),
		Qaa:  mat.NewVecDense(dimv, nil),
		Qxu:  mat.NewDense(2*dimv, max(dimu, 1), nil),
		Quu:  mat.NewDense(max(dimu, 1), max(dimu, 1), nil),
		Fxx:  mat.NewDense(2*dimv, 2*dimv, nil),
		Fvu:  mat.NewDense(dimv, max(dimu, 1), nil),
		Hx:   mat.NewVecDense(2*dimv, nil),
		Hu:   mat.NewVecDense(max(dimu, 1), nil),
		Ha:   mat.NewVecDense(dimv, nil),
		dimv: dimv,
	}
	if maxf > 0 {
		m.Qff = mat.NewDense(maxf, maxf, nil)
		m.Qqf = mat.NewDense(dimv, maxf, nil)
		m.Hf = mat.NewVecDense(maxf, nil)
	}
	return m
}

// SetContactDimension sets the active contact-force dimension.
func (m *SplitKKTMatrix) SetContactDimension(dimf int) { m.dimf = dimf }

// Dimf returns the active contact-force dimension.
func (m *SplitKKTMatrix) Dimf() int { return m.dimf }

// Qqq returns the configuration block of Qxx.
func (m *SplitKKTMatrix) Qqq() *mat.Dense { return m.Qxx.Slice(0, m.dimv, 0, m.dimv).(*mat.Dense) }

// Qvv returns the velocity block of Qxx.
func (m *SplitKKTMatrix) Qvv() *mat.Dense {
	return m.Qxx.Slice(m.dimv, 2*m.dimv, m.dimv, 2*m.dimv).(*mat.Dense)
}

// QffActive returns the active contact-force Hessian view, or nil.
func (m *SplitKKTMatrix) QffActive() *mat.Dense {
	if m.dimf == 0 {
		return nil
	}
	return m.Qff.Slice(0, m.dimf, 0, m.dimf).(*mat.Dense)
}

// QqfActive returns the active configuration-force coupling view, or nil.
func (m *SplitKKTMatrix) QqfActive() *mat.Dense {
	if m.dimf == 0 {
		return nil
	}
	return m.Qqf.Slice(0, m.dimv, 0, m.dimf).(*mat.Dense)
}

// HfActive returns the active contact-force STO sensitivity, or nil.
func (m *SplitKKTMatrix) HfActive() *mat.VecDense {
	if m.dimf == 0 {
		return nil
	}
	return m.Hf.SliceVec(0, m.dimf).(*mat.VecDense)
}

// Fqq, Fqv, Fvq, Fvv are views of the state-transition Jacobian.
func (m *SplitKKTMatrix) Fqq() *mat.Dense { return m.Fxx.Slice(0, m.dimv, 0, m.dimv).(*mat.Dense) }
func (m *SplitKKTMatrix) Fqv() *mat.Dense {
	return m.Fxx.Slice(0, m.dimv, m.dimv, 2*m.dimv).(*mat.Dense)
}
func (m *SplitKKTMatrix) Fvq() *mat.Dense {
	return m.Fxx.Slice(m.dimv, 2*m.dimv, 0, m.dimv).(*mat.Dense)
}
func (m *SplitKKTMatrix) Fvv() *mat.Dense {
	return m.Fxx.Slice(m.dimv, 2*m.dimv, m.dimv, 2*m.dimv).(*mat.Dense)
}

// Zero clears every block.
func (m *SplitKKTMatrix) Zero() {
	m.Qxx.Zero()
	m.Qaa.Zero()
	m.Qxu.Zero()
	m.Quu.Zero()
	m.Fxx.Zero()
	m.Fvu.Zero()
	m.Hx.Zero()
	m.Hu.Zero()
	m.Ha.Zero()
	m.Qtt = 0
	if m.Qff != nil {
		m.Qff.Zero()
		m.Qqf.Zero()
		m.Hf.Zero()
	}
}

// SplitKKTResidual holds the first-order optimality residuals of one stage.
type SplitKKTResidual struct {
	// Fx is the state-equation residual (dq part then dv part).
	Fx *mat.VecDense
	// Lx is the gradient w.r.t. the state.
	Lx *mat.VecDense
	// La is the gradient w.r.t. the acceleration (or impulse velocity change).
	La *mat.VecDense
	// Lf is the gradient w.r.t. the active contact forces (max size).
	Lf *mat.VecDense
	// Lu is the gradient w.r.t. the control.
	Lu *mat.VecDense
	// H is the switching-time residual.
	H float64

	dimv, dimf int
}

// NewSplitKKTResidual allocates the residual at maximum contact dimension.
func NewSplitKKTResidual(rb robot.Robot) *SplitKKTResidual {
	dimv := rb.Dimv()
	maxf := robot.ContactDim * rb.MaxNumContacts()
	r := &SplitKKTResidual{
		Fx:   mat.NewVecDense(2*dimv, nil),
		Lx:   mat.NewVecDense(2*dimv, nil),
		La:   mat.NewVecDense(dimv, nil),
		Lu:   mat.NewVecDense(max(rb.Dimu(), 1), nil),
		dimv: dimv,
	}
	if maxf > 0 {
		r.Lf = mat.NewVecDense(maxf, nil)
	}
	return r
}

// SetContactDimension sets the active contact-force dimension.
func (r *SplitKKTResidual) SetContactDimension(dimf int) { r.dimf = dimf }

// Dimf returns the active contact-force dimension.
func (r *SplitKKTResidual) Dimf() int { return r.dimf }

// Fq, Fv, Lq, Lv are views of the stacked residuals.
func (r *SplitKKTResidual) Fq() *mat.VecDense { return r.Fx.SliceVec(0, r.dimv).(*mat.VecDense) }
func (r *SplitKKTResidual) Fv() *mat.VecDense {
	return r.Fx.SliceVec(r.dimv, 2*r.dimv).(*mat.VecDense)
}
func (r *SplitKKTResidual) Lq() *mat.VecDense { return r.Lx.SliceVec(0, r.dimv).(*mat.VecDense) }
func (r *SplitKKTResidual) Lv() *mat.VecDense {
	return r.Lx.SliceVec(r.dimv, 2*r.dimv).(*mat.VecDense)
}

// LfActive returns the active contact-force gradient view, or nil.
func (r *SplitKKTResidual) LfActive() *mat.VecDense {
	if r.dimf == 0 {
		return nil
	}
	return r.Lf.SliceVec(0, r.dimf).(*mat.VecDense)
}

// Zero clears every component.
func (r *SplitKKTResidual) Zero() {
	r.Fx.Zero()
	r.Lx.Zero()
	r.La.Zero()
	r.Lu.Zero()
	r.H = 0
	if r.Lf != nil {
		r.Lf.Zero()
	}
}

// SquaredNorm returns the sum of squared residual components, including the
// switching-time residual when sto is set.
func (r *SplitKKTResidual) SquaredNorm(sto bool) float64 {
	err := sqNormVec(r.Fx) + sqNormVec(r.Lx) + sqNormVec(r.La) + sqNormVec(r.Lu)
	if r.dimf > 0 {
		err += sqNormVec(r.LfActive())
	}
	if sto {
		err += r.H * r.H
	}
	return err
}

func sqNormVec(v *mat.VecDense) float64 {
	if v == nil {
		return 0
	}
	return mat.Dot(v, v)
}
