package cost

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/robot"
)

// ConfigurationSpaceCost is a diagonal quadratic penalty on configuration,
// velocity, acceleration, and torque tracking errors, with separate weights
// for running, terminal, and impulse stages. Weights default to zero, so an
// unset group contributes nothing.
type ConfigurationSpaceCost struct {
	dimq, dimv, dimu int

	qRef *mat.VecDense
	vRef *mat.VecDense
	uRef *mat.VecDense

	qWeight  *mat.VecDense
	vWeight  *mat.VecDense
	aWeight  *mat.VecDense
	uWeight  *mat.VecDense
	qfWeight *mat.VecDense
	vfWeight *mat.VecDense
	qiWeight *mat.VecDense
	viWeight *mat.VecDense
	dviWeight *mat.VecDense
}

// NewConfigurationSpaceCost creates the component with zero weights and zero
// references sized for rb.
func NewConfigurationSpaceCost(rb robot.Robot) *ConfigurationSpaceCost {
	dimu := rb.Dimu()
	if dimu == 0 {
		dimu = 1
	}
	return &ConfigurationSpaceCost{
		dimq:      rb.Dimq(),
		dimv:      rb.Dimv(),
		dimu:      rb.Dimu(),
		qRef:      mat.NewVecDense(rb.Dimq(), nil),
		vRef:      mat.NewVecDense(rb.Dimv(), nil),
		uRef:      mat.NewVecDense(dimu, nil),
		qWeight:   mat.NewVecDense(rb.Dimv(), nil),
		vWeight:   mat.NewVecDense(rb.Dimv(), nil),
		aWeight:   mat.NewVecDense(rb.Dimv(), nil),
		uWeight:   mat.NewVecDense(dimu, nil),
		qfWeight:  mat.NewVecDense(rb.Dimv(), nil),
		vfWeight:  mat.NewVecDense(rb.Dimv(), nil),
		qiWeight:  mat.NewVecDense(rb.Dimv(), nil),
		viWeight:  mat.NewVecDense(rb.Dimv(), nil),
		dviWeight: mat.NewVecDense(rb.Dimv(), nil),
	}
}

func (c *ConfigurationSpaceCost) setVec(dst *mat.VecDense, src *mat.VecDense, name string, dim int) error {
	if src.Len() != dim {
		return fmt.Errorf("cost: %s has length %d, want %d", name, src.Len(), dim)
	}
	dst.CloneFromVec(src)
	return nil
}

// SetQRef sets the configuration reference.
func (c *ConfigurationSpaceCost) SetQRef(q *mat.VecDense) error {
	return c.setVec(c.qRef, q, "q ref", c.dimq)
}

// SetVRef sets the velocity reference.
func (c *ConfigurationSpaceCost) SetVRef(v *mat.VecDense) error {
	return c.setVec(c.vRef, v, "v ref", c.dimv)
}

// SetURef sets the torque reference.
func (c *ConfigurationSpaceCost) SetURef(u *mat.VecDense) error {
	return c.setVec(c.uRef, u, "u ref", c.uRef.Len())
}

// SetQWeight sets the running configuration weight.
func (c *ConfigurationSpaceCost) SetQWeight(w *mat.VecDense) error {
	return c.setVec(c.qWeight, w, "q weight", c.dimv)
}

// SetVWeight sets the running velocity weight.
func (c *ConfigurationSpaceCost) SetVWeight(w *mat.VecDense) error {
	return c.setVec(c.vWeight, w, "v weight", c.dimv)
}

// SetAWeight sets the running acceleration weight.
func (c *ConfigurationSpaceCost) SetAWeight(w *mat.VecDense) error {
	return c.setVec(c.aWeight, w, "a weight", c.dimv)
}

// SetUWeight sets the running torque weight.
func (c *ConfigurationSpaceCost) SetUWeight(w *mat.VecDense) error {
	return c.setVec(c.uWeight, w, "u weight", c.uWeight.Len())
}

// SetQfWeight sets the terminal configuration weight.
func (c *ConfigurationSpaceCost) SetQfWeight(w *mat.VecDense) error {
	return c.setVec(c.qfWeight, w, "qf weight", c.dimv)
}

// SetVfWeight sets the terminal velocity weight.
func (c *ConfigurationSpaceCost) SetVfWeight(w *mat.VecDense) error {
	return c.setVec(c.vfWeight, w, "vf weight", c.dimv)
}

// SetQiWeight sets the impulse configuration weight.
func (c *ConfigurationSpaceCost) SetQiWeight(w *mat.VecDense) error {
	return c.setVec(c.qiWeight, w, "qi weight", c.dimv)
}

// SetViWeight sets the impulse velocity weight.
func (c *ConfigurationSpaceCost) SetViWeight(w *mat.VecDense) error {
	return c.setVec(c.viWeight, w, "vi weight", c.dimv)
}

// SetDviWeight sets the impulse velocity-change weight.
func (c *ConfigurationSpaceCost) SetDviWeight(w *mat.VecDense) error {
	return c.setVec(c.dviWeight, w, "dvi weight", c.dimv)
}

// weightedSquare returns 0.5 * sum_i w_i * d_i^2.
func weightedSquare(w, d *mat.VecDense) float64 {
	sum := 0.0
	for i := 0; i < w.Len(); i++ {
		di := d.AtVec(i)
		sum += w.AtVec(i) * di * di
	}
	return 0.5 * sum
}

// addWeightedGrad accumulates scale * w_i * d_i into dst.
func addWeightedGrad(dst *mat.VecDense, scale float64, w, d *mat.VecDense) {
	for i := 0; i < w.Len(); i++ {
		dst.SetVec(i, dst.AtVec(i)+scale*w.AtVec(i)*d.AtVec(i))
	}
}

// addWeightedDiag accumulates scale * w_i onto the diagonal of dst.
func addWeightedDiag(dst *mat.Dense, scale float64, w *mat.VecDense) {
	for i := 0; i < w.Len(); i++ {
		dst.Set(i, i, dst.At(i, i)+scale*w.AtVec(i))
	}
}

func (c *ConfigurationSpaceCost) diffs(rb robot.Robot, data *Data, s *core.SplitSolution) {
	rb.SubtractConfiguration(s.Q, c.qRef, data.Qdiff)
	data.Vdiff.SubVec(s.V, c.vRef)
}

func (c *ConfigurationSpaceCost) EvalStageCost(rb robot.Robot, _ *robot.ContactStatus, data *Data, _, dt float64, s *core.SplitSolution) float64 {
	c.diffs(rb, data, s)
	cost := weightedSquare(c.qWeight, data.Qdiff)
	cost += weightedSquare(c.vWeight, data.Vdiff)
	cost += weightedSquare(c.aWeight, s.A)
	if c.dimu > 0 {
		data.Udiff.SubVec(s.U, c.uRef)
		cost += weightedSquare(c.uWeight, data.Udiff)
	}
	return dt * cost
}

func (c *ConfigurationSpaceCost) EvalStageCostDerivatives(rb robot.Robot, _ *robot.ContactStatus, data *Data, _, dt float64, s *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	c.diffs(rb, data, s)
	addWeightedGrad(kktRes.Lq(), dt, c.qWeight, data.Qdiff)
	addWeightedGrad(kktRes.Lv(), dt, c.vWeight, data.Vdiff)
	addWeightedGrad(kktRes.La, dt, c.aWeight, s.A)
	if c.dimu > 0 {
		data.Udiff.SubVec(s.U, c.uRef)
		addWeightedGrad(kktRes.Lu, dt, c.uWeight, data.Udiff)
	}
}

func (c *ConfigurationSpaceCost) EvalStageCostHessian(_ robot.Robot, _ *robot.ContactStatus, _ *Data, _, dt float64, _ *core.SplitSolution, kktMat *core.SplitKKTMatrix) {
	addWeightedDiag(kktMat.Qqq(), dt, c.qWeight)
	addWeightedDiag(kktMat.Qvv(), dt, c.vWeight)
	kktMat.Qaa.AddScaledVec(kktMat.Qaa, dt, c.aWeight)
	if c.dimu > 0 {
		addWeightedDiag(kktMat.Quu, dt, c.uWeight)
	}
}

func (c *ConfigurationSpaceCost) EvalTerminalCost(rb robot.Robot, data *Data, _ float64, s *core.SplitSolution) float64 {
	c.diffs(rb, data, s)
	return weightedSquare(c.qfWeight, data.Qdiff) + weightedSquare(c.vfWeight, data.Vdiff)
}

func (c *ConfigurationSpaceCost) EvalTerminalCostDerivatives(rb robot.Robot, data *Data, _ float64, s *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	c.diffs(rb, data, s)
	addWeightedGrad(kktRes.Lq(), 1, c.qfWeight, data.Qdiff)
	addWeightedGrad(kktRes.Lv(), 1, c.vfWeight, data.Vdiff)
}

func (c *ConfigurationSpaceCost) EvalTerminalCostHessian(_ robot.Robot, _ *Data, _ float64, _ *core.SplitSolution, kktMat *core.SplitKKTMatrix) {
	addWeightedDiag(kktMat.Qqq(), 1, c.qfWeight)
	addWeightedDiag(kktMat.Qvv(), 1, c.vfWeight)
}

func (c *ConfigurationSpaceCost) EvalImpulseCost(rb robot.Robot, _ *robot.ImpulseStatus, data *Data, _ float64, s *core.SplitSolution) float64 {
	c.diffs(rb, data, s)
	cost := weightedSquare(c.qiWeight, data.Qdiff)
	cost += weightedSquare(c.viWeight, data.Vdiff)
	cost += weightedSquare(c.dviWeight, s.A)
	return cost
}

func (c *ConfigurationSpaceCost) EvalImpulseCostDerivatives(rb robot.Robot, _ *robot.ImpulseStatus, data *Data, _ float64, s *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	c.diffs(rb, data, s)
	addWeightedGrad(kktRes.Lq(), 1, c.qiWeight, data.Qdiff)
	addWeightedGrad(kktRes.Lv(), 1, c.viWeight, data.Vdiff)
	addWeightedGrad(kktRes.La, 1, c.dviWeight, s.A)
}

func (c *ConfigurationSpaceCost) EvalImpulseCostHessian(_ robot.Robot, _ *robot.ImpulseStatus, _ *Data, _ float64, _ *core.SplitSolution, kktMat *core.SplitKKTMatrix) {
	addWeightedDiag(kktMat.Qqq(), 1, c.qiWeight)
	addWeightedDiag(kktMat.Qvv(), 1, c.viWeight)
	kktMat.Qaa.AddScaledVec(kktMat.Qaa, 1, c.dviWeight)
}
