package cost

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/core"
	"github.com/san-kum/trajopt/internal/robot"
)

// ContactForceCost penalizes the deviation of the active contact forces from
// per-contact reference forces. Inactive contacts contribute nothing, so the
// cost follows the contact mode of each stage.
type ContactForceCost struct {
	maxNumContacts int

	fRef     []*mat.VecDense
	fWeight  []*mat.VecDense
	fiWeight []*mat.VecDense
}

// NewContactForceCost creates the component with zero references and zero
// weights for every contact candidate.
func NewContactForceCost(rb robot.Robot) *ContactForceCost {
	n := rb.MaxNumContacts()
	c := &ContactForceCost{
		maxNumContacts: n,
		fRef:           make([]*mat.VecDense, n),
		fWeight:        make([]*mat.VecDense, n),
		fiWeight:       make([]*mat.VecDense, n),
	}
	for i := 0; i < n; i++ {
		c.fRef[i] = mat.NewVecDense(robot.ContactDim, nil)
		c.fWeight[i] = mat.NewVecDense(robot.ContactDim, nil)
		c.fiWeight[i] = mat.NewVecDense(robot.ContactDim, nil)
	}
	return c
}

func (c *ContactForceCost) setPerContact(dst []*mat.VecDense, src []*mat.VecDense, name string) error {
	if len(src) != c.maxNumContacts {
		return fmt.Errorf("cost: %s has %d entries, want %d", name, len(src), c.maxNumContacts)
	}
	for i, v := range src {
		if v.Len() != robot.ContactDim {
			return fmt.Errorf("cost: %s[%d] has length %d, want %d", name, i, v.Len(), robot.ContactDim)
		}
		dst[i].CloneFromVec(v)
	}
	return nil
}

// SetFRef sets the per-contact force references.
func (c *ContactForceCost) SetFRef(f []*mat.VecDense) error {
	return c.setPerContact(c.fRef, f, "f ref")
}

// SetFWeight sets the per-contact running weights.
func (c *ContactForceCost) SetFWeight(w []*mat.VecDense) error {
	return c.setPerContact(c.fWeight, w, "f weight")
}

// SetFiWeight sets the per-contact impulse weights.
func (c *ContactForceCost) SetFiWeight(w []*mat.VecDense) error {
	return c.setPerContact(c.fiWeight, w, "fi weight")
}

func (c *ContactForceCost) evalForces(status *robot.ContactStatus, weights []*mat.VecDense, s *core.SplitSolution) float64 {
	sum := 0.0
	for i := 0; i < c.maxNumContacts; i++ {
		if !status.IsContactActive(i) {
			continue
		}
		for k := 0; k < robot.ContactDim; k++ {
			d := s.F[i].AtVec(k) - c.fRef[i].AtVec(k)
			sum += weights[i].AtVec(k) * d * d
		}
	}
	return 0.5 * sum
}

func (c *ContactForceCost) addForceGrad(status *robot.ContactStatus, weights []*mat.VecDense, scale float64, s *core.SplitSolution, lf *mat.VecDense) {
	offset := 0
	for i := 0; i < c.maxNumContacts; i++ {
		if !status.IsContactActive(i) {
			continue
		}
		for k := 0; k < robot.ContactDim; k++ {
			d := s.F[i].AtVec(k) - c.fRef[i].AtVec(k)
			lf.SetVec(offset+k, lf.AtVec(offset+k)+scale*weights[i].AtVec(k)*d)
		}
		offset += robot.ContactDim
	}
}

func (c *ContactForceCost) addForceHessian(status *robot.ContactStatus, weights []*mat.VecDense, scale float64, qff *mat.Dense) {
	offset := 0
	for i := 0; i < c.maxNumContacts; i++ {
		if !status.IsContactActive(i) {
			continue
		}
		for k := 0; k < robot.ContactDim; k++ {
			j := offset + k
			qff.Set(j, j, qff.At(j, j)+scale*weights[i].AtVec(k))
		}
		offset += robot.ContactDim
	}
}

func (c *ContactForceCost) EvalStageCost(_ robot.Robot, status *robot.ContactStatus, _ *Data, _, dt float64, s *core.SplitSolution) float64 {
	return dt * c.evalForces(status, c.fWeight, s)
}

func (c *ContactForceCost) EvalStageCostDerivatives(_ robot.Robot, status *robot.ContactStatus, _ *Data, _, dt float64, s *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	if !status.HasActiveContacts() {
		return
	}
	c.addForceGrad(status, c.fWeight, dt, s, kktRes.LfActive())
}

func (c *ContactForceCost) EvalStageCostHessian(_ robot.Robot, status *robot.ContactStatus, _ *Data, _, dt float64, _ *core.SplitSolution, kktMat *core.SplitKKTMatrix) {
	if !status.HasActiveContacts() {
		return
	}
	c.addForceHessian(status, c.fWeight, dt, kktMat.QffActive())
}

func (c *ContactForceCost) EvalTerminalCost(robot.Robot, *Data, float64, *core.SplitSolution) float64 {
	return 0
}

func (c *ContactForceCost) EvalTerminalCostDerivatives(robot.Robot, *Data, float64, *core.SplitSolution, *core.SplitKKTResidual) {
}

func (c *ContactForceCost) EvalTerminalCostHessian(robot.Robot, *Data, float64, *core.SplitSolution, *core.SplitKKTMatrix) {
}

func (c *ContactForceCost) EvalImpulseCost(_ robot.Robot, status *robot.ImpulseStatus, _ *Data, _ float64, s *core.SplitSolution) float64 {
	return c.evalForces(status.ContactStatus(), c.fiWeight, s)
}

func (c *ContactForceCost) EvalImpulseCostDerivatives(_ robot.Robot, status *robot.ImpulseStatus, _ *Data, _ float64, s *core.SplitSolution, kktRes *core.SplitKKTResidual) {
	cs := status.ContactStatus()
	if !cs.HasActiveContacts() {
		return
	}
	c.addForceGrad(cs, c.fiWeight, 1, s, kktRes.LfActive())
}

func (c *ContactForceCost) EvalImpulseCostHessian(_ robot.Robot, status *robot.ImpulseStatus, _ *Data, _ float64, _ *core.SplitSolution, kktMat *core.SplitKKTMatrix) {
	cs := status.ContactStatus()
	if !cs.HasActiveContacts() {
		return
	}
	c.addForceHessian(cs, c.fiWeight, 1, kktMat.QffActive())
}
