package robot

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ContactDim is the dimension of a single point contact (3D force).
const ContactDim = 3

// ContactStatus records which contact candidates are active in one contact
// mode, together with the contact placement and friction coefficient of each
// active contact. The planner mutates it before a solve; the solver treats it
// as immutable within a stage evaluation.
type ContactStatus struct {
	isActive     []bool
	placements   []*mat.VecDense
	frictions    []float64
	dimf         int
}

// NewContactStatus creates a status over maxPointContacts candidates, all
// inactive, with friction coefficient 0.7 and placements at the origin.
func NewContactStatus(maxPointContacts int) *ContactStatus {
	if maxPointContacts < 0 {
		panic(fmt.Sprintf("robot: negative maxPointContacts %d", maxPointContacts))
	}
	cs := &ContactStatus{
		isActive:   make([]bool, maxPointContacts),
		placements: make([]*mat.VecDense, maxPointContacts),
		frictions:  make([]float64, maxPointContacts),
	}
	for i := range cs.placements {
		cs.placements[i] = mat.NewVecDense(ContactDim, nil)
		cs.frictions[i] = 0.7
	}
	return cs
}

// MaxNumContacts returns the number of contact candidates.
func (cs *ContactStatus) MaxNumContacts() int { return len(cs.isActive) }

// IsContactActive reports whether candidate i is active.
func (cs *ContactStatus) IsContactActive(i int) bool { return cs.isActive[i] }

// HasActiveContacts reports whether any candidate is active.
func (cs *ContactStatus) HasActiveContacts() bool { return cs.dimf > 0 }

// Dimf returns the stacked contact-force dimension, 3 per active contact.
func (cs *ContactStatus) Dimf() int { return cs.dimf }

// Activate marks candidate i active.
func (cs *ContactStatus) Activate(i int) {
	if !cs.isActive[i] {
		cs.isActive[i] = true
		cs.dimf += ContactDim
	}
}

// Deactivate marks candidate i inactive.
func (cs *ContactStatus) Deactivate(i int) {
	if cs.isActive[i] {
		cs.isActive[i] = false
		cs.dimf -= ContactDim
	}
}

// SetActivity sets all candidate activations at once.
func (cs *ContactStatus) SetActivity(isActive []bool) error {
	if len(isActive) != len(cs.isActive) {
		return fmt.Errorf("robot: activity size %d does not match %d contact candidates",
			len(isActive), len(cs.isActive))
	}
	cs.dimf = 0
	for i, a := range isActive {
		cs.isActive[i] = a
		if a {
			cs.dimf += ContactDim
		}
	}
	return nil
}

// SetContactPlacement sets the world-frame contact position of candidate i.
// Only meaningful while the candidate is active.
func (cs *ContactStatus) SetContactPlacement(i int, p mat.Vector) error {
	if p.Len() != ContactDim {
		return fmt.Errorf("robot: contact placement must have size %d, got %d", ContactDim, p.Len())
	}
	cs.placements[i].CloneFromVec(p)
	return nil
}

// ContactPlacement returns the placement of candidate i.
func (cs *ContactStatus) ContactPlacement(i int) *mat.VecDense { return cs.placements[i] }

// SetFrictionCoefficient sets the friction coefficient of candidate i.
func (cs *ContactStatus) SetFrictionCoefficient(i int, mu float64) error {
	if mu <= 0 {
		return fmt.Errorf("robot: friction coefficient must be positive, got %f", mu)
	}
	cs.frictions[i] = mu
	return nil
}

// FrictionCoefficient returns the friction coefficient of candidate i.
func (cs *ContactStatus) FrictionCoefficient(i int) float64 { return cs.frictions[i] }

// Clone returns a deep copy.
func (cs *ContactStatus) Clone() *ContactStatus {
	c := NewContactStatus(len(cs.isActive))
	for i := range cs.isActive {
		if cs.isActive[i] {
			c.Activate(i)
		}
		c.placements[i].CloneFromVec(cs.placements[i])
		c.frictions[i] = cs.frictions[i]
	}
	return c
}

// Equals reports whether the two statuses activate the same candidates.
func (cs *ContactStatus) Equals(other *ContactStatus) bool {
	if len(cs.isActive) != len(other.isActive) {
		return false
	}
	for i := range cs.isActive {
		if cs.isActive[i] != other.isActive[i] {
			return false
		}
	}
	return true
}
