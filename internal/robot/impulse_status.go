package robot

import "gonum.org/v1/gonum/mat"

// ImpulseStatus records which contacts undergo a velocity-level impulse at a
// contact-activation event. It carries the same per-contact data as a
// ContactStatus restricted to the newly activated contacts.
type ImpulseStatus struct {
	status *ContactStatus
}

// NewImpulseStatus creates an impulse status over maxPointContacts
// candidates, all inactive.
func NewImpulseStatus(maxPointContacts int) *ImpulseStatus {
	return &ImpulseStatus{status: NewContactStatus(maxPointContacts)}
}

// MaxNumContacts returns the number of contact candidates.
func (is *ImpulseStatus) MaxNumContacts() int { return is.status.MaxNumContacts() }

// IsImpulseActive reports whether candidate i has an active impulse.
func (is *ImpulseStatus) IsImpulseActive(i int) bool { return is.status.IsContactActive(i) }

// HasActiveImpulse reports whether any impulse is active.
func (is *ImpulseStatus) HasActiveImpulse() bool { return is.status.HasActiveContacts() }

// Dimi returns the stacked impulse-force dimension.
func (is *ImpulseStatus) Dimi() int { return is.status.Dimf() }

// Activate marks candidate i as impacting.
func (is *ImpulseStatus) Activate(i int) { is.status.Activate(i) }

// Deactivate clears candidate i.
func (is *ImpulseStatus) Deactivate(i int) { is.status.Deactivate(i) }

// SetContactPlacement sets the expected landing position of candidate i.
func (is *ImpulseStatus) SetContactPlacement(i int, p mat.Vector) error {
	return is.status.SetContactPlacement(i, p)
}

// ContactPlacement returns the landing position of candidate i.
func (is *ImpulseStatus) ContactPlacement(i int) *mat.VecDense {
	return is.status.ContactPlacement(i)
}

// ContactStatus exposes the underlying activation set, used by kinematics
// queries shared with regular contacts.
func (is *ImpulseStatus) ContactStatus() *ContactStatus { return is.status }

// Clone returns a deep copy.
func (is *ImpulseStatus) Clone() *ImpulseStatus {
	return &ImpulseStatus{status: is.status.Clone()}
}
