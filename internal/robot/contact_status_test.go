package robot

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestContactStatusActivation(t *testing.T) {
	cs := NewContactStatus(4)
	if cs.HasActiveContacts() {
		t.Error("new status should have no active contacts")
	}
	if cs.Dimf() != 0 {
		t.Errorf("dimf = %d, want 0", cs.Dimf())
	}

	cs.Activate(1)
	cs.Activate(3)
	if got := cs.Dimf(); got != 2*ContactDim {
		t.Errorf("dimf = %d, want %d", got, 2*ContactDim)
	}
	if !cs.IsContactActive(1) || !cs.IsContactActive(3) {
		t.Error("contacts 1 and 3 should be active")
	}
	if cs.IsContactActive(0) || cs.IsContactActive(2) {
		t.Error("contacts 0 and 2 should be inactive")
	}

	// Activating twice does not double-count the force dimension.
	cs.Activate(1)
	if got := cs.Dimf(); got != 2*ContactDim {
		t.Errorf("dimf after repeated activate = %d, want %d", got, 2*ContactDim)
	}

	cs.Deactivate(3)
	if got := cs.Dimf(); got != ContactDim {
		t.Errorf("dimf after deactivate = %d, want %d", got, ContactDim)
	}
	cs.Deactivate(3)
	if got := cs.Dimf(); got != ContactDim {
		t.Errorf("dimf after repeated deactivate = %d, want %d", got, ContactDim)
	}
}

func TestContactStatusSetActivity(t *testing.T) {
	cs := NewContactStatus(3)
	if err := cs.SetActivity([]bool{true, false, true}); err != nil {
		t.Fatal(err)
	}
	if got := cs.Dimf(); got != 2*ContactDim {
		t.Errorf("dimf = %d, want %d", got, 2*ContactDim)
	}
	if err := cs.SetActivity([]bool{true, false}); err == nil {
		t.Error("size mismatch should be rejected")
	}
}

func TestContactStatusPlacementAndFriction(t *testing.T) {
	cs := NewContactStatus(2)
	p := mat.NewVecDense(ContactDim, []float64{0.1, -0.2, 0.0})
	if err := cs.SetContactPlacement(0, p); err != nil {
		t.Fatal(err)
	}
	got := cs.ContactPlacement(0)
	for k := 0; k < ContactDim; k++ {
		if got.AtVec(k) != p.AtVec(k) {
			t.Errorf("placement[%d] = %g, want %g", k, got.AtVec(k), p.AtVec(k))
		}
	}
	if err := cs.SetContactPlacement(0, mat.NewVecDense(2, nil)); err == nil {
		t.Error("wrong placement size should be rejected")
	}

	if err := cs.SetFrictionCoefficient(1, 0.5); err != nil {
		t.Fatal(err)
	}
	if got := cs.FrictionCoefficient(1); got != 0.5 {
		t.Errorf("friction = %g, want 0.5", got)
	}
	if err := cs.SetFrictionCoefficient(1, -0.1); err == nil {
		t.Error("negative friction should be rejected")
	}
}

func TestContactStatusCloneIsDeep(t *testing.T) {
	cs := NewContactStatus(2)
	cs.Activate(0)
	if err := cs.SetContactPlacement(0, mat.NewVecDense(ContactDim, []float64{1, 2, 3})); err != nil {
		t.Fatal(err)
	}
	c := cs.Clone()
	if !c.Equals(cs) {
		t.Fatal("clone should equal the original")
	}
	c.Deactivate(0)
	if !cs.IsContactActive(0) {
		t.Error("mutating the clone changed the original")
	}
	c.ContactPlacement(0).SetVec(0, 9)
	if cs.ContactPlacement(0).AtVec(0) != 1 {
		t.Error("clone shares placement storage with the original")
	}
}

func TestImpulseStatusMirrorsContactStatus(t *testing.T) {
	is := NewImpulseStatus(3)
	if is.HasActiveImpulse() {
		t.Error("new impulse status should be empty")
	}
	is.Activate(2)
	if !is.IsImpulseActive(2) {
		t.Error("impulse 2 should be active")
	}
	if got := is.Dimi(); got != ContactDim {
		t.Errorf("dimi = %d, want %d", got, ContactDim)
	}
	c := is.Clone()
	c.Deactivate(2)
	if !is.IsImpulseActive(2) {
		t.Error("mutating the clone changed the original")
	}
}
