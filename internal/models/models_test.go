package models

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/robot"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// finiteDiffCheck compares an analytic Jacobian column against a central
// difference of f along coordinate j.
func finiteDiffCheck(t *testing.T, name string, jac *mat.Dense, x *mat.VecDense, j int,
	f func(x mat.Vector, out *mat.VecDense)) {
	t.Helper()
	const h = 1.0e-6
	n, _ := jac.Dims()
	plus := mat.NewVecDense(n, nil)
	minus := mat.NewVecDense(n, nil)
	xp := mat.VecDenseCopyOf(x)
	xm := mat.VecDenseCopyOf(x)
	xp.SetVec(j, x.AtVec(j)+h)
	xm.SetVec(j, x.AtVec(j)-h)
	f(xp, plus)
	f(xm, minus)
	for i := 0; i < n; i++ {
		fd := (plus.AtVec(i) - minus.AtVec(i)) / (2 * h)
		if !almostEqual(jac.At(i, j), fd, 1.0e-5) {
			t.Errorf("%s[%d][%d] = %g, finite difference %g", name, i, j, jac.At(i, j), fd)
		}
	}
}

func TestChainRNEADerivatives(t *testing.T) {
	rb := NewChain(3)
	n := rb.Dimv()
	q := mat.NewVecDense(n, []float64{0.3, -0.7, 1.2})
	v := mat.NewVecDense(n, []float64{0.5, 0.0, -0.4})
	a := mat.NewVecDense(n, []float64{-1.0, 0.2, 0.8})

	dIDdq := mat.NewDense(n, n, nil)
	dIDdv := mat.NewDense(n, n, nil)
	dIDda := mat.NewDense(n, n, nil)
	rb.RNEADerivatives(q, v, a, dIDdq, dIDdv, dIDda)

	for j := 0; j < n; j++ {
		finiteDiffCheck(t, "dIDdq", dIDdq, q, j, func(x mat.Vector, out *mat.VecDense) {
			rb.RNEA(x, v, a, out)
		})
		finiteDiffCheck(t, "dIDdv", dIDdv, v, j, func(x mat.Vector, out *mat.VecDense) {
			rb.RNEA(q, x, a, out)
		})
		finiteDiffCheck(t, "dIDda", dIDda, a, j, func(x mat.Vector, out *mat.VecDense) {
			rb.RNEA(q, v, x, out)
		})
	}
}

func TestChainRNEAGravityTerm(t *testing.T) {
	rb := NewChain(1)
	q := mat.NewVecDense(1, []float64{math.Pi / 2})
	v := mat.NewVecDense(1, nil)
	a := mat.NewVecDense(1, nil)
	tau := mat.NewVecDense(1, nil)
	rb.RNEA(q, v, a, tau)
	want := rb.Mass * rb.Gravity * rb.Length
	if !almostEqual(tau.AtVec(0), want, 1.0e-12) {
		t.Errorf("holding torque at horizontal = %g, want %g", tau.AtVec(0), want)
	}
}

func TestPointFootRNEADerivatives(t *testing.T) {
	rb := NewPointFoot(2)
	n := rb.Dimv()
	q := mat.NewVecDense(n, nil)
	v := mat.NewVecDense(n, nil)
	a := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		q.SetVec(i, 0.1*float64(i)-0.3)
		v.SetVec(i, 0.05*float64(i))
		a.SetVec(i, -0.02*float64(i)+0.1)
	}

	dIDdq := mat.NewDense(n, n, nil)
	dIDdv := mat.NewDense(n, n, nil)
	dIDda := mat.NewDense(n, n, nil)
	rb.RNEADerivatives(q, v, a, dIDdq, dIDdv, dIDda)

	for j := 0; j < n; j++ {
		finiteDiffCheck(t, "dIDdq", dIDdq, q, j, func(x mat.Vector, out *mat.VecDense) {
			rb.RNEA(x, v, a, out)
		})
		finiteDiffCheck(t, "dIDda", dIDda, a, j, func(x mat.Vector, out *mat.VecDense) {
			rb.RNEA(q, v, x, out)
		})
	}
}

func TestPointFootContactForceEntersDynamics(t *testing.T) {
	rb := NewPointFoot(1)
	n := rb.Dimv()
	q := mat.NewVecDense(n, nil)
	v := mat.NewVecDense(n, nil)
	a := mat.NewVecDense(n, nil)

	status := robot.NewContactStatus(1)
	status.Activate(0)
	f := []*mat.VecDense{mat.NewVecDense(robot.ContactDim, []float64{1.0, 2.0, 3.0})}

	tauFree := mat.NewVecDense(n, nil)
	rb.SetContactForces(robot.NewContactStatus(1), nil)
	rb.RNEA(q, v, a, tauFree)

	tauContact := mat.NewVecDense(n, nil)
	rb.SetContactForces(status, f)
	rb.RNEA(q, v, a, tauContact)

	// J^T f subtracts the force from both the base and the foot coordinates.
	for k := 0; k < 3; k++ {
		if got := tauFree.AtVec(k) - tauContact.AtVec(k); !almostEqual(got, f[0].AtVec(k), 1.0e-12) {
			t.Errorf("base generalized force change[%d] = %g, want %g", k, got, f[0].AtVec(k))
		}
		if got := tauFree.AtVec(3+k) - tauContact.AtVec(3+k); !almostEqual(got, f[0].AtVec(k), 1.0e-12) {
			t.Errorf("foot generalized force change[%d] = %g, want %g", k, got, f[0].AtVec(k))
		}
	}
}

func TestPointFootBaumgarteResidualAtReference(t *testing.T) {
	rb := NewPointFoot(1)
	n := rb.Dimv()
	q := mat.NewVecDense(n, nil)
	q.SetVec(2, 0.5)  // base z
	q.SetVec(5, -0.5) // foot z offset, foot on the ground
	v := mat.NewVecDense(n, nil)
	a := mat.NewVecDense(n, nil)
	rb.UpdateKinematics(q, v, a)

	status := robot.NewContactStatus(1)
	status.Activate(0)
	pos := mat.NewVecDense(3, nil)
	rb.FramePosition(0, pos)
	if err := status.SetContactPlacement(0, pos); err != nil {
		t.Fatal(err)
	}

	res := mat.NewVecDense(status.Dimf(), nil)
	rb.ComputeBaumgarteResidual(status, res)
	for k := 0; k < status.Dimf(); k++ {
		if !almostEqual(res.AtVec(k), 0, 1.0e-12) {
			t.Errorf("residual[%d] = %g at the reference placement, want 0", k, res.AtVec(k))
		}
	}

	// A vertical base velocity shows up scaled by the velocity gain.
	v.SetVec(2, 0.1)
	rb.UpdateKinematics(q, v, a)
	rb.ComputeBaumgarteResidual(status, res)
	if want := rb.BaumgarteVel * 0.1; !almostEqual(res.AtVec(2), want, 1.0e-12) {
		t.Errorf("residual z = %g, want %g", res.AtVec(2), want)
	}
}

func TestPointFootImpulseVelocityResidual(t *testing.T) {
	rb := NewPointFoot(1)
	n := rb.Dimv()
	is := robot.NewImpulseStatus(1)
	is.Activate(0)

	v := mat.NewVecDense(n, nil)
	v.SetVec(2, -1.0) // base falling
	dv := mat.NewVecDense(n, nil)
	dv.SetVec(2, 1.0) // impulse stops the base

	res := mat.NewVecDense(is.Dimi(), nil)
	rb.ComputeImpulseVelocityResidual(is, v, dv, res)
	for k := 0; k < is.Dimi(); k++ {
		if !almostEqual(res.AtVec(k), 0, 1.0e-12) {
			t.Errorf("post-impulse contact velocity[%d] = %g, want 0", k, res.AtVec(k))
		}
	}
}

func TestComputeMJtJinvInvertsKKTBlock(t *testing.T) {
	rb := NewPointFoot(1)
	n := rb.Dimv()
	status := robot.NewContactStatus(1)
	status.Activate(0)
	dimf := status.Dimf()

	dIDdq := mat.NewDense(n, n, nil)
	dIDdv := mat.NewDense(n, n, nil)
	dIDda := mat.NewDense(n, n, nil)
	q := mat.NewVecDense(n, nil)
	v := mat.NewVecDense(n, nil)
	a := mat.NewVecDense(n, nil)
	rb.RNEADerivatives(q, v, a, dIDdq, dIDdv, dIDda)

	dCdq := mat.NewDense(dimf, n, nil)
	dCdv := mat.NewDense(dimf, n, nil)
	dCda := mat.NewDense(dimf, n, nil)
	rb.ComputeBaumgarteDerivatives(status, dCdq, dCdv, dCda)

	dim := n + dimf
	inv := mat.NewDense(dim, dim, nil)
	rb.ComputeMJtJinv(dIDda, dCda, inv)

	kkt := mat.NewDense(dim, dim, nil)
	kkt.Slice(0, n, 0, n).(*mat.Dense).Copy(dIDda)
	kkt.Slice(0, n, n, dim).(*mat.Dense).Copy(dCda.T())
	kkt.Slice(n, dim, 0, n).(*mat.Dense).Copy(dCda)

	prod := mat.NewDense(dim, dim, nil)
	prod.Mul(inv, kkt)
	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if !almostEqual(prod.At(i, j), want, 1.0e-9) {
				t.Errorf("(inv*kkt)[%d][%d] = %g, want %g", i, j, prod.At(i, j), want)
			}
		}
	}
}
