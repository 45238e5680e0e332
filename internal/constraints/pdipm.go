// Package constraints implements the primal-dual interior-point handling of
// the inequality constraints: slack/dual bookkeeping per component, the
// fraction-to-boundary rule, condensation of slack and dual variables into
// the stage KKT blocks, and the concrete constraint components (joint
// limits, torque limits, friction cone).
package constraints

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SetSlackAndDualPositive clamps every slack and dual entry to at least the
// barrier parameter.
func SetSlackAndDualPositive(barrier float64, data *Data) {
	for i := 0; i < data.dimc; i++ {
		if data.Slack.AtVec(i) < barrier {
			data.Slack.SetVec(i, barrier)
		}
		if data.Dual.AtVec(i) < barrier {
			data.Dual.SetVec(i, barrier)
		}
	}
}

// ComputeComplementarySlackness fills data.Cmpl with slack*dual - barrier.
func ComputeComplementarySlackness(barrier float64, data *Data) {
	for i := 0; i < data.dimc; i++ {
		data.Cmpl.SetVec(i, data.Slack.AtVec(i)*data.Dual.AtVec(i)-barrier)
	}
}

// ComplementarySlackness returns slack*dual - barrier for one entry.
func ComplementarySlackness(barrier, slack, dual float64) float64 {
	return slack*dual - barrier
}

// FractionToBoundary returns the largest step in (0, 1] such that
// vec + step*dvec keeps every component at least (1-rate) of its value.
func FractionToBoundary(rate float64, vec, dvec *mat.VecDense) float64 {
	step := 1.0
	for i := 0; i < vec.Len(); i++ {
		d := dvec.AtVec(i)
		if d < 0 {
			candidate := -rate * vec.AtVec(i) / d
			if candidate < step {
				step = candidate
			}
		}
	}
	return step
}

// FractionToBoundarySlack applies the rule to the slack direction.
func FractionToBoundarySlack(rate float64, data *Data) float64 {
	return FractionToBoundary(rate, data.Slack, data.Dslack)
}

// FractionToBoundaryDual applies the rule to the dual direction.
func FractionToBoundaryDual(rate float64, data *Data) float64 {
	return FractionToBoundary(rate, data.Dual, data.Ddual)
}

// ComputeDualDirection back-substitutes the slack direction into the dual
// direction: ddual = -(dual*dslack + cmpl) / slack elementwise.
func ComputeDualDirection(data *Data) {
	for i := 0; i < data.dimc; i++ {
		data.Ddual.SetVec(i,
			-(data.Dual.AtVec(i)*data.Dslack.AtVec(i)+data.Cmpl.AtVec(i))/data.Slack.AtVec(i))
	}
}

// DualDirection computes one entry of the dual direction.
func DualDirection(slack, dual, dslack, cmpl float64) float64 {
	return -(dual*dslack + cmpl) / slack
}

// CondensingCoefficient computes one entry of the condensed residual
// coefficient (dual*residual - cmpl) / slack.
func CondensingCoefficient(slack, dual, residual, cmpl float64) float64 {
	return (dual*residual - cmpl) / slack
}

// ComputeCondensingCoefficient fills data.Cond elementwise.
func ComputeCondensingCoefficient(data *Data) {
	for i := 0; i < data.dimc; i++ {
		data.Cond.SetVec(i, CondensingCoefficient(
			data.Slack.AtVec(i), data.Dual.AtVec(i),
			data.Residual.AtVec(i), data.Cmpl.AtVec(i)))
	}
}

// LogBarrier returns -barrier * sum(log(slack)).
func LogBarrier(barrier float64, slack *mat.VecDense) float64 {
	sum := 0.0
	for i := 0; i < slack.Len(); i++ {
		sum += math.Log(slack.AtVec(i))
	}
	return -barrier * sum
}
