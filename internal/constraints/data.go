package constraints

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Data holds the interior-point variables of one constraint component at one
// stage: slack, dual, primal residual, complementarity, and the Newton
// directions. Allocated once per (stage, component) pair; the values persist
// across solver iterations and are warm-started.
type Data struct {
	Slack, Dual        *mat.VecDense
	Residual, Cmpl     *mat.VecDense
	Dslack, Ddual      *mat.VecDense
	Cond               *mat.VecDense
	LogBarrierValue    float64
	// Extra holds component-specific scratch allocated by AllocateExtraData.
	Extra []*mat.VecDense

	dimc int
}

// NewData allocates the vectors of a component with dimc rows, with slack
// and dual initialized to the barrier parameter.
func NewData(dimc int, barrier float64) *Data {
	d := &Data{
		Slack:    mat.NewVecDense(dimc, nil),
		Dual:     mat.NewVecDense(dimc, nil),
		Residual: mat.NewVecDense(dimc, nil),
		Cmpl:     mat.NewVecDense(dimc, nil),
		Dslack:   mat.NewVecDense(dimc, nil),
		Ddual:    mat.NewVecDense(dimc, nil),
		Cond:     mat.NewVecDense(dimc, nil),
		dimc:     dimc,
	}
	for i := 0; i < dimc; i++ {
		d.Slack.SetVec(i, barrier)
		d.Dual.SetVec(i, barrier)
	}
	return d
}

// Dimc returns the number of constraint rows.
func (d *Data) Dimc() int { return d.dimc }

// KKTError returns the squared norms of the primal residual and the
// complementarity residual.
func (d *Data) KKTError() float64 {
	return mat.Dot(d.Residual, d.Residual) + mat.Dot(d.Cmpl, d.Cmpl)
}

// PrimalFeasibility returns the l1 norm of the primal residual.
func (d *Data) PrimalFeasibility() float64 {
	sum := 0.0
	for i := 0; i < d.dimc; i++ {
		sum += math.Abs(d.Residual.AtVec(i))
	}
	return sum
}

// UpdateSlack advances the slack by stepSize along its direction.
func (d *Data) UpdateSlack(stepSize float64) {
	d.Slack.AddScaledVec(d.Slack, stepSize, d.Dslack)
}

// UpdateDual advances the dual by stepSize along its direction.
func (d *Data) UpdateDual(stepSize float64) {
	d.Dual.AddScaledVec(d.Dual, stepSize, d.Ddual)
}

// CopySlackAndDual copies the warm-start state from another data object.
func (d *Data) CopySlackAndDual(other *Data) {
	d.Slack.CloneFromVec(other.Slack)
	d.Dual.CloneFromVec(other.Dual)
}

// ResetDirections zeroes the slack and dual directions. Entries whose
// constraint rows are inactive at the current contact mode keep zero
// directions and therefore never limit the step size.
func (d *Data) ResetDirections() {
	d.Dslack.Zero()
	d.Ddual.Zero()
}

// StageData groups the per-component Data of one stage by kinematics level.
// Which levels are valid depends on the stage position, mirroring which
// derivatives are meaningful there: position-level rows need two backward
// differences, so they activate from stage 2 on, velocity-level rows from
// stage 1, and impulse stages use only the impulse-level set.
type StageData struct {
	Position     []*Data
	Velocity     []*Data
	Acceleration []*Data
	Impulse      []*Data

	positionValid, velocityValid, accelerationValid, impulseValid bool
}

// NewStageData creates the grouping for the given time stage; negative time
// stages denote impulse stages.
func NewStageData(timeStage int) *StageData {
	sd := &StageData{}
	sd.SetTimeStage(timeStage)
	return sd
}

// SetTimeStage sets which kinematics levels are valid.
func (sd *StageData) SetTimeStage(timeStage int) {
	switch {
	case timeStage >= 2:
		sd.positionValid, sd.velocityValid, sd.accelerationValid, sd.impulseValid = true, true, true, false
	case timeStage == 1:
		sd.positionValid, sd.velocityValid, sd.accelerationValid, sd.impulseValid = false, true, true, false
	case timeStage == 0:
		sd.positionValid, sd.velocityValid, sd.accelerationValid, sd.impulseValid = false, false, true, false
	default:
		sd.positionValid, sd.velocityValid, sd.accelerationValid, sd.impulseValid = false, false, false, true
	}
}

// IsPositionLevelValid reports whether position-level rows are active.
func (sd *StageData) IsPositionLevelValid() bool { return sd.positionValid }

// IsVelocityLevelValid reports whether velocity-level rows are active.
func (sd *StageData) IsVelocityLevelValid() bool { return sd.velocityValid }

// IsAccelerationLevelValid reports whether acceleration-level rows are active.
func (sd *StageData) IsAccelerationLevelValid() bool { return sd.accelerationValid }

// IsImpulseLevelValid reports whether impulse-level rows are active.
func (sd *StageData) IsImpulseLevelValid() bool { return sd.impulseValid }

// forEachValid visits the Data of every valid level.
func (sd *StageData) forEachValid(fn func(*Data)) {
	if sd.positionValid {
		for _, d := range sd.Position {
			fn(d)
		}
	}
	if sd.velocityValid {
		for _, d := range sd.Velocity {
			fn(d)
		}
	}
	if sd.accelerationValid {
		for _, d := range sd.Acceleration {
			fn(d)
		}
	}
	if sd.impulseValid {
		for _, d := range sd.Impulse {
			fn(d)
		}
	}
}

// KKTError sums the KKT error over the valid levels.
func (sd *StageData) KKTError() float64 {
	sum := 0.0
	sd.forEachValid(func(d *Data) { sum += d.KKTError() })
	return sum
}

// LogBarrier sums the log-barrier values over the valid levels.
func (sd *StageData) LogBarrier() float64 {
	sum := 0.0
	sd.forEachValid(func(d *Data) { sum += d.LogBarrierValue })
	return sum
}

// PrimalFeasibility sums the l1 primal infeasibility over the valid levels.
func (sd *StageData) PrimalFeasibility() float64 {
	sum := 0.0
	sd.forEachValid(func(d *Data) { sum += d.PrimalFeasibility() })
	return sum
}

// CopySlackAndDual copies the warm-start state of every valid level.
func (sd *StageData) CopySlackAndDual(other *StageData) {
	copyAll := func(dst, src []*Data) {
		for i := range dst {
			dst[i].CopySlackAndDual(src[i])
		}
	}
	if sd.positionValid {
		copyAll(sd.Position, other.Position)
	}
	if sd.velocityValid {
		copyAll(sd.Velocity, other.Velocity)
	}
	if sd.accelerationValid {
		copyAll(sd.Acceleration, other.Acceleration)
	}
	if sd.impulseValid {
		copyAll(sd.Impulse, other.Impulse)
	}
}
