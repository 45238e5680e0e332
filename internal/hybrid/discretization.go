package hybrid

import (
	"fmt"
	"math"
)

// DefaultMinTimeStep is the smallest stage duration the discretization will
// produce. Events closer than this to a grid point are pushed inward so that
// no stage collapses to zero length; see Discretize.
const DefaultMinTimeStep = 1.0e-6

// Discretization maps a continuous horizon [t, t+T] and a ContactSequence
// onto a concrete stage plan: N regular grid stages plus one impulse and one
// auxiliary stage per impulse event and one lift stage per lift event. It is
// recomputed from scratch by every Discretize call and read-only between
// calls.
type Discretization struct {
	horizon     float64
	numStages   int
	maxNumEvent int
	minTimeStep float64

	t  []float64 // grid times, len N+1
	dt []float64 // grid stage durations, len N

	contactPhase []int // len N+1

	isStageBeforeImpulse []bool
	impulseIndexAfter    []int
	isStageBeforeLift    []bool
	liftIndexAfter       []int

	numImpulse, numLift    int
	timeImpulse, timeLift  []float64
	dtAux, dtLift          []float64
	stageBeforeImpulse     []int
	stageBeforeLift        []int
	stoImpulse, stoLift    []bool
	phaseAfterImpulse      []int
	phaseAfterLift         []int
}

// NewDiscretization creates a discretization of horizon length T with N
// regular grid stages and room for maxNumImpulse impulse and lift events.
func NewDiscretization(T float64, N, maxNumImpulse int) (*Discretization, error) {
	if T <= 0 {
		return nil, fmt.Errorf("hybrid: horizon length must be positive, got %f", T)
	}
	if N <= 0 {
		return nil, fmt.Errorf("hybrid: number of stages must be positive, got %d", N)
	}
	if maxNumImpulse < 0 {
		return nil, fmt.Errorf("hybrid: max_num_impulse must be non-negative, got %d", maxNumImpulse)
	}
	d := &Discretization{
		horizon:              T,
		numStages:            N,
		maxNumEvent:          maxNumImpulse,
		minTimeStep:          DefaultMinTimeStep,
		t:                    make([]float64, N+1),
		dt:                   make([]float64, N),
		contactPhase:         make([]int, N+1),
		isStageBeforeImpulse: make([]bool, N),
		impulseIndexAfter:    make([]int, N),
		isStageBeforeLift:    make([]bool, N),
		liftIndexAfter:       make([]int, N),
		timeImpulse:          make([]float64, 0, maxNumImpulse),
		timeLift:             make([]float64, 0, maxNumImpulse),
		dtAux:                make([]float64, 0, maxNumImpulse),
		dtLift:               make([]float64, 0, maxNumImpulse),
		stageBeforeImpulse:   make([]int, 0, maxNumImpulse),
		stageBeforeLift:      make([]int, 0, maxNumImpulse),
		stoImpulse:           make([]bool, 0, maxNumImpulse),
		stoLift:              make([]bool, 0, maxNumImpulse),
		phaseAfterImpulse:    make([]int, 0, maxNumImpulse),
		phaseAfterLift:       make([]int, 0, maxNumImpulse),
	}
	return d, nil
}

// SetMinTimeStep overrides the snapping epsilon. Must be positive and
// smaller than the nominal grid interval.
func (d *Discretization) SetMinTimeStep(eps float64) error {
	if eps <= 0 || eps >= d.horizon/float64(d.numStages) {
		return fmt.Errorf("hybrid: min time step %g out of range (0, %g)", eps, d.horizon/float64(d.numStages))
	}
	d.minTimeStep = eps
	return nil
}

// Discretize recomputes the stage plan for the horizon starting at absolute
// time t. Each event of cs with time inside (t, t+T) splits its enclosing
// grid interval: the grid stage keeps the duration up to the event, and the
// remainder becomes the auxiliary stage (impulse events) or the lift stage
// (lift events). Events closer than the minimum time step to a grid point
// are moved inward by exactly the minimum time step, so stage counts are
// stable against rounding. At most one event may fall inside one grid
// interval.
func (d *Discretization) Discretize(cs *ContactSequence, t float64) error {
	N := d.numStages
	dtNominal := d.horizon / float64(N)

	for i := 0; i <= N; i++ {
		d.t[i] = t + float64(i)*dtNominal
		d.contactPhase[i] = 0
	}
	for i := 0; i < N; i++ {
		d.dt[i] = dtNominal
		d.isStageBeforeImpulse[i] = false
		d.impulseIndexAfter[i] = -1
		d.isStageBeforeLift[i] = false
		d.liftIndexAfter[i] = -1
	}
	d.numImpulse, d.numLift = 0, 0
	d.timeImpulse = d.timeImpulse[:0]
	d.timeLift = d.timeLift[:0]
	d.dtAux = d.dtAux[:0]
	d.dtLift = d.dtLift[:0]
	d.stageBeforeImpulse = d.stageBeforeImpulse[:0]
	d.stageBeforeLift = d.stageBeforeLift[:0]
	d.stoImpulse = d.stoImpulse[:0]
	d.stoLift = d.stoLift[:0]
	d.phaseAfterImpulse = d.phaseAfterImpulse[:0]
	d.phaseAfterLift = d.phaseAfterLift[:0]

	eventStage := make(map[int]bool)
	phase := 0
	for e := 0; e < cs.NumEvents(); e++ {
		te := eventTime(cs, e)
		if te <= t || te >= t+d.horizon {
			continue
		}
		k := int(math.Floor((te - t) / dtNominal))
		if k >= N {
			k = N - 1
		}
		// Snap inward so neither sub-interval degenerates.
		tk := d.t[k]
		tk1 := tk + dtNominal
		if te-tk < d.minTimeStep {
			te = tk + d.minTimeStep
		}
		if tk1-te < d.minTimeStep {
			te = tk1 - d.minTimeStep
		}

		switch cs.EventTypeAt(e) {
		case EventSwitch:
			// A pure switch changes the contact phase at the next grid point
			// without inserting a stage.
			phase++
			for i := k + 1; i <= N; i++ {
				d.contactPhase[i] = phase
			}
			continue
		case EventImpulse, EventLift:
			if eventStage[k] {
				return fmt.Errorf("hybrid: two events inside grid interval %d; increase N or T", k)
			}
			eventStage[k] = true
		}

		phase++
		for i := k + 1; i <= N; i++ {
			d.contactPhase[i] = phase
		}
		if cs.EventTypeAt(e) == EventImpulse {
			if d.numImpulse >= d.maxNumEvent {
				return fmt.Errorf("hybrid: impulse events in horizon exceed max_num_impulse %d", d.maxNumEvent)
			}
			idx := d.numImpulse
			d.numImpulse++
			d.dt[k] = te - tk
			d.isStageBeforeImpulse[k] = true
			d.impulseIndexAfter[k] = idx
			d.timeImpulse = append(d.timeImpulse, te)
			d.dtAux = append(d.dtAux, tk1-te)
			d.stageBeforeImpulse = append(d.stageBeforeImpulse, k)
			d.stoImpulse = append(d.stoImpulse, isSTOEnabledEvent(cs, e))
			d.phaseAfterImpulse = append(d.phaseAfterImpulse, phase)
		} else {
			if d.numLift >= d.maxNumEvent {
				return fmt.Errorf("hybrid: lift events in horizon exceed max_num_impulse %d", d.maxNumEvent)
			}
			idx := d.numLift
			d.numLift++
			d.dt[k] = te - tk
			d.isStageBeforeLift[k] = true
			d.liftIndexAfter[k] = idx
			d.timeLift = append(d.timeLift, te)
			d.dtLift = append(d.dtLift, tk1-te)
			d.stageBeforeLift = append(d.stageBeforeLift, k)
			d.stoLift = append(d.stoLift, isSTOEnabledEvent(cs, e))
			d.phaseAfterLift = append(d.phaseAfterLift, phase)
		}
	}
	return nil
}

func eventTime(cs *ContactSequence, e int) float64   { return cs.events[e].time }
func isSTOEnabledEvent(cs *ContactSequence, e int) bool { return cs.events[e].sto }

// N returns the number of regular grid stages.
func (d *Discretization) N() int { return d.numStages }

// T returns the horizon length.
func (d *Discretization) T() float64 { return d.horizon }

// NumImpulseStages returns the number of impulse stages in the current plan.
func (d *Discretization) NumImpulseStages() int { return d.numImpulse }

// NumLiftStages returns the number of lift stages in the current plan.
func (d *Discretization) NumLiftStages() int { return d.numLift }

// MaxNumImpulse returns the static event bound.
func (d *Discretization) MaxNumImpulse() int { return d.maxNumEvent }

// Time returns the nominal time of grid point i.
func (d *Discretization) Time(i int) float64 { return d.t[i] }

// Dt returns the duration of grid stage i.
func (d *Discretization) Dt(i int) float64 { return d.dt[i] }

// ContactPhase returns the contact phase of grid stage i.
func (d *Discretization) ContactPhase(i int) int { return d.contactPhase[i] }

// IsStageBeforeImpulse reports whether grid stage i ends at an impulse.
func (d *Discretization) IsStageBeforeImpulse(i int) bool { return d.isStageBeforeImpulse[i] }

// ImpulseIndexAfterStage returns the impulse index following grid stage i,
// or -1.
func (d *Discretization) ImpulseIndexAfterStage(i int) int { return d.impulseIndexAfter[i] }

// IsStageBeforeLift reports whether grid stage i ends at a lift.
func (d *Discretization) IsStageBeforeLift(i int) bool { return d.isStageBeforeLift[i] }

// LiftIndexAfterStage returns the lift index following grid stage i, or -1.
func (d *Discretization) LiftIndexAfterStage(i int) int { return d.liftIndexAfter[i] }

// TimeImpulse returns the time of impulse stage i.
func (d *Discretization) TimeImpulse(i int) float64 { return d.timeImpulse[i] }

// TimeLift returns the time of lift stage i.
func (d *Discretization) TimeLift(i int) float64 { return d.timeLift[i] }

// DtAux returns the duration of the auxiliary stage after impulse i.
func (d *Discretization) DtAux(i int) float64 { return d.dtAux[i] }

// DtLift returns the duration of lift stage i.
func (d *Discretization) DtLift(i int) float64 { return d.dtLift[i] }

// StageBeforeImpulse returns the grid stage preceding impulse i.
func (d *Discretization) StageBeforeImpulse(i int) int { return d.stageBeforeImpulse[i] }

// StageAfterImpulse returns the grid stage following impulse i.
func (d *Discretization) StageAfterImpulse(i int) int { return d.stageBeforeImpulse[i] + 1 }

// StageBeforeLift returns the grid stage preceding lift i.
func (d *Discretization) StageBeforeLift(i int) int { return d.stageBeforeLift[i] }

// StageAfterLift returns the grid stage following lift i.
func (d *Discretization) StageAfterLift(i int) int { return d.stageBeforeLift[i] + 1 }

// IsSTOEnabledImpulse reports whether impulse i optimizes its time.
func (d *Discretization) IsSTOEnabledImpulse(i int) bool { return d.stoImpulse[i] }

// IsSTOEnabledLift reports whether lift i optimizes its time.
func (d *Discretization) IsSTOEnabledLift(i int) bool { return d.stoLift[i] }

// ContactPhaseAfterImpulse returns the phase entered at impulse i.
func (d *Discretization) ContactPhaseAfterImpulse(i int) int { return d.phaseAfterImpulse[i] }

// ContactPhaseAfterLift returns the phase entered at lift i.
func (d *Discretization) ContactPhaseAfterLift(i int) int { return d.phaseAfterLift[i] }
