// Package hybrid holds the event-driven structure of the horizon: the
// ordered contact-mode sequence and its projection onto a concrete time
// grid with impulse, lift, and auxiliary stages.
package hybrid

import (
	"fmt"

	"github.com/san-kum/trajopt/internal/robot"
)

// EventType classifies a discrete contact-mode change.
type EventType int

const (
	// EventImpulse marks a contact activation with a velocity-level impulse.
	EventImpulse EventType = iota
	// EventLift marks a contact deactivation.
	EventLift
	// EventSwitch marks a mode change with neither activation nor deactivation,
	// such as a placement or friction update.
	EventSwitch
)

func (e EventType) String() string {
	switch e {
	case EventImpulse:
		return "impulse"
	case EventLift:
		return "lift"
	default:
		return "switch"
	}
}

// discreteEvent is one mode change at a point in time.
type discreteEvent struct {
	eventType  EventType
	time       float64
	postStatus *robot.ContactStatus
	impulse    *robot.ImpulseStatus
	sto        bool
}

// ContactSequence is the ordered, time-stamped record of contact-mode
// changes over the horizon. It is created once per problem, extended with
// PushBack, and read (never mutated) by the discretization and the solver.
type ContactSequence struct {
	maxNumImpulse int
	initial       *robot.ContactStatus
	events        []*discreteEvent
	impulseEvents []int
	liftEvents    []int
}

// NewContactSequence creates a sequence holding at most maxNumImpulse
// impulse events and maxNumImpulse lift events.
func NewContactSequence(maxNumImpulse int, initial *robot.ContactStatus) (*ContactSequence, error) {
	if maxNumImpulse < 0 {
		return nil, fmt.Errorf("hybrid: max_num_impulse must be non-negative, got %d", maxNumImpulse)
	}
	cs := &ContactSequence{maxNumImpulse: maxNumImpulse}
	cs.Init(initial)
	return cs, nil
}

// Init resets the sequence to a single-mode horizon with the given status.
func (cs *ContactSequence) Init(initial *robot.ContactStatus) {
	cs.initial = initial.Clone()
	cs.events = cs.events[:0]
	cs.impulseEvents = cs.impulseEvents[:0]
	cs.liftEvents = cs.liftEvents[:0]
}

// PushBack appends a new contact mode starting at eventTime. The event kind
// is inferred by diffing status against the previous mode: any newly active
// contact makes it an impulse event, otherwise any newly inactive contact
// makes it a lift event, otherwise it is a pure switch. sto marks the event
// time as a decision variable for switching-time optimization.
func (cs *ContactSequence) PushBack(status *robot.ContactStatus, eventTime float64, sto bool) error {
	prev := cs.lastStatus()
	if prev.MaxNumContacts() != status.MaxNumContacts() {
		return fmt.Errorf("hybrid: contact status has %d candidates, sequence has %d",
			status.MaxNumContacts(), prev.MaxNumContacts())
	}
	if n := len(cs.events); n > 0 && eventTime <= cs.events[n-1].time {
		return fmt.Errorf("hybrid: event time %f must exceed previous event time %f",
			eventTime, cs.events[n-1].time)
	}

	ev := &discreteEvent{time: eventTime, postStatus: status.Clone(), sto: sto}
	activated := false
	deactivated := false
	impulse := robot.NewImpulseStatus(status.MaxNumContacts())
	for i := 0; i < status.MaxNumContacts(); i++ {
		if status.IsContactActive(i) && !prev.IsContactActive(i) {
			activated = true
			impulse.Activate(i)
			if err := impulse.SetContactPlacement(i, status.ContactPlacement(i)); err != nil {
				return err
			}
		}
		if !status.IsContactActive(i) && prev.IsContactActive(i) {
			deactivated = true
		}
	}
	switch {
	case activated:
		if len(cs.impulseEvents) >= cs.maxNumImpulse {
			return fmt.Errorf("hybrid: number of impulse events exceeds max_num_impulse %d", cs.maxNumImpulse)
		}
		ev.eventType = EventImpulse
		ev.impulse = impulse
		cs.impulseEvents = append(cs.impulseEvents, len(cs.events))
	case deactivated:
		if len(cs.liftEvents) >= cs.maxNumImpulse {
			return fmt.Errorf("hybrid: number of lift events exceeds max_num_impulse %d", cs.maxNumImpulse)
		}
		ev.eventType = EventLift
		cs.liftEvents = append(cs.liftEvents, len(cs.events))
	default:
		ev.eventType = EventSwitch
	}
	cs.events = append(cs.events, ev)
	return nil
}

func (cs *ContactSequence) lastStatus() *robot.ContactStatus {
	if len(cs.events) == 0 {
		return cs.initial
	}
	return cs.events[len(cs.events)-1].postStatus
}

// MaxNumImpulse returns the static bound on impulse (and lift) events.
func (cs *ContactSequence) MaxNumImpulse() int { return cs.maxNumImpulse }

// NumContactPhases returns the number of contact modes over the horizon.
func (cs *ContactSequence) NumContactPhases() int { return len(cs.events) + 1 }

// NumImpulseEvents returns the number of impulse events.
func (cs *ContactSequence) NumImpulseEvents() int { return len(cs.impulseEvents) }

// NumLiftEvents returns the number of lift events.
func (cs *ContactSequence) NumLiftEvents() int { return len(cs.liftEvents) }

// ContactStatus returns the status of contact phase p.
func (cs *ContactSequence) ContactStatus(phase int) *robot.ContactStatus {
	if phase == 0 {
		return cs.initial
	}
	return cs.events[phase-1].postStatus
}

// ImpulseStatus returns the impulse status of impulse event i.
func (cs *ContactSequence) ImpulseStatus(i int) *robot.ImpulseStatus {
	return cs.events[cs.impulseEvents[i]].impulse
}

// ImpulseTime returns the time of impulse event i.
func (cs *ContactSequence) ImpulseTime(i int) float64 {
	return cs.events[cs.impulseEvents[i]].time
}

// LiftTime returns the time of lift event i.
func (cs *ContactSequence) LiftTime(i int) float64 {
	return cs.events[cs.liftEvents[i]].time
}

// IsSTOEnabledImpulse reports whether impulse event i optimizes its time.
func (cs *ContactSequence) IsSTOEnabledImpulse(i int) bool {
	return cs.events[cs.impulseEvents[i]].sto
}

// IsSTOEnabledLift reports whether lift event i optimizes its time.
func (cs *ContactSequence) IsSTOEnabledLift(i int) bool {
	return cs.events[cs.liftEvents[i]].sto
}

// ContactPhaseAfterImpulse returns the phase index active after impulse i.
func (cs *ContactSequence) ContactPhaseAfterImpulse(i int) int {
	return cs.impulseEvents[i] + 1
}

// ContactPhaseAfterLift returns the phase index active after lift i.
func (cs *ContactSequence) ContactPhaseAfterLift(i int) int {
	return cs.liftEvents[i] + 1
}

// EventTimes returns the ordered event times, one per mode change.
func (cs *ContactSequence) EventTimes() []float64 {
	ts := make([]float64, len(cs.events))
	for i, ev := range cs.events {
		ts[i] = ev.time
	}
	return ts
}

// EventTypeAt returns the kind of event e.
func (cs *ContactSequence) EventTypeAt(e int) EventType { return cs.events[e].eventType }

// NumEvents returns the number of mode changes.
func (cs *ContactSequence) NumEvents() int { return len(cs.events) }
