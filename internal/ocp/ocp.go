package ocp

import (
	"fmt"

	"github.com/san-kum/trajopt/internal/constraints"
	"github.com/san-kum/trajopt/internal/cost"
	"github.com/san-kum/trajopt/internal/hybrid"
	"github.com/san-kum/trajopt/internal/robot"
)

// OCP owns the per-stage subproblems over one horizon together with the
// discretization that maps them onto the contact sequence. Impulse events
// insert an impulse stage and an auxiliary stage; lift events insert a lift
// stage. The containers are sized for the event bound up front so that
// re-discretization never allocates.
type OCP struct {
	Stages   []*SplitOCP
	Terminal *TerminalOCP
	Impulse  []*ImpulseSplitOCP
	Aux      []*SplitOCP
	Lift     []*SplitOCP

	disc          *hybrid.Discretization
	n             int
	maxNumImpulse int
}

// NewOCP creates the subproblems of a horizon of length T split into N
// stages, with room for maxNumImpulse impulse and lift events.
func NewOCP(rb robot.Robot, cf *cost.CostFunction, cons *constraints.Constraints, T float64, N, maxNumImpulse int) (*OCP, error) {
	if cf == nil || cons == nil {
		return nil, fmt.Errorf("ocp: cost and constraints must be non-nil")
	}
	disc, err := hybrid.NewDiscretization(T, N, maxNumImpulse)
	if err != nil {
		return nil, err
	}
	o := &OCP{
		Stages:        make([]*SplitOCP, N),
		Terminal:      NewTerminalOCP(rb, cf),
		Impulse:       make([]*ImpulseSplitOCP, maxNumImpulse),
		Aux:           make([]*SplitOCP, maxNumImpulse),
		Lift:          make([]*SplitOCP, maxNumImpulse),
		disc:          disc,
		n:             N,
		maxNumImpulse: maxNumImpulse,
	}
	for i := 0; i < N; i++ {
		o.Stages[i] = NewSplitOCP(rb, cf, cons, i)
	}
	for i := 0; i < maxNumImpulse; i++ {
		o.Impulse[i] = NewImpulseSplitOCP(rb, cf, cons)
		o.Aux[i] = NewSplitOCP(rb, cf, cons, 0)
		o.Lift[i] = NewSplitOCP(rb, cf, cons, 0)
	}
	return o, nil
}

// Discretization returns the stage plan of the last Discretize call.
func (o *OCP) Discretization() *hybrid.Discretization { return o.disc }

// N returns the number of regular grid stages.
func (o *OCP) N() int { return o.n }

// MaxNumImpulse returns the event capacity.
func (o *OCP) MaxNumImpulse() int { return o.maxNumImpulse }

// Discretize recomputes the stage plan for the contact sequence at time t.
func (o *OCP) Discretize(cs *hybrid.ContactSequence, t float64) error {
	return o.disc.Discretize(cs, t)
}
