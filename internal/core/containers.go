package core

import "github.com/san-kum/trajopt/internal/robot"

// Solution owns every stage's SplitSolution over the horizon: grid stages
// 0..N, plus impulse, auxiliary, and lift stages up to the event bound.
type Solution struct {
	Grid    []*SplitSolution
	Impulse []*SplitSolution
	Aux     []*SplitSolution
	Lift    []*SplitSolution
}

// NewSolution allocates the container for N grid stages and maxNumImpulse
// impulse/lift events.
func NewSolution(rb robot.Robot, N, maxNumImpulse int) *Solution {
	s := &Solution{
		Grid:    make([]*SplitSolution, N+1),
		Impulse: make([]*SplitSolution, maxNumImpulse),
		Aux:     make([]*SplitSolution, maxNumImpulse),
		Lift:    make([]*SplitSolution, maxNumImpulse),
	}
	for i := range s.Grid {
		s.Grid[i] = NewSplitSolution(rb)
	}
	for i := 0; i < maxNumImpulse; i++ {
		s.Impulse[i] = NewSplitSolution(rb)
		s.Aux[i] = NewSplitSolution(rb)
		s.Lift[i] = NewSplitSolution(rb)
	}
	return s
}

// Direction owns every stage's SplitDirection, indexed like Solution.
type Direction struct {
	Grid    []*SplitDirection
	Impulse []*SplitDirection
	Aux     []*SplitDirection
	Lift    []*SplitDirection
}

// NewDirection allocates the container, indexed like NewSolution.
func NewDirection(rb robot.Robot, N, maxNumImpulse int) *Direction {
	d := &Direction{
		Grid:    make([]*SplitDirection, N+1),
		Impulse: make([]*SplitDirection, maxNumImpulse),
		Aux:     make([]*SplitDirection, maxNumImpulse),
		Lift:    make([]*SplitDirection, maxNumImpulse),
	}
	for i := range d.Grid {
		d.Grid[i] = NewSplitDirection(rb)
	}
	for i := 0; i < maxNumImpulse; i++ {
		d.Impulse[i] = NewSplitDirection(rb)
		d.Aux[i] = NewSplitDirection(rb)
		d.Lift[i] = NewSplitDirection(rb)
	}
	return d
}

// KKTMatrix owns every stage's SplitKKTMatrix, indexed like Solution.
type KKTMatrix struct {
	Grid    []*SplitKKTMatrix
	Impulse []*SplitKKTMatrix
	Aux     []*SplitKKTMatrix
	Lift    []*SplitKKTMatrix
}

// NewKKTMatrix allocates the container, indexed like NewSolution.
func NewKKTMatrix(rb robot.Robot, N, maxNumImpulse int) *KKTMatrix {
	m := &KKTMatrix{
		Grid:    make([]*SplitKKTMatrix, N+1),
		Impulse: make([]*SplitKKTMatrix, maxNumImpulse),
		Aux:     make([]*SplitKKTMatrix, maxNumImpulse),
		Lift:    make([]*SplitKKTMatrix, maxNumImpulse),
	}
	for i := range m.Grid {
		m.Grid[i] = NewSplitKKTMatrix(rb)
	}
	for i := 0; i < maxNumImpulse; i++ {
		m.Impulse[i] = NewSplitKKTMatrix(rb)
		m.Aux[i] = NewSplitKKTMatrix(rb)
		m.Lift[i] = NewSplitKKTMatrix(rb)
	}
	return m
}

// KKTResidual owns every stage's SplitKKTResidual, indexed like Solution.
type KKTResidual struct {
	Grid    []*SplitKKTResidual
	Impulse []*SplitKKTResidual
	Aux     []*SplitKKTResidual
	Lift    []*SplitKKTResidual
}

// NewKKTResidual allocates the container, indexed like NewSolution.
func NewKKTResidual(rb robot.Robot, N, maxNumImpulse int) *KKTResidual {
	r := &KKTResidual{
		Grid:    make([]*SplitKKTResidual, N+1),
		Impulse: make([]*SplitKKTResidual, maxNumImpulse),
		Aux:     make([]*SplitKKTResidual, maxNumImpulse),
		Lift:    make([]*SplitKKTResidual, maxNumImpulse),
	}
	for i := range r.Grid {
		r.Grid[i] = NewSplitKKTResidual(rb)
	}
	for i := 0; i < maxNumImpulse; i++ {
		r.Impulse[i] = NewSplitKKTResidual(rb)
		r.Aux[i] = NewSplitKKTResidual(rb)
		r.Lift[i] = NewSplitKKTResidual(rb)
	}
	return r
}
