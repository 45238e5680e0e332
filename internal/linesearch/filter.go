// Package linesearch selects the primal step size with a filter method. A
// trial step is accepted when its (cost, constraint violation) pair is not
// dominated by any previously accepted pair.
package linesearch

import "fmt"

type filterEntry struct {
	cost      float64
	violation float64
}

// Filter keeps the Pareto frontier of accepted (cost, violation) pairs.
type Filter struct {
	entries                []filterEntry
	costReductionRate      float64
	violationReductionRate float64
}

// NewFilter returns an empty filter with the default envelope margins.
func NewFilter() *Filter {
	return &Filter{
		costReductionRate:      0.005,
		violationReductionRate: 0.005,
	}
}

// IsAccepted reports whether the pair improves on at least one coordinate of
// every entry in the filter.
func (f *Filter) IsAccepted(cost, violation float64) bool {
	for _, e := range f.entries {
		if cost >= e.cost && violation >= e.violation {
			return false
		}
	}
	return true
}

// Augment inserts the pair, shrunk by the envelope margins, and drops the
// entries it dominates.
func (f *Filter) Augment(cost, violation float64) {
	kept := f.entries[:0]
	for _, e := range f.entries {
		if e.cost < cost || e.violation < violation {
			kept = append(kept, e)
		}
	}
	f.entries = append(kept, filterEntry{
		cost:      cost - f.costReductionRate*violation,
		violation: (1.0 - f.violationReductionRate) * violation,
	})
}

// Clear empties the filter.
func (f *Filter) Clear() { f.entries = f.entries[:0] }

// Size returns the number of entries.
func (f *Filter) Size() int { return len(f.entries) }

// IsEmpty reports whether the filter holds no entries.
func (f *Filter) IsEmpty() bool { return len(f.entries) == 0 }

func validRate(name string, rate float64) error {
	if rate <= 0 || rate >= 1 {
		return fmt.Errorf("linesearch: %s must be in (0, 1), got %g", name, rate)
	}
	return nil
}
