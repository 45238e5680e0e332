// Package solver drives the interior-point Newton iteration over the whole
// horizon: KKT assembly by direct multiple shooting, the Riccati direction,
// step-size selection, and the primal-dual update.
package solver

import "fmt"

// Default iteration parameters.
const (
	DefaultMaxIterations = 100
	DefaultKKTTolerance  = 1.0e-7
	DefaultNumThreads    = 1
)

// Options configures the solver iteration.
type Options struct {
	// Horizon is the length of the planning horizon in seconds.
	Horizon float64 `yaml:"horizon"`
	// NumStages is the number of shooting intervals.
	NumStages int `yaml:"num_stages"`
	// MaxIterations bounds the Newton iteration count per Solve call.
	MaxIterations int `yaml:"max_iterations"`
	// KKTTolerance is the convergence threshold on the KKT error.
	KKTTolerance float64 `yaml:"kkt_tolerance"`
	// NumThreads is the number of workers used for the parallel sweeps.
	NumThreads int `yaml:"num_threads"`
	// EnableLineSearch turns on the filter line search. When disabled the
	// fraction-to-boundary step size is taken directly.
	EnableLineSearch bool `yaml:"enable_line_search"`
	// LineSearchReductionRate is the backtracking factor of the line search.
	LineSearchReductionRate float64 `yaml:"line_search_reduction_rate"`
	// MinLineSearchStep is the smallest primal step the line search returns.
	MinLineSearchStep float64 `yaml:"min_line_search_step"`
}

// DefaultOptions returns the options used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		MaxIterations:           DefaultMaxIterations,
		KKTTolerance:            DefaultKKTTolerance,
		NumThreads:              DefaultNumThreads,
		EnableLineSearch:        false,
		LineSearchReductionRate: 0.75,
		MinLineSearchStep:       0.05,
	}
}

// Validate checks the option values. Horizon and NumStages must be set by
// the caller; the iteration parameters fall back to the defaults when zero.
func (o *Options) Validate() error {
	if o.Horizon <= 0 {
		return fmt.Errorf("solver: horizon must be positive, got %g", o.Horizon)
	}
	if o.NumStages <= 0 {
		return fmt.Errorf("solver: number of stages must be positive, got %d", o.NumStages)
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.MaxIterations < 0 {
		return fmt.Errorf("solver: maximum iterations must be positive, got %d", o.MaxIterations)
	}
	if o.KKTTolerance == 0 {
		o.KKTTolerance = DefaultKKTTolerance
	}
	if o.KKTTolerance < 0 {
		return fmt.Errorf("solver: KKT tolerance must be positive, got %g", o.KKTTolerance)
	}
	if o.NumThreads == 0 {
		o.NumThreads = DefaultNumThreads
	}
	if o.NumThreads < 0 {
		return fmt.Errorf("solver: number of threads must be positive, got %d", o.NumThreads)
	}
	if o.LineSearchReductionRate == 0 {
		o.LineSearchReductionRate = 0.75
	}
	if o.MinLineSearchStep == 0 {
		o.MinLineSearchStep = 0.05
	}
	return nil
}
