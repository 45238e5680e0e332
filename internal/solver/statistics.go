package solver

import (
	"fmt"
	"strings"
	"time"
)

// Statistics records the progress of one Solve call.
type Statistics struct {
	Convergence     bool
	Iterations      int
	KKTError        []float64
	PrimalStepSizes []float64
	DualStepSizes   []float64
	FinalCost       float64
	CPUTime         time.Duration
}

func (st *Statistics) reset() {
	st.Convergence = false
	st.Iterations = 0
	st.KKTError = st.KKTError[:0]
	st.PrimalStepSizes = st.PrimalStepSizes[:0]
	st.DualStepSizes = st.DualStepSizes[:0]
	st.FinalCost = 0
	st.CPUTime = 0
}

// String formats a per-iteration convergence table.
func (st Statistics) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "convergence: %t, iterations: %d, cost: %.6g, time: %s\n",
		st.Convergence, st.Iterations, st.FinalCost, st.CPUTime)
	fmt.Fprintf(&b, "%4s  %12s  %11s  %9s\n", "iter", "KKT error", "primal step", "dual step")
	for i, e := range st.KKTError {
		primal, dual := "-", "-"
		if i < len(st.PrimalStepSizes) {
			primal = fmt.Sprintf("%.4f", st.PrimalStepSizes[i])
		}
		if i < len(st.DualStepSizes) {
			dual = fmt.Sprintf("%.4f", st.DualStepSizes[i])
		}
		fmt.Fprintf(&b, "%4d  %12.6e  %11s  %9s\n", i, e, primal, dual)
	}
	return b.String()
}
