package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/edaniels/golog"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/trajopt/internal/config"
	"github.com/san-kum/trajopt/internal/constraints"
	"github.com/san-kum/trajopt/internal/cost"
	"github.com/san-kum/trajopt/internal/hybrid"
	"github.com/san-kum/trajopt/internal/metrics"
	"github.com/san-kum/trajopt/internal/models"
	"github.com/san-kum/trajopt/internal/robot"
	"github.com/san-kum/trajopt/internal/solver"
	"github.com/san-kum/trajopt/internal/storage"
	"github.com/san-kum/trajopt/internal/trajectory"
	"github.com/san-kum/trajopt/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	horizon    float64
	numStages  int
	maxIters   int
	kktTol     float64
	numThreads int
	lineSearch bool
	verbose    bool
	// Plot axes
	maxPlots int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "trajopt",
		Short: "trajectory optimization for legged robots",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".trajopt", "data directory")

	solveCmd := &cobra.Command{
		Use:   "solve [model]",
		Short: "solve an optimal control problem",
		Args:  cobra.ExactArgs(1),
		RunE:  solveProblem,
	}
	solveCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	solveCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	solveCmd.Flags().Float64Var(&horizon, "horizon", 1.0, "horizon length in seconds")
	solveCmd.Flags().IntVar(&numStages, "stages", 20, "number of discretization stages")
	solveCmd.Flags().IntVar(&maxIters, "iters", 100, "maximum Newton iterations")
	solveCmd.Flags().Float64Var(&kktTol, "tol", 1.0e-7, "KKT error tolerance")
	solveCmd.Flags().IntVar(&numThreads, "threads", 2, "worker threads")
	solveCmd.Flags().BoolVar(&lineSearch, "line-search", false, "enable filter line search")
	solveCmd.Flags().BoolVar(&verbose, "verbose", false, "log per-iteration progress")

	presetsCmd := &cobra.Command{
		Use:   "presets [model]",
		Short: "list available presets for a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for model: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list solved runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot run results",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&maxPlots, "max-plots", 6, "maximum number of series to plot")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run data to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	rootCmd.AddCommand(solveCmd, presetsCmd, listCmd, plotCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfig(cmd *cobra.Command, model string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	cfg.Model = model

	if preset != "" {
		pc := config.GetPreset(model, preset)
		if pc == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(model))
		}
		cfg = pc
	}

	// Config file overrides preset.
	if configFile != "" {
		fc, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = fc
		if cfg.Model == "" {
			cfg.Model = model
		}
	}

	// CLI flags override everything.
	if cmd.Flags().Changed("horizon") {
		cfg.Horizon = horizon
	}
	if cmd.Flags().Changed("stages") {
		cfg.NumStages = numStages
	}
	if cmd.Flags().Changed("iters") {
		cfg.MaxIterations = maxIters
	}
	if cmd.Flags().Changed("tol") {
		cfg.KKTTolerance = kktTol
	}
	if cmd.Flags().Changed("threads") {
		cfg.NumThreads = numThreads
	}
	if cmd.Flags().Changed("line-search") {
		cfg.LineSearch = lineSearch
	}

	cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildRobot(cfg *config.Config) (robot.Robot, error) {
	switch cfg.Model {
	case "chain":
		return models.NewChain(cfg.NumJoints), nil
	case "point_foot":
		return models.NewPointFoot(cfg.NumFeet), nil
	default:
		return nil, fmt.Errorf("unknown model: %s", cfg.Model)
	}
}

func constVec(n int, v float64) *mat.VecDense {
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetVec(i, v)
	}
	return out
}

func buildCost(rb robot.Robot, cfg *config.Config) (*cost.CostFunction, error) {
	w := cfg.Weights
	c := cost.NewConfigurationSpaceCost(rb)
	if err := c.SetQWeight(constVec(rb.Dimv(), w.Q)); err != nil {
		return nil, err
	}
	if err := c.SetVWeight(constVec(rb.Dimv(), w.V)); err != nil {
		return nil, err
	}
	if err := c.SetAWeight(constVec(rb.Dimv(), w.A)); err != nil {
		return nil, err
	}
	if err := c.SetUWeight(constVec(rb.Dimu(), w.U)); err != nil {
		return nil, err
	}
	if err := c.SetQfWeight(constVec(rb.Dimv(), w.Qf)); err != nil {
		return nil, err
	}
	if err := c.SetVfWeight(constVec(rb.Dimv(), w.Vf)); err != nil {
		return nil, err
	}
	if w.Qi > 0 {
		if err := c.SetQiWeight(constVec(rb.Dimv(), w.Qi)); err != nil {
			return nil, err
		}
	}
	if w.Vi > 0 {
		if err := c.SetViWeight(constVec(rb.Dimv(), w.Vi)); err != nil {
			return nil, err
		}
	}
	if w.Dvi > 0 {
		if err := c.SetDviWeight(constVec(rb.Dimv(), w.Dvi)); err != nil {
			return nil, err
		}
	}
	if len(w.QRef) > 0 {
		if len(w.QRef) != rb.Dimq() {
			return nil, fmt.Errorf("q_ref has %d entries, model has %d configuration variables", len(w.QRef), rb.Dimq())
		}
		if err := c.SetQRef(mat.NewVecDense(len(w.QRef), w.QRef)); err != nil {
			return nil, err
		}
	}
	cf := cost.NewCostFunction()
	cf.Add(c)
	return cf, nil
}

func buildConstraints(rb robot.Robot, cfg *config.Config) (*constraints.Constraints, error) {
	cons, err := constraints.NewConstraints(cfg.Barrier, cfg.FractionToBoundary)
	if err != nil {
		return nil, err
	}
	if cfg.TorqueLimit > 0 && rb.Dimu() > 0 {
		upper, err := constraints.NewJointTorqueUpperLimit(constVec(rb.Dimu(), cfg.TorqueLimit))
		if err != nil {
			return nil, err
		}
		lower, err := constraints.NewJointTorqueLowerLimit(constVec(rb.Dimu(), -cfg.TorqueLimit))
		if err != nil {
			return nil, err
		}
		cons.Add(upper)
		cons.Add(lower)
	}
	if cfg.FrictionCone && rb.MaxNumContacts() > 0 {
		cons.Add(constraints.NewFrictionCone(rb.MaxNumContacts()))
	}
	return cons, nil
}

func contactStatusFrom(maxContacts int, active []int) (*robot.ContactStatus, error) {
	cs := robot.NewContactStatus(maxContacts)
	for _, i := range active {
		if i < 0 || i >= maxContacts {
			return nil, fmt.Errorf("contact index %d out of range [0, %d)", i, maxContacts)
		}
		cs.Activate(i)
	}
	return cs, nil
}

func buildContactSequence(rb robot.Robot, cfg *config.Config) (*hybrid.ContactSequence, error) {
	initial, err := contactStatusFrom(rb.MaxNumContacts(), cfg.InitState.ActiveContacts)
	if err != nil {
		return nil, err
	}
	cs, err := hybrid.NewContactSequence(len(cfg.Contacts), initial)
	if err != nil {
		return nil, err
	}
	for _, ev := range cfg.Contacts {
		status, err := contactStatusFrom(rb.MaxNumContacts(), ev.Active)
		if err != nil {
			return nil, err
		}
		if err := cs.PushBack(status, ev.Time, false); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

func initialState(rb robot.Robot, cfg *config.Config) (q0, v0 *mat.VecDense, err error) {
	q0 = mat.NewVecDense(rb.Dimq(), nil)
	v0 = mat.NewVecDense(rb.Dimv(), nil)
	if len(cfg.InitState.Q) > 0 {
		if len(cfg.InitState.Q) != rb.Dimq() {
			return nil, nil, fmt.Errorf("init q has %d entries, model has %d configuration variables", len(cfg.InitState.Q), rb.Dimq())
		}
		copy(q0.RawVector().Data, cfg.InitState.Q)
	}
	if len(cfg.InitState.V) > 0 {
		if len(cfg.InitState.V) != rb.Dimv() {
			return nil, nil, fmt.Errorf("init v has %d entries, model has %d velocity variables", len(cfg.InitState.V), rb.Dimv())
		}
		copy(v0.RawVector().Data, cfg.InitState.V)
	}
	return q0, v0, nil
}

func solveProblem(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args[0])
	if err != nil {
		return err
	}

	rb, err := buildRobot(cfg)
	if err != nil {
		return err
	}
	cf, err := buildCost(rb, cfg)
	if err != nil {
		return err
	}
	cons, err := buildConstraints(rb, cfg)
	if err != nil {
		return err
	}
	cs, err := buildContactSequence(rb, cfg)
	if err != nil {
		return err
	}

	opts := solver.Options{
		Horizon:          cfg.Horizon,
		NumStages:        cfg.NumStages,
		MaxIterations:    cfg.MaxIterations,
		KKTTolerance:     cfg.KKTTolerance,
		NumThreads:       cfg.NumThreads,
		EnableLineSearch: cfg.LineSearch,
	}

	var logger golog.Logger
	if verbose {
		logger = golog.NewDebugLogger("trajopt")
	}

	sv, err := solver.NewOCPSolver(rb, cf, cons, cs, opts, logger)
	if err != nil {
		return err
	}

	q0, v0, err := initialState(rb, cfg)
	if err != nil {
		return err
	}
	if err := sv.SetSolution(q0, v0); err != nil {
		return err
	}
	if len(cfg.InitState.ContactForce) == robot.ContactDim {
		f := mat.NewVecDense(robot.ContactDim, cfg.InitState.ContactForce)
		for _, i := range cfg.InitState.ActiveContacts {
			if err := sv.SetContactForce(i, f); err != nil {
				return err
			}
		}
	}

	fmt.Printf("solving %s over %.2fs horizon (%d stages)...\n", cfg.Model, cfg.Horizon, cfg.NumStages)
	start := time.Now()
	stats, err := sv.Solve(0, q0, v0)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	tr := trajectory.FromSolution(rb, sv.Discretization(), sv.Solution())
	vals := metrics.Evaluate(tr, metrics.Standard()...)

	kktError := 0.0
	if len(stats.KKTError) > 0 {
		kktError = stats.KKTError[len(stats.KKTError)-1]
	}
	fmt.Println(viz.SolveSummary(cfg.Model, stats.Convergence, stats.Iterations, kktError, stats.FinalCost, vals))
	fmt.Println(viz.ConvergencePlot(stats.KKTError))
	fmt.Printf("completed in %v\n", elapsed)

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(storage.RunMetadata{
		Model:       cfg.Model,
		Horizon:     cfg.Horizon,
		NumStages:   cfg.NumStages,
		Iterations:  stats.Iterations,
		Convergence: stats.Convergence,
		KKTError:    kktError,
		Metrics:     vals,
	}, tr)
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)

	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tHORIZON\tSTAGES\tITERS\tKKT\tCONVERGED")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%d\t%d\t%.3e\t%v\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Horizon,
			run.NumStages,
			run.Iterations,
			run.KKTError,
			run.Convergence,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	tr, err := st.LoadTrajectory(runID)
	if err != nil {
		return err
	}

	if tr.Len() == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d\n\n", tr.Len())

	fmt.Println(viz.TrajectoryPlots(tr, maxPlots))

	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	return st.ExportJSON(args[0], os.Stdout)
}
