package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHorizon            = 1.0
	DefaultNumStages          = 20
	DefaultNumThreads         = 2
	DefaultMaxIterations      = 100
	DefaultKKTTolerance       = 1.0e-7
	DefaultBarrier            = 1.0e-4
	DefaultFractionToBoundary = 0.995
	DefaultTorqueLimit        = 50.0
	DefaultNumJoints          = 2
	DefaultNumFeet            = 1
)

type Config struct {
	Model              string               `yaml:"model"`
	NumJoints          int                  `yaml:"num_joints"`
	NumFeet            int                  `yaml:"num_feet"`
	Horizon            float64              `yaml:"horizon"`
	NumStages          int                  `yaml:"num_stages"`
	NumThreads         int                  `yaml:"num_threads"`
	MaxIterations      int                  `yaml:"max_iterations"`
	KKTTolerance       float64              `yaml:"kkt_tolerance"`
	LineSearch         bool                 `yaml:"line_search"`
	Barrier            float64              `yaml:"barrier"`
	FractionToBoundary float64              `yaml:"fraction_to_boundary"`
	TorqueLimit        float64              `yaml:"torque_limit"`
	FrictionCone       bool                 `yaml:"friction_cone"`
	InitState          InitStateConfig      `yaml:"init_state"`
	Weights            WeightConfig         `yaml:"weights"`
	Contacts           []ContactEventConfig `yaml:"contacts"`
}

type InitStateConfig struct {
	Q []float64 `yaml:"q"`
	V []float64 `yaml:"v"`
	// ContactForce seeds each active contact, e.g. with a weight-bearing
	// normal force that keeps the friction cone strictly feasible.
	ContactForce []float64 `yaml:"contact_force"`
	// ActiveContacts lists the contact indices in contact at the start of the
	// horizon.
	ActiveContacts []int `yaml:"active_contacts"`
}

type WeightConfig struct {
	Q    float64   `yaml:"q"`
	V    float64   `yaml:"v"`
	A    float64   `yaml:"a"`
	U    float64   `yaml:"u"`
	Qf   float64   `yaml:"qf"`
	Vf   float64   `yaml:"vf"`
	Qi   float64   `yaml:"qi"`
	Vi   float64   `yaml:"vi"`
	Dvi  float64   `yaml:"dvi"`
	QRef []float64 `yaml:"q_ref"`
}

// ContactEventConfig describes one contact change on the horizon. Contacts
// that close cause an impulse event, contacts that open cause a lift event.
type ContactEventConfig struct {
	Time   float64 `yaml:"time"`
	Active []int   `yaml:"active"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:              "chain",
		NumJoints:          DefaultNumJoints,
		NumFeet:            DefaultNumFeet,
		Horizon:            DefaultHorizon,
		NumStages:          DefaultNumStages,
		NumThreads:         DefaultNumThreads,
		MaxIterations:      DefaultMaxIterations,
		KKTTolerance:       DefaultKKTTolerance,
		Barrier:            DefaultBarrier,
		FractionToBoundary: DefaultFractionToBoundary,
		TorqueLimit:        DefaultTorqueLimit,
		Weights: WeightConfig{
			Q: 2.0, V: 1.0, A: 0.1, U: 0.1,
			Qf: 3.0, Vf: 1.5,
			Qi: 1.0, Vi: 1.0, Dvi: 0.1,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// FillDefaults replaces zero-valued iteration parameters, e.g. on a preset
// that only pins the problem description.
func (c *Config) FillDefaults() {
	if c.NumThreads == 0 {
		c.NumThreads = DefaultNumThreads
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.KKTTolerance == 0 {
		c.KKTTolerance = DefaultKKTTolerance
	}
	if c.Barrier == 0 {
		c.Barrier = DefaultBarrier
	}
	if c.FractionToBoundary == 0 {
		c.FractionToBoundary = DefaultFractionToBoundary
	}
	if c.TorqueLimit == 0 {
		c.TorqueLimit = DefaultTorqueLimit
	}
}

func (c *Config) Validate() error {
	switch c.Model {
	case "chain":
		if c.NumJoints <= 0 {
			return fmt.Errorf("config: num_joints must be positive, got %d", c.NumJoints)
		}
	case "point_foot":
		if c.NumFeet <= 0 {
			return fmt.Errorf("config: num_feet must be positive, got %d", c.NumFeet)
		}
	default:
		return fmt.Errorf("config: unknown model %q", c.Model)
	}
	if c.Horizon <= 0 {
		return fmt.Errorf("config: horizon must be positive, got %g", c.Horizon)
	}
	if c.NumStages <= 0 {
		return fmt.Errorf("config: num_stages must be positive, got %d", c.NumStages)
	}
	if c.Barrier <= 0 {
		return fmt.Errorf("config: barrier must be positive, got %g", c.Barrier)
	}
	if c.FractionToBoundary <= 0 || c.FractionToBoundary >= 1 {
		return fmt.Errorf("config: fraction_to_boundary must be in (0, 1), got %g", c.FractionToBoundary)
	}
	last := 0.0
	for i, ev := range c.Contacts {
		if ev.Time <= last || ev.Time >= c.Horizon {
			return fmt.Errorf("config: contact event %d at t=%g must lie strictly inside (previous event, horizon)", i, ev.Time)
		}
		last = ev.Time
	}
	return nil
}
