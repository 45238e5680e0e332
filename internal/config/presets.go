package config

var Presets = map[string]map[string]*Config{
	"chain": {
		"reach": {
			Model: "chain", NumJoints: 2, Horizon: 1.0, NumStages: 20,
			TorqueLimit: 50.0,
			InitState:   InitStateConfig{Q: []float64{0.3, -0.2}, V: []float64{0, 0}},
			Weights: WeightConfig{
				Q: 2.0, V: 1.0, A: 0.1, U: 0.1, Qf: 3.0, Vf: 1.5,
				QRef: []float64{1.0, 0.5},
			},
		},
		"rest": {
			Model: "chain", NumJoints: 3, Horizon: 2.0, NumStages: 40,
			TorqueLimit: 30.0,
			InitState:   InitStateConfig{Q: []float64{0.8, -0.5, 0.3}, V: []float64{1.0, 0, -0.5}},
			Weights: WeightConfig{
				Q: 1.0, V: 1.0, A: 0.1, U: 0.05, Qf: 5.0, Vf: 5.0,
			},
		},
	},
	"point_foot": {
		"touchdown": {
			Model: "point_foot", NumFeet: 1, Horizon: 1.0, NumStages: 20,
			FrictionCone: true,
			InitState: InitStateConfig{
				ContactForce: []float64{0, 0, 9.81},
			},
			Contacts: []ContactEventConfig{
				{Time: 0.37, Active: []int{0}},
			},
			Weights: WeightConfig{
				Q: 1.0, V: 1.0, A: 0.1, U: 0.1, Qf: 1.0, Vf: 1.0,
				Qi: 1.0, Vi: 1.0, Dvi: 0.1,
			},
		},
		"liftoff": {
			Model: "point_foot", NumFeet: 1, Horizon: 1.0, NumStages: 20,
			FrictionCone: true,
			InitState: InitStateConfig{
				ActiveContacts: []int{0},
				ContactForce:   []float64{0, 0, 9.81},
			},
			Contacts: []ContactEventConfig{
				{Time: 0.5, Active: []int{}},
			},
			Weights: WeightConfig{
				Q: 1.0, V: 1.0, A: 0.1, U: 0.1, Qf: 1.0, Vf: 1.0,
				Qi: 1.0, Vi: 1.0, Dvi: 0.1,
			},
		},
	},
}

func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	return names
}
