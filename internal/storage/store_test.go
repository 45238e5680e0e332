package storage

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/san-kum/trajopt/internal/trajectory"
)

func testTrajectory() *trajectory.Trajectory {
	return &trajectory.Trajectory{
		Times: []float64{0.0, 0.1},
		Q:     []trajectory.Sample{{0.1, 0.2}, {0.3, 0.4}},
		V:     []trajectory.Sample{{1.0, -1.0}, {0.5, -0.5}},
		U:     []trajectory.Sample{{2.0, -2.0}, {1.5, -1.5}},
		F:     []trajectory.Sample{{0, 0, 9.8}, {0, 0, 4.9}},
	}
}

func TestSaveAndLoad(t *testing.T) {
	store := New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}

	meta := RunMetadata{
		Model:       "point_foot",
		Horizon:     1.0,
		NumStages:   10,
		Iterations:  7,
		Convergence: true,
		KKTError:    3.2e-8,
		Metrics:     map[string]float64{"peak_torque": 2.0},
	}
	runID, err := store.Save(meta, testTrajectory())
	if err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load(runID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Model != "point_foot" {
		t.Errorf("model = %s, want point_foot", loaded.Model)
	}
	if !loaded.Convergence || loaded.Iterations != 7 {
		t.Errorf("solve record not preserved: %+v", loaded)
	}
	if loaded.Metrics["peak_torque"] != 2.0 {
		t.Errorf("metrics not preserved: %v", loaded.Metrics)
	}

	runs, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != runID {
		t.Errorf("list = %+v, want one run %s", runs, runID)
	}
}

func TestLoadTrajectoryRoundTrip(t *testing.T) {
	store := New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}
	want := testTrajectory()
	runID, err := store.Save(RunMetadata{Model: "chain"}, want)
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.LoadTrajectory(runID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != want.Len() {
		t.Fatalf("samples = %d, want %d", got.Len(), want.Len())
	}
	for i := 0; i < want.Len(); i++ {
		if math.Abs(got.Q[i][1]-want.Q[i][1]) > 1e-6 {
			t.Errorf("q[%d][1] = %g, want %g", i, got.Q[i][1], want.Q[i][1])
		}
		if math.Abs(got.F[i][2]-want.F[i][2]) > 1e-6 {
			t.Errorf("f[%d][2] = %g, want %g", i, got.F[i][2], want.F[i][2])
		}
	}
}

func TestExportJSON(t *testing.T) {
	store := New(t.TempDir())
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}
	runID, err := store.Save(RunMetadata{Model: "chain", Convergence: true}, testTrajectory())
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := store.ExportJSON(runID, &buf); err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["model"] != "chain" {
		t.Errorf("exported model = %v, want chain", decoded["model"])
	}
	if _, ok := decoded["times"]; !ok {
		t.Error("exported document should carry the trajectory times")
	}
}

func TestListEmptyStore(t *testing.T) {
	store := New(t.TempDir() + "/missing")
	runs, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}
