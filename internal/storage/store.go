// Package storage persists solved trajectories as runs under a base
// directory: one subdirectory per run with metadata.json and trajectory.csv.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/san-kum/trajopt/internal/trajectory"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Model       string             `json:"model"`
	Timestamp   time.Time          `json:"timestamp"`
	Horizon     float64            `json:"horizon"`
	NumStages   int                `json:"num_stages"`
	Iterations  int                `json:"iterations"`
	Convergence bool               `json:"convergence"`
	KKTError    float64            `json:"kkt_error"`
	Metrics     map[string]float64 `json:"metrics"`
}

func (s *Store) Save(meta RunMetadata, tr *trajectory.Trajectory) (string, error) {
	runID := fmt.Sprintf("%s_%d", meta.Model, time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta.ID = runID
	meta.Timestamp = time.Now()

	metaPath := filepath.Join(runDir, "metadata.json")
	metaFile, err := os.Create(metaPath)
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvPath := filepath.Join(runDir, "trajectory.csv")
	csvFile, err := os.Create(csvPath)
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()

	if tr.Len() == 0 {
		return runID, nil
	}

	header := []string{"time"}
	for i := range tr.Q[0] {
		header = append(header, fmt.Sprintf("q%d", i))
	}
	for i := range tr.V[0] {
		header = append(header, fmt.Sprintf("v%d", i))
	}
	for i := range tr.U[0] {
		header = append(header, fmt.Sprintf("u%d", i))
	}
	for i := range tr.F[0] {
		header = append(header, fmt.Sprintf("f%d", i))
	}
	if err := w.Write(header); err != nil {
		return "", err
	}

	for i := 0; i < tr.Len(); i++ {
		row := []string{strconv.FormatFloat(tr.Times[i], 'f', 6, 64)}
		for _, block := range []trajectory.Sample{tr.Q[i], tr.V[i], tr.U[i], tr.F[i]} {
			for _, val := range block {
				row = append(row, strconv.FormatFloat(val, 'f', 6, 64))
			}
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	return runID, nil
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		metaPath := filepath.Join(s.baseDir, entry.Name(), "metadata.json")
		data, err := os.ReadFile(metaPath)
		if err != nil {
			continue
		}

		var meta RunMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}

		runs = append(runs, meta)
	}

	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	metaPath := filepath.Join(s.baseDir, runID, "metadata.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

func (s *Store) LoadTrajectory(runID string) (*trajectory.Trajectory, error) {
	csvPath := filepath.Join(s.baseDir, runID, "trajectory.csv")
	file, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return &trajectory.Trajectory{}, nil
	}

	header := records[0]
	dims := map[string]int{}
	for _, col := range header[1:] {
		prefix := strings.TrimRight(col, "0123456789")
		dims[prefix]++
	}

	tr := &trajectory.Trajectory{}
	for _, record := range records[1:] {
		if len(record) != len(header) {
			return nil, fmt.Errorf("storage: malformed row in %s", csvPath)
		}
		vals := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, err
			}
			vals[j] = v
		}
		pos := 1
		take := func(n int) trajectory.Sample {
			out := trajectory.Sample(vals[pos : pos+n])
			pos += n
			return out
		}
		tr.Times = append(tr.Times, vals[0])
		tr.Q = append(tr.Q, take(dims["q"]))
		tr.V = append(tr.V, take(dims["v"]))
		tr.U = append(tr.U, take(dims["u"]))
		tr.F = append(tr.F, take(dims["f"]))
	}

	return tr, nil
}

type exportData struct {
	RunMetadata
	Times []float64           `json:"times"`
	Q     []trajectory.Sample `json:"q"`
	V     []trajectory.Sample `json:"v"`
	U     []trajectory.Sample `json:"u"`
	F     []trajectory.Sample `json:"f"`
}

// ExportJSON writes the metadata and trajectory of one run as a single JSON
// document.
func (s *Store) ExportJSON(runID string, w io.Writer) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	tr, err := s.LoadTrajectory(runID)
	if err != nil {
		return err
	}
	data := exportData{
		RunMetadata: *meta,
		Times:       tr.Times,
		Q:           tr.Q,
		V:           tr.V,
		U:           tr.U,
		F:           tr.F,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
