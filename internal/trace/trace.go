// Package trace persists pulled episode traces for offline inspection.
// Each runtime run writes under its own UUID-named directory, one JSON
// document per array.
package trace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/stampede-rl/stampede/internal/sim"
)

// Episode is the on-disk form of one fetched trace.
type Episode struct {
	Name    string    `json:"name"`
	Shape   []int     `json:"shape"`
	DType   string    `json:"dtype"`
	Float32 []float32 `json:"float32,omitempty"`
	Int32   []int32   `json:"int32,omitempty"`
}

// Writer persists traces for one run.
type Writer struct {
	dir   string
	runID string
}

// NewWriter creates the run directory under baseDir.
func NewWriter(baseDir string) (*Writer, error) {
	runID := uuid.NewString()
	dir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("trace: create %s: %w", dir, err)
	}
	return &Writer{dir: dir, runID: runID}, nil
}

// RunID returns the run's UUID.
func (w *Writer) RunID() string { return w.runID }

// Dir returns the run directory.
func (w *Writer) Dir() string { return w.dir }

// WriteEpisode serializes one fetched trace to <dir>/<name>.json.
func (w *Writer) WriteEpisode(name string, arr *sim.HostArray) error {
	ep := Episode{
		Name:  name,
		Shape: arr.Shape(),
		DType: arr.DType().String(),
	}
	switch arr.DType() {
	case sim.Float32:
		ep.Float32 = arr.AsFloat32()
	case sim.Int32:
		ep.Int32 = arr.AsInt32()
	}

	data, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("trace: marshal %q: %w", name, err)
	}
	path := filepath.Join(w.dir, name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("trace: write %s: %w", path, err)
	}
	return nil
}

// ReadEpisode loads a previously written trace.
func ReadEpisode(path string) (Episode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Episode{}, fmt.Errorf("trace: read %s: %w", path, err)
	}
	var ep Episode
	if err := json.Unmarshal(data, &ep); err != nil {
		return Episode{}, fmt.Errorf("trace: decode %s: %w", path, err)
	}
	return ep, nil
}
