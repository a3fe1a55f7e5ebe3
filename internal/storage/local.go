package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const artifactExt = ".mp3"

// ErrOutsideWorkArea is returned when asked to remove a path not owned by the area.
var ErrOutsideWorkArea = errors.New("storage: path outside work area")

// WorkArea is the temp directory holding in-flight artifacts, one file per job id.
type WorkArea struct {
	dir string
}

// NewWorkArea creates dir if needed.
func NewWorkArea(dir string) (*WorkArea, error) {
	if dir == "" {
		return nil, errors.New("storage: work area directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve work area: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create work area: %w", err)
	}
	return &WorkArea{dir: abs}, nil
}

// Dir returns the absolute work area path.
func (w *WorkArea) Dir() string { return w.dir }

// PathFor returns the output path for a job: <dir>/<jobID>.mp3
func (w *WorkArea) PathFor(jobID string) string {
	return filepath.Join(w.dir, filepath.Base(jobID)+artifactExt)
}

// Owns reports whether path lives directly inside the work area.
func (w *WorkArea) Owns(path string) bool {
	if path == "" {
		return false
	}
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.Contains(rel, string(filepath.Separator)) && !strings.HasPrefix(rel, "..")
}

// Remove deletes a work area file. A file that is already gone is not an error.
func (w *WorkArea) Remove(path string) error {
	if !w.Owns(path) {
		return fmt.Errorf("%w: %s", ErrOutsideWorkArea, path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove %s: %w", filepath.Base(path), err)
	}
	return nil
}
