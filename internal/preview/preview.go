// Package preview computes the byte prefix of a ready artifact served as a
// short sample. The prefix length assumes a constant bitrate, so it is an
// approximation of PREVIEW_SECONDS rather than a frame-accurate cut.
package preview

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultSeconds     = 30
	DefaultBitrateKbps = 128
)

// ErrUnsatisfiable is returned when a range starts at or past the budget.
var ErrUnsatisfiable = errors.New("preview: range not satisfiable")

// Slicer holds the fixed preview duration and assumed bitrate.
type Slicer struct {
	seconds     int
	bitrateKbps int
}

// New returns a Slicer. Non-positive values fall back to the defaults.
func New(seconds, bitrateKbps int) Slicer {
	if seconds <= 0 {
		seconds = DefaultSeconds
	}
	if bitrateKbps <= 0 {
		bitrateKbps = DefaultBitrateKbps
	}
	return Slicer{seconds: seconds, bitrateKbps: bitrateKbps}
}

// Seconds returns the nominal preview length.
func (s Slicer) Seconds() int { return s.seconds }

// MaxBytes is PREVIEW_SECONDS * assumed byte rate.
func (s Slicer) MaxBytes() int64 {
	return int64(s.seconds) * int64(s.bitrateKbps) * 1000 / 8
}

// Budget returns how many leading bytes of a file of fileSize make up the
// preview.
func (s Slicer) Budget(fileSize int64) int64 {
	if fileSize <= 0 {
		return 0
	}
	return min(fileSize, s.MaxBytes())
}

// Window is an inclusive byte range inside the preview budget.
type Window struct {
	Start int64
	End   int64
}

// Full returns the window covering the whole budget.
func Full(budget int64) Window {
	return Window{Start: 0, End: budget - 1}
}

// Clip validates a requested range against budget. end is clipped to
// budget-1; a start at or past the budget is unsatisfiable.
func Clip(start, end, budget int64) (Window, error) {
	if start < 0 {
		start = 0
	}
	if budget <= 0 || start >= budget {
		return Window{}, ErrUnsatisfiable
	}
	if end < 0 || end > budget-1 {
		end = budget - 1
	}
	if end < start {
		return Window{}, ErrUnsatisfiable
	}
	return Window{Start: start, End: end}, nil
}

// Length is the number of bytes in the window.
func (w Window) Length() int64 { return w.End - w.Start + 1 }

// ContentRange formats the Content-Range header value against budget.
func (w Window) ContentRange(budget int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", w.Start, w.End, budget)
}

// UnsatisfiedRange formats the Content-Range value for a 416 response.
func UnsatisfiedRange(budget int64) string {
	return fmt.Sprintf("bytes */%d", budget)
}

// StartsPastBudget reports whether header is a well-formed bytes range whose
// every spec begins at or beyond budget. Such a request earns a 416. Invalid
// specs (end before start, bad numbers, foreign units) and suffix ranges
// return false so the caller ignores the header and serves the full preview.
func StartsPastBudget(header string, budget int64) bool {
	unit, specs, ok := strings.Cut(strings.TrimSpace(header), "=")
	if !ok || !strings.EqualFold(strings.TrimSpace(unit), "bytes") {
		return false
	}
	seen := false
	for _, spec := range strings.Split(specs, ",") {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		first, last, ok := strings.Cut(spec, "-")
		if !ok || first == "" {
			return false
		}
		start, err := strconv.ParseInt(first, 10, 64)
		if err != nil || start < 0 {
			return false
		}
		if last != "" {
			end, err := strconv.ParseInt(last, 10, 64)
			if err != nil || end < start {
				return false
			}
		}
		if start < budget {
			return false
		}
		seen = true
	}
	return seen
}
