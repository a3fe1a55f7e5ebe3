package types

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a conversion job.
type Status string

// Job status constants
const (
	StatusQueued     Status = "queued"
	StatusValidating Status = "validating"
	StatusExtracting Status = "extracting"
	StatusConverting Status = "converting"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// transitions lists the legal next states for each status. Self transitions of
// in-flight states carry progress and metadata updates. Queued is entered only
// through jobs.Store.MarkQueued, before the job's task has started.
var transitions = map[Status][]Status{
	StatusQueued:     {StatusQueued, StatusValidating},
	StatusValidating: {StatusValidating, StatusExtracting, StatusReady, StatusError},
	StatusExtracting: {StatusExtracting, StatusConverting, StatusError},
	StatusConverting: {StatusConverting, StatusReady, StatusError},
	StatusReady:      {},
	StatusError:      {},
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// InFlight reports whether the job is still being worked on.
func (s Status) InFlight() bool {
	return s.Valid() && !s.Terminal()
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ErrUnknownQuality is returned for quality values outside the supported set.
var ErrUnknownQuality = errors.New("unknown audio quality")

// Quality is the requested MP3 bitrate tier in kbps.
type Quality string

// Supported output qualities
const (
	Quality128 Quality = "128"
	Quality192 Quality = "192"
	Quality320 Quality = "320"
)

// DefaultQuality is used when a request omits the quality.
const DefaultQuality = Quality128

// Qualities returns the supported qualities, lowest first.
func Qualities() []Quality {
	return []Quality{Quality128, Quality192, Quality320}
}

// ParseQuality normalises a raw quality value. An empty value maps to
// DefaultQuality; a trailing "k" or "kbps" is tolerated.
func ParseQuality(raw string) (Quality, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.TrimSuffix(value, "kbps")
	value = strings.TrimSuffix(value, "k")
	if value == "" {
		return DefaultQuality, nil
	}
	for _, q := range Qualities() {
		if string(q) == value {
			return q, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownQuality, raw)
}

// ExtractorLevel maps the quality onto yt-dlp's --audio-quality VBR scale
// (0 best, 9 worst).
func (q Quality) ExtractorLevel() string {
	switch q {
	case Quality320:
		return "0"
	case Quality192:
		return "2"
	default:
		return "5"
	}
}
