// Package extractor wraps the external tool that downloads a source and
// encodes its audio track.
package extractor

import (
	"context"
	"errors"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/types"
)

// ErrNoOutput is returned when the tool exits cleanly but leaves no file behind.
var ErrNoOutput = errors.New("extractor produced no output file")

// Info is the metadata looked up before production starts.
type Info struct {
	Title           string
	DurationSeconds float64
}

// Stage tags a progress event.
type Stage string

const (
	// StageDownload events carry the raw download percentage.
	StageDownload Stage = "download"
	// StagePostProcess signals that transcoding has begun.
	StagePostProcess Stage = "postprocess"
)

// Event is one progress report emitted during production.
type Event struct {
	Stage   Stage
	Percent float64
}

// Request describes one production run.
type Request struct {
	SourceURL  string
	OutputPath string
	Quality    types.Quality
}

// Extractor is the download/encode collaborator.
//
// Produce sends zero or more events while it runs and returns when the tool
// exits. It never closes events; the caller owns the channel.
type Extractor interface {
	FetchInfo(ctx context.Context, sourceURL string) (Info, error)
	Produce(ctx context.Context, req Request, events chan<- Event) error
}
