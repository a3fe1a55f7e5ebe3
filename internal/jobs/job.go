package jobs

import (
	"time"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/types"
)

// Job represents one conversion request. Values handed out by the Store are
// snapshots; mutating them has no effect on the stored record.
type Job struct {
	ID            string        `json:"id"`
	SourceURL     string        `json:"sourceUrl"`
	ContentKey    string        `json:"contentKey"`
	Quality       types.Quality `json:"quality"`
	Status        types.Status  `json:"status"`
	Progress      int           `json:"progress"`
	QueuePosition int           `json:"queuePosition,omitempty"`
	EstimatedWait string        `json:"estimatedWait,omitempty"`
	Title         string        `json:"title,omitempty"`
	Duration      string        `json:"duration,omitempty"`
	FileName      string        `json:"fileName,omitempty"`
	FileSize      string        `json:"fileSize,omitempty"`
	FileSizeBytes int64         `json:"fileSizeBytes,omitempty"`
	ArtifactPath  string        `json:"artifactPath,omitempty"`
	Cached        bool          `json:"cached"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Request carries the immutable inputs of a new job.
type Request struct {
	SourceURL  string
	ContentKey string
	Quality    types.Quality
}

// normalize enforces the field invariants tied to the status: queue fields only
// while queued, the artifact only when ready, the error only when failed.
func (j *Job) normalize() {
	if j.Status != types.StatusQueued {
		j.QueuePosition = 0
		j.EstimatedWait = ""
	}
	if j.Status != types.StatusReady {
		j.ArtifactPath = ""
	}
	if j.Status != types.StatusError {
		j.Error = ""
	} else if j.Error == "" {
		j.Error = "Conversion failed."
	}
	if j.Progress < 0 {
		j.Progress = 0
	}
	if j.Progress > 100 {
		j.Progress = 100
	}
}
