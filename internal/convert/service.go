// Package convert turns submissions into jobs: it consults the cache, admits
// work through the queue and runs the extractor for admitted jobs.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/cache"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/cleanup"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/extractor"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/jobs"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/logging"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/media"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/metrics"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/queue"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/source"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/storage"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/types"
)

// Caller-facing failure messages. Details go to the log.
const (
	MsgInfoUnavailable  = "Could not fetch video information. The video might be unavailable or private."
	MsgConversionFailed = "Conversion failed. Please try again."
	MsgUnexpected       = "An unexpected error occurred during conversion."
)

// DefaultRetention is how long a ready job and its temp artifact are kept.
const DefaultRetention = 30 * time.Minute

// HistoryRecorder persists finished conversions.
type HistoryRecorder interface {
	Record(ctx context.Context, rec storage.HistoryRecord) error
}

// Recorder receives service-level metrics.
type Recorder interface {
	Submitted(result string)
	JobFinished(status string, seconds float64)
}

// Options wires a Service.
type Options struct {
	Store     *jobs.Store
	Cache     *cache.Manager
	Extractor extractor.Extractor
	WorkArea  *storage.WorkArea
	Retention *cleanup.Retention
	// RetentionDelay defaults to DefaultRetention.
	RetentionDelay time.Duration

	MaxConcurrent       int
	EstimatedJobSeconds int

	History       HistoryRecorder
	Metrics       Recorder
	QueueObserver queue.Observer
	Logger        *slog.Logger
	Now           func() time.Time
}

// Service is the conversion front door shared by all handlers.
type Service struct {
	store          *jobs.Store
	cache          *cache.Manager
	extractor      extractor.Extractor
	workArea       *storage.WorkArea
	retention      *cleanup.Retention
	retentionDelay time.Duration
	queue          *queue.Queue
	history        HistoryRecorder
	metrics        Recorder
	logger         *slog.Logger
	now            func() time.Time
}

// Submission is the result of Submit.
type Submission struct {
	Job      jobs.Job
	Admitted bool
	Cached   bool
}

// New builds a Service. ctx is handed to admitted tasks and should outlive
// request handling; admitted jobs are never cancelled.
func New(ctx context.Context, opts Options) (*Service, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("convert: job store is required")
	case opts.Cache == nil:
		return nil, errors.New("convert: cache manager is required")
	case opts.Extractor == nil:
		return nil, errors.New("convert: extractor is required")
	case opts.WorkArea == nil:
		return nil, errors.New("convert: work area is required")
	}
	if opts.Retention == nil {
		opts.Retention = cleanup.NewRetention()
	}
	if opts.RetentionDelay <= 0 {
		opts.RetentionDelay = DefaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Service{
		store:          opts.Store,
		cache:          opts.Cache,
		extractor:      opts.Extractor,
		workArea:       opts.WorkArea,
		retention:      opts.Retention,
		retentionDelay: opts.RetentionDelay,
		history:        opts.History,
		metrics:        opts.Metrics,
		logger:         logging.Component(opts.Logger, "convert"),
		now:            opts.Now,
	}
	s.queue = queue.New(ctx, queue.Options{
		MaxConcurrent:       opts.MaxConcurrent,
		EstimatedJobSeconds: opts.EstimatedJobSeconds,
		Tracker:             s,
		Observer:            opts.QueueObserver,
		Logger:              opts.Logger,
	})
	return s, nil
}

// Submit validates the request, creates the job and either completes it from
// the cache or hands it to the queue. Validation errors wrap
// source.ErrInvalidURL, source.ErrNoContentKey or types.ErrUnknownQuality and
// no job is created for them.
func (s *Service) Submit(ctx context.Context, rawURL, rawQuality string) (Submission, error) {
	quality, err := types.ParseQuality(rawQuality)
	if err != nil {
		s.countSubmission(metrics.SubmitRejected)
		return Submission{}, err
	}
	ref, err := source.Parse(rawURL)
	if err != nil {
		s.countSubmission(metrics.SubmitRejected)
		return Submission{}, err
	}

	job := s.store.Create(jobs.Request{
		SourceURL:  ref.URL,
		ContentKey: ref.ContentKey,
		Quality:    quality,
	})
	logger := s.logger.With(logging.String("job_id", job.ID), logging.String("content_key", ref.ContentKey))

	if entry, ok := s.cache.Lookup(ref.ContentKey, quality); ok {
		ready, err := s.completeFromCache(ctx, job.ID, entry)
		if err == nil {
			logger.Info("served from cache", logging.String("quality", string(quality)))
			s.countSubmission(metrics.SubmitCached)
			return Submission{Job: ready, Cached: true}, nil
		}
		logger.Warn("cache hit could not be applied, converting instead", logging.Error(err))
	}

	admission := s.queue.Enqueue(job.ID, s.task(job.ID))
	snapshot, err := s.store.Get(job.ID)
	if err != nil {
		snapshot = job
	}

	if !admission.Admitted {
		s.countSubmission(metrics.SubmitQueued)
		snapshot.Status = types.StatusQueued
		snapshot.QueuePosition = admission.Position
		snapshot.EstimatedWait = admission.EstimatedWait
		return Submission{Job: snapshot}, nil
	}
	s.countSubmission(metrics.SubmitAdmitted)
	return Submission{Job: snapshot, Admitted: true}, nil
}

// Queued implements queue.Tracker.
func (s *Service) Queued(jobID string, position int, estimatedWait string) {
	if _, err := s.store.MarkQueued(jobID, position, estimatedWait); err != nil {
		s.logger.Debug("queue position not recorded", logging.String("job_id", jobID), logging.Error(err))
	}
}

func (s *Service) completeFromCache(ctx context.Context, jobID string, entry cache.Entry) (jobs.Job, error) {
	fileName := entry.Meta.FileName
	if fileName == "" {
		fileName = media.DefaultFileName
	}
	ready, err := s.store.Update(jobID, func(j *jobs.Job) {
		j.Status = types.StatusReady
		j.Progress = 100
		j.Cached = true
		j.ArtifactPath = entry.Path
		j.Title = entry.Meta.Title
		j.Duration = entry.Meta.Duration
		j.FileName = fileName
		j.FileSize = media.FormatFileSize(entry.Size)
		j.FileSizeBytes = entry.Size
	})
	if err != nil {
		return jobs.Job{}, fmt.Errorf("apply cache hit: %w", err)
	}

	s.recordHistory(ctx, ready)
	// The cache owns the file; only the record expires.
	s.retention.Schedule(jobID, s.retentionDelay, func() {
		s.store.Delete(jobID)
		s.logger.Debug("released cached job", logging.String("job_id", jobID))
	})
	return ready, nil
}

// Get returns the job snapshot.
func (s *Service) Get(id string) (jobs.Job, error) {
	return s.store.Get(id)
}

// QueueStats reports queue occupancy.
func (s *Service) QueueStats() queue.Stats {
	return s.queue.Stats()
}

// JobCounts tallies stored jobs by status.
func (s *Service) JobCounts() map[types.Status]int {
	return s.store.CountByStatus()
}

// Wait blocks until every admitted and queued job has finished.
func (s *Service) Wait() {
	s.queue.Wait()
}

// Close cancels pending retention timers. Jobs already running are left to
// finish.
func (s *Service) Close() {
	s.retention.Stop()
}

func (s *Service) recordHistory(ctx context.Context, job jobs.Job) {
	if s.history == nil {
		return
	}
	err := s.history.Record(ctx, storage.HistoryRecord{
		JobID:         job.ID,
		SourceURL:     job.SourceURL,
		ContentKey:    job.ContentKey,
		Quality:       string(job.Quality),
		Title:         job.Title,
		Duration:      job.Duration,
		FileName:      job.FileName,
		FileSizeBytes: job.FileSizeBytes,
		Cached:        job.Cached,
		CreatedAt:     s.now(),
	})
	if err != nil {
		s.logger.Warn("failed to record history", logging.String("job_id", job.ID), logging.Error(err))
	}
}

func (s *Service) countSubmission(result string) {
	if s.metrics != nil {
		s.metrics.Submitted(result)
	}
}
