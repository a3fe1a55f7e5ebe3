package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/cache"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/extractor"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/jobs"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/logging"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/media"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/queue"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/types"
)

// Progress milestones.
const (
	progressInfo       = 5
	progressExtracting = 10
	progressDownloaded = 80
	progressConverting = 85
	progressDone       = 100
)

// eventBuffer bounds how far the extractor may run ahead of store updates.
const eventBuffer = 16

// DownloadProgress maps a raw download percentage into the 10-80 band.
func DownloadProgress(pct float64) int {
	if pct < 0 {
		pct = 0
	}
	p := progressExtracting + int(pct*0.7)
	return min(p, progressDownloaded)
}

// task wraps run so that every exit resolves the job to Ready or Error.
func (s *Service) task(jobID string) queue.Task {
	return func(ctx context.Context) {
		started := s.now()
		logger := s.logger.With(logging.String("job_id", jobID))
		defer func() {
			if r := recover(); r != nil {
				logger.Error("conversion panic",
					logging.String("panic", fmt.Sprint(r)),
					logging.String("stack", string(debug.Stack())),
				)
				s.fail(logger, jobID, MsgUnexpected)
			}
			s.observeFinished(jobID, started)
		}()
		s.run(ctx, logger, jobID)
	}
}

func (s *Service) run(ctx context.Context, logger *slog.Logger, jobID string) {
	job, err := s.store.Update(jobID, func(j *jobs.Job) {
		j.Status = types.StatusValidating
	})
	if err != nil {
		logger.Warn("job vanished before start", logging.Error(err))
		return
	}

	info, err := s.extractor.FetchInfo(ctx, job.SourceURL)
	if err != nil {
		logger.Warn("info lookup failed", logging.String("url", job.SourceURL), logging.Error(err))
		s.fail(logger, jobID, MsgInfoUnavailable)
		return
	}

	duration := media.FormatDuration(info.DurationSeconds)
	fileName := media.FileNameForTitle(info.Title)
	if _, err := s.store.Update(jobID, func(j *jobs.Job) {
		j.Title = info.Title
		j.Duration = duration
		j.FileName = fileName
		j.Progress = progressInfo
	}); err != nil {
		logger.Warn("failed to store info", logging.Error(err))
		return
	}
	if _, err := s.store.Update(jobID, func(j *jobs.Job) {
		j.Status = types.StatusExtracting
		j.Progress = progressExtracting
	}); err != nil {
		logger.Warn("failed to start extraction", logging.Error(err))
		return
	}
	logger.Info("extraction started", logging.String("title", info.Title), logging.String("quality", string(job.Quality)))

	output := s.workArea.PathFor(jobID)
	if err := s.produce(ctx, logger, jobID, extractor.Request{
		SourceURL:  job.SourceURL,
		OutputPath: output,
		Quality:    job.Quality,
	}); err != nil {
		logger.Warn("production failed", logging.Error(err))
		s.discard(logger, output)
		s.fail(logger, jobID, MsgConversionFailed)
		return
	}

	size, err := media.ValidateAudioFile(output)
	if err != nil {
		logger.Warn("produced file rejected", logging.Error(err))
		s.discard(logger, output)
		s.fail(logger, jobID, MsgConversionFailed)
		return
	}
	// Age in the work area starts at completion; retention owns the file from here.
	stamp := s.now()
	if err := os.Chtimes(output, stamp, stamp); err != nil {
		logger.Warn("failed to stamp artifact", logging.Error(err))
	}

	if _, err := s.cache.Store(job.ContentKey, job.Quality, output, cache.Meta{
		Title:    info.Title,
		Duration: duration,
		FileName: fileName,
	}); err != nil {
		logger.Warn("failed to cache artifact", logging.Error(err))
	}

	// Ready is only reachable from Converting.
	if _, err := s.store.Update(jobID, func(j *jobs.Job) {
		j.Status = types.StatusConverting
	}); err != nil {
		logger.Warn("failed to finish job", logging.Error(err))
		return
	}
	ready, err := s.store.Update(jobID, func(j *jobs.Job) {
		j.Status = types.StatusReady
		j.Progress = progressDone
		j.ArtifactPath = output
		j.FileSize = media.FormatFileSize(size)
		j.FileSizeBytes = size
	})
	if err != nil {
		logger.Warn("failed to finish job", logging.Error(err))
		return
	}
	logger.Info("conversion complete",
		logging.Int64("size_bytes", size),
		logging.Duration("elapsed", s.now().Sub(ready.CreatedAt)),
	)

	s.recordHistory(ctx, ready)
	s.retention.Schedule(jobID, s.retentionDelay, func() {
		s.discard(logger, output)
		s.store.Delete(jobID)
		logger.Debug("retention expired")
	})
}

// produce runs the extractor and applies its events until it returns.
func (s *Service) produce(ctx context.Context, logger *slog.Logger, jobID string, req extractor.Request) error {
	events := make(chan extractor.Event, eventBuffer)
	done := make(chan error, 1)

	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("extractor panic", logging.String("panic", fmt.Sprint(r)))
				done <- fmt.Errorf("extractor panic: %v", r)
			}
		}()
		done <- s.extractor.Produce(ctx, req, events)
	}()

	for ev := range events {
		s.apply(logger, jobID, ev)
	}
	return <-done
}

// apply folds one extractor event into the job. Download events only move
// progress while extracting; the store keeps progress monotonic.
func (s *Service) apply(logger *slog.Logger, jobID string, ev extractor.Event) {
	_, err := s.store.Update(jobID, func(j *jobs.Job) {
		switch ev.Stage {
		case extractor.StagePostProcess:
			if j.Status == types.StatusExtracting || j.Status == types.StatusConverting {
				j.Status = types.StatusConverting
				j.Progress = max(j.Progress, progressConverting)
			}
		case extractor.StageDownload:
			if j.Status == types.StatusExtracting {
				j.Progress = DownloadProgress(ev.Percent)
			}
		}
	})
	if err != nil {
		logger.Debug("progress update dropped", logging.Error(err))
	}
}

func (s *Service) fail(logger *slog.Logger, jobID, message string) {
	if _, err := s.store.Update(jobID, func(j *jobs.Job) {
		j.Status = types.StatusError
		j.Error = message
	}); err != nil {
		logger.Warn("failed to mark job as failed", logging.Error(err))
	}
}

func (s *Service) discard(logger *slog.Logger, path string) {
	if err := s.workArea.Remove(path); err != nil {
		logger.Warn("failed to remove temp artifact", logging.Error(err))
	}
}

func (s *Service) observeFinished(jobID string, started time.Time) {
	if s.metrics == nil {
		return
	}
	job, err := s.store.Get(jobID)
	if err != nil || !job.Status.Terminal() {
		return
	}
	s.metrics.JobFinished(string(job.Status), s.now().Sub(started).Seconds())
}
