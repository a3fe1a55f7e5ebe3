package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/logging"
)

// Scheduler runs a job once at Start and then on a fixed interval until Stop.
type Scheduler struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context)
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewScheduler creates a scheduler for run.
func NewScheduler(name string, interval time.Duration, run func(ctx context.Context), logger *slog.Logger) *Scheduler {
	return &Scheduler{
		name:     name,
		interval: interval,
		run:      run,
		logger:   logging.Component(logger, "cleanup").With(slog.String("scheduler", name)),
	}
}

// Start performs the initial pass synchronously and begins the periodic loop.
// Calling Start twice has no effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	s.logger.Info("running initial pass")
	s.run(ctx)

	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.run(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Info("scheduler started", logging.Duration("interval", s.interval))
}

// Stop cancels the loop and waits for an in-progress pass to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

// SweepReport summarises one cleanup pass.
type SweepReport struct {
	Deleted    int   `json:"deleted"`
	FreedBytes int64 `json:"freedBytes"`
}

// SweepOldFiles removes regular files under dir whose modification time is
// older than maxAge. Unreadable entries are skipped.
func SweepOldFiles(dir string, maxAge time.Duration, now time.Time, logger *slog.Logger) SweepReport {
	logger = logging.Component(logger, "cleanup")
	var report SweepReport

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age <= maxAge {
			return nil
		}
		size := info.Size()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to delete old file", logging.String("path", path), logging.Error(err))
			return nil
		}
		report.Deleted++
		report.FreedBytes += size
		logger.Debug("deleted old temp file",
			logging.String("file", filepath.Base(path)),
			logging.Duration("age", age.Round(time.Second)),
			logging.Int64("size_bytes", size),
		)
		return nil
	})
	if err != nil {
		logger.Warn("error during cleanup", logging.Error(err))
	}

	if report.Deleted > 0 {
		logger.Info("cleanup complete",
			logging.Int("deleted", report.Deleted),
			logging.Int64("freed_bytes", report.FreedBytes),
		)
	}
	return report
}

// EnsureDir creates dir if it does not exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
