package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/cache"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/cleanup"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/config"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/convert"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/extractor"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/handlers"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/jobs"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/logging"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/metrics"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/preview"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/storage"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(parent context.Context, cmdCtx *commandContext) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := cmdCtx.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logBuffer := logging.NewBuffer(logging.DefaultBufferLines)
	logger, err := logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Writers: []io.Writer{logBuffer},
	})
	if err != nil {
		return err
	}

	m := metrics.New()

	cacheManager, err := cache.New(cache.Options{
		Root:     cfg.Storage.CacheDir,
		TTL:      cfg.CacheTTL(),
		Logger:   logger,
		Observer: m,
	})
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}

	workArea, err := storage.NewWorkArea(cfg.Storage.TempDir)
	if err != nil {
		return fmt.Errorf("prepare work area: %w", err)
	}

	history, err := openHistory(cfg)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
	}

	ytdlp := extractor.NewYtDlp(cfg.Extractor.Binary, logger)
	if err := ytdlp.CheckAvailable(); err != nil {
		logger.Warn("extractor not available; conversions will fail until it is installed",
			logging.String("binary", cfg.Extractor.Binary),
			logging.Error(err),
		)
	}

	opts := convert.Options{
		Store:               jobs.NewStore(),
		Cache:               cacheManager,
		Extractor:           ytdlp,
		WorkArea:            workArea,
		RetentionDelay:      cfg.JobRetention(),
		MaxConcurrent:       cfg.Queue.MaxConcurrent,
		EstimatedJobSeconds: cfg.Queue.EstimatedJobSeconds,
		Metrics:             m,
		QueueObserver:       m,
		Logger:              logger,
	}
	appOpts := handlers.AppOptions{
		Slicer:  preview.New(cfg.Preview.Seconds, cfg.Preview.BitrateKbps),
		Logs:    logBuffer,
		Metrics: m.Handler(),
		Client: handlers.ClientSettings{
			PollIntervalMs: cfg.Client.PollIntervalMs,
		},
		StreamInterval: cfg.WatchInterval(),
		AccessLog:      io.MultiWriter(os.Stdout, logBuffer),
		Logger:         logger,
	}
	// Leave the interfaces nil rather than holding a nil *HistoryDB.
	if history != nil {
		opts.History = history
		appOpts.History = history
	}

	// Admitted jobs run to completion; they are not tied to the signal context.
	svc, err := convert.New(context.Background(), opts)
	if err != nil {
		return err
	}
	defer svc.Close()
	appOpts.Service = svc

	runCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cacheSweeper := cleanup.NewScheduler("cache", cfg.CacheSweepInterval(), func(ctx context.Context) {
		cacheManager.Sweep(ctx)
	}, logger)
	tempSweeper := cleanup.NewScheduler("temp", cfg.CleanupInterval(), func(ctx context.Context) {
		report := cleanup.SweepOldFiles(workArea.Dir(), cfg.TempMaxAge(), time.Now(), logger)
		m.TempSwept(report.Deleted)
	}, logger)
	cacheSweeper.Start(runCtx)
	tempSweeper.Start(runCtx)
	defer tempSweeper.Stop()
	defer cacheSweeper.Stop()

	app := handlers.NewApp(appOpts)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			logging.String("addr", cfg.Addr()),
			logging.Int("max_concurrent", cfg.Queue.MaxConcurrent),
			logging.String("cache_dir", cacheManager.Root()),
			logging.Duration("cache_ttl", cacheManager.TTL()),
		)
		errCh <- app.Listen(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-runCtx.Done():
	}

	logger.Info("shutting down gracefully")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown incomplete", logging.Error(err))
	}
	return nil
}

func openHistory(cfg *config.Config) (*storage.HistoryDB, error) {
	if cfg.Storage.Database == "" {
		return nil, nil
	}
	if err := cleanup.EnsureDir(filepath.Dir(cfg.Storage.Database)); err != nil {
		return nil, fmt.Errorf("prepare history directory: %w", err)
	}
	db, err := storage.OpenHistory(cfg.Storage.Database)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return db, nil
}
