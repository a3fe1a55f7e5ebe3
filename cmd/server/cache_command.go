package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/cache"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/logging"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/media"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the conversion cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheSweepCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := openCache(ctx)
			if err != nil {
				return err
			}
			stats, err := manager.Stats()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Directory: %s\n", manager.Root())
			fmt.Fprintf(out, "TTL:       %s\n", manager.TTL())
			fmt.Fprintf(out, "Entries:   %d\n", stats.Entries)
			fmt.Fprintf(out, "Size:      %s\n", media.FormatFileSize(stats.TotalBytes))
			return nil
		},
	}
}

func newCacheSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := openCache(ctx)
			if err != nil {
				return err
			}
			report := manager.Sweep(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scanned: %d\n", report.Scanned)
			fmt.Fprintf(out, "Evicted: %d\n", report.Evicted)
			fmt.Fprintf(out, "Removed directories: %d\n", report.RemovedDirs)
			fmt.Fprintf(out, "Freed:   %s\n", media.FormatFileSize(report.FreedBytes))
			return nil
		},
	}
}

func openCache(ctx *commandContext) (*cache.Manager, error) {
	cfg, err := ctx.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	manager, err := cache.New(cache.Options{
		Root:   cfg.Storage.CacheDir,
		TTL:    cfg.CacheTTL(),
		Logger: logging.NewNop(),
	})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return manager, nil
}
