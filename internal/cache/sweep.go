package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/logging"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/types"
)

// SweepReport summarises one background pass.
type SweepReport struct {
	Scanned     int   `json:"scanned"`
	Evicted     int   `json:"evicted"`
	RemovedDirs int   `json:"removedDirs"`
	FreedBytes  int64 `json:"freedBytes"`
}

// Sweep deletes every entry older than the TTL, leftover temp and orphaned
// sidecar files, and then any content directory left empty.
func (m *Manager) Sweep(ctx context.Context) SweepReport {
	var report SweepReport

	dirs, err := os.ReadDir(m.root)
	if err != nil {
		m.logger.Warn("cache sweep: read root failed", logging.Error(err))
		return report
	}

	for _, d := range dirs {
		if ctx.Err() != nil {
			break
		}
		if !d.IsDir() {
			continue
		}
		m.sweepDir(d.Name(), &report)
	}

	if m.observer != nil && report.Evicted > 0 {
		m.observer.CacheEvicted(report.Evicted)
	}
	m.logger.Info("cache sweep complete",
		logging.Int("scanned", report.Scanned),
		logging.Int("evicted", report.Evicted),
		logging.Int("removed_dirs", report.RemovedDirs),
		logging.Int64("freed_bytes", report.FreedBytes),
	)
	return report
}

func (m *Manager) sweepDir(contentKey string, report *SweepReport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Join(m.root, contentKey)
	files, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, f := range files {
		if f.IsDir() {
			continue
		}
		name := f.Name()
		info, err := f.Info()
		if err != nil {
			continue
		}

		switch {
		case strings.HasSuffix(name, artifactExt):
			report.Scanned++
			if !m.expired(info.ModTime()) {
				continue
			}
			quality := types.Quality(strings.TrimSuffix(name, artifactExt))
			report.FreedBytes += m.removeLocked(contentKey, quality)
			report.Evicted++
		case strings.HasSuffix(name, sidecarExt):
			artifact := strings.TrimSuffix(name, sidecarExt) + artifactExt
			if _, err := os.Stat(filepath.Join(dir, artifact)); os.IsNotExist(err) {
				if os.Remove(filepath.Join(dir, name)) == nil {
					report.FreedBytes += info.Size()
				}
			}
		case strings.HasPrefix(name, tempPrefix):
			if m.expired(info.ModTime()) && os.Remove(filepath.Join(dir, name)) == nil {
				report.FreedBytes += info.Size()
			}
		}
	}

	if m.removeDirIfEmpty(dir) {
		report.RemovedDirs++
	}
}

// Stats describes current cache usage.
type Stats struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"totalBytes"`
}

// Stats walks the cache and counts artifacts, stale or not.
func (m *Manager) Stats() (Stats, error) {
	var stats Stats
	err := filepath.WalkDir(m.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), artifactExt) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		stats.Entries++
		stats.TotalBytes += info.Size()
		return nil
	})
	return stats, err
}
