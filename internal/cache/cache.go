// Package cache keeps produced artifacts on local disk keyed by content key and
// quality, so repeat requests skip the extractor entirely.
//
// Layout: <root>/<contentKey>/<quality>.mp3 with a <quality>.json sidecar. The
// artifact's modification time is the entry's last-write time.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/logging"
	"github.com/codebuildervaibhav/yt-audio-converter/internal/types"
)

const (
	artifactExt = ".mp3"
	sidecarExt  = ".json"
	tempPrefix  = ".incoming-"

	metaCacheSize = 1024
)

// ErrInvalidKey is returned for content keys that are unsafe as directory names.
var ErrInvalidKey = errors.New("cache: invalid content key")

var safeKey = regexp.MustCompile(`^[\w-]{1,64}$`)

// Lookup results reported to the Observer.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultStale = "stale"
)

// Meta is the descriptive data stored next to an artifact.
type Meta struct {
	Title    string    `json:"title,omitempty"`
	Duration string    `json:"duration,omitempty"`
	FileName string    `json:"fileName,omitempty"`
	StoredAt time.Time `json:"storedAt"`
}

// Entry is a cache hit.
type Entry struct {
	ContentKey string
	Quality    types.Quality
	Path       string
	Size       int64
	ModTime    time.Time
	Meta       Meta
}

// Observer receives cache activity for metrics.
type Observer interface {
	CacheLookup(result string)
	CacheEvicted(count int)
}

// Options configures a Manager.
type Options struct {
	Root     string
	TTL      time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
	Observer Observer
}

// Manager is the on-disk content cache.
type Manager struct {
	root     string
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
	observer Observer

	mu   sync.Mutex
	meta *expirable.LRU[string, Meta]
}

// New creates the cache root if needed.
func New(opts Options) (*Manager, error) {
	if opts.Root == "" {
		return nil, errors.New("cache: root directory is required")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("cache: ttl must be positive")
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create root: %w", err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		root:     opts.Root,
		ttl:      opts.TTL,
		now:      opts.Now,
		logger:   logging.Component(opts.Logger, "cache"),
		observer: opts.Observer,
		meta:     expirable.NewLRU[string, Meta](metaCacheSize, nil, opts.TTL),
	}, nil
}

// TTL returns the entry lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Root returns the cache directory.
func (m *Manager) Root() string { return m.root }

// Lookup returns the entry for (contentKey, quality) when it exists and is
// within the TTL. A stale entry is deleted and reported as a miss.
func (m *Manager) Lookup(contentKey string, quality types.Quality) (Entry, bool) {
	if !safeKey.MatchString(contentKey) {
		m.observe(ResultMiss)
		return Entry{}, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.artifactPath(contentKey, quality)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		m.observe(ResultMiss)
		return Entry{}, false
	}

	if m.expired(info.ModTime()) {
		m.removeLocked(contentKey, quality)
		m.removeDirIfEmpty(filepath.Dir(path))
		m.logger.Info("evicted stale cache entry",
			logging.String("content_key", contentKey),
			logging.String("quality", string(quality)),
		)
		m.observe(ResultStale)
		if m.observer != nil {
			m.observer.CacheEvicted(1)
		}
		return Entry{}, false
	}

	m.observe(ResultHit)
	return Entry{
		ContentKey: contentKey,
		Quality:    quality,
		Path:       path,
		Size:       info.Size(),
		ModTime:    info.ModTime(),
		Meta:       m.readMetaLocked(contentKey, quality),
	}, true
}

// Store copies sourcePath into the cache under (contentKey, quality),
// replacing any previous entry. The source file is left in place.
func (m *Manager) Store(contentKey string, quality types.Quality, sourcePath string, meta Meta) (Entry, error) {
	if !safeKey.MatchString(contentKey) {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidKey, contentKey)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Join(m.root, contentKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("cache: create entry dir: %w", err)
	}

	dest := m.artifactPath(contentKey, quality)
	size, err := copyAtomic(sourcePath, dest)
	if err != nil {
		return Entry{}, err
	}
	now := m.now()
	if err := os.Chtimes(dest, now, now); err != nil {
		return Entry{}, fmt.Errorf("cache: touch entry: %w", err)
	}

	meta.StoredAt = now.UTC()
	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return Entry{}, fmt.Errorf("cache: marshal metadata: %w", err)
	}
	if err := os.WriteFile(m.sidecarPath(contentKey, quality), payload, 0o644); err != nil {
		return Entry{}, fmt.Errorf("cache: write metadata: %w", err)
	}
	m.meta.Add(entryKey(contentKey, quality), meta)

	m.logger.Info("stored cache entry",
		logging.String("content_key", contentKey),
		logging.String("quality", string(quality)),
		logging.Int64("size_bytes", size),
	)
	return Entry{
		ContentKey: contentKey,
		Quality:    quality,
		Path:       dest,
		Size:       size,
		ModTime:    now,
		Meta:       meta,
	}, nil
}

func (m *Manager) artifactPath(contentKey string, quality types.Quality) string {
	return filepath.Join(m.root, contentKey, string(quality)+artifactExt)
}

func (m *Manager) sidecarPath(contentKey string, quality types.Quality) string {
	return filepath.Join(m.root, contentKey, string(quality)+sidecarExt)
}

func (m *Manager) expired(modTime time.Time) bool {
	return m.now().Sub(modTime) > m.ttl
}

func (m *Manager) readMetaLocked(contentKey string, quality types.Quality) Meta {
	key := entryKey(contentKey, quality)
	if meta, ok := m.meta.Get(key); ok {
		return meta
	}
	data, err := os.ReadFile(m.sidecarPath(contentKey, quality))
	if err != nil {
		return Meta{}
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		m.logger.Warn("ignoring unreadable cache metadata", logging.String("content_key", contentKey), logging.Error(err))
		return Meta{}
	}
	m.meta.Add(key, meta)
	return meta
}

func (m *Manager) removeLocked(contentKey string, quality types.Quality) int64 {
	var freed int64
	for _, path := range []string{m.artifactPath(contentKey, quality), m.sidecarPath(contentKey, quality)} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("failed to remove cache file", logging.String("path", path), logging.Error(err))
			continue
		}
		freed += info.Size()
	}
	m.meta.Remove(entryKey(contentKey, quality))
	return freed
}

// removeDirIfEmpty deletes dir when nothing is left in it.
func (m *Manager) removeDirIfEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return false
	}
	return os.Remove(dir) == nil
}

func (m *Manager) observe(result string) {
	if m.observer != nil {
		m.observer.CacheLookup(result)
	}
}

func entryKey(contentKey string, quality types.Quality) string {
	return contentKey + "/" + string(quality)
}

// copyAtomic copies src into a temp file beside dest and renames it over dest.
func copyAtomic(src, dest string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("cache: open source: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), tempPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("cache: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	size, err := io.Copy(tmp, in)
	if err != nil {
		tmp.Close()
		cleanup()
		return 0, fmt.Errorf("cache: copy artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return 0, fmt.Errorf("cache: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		cleanup()
		return 0, fmt.Errorf("cache: publish artifact: %w", err)
	}
	return size, nil
}
