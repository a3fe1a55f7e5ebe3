// Package config loads service settings from YAML, a .env file and the
// process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the server looks for its YAML file.
const DefaultPath = "config/config.yaml"

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Queue struct {
	MaxConcurrent       int `yaml:"max_concurrent"`
	EstimatedJobSeconds int `yaml:"estimated_job_seconds"`
}

type Storage struct {
	TempDir  string `yaml:"temp_dir"`
	CacheDir string `yaml:"cache_dir"`
	// Database is the SQLite history file. Empty disables history.
	Database string `yaml:"database"`
}

type Retention struct {
	JobMinutes int `yaml:"job_minutes"`
}

type Cache struct {
	TTLHours             int `yaml:"ttl_hours"`
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
}

// Cleanup controls the work area orphan sweep.
type Cleanup struct {
	IntervalMinutes int `yaml:"interval_minutes"`
	MaxAgeHours     int `yaml:"max_age_hours"`
}

type Preview struct {
	Seconds     int `yaml:"seconds"`
	BitrateKbps int `yaml:"bitrate_kbps"`
}

type Extractor struct {
	Binary string `yaml:"binary"`
}

// Client holds values advertised to polling clients.
type Client struct {
	PollIntervalMs  int `yaml:"poll_interval_ms"`
	WatchIntervalMs int `yaml:"watch_interval_ms"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config represents the application configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Queue     Queue     `yaml:"queue"`
	Storage   Storage   `yaml:"storage"`
	Retention Retention `yaml:"retention"`
	Cache     Cache     `yaml:"cache"`
	Cleanup   Cleanup   `yaml:"cleanup"`
	Preview   Preview   `yaml:"preview"`
	Extractor Extractor `yaml:"extractor"`
	Client    Client    `yaml:"client"`
	Logging   Logging   `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:    Server{Host: "0.0.0.0", Port: 5000},
		Queue:     Queue{MaxConcurrent: 3, EstimatedJobSeconds: 30},
		Storage:   Storage{TempDir: "temp", CacheDir: "cache", Database: "data/history.db"},
		Retention: Retention{JobMinutes: 30},
		Cache:     Cache{TTLHours: 24, SweepIntervalMinutes: 60},
		Cleanup:   Cleanup{IntervalMinutes: 30, MaxAgeHours: 2},
		Preview:   Preview{Seconds: 30, BitrateKbps: 128},
		Extractor: Extractor{Binary: "yt-dlp"},
		Client:    Client{PollIntervalMs: 1000, WatchIntervalMs: 1000},
		Logging:   Logging{Level: "info", Format: "text"},
	}
}

// Load reads path (a missing file means defaults), then .env, then the
// environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	setInt := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
		return nil
	}

	setString("HOST", &c.Server.Host)
	setString("TEMP_DIR", &c.Storage.TempDir)
	setString("CACHE_DIR", &c.Storage.CacheDir)
	setString("HISTORY_DB", &c.Storage.Database)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FORMAT", &c.Logging.Format)
	setString("YTDLP_PATH", &c.Extractor.Binary)

	for key, dst := range map[string]*int{
		"PORT":                  &c.Server.Port,
		"MAX_CONCURRENT":        &c.Queue.MaxConcurrent,
		"ESTIMATED_JOB_SECONDS": &c.Queue.EstimatedJobSeconds,
	} {
		if err := setInt(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"server.port", c.Server.Port},
		{"queue.max_concurrent", c.Queue.MaxConcurrent},
		{"queue.estimated_job_seconds", c.Queue.EstimatedJobSeconds},
		{"retention.job_minutes", c.Retention.JobMinutes},
		{"cache.ttl_hours", c.Cache.TTLHours},
		{"cache.sweep_interval_minutes", c.Cache.SweepIntervalMinutes},
		{"cleanup.interval_minutes", c.Cleanup.IntervalMinutes},
		{"cleanup.max_age_hours", c.Cleanup.MaxAgeHours},
		{"preview.seconds", c.Preview.Seconds},
		{"preview.bitrate_kbps", c.Preview.BitrateKbps},
		{"client.poll_interval_ms", c.Client.PollIntervalMs},
		{"client.watch_interval_ms", c.Client.WatchIntervalMs},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Storage.TempDir) == "" {
		return errors.New("storage.temp_dir is required")
	}
	if strings.TrimSpace(c.Storage.CacheDir) == "" {
		return errors.New("storage.cache_dir is required")
	}
	if strings.TrimSpace(c.Extractor.Binary) == "" {
		return errors.New("extractor.binary is required")
	}
	// The temp sweeper must never reach a Ready artifact still held by retention.
	if c.TempMaxAge() <= c.JobRetention() {
		return fmt.Errorf("cleanup.max_age_hours (%s) must exceed retention.job_minutes (%s)", c.TempMaxAge(), c.JobRetention())
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) JobRetention() time.Duration {
	return time.Duration(c.Retention.JobMinutes) * time.Minute
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLHours) * time.Hour
}

func (c *Config) CacheSweepInterval() time.Duration {
	return time.Duration(c.Cache.SweepIntervalMinutes) * time.Minute
}

func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Cleanup.IntervalMinutes) * time.Minute
}

func (c *Config) TempMaxAge() time.Duration {
	return time.Duration(c.Cleanup.MaxAgeHours) * time.Hour
}

func (c *Config) WatchInterval() time.Duration {
	return time.Duration(c.Client.WatchIntervalMs) * time.Millisecond
}
