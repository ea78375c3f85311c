package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ConfigDirName  = "fsindex"
	ConfigFileName = "config.yaml"
)

type Config struct {
	Daemon DaemonConfig `yaml:"daemon"`
	Index  IndexConfig  `yaml:"index"`
	Batch  BatchConfig  `yaml:"batch"`
	Watch  WatchConfig  `yaml:"watch"`
	Mounts MountsConfig `yaml:"mounts"`
	Scan   ScanConfig   `yaml:"scan"`
}

type DaemonConfig struct {
	Socket   string `yaml:"socket,omitempty"`
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

type IndexConfig struct {
	Backend string `yaml:"backend"` // bleve | sqlite
	Dir     string `yaml:"dir,omitempty"`
}

type BatchConfig struct {
	Size             int `yaml:"size"`
	IntervalMs       int `yaml:"interval_ms"`
	DrainCap         int `yaml:"drain_cap"`
	DrainIntervalMs  int `yaml:"drain_interval_ms"`
	WaitTimeoutMs    int `yaml:"wait_timeout_ms,omitempty"`
	DeletionSize     int `yaml:"deletion_size"`
	DeletionMaxAgeMs int `yaml:"deletion_max_age_ms"`
}

type WatchConfig struct {
	Roots            []string `yaml:"roots"`
	SuppressedFSType string   `yaml:"suppressed_fstype"`
	ShadowSuffix     string   `yaml:"shadow_suffix"`
}

type MountsConfig struct {
	RefreshIntervalMs int `yaml:"refresh_interval_ms"`
}

type ScanConfig struct {
	OnStart      bool     `yaml:"on_start"`
	ScanAll      bool     `yaml:"scan_all"`
	Workers      int      `yaml:"workers,omitempty"`
	IncludeGlobs []string `yaml:"include_globs,omitempty"`
	ExcludeGlobs []string `yaml:"exclude_globs,omitempty"`
}

func Default() *Config {
	return &Config{
		Daemon: DaemonConfig{
			LogLevel: "info",
		},
		Index: IndexConfig{
			Backend: "bleve",
		},
		Batch: BatchConfig{
			Size:             100,
			IntervalMs:       1000,
			DrainCap:         500,
			DrainIntervalMs:  1000,
			DeletionSize:     100,
			DeletionMaxAgeMs: 1000,
		},
		Watch: WatchConfig{
			SuppressedFSType: "fuse.dlnfs",
			ShadowSuffix:     ".longname",
		},
		Mounts: MountsConfig{
			RefreshIntervalMs: 30000,
		},
		Scan: ScanConfig{
			OnStart: true,
		},
	}
}

// Load reads the config at path, or the default location when path is
// empty. A missing file is not an error: the daemon runs on defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) Save(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyDefaults fills missing values so older config files keep working.
func (c *Config) applyDefaults() {
	d := Default()

	if c.Daemon.LogLevel == "" {
		c.Daemon.LogLevel = d.Daemon.LogLevel
	}
	if c.Index.Backend == "" {
		c.Index.Backend = d.Index.Backend
	}
	if c.Batch.Size <= 0 {
		c.Batch.Size = d.Batch.Size
	}
	if c.Batch.IntervalMs <= 0 {
		c.Batch.IntervalMs = d.Batch.IntervalMs
	}
	if c.Batch.DrainCap <= 0 {
		c.Batch.DrainCap = d.Batch.DrainCap
	}
	if c.Batch.DrainIntervalMs <= 0 {
		c.Batch.DrainIntervalMs = d.Batch.DrainIntervalMs
	}
	if c.Batch.DeletionSize <= 0 {
		c.Batch.DeletionSize = d.Batch.DeletionSize
	}
	if c.Batch.DeletionMaxAgeMs <= 0 {
		c.Batch.DeletionMaxAgeMs = d.Batch.DeletionMaxAgeMs
	}
	if c.Watch.SuppressedFSType == "" {
		c.Watch.SuppressedFSType = d.Watch.SuppressedFSType
	}
	if c.Watch.ShadowSuffix == "" {
		c.Watch.ShadowSuffix = d.Watch.ShadowSuffix
	}
	if c.Mounts.RefreshIntervalMs <= 0 {
		c.Mounts.RefreshIntervalMs = d.Mounts.RefreshIntervalMs
	}
}

func (b BatchConfig) Interval() time.Duration { return time.Duration(b.IntervalMs) * time.Millisecond }

func (b BatchConfig) DrainInterval() time.Duration {
	return time.Duration(b.DrainIntervalMs) * time.Millisecond
}

// WaitTimeout may be zero; the scheduler then falls back to Interval.
func (b BatchConfig) WaitTimeout() time.Duration {
	return time.Duration(b.WaitTimeoutMs) * time.Millisecond
}

func (b BatchConfig) DeletionMaxAge() time.Duration {
	return time.Duration(b.DeletionMaxAgeMs) * time.Millisecond
}

func (m MountsConfig) RefreshInterval() time.Duration {
	return time.Duration(m.RefreshIntervalMs) * time.Millisecond
}

// DefaultPath is ~/.config/fsindex/config.yaml, honoring XDG_CONFIG_HOME.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join("/etc", ConfigDirName, ConfigFileName)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, ConfigDirName, ConfigFileName)
}

// DefaultSocketPath prefers XDG_RUNTIME_DIR and falls back to a per-user
// path under /tmp.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "fsidxd.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("fsidxd-%d.sock", os.Getuid()))
}

// DefaultIndexDir is ~/.local/share/fsindex, honoring XDG_DATA_HOME.
func DefaultIndexDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), ConfigDirName)
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, ConfigDirName)
}

// SocketPath returns the configured socket or the default.
func (c *Config) SocketPath() string {
	if c != nil && c.Daemon.Socket != "" {
		return c.Daemon.Socket
	}
	return DefaultSocketPath()
}

// IndexDir returns the configured index directory or the default.
func (c *Config) IndexDir() string {
	if c != nil && c.Index.Dir != "" {
		return c.Index.Dir
	}
	return DefaultIndexDir()
}
