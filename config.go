// Package hotreload is the development-time hot-reload pipeline: it
// watches template source files, extracts and diffs template ASTs, and
// broadcasts the minimal patch needed to bring every connected browser
// up to date without a full page reload.
package hotreload

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config configures one Engine. It mirrors the collaborator entry point a
// command-line front-end is expected to call with (spec §6):
// {host, port, watch_roots, extensions, cache_bound_bytes, debounce_ms}.
type Config struct {
	Host string // Default: 127.0.0.1
	Port int    // Default: 3001

	WatchRoots []string // Default: ["."]
	Extensions []string // Default: [".go", ".css", ".js"]

	CacheBoundBytes int64 // Default: 64 MiB
	DebounceMS      int   // Default: 100

	// LogLevel mirrors the LVT_HOTRELOAD_LOG environment variable this
	// package reads when unset (default "info"); it is the only
	// environment variable the core consults (spec §6).
	LogLevel string
}

// DefaultConfig returns the default dev-session configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:            "127.0.0.1",
		Port:            3001,
		WatchRoots:      []string{"."},
		Extensions:      []string{".go", ".css", ".js"},
		CacheBoundBytes: 64 * 1024 * 1024,
		DebounceMS:      100,
		LogLevel:        envLogLevel(),
	}
}

func envLogLevel() string {
	if v := os.Getenv("LVT_HOTRELOAD_LOG"); v != "" {
		return v
	}
	return "info"
}

// Option configures an Engine during New.
type Option func(*Config) error

// WithHost overrides the bind host.
func WithHost(host string) Option {
	return func(c *Config) error { c.Host = host; return nil }
}

// WithPort overrides the bind port.
func WithPort(port int) Option {
	return func(c *Config) error { c.Port = port; return nil }
}

// WithWatchRoots overrides the directories watched for source changes.
func WithWatchRoots(roots ...string) Option {
	return func(c *Config) error { c.WatchRoots = roots; return nil }
}

// WithExtensions overrides the file extensions the watcher classifies.
func WithExtensions(extensions ...string) Option {
	return func(c *Config) error { c.Extensions = extensions; return nil }
}

// WithCacheBoundBytes overrides the template cache's aggregate byte bound.
func WithCacheBoundBytes(bound int64) Option {
	return func(c *Config) error { c.CacheBoundBytes = bound; return nil }
}

// WithDebounceMS overrides the watcher's debounce window, in milliseconds.
func WithDebounceMS(ms int) Option {
	return func(c *Config) error { c.DebounceMS = ms; return nil }
}

// fileConfig is the shape of a hotreload.yaml dev-config file, the way
// cmd/lvt's own config.yaml loader works -- a thin YAML mirror of Config.
type fileConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	WatchRoots      []string `yaml:"watch_roots"`
	Extensions      []string `yaml:"extensions"`
	CacheBoundBytes int64    `yaml:"cache_bound_bytes"`
	DebounceMS      int      `yaml:"debounce_ms"`
	LogLevel        string   `yaml:"log_level"`
}

// LoadConfigFile reads a hotreload.yaml file and merges it onto
// DefaultConfig; zero-valued fields in the file are left at their default.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if fc.Host != "" {
		cfg.Host = fc.Host
	}
	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if len(fc.WatchRoots) > 0 {
		cfg.WatchRoots = fc.WatchRoots
	}
	if len(fc.Extensions) > 0 {
		cfg.Extensions = fc.Extensions
	}
	if fc.CacheBoundBytes != 0 {
		cfg.CacheBoundBytes = fc.CacheBoundBytes
	}
	if fc.DebounceMS != 0 {
		cfg.DebounceMS = fc.DebounceMS
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	return cfg, nil
}
