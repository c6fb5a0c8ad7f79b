package hotreload

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigHasSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Host != "127.0.0.1" || cfg.Port != 3001 {
		t.Fatalf("unexpected host/port: %+v", cfg)
	}
	if len(cfg.WatchRoots) != 1 || cfg.WatchRoots[0] != "." {
		t.Fatalf("unexpected watch roots: %+v", cfg.WatchRoots)
	}
	if cfg.CacheBoundBytes != 64*1024*1024 {
		t.Fatalf("unexpected cache bound: %d", cfg.CacheBoundBytes)
	}
	if cfg.DebounceMS != 100 {
		t.Fatalf("unexpected debounce: %d", cfg.DebounceMS)
	}
}

func TestDefaultConfigReadsLogLevelFromEnv(t *testing.T) {
	os.Setenv("LVT_HOTRELOAD_LOG", "debug")
	defer os.Unsetenv("LVT_HOTRELOAD_LOG")

	cfg := DefaultConfig()
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected env override to win, got %q", cfg.LogLevel)
	}
}

func TestDefaultConfigFallsBackToInfoLogLevel(t *testing.T) {
	os.Unsetenv("LVT_HOTRELOAD_LOG")
	cfg := DefaultConfig()
	if cfg.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.LogLevel)
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	cfg := DefaultConfig()
	opts := []Option{
		WithHost("0.0.0.0"),
		WithPort(8080),
		WithWatchRoots("a", "b"),
		WithExtensions(".go"),
		WithCacheBoundBytes(1024),
		WithDebounceMS(50),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			t.Fatalf("option failed: %v", err)
		}
	}
	if cfg.Host != "0.0.0.0" || cfg.Port != 8080 {
		t.Fatalf("unexpected host/port after options: %+v", cfg)
	}
	if len(cfg.WatchRoots) != 2 || cfg.WatchRoots[1] != "b" {
		t.Fatalf("unexpected watch roots after option: %+v", cfg.WatchRoots)
	}
	if len(cfg.Extensions) != 1 || cfg.Extensions[0] != ".go" {
		t.Fatalf("unexpected extensions after option: %+v", cfg.Extensions)
	}
	if cfg.CacheBoundBytes != 1024 || cfg.DebounceMS != 50 {
		t.Fatalf("unexpected cache bound/debounce after options: %+v", cfg)
	}
}

func TestLoadConfigFileMergesOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hotreload.yaml")
	contents := "host: \"0.0.0.0\"\nport: 9000\ndebounce_ms: 250\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	if cfg.Host != "0.0.0.0" || cfg.Port != 9000 || cfg.DebounceMS != 250 {
		t.Fatalf("unexpected merged config: %+v", cfg)
	}
	// Fields absent from the file fall back to DefaultConfig's values.
	if cfg.CacheBoundBytes != 64*1024*1024 {
		t.Fatalf("expected cache bound to keep its default, got %d", cfg.CacheBoundBytes)
	}
	if len(cfg.Extensions) != 3 {
		t.Fatalf("expected extensions to keep their default, got %+v", cfg.Extensions)
	}
}

func TestLoadConfigFileMissingReturnsError(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
