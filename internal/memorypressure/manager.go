// Package memorypressure watches the template cache's aggregate byte
// size against configured thresholds and triggers eviction callbacks
// before the process is forced to grow unbounded (spec §4.10). It is
// adapted from a page-level memory manager; this dev tool tracks one
// resource (the cache's byte budget) rather than per-page allocations.
package memorypressure

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls the pressure thresholds and monitoring cadence.
type Config struct {
	MaxBytes             int64
	WarningThresholdPct  int
	CriticalThresholdPct int
	CheckInterval        time.Duration
	EnableGCOnCritical   bool
}

// DefaultConfig matches the cache's own default bound (64 MiB) with a
// 75%/90% warning/critical split, checked once every 10 seconds -- a dev
// session doesn't need the sub-minute cadence a production server would.
func DefaultConfig() *Config {
	return &Config{
		MaxBytes:             64 * 1024 * 1024,
		WarningThresholdPct:  75,
		CriticalThresholdPct: 90,
		CheckInterval:        10 * time.Second,
		EnableGCOnCritical:   true,
	}
}

// Level classifies current usage against the configured thresholds.
type Level string

const (
	LevelOK       Level = "ok"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Thresholds are the byte-denominated trigger points derived from Config.
type Thresholds struct {
	WarningBytes  int64
	CriticalBytes int64
}

// Statistics accumulates pressure-event history for the /stats endpoint.
type Statistics struct {
	PressureEvents    int64
	LastPressureEvent time.Time
	GCTriggerCount    int64
	StartTime         time.Time
}

// Callbacks fire on level transitions, not on every check -- a caller
// wiring eviction should only act when pressure actually changes state.
type Callbacks struct {
	OnWarning  func(Status)
	OnCritical func(Status)
	OnRecovery func(Status)
}

// Status is a point-in-time snapshot of cache memory pressure.
type Status struct {
	CurrentBytes    int64
	MaxBytes        int64
	UsagePercentage float64
	Level           Level
	Thresholds      Thresholds
	Statistics      Statistics
}

// UsageFunc reports the cache's current aggregate byte size; the
// manager polls it rather than owning the cache directly, so it can
// watch any size-reporting source.
type UsageFunc func() int64

// Manager polls a UsageFunc on an interval and fires Callbacks on level
// transitions.
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	thresholds Thresholds
	usage      UsageFunc
	callbacks  Callbacks
	stats      Statistics

	lastLevel atomic.Value // Level

	ticker *time.Ticker
	stop   chan struct{}
}

// New creates a Manager. Call Start to begin the background poll loop.
func New(config *Config, usage UsageFunc) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	m := &Manager{
		config: config,
		usage:  usage,
		thresholds: Thresholds{
			WarningBytes:  config.MaxBytes * int64(config.WarningThresholdPct) / 100,
			CriticalBytes: config.MaxBytes * int64(config.CriticalThresholdPct) / 100,
		},
		stats: Statistics{StartTime: time.Now()},
		stop:  make(chan struct{}),
	}
	m.lastLevel.Store(LevelOK)
	return m
}

// SetCallbacks registers the pressure-transition callbacks.
func (m *Manager) SetCallbacks(cb Callbacks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = cb
}

// Start begins polling Config.CheckInterval until Stop is called.
func (m *Manager) Start() {
	if m.config.CheckInterval <= 0 {
		return
	}
	m.ticker = time.NewTicker(m.config.CheckInterval)
	go func() {
		for {
			select {
			case <-m.ticker.C:
				m.check()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop halts the background poll loop.
func (m *Manager) Stop() {
	if m.ticker != nil {
		m.ticker.Stop()
	}
	close(m.stop)
}

func (m *Manager) check() {
	status := m.Status()
	prev := m.lastLevel.Load().(Level)
	if status.Level == prev {
		return
	}
	m.lastLevel.Store(status.Level)

	m.mu.RLock()
	cb := m.callbacks
	m.mu.RUnlock()

	switch status.Level {
	case LevelCritical:
		atomic.AddInt64(&m.stats.PressureEvents, 1)
		m.stats.LastPressureEvent = time.Now()
		if cb.OnCritical != nil {
			go cb.OnCritical(status)
		}
		if m.config.EnableGCOnCritical {
			runtime.GC()
			atomic.AddInt64(&m.stats.GCTriggerCount, 1)
		}
	case LevelWarning:
		if cb.OnWarning != nil {
			go cb.OnWarning(status)
		}
	case LevelOK:
		if prev != LevelOK && cb.OnRecovery != nil {
			go cb.OnRecovery(status)
		}
	}
}

// Status returns a snapshot without waiting for the next poll tick.
func (m *Manager) Status() Status {
	current := m.usage()
	level := LevelOK
	switch {
	case current >= m.thresholds.CriticalBytes:
		level = LevelCritical
	case current >= m.thresholds.WarningBytes:
		level = LevelWarning
	}
	var pct float64
	if m.config.MaxBytes > 0 {
		pct = float64(current) / float64(m.config.MaxBytes) * 100
	}
	return Status{
		CurrentBytes:    current,
		MaxBytes:        m.config.MaxBytes,
		UsagePercentage: pct,
		Level:           level,
		Thresholds:      m.thresholds,
		Statistics:      m.stats,
	}
}

// IsAtCapacity reports whether usage has crossed the critical threshold.
func (m *Manager) IsAtCapacity() bool {
	return m.Status().Level == LevelCritical
}
