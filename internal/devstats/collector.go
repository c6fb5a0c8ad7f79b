// Package devstats collects in-process counters for the reload session and
// exposes them to the broadcast server's /stats endpoint and to a Prometheus
// scrape, with no external metrics backend required for a local dev tool.
package devstats

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector accumulates counters for one reload session's lifetime.
type Collector struct {
	session           *SessionMetrics
	operationCounters map[string]*int64
	mu                sync.RWMutex
	startTime         time.Time

	totalDiffTime        int64
	totalOriginalBytes   int64
	totalCompressedBytes int64
}

// SessionMetrics tracks reload-session performance data.
type SessionMetrics struct {
	// Template lifecycle
	SitesExtracted  int64 `json:"sites_extracted"`
	SitesInvalidated int64 `json:"sites_invalidated"`
	ExtractErrors   int64 `json:"extract_errors"`

	// Connection lifecycle
	ConnectionsOpened int64 `json:"connections_opened"`
	ConnectionsClosed int64 `json:"connections_closed"`
	ActiveConnections int64 `json:"active_connections"`
	MaxConnections    int64 `json:"max_connections"`

	// Instance token operations
	TokensIssued   int64 `json:"tokens_issued"`
	TokensVerified int64 `json:"tokens_verified"`
	TokenFailures  int64 `json:"token_failures"`

	// Reload delivery
	DeltaUpdatesSent  int64 `json:"delta_updates_sent"`
	BatchUpdatesSent  int64 `json:"batch_updates_sent"`
	FullReloadsSent   int64 `json:"full_reloads_sent"`
	DeliveryErrors    int64 `json:"delivery_errors"`

	// Diff engine performance
	DiffsPerformed      int64         `json:"diffs_performed"`
	DiffErrors          int64         `json:"diff_errors"`
	DiffTotalTime       int64         `json:"diff_total_time_ns"`
	DiffAverageTime     time.Duration `json:"diff_average_time"`
	OpsPerDiffAverage   float64       `json:"ops_per_diff_average"`
	TotalOpsEmitted     int64         `json:"total_ops_emitted"`

	// Watcher activity
	FileEventsObserved int64 `json:"file_events_observed"`
	BatchesDebounced   int64 `json:"batches_debounced"`
	WatchErrors        int64 `json:"watch_errors"`

	// Wire bandwidth
	OriginalBytes       int64   `json:"original_bytes"`
	CompressedBytes     int64   `json:"compressed_bytes"`
	TotalBytesSaved     int64   `json:"total_bytes_saved"`
	BandwidthSavingsPct float64 `json:"bandwidth_savings_pct"`
	AverageCompressionRatio float64 `json:"average_compression_ratio"`

	// Cache
	CacheHits      int64 `json:"cache_hits"`
	CacheMisses    int64 `json:"cache_misses"`
	CacheEvictions int64 `json:"cache_evictions"`

	// Memory pressure
	PressureWarnings  int64 `json:"pressure_warnings"`
	PressureCriticals int64 `json:"pressure_criticals"`

	StartTime time.Time     `json:"start_time"`
	Uptime    time.Duration `json:"uptime"`
}

// NewCollector creates an empty Collector, its clock starting now.
func NewCollector() *Collector {
	return &Collector{
		session: &SessionMetrics{
			StartTime:               time.Now(),
			AverageCompressionRatio: 1.0,
		},
		operationCounters: make(map[string]*int64),
		startTime:         time.Now(),
	}
}

// Extraction

func (c *Collector) IncrementSitesExtracted(n int64) {
	atomic.AddInt64(&c.session.SitesExtracted, n)
}

func (c *Collector) IncrementSitesInvalidated(n int64) {
	atomic.AddInt64(&c.session.SitesInvalidated, n)
}

func (c *Collector) IncrementExtractError() {
	atomic.AddInt64(&c.session.ExtractErrors, 1)
}

// Connections

func (c *Collector) IncrementConnectionOpened() {
	atomic.AddInt64(&c.session.ConnectionsOpened, 1)
	active := atomic.AddInt64(&c.session.ActiveConnections, 1)
	for {
		max := atomic.LoadInt64(&c.session.MaxConnections)
		if active <= max {
			break
		}
		if atomic.CompareAndSwapInt64(&c.session.MaxConnections, max, active) {
			break
		}
	}
}

func (c *Collector) IncrementConnectionClosed() {
	atomic.AddInt64(&c.session.ConnectionsClosed, 1)
	atomic.AddInt64(&c.session.ActiveConnections, -1)
}

// Tokens

func (c *Collector) IncrementTokenIssued()   { atomic.AddInt64(&c.session.TokensIssued, 1) }
func (c *Collector) IncrementTokenVerified() { atomic.AddInt64(&c.session.TokensVerified, 1) }
func (c *Collector) IncrementTokenFailure()  { atomic.AddInt64(&c.session.TokenFailures, 1) }

// Delivery

func (c *Collector) IncrementDeltaUpdateSent() { atomic.AddInt64(&c.session.DeltaUpdatesSent, 1) }
func (c *Collector) IncrementBatchUpdateSent()  { atomic.AddInt64(&c.session.BatchUpdatesSent, 1) }
func (c *Collector) IncrementFullReloadSent()   { atomic.AddInt64(&c.session.FullReloadsSent, 1) }
func (c *Collector) IncrementDeliveryError()    { atomic.AddInt64(&c.session.DeliveryErrors, 1) }

// Diff engine

// RecordDiffPerformed records a successful diff, its duration and op count.
func (c *Collector) RecordDiffPerformed(duration time.Duration, opCount int) {
	atomic.AddInt64(&c.session.DiffsPerformed, 1)
	atomic.AddInt64(&c.session.DiffTotalTime, duration.Nanoseconds())
	atomic.AddInt64(&c.totalDiffTime, duration.Nanoseconds())
	atomic.AddInt64(&c.session.TotalOpsEmitted, int64(opCount))
}

func (c *Collector) RecordDiffError() {
	atomic.AddInt64(&c.session.DiffErrors, 1)
}

// Watcher

func (c *Collector) IncrementFileEventsObserved(n int64) {
	atomic.AddInt64(&c.session.FileEventsObserved, n)
}

func (c *Collector) IncrementBatchDebounced() {
	atomic.AddInt64(&c.session.BatchesDebounced, 1)
}

func (c *Collector) IncrementWatchError() {
	atomic.AddInt64(&c.session.WatchErrors, 1)
}

// Bandwidth

// RecordBandwidth records the pre/post compression size of one outbound frame.
func (c *Collector) RecordBandwidth(originalSize, compressedSize int64) {
	atomic.AddInt64(&c.session.OriginalBytes, originalSize)
	atomic.AddInt64(&c.session.CompressedBytes, compressedSize)
	atomic.AddInt64(&c.totalOriginalBytes, originalSize)
	atomic.AddInt64(&c.totalCompressedBytes, compressedSize)

	if saved := originalSize - compressedSize; saved > 0 {
		atomic.AddInt64(&c.session.TotalBytesSaved, saved)
	}
}

func (c *Collector) updateBandwidthMetrics() {
	totalOriginal := atomic.LoadInt64(&c.session.OriginalBytes)
	totalCompressed := atomic.LoadInt64(&c.session.CompressedBytes)
	if totalOriginal > 0 {
		c.session.BandwidthSavingsPct = float64(totalOriginal-totalCompressed) / float64(totalOriginal) * 100.0
		c.session.AverageCompressionRatio = float64(totalCompressed) / float64(totalOriginal)
	}
}

// Cache

func (c *Collector) IncrementCacheHit()      { atomic.AddInt64(&c.session.CacheHits, 1) }
func (c *Collector) IncrementCacheMiss()     { atomic.AddInt64(&c.session.CacheMisses, 1) }
func (c *Collector) IncrementCacheEviction(n int64) {
	atomic.AddInt64(&c.session.CacheEvictions, n)
}

// Memory pressure

func (c *Collector) IncrementPressureWarning()  { atomic.AddInt64(&c.session.PressureWarnings, 1) }
func (c *Collector) IncrementPressureCritical() { atomic.AddInt64(&c.session.PressureCriticals, 1) }

// IncrementCustomCounter bumps a named counter not otherwise tracked above.
func (c *Collector) IncrementCustomCounter(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if counter, exists := c.operationCounters[name]; exists {
		atomic.AddInt64(counter, 1)
		return
	}
	var n int64 = 1
	c.operationCounters[name] = &n
}

// GetCustomCounters returns a snapshot of all custom counters.
func (c *Collector) GetCustomCounters() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make(map[string]int64, len(c.operationCounters))
	for name, counter := range c.operationCounters {
		result[name] = atomic.LoadInt64(counter)
	}
	return result
}

// GetMetrics returns a consistent snapshot of session metrics, suitable for
// JSON serving via the /stats endpoint's StatsProvider.Snapshot.
func (c *Collector) GetMetrics() SessionMetrics {
	c.updateBandwidthMetrics()

	totalDiffs := atomic.LoadInt64(&c.session.DiffsPerformed)
	var avgDiffTime time.Duration
	var opsPerDiff float64
	if totalDiffs > 0 {
		totalTime := atomic.LoadInt64(&c.session.DiffTotalTime)
		avgDiffTime = time.Duration(totalTime / totalDiffs)
		opsPerDiff = float64(atomic.LoadInt64(&c.session.TotalOpsEmitted)) / float64(totalDiffs)
	}

	return SessionMetrics{
		SitesExtracted:    atomic.LoadInt64(&c.session.SitesExtracted),
		SitesInvalidated:  atomic.LoadInt64(&c.session.SitesInvalidated),
		ExtractErrors:     atomic.LoadInt64(&c.session.ExtractErrors),

		ConnectionsOpened: atomic.LoadInt64(&c.session.ConnectionsOpened),
		ConnectionsClosed: atomic.LoadInt64(&c.session.ConnectionsClosed),
		ActiveConnections: atomic.LoadInt64(&c.session.ActiveConnections),
		MaxConnections:    atomic.LoadInt64(&c.session.MaxConnections),

		TokensIssued:   atomic.LoadInt64(&c.session.TokensIssued),
		TokensVerified: atomic.LoadInt64(&c.session.TokensVerified),
		TokenFailures:  atomic.LoadInt64(&c.session.TokenFailures),

		DeltaUpdatesSent: atomic.LoadInt64(&c.session.DeltaUpdatesSent),
		BatchUpdatesSent: atomic.LoadInt64(&c.session.BatchUpdatesSent),
		FullReloadsSent:  atomic.LoadInt64(&c.session.FullReloadsSent),
		DeliveryErrors:   atomic.LoadInt64(&c.session.DeliveryErrors),

		DiffsPerformed:    totalDiffs,
		DiffErrors:        atomic.LoadInt64(&c.session.DiffErrors),
		DiffTotalTime:     atomic.LoadInt64(&c.session.DiffTotalTime),
		DiffAverageTime:   avgDiffTime,
		OpsPerDiffAverage: opsPerDiff,
		TotalOpsEmitted:   atomic.LoadInt64(&c.session.TotalOpsEmitted),

		FileEventsObserved: atomic.LoadInt64(&c.session.FileEventsObserved),
		BatchesDebounced:   atomic.LoadInt64(&c.session.BatchesDebounced),
		WatchErrors:        atomic.LoadInt64(&c.session.WatchErrors),

		OriginalBytes:           atomic.LoadInt64(&c.session.OriginalBytes),
		CompressedBytes:         atomic.LoadInt64(&c.session.CompressedBytes),
		TotalBytesSaved:         atomic.LoadInt64(&c.session.TotalBytesSaved),
		BandwidthSavingsPct:     c.session.BandwidthSavingsPct,
		AverageCompressionRatio: c.session.AverageCompressionRatio,

		CacheHits:      atomic.LoadInt64(&c.session.CacheHits),
		CacheMisses:    atomic.LoadInt64(&c.session.CacheMisses),
		CacheEvictions: atomic.LoadInt64(&c.session.CacheEvictions),

		PressureWarnings:  atomic.LoadInt64(&c.session.PressureWarnings),
		PressureCriticals: atomic.LoadInt64(&c.session.PressureCriticals),

		StartTime: c.session.StartTime,
		Uptime:    time.Since(c.startTime),
	}
}

// Snapshot implements broadcast.StatsProvider.
func (c *Collector) Snapshot() any {
	return c.GetMetrics()
}

// GetCacheHitRate returns the cache hit rate as a percentage.
func (c *Collector) GetCacheHitRate() float64 {
	hits := atomic.LoadInt64(&c.session.CacheHits)
	misses := atomic.LoadInt64(&c.session.CacheMisses)
	total := hits + misses
	if total == 0 {
		return 100.0
	}
	return float64(hits) / float64(total) * 100.0
}

// GetTokenSuccessRate returns the token verification success rate.
func (c *Collector) GetTokenSuccessRate() float64 {
	verified := atomic.LoadInt64(&c.session.TokensVerified)
	failures := atomic.LoadInt64(&c.session.TokenFailures)
	total := verified + failures
	if total == 0 {
		return 100.0
	}
	return float64(verified) / float64(total) * 100.0
}

// GetDeliverySuccessRate returns the fraction of sends that did not
// degrade to a full reload, as a percentage.
func (c *Collector) GetDeliverySuccessRate() float64 {
	targeted := atomic.LoadInt64(&c.session.DeltaUpdatesSent) + atomic.LoadInt64(&c.session.BatchUpdatesSent)
	full := atomic.LoadInt64(&c.session.FullReloadsSent)
	total := targeted + full
	if total == 0 {
		return 100.0
	}
	return float64(targeted) / float64(total) * 100.0
}

// Reset zeroes all counters and restarts the uptime clock; used between
// independent dev-server runs in the same process, chiefly in tests.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	*c.session = SessionMetrics{
		StartTime:               time.Now(),
		AverageCompressionRatio: 1.0,
	}
	c.totalDiffTime = 0
	c.totalOriginalBytes = 0
	c.totalCompressedBytes = 0
	c.operationCounters = make(map[string]*int64)
	c.startTime = time.Now()
}

// Prometheus export

type PrometheusMetrics struct {
	Metrics []PrometheusMetric `json:"metrics"`
}

type PrometheusMetric struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Help   string            `json:"help"`
	Value  interface{}       `json:"value"`
	Labels map[string]string `json:"labels,omitempty"`
}

// ExportPrometheusMetrics returns session metrics in Prometheus shape.
func (c *Collector) ExportPrometheusMetrics() *PrometheusMetrics {
	m := c.GetMetrics()
	return &PrometheusMetrics{
		Metrics: []PrometheusMetric{
			{Name: "livereload_sites_extracted_total", Type: "counter", Help: "Total template call sites extracted", Value: m.SitesExtracted},
			{Name: "livereload_extract_errors_total", Type: "counter", Help: "Total extraction errors", Value: m.ExtractErrors},

			{Name: "livereload_connections_opened_total", Type: "counter", Help: "Total WebSocket connections opened", Value: m.ConnectionsOpened},
			{Name: "livereload_active_connections", Type: "gauge", Help: "Current open WebSocket connections", Value: m.ActiveConnections},
			{Name: "livereload_max_connections", Type: "gauge", Help: "Maximum concurrent connections observed", Value: m.MaxConnections},

			{Name: "livereload_tokens_issued_total", Type: "counter", Help: "Total instance tokens issued", Value: m.TokensIssued},
			{Name: "livereload_tokens_verified_total", Type: "counter", Help: "Total instance tokens verified", Value: m.TokensVerified},
			{Name: "livereload_token_failures_total", Type: "counter", Help: "Total instance token verification failures", Value: m.TokenFailures},

			{Name: "livereload_delta_updates_sent_total", Type: "counter", Help: "Total delta update messages sent", Value: m.DeltaUpdatesSent},
			{Name: "livereload_batch_updates_sent_total", Type: "counter", Help: "Total batch update messages sent", Value: m.BatchUpdatesSent},
			{Name: "livereload_full_reloads_sent_total", Type: "counter", Help: "Total full reload messages sent", Value: m.FullReloadsSent},

			{Name: "livereload_diffs_performed_total", Type: "counter", Help: "Total AST diffs performed", Value: m.DiffsPerformed},
			{Name: "livereload_diff_errors_total", Type: "counter", Help: "Total AST diff errors", Value: m.DiffErrors},
			{Name: "livereload_diff_duration_seconds", Type: "gauge", Help: "Average diff operation duration", Value: m.DiffAverageTime.Seconds()},
			{Name: "livereload_ops_per_diff_average", Type: "gauge", Help: "Average delta operations emitted per diff", Value: m.OpsPerDiffAverage},

			{Name: "livereload_file_events_observed_total", Type: "counter", Help: "Total filesystem events observed", Value: m.FileEventsObserved},
			{Name: "livereload_batches_debounced_total", Type: "counter", Help: "Total debounced change batches flushed", Value: m.BatchesDebounced},
			{Name: "livereload_watch_errors_total", Type: "counter", Help: "Total filesystem watch errors", Value: m.WatchErrors},

			{Name: "livereload_original_bytes_total", Type: "counter", Help: "Total original bytes before compression", Value: m.OriginalBytes},
			{Name: "livereload_compressed_bytes_total", Type: "counter", Help: "Total compressed bytes after encoding", Value: m.CompressedBytes},
			{Name: "livereload_bytes_saved_total", Type: "counter", Help: "Total bytes saved through diffing and compression", Value: m.TotalBytesSaved},
			{Name: "livereload_bandwidth_savings_percent", Type: "gauge", Help: "Bandwidth savings percentage", Value: m.BandwidthSavingsPct},
			{Name: "livereload_compression_ratio", Type: "gauge", Help: "Average compression ratio", Value: m.AverageCompressionRatio},

			{Name: "livereload_cache_hits_total", Type: "counter", Help: "Total cache hits", Value: m.CacheHits},
			{Name: "livereload_cache_misses_total", Type: "counter", Help: "Total cache misses", Value: m.CacheMisses},
			{Name: "livereload_cache_evictions_total", Type: "counter", Help: "Total cache evictions", Value: m.CacheEvictions},

			{Name: "livereload_pressure_warnings_total", Type: "counter", Help: "Total memory pressure warning transitions", Value: m.PressureWarnings},
			{Name: "livereload_pressure_criticals_total", Type: "counter", Help: "Total memory pressure critical transitions", Value: m.PressureCriticals},

			{Name: "livereload_uptime_seconds", Type: "gauge", Help: "Reload session uptime in seconds", Value: m.Uptime.Seconds()},
		},
	}
}

// ExportPrometheusText renders metrics in the Prometheus text exposition format.
func (c *Collector) ExportPrometheusText() string {
	pm := c.ExportPrometheusMetrics()
	var b strings.Builder
	for _, metric := range pm.Metrics {
		b.WriteString(fmt.Sprintf("# HELP %s %s\n", metric.Name, metric.Help))
		b.WriteString(fmt.Sprintf("# TYPE %s %s\n", metric.Name, metric.Type))
		if len(metric.Labels) > 0 {
			pairs := make([]string, 0, len(metric.Labels))
			for k, v := range metric.Labels {
				pairs = append(pairs, fmt.Sprintf(`%s="%s"`, k, v))
			}
			b.WriteString(fmt.Sprintf("%s{%s} %v\n", metric.Name, strings.Join(pairs, ","), metric.Value))
		} else {
			b.WriteString(fmt.Sprintf("%s %v\n", metric.Name, metric.Value))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ExportPrometheusJSON renders metrics as JSON, for consumers that prefer
// it over the text exposition format.
func (c *Collector) ExportPrometheusJSON() (string, error) {
	pm := c.ExportPrometheusMetrics()
	data, err := json.MarshalIndent(pm, "", "  ")
	if err != nil {
		return "", fmt.Errorf("devstats: marshal prometheus metrics: %w", err)
	}
	return string(data), nil
}
