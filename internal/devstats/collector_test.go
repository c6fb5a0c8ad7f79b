package devstats

import (
	"strings"
	"testing"
	"time"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()

	if c.session == nil {
		t.Fatal("session not initialized")
	}
	if c.operationCounters == nil {
		t.Fatal("operationCounters not initialized")
	}

	m := c.GetMetrics()
	if m.AverageCompressionRatio != 1.0 {
		t.Errorf("expected initial compression ratio 1.0, got %f", m.AverageCompressionRatio)
	}
}

func TestConnectionMetrics(t *testing.T) {
	c := NewCollector()

	c.IncrementConnectionOpened()
	c.IncrementConnectionOpened()
	c.IncrementConnectionOpened()

	m := c.GetMetrics()
	if m.ConnectionsOpened != 3 {
		t.Errorf("expected 3 connections opened, got %d", m.ConnectionsOpened)
	}
	if m.ActiveConnections != 3 {
		t.Errorf("expected 3 active connections, got %d", m.ActiveConnections)
	}
	if m.MaxConnections != 3 {
		t.Errorf("expected max connections 3, got %d", m.MaxConnections)
	}

	c.IncrementConnectionClosed()
	m = c.GetMetrics()
	if m.ConnectionsClosed != 1 {
		t.Errorf("expected 1 connection closed, got %d", m.ConnectionsClosed)
	}
	if m.ActiveConnections != 2 {
		t.Errorf("expected 2 active connections after close, got %d", m.ActiveConnections)
	}
	if m.MaxConnections != 3 {
		t.Errorf("expected max connections to remain 3, got %d", m.MaxConnections)
	}
}

func TestTokenMetricsAndSuccessRate(t *testing.T) {
	c := NewCollector()

	c.IncrementTokenVerified()
	c.IncrementTokenVerified()
	c.IncrementTokenFailure()

	m := c.GetMetrics()
	if m.TokensVerified != 2 {
		t.Errorf("expected 2 tokens verified, got %d", m.TokensVerified)
	}
	if m.TokenFailures != 1 {
		t.Errorf("expected 1 token failure, got %d", m.TokenFailures)
	}

	rate := c.GetTokenSuccessRate()
	if rate < 66.0 || rate > 67.0 {
		t.Errorf("expected success rate ~66.67%%, got %f", rate)
	}
}

func TestDiffMetrics(t *testing.T) {
	c := NewCollector()

	c.RecordDiffPerformed(10*time.Millisecond, 4)
	c.RecordDiffPerformed(20*time.Millisecond, 6)

	m := c.GetMetrics()
	if m.DiffsPerformed != 2 {
		t.Errorf("expected 2 diffs performed, got %d", m.DiffsPerformed)
	}
	if m.TotalOpsEmitted != 10 {
		t.Errorf("expected 10 total ops emitted, got %d", m.TotalOpsEmitted)
	}
	if m.OpsPerDiffAverage != 5.0 {
		t.Errorf("expected average 5 ops per diff, got %f", m.OpsPerDiffAverage)
	}
	if m.DiffAverageTime != 15*time.Millisecond {
		t.Errorf("expected average diff time 15ms, got %s", m.DiffAverageTime)
	}
}

func TestBandwidthMetrics(t *testing.T) {
	c := NewCollector()

	c.RecordBandwidth(1000, 400)
	c.RecordBandwidth(500, 300)

	m := c.GetMetrics()
	if m.OriginalBytes != 1500 {
		t.Errorf("expected 1500 original bytes, got %d", m.OriginalBytes)
	}
	if m.CompressedBytes != 700 {
		t.Errorf("expected 700 compressed bytes, got %d", m.CompressedBytes)
	}
	if m.TotalBytesSaved != 800 {
		t.Errorf("expected 800 bytes saved, got %d", m.TotalBytesSaved)
	}
	wantPct := float64(800) / float64(1500) * 100.0
	if m.BandwidthSavingsPct != wantPct {
		t.Errorf("expected savings pct %f, got %f", wantPct, m.BandwidthSavingsPct)
	}
}

func TestCacheHitRate(t *testing.T) {
	c := NewCollector()

	if rate := c.GetCacheHitRate(); rate != 100.0 {
		t.Errorf("expected 100%% hit rate with no operations, got %f", rate)
	}

	c.IncrementCacheHit()
	c.IncrementCacheHit()
	c.IncrementCacheHit()
	c.IncrementCacheMiss()

	rate := c.GetCacheHitRate()
	if rate != 75.0 {
		t.Errorf("expected 75%% hit rate, got %f", rate)
	}
}

func TestDeliverySuccessRate(t *testing.T) {
	c := NewCollector()

	c.IncrementDeltaUpdateSent()
	c.IncrementDeltaUpdateSent()
	c.IncrementBatchUpdateSent()
	c.IncrementFullReloadSent()

	rate := c.GetDeliverySuccessRate()
	if rate != 75.0 {
		t.Errorf("expected 75%% delivery success rate, got %f", rate)
	}
}

func TestCustomCounters(t *testing.T) {
	c := NewCollector()

	c.IncrementCustomCounter("watcher.retry")
	c.IncrementCustomCounter("watcher.retry")
	c.IncrementCustomCounter("watcher.giveup")

	counters := c.GetCustomCounters()
	if counters["watcher.retry"] != 2 {
		t.Errorf("expected watcher.retry=2, got %d", counters["watcher.retry"])
	}
	if counters["watcher.giveup"] != 1 {
		t.Errorf("expected watcher.giveup=1, got %d", counters["watcher.giveup"])
	}
}

func TestReset(t *testing.T) {
	c := NewCollector()
	c.IncrementConnectionOpened()
	c.RecordBandwidth(1000, 500)
	c.IncrementCustomCounter("x")

	c.Reset()

	m := c.GetMetrics()
	if m.ConnectionsOpened != 0 || m.OriginalBytes != 0 {
		t.Fatal("expected metrics to be zeroed after Reset")
	}
	if m.AverageCompressionRatio != 1.0 {
		t.Errorf("expected compression ratio reset to 1.0, got %f", m.AverageCompressionRatio)
	}
	if len(c.GetCustomCounters()) != 0 {
		t.Fatal("expected custom counters to be cleared after Reset")
	}
}

func TestSnapshotImplementsStatsProvider(t *testing.T) {
	c := NewCollector()
	c.IncrementConnectionOpened()

	snap := c.Snapshot()
	m, ok := snap.(SessionMetrics)
	if !ok {
		t.Fatalf("expected Snapshot to return SessionMetrics, got %T", snap)
	}
	if m.ActiveConnections != 1 {
		t.Errorf("expected 1 active connection in snapshot, got %d", m.ActiveConnections)
	}
}

func TestExportPrometheusText(t *testing.T) {
	c := NewCollector()
	c.IncrementConnectionOpened()
	c.RecordDiffPerformed(5*time.Millisecond, 2)

	text := c.ExportPrometheusText()
	if !strings.Contains(text, "livereload_active_connections") {
		t.Error("expected prometheus text to contain active connections metric")
	}
	if !strings.Contains(text, "# HELP") || !strings.Contains(text, "# TYPE") {
		t.Error("expected prometheus text to contain HELP/TYPE comments")
	}
}

func TestExportPrometheusJSON(t *testing.T) {
	c := NewCollector()
	c.IncrementCacheHit()

	jsonStr, err := c.ExportPrometheusJSON()
	if err != nil {
		t.Fatalf("ExportPrometheusJSON: %v", err)
	}
	if !strings.Contains(jsonStr, "livereload_cache_hits_total") {
		t.Error("expected JSON export to contain cache hits metric name")
	}
}
