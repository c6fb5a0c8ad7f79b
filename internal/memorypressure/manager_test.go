package memorypressure

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStatusLevels(t *testing.T) {
	var current int64
	m := New(&Config{MaxBytes: 1000, WarningThresholdPct: 50, CriticalThresholdPct: 80}, func() int64 {
		return atomic.LoadInt64(&current)
	})

	atomic.StoreInt64(&current, 100)
	if got := m.Status().Level; got != LevelOK {
		t.Fatalf("expected OK, got %s", got)
	}

	atomic.StoreInt64(&current, 600)
	if got := m.Status().Level; got != LevelWarning {
		t.Fatalf("expected warning, got %s", got)
	}

	atomic.StoreInt64(&current, 900)
	if got := m.Status().Level; got != LevelCritical {
		t.Fatalf("expected critical, got %s", got)
	}
	if !m.IsAtCapacity() {
		t.Fatal("expected IsAtCapacity true at 900/1000 with 80% critical threshold")
	}
}

func TestCallbacksFireOnTransition(t *testing.T) {
	var current int64
	m := New(&Config{MaxBytes: 1000, WarningThresholdPct: 50, CriticalThresholdPct: 80, CheckInterval: 0}, func() int64 {
		return atomic.LoadInt64(&current)
	})

	warned := make(chan struct{}, 1)
	m.SetCallbacks(Callbacks{
		OnWarning: func(Status) { warned <- struct{}{} },
	})

	atomic.StoreInt64(&current, 600)
	m.check()

	select {
	case <-warned:
	case <-time.After(time.Second):
		t.Fatal("expected OnWarning callback to fire")
	}
}

func TestStartStopLeavesNoPollGoroutineBehind(t *testing.T) {
	var current int64
	m := New(&Config{MaxBytes: 1000, WarningThresholdPct: 50, CriticalThresholdPct: 80, CheckInterval: 5 * time.Millisecond}, func() int64 {
		return atomic.LoadInt64(&current)
	})

	critical := make(chan struct{}, 1)
	m.SetCallbacks(Callbacks{OnCritical: func(Status) {
		select {
		case critical <- struct{}{}:
		default:
		}
	}})

	atomic.StoreInt64(&current, 900)
	m.Start()

	select {
	case <-critical:
	case <-time.After(time.Second):
		t.Fatal("expected the poll loop to observe the critical threshold")
	}
	m.Stop()
}
