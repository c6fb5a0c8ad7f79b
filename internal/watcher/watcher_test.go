package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitForBatch(t *testing.T, events <-chan Batch, within time.Duration) Batch {
	t.Helper()
	select {
	case b := <-events:
		return b
	case <-time.After(within):
		t.Fatalf("timed out after %s waiting for a batch", within)
		return Batch{}
	}
}

func assertNoBatch(t *testing.T, events <-chan Batch, within time.Duration) {
	t.Helper()
	select {
	case b := <-events:
		t.Fatalf("expected no further batch, got %+v", b)
	case <-time.After(within):
	}
}

func TestRunCoalescesRapidEventsIntoOneBatch(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Roots:           []string{dir},
		Extensions:      []string{".txt"},
		DebounceWindow:  20 * time.Millisecond,
		DebounceCeiling: 500 * time.Millisecond,
		QueueSize:       8,
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	path := filepath.Join(dir, "a.txt")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte(i)}, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	batch := waitForBatch(t, w.Events, time.Second)
	if len(batch.Paths) != 1 || batch.Paths[0] != path {
		t.Fatalf("expected a single-path batch for %s, got %+v", path, batch.Paths)
	}

	// Every rapid write reset the same debounce window for the same path,
	// so only one batch should ever come out of this burst.
	assertNoBatch(t, w.Events, 150*time.Millisecond)
}

func TestRunFlushesAtDebounceCeilingUnderConstantChurn(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Roots:           []string{dir},
		Extensions:      []string{".txt"},
		DebounceWindow:  30 * time.Millisecond,
		DebounceCeiling: 80 * time.Millisecond,
		QueueSize:       8,
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	path := filepath.Join(dir, "a.txt")
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			os.WriteFile(path, []byte{byte(i)}, 0o644)
			time.Sleep(15 * time.Millisecond)
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	// Each write arrives well inside the 30ms debounce window, so without
	// the ceiling the timer would keep resetting forever; the 80ms
	// ceiling must force a flush while the churn is still ongoing.
	waitForBatch(t, w.Events, 300*time.Millisecond)
}

func TestRunDropsOldestBatchOnQueueOverflow(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Roots:           []string{dir},
		Extensions:      []string{".txt"},
		DebounceWindow:  10 * time.Millisecond,
		DebounceCeiling: 20 * time.Millisecond,
		QueueSize:       1,
	}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")

	// Produce two separate batches without ever draining w.Events, so the
	// second flush finds the bounded queue already full of the first.
	if err := os.WriteFile(pathA, []byte("a"), 0o644); err != nil {
		t.Fatalf("write a: %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	if err := os.WriteFile(pathB, []byte("b"), 0o644); err != nil {
		t.Fatalf("write b: %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	batch := waitForBatch(t, w.Events, time.Second)
	if len(batch.Paths) != 1 || batch.Paths[0] != pathB {
		t.Fatalf("expected only the newer batch (%s) to survive overflow, got %+v", pathB, batch.Paths)
	}
	assertNoBatch(t, w.Events, 100*time.Millisecond)
}
