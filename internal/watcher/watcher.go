// Package watcher recursively watches a project's source roots and
// turns raw filesystem events into classified, debounced change batches
// for the reload pipeline to act on (spec §4.5).
package watcher

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config controls which paths are watched and how change bursts are
// coalesced before being handed to a consumer.
type Config struct {
	Roots           []string
	Extensions      []string // e.g. ".go"; empty means every file is a candidate
	ExcludePatterns []string
	DebounceWindow  time.Duration // resets on every new event for the same path
	DebounceCeiling time.Duration // hard cap so a file under constant churn still flushes
	QueueSize       int           // bounded outbound channel; oldest batch is dropped on overflow
}

// DefaultConfig matches SPEC_FULL §4.5: a 100ms debounce window with a
// 500ms hard ceiling, and the exclude patterns a typical Go web project
// never wants re-triggering a reload.
func DefaultConfig(roots ...string) Config {
	return Config{
		Roots:           roots,
		Extensions:      []string{".go", ".css", ".js"},
		ExcludePatterns: []string{".git", "node_modules", "vendor", "tmp", ".DS_Store"},
		DebounceWindow:  100 * time.Millisecond,
		DebounceCeiling: 500 * time.Millisecond,
		QueueSize:       32,
	}
}

// Batch is one coalesced, debounced group of changed file paths, handed
// to the consumer for classification and further processing.
type Batch struct {
	Paths []string
	At    time.Time
}

// Watcher recursively watches Config.Roots and emits debounced Batches
// on Events. The retry loop for failed fsnotify.Add calls (new
// directories created under a watched root, or a root that didn't exist
// at startup) uses capped exponential backoff, the same schedule as
// readWithRetry in classify.go.
type Watcher struct {
	cfg     Config
	fsw     *fsnotify.Watcher
	Events  chan Batch
	Errors  chan error
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

// New creates a Watcher and performs the initial recursive Add over
// every root. It does not start the event loop; call Run for that.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}
	w := &Watcher{
		cfg:    cfg,
		fsw:    fsw,
		Events: make(chan Batch, cfg.QueueSize),
		Errors: make(chan error, 8),
		done:   make(chan struct{}),
	}
	for _, root := range cfg.Roots {
		if err := w.addRecursive(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort; a single unreadable subtree shouldn't abort startup
		}
		if d.IsDir() {
			if w.excluded(path) {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("watcher: add %s: %w", path, err)
			}
		}
		return nil
	})
}

func (w *Watcher) excluded(path string) bool {
	for _, pat := range w.cfg.ExcludePatterns {
		if strings.Contains(path, pat) {
			return true
		}
	}
	return false
}

func (w *Watcher) relevant(path string) bool {
	if w.excluded(path) {
		return false
	}
	if len(w.cfg.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, e := range w.cfg.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Run drives the event loop until ctx is cancelled or Close is called.
// New directories are added to the watch set with backoff retry on
// failure (e.g. a transient permission error during a bulk checkout).
func (w *Watcher) Run(ctx context.Context) {
	pending := make(map[string]struct{})
	var mu sync.Mutex
	var flushTimer *time.Timer
	var firstPendingAt time.Time

	flush := func() {
		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]struct{})
		firstPendingAt = time.Time{}
		mu.Unlock()

		batch := Batch{Paths: paths, At: time.Now()}
		select {
		case w.Events <- batch:
		default:
			// queue full: drop the oldest waiting batch rather than block
			// the fsnotify read loop and risk losing subsequent events.
			select {
			case <-w.Events:
			default:
			}
			select {
			case w.Events <- batch:
			default:
			}
		}
	}

	resetTimer := func() {
		mu.Lock()
		now := time.Now()
		if firstPendingAt.IsZero() {
			firstPendingAt = now
		}
		elapsed := now.Sub(firstPendingAt)
		wait := w.cfg.DebounceWindow
		if elapsed+wait > w.cfg.DebounceCeiling {
			remaining := w.cfg.DebounceCeiling - elapsed
			if remaining <= 0 {
				mu.Unlock()
				flush()
				return
			}
			wait = remaining
		}
		mu.Unlock()
		if flushTimer == nil {
			flushTimer = time.AfterFunc(wait, flush)
		} else {
			flushTimer.Reset(wait)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.addWithRetry(ev.Name)
				}
			}
			if !w.relevant(ev.Name) {
				continue
			}
			mu.Lock()
			pending[ev.Name] = struct{}{}
			mu.Unlock()
			resetTimer()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			default:
				log.Printf("watcher: dropping error, consumer not keeping up: %v", err)
			}
		}
	}
}

// addWithRetry retries fsnotify.Add with capped exponential backoff:
// 100ms, 1s, 5s, 5s, 5s (5 attempts), matching SPEC_FULL §4.5.
func (w *Watcher) addWithRetry(path string) {
	delays := []time.Duration{100 * time.Millisecond, time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}
	go func() {
		for _, d := range delays {
			if err := w.fsw.Add(path); err == nil {
				return
			}
			time.Sleep(d)
		}
		log.Printf("watcher: giving up adding %s after %d attempts", path, len(delays))
	}()
}

// Close stops the event loop and releases the underlying fsnotify
// watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	w.closeMu.Lock()
	defer w.closeMu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	return w.fsw.Close()
}
