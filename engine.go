package hotreload

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	gast "github.com/livefir/livereload/internal/ast"
	"github.com/livefir/livereload/internal/broadcast"
	"github.com/livefir/livereload/internal/cache"
	"github.com/livefir/livereload/internal/clientasset"
	"github.com/livefir/livereload/internal/devstats"
	"github.com/livefir/livereload/internal/diffengine"
	"github.com/livefir/livereload/internal/extractor"
	"github.com/livefir/livereload/internal/identity"
	"github.com/livefir/livereload/internal/memorypressure"
	"github.com/livefir/livereload/internal/protocol"
	"github.com/livefir/livereload/internal/token"
	"github.com/livefir/livereload/internal/watcher"
)

// Engine wires the watcher, extractor, cache, diff engine, wire protocol,
// and broadcast server into one running hot-reload session -- the
// dependency order of spec §2's component table.
type Engine struct {
	cfg    *Config
	logger Logger

	watcher    *watcher.Watcher
	classifier *watcher.Classifier
	extractor  *extractor.Extractor
	cache      *cache.Cache
	server     *broadcast.Server
	tokens     *token.Service
	pressure   *memorypressure.Manager
	stats      *devstats.Collector

	httpServer *http.Server

	codeAffecting chan CodeAffectingEvent
	stateStore    StateStore
}

// New builds an Engine from cfg and the supplied Options. It does not
// start watching or listening -- call Start for that.
func New(cfg *Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("hotreload: apply option: %w", err)
		}
	}

	w, err := watcher.New(watcher.Config{
		Roots:           cfg.WatchRoots,
		Extensions:      cfg.Extensions,
		ExcludePatterns: watcher.DefaultConfig().ExcludePatterns,
		DebounceWindow:  time.Duration(cfg.DebounceMS) * time.Millisecond,
		DebounceCeiling: 5 * time.Duration(cfg.DebounceMS) * time.Millisecond,
		QueueSize:       32,
	})
	if err != nil {
		return nil, fmt.Errorf("hotreload: start watcher: %w", err)
	}

	ext := extractor.New()
	tmplCache := cache.New(cache.Config{MaxSizeBytes: cfg.CacheBoundBytes})
	stats := devstats.NewCollector()

	tokenSvc, err := token.New(nil)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("hotreload: start token service: %w", err)
	}

	srv := broadcast.New(broadcast.DefaultConfig(), clientasset.JS(), stats)

	pressure := memorypressure.New(&memorypressure.Config{
		MaxBytes:             cfg.CacheBoundBytes,
		WarningThresholdPct:  memorypressure.DefaultConfig().WarningThresholdPct,
		CriticalThresholdPct: memorypressure.DefaultConfig().CriticalThresholdPct,
		CheckInterval:        memorypressure.DefaultConfig().CheckInterval,
		EnableGCOnCritical:   memorypressure.DefaultConfig().EnableGCOnCritical,
	}, func() int64 { return tmplCache.Stats().CurrentSizeBytes })

	e := &Engine{
		cfg:           cfg,
		logger:        defaultLogger,
		watcher:       w,
		classifier:    watcher.NewClassifier(ext),
		extractor:     ext,
		cache:         tmplCache,
		server:        srv,
		tokens:        tokenSvc,
		pressure:      pressure,
		stats:         stats,
		codeAffecting: make(chan CodeAffectingEvent, 16),
	}

	pressure.SetCallbacks(memorypressure.Callbacks{
		OnWarning:  func(memorypressure.Status) { stats.IncrementPressureWarning() },
		OnCritical: func(s memorypressure.Status) { stats.IncrementPressureCritical(); e.evictUnderPressure(s) },
	})

	srv.OnMessage = e.handleInboundMessage

	return e, nil
}

// WithStateStore wires the application runtime's capture/restore
// collaborator (spec §6); nil (the default) means no state is captured
// on reconnect.
func (e *Engine) WithStateStore(store StateStore) *Engine {
	e.stateStore = store
	return e
}

// CodeAffectingEvents returns the channel a build-system integration
// subscribes to (spec §6): every batch the watcher classifies as touching
// Go code outside a template literal is published here.
func (e *Engine) CodeAffectingEvents() <-chan CodeAffectingEvent {
	return e.codeAffecting
}

// NotifyRebuildComplete is called by the build-system integration once
// its recompile triggered by a CodeAffectingEvent finishes; it broadcasts
// FullReload("rebuild") to every connected client.
func (e *Engine) NotifyRebuildComplete(ctx context.Context) error {
	e.server.Broadcast(&protocol.Message{
		Type:       protocol.TypeFullReload,
		FullReload: &protocol.FullReloadPayload{Reason: "rebuild"},
	})
	return nil
}

// Start begins watching, serving HTTP/WebSocket traffic, and the memory
// pressure poller. It blocks until ctx is cancelled, then shuts everything
// down and returns the first error encountered (if any).
func (e *Engine) Start(ctx context.Context) error {
	e.pressure.Start()
	defer e.pressure.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go e.watcher.Run(runCtx)
	defer e.watcher.Close()

	go e.consumeBatches(runCtx)
	go e.consumeWatchErrors(runCtx)

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	e.httpServer = &http.Server{Addr: addr, Handler: e.server.Mux()}

	errCh := make(chan error, 1)
	go func() {
		e.logger("[hotreload] listening on %s", addr)
		if err := e.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("hotreload: http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		e.server.Shutdown(shutdownCtx)
		_ = e.httpServer.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (e *Engine) consumeWatchErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			e.stats.IncrementWatchError()
			e.logger("[hotreload] watch error: %v", err)
		}
	}
}

func (e *Engine) consumeBatches(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			e.stats.IncrementBatchDebounced()
			e.stats.IncrementFileEventsObserved(int64(len(batch.Paths)))
			e.processBatch(batch)
		}
	}
}

func (e *Engine) processBatch(batch watcher.Batch) {
	var codeAffecting []string
	var items []protocol.BatchItem

	for _, path := range batch.Paths {
		if handled := e.handleAssetPath(path); handled {
			continue
		}
		// Classify already retried a transient read failure across the
		// capped backoff schedule before returning err, so this is a
		// genuine diagnostic, not a flaky first read.
		classification, sites, err := e.classifier.Classify(path)
		if err != nil {
			e.stats.IncrementExtractError()
			continue
		}
		switch classification {
		case watcher.CodeAffecting:
			codeAffecting = append(codeAffecting, path)
			continue
		case watcher.Unknown:
			continue
		}

		e.stats.IncrementSitesExtracted(int64(len(sites)))
		for _, site := range sites {
			item, full := e.upsertAndDiff(site)
			if item != nil {
				items = append(items, *item)
			}
			if full != nil {
				e.server.Broadcast(full)
			}
		}
	}

	if len(codeAffecting) > 0 {
		select {
		case e.codeAffecting <- CodeAffectingEvent{Paths: codeAffecting}:
		default:
			e.logger("[hotreload] dropping code-affecting event, no subscriber keeping up")
		}
	}

	switch len(items) {
	case 0:
	case 1:
		e.sendItem(items[0])
	default:
		e.server.Broadcast(&protocol.Message{
			Type: protocol.TypeBatchUpdate,
			BatchUpdate: &protocol.BatchUpdatePayload{
				BatchID:   batch.At.Format(time.RFC3339Nano),
				Timestamp: batch.At.UnixMilli(),
				Items:     items,
			},
		})
		e.stats.IncrementBatchUpdateSent()
	}
}

// handleAssetPath broadcasts a CSS or JS asset change directly, bypassing
// template classification entirely (spec §6: only .go files ever reach
// the classifier). CSS is hot-swapped in place; a JS change always
// implies a full reload, since the client has no way to re-bind event
// listeners a reloaded script would otherwise attach.
func (e *Engine) handleAssetPath(path string) bool {
	switch filepath.Ext(path) {
	case ".css":
		e.server.Broadcast(&protocol.Message{
			Type:         protocol.TypeAssetUpdated,
			AssetUpdated: &protocol.AssetUpdatedPayload{Kind: protocol.AssetCSS, Path: path},
		})
		return true
	case ".js":
		e.server.Broadcast(&protocol.Message{
			Type:       protocol.TypeFullReload,
			FullReload: &protocol.FullReloadPayload{Reason: "asset changed: " + path},
		})
		e.stats.IncrementFullReloadSent()
		return true
	case ".go":
		return false
	default:
		return true
	}
}

func (e *Engine) sendItem(item protocol.BatchItem) {
	switch {
	case item.Update != nil:
		e.server.Broadcast(&protocol.Message{Type: protocol.TypeTemplateUpdated, TemplateUpdated: item.Update})
		e.stats.IncrementDeltaUpdateSent()
	case item.DeltaUpdate != nil:
		e.server.Broadcast(&protocol.Message{Type: protocol.TypeTemplateDeltaUpdate, TemplateDeltaUpdate: item.DeltaUpdate})
		e.stats.IncrementDeltaUpdateSent()
	}
}

// upsertAndDiff folds one extracted site into the cache and, depending on
// the outcome, returns either a BatchItem to fold into this revision's
// outbound batch or a standalone FullReload message (incompatible diff).
// At most one of the two return values is non-nil.
func (e *Engine) upsertAndDiff(site extractor.Site) (*protocol.BatchItem, *protocol.Message) {
	result := e.cache.Upsert(site.Identity, site.Raw, site.AST, nil)
	wireIdentity := protocol.IdentityWire{
		SourcePath: site.Identity.SourcePath,
		Line:       site.Identity.Line,
		Column:     site.Identity.Column,
	}

	switch result.Outcome {
	case cache.Unchanged:
		e.stats.IncrementCacheHit()
		return nil, nil
	case cache.NewTemplate:
		e.stats.IncrementCacheMiss()
		return &protocol.BatchItem{Update: &protocol.TemplateUpdatedPayload{
			Identity:     wireIdentity,
			ContentHash:  result.NewRecord.ContentHash.Combined,
			HTML:         gast.Render(result.NewRecord.AST),
			DynamicParts: protocol.DynamicPartsWire(gast.DynamicParts(result.NewRecord.AST)),
		}}, nil
	case cache.ChangedTemplate:
		start := time.Now()
		diffResult := diffengine.Diff(result.OldRecord.AST, result.NewRecord.AST, diffengine.DefaultOptions())
		e.stats.RecordDiffPerformed(time.Since(start), len(diffResult.Ops))

		if diffResult.Incompatible {
			e.stats.RecordDiffError()
			e.stats.IncrementFullReloadSent()
			return nil, &protocol.Message{
				Type:       protocol.TypeFullReload,
				FullReload: &protocol.FullReloadPayload{Reason: diffResult.Reason.String()},
			}
		}
		return &protocol.BatchItem{DeltaUpdate: &protocol.TemplateDeltaUpdatePayload{
			Identity:   wireIdentity,
			PrevHash:   result.OldRecord.ContentHash.Combined,
			NewHash:    result.NewRecord.ContentHash.Combined,
			Operations: diffResult.Ops,
		}}, nil
	}
	return nil, nil
}

// evictUnderPressure trims the cache down to the warning threshold
// (WarningBytes, below the configured bound) the moment pressure crosses
// into critical, rather than waiting for the
// next natural Upsert to trigger LRU eviction.
func (e *Engine) evictUnderPressure(s memorypressure.Status) {
	e.cache.EvictUntil(s.Thresholds.WarningBytes)
	e.stats.IncrementCacheEviction(1)
}

// handleInboundMessage processes client-originated frames the broadcast
// server doesn't handle itself: reload_request (log only -- the next
// watcher batch for that identity will answer it) and state_response
// (verify the instance token, then forward the blob to the wired
// StateStore, if any).
func (e *Engine) handleInboundMessage(msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeReloadRequest:
		if msg.ReloadRequest != nil {
			e.logger("[hotreload] client requested reload for %s:%d:%d",
				msg.ReloadRequest.Identity.SourcePath, msg.ReloadRequest.Identity.Line, msg.ReloadRequest.Identity.Column)
		}
	case protocol.TypeStateResponse:
		e.handleStateResponse(msg.StateResponse)
	}
}

func (e *Engine) handleStateResponse(payload *protocol.StateResponsePayload) {
	if payload == nil {
		return
	}
	if payload.InstanceToken == "" {
		e.stats.IncrementTokenFailure()
		e.logger("[hotreload] state_response missing instance token for instance %s, dropping", payload.InstanceID)
		return
	}
	claims, err := e.tokens.Verify(payload.InstanceToken)
	if err != nil {
		e.stats.IncrementTokenFailure()
		e.logger("[hotreload] state_response token verification failed for instance %s: %v", payload.InstanceID, err)
		return
	}
	e.stats.IncrementTokenVerified()
	if e.stateStore == nil {
		return
	}
	if err := e.stateStore.RestoreState(claims.InstanceID, payload.StateBlob); err != nil {
		e.logger("[hotreload] restore state failed for instance %s: %v", claims.InstanceID, err)
	}
}

// IssueInstanceToken signs a token for instanceID/identity so a
// StateStore-capturing client can attach it to a future state_response
// (spec §4.9). Intended to be called by the application runtime
// collaborator just before it serialises a capture_state() blob.
func (e *Engine) IssueInstanceToken(instanceID string, id identity.Identity) (string, error) {
	tok, err := e.tokens.Issue(instanceID, id.String())
	if err == nil {
		e.stats.IncrementTokenIssued()
	}
	return tok, err
}

// Stats returns a snapshot of the current dev-session statistics.
func (e *Engine) Stats() devstats.SessionMetrics {
	return e.stats.GetMetrics()
}
