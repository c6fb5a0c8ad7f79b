// Package cache implements the bounded Identity -> Template Record mapping
// described in spec §3 and §4.3: LRU eviction, dependency tracking, and
// content-change detection.
package cache

import (
	"time"

	"github.com/livefir/livereload/internal/ast"
	"github.com/livefir/livereload/internal/extractor"
	"github.com/livefir/livereload/internal/identity"
)

// Record is the cache's unit of storage: the last observed raw template
// and its parsed AST for one Identity, plus bookkeeping (spec §3).
type Record struct {
	Identity     identity.Identity
	Raw          extractor.RawTemplate
	AST          *ast.Node
	ContentHash  identity.ContentHash
	LastSeen     time.Time
	Dependencies map[identity.Identity]struct{}
	SizeBytes    int
}

func newRecord(id identity.Identity, raw extractor.RawTemplate, root *ast.Node) *Record {
	return &Record{
		Identity:     id,
		Raw:          raw,
		AST:          root,
		ContentHash:  identity.Compute(root),
		LastSeen:     time.Now(),
		Dependencies: make(map[identity.Identity]struct{}),
		SizeBytes:    len(raw.Text),
	}
}

// Outcome classifies the result of an Upsert call.
type Outcome int

const (
	// Unchanged means the new AST has an identical content hash to the
	// previously cached record; no diff or broadcast is warranted.
	Unchanged Outcome = iota
	// NewTemplate means no prior record existed for this Identity.
	NewTemplate
	// ChangedTemplate means a prior record existed and its content hash
	// differs; OldRecord carries the pre-update snapshot for diffing.
	ChangedTemplate
)

// UpsertResult is returned by Cache.Upsert.
type UpsertResult struct {
	Outcome    Outcome
	OldRecord  *Record // set only when Outcome == ChangedTemplate
	NewRecord  *Record
}
