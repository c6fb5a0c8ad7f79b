package cache

import (
	"testing"

	"github.com/livefir/livereload/internal/ast"
	"github.com/livefir/livereload/internal/extractor"
	"github.com/livefir/livereload/internal/identity"
)

func node(literal string) *ast.Node {
	return &ast.Node{Kind: ast.Element, Tag: "div", Children: []*ast.Node{
		{Kind: ast.Text, Literal: literal},
	}}
}

func id(n int) identity.Identity {
	return identity.Identity{SourcePath: "a.go", Line: n, Column: 1}
}

func TestUpsertFirstInsertIsNewTemplate(t *testing.T) {
	c := New(DefaultConfig())
	result := c.Upsert(id(1), extractor.RawTemplate{Text: "<div>x</div>"}, node("x"), nil)
	if result.Outcome != NewTemplate {
		t.Fatalf("expected NewTemplate, got %v", result.Outcome)
	}
	if result.NewRecord == nil {
		t.Fatal("expected NewRecord to be populated")
	}
}

func TestUpsertUnchangedContentIsUnchanged(t *testing.T) {
	c := New(DefaultConfig())
	c.Upsert(id(1), extractor.RawTemplate{Text: "<div>x</div>"}, node("x"), nil)
	result := c.Upsert(id(1), extractor.RawTemplate{Text: "<div>x</div>"}, node("x"), nil)
	if result.Outcome != Unchanged {
		t.Fatalf("expected Unchanged, got %v", result.Outcome)
	}
}

func TestUpsertChangedContentIsChangedTemplate(t *testing.T) {
	c := New(DefaultConfig())
	c.Upsert(id(1), extractor.RawTemplate{Text: "<div>x</div>"}, node("x"), nil)
	result := c.Upsert(id(1), extractor.RawTemplate{Text: "<div>y</div>"}, node("y"), nil)
	if result.Outcome != ChangedTemplate {
		t.Fatalf("expected ChangedTemplate, got %v", result.Outcome)
	}
	if result.OldRecord == nil || result.NewRecord == nil {
		t.Fatal("expected both OldRecord and NewRecord on a change")
	}
}

func TestGetTouchesRecency(t *testing.T) {
	c := New(DefaultConfig())
	c.Upsert(id(1), extractor.RawTemplate{Text: "x"}, node("x"), nil)
	if _, ok := c.Get(id(1)); !ok {
		t.Fatal("expected a hit for a known identity")
	}
	if _, ok := c.Get(id(2)); ok {
		t.Fatal("expected a miss for an unknown identity")
	}
	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("expected 1 hit and 1 miss, got %+v", stats)
	}
}

func TestEvictUntilReclaimsLeastRecentlyUsed(t *testing.T) {
	c := New(DefaultConfig())
	c.Upsert(id(1), extractor.RawTemplate{Text: "aaaa"}, node("a"), nil)
	c.Upsert(id(2), extractor.RawTemplate{Text: "bbbb"}, node("b"), nil)
	c.Get(id(2)) // touch id(2) so id(1) becomes least-recently-used

	c.EvictUntil(4)

	if _, ok := c.Get(id(1)); ok {
		t.Error("expected the least-recently-used entry to be evicted")
	}
	if _, ok := c.Get(id(2)); !ok {
		t.Error("expected the recently-touched entry to survive eviction")
	}
}

func TestInvalidateCascadesThroughDependencies(t *testing.T) {
	c := New(DefaultConfig())
	c.Upsert(id(1), extractor.RawTemplate{Text: "a"}, node("a"), []identity.Identity{id(2)})
	c.Upsert(id(2), extractor.RawTemplate{Text: "b"}, node("b"), nil)

	removed := c.Invalidate(id(1))

	foundSelf, foundDep := false, false
	for _, r := range removed {
		if r == id(1) {
			foundSelf = true
		}
		if r == id(2) {
			foundDep = true
		}
	}
	if !foundSelf || !foundDep {
		t.Fatalf("expected Invalidate(id(1)) to remove both id(1) and its dependency id(2), got %v", removed)
	}
	if _, ok := c.Get(id(2)); ok {
		t.Error("expected dependent entry to be evicted from the cache")
	}
}

func TestLenReflectsEntryCount(t *testing.T) {
	c := New(DefaultConfig())
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got length %d", c.Len())
	}
	c.Upsert(id(1), extractor.RawTemplate{Text: "a"}, node("a"), nil)
	c.Upsert(id(2), extractor.RawTemplate{Text: "b"}, node("b"), nil)
	if c.Len() != 2 {
		t.Fatalf("expected length 2, got %d", c.Len())
	}
}
