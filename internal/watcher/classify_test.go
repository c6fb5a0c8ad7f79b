package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/livefir/livereload/internal/extractor"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestClassifyFirstSeenIsTemplateOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "view.go")
	writeFile(t, path, "package views\nfunc Home() string {\n\treturn Template(`<div>{greeting}</div>`)\n}\n")

	c := NewClassifier(extractor.New())
	class, sites, err := c.Classify(path)
	if err != nil {
		t.Fatal(err)
	}
	if class != TemplateOnly {
		t.Fatalf("expected TemplateOnly on first sight, got %s", class)
	}
	if len(sites) != 1 {
		t.Fatalf("expected 1 site, got %d", len(sites))
	}
}

func TestClassifyTemplateTextEditIsTemplateOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "view.go")
	writeFile(t, path, "package views\nfunc Home() string {\n\treturn Template(`<div>{greeting}</div>`)\n}\n")

	c := NewClassifier(extractor.New())
	if _, _, err := c.Classify(path); err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, "package views\nfunc Home() string {\n\treturn Template(`<div>{farewell}</div>`)\n}\n")
	class, _, err := c.Classify(path)
	if err != nil {
		t.Fatal(err)
	}
	if class != TemplateOnly {
		t.Fatalf("expected TemplateOnly after editing only the literal, got %s", class)
	}
}

func TestClassifySurroundingCodeEditIsCodeAffecting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "view.go")
	writeFile(t, path, "package views\nfunc Home() string {\n\treturn Template(`<div>{greeting}</div>`)\n}\n")

	c := NewClassifier(extractor.New())
	if _, _, err := c.Classify(path); err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, "package views\n\nfunc greeting() string { return \"hi\" }\n\nfunc Home() string {\n\treturn Template(`<div>{greeting}</div>`)\n}\n")
	class, _, err := c.Classify(path)
	if err != nil {
		t.Fatal(err)
	}
	if class != CodeAffecting {
		t.Fatalf("expected CodeAffecting after editing surrounding code, got %s", class)
	}
}

func withShortRetryDelays(t *testing.T) {
	t.Helper()
	orig := extractionRetryDelays
	extractionRetryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	t.Cleanup(func() { extractionRetryDelays = orig })
}

func TestClassifyRetriesATransientReadFailureThenSucceeds(t *testing.T) {
	withShortRetryDelays(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "view.go")
	contents := "package views\nfunc Home() string {\n\treturn Template(`<div>{greeting}</div>`)\n}\n"

	// Simulate an editor's atomic-rename-mid-event: the file briefly
	// doesn't exist, then reappears before the retry schedule exhausts.
	go func() {
		time.Sleep(2 * time.Millisecond)
		os.WriteFile(path, []byte(contents), 0o644)
	}()

	c := NewClassifier(extractor.New())
	class, sites, err := c.Classify(path)
	if err != nil {
		t.Fatalf("expected the retry to recover from the transient failure, got %v", err)
	}
	if class != TemplateOnly || len(sites) != 1 {
		t.Fatalf("expected TemplateOnly with 1 site after recovery, got %s / %d sites", class, len(sites))
	}
}

func TestClassifyReturnsErrorAfterExhaustingRetries(t *testing.T) {
	withShortRetryDelays(t)
	path := filepath.Join(t.TempDir(), "never-created.go")

	c := NewClassifier(extractor.New())
	if _, _, err := c.Classify(path); err == nil {
		t.Fatal("expected an error once every retry attempt fails")
	}
}

func TestClassifyNonGoFileIsUnknown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "style.css")
	writeFile(t, path, "body { color: red; }")

	c := NewClassifier(extractor.New())
	class, sites, err := c.Classify(path)
	if err != nil {
		t.Fatal(err)
	}
	if class != Unknown {
		t.Fatalf("expected Unknown for non-go file, got %s", class)
	}
	if sites != nil {
		t.Fatalf("expected nil sites for non-go file")
	}
}
