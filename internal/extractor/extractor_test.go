package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livefir/livereload/internal/ast"
)

func TestExtractFindsSingleTemplateSite(t *testing.T) {
	src := []byte(`package views

func Home() {
	Template(` + "`<div>hello</div>`" + `)
}
`)
	sites, diags, err := New().Extract("home.go", src)
	require.NoError(t, err)
	assert.Empty(t, diags, "should report no diagnostics for a well-formed template")
	require.Len(t, sites, 1, "should detect exactly one template site")
	assert.Equal(t, ast.Element, sites[0].AST.Kind)
	assert.Equal(t, "div", sites[0].AST.Tag)
}

func TestExtractIgnoresUnrecognisedCalls(t *testing.T) {
	src := []byte(`package views

func Home() {
	fmt.Sprintf(` + "`not a template`" + `)
}
`)
	sites, _, err := New().Extract("home.go", src)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(sites) != 0 {
		t.Fatalf("expected no sites for an unrecognised call, got %d", len(sites))
	}
}

func TestExtractRecognisesCustomMacroNames(t *testing.T) {
	src := []byte(`package views

func Home() {
	Widget(` + "`<span>x</span>`" + `)
}
`)
	sites, _, err := New().WithMacroNames("Widget").Extract("home.go", src)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(sites) != 1 {
		t.Fatalf("expected 1 site for a registered custom macro name, got %d", len(sites))
	}
}

func TestExtractSkipsNonRawStringArgument(t *testing.T) {
	src := []byte(`package views

func Home() {
	Template("not raw")
}
`)
	sites, _, err := New().Extract("home.go", src)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(sites) != 0 {
		t.Fatalf("expected a plain double-quoted string argument to be ignored, got %d sites", len(sites))
	}
}

func TestExtractReportsTemplateParseError(t *testing.T) {
	src := []byte(`package views

func Home() {
	Template(` + "`<div>unterminated`" + `)
}
`)
	sites, diags, err := New().Extract("home.go", src)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(sites) != 0 {
		t.Fatalf("expected the unparseable site to be omitted, got %d sites", len(sites))
	}
	if len(diags) != 1 {
		t.Fatalf("expected 1 diagnostic, got %+v", diags)
	}
}

func TestExtractAssignsIdentitiesInSourceOrder(t *testing.T) {
	src := []byte(`package views

func Home() {
	Template(` + "`<div>first</div>`" + `)
	Template(` + "`<div>second</div>`" + `)
}
`)
	sites, _, err := New().Extract("home.go", src)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(sites) != 2 {
		t.Fatalf("expected 2 sites, got %d", len(sites))
	}
	if sites[0].Identity.Line >= sites[1].Identity.Line {
		t.Fatalf("expected sites sorted in source order, got %+v then %+v", sites[0].Identity, sites[1].Identity)
	}
}

func TestExtractParsesConditionalAndLoopAndEventHandler(t *testing.T) {
	tmpl := "`<ul>{#each item in items}<li on:click={select(item)}>{#if item.Active}<span>on</span>{:else}<span>off</span>{/if}</li>{/each}</ul>`"
	src := []byte("package views\n\nfunc List() {\n\tTemplate(" + tmpl + ")\n}\n")

	sites, diags, err := New().Extract("list.go", src)
	require.NoError(t, err)
	assert.Empty(t, diags)
	require.Len(t, sites, 1)

	root := sites[0].AST
	require.Equal(t, ast.Element, root.Kind)
	assert.Equal(t, "ul", root.Tag)
	require.Len(t, root.Children, 1, "expected a single loop child")
	assert.Equal(t, ast.Loop, root.Children[0].Kind)

	loop := root.Children[0]
	assert.Equal(t, "item", loop.Binding)
	assert.Equal(t, "items", loop.Iterator)

	li := loop.Body[0]
	require.Equal(t, "li", li.Tag)
	require.Len(t, li.Attrs, 1)
	assert.Equal(t, ast.AttrEventHandler, li.Attrs[0].Kind)

	cond := li.Children[0]
	assert.Equal(t, ast.Conditional, cond.Kind)
	assert.True(t, cond.HasElse, "expected a conditional with an else branch")

	parts := ast.DynamicParts(sites[0].AST)
	var kinds []ast.DynamicPartKind
	for _, p := range parts {
		kinds = append(kinds, p.Kind)
	}
	assert.Len(t, kinds, 3, "expected loop, event handler, and conditional dynamic parts")
}
