// Package extractor walks a Go source file's syntax tree, locates
// template-literal call sites, and derives a stable Identity and parsed
// AST for each -- spec §4.2.
package extractor

import (
	"fmt"
	"go/ast"
	gofmt "go/parser"
	"go/token"
	"sort"
	"strings"

	tmplast "github.com/livefir/livereload/internal/ast"
	"github.com/livefir/livereload/internal/identity"
)

// Site is one recognised macro-like call site.
type Site struct {
	Identity identity.Identity
	Raw      RawTemplate
	AST      *tmplast.Node
}

// RawTemplate is the captured source text of a template literal plus the
// span list of its embedded dynamic expressions (spec §3). The engine
// never evaluates these spans; they are retained for diagnostics and for
// the extractor's own identical-bytes comparison (watcher classification).
type RawTemplate struct {
	Text    string
	Dynamic []tmplast.DynamicPart
}

// Diagnostic describes an unparseable site or a collision, carrying the
// exact position the extractor could not handle (spec §4.2 failure modes).
type Diagnostic struct {
	Path    string
	Line    int
	Column  int
	Message string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", d.Path, d.Line, d.Column, d.Message)
}

// defaultMacroNames is the closed set of call-site shapes recognised as
// template literals: a call through a selector expression or a plain
// identifier whose method/function name is in this set, with a trailing
// raw (backtick) string-literal argument.
var defaultMacroNames = map[string]bool{
	"Template": true,
	"Fragment": true,
	"View":     true,
}

// Extractor recognises template call sites in Go source and parses them.
type Extractor struct {
	macroNames map[string]bool
}

// New creates an Extractor recognising the default macro-call-site names.
// Additional names (e.g. a project's own wrapper function) can be added
// with WithMacroNames.
func New() *Extractor {
	names := make(map[string]bool, len(defaultMacroNames))
	for k := range defaultMacroNames {
		names[k] = true
	}
	return &Extractor{macroNames: names}
}

// WithMacroNames registers additional call-site names to recognise.
func (e *Extractor) WithMacroNames(names ...string) *Extractor {
	for _, n := range names {
		e.macroNames[n] = true
	}
	return e
}

// Extract scans a source file's contents and returns one Site per
// recognised template literal, in source order. It never blocks waiting
// for more file data and is not restartable mid-file, per spec §4.2.
//
// An unparseable site does not abort the scan: it is reported in the
// returned diagnostics slice, and the corresponding Site is simply
// omitted (the caller retains whatever record it had cached for that
// identity, per the "Unparseable site" failure mode).
func (e *Extractor) Extract(path string, src []byte) ([]Site, []Diagnostic, error) {
	fset := token.NewFileSet()
	file, err := gofmt.ParseFile(fset, path, src, gofmt.AllErrors)
	if file == nil {
		return nil, nil, fmt.Errorf("extractor: parse %s: %w", path, err)
	}
	// A syntactically damaged file may still yield a partial AST; we scan
	// what we have rather than failing outright, since most edits leave
	// the rest of the file intact.

	var sites []Site
	var diags []Diagnostic
	seen := make(map[identity.Identity]bool)

	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		if !e.isMacroCall(call) {
			return true
		}
		lit := lastRawStringArg(call)
		if lit == nil {
			return true
		}
		pos := fset.Position(lit.Pos())
		id := identity.Identity{SourcePath: path, Line: pos.Line, Column: pos.Column}

		if seen[id] {
			diags = append(diags, Diagnostic{
				Path: path, Line: pos.Line, Column: pos.Column,
				Message: "identity collision within file; site skipped",
			})
			return true
		}
		seen[id] = true

		text := strings.Trim(lit.Value, "`")
		root, perr := parseLiteral(text)
		if perr != nil {
			pe, _ := perr.(*parseError)
			line, col := pos.Line, pos.Column
			if pe != nil {
				offLine, offCol := offsetToLineCol(text, pe.pos)
				line += offLine
				if offLine == 0 {
					// The literal's text starts one column after its
					// opening backtick, which sits at pos.Column.
					col = pos.Column + offCol
				} else {
					col = offCol
				}
			}
			diags = append(diags, Diagnostic{
				Path: path, Line: line, Column: col,
				Message: "template parse error: " + perr.Error(),
			})
			return true
		}

		sites = append(sites, Site{
			Identity: id,
			Raw:      RawTemplate{Text: text, Dynamic: tmplast.DynamicParts(root)},
			AST:      root,
		})
		return true
	})

	sort.Slice(sites, func(i, j int) bool {
		return identity.Less(sites[i].Identity, sites[j].Identity)
	})

	return sites, diags, nil
}

func (e *Extractor) isMacroCall(call *ast.CallExpr) bool {
	switch fn := call.Fun.(type) {
	case *ast.SelectorExpr:
		return e.macroNames[fn.Sel.Name]
	case *ast.Ident:
		return e.macroNames[fn.Name]
	}
	return false
}

// lastRawStringArg returns the last argument if it is a raw (backtick)
// string literal -- the embedded HTML-like template the spec describes.
func lastRawStringArg(call *ast.CallExpr) *ast.BasicLit {
	if len(call.Args) == 0 {
		return nil
	}
	last := call.Args[len(call.Args)-1]
	lit, ok := last.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return nil
	}
	if !strings.HasPrefix(lit.Value, "`") {
		return nil
	}
	return lit
}

// offsetToLineCol converts a byte offset within text to a 0-based line
// delta and 1-based column, for composing a diagnostic position relative
// to the literal's start.
func offsetToLineCol(text string, offset int) (lineDelta, col int) {
	if offset > len(text) {
		offset = len(text)
	}
	prefix := text[:offset]
	lineDelta = strings.Count(prefix, "\n")
	if idx := strings.LastIndexByte(prefix, '\n'); idx >= 0 {
		col = len(prefix) - idx
	} else {
		col = len(prefix) + 1
	}
	return lineDelta, col
}
