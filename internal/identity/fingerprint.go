package identity

import (
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/livefir/livereload/internal/ast"
)

// ContentHash is the combined fingerprint of a template AST, built from
// four independently computed sub-hashes (spec §4.1). Each sub-hash is a
// non-cryptographic 64-bit FNV-1a hash over a canonicalised projection of
// the tree; collisions are acceptable, interpretation is not required.
type ContentHash struct {
	Static    uint64
	Structure uint64
	Dynamic   uint64
	Styling   uint64
	Combined  uint64
}

// Equal reports whether two hashes are identical across all four
// sub-hashes. Cache-equality checks use this rather than Combined alone so
// that a collision in the combined value cannot mask a real AST change.
func (c ContentHash) Equal(o ContentHash) bool {
	return c.Static == o.Static && c.Structure == o.Structure &&
		c.Dynamic == o.Dynamic && c.Styling == o.Styling
}

// Compute derives the four sub-hashes plus their combination for root.
func Compute(root *ast.Node) ContentHash {
	var static, structure, dynamic, styling strings.Builder

	writeStatic(&static, root)
	writeStructure(&structure, root)
	writeStyling(&styling, root)

	parts := ast.DynamicParts(root)
	for _, p := range parts {
		dynamic.WriteString(strconv.Itoa(int(p.Kind)))
		dynamic.WriteByte(',')
	}

	h := ContentHash{
		Static:    fnv64a(static.String()),
		Structure: fnv64a(structure.String()),
		Dynamic:   fnv64a(dynamic.String()),
		Styling:   fnv64a(styling.String()),
	}
	h.Combined = combine(h.Static, h.Structure, h.Dynamic, h.Styling)
	return h
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// combine folds four sub-hashes into one using the same FNV-1a mixing step,
// so that the combined value changes whenever any sub-hash does.
func combine(a, b, c, d uint64) uint64 {
	h := fnv.New64a()
	var buf [32]byte
	putUint64(buf[0:8], a)
	putUint64(buf[8:16], b)
	putUint64(buf[16:24], c)
	putUint64(buf[24:32], d)
	_, _ = h.Write(buf[:])
	return h.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// writeStatic serialises tag names, attribute names, literal text runs,
// and element nesting order -- the "static" sub-hash inputs (spec §4.1).
func writeStatic(b *strings.Builder, n *ast.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case ast.Text:
		b.WriteString("T:")
		b.WriteString(n.Literal)
		b.WriteByte(';')
		return
	case ast.Expression:
		b.WriteString("E;")
		return
	}
	b.WriteString(n.Tag)
	b.WriteByte('(')
	for _, a := range n.Attrs {
		if a.Kind == ast.AttrStatic {
			b.WriteString(a.Name)
			b.WriteByte('=')
		}
	}
	b.WriteByte(')')
	b.WriteByte('[')
	for _, c := range n.Children {
		writeStatic(b, c)
	}
	for _, c := range n.Then {
		writeStatic(b, c)
	}
	for _, c := range n.Else {
		writeStatic(b, c)
	}
	for _, c := range n.Body {
		writeStatic(b, c)
	}
	b.WriteByte(']')
}

// writeStructure serialises tree shape only: tags and child counts, never
// literal text or attribute values.
func writeStructure(b *strings.Builder, n *ast.Node) {
	if n == nil {
		return
	}
	kids := len(n.Children) + len(n.Then) + len(n.Else) + len(n.Body)
	b.WriteString(n.Kind.String())
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(kids))
	b.WriteByte('{')
	for _, c := range n.Children {
		writeStructure(b, c)
	}
	for _, c := range n.Then {
		writeStructure(b, c)
	}
	for _, c := range n.Else {
		writeStructure(b, c)
	}
	for _, c := range n.Body {
		writeStructure(b, c)
	}
	b.WriteByte('}')
}

// writeStyling serialises class and inline-style attribute values only.
func writeStyling(b *strings.Builder, n *ast.Node) {
	if n == nil {
		return
	}
	for _, a := range n.Attrs {
		if a.Name == "class" || a.Name == "style" || a.Kind == ast.AttrConditionalClass {
			b.WriteString(a.Name)
			b.WriteByte(':')
			b.WriteString(a.Value)
			b.WriteByte(';')
		}
	}
	for _, c := range n.Children {
		writeStyling(b, c)
	}
	for _, c := range n.Then {
		writeStyling(b, c)
	}
	for _, c := range n.Else {
		writeStyling(b, c)
	}
	for _, c := range n.Body {
		writeStyling(b, c)
	}
}
