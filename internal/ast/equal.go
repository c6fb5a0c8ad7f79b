package ast

// Equal reports whether two trees are structurally identical, including
// literal text, attribute values, and opaque expression source. Used by
// tests asserting the round-trip and idempotence properties of spec §8.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind || a.Tag != b.Tag || a.Literal != b.Literal ||
		a.ExprSource != b.ExprSource || a.Predicate != b.Predicate ||
		a.HasElse != b.HasElse || a.Binding != b.Binding || a.Iterator != b.Iterator {
		return false
	}
	if !attrsEqual(a.Attrs, b.Attrs) {
		return false
	}
	if !nodesEqual(a.Children, b.Children) || !nodesEqual(a.Then, b.Then) ||
		!nodesEqual(a.Else, b.Else) || !nodesEqual(a.Body, b.Body) {
		return false
	}
	return true
}

func attrsEqual(a, b []Attribute) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func nodesEqual(a, b []*Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Clone deep-copies a tree so a cache snapshot can be handed to a diff or
// a DOM-patch simulation without risking a concurrent in-place mutation.
func Clone(n *Node) *Node {
	if n == nil {
		return nil
	}
	out := *n
	out.Attrs = append([]Attribute(nil), n.Attrs...)
	out.Children = cloneSlice(n.Children)
	out.Then = cloneSlice(n.Then)
	out.Else = cloneSlice(n.Else)
	out.Body = cloneSlice(n.Body)
	return &out
}

func cloneSlice(nodes []*Node) []*Node {
	if nodes == nil {
		return nil
	}
	out := make([]*Node, len(nodes))
	for i, c := range nodes {
		out[i] = Clone(c)
	}
	return out
}
