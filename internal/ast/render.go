package ast

import "strings"

// Render serialises n back to HTML text without evaluating anything: an
// expression is written as its opaque source, a conditional as its then
// children followed by its else children (when it has an else branch),
// and a loop as its body once. The core never interprets dynamic
// content (spec §3), it only forwards structure to the browser, which
// is the one side with an application runtime able to evaluate it.
func Render(n *Node) string {
	var b strings.Builder
	render(&b, n)
	return b.String()
}

func render(b *strings.Builder, n *Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case Text:
		b.WriteString(n.Literal)
	case Expression:
		b.WriteString(n.ExprSource)
	case Conditional:
		for _, c := range n.Then {
			render(b, c)
		}
		if n.HasElse {
			for _, c := range n.Else {
				render(b, c)
			}
		}
	case Loop:
		for _, c := range n.Body {
			render(b, c)
		}
	case Component:
		renderElementLike(b, n)
	case Element:
		renderElementLike(b, n)
	}
}

func renderElementLike(b *strings.Builder, n *Node) {
	b.WriteByte('<')
	b.WriteString(n.Tag)
	for _, a := range n.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		if a.Value != "" {
			b.WriteString(`="`)
			b.WriteString(a.Value)
			b.WriteByte('"')
		}
	}
	b.WriteByte('>')
	for _, c := range n.Children {
		render(b, c)
	}
	b.WriteString("</")
	b.WriteString(n.Tag)
	b.WriteByte('>')
}
