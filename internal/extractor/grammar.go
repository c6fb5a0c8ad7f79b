package extractor

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/livefir/livereload/internal/ast"
)

// parseLiteral parses the HTML-like grammar described in spec §3 out of a
// raw template literal's contents. It never evaluates expression source --
// expression/predicate/iterator/handler text is only ever stored verbatim.
//
// Grammar (informal):
//
//	element    := "<" tagname attr* ( "/>" | ">" node* "</" tagname ">" )
//	attr       := name [ "=" ( '"' text '"' | "{" expr "}" ) ]
//	             | "on:" event "=" "{" expr "}"
//	             | "class:" name "=" "{" expr "}"
//	expression := "{" expr "}"          (expr not starting with # : /)
//	conditional:= "{#if" cond "}" node* [ "{:else}" node* ] "{/if}"
//	loop       := "{#each" binding "in" iterator "}" node* "{/each}"
//	text       := any run not starting with "<" or "{"
//
// A Component is an Element whose tag name starts with an uppercase letter.
func parseLiteral(src string) (*ast.Node, error) {
	p := &parser{src: src}
	p.skipWhitespace()
	if p.pos >= len(p.src) {
		return &ast.Node{Kind: ast.Element, Tag: "div"}, nil
	}
	root, err := p.parseElement()
	if err != nil {
		return nil, err
	}
	return root, nil
}

type parser struct {
	src string
	pos int
}

type parseError struct {
	pos int
	msg string
}

func (e *parseError) Error() string { return e.msg }

func (p *parser) errorf(format string, args ...interface{}) error {
	return &parseError{pos: p.pos, msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipWhitespace() {
	for p.pos < len(p.src) && isSpace(p.src[p.pos]) {
		p.pos++
	}
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) hasPrefix(s string) bool {
	return strings.HasPrefix(p.src[p.pos:], s)
}

// parseElement parses a single "<tag ...>...</tag>" or "<tag ... />" form.
func (p *parser) parseElement() (*ast.Node, error) {
	if p.peek() != '<' {
		return nil, p.errorf("expected '<' at offset %d", p.pos)
	}
	p.pos++ // consume '<'

	tag := p.readIdent()
	if tag == "" {
		return nil, p.errorf("expected tag name at offset %d", p.pos)
	}

	kind := ast.Element
	if len(tag) > 0 && unicode.IsUpper(rune(tag[0])) {
		kind = ast.Component
	}

	node := &ast.Node{Kind: kind, Tag: tag}

	attrs, err := p.parseAttrs()
	if err != nil {
		return nil, err
	}
	node.Attrs = attrs

	p.skipWhitespace()
	if p.hasPrefix("/>") {
		p.pos += 2
		return node, nil
	}
	if p.peek() != '>' {
		return nil, p.errorf("expected '>' closing tag %q at offset %d", tag, p.pos)
	}
	p.pos++ // consume '>'

	children, err := p.parseNodes(closingTag(tag))
	if err != nil {
		return nil, err
	}
	node.Children = children

	if !p.hasPrefix("</" + tag + ">") {
		return nil, p.errorf("expected closing tag </%s> at offset %d", tag, p.pos)
	}
	p.pos += len("</" + tag + ">")
	return node, nil
}

func closingTag(tag string) string { return "</" + tag + ">" }

// parseAttrs consumes attribute list up to (but not including) '>' or '/>'.
func (p *parser) parseAttrs() ([]ast.Attribute, error) {
	var attrs []ast.Attribute
	dynIdx := 0
	for {
		p.skipWhitespace()
		if p.hasPrefix(">") || p.hasPrefix("/>") || p.pos >= len(p.src) {
			return attrs, nil
		}
		name := p.readAttrName()
		if name == "" {
			return nil, p.errorf("expected attribute name at offset %d", p.pos)
		}

		attr := ast.Attribute{Name: name, Kind: ast.AttrStatic}
		switch {
		case strings.HasPrefix(name, "on:"):
			attr.Name = strings.TrimPrefix(name, "on:")
			attr.Kind = ast.AttrEventHandler
		case strings.HasPrefix(name, "class:"):
			attr.Name = strings.TrimPrefix(name, "class:")
			attr.Kind = ast.AttrConditionalClass
		}

		p.skipWhitespace()
		if p.peek() == '=' {
			p.pos++
			p.skipWhitespace()
			switch {
			case p.peek() == '"':
				val, err := p.readQuoted()
				if err != nil {
					return nil, err
				}
				if attr.Kind == ast.AttrStatic {
					attr.Value = val
				} else {
					attr.Value = val
					attr.Index = dynIdx
					dynIdx++
				}
			case p.peek() == '{':
				val, err := p.readBraced()
				if err != nil {
					return nil, err
				}
				attr.Value = val
				if attr.Kind == ast.AttrStatic {
					attr.Kind = ast.AttrDynamic
				}
				attr.Index = dynIdx
				dynIdx++
			default:
				return nil, p.errorf("expected quoted or braced value for attribute %q at offset %d", name, p.pos)
			}
		} else if attr.Kind != ast.AttrStatic {
			return nil, p.errorf("attribute %q requires a value at offset %d", name, p.pos)
		}
		attrs = append(attrs, attr)
	}
}

func (p *parser) readAttrName() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '=' || c == '>' || isSpace(c) || (c == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '>') {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) readIdent() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if !(unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)) || c == '_' || c == '-') {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) readQuoted() (string, error) {
	if p.peek() != '"' {
		return "", p.errorf("expected '\"' at offset %d", p.pos)
	}
	p.pos++
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != '"' {
		p.pos++
	}
	if p.pos >= len(p.src) {
		return "", p.errorf("unterminated quoted string starting at offset %d", start)
	}
	val := p.src[start:p.pos]
	p.pos++ // consume closing quote
	return val, nil
}

// readBraced reads a brace-delimited expression, respecting nested braces
// and quoted strings so that expr text like `{fmt.Sprintf("{%d}", n)}`
// round-trips intact. The expression text is returned without evaluation.
func (p *parser) readBraced() (string, error) {
	if p.peek() != '{' {
		return "", p.errorf("expected '{' at offset %d", p.pos)
	}
	start := p.pos
	p.pos++
	depth := 1
	for p.pos < len(p.src) && depth > 0 {
		switch p.src[p.pos] {
		case '{':
			depth++
		case '}':
			depth--
		case '"':
			p.pos++
			for p.pos < len(p.src) && p.src[p.pos] != '"' {
				if p.src[p.pos] == '\\' {
					p.pos++
				}
				p.pos++
			}
		}
		p.pos++
	}
	if depth != 0 {
		return "", p.errorf("unterminated expression starting at offset %d", start)
	}
	return p.src[start+1 : p.pos-1], nil
}

// parseNodes parses a sequence of text runs, expressions, conditionals,
// loops, and elements until the stop marker is encountered (not consumed).
func (p *parser) parseNodes(stop string) ([]*ast.Node, error) {
	var nodes []*ast.Node
	for {
		if p.pos >= len(p.src) || p.hasPrefix(stop) {
			return nodes, nil
		}
		switch {
		case p.hasPrefix("{#if"):
			n, err := p.parseConditional()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		case p.hasPrefix("{#each"):
			n, err := p.parseLoop()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		case p.hasPrefix("{:else}") || p.hasPrefix("{/if}") || p.hasPrefix("{/each}"):
			return nodes, nil
		case p.peek() == '{':
			expr, err := p.readBraced()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, &ast.Node{Kind: ast.Expression, ExprSource: expr})
		case p.peek() == '<':
			if p.hasPrefix("</") {
				return nodes, nil
			}
			n, err := p.parseElement()
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		default:
			text := p.readText(stop)
			if text != "" {
				nodes = append(nodes, &ast.Node{Kind: ast.Text, Literal: text})
			}
		}
	}
}

func (p *parser) readText(stop string) string {
	start := p.pos
	for p.pos < len(p.src) {
		if p.src[p.pos] == '<' || p.src[p.pos] == '{' {
			break
		}
		if stop != "" && p.hasPrefix(stop) {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

// parseConditional parses "{#if cond} then [{:else} else] {/if}".
func (p *parser) parseConditional() (*ast.Node, error) {
	p.pos += len("{#if")
	cond := p.readUntilBrace()
	node := &ast.Node{Kind: ast.Conditional, Predicate: strings.TrimSpace(cond)}

	then, err := p.parseNodes("{:else}")
	if err != nil {
		return nil, err
	}
	node.Then = then

	if p.hasPrefix("{:else}") {
		p.pos += len("{:else}")
		node.HasElse = true
		elseNodes, err := p.parseNodes("{/if}")
		if err != nil {
			return nil, err
		}
		node.Else = elseNodes
	}

	if !p.hasPrefix("{/if}") {
		return nil, p.errorf("expected '{/if}' at offset %d", p.pos)
	}
	p.pos += len("{/if}")
	return node, nil
}

// parseLoop parses "{#each binding in iterator} body {/each}".
func (p *parser) parseLoop() (*ast.Node, error) {
	p.pos += len("{#each")
	header := strings.TrimSpace(p.readUntilBrace())
	binding, iterator, ok := strings.Cut(header, " in ")
	if !ok {
		return nil, p.errorf("malformed loop header %q, expected 'binding in iterator'", header)
	}
	node := &ast.Node{
		Kind:     ast.Loop,
		Binding:  strings.TrimSpace(binding),
		Iterator: strings.TrimSpace(iterator),
	}

	body, err := p.parseNodes("{/each}")
	if err != nil {
		return nil, err
	}
	node.Body = body

	if !p.hasPrefix("{/each}") {
		return nil, p.errorf("expected '{/each}' at offset %d", p.pos)
	}
	p.pos += len("{/each}")
	return node, nil
}

// readUntilBrace consumes up to and including the next '}', returning the
// text in between. Used for conditional/loop headers, which never nest
// braces themselves.
func (p *parser) readUntilBrace() string {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != '}' {
		p.pos++
	}
	text := p.src[start:p.pos]
	if p.pos < len(p.src) {
		p.pos++ // consume '}'
	}
	return text
}
