// Package diffengine compares two template ASTs for the same Identity and
// classifies the result as a compatible delta or an incompatibility
// signal demanding full rebuild -- spec §4.4.
package diffengine

import "github.com/livefir/livereload/internal/ast"

// OpKind tags the variant a DeltaOp holds.
type OpKind int

const (
	UpdateText OpKind = iota
	SetAttribute
	RemoveAttribute
	InsertChild
	RemoveChild
	MoveChild
	ReplaceNode
)

func (k OpKind) String() string {
	switch k {
	case UpdateText:
		return "UpdateText"
	case SetAttribute:
		return "SetAttribute"
	case RemoveAttribute:
		return "RemoveAttribute"
	case InsertChild:
		return "InsertChild"
	case RemoveChild:
		return "RemoveChild"
	case MoveChild:
		return "MoveChild"
	case ReplaceNode:
		return "ReplaceNode"
	default:
		return "Unknown"
	}
}

// DeltaOp is one operation from spec §3's Delta Operation vocabulary.
// Path is the list of child indices from the template root; path
// semantics stay fixed even across sibling insertions, which is why
// insert/remove carry explicit indices rather than selectors.
type DeltaOp struct {
	Kind OpKind `json:"kind"`
	Path []int  `json:"path,omitempty"`

	// UpdateText
	NewText string `json:"new_text,omitempty"`

	// SetAttribute / RemoveAttribute
	AttrName  string       `json:"attr_name,omitempty"`
	AttrKind  ast.AttrKind `json:"attr_kind,omitempty"`
	AttrValue string       `json:"attr_value,omitempty"`

	// InsertChild / ReplaceNode. Node is the structural payload the Go side
	// reasons about; Serialised is Node rendered to HTML once at diff time,
	// since the browser client patches the DOM with markup, not a tree.
	ParentPath []int     `json:"parent_path,omitempty"`
	Index      int       `json:"index,omitempty"`
	Node       *ast.Node `json:"node,omitempty"`
	Serialised string    `json:"serialised,omitempty"`

	// MoveChild
	From int `json:"from,omitempty"`
	To   int `json:"to,omitempty"`
}

// Reason classifies why a diff was found incompatible.
type Reason int

const (
	RootElementChanged Reason = iota
	DynamicKindChanged
	DynamicLayoutChanged
)

func (r Reason) String() string {
	switch r {
	case RootElementChanged:
		return "RootElementChanged"
	case DynamicKindChanged:
		return "DynamicKindChanged"
	case DynamicLayoutChanged:
		return "DynamicLayoutChanged"
	default:
		return "Unknown"
	}
}

// Result is either Compatible (Ops populated, Incompatible false) or
// Incompatible (Reason populated, Ops nil).
type Result struct {
	Incompatible bool
	Reason       Reason
	Ops          []DeltaOp
}
