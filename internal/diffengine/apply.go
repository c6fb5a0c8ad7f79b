package diffengine

import (
	"errors"

	"github.com/livefir/livereload/internal/ast"
)

// ErrPathNotFound is returned by Apply when an operation's path cannot be
// resolved against the tree -- the server-side analogue of the client
// contract's "a failure to resolve a path aborts the batch" rule
// (spec §4.8 item 1).
var ErrPathNotFound = errors.New("diffengine: path not found")

// Apply mutates a clone of root according to ops, in order, and returns
// the result. It exists to let tests assert the round-trip law (spec §8):
// applying a compatible diff to the serialised old tree must yield the
// new tree, and applying the same diff twice must be idempotent.
func Apply(root *ast.Node, ops []DeltaOp) (*ast.Node, error) {
	result := ast.Clone(root)
	for _, op := range ops {
		if err := applyOne(result, op); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func applyOne(root *ast.Node, op DeltaOp) error {
	switch op.Kind {
	case UpdateText:
		target, err := resolve(root, op.Path)
		if err != nil {
			return err
		}
		target.Literal = op.NewText
		return nil

	case SetAttribute:
		target, err := resolve(root, op.Path)
		if err != nil {
			return err
		}
		setAttr(target, op.AttrName, op.AttrKind, op.AttrValue)
		return nil

	case RemoveAttribute:
		target, err := resolve(root, op.Path)
		if err != nil {
			return err
		}
		removeAttr(target, op.AttrName)
		return nil

	case InsertChild:
		parent, err := resolve(root, op.ParentPath)
		if err != nil {
			return err
		}
		insertChild(parent, op.Index, ast.Clone(op.Node))
		return nil

	case RemoveChild:
		parent, err := resolve(root, op.ParentPath)
		if err != nil {
			return err
		}
		return removeChild(parent, op.Index)

	case MoveChild:
		parent, err := resolve(root, op.ParentPath)
		if err != nil {
			return err
		}
		return moveChild(parent, op.From, op.To)

	case ReplaceNode:
		if len(op.Path) == 0 {
			*root = *ast.Clone(op.Node)
			return nil
		}
		parent, err := resolve(root, op.Path[:len(op.Path)-1])
		if err != nil {
			return err
		}
		idx := op.Path[len(op.Path)-1]
		if idx < 0 || idx >= len(parent.Children) {
			return ErrPathNotFound
		}
		parent.Children[idx] = ast.Clone(op.Node)
		return nil
	}
	return nil
}

// resolve walks path (child indices from root) and returns the node it
// addresses, or root itself for an empty path.
func resolve(root *ast.Node, path []int) (*ast.Node, error) {
	cur := root
	for _, idx := range path {
		if idx < 0 || idx >= len(cur.Children) {
			return nil, ErrPathNotFound
		}
		cur = cur.Children[idx]
	}
	return cur, nil
}

func setAttr(n *ast.Node, name string, kind ast.AttrKind, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Kind = kind
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, ast.Attribute{Name: name, Kind: kind, Value: value})
}

func removeAttr(n *ast.Node, name string) {
	out := n.Attrs[:0]
	for _, a := range n.Attrs {
		if a.Name != name {
			out = append(out, a)
		}
	}
	n.Attrs = out
}

func insertChild(parent *ast.Node, index int, child *ast.Node) {
	if index < 0 {
		index = 0
	}
	if index > len(parent.Children) {
		index = len(parent.Children)
	}
	parent.Children = append(parent.Children, nil)
	copy(parent.Children[index+1:], parent.Children[index:])
	parent.Children[index] = child
}

func removeChild(parent *ast.Node, index int) error {
	if index < 0 || index >= len(parent.Children) {
		return ErrPathNotFound
	}
	parent.Children = append(parent.Children[:index], parent.Children[index+1:]...)
	return nil
}

func moveChild(parent *ast.Node, from, to int) error {
	if from < 0 || from >= len(parent.Children) {
		return ErrPathNotFound
	}
	child := parent.Children[from]
	parent.Children = append(parent.Children[:from], parent.Children[from+1:]...)
	if to < 0 {
		to = 0
	}
	if to > len(parent.Children) {
		to = len(parent.Children)
	}
	insertChild(parent, to, child)
	return nil
}
