package diffengine

import "github.com/livefir/livereload/internal/ast"

// Options tunes the diff algorithm's behaviour.
type Options struct {
	// ReplaceThreshold bounds result size: once the emitted operation
	// count exceeds this fraction of the old tree's node count, the
	// engine drops them in favour of a single root ReplaceNode -- still
	// compatible, but signalling that delta transmission buys nothing.
	// Default: 0.5.
	ReplaceThreshold float64
}

// DefaultOptions returns the spec's default tuning.
func DefaultOptions() Options {
	return Options{ReplaceThreshold: 0.5}
}

// incompatible is the internal sentinel used to unwind a recursive diff
// the moment an incompatibility is discovered anywhere in the tree.
type incompatible struct{ reason Reason }

func (e incompatible) Error() string { return e.reason.String() }

// Diff compares oldRoot and newRoot -- two snapshots of the AST for the
// same Identity -- per the algorithm in spec §4.4.
func Diff(oldRoot, newRoot *ast.Node, opts Options) Result {
	if opts.ReplaceThreshold <= 0 {
		opts = DefaultOptions()
	}

	// Step 5 (dynamic-part kind sequence) is checked globally first: it is
	// cheaper than the structural walk and a definitive incompatibility.
	oldParts := ast.DynamicParts(oldRoot)
	newParts := ast.DynamicParts(newRoot)
	if !sameDynamicKinds(oldParts, newParts) {
		return Result{Incompatible: true, Reason: DynamicLayoutChanged}
	}

	ops, err := diffNode(oldRoot, newRoot, nil)
	if err != nil {
		ie := err.(incompatible)
		return Result{Incompatible: true, Reason: ie.reason}
	}

	ops = optimizeBatch(ops)

	if count := nodeCount(oldRoot); count > 0 && float64(len(ops)) > opts.ReplaceThreshold*float64(count) {
		return Result{Ops: []DeltaOp{{Kind: ReplaceNode, Path: nil, Node: newRoot, Serialised: ast.Render(newRoot)}}}
	}

	return Result{Ops: ops}
}

func sameDynamicKinds(a, b []ast.DynamicPart) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Kind != b[i].Kind {
			return false
		}
	}
	return true
}

func nodeCount(n *ast.Node) int {
	count := 0
	ast.Walk(n, func(*ast.Node) { count++ })
	return count
}

// diffNode recurses into a single matched (old, new) pair at path,
// implementing spec §4.4 steps 1-4. It returns incompatible as an error
// to unwind immediately once found anywhere in the subtree.
func diffNode(oldN, newN *ast.Node, path []int) ([]DeltaOp, error) {
	if oldN.Kind != newN.Kind {
		return nil, incompatible{RootElementChanged}
	}

	switch oldN.Kind {
	case ast.Text:
		if oldN.Literal != newN.Literal {
			return []DeltaOp{{Kind: UpdateText, Path: clonePath(path), NewText: newN.Literal}}, nil
		}
		return nil, nil

	case ast.Expression:
		// Expression source is opaque and excluded from diff-relevant
		// projection (spec §4.1); a change here never produces an
		// operation even when ExprSource differs byte-for-byte.
		return nil, nil

	case ast.Element, ast.Component:
		if oldN.Tag != newN.Tag {
			return nil, incompatible{RootElementChanged}
		}
		var ops []DeltaOp
		attrOps, err := diffAttrs(oldN.Attrs, newN.Attrs, path)
		if err != nil {
			return nil, err
		}
		ops = append(ops, attrOps...)

		childOps, err := diffChildren(oldN.Children, newN.Children, path)
		if err != nil {
			return nil, err
		}
		ops = append(ops, childOps...)
		return ops, nil

	case ast.Conditional:
		if oldN.Predicate != newN.Predicate {
			// Predicate source is opaque (declared dependency, never
			// evaluated); a change alone does not force incompatibility,
			// but the branch contents must still line up structurally.
		}
		var ops []DeltaOp
		thenOps, err := diffChildren(oldN.Then, newN.Then, path)
		if err != nil {
			return nil, err
		}
		ops = append(ops, thenOps...)
		elseOps, err := diffChildren(oldN.Else, newN.Else, path)
		if err != nil {
			return nil, err
		}
		ops = append(ops, elseOps...)
		return ops, nil

	case ast.Loop:
		return diffChildren(oldN.Body, newN.Body, path)
	}

	return nil, nil
}

func clonePath(p []int) []int {
	out := make([]int, len(p))
	copy(out, p)
	return out
}

// diffAttrs implements spec §4.4 step 2: pairwise-by-name comparison.
func diffAttrs(oldAttrs, newAttrs []ast.Attribute, path []int) ([]DeltaOp, error) {
	oldByName := make(map[string]ast.Attribute, len(oldAttrs))
	for _, a := range oldAttrs {
		oldByName[a.Name] = a
	}
	newByName := make(map[string]ast.Attribute, len(newAttrs))
	for _, a := range newAttrs {
		newByName[a.Name] = a
	}

	var ops []DeltaOp
	for _, na := range newAttrs {
		oa, existed := oldByName[na.Name]
		if !existed {
			ops = append(ops, DeltaOp{Kind: SetAttribute, Path: clonePath(path), AttrName: na.Name, AttrKind: na.Kind, AttrValue: na.Value})
			continue
		}
		if oa.Kind != na.Kind {
			return nil, incompatible{DynamicKindChanged}
		}
		if oa.Value != na.Value {
			ops = append(ops, DeltaOp{Kind: SetAttribute, Path: clonePath(path), AttrName: na.Name, AttrKind: na.Kind, AttrValue: na.Value})
		}
	}
	for _, oa := range oldAttrs {
		if _, stillPresent := newByName[oa.Name]; !stillPresent {
			ops = append(ops, DeltaOp{Kind: RemoveAttribute, Path: clonePath(path), AttrName: oa.Name})
		}
	}
	return ops, nil
}

// sameShape decides whether an old/new child pair are the "same" node for
// alignment purposes (spec §4.4 step 3/4): same Kind, and for
// Element/Component, same tag. Literal text and attribute values are
// intentionally excluded so that e.g. a single text node can be matched
// and then diffed into an UpdateText rather than a remove+insert pair.
func sameShape(a, b *ast.Node) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == ast.Element || a.Kind == ast.Component {
		return a.Tag == b.Tag
	}
	return true
}

// diffChildren aligns oldChildren/newChildren via a longest-common-
// subsequence match on sameShape, then walks the merged sequence emitting
// InsertChild/RemoveChild for unmatched children and recursing into
// matched pairs (spec §4.4 step 3-4).
func diffChildren(oldChildren, newChildren []*ast.Node, parentPath []int) ([]DeltaOp, error) {
	matchOld, matchNew := lcsMatch(oldChildren, newChildren)

	var ops []DeltaOp
	i, j, cursor := 0, 0, 0
	for i < len(oldChildren) || j < len(newChildren) {
		switch {
		case i < len(oldChildren) && matchOld[i] == -1:
			ops = append(ops, DeltaOp{Kind: RemoveChild, ParentPath: clonePath(parentPath), Index: cursor, Serialised: ast.Render(oldChildren[i])})
			i++
		case j < len(newChildren) && matchNew[j] == -1:
			ops = append(ops, DeltaOp{Kind: InsertChild, ParentPath: clonePath(parentPath), Index: cursor, Node: newChildren[j], Serialised: ast.Render(newChildren[j])})
			cursor++
			j++
		default:
			childPath := append(clonePath(parentPath), cursor)
			childOps, err := diffNode(oldChildren[i], newChildren[j], childPath)
			if err != nil {
				return nil, err
			}
			ops = append(ops, childOps...)
			cursor++
			i++
			j++
		}
	}

	ops = coalesceMoves(ops)
	return ops, nil
}

// lcsMatch returns, for each index in old/new, the matched index in the
// other sequence (or -1 if unmatched), using a standard O(n*m) LCS table
// over the sameShape predicate.
func lcsMatch(oldChildren, newChildren []*ast.Node) (matchOld, matchNew []int) {
	n, m := len(oldChildren), len(newChildren)
	matchOld = make([]int, n)
	matchNew = make([]int, m)
	for i := range matchOld {
		matchOld[i] = -1
	}
	for j := range matchNew {
		matchNew[j] = -1
	}
	if n == 0 || m == 0 {
		return matchOld, matchNew
	}

	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if sameShape(oldChildren[i], newChildren[j]) {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	i, j := 0, 0
	for i < n && j < m {
		switch {
		case sameShape(oldChildren[i], newChildren[j]) && dp[i][j] == dp[i+1][j+1]+1:
			matchOld[i] = j
			matchNew[j] = i
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return matchOld, matchNew
}

// coalesceMoves merges an adjacent RemoveChild/InsertChild pair that
// serialise to the same node at different positions into a single
// MoveChild, per spec §4.4 step 3. A RemoveChild arrives carrying the
// removed node's rendering for this comparison; it is cleared before the
// op is emitted.
func coalesceMoves(ops []DeltaOp) []DeltaOp {
	var out []DeltaOp
	for idx := 0; idx < len(ops); idx++ {
		op := ops[idx]
		if op.Kind == RemoveChild && idx+1 < len(ops) {
			next := ops[idx+1]
			if next.Kind == InsertChild && pathEqual(op.ParentPath, next.ParentPath) && op.Serialised == next.Serialised {
				out = append(out, DeltaOp{Kind: MoveChild, ParentPath: op.ParentPath, From: op.Index, To: next.Index})
				idx++
				continue
			}
		}
		if op.Kind == RemoveChild {
			op.Serialised = ""
		}
		out = append(out, op)
	}
	return out
}

func pathEqual(a, b []int) bool {
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
