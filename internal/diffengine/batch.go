package diffengine

import "strconv"

// optimizeBatch is the post-pass over a diff's operations: of several
// UpdateText operations on the same path, and of several SetAttribute
// operations on the same (path, name), only the last is kept, wherever
// they sit in the list. No other operation is dropped; operations whose
// combined effect is the identity are not detected and stay in the batch.
func optimizeBatch(ops []DeltaOp) []DeltaOp {
	lastSetAttr := make(map[string]int) // "path|name" -> index of last SetAttribute
	lastUpdateText := make(map[string]int)
	keep := make([]bool, len(ops))
	for i := range keep {
		keep[i] = true
	}

	for i, op := range ops {
		switch op.Kind {
		case SetAttribute:
			key := pathKey(op.Path) + "|" + op.AttrName
			if prev, ok := lastSetAttr[key]; ok {
				keep[prev] = false
			}
			lastSetAttr[key] = i
		case UpdateText:
			key := pathKey(op.Path)
			if prev, ok := lastUpdateText[key]; ok {
				keep[prev] = false
			}
			lastUpdateText[key] = i
		}
	}

	out := make([]DeltaOp, 0, len(ops))
	for i, op := range ops {
		if keep[i] {
			out = append(out, op)
		}
	}
	return out
}

func pathKey(path []int) string {
	s := ""
	for _, p := range path {
		s += strconv.Itoa(p) + ","
	}
	return s
}
