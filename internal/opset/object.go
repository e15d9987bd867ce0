package opset

import "weave/pkg/types"

// element is one slot in a list/text object's RGA-ordered sequence: the
// op that inserted it (ops[0]) plus any later ops that act on it
// (Delete, Increment), kept in ascending id order.
type element struct {
	id     types.ElemID
	origin types.ElemID // predecessor element id at insertion time, or Head
	ops    []*Op
}

// top returns the currently-winning op for this element: the visible op
// with the greatest id, per the conflict rule.
func (e *element) top(os *OpSet, clock *Clock) *Op {
	var winner *Op
	for _, op := range e.ops {
		if !op.IsVisibleCandidate() {
			continue
		}
		if !os.isVisible(op, clock) {
			continue
		}
		if winner == nil || winner.ID.Less(op.ID) {
			winner = op
		}
	}
	return winner
}

// visibleOps returns every visible op on this element, ascending by id.
func (e *element) visibleOps(os *OpSet, clock *Clock) []*Op {
	var out []*Op
	for _, op := range e.ops {
		if op.IsVisibleCandidate() && os.isVisible(op, clock) {
			out = append(out, op)
		}
	}
	return out
}

// counterValue folds Increment ops over the winning counter op.
func (e *element) counterValue(os *OpSet, clock *Clock, base *Op) types.Value {
	v := base.Value
	for _, op := range e.ops {
		if op.Action != types.ActionIncrement {
			continue
		}
		if !clock.Covers(op.ID) {
			continue
		}
		for _, p := range op.Pred {
			if p == base.ID {
				v = v.WithCounter(op.Value.Int())
			}
		}
	}
	return v
}

// objectInfo is the obj_info side table entry: an object's type and its
// place in the containing document, resolved without any pointer from
// ops into objects ("cyclic ownership" resolution).
type objectInfo struct {
	typ         types.ObjType
	parentOp    types.OpID
	parentIsMap bool
	parentKey   string       // meaningful when parentIsMap
	parentElem  types.ElemID // meaningful otherwise
}

// objectState holds the live ops for one object.
type objectState struct {
	id  types.ObjID
	typ types.ObjType

	// map/table
	keys map[string][]*Op

	// list/text
	elements []*element
}

func newObjectState(id types.ObjID, typ types.ObjType) *objectState {
	o := &objectState{id: id, typ: typ}
	if typ.IsSequence() {
		o.elements = nil
	} else {
		o.keys = make(map[string][]*Op)
	}
	return o
}

// findElement returns the index of the element with the given id, or -1.
func (o *objectState) findElement(id types.ElemID) int {
	for i, e := range o.elements {
		if e.id == id {
			return i
		}
	}
	return -1
}

// insertionIndex computes where a new element with the given origin and
// id should land: just after the origin, skipping every element with a
// greater id. Skipping greater ids walks past both greater-id siblings
// (the tie-break: among siblings, the greater id comes first) and their
// entire subtrees, since a descendant's counter always exceeds its
// ancestor's; the first smaller id marks the edge of a region the new
// element precedes.
func (o *objectState) insertionIndex(origin types.ElemID, newID types.ElemID) int {
	start := 0
	if !origin.IsHead() {
		idx := o.findElement(origin)
		if idx < 0 {
			// Predecessor not present: treat as HEAD rather than
			// failing; this only arises from corrupt input, which must
			// not panic the core.
			start = 0
		} else {
			start = idx + 1
		}
	}

	j := start
	for j < len(o.elements) && newID.Less(o.elements[j].id) {
		j++
	}
	return j
}
