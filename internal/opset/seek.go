package opset

import "weave/pkg/types"

// SeekOpsByMapKey returns every op ever written at key on a map/table
// object, ascending by id — the raw conflict set a get_all query folds
// down to winners.
func (os *OpSet) SeekOpsByMapKey(obj types.ObjID, key string) []*Op {
	o, ok := os.objects[obj]
	if !ok || o.keys == nil {
		return nil
	}
	return o.keys[key]
}

// elementWidth returns how many index units (in encoding) a visible
// element at the top of the conflict set occupies. List elements are
// always width 1 regardless of encoding; text elements are measured by
// their winning Set op's single-codepoint value.
func elementWidth(typ types.ObjType, top *Op, encoding types.TextEncoding) int {
	if top == nil {
		return 1
	}
	if top.Action == types.ActionMarkBegin {
		return 0 // mark boundary: a zero-width marker, not content
	}
	if typ != types.ObjTypeText {
		return 1
	}
	if top.Value.Kind() != types.KindStr {
		return 1
	}
	r := []rune(top.Value.Str())
	if len(r) == 0 {
		return 0
	}
	return encoding.RuneWidth(r[0])
}

// visibleWalk calls fn for every element in obj's RGA order that has a
// visible top op at clock, passing the element, its winning op, and the
// running index-unit offset before this element. Stops early if fn
// returns false.
func (os *OpSet) visibleWalk(o *objectState, clock *Clock, encoding types.TextEncoding, fn func(e *element, top *Op, offset int) bool) {
	offset := 0
	for _, e := range o.elements {
		top := e.top(os, clock)
		if top == nil {
			continue // tombstoned: contributes no width, not yielded
		}
		if !fn(e, top, offset) {
			return
		}
		offset += elementWidth(o.typ, top, encoding)
	}
}

// SeekOpsByIndex resolves index i (in encoding's units) on a list/text
// object to the element occupying it, at the given clock (nil means the
// current heads). Returns types.ErrInvalidIndex if i is out of range.
func (os *OpSet) SeekOpsByIndex(obj types.ObjID, i int, encoding types.TextEncoding, clock *Clock) (*Op, error) {
	o, ok := os.objects[obj]
	if !ok {
		return nil, types.ErrInvalidObjID
	}
	if clock == nil {
		clock = os.clock
	}
	if i < 0 {
		return nil, types.ErrInvalidIndex
	}

	var found *Op
	os.visibleWalk(o, clock, encoding, func(e *element, top *Op, offset int) bool {
		width := elementWidth(o.typ, top, encoding)
		if i >= offset && i < offset+width {
			found = top
			return false
		}
		return true
	})
	if found == nil {
		return nil, types.ErrInvalidIndex
	}
	return found, nil
}

// ResolveIndex resolves index i like SeekOpsByIndex but additionally
// folds covered Increment ops over the winner (so counter elements
// report their accumulated value) and reports whether other visible
// values coexist with it — the conflict flag list_range rows carry.
func (os *OpSet) ResolveIndex(obj types.ObjID, i int, encoding types.TextEncoding, clock *Clock) (*Op, types.Value, bool, error) {
	o, ok := os.objects[obj]
	if !ok {
		return nil, types.Value{}, false, types.ErrInvalidObjID
	}
	if clock == nil {
		clock = os.clock
	}
	if i < 0 {
		return nil, types.Value{}, false, types.ErrInvalidIndex
	}

	var found *Op
	var val types.Value
	conflict := false
	os.visibleWalk(o, clock, encoding, func(e *element, top *Op, offset int) bool {
		width := elementWidth(o.typ, top, encoding)
		if i >= offset && i < offset+width {
			found = top
			val = top.Value
			if top.Value.Kind() == types.KindCounter {
				val = e.counterValue(os, clock, top)
			}
			conflict = len(e.visibleOps(os, clock)) > 1
			return false
		}
		return true
	})
	if found == nil {
		return nil, types.Value{}, false, types.ErrInvalidIndex
	}
	return found, val, conflict, nil
}

// FoldCounter accumulates every clock-covered Increment in ops whose
// pred list names base, on top of base's own counter value. Used by the
// query layer for map keys, where the conflict set at the key carries
// the increments alongside the Set ops they modify.
func FoldCounter(base *Op, ops []*Op, clock *Clock) types.Value {
	v := base.Value
	for _, op := range ops {
		if op.Action != types.ActionIncrement || !clock.Covers(op.ID) {
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

// AdjustInsertOrigin nudges an insertion origin across adjacent
// zero-width mark boundary markers so new text lands on the correct
// side of each mark (expand flags). A MarkEnd whose mark
// does not expand right pulls the insertion after itself (text stays
// outside the mark); a MarkBegin whose mark expands left does the same
// (text joins the mark).
func (os *OpSet) AdjustInsertOrigin(obj types.ObjID, origin types.ElemID) types.ElemID {
	o, ok := os.objects[obj]
	if !ok {
		return origin
	}

	idx := -1
	if !origin.IsHead() {
		idx = o.findElement(origin)
		if idx < 0 {
			return origin
		}
	}

	for j := idx + 1; j < len(o.elements); j++ {
		e := o.elements[j]
		marker := e.markerOp()
		if marker == nil {
			break
		}
		switch marker.Action {
		case types.ActionMarkEnd:
			if marker.ExpandRight {
				return origin // inside: new text comes before the end marker
			}
			origin = e.id
		case types.ActionMarkBegin:
			if !marker.ExpandLeft {
				return origin // outside: new text stays before the begin marker
			}
			origin = e.id
		}
	}
	return origin
}

// markerOp returns the mark boundary op that created this element, or
// nil if the element is ordinary content.
func (e *element) markerOp() *Op {
	if len(e.ops) == 0 {
		return nil
	}
	op := e.ops[0]
	if op.Action == types.ActionMarkBegin || op.Action == types.ActionMarkEnd {
		return op
	}
	return nil
}

// VisibleOpsAtIndex resolves index i to its element's stable id plus
// every visible op on that element, the raw material a local overwrite
// or delete needs for its pred list.
func (os *OpSet) VisibleOpsAtIndex(obj types.ObjID, i int, encoding types.TextEncoding, clock *Clock) (types.ElemID, []*Op, error) {
	o, ok := os.objects[obj]
	if !ok {
		return types.ElemID{}, nil, types.ErrInvalidObjID
	}
	if clock == nil {
		clock = os.clock
	}
	if i < 0 {
		return types.ElemID{}, nil, types.ErrInvalidIndex
	}

	var elem types.ElemID
	var ops []*Op
	found := false
	os.visibleWalk(o, clock, encoding, func(e *element, top *Op, offset int) bool {
		width := elementWidth(o.typ, top, encoding)
		if i >= offset && i < offset+width {
			elem = e.id
			ops = e.visibleOps(os, clock)
			found = true
			return false
		}
		return true
	})
	if !found {
		return types.ElemID{}, nil, types.ErrInvalidIndex
	}
	return elem, ops, nil
}

// VisibleOpsOfElem returns the visible ops on the element with the
// given stable id, regardless of its current position or visibility.
func (os *OpSet) VisibleOpsOfElem(obj types.ObjID, elem types.ElemID, clock *Clock) ([]*Op, error) {
	o, ok := os.objects[obj]
	if !ok {
		return nil, types.ErrInvalidObjID
	}
	if clock == nil {
		clock = os.clock
	}
	idx := o.findElement(elem)
	if idx < 0 {
		return nil, types.ErrInvalidObjID
	}
	return o.elements[idx].visibleOps(os, clock), nil
}

// SeekListOpID returns the current index-unit offset of the element
// identified by id, the inverse of SeekOpsByIndex. Used to resolve
// cursors back to a live position (cursor/spans).
func (os *OpSet) SeekListOpID(obj types.ObjID, id types.ElemID, encoding types.TextEncoding, clock *Clock) (int, error) {
	o, ok := os.objects[obj]
	if !ok {
		return 0, types.ErrInvalidObjID
	}
	if clock == nil {
		clock = os.clock
	}

	result := -1
	os.visibleWalk(o, clock, encoding, func(e *element, top *Op, offset int) bool {
		if e.id == id {
			result = offset
			return false
		}
		return true
	})
	if result < 0 {
		return 0, types.ErrInvalidCursor
	}
	return result, nil
}

// QueryInsertAt resolves the insertion origin (the ElemID a new op's
// ElemKey/Insert pair should target) for inserting at index i on a
// list/text object. i == the object's current visible length means
// "append at the end", yielding the last visible element's id (so the
// new insert lands after it); i == 0 yields types.Head.
func (os *OpSet) QueryInsertAt(obj types.ObjID, i int, encoding types.TextEncoding, clock *Clock) (types.ElemID, error) {
	o, ok := os.objects[obj]
	if !ok {
		return types.ElemID{}, types.ErrInvalidObjID
	}
	if clock == nil {
		clock = os.clock
	}
	if i < 0 {
		return types.ElemID{}, types.ErrInvalidIndex
	}
	if i == 0 {
		return types.Head, nil
	}

	var origin types.ElemID
	found := false
	os.visibleWalk(o, clock, encoding, func(e *element, top *Op, offset int) bool {
		width := elementWidth(o.typ, top, encoding)
		if i > offset && i <= offset+width {
			origin = e.id
			found = true
			return false
		}
		return true
	})
	if !found {
		return types.ElemID{}, types.ErrInvalidIndex
	}
	return origin, nil
}

// Length returns the visible length of obj in encoding's units at clock
// (length_at).
func (os *OpSet) Length(obj types.ObjID, encoding types.TextEncoding, clock *Clock) (int, error) {
	o, ok := os.objects[obj]
	if !ok {
		return 0, types.ErrInvalidObjID
	}
	if clock == nil {
		clock = os.clock
	}
	total := 0
	os.visibleWalk(o, clock, encoding, func(e *element, top *Op, offset int) bool {
		total += elementWidth(o.typ, top, encoding)
		return true
	})
	return total, nil
}
