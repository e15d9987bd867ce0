package opset

import "weave/pkg/types"

// MoveDirection selects which neighbor a cursor resolves to when its
// referenced element is no longer visible.
type MoveDirection int

const (
	MoveBefore MoveDirection = iota
	MoveAfter
)

// ElementIDAtIndex resolves index i to the stable element id occupying
// it — the id of the op that first inserted the element, which (unlike
// the winning op's id) never changes as the element is overwritten.
// Used by cursor creation, since a cursor must survive future
// overwrites of the element it names.
func (os *OpSet) ElementIDAtIndex(obj types.ObjID, i int, encoding types.TextEncoding, clock *Clock) (types.ElemID, error) {
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

	var found types.ElemID
	ok2 := false
	os.visibleWalk(o, clock, encoding, func(e *element, top *Op, offset int) bool {
		width := elementWidth(o.typ, top, encoding)
		if i >= offset && i < offset+width {
			found = e.id
			ok2 = true
			return false
		}
		return true
	})
	if !ok2 {
		return types.ElemID{}, types.ErrInvalidIndex
	}
	return found, nil
}

// CursorPosition recomputes the current index-unit offset of elemID. If
// the element is still visible, this is exactly its live offset. If it
// has been deleted, the cursor resolves to the nearest still-visible
// neighbor in dir (cursor-stability rule): MoveBefore walks
// backward and reports the offset just after the nearest visible
// predecessor (0 if none), MoveAfter walks forward and reports the
// offset of the nearest visible successor (the object's length if
// none).
func (os *OpSet) CursorPosition(obj types.ObjID, elemID types.ElemID, dir MoveDirection, encoding types.TextEncoding, clock *Clock) (int, error) {
	o, ok := os.objects[obj]
	if !ok {
		return 0, types.ErrInvalidObjID
	}
	if clock == nil {
		clock = os.clock
	}

	idx := o.findElement(elemID)
	if idx < 0 {
		return 0, types.ErrInvalidCursor
	}

	offset := 0
	targetOffset := -1
	targetVisible := false
	lastVisibleEnd := 0
	for i, e := range o.elements {
		top := e.top(os, clock)
		if i == idx {
			targetOffset = offset
			targetVisible = top != nil
		}
		if top != nil {
			width := elementWidth(o.typ, top, encoding)
			if i < idx {
				lastVisibleEnd = offset + width
			}
			offset += width
		}
	}
	total := offset

	if targetVisible {
		return targetOffset, nil
	}

	if dir == MoveBefore {
		return lastVisibleEnd, nil
	}

	// MoveAfter: find the first visible element strictly after idx.
	offset = 0
	for i, e := range o.elements {
		top := e.top(os, clock)
		if top == nil {
			continue
		}
		if i > idx {
			return offset, nil
		}
		offset += elementWidth(o.typ, top, encoding)
	}
	return total, nil
}
