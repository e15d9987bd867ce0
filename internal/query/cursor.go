package query

import (
	"weave/internal/opset"
	"weave/pkg/types"
)

// CursorKind distinguishes the Start/End sentinels from an
// element-anchored cursor.
type CursorKind int

const (
	CursorStart CursorKind = iota
	CursorEnd
	CursorElem
)

// Cursor is a stable reference to a position in a list/text object,
// surviving edits elsewhere in the sequence.
type Cursor struct {
	Kind CursorKind
	Elem types.ElemID
}

// GetCursor creates a cursor for position pos of obj at the given clock.
// The direction to fall back in once the anchored element is deleted is
// not chosen here; GetCursorPosition takes it at resolution time.
func GetCursor(os *opset.OpSet, obj types.ObjID, pos int, encoding types.TextEncoding, clock *opset.Clock) (Cursor, error) {
	n, err := os.Length(obj, encoding, effectiveClock(os, clock))
	if err != nil {
		return Cursor{}, err
	}
	if pos < 0 || pos > n {
		return Cursor{}, types.ErrInvalidIndex
	}
	if pos == 0 {
		return Cursor{Kind: CursorStart}, nil
	}
	if pos == n {
		return Cursor{Kind: CursorEnd}, nil
	}
	elem, err := os.ElementIDAtIndex(obj, pos, encoding, effectiveClock(os, clock))
	if err != nil {
		return Cursor{}, err
	}
	return Cursor{Kind: CursorElem, Elem: elem}, nil
}

// GetCursorPosition recomputes c's current index in obj, resolving to
// the nearest visible neighbor in dir if c's element has been deleted
// since it was created.
func GetCursorPosition(os *opset.OpSet, obj types.ObjID, c Cursor, dir opset.MoveDirection, encoding types.TextEncoding, clock *opset.Clock) (int, error) {
	switch c.Kind {
	case CursorStart:
		return 0, nil
	case CursorEnd:
		return os.Length(obj, encoding, effectiveClock(os, clock))
	default:
		return os.CursorPosition(obj, c.Elem, dir, encoding, effectiveClock(os, clock))
	}
}
