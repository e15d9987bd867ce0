package doc

import (
	"weave/internal/change"
	"weave/internal/opset"
	"weave/internal/query"
	"weave/pkg/types"
)

// Result is one resolved value: what is there, the op that put it
// there, and whether other visible values coexist with it.
type Result = query.Result

// MapEntry and SeqEntry are the row shapes of MapRange/ListRange.
type MapEntry = query.MapEntry
type SeqEntry = query.SeqEntry

// Span is one run of text with a uniform mark set.
type Span = query.Span

// Mark is one active annotation with its current range.
type Mark = opset.Mark

// Cursor is a stable position reference in a list/text object.
type Cursor = query.Cursor

// MoveDirection selects the neighbor a cursor resolves to once its
// element is deleted.
type MoveDirection = opset.MoveDirection

const (
	MoveBefore = opset.MoveBefore
	MoveAfter  = opset.MoveAfter
)

// clockAt converts a head set into the visibility clock queries filter
// by. nil heads means "current state" and returns a nil clock; an empty
// non-nil head set is the pre-document state (covers nothing).
func (d *Document) clockAt(heads []change.Hash) (*opset.Clock, error) {
	if heads == nil {
		return nil, nil
	}
	clock := opset.NewClock()
	for _, h := range heads {
		if !d.graph.Has(h) {
			return nil, types.ErrInvalidHash
		}
	}
	for actorStr, max := range d.graph.Clock(heads) {
		idx, ok := d.ops.Actors.Lookup(types.ActorID(actorStr))
		if !ok {
			continue
		}
		clock.Advance(types.OpID{Counter: max, Actor: idx})
	}
	return clock, nil
}

// Get returns the winning value at a map key.
func (d *Document) Get(obj types.ObjID, key string) (Result, bool) {
	return query.Get(d.ops, obj, key, nil)
}

// GetAt is Get as of the given heads.
func (d *Document) GetAt(obj types.ObjID, key string, heads []change.Hash) (Result, bool, error) {
	clock, err := d.clockAt(heads)
	if err != nil {
		return Result{}, false, err
	}
	r, ok := query.Get(d.ops, obj, key, clock)
	return r, ok, nil
}

// GetAll returns every visible value at a map key, ascending by id.
func (d *Document) GetAll(obj types.ObjID, key string) []Result {
	return query.GetAll(d.ops, obj, key, nil)
}

// GetAllAt is GetAll as of the given heads.
func (d *Document) GetAllAt(obj types.ObjID, key string, heads []change.Hash) ([]Result, error) {
	clock, err := d.clockAt(heads)
	if err != nil {
		return nil, err
	}
	return query.GetAll(d.ops, obj, key, clock), nil
}

// GetIndex returns the winning value at a list/text index.
func (d *Document) GetIndex(obj types.ObjID, i int) (Result, error) {
	return query.GetIndex(d.ops, obj, i, d.encoding, nil)
}

// GetIndexAt is GetIndex as of the given heads.
func (d *Document) GetIndexAt(obj types.ObjID, i int, heads []change.Hash) (Result, error) {
	clock, err := d.clockAt(heads)
	if err != nil {
		return Result{}, err
	}
	return query.GetIndex(d.ops, obj, i, d.encoding, clock)
}

// Keys returns the map keys of obj with at least one visible value.
func (d *Document) Keys(obj types.ObjID) ([]string, error) {
	return query.Keys(d.ops, obj, nil)
}

// KeysAt is Keys as of the given heads.
func (d *Document) KeysAt(obj types.ObjID, heads []change.Hash) ([]string, error) {
	clock, err := d.clockAt(heads)
	if err != nil {
		return nil, err
	}
	return query.Keys(d.ops, obj, clock)
}

// MapRange returns the visible entries of a map with keys in [lo, hi);
// empty bounds are unbounded.
func (d *Document) MapRange(obj types.ObjID, lo, hi string) ([]MapEntry, error) {
	return query.MapRange(d.ops, obj, lo, hi, nil)
}

// MapRangeAt is MapRange as of the given heads.
func (d *Document) MapRangeAt(obj types.ObjID, lo, hi string, heads []change.Hash) ([]MapEntry, error) {
	clock, err := d.clockAt(heads)
	if err != nil {
		return nil, err
	}
	return query.MapRange(d.ops, obj, lo, hi, clock)
}

// ListRange returns the visible elements of a list in [lo, hi); hi < 0
// means to the end.
func (d *Document) ListRange(obj types.ObjID, lo, hi int) ([]SeqEntry, error) {
	return query.ListRange(d.ops, obj, lo, hi, d.encoding, nil)
}

// ListRangeAt is ListRange as of the given heads.
func (d *Document) ListRangeAt(obj types.ObjID, lo, hi int, heads []change.Hash) ([]SeqEntry, error) {
	clock, err := d.clockAt(heads)
	if err != nil {
		return nil, err
	}
	return query.ListRange(d.ops, obj, lo, hi, d.encoding, clock)
}

// Text returns a text object's visible content.
func (d *Document) Text(obj types.ObjID) (string, error) {
	return query.Text(d.ops, obj, d.encoding, nil)
}

// TextAt is Text as of the given heads.
func (d *Document) TextAt(obj types.ObjID, heads []change.Hash) (string, error) {
	clock, err := d.clockAt(heads)
	if err != nil {
		return "", err
	}
	return query.Text(d.ops, obj, d.encoding, clock)
}

// Spans splits a text object into runs of uniform mark state.
func (d *Document) Spans(obj types.ObjID) ([]Span, error) {
	return query.Spans(d.ops, obj, d.encoding, nil)
}

// SpansAt is Spans as of the given heads.
func (d *Document) SpansAt(obj types.ObjID, heads []change.Hash) ([]Span, error) {
	clock, err := d.clockAt(heads)
	if err != nil {
		return nil, err
	}
	return query.Spans(d.ops, obj, d.encoding, clock)
}

// Length returns the visible length of obj: entry count for maps,
// element count for lists, encoding units for text.
func (d *Document) Length(obj types.ObjID) (int, error) {
	typ, err := d.ops.ObjectType(obj)
	if err != nil {
		return 0, err
	}
	if !typ.IsSequence() {
		keys, err := query.Keys(d.ops, obj, nil)
		if err != nil {
			return 0, err
		}
		return len(keys), nil
	}
	return query.Length(d.ops, obj, d.encoding, nil)
}

// LengthAt is Length as of the given heads. An empty non-nil head set
// is the pre-document state and reports 0.
func (d *Document) LengthAt(obj types.ObjID, heads []change.Hash) (int, error) {
	clock, err := d.clockAt(heads)
	if err != nil {
		return 0, err
	}
	typ, err := d.ops.ObjectType(obj)
	if err != nil {
		return 0, err
	}
	if !typ.IsSequence() {
		keys, err := query.Keys(d.ops, obj, clock)
		if err != nil {
			return 0, err
		}
		return len(keys), nil
	}
	return query.Length(d.ops, obj, d.encoding, clock)
}

// Marks returns the active marks of a text object with overlaps folded
// to their winners.
func (d *Document) Marks(obj types.ObjID) ([]Mark, error) {
	return query.Marks(d.ops, obj, d.encoding, nil)
}

// MarksAt is Marks as of the given heads.
func (d *Document) MarksAt(obj types.ObjID, heads []change.Hash) ([]Mark, error) {
	clock, err := d.clockAt(heads)
	if err != nil {
		return nil, err
	}
	return query.Marks(d.ops, obj, d.encoding, clock)
}

// GetMarks returns the mark set active at one text position.
func (d *Document) GetMarks(obj types.ObjID, pos int) (map[string]types.Value, error) {
	marks, err := d.Marks(obj)
	if err != nil {
		return nil, err
	}
	out := make(map[string]types.Value)
	for _, m := range marks {
		if pos >= m.Begin && pos < m.End {
			out[m.Name] = m.Value
		}
	}
	return out, nil
}

// GetCursor creates a stable cursor for position pos of obj.
func (d *Document) GetCursor(obj types.ObjID, pos int) (Cursor, error) {
	return query.GetCursor(d.ops, obj, pos, d.encoding, nil)
}

// GetCursorAt creates a cursor for pos as of the given heads.
func (d *Document) GetCursorAt(obj types.ObjID, pos int, heads []change.Hash) (Cursor, error) {
	clock, err := d.clockAt(heads)
	if err != nil {
		return Cursor{}, err
	}
	return query.GetCursor(d.ops, obj, pos, d.encoding, clock)
}

// GetCursorPosition resolves a cursor back to its current index,
// falling to the nearest visible neighbor in dir if its element was
// deleted.
func (d *Document) GetCursorPosition(obj types.ObjID, c Cursor, dir MoveDirection) (int, error) {
	return query.GetCursorPosition(d.ops, obj, c, dir, d.encoding, nil)
}

// GetCursorPositionAt is GetCursorPosition as of the given heads.
func (d *Document) GetCursorPositionAt(obj types.ObjID, c Cursor, dir MoveDirection, heads []change.Hash) (int, error) {
	clock, err := d.clockAt(heads)
	if err != nil {
		return 0, err
	}
	return query.GetCursorPosition(d.ops, obj, c, dir, d.encoding, clock)
}
