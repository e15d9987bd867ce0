package opset

import "weave/pkg/types"

// Mark is one active rich-text annotation at a given clock: a name/value
// pair covering the half-open range [Begin, End) in text-index units.
// End == -1 means the mark's MarkEnd is missing and the mark is treated
// as open to end-of-text (required, non-error behavior).
type Mark struct {
	ID          types.OpID // the MarkBegin op, the tie-break key when marks overlap
	Name        string
	Value       types.Value
	Begin       int
	End         int
	ExpandLeft  bool
	ExpandRight bool
}

// isMarkEndOf reports whether end is the required MarkEnd(id.next) for
// begin, per the pairing convention: same actor, counter+1.
func isMarkEndOf(begin, end types.OpID) bool {
	return end.Actor == begin.Actor && end.Counter == begin.Counter+1
}

// Marks folds every MarkBegin/MarkEnd pair covered by clock over obj's
// sequence into the set of currently active mark spans (the
// mark_index, exposed for internal/query's marks()/spans()).
func (os *OpSet) Marks(obj types.ObjID, encoding types.TextEncoding, clock *Clock) ([]Mark, error) {
	o, ok := os.objects[obj]
	if !ok {
		return nil, types.ErrInvalidObjID
	}
	if clock == nil {
		clock = os.clock
	}

	type begin struct {
		op  *Op
		pos int
	}
	var begins []begin
	var ends []*Op

	offset := 0
	for _, e := range o.elements {
		top := e.top(os, clock)
		for _, op := range e.ops {
			if !clock.Covers(op.ID) {
				continue
			}
			switch op.Action {
			case types.ActionMarkBegin:
				if top == op { // only the winning begin at this slot is active
					begins = append(begins, begin{op: op, pos: offset})
				}
			case types.ActionMarkEnd:
				ends = append(ends, op)
			}
		}
		if top != nil {
			offset += elementWidth(o.typ, top, encoding)
		}
	}

	var marks []Mark
	for _, b := range begins {
		marks = append(marks, Mark{
			ID:          b.op.ID,
			Name:        b.op.MarkName,
			Value:       b.op.Value,
			Begin:       b.pos,
			End:         markEndOffset(os, o, encoding, clock, b.op, ends),
			ExpandLeft:  b.op.ExpandLeft,
			ExpandRight: b.op.ExpandRight,
		})
	}
	return marks, nil
}

// findMarkEnd reports whether this element carries the given MarkEnd op
// among its (possibly tombstoned) ops.
func (e *element) findMarkEnd(id types.OpID) bool {
	for _, op := range e.ops {
		if op.ID == id {
			return true
		}
	}
	return false
}

// markEndOffset locates the text-index offset of beginOp's paired
// MarkEnd, or -1 if none of ends matches (open to end-of-text).
func markEndOffset(os *OpSet, o *objectState, encoding types.TextEncoding, clock *Clock, beginOp *Op, ends []*Op) int {
	var endID types.OpID
	found := false
	for _, e := range ends {
		if isMarkEndOf(beginOp.ID, e.ID) {
			endID = e.ID
			found = true
			break
		}
	}
	if !found {
		return -1
	}

	offset := 0
	for _, e := range o.elements {
		if e.findMarkEnd(endID) {
			return offset
		}
		if top := e.top(os, clock); top != nil {
			offset += elementWidth(o.typ, top, encoding)
		}
	}
	return -1
}
