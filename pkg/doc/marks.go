package doc

import (
	"sort"

	"weave/internal/opset"
	"weave/pkg/types"
)

// Mark annotates [start, end) of a text object with a named value. The
// mark is realized as a MarkBegin/MarkEnd pair of zero-width boundary
// elements; expand controls which boundaries move with text inserted
// exactly at them.
func (d *Document) Mark(text types.ObjID, name string, v types.Value, start, end int, expand ExpandMark) error {
	typ, err := d.requireSeq(text, "mark")
	if err != nil {
		return err
	}
	if typ != types.ObjTypeText {
		return types.NewInvalidOpError("mark", typ)
	}
	n, err := d.ops.Length(text, d.encoding, nil)
	if err != nil {
		return err
	}
	if start < 0 || end > n || start > end {
		return types.ErrInvalidIndex
	}
	if start == end {
		return nil
	}

	tx := d.ensureTx()

	beginOrigin, err := d.ops.QueryInsertAt(text, start, d.encoding, nil)
	if err != nil {
		return err
	}
	begin := &opset.Op{
		ID:          d.nextOpID(tx),
		Obj:         text,
		Action:      types.ActionMarkBegin,
		Value:       v,
		Insert:      true,
		ElemKey:     beginOrigin,
		MarkName:    name,
		ExpandLeft:  expand.left(),
		ExpandRight: expand.right(),
	}
	d.applyLocal(tx, begin)

	// The begin marker is zero width, so end still addresses the same
	// content position. The end op's counter is begin's + 1, the pairing
	// rule the mark index keys on.
	endOrigin, err := d.ops.QueryInsertAt(text, end, d.encoding, nil)
	if err != nil {
		return err
	}
	endOp := &opset.Op{
		ID:          d.nextOpID(tx),
		Obj:         text,
		Action:      types.ActionMarkEnd,
		Insert:      true,
		ElemKey:     endOrigin,
		MarkName:    name,
		ExpandLeft:  expand.left(),
		ExpandRight: expand.right(),
	}
	d.applyLocal(tx, endOp)
	return nil
}

// Unmark removes the named mark over [start, end): it writes a
// null-valued mark, which the mark fold treats as clearing the name for
// the covered range.
func (d *Document) Unmark(text types.ObjID, name string, start, end int) error {
	return d.Mark(text, name, types.NewNull(), start, end, ExpandNone)
}

// SplitBlock inserts a block marker at position i of a text object: a
// fresh inline map carrying the block's attributes (e.g. its paragraph
// or heading type). The marker occupies one position in the sequence.
func (d *Document) SplitBlock(text types.ObjID, i int, attrs map[string]types.Value) (types.ObjID, error) {
	typ, err := d.requireSeq(text, "split_block")
	if err != nil {
		return types.ObjID{}, err
	}
	if typ != types.ObjTypeText {
		return types.ObjID{}, types.NewInvalidOpError("split_block", typ)
	}

	tx := d.ensureTx()
	op, err := d.insertAt(tx, text, i, types.ActionMakeMap, types.Value{})
	if err != nil {
		return types.ObjID{}, err
	}
	block := op.ID
	for _, k := range sortedAttrKeys(attrs) {
		if err := d.Put(block, k, attrs[k]); err != nil {
			return types.ObjID{}, err
		}
	}
	return block, nil
}

// JoinBlock removes a block marker, joining the two runs of text it
// separated.
func (d *Document) JoinBlock(block types.ObjID) error {
	parent, elem, ok := d.ops.ParentElem(block)
	if !ok {
		return types.ErrInvalidObjID
	}
	ptyp, err := d.ops.ObjectType(parent)
	if err != nil {
		return err
	}
	if ptyp != types.ObjTypeText {
		return types.NewInvalidOpError("join_block", ptyp)
	}
	ops, err := d.ops.VisibleOpsOfElem(parent, elem, nil)
	if err != nil {
		return err
	}
	preds := visiblePreds(d.ops, ops)
	if len(preds) == 0 {
		return types.ErrInvalidObjID // already joined
	}
	tx := d.ensureTx()
	op := &opset.Op{
		ID:      d.nextOpID(tx),
		Obj:     parent,
		Action:  types.ActionDelete,
		ElemKey: elem,
		Pred:    preds,
	}
	d.applyLocal(tx, op)
	return nil
}

func sortedAttrKeys(attrs map[string]types.Value) []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
