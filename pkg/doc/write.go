package doc

import (
	"weave/internal/apply"
	"weave/internal/change"
	"weave/internal/opset"
	"weave/pkg/types"
)

// ExpandMark selects which sides of a mark grow when text is inserted
// exactly at its boundary.
type ExpandMark int

const (
	ExpandNone ExpandMark = iota
	ExpandBefore
	ExpandAfter
	ExpandBoth
)

func (e ExpandMark) left() bool  { return e == ExpandBefore || e == ExpandBoth }
func (e ExpandMark) right() bool { return e == ExpandAfter || e == ExpandBoth }

// localRef translates a document-global op id into the pending change's
// local actor numbering.
func (d *Document) localRef(tx *transaction, id types.OpID) change.ObjRef {
	if id.IsRoot() {
		return change.ObjRef{}
	}
	return change.ObjRef{Counter: id.Counter, Actor: tx.builder.ActorIndex(d.ops.Actors.Actor(id.Actor))}
}

// applyLocal appends op to the pending transaction and applies it to
// the op-set immediately, so reads in the same scope observe it. op.ID
// must have been minted by nextOpID on the same transaction.
func (d *Document) applyLocal(tx *transaction, op *opset.Op) {
	rec := change.OpRecord{
		Counter:     op.ID.Counter,
		Obj:         d.localRef(tx, op.Obj),
		Action:      op.Action,
		Value:       op.Value,
		Insert:      op.Insert,
		IsMapKey:    op.IsMapKey,
		MapKey:      op.MapKey,
		MarkName:    op.MarkName,
		ExpandLeft:  op.ExpandLeft,
		ExpandRight: op.ExpandRight,
	}
	if !op.IsMapKey {
		rec.ElemKey = d.localRef(tx, op.ElemKey)
	}
	for _, p := range op.Pred {
		rec.Pred = append(rec.Pred, d.localRef(tx, p))
	}
	tx.builder.AddOp(rec)
	tx.nops++

	preIndex := -1
	if !op.IsMapKey && !op.Insert && op.Action == types.ActionDelete {
		if idx, err := d.ops.SeekListOpID(op.Obj, op.ElemKey, types.TextEncodingUnicodeCodePoints, nil); err == nil {
			preIndex = idx
		}
	}
	d.ops.Insert(op)
	apply.EmitPatch(d.ops, op, preIndex, d.patches)
}

func (d *Document) nextOpID(tx *transaction) types.OpID {
	return types.OpID{Counter: tx.startOp + uint64(tx.nops), Actor: d.selfIndex()}
}

// visiblePreds returns the ids of every visible op in the conflict set,
// the pred list an overwrite or delete carries.
func visiblePreds(os *opset.OpSet, ops []*opset.Op) []types.OpID {
	var out []types.OpID
	for _, o := range ops {
		if o.IsVisibleCandidate() && os.IsCurrentlyVisible(o.ID) {
			out = append(out, o.ID)
		}
	}
	return out
}

func (d *Document) requireMap(obj types.ObjID, opName string) error {
	typ, err := d.ops.ObjectType(obj)
	if err != nil {
		return err
	}
	if typ.IsSequence() {
		return types.NewInvalidOpError(opName, typ)
	}
	return nil
}

func (d *Document) requireSeq(obj types.ObjID, opName string) (types.ObjType, error) {
	typ, err := d.ops.ObjectType(obj)
	if err != nil {
		return 0, err
	}
	if !typ.IsSequence() {
		return 0, types.NewInvalidOpError(opName, typ)
	}
	return typ, nil
}

// Put writes a scalar at a map key, overwriting every currently visible
// value there.
func (d *Document) Put(obj types.ObjID, key string, v types.Value) error {
	if err := d.requireMap(obj, "put"); err != nil {
		return err
	}
	tx := d.ensureTx()
	op := &opset.Op{
		ID:       d.nextOpID(tx),
		Obj:      obj,
		Action:   types.ActionSet,
		Value:    v,
		IsMapKey: true,
		MapKey:   key,
		Pred:     visiblePreds(d.ops, d.ops.SeekOpsByMapKey(obj, key)),
	}
	d.applyLocal(tx, op)
	return nil
}

// PutObject creates a fresh object of the given type at a map key and
// returns its id.
func (d *Document) PutObject(obj types.ObjID, key string, t types.ObjType) (types.ObjID, error) {
	if err := d.requireMap(obj, "put_object"); err != nil {
		return types.ObjID{}, err
	}
	tx := d.ensureTx()
	op := &opset.Op{
		ID:       d.nextOpID(tx),
		Obj:      obj,
		Action:   makeAction(t),
		IsMapKey: true,
		MapKey:   key,
		Pred:     visiblePreds(d.ops, d.ops.SeekOpsByMapKey(obj, key)),
	}
	d.applyLocal(tx, op)
	return op.ID, nil
}

func makeAction(t types.ObjType) types.OpAction {
	switch t {
	case types.ObjTypeMap:
		return types.ActionMakeMap
	case types.ObjTypeTable:
		return types.ActionMakeTable
	case types.ObjTypeList:
		return types.ActionMakeList
	default:
		return types.ActionMakeText
	}
}

// insertAt mints one insertion op at index i, nudged across mark
// boundaries, and returns it after application.
func (d *Document) insertAt(tx *transaction, obj types.ObjID, i int, action types.OpAction, v types.Value) (*opset.Op, error) {
	origin, err := d.ops.QueryInsertAt(obj, i, d.encoding, nil)
	if err != nil {
		return nil, err
	}
	origin = d.ops.AdjustInsertOrigin(obj, origin)
	op := &opset.Op{
		ID:      d.nextOpID(tx),
		Obj:     obj,
		Action:  action,
		Value:   v,
		Insert:  true,
		ElemKey: origin,
	}
	d.applyLocal(tx, op)
	return op, nil
}

// Insert places a scalar at index i of a list, shifting later elements.
func (d *Document) Insert(list types.ObjID, i int, v types.Value) error {
	if _, err := d.requireSeq(list, "insert"); err != nil {
		return err
	}
	tx := d.ensureTx()
	_, err := d.insertAt(tx, list, i, types.ActionSet, v)
	return err
}

// InsertObject creates a fresh object of the given type at index i of a
// list and returns its id.
func (d *Document) InsertObject(list types.ObjID, i int, t types.ObjType) (types.ObjID, error) {
	if _, err := d.requireSeq(list, "insert_object"); err != nil {
		return types.ObjID{}, err
	}
	tx := d.ensureTx()
	op, err := d.insertAt(tx, list, i, makeAction(t), types.Value{})
	if err != nil {
		return types.ObjID{}, err
	}
	return op.ID, nil
}

// PutIndex overwrites the value at index i of a list in place (no
// shift), retaining conflicts like a map put does.
func (d *Document) PutIndex(list types.ObjID, i int, v types.Value) error {
	if _, err := d.requireSeq(list, "put"); err != nil {
		return err
	}
	elem, ops, err := d.ops.VisibleOpsAtIndex(list, i, d.encoding, nil)
	if err != nil {
		return err
	}
	tx := d.ensureTx()
	op := &opset.Op{
		ID:      d.nextOpID(tx),
		Obj:     list,
		Action:  types.ActionSet,
		Value:   v,
		ElemKey: elem,
		Pred:    visiblePreds(d.ops, ops),
	}
	d.applyLocal(tx, op)
	return nil
}

// PutObjectIndex overwrites index i of a list with a fresh object.
func (d *Document) PutObjectIndex(list types.ObjID, i int, t types.ObjType) (types.ObjID, error) {
	if _, err := d.requireSeq(list, "put_object"); err != nil {
		return types.ObjID{}, err
	}
	elem, ops, err := d.ops.VisibleOpsAtIndex(list, i, d.encoding, nil)
	if err != nil {
		return types.ObjID{}, err
	}
	tx := d.ensureTx()
	op := &opset.Op{
		ID:      d.nextOpID(tx),
		Obj:     list,
		Action:  makeAction(t),
		ElemKey: elem,
		Pred:    visiblePreds(d.ops, ops),
	}
	d.applyLocal(tx, op)
	return op.ID, nil
}

// Delete removes a map key. Deleting a key with no visible value is a
// no-op: no op is minted and no patch emitted.
func (d *Document) Delete(obj types.ObjID, key string) error {
	if err := d.requireMap(obj, "delete"); err != nil {
		return err
	}
	preds := visiblePreds(d.ops, d.ops.SeekOpsByMapKey(obj, key))
	if len(preds) == 0 {
		return nil
	}
	tx := d.ensureTx()
	op := &opset.Op{
		ID:       d.nextOpID(tx),
		Obj:      obj,
		Action:   types.ActionDelete,
		IsMapKey: true,
		MapKey:   key,
		Pred:     preds,
	}
	d.applyLocal(tx, op)
	return nil
}

// DeleteIndex removes the element at index i of a list. A non-existent
// index is ErrInvalidIndex, unlike the map no-op.
func (d *Document) DeleteIndex(list types.ObjID, i int) error {
	if _, err := d.requireSeq(list, "delete"); err != nil {
		return err
	}
	elem, ops, err := d.ops.VisibleOpsAtIndex(list, i, d.encoding, nil)
	if err != nil {
		return err
	}
	tx := d.ensureTx()
	op := &opset.Op{
		ID:      d.nextOpID(tx),
		Obj:     list,
		Action:  types.ActionDelete,
		ElemKey: elem,
		Pred:    visiblePreds(d.ops, ops),
	}
	d.applyLocal(tx, op)
	return nil
}

// counterPreds filters the conflict set down to visible counter values,
// the only legal targets of an increment.
func counterPreds(os *opset.OpSet, ops []*opset.Op) []types.OpID {
	var out []types.OpID
	for _, o := range ops {
		if o.IsVisibleCandidate() && os.IsCurrentlyVisible(o.ID) && o.Value.Kind() == types.KindCounter {
			out = append(out, o.ID)
		}
	}
	return out
}

// Increment adds delta to the counter at a map key. On a conflicted key
// it applies to every visible counter value; with no counter among the
// visible values it is ErrMissingCounter.
func (d *Document) Increment(obj types.ObjID, key string, delta int64) error {
	if err := d.requireMap(obj, "increment"); err != nil {
		return err
	}
	preds := counterPreds(d.ops, d.ops.SeekOpsByMapKey(obj, key))
	if len(preds) == 0 {
		return types.ErrMissingCounter
	}
	tx := d.ensureTx()
	op := &opset.Op{
		ID:       d.nextOpID(tx),
		Obj:      obj,
		Action:   types.ActionIncrement,
		Value:    types.NewInt(delta),
		IsMapKey: true,
		MapKey:   key,
		Pred:     preds,
	}
	d.applyLocal(tx, op)
	return nil
}

// IncrementIndex adds delta to the counter at index i of a list.
func (d *Document) IncrementIndex(list types.ObjID, i int, delta int64) error {
	if _, err := d.requireSeq(list, "increment"); err != nil {
		return err
	}
	elem, ops, err := d.ops.VisibleOpsAtIndex(list, i, d.encoding, nil)
	if err != nil {
		return err
	}
	preds := counterPreds(d.ops, ops)
	if len(preds) == 0 {
		return types.ErrMissingCounter
	}
	tx := d.ensureTx()
	op := &opset.Op{
		ID:      d.nextOpID(tx),
		Obj:     list,
		Action:  types.ActionIncrement,
		Value:   types.NewInt(delta),
		ElemKey: elem,
		Pred:    preds,
	}
	d.applyLocal(tx, op)
	return nil
}

// Splice replaces del elements of a list starting at index i with the
// given scalar values.
func (d *Document) Splice(list types.ObjID, i, del int, values []types.Value) error {
	if _, err := d.requireSeq(list, "splice"); err != nil {
		return err
	}
	n, err := d.ops.Length(list, d.encoding, nil)
	if err != nil {
		return err
	}
	if i < 0 || del < 0 || i+del > n {
		return types.ErrInvalidIndex
	}

	tx := d.ensureTx()
	for deleted := 0; deleted < del; {
		elem, ops, err := d.ops.VisibleOpsAtIndex(list, i, d.encoding, nil)
		if err != nil {
			return err
		}
		op := &opset.Op{
			ID:      d.nextOpID(tx),
			Obj:     list,
			Action:  types.ActionDelete,
			ElemKey: elem,
			Pred:    visiblePreds(d.ops, ops),
		}
		before, _ := d.ops.Length(list, d.encoding, nil)
		d.applyLocal(tx, op)
		after, _ := d.ops.Length(list, d.encoding, nil)
		width := before - after
		if width <= 0 {
			width = 1
		}
		deleted += width
	}

	at := i
	var prev *opset.Op
	for _, v := range values {
		if prev == nil {
			op, err := d.insertAt(tx, list, at, types.ActionSet, v)
			if err != nil {
				return err
			}
			prev = op
		} else {
			op := &opset.Op{
				ID:      d.nextOpID(tx),
				Obj:     list,
				Action:  types.ActionSet,
				Value:   v,
				Insert:  true,
				ElemKey: prev.ID,
			}
			d.applyLocal(tx, op)
			prev = op
		}
	}
	return nil
}

// SpliceText replaces del index units of a text object starting at
// position i with the given string, one element per code point.
func (d *Document) SpliceText(text types.ObjID, i, del int, s string) error {
	typ, err := d.requireSeq(text, "splice_text")
	if err != nil {
		return err
	}
	if typ != types.ObjTypeText {
		return types.NewInvalidOpError("splice_text", typ)
	}
	values := make([]types.Value, 0, len(s))
	for _, r := range s {
		values = append(values, types.NewStr(string(r)))
	}
	return d.Splice(text, i, del, values)
}

// UpdateText diffs the text object's current content against s and
// issues the minimal single splice covering the difference. It requires
// the text-as-string representation: every visible element must be a
// one-code-point string.
func (d *Document) UpdateText(text types.ObjID, s string) error {
	typ, err := d.ops.ObjectType(text)
	if err != nil {
		return err
	}
	if typ != types.ObjTypeText {
		return types.NewInvalidOpError("update_text", typ)
	}

	n, err := d.ops.Length(text, types.TextEncodingUnicodeCodePoints, nil)
	if err != nil {
		return err
	}
	old := make([]rune, 0, n)
	for i := 0; i < n; i++ {
		op, err := d.ops.SeekOpsByIndex(text, i, types.TextEncodingUnicodeCodePoints, nil)
		if err != nil {
			return err
		}
		if op.Value.Kind() != types.KindStr {
			return types.NewInvalidOpError("update_text", typ)
		}
		old = append(old, []rune(op.Value.Str())...)
	}

	updated := []rune(s)
	prefix := 0
	for prefix < len(old) && prefix < len(updated) && old[prefix] == updated[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(old)-prefix && suffix < len(updated)-prefix &&
		old[len(old)-1-suffix] == updated[len(updated)-1-suffix] {
		suffix++
	}
	if prefix == len(old) && prefix == len(updated) {
		return nil
	}
	return d.spliceCodePoints(text, prefix, len(old)-prefix-suffix, string(updated[prefix:len(updated)-suffix]))
}

// spliceCodePoints is SpliceText with positions counted in code points
// regardless of the document's configured encoding, the unit UpdateText
// diffs in.
func (d *Document) spliceCodePoints(text types.ObjID, i, del int, s string) error {
	saved := d.encoding
	d.encoding = types.TextEncodingUnicodeCodePoints
	err := d.SpliceText(text, i, del, s)
	d.encoding = saved
	return err
}
