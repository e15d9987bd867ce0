package apply

import (
	"sort"

	"weave/internal/change"
	"weave/internal/opset"
	"weave/pkg/types"
)

// patchEncoding is the text-index unit patches are expressed in. Text
// positions are always reported in code points at this layer; the
// per-encoding rescaling is the query surface's job (internal/query),
// not the apply pipeline's.
const patchEncoding = types.TextEncodingUnicodeCodePoints

// registerActors adds every actor referenced by c to the document's
// actor table before any op id is minted. An actor landing mid-table
// shifts the indices behind it, so the op-set is rewritten immediately
// (opset.RewriteActors) and only then are this change's ops translated.
func registerActors(os *opset.OpSet, c *change.Change) {
	for _, a := range c.Actors() {
		if idx, inserted := os.Actors.IndexOf(a); inserted {
			os.RewriteActors(idx)
		}
	}
}

// translateRef resolves a change-local ObjRef to a document-global
// OpID. All of c's actors are already registered by registerActors, so
// this is a pure lookup. The zero ObjRef denotes root/HEAD in both name
// spaces and never needs translation.
func translateRef(os *opset.OpSet, c *change.Change, ref change.ObjRef) types.OpID {
	if ref.IsRoot() {
		return types.Root
	}
	idx, _ := os.Actors.Lookup(c.ActorAt(ref.Actor))
	return types.OpID{Counter: ref.Counter, Actor: idx}
}

// ApplyChange incrementally applies one change's ops to os, in order,
// translating actor indices, linking predecessors, splicing each op
// into its object, and appending the resulting Patches to log (nil
// log is a valid no-observation mode). It validates op/object-type
// compatibility before mutating; the "mutate nothing observable on
// error" bound only covers the op currently being
// validated — ops already inserted earlier in the same change are not
// rolled back, matching upstream's documented change-application
// behavior of applying ops one at a time in order.
func ApplyChange(os *opset.OpSet, c *change.Change, log *PatchLog) error {
	registerActors(os, c)
	selfActor, _ := os.Actors.Lookup(c.Actor)

	for i, rec := range c.Ops {
		id := types.OpID{Counter: c.StartOp + uint64(i), Actor: selfActor}
		obj := translateRef(os, c, rec.Obj)

		objType, err := os.ObjectType(obj)
		if err != nil {
			return err
		}
		if rec.Action == types.ActionMarkBegin || rec.Action == types.ActionMarkEnd {
			if objType != types.ObjTypeText {
				return types.NewInvalidOpError("mark", objType)
			}
		} else if objType.IsSequence() == rec.IsMapKey {
			// A sequence object needs ElemKey-addressed ops; a map/table
			// object needs MapKey-addressed ops. A mismatch is the
			// caller asking for the wrong shape of op on this object.
			op := "put"
			if rec.Insert {
				op = "insert"
			}
			return types.NewInvalidOpError(op, objType)
		}

		op := &opset.Op{
			ID:          id,
			Obj:         obj,
			Action:      rec.Action,
			Value:       rec.Value,
			Insert:      rec.Insert,
			IsMapKey:    rec.IsMapKey,
			MapKey:      rec.MapKey,
			MarkName:    rec.MarkName,
			ExpandLeft:  rec.ExpandLeft,
			ExpandRight: rec.ExpandRight,
		}
		if !rec.IsMapKey {
			op.ElemKey = translateRef(os, c, rec.ElemKey)
		}
		for _, p := range rec.Pred {
			op.Pred = append(op.Pred, translateRef(os, c, p))
		}

		// A delete of a sequence element only makes its position
		// recoverable before the op is spliced in (afterward the
		// element is tombstoned and no longer resolves); capture it
		// first so the emitted patch can still report where it was.
		preIndex := -1
		if !op.IsMapKey && !op.Insert && op.Action == types.ActionDelete {
			if idx, err := os.SeekListOpID(op.Obj, op.ElemKey, patchEncoding, nil); err == nil {
				preIndex = idx
			}
		}

		os.Insert(op)
		EmitPatch(os, op, preIndex, log)
	}
	return nil
}

// EmitPatch derives and appends the Patch describing op's net effect,
// keyed by action and object shape.
// preIndex is the sequence element's position before op was inserted,
// meaningful only for a non-insert Delete on a list/text object.
func EmitPatch(os *opset.OpSet, op *opset.Op, preIndex int, log *PatchLog) {
	if log == nil {
		return
	}

	switch op.Action {
	case types.ActionMarkBegin:
		log.Append(Patch{Obj: op.Obj, Action: PatchMark, OpID: op.ID, Value: op.Value, MarkName: op.MarkName})
		return
	case types.ActionMarkEnd:
		log.Append(Patch{Obj: op.Obj, Action: PatchUnmark, OpID: op.ID})
		return
	}

	if op.IsMapKey {
		visible := os.SeekOpsByMapKey(op.Obj, op.MapKey)
		conflict := countVisible(os, visible) > 1
		if op.Action == types.ActionDelete {
			if countVisible(os, visible) == 0 {
				log.Append(Patch{Obj: op.Obj, Action: PatchDeleteMap, Key: op.MapKey, OpID: op.ID})
			}
			return
		}
		winner := topVisible(os, visible)
		action := PatchPutMap
		if op.Action == types.ActionIncrement {
			action = PatchIncrement
		}
		val := op.Value
		if winner != nil {
			val = winner.Value
		}
		log.Append(Patch{Obj: op.Obj, Action: action, Key: op.MapKey, Value: val, Conflict: conflict, OpID: op.ID})
		return
	}

	// Sequence (list/text) op.
	if op.Insert {
		idx, err := os.SeekListOpID(op.Obj, op.ID, patchEncoding, nil)
		if err != nil {
			return // tombstoned by a concurrent delete before we could report it
		}
		log.Append(Patch{Obj: op.Obj, Action: PatchInsert, Index: idx, Value: op.Value, OpID: op.ID})
		return
	}

	if op.Action == types.ActionDelete {
		if preIndex >= 0 {
			log.Append(Patch{Obj: op.Obj, Action: PatchDeleteSeq, Index: preIndex, OpID: op.ID})
		}
		return
	}

	idx, err := os.SeekListOpID(op.Obj, op.ElemKey, patchEncoding, nil)
	if err != nil {
		return
	}
	action := PatchPutSeq
	if op.Action == types.ActionIncrement {
		action = PatchIncrement
	}
	log.Append(Patch{Obj: op.Obj, Action: action, Index: idx, Value: op.Value, OpID: op.ID})
}

func countVisible(os *opset.OpSet, ops []*opset.Op) int {
	n := 0
	for _, o := range ops {
		if o.IsVisibleCandidate() && os.IsCurrentlyVisible(o.ID) {
			n++
		}
	}
	return n
}

func topVisible(os *opset.OpSet, ops []*opset.Op) *opset.Op {
	var winner *opset.Op
	for _, o := range ops {
		if !o.IsVisibleCandidate() || !os.IsCurrentlyVisible(o.ID) {
			continue
		}
		if winner == nil || winner.ID.Less(o.ID) {
			winner = o
		}
	}
	return winner
}

// SortPatches orders patches ascending by object id then by key/index,
// the ordering a single ApplyChanges call guarantees for its emitted
// patches.
func SortPatches(patches []Patch) []Patch {
	sort.SliceStable(patches, func(i, j int) bool {
		a, b := patches[i], patches[j]
		if a.Obj != b.Obj {
			return a.Obj.Less(b.Obj)
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.Index < b.Index
	})
	return patches
}
