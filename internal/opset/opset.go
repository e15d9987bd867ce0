package opset

import (
	"sort"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"weave/pkg/types"
)

// OpSet is the columnar, indexed store of every operation in one
// document.
type OpSet struct {
	Actors *types.ActorTable

	objects map[types.ObjID]*objectState
	info    map[types.ObjID]objectInfo
	byID    map[types.OpID]*Op

	// visible is the visible_index: which op ids are visible at the
	// current heads (clock == nil). Maintained incrementally by
	// Insert/AddSuccessor; a RoaringBitmap keyed by a packed
	// (counter, actor) integer (internal/opset.opKey). Derived state,
	// rebuilt for free when ops are replayed on load.
	visible *roaring64.Bitmap

	clock *Clock // the document's current clock (heads-derived)
}

// New returns an empty op-set with just the root map object.
func New() *OpSet {
	os := &OpSet{
		Actors:  types.NewActorTable(),
		objects: make(map[types.ObjID]*objectState),
		info:    make(map[types.ObjID]objectInfo),
		byID:    make(map[types.OpID]*Op),
		visible: roaring64.New(),
		clock:   NewClock(),
	}
	os.objects[types.Root] = newObjectState(types.Root, types.ObjTypeMap)
	os.info[types.Root] = objectInfo{typ: types.ObjTypeMap}
	return os
}

// Clock returns the op-set's current clock (covers every applied op).
func (os *OpSet) Clock() *Clock { return os.clock }

// Object returns the live state for obj, or nil if it does not exist.
func (os *OpSet) Object(obj types.ObjID) (*objectState, bool) {
	o, ok := os.objects[obj]
	return o, ok
}

// ObjectType returns the type of obj.
func (os *OpSet) ObjectType(obj types.ObjID) (types.ObjType, error) {
	if obj.IsRoot() {
		return types.ObjTypeMap, nil
	}
	info, ok := os.info[obj]
	if !ok {
		return 0, types.ErrInvalidObjID
	}
	return info.typ, nil
}

// Parent returns the (parentObj, parentKey) of obj from the obj_info
// side table, used to walk back-references without following pointers
// stored on ops. For objects nested in a sequence the key
// is the stringified element id of the slot holding them.
func (os *OpSet) Parent(obj types.ObjID) (types.ObjID, string, bool) {
	if obj.IsRoot() {
		return types.ObjID{}, "", false
	}
	info, ok := os.info[obj]
	if !ok {
		return types.ObjID{}, "", false
	}
	if info.parentIsMap {
		return info.parentOp, info.parentKey, true
	}
	return info.parentOp, info.parentElem.String(), true
}

// ParentElem resolves obj's slot in its containing sequence object,
// reporting ok=false when the parent is a map/table instead.
func (os *OpSet) ParentElem(obj types.ObjID) (parent types.ObjID, elem types.ElemID, ok bool) {
	info, found := os.info[obj]
	if !found || info.parentIsMap {
		return types.ObjID{}, types.ElemID{}, false
	}
	return info.parentOp, info.parentElem, true
}

// OpByID returns the op with the given id, if present.
func (os *OpSet) OpByID(id types.OpID) (*Op, bool) {
	op, ok := os.byID[id]
	return op, ok
}

// isVisible implements the visibility invariant: a Set/Make/
// MarkBegin op is visible at clock iff the clock covers its id, no
// covering successor is a Delete/Set/Make, and (implicitly) Increment/
// MarkEnd/Delete ops are never themselves visible.
func (os *OpSet) isVisible(op *Op, clock *Clock) bool {
	if !op.IsVisibleCandidate() {
		return false
	}
	if !clock.Covers(op.ID) {
		return false
	}
	for _, s := range op.Succ {
		succ, ok := os.byID[s]
		if !ok || !clock.Covers(s) {
			continue
		}
		if succ.Action == types.ActionDelete || succ.Action == types.ActionSet || succ.Action.IsMake() {
			return false
		}
	}
	return true
}

// Visible is the exported form of isVisible, for callers outside the
// package (internal/apply, internal/query).
func (os *OpSet) Visible(op *Op, clock *Clock) bool {
	return os.isVisible(op, clock)
}

// IsCurrentlyVisible reports whether id is visible at the op-set's
// current heads, consulting the visible_index bitmap rather than
// recomputing from scratch.
func (os *OpSet) IsCurrentlyVisible(id types.OpID) bool {
	return os.visible.Contains(opKey(id))
}

func (os *OpSet) markVisible(id types.OpID, v bool) {
	k := opKey(id)
	if v {
		os.visible.Add(k)
	} else {
		os.visible.Remove(k)
	}
}

// recomputeVisibility refreshes the visible_index entry for op against
// the current heads clock. Called whenever op's succ list changes.
func (os *OpSet) recomputeVisibility(op *Op) {
	os.markVisible(op.ID, os.isVisible(op, os.clock))
}

// registerID indexes op by id and advances the clock to cover it, and
// creates the new object a Make op introduces. Split out from
// RegisterOp so Insert can make op.ID clock-covered *before* linking its
// predecessors: a predecessor's visibility recomputation needs to see
// its new successor as covered, not pending.
func (os *OpSet) registerID(op *Op) {
	os.byID[op.ID] = op
	os.clock.Advance(op.ID)
	if op.Action.IsMake() {
		os.objects[op.ID] = newObjectState(op.ID, op.Action.ObjTypeFor())
		os.info[op.ID] = objectInfo{
			typ:         op.Action.ObjTypeFor(),
			parentOp:    op.Obj,
			parentIsMap: op.IsMapKey,
			parentKey:   op.MapKey,
			parentElem:  elemIdentity(op),
		}
	}
}

// RegisterOp indexes a newly-applied op that is already linked into its
// object's keys/elements and has no predecessors to notify (used by
// tests and callers that bypass Insert's splicing). Insert itself calls
// registerID/recomputeVisibility directly around the pred linkage step.
func (os *OpSet) RegisterOp(op *Op) {
	os.registerID(op)
	os.recomputeVisibility(op)
}

// AddSuccessor records that succID overwrites/deletes/increments the op
// with id predID, updating both sides' bookkeeping and the visible_index.
func (os *OpSet) AddSuccessor(predID, succID types.OpID) {
	pred, ok := os.byID[predID]
	if !ok {
		return
	}
	pred.Succ = append(pred.Succ, succID)
	os.recomputeVisibility(pred)
}

// SortedKeys returns the map keys of the object that have at least one op,
// in sorted order (the underlying storage, the map ordering).
func (o *objectState) SortedKeys() []string {
	keys := make([]string, 0, len(o.keys))
	for k := range o.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
