// Package opset is the columnar, indexed store of every operation in a
// document, together with the queries that map a user-facing path (map
// key, list index, text position) to the operations that realize its
// current value.
//
// The live mutation path keeps ops as stable pointers grouped per object
// (internal/opset.objectState) rather than literally interleaving every
// object's rows in one physical array: this is the tractable rendering
// of "ops for the same object are physically contiguous" for code that
// has to be hand-written correctly without a compiler to check it. The
// true columnar encoding is exercised in full on
// the persistence path (internal/format), which packs an OpSet's ops
// into RLE/delta/raw columns using internal/columnar directly.
package opset

import "weave/pkg/types"

// Op is one operation in the CRDT data model.
type Op struct {
	ID     types.OpID
	Obj    types.ObjID
	Action types.OpAction
	Value  types.Value
	Insert bool

	// Exactly one of MapKey/IsMapKey or ElemKey applies, selected by
	// the containing object's type.
	IsMapKey bool
	MapKey   string
	ElemKey  types.ElemID // HEAD or a prior insertion's id

	Pred []types.OpID
	Succ []types.OpID

	// Mark metadata; meaningful only for MarkBegin/MarkEnd actions.
	MarkName    string
	ExpandLeft  bool
	ExpandRight bool
}

// NewObjID returns the object id a Make op creates: its own id.
func (o *Op) NewObjID() types.ObjID {
	return o.ID
}

// IsVisibleCandidate reports whether this op's action can ever be the
// "visible" value at a key/element (Set, a Make*, or MarkBegin). Delete,
// Increment and MarkEnd never are.
func (o *Op) IsVisibleCandidate() bool {
	switch o.Action {
	case types.ActionSet, types.ActionMarkBegin:
		return true
	default:
		return o.Action.IsMake()
	}
}

// elemIdentity returns the element id a sequence op occupies: its own
// id for an insertion, the anchored element's id otherwise. Zero for
// map ops.
func elemIdentity(op *Op) types.ElemID {
	if op.IsMapKey {
		return types.ElemID{}
	}
	if op.Insert {
		return op.ID
	}
	return op.ElemKey
}

func opKey(id types.OpID) uint64 {
	return uint64(id.Counter)<<20 | uint64(uint32(id.Actor))
}
