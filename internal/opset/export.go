package opset

import (
	"sort"

	"weave/pkg/types"
)

// AllOps returns every op in the op-set ordered by id (counter, then
// actor index) ascending. A change's start_op is always greater than
// the max op of everything it depends on, so this order is already a
// valid replay order: every op's object-creating Make op and every
// entry in its Pred list has a strictly smaller id and therefore
// appears earlier in the slice. internal/format uses this to flatten
// the op-set into columns, and to restore it by replaying the slice
// back through Insert.
func (os *OpSet) AllOps() []*Op {
	out := make([]*Op, 0, len(os.byID))
	for _, op := range os.byID {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}

// ObjectIDs returns every object id in the op-set, root first, then
// ascending by id.
func (os *OpSet) ObjectIDs() []types.ObjID {
	out := make([]types.ObjID, 0, len(os.objects))
	for id := range os.objects {
		if !id.IsRoot() {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return append([]types.ObjID{types.Root}, out...)
}
