package opset

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"weave/pkg/types"
)

// RewriteActors shifts every stored actor index >= pos up by one, after
// the actor table inserted a new actor at pos. Inserting an actor mid
// table renumbers everything behind it, so every structure keyed by
// actor index — op ids, obj/elem/pred/succ references, the byID and
// object maps, the visible_index bitmap, and the clock — must be
// rewritten in one pass. The root sentinel (0,0) is never
// an actor reference and is left alone.
func (os *OpSet) RewriteActors(pos int) {
	shift := func(id types.OpID) types.OpID {
		if id.Counter == 0 {
			return id // root/HEAD sentinel
		}
		if id.Actor >= pos {
			id.Actor++
		}
		return id
	}

	byID := make(map[types.OpID]*Op, len(os.byID))
	for _, op := range os.byID {
		op.ID = shift(op.ID)
		op.Obj = shift(op.Obj)
		op.ElemKey = shift(op.ElemKey)
		for i := range op.Pred {
			op.Pred[i] = shift(op.Pred[i])
		}
		for i := range op.Succ {
			op.Succ[i] = shift(op.Succ[i])
		}
		byID[op.ID] = op
	}
	os.byID = byID

	objects := make(map[types.ObjID]*objectState, len(os.objects))
	for id, o := range os.objects {
		o.id = shift(id)
		for _, e := range o.elements {
			e.id = shift(e.id)
			e.origin = shift(e.origin)
		}
		objects[o.id] = o
	}
	os.objects = objects

	info := make(map[types.ObjID]objectInfo, len(os.info))
	for id, oi := range os.info {
		oi.parentOp = shift(oi.parentOp)
		oi.parentElem = shift(oi.parentElem)
		info[shift(id)] = oi
	}
	os.info = info

	visible := roaring64.New()
	it := os.visible.Iterator()
	for it.HasNext() {
		k := it.Next()
		id := unpackOpKey(k)
		visible.Add(opKey(shift(id)))
	}
	os.visible = visible

	os.clock.shiftActors(pos)
}

func unpackOpKey(k uint64) types.OpID {
	return types.OpID{Counter: k >> 20, Actor: int(uint32(k & 0xFFFFF))}
}
