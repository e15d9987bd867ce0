package opset

// Insert places a single, already-validated op into its object (the
// core of the incremental apply): predecessors are linked,
// the op is spliced into the map-key or RGA-ordered element structure,
// and the op is registered in the byID/visible_index/obj_info tables.
//
// Insert assumes op.Obj already exists and op's action is legal for that
// object's type; the transaction/apply layer (pkg/doc, internal/apply)
// is responsible for raising the typed errors before ops ever reach
// this method.
func (os *OpSet) Insert(op *Op) {
	// Cover op.ID before linking predecessors, so each predecessor's
	// recomputed visibility sees this op's succ entry as already applied
	// rather than still-pending.
	os.registerID(op)

	for _, p := range op.Pred {
		os.AddSuccessor(p, op.ID)
	}

	obj := os.objects[op.Obj]

	if op.IsMapKey {
		insertSortedByID(obj.keys, op)
	} else if op.Insert {
		idx := obj.insertionIndex(op.ElemKey, op.ID)
		el := &element{id: op.ID, origin: op.ElemKey, ops: []*Op{op}}
		obj.elements = append(obj.elements, nil)
		copy(obj.elements[idx+1:], obj.elements[idx:])
		obj.elements[idx] = el
	} else {
		idx := obj.findElement(op.ElemKey)
		if idx >= 0 {
			appendSortedByID(obj.elements[idx], op)
		}
	}

	os.recomputeVisibility(op)
}

func insertSortedByID(keys map[string][]*Op, op *Op) {
	list := keys[op.MapKey]
	pos := len(list)
	for i, existing := range list {
		if op.ID.Less(existing.ID) {
			pos = i
			break
		}
	}
	list = append(list, nil)
	copy(list[pos+1:], list[pos:])
	list[pos] = op
	keys[op.MapKey] = list
}

func appendSortedByID(e *element, op *Op) {
	pos := len(e.ops)
	for i, existing := range e.ops {
		if op.ID.Less(existing.ID) {
			pos = i
			break
		}
	}
	e.ops = append(e.ops, nil)
	copy(e.ops[pos+1:], e.ops[pos:])
	e.ops[pos] = op
}
