package apply

import (
	"weave/internal/change"
	"weave/internal/opset"
	"weave/pkg/types"
)

// ApplyChanges merges many changes into os in one pass: changes that
// are not yet causally ready are parked on the graph's queue rather
// than rejected, and every change that becomes ready — whether from
// the input batch or drained from a previous park — is applied and
// linked into the graph. The call is all-or-nothing: it first plans
// which changes will apply this round, then validates every one of
// them ((actor, seq)/author collisions, seq gaps, and op/object-type
// legality) against the graph plus the earlier part of the plan, and
// only then mutates. A rejected batch returns its typed error with the
// op-set, graph, and parked queue untouched.
//
// Ordering ops by (obj, key-or-elem, id) and walking each object once,
// the shape a from-scratch columnar store would need for this merge,
// is what internal/opset.Insert already gives for free: its
// map/element insertion is keyed purely by id comparison, not arrival
// order, so applying the planned changes one at a time in dependency
// order produces the same op-set contents as a single interleaved walk
// would.
func ApplyChanges(os *opset.OpSet, g *change.Graph, changes []*change.Change, log *PatchLog) error {
	ordered, err := topoSort(g, changes)
	if err != nil {
		return err
	}

	ready, park := planReady(g, ordered)
	if err := validateBatch(os, g, ready); err != nil {
		return err
	}

	for _, c := range ready {
		// Validation covered everything these can reject, so an error
		// here is an internal invariant failure, not user input.
		if err := ApplyChange(os, c, log); err != nil {
			return err
		}
		if err := g.Add(c); err != nil {
			return err
		}
	}
	g.ReplaceQueue(park)

	if log != nil {
		SortPatches(log.patches)
	}
	return nil
}

// planReady decides, without mutating anything, which changes apply
// this round and in what order. The pool is the incoming batch plus
// the previously parked queue; a change is ready once every dep is
// either applied or earlier in the plan. Changes already applied are
// dropped (idempotence); the leftover becomes the new parked queue.
func planReady(g *change.Graph, batch []*change.Change) (ready, park []*change.Change) {
	seen := make(map[change.Hash]bool)
	var pending []*change.Change
	for _, c := range append(append([]*change.Change{}, batch...), g.Parked()...) {
		if seen[c.Hash] || g.Has(c.Hash) {
			continue
		}
		seen[c.Hash] = true
		pending = append(pending, c)
	}

	planned := make(map[change.Hash]bool)
	for {
		progressed := false
		var remaining []*change.Change
		for _, c := range pending {
			ok := true
			for _, d := range c.Deps {
				if !planned[d] && !g.Has(d) {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, c)
				planned[c.Hash] = true
				progressed = true
			} else {
				remaining = append(remaining, c)
			}
		}
		pending = remaining
		if !progressed {
			return ready, pending
		}
	}
}

// validateBatch vets every planned change before any mutation: the
// graph's duplicate rules via a Validator, and each op's legality
// against its target object's type. Object types are resolved in
// change-local space — (counter, actor id) — so nothing is registered
// in the document's actor table on a batch that ends up rejected.
func validateBatch(os *opset.OpSet, g *change.Graph, ready []*change.Change) error {
	type objKey struct {
		ctr   uint64
		actor string
	}
	created := make(map[objKey]types.ObjType)

	objType := func(c *change.Change, ref change.ObjRef) (types.ObjType, error) {
		if ref.IsRoot() {
			return types.ObjTypeMap, nil
		}
		actor := c.ActorAt(ref.Actor)
		if t, ok := created[objKey{ref.Counter, string(actor)}]; ok {
			return t, nil
		}
		idx, ok := os.Actors.Lookup(actor)
		if !ok {
			return 0, types.ErrInvalidObjID
		}
		return os.ObjectType(types.OpID{Counter: ref.Counter, Actor: idx})
	}

	v := g.NewValidator()
	for _, c := range ready {
		if err := v.Check(c); err != nil {
			return err
		}
		for _, rec := range c.Ops {
			typ, err := objType(c, rec.Obj)
			if err != nil {
				return err
			}
			if rec.Action == types.ActionMarkBegin || rec.Action == types.ActionMarkEnd {
				if typ != types.ObjTypeText {
					return types.NewInvalidOpError("mark", typ)
				}
			} else if typ.IsSequence() == rec.IsMapKey {
				op := "put"
				if rec.Insert {
					op = "insert"
				}
				return types.NewInvalidOpError(op, typ)
			}
			if rec.Action.IsMake() {
				created[objKey{rec.Counter, string(c.Actor)}] = rec.Action.ObjTypeFor()
			}
		}
	}
	return nil
}

// topoSort orders changes so that every change appears after all of its
// deps that are also present in the batch (deps already applied to g
// are ignored — they are satisfied regardless of position). Changes
// whose deps cannot be resolved even after the rest of the batch are
// returned in their original relative order and left for the
// causal-ready queue to park.
func topoSort(g *change.Graph, changes []*change.Change) ([]*change.Change, error) {
	byHash := make(map[change.Hash]*change.Change, len(changes))
	for _, c := range changes {
		byHash[c.Hash] = c
	}

	var out []*change.Change
	visited := make(map[change.Hash]bool)
	visiting := make(map[change.Hash]bool)

	var visit func(c *change.Change) error
	visit = func(c *change.Change) error {
		if visited[c.Hash] {
			return nil
		}
		if visiting[c.Hash] {
			return nil // dependency cycle within the batch: fall back to arrival order
		}
		visiting[c.Hash] = true
		for _, d := range c.Deps {
			if dep, ok := byHash[d]; ok && !g.Has(d) {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		visiting[c.Hash] = false
		visited[c.Hash] = true
		out = append(out, c)
		return nil
	}

	for _, c := range changes {
		if err := visit(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}
