package change

import (
	"weave/pkg/types"
)

// Graph is the DAG of changes keyed by content hash: an append-only
// arena plus the per-actor seq index, heads set, and causal-ready
// delivery queue.
type Graph struct {
	byHash     map[Hash]*Change
	order      []*Change // append order, stable arena
	byActorSeq map[string][]Hash
	depOf      map[Hash][]Hash // forward: change -> its deps
	dependents map[Hash]int    // how many applied changes still depend on it
	heads      map[Hash]struct{}
	queue      []*Change // causally-ready FIFO of parked changes
}

// NewGraph returns an empty change graph.
func NewGraph() *Graph {
	return &Graph{
		byHash:     make(map[Hash]*Change),
		byActorSeq: make(map[string][]Hash),
		depOf:      make(map[Hash][]Hash),
		dependents: make(map[Hash]int),
		heads:      make(map[Hash]struct{}),
	}
}

// Has reports whether hash is already applied.
func (g *Graph) Has(hash Hash) bool {
	_, ok := g.byHash[hash]
	return ok
}

// Get returns the change with the given hash, if applied.
func (g *Graph) Get(hash Hash) (*Change, bool) {
	c, ok := g.byHash[hash]
	return c, ok
}

// All returns every applied change in arena (append) order.
func (g *Graph) All() []*Change {
	out := make([]*Change, len(g.order))
	copy(out, g.order)
	return out
}

// Heads returns the current heads: applied changes with no applied
// dependent, sorted ascending by hash for a deterministic wire order.
func (g *Graph) Heads() []Hash {
	out := make([]Hash, 0, len(g.heads))
	for h := range g.heads {
		out = append(out, h)
	}
	return SortHashes(out)
}

// MissingDeps returns which of candidate's deps are not yet applied.
func (g *Graph) MissingDeps(c *Change) []Hash {
	var missing []Hash
	for _, d := range c.Deps {
		if !g.Has(d) {
			missing = append(missing, d)
		}
	}
	return missing
}

// IsCausallyReady reports whether every dep of c is already applied.
func (g *Graph) IsCausallyReady(c *Change) bool {
	return len(g.MissingDeps(c)) == 0
}

// checkDuplicate enforces the duplicate-detection rules: a
// colliding (actor, seq) with a different hash, a colliding author at
// the same seq, or a seq gap are all rejected before the change is ever
// linked into the graph.
func (g *Graph) checkDuplicate(c *Change) error {
	key := string(c.Actor)
	prior := g.byActorSeq[key]
	wantIdx := int(c.Seq) - 1
	if wantIdx < len(prior) {
		if prior[wantIdx] != c.Hash {
			return &types.DuplicateSeqError{Actor: c.Actor, Seq: c.Seq}
		}
		return nil // already applied, idempotent no-op
	}
	if wantIdx != len(prior) {
		return &types.DuplicateSeqError{Actor: c.Actor, Seq: c.Seq}
	}
	if c.Author != nil {
		for other, hashes := range g.byActorSeq {
			if other == key {
				continue
			}
			if int(c.Seq)-1 < len(hashes) {
				if oc := g.byHash[hashes[c.Seq-1]]; oc != nil && oc.Author != nil && *oc.Author == *c.Author {
					return &types.DuplicateAuthorError{Author: *c.Author, Seq: c.Seq}
				}
			}
		}
	}
	return nil
}

// Add links a causally-ready change into the graph's DAG bookkeeping
// (heads, actor/seq table, dependents count). Callers (internal/apply)
// are responsible for applying the change's ops to the op-set; Add only
// maintains graph-level structure, never op-set state.
func (g *Graph) Add(c *Change) error {
	if err := g.checkDuplicate(c); err != nil {
		return err
	}
	if _, exists := g.byHash[c.Hash]; exists {
		return nil
	}

	g.byHash[c.Hash] = c
	g.order = append(g.order, c)
	g.depOf[c.Hash] = append([]Hash{}, c.Deps...)

	key := string(c.Actor)
	g.byActorSeq[key] = append(g.byActorSeq[key], c.Hash)

	for _, d := range c.Deps {
		delete(g.heads, d)
		g.dependents[d]++
	}
	g.heads[c.Hash] = struct{}{}

	return nil
}

// Enqueue parks a change whose deps are not yet satisfied.
func (g *Graph) Enqueue(c *Change) {
	g.queue = append(g.queue, c)
}

// ReplaceQueue swaps the parked queue wholesale. The batch apply path
// uses it after planning which parked changes drain this round.
func (g *Graph) ReplaceQueue(cs []*Change) {
	g.queue = append(g.queue[:0:0], cs...)
}

// Validator vets a sequence of changes against the duplicate rules
// (colliding (actor, seq), colliding author, seq gap) without linking
// anything into the graph, so a whole batch can be rejected before any
// mutation. Check records each accepted change, so later calls see it
// as applied.
type Validator struct {
	g     *Graph
	added map[string][]*Change
}

// NewValidator starts a validation pass over the graph's current state.
func (g *Graph) NewValidator() *Validator {
	return &Validator{g: g, added: make(map[string][]*Change)}
}

// Check validates c as the next application. A change whose (actor,
// seq) slot is already occupied by the same hash is accepted as an
// idempotent duplicate; a different hash at the same slot, a gap, or a
// colliding author is a typed error.
func (v *Validator) Check(c *Change) error {
	key := string(c.Actor)
	applied := v.g.byActorSeq[key]
	batch := v.added[key]
	total := len(applied) + len(batch)
	wantIdx := int(c.Seq) - 1

	if wantIdx < total {
		var existing Hash
		if wantIdx < len(applied) {
			existing = applied[wantIdx]
		} else {
			existing = batch[wantIdx-len(applied)].Hash
		}
		if existing != c.Hash {
			return &types.DuplicateSeqError{Actor: c.Actor, Seq: c.Seq}
		}
		return nil
	}
	if wantIdx != total {
		return &types.DuplicateSeqError{Actor: c.Actor, Seq: c.Seq}
	}

	if c.Author != nil {
		for other, hashes := range v.g.byActorSeq {
			if other == key || wantIdx >= len(hashes) {
				continue
			}
			if oc := v.g.byHash[hashes[wantIdx]]; oc != nil && oc.Author != nil && *oc.Author == *c.Author {
				return &types.DuplicateAuthorError{Author: *c.Author, Seq: c.Seq}
			}
		}
		for other, cs := range v.added {
			if other == key {
				continue
			}
			offset := wantIdx - len(v.g.byActorSeq[other])
			if offset < 0 || offset >= len(cs) {
				continue
			}
			if oc := cs[offset]; oc.Author != nil && *oc.Author == *c.Author {
				return &types.DuplicateAuthorError{Author: *c.Author, Seq: c.Seq}
			}
		}
	}

	v.added[key] = append(v.added[key], c)
	return nil
}

// Parked returns the changes currently waiting on unmet deps: the
// orphans that Save must emit as individual Change chunks alongside
// the Document chunk.
func (g *Graph) Parked() []*Change {
	out := make([]*Change, len(g.queue))
	copy(out, g.queue)
	return out
}

// DrainReady repeatedly scans the parked queue, applying fn (which
// should call Add and the apply-layer op insertion) to every change that
// has become causally ready, until a full pass adds nothing new. This is
// the FIFO causal-ready delivery rule.
func (g *Graph) DrainReady(fn func(*Change) error) error {
	for {
		progressed := false
		remaining := g.queue[:0]
		for _, c := range g.queue {
			if g.IsCausallyReady(c) {
				if err := fn(c); err != nil {
					return err
				}
				progressed = true
				continue
			}
			remaining = append(remaining, c)
		}
		g.queue = remaining
		if !progressed {
			return nil
		}
	}
}

// Clock computes the per-actor max-counter clock reachable from the
// given head set by a DFS over deps, unioning each visited change's
// StartOp+len(Ops)-1 under its actor.
func (g *Graph) Clock(heads []Hash) map[string]uint64 {
	out := make(map[string]uint64)
	seen := make(map[Hash]bool)
	var visit func(h Hash)
	visit = func(h Hash) {
		if seen[h] {
			return
		}
		seen[h] = true
		c, ok := g.byHash[h]
		if !ok {
			return
		}
		key := string(c.Actor)
		if c.MaxOp() > out[key] {
			out[key] = c.MaxOp()
		}
		for _, d := range c.Deps {
			visit(d)
		}
	}
	for _, h := range heads {
		visit(h)
	}
	return out
}

// ChangesSince returns every applied change not reachable from have (the
// set of hashes the caller already has), in a dependency-respecting
// order (topologically sorted by arena append order, which is already a
// valid topological order since a change is never added before its
// deps). Used by GetChanges/save_after.
func (g *Graph) ChangesSince(have []Hash) []*Change {
	haveSet := make(map[Hash]bool, len(have))
	reach := make(map[Hash]bool)
	var mark func(h Hash)
	mark = func(h Hash) {
		if reach[h] {
			return
		}
		reach[h] = true
		if c, ok := g.byHash[h]; ok {
			for _, d := range c.Deps {
				mark(d)
			}
		}
	}
	for _, h := range have {
		haveSet[h] = true
		mark(h)
	}

	var out []*Change
	for _, c := range g.order {
		if !reach[c.Hash] {
			out = append(out, c)
		}
	}
	return out
}

// ByActorSeq returns the hash of actor's seq-th change (1-based), or the
// zero hash if not present.
func (g *Graph) ByActorSeq(actor types.ActorID, seq uint64) (Hash, bool) {
	hashes := g.byActorSeq[string(actor)]
	if seq == 0 || int(seq) > len(hashes) {
		return Hash{}, false
	}
	return hashes[seq-1], true
}

// ChangeContaining returns the hash of the applied change that minted
// op counter ctr for actor, scanning the actor's seq table for the
// change whose [StartOp, MaxOp] window covers it.
func (g *Graph) ChangeContaining(actor types.ActorID, ctr uint64) (Hash, bool) {
	for _, h := range g.byActorSeq[string(actor)] {
		c := g.byHash[h]
		if c != nil && ctr >= c.StartOp && ctr <= c.MaxOp() {
			return h, true
		}
	}
	return Hash{}, false
}

// MaxSeq returns the highest seq applied for actor.
func (g *Graph) MaxSeq(actor types.ActorID) uint64 {
	return uint64(len(g.byActorSeq[string(actor)]))
}
