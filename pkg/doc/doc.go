// Package doc exposes the public Document: a collaborative, local-first
// JSON-like value backed by a CRDT op-set. A Document is a
// single-threaded mutable value: writes borrow it
// exclusively, queries share it, and cross-replica concurrency happens
// entirely at the change level via Merge/ApplyChanges/sync.
package doc

import (
	"time"

	"weave/internal/apply"
	"weave/internal/change"
	"weave/internal/opset"
	"weave/pkg/types"
)

// Root is the id of the implicit top-level map every document has.
var Root = types.Root

// Document is one replica's full state: the op-set, the change graph,
// and the identity it writes under.
type Document struct {
	ops   *opset.OpSet
	graph *change.Graph
	actor types.ActorID

	encoding types.TextEncoding
	patches  *apply.PatchLog // optional observer; nil discards

	tx            *transaction
	lastSaveHeads []change.Hash
}

// transaction is the pending local change under construction: ops are
// applied to the op-set eagerly (so reads see them) while the builder
// accumulates their change-local form for the commit hash.
type transaction struct {
	builder    *change.Builder
	startOp    uint64
	nops       int
	checkpoint int // patch log mark at tx start
}

// New returns an empty document writing under a fresh random actor id.
func New() *Document {
	return NewWithActor(types.NewRandomActorID())
}

// NewWithActor returns an empty document writing under the given actor.
// The actor enters the document's actor table on its first write, not
// here: a replica that only ever reads or merges leaves no trace in the
// saved bytes.
func NewWithActor(actor types.ActorID) *Document {
	return &Document{
		ops:      opset.New(),
		graph:    change.NewGraph(),
		actor:    actor,
		encoding: types.TextEncodingGrapheme,
	}
}

// NewWithTextEncoding returns an empty document whose text indices and
// lengths are counted in the given encoding.
func NewWithTextEncoding(enc types.TextEncoding) *Document {
	d := New()
	d.encoding = enc
	return d
}

// TextEncoding returns the encoding text positions are counted in.
func (d *Document) TextEncoding() types.TextEncoding { return d.encoding }

// Actor returns the id this document currently writes under.
func (d *Document) Actor() types.ActorID { return d.actor }

// SetPatchLog installs (or, with nil, removes) the observer that
// collects patches for every mutation from here on.
func (d *Document) SetPatchLog(log *apply.PatchLog) { d.patches = log }

// PatchLog returns the currently installed observer, if any.
func (d *Document) PatchLog() *apply.PatchLog { return d.patches }

// selfIndex returns the document's own actor index, registering the
// actor on first use and looked up fresh each time after that: merging
// a change from a lexicographically smaller actor shifts the table.
func (d *Document) selfIndex() int {
	if idx, ok := d.ops.Actors.Lookup(d.actor); ok {
		return idx
	}
	idx, _ := d.ops.Actors.IndexOf(d.actor)
	d.ops.RewriteActors(idx)
	return idx
}

// maxOp returns the highest op counter minted anywhere in the applied
// history, the base the next local change's start_op builds on.
func (d *Document) maxOp() uint64 {
	var m uint64
	for _, c := range d.graph.All() {
		if c.MaxOp() > m {
			m = c.MaxOp()
		}
	}
	return m
}

// ensureTx opens the implicit transaction the next local write lands
// in, capturing deps (current heads) and start_op at open time.
func (d *Document) ensureTx() *transaction {
	if d.tx == nil {
		d.tx = &transaction{
			builder:    change.NewBuilder(d.actor, d.graph.MaxSeq(d.actor)+1, d.maxOp()+1, time.Now().UnixMilli(), d.graph.Heads()),
			startOp:    d.maxOp() + 1,
			checkpoint: d.patches.Checkpoint(),
		}
	}
	return d.tx
}

// PendingOps reports how many local ops are buffered in the open
// transaction.
func (d *Document) PendingOps() int {
	if d.tx == nil {
		return 0
	}
	return d.tx.nops
}

// CommitOptions carries the optional metadata attached to a commit.
type CommitOptions struct {
	Message string
	Author  string
	Time    int64 // Unix millis; 0 means "when the transaction opened"
}

// Commit finalizes the pending local ops into a hashed change, links it
// into the graph, and returns its hash. With no pending ops it is a
// no-op returning ok=false.
func (d *Document) Commit(opts CommitOptions) (change.Hash, bool) {
	if d.tx == nil || d.tx.nops == 0 {
		d.tx = nil
		return change.Hash{}, false
	}
	if opts.Message != "" {
		d.tx.builder.SetMessage(opts.Message)
	}
	if opts.Author != "" {
		d.tx.builder.SetAuthor(opts.Author)
	}
	if opts.Time != 0 {
		d.tx.builder.SetTime(opts.Time)
	}
	c := d.tx.builder.Finish()
	// The ops are already in the op-set; only graph bookkeeping is
	// left. Add cannot fail here: seq and deps came from this graph.
	if err := d.graph.Add(c); err != nil {
		panic("doc: commit of locally built change rejected: " + err.Error())
	}
	d.tx = nil
	return c.Hash, true
}

// Rollback discards the pending local ops, restoring the document to
// its state at the last commit. Returns how many ops were discarded.
// The op-set is rebuilt by replaying the committed history, so a
// rollback costs O(document); committed state is untouched.
func (d *Document) Rollback() int {
	if d.tx == nil {
		return 0
	}
	n := d.tx.nops
	checkpoint := d.tx.checkpoint
	d.tx = nil
	if n == 0 {
		return 0
	}

	rebuilt := opset.New()
	graph := change.NewGraph()
	for _, c := range d.graph.All() {
		if err := apply.ApplyChange(rebuilt, c, nil); err != nil {
			panic("doc: rollback replay of committed history failed: " + err.Error())
		}
		if err := graph.Add(c); err != nil {
			panic("doc: rollback replay of committed history failed: " + err.Error())
		}
	}
	for _, c := range d.graph.Parked() {
		graph.Enqueue(c)
	}
	d.ops = rebuilt
	d.graph = graph
	d.patches.Rollback(checkpoint)
	return n
}

// commitPending closes the implicit transaction before any operation
// that reads or ships whole-document state (merge, save, fork, sync).
func (d *Document) commitPending() {
	d.Commit(CommitOptions{})
}

// Fork clones the document under a fresh actor id. The clone shares no
// mutable state with the original; its history is byte-for-byte the
// same.
func (d *Document) Fork() *Document {
	d.commitPending()
	out := NewWithActor(types.NewRandomActorID())
	out.encoding = d.encoding
	if err := out.ApplyChanges(d.graph.All()); err != nil {
		panic("doc: fork replay failed: " + err.Error())
	}
	return out
}

// ForkAt clones the document as of the given heads: only changes
// reachable from heads are carried over.
func (d *Document) ForkAt(heads []change.Hash) (*Document, error) {
	d.commitPending()
	for _, h := range heads {
		if !d.graph.Has(h) {
			return nil, types.ErrInvalidHash
		}
	}
	unreachable := make(map[change.Hash]struct{})
	for _, c := range d.graph.ChangesSince(heads) {
		unreachable[c.Hash] = struct{}{}
	}
	var keep []*change.Change
	for _, c := range d.graph.All() {
		if _, drop := unreachable[c.Hash]; !drop {
			keep = append(keep, c)
		}
	}
	out := NewWithActor(types.NewRandomActorID())
	out.encoding = d.encoding
	if err := out.ApplyChanges(keep); err != nil {
		return nil, err
	}
	return out, nil
}

// GetHeads returns the current heads, sorted ascending by hash.
func (d *Document) GetHeads() []change.Hash {
	d.commitPending()
	return d.graph.Heads()
}

// GetChanges returns every applied change not reachable from haveDeps,
// in dependency order.
func (d *Document) GetChanges(haveDeps []change.Hash) []*change.Change {
	d.commitPending()
	return d.graph.ChangesSince(haveDeps)
}

// GetChangeByHash returns the applied change with the given hash.
func (d *Document) GetChangeByHash(h change.Hash) (*change.Change, error) {
	if c, ok := d.graph.Get(h); ok {
		return c, nil
	}
	return nil, types.ErrInvalidHash
}

// GetChangesAdded returns the changes other has applied that d has not.
func (d *Document) GetChangesAdded(other *Document) []*change.Change {
	other.commitPending()
	var out []*change.Change
	for _, c := range other.graph.All() {
		if !d.graph.Has(c.Hash) {
			out = append(out, c)
		}
	}
	return out
}

// HashForOpID returns the hash of the change that minted the given op.
func (d *Document) HashForOpID(id types.OpID) (change.Hash, error) {
	d.commitPending()
	actor := d.ops.Actors.Actor(id.Actor)
	if actor == nil {
		return change.Hash{}, types.ErrInvalidHash
	}
	h, ok := d.graph.ChangeContaining(actor, id.Counter)
	if !ok {
		return change.Hash{}, types.ErrInvalidHash
	}
	return h, nil
}

// ObjectType returns the kind of object id refers to.
func (d *Document) ObjectType(obj types.ObjID) (types.ObjType, error) {
	return d.ops.ObjectType(obj)
}

// Parents returns (parent object, key-or-elem string) one level up from
// obj, with ok=false at the root.
func (d *Document) Parents(obj types.ObjID) (types.ObjID, string, bool) {
	return d.ops.Parent(obj)
}

// PathElem is one step of an object's path from the root.
type PathElem struct {
	Obj types.ObjID
	Key string
}

// Path returns the chain of (container, key) pairs from the root down
// to obj, outermost first.
func (d *Document) Path(obj types.ObjID) ([]PathElem, error) {
	if _, err := d.ops.ObjectType(obj); err != nil {
		return nil, err
	}
	var out []PathElem
	cur := obj
	for !cur.IsRoot() {
		parent, key, ok := d.ops.Parent(cur)
		if !ok {
			return nil, types.ErrInvalidObjID
		}
		out = append([]PathElem{{Obj: parent, Key: key}}, out...)
		cur = parent
	}
	return out, nil
}
