// Package change implements the hash-addressed change: a batch of ops
// produced atomically by one actor, plus the canonical byte encoding
// that feeds its content hash. The column-packed on-wire form used for
// persistence and sync lives in internal/format and internal/sync; this
// package owns the in-memory shape and the hash itself.
package change

import (
	"sort"

	"golang.org/x/crypto/blake2b"

	"weave/internal/varint"
	"weave/pkg/types"
)

// Hash is a 32-byte content hash, compared as big-endian unsigned bytes.
type Hash [32]byte

func (h Hash) Less(o Hash) bool {
	for i := range h {
		if h[i] != o[i] {
			return h[i] < o[i]
		}
	}
	return false
}

func (h Hash) String() string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 64)
	for i, b := range h {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0xF]
	}
	return string(out)
}

// IsZero reports whether h is the zero hash (used as "no value").
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// SortHashes sorts a slice of hashes ascending, in place, and returns it.
func SortHashes(hs []Hash) []Hash {
	sort.Slice(hs, func(i, j int) bool { return hs[i].Less(hs[j]) })
	return hs
}

// ObjRef identifies an op within a change's own local numbering: either
// the document root, or the (counter, local actor index) of an op
// earlier in this change or a prior change by a (possibly different)
// actor referenced in the change's local actor table.
type ObjRef struct {
	Counter uint64
	Actor   int
}

// IsRoot reports whether ref is the root/HEAD sentinel.
func (r ObjRef) IsRoot() bool { return r.Counter == 0 && r.Actor == 0 }

// OpRecord is one operation as it appears inside a Change: ids are local
// (an actor index into the Change's own actor table, not the document's),
// since a change must be self-describing independent of which document
// it is eventually applied to.
type OpRecord struct {
	Counter  uint64
	Obj      ObjRef
	Action   types.OpAction
	Value    types.Value
	Insert   bool
	IsMapKey bool
	MapKey   string
	ElemKey  ObjRef
	Pred     []ObjRef

	MarkName    string
	ExpandLeft  bool
	ExpandRight bool
}

// Change is a hash-addressed, causally-dependent batch of ops produced
// by one actor in a single commit.
type Change struct {
	Hash    Hash
	Actor   types.ActorID
	Seq     uint64
	StartOp uint64
	Time    int64
	Message *string
	Author  *string
	Deps    []Hash
	Ops     []OpRecord

	// actors is the change's own local actor table; actors[0] is always
	// Actor. ObjRef.Actor indexes into this slice, not the document's
	// table, so a change can be decoded and rehashed without a document
	// to resolve against.
	actors []types.ActorID
}

// NewBuilder starts a change for actor at the given seq/startOp/time,
// depending on deps.
func NewBuilder(actor types.ActorID, seq, startOp uint64, t int64, deps []Hash) *Builder {
	b := &Builder{
		ch: &Change{
			Actor:   actor,
			Seq:     seq,
			StartOp: startOp,
			Time:    t,
			Deps:    SortHashes(append([]Hash{}, deps...)),
			actors:  []types.ActorID{actor},
		},
	}
	return b
}

// Builder accumulates OpRecords and the local actor table for a change
// under construction, then finalizes it with a content hash.
type Builder struct {
	ch *Change
}

// ActorIndex returns the local index for id, adding it to the change's
// actor table if this is the first reference.
func (b *Builder) ActorIndex(id types.ActorID) int {
	for i, a := range b.ch.actors {
		if a.Equal(id) {
			return i
		}
	}
	b.ch.actors = append(b.ch.actors, id)
	return len(b.ch.actors) - 1
}

// AddOp appends op to the change being built; its Counter must equal
// StartOp + (number of ops already added).
func (b *Builder) AddOp(op OpRecord) {
	b.ch.Ops = append(b.ch.Ops, op)
}

// SetMessage/SetAuthor attach the optional commit metadata a change
// may carry.
func (b *Builder) SetMessage(msg string) { b.ch.Message = &msg }
func (b *Builder) SetAuthor(author string) { b.ch.Author = &author }

// SetTime overrides the commit timestamp chosen at NewBuilder time.
func (b *Builder) SetTime(t int64) { b.ch.Time = t }

// Finish computes the change's content hash over its canonical bytes and
// returns the completed, immutable Change.
func (b *Builder) Finish() *Change {
	b.ch.Hash = Hash(blake2b.Sum256(CanonicalBytes(b.ch)))
	return b.ch
}

// Actors returns the change's local actor table (actors[0] == Actor).
func (c *Change) Actors() []types.ActorID {
	out := make([]types.ActorID, len(c.actors))
	copy(out, c.actors)
	return out
}

// ActorAt resolves a local actor index to its id.
func (c *Change) ActorAt(i int) types.ActorID {
	if i < 0 || i >= len(c.actors) {
		return nil
	}
	return c.actors[i]
}

// SetActors replaces the local actor table; used by the decoder
// (internal/format) when reconstructing a Change from bytes, since the
// table must be parsed before any OpRecord referencing it.
func (c *Change) SetActors(actors []types.ActorID) {
	c.actors = actors
}

// Rehash recomputes the content hash from the change's current fields,
// used by the loader to verify a decoded change's stored hash matches
// its bytes (hash-stability property).
func (c *Change) Rehash() Hash {
	return Hash(blake2b.Sum256(CanonicalBytes(c)))
}

// MaxOp returns the counter of the last op in the change (StartOp + N -
// 1), or StartOp-1 if the change has no ops.
func (c *Change) MaxOp() uint64 {
	if len(c.Ops) == 0 {
		if c.StartOp == 0 {
			return 0
		}
		return c.StartOp - 1
	}
	return c.StartOp + uint64(len(c.Ops)) - 1
}

// CanonicalBytes renders the deterministic byte sequence a change hashes
// over: every field that affects the change's meaning, in a fixed order,
// with no ambiguity between field boundaries ("canonical
// bytes" requirement for hash stability and round-tripping).
func CanonicalBytes(c *Change) []byte {
	var out []byte
	buf := make([]byte, 9)

	putUvarint := func(v uint64) {
		n := varint.PutUvarint(buf, v)
		out = append(out, buf[:n]...)
	}
	putBytes := func(b []byte) {
		putUvarint(uint64(len(b)))
		out = append(out, b...)
	}
	putStr := func(s string) { putBytes([]byte(s)) }

	putBytes(c.Actor)
	putUvarint(c.Seq)
	putUvarint(c.StartOp)
	putUvarint(uint64(c.Time))

	if c.Message != nil {
		out = append(out, 1)
		putStr(*c.Message)
	} else {
		out = append(out, 0)
	}
	if c.Author != nil {
		out = append(out, 1)
		putStr(*c.Author)
	} else {
		out = append(out, 0)
	}

	putUvarint(uint64(len(c.Deps)))
	for _, d := range c.Deps {
		out = append(out, d[:]...)
	}

	putUvarint(uint64(len(c.actors)))
	for _, a := range c.actors {
		putBytes(a)
	}

	putUvarint(uint64(len(c.Ops)))
	for _, op := range c.Ops {
		putObjRef := func(r ObjRef) {
			putUvarint(r.Counter)
			putUvarint(uint64(r.Actor))
		}
		putUvarint(op.Counter)
		putObjRef(op.Obj)
		putUvarint(uint64(op.Action))
		out = types.EncodeValue(out, op.Value)
		if op.Insert {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
		if op.IsMapKey {
			out = append(out, 1)
			putStr(op.MapKey)
		} else {
			out = append(out, 0)
			putObjRef(op.ElemKey)
		}
		putUvarint(uint64(len(op.Pred)))
		for _, p := range op.Pred {
			putObjRef(p)
		}
		putStr(op.MarkName)
		expand := byte(0)
		if op.ExpandLeft {
			expand |= 1
		}
		if op.ExpandRight {
			expand |= 2
		}
		out = append(out, expand)
	}

	return out
}
