package types

import (
	"bytes"
	"encoding/hex"
	"sort"

	"github.com/google/uuid"
)

// ActorID is an opaque byte identifier for an independent writer. Actor
// ids compare lexicographically over their raw bytes.
type ActorID []byte

// NewRandomActorID returns a fresh 16-byte random actor id, the
// convention most bindings use.
func NewRandomActorID() ActorID {
	id := uuid.New()
	return ActorID(id[:])
}

// ParseActorID decodes a hex-encoded actor id.
func ParseActorID(s string) (ActorID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidActorID
	}
	if len(b) == 0 {
		return nil, ErrInvalidActorID
	}
	return ActorID(b), nil
}

// String returns the hex encoding of the actor id.
func (a ActorID) String() string {
	return hex.EncodeToString(a)
}

// Compare returns -1, 0, or 1 comparing a to b lexicographically.
func (a ActorID) Compare(b ActorID) int {
	return bytes.Compare(a, b)
}

// Equal reports whether a and b are the same actor id.
func (a ActorID) Equal(b ActorID) bool {
	return bytes.Equal(a, b)
}

// ActorTable is the document-wide ordered sequence of actors. Ops refer
// to actors by their index in this table rather than storing the raw id
// repeatedly.
type ActorTable struct {
	actors []ActorID
	index  map[string]int
}

// NewActorTable returns an empty actor table.
func NewActorTable() *ActorTable {
	return &ActorTable{index: make(map[string]int)}
}

// LoadActorTable rebuilds a table from a previously persisted actor
// list in its exact original order. Unlike repeated IndexOf calls, this
// never reorders entries: a loaded document's op columns already
// reference actors by the index recorded at save time, so the table
// must come back with the identical index assignment.
func LoadActorTable(actors []ActorID) *ActorTable {
	t := &ActorTable{
		actors: append([]ActorID{}, actors...),
		index:  make(map[string]int, len(actors)),
	}
	for i, a := range t.actors {
		t.index[string(a)] = i
	}
	return t
}

// Len returns the number of actors in the table.
func (t *ActorTable) Len() int { return len(t.actors) }

// Actor returns the actor id at index i.
func (t *ActorTable) Actor(i int) ActorID {
	if i < 0 || i >= len(t.actors) {
		return nil
	}
	return t.actors[i]
}

// IndexOf returns the index of id in the table, inserting it (in sorted
// position) if it is not already present. Insertion at position i shifts
// every existing index >= i by one; callers that hold op columns keyed
// by actor index must rewrite them when that happens (see
// internal/opset.OpSet.RewriteActors).
func (t *ActorTable) IndexOf(id ActorID) (idx int, inserted bool) {
	key := string(id)
	if i, ok := t.index[key]; ok {
		return i, false
	}

	pos := sort.Search(len(t.actors), func(i int) bool {
		return t.actors[i].Compare(id) >= 0
	})

	t.actors = append(t.actors, nil)
	copy(t.actors[pos+1:], t.actors[pos:])
	t.actors[pos] = id

	for k, v := range t.index {
		if v >= pos {
			t.index[k] = v + 1
		}
	}
	t.index[key] = pos

	return pos, true
}

// Lookup returns the index of id without inserting it.
func (t *ActorTable) Lookup(id ActorID) (int, bool) {
	i, ok := t.index[string(id)]
	return i, ok
}

// All returns the actors in table order.
func (t *ActorTable) All() []ActorID {
	out := make([]ActorID, len(t.actors))
	copy(out, t.actors)
	return out
}
