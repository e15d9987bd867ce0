package types

import "fmt"

// OpID identifies an operation uniquely within a document: a per-actor
// monotonic counter paired with the actor's index in the document's
// actor table. The total order is counter ascending, then actor index
// ascending. The synthetic id (0,0) denotes the document root.
type OpID struct {
	Counter uint64
	Actor   int
}

// Root is the synthetic id of the document root object.
var Root = OpID{Counter: 0, Actor: 0}

// IsRoot reports whether id is the document root sentinel.
func (id OpID) IsRoot() bool {
	return id.Counter == 0 && id.Actor == 0
}

// Less orders ids by counter then by actor index.
func (id OpID) Less(other OpID) bool {
	if id.Counter != other.Counter {
		return id.Counter < other.Counter
	}
	return id.Actor < other.Actor
}

// Compare returns -1, 0, or 1.
func (id OpID) Compare(other OpID) int {
	switch {
	case id.Less(other):
		return -1
	case other.Less(id):
		return 1
	default:
		return 0
	}
}

func (id OpID) String() string {
	return fmt.Sprintf("%d@%d", id.Counter, id.Actor)
}

// ObjID is the id of an object: the id of the Make* op that created it,
// or Root for the implicit root map.
type ObjID = OpID

// ElemID is the id of a list/text element: the id of the insertion op
// that created it. The zero value with Counter==0 is the HEAD sentinel,
// meaning "before the first element".
type ElemID = OpID

// Head is the sentinel element id meaning "insert at the front".
var Head = OpID{Counter: 0, Actor: 0}

// IsHead reports whether id is the HEAD sentinel.
func (id ElemID) IsHead() bool {
	return id.Counter == 0 && id.Actor == 0
}
