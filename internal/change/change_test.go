package change

import (
	"testing"

	"weave/pkg/types"
)

func TestHashStableAcrossRehash(t *testing.T) {
	actor := types.NewRandomActorID()
	b := NewBuilder(actor, 1, 1, 1000, nil)
	b.AddOp(OpRecord{Counter: 1, Obj: ObjRef{}, Action: types.ActionSet, Value: types.NewStr("hi"), IsMapKey: true, MapKey: "k"})
	c := b.Finish()

	if c.Hash.IsZero() {
		t.Fatalf("expected non-zero hash")
	}
	if got := c.Rehash(); got != c.Hash {
		t.Fatalf("rehash mismatch: %s != %s", got, c.Hash)
	}
}

func TestGraphHeadsAndDuplicateSeq(t *testing.T) {
	g := NewGraph()
	actor := types.NewRandomActorID()

	b1 := NewBuilder(actor, 1, 1, 1, nil)
	b1.AddOp(OpRecord{Counter: 1, Action: types.ActionSet, Value: types.NewInt(1), IsMapKey: true, MapKey: "k"})
	c1 := b1.Finish()
	if err := g.Add(c1); err != nil {
		t.Fatalf("Add c1: %v", err)
	}

	b2 := NewBuilder(actor, 2, 2, 2, []Hash{c1.Hash})
	b2.AddOp(OpRecord{Counter: 2, Action: types.ActionSet, Value: types.NewInt(2), IsMapKey: true, MapKey: "k"})
	c2 := b2.Finish()
	if err := g.Add(c2); err != nil {
		t.Fatalf("Add c2: %v", err)
	}

	heads := g.Heads()
	if len(heads) != 1 || heads[0] != c2.Hash {
		t.Fatalf("expected heads=[c2], got %v", heads)
	}

	bDup := NewBuilder(actor, 2, 2, 3, []Hash{c1.Hash})
	bDup.AddOp(OpRecord{Counter: 2, Action: types.ActionSet, Value: types.NewInt(99), IsMapKey: true, MapKey: "k"})
	cDup := bDup.Finish()
	if err := g.Add(cDup); err == nil {
		t.Fatalf("expected duplicate seq error")
	}
}

func TestGraphCausalReadyQueue(t *testing.T) {
	g := NewGraph()
	actor := types.NewRandomActorID()

	b1 := NewBuilder(actor, 1, 1, 1, nil)
	c1 := b1.Finish()

	b2 := NewBuilder(actor, 2, 1, 2, []Hash{c1.Hash})
	c2 := b2.Finish()

	if g.IsCausallyReady(c2) {
		t.Fatalf("c2 should not be ready before c1 applied")
	}
	g.Enqueue(c2)

	var applied []Hash
	if err := g.Add(c1); err != nil {
		t.Fatalf("Add c1: %v", err)
	}
	if err := g.DrainReady(func(c *Change) error {
		applied = append(applied, c.Hash)
		return g.Add(c)
	}); err != nil {
		t.Fatalf("DrainReady: %v", err)
	}
	if len(applied) != 1 || applied[0] != c2.Hash {
		t.Fatalf("expected c2 drained, got %v", applied)
	}
}
