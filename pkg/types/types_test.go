package types

import "testing"

func TestActorTableInsertOrder(t *testing.T) {
	tbl := NewActorTable()

	a := ActorID{0x02}
	b := ActorID{0x01}
	c := ActorID{0x03}

	ia, _ := tbl.IndexOf(a)
	ib, _ := tbl.IndexOf(b)
	ic, _ := tbl.IndexOf(c)

	if ib != 0 {
		t.Fatalf("expected b (lowest byte) at index 0, got %d", ib)
	}
	if ia != 0 {
		t.Fatalf("expected a at index 0 when inserted into the empty table, got %d", ia)
	}
	if ic != 2 {
		t.Fatalf("expected c at index 2, got %d", ic)
	}

	if idx, ok := tbl.Lookup(a); !ok || idx != 1 {
		t.Fatalf("lookup of a should report shifted index 1, got %d, %v", idx, ok)
	}
}

func TestActorTableIdempotent(t *testing.T) {
	tbl := NewActorTable()
	id := ActorID{0xAA, 0xBB}
	i1, inserted1 := tbl.IndexOf(id)
	i2, inserted2 := tbl.IndexOf(id)

	if !inserted1 || inserted2 {
		t.Fatalf("expected first insert to report true, second false")
	}
	if i1 != i2 {
		t.Fatalf("expected stable index across repeat IndexOf calls")
	}
}

func TestOpIDOrdering(t *testing.T) {
	a := OpID{Counter: 1, Actor: 5}
	b := OpID{Counter: 1, Actor: 2}
	c := OpID{Counter: 2, Actor: 0}

	if !b.Less(a) {
		t.Errorf("equal counter should order by actor index")
	}
	if !a.Less(c) {
		t.Errorf("lower counter should sort first regardless of actor")
	}
	if Root.Compare(OpID{}) != 0 {
		t.Errorf("Root should equal the zero value")
	}
}

func TestValueEquality(t *testing.T) {
	a := NewBytes([]byte("hello"))
	b := NewBytes([]byte("hello"))
	if !a.Equal(b) {
		t.Errorf("equal byte values should compare equal")
	}

	u1 := NewUnknown(42, []byte{0xDE, 0xAD})
	u2 := NewUnknown(42, []byte{0xDE, 0xAD})
	if !u1.Equal(u2) {
		t.Errorf("unknown values with same type code and bytes should be equal")
	}
	if NewInt(1).Equal(NewCounter(1)) {
		t.Errorf("int and counter of the same magnitude are different kinds")
	}
}

func TestValueBytesCopyOnRead(t *testing.T) {
	raw := []byte{1, 2, 3}
	v := NewBytes(raw)
	raw[0] = 0xFF
	if v.Bytes()[0] == 0xFF {
		t.Errorf("Value should not alias the caller's backing array")
	}

	got := v.Bytes()
	got[0] = 0xEE
	if v.Bytes()[0] == 0xEE {
		t.Errorf("Bytes() should not let the caller mutate the stored value")
	}
}
