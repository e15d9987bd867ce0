package columnar

import (
	"reflect"
	"testing"
)

func strOps() ColumnOps[string] {
	return ColumnOps[string]{
		Equal: func(a, b string) bool { return a == b },
		Less:  func(a, b string) bool { return a < b },
	}
}

func itemsOf(vals ...string) []Item[string] {
	out := make([]Item[string], len(vals))
	for i, v := range vals {
		out[i] = Item[string]{Value: v}
	}
	return out
}

func values(items []Item[string]) []string {
	out := make([]string, len(items))
	for i, it := range items {
		if it.Null {
			out[i] = "<null>"
		} else {
			out[i] = it.Value
		}
	}
	return out
}

func TestColumnSpliceAndIter(t *testing.T) {
	c := NewColumn[string](strOps())
	c.Splice(0, 0, itemsOf("a", "a", "a", "b", "c"))

	if c.Len() != 5 {
		t.Fatalf("expected length 5, got %d", c.Len())
	}

	got := values(c.Iter())
	want := []string{"a", "a", "a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestColumnSpliceMiddle(t *testing.T) {
	c := NewColumn[string](strOps())
	c.Splice(0, 0, itemsOf("a", "b", "c", "d"))
	c.Splice(1, 2, itemsOf("x", "y", "z"))

	got := values(c.Iter())
	want := []string{"a", "x", "y", "z", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestColumnFindByValue(t *testing.T) {
	c := NewColumn[string](strOps())
	c.Splice(0, 0, itemsOf("a", "b", "a", "c", "a"))

	idx := c.FindByValue("a")
	want := []int{0, 2, 4}
	if !reflect.DeepEqual(idx, want) {
		t.Fatalf("got %v, want %v", idx, want)
	}
}

func TestColumnFindByRange(t *testing.T) {
	c := NewColumn[string](strOps())
	c.Splice(0, 0, itemsOf("a", "b", "c", "d", "e"))
	idx := c.FindByRange("b", "d")
	want := []int{1, 2, 3}
	if !reflect.DeepEqual(idx, want) {
		t.Fatalf("got %v, want %v", idx, want)
	}
}

func TestColumnNullRuns(t *testing.T) {
	c := NewColumn[string](strOps())
	c.Splice(0, 0, []Item[string]{
		{Value: "a"},
		{Null: true},
		{Null: true},
		{Value: "b"},
	})
	items := c.Iter()
	if !items[1].Null || !items[2].Null {
		t.Fatalf("expected nulls at positions 1 and 2, got %v", items)
	}
	if c.Len() != 4 {
		t.Fatalf("expected length 4, got %d", c.Len())
	}
}

func TestColumnSplicesManySlabs(t *testing.T) {
	c := NewColumn[string](strOps())
	var items []Item[string]
	for i := 0; i < 500; i++ {
		items = append(items, Item[string]{Value: "v"})
	}
	c.Splice(0, 0, items)
	if c.Len() != 500 {
		t.Fatalf("expected 500 rows across multiple slabs, got %d", c.Len())
	}
	if len(c.slabs) < 2 {
		t.Fatalf("expected the column to span multiple slabs for 500 rows, got %d", len(c.slabs))
	}
}

func TestDeltaColumnRoundTrip(t *testing.T) {
	d := NewDeltaColumn()
	d.Splice(0, 0, []Item[int64]{{Value: 1}, {Value: 2}, {Value: 3}, {Value: 10}})

	for i, want := range []int64{1, 2, 3, 10} {
		got, isNull := d.Get(i)
		if isNull || got != want {
			t.Fatalf("row %d: got %d (null=%v), want %d", i, got, isNull, want)
		}
	}
}

func TestDeltaColumnSpliceMiddle(t *testing.T) {
	d := NewDeltaColumn()
	d.Splice(0, 0, []Item[int64]{{Value: 1}, {Value: 2}, {Value: 3}, {Value: 4}})
	d.Splice(1, 2, []Item[int64]{{Value: 100}})

	want := []int64{1, 100, 4}
	for i, w := range want {
		got, isNull := d.Get(i)
		if isNull || got != w {
			t.Fatalf("row %d: got %d, want %d", i, got, w)
		}
	}
}

func TestGroupColumnBounds(t *testing.T) {
	g := NewGroupColumn()
	g.Splice(0, 0, []int{0, 2, 1, 0})

	start, end := g.Bounds(1)
	if start != 0 || end != 2 {
		t.Fatalf("row 1 bounds = [%d,%d), want [0,2)", start, end)
	}
	start, end = g.Bounds(2)
	if start != 2 || end != 3 {
		t.Fatalf("row 2 bounds = [%d,%d), want [2,3)", start, end)
	}
	if g.TotalSubRows() != 3 {
		t.Fatalf("expected total sub rows 3, got %d", g.TotalSubRows())
	}
}

func TestRawColumnSplice(t *testing.T) {
	r := NewRawColumn()
	r.Splice(0, 0, [][]byte{[]byte("hello"), []byte("world")})
	if r.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", r.Len())
	}
	if string(r.Get(0)) != "hello" || string(r.Get(1)) != "world" {
		t.Fatalf("unexpected contents: %q %q", r.Get(0), r.Get(1))
	}

	r.Splice(1, 1, [][]byte{[]byte("there")})
	if string(r.Get(1)) != "there" {
		t.Fatalf("expected replacement at row 1, got %q", r.Get(1))
	}
}

func TestRawColumnLoadRejectsBadOffsets(t *testing.T) {
	_, err := LoadRawColumn([]byte("ab"), []int{0, 5})
	if err == nil {
		t.Fatalf("expected a PackError for out-of-range offsets")
	}
}

func TestStringColumnEncodeDecode(t *testing.T) {
	c := NewColumn[string](strOps())
	c.Splice(0, 0, itemsOf("a", "a", "b", "b", "b", "c"))

	bytes := Encode(c, StringCodec)
	decoded, err := Decode(bytes, strOps(), StringCodec)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	got := values(decoded.Iter())
	want := values(c.Iter())
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch: got %v, want %v", got, want)
	}
}

func TestStringColumnDecodeRejectsTruncated(t *testing.T) {
	_, err := Decode([]byte{0xFF}, strOps(), StringCodec)
	if err == nil {
		t.Fatalf("expected a PackError for truncated input")
	}
}
