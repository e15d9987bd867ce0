package doc

import (
	"bytes"
	"errors"
	"testing"

	"weave/internal/change"
	"weave/pkg/types"
)

func TestMapConflictRetention(t *testing.T) {
	a := New()
	if err := a.Put(Root, "k", types.NewInt(0)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	a.Commit(CommitOptions{})

	b := a.Fork()
	if err := a.Put(Root, "k", types.NewInt(1)); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if err := b.Put(Root, "k", types.NewInt(2)); err != nil {
		t.Fatalf("Put b: %v", err)
	}

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	all := a.GetAll(Root, "k")
	if len(all) != 2 {
		t.Fatalf("expected both concurrent values retained, got %d", len(all))
	}
	res, ok := a.Get(Root, "k")
	if !ok || !res.Conflict {
		t.Fatalf("winner must be flagged as conflicted: %+v", res)
	}
	// The winner is the op with the greater id; both concurrent ops
	// share a counter, so the greater actor index decides.
	if res.ID != all[len(all)-1].ID {
		t.Fatalf("Get must return the greatest-id value")
	}
}

func TestTextConcurrentSpliceConverges(t *testing.T) {
	a := New()
	text, err := a.PutObject(Root, "t", types.ObjTypeText)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := a.SpliceText(text, 0, 0, "hello world"); err != nil {
		t.Fatalf("SpliceText: %v", err)
	}
	a.Commit(CommitOptions{})

	b := a.Fork()
	if err := a.SpliceText(text, 6, 0, "big bad "); err != nil {
		t.Fatalf("SpliceText a: %v", err)
	}
	if err := b.SpliceText(text, 6, 0, "cruel "); err != nil {
		t.Fatalf("SpliceText b: %v", err)
	}

	if err := a.Merge(b); err != nil {
		t.Fatalf("a.Merge(b): %v", err)
	}
	if err := b.Merge(a); err != nil {
		t.Fatalf("b.Merge(a): %v", err)
	}

	got, err := a.Text(text)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != "hello big bad cruel world" && got != "hello cruel big bad world" {
		t.Fatalf("unexpected merge result %q", got)
	}
	other, err := b.Text(text)
	if err != nil {
		t.Fatalf("Text b: %v", err)
	}
	if got != other {
		t.Fatalf("replicas disagree: %q vs %q", got, other)
	}
}

func TestCounterCommutativity(t *testing.T) {
	a := New()
	if err := a.Put(Root, "c", types.NewCounter(10)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	a.Commit(CommitOptions{})

	b := a.Fork()
	if err := a.Increment(Root, "c", 3); err != nil {
		t.Fatalf("Increment a: %v", err)
	}
	if err := b.Increment(Root, "c", -5); err != nil {
		t.Fatalf("Increment b: %v", err)
	}

	if err := a.Merge(b); err != nil {
		t.Fatalf("a.Merge(b): %v", err)
	}
	if err := b.Merge(a); err != nil {
		t.Fatalf("b.Merge(a): %v", err)
	}

	for name, d := range map[string]*Document{"a": a, "b": b} {
		res, ok := d.Get(Root, "c")
		if !ok {
			t.Fatalf("%s: counter missing", name)
		}
		if res.Value.Kind() != types.KindCounter || res.Value.Counter() != 8 {
			t.Fatalf("%s: expected counter(8), got %s", name, res.Value)
		}
	}
}

func TestIncrementOnNonCounter(t *testing.T) {
	d := New()
	if err := d.Put(Root, "x", types.NewInt(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := d.Increment(Root, "x", 1); !errors.Is(err, types.ErrMissingCounter) {
		t.Fatalf("expected ErrMissingCounter, got %v", err)
	}
	if err := d.Increment(Root, "missing", 1); !errors.Is(err, types.ErrMissingCounter) {
		t.Fatalf("expected ErrMissingCounter on empty key, got %v", err)
	}
}

func TestIncrementOnConflictedKeyWithCounter(t *testing.T) {
	a := New()
	if err := a.Put(Root, "k", types.NewNull()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	a.Commit(CommitOptions{})

	b := a.Fork()
	if err := a.Put(Root, "k", types.NewCounter(5)); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if err := b.Put(Root, "k", types.NewStr("not a counter")); err != nil {
		t.Fatalf("Put b: %v", err)
	}
	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	// At least one visible value is a counter, so the increment applies
	// to it even though the key is conflicted.
	if err := a.Increment(Root, "k", 2); err != nil {
		t.Fatalf("Increment on conflicted key: %v", err)
	}
	found := false
	for _, res := range a.GetAll(Root, "k") {
		if res.Value.Kind() == types.KindCounter {
			found = true
			if res.Value.Counter() != 7 {
				t.Fatalf("expected counter(7), got %s", res.Value)
			}
		}
	}
	if !found {
		t.Fatalf("counter value lost from conflict set")
	}
}

func TestListRangeConflictFlag(t *testing.T) {
	a := New()
	list, err := a.PutObject(Root, "l", types.ObjTypeList)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := a.Insert(list, 0, types.NewStr("base")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	a.Commit(CommitOptions{})

	b := a.Fork()
	if err := a.PutIndex(list, 0, types.NewInt(1)); err != nil {
		t.Fatalf("PutIndex a: %v", err)
	}
	if err := b.PutIndex(list, 0, types.NewInt(2)); err != nil {
		t.Fatalf("PutIndex b: %v", err)
	}
	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	rows, err := a.ListRange(list, 0, -1)
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if len(rows) != 1 || !rows[0].Conflict {
		t.Fatalf("concurrent overwrites must flag the row as conflicted: %+v", rows)
	}
	res, err := a.GetIndex(list, 0)
	if err != nil || !res.Conflict {
		t.Fatalf("GetIndex must carry the conflict flag: %+v, %v", res, err)
	}
}

func TestDeleteBoundaries(t *testing.T) {
	d := New()

	// Deleting a key that was never set is a no-op: no op minted.
	if err := d.Delete(Root, "ghost"); err != nil {
		t.Fatalf("Delete of absent key must be a no-op, got %v", err)
	}
	if d.PendingOps() != 0 {
		t.Fatalf("no-op delete must not mint an op")
	}

	list, err := d.PutObject(Root, "l", types.ObjTypeList)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := d.Insert(list, 0, types.NewInt(1)); err != nil {
		t.Fatalf("Insert into empty list at 0: %v", err)
	}
	if err := d.Insert(list, 5, types.NewInt(2)); !errors.Is(err, types.ErrInvalidIndex) {
		t.Fatalf("Insert past end must be ErrInvalidIndex, got %v", err)
	}
	if err := d.DeleteIndex(list, 7); !errors.Is(err, types.ErrInvalidIndex) {
		t.Fatalf("Delete of absent index must be ErrInvalidIndex, got %v", err)
	}
}

func TestLengthAtEmptyHeads(t *testing.T) {
	d := New()
	list, err := d.PutObject(Root, "l", types.ObjTypeList)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := d.Insert(list, 0, types.NewInt(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	d.Commit(CommitOptions{})

	n, err := d.LengthAt(list, []change.Hash{})
	if err != nil {
		t.Fatalf("LengthAt: %v", err)
	}
	if n != 0 {
		t.Fatalf("empty heads must describe the pre-document state, got %d", n)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	d := New()
	if err := d.Put(Root, "n", types.NewInt(42)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	text, err := d.PutObject(Root, "t", types.ObjTypeText)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := d.SpliceText(text, 0, 0, "héllo"); err != nil {
		t.Fatalf("SpliceText: %v", err)
	}
	d.Commit(CommitOptions{Message: "init"})

	blob := d.Save()
	back, err := Load(blob, LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got, want := back.GetHeads(), d.GetHeads(); len(got) != len(want) || got[0] != want[0] {
		t.Fatalf("heads differ after round trip")
	}
	res, ok := back.Get(Root, "n")
	if !ok || res.Value.Int() != 42 {
		t.Fatalf("scalar lost: %+v", res)
	}
	s, err := back.Text(text)
	if err != nil || s != "héllo" {
		t.Fatalf("text lost: %q %v", s, err)
	}
	if !bytes.Equal(back.Save(), blob) {
		t.Fatalf("save/load/save must be byte-identical")
	}
}

func TestSaveRoundTripUnknownScalar(t *testing.T) {
	d := New()
	unknown := types.NewUnknown(42, []byte{0xDE, 0xAD})
	if err := d.Put(Root, "u", unknown); err != nil {
		t.Fatalf("Put: %v", err)
	}
	d.Commit(CommitOptions{})

	blob := d.Save()
	back, err := Load(blob, LoadOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	res, ok := back.Get(Root, "u")
	if !ok {
		t.Fatalf("unknown value lost")
	}
	if res.Value.Kind() != types.KindUnknown || res.Value.UnknownTypeCode() != 42 ||
		!bytes.Equal(res.Value.Bytes(), []byte{0xDE, 0xAD}) {
		t.Fatalf("unknown value corrupted: %s", res.Value)
	}
	if !bytes.Equal(back.Save(), blob) {
		t.Fatalf("unknown scalar must round-trip to identical bytes")
	}
}

func TestApplyChangesIdempotent(t *testing.T) {
	a := New()
	if err := a.Put(Root, "k", types.NewInt(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	a.Commit(CommitOptions{})

	changes := a.GetChanges(nil)
	b := New()
	if err := b.ApplyChanges(changes); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	first := b.Save()
	if err := b.ApplyChanges(changes); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if !bytes.Equal(b.Save(), first) {
		t.Fatalf("reapplying the same changes must not alter the document")
	}
}

func TestApplyChangesCommutative(t *testing.T) {
	base := New()
	if err := base.Put(Root, "k", types.NewInt(0)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	base.Commit(CommitOptions{})

	a := base.Fork()
	b := base.Fork()
	if err := a.Put(Root, "x", types.NewInt(1)); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	a.Commit(CommitOptions{})
	if err := b.Put(Root, "y", types.NewInt(2)); err != nil {
		t.Fatalf("Put b: %v", err)
	}
	b.Commit(CommitOptions{})

	ca := a.GetChanges(base.GetHeads())
	cb := b.GetChanges(base.GetHeads())

	d1 := base.Fork()
	if err := d1.ApplyChanges(ca); err != nil {
		t.Fatalf("d1 apply ca: %v", err)
	}
	if err := d1.ApplyChanges(cb); err != nil {
		t.Fatalf("d1 apply cb: %v", err)
	}

	d2 := base.Fork()
	if err := d2.ApplyChanges(cb); err != nil {
		t.Fatalf("d2 apply cb: %v", err)
	}
	if err := d2.ApplyChanges(ca); err != nil {
		t.Fatalf("d2 apply ca: %v", err)
	}

	if !bytes.Equal(d1.Save(), d2.Save()) {
		t.Fatalf("apply order must not affect the saved bytes")
	}
}

func TestIncrementalSaveEquivalence(t *testing.T) {
	d := New()
	if err := d.Put(Root, "a", types.NewInt(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	d.Commit(CommitOptions{})
	blob := d.Save()

	if err := d.Put(Root, "b", types.NewInt(2)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	d.Commit(CommitOptions{})
	incr := d.SaveIncremental()
	if len(incr) == 0 {
		t.Fatalf("expected incremental bytes for the new change")
	}

	back, err := Load(append(append([]byte{}, blob...), incr...), LoadOptions{})
	if err != nil {
		t.Fatalf("Load concatenated: %v", err)
	}
	if !bytes.Equal(back.Save(), d.Save()) {
		t.Fatalf("full save and snapshot+incremental must load identically")
	}
	if more := d.SaveIncremental(); len(more) != 0 {
		t.Fatalf("nothing new since last incremental, got %d bytes", len(more))
	}
}

func TestMarkExpansion(t *testing.T) {
	for _, tc := range []struct {
		expand  ExpandMark
		wantEnd int
	}{
		{ExpandBoth, 5},
		{ExpandNone, 4},
	} {
		d := New()
		text, err := d.PutObject(Root, "t", types.ObjTypeText)
		if err != nil {
			t.Fatalf("PutObject: %v", err)
		}
		if err := d.SpliceText(text, 0, 0, "abcdef"); err != nil {
			t.Fatalf("SpliceText: %v", err)
		}
		if err := d.Mark(text, "bold", types.NewBool(true), 1, 4, tc.expand); err != nil {
			t.Fatalf("Mark: %v", err)
		}
		if err := d.SpliceText(text, 4, 0, "X"); err != nil {
			t.Fatalf("SpliceText X: %v", err)
		}

		marks, err := d.Marks(text)
		if err != nil {
			t.Fatalf("Marks: %v", err)
		}
		if len(marks) != 1 || marks[0].Name != "bold" {
			t.Fatalf("expand=%v: expected one bold mark, got %+v", tc.expand, marks)
		}
		if marks[0].Begin != 1 || marks[0].End != tc.wantEnd {
			t.Fatalf("expand=%v: expected [1..%d), got [%d..%d)", tc.expand, tc.wantEnd, marks[0].Begin, marks[0].End)
		}

		if tc.expand == ExpandBoth {
			set, err := d.GetMarks(text, 4)
			if err != nil {
				t.Fatalf("GetMarks: %v", err)
			}
			if _, ok := set["bold"]; !ok {
				t.Fatalf("inserted character must carry the expanding mark")
			}
		}
	}
}

func TestUnmarkClearsRange(t *testing.T) {
	d := New()
	text, err := d.PutObject(Root, "t", types.ObjTypeText)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := d.SpliceText(text, 0, 0, "abcdef"); err != nil {
		t.Fatalf("SpliceText: %v", err)
	}
	if err := d.Mark(text, "bold", types.NewBool(true), 0, 6, ExpandNone); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if err := d.Unmark(text, "bold", 2, 4); err != nil {
		t.Fatalf("Unmark: %v", err)
	}

	marks, err := d.Marks(text)
	if err != nil {
		t.Fatalf("Marks: %v", err)
	}
	if len(marks) != 2 {
		t.Fatalf("expected the mark split in two, got %+v", marks)
	}
	if marks[0].Begin != 0 || marks[0].End != 2 || marks[1].Begin != 4 || marks[1].End != 6 {
		t.Fatalf("unexpected ranges: %+v", marks)
	}
}

func TestSpansUniformRuns(t *testing.T) {
	d := New()
	text, err := d.PutObject(Root, "t", types.ObjTypeText)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := d.SpliceText(text, 0, 0, "abcdef"); err != nil {
		t.Fatalf("SpliceText: %v", err)
	}
	if err := d.Mark(text, "bold", types.NewBool(true), 2, 4, ExpandNone); err != nil {
		t.Fatalf("Mark: %v", err)
	}

	spans, err := d.Spans(text)
	if err != nil {
		t.Fatalf("Spans: %v", err)
	}
	var rebuilt string
	for _, s := range spans {
		rebuilt += s.Text
	}
	if rebuilt != "abcdef" {
		t.Fatalf("spans must cover the whole text, got %q", rebuilt)
	}
	if len(spans) != 3 {
		t.Fatalf("expected plain/bold/plain runs, got %+v", spans)
	}
	if _, bold := spans[1].Marks["bold"]; !bold {
		t.Fatalf("middle run must be bold: %+v", spans[1])
	}
}

func TestCursorStability(t *testing.T) {
	d := New()
	text, err := d.PutObject(Root, "t", types.ObjTypeText)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := d.SpliceText(text, 0, 0, "hello"); err != nil {
		t.Fatalf("SpliceText: %v", err)
	}
	d.Commit(CommitOptions{})
	h0 := d.GetHeads()

	cur, err := d.GetCursor(text, 3)
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}

	if err := d.SpliceText(text, 0, 0, ">> "); err != nil {
		t.Fatalf("SpliceText: %v", err)
	}
	d.Commit(CommitOptions{})

	// At its creation heads the cursor still resolves to where it was
	// created; live it has shifted with the insert.
	at, err := d.GetCursorPositionAt(text, cur, MoveAfter, h0)
	if err != nil || at != 3 {
		t.Fatalf("historical position: got %d, %v", at, err)
	}
	now, err := d.GetCursorPosition(text, cur, MoveAfter)
	if err != nil || now != 6 {
		t.Fatalf("live position: got %d, %v", now, err)
	}

	// Deleting the anchored element resolves to the nearest visible
	// neighbor in the requested direction.
	if err := d.SpliceText(text, 6, 1, ""); err != nil {
		t.Fatalf("delete anchored: %v", err)
	}
	after, err := d.GetCursorPosition(text, cur, MoveAfter)
	if err != nil || after != 6 {
		t.Fatalf("deleted-element cursor: got %d, %v", after, err)
	}
}

func TestRollbackDiscardsPendingOps(t *testing.T) {
	d := New()
	if err := d.Put(Root, "keep", types.NewInt(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	d.Commit(CommitOptions{})

	if err := d.Put(Root, "drop", types.NewInt(2)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n := d.Rollback(); n != 1 {
		t.Fatalf("expected 1 discarded op, got %d", n)
	}

	if _, ok := d.Get(Root, "drop"); ok {
		t.Fatalf("rolled-back write still visible")
	}
	if res, ok := d.Get(Root, "keep"); !ok || res.Value.Int() != 1 {
		t.Fatalf("committed state damaged by rollback")
	}
}

func TestForkAtHistoricalHeads(t *testing.T) {
	d := New()
	if err := d.Put(Root, "k", types.NewInt(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	d.Commit(CommitOptions{})
	h1 := d.GetHeads()

	if err := d.Put(Root, "k", types.NewInt(2)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	d.Commit(CommitOptions{})

	old, err := d.ForkAt(h1)
	if err != nil {
		t.Fatalf("ForkAt: %v", err)
	}
	res, ok := old.Get(Root, "k")
	if !ok || res.Value.Int() != 1 {
		t.Fatalf("fork at h1 must see the old value, got %+v", res)
	}
	if _, err := d.ForkAt([]change.Hash{{}}); !errors.Is(err, types.ErrInvalidHash) {
		t.Fatalf("unknown head must be ErrInvalidHash, got %v", err)
	}
}

func TestBlocks(t *testing.T) {
	d := New()
	text, err := d.PutObject(Root, "t", types.ObjTypeText)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := d.SpliceText(text, 0, 0, "onetwo"); err != nil {
		t.Fatalf("SpliceText: %v", err)
	}

	block, err := d.SplitBlock(text, 3, map[string]types.Value{"type": types.NewStr("paragraph")})
	if err != nil {
		t.Fatalf("SplitBlock: %v", err)
	}
	res, ok := d.Get(block, "type")
	if !ok || res.Value.Str() != "paragraph" {
		t.Fatalf("block attributes lost: %+v", res)
	}
	n, err := d.Length(text)
	if err != nil || n != 7 {
		t.Fatalf("block marker must occupy one position, length=%d err=%v", n, err)
	}

	if err := d.JoinBlock(block); err != nil {
		t.Fatalf("JoinBlock: %v", err)
	}
	n, err = d.Length(text)
	if err != nil || n != 6 {
		t.Fatalf("join must remove the marker, length=%d err=%v", n, err)
	}
	s, err := d.Text(text)
	if err != nil || s != "onetwo" {
		t.Fatalf("text damaged by block round trip: %q", s)
	}
}

func TestUpdateText(t *testing.T) {
	d := New()
	text, err := d.PutObject(Root, "t", types.ObjTypeText)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if err := d.SpliceText(text, 0, 0, "the quick fox"); err != nil {
		t.Fatalf("SpliceText: %v", err)
	}
	if err := d.UpdateText(text, "the slow fox"); err != nil {
		t.Fatalf("UpdateText: %v", err)
	}
	s, err := d.Text(text)
	if err != nil || s != "the slow fox" {
		t.Fatalf("UpdateText result %q, %v", s, err)
	}

	list, err := d.PutObject(Root, "l", types.ObjTypeList)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	var invalid *types.InvalidOpError
	if err := d.UpdateText(list, "nope"); !errors.As(err, &invalid) {
		t.Fatalf("UpdateText on a list must be a typed error, got %v", err)
	}
}

func TestHistoryQueries(t *testing.T) {
	d := New()
	if err := d.Put(Root, "k", types.NewStr("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	h1, ok := d.Commit(CommitOptions{Message: "first"})
	if !ok {
		t.Fatalf("commit produced no change")
	}
	if err := d.Put(Root, "k", types.NewStr("v2")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	d.Commit(CommitOptions{})

	c, err := d.GetChangeByHash(h1)
	if err != nil || c.Message == nil || *c.Message != "first" {
		t.Fatalf("GetChangeByHash: %+v, %v", c, err)
	}

	res, ok, err := d.GetAt(Root, "k", []change.Hash{h1})
	if err != nil || !ok || res.Value.Str() != "v1" {
		t.Fatalf("historical read: %+v, %v", res, err)
	}

	h, err := d.HashForOpID(res.ID)
	if err != nil || h != h1 {
		t.Fatalf("HashForOpID: %s, %v", h, err)
	}
}

func TestParentsAndPath(t *testing.T) {
	d := New()
	outer, err := d.PutObject(Root, "outer", types.ObjTypeMap)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	inner, err := d.PutObject(outer, "inner", types.ObjTypeList)
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	parent, key, ok := d.Parents(inner)
	if !ok || parent != outer || key != "inner" {
		t.Fatalf("Parents: %v %q %v", parent, key, ok)
	}

	path, err := d.Path(inner)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	if len(path) != 2 || path[0].Obj != Root || path[0].Key != "outer" || path[1].Key != "inner" {
		t.Fatalf("unexpected path %+v", path)
	}
}

func TestStringMigration(t *testing.T) {
	d := New()
	if err := d.Put(Root, "s", types.NewStr("migrate me")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	d.Commit(CommitOptions{})

	back, err := Load(d.Save(), LoadOptions{StringMigration: ConvertToText})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	res, ok := back.Get(Root, "s")
	if !ok {
		t.Fatalf("migrated key missing")
	}
	typ, err := back.ObjectType(res.ID)
	if err != nil || typ != types.ObjTypeText {
		t.Fatalf("expected a text object, got %v, %v", typ, err)
	}
	s, err := back.Text(res.ID)
	if err != nil || s != "migrate me" {
		t.Fatalf("migrated content %q, %v", s, err)
	}
}

func TestLoadLenientKeepsGoodChunks(t *testing.T) {
	d := New()
	if err := d.Put(Root, "k", types.NewInt(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	d.Commit(CommitOptions{})
	blob := d.Save()

	corrupted := append(append([]byte{}, blob...), 0xBA, 0xD0)

	if _, err := Load(corrupted, LoadOptions{}); err == nil {
		t.Fatalf("strict load must reject trailing garbage")
	}
	back, err := Load(corrupted, LoadOptions{OnPartialLoad: OnPartialLoadIgnore})
	if err != nil {
		t.Fatalf("lenient load: %v", err)
	}
	if res, ok := back.Get(Root, "k"); !ok || res.Value.Int() != 1 {
		t.Fatalf("lenient load lost good data: %+v", res)
	}
}

func TestPatchLogObservesMerge(t *testing.T) {
	a := New()
	if err := a.Put(Root, "k", types.NewInt(1)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	a.Commit(CommitOptions{})

	b := New()
	log := NewPatchLog()
	if err := b.ApplyChangesLogPatches(a.GetChanges(nil), log); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}
	patches := log.Patches()
	if len(patches) != 1 || patches[0].Key != "k" || patches[0].Value.Int() != 1 {
		t.Fatalf("unexpected patches %+v", patches)
	}
}
