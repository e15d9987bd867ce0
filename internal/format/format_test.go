package format

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"weave/internal/apply"
	"weave/internal/change"
	"weave/internal/opset"
	"weave/pkg/types"
)

func applyForTest(os *opset.OpSet, g *change.Graph, c *change.Change) error {
	if err := apply.ApplyChange(os, c, nil); err != nil {
		return err
	}
	return g.Add(c)
}

// buildDoc returns an op-set/graph pair with a small mixed history:
// a scalar, an overwrite, and a text object.
func buildDoc(t *testing.T) (*opset.OpSet, *change.Graph) {
	t.Helper()
	os := opset.New()
	g := change.NewGraph()
	actor := types.ActorID(bytes.Repeat([]byte{0x42}, 16))

	b1 := change.NewBuilder(actor, 1, 1, 100, nil)
	b1.AddOp(change.OpRecord{Counter: 1, Action: types.ActionSet, Value: types.NewStr("v"), IsMapKey: true, MapKey: "k"})
	b1.AddOp(change.OpRecord{Counter: 2, Action: types.ActionMakeText, IsMapKey: true, MapKey: "t"})
	b1.AddOp(change.OpRecord{Counter: 3, Obj: change.ObjRef{Counter: 2}, Action: types.ActionSet, Value: types.NewStr("h"), Insert: true})
	b1.AddOp(change.OpRecord{Counter: 4, Obj: change.ObjRef{Counter: 2}, Action: types.ActionSet, Value: types.NewStr("i"), Insert: true, ElemKey: change.ObjRef{Counter: 3}})
	c1 := b1.Finish()

	b2 := change.NewBuilder(actor, 2, 5, 200, []change.Hash{c1.Hash})
	b2.SetMessage("overwrite")
	b2.AddOp(change.OpRecord{Counter: 5, Action: types.ActionSet, Value: types.NewInt(9), IsMapKey: true, MapKey: "k", Pred: []change.ObjRef{{Counter: 1}}})
	c2 := b2.Finish()

	for _, c := range []*change.Change{c1, c2} {
		if err := applyForTest(os, g, c); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	return os, g
}

func TestSaveLoadRoundTrip(t *testing.T) {
	os1, g1 := buildDoc(t)
	blob := Save(os1, g1)

	os2, g2, err := Load(blob, LoadConfig{}, applyForTest)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(os2.AllOps()) != len(os1.AllOps()) {
		t.Fatalf("op count changed: %d != %d", len(os2.AllOps()), len(os1.AllOps()))
	}
	h1, h2 := g1.Heads(), g2.Heads()
	if len(h1) != 1 || len(h2) != 1 || h1[0] != h2[0] {
		t.Fatalf("heads changed across round trip")
	}
	if !bytes.Equal(Save(os2, g2), blob) {
		t.Fatalf("save/load/save must be byte-identical")
	}
}

func TestSaveNoCompressLoadsIdentically(t *testing.T) {
	os1, g1 := buildDoc(t)
	plain := SaveNoCompress(os1, g1)

	os2, g2, err := Load(plain, LoadConfig{}, applyForTest)
	if err != nil {
		t.Fatalf("Load uncompressed: %v", err)
	}
	if !bytes.Equal(Save(os2, g2), Save(os1, g1)) {
		t.Fatalf("compression choice must not affect loaded state")
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	if _, _, err := Load([]byte("nope"), LoadConfig{}, applyForTest); err == nil {
		t.Fatalf("non-magic bytes must be rejected")
	}
}

func TestLoadDetectsCorruptChecksum(t *testing.T) {
	os1, g1 := buildDoc(t)
	blob := Save(os1, g1)

	// Flip one byte inside the first chunk's body.
	corrupt := append([]byte{}, blob...)
	corrupt[len(corrupt)/2] ^= 0xFF

	if _, _, err := Load(corrupt, LoadConfig{}, applyForTest); err == nil {
		t.Fatalf("corrupted chunk must fail a verifying load")
	}
}

func TestChangeChunkRoundTrip(t *testing.T) {
	_, g := buildDoc(t)
	for _, c := range g.All() {
		raw := EncodeChange(c)
		back, err := DecodeChange(raw)
		if err != nil {
			t.Fatalf("DecodeChange: %v", err)
		}
		if back.Hash != c.Hash {
			t.Fatalf("rehash mismatch: %s != %s", back.Hash, c.Hash)
		}
		if back.Seq != c.Seq || back.StartOp != c.StartOp || len(back.Ops) != len(c.Ops) {
			t.Fatalf("change fields lost")
		}
		if c.Message != nil && (back.Message == nil || *back.Message != *c.Message) {
			t.Fatalf("message metadata lost")
		}
	}
}

func TestSaveAfterCarriesOnlyNewChanges(t *testing.T) {
	_, g1 := buildDoc(t)
	all := g1.All()
	first := all[0]

	incr := SaveAfter(g1, []change.Hash{first.Hash})

	os2, g2, err := Load(incr, LoadConfig{}, applyForTest)
	if err != nil {
		t.Fatalf("Load incremental: %v", err)
	}
	// The second change depends on the first, which is absent: it must
	// be parked, not applied.
	if g2.Has(all[1].Hash) {
		t.Fatalf("dependent change applied without its dep")
	}
	if len(g2.Parked()) != 1 {
		t.Fatalf("expected the orphan parked, got %d", len(g2.Parked()))
	}
	if len(os2.AllOps()) != 0 {
		t.Fatalf("no ops should apply from an orphan")
	}
}

func TestLoadFileMmap(t *testing.T) {
	os1, g1 := buildDoc(t)
	path := filepath.Join(t.TempDir(), "doc.weave")
	if err := os.WriteFile(path, Save(os1, g1), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	os2, g2, err := LoadFile(path, LoadConfig{}, applyForTest)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !bytes.Equal(Save(os2, g2), Save(os1, g1)) {
		t.Fatalf("mmap load must match byte load")
	}

	if _, _, err := LoadFile(filepath.Join(t.TempDir(), "missing"), LoadConfig{}, applyForTest); err == nil {
		t.Fatalf("missing file must be reported")
	}
}

func TestStringMigrationTargets(t *testing.T) {
	os1, _ := buildDoc(t)
	targets := StringMigrationTargets(os1)
	// "k" was overwritten with an int; only text-free visible strings
	// qualify, and the text object's per-element strings are skipped.
	if len(targets) != 0 {
		t.Fatalf("expected no targets after overwrite, got %+v", targets)
	}

	os2 := opset.New()
	g2 := change.NewGraph()
	actor := types.ActorID(bytes.Repeat([]byte{0x43}, 16))
	b := change.NewBuilder(actor, 1, 1, 1, nil)
	b.AddOp(change.OpRecord{Counter: 1, Action: types.ActionSet, Value: types.NewStr("hello"), IsMapKey: true, MapKey: "s"})
	if err := applyForTest(os2, g2, b.Finish()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	targets = StringMigrationTargets(os2)
	if len(targets) != 1 || !targets[0].IsMapKey || targets[0].Key != "s" || targets[0].Text != "hello" {
		t.Fatalf("unexpected targets %+v", targets)
	}
}
