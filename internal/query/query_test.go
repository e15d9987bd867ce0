package query

import (
	"testing"

	"weave/internal/apply"
	"weave/internal/change"
	"weave/internal/opset"
	"weave/pkg/types"
)

func applySingle(t *testing.T, os *opset.OpSet, g *change.Graph, actor types.ActorID, seq, start uint64, deps []change.Hash, ops ...change.OpRecord) *change.Change {
	t.Helper()
	b := change.NewBuilder(actor, seq, start, int64(seq), deps)
	for _, op := range ops {
		b.AddOp(op)
	}
	c := b.Finish()
	if err := apply.ApplyChanges(os, g, []*change.Change{c}, nil); err != nil {
		t.Fatalf("apply: %v", err)
	}
	return c
}

func TestQueryGetAndKeys(t *testing.T) {
	os := opset.New()
	g := change.NewGraph()
	actor := types.NewRandomActorID()

	applySingle(t, os, g, actor, 1, 1, nil,
		change.OpRecord{Counter: 1, Action: types.ActionSet, Value: types.NewStr("v1"), IsMapKey: true, MapKey: "k"})

	r, ok := Get(os, types.Root, "k", nil)
	if !ok || r.Value.Str() != "v1" {
		t.Fatalf("expected k=v1, got %+v ok=%v", r, ok)
	}

	keys, err := Keys(os, types.Root, nil)
	if err != nil || len(keys) != 1 || keys[0] != "k" {
		t.Fatalf("expected keys=[k], got %v err=%v", keys, err)
	}
}

func TestQueryTextAndSpans(t *testing.T) {
	os := opset.New()
	g := change.NewGraph()
	actor := types.NewRandomActorID()

	textID := types.OpID{Counter: 1, Actor: 0}
	ops := []change.OpRecord{
		{Counter: 1, Action: types.ActionMakeText, IsMapKey: true, MapKey: "body"},
	}
	prev := change.ObjRef{}
	for i, r := range "hello" {
		id := change.ObjRef{Counter: uint64(2 + i), Actor: 0}
		ops = append(ops, change.OpRecord{
			Counter: uint64(2 + i),
			Obj:     change.ObjRef{Counter: 1, Actor: 0},
			Action:  types.ActionSet,
			Value:   types.NewStr(string(r)),
			Insert:  true,
			ElemKey: prev,
		})
		prev = id
	}
	applySingle(t, os, g, actor, 1, 1, nil, ops...)

	text, err := Text(os, textID, types.TextEncodingUnicodeCodePoints, nil)
	if err != nil || text != "hello" {
		t.Fatalf("expected hello, got %q err=%v", text, err)
	}

	spans, err := Spans(os, textID, types.TextEncodingUnicodeCodePoints, nil)
	if err != nil || len(spans) != 1 || spans[0].Text != "hello" {
		t.Fatalf("expected one unmarked span, got %+v err=%v", spans, err)
	}
}

func TestQueryCursorStability(t *testing.T) {
	os := opset.New()
	g := change.NewGraph()
	actor := types.NewRandomActorID()

	ops := []change.OpRecord{
		{Counter: 1, Action: types.ActionMakeList, IsMapKey: true, MapKey: "items"},
	}
	prev := change.ObjRef{}
	for i := 0; i < 5; i++ {
		id := change.ObjRef{Counter: uint64(2 + i), Actor: 0}
		ops = append(ops, change.OpRecord{
			Counter: uint64(2 + i),
			Obj:     change.ObjRef{Counter: 1, Actor: 0},
			Action:  types.ActionSet,
			Value:   types.NewInt(int64(i)),
			Insert:  true,
			ElemKey: prev,
		})
		prev = id
	}
	applySingle(t, os, g, actor, 1, 1, nil, ops...)

	listID := types.OpID{Counter: 1, Actor: 0}
	cur, err := GetCursor(os, listID, 2, types.TextEncodingUnicodeCodePoints, nil)
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	pos, err := GetCursorPosition(os, listID, cur, opset.MoveAfter, types.TextEncodingUnicodeCodePoints, nil)
	if err != nil || pos != 2 {
		t.Fatalf("expected cursor at 2, got %d err=%v", pos, err)
	}
}
