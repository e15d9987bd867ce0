// Package query implements the read-only surface of a document:
// get/get_all/keys/map_range/list_range/text/spans/marks/
// cursor, each with an optional historical clock. Every function is a
// thin, allocation-light translation of internal/opset's seek
// primitives into the result shapes a host binding hands to user code;
// no function here mutates the op-set.
package query

import (
	"sort"
	"strings"

	"weave/internal/opset"
	"weave/pkg/types"
)

// Result is one resolved value at a map key or sequence index/element.
type Result struct {
	Value    types.Value
	ID       types.OpID
	Conflict bool
}

func visibleAt(os *opset.OpSet, ops []*opset.Op, clock *opset.Clock) []*opset.Op {
	var out []*opset.Op
	for _, o := range ops {
		if !o.IsVisibleCandidate() {
			continue
		}
		if !os.Visible(o, effectiveClock(os, clock)) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func effectiveClock(os *opset.OpSet, clock *opset.Clock) *opset.Clock {
	if clock == nil {
		return os.Clock()
	}
	return clock
}

func top(ops []*opset.Op) *opset.Op {
	var winner *opset.Op
	for _, o := range ops {
		if winner == nil || winner.ID.Less(o.ID) {
			winner = o
		}
	}
	return winner
}

// resolveValue folds covered increments over op when it is a counter;
// all is the full (unfiltered) conflict set at op's key, which carries
// the Increment ops alongside the values they modify.
func resolveValue(op *opset.Op, all []*opset.Op, clock *opset.Clock) types.Value {
	if op.Value.Kind() != types.KindCounter {
		return op.Value
	}
	return opset.FoldCounter(op, all, clock)
}

// Get returns the winning (greatest-id) visible value at a map key, or
// ok=false if the key has no visible value.
func Get(os *opset.OpSet, obj types.ObjID, key string, clock *opset.Clock) (Result, bool) {
	all := os.SeekOpsByMapKey(obj, key)
	visible := visibleAt(os, all, clock)
	w := top(visible)
	if w == nil {
		return Result{}, false
	}
	return Result{Value: resolveValue(w, all, effectiveClock(os, clock)), ID: w.ID, Conflict: len(visible) > 1}, true
}

// GetAll returns every visible value at a map key, ascending by id.
func GetAll(os *opset.OpSet, obj types.ObjID, key string, clock *opset.Clock) []Result {
	all := os.SeekOpsByMapKey(obj, key)
	visible := visibleAt(os, all, clock)
	out := make([]Result, len(visible))
	for i, o := range visible {
		out[i] = Result{Value: resolveValue(o, all, effectiveClock(os, clock)), ID: o.ID, Conflict: len(visible) > 1}
	}
	return out
}

// GetIndex returns the winning value at a list/text index, with counter
// increments folded in and the conflict flag set when other visible
// values share the element.
func GetIndex(os *opset.OpSet, obj types.ObjID, i int, encoding types.TextEncoding, clock *opset.Clock) (Result, error) {
	op, val, conflict, err := os.ResolveIndex(obj, i, encoding, effectiveClock(os, clock))
	if err != nil {
		return Result{}, err
	}
	return Result{Value: val, ID: op.ID, Conflict: conflict}, nil
}

// Keys returns a map object's keys that currently have at least one
// visible op, in sorted order.
func Keys(os *opset.OpSet, obj types.ObjID, clock *opset.Clock) ([]string, error) {
	o, ok := os.Object(obj)
	if !ok {
		return nil, types.ErrInvalidObjID
	}
	var out []string
	for _, k := range o.SortedKeys() {
		if len(visibleAt(os, os.SeekOpsByMapKey(obj, k), clock)) > 0 {
			out = append(out, k)
		}
	}
	return out, nil
}

// MapEntry is one row of a map_range result.
type MapEntry struct {
	Key      string
	Value    types.Value
	ID       types.OpID
	Conflict bool
}

// MapRange returns every visible entry whose key lies in [lo, hi)
// (empty lo/hi bounds mean unbounded on that side), in key order.
func MapRange(os *opset.OpSet, obj types.ObjID, lo, hi string, clock *opset.Clock) ([]MapEntry, error) {
	keys, err := Keys(os, obj, clock)
	if err != nil {
		return nil, err
	}
	var out []MapEntry
	for _, k := range keys {
		if lo != "" && k < lo {
			continue
		}
		if hi != "" && k >= hi {
			continue
		}
		visible := visibleAt(os, os.SeekOpsByMapKey(obj, k), clock)
		w := top(visible)
		if w == nil {
			continue
		}
		out = append(out, MapEntry{Key: k, Value: w.Value, ID: w.ID, Conflict: len(visible) > 1})
	}
	return out, nil
}

// SeqEntry is one row of a list_range result.
type SeqEntry struct {
	Index    int
	Value    types.Value
	ID       types.OpID
	Conflict bool
}

// ListRange returns every visible element in [lo, hi) of a list/text
// object, in index order.
func ListRange(os *opset.OpSet, obj types.ObjID, lo, hi int, encoding types.TextEncoding, clock *opset.Clock) ([]SeqEntry, error) {
	n, err := os.Length(obj, encoding, effectiveClock(os, clock))
	if err != nil {
		return nil, err
	}
	if hi < 0 || hi > n {
		hi = n
	}
	var out []SeqEntry
	for i := lo; i < hi; i++ {
		op, val, conflict, err := os.ResolveIndex(obj, i, encoding, effectiveClock(os, clock))
		if err != nil {
			continue
		}
		out = append(out, SeqEntry{Index: i, Value: val, ID: op.ID, Conflict: conflict})
	}
	return out, nil
}

// Text concatenates the visible character values of a text object in
// sequence order.
func Text(os *opset.OpSet, obj types.ObjID, encoding types.TextEncoding, clock *opset.Clock) (string, error) {
	n, err := os.Length(obj, encoding, effectiveClock(os, clock))
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := 0; i < n; {
		op, err := os.SeekOpsByIndex(obj, i, encoding, effectiveClock(os, clock))
		if err != nil {
			break
		}
		if op.Value.Kind() == types.KindStr {
			b.WriteString(op.Value.Str())
			r := []rune(op.Value.Str())
			w := 1
			if len(r) > 0 {
				w = encoding.RuneWidth(r[0])
			}
			if w <= 0 {
				w = 1
			}
			i += w
		} else {
			i++
		}
	}
	return b.String(), nil
}

// Span is one contiguous run of text sharing the same active mark set.
type Span struct {
	Text  string
	Marks map[string]types.Value
}

// Spans splits a text object's content into runs of uniform mark state,
// the shape a rich-text binding renders directly.
func Spans(os *opset.OpSet, obj types.ObjID, encoding types.TextEncoding, clock *opset.Clock) ([]Span, error) {
	text, err := Text(os, obj, encoding, clock)
	if err != nil {
		return nil, err
	}
	marks, err := os.Marks(obj, encoding, effectiveClock(os, clock))
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	n := len(runes)
	activeAt := func(pos int) map[string]types.Value {
		return markSetAt(marks, pos, n)
	}

	sameSet := func(a, b map[string]types.Value) bool {
		if len(a) != len(b) {
			return false
		}
		for k, v := range a {
			bv, ok := b[k]
			if !ok || !v.Equal(bv) {
				return false
			}
		}
		return true
	}

	var spans []Span
	start := 0
	cur := activeAt(0)
	for i := 1; i <= n; i++ {
		var next map[string]types.Value
		if i < n {
			next = activeAt(i)
		}
		if i == n || !sameSet(cur, next) {
			spans = append(spans, Span{Text: string(runes[start:i]), Marks: cur})
			start = i
			cur = next
		}
	}
	return spans, nil
}

// Length returns the visible length of obj in encoding's units.
func Length(os *opset.OpSet, obj types.ObjID, encoding types.TextEncoding, clock *opset.Clock) (int, error) {
	return os.Length(obj, encoding, effectiveClock(os, clock))
}

// markSetAt folds the raw mark list into the name -> value mapping
// active at pos. Marks apply in ascending op-id order so the greater id
// wins an overlap (required tie-break), and a null-valued
// mark — the encoding of unmark — removes the name entirely.
func markSetAt(marks []opset.Mark, pos, textLen int) map[string]types.Value {
	ordered := make([]opset.Mark, len(marks))
	copy(ordered, marks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID.Less(ordered[j].ID) })

	out := make(map[string]types.Value)
	for _, m := range ordered {
		end := m.End
		if end < 0 {
			end = textLen // missing MarkEnd: open to end of text
		}
		if pos < m.Begin || pos >= end {
			continue
		}
		if m.Value.IsNull() {
			delete(out, m.Name)
		} else {
			out[m.Name] = m.Value
		}
	}
	return out
}

// Marks returns the currently-active mark spans of a text object, with
// overlapping same-name marks folded down to the winner at each
// position and unmarked stretches removed.
func Marks(os *opset.OpSet, obj types.ObjID, encoding types.TextEncoding, clock *opset.Clock) ([]opset.Mark, error) {
	raw, err := os.Marks(obj, encoding, effectiveClock(os, clock))
	if err != nil {
		return nil, err
	}
	n, err := os.Length(obj, encoding, effectiveClock(os, clock))
	if err != nil {
		return nil, err
	}

	// Walk position by position, opening a consolidated span whenever a
	// name's winning value changes and closing it when it disappears.
	open := make(map[string]*opset.Mark)
	var out []*opset.Mark
	for pos := 0; pos <= n; pos++ {
		var active map[string]types.Value
		if pos < n {
			active = markSetAt(raw, pos, n)
		}
		for name, m := range open {
			if v, ok := active[name]; !ok || !v.Equal(m.Value) {
				m.End = pos
				delete(open, name)
			}
		}
		for name, v := range active {
			if _, ok := open[name]; !ok {
				m := &opset.Mark{Name: name, Value: v, Begin: pos, End: -1}
				open[name] = m
				out = append(out, m)
			}
		}
	}

	result := make([]opset.Mark, 0, len(out))
	for _, m := range out {
		if m.End < 0 {
			m.End = n
		}
		result = append(result, *m)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Begin != result[j].Begin {
			return result[i].Begin < result[j].Begin
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}
