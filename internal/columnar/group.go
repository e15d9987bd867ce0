package columnar

// GroupColumn holds, per logical row, a count of sub-items; the
// sub-items themselves live in paired sub-columns (e.g. succ_count next
// to succ_ctr/succ_actor, or value_meta next to the raw value bytes).
// GroupColumn only tracks the counts and the flattened sub-row bounds;
// callers own the sub-columns and slice them using Bounds.
type GroupColumn struct {
	counts *Column[int]
}

func countOps() ColumnOps[int] {
	return ColumnOps[int]{
		Equal:  func(a, b int) bool { return a == b },
		Less:   func(a, b int) bool { return a < b },
		Weight: func(v int) int64 { return int64(v) },
	}
}

// NewGroupColumn returns an empty group column.
func NewGroupColumn() *GroupColumn {
	return &GroupColumn{counts: NewColumn[int](countOps())}
}

// RawCounts exposes the underlying per-row count column for
// serialization.
func (g *GroupColumn) RawCounts() *Column[int] { return g.counts }

// FromRawCounts wraps an already-decoded count column as a GroupColumn.
func FromRawCounts(counts *Column[int]) *GroupColumn {
	return &GroupColumn{counts: counts}
}

// Len returns the number of logical (parent) rows.
func (g *GroupColumn) Len() int { return g.counts.Len() }

// Count returns the sub-item count for logical row i.
func (g *GroupColumn) Count(i int) int {
	item := g.counts.Get(i)
	if item.Null {
		return 0
	}
	return item.Value
}

// Bounds returns the [start, end) range in the flattened sub-column that
// row i's sub-items occupy.
func (g *GroupColumn) Bounds(i int) (int, int) {
	start := 0
	for r := 0; r < i; r++ {
		start += g.Count(r)
	}
	return start, start + g.Count(i)
}

// TotalSubRows returns the sum of every row's count — the required
// length of the paired flattened sub-columns (invariant
// that succ_count's sum equals succ_ctr's length).
func (g *GroupColumn) TotalSubRows() int {
	total := 0
	for i := 0; i < g.Len(); i++ {
		total += g.Count(i)
	}
	return total
}

// Splice replaces `del` rows of counts starting at `index` with
// `counts`. It does not touch the sub-columns; callers splice those
// separately using the bounds computed before and after this call.
func (g *GroupColumn) Splice(index, del int, counts []int) {
	items := make([]Item[int], len(counts))
	for i, c := range counts {
		items[i] = Item[int]{Value: c}
	}
	g.counts.Splice(index, del, items)
}
