package columnar

// DeltaColumn is an RLE-over-first-differences column of int64. It
// stores each row's difference from its predecessor (the first row's
// "difference" is taken from zero) so that columns holding monotone
// sequences — op counters, successor counters — compress to long runs
// of a single delta value (typically +1).
type DeltaColumn struct {
	deltas *Column[int64]
}

func deltaOps() ColumnOps[int64] {
	return ColumnOps[int64]{
		Equal:  func(a, b int64) bool { return a == b },
		Less:   func(a, b int64) bool { return a < b },
		Weight: func(v int64) int64 { return v },
	}
}

// NewDeltaColumn returns an empty delta column.
func NewDeltaColumn() *DeltaColumn {
	return &DeltaColumn{deltas: NewColumn[int64](deltaOps())}
}

// RawDeltas exposes the underlying delta-of-differences column for
// serialization (internal/format packs it with Int64Codec rather than
// duplicating DeltaColumn's run bookkeeping).
func (d *DeltaColumn) RawDeltas() *Column[int64] { return d.deltas }

// FromRawDeltas wraps an already-decoded first-differences column as a
// DeltaColumn, the inverse of RawDeltas.
func FromRawDeltas(deltas *Column[int64]) *DeltaColumn {
	return &DeltaColumn{deltas: deltas}
}

// Len returns the number of rows.
func (d *DeltaColumn) Len() int { return d.deltas.Len() }

// Get returns the absolute (cumulative) value at row i, or (0, true) if
// the row is null.
func (d *DeltaColumn) Get(i int) (int64, bool) {
	prefix := d.prefixSum(i)
	item := d.deltas.Get(i)
	if item.Null {
		return 0, true
	}
	return prefix + item.Value, false
}

// prefixSum returns the cumulative sum of all non-null deltas strictly
// before row i.
func (d *DeltaColumn) prefixSum(i int) int64 {
	items := d.deltas.IterRange(0, i)
	var sum int64
	for _, it := range items {
		if !it.Null {
			sum += it.Value
		}
	}
	return sum
}

// All decodes every absolute value in order (null rows are reported as
// items with Null set).
func (d *DeltaColumn) All() []Item[int64] {
	items := d.deltas.Iter()
	out := make([]Item[int64], len(items))
	var sum int64
	for i, it := range items {
		if it.Null {
			out[i] = Item[int64]{Null: true}
			continue
		}
		sum += it.Value
		out[i] = Item[int64]{Value: sum}
	}
	return out
}

// Splice replaces `del` absolute values starting at `index` with
// `insert`, re-deriving deltas for the edit boundary.
func (d *DeltaColumn) Splice(index, del int, insert []Item[int64]) {
	all := d.All()
	tail := append([]Item[int64]{}, all[index+del:]...)
	head := append([]Item[int64]{}, all[:index]...)
	head = append(head, insert...)
	head = append(head, tail...)

	deltaItems := make([]Item[int64], len(head))
	var prev int64
	for i, it := range head {
		if it.Null {
			deltaItems[i] = Item[int64]{Null: true}
			continue
		}
		deltaItems[i] = Item[int64]{Value: it.Value - prev}
		prev = it.Value
	}

	d.deltas = NewColumn[int64](deltaOps())
	d.deltas.Splice(0, 0, deltaItems)
}

// IterAtAcc finds the row whose cumulative absolute value first reaches
// v (used by text_index-style lookups over delta-encoded widths).
func (d *DeltaColumn) IterAtAcc(v int64) (int, bool) {
	var sum int64
	for i := 0; i < d.Len(); i++ {
		val, isNull := d.Get(i)
		if isNull {
			continue
		}
		sum += val
		if sum >= v {
			return i, true
		}
	}
	return d.Len(), false
}
