package columnar

// ColumnOps supplies the comparisons a Column needs over its element
// type. Equal is required; Less is optional (nil for columns that are
// never range-queried, e.g. op actions); Weight lets the same machinery
// serve both a plain-count RLE column (Weight always 1, excluding nulls)
// and a delta/numeric column where the aggregate is a value sum.
type ColumnOps[T any] struct {
	Equal  func(a, b T) bool
	Less   func(a, b T) bool
	Weight func(v T) int64
}

func defaultWeight[T any](T) int64 { return 1 }

// Item is a single decoded row: either a value or a null marker.
type Item[T any] struct {
	Value T
	Null  bool
}

// Column is an RLE-encoded sequence of T, stored as a slice of slabs.
type Column[T any] struct {
	slabs []*slab[T]
	ops   ColumnOps[T]
}

// NewColumn returns an empty column using ops for comparisons.
func NewColumn[T any](ops ColumnOps[T]) *Column[T] {
	if ops.Weight == nil {
		ops.Weight = defaultWeight[T]
	}
	return &Column[T]{ops: ops}
}

// Len returns the total number of logical rows (including nulls).
func (c *Column[T]) Len() int {
	n := 0
	for _, s := range c.slabs {
		n += s.rows
	}
	return n
}

// Acc returns the total aggregate (sum of Weight over non-null values).
func (c *Column[T]) Acc() int64 {
	var total int64
	for _, s := range c.slabs {
		total += s.acc
	}
	return total
}

// flatten materializes the whole column into a single run list, used by
// Encode (through flattenRuns). Columns are kept small enough (documents, not
// data warehouses) that this is an acceptable cost relative to its
// simplicity; slabs exist for the read-path seeks, not to bound splice
// cost to sub-linear.
func (c *Column[T]) flatten() []run[T] {
	var out []run[T]
	for _, s := range c.slabs {
		out = append(out, s.runs...)
	}
	return out
}

func (c *Column[T]) rebuild(runs []run[T]) {
	runs = coalesce(c.ops, runs)
	c.slabs = c.slabs[:0]

	cur := &slab[T]{}
	curRows := 0
	for _, r := range runs {
		// Split a run across a slab boundary when it would overshoot the
		// target; this keeps slab sizes roughly even without forbidding
		// a single very long run from spanning many rows.
		remaining := r
		for remaining.count > 0 {
			room := SlabTargetRows - curRows
			if room <= 0 {
				cur.recompute(c.ops)
				c.slabs = append(c.slabs, cur)
				cur = &slab[T]{}
				curRows = 0
				room = SlabTargetRows
			}
			take := remaining.count
			if take > room {
				take = room
			}
			head, tail := splitRun(remaining, take)
			cur.runs = append(cur.runs, head)
			curRows += take
			remaining = tail
		}
	}
	if curRows > 0 || len(cur.runs) > 0 {
		cur.recompute(c.ops)
		c.slabs = append(c.slabs, cur)
	}
	if len(c.slabs) == 0 {
		// An empty column is represented as a single implicit-length
		// slab with no runs.
		c.slabs = append(c.slabs, &slab[T]{})
	}
}

func splitRun[T any](r run[T], take int) (head, tail run[T]) {
	if take >= r.count {
		return r, run[T]{}
	}
	head = run[T]{count: take, null: r.null, literal: r.literal, value: r.value}
	tail = run[T]{count: r.count - take, null: r.null, literal: r.literal, value: r.value}
	if r.literal {
		head.values = append([]T{}, r.values[:take]...)
		tail.values = append([]T{}, r.values[take:]...)
	}
	return head, tail
}

// coalesce merges adjacent runs that describe the same repeated value or
// the same null state, and collapses length-1 literal runs into regular
// runs so equal adjacent values merge automatically.
func coalesce[T any](ops ColumnOps[T], runs []run[T]) []run[T] {
	var out []run[T]
	for _, r := range runs {
		if r.count == 0 {
			continue
		}
		if r.literal && r.count == 1 {
			r = run[T]{count: 1, value: r.values[0]}
		}
		if len(out) == 0 {
			out = append(out, r)
			continue
		}
		last := &out[len(out)-1]
		if last.null && r.null {
			last.count += r.count
			continue
		}
		if !last.null && !r.null && !last.literal && !r.literal && ops.Equal(last.value, r.value) {
			last.count += r.count
			continue
		}
		out = append(out, r)
	}
	return out
}

// rowAt returns the value and null flag for logical row index i.
func (c *Column[T]) rowAt(i int) (T, bool) {
	for _, s := range c.slabs {
		if i < s.rows {
			pos := 0
			for _, r := range s.runs {
				if i < pos+r.count {
					return r.at(i - pos)
				}
				pos += r.count
			}
			break
		}
		i -= s.rows
	}
	var zero T
	return zero, true
}

// Get returns the item at logical row index i.
func (c *Column[T]) Get(i int) Item[T] {
	v, isNull := c.rowAt(i)
	return Item[T]{Value: v, Null: isNull}
}

// Splice replaces `del` rows starting at `index` with `insert`.
func (c *Column[T]) Splice(index, del int, insert []Item[T]) {
	if index < 0 || del < 0 || index+del > c.Len() {
		panic("columnar: splice out of range")
	}

	flat := c.flattenRows()
	tail := append([]Item[T]{}, flat[index+del:]...)
	head := append([]Item[T]{}, flat[:index]...)
	head = append(head, insert...)
	head = append(head, tail...)

	c.rebuild(itemsToRuns(head))
}

func itemsToRuns[T any](items []Item[T]) []run[T] {
	out := make([]run[T], 0, len(items))
	for _, it := range items {
		if it.Null {
			out = append(out, run[T]{count: 1, null: true})
		} else {
			out = append(out, run[T]{count: 1, value: it.Value})
		}
	}
	return out
}

// flattenRows decodes the whole column into individual items; used by
// Splice to avoid juggling run boundaries by hand.
func (c *Column[T]) flattenRows() []Item[T] {
	n := c.Len()
	out := make([]Item[T], 0, n)
	for _, s := range c.slabs {
		for _, r := range s.runs {
			if r.null {
				for i := 0; i < r.count; i++ {
					out = append(out, Item[T]{Null: true})
				}
				continue
			}
			if r.literal {
				for _, v := range r.values {
					out = append(out, Item[T]{Value: v})
				}
				continue
			}
			for i := 0; i < r.count; i++ {
				out = append(out, Item[T]{Value: r.value})
			}
		}
	}
	return out
}

// Iter yields every item in order.
func (c *Column[T]) Iter() []Item[T] {
	return c.flattenRows()
}

// IterRange yields items in [lo, hi).
func (c *Column[T]) IterRange(lo, hi int) []Item[T] {
	if lo < 0 {
		lo = 0
	}
	n := c.Len()
	if hi > n {
		hi = n
	}
	if lo >= hi {
		return nil
	}
	return c.flattenRows()[lo:hi]
}

// IterAtAcc returns the row index at which the cumulative Weight-sum
// first reaches or exceeds v, and whether such a row exists.
func (c *Column[T]) IterAtAcc(v int64) (int, bool) {
	var cum int64
	row := 0
	for _, s := range c.slabs {
		if cum+s.acc < v {
			cum += s.acc
			row += s.rows
			continue
		}
		for _, r := range s.runs {
			if r.null {
				row += r.count
				continue
			}
			if r.literal {
				for _, val := range r.values {
					cum += c.ops.Weight(val)
					if cum >= v {
						return row, true
					}
					row++
				}
				continue
			}
			w := c.ops.Weight(r.value)
			for i := 0; i < r.count; i++ {
				cum += w
				if cum >= v {
					return row, true
				}
				row++
			}
		}
	}
	return row, false
}

// FindByValue returns every row index whose value equals v, using the
// slab min/max summary to skip slabs that cannot contain it.
func (c *Column[T]) FindByValue(v T) []int {
	var out []int
	row := 0
	for _, s := range c.slabs {
		if !s.mayContain(c.ops, v) {
			row += s.rows
			continue
		}
		for _, r := range s.runs {
			if !r.null {
				if !r.literal && c.ops.Equal(r.value, v) {
					for i := 0; i < r.count; i++ {
						out = append(out, row+i)
					}
				} else if r.literal {
					for i, val := range r.values {
						if c.ops.Equal(val, v) {
							out = append(out, row+i)
						}
					}
				}
			}
			row += r.count
		}
	}
	return out
}

// FindByRange returns every row index whose value lies in [lo, hi].
// Requires ops.Less (monotone data is assumed when used as a binary
// search, but this falls back to a full scan with
// slab skipping when the column is not in fact sorted).
func (c *Column[T]) FindByRange(lo, hi T) []int {
	if c.ops.Less == nil {
		panic("columnar: FindByRange requires an ordered column")
	}
	var out []int
	row := 0
	inRange := func(v T) bool {
		return !c.ops.Less(v, lo) && !c.ops.Less(hi, v)
	}
	for _, s := range c.slabs {
		if s.hasMinMax && (c.ops.Less(s.max, lo) || c.ops.Less(hi, s.min)) {
			row += s.rows
			continue
		}
		for _, r := range s.runs {
			if !r.null {
				if !r.literal && inRange(r.value) {
					for i := 0; i < r.count; i++ {
						out = append(out, row+i)
					}
				} else if r.literal {
					for i, val := range r.values {
						if inRange(val) {
							out = append(out, row+i)
						}
					}
				}
			}
			row += r.count
		}
	}
	return out
}

// ScopeToValue returns the contiguous sub-range of rng containing only
// rows equal to v, assuming the column is sorted over rng. Implemented
// as a pair of binary searches over the already-decoded range rather
// than the full column, which is the common case (an object's ops are a
// small slice of a much larger document).
func (c *Column[T]) ScopeToValue(v T, rng [2]int) [2]int {
	if c.ops.Less == nil {
		panic("columnar: ScopeToValue requires an ordered column")
	}
	lo, hi := rng[0], rng[1]
	items := c.IterRange(lo, hi)

	start := searchFirst(items, func(it Item[T]) bool {
		return !it.Null && !c.ops.Less(it.Value, v)
	})
	end := searchFirst(items, func(it Item[T]) bool {
		return !it.Null && c.ops.Less(v, it.Value)
	})
	if end < start {
		end = start
	}
	return [2]int{lo + start, lo + end}
}

func searchFirst[T any](items []Item[T], pred func(Item[T]) bool) int {
	n := len(items)
	i, j := 0, n
	for i < j {
		mid := (i + j) / 2
		if pred(items[mid]) {
			j = mid
		} else {
			i = mid + 1
		}
	}
	return i
}

// EqualOps builds ColumnOps for a type with only equality comparisons
// (no ordering), suitable for e.g. op action or boolean columns.
func EqualOps[T comparable]() ColumnOps[T] {
	return ColumnOps[T]{Equal: func(a, b T) bool { return a == b }}
}
