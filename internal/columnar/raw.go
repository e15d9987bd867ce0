package columnar

// RawColumn is a length-prefixed byte-span column: the concatenation of
// every row's bytes, plus an offset accumulator so row i's span can be
// recovered without rescanning from the start.
type RawColumn struct {
	data    []byte
	offsets []int // offsets[i], offsets[i+1] bound row i; len == rows+1
}

// NewRawColumn returns an empty raw column.
func NewRawColumn() *RawColumn {
	return &RawColumn{offsets: []int{0}}
}

// Len returns the number of rows.
func (c *RawColumn) Len() int { return len(c.offsets) - 1 }

// Get returns a copy of row i's bytes.
func (c *RawColumn) Get(i int) []byte {
	if i < 0 || i >= c.Len() {
		return nil
	}
	span := c.data[c.offsets[i]:c.offsets[i+1]]
	out := make([]byte, len(span))
	copy(out, span)
	return out
}

// Splice replaces `del` rows starting at `index` with `insert`.
func (c *RawColumn) Splice(index, del int, insert [][]byte) {
	if index < 0 || del < 0 || index+del > c.Len() {
		panic("columnar: raw splice out of range")
	}

	rows := c.Len()
	newData := make([]byte, 0, len(c.data))
	newOffsets := make([]int, 0, rows-del+len(insert)+1)
	newOffsets = append(newOffsets, 0)

	appendSpan := func(b []byte) {
		newData = append(newData, b...)
		newOffsets = append(newOffsets, len(newData))
	}

	for i := 0; i < index; i++ {
		appendSpan(c.Get(i))
	}
	for _, b := range insert {
		appendSpan(b)
	}
	for i := index + del; i < rows; i++ {
		appendSpan(c.Get(i))
	}

	c.data = newData
	c.offsets = newOffsets
}

// Bytes returns the raw concatenated backing buffer, for serialization.
func (c *RawColumn) Bytes() []byte {
	out := make([]byte, len(c.data))
	copy(out, c.data)
	return out
}

// Offsets returns a copy of the offset table.
func (c *RawColumn) Offsets() []int {
	out := make([]int, len(c.offsets))
	copy(out, c.offsets)
	return out
}

// LoadRawColumn reconstructs a raw column from a previously serialized
// buffer and offset table. Returns a PackError if the offsets are not
// monotone or run past the end of data.
func LoadRawColumn(data []byte, offsets []int) (*RawColumn, error) {
	if len(offsets) == 0 || offsets[0] != 0 {
		return nil, &PackError{Reason: "raw column offsets must start at 0"}
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] || offsets[i] > len(data) {
			return nil, &PackError{Reason: "raw column offsets out of range"}
		}
	}
	out := &RawColumn{data: make([]byte, len(data)), offsets: make([]int, len(offsets))}
	copy(out.data, data)
	copy(out.offsets, offsets)
	return out, nil
}
