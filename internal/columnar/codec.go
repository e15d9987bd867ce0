package columnar

import (
	"unicode/utf8"

	"weave/internal/varint"
)

// ValueCodec lets a Column[T] be serialized without the columnar package
// knowing anything about T's encoding. PutValue appends the wire bytes
// for v to buf and returns the extended slice; GetValue reads one value
// starting at offset 0 of buf and returns it plus the number of bytes
// consumed.
type ValueCodec[T any] struct {
	PutValue func(buf []byte, v T) []byte
	GetValue func(buf []byte) (T, int, error)
}

// Run-kind tags for the wire encoding: a leading varint whose low two
// bits select null / literal / repeated, and whose remaining bits hold
// the run length.
const (
	runKindRepeat = 0
	runKindNull   = 1
	runKindLit    = 2
)

// Encode serializes the column's runs to bytes: for each run, a tagged
// length varint followed by either nothing (null), one value (repeat),
// or `count` values (literal).
func Encode[T any](c *Column[T], codec ValueCodec[T]) []byte {
	var out []byte
	buf := make([]byte, 9)

	for _, r := range flattenRuns(c) {
		var tag uint64
		switch {
		case r.null:
			tag = runKindNull
		case r.literal:
			tag = runKindLit
		default:
			tag = runKindRepeat
		}
		header := (uint64(r.count) << 2) | tag
		n := varint.PutUvarint(buf, header)
		out = append(out, buf[:n]...)

		switch {
		case r.null:
		case r.literal:
			for _, v := range r.values {
				out = codec.PutValue(out, v)
			}
		default:
			out = codec.PutValue(out, r.value)
		}
	}
	return out
}

func flattenRuns[T any](c *Column[T]) []run[T] {
	return c.flatten()
}

// Decode reconstructs a column from bytes produced by Encode.
func Decode[T any](data []byte, ops ColumnOps[T], codec ValueCodec[T]) (*Column[T], error) {
	c := NewColumn[T](ops)
	var runs []run[T]

	pos := 0
	for pos < len(data) {
		header, n := varint.Uvarint(data[pos:])
		if n == 0 {
			return nil, packErrorf("truncated run header at byte %d", pos)
		}
		pos += n
		count := int(header >> 2)
		tag := header & 0x3

		switch tag {
		case runKindNull:
			runs = append(runs, run[T]{count: count, null: true})
		case runKindRepeat:
			v, m, err := codec.GetValue(data[pos:])
			if err != nil {
				return nil, err
			}
			pos += m
			runs = append(runs, run[T]{count: count, value: v})
		case runKindLit:
			values := make([]T, count)
			for i := 0; i < count; i++ {
				v, m, err := codec.GetValue(data[pos:])
				if err != nil {
					return nil, err
				}
				pos += m
				values[i] = v
			}
			runs = append(runs, run[T]{count: count, literal: true, values: values})
		default:
			return nil, packErrorf("unknown run tag %d at byte %d", tag, pos)
		}
	}

	c.rebuild(runs)
	return c, nil
}

// Uint64Codec is the ValueCodec for plain varint-encoded uint64 columns
// (ids, counters, action tags).
var Uint64Codec = ValueCodec[uint64]{
	PutValue: func(buf []byte, v uint64) []byte {
		tmp := make([]byte, 9)
		n := varint.PutUvarint(tmp, v)
		return append(buf, tmp[:n]...)
	},
	GetValue: func(buf []byte) (uint64, int, error) {
		v, n := varint.Uvarint(buf)
		if n == 0 {
			return 0, 0, packErrorf("truncated uint64")
		}
		return v, n, nil
	},
}

// Int64Codec is the ValueCodec for zig-zag varint-encoded int64 columns
// (deltas; negative first-differences are common and must stay cheap).
var Int64Codec = ValueCodec[int64]{
	PutValue: func(buf []byte, v int64) []byte {
		tmp := make([]byte, 9)
		n := varint.PutVarint(tmp, v)
		return append(buf, tmp[:n]...)
	},
	GetValue: func(buf []byte) (int64, int, error) {
		v, n := varint.Varint(buf)
		if n == 0 {
			return 0, 0, packErrorf("truncated int64")
		}
		return v, n, nil
	},
}

// BoolCodec packs booleans as a single byte.
var BoolCodec = ValueCodec[bool]{
	PutValue: func(buf []byte, v bool) []byte {
		if v {
			return append(buf, 1)
		}
		return append(buf, 0)
	},
	GetValue: func(buf []byte) (bool, int, error) {
		if len(buf) == 0 {
			return false, 0, packErrorf("truncated bool")
		}
		return buf[0] != 0, 1, nil
	},
}

// IntCodec stores machine ints as varint-encoded uint64 values; counts
// and group sizes are never negative.
var IntCodec = ValueCodec[int]{
	PutValue: func(buf []byte, v int) []byte {
		tmp := make([]byte, 9)
		n := varint.PutUvarint(tmp, uint64(v))
		return append(buf, tmp[:n]...)
	},
	GetValue: func(buf []byte) (int, int, error) {
		v, n := varint.Uvarint(buf)
		if n == 0 {
			return 0, 0, packErrorf("truncated int")
		}
		return int(v), n, nil
	},
}

// StringCodec length-prefixes UTF-8 strings and validates encoding on
// decode, per the "invalid UTF-8" failure mode.
var StringCodec = ValueCodec[string]{
	PutValue: func(buf []byte, v string) []byte {
		tmp := make([]byte, 9)
		n := varint.PutUvarint(tmp, uint64(len(v)))
		buf = append(buf, tmp[:n]...)
		return append(buf, v...)
	},
	GetValue: func(buf []byte) (string, int, error) {
		l, n := varint.Uvarint(buf)
		if n == 0 || n+int(l) > len(buf) {
			return "", 0, packErrorf("truncated string")
		}
		s := string(buf[n : n+int(l)])
		if !utf8.ValidString(s) {
			return "", 0, packErrorf("invalid UTF-8 in string column")
		}
		return s, n + int(l), nil
	},
}
