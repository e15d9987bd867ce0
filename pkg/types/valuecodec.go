package types

import (
	"math"

	"weave/internal/varint"
)

// EncodeValue appends the canonical wire encoding of v to buf and
// returns the extended slice: a one-byte kind tag followed by the
// kind-specific payload. Used both by a change's content-hash bytes and
// by the op-set's persisted value column, so a value's bytes are
// identical in both contexts.
func EncodeValue(buf []byte, v Value) []byte {
	tmp := make([]byte, 9)
	putUvarint := func(u uint64) {
		n := varint.PutUvarint(tmp, u)
		buf = append(buf, tmp[:n]...)
	}

	buf = append(buf, byte(v.Kind()))
	switch v.Kind() {
	case KindNull:
	case KindBool:
		if v.Bool() {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindInt, KindCounter, KindTimestamp:
		putUvarint(varint.ZigZag(v.Int()))
	case KindUint:
		putUvarint(v.Uint())
	case KindFloat:
		bits := math.Float64bits(v.Float())
		for i := 56; i >= 0; i -= 8 {
			buf = append(buf, byte(bits>>uint(i)))
		}
	case KindStr:
		s := v.Str()
		putUvarint(uint64(len(s)))
		buf = append(buf, s...)
	case KindBytes:
		b := v.Bytes()
		putUvarint(uint64(len(b)))
		buf = append(buf, b...)
	case KindUnknown:
		putUvarint(v.UnknownTypeCode())
		b := v.Bytes()
		putUvarint(uint64(len(b)))
		buf = append(buf, b...)
	}
	return buf
}

// DecodeValue reads one value from the front of buf, returning it and
// the number of bytes consumed.
func DecodeValue(buf []byte) (Value, int, error) {
	if len(buf) == 0 {
		return Value{}, 0, ErrInvalidColumns
	}
	kind := ValueKind(buf[0])
	pos := 1

	readUvarint := func() (uint64, error) {
		u, n := varint.Uvarint(buf[pos:])
		if n == 0 {
			return 0, ErrInvalidColumns
		}
		pos += n
		return u, nil
	}

	switch kind {
	case KindNull:
		return NewNull(), pos, nil
	case KindBool:
		if pos >= len(buf) {
			return Value{}, 0, ErrInvalidColumns
		}
		b := buf[pos] != 0
		pos++
		return NewBool(b), pos, nil
	case KindInt, KindCounter, KindTimestamp:
		u, err := readUvarint()
		if err != nil {
			return Value{}, 0, err
		}
		i := varint.UnZigZag(u)
		switch kind {
		case KindCounter:
			return NewCounter(i), pos, nil
		case KindTimestamp:
			return NewTimestamp(i), pos, nil
		default:
			return NewInt(i), pos, nil
		}
	case KindUint:
		u, err := readUvarint()
		if err != nil {
			return Value{}, 0, err
		}
		return NewUint(u), pos, nil
	case KindFloat:
		if pos+8 > len(buf) {
			return Value{}, 0, ErrInvalidColumns
		}
		var bits uint64
		for i := 0; i < 8; i++ {
			bits = (bits << 8) | uint64(buf[pos+i])
		}
		pos += 8
		return NewFloat(math.Float64frombits(bits)), pos, nil
	case KindStr:
		l, err := readUvarint()
		if err != nil || pos+int(l) > len(buf) {
			return Value{}, 0, ErrInvalidColumns
		}
		s := string(buf[pos : pos+int(l)])
		pos += int(l)
		return NewStr(s), pos, nil
	case KindBytes:
		l, err := readUvarint()
		if err != nil || pos+int(l) > len(buf) {
			return Value{}, 0, ErrInvalidColumns
		}
		b := buf[pos : pos+int(l)]
		pos += int(l)
		return NewBytes(b), pos, nil
	case KindUnknown:
		code, err := readUvarint()
		if err != nil {
			return Value{}, 0, err
		}
		l, err := readUvarint()
		if err != nil || pos+int(l) > len(buf) {
			return Value{}, 0, ErrInvalidColumns
		}
		b := buf[pos : pos+int(l)]
		pos += int(l)
		return NewUnknown(code, b), pos, nil
	default:
		return Value{}, 0, ErrInvalidColumns
	}
}
