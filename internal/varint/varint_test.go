package varint

import "testing"

func TestUvarintRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 127, 128, 16383, 16384,
		1 << 20, 1 << 27, 1 << 34, 1 << 41, 1 << 48, 1 << 55,
		^uint64(0),
	}

	buf := make([]byte, 9)
	for _, v := range values {
		n := PutUvarint(buf, v)
		got, m := Uvarint(buf[:n])
		if m != n {
			t.Fatalf("Uvarint(%d) consumed %d bytes, want %d", v, m, n)
		}
		if got != v {
			t.Fatalf("round trip of %d produced %d", v, got)
		}
	}
}

func TestLenMatchesPutUvarint(t *testing.T) {
	buf := make([]byte, 9)
	for _, v := range []uint64{0, 1, 300, 1 << 30, ^uint64(0)} {
		n := PutUvarint(buf, v)
		if Len(v) != n {
			t.Errorf("Len(%d) = %d, PutUvarint wrote %d", v, Len(v), n)
		}
	}
}

func TestVarintSignedRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 2, -2, 1 << 40, -(1 << 40)}
	buf := make([]byte, 9)
	for _, v := range values {
		n := PutVarint(buf, v)
		got, m := Varint(buf[:n])
		if m != n || got != v {
			t.Fatalf("signed round trip of %d produced %d (consumed %d, wrote %d)", v, got, m, n)
		}
	}
}

func TestUvarintIncomplete(t *testing.T) {
	buf := []byte{0x80, 0x80}
	v, n := Uvarint(buf)
	if n != 0 || v != 0 {
		t.Errorf("expected incomplete decode to report 0 bytes, got v=%d n=%d", v, n)
	}
}
