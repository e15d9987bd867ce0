package sync

import (
	"testing"

	"weave/internal/change"
	"weave/pkg/types"
)

func mkHash(b byte) change.Hash {
	var h change.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func TestFilterContainsAddedHashes(t *testing.T) {
	hashes := []change.Hash{mkHash(1), mkHash(2), mkHash(3)}
	f := NewFilter(hashes)
	for _, h := range hashes {
		if !f.Contains(h) {
			t.Fatalf("filter should contain %s", h)
		}
	}
}

func TestFilterRoundTrip(t *testing.T) {
	hashes := []change.Hash{mkHash(7), mkHash(8)}
	f := NewFilter(hashes)

	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	back, err := UnmarshalFilter(data)
	if err != nil {
		t.Fatalf("UnmarshalFilter: %v", err)
	}
	for _, h := range hashes {
		if !back.Contains(h) {
			t.Fatalf("round-tripped filter lost %s", h)
		}
	}
}

func TestEmptyFilterContainsNothing(t *testing.T) {
	f := NewFilter(nil)
	if f.Contains(mkHash(9)) {
		t.Fatalf("empty filter must not claim membership")
	}
	var nilFilter *Filter
	if nilFilter.Contains(mkHash(9)) {
		t.Fatalf("nil filter must not claim membership")
	}
}

func TestMessageRoundTripV1(t *testing.T) {
	m := &Message{
		Version: V1,
		Heads:   []change.Hash{mkHash(1), mkHash(2)},
		Need:    []change.Hash{mkHash(3)},
		Have: []Have{{
			LastSync: []change.Hash{mkHash(4)},
			Bloom:    NewFilter([]change.Hash{mkHash(5)}),
		}},
		Changes:               [][]byte{{0xAA, 0xBB}, {0xCC}},
		SupportedCapabilities: []Capability{CapMessageV2},
	}

	back, err := DecodeMessage(m.Encode())
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if back.Version != V1 || len(back.Heads) != 2 || len(back.Need) != 1 {
		t.Fatalf("header fields lost: %+v", back)
	}
	if back.Heads[0] != mkHash(1) || back.Need[0] != mkHash(3) {
		t.Fatalf("hash fields corrupted")
	}
	if len(back.Have) != 1 || !back.Have[0].Bloom.Contains(mkHash(5)) {
		t.Fatalf("have/bloom lost")
	}
	if len(back.Changes) != 2 || string(back.Changes[0]) != "\xaa\xbb" {
		t.Fatalf("changes lost: %v", back.Changes)
	}
	// The V2 capability advertisement rides after the V1 payload and
	// must survive decoding.
	if len(back.SupportedCapabilities) != 1 || back.SupportedCapabilities[0] != CapMessageV2 {
		t.Fatalf("capabilities lost: %v", back.SupportedCapabilities)
	}
}

func TestMessageRoundTripV2WholeDoc(t *testing.T) {
	blob := []byte{1, 2, 3, 4, 5}
	m := &Message{
		Version:               V2,
		Heads:                 []change.Hash{mkHash(1)},
		Have:                  []Have{{}},
		WholeDoc:              blob,
		SupportedCapabilities: []Capability{CapMessageV2},
	}

	back, err := DecodeMessage(m.Encode())
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if back.WholeDoc == nil || string(back.WholeDoc) != string(blob) {
		t.Fatalf("whole-doc payload lost: %v", back.WholeDoc)
	}
	if back.Changes != nil {
		t.Fatalf("whole-doc message must not also carry changes")
	}
}

func TestMessageTrailingGarbageTolerated(t *testing.T) {
	m := &Message{Version: V1, Heads: []change.Hash{mkHash(1)}}
	data := m.Encode()
	// A newer peer appending bytes this version does not understand
	// must not break decoding (spec-mandated forward compatibility).
	data = append(data, 0xFF, 0xFE, 0xFD)

	back, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("trailing bytes must be ignored, got %v", err)
	}
	if len(back.Heads) != 1 {
		t.Fatalf("payload corrupted by trailing bytes")
	}
}

func TestMessageMalformedRejected(t *testing.T) {
	if _, err := DecodeMessage(nil); err == nil {
		t.Fatalf("empty message must be rejected")
	}
	if _, err := DecodeMessage([]byte{99}); err == nil {
		t.Fatalf("unknown version must be rejected")
	}
	// Truncated mid-heads.
	m := &Message{Version: V1, Heads: []change.Hash{mkHash(1)}}
	data := m.Encode()
	if _, err := DecodeMessage(data[:10]); err == nil {
		t.Fatalf("truncated message must be rejected")
	}
	if _, err := DecodeMessage(data[:10]); err != types.ErrLoadChange {
		t.Fatalf("expected typed decode error")
	}
}

func TestStateCapabilities(t *testing.T) {
	s := NewState()
	if s.PeerSupportsV2() {
		t.Fatalf("fresh state must assume a V1 peer")
	}
	s.TheirCapabilities = []Capability{CapMessageV2}
	if !s.PeerSupportsV2() {
		t.Fatalf("advertised capability not detected")
	}
}
