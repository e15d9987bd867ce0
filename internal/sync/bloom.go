package sync

import (
	"bytes"

	"github.com/willf/bloom"

	"weave/internal/change"
)

// bloomFalsePositiveRate tunes the per-peer change summary. 1% keeps
// the filter a few bytes per change while making a wasted round trip
// (a change the peer needs but the filter claims it has) rare; the
// explicit need list recovers from those.
const bloomFalsePositiveRate = 0.01

// Filter summarizes a set of change hashes so a peer can cheaply test
// "do they probably have this change". False positives are possible,
// false negatives are not.
type Filter struct {
	f *bloom.BloomFilter
}

// NewFilter builds a filter over the given hashes.
func NewFilter(hashes []change.Hash) *Filter {
	n := uint(len(hashes))
	if n == 0 {
		n = 1
	}
	f := bloom.NewWithEstimates(n, bloomFalsePositiveRate)
	for _, h := range hashes {
		f.Add(h[:])
	}
	return &Filter{f: f}
}

// Contains reports whether h is (probably) in the summarized set.
func (b *Filter) Contains(h change.Hash) bool {
	if b == nil || b.f == nil {
		return false
	}
	return b.f.Test(h[:])
}

// MarshalBinary renders the filter as its parameters followed by its
// bit vector, the serialized form sync messages carry.
func (b *Filter) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := b.f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalFilter parses a serialized filter.
func UnmarshalFilter(data []byte) (*Filter, error) {
	f := &bloom.BloomFilter{}
	if _, err := f.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return &Filter{f: f}, nil
}
