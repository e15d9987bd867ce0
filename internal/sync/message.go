package sync

import (
	"weave/internal/change"
	"weave/internal/varint"
	"weave/pkg/types"
)

// Version tags a sync message's wire layout.
type Version byte

const (
	V1 Version = 1
	V2 Version = 2
)

// Capability is a feature flag a peer advertises. Capabilities are
// appended after the V1 payload, where a V1-only decoder ignores them
// as trailing bytes (required compatibility behavior).
type Capability byte

const (
	// CapMessageV2 advertises that the peer accepts V2 messages,
	// including the whole-document-snapshot form.
	CapMessageV2 Capability = 1
)

// Have summarizes one slice of our history for the peer: the heads the
// summary starts from and a bloom filter of every change since.
type Have struct {
	LastSync []change.Hash
	Bloom    *Filter
}

// Message is one half-step of the sync exchange. Changes carries raw
// canonical change bytes; WholeDoc, when non-nil (V2 only), replaces it
// with a full document blob for a peer starting from nothing.
type Message struct {
	Version               Version
	Heads                 []change.Hash
	Need                  []change.Hash
	Have                  []Have
	Changes               [][]byte
	WholeDoc              []byte
	SupportedCapabilities []Capability
}

const wholeDocTag = 1

// Encode renders the message. The capability advertisement is always
// appended last, even on V1 messages, where a V1 decoder treats it as
// ignorable trailing bytes.
func (m *Message) Encode() []byte {
	var out []byte
	buf := make([]byte, 9)
	putUvarint := func(v uint64) {
		n := varint.PutUvarint(buf, v)
		out = append(out, buf[:n]...)
	}
	putHashes := func(hs []change.Hash) {
		putUvarint(uint64(len(hs)))
		for _, h := range hs {
			out = append(out, h[:]...)
		}
	}

	out = append(out, byte(m.Version))
	putHashes(m.Heads)
	putHashes(m.Need)

	putUvarint(uint64(len(m.Have)))
	for _, h := range m.Have {
		putHashes(h.LastSync)
		var bloomBytes []byte
		if h.Bloom != nil {
			bloomBytes, _ = h.Bloom.MarshalBinary()
		}
		putUvarint(uint64(len(bloomBytes)))
		out = append(out, bloomBytes...)
	}

	if m.Version >= V2 {
		if m.WholeDoc != nil {
			out = append(out, wholeDocTag)
			putUvarint(uint64(len(m.WholeDoc)))
			out = append(out, m.WholeDoc...)
		} else {
			out = append(out, 0)
			putChanges(&out, putUvarint, m.Changes)
		}
	} else {
		putChanges(&out, putUvarint, m.Changes)
	}

	putUvarint(uint64(len(m.SupportedCapabilities)))
	for _, c := range m.SupportedCapabilities {
		out = append(out, byte(c))
	}

	return out
}

func putChanges(out *[]byte, putUvarint func(uint64), changes [][]byte) {
	putUvarint(uint64(len(changes)))
	for _, c := range changes {
		putUvarint(uint64(len(c)))
		*out = append(*out, c...)
	}
}

// DecodeMessage parses a sync message. Unknown trailing bytes after a
// V1 payload are ignored; anything structurally malformed before the
// payload ends is a protocol violation and reported.
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) < 1 {
		return nil, types.ErrLoadChange
	}
	m := &Message{Version: Version(data[0])}
	if m.Version != V1 && m.Version != V2 {
		return nil, types.ErrLoadChange
	}
	pos := 1

	readUvar := func() (uint64, error) {
		v, n := varint.Uvarint(data[pos:])
		if n == 0 {
			return 0, types.ErrLoadChange
		}
		pos += n
		return v, nil
	}
	readHashes := func() ([]change.Hash, error) {
		n, err := readUvar()
		if err != nil {
			return nil, err
		}
		out := make([]change.Hash, 0, n)
		for i := uint64(0); i < n; i++ {
			if pos+32 > len(data) {
				return nil, types.ErrLoadChange
			}
			var h change.Hash
			copy(h[:], data[pos:pos+32])
			pos += 32
			out = append(out, h)
		}
		return out, nil
	}
	readBytes := func() ([]byte, error) {
		l, err := readUvar()
		if err != nil {
			return nil, err
		}
		if pos+int(l) > len(data) {
			return nil, types.ErrLoadChange
		}
		out := make([]byte, l)
		copy(out, data[pos:pos+int(l)])
		pos += int(l)
		return out, nil
	}

	var err error
	if m.Heads, err = readHashes(); err != nil {
		return nil, err
	}
	if m.Need, err = readHashes(); err != nil {
		return nil, err
	}

	haveCount, err := readUvar()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < haveCount; i++ {
		var h Have
		if h.LastSync, err = readHashes(); err != nil {
			return nil, err
		}
		bloomBytes, err := readBytes()
		if err != nil {
			return nil, err
		}
		if len(bloomBytes) > 0 {
			if h.Bloom, err = UnmarshalFilter(bloomBytes); err != nil {
				return nil, types.ErrLoadChange
			}
		}
		m.Have = append(m.Have, h)
	}

	if m.Version >= V2 {
		if pos >= len(data) {
			return nil, types.ErrLoadChange
		}
		tag := data[pos]
		pos++
		if tag == wholeDocTag {
			if m.WholeDoc, err = readBytes(); err != nil {
				return nil, err
			}
		} else {
			if m.Changes, err = readChanges(readUvar, readBytes); err != nil {
				return nil, err
			}
		}
	} else {
		if m.Changes, err = readChanges(readUvar, readBytes); err != nil {
			return nil, err
		}
	}

	// Capability advertisement, if any. A V1 sender stops here; a V2
	// advertisement appended by a newer peer is parsed when intact and
	// ignored when it is not, never an error.
	if pos < len(data) {
		if capCount, err := readUvar(); err == nil && pos+int(capCount) <= len(data) {
			for i := uint64(0); i < capCount; i++ {
				m.SupportedCapabilities = append(m.SupportedCapabilities, Capability(data[pos]))
				pos++
			}
		}
	}

	return m, nil
}

func readChanges(readUvar func() (uint64, error), readBytes func() ([]byte, error)) ([][]byte, error) {
	n, err := readUvar()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		c, err := readBytes()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
