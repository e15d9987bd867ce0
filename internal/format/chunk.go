// Package format implements the chunked binary file layout: a sequence
// of magic/checksum/type/length-framed chunks holding a compressed
// full-document snapshot plus any changes not yet folded into it.
package format

import (
	"golang.org/x/crypto/blake2b"

	"weave/internal/varint"
	"weave/pkg/types"
)

// Magic is the fixed 4-byte constant every document blob begins with.
var Magic = [4]byte{'w', 'v', '1', 0}

// ChunkType tags a chunk's body.
type ChunkType byte

const (
	ChunkDocument ChunkType = iota
	ChunkChange
	ChunkCompressedChange
	ChunkBundle
)

// chunk is one framed unit on the wire: magic, a checksum over
// type||length||body, the type tag, a varint body length, then body.
type chunk struct {
	Type ChunkType
	Body []byte
}

func checksum(typ ChunkType, body []byte) [4]byte {
	var header []byte
	header = append(header, byte(typ))
	lenBuf := make([]byte, 9)
	n := varint.PutUvarint(lenBuf, uint64(len(body)))
	header = append(header, lenBuf[:n]...)
	header = append(header, body...)
	sum := blake2b.Sum256(header)
	var out [4]byte
	copy(out[:], sum[:4])
	return out
}

func encodeChunk(c chunk) []byte {
	var out []byte
	out = append(out, Magic[:]...)
	sum := checksum(c.Type, c.Body)
	out = append(out, sum[:]...)
	out = append(out, byte(c.Type))
	lenBuf := make([]byte, 9)
	n := varint.PutUvarint(lenBuf, uint64(len(c.Body)))
	out = append(out, lenBuf[:n]...)
	out = append(out, c.Body...)
	return out
}

// decodeChunk reads one chunk starting at data[0], returning it plus the
// number of bytes consumed. verify=false skips the checksum comparison
// (LoadConfig's DontCheck mode) but still enforces framing.
func decodeChunk(data []byte, verify bool) (chunk, int, error) {
	if len(data) < 4+4+1 {
		return chunk{}, 0, types.ErrLoadChange
	}
	if [4]byte(data[:4]) != Magic {
		return chunk{}, 0, types.ErrInvalidHash
	}
	var wantSum [4]byte
	copy(wantSum[:], data[4:8])
	typ := ChunkType(data[8])
	pos := 9

	length, n := varint.Uvarint(data[pos:])
	if n == 0 {
		return chunk{}, 0, types.ErrLoadChange
	}
	pos += n
	if pos+int(length) > len(data) {
		return chunk{}, 0, types.ErrLoadChange
	}
	body := data[pos : pos+int(length)]
	pos += int(length)

	if verify {
		if gotSum := checksum(typ, body); gotSum != wantSum {
			return chunk{}, 0, types.ErrBadChecksum
		}
	}

	bodyCopy := make([]byte, len(body))
	copy(bodyCopy, body)
	return chunk{Type: typ, Body: bodyCopy}, pos, nil
}

// decodeAllChunks parses every chunk in data in sequence. If strict is
// false, a chunk that fails to decode is skipped and parsing resumes at
// the next byte that looks like a magic marker; if none is found,
// parsing stops and whatever chunks decoded so far are returned.
func decodeAllChunks(data []byte, strict, verify bool) ([]chunk, error) {
	var out []chunk
	pos := 0
	for pos < len(data) {
		c, n, err := decodeChunk(data[pos:], verify)
		if err != nil {
			if strict {
				return out, err
			}
			next := findNextMagic(data[pos+1:])
			if next < 0 {
				return out, nil
			}
			pos += 1 + next
			continue
		}
		out = append(out, c)
		pos += n
	}
	return out, nil
}

func findNextMagic(data []byte) int {
	for i := 0; i+4 <= len(data); i++ {
		if [4]byte(data[i:i+4]) == Magic {
			return i
		}
	}
	return -1
}
