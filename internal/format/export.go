package format

import "weave/internal/change"

// EncodeChange renders one change as its raw canonical bytes, the form
// sync messages carry changes in (no chunk framing; the message has its
// own).
func EncodeChange(c *change.Change) []byte {
	return encodeChangeBody(c)
}

// DecodeChange parses raw canonical change bytes, verifying the content
// hash they produce.
func DecodeChange(data []byte) (*change.Change, error) {
	return decodeChangeBody(data)
}

// EncodeChangeChunk frames one change as a standalone Change chunk, the
// unit save_incremental appends to a previously saved blob.
func EncodeChangeChunk(c *change.Change) []byte {
	return encodeChunk(chunk{Type: ChunkChange, Body: encodeChangeBody(c)})
}
