package format

import (
	"weave/internal/change"
	"weave/internal/opset"
)

// mappedFile is a read-only memory-mapped view of a saved document
// blob. Platform implementations live in mmap_unix.go and
// mmap_windows.go.
type mappedFile struct {
	file interface{} // *os.File on Unix, windows handles on Windows
	data []byte
	size int64
}

// Size returns the mapped file's length in bytes.
func (m *mappedFile) Size() int64 {
	return m.size
}

// Data returns the full mapped byte range. The slice aliases the
// mapping and is only valid until Close.
func (m *mappedFile) Data() []byte {
	return m.data
}

// LoadFile memory-maps path and parses it as a document blob. The
// mapping is released before returning: Load copies what it keeps
// (chunk bodies, decoded ops), so nothing retains mapped memory.
func LoadFile(path string, cfg LoadConfig, applyFn ApplyFunc) (os *opset.OpSet, g *change.Graph, err error) {
	m, err := openMapped(path)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return Load(m.Data(), cfg, applyFn)
}
