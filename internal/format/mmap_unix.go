//go:build unix || darwin || linux || freebsd || openbsd || netbsd

package format

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// openMapped maps path read-only. An empty file cannot be mapped and is
// reported as an error; an empty document should never have been saved
// (a save always contains at least a Document chunk).
func openMapped(path string) (*mappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := stat.Size()
	if size == 0 {
		f.Close()
		return nil, errors.New("format: cannot map empty file")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size),
		unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &mappedFile{
		file: f,
		data: data,
		size: size,
	}, nil
}

// Close unmaps and closes the file.
func (m *mappedFile) Close() error {
	var firstErr error

	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil {
			firstErr = err
		}
		m.data = nil
	}

	if m.file != nil {
		f := m.file.(*os.File)
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.file = nil
	}

	return firstErr
}
