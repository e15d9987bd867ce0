//go:build windows

package format

import (
	"errors"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// mmapHandles stores the Windows-specific handles behind a mapping.
type mmapHandles struct {
	file      *os.File
	mapHandle windows.Handle
}

// openMapped maps path read-only.
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

	mapHandle, err := windows.CreateFileMapping(
		windows.Handle(f.Fd()),
		nil,
		windows.PAGE_READONLY,
		uint32(size>>32),
		uint32(size&0xFFFFFFFF),
		nil,
	)
	if err != nil {
		f.Close()
		return nil, err
	}

	addr, err := windows.MapViewOfFile(
		mapHandle,
		windows.FILE_MAP_READ,
		0, 0,
		uintptr(size),
	)
	if err != nil {
		windows.CloseHandle(mapHandle)
		f.Close()
		return nil, err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)

	return &mappedFile{
		file: &mmapHandles{file: f, mapHandle: mapHandle},
		data: data,
		size: size,
	}, nil
}

// Close unmaps the view and releases both handles.
func (m *mappedFile) Close() error {
	var firstErr error

	if m.data != nil {
		addr := uintptr(unsafe.Pointer(&m.data[0]))
		if err := windows.UnmapViewOfFile(addr); err != nil {
			firstErr = err
		}
		m.data = nil
	}

	if m.file != nil {
		h := m.file.(*mmapHandles)
		if err := windows.CloseHandle(h.mapHandle); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := h.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.file = nil
	}

	return firstErr
}
