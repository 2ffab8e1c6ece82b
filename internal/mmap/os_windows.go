//go:build windows

package mmap

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// allocationGranularity is the alignment MapViewOfFile requires for offsets.
const allocationGranularity = 65536

func osMap(fd uintptr, offset int64, size int, mode Mode) ([]byte, func([]byte) error, error) {
	protect := uint32(windows.PAGE_READONLY)
	access := uint32(windows.FILE_MAP_READ)
	if mode == ReadWrite {
		protect = windows.PAGE_READWRITE
		access = windows.FILE_MAP_WRITE
	}

	end := uint64(offset) + uint64(size)
	h, err := windows.CreateFileMapping(windows.Handle(fd), nil, protect, uint32(end>>32), uint32(end), nil)
	if err != nil {
		return nil, nil, err
	}
	// The view holds its own reference to the mapping object.
	defer windows.CloseHandle(h)

	addr, err := windows.MapViewOfFile(h, access, uint32(uint64(offset)>>32), uint32(offset), uintptr(size))
	if err != nil {
		return nil, nil, err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)

	return data, func(b []byte) error {
		return windows.UnmapViewOfFile(addr)
	}, nil
}

func osSync(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return windows.FlushViewOfFile(uintptr(unsafe.Pointer(&data[0])), uintptr(len(data)))
}

func osPageSize() int {
	return allocationGranularity
}

func osAdvise(data []byte, pattern AccessPattern) error {
	// Windows does not have a direct equivalent to madvise.
	_ = data
	_ = pattern
	return nil
}
