//go:build unix || linux || darwin || freebsd || openbsd || netbsd

package mmap

import (
	"golang.org/x/sys/unix"
)

func osMap(fd uintptr, offset int64, size int, mode Mode) ([]byte, func([]byte) error, error) {
	prot := unix.PROT_READ
	if mode == ReadWrite {
		prot |= unix.PROT_WRITE
	}

	data, err := unix.Mmap(int(fd), offset, size, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}

	return data, unix.Munmap, nil
}

func osSync(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Msync(data, unix.MS_SYNC)
}

func osPageSize() int {
	return unix.Getpagesize()
}

func osAdvise(data []byte, pattern AccessPattern) error {
	if len(data) == 0 {
		return nil
	}

	var advice int
	switch pattern {
	case AccessSequential:
		advice = unix.MADV_SEQUENTIAL
	case AccessRandom:
		advice = unix.MADV_RANDOM
	case AccessWillNeed:
		advice = unix.MADV_WILLNEED
	case AccessDontNeed:
		advice = unix.MADV_DONTNEED
	default:
		advice = unix.MADV_NORMAL
	}

	// On Linux, madvise requires page-aligned addresses.
	// If the slice isn't page-aligned, we silently succeed since
	// the hint is advisory and non-critical.
	err := unix.Madvise(data, advice)
	if err == unix.EINVAL {
		return nil
	}
	return err
}
