//go:build darwin || dragonfly || freebsd || linux || openbsd || netbsd || solaris

// Modifications (c) The Authors.

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

func pageSize() int {
	return os.Getpagesize()
}

func reservePages(n int) Result {
	size := n * pageSize()
	b, err := unix.Mmap(-1, 0, size, unix.PROT_NONE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return Result{Code: 1}
	}
	return Result{Data: b, Size: len(b)}
}

func commitPages(addr []byte, n int) int {
	size := n * pageSize()
	if size > len(addr) {
		size = len(addr)
	}
	if err := unix.Mprotect(addr[:size], unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return 1
	}
	return 0
}

func allocPages(n int) Result {
	size := n * pageSize()
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_ANON)
	if err != nil {
		return Result{Code: 1}
	}
	return Result{Data: b, Size: len(b)}
}

func unmap(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	if err := unix.Munmap(data); err != nil {
		return 1
	}
	return 0
}
