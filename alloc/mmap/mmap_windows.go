//go:build windows

// Modifications (c) The Authors.

package mmap

import (
	"os"
	"reflect"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	handleMu  sync.Mutex
	handleMap = map[uintptr]windows.Handle{}
)

func pageSize() int {
	return os.Getpagesize()
}

func mapView(size int, protect uint32, access uint32) Result {
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, protect, uint32(uint64(size)>>32), uint32(size), nil)
	if h == 0 || err != nil {
		return Result{Code: 1}
	}

	addr, err := windows.MapViewOfFile(h, access, 0, 0, uintptr(size))
	if addr == 0 || err != nil {
		windows.CloseHandle(h)
		return Result{Code: 1}
	}

	handleMu.Lock()
	handleMap[addr] = h
	handleMu.Unlock()

	var b []byte
	sh := (*reflect.SliceHeader)(unsafe.Pointer(&b))
	sh.Data = addr
	sh.Len = size
	sh.Cap = size
	return Result{Data: b, Size: size}
}

func reservePages(n int) Result {
	return mapView(n*pageSize(), windows.PAGE_READWRITE, windows.FILE_MAP_WRITE)
}

func commitPages(addr []byte, n int) int {
	_ = addr
	_ = n
	// Views mapped via MapViewOfFile are already committed; nothing further
	// to do here. Kept as a distinct step to match the unix side's shape.
	return 0
}

func allocPages(n int) Result {
	return mapView(n*pageSize(), windows.PAGE_READWRITE, windows.FILE_MAP_WRITE)
}

func unmap(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	addr := uintptr(unsafe.Pointer(&data[0]))
	if err := windows.UnmapViewOfFile(addr); err != nil {
		return 1
	}

	handleMu.Lock()
	h, ok := handleMap[addr]
	delete(handleMap, addr)
	handleMu.Unlock()
	if !ok {
		return 1
	}
	if err := windows.CloseHandle(h); err != nil {
		return 1
	}
	return 0
}
