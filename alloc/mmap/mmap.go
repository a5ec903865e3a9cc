// Package mmap implements the platform primitives consumed by the page and
// reserving-page allocators: a page-size query, a reserve-only map, a
// commit step, a combined reserve+commit, and an unmap. Grounded on the
// teacher's mmap_unix.go/mmap_windows.go (github.com/cznic/memory), ported
// from raw syscall.* calls to golang.org/x/sys/unix and
// golang.org/x/sys/windows for portability across the BSDs this module
// targets.
package mmap

// Result is returned by every primitive in this package. Code is zero on
// success, matching spec.md §6.4 ("Each returns an error code where 0 means
// success").
type Result struct {
	Data []byte
	Size int
	Code int
}

// PageSize returns the platform's page size in bytes, or 0 if it could not
// be determined.
func PageSize() int {
	return pageSize()
}

// ReservePages reserves n pages of virtual address space without committing
// any backing memory to them. On unix, accessing the returned range before
// CommitPages will fault; on windows the view is already readable and
// writable.
func ReservePages(n int) Result {
	return reservePages(n)
}

// CommitPages commits n pages of a previously reserved range starting at
// addr, making them readable and writable.
func CommitPages(addr []byte, n int) int {
	return commitPages(addr, n)
}

// AllocPages reserves and commits n pages in one step; this is what the
// plain page allocator (C3) uses, since it has no notion of a separate
// reservation.
func AllocPages(n int) Result {
	return allocPages(n)
}

// Unmap releases the memory spanned by data.
// Freeing a sub-range of a prior reservation/commit is undefined on some
// platforms, so callers must pass the exact range they were given.
func Unmap(data []byte) int {
	return unmap(data)
}
