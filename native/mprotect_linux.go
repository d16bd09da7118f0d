//go:build linux && (amd64 || arm64)

package native

import (
	"syscall"
	"unsafe"
)

const (
	mprotectRX  = syscall.PROT_READ | syscall.PROT_EXEC
	mprotectRWX = syscall.PROT_READ | syscall.PROT_WRITE | syscall.PROT_EXEC
)

// mprotect changes the protection of every page buf touches.
func mprotect(buf []byte, flags int) error {
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))

	pageSize := syscall.Getpagesize()

	// Round address down to page boundary.
	// Example: addr=4196 with pageSize=4096 becomes 4096.
	pageStart := addr &^ (uintptr(pageSize) - 1)

	// Round up to cover complete pages.
	regionSize := (int(addr-pageStart) + len(buf) + pageSize - 1) &^ (pageSize - 1)

	region := unsafe.Slice((*byte)(unsafe.Pointer(pageStart)), regionSize)
	return syscall.Mprotect(region, flags)
}

// patch runs write with buf writable, then flushes the instruction cache.
func patch(buf []byte, write func() error) error {
	if err := mprotect(buf, mprotectRWX); err != nil {
		return err
	}
	defer mprotect(buf, mprotectRX)

	if err := write(); err != nil {
		return err
	}
	cacheflush(buf)
	return nil
}
