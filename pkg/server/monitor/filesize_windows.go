//go:build windows

package monitor

import (
	"os"
	"syscall"
	"unsafe"
)

var (
	kernel32          = syscall.NewLazyDLL("kernel32.dll")
	getCompressedSize = kernel32.NewProc("GetCompressedFileSizeW")
)

// allocatedSize asks GetCompressedFileSizeW for the on-disk size, so sparse
// and compressed value-log files are not overcounted.
func allocatedSize(path string, info os.FileInfo) (int64, error) {
	pathPtr, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return info.Size(), nil
	}

	var high uint32
	low, _, _ := getCompressedSize.Call(
		uintptr(unsafe.Pointer(pathPtr)),
		uintptr(unsafe.Pointer(&high)),
	)

	// INVALID_FILE_SIZE
	if low == 0xFFFFFFFF {
		return info.Size(), nil
	}
	return int64(high)<<32 + int64(low), nil
}
