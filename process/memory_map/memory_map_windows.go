//go:build windows

package memory_map

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32        = windows.NewLazySystemDLL("kernel32.dll")
	procVirtualQueryEx = modkernel32.NewProc("VirtualQueryEx")
)

const (
	memCommit = 0x1000
)

// WindowsMemoryMap implements MemoryMap for Windows
type WindowsMemoryMap struct{}

// NewWindowsMemoryMap creates a new WindowsMemoryMap instance
func NewWindowsMemoryMap() *WindowsMemoryMap {
	return &WindowsMemoryMap{}
}

// ReadMemoryMap opens pid for querying and walks its address space
func (w *WindowsMemoryMap) ReadMemoryMap(pid int) ([]MemoryMapItem, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return nil, fmt.Errorf("OpenProcess(%d): %w", pid, err)
	}
	defer windows.CloseHandle(h)

	return ReadHandleMemoryMap(h)
}

// ReadHandleMemoryMap walks the address space behind h with VirtualQueryEx and returns
// the committed regions. h needs PROCESS_QUERY_INFORMATION.
func ReadHandleMemoryMap(h windows.Handle) ([]MemoryMapItem, error) {
	var memoryMap []MemoryMapItem

	var addr uintptr
	for {
		mbi, err := QueryRegion(h, addr)
		if err != nil {
			// ERROR_INVALID_PARAMETER marks the end of the user address space
			if len(memoryMap) > 0 || addr > 0 {
				break
			}
			return nil, err
		}

		if mbi.State == memCommit {
			memoryMap = append(memoryMap, MemoryMapItem{
				Address: uint64(mbi.BaseAddress),
				Size:    uint(mbi.RegionSize),
				Perms:   ProtectToPerms(mbi.Protect),
			})
		}

		next := mbi.BaseAddress + uintptr(mbi.RegionSize)
		if next <= addr {
			break
		}
		addr = next
	}

	Sort(memoryMap)
	return memoryMap, nil
}

// QueryRegion returns the region information VirtualQueryEx reports for addr
func QueryRegion(h windows.Handle, addr uintptr) (MemoryBasicInformation, error) {
	var mbi MemoryBasicInformation
	ret, _, err := procVirtualQueryEx.Call(
		uintptr(h),
		addr,
		uintptr(unsafe.Pointer(&mbi)),
		unsafe.Sizeof(mbi),
	)
	if ret == 0 {
		return mbi, fmt.Errorf("VirtualQueryEx(%#x): %w", addr, err)
	}
	return mbi, nil
}
