//go:build windows

package process_windows

import (
	"errors"
	"fmt"
	"unsafe"

	"goinject/process"

	"golang.org/x/sys/windows"
)

var (
	modkernel32               = windows.NewLazySystemDLL("kernel32.dll")
	procVirtualAllocEx        = modkernel32.NewProc("VirtualAllocEx")
	procVirtualFreeEx         = modkernel32.NewProc("VirtualFreeEx")
	procVirtualProtectEx      = modkernel32.NewProc("VirtualProtectEx")
	procFlushInstructionCache = modkernel32.NewProc("FlushInstructionCache")
	procCreateRemoteThread    = modkernel32.NewProc("CreateRemoteThread")
	procGetExitCodeThread     = modkernel32.NewProc("GetExitCodeThread")
	procSuspendThread         = modkernel32.NewProc("SuspendThread")
	procLoadLibraryW          = modkernel32.NewProc("LoadLibraryW")
)

const (
	// PROCESS_INJECT_ACCESS covers everything injection, remote calls and queries need
	PROCESS_INJECT_ACCESS = windows.PROCESS_CREATE_THREAD |
		windows.PROCESS_QUERY_INFORMATION |
		windows.PROCESS_VM_OPERATION |
		windows.PROCESS_VM_WRITE |
		windows.PROCESS_VM_READ

	// PROCESS_QUERY_ACCESS is the fallback when the full mask is denied
	PROCESS_QUERY_ACCESS = windows.PROCESS_QUERY_LIMITED_INFORMATION

	STILL_ACTIVE  = 259
	WAIT_OBJECT_0 = 0x00000000
	WAIT_TIMEOUT  = 0x00000102
	INFINITE      = 0xFFFFFFFF
	SUSPEND_ERROR = 0xFFFFFFFF
)

func virtualAllocEx(h windows.Handle, size uintptr, protect uint32) (uintptr, error) {
	addr, _, err := procVirtualAllocEx.Call(
		uintptr(h),
		0,
		size,
		uintptr(windows.MEM_COMMIT|windows.MEM_RESERVE),
		uintptr(protect),
	)
	if addr == 0 {
		return 0, fmt.Errorf("VirtualAllocEx failed: %w", err)
	}
	return addr, nil
}

func virtualFreeEx(h windows.Handle, addr uintptr) error {
	ret, _, err := procVirtualFreeEx.Call(uintptr(h), addr, 0, uintptr(windows.MEM_RELEASE))
	if ret == 0 {
		return fmt.Errorf("VirtualFreeEx failed: %w", err)
	}
	return nil
}

func virtualProtectEx(h windows.Handle, addr, size uintptr, protect uint32) (uint32, error) {
	var old uint32
	ret, _, err := procVirtualProtectEx.Call(
		uintptr(h),
		addr,
		size,
		uintptr(protect),
		uintptr(unsafe.Pointer(&old)),
	)
	if ret == 0 {
		return 0, fmt.Errorf("VirtualProtectEx failed: %w", err)
	}
	return old, nil
}

func flushInstructionCache(h windows.Handle, addr, size uintptr) error {
	ret, _, err := procFlushInstructionCache.Call(uintptr(h), addr, size)
	if ret == 0 {
		return fmt.Errorf("FlushInstructionCache failed: %w", err)
	}
	return nil
}

func createRemoteThread(h windows.Handle, start, param uintptr) (windows.Handle, uint32, error) {
	var tid uint32
	th, _, err := procCreateRemoteThread.Call(
		uintptr(h),
		0,
		0,
		start,
		param,
		0,
		uintptr(unsafe.Pointer(&tid)),
	)
	if th == 0 {
		return 0, 0, fmt.Errorf("CreateRemoteThread failed: %w", err)
	}
	return windows.Handle(th), tid, nil
}

func getExitCodeThread(th windows.Handle) (uint32, error) {
	var code uint32
	ret, _, err := procGetExitCodeThread.Call(uintptr(th), uintptr(unsafe.Pointer(&code)))
	if ret == 0 {
		return 0, fmt.Errorf("GetExitCodeThread failed: %w", err)
	}
	return code, nil
}

// suspendThread returns the previous suspend count
func suspendThread(th windows.Handle) (uint32, error) {
	ret, _, err := procSuspendThread.Call(uintptr(th))
	if uint32(ret) == SUSPEND_ERROR {
		return 0, fmt.Errorf("SuspendThread failed: %w", err)
	}
	return uint32(ret), nil
}

// classifyOpenError maps OpenProcess/OpenThread failures onto the process sentinels
func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, windows.ERROR_ACCESS_DENIED):
		return fmt.Errorf("%w: %v", process.ErrPermissionDenied, err)
	case errors.Is(err, windows.ERROR_INVALID_PARAMETER):
		// OpenProcess reports an unknown pid as an invalid parameter
		return fmt.Errorf("%w: %v", process.ErrNotFound, err)
	default:
		return err
	}
}
