//go:build linux

package process_linux

import (
	"errors"
	"fmt"
	"unsafe"

	"goinject/process"
	"goinject/process/memory_map"

	"golang.org/x/sys/unix"
)

// process_vm_readv uses the process_vm_readv syscall to read memory from another process
func process_vm_readv(pid process.ProcessID, remoteAddr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	localBuf := make([]byte, size)

	localIov := unix.Iovec{Base: &localBuf[0]}
	localIov.SetLen(int(size))

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  int(size),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_READV,
		uintptr(pid),
		uintptr(unsafe.Pointer(&localIov)),
		1,
		uintptr(unsafe.Pointer(&remoteIov)),
		1,
		0,
	)
	if errno != 0 {
		return nil, classifyErrno("process_vm_readv", errno)
	}
	if int(n) != int(size) {
		return localBuf[:n], fmt.Errorf("partial read: %d of %d bytes", n, size)
	}
	return localBuf, nil
}

// classifyErrno maps process_vm_* failures onto the process sentinels
func classifyErrno(op string, errno unix.Errno) error {
	switch {
	case errors.Is(errno, unix.ESRCH):
		return fmt.Errorf("%w: %s: %v", process.ErrNotFound, op, errno)
	case errors.Is(errno, unix.EPERM), errors.Is(errno, unix.EACCES):
		return fmt.Errorf("%w: %s: %v", process.ErrPermissionDenied, op, errno)
	case errors.Is(errno, unix.EFAULT):
		return fmt.Errorf("%w: %s: %v", process.ErrAddressNotMapped, op, errno)
	default:
		return fmt.Errorf("%s failed: %w", op, errno)
	}
}

// ReadMemory reads memory from the process at the specified address
func (p *LinuxProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}

	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return nil, process.ErrProcessNotOpen
	}
	pid := p.pid
	mm, err := p.memoryMapLocked()
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	region := memory_map.FindRegion(uint64(addr), mm)
	if region == nil || !region.IsReadable() {
		return nil, fmt.Errorf("%w: %s", process.ErrAddressNotMapped, addr.ToString())
	}

	data, err := process_vm_readv(pid, addr, size)
	if err != nil {
		return nil, fmt.Errorf("failed to read process memory: %w", err)
	}
	return data, nil
}
