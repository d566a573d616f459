//go:build linux

package process_linux

import (
	"fmt"
	"unsafe"

	"goinject/process"
	"goinject/process/memory_map"

	"golang.org/x/sys/unix"
)

// process_vm_writev uses the process_vm_writev syscall to write memory to another process
func process_vm_writev(pid process.ProcessID, remoteAddr process.ProcessMemoryAddress, data []byte) (int, error) {
	localIov := unix.Iovec{Base: &data[0]}
	localIov.SetLen(len(data))

	remoteIov := unix.RemoteIovec{
		Base: uintptr(remoteAddr),
		Len:  len(data),
	}

	n, _, errno := unix.Syscall6(
		unix.SYS_PROCESS_VM_WRITEV,
		uintptr(pid),
		uintptr(unsafe.Pointer(&localIov)),
		1,
		uintptr(unsafe.Pointer(&remoteIov)),
		1,
		0,
	)
	if errno != 0 {
		return 0, classifyErrno("process_vm_writev", errno)
	}
	return int(n), nil
}

// WriteMemory writes data to the process memory at the specified address.
// The target region must be mapped writable; read-only code is never patched.
func (p *LinuxProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return process.ErrProcessNotOpen
	}
	pid := p.pid
	mm, err := p.memoryMapLocked()
	p.mu.Unlock()
	if err != nil {
		return err
	}

	region := memory_map.FindRegion(uint64(addr), mm)
	if region == nil {
		return fmt.Errorf("%w: %s", process.ErrAddressNotMapped, addr.ToString())
	}
	if !region.IsWritable() {
		return fmt.Errorf("%w: %s is not writable", process.ErrPermissionDenied, addr.ToString())
	}

	// Create a copy of the data to avoid potential modification during the write
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	written, err := process_vm_writev(pid, addr, dataCopy)
	if err != nil {
		return fmt.Errorf("failed to write process memory: %w", err)
	}
	if written != len(data) {
		return fmt.Errorf("only wrote %d of %d bytes", written, len(data))
	}
	return nil
}
