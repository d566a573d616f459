//go:build windows

package process_windows

import (
	"fmt"

	"goinject/process"
	"goinject/process/memory_map"

	"golang.org/x/sys/windows"
)

// remoteRegion is a block of memory this package allocated inside a target.
// It is freed on every path except a remote thread timeout, where it is leaked
// because the thread may still be using it.
type remoteRegion struct {
	memory_map.MemoryMapItem
	process windows.Handle
	freed   bool
}

// allocRemoteRegion commits size bytes of read/write memory in h
func allocRemoteRegion(h windows.Handle, size int) (*remoteRegion, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d", process.ErrAllocationFailure, size)
	}
	addr, err := virtualAllocEx(h, uintptr(size), memory_map.PermsToProtect(memory_map.PermsReadWrite))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", process.ErrAllocationFailure, err)
	}
	return &remoteRegion{
		MemoryMapItem: memory_map.MemoryMapItem{
			Address: uint64(addr),
			Size:    uint(size),
			Perms:   memory_map.PermsReadWrite,
		},
		process: h,
	}, nil
}

// allocRemoteData allocates a region sized for data and copies data into it
func allocRemoteData(h windows.Handle, data []byte) (*remoteRegion, error) {
	r, err := allocRemoteRegion(h, len(data))
	if err != nil {
		return nil, err
	}
	if err := r.write(data); err != nil {
		r.free()
		return nil, err
	}
	return r, nil
}

// allocRemoteCode allocates a region for code, copies it in and then makes it
// executable and read-only. The region is never writable and executable at once.
func allocRemoteCode(h windows.Handle, code []byte) (*remoteRegion, error) {
	r, err := allocRemoteData(h, code)
	if err != nil {
		return nil, err
	}
	if err := r.makeExecutable(); err != nil {
		r.free()
		return nil, err
	}
	return r, nil
}

func (r *remoteRegion) Addr() uintptr {
	return uintptr(r.Address)
}

func (r *remoteRegion) write(data []byte) error {
	if len(data) > int(r.Size) {
		return fmt.Errorf("%w: %d bytes do not fit region of %d", process.ErrAllocationFailure, len(data), r.Size)
	}
	var written uintptr
	err := windows.WriteProcessMemory(r.process, r.Addr(), &data[0], uintptr(len(data)), &written)
	if err != nil {
		return fmt.Errorf("%w: WriteProcessMemory at %s: %v", process.ErrAllocationFailure, r.String(), err)
	}
	if written != uintptr(len(data)) {
		return fmt.Errorf("%w: wrote %d of %d bytes at %s", process.ErrAllocationFailure, written, len(data), r.String())
	}
	return nil
}

func (r *remoteRegion) makeExecutable() error {
	if _, err := virtualProtectEx(r.process, r.Addr(), uintptr(r.Size), memory_map.PermsToProtect(memory_map.PermsReadExec)); err != nil {
		return fmt.Errorf("%w: %v", process.ErrAllocationFailure, err)
	}
	r.Perms = memory_map.PermsReadExec
	if err := flushInstructionCache(r.process, r.Addr(), uintptr(r.Size)); err != nil {
		return fmt.Errorf("%w: %v", process.ErrAllocationFailure, err)
	}
	return nil
}

// free releases the region, calling it twice is a no-op
func (r *remoteRegion) free() error {
	if r == nil || r.freed {
		return nil
	}
	r.freed = true
	return virtualFreeEx(r.process, r.Addr())
}

// releaseRegions frees regions unless the thread that used them timed out
func (p *WindowsProcess) releaseRegions(timedOut bool, regions ...*remoteRegion) {
	for _, r := range regions {
		if r == nil {
			continue
		}
		if timedOut {
			p.log.Warn("Leaking remote region ", r.String(), " after timeout")
			continue
		}
		if err := r.free(); err != nil {
			p.log.Warn("Failed to free remote region ", r.String(), ": ", err)
		}
	}
}
