//go:build windows

package process_windows

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"goinject/process"
	"goinject/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

// WindowsProcess implements the process.Process interface for Windows systems
type WindowsProcess struct {
	pid    process.ProcessID
	handle windows.Handle
	access uint32
	opts   process.Options
	log    *logger.Logger
	mu     sync.Mutex
}

func notOpenLogger() *logger.Logger {
	return logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))
}

// New creates a new WindowsProcess instance
func New(opts ...process.Option) process.Process {
	return newWindowsProcess(opts...)
}

// NewWithPID creates a new WindowsProcess instance and opens it with the given PID
func NewWithPID(pid process.ProcessID, opts ...process.Option) (process.Process, error) {
	p := newWindowsProcess(opts...)
	if err := p.Open(pid); err != nil {
		return nil, err
	}
	return p, nil
}

func newWindowsProcess(opts ...process.Option) *WindowsProcess {
	return &WindowsProcess{
		opts: process.NewOptions(opts...),
		log:  notOpenLogger(),
	}
}

func (p *WindowsProcess) Open(pid process.ProcessID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pid == process.CurrentProcess {
		pid = process.ProcessID(windows.GetCurrentProcessId())
	}
	if pid < 0 {
		return fmt.Errorf("%w: pid %d", process.ErrNotFound, pid)
	}

	// a descriptor owns at most one handle
	if err := p.closeLocked(); err != nil {
		return err
	}

	access := uint32(PROCESS_INJECT_ACCESS)
	handle, err := windows.OpenProcess(access, false, uint32(pid))
	if err != nil && errors.Is(err, windows.ERROR_ACCESS_DENIED) {
		access = PROCESS_QUERY_ACCESS
		handle, err = windows.OpenProcess(access, false, uint32(pid))
	}
	if err != nil {
		return fmt.Errorf("OpenProcess(%d) failed: %w", pid, classifyOpenError(err))
	}

	p.pid = pid
	p.handle = handle
	p.access = access
	p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
	runtime.SetFinalizer(p, (*WindowsProcess).Close)

	if access == PROCESS_QUERY_ACCESS {
		p.log.Warn("Full access denied, process opened for queries only")
	}
	p.log.Infoln("Process opened")
	return nil
}

func (p *WindowsProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

// closeLocked releases the handle. Internal helper that assumes the mutex is held.
func (p *WindowsProcess) closeLocked() error {
	if p.handle == 0 {
		return nil
	}

	err := windows.CloseHandle(p.handle)
	p.handle = 0
	p.access = 0
	p.pid = 0
	runtime.SetFinalizer(p, nil)

	p.log.Infoln("Process closed")
	p.log = notOpenLogger()

	if err != nil {
		return fmt.Errorf("CloseHandle failed: %w", err)
	}
	return nil
}

// requireInjectAccessLocked fails when Open fell back to a query-only handle
func (p *WindowsProcess) requireInjectAccessLocked() error {
	if p.access != PROCESS_INJECT_ACCESS {
		return fmt.Errorf("%w: process %d is open for queries only", process.ErrPermissionDenied, p.pid)
	}
	return nil
}

func (p *WindowsProcess) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle != 0
}

func (p *WindowsProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// isAliveLocked reports whether the target has not exited yet
func (p *WindowsProcess) isAliveLocked() bool {
	if p.handle == 0 {
		return false
	}
	var code uint32
	if err := windows.GetExitCodeProcess(p.handle, &code); err != nil {
		return false
	}
	return code == STILL_ACTIVE
}

func (p *WindowsProcess) GetFileName() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == 0 {
		return "", process.ErrProcessNotOpen
	}
	if !p.isAliveLocked() {
		return "", fmt.Errorf("%w: process %d has exited", process.ErrNotFound, p.pid)
	}

	n := uint32(windows.MAX_PATH)
	for {
		buf := make([]uint16, n)
		size := n
		err := windows.QueryFullProcessImageName(p.handle, 0, &buf[0], &size)
		if err == nil {
			return windows.UTF16ToString(buf[:size]), nil
		}
		if !errors.Is(err, windows.ERROR_INSUFFICIENT_BUFFER) || n >= windows.MAX_LONG_PATH {
			return "", fmt.Errorf("QueryFullProcessImageName failed: %w", err)
		}
		n *= 2
	}
}

func (p *WindowsProcess) GetArch() process.Arch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getArchLocked()
}

func (p *WindowsProcess) getArchLocked() process.Arch {
	if !p.isAliveLocked() {
		return process.ArchUnknown
	}
	var wow64 bool
	if err := windows.IsWow64Process(p.handle, &wow64); err != nil {
		p.log.Debugln("IsWow64Process failed:", err)
		return process.ArchUnknown
	}
	if wow64 {
		return process.ArchX86
	}
	return nativeArch()
}

// nativeArch is the bitness of the operating system itself
func nativeArch() process.Arch {
	switch process.CallerArch() {
	case process.ArchX64:
		return process.ArchX64
	case process.ArchX86:
		var wow64 bool
		if err := windows.IsWow64Process(windows.CurrentProcess(), &wow64); err == nil && wow64 {
			return process.ArchX64
		}
		return process.ArchX86
	default:
		return process.ArchUnknown
	}
}

func (p *WindowsProcess) GetParentPID() process.ProcessID {
	pid := p.GetPID()
	if pid == 0 {
		return process.InvalidProcessID
	}

	procs, err := snapshotProcesses()
	if err != nil {
		p.log.Warn("Process snapshot failed: ", err)
		return process.InvalidProcessID
	}
	ctx := context.Background()
	return parentFromSnapshot(pid, procs, func(id process.ProcessID) (int64, bool) {
		return process.CreateTime(ctx, id)
	})
}

// parentFromSnapshot finds pid's parent in procs. The parent must still be listed and must
// not have been created after pid, otherwise its id was reused by an unrelated process.
func parentFromSnapshot(pid process.ProcessID, procs []process.ProcessInfo, created func(process.ProcessID) (int64, bool)) process.ProcessID {
	var ppid process.ProcessID = process.InvalidProcessID
	for _, proc := range procs {
		if proc.PID == pid {
			ppid = proc.PPID
			break
		}
	}
	if ppid <= 0 || ppid == pid {
		return process.InvalidProcessID
	}

	found := false
	for _, proc := range procs {
		if proc.PID == ppid {
			found = true
			break
		}
	}
	if !found {
		return process.InvalidProcessID
	}

	childCreated, ok1 := created(pid)
	parentCreated, ok2 := created(ppid)
	if ok1 && ok2 && parentCreated > childCreated {
		return process.InvalidProcessID
	}
	return ppid
}

func (p *WindowsProcess) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == 0 {
		return nil, process.ErrProcessNotOpen
	}
	return memory_map.ReadHandleMemoryMap(p.handle)
}

func (p *WindowsProcess) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == 0 {
		return nil, process.ErrProcessNotOpen
	}

	buf := make([]byte, size)
	var bytesRead uintptr
	err := windows.ReadProcessMemory(p.handle, uintptr(addr), &buf[0], uintptr(size), &bytesRead)
	if err != nil {
		return nil, fmt.Errorf("ReadProcessMemory at %s failed: %w", addr.ToString(), err)
	}
	if bytesRead != uintptr(size) {
		return nil, fmt.Errorf("read incomplete: expected %d, got %d", size, bytesRead)
	}
	return buf, nil
}

func (p *WindowsProcess) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == 0 {
		return process.ErrProcessNotOpen
	}

	region, err := memory_map.QueryRegion(p.handle, uintptr(addr))
	if err != nil || region.State != windows.MEM_COMMIT {
		return fmt.Errorf("%w: %s", process.ErrAddressNotMapped, addr.ToString())
	}
	if !memory_map.IsWritablePerms(memory_map.ProtectToPerms(region.Protect)) {
		return fmt.Errorf("%w: %s is not writable", process.ErrPermissionDenied, addr.ToString())
	}

	var written uintptr
	err = windows.WriteProcessMemory(p.handle, uintptr(addr), (*byte)(unsafe.Pointer(&data[0])), uintptr(len(data)), &written)
	if err != nil {
		return fmt.Errorf("WriteProcessMemory at %s failed: %w", addr.ToString(), err)
	}
	if written != uintptr(len(data)) {
		return fmt.Errorf("write incomplete: expected %d, wrote %d", len(data), written)
	}
	return nil
}
