//go:build linux

package process_linux

import (
	"context"
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"

	"goinject/process"
	"goinject/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	psutil "github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

// initPID adopts every orphan that has no subreaper above it
const initPID process.ProcessID = 1

// LinuxProcess implements the process.Process interface for Linux systems.
// The open handle is a pidfd, so a recycled pid is never signalled by mistake.
// Module injection and remote calls are not available on Linux.
type LinuxProcess struct {
	pid   process.ProcessID
	pidfd int
	open  bool
	opts  process.Options
	log   *logger.Logger
	mu    sync.Mutex
}

func notOpenLogger() *logger.Logger {
	return logger.NewLogger(coloransi.Color(coloransi.Red, coloransi.ColorOrange, "process-not-open"))
}

// New creates a new LinuxProcess instance
func New(opts ...process.Option) process.Process {
	return newLinuxProcess(opts...)
}

// NewWithPID creates a new LinuxProcess instance and opens it with the given PID
func NewWithPID(pid process.ProcessID, opts ...process.Option) (process.Process, error) {
	p := newLinuxProcess(opts...)
	if err := p.Open(pid); err != nil {
		return nil, err
	}
	return p, nil
}

func newLinuxProcess(opts ...process.Option) *LinuxProcess {
	return &LinuxProcess{
		pidfd: -1,
		opts:  process.NewOptions(opts...),
		log:   notOpenLogger(),
	}
}

func (p *LinuxProcess) Open(pid process.ProcessID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pid == process.CurrentProcess {
		pid = process.ProcessID(os.Getpid())
	}
	if pid <= 0 {
		return fmt.Errorf("%w: pid %d", process.ErrNotFound, pid)
	}

	// a descriptor owns at most one handle
	if err := p.closeLocked(); err != nil {
		return err
	}

	exists, err := psutil.PidExistsWithContext(context.Background(), int32(pid))
	if err != nil || !exists {
		return fmt.Errorf("%w: process with PID %d", process.ErrNotFound, pid)
	}

	fd, err := unix.PidfdOpen(int(pid), 0)
	switch {
	case err == nil:
	case errors.Is(err, unix.ENOSYS):
		// kernels before 5.3 fall back to plain pid signalling
		fd = -1
	case errors.Is(err, unix.ESRCH):
		return fmt.Errorf("%w: process with PID %d", process.ErrNotFound, pid)
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		return fmt.Errorf("%w: pidfd_open(%d): %v", process.ErrPermissionDenied, pid, err)
	default:
		return fmt.Errorf("pidfd_open(%d) failed: %w", pid, err)
	}

	p.pid = pid
	p.pidfd = fd
	p.open = true
	p.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid)))
	runtime.SetFinalizer(p, (*LinuxProcess).Close)
	p.log.Infoln("Process opened")
	return nil
}

func (p *LinuxProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

// Internal helper function that assumes the mutex is already locked
func (p *LinuxProcess) closeLocked() error {
	if !p.open {
		return nil
	}

	var err error
	if p.pidfd >= 0 {
		err = unix.Close(p.pidfd)
	}
	p.pid = 0
	p.pidfd = -1
	p.open = false
	runtime.SetFinalizer(p, nil)

	p.log.Infoln("Process closed")
	p.log = notOpenLogger()

	if err != nil {
		return fmt.Errorf("close pidfd failed: %w", err)
	}
	return nil
}

func (p *LinuxProcess) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// GetPID returns the process ID
func (p *LinuxProcess) GetPID() process.ProcessID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// signalLocked delivers sig through the pidfd when there is one
func (p *LinuxProcess) signalLocked(sig unix.Signal) error {
	if p.pidfd >= 0 {
		return unix.PidfdSendSignal(p.pidfd, sig, nil, 0)
	}
	return unix.Kill(int(p.pid), sig)
}

// isAliveLocked reports whether the target has neither exited nor become a zombie
func (p *LinuxProcess) isAliveLocked() bool {
	if !p.open {
		return false
	}
	if err := p.signalLocked(0); err != nil && !errors.Is(err, unix.EPERM) {
		return false
	}
	proc, err := psutil.NewProcessWithContext(context.Background(), int32(p.pid))
	if err != nil {
		return false
	}
	status, err := proc.StatusWithContext(context.Background())
	if err != nil {
		return false
	}
	for _, state := range status {
		if state == psutil.Zombie {
			return false
		}
	}
	return true
}

// exeLink is the kernel's link to the image. It stays readable after the file on disk
// is replaced or deleted.
func exeLink(pid process.ProcessID) string {
	return "/proc/" + strconv.Itoa(int(pid)) + "/exe"
}

func (p *LinuxProcess) GetFileName() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return "", process.ErrProcessNotOpen
	}
	if !p.isAliveLocked() {
		return "", fmt.Errorf("%w: process %d has exited", process.ErrNotFound, p.pid)
	}

	return process.ExePath(context.Background(), p.pid)
}

func (p *LinuxProcess) GetArch() process.Arch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getArchLocked()
}

func (p *LinuxProcess) getArchLocked() process.Arch {
	if !p.isAliveLocked() {
		return process.ArchUnknown
	}
	arch, err := elfArch(exeLink(p.pid))
	if err != nil {
		p.log.Debugln("Reading ELF header failed:", err)
		return process.ArchUnknown
	}
	return arch
}

// elfArch maps the ELF class and machine of the image at path to an Arch
func elfArch(path string) (process.Arch, error) {
	f, err := elf.Open(path)
	if err != nil {
		return process.ArchUnknown, err
	}
	defer f.Close()

	switch {
	case f.Class == elf.ELFCLASS64 && f.Machine == elf.EM_X86_64:
		return process.ArchX64, nil
	case f.Class == elf.ELFCLASS32 && f.Machine == elf.EM_386:
		return process.ArchX86, nil
	default:
		return process.ArchUnknown, nil
	}
}

// GetParentPID returns the pid of the process that created this one, or
// InvalidProcessID once that creator has exited. The kernel hands orphans to init
// (or to a subreaper), so a parent of pid 1 is reported as gone.
func (p *LinuxProcess) GetParentPID() process.ProcessID {
	pid := p.GetPID()
	if pid == 0 {
		return process.InvalidProcessID
	}

	ctx := context.Background()
	proc, err := psutil.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return process.InvalidProcessID
	}
	ppid, err := proc.PpidWithContext(ctx)
	if err != nil {
		return process.InvalidProcessID
	}
	return creatorPID(pid, process.ProcessID(ppid), func(id process.ProcessID) (int64, bool) {
		return process.CreateTime(ctx, id)
	})
}

// creatorPID vets the kernel's parent link of pid. An adoption by init and a parent
// that is gone or younger than pid (a reused pid) all yield InvalidProcessID.
func creatorPID(pid, ppid process.ProcessID, created func(process.ProcessID) (int64, bool)) process.ProcessID {
	if ppid <= initPID || ppid == pid {
		return process.InvalidProcessID
	}
	parentCreated, ok := created(ppid)
	if !ok {
		return process.InvalidProcessID
	}
	if childCreated, ok := created(pid); ok && parentCreated > childCreated {
		return process.InvalidProcessID
	}
	return ppid
}

func (p *LinuxProcess) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.memoryMapLocked()
}

func (p *LinuxProcess) memoryMapLocked() ([]memory_map.MemoryMapItem, error) {
	if !p.open {
		return nil, process.ErrProcessNotOpen
	}
	mm, err := memory_map.NewLinuxMemoryMap().ReadMemoryMap(int(p.pid))
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", process.ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("failed to read memory map: %w", err)
	}
	return mm, nil
}

// InjectModule checks the target like the Windows backend does and then refuses:
// there is no remote loader entry point to start a thread at on Linux.
func (p *LinuxProcess) InjectModule(path string) (process.ProcessMemoryAddress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return 0, process.ErrProcessNotOpen
	}
	if err := process.CheckArch(process.CallerArch(), p.getArchLocked()); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("%w: injecting %s", process.ErrNotSupported, path)
}

func (p *LinuxProcess) RemoteCall(fn process.ProcessMemoryAddress, params ...[]byte) (uint32, error) {
	if len(params) < 1 || len(params) > 2 {
		return 0, fmt.Errorf("%w: got %d", process.ErrTooManyParams, len(params))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return 0, process.ErrProcessNotOpen
	}
	if err := process.CheckArch(process.CallerArch(), p.getArchLocked()); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("%w: calling %s", process.ErrNotSupported, fn.ToString())
}
