//go:build windows

package process_windows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"goinject/process"

	"golang.org/x/sys/windows"
)

// WindowsProcessFinder implements process.ProcessFinder on top of Toolhelp snapshots.
// One snapshot carries the pid, parent, name and thread count of every process.
type WindowsProcessFinder struct{}

// NewProcessFinder creates a new WindowsProcessFinder instance
func NewProcessFinder() process.ProcessFinder {
	return &WindowsProcessFinder{}
}

// snapshotProcesses lists every process with its parent pid and thread count
func snapshotProcesses() ([]process.ProcessInfo, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot failed: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var procs []process.ProcessInfo
	for err = windows.Process32First(snap, &entry); err == nil; err = windows.Process32Next(snap, &entry) {
		procs = append(procs, process.ProcessInfo{
			PID:     process.ProcessID(entry.ProcessID),
			PPID:    process.ProcessID(entry.ParentProcessID),
			Name:    windows.UTF16ToString(entry.ExeFile[:]),
			Threads: int(entry.Threads),
		})
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, fmt.Errorf("Process32Next failed: %w", err)
	}
	return procs, nil
}

// imagePath returns the full image path of pid, empty if it cannot be queried
func imagePath(pid process.ProcessID) string {
	exe, _ := process.ExePath(context.Background(), pid)
	return exe
}

// withCreationTimes fills in Created, which the snapshot does not carry
func withCreationTimes(procs []process.ProcessInfo) []process.ProcessInfo {
	ctx := context.Background()
	for i := range procs {
		procs[i].Created, _ = process.CreateTime(ctx, procs[i].PID)
	}
	return procs
}

func (f *WindowsProcessFinder) FindProcessByPID(pid process.ProcessID) (*process.ProcessInfo, error) {
	if pid == process.CurrentProcess {
		pid = process.ProcessID(windows.GetCurrentProcessId())
	}

	procs, err := snapshotProcesses()
	if err != nil {
		return nil, err
	}
	proc, ok := findPID(procs, pid)
	if !ok {
		return nil, fmt.Errorf("%w: process with PID %d", process.ErrNotFound, pid)
	}
	proc.Exe = imagePath(pid)
	proc.Created, _ = process.CreateTime(context.Background(), pid)
	return &proc, nil
}

func (f *WindowsProcessFinder) FindProcessByName(name string) ([]process.ProcessInfo, error) {
	procs, err := snapshotProcesses()
	if err != nil {
		return nil, err
	}

	var matches []process.ProcessInfo
	for _, proc := range procs {
		if strings.EqualFold(proc.Name, name) || strings.EqualFold(strings.TrimSuffix(proc.Name, ".exe"), name) {
			proc.Exe = imagePath(proc.PID)
			matches = append(matches, proc)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no process named %q", process.ErrNotFound, name)
	}
	return matches, nil
}

func (f *WindowsProcessFinder) FindAllProcesses() ([]process.ProcessInfo, error) {
	return snapshotProcesses()
}

func (f *WindowsProcessFinder) FindChildProcesses(parentPID process.ProcessID) ([]process.ProcessInfo, error) {
	if parentPID == process.CurrentProcess {
		parentPID = process.ProcessID(windows.GetCurrentProcessId())
	}

	procs, err := snapshotProcesses()
	if err != nil {
		return nil, err
	}
	parent, ok := findPID(procs, parentPID)
	if !ok {
		return nil, fmt.Errorf("%w: process with PID %d", process.ErrNotFound, parentPID)
	}
	return process.ChildrenOf(parent, withCreationTimes(procs)), nil
}

func (f *WindowsProcessFinder) GetProcessTree(rootPID process.ProcessID) (*process.ProcessTreeNode, error) {
	if rootPID == process.CurrentProcess {
		rootPID = process.ProcessID(windows.GetCurrentProcessId())
	}

	procs, err := snapshotProcesses()
	if err != nil {
		return nil, err
	}
	procs = withCreationTimes(procs)
	root, ok := findPID(procs, rootPID)
	if !ok {
		return nil, fmt.Errorf("%w: process with PID %d", process.ErrNotFound, rootPID)
	}
	return process.BuildProcessTree(root, procs), nil
}

func findPID(procs []process.ProcessInfo, pid process.ProcessID) (process.ProcessInfo, bool) {
	for _, proc := range procs {
		if proc.PID == pid {
			return proc, true
		}
	}
	return process.ProcessInfo{}, false
}
