package process

import (
	"context"
	"errors"
	"fmt"
	"os"

	psutil "github.com/shirou/gopsutil/v4/process"
)

// SystemProcesses lists every running process. Processes that exit while the list is
// being read are left out.
func SystemProcesses(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := psutil.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	infos := make([]ProcessInfo, 0, len(procs))
	for _, proc := range procs {
		info, err := systemProcessInfo(ctx, proc)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// SystemProcess reads the ProcessInfo of a single pid
func SystemProcess(ctx context.Context, pid ProcessID) (*ProcessInfo, error) {
	proc, err := psutil.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, fmt.Errorf("%w: process with PID %d: %v", ErrNotFound, pid, err)
	}
	info, err := systemProcessInfo(ctx, proc)
	if err != nil {
		return nil, fmt.Errorf("%w: process with PID %d: %v", ErrNotFound, pid, err)
	}
	return &info, nil
}

func systemProcessInfo(ctx context.Context, proc *psutil.Process) (ProcessInfo, error) {
	name, err := proc.NameWithContext(ctx)
	if err != nil {
		return ProcessInfo{}, err
	}
	ppid, err := proc.PpidWithContext(ctx)
	if err != nil {
		return ProcessInfo{}, err
	}

	info := ProcessInfo{
		PID:  ProcessID(proc.Pid),
		PPID: ProcessID(ppid),
		Name: name,
	}
	// kernel threads and protected processes have no readable image
	info.Exe, _ = proc.ExeWithContext(ctx)
	if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
		info.Threads = int(threads)
	}
	if created, err := proc.CreateTimeWithContext(ctx); err == nil {
		info.Created = created
	}
	return info, nil
}

// CreateTime returns when pid was started, in milliseconds since 1970
func CreateTime(ctx context.Context, pid ProcessID) (int64, bool) {
	proc, err := psutil.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return 0, false
	}
	created, err := proc.CreateTimeWithContext(ctx)
	if err != nil || created <= 0 {
		return 0, false
	}
	return created, true
}

// ExePath returns the full image path of pid. Permission errors are reported as
// ErrPermissionDenied, anything else as ErrNotFound.
func ExePath(ctx context.Context, pid ProcessID) (string, error) {
	proc, err := psutil.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", fmt.Errorf("%w: process with PID %d: %v", ErrNotFound, pid, err)
	}
	exe, err := proc.ExeWithContext(ctx)
	switch {
	case err == nil && exe != "":
		return exe, nil
	case errors.Is(err, os.ErrPermission):
		return "", fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	default:
		return "", fmt.Errorf("%w: image of process %d: %v", ErrNotFound, pid, err)
	}
}

// ChildrenOf picks the processes in all whose PPID names parent. A process created before
// parent cannot be its child: its PPID is stale and the pid was reused.
func ChildrenOf(parent ProcessInfo, all []ProcessInfo) []ProcessInfo {
	var children []ProcessInfo
	for _, proc := range all {
		if isChildOf(proc, parent) {
			children = append(children, proc)
		}
	}
	return children
}

func isChildOf(proc, parent ProcessInfo) bool {
	if proc.PPID != parent.PID || proc.PID == parent.PID {
		return false
	}
	if proc.Created != 0 && parent.Created != 0 && parent.Created > proc.Created {
		return false
	}
	return true
}
