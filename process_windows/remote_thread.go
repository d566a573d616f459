//go:build windows

package process_windows

import (
	"fmt"
	"time"

	"goinject/process"

	"golang.org/x/sys/windows"
)

// waitMilliseconds converts a timeout to the argument WaitForSingleObject takes
func waitMilliseconds(d time.Duration) uint32 {
	ms := d.Milliseconds()
	switch {
	case ms <= 0:
		return 0
	case ms >= INFINITE:
		return INFINITE - 1
	default:
		return uint32(ms)
	}
}

// runRemoteThread starts a thread in the target at start with arg as its single
// parameter, waits at most timeout for it and returns its exit code.
// On ErrExecutionTimeout the thread is still running.
func (p *WindowsProcess) runRemoteThread(start, arg uintptr, timeout time.Duration) (uint32, error) {
	th, tid, err := createRemoteThread(p.handle, start, arg)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", process.ErrThreadCreation, err)
	}
	defer windows.CloseHandle(th)

	p.log.Debugln("Remote thread", tid, "started at", fmt.Sprintf("%#x", start))

	event, err := windows.WaitForSingleObject(th, waitMilliseconds(timeout))
	switch event {
	case WAIT_OBJECT_0:
	case WAIT_TIMEOUT:
		return 0, fmt.Errorf("%w: thread %d still running after %s", process.ErrExecutionTimeout, tid, timeout)
	default:
		return 0, fmt.Errorf("%w: WaitForSingleObject: %v", process.ErrExecutionFailure, err)
	}

	code, err := getExitCodeThread(th)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", process.ErrExecutionFailure, err)
	}
	p.log.Debugln("Remote thread", tid, "exited with", code)
	return code, nil
}
