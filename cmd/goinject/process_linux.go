//go:build linux

package main

import (
	"fmt"

	"goinject/process"
	"goinject/process_linux"
)

func openProcess(pid process.ProcessID, opts ...process.Option) (process.Process, error) {
	return process_linux.NewWithPID(pid, opts...)
}

func newFinder() process.ProcessFinder {
	return process_linux.NewProcessFinder()
}

func resolveRemoteProc(base process.ProcessMemoryAddress, module, entry string) (process.ProcessMemoryAddress, error) {
	return 0, fmt.Errorf("%w: resolving %s in %s", process.ErrNotSupported, entry, module)
}
