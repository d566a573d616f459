//go:build windows

package main

import (
	"goinject/process"
	"goinject/process_windows"
)

func openProcess(pid process.ProcessID, opts ...process.Option) (process.Process, error) {
	return process_windows.NewWithPID(pid, opts...)
}

func newFinder() process.ProcessFinder {
	return process_windows.NewProcessFinder()
}

func resolveRemoteProc(base process.ProcessMemoryAddress, module, entry string) (process.ProcessMemoryAddress, error) {
	return process_windows.ResolveRemoteProc(base, module, entry)
}
