//go:build !windows && !linux

package main

import (
	"fmt"
	"runtime"

	"goinject/process"
)

func openProcess(pid process.ProcessID, opts ...process.Option) (process.Process, error) {
	return nil, fmt.Errorf("%w: %s", process.ErrNotSupported, runtime.GOOS)
}

func newFinder() process.ProcessFinder {
	return unsupportedFinder{}
}

func resolveRemoteProc(base process.ProcessMemoryAddress, module, entry string) (process.ProcessMemoryAddress, error) {
	return 0, fmt.Errorf("%w: %s", process.ErrNotSupported, runtime.GOOS)
}

type unsupportedFinder struct{}

func (unsupportedFinder) FindProcessByPID(process.ProcessID) (*process.ProcessInfo, error) {
	return nil, process.ErrNotSupported
}

func (unsupportedFinder) FindProcessByName(string) ([]process.ProcessInfo, error) {
	return nil, process.ErrNotSupported
}

func (unsupportedFinder) FindAllProcesses() ([]process.ProcessInfo, error) {
	return nil, process.ErrNotSupported
}

func (unsupportedFinder) FindChildProcesses(process.ProcessID) ([]process.ProcessInfo, error) {
	return nil, process.ErrNotSupported
}

func (unsupportedFinder) GetProcessTree(process.ProcessID) (*process.ProcessTreeNode, error) {
	return nil, process.ErrNotSupported
}
