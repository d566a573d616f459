//go:build linux

package process_linux

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"goinject/process"
)

// LinuxProcessFinder implements the process.ProcessFinder interface on top of the
// system process list
type LinuxProcessFinder struct{}

// NewProcessFinder creates a new LinuxProcessFinder
func NewProcessFinder() process.ProcessFinder {
	return &LinuxProcessFinder{}
}

// FindProcessByPID finds a process by its PID
func (f *LinuxProcessFinder) FindProcessByPID(pid process.ProcessID) (*process.ProcessInfo, error) {
	if pid == process.CurrentProcess {
		pid = process.ProcessID(os.Getpid())
	}
	return process.SystemProcess(context.Background(), pid)
}

// FindProcessByName finds processes whose comm or executable basename equals name
func (f *LinuxProcessFinder) FindProcessByName(name string) ([]process.ProcessInfo, error) {
	matches, err := findProcessesByNamePattern("^" + regexp.QuoteMeta(name) + "$")
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no process named %q", process.ErrNotFound, name)
	}
	return matches, nil
}

// FindProcessByNamePattern finds processes whose name matches a regular expression
func (f *LinuxProcessFinder) FindProcessByNamePattern(pattern string) ([]process.ProcessInfo, error) {
	return findProcessesByNamePattern(pattern)
}

// FindAllProcesses returns information about all running processes
func (f *LinuxProcessFinder) FindAllProcesses() ([]process.ProcessInfo, error) {
	return process.SystemProcesses(context.Background())
}

func findProcessesByNamePattern(pattern string) ([]process.ProcessInfo, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	all, err := process.SystemProcesses(context.Background())
	if err != nil {
		return nil, err
	}

	var results []process.ProcessInfo
	for _, info := range all {
		if re.MatchString(info.Name) || (info.Exe != "" && re.MatchString(filepath.Base(info.Exe))) {
			results = append(results, info)
		}
	}
	return results, nil
}

// FindChildProcesses finds all child processes of a given PID
func (f *LinuxProcessFinder) FindChildProcesses(parentPID process.ProcessID) ([]process.ProcessInfo, error) {
	parent, err := f.FindProcessByPID(parentPID)
	if err != nil {
		return nil, err
	}
	all, err := f.FindAllProcesses()
	if err != nil {
		return nil, err
	}
	return process.ChildrenOf(*parent, all), nil
}

// GetProcessTree returns a tree-like representation of processes starting from a root PID
func (f *LinuxProcessFinder) GetProcessTree(rootPID process.ProcessID) (*process.ProcessTreeNode, error) {
	root, err := f.FindProcessByPID(rootPID)
	if err != nil {
		return nil, err
	}
	all, err := f.FindAllProcesses()
	if err != nil {
		return nil, err
	}
	return process.BuildProcessTree(*root, all), nil
}
