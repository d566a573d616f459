//go:build windows

package process_windows

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unsafe"

	"goinject/process"

	"golang.org/x/sys/windows"
)

// ModuleInfo describes a module loaded in a process
type ModuleInfo struct {
	Name string
	Path string
	Base process.ProcessMemoryAddress
	Size uint32
}

// Toolhelp may fail with ERROR_BAD_LENGTH while the target's loader list is changing
const moduleSnapshotAttempts = 5

func snapshotModules(pid process.ProcessID) ([]ModuleInfo, error) {
	var (
		snap windows.Handle
		err  error
	)
	for i := 0; i < moduleSnapshotAttempts; i++ {
		snap, err = windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, uint32(pid))
		if !errors.Is(err, windows.ERROR_BAD_LENGTH) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("module snapshot of %d failed: %w", pid, classifyOpenError(err))
	}
	defer windows.CloseHandle(snap)

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var modules []ModuleInfo
	for err = windows.Module32First(snap, &entry); err == nil; err = windows.Module32Next(snap, &entry) {
		modules = append(modules, ModuleInfo{
			Name: windows.UTF16ToString(entry.Module[:]),
			Path: windows.UTF16ToString(entry.ExePath[:]),
			Base: process.ProcessMemoryAddress(entry.ModBaseAddr),
			Size: entry.ModBaseSize,
		})
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, fmt.Errorf("Module32Next failed: %w", err)
	}
	return modules, nil
}

// Modules lists the modules currently loaded in the process
func (p *WindowsProcess) Modules() ([]ModuleInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == 0 {
		return nil, process.ErrProcessNotOpen
	}
	return snapshotModules(p.pid)
}

// FindModule looks a loaded module up by file name or full path, case-insensitively
func (p *WindowsProcess) FindModule(name string) (*ModuleInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.findModuleLocked(name)
}

func (p *WindowsProcess) findModuleLocked(name string) (*ModuleInfo, error) {
	if p.handle == 0 {
		return nil, process.ErrProcessNotOpen
	}
	modules, err := snapshotModules(p.pid)
	if err != nil {
		return nil, err
	}
	if m := matchModule(modules, name); m != nil {
		return m, nil
	}
	return nil, fmt.Errorf("%w: module %q in process %d", process.ErrNotFound, name, p.pid)
}

func matchModule(modules []ModuleInfo, name string) *ModuleInfo {
	base := filepath.Base(name)
	for i := range modules {
		if strings.EqualFold(modules[i].Path, name) || strings.EqualFold(modules[i].Name, base) {
			return &modules[i]
		}
	}
	return nil
}

// recoverModuleBase widens a 32-bit thread exit code back to the module base it was
// truncated from by matching it against the loaded modules.
func recoverModuleBase(code uint32, path string, modules []ModuleInfo) (process.ProcessMemoryAddress, error) {
	var candidates []ModuleInfo
	for _, m := range modules {
		if uint32(m.Base) == code {
			candidates = append(candidates, m)
		}
	}

	switch len(candidates) {
	case 0:
		return 0, fmt.Errorf("%w: no module with base ending in %#08x", process.ErrNotFound, code)
	case 1:
		return candidates[0].Base, nil
	}

	if m := matchModule(candidates, path); m != nil {
		return m.Base, nil
	}
	return 0, fmt.Errorf("%w: %d modules share base suffix %#08x", process.ErrNotFound, len(candidates), code)
}
