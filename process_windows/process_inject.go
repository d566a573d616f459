//go:build windows

package process_windows

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"goinject/process"

	"golang.org/x/sys/windows"
)

// InjectModule loads the module at path into the process through LoadLibraryW on a
// remote thread and returns the module's base address inside the process.
//
// A relative path is resolved by the target's own loader search order.
func (p *WindowsProcess) InjectModule(path string) (process.ProcessMemoryAddress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == 0 {
		return 0, process.ErrProcessNotOpen
	}

	arch := p.getArchLocked()
	if err := process.CheckArch(process.CallerArch(), arch); err != nil {
		p.log.Warn("Refusing injection: ", err)
		return 0, err
	}
	if err := p.requireInjectAccessLocked(); err != nil {
		return 0, err
	}

	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err != nil {
			return 0, fmt.Errorf("%w: module %s: %v", process.ErrNotFound, path, err)
		}
	}

	pathW, err := windows.UTF16FromString(path)
	if err != nil {
		return 0, fmt.Errorf("%w: module path %q: %v", process.ErrNotFound, path, err)
	}
	pathBytes := unsafe.Slice((*byte)(unsafe.Pointer(&pathW[0])), len(pathW)*2)

	region, err := allocRemoteData(p.handle, pathBytes)
	if err != nil {
		return 0, err
	}

	loadLibrary, err := p.resolveLoaderLocked()
	if err != nil {
		p.releaseRegions(false, region)
		return 0, err
	}

	code, err := p.runRemoteThread(loadLibrary, region.Addr(), p.opts.WaitTimeout)
	p.releaseRegions(errors.Is(err, process.ErrExecutionTimeout), region)
	if err != nil {
		return 0, err
	}
	if code == 0 {
		return 0, fmt.Errorf("%w: LoadLibraryW(%s) returned NULL", process.ErrExecutionFailure, path)
	}

	base := process.ProcessMemoryAddress(code)
	if arch == process.ArchX64 {
		modules, err := snapshotModules(p.pid)
		if err != nil {
			return 0, err
		}
		if base, err = recoverModuleBase(code, path, modules); err != nil {
			return 0, err
		}
	}

	p.log.Infoln("Injected", path, "at", base.ToString())
	return base, nil
}

// resolveLoaderLocked returns the address of LoadLibraryW as resolved in the caller.
// The address is only valid remotely if kernel32 sits at the same base in both processes.
func (p *WindowsProcess) resolveLoaderLocked() (uintptr, error) {
	if err := procLoadLibraryW.Find(); err != nil {
		return 0, fmt.Errorf("%w: LoadLibraryW: %v", process.ErrNotFound, err)
	}
	addr := procLoadLibraryW.Addr()

	if p.opts.SkipSharedBaseCheck {
		return addr, nil
	}

	modules, err := snapshotModules(p.pid)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", process.ErrSharedBaseMismatch, err)
	}
	if err := checkSharedBase(modkernel32.Name, process.ProcessMemoryAddress(modkernel32.Handle()), modules); err != nil {
		return 0, fmt.Errorf("process %d: %w", p.pid, err)
	}
	return addr, nil
}

// checkSharedBase fails unless name is loaded in modules at localBase
func checkSharedBase(name string, localBase process.ProcessMemoryAddress, modules []ModuleInfo) error {
	remote := matchModule(modules, name)
	if remote == nil {
		return fmt.Errorf("%w: %s is not loaded", process.ErrSharedBaseMismatch, name)
	}
	if remote.Base != localBase {
		return fmt.Errorf("%w: %s at %s locally, %s remotely",
			process.ErrSharedBaseMismatch, name, localBase.ToString(), remote.Base.ToString())
	}
	return nil
}

// ResolveRemoteProc computes where the export procName of the module at modulePath lives
// in a process that has the same module loaded at remoteBase. The module is mapped
// locally without running its initialization to read the export's offset.
func ResolveRemoteProc(remoteBase process.ProcessMemoryAddress, modulePath, procName string) (process.ProcessMemoryAddress, error) {
	if remoteBase == 0 {
		return 0, fmt.Errorf("%w: module %s has no remote base", process.ErrNotFound, modulePath)
	}

	local, err := windows.LoadLibraryEx(modulePath, 0, windows.DONT_RESOLVE_DLL_REFERENCES)
	if err != nil {
		return 0, fmt.Errorf("%w: LoadLibraryEx(%s): %v", process.ErrNotFound, modulePath, err)
	}
	defer windows.FreeLibrary(local)

	proc, err := windows.GetProcAddress(local, procName)
	if err != nil {
		return 0, fmt.Errorf("%w: export %s in %s: %v", process.ErrNotFound, procName, modulePath, err)
	}

	rva := uint64(proc) - uint64(local)
	return remoteBase + process.ProcessMemoryAddress(rva), nil
}
