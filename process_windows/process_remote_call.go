//go:build windows

package process_windows

import (
	"errors"
	"fmt"

	"goinject/call_stub"
	"goinject/process"
)

// RemoteCall runs fn inside the process on a new thread and returns the thread's
// exit code. With one parameter fn receives a pointer to a remote copy of it. With two
// parameters a generated stub splits a packed copy of both into fn's argument slots.
func (p *WindowsProcess) RemoteCall(fn process.ProcessMemoryAddress, params ...[]byte) (uint32, error) {
	switch len(params) {
	case 1:
		return p.remoteCall1(fn, params[0])
	case 2:
		return p.remoteCall2(fn, params[0], params[1])
	default:
		return 0, fmt.Errorf("%w: got %d", process.ErrTooManyParams, len(params))
	}
}

// checkCallLocked validates the descriptor and the pair of architectures before
// anything is written to the target
func (p *WindowsProcess) checkCallLocked() (process.Arch, error) {
	if p.handle == 0 {
		return process.ArchUnknown, process.ErrProcessNotOpen
	}
	arch := p.getArchLocked()
	if err := process.CheckArch(process.CallerArch(), arch); err != nil {
		p.log.Warn("Refusing remote call: ", err)
		return arch, err
	}
	return arch, p.requireInjectAccessLocked()
}

func (p *WindowsProcess) remoteCall1(fn process.ProcessMemoryAddress, param []byte) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.checkCallLocked(); err != nil {
		return 0, err
	}
	if len(param) == 0 {
		return 0, fmt.Errorf("%w: empty parameter", process.ErrUnsupportedParam)
	}

	region, err := allocRemoteData(p.handle, param)
	if err != nil {
		return 0, err
	}

	code, err := p.runRemoteThread(uintptr(fn), region.Addr(), p.opts.WaitTimeout)
	p.releaseRegions(errors.Is(err, process.ErrExecutionTimeout), region)
	if err != nil {
		return 0, err
	}
	return code, nil
}

func (p *WindowsProcess) remoteCall2(fn process.ProcessMemoryAddress, param1, param2 []byte) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	arch, err := p.checkCallLocked()
	if err != nil {
		return 0, err
	}

	packed, layout, err := call_stub.Pack(param1, param2)
	if err != nil {
		return 0, err
	}
	stub, err := call_stub.Generate(arch, layout, fn)
	if err != nil {
		return 0, err
	}

	buffer, err := allocRemoteData(p.handle, packed)
	if err != nil {
		return 0, err
	}
	code, err := allocRemoteCode(p.handle, stub.Code)
	if err != nil {
		p.releaseRegions(false, buffer)
		return 0, err
	}
	p.log.Debugln("Call stub for", fn.ToString(), "at", code.String())

	result, err := p.runRemoteThread(code.Addr(), buffer.Addr(), p.opts.WaitTimeout)
	p.releaseRegions(errors.Is(err, process.ErrExecutionTimeout), buffer, code)
	if err != nil {
		return 0, err
	}
	return result, nil
}
