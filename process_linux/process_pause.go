//go:build linux

package process_linux

import (
	"os"

	"golang.org/x/sys/unix"
)

// Pause stops the whole thread group with SIGSTOP. Job control signals act on every
// thread at once, so unlike Windows there is no per-thread walk.
func (p *LinuxProcess) Pause() {
	p.signalBestEffort(unix.SIGSTOP)
}

// Unpause continues the thread group with SIGCONT
func (p *LinuxProcess) Unpause() {
	p.signalBestEffort(unix.SIGCONT)
}

func (p *LinuxProcess) signalBestEffort(sig unix.Signal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return
	}
	if int(p.pid) == os.Getpid() && sig == unix.SIGSTOP {
		p.log.Warn("Refusing to stop the calling process")
		return
	}
	if err := p.signalLocked(sig); err != nil {
		p.log.Debugln("Signal", unix.SignalName(sig), "failed:", err)
		return
	}
	p.log.Debugln("Sent", unix.SignalName(sig))
}
