//go:build windows

package process_windows

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"goinject/process"

	"golang.org/x/sys/windows"
)

// threadHandle is one entry of a thread snapshot
type threadHandle struct {
	id     uint32
	handle windows.Handle
}

// threadIDs lists the ids of every thread owned by pid
func threadIDs(pid process.ProcessID) ([]uint32, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPTHREAD, 0)
	if err != nil {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot failed: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ThreadEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var ids []uint32
	for err = windows.Thread32First(snap, &entry); err == nil; err = windows.Thread32Next(snap, &entry) {
		if process.ProcessID(entry.OwnerProcessID) == pid {
			ids = append(ids, entry.ThreadID)
		}
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, fmt.Errorf("Thread32Next failed: %w", err)
	}
	return ids, nil
}

// openThreads opens every listed thread it can, skipping the calling thread
func openThreads(ids []uint32, skip uint32) (opened []threadHandle, skipped int) {
	for _, id := range ids {
		if id == skip {
			continue
		}
		h, err := windows.OpenThread(windows.THREAD_SUSPEND_RESUME, false, id)
		if err != nil {
			skipped++
			continue
		}
		opened = append(opened, threadHandle{id: id, handle: h})
	}
	return opened, skipped
}

func closeThreads(threads []threadHandle) {
	for _, t := range threads {
		windows.CloseHandle(t.handle)
	}
}

// Pause suspends every thread of the process that can be opened. Threads created
// afterwards are not affected and failures are skipped silently.
func (p *WindowsProcess) Pause() {
	touched, skipped := p.forEachThread(func(h windows.Handle) error {
		_, err := suspendThread(h)
		return err
	})
	p.log.Debugln("Paused", touched, "threads, skipped", skipped)
}

// Unpause resumes every thread of the process once. It is not counted against Pause.
func (p *WindowsProcess) Unpause() {
	touched, skipped := p.forEachThread(func(h windows.Handle) error {
		_, err := windows.ResumeThread(h)
		return err
	})
	p.log.Debugln("Unpaused", touched, "threads, skipped", skipped)
}

func (p *WindowsProcess) forEachThread(fn func(windows.Handle) error) (touched, skipped int) {
	pid := p.GetPID()
	if pid == 0 {
		return 0, 0
	}

	// never suspend the thread doing the suspending
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var self uint32
	if uint32(pid) == windows.GetCurrentProcessId() {
		self = windows.GetCurrentThreadId()
		p.log.Warn("Target is the calling process, thread ", self, " is left alone")
	}

	ids, err := threadIDs(pid)
	if err != nil {
		p.log.Warn("Thread snapshot failed: ", err)
		return 0, 0
	}

	threads, skipped := openThreads(ids, self)
	defer closeThreads(threads)

	for _, t := range threads {
		if err := fn(t.handle); err != nil {
			skipped++
			continue
		}
		touched++
	}
	return touched, skipped
}
