//go:build windows

package process_windows

import (
	"testing"

	"goinject/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

// suspendCounts reads the current suspend count of every thread in ids that can
// still be opened, leaving each count unchanged
func suspendCounts(t *testing.T, ids []uint32) map[uint32]uint32 {
	t.Helper()
	counts := make(map[uint32]uint32)
	for _, id := range ids {
		h, err := windows.OpenThread(windows.THREAD_SUSPEND_RESUME, false, id)
		if err != nil {
			continue
		}
		prev, err := suspendThread(h)
		if err == nil {
			_, err = windows.ResumeThread(h)
			require.NoError(t, err)
			counts[id] = prev
		}
		windows.CloseHandle(h)
	}
	return counts
}

func TestPauseUnpause(t *testing.T) {
	child := startHelper(t)
	pid := process.ProcessID(child.Process.Pid)

	p, err := NewWithPID(pid)
	require.NoError(t, err)
	defer p.Close()

	ids, err := threadIDs(pid)
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	p.Pause()
	paused := suspendCounts(t, ids)
	require.NotEmpty(t, paused)
	for id, count := range paused {
		assert.Equal(t, uint32(1), count, "thread %d", id)
	}

	p.Unpause()
	for id, count := range suspendCounts(t, ids) {
		assert.Equal(t, uint32(0), count, "thread %d", id)
	}
}

func TestPauseIsNotCounted(t *testing.T) {
	child := startHelper(t)
	pid := process.ProcessID(child.Process.Pid)

	p, err := NewWithPID(pid)
	require.NoError(t, err)
	defer p.Close()

	ids, err := threadIDs(pid)
	require.NoError(t, err)

	p.Pause()
	p.Pause()
	p.Unpause()
	for id, count := range suspendCounts(t, ids) {
		assert.Equal(t, uint32(1), count, "thread %d", id)
	}
	p.Unpause()
}

func TestPauseNotOpen(t *testing.T) {
	p := New()
	assert.NotPanics(t, p.Pause)
	assert.NotPanics(t, p.Unpause)
}
