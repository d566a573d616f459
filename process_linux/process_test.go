//go:build linux

package process_linux

import (
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"
	"unsafe"

	"goinject/process"

	psutil "github.com/shirou/gopsutil/v4/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestOpenCurrentProcess(t *testing.T) {
	p := New()
	assert.False(t, p.IsOpen())

	require.NoError(t, p.Open(process.CurrentProcess))
	assert.True(t, p.IsOpen())
	assert.Equal(t, process.ProcessID(os.Getpid()), p.GetPID())
	assert.Equal(t, process.CallerArch(), p.GetArch())
	assert.Equal(t, process.ProcessID(os.Getppid()), p.GetParentPID())

	name, err := p.GetFileName()
	require.NoError(t, err)
	exe, err := os.Executable()
	require.NoError(t, err)
	assert.Equal(t, exe, name)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.False(t, p.IsOpen())

	_, err = p.ReadMemory(0x1000, 8)
	assert.ErrorIs(t, err, process.ErrProcessNotOpen)
	_, err = p.GetFileName()
	assert.ErrorIs(t, err, process.ErrProcessNotOpen)
	assert.Equal(t, process.ArchUnknown, p.GetArch())
	assert.Equal(t, process.InvalidProcessID, p.GetParentPID())
}

func TestOpenMissingProcess(t *testing.T) {
	_, err := NewWithPID(0x7FFFFFF0)
	assert.ErrorIs(t, err, process.ErrNotFound)
}

func TestChildProcess(t *testing.T) {
	child := startSleeper(t)

	p, err := NewWithPID(process.ProcessID(child.Process.Pid))
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, process.ProcessID(os.Getpid()), p.GetParentPID())

	name, err := p.GetFileName()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "/"), name)

	require.NoError(t, child.Process.Kill())
	_, _ = child.Process.Wait()

	assert.Equal(t, process.ArchUnknown, p.GetArch())
	_, err = p.GetFileName()
	assert.ErrorIs(t, err, process.ErrNotFound)
}

func TestParentPIDAfterParentExits(t *testing.T) {
	// sh exits right after starting sleep, which is then adopted by init
	out, err := exec.Command("sh", "-c", "sleep 30 </dev/null >/dev/null 2>&1 & echo $!").Output()
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Kill(pid, unix.SIGKILL) })

	orphan, err := psutil.NewProcess(int32(pid))
	require.NoError(t, err)
	adopter, err := orphan.Ppid()
	require.NoError(t, err)
	if process.ProcessID(adopter) != initPID {
		t.Skipf("orphans are adopted by subreaper %d here", adopter)
	}

	p, err := NewWithPID(process.ProcessID(pid))
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, process.InvalidProcessID, p.GetParentPID())
}

func TestCreatorPID(t *testing.T) {
	created := map[process.ProcessID]int64{
		1:  100,
		10: 1000,
		20: 2000,
		30: 3000,
		40: 500,
		50: 0,
	}
	lookup := func(pid process.ProcessID) (int64, bool) {
		ms, ok := created[pid]
		return ms, ok && ms > 0
	}

	assert.Equal(t, process.ProcessID(10), creatorPID(20, 10, lookup))
	assert.Equal(t, process.InvalidProcessID, creatorPID(20, 1, lookup), "adopted by init")
	assert.Equal(t, process.InvalidProcessID, creatorPID(20, 0, lookup))
	assert.Equal(t, process.InvalidProcessID, creatorPID(20, 20, lookup))
	assert.Equal(t, process.InvalidProcessID, creatorPID(20, 99, lookup), "parent gone")
	assert.Equal(t, process.InvalidProcessID, creatorPID(40, 30, lookup), "parent younger than child")
	assert.Equal(t, process.ProcessID(10), creatorPID(50, 10, lookup), "child age unknown")
}

func openFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	return len(entries)
}

func TestUnclosedDescriptorReleasesPidfd(t *testing.T) {
	before := openFDs(t)

	func() {
		_, err := NewWithPID(process.CurrentProcess)
		require.NoError(t, err)
	}()

	assert.Eventually(t, func() bool {
		runtime.GC()
		return openFDs(t) <= before
	}, 5*time.Second, 20*time.Millisecond)
}

func TestReopenClosesPrevious(t *testing.T) {
	child := startSleeper(t)
	before := openFDs(t)

	p, err := NewWithPID(process.CurrentProcess)
	require.NoError(t, err)
	require.NoError(t, p.Open(process.ProcessID(child.Process.Pid)))
	assert.Equal(t, process.ProcessID(child.Process.Pid), p.GetPID())
	assert.LessOrEqual(t, openFDs(t), before+1)

	require.NoError(t, p.Close())
	assert.Equal(t, before, openFDs(t))
}

func TestReadWriteMemory(t *testing.T) {
	p, err := NewWithPID(process.CurrentProcess)
	require.NoError(t, err)
	defer p.Close()

	value := new(uint64)
	*value = 0x1122334455667788
	addr := process.ProcessMemoryAddress(uintptr(unsafe.Pointer(value)))

	got, err := process.Read[uint64](p, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1122334455667788), got)

	require.NoError(t, p.WriteMemory(addr, process.Bytes(uint64(0xCAFEBABE))))
	assert.Equal(t, uint64(0xCAFEBABE), *value)

	_, err = p.ReadMemory(0, 8)
	assert.ErrorIs(t, err, process.ErrAddressNotMapped)
	err = p.WriteMemory(0, []byte{1})
	assert.ErrorIs(t, err, process.ErrAddressNotMapped)
}

func TestGetMemoryMap(t *testing.T) {
	p, err := NewWithPID(process.CurrentProcess)
	require.NoError(t, err)
	defer p.Close()

	mm, err := p.GetMemoryMap()
	require.NoError(t, err)
	require.NotEmpty(t, mm)

	for i := 1; i < len(mm); i++ {
		assert.LessOrEqual(t, mm[i-1].Address, mm[i].Address)
	}
}

func TestInjectionNotSupported(t *testing.T) {
	p, err := NewWithPID(process.CurrentProcess)
	require.NoError(t, err)
	defer p.Close()

	want := process.ErrNotSupported
	if process.CallerArch() == process.ArchUnknown {
		want = process.ErrArchMismatch
	}

	_, err = p.InjectModule("/lib/libc.so.6")
	assert.ErrorIs(t, err, want)
	_, err = process.Call1(p, 0x1000, uint32(1))
	assert.ErrorIs(t, err, want)
	_, err = p.RemoteCall(0x1000)
	assert.ErrorIs(t, err, process.ErrTooManyParams)
}

func stopped(t *testing.T, pid process.ProcessID) bool {
	proc, err := psutil.NewProcess(int32(pid))
	require.NoError(t, err)
	status, err := proc.Status()
	require.NoError(t, err)
	return len(status) == 1 && status[0] == psutil.Stop
}

func TestPauseUnpause(t *testing.T) {
	child := startSleeper(t)
	pid := process.ProcessID(child.Process.Pid)

	p, err := NewWithPID(pid)
	require.NoError(t, err)
	defer p.Close()

	p.Pause()
	assert.Eventually(t, func() bool { return stopped(t, pid) }, 5*time.Second, 10*time.Millisecond)

	p.Unpause()
	assert.Eventually(t, func() bool { return !stopped(t, pid) }, 5*time.Second, 10*time.Millisecond)
}

func TestPauseNotOpen(t *testing.T) {
	p := New()
	assert.NotPanics(t, p.Pause)
	assert.NotPanics(t, p.Unpause)
}

func TestFinder(t *testing.T) {
	child := startSleeper(t)
	f := NewProcessFinder()

	self, err := f.FindProcessByPID(process.CurrentProcess)
	require.NoError(t, err)
	assert.Equal(t, process.ProcessID(os.Getpid()), self.PID)
	assert.Positive(t, self.Threads)

	byName, err := f.FindProcessByName("sleep")
	require.NoError(t, err)
	pids := make([]process.ProcessID, 0, len(byName))
	for _, proc := range byName {
		pids = append(pids, proc.PID)
	}
	assert.Contains(t, pids, process.ProcessID(child.Process.Pid))

	children, err := f.FindChildProcesses(process.ProcessID(os.Getpid()))
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, process.ProcessID(child.Process.Pid), children[0].PID)

	tree, err := f.GetProcessTree(process.CurrentProcess)
	require.NoError(t, err)
	require.Len(t, tree.Children, 1)
	assert.Equal(t, process.ProcessID(child.Process.Pid), tree.Children[0].Process.PID)

	_, err = f.FindProcessByName("goinject-no-such-process")
	assert.ErrorIs(t, err, process.ErrNotFound)
	_, err = f.FindProcessByPID(0x7FFFFFF0)
	assert.ErrorIs(t, err, process.ErrNotFound)
}
