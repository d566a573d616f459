package process

import (
	"goinject/process/memory_map"
)

// Process is the interface that defines operations for interacting with a system process
type Process interface {
	// Open resolves pid (CurrentProcess allowed) and acquires the process handle
	Open(pid ProcessID) error

	// Close releases the process handle. Calling it more than once is a no-op.
	Close() error

	// IsOpen reports whether the descriptor currently owns an open handle
	IsOpen() bool

	// Identity operations
	ProcessDescriptor

	// ReadMemory reads memory from the process at the specified address
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)

	// WriteMemory writes data to the process memory at the specified address
	WriteMemory(addr ProcessMemoryAddress, data []byte) error

	// GetMemoryMap returns the committed regions of the process address space
	GetMemoryMap() ([]memory_map.MemoryMapItem, error)

	// Module loading inside the target
	ModuleInjector

	// Function calls inside the target
	RemoteCaller

	// Whole-process freeze and thaw
	ThreadSuspender
}

// ProcessDescriptor resolves the identity of a process
type ProcessDescriptor interface {
	// GetPID returns the resolved process ID, never CurrentProcess once opened
	GetPID() ProcessID

	// GetFileName returns the full image path of the process
	GetFileName() (string, error)

	// GetArch returns the bitness of the process, ArchUnknown if it cannot be determined
	GetArch() Arch

	// GetParentPID returns the pid of the creating process, InvalidProcessID if it is gone
	GetParentPID() ProcessID
}

// ModuleInjector loads dynamic modules into a process
type ModuleInjector interface {
	// InjectModule loads the module at path into the process and returns its base address
	// inside the process, or 0 with an error
	InjectModule(path string) (ProcessMemoryAddress, error)
}

// RemoteCaller runs functions that already live inside the process address space
type RemoteCaller interface {
	// RemoteCall runs fn on a new thread inside the process with one or two marshaled
	// parameters and returns the thread's exit code uninterpreted
	RemoteCall(fn ProcessMemoryAddress, params ...[]byte) (uint32, error)
}

// ThreadSuspender freezes and resumes every thread of a process. Calls are best-effort
// and are not counted; callers must pair Pause and Unpause themselves.
type ThreadSuspender interface {
	Pause()
	Unpause()
}
