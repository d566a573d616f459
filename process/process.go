// Package process provides interfaces and types for process injection and remote execution
package process

import "errors"

// Types and interfaces live in separate files:
// - types.go: ProcessID, ProcessInfo, ProcessTreeNode
// - arch.go: Arch and the caller's own bitness
// - memory_types.go: ProcessMemoryAddress, ProcessMemorySize
// - process_interface.go: Process interface
// - process_finder.go: ProcessFinder interface
// - options.go: Options shared by the platform backends

var (
	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = errors.New("process not open")

	// ErrPermissionDenied is returned when a process or thread cannot be opened with the required rights.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when a pid, module or path does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrArchMismatch is returned when caller and target bitness differ. Injection and remote
	// calls are refused before the target is touched.
	ErrArchMismatch = errors.New("architecture mismatch")

	// ErrAllocationFailure is returned when remote memory cannot be allocated, written or protected.
	ErrAllocationFailure = errors.New("remote allocation failed")

	// ErrThreadCreation is returned when the remote thread cannot be started.
	ErrThreadCreation = errors.New("remote thread creation failed")

	// ErrExecutionTimeout is returned when the bounded wait for a remote thread elapses.
	// Remote memory used by that thread is leaked, not freed.
	ErrExecutionTimeout = errors.New("remote execution timed out")

	// ErrExecutionFailure is returned when the remote thread finished but its result reports failure.
	ErrExecutionFailure = errors.New("remote execution failed")

	// ErrSharedBaseMismatch is returned when a system library is not mapped at the same base in
	// the target as in the caller, so a locally resolved address cannot be used remotely.
	ErrSharedBaseMismatch = errors.New("system library base differs in target")

	// ErrTooManyParams is returned when a remote call is given other than one or two parameters.
	ErrTooManyParams = errors.New("remote call takes one or two parameters")

	// ErrUnsupportedParam is returned when a parameter size cannot be marshaled for the target arch.
	ErrUnsupportedParam = errors.New("unsupported parameter size")

	// ErrNotSupported is returned by backends that cannot perform an operation on this platform.
	ErrNotSupported = errors.New("operation not supported on this platform")

	ErrAddressNotMapped = errors.New("address not mapped")
)
