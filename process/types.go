package process

// ProcessID represents a unique identifier for a process
type ProcessID int

const (
	// CurrentProcess is the sentinel pid for the calling process. It is resolved to the
	// real pid when a descriptor is opened.
	CurrentProcess ProcessID = -1

	// InvalidProcessID is returned when a pid cannot be resolved, e.g. a parent that has exited.
	InvalidProcessID ProcessID = -1
)

// ProcessInfo contains basic information about a process
type ProcessInfo struct {
	PID     ProcessID // Process ID
	PPID    ProcessID // Parent Process ID
	Name    string    // Image name (exe basename on Windows, comm on Linux)
	Exe     string    // Path to the executable, empty when it cannot be queried
	Threads int       // Number of threads
	Created int64     // Creation time in milliseconds since 1970, 0 when unknown
}

// ProcessTreeNode represents a node in a process tree
type ProcessTreeNode struct {
	Process  ProcessInfo
	Children []*ProcessTreeNode
}
