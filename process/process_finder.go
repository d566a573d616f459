package process

// ProcessFinder defines operations for discovering processes and their relationships
type ProcessFinder interface {
	// FindProcessByPID finds a process by its PID
	FindProcessByPID(pid ProcessID) (*ProcessInfo, error)

	// FindProcessByName finds processes by their image name (case-insensitive on Windows)
	FindProcessByName(name string) ([]ProcessInfo, error)

	// FindAllProcesses returns information about all running processes
	FindAllProcesses() ([]ProcessInfo, error)

	// FindChildProcesses finds all child processes of a given PID
	FindChildProcesses(parentPID ProcessID) ([]ProcessInfo, error)

	// GetProcessTree returns a tree-like representation of processes starting from a root PID
	GetProcessTree(rootPID ProcessID) (*ProcessTreeNode, error)
}

// BuildProcessTree arranges processes under root using their PPID links.
func BuildProcessTree(root ProcessInfo, all []ProcessInfo) *ProcessTreeNode {
	childrenMap := make(map[ProcessID][]ProcessInfo)
	for _, proc := range all {
		if proc.PID == proc.PPID {
			// pid 0 on Windows is its own parent
			continue
		}
		childrenMap[proc.PPID] = append(childrenMap[proc.PPID], proc)
	}

	visited := make(map[ProcessID]bool)
	return buildProcessTree(root, childrenMap, visited)
}

func buildProcessTree(procInfo ProcessInfo, childrenMap map[ProcessID][]ProcessInfo, visited map[ProcessID]bool) *ProcessTreeNode {
	node := &ProcessTreeNode{
		Process:  procInfo,
		Children: []*ProcessTreeNode{},
	}
	visited[procInfo.PID] = true

	for _, child := range childrenMap[procInfo.PID] {
		// stale PPIDs can form cycles after pid reuse
		if visited[child.PID] || !isChildOf(child, procInfo) {
			continue
		}
		node.Children = append(node.Children, buildProcessTree(child, childrenMap, visited))
	}

	return node
}
