//go:build windows && (amd64 || arm64)

package memory_map

// MemoryBasicInformation mirrors MEMORY_BASIC_INFORMATION on 64-bit Windows
type MemoryBasicInformation struct {
	BaseAddress       uintptr
	AllocationBase    uintptr
	AllocationProtect uint32
	PartitionId       uint16
	RegionSize        uintptr
	State             uint32
	Protect           uint32
	Type              uint32
}
