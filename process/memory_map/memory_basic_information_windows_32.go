//go:build windows && (386 || arm)

package memory_map

// MemoryBasicInformation mirrors MEMORY_BASIC_INFORMATION on 32-bit Windows
type MemoryBasicInformation struct {
	BaseAddress       uintptr
	AllocationBase    uintptr
	AllocationProtect uint32
	RegionSize        uintptr
	State             uint32
	Protect           uint32
	Type              uint32
}
