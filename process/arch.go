package process

import (
	"fmt"
	"runtime"
)

// Arch is the instruction-set bitness of a process
type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86
	ArchX64
)

func (a Arch) String() string {
	switch a {
	case ArchX86:
		return "x86"
	case ArchX64:
		return "x64"
	default:
		return "unknown"
	}
}

// PointerSize returns the size of a pointer in bytes, 0 for ArchUnknown.
func (a Arch) PointerSize() int {
	switch a {
	case ArchX86:
		return 4
	case ArchX64:
		return 8
	default:
		return 0
	}
}

// Bits returns 32 or 64, 0 for ArchUnknown.
func (a Arch) Bits() int {
	return a.PointerSize() * 8
}

// ArchFromGOARCH maps a Go architecture name to an Arch.
// Only the x86 family is supported, everything else is ArchUnknown.
func ArchFromGOARCH(goarch string) Arch {
	switch goarch {
	case "386":
		return ArchX86
	case "amd64":
		return ArchX64
	default:
		return ArchUnknown
	}
}

// CallerArch returns the bitness of the running build.
func CallerArch() Arch {
	return ArchFromGOARCH(runtime.GOARCH)
}

// CheckArch verifies that target can be injected into or called from the caller.
func CheckArch(caller, target Arch) error {
	if caller == ArchUnknown || target == ArchUnknown || caller != target {
		return fmt.Errorf("%w: caller is %s, target is %s", ErrArchMismatch, caller, target)
	}
	return nil
}
