// Package call_stub packs two remote call parameters into one buffer and generates the
// position-independent x86/x64 code that splits that buffer back into the argument slots
// of the real callee.
//
// A remote thread entry point receives exactly one pointer-sized argument. The stub is
// started in its place with the packed buffer as that argument, loads both parameters
// relative to the buffer pointer and transfers control to the callee through a literal
// stored after the code and addressed relative to the stub itself. Nothing in the code
// depends on where the stub is mapped.
package call_stub

import (
	"encoding/binary"
	"fmt"

	"goinject/process"
)

// MaxParams is the number of parameters a packed buffer carries
const MaxParams = 2

// Layout describes where each parameter lives inside the packed buffer
type Layout struct {
	Size    int            // total buffer size, the sum of both parameter sizes
	Offsets [MaxParams]int // parameter 1 at 0, parameter 2 right after it
	Sizes   [MaxParams]int
}

// Stub is generated code plus its trailing literal pool
type Stub struct {
	Arch          process.Arch
	Code          []byte // instructions followed by padding and the callee literal
	CodeLen       int    // number of instruction bytes
	LiteralOffset int    // offset of the callee address inside Code
}

// NewLayout computes the packed layout for two parameters of the given sizes
func NewLayout(size1, size2 int) (Layout, error) {
	if size1 <= 0 || size2 <= 0 {
		return Layout{}, fmt.Errorf("%w: sizes %d and %d", process.ErrUnsupportedParam, size1, size2)
	}
	return Layout{
		Size:    size1 + size2,
		Offsets: [MaxParams]int{0, size1},
		Sizes:   [MaxParams]int{size1, size2},
	}, nil
}

// Pack copies param1 at offset 0 and param2 immediately after it
func Pack(param1, param2 []byte) ([]byte, Layout, error) {
	layout, err := NewLayout(len(param1), len(param2))
	if err != nil {
		return nil, Layout{}, err
	}

	buf := make([]byte, layout.Size)
	copy(buf[layout.Offsets[0]:], param1)
	copy(buf[layout.Offsets[1]:], param2)
	return buf, layout, nil
}

// SupportedParamSize reports whether a parameter of size bytes can be passed by value
func SupportedParamSize(arch process.Arch, size int) bool {
	switch arch {
	case process.ArchX86, process.ArchX64:
		switch size {
		case 1, 2, 4, 8:
			return true
		}
	}
	return false
}

// Generate emits the unpacking stub for layout that ends in a transfer to fn
func Generate(arch process.Arch, layout Layout, fn process.ProcessMemoryAddress) (*Stub, error) {
	for i, size := range layout.Sizes {
		if !SupportedParamSize(arch, size) {
			return nil, fmt.Errorf("%w: parameter %d is %d bytes on %s", process.ErrUnsupportedParam, i+1, size, arch)
		}
	}
	if layout.Offsets[0] != 0 || layout.Offsets[1] != layout.Sizes[0] || layout.Size != layout.Sizes[0]+layout.Sizes[1] {
		return nil, fmt.Errorf("%w: layout %+v is not packed", process.ErrUnsupportedParam, layout)
	}

	var stub *Stub
	switch arch {
	case process.ArchX64:
		stub = generateX64(layout, uint64(fn))
	case process.ArchX86:
		if uint64(fn) > 0xFFFFFFFF {
			return nil, fmt.Errorf("%w: callee %s does not fit a 32-bit address", process.ErrArchMismatch, fn.ToString())
		}
		stub = generateX86(layout, uint32(fn))
	default:
		return nil, fmt.Errorf("%w: no stub generator for %s", process.ErrArchMismatch, arch)
	}

	if err := Validate(stub); err != nil {
		return nil, err
	}
	return stub, nil
}

// Callee returns the callee address stored in the literal pool
func (s *Stub) Callee() process.ProcessMemoryAddress {
	switch s.Arch {
	case process.ArchX64:
		return process.ProcessMemoryAddress(binary.LittleEndian.Uint64(s.Code[s.LiteralOffset:]))
	case process.ArchX86:
		return process.ProcessMemoryAddress(binary.LittleEndian.Uint32(s.Code[s.LiteralOffset:]))
	default:
		return 0
	}
}

const int3 = 0xCC

// padTo pads code with int3 until its length is a multiple of align
func padTo(code []byte, align int) []byte {
	for len(code)%align != 0 {
		code = append(code, int3)
	}
	return code
}
