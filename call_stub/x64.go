package call_stub

import (
	"encoding/binary"

	"goinject/process"
)

// x64 register numbers as encoded in ModRM.reg
const (
	x64RCX = 1
	x64RDX = 2
)

// generateX64 targets the Windows x64 convention: the thread argument arrives in RCX and
// the callee takes its first two integer arguments in RCX and RDX. The stub ends in a tail
// jump so the callee returns straight to the thread start routine with the stack exactly
// as it was handed to the stub (shadow space and alignment included).
//
//	mov  rax, rcx
//	mov  rcx, [rax+off1]    ; movzx/mov sized to parameter 1
//	mov  rdx, [rax+off2]    ; movzx/mov sized to parameter 2
//	jmp  qword ptr [rip+lit]
//	dq   callee
func generateX64(layout Layout, fn uint64) *Stub {
	code := []byte{0x48, 0x89, 0xC8}
	code = append(code, loadX64(x64RCX, layout.Offsets[0], layout.Sizes[0])...)
	code = append(code, loadX64(x64RDX, layout.Offsets[1], layout.Sizes[1])...)

	jmpAt := len(code)
	code = append(code, 0xFF, 0x25, 0, 0, 0, 0)
	codeLen := len(code)

	code = padTo(code, 8)
	literal := len(code)
	binary.LittleEndian.PutUint32(code[jmpAt+2:], uint32(literal-codeLen))
	code = binary.LittleEndian.AppendUint64(code, fn)

	return &Stub{
		Arch:          process.ArchX64,
		Code:          code,
		CodeLen:       codeLen,
		LiteralOffset: literal,
	}
}

// loadX64 loads size bytes at [rax+off] into reg, zero-extending narrow parameters
func loadX64(reg byte, off, size int) []byte {
	modrm := 0x40 | reg<<3 // [rax+disp8]
	switch size {
	case 8:
		return []byte{0x48, 0x8B, modrm, byte(off)}
	case 4:
		return []byte{0x8B, modrm, byte(off)}
	case 2:
		return []byte{0x0F, 0xB7, modrm, byte(off)}
	default:
		return []byte{0x0F, 0xB6, modrm, byte(off)}
	}
}
