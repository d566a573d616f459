package call_stub

import (
	"encoding/binary"

	"goinject/process"
)

// generateX86 targets 32-bit Windows. The thread start routine calls the stub as
// stdcall with the buffer pointer at [esp+4]. The callee receives both parameters on the
// stack, pushed right to left; 8-byte parameters take two slots, narrow ones are widened
// to a full slot. EBP keeps the entry stack pointer so the stub works whether the callee
// pops its own arguments (stdcall) or leaves them (cdecl). With no instruction-relative
// addressing on x86 the stub finds its literal through the call/pop idiom.
//
//	push ebp
//	mov  ebp, esp
//	mov  eax, [ebp+8]
//	push <parameter 2 slots>
//	push <parameter 1 slots>
//	call next
//	next: pop ecx
//	call dword ptr [ecx+lit-next]
//	mov  esp, ebp
//	pop  ebp
//	ret  4
//	dd   callee
func generateX86(layout Layout, fn uint32) *Stub {
	code := []byte{
		0x55,             // push ebp
		0x89, 0xE5,       // mov ebp, esp
		0x8B, 0x45, 0x08, // mov eax, [ebp+8]
	}
	code = append(code, pushX86(layout.Offsets[1], layout.Sizes[1])...)
	code = append(code, pushX86(layout.Offsets[0], layout.Sizes[0])...)

	code = append(code, 0xE8, 0, 0, 0, 0) // call next
	next := len(code)
	code = append(code, 0x59) // pop ecx

	callAt := len(code)
	code = append(code,
		0xFF, 0x51, 0,    // call dword ptr [ecx+disp8]
		0x89, 0xEC,       // mov esp, ebp
		0x5D,             // pop ebp
		0xC2, 0x04, 0x00, // ret 4
	)
	codeLen := len(code)

	code = padTo(code, 4)
	literal := len(code)
	code[callAt+2] = byte(literal - next)
	code = binary.LittleEndian.AppendUint32(code, fn)

	return &Stub{
		Arch:          process.ArchX86,
		Code:          code,
		CodeLen:       codeLen,
		LiteralOffset: literal,
	}
}

// pushX86 pushes the parameter at [eax+off] as one or two stack slots
func pushX86(off, size int) []byte {
	switch size {
	case 8:
		// high dword first so the low dword ends up at the lower address
		return []byte{
			0xFF, 0x70, byte(off + 4), // push dword ptr [eax+off+4]
			0xFF, 0x70, byte(off),     // push dword ptr [eax+off]
		}
	case 4:
		return []byte{0xFF, 0x70, byte(off)}
	case 2:
		return []byte{0x0F, 0xB7, 0x50, byte(off), 0x52} // movzx edx, word ptr [eax+off]; push edx
	default:
		return []byte{0x0F, 0xB6, 0x50, byte(off), 0x52} // movzx edx, byte ptr [eax+off]; push edx
	}
}
