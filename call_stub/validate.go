package call_stub

import (
	"errors"
	"fmt"

	"goinject/process"

	"golang.org/x/arch/x86/x86asm"
)

// ErrInvalidStub is returned when generated code fails validation
var ErrInvalidStub = errors.New("invalid call stub")

// Validate decodes the instruction part of s and checks that it is position independent:
// every memory operand is register or instruction relative, every relative branch stays
// inside the code, every instruction-relative load reads the literal pool, and control
// cannot fall through into the literal.
func Validate(s *Stub) error {
	if s == nil || s.CodeLen <= 0 || s.CodeLen > len(s.Code) {
		return fmt.Errorf("%w: empty or truncated", ErrInvalidStub)
	}
	if s.LiteralOffset < s.CodeLen || s.LiteralOffset+s.Arch.PointerSize() != len(s.Code) {
		return fmt.Errorf("%w: literal at %d does not follow code of %d bytes", ErrInvalidStub, s.LiteralOffset, s.CodeLen)
	}

	bits := s.Arch.Bits()
	if bits == 0 {
		return fmt.Errorf("%w: %s", process.ErrArchMismatch, s.Arch)
	}

	var last x86asm.Inst
	for pc := 0; pc < s.CodeLen; {
		inst, err := x86asm.Decode(s.Code[pc:s.CodeLen], bits)
		if err != nil {
			return fmt.Errorf("%w: decode at %d: %v", ErrInvalidStub, pc, err)
		}
		next := pc + inst.Len

		for _, arg := range inst.Args {
			if arg == nil {
				break
			}
			switch a := arg.(type) {
			case x86asm.Mem:
				if a.Segment != 0 {
					return fmt.Errorf("%w: segment override at %d", ErrInvalidStub, pc)
				}
				if a.Base == 0 && a.Index == 0 {
					return fmt.Errorf("%w: absolute memory operand at %d", ErrInvalidStub, pc)
				}
				if a.Base == x86asm.RIP {
					target := next + int(a.Disp)
					if target != s.LiteralOffset {
						return fmt.Errorf("%w: instruction-relative load at %d reads %d, not the literal", ErrInvalidStub, pc, target)
					}
				}
			case x86asm.Rel:
				target := next + int(a)
				if target < 0 || target >= s.CodeLen {
					return fmt.Errorf("%w: branch at %d leaves the stub", ErrInvalidStub, pc)
				}
			case x86asm.Imm:
				if a > 0xFFFF || a < -0xFFFF {
					return fmt.Errorf("%w: immediate %#x at %d looks like an address", ErrInvalidStub, int64(a), pc)
				}
			}
		}

		last = inst
		pc = next
	}

	switch last.Op {
	case x86asm.RET, x86asm.JMP:
	default:
		return fmt.Errorf("%w: code ends in %v and falls into the literal", ErrInvalidStub, last.Op)
	}

	return nil
}

// Disassemble renders the instruction part of s in Intel syntax, one line per instruction,
// addressed relative to base
func Disassemble(s *Stub, base uint64) ([]string, error) {
	var lines []string
	for pc := 0; pc < s.CodeLen; {
		inst, err := x86asm.Decode(s.Code[pc:s.CodeLen], s.Arch.Bits())
		if err != nil {
			return lines, fmt.Errorf("%w: decode at %d: %v", ErrInvalidStub, pc, err)
		}
		lines = append(lines, fmt.Sprintf("%#08x  %-24x %s", base+uint64(pc), s.Code[pc:pc+inst.Len], x86asm.IntelSyntax(inst, base+uint64(pc), nil)))
		pc += inst.Len
	}
	return lines, nil
}
