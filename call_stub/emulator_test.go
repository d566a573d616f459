package call_stub

import (
	"encoding/binary"
	"fmt"
	"testing"

	"goinject/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"
)

// emulator runs a generated stub over the handful of instructions the generators emit,
// recording every transfer to a foreign callee.
type emulator struct {
	bits       int
	regs       map[string]uint64
	mem        map[uint64]byte
	pc         uint64
	codeStart  uint64
	codeEnd    uint64
	result     uint64
	calleePops uint64
	calls      []emuCall
}

type emuCall struct {
	target uint64
	regs   map[string]uint64
	sp     uint64
}

const (
	emuCode     = 0x10000
	emuBuffer   = 0x20000
	emuStackTop = 0x30000
	emuSentinel = 0xDEAD0000
)

func newEmulator(arch process.Arch, stub *Stub, buf []byte) *emulator {
	e := &emulator{
		bits:      arch.Bits(),
		regs:      map[string]uint64{"a": 0, "c": 0, "d": 0, "bp": 0xB0B0, "sp": emuStackTop},
		mem:       make(map[uint64]byte),
		pc:        emuCode,
		codeStart: emuCode,
		codeEnd:   emuCode + uint64(stub.CodeLen),
		result:    0x2A,
	}
	e.write(emuCode, stub.Code)
	e.write(emuBuffer, buf)
	return e
}

func regName(r x86asm.Reg) (string, int) {
	switch r {
	case x86asm.RAX:
		return "a", 8
	case x86asm.EAX:
		return "a", 4
	case x86asm.RCX:
		return "c", 8
	case x86asm.ECX:
		return "c", 4
	case x86asm.RDX:
		return "d", 8
	case x86asm.EDX:
		return "d", 4
	case x86asm.RSP:
		return "sp", 8
	case x86asm.ESP:
		return "sp", 4
	case x86asm.RBP:
		return "bp", 8
	case x86asm.EBP:
		return "bp", 4
	}
	panic(fmt.Sprintf("emulator: unhandled register %v", r))
}

func (e *emulator) ptr() int { return e.bits / 8 }

func (e *emulator) write(addr uint64, b []byte) {
	for i, c := range b {
		e.mem[addr+uint64(i)] = c
	}
}

func (e *emulator) load(addr uint64, size int) uint64 {
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(e.mem[addr+uint64(i)])
	}
	return v
}

func (e *emulator) store(addr uint64, size int, v uint64) {
	for i := 0; i < size; i++ {
		e.mem[addr+uint64(i)] = byte(v >> (8 * i))
	}
}

func (e *emulator) push(v uint64) {
	e.regs["sp"] -= uint64(e.ptr())
	e.store(e.regs["sp"], e.ptr(), v)
}

func (e *emulator) pop() uint64 {
	v := e.load(e.regs["sp"], e.ptr())
	e.regs["sp"] += uint64(e.ptr())
	return v
}

func (e *emulator) getReg(r x86asm.Reg) uint64 {
	name, size := regName(r)
	if size == 4 {
		return e.regs[name] & 0xFFFFFFFF
	}
	return e.regs[name]
}

// setReg zero-extends 32-bit writes, as both modes do for the registers used here
func (e *emulator) setReg(r x86asm.Reg, v uint64) {
	name, size := regName(r)
	if size == 4 {
		v &= 0xFFFFFFFF
	}
	e.regs[name] = v
}

func (e *emulator) effective(m x86asm.Mem, next uint64) uint64 {
	var base uint64
	if m.Base == x86asm.RIP {
		base = next
	} else {
		base = e.getReg(m.Base)
	}
	return base + uint64(m.Disp)
}

func (e *emulator) branchTarget(inst x86asm.Inst, next uint64) uint64 {
	switch a := inst.Args[0].(type) {
	case x86asm.Rel:
		return next + uint64(int64(a))
	case x86asm.Mem:
		return e.load(e.effective(a, next), e.ptr())
	}
	panic(fmt.Sprintf("emulator: unhandled branch %v", inst))
}

// transfer jumps inside the stub, or records a foreign call and returns from it at once
func (e *emulator) transfer(target uint64) {
	if target >= e.codeStart && target < e.codeEnd {
		e.pc = target
		return
	}

	regs := make(map[string]uint64, len(e.regs))
	for k, v := range e.regs {
		regs[k] = v
	}
	e.calls = append(e.calls, emuCall{target: target, regs: regs, sp: e.regs["sp"]})

	e.regs["a"] = e.result
	e.pc = e.pop()
	e.regs["sp"] += e.calleePops
}

func (e *emulator) run(t *testing.T) {
	t.Helper()

	for steps := 0; e.pc != emuSentinel; steps++ {
		require.Less(t, steps, 64, "stub does not terminate")
		require.True(t, e.pc >= e.codeStart && e.pc < e.codeEnd, "pc %#x left the stub", e.pc)

		code := make([]byte, e.codeEnd-e.pc)
		for i := range code {
			code[i] = e.mem[e.pc+uint64(i)]
		}
		inst, err := x86asm.Decode(code, e.bits)
		require.NoError(t, err)
		next := e.pc + uint64(inst.Len)

		switch inst.Op {
		case x86asm.MOV:
			dst := inst.Args[0].(x86asm.Reg)
			switch src := inst.Args[1].(type) {
			case x86asm.Reg:
				e.setReg(dst, e.getReg(src))
			case x86asm.Mem:
				_, size := regName(dst)
				e.setReg(dst, e.load(e.effective(src, next), size))
			default:
				t.Fatalf("unhandled mov source in %v", inst)
			}
			e.pc = next
		case x86asm.MOVZX:
			src := inst.Args[1].(x86asm.Mem)
			e.setReg(inst.Args[0].(x86asm.Reg), e.load(e.effective(src, next), inst.MemBytes))
			e.pc = next
		case x86asm.PUSH:
			switch src := inst.Args[0].(type) {
			case x86asm.Reg:
				e.push(e.getReg(src))
			case x86asm.Mem:
				e.push(e.load(e.effective(src, next), e.ptr()))
			default:
				t.Fatalf("unhandled push operand in %v", inst)
			}
			e.pc = next
		case x86asm.POP:
			e.setReg(inst.Args[0].(x86asm.Reg), e.pop())
			e.pc = next
		case x86asm.CALL:
			target := e.branchTarget(inst, next)
			e.push(next)
			e.transfer(target)
		case x86asm.JMP:
			e.transfer(e.branchTarget(inst, next))
		case x86asm.RET:
			ret := e.pop()
			if imm, ok := inst.Args[0].(x86asm.Imm); ok {
				e.regs["sp"] += uint64(imm)
			}
			e.pc = ret
		default:
			t.Fatalf("unexpected instruction %v", inst)
		}
	}
}

func truncate(v uint64, size int) uint64 {
	if size == 8 {
		return v
	}
	return v & (1<<(8*size) - 1)
}

func leBytes(v uint64, size int) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)[:size]
}

// x86Slots returns the dwords a parameter occupies on a 32-bit stack, lowest address first
func x86Slots(v uint64, size int) []uint64 {
	v = truncate(v, size)
	if size == 8 {
		return []uint64{v & 0xFFFFFFFF, v >> 32}
	}
	return []uint64{v}
}

const (
	emuParam1 = 0x8877665544332211
	emuParam2 = 0x0102030405060708
	emuCallee = 0x7FF612345678
)

func TestEmulateX64Stub(t *testing.T) {
	sizes := []int{1, 2, 4, 8}
	for _, s1 := range sizes {
		for _, s2 := range sizes {
			t.Run(fmt.Sprintf("%d_%d", s1, s2), func(t *testing.T) {
				buf, layout, err := Pack(leBytes(emuParam1, s1), leBytes(emuParam2, s2))
				require.NoError(t, err)
				stub, err := Generate(process.ArchX64, layout, emuCallee)
				require.NoError(t, err)

				e := newEmulator(process.ArchX64, stub, buf)
				e.regs["c"] = emuBuffer
				e.regs["d"] = 0xFFFFFFFFFFFFFFFF
				e.push(emuSentinel)
				entrySP := e.regs["sp"]

				e.run(t)

				require.Len(t, e.calls, 1)
				call := e.calls[0]
				assert.Equal(t, uint64(emuCallee), call.target)
				assert.Equal(t, truncate(emuParam1, s1), call.regs["c"])
				assert.Equal(t, truncate(emuParam2, s2), call.regs["d"])
				assert.Equal(t, entrySP, call.sp, "tail call must hand over the entry stack")
				assert.Equal(t, entrySP+8, e.regs["sp"])
				assert.Equal(t, e.result, e.regs["a"])
			})
		}
	}
}

func TestEmulateX86Stub(t *testing.T) {
	sizes := []int{1, 2, 4, 8}
	for _, pops := range []bool{false, true} {
		for _, s1 := range sizes {
			for _, s2 := range sizes {
				t.Run(fmt.Sprintf("%d_%d_calleePops=%v", s1, s2, pops), func(t *testing.T) {
					buf, layout, err := Pack(leBytes(emuParam1, s1), leBytes(emuParam2, s2))
					require.NoError(t, err)
					stub, err := Generate(process.ArchX86, layout, 0x77001234)
					require.NoError(t, err)

					want := append(x86Slots(emuParam1, s1), x86Slots(emuParam2, s2)...)

					e := newEmulator(process.ArchX86, stub, buf)
					if pops {
						e.calleePops = uint64(4 * len(want))
					}
					e.push(emuBuffer)
					e.push(emuSentinel)
					entrySP := e.regs["sp"]

					e.run(t)

					require.Len(t, e.calls, 1)
					call := e.calls[0]
					assert.Equal(t, uint64(0x77001234), call.target)

					var got []uint64
					for i := range want {
						got = append(got, e.load(call.sp+4+uint64(4*i), 4))
					}
					assert.Equal(t, want, got)

					assert.Equal(t, entrySP+8, e.regs["sp"], "ret 4 must drop the thread argument")
					assert.Equal(t, uint64(0xB0B0), e.regs["bp"])
					assert.Equal(t, e.result, e.regs["a"])
				})
			}
		}
	}
}
