package call_stub

import (
	"encoding/binary"
	"testing"

	"goinject/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackFourAndEight(t *testing.T) {
	p1 := binary.LittleEndian.AppendUint32(nil, 0xAABBCCDD)
	p2 := binary.LittleEndian.AppendUint64(nil, 0x1122334455667788)

	buf, layout, err := Pack(p1, p2)
	require.NoError(t, err)

	assert.Len(t, buf, 12)
	assert.Equal(t, 12, layout.Size)
	assert.Equal(t, [MaxParams]int{0, 4}, layout.Offsets)
	assert.Equal(t, [MaxParams]int{4, 8}, layout.Sizes)
	assert.Equal(t, uint32(0xAABBCCDD), binary.LittleEndian.Uint32(buf[0:]))
	assert.Equal(t, uint64(0x1122334455667788), binary.LittleEndian.Uint64(buf[4:]))
}

func TestPackRejectsEmptyParameter(t *testing.T) {
	_, _, err := Pack(nil, []byte{1})
	assert.ErrorIs(t, err, process.ErrUnsupportedParam)

	_, _, err = Pack([]byte{1}, []byte{})
	assert.ErrorIs(t, err, process.ErrUnsupportedParam)
}

func TestGenerateX64Bytes(t *testing.T) {
	layout, err := NewLayout(4, 8)
	require.NoError(t, err)

	stub, err := Generate(process.ArchX64, layout, 0x1122334455667788)
	require.NoError(t, err)

	want := []byte{
		0x48, 0x89, 0xC8,                   // mov rax, rcx
		0x8B, 0x48, 0x00,                   // mov ecx, [rax+0]
		0x48, 0x8B, 0x50, 0x04,             // mov rdx, [rax+4]
		0xFF, 0x25, 0x00, 0x00, 0x00, 0x00, // jmp [rip+0]
		0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11,
	}
	assert.Equal(t, want, stub.Code)
	assert.Equal(t, 16, stub.CodeLen)
	assert.Equal(t, 16, stub.LiteralOffset)
	assert.Equal(t, process.ProcessMemoryAddress(0x1122334455667788), stub.Callee())
}

func TestGenerateX86Bytes(t *testing.T) {
	layout, err := NewLayout(4, 8)
	require.NoError(t, err)

	stub, err := Generate(process.ArchX86, layout, 0x12345678)
	require.NoError(t, err)

	want := []byte{
		0x55,                         // push ebp
		0x89, 0xE5,                   // mov ebp, esp
		0x8B, 0x45, 0x08,             // mov eax, [ebp+8]
		0xFF, 0x70, 0x08,             // push [eax+8]
		0xFF, 0x70, 0x04,             // push [eax+4]
		0xFF, 0x70, 0x00,             // push [eax+0]
		0xE8, 0x00, 0x00, 0x00, 0x00, // call next
		0x59,                         // pop ecx
		0xFF, 0x51, 0x0C,             // call [ecx+12]
		0x89, 0xEC,                   // mov esp, ebp
		0x5D,                         // pop ebp
		0xC2, 0x04, 0x00,             // ret 4
		0xCC, 0xCC,
		0x78, 0x56, 0x34, 0x12,
	}
	assert.Equal(t, want, stub.Code)
	assert.Equal(t, 30, stub.CodeLen)
	assert.Equal(t, 32, stub.LiteralOffset)
	assert.Equal(t, process.ProcessMemoryAddress(0x12345678), stub.Callee())
}

func TestGenerateOnlyLiteralDependsOnCallee(t *testing.T) {
	for _, arch := range []process.Arch{process.ArchX86, process.ArchX64} {
		layout, err := NewLayout(2, 4)
		require.NoError(t, err)

		a, err := Generate(arch, layout, 0x10001000)
		require.NoError(t, err)
		b, err := Generate(arch, layout, 0x20002000)
		require.NoError(t, err)

		assert.Equal(t, a.Code[:a.LiteralOffset], b.Code[:b.LiteralOffset], arch.String())
		assert.NotEqual(t, a.Code[a.LiteralOffset:], b.Code[b.LiteralOffset:], arch.String())
	}
}

func TestGenerateRejectsUnsupportedSizes(t *testing.T) {
	for _, sizes := range [][2]int{{3, 4}, {4, 16}, {12, 8}} {
		layout, err := NewLayout(sizes[0], sizes[1])
		require.NoError(t, err)

		for _, arch := range []process.Arch{process.ArchX86, process.ArchX64} {
			_, err := Generate(arch, layout, 0x1000)
			assert.ErrorIs(t, err, process.ErrUnsupportedParam, "%v on %s", sizes, arch)
		}
	}
}

func TestGenerateRejectsUnknownArchAndWideCallee(t *testing.T) {
	layout, err := NewLayout(4, 4)
	require.NoError(t, err)

	_, err = Generate(process.ArchUnknown, layout, 0x1000)
	assert.ErrorIs(t, err, process.ErrUnsupportedParam)

	_, err = Generate(process.ArchX86, layout, 0x100000000)
	assert.ErrorIs(t, err, process.ErrArchMismatch)
}

func TestGenerateRejectsUnpackedLayout(t *testing.T) {
	layout := Layout{Size: 16, Offsets: [MaxParams]int{0, 8}, Sizes: [MaxParams]int{4, 8}}
	_, err := Generate(process.ArchX64, layout, 0x1000)
	assert.ErrorIs(t, err, process.ErrUnsupportedParam)
}

func TestValidateAllSizeCombinations(t *testing.T) {
	sizes := []int{1, 2, 4, 8}
	for _, arch := range []process.Arch{process.ArchX86, process.ArchX64} {
		for _, s1 := range sizes {
			for _, s2 := range sizes {
				layout, err := NewLayout(s1, s2)
				require.NoError(t, err)

				stub, err := Generate(arch, layout, 0x7FFE0000)
				require.NoError(t, err, "%s %d/%d", arch, s1, s2)
				assert.NoError(t, Validate(stub))
				assert.Zero(t, stub.LiteralOffset%arch.PointerSize())
			}
		}
	}
}

func TestValidateRejectsAbsoluteOperand(t *testing.T) {
	stub := &Stub{
		Arch: process.ArchX86,
		Code: []byte{
			0xA1, 0x78, 0x56, 0x34, 0x12, // mov eax, [0x12345678]
			0xC3,                         // ret
			0xCC, 0xCC,
			0, 0, 0, 0,
		},
		CodeLen:       6,
		LiteralOffset: 8,
	}
	assert.ErrorIs(t, Validate(stub), ErrInvalidStub)
}

func TestValidateRejectsFallThrough(t *testing.T) {
	stub := &Stub{
		Arch:          process.ArchX64,
		Code:          []byte{0x48, 0x89, 0xC8, 0x90, 0xCC, 0xCC, 0xCC, 0xCC, 0, 0, 0, 0, 0, 0, 0, 0},
		CodeLen:       4,
		LiteralOffset: 8,
	}
	assert.ErrorIs(t, Validate(stub), ErrInvalidStub)
}

func TestValidateRejectsBranchOutOfStub(t *testing.T) {
	stub := &Stub{
		Arch: process.ArchX86,
		Code: []byte{
			0xE8, 0x00, 0x01, 0x00, 0x00, // call +0x100
			0xC3,
			0xCC, 0xCC,
			0, 0, 0, 0,
		},
		CodeLen:       6,
		LiteralOffset: 8,
	}
	assert.ErrorIs(t, Validate(stub), ErrInvalidStub)
}

func TestValidateRejectsMisplacedLiteral(t *testing.T) {
	layout, err := NewLayout(4, 4)
	require.NoError(t, err)
	stub, err := Generate(process.ArchX64, layout, 0x1000)
	require.NoError(t, err)

	stub.LiteralOffset -= 8
	assert.ErrorIs(t, Validate(stub), ErrInvalidStub)
}

func TestDisassemble(t *testing.T) {
	layout, err := NewLayout(4, 8)
	require.NoError(t, err)
	stub, err := Generate(process.ArchX64, layout, 0x1000)
	require.NoError(t, err)

	lines, err := Disassemble(stub, 0x10000)
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "mov rax, rcx")
	assert.Contains(t, lines[3], "jmp")
}
