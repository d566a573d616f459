package process

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArchFromGOARCH(t *testing.T) {
	assert.Equal(t, ArchX86, ArchFromGOARCH("386"))
	assert.Equal(t, ArchX64, ArchFromGOARCH("amd64"))
	assert.Equal(t, ArchUnknown, ArchFromGOARCH("arm64"))
	assert.Equal(t, ArchFromGOARCH(runtime.GOARCH), CallerArch())
}

func TestArchSizes(t *testing.T) {
	assert.Equal(t, 4, ArchX86.PointerSize())
	assert.Equal(t, 64, ArchX64.Bits())
	assert.Equal(t, 0, ArchUnknown.Bits())
	assert.Equal(t, "x64", ArchX64.String())
	assert.Equal(t, "unknown", Arch(42).String())
}

func TestCheckArch(t *testing.T) {
	assert.NoError(t, CheckArch(ArchX64, ArchX64))
	assert.NoError(t, CheckArch(ArchX86, ArchX86))
	assert.ErrorIs(t, CheckArch(ArchX64, ArchX86), ErrArchMismatch)
	assert.ErrorIs(t, CheckArch(ArchX86, ArchX64), ErrArchMismatch)
	assert.ErrorIs(t, CheckArch(ArchUnknown, ArchUnknown), ErrArchMismatch)
	assert.ErrorIs(t, CheckArch(ArchX64, ArchUnknown), ErrArchMismatch)
}

func TestOptions(t *testing.T) {
	o := NewOptions()
	assert.Equal(t, DefaultWaitTimeout, o.WaitTimeout)
	assert.False(t, o.SkipSharedBaseCheck)

	o = NewOptions(WithWaitTimeout(0), WithSkipSharedBaseCheck(true))
	assert.Equal(t, DefaultWaitTimeout, o.WaitTimeout, "non-positive timeout keeps the default")
	assert.True(t, o.SkipSharedBaseCheck)

	o = NewOptions(WithWaitTimeout(3 * DefaultWaitTimeout))
	assert.Equal(t, 3*DefaultWaitTimeout, o.WaitTimeout)
}
