//go:build windows && amd64

package process_windows

import (
	"sync/atomic"
	"testing"

	"goinject/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

var (
	echoArgs  [2]atomic.Uint64
	echoProbe = windows.NewCallback(func(a, b uintptr) uintptr {
		echoArgs[0].Store(uint64(a))
		echoArgs[1].Store(uint64(b))
		return 7
	})
)

func TestRemoteCallTwoParams(t *testing.T) {
	p := openSelf(t)
	fn := process.ProcessMemoryAddress(echoProbe)

	tests := []struct {
		name   string
		call   func() (uint32, error)
		first  uint64
		second uint64
	}{
		{
			name:   "dword and qword",
			call:   func() (uint32, error) { return process.Call2(p, fn, uint32(0xAABBCCDD), uint64(0x1122334455667788)) },
			first:  0xAABBCCDD,
			second: 0x1122334455667788,
		},
		{
			name:   "byte and word",
			call:   func() (uint32, error) { return process.Call2(p, fn, uint8(0x7F), uint16(0xBEEF)) },
			first:  0x7F,
			second: 0xBEEF,
		},
		{
			name:   "pointer sized",
			call:   func() (uint32, error) { return process.Call2(p, fn, uintptr(0xFFFF800012345678), uintptr(1)) },
			first:  0xFFFF800012345678,
			second: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			echoArgs[0].Store(0xDEAD)
			echoArgs[1].Store(0xDEAD)

			code, err := tt.call()
			require.NoError(t, err)
			assert.Equal(t, uint32(7), code)
			assert.Equal(t, tt.first, echoArgs[0].Load())
			assert.Equal(t, tt.second, echoArgs[1].Load())
		})
	}
}
