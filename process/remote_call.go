package process

import (
	"fmt"
	"unsafe"
)

// Bytes returns a copy of the in-memory representation of v.
// T must be trivially copyable: no pointers, slices, maps or strings.
func Bytes[T any](v T) []byte {
	size := int(unsafe.Sizeof(v))
	if size == 0 {
		return nil
	}

	src := unsafe.Slice((*byte)(unsafe.Pointer(&v)), size)
	out := make([]byte, size)
	copy(out, src)
	return out
}

// Call1 marshals param into the target and runs fn with a pointer to the copy.
func Call1[T any](caller RemoteCaller, fn ProcessMemoryAddress, param T) (uint32, error) {
	return caller.RemoteCall(fn, Bytes(param))
}

// Call2 marshals both params into one buffer and runs fn with them split back into
// its two argument slots.
func Call2[T1, T2 any](caller RemoteCaller, fn ProcessMemoryAddress, param1 T1, param2 T2) (uint32, error) {
	return caller.RemoteCall(fn, Bytes(param1), Bytes(param2))
}

// Read reads a single value of type T from process memory
func Read[T any](proc Process, addr ProcessMemoryAddress) (T, error) {
	var t T
	size := ProcessMemorySize(unsafe.Sizeof(t))
	if size == 0 {
		return t, nil
	}

	data, err := proc.ReadMemory(addr, size)
	if err != nil {
		return t, fmt.Errorf("failed to read %d bytes at %s: %w", size, addr.ToString(), err)
	}

	copyTo(&t, data)
	return t, nil
}

// copyTo copies bytes to *T
func copyTo[T any](dst *T, src []byte) {
	size := int(unsafe.Sizeof(*dst))
	if len(src) < size {
		return
	}

	dstBytes := unsafe.Slice((*byte)(unsafe.Pointer(dst)), size)
	copy(dstBytes, src)
}
