// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared scalar types and constants used by the broker core and the wire codec.

package api

import (
	"fmt"
	"time"
)

// Handle is a per-process small integer naming an (object, access) pair.
type Handle uint32

const (
	// InvalidHandleValue is never allocated.
	InvalidHandleValue Handle = 0
	// CurrentProcess resolves to the calling process.
	CurrentProcess Handle = 0xffffffff
	// CurrentThread resolves to the calling thread.
	CurrentThread Handle = 0xfffffffe
)

func (h Handle) String() string {
	return fmt.Sprintf("%04x", uint32(h))
}

// Access rights.
const (
	Delete                 uint32 = 0x00010000
	ReadControl            uint32 = 0x00020000
	WriteDAC               uint32 = 0x00040000
	WriteOwner             uint32 = 0x00080000
	Synchronize            uint32 = 0x00100000
	StandardRightsRequired uint32 = 0x000f0000
	StandardRightsAll      uint32 = 0x001f0000
	MaximumAllowed         uint32 = 0x02000000
	GenericAll             uint32 = 0x10000000
	GenericExecute         uint32 = 0x20000000
	GenericWrite           uint32 = 0x40000000
	GenericRead            uint32 = 0x80000000
	GenericMask                   = GenericAll | GenericExecute | GenericWrite | GenericRead
)

// Handle attributes.
const (
	HandleInherit          uint32 = 0x1
	HandleProtectFromClose uint32 = 0x2
)

// DuplicateHandle options.
const (
	DupCloseSource    uint32 = 0x1
	DupSameAccess     uint32 = 0x2
	DupSameAttributes uint32 = 0x4
)

// InfiniteTimeout disables a deadline.
const InfiniteTimeout time.Duration = -1

// TimeoutFromMillis decodes a wire timeout; negative values mean infinite.
func TimeoutFromMillis(ms int64) time.Duration {
	if ms < 0 {
		return InfiniteTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

// MillisFromTimeout encodes a timeout for the wire.
func MillisFromTimeout(d time.Duration) int64 {
	if d < 0 {
		return -1
	}
	return int64(d / time.Millisecond)
}
