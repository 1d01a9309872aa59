// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"sync"
	"sync/atomic"
)

// BytePool hands out empty byte slices with at least the initial capacity
// and takes them back once written. Slices grown past max are dropped so a
// single large frame does not pin memory.
type BytePool struct {
	pool   sync.Pool // of *[]byte
	size   int
	max    int
	gets   atomic.Int64
	allocs atomic.Int64
}

// NewBytePool creates a pool of size-capacity slices, keeping none larger
// than max.
func NewBytePool(size, max int) *BytePool {
	if max < size {
		max = size
	}
	bp := &BytePool{size: size, max: max}
	bp.pool.New = func() any {
		bp.allocs.Add(1)
		b := make([]byte, 0, bp.size)
		return &b
	}
	return bp
}

// Get returns an empty slice.
func (bp *BytePool) Get() []byte {
	b := *bp.pool.Get().(*[]byte)
	bp.gets.Add(1)
	return b[:0]
}

// Put returns buf to the pool. The caller must not touch buf afterwards.
func (bp *BytePool) Put(buf []byte) {
	if cap(buf) == 0 || cap(buf) > bp.max {
		return
	}
	buf = buf[:0]
	bp.pool.Put(&buf)
}

// Stats reports Get calls and fresh allocations since creation.
func (bp *BytePool) Stats() (gets, allocs int64) {
	return bp.gets.Load(), bp.allocs.Load()
}
