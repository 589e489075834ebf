// File: pool/bytepool.go
// Package pool
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Reusable byte slices for handshake reads and outgoing frames.

package pool

// BytePool hands out *[]byte with at least size bytes of capacity.
// Buffers that grew beyond maxRetain are dropped on Put instead of being
// kept alive by the pool.
type BytePool struct {
	sp        *SyncPool[*[]byte]
	size      int
	maxRetain int
}

// NewBytePool returns a pool of buffers with initial capacity size.
// maxRetain <= 0 keeps buffers of any capacity.
func NewBytePool(size, maxRetain int) *BytePool {
	return &BytePool{
		sp: NewSyncPool(func() *[]byte {
			b := make([]byte, 0, size)
			return &b
		}, func(b *[]byte) {
			*b = (*b)[:0]
		}),
		size:      size,
		maxRetain: maxRetain,
	}
}

// Get returns an empty buffer.
func (b *BytePool) Get() *[]byte { return b.sp.Get() }

// Put returns buf to the pool.
func (b *BytePool) Put(buf *[]byte) {
	if buf == nil {
		return
	}
	if b.maxRetain > 0 && cap(*buf) > b.maxRetain {
		return
	}
	b.sp.Put(buf)
}

// Size returns the initial capacity of new buffers.
func (b *BytePool) Size() int { return b.size }

// Allocated returns how many buffers the pool has created.
func (b *BytePool) Allocated() int64 { return b.sp.Allocated() }
