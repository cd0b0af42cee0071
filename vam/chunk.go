package vam

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// BackingChunk is a single allocation made by the BackingProvider. Pool chunks are carved into many
// Allocation objects and live until the DeviceHeap is destroyed. Dedicated chunks back exactly one
// Allocation and are freed as soon as that Allocation is released.
//
// A chunk is reference counted: the pool that owns it holds one reference and every live Allocation
// carved from it holds another.
type BackingChunk struct {
	heap *DeviceHeap

	handle    BackingHandle
	size      int
	typeIndex int
	heapIndex int
	tiling    Tiling
	lifetime  Lifetime
	mapped    unsafe.Pointer
	index     int
	dedicated bool

	refs atomic.Int32
}

// Handle returns the provider's handle for this chunk's memory
func (c *BackingChunk) Handle() BackingHandle { return c.handle }

// Size returns the size of the chunk in bytes
func (c *BackingChunk) Size() int { return c.size }

// MemoryTypeIndex returns the memory type the chunk was allocated from
func (c *BackingChunk) MemoryTypeIndex() int { return c.typeIndex }

// HeapIndex returns the memory heap that the chunk's memory type belongs to
func (c *BackingChunk) HeapIndex() int { return c.heapIndex }

func (c *BackingChunk) Tiling() Tiling { return c.tiling }

func (c *BackingChunk) Lifetime() Lifetime { return c.lifetime }

// MappedData returns the host address of the start of the chunk, or nil if the chunk's memory
// type is not host visible
func (c *BackingChunk) MappedData() unsafe.Pointer { return c.mapped }

// Index returns the position of this chunk in its pool, or -1 for dedicated chunks
func (c *BackingChunk) Index() int { return c.index }

// IsDedicated returns true if the chunk backs a single dedicated Allocation
func (c *BackingChunk) IsDedicated() bool { return c.dedicated }

// References returns the current reference count of the chunk
func (c *BackingChunk) References() int {
	return int(c.refs.Load())
}

func (c *BackingChunk) String() string {
	if c.dedicated {
		return fmt.Sprintf("dedicated chunk (type %d, %s, %d bytes)", c.typeIndex, c.tiling, c.size)
	}
	return fmt.Sprintf("chunk %d (type %d, %s, %s, %d bytes)", c.index, c.typeIndex, c.tiling, c.lifetime, c.size)
}

func (c *BackingChunk) retain() {
	if c.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("attempted to retain %s after its last reference was released", c))
	}
}

func (c *BackingChunk) release() int {
	remaining := c.refs.Add(-1)
	if remaining < 0 {
		panic(fmt.Sprintf("%s was released more times than it was retained", c))
	}
	return int(remaining)
}
