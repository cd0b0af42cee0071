package vam

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/chunkheap/memutils/metadata"
)

type allocationType byte

const (
	allocationTypeBlock allocationType = iota
	allocationTypeDedicated
)

var allocationTypeMapping = make(map[allocationType]string)

func (t allocationType) String() string {
	return allocationTypeMapping[t]
}

func init() {
	allocationTypeMapping[allocationTypeBlock] = "allocationTypeBlock"
	allocationTypeMapping[allocationTypeDedicated] = "allocationTypeDedicated"
}

type dedicatedData struct {
	nextAlloc *Allocation
	prevAlloc *Allocation
}

// Allocation is a region of a BackingChunk handed out by a DeviceHeap. Its chunk, offset, and size
// never change. An Allocation is reference counted: it is created with a single reference, Retain adds
// one, and the Release that drops the last one returns the region to the pool it came from. Dedicated
// allocations free their chunk instead.
//
// Once the last reference has been released, the region may immediately be handed out again, so
// consumers must stop using any pointer or binding derived from the Allocation before that point.
type Allocation struct {
	chunk          *BackingChunk
	pool           *chunkPool
	allocationType allocationType
	offset         int
	size           int

	refs     atomic.Int32
	userData any
	name     string

	dedicatedData dedicatedData
}

func newBlockAllocation(pool *chunkPool, chunk *BackingChunk, block metadata.Block) *Allocation {
	alloc := &Allocation{
		chunk:          chunk,
		pool:           pool,
		allocationType: allocationTypeBlock,
		offset:         block.Start,
		size:           block.Size(),
	}
	alloc.refs.Store(1)
	return alloc
}

// newDedicatedAllocation takes ownership of the chunk's only reference. Dedicated allocations cover
// the whole chunk, which is indicated by an offset and size of 0.
func newDedicatedAllocation(chunk *BackingChunk) *Allocation {
	alloc := &Allocation{
		chunk:          chunk,
		allocationType: allocationTypeDedicated,
	}
	alloc.refs.Store(1)
	return alloc
}

// Offset returns the offset in bytes of this allocation from the beginning of its chunk's memory
func (a *Allocation) Offset() int { return a.offset }

// WholeSize returns true if this allocation covers its entire chunk
func (a *Allocation) WholeSize() bool {
	return a.offset == 0 && a.size == 0
}

// Size returns the size of the allocation in bytes. For allocations that cover their whole chunk,
// this is the size of the chunk.
func (a *Allocation) Size() int {
	if a.WholeSize() {
		return a.chunk.size
	}
	return a.size
}

// End returns the offset in bytes of the first byte past the end of this allocation
func (a *Allocation) End() int {
	return a.offset + a.Size()
}

// Chunk returns the BackingChunk this allocation was carved from
func (a *Allocation) Chunk() *BackingChunk { return a.chunk }

// Memory returns the provider's handle for the memory this allocation lives in. Resources should
// be bound to this memory at Offset.
func (a *Allocation) Memory() BackingHandle { return a.chunk.handle }

func (a *Allocation) MemoryTypeIndex() int { return a.chunk.typeIndex }

func (a *Allocation) Tiling() Tiling { return a.chunk.tiling }

func (a *Allocation) Lifetime() Lifetime { return a.chunk.lifetime }

// IsDedicated returns true if this allocation has a chunk to itself
func (a *Allocation) IsDedicated() bool {
	return a.allocationType == allocationTypeDedicated
}

// MappedData returns the host address of the beginning of this allocation, or nil if the
// allocation's memory type is not host visible
func (a *Allocation) MappedData() unsafe.Pointer {
	if a.chunk.mapped == nil {
		return nil
	}
	return unsafe.Add(a.chunk.mapped, a.offset)
}

// Bytes returns the mapped memory of this allocation as a byte slice, or nil if the allocation's
// memory type is not host visible. The slice must not be used after the allocation is released.
func (a *Allocation) Bytes() []byte {
	data := a.MappedData()
	if data == nil {
		return nil
	}
	return unsafe.Slice((*byte)(data), a.Size())
}

// Name returns a string name previously set with SetName
func (a *Allocation) Name() string {
	return a.name
}

// SetName applies a name to the Allocation that can be used to identify it in BuildStatsString
func (a *Allocation) SetName(name string) {
	a.name = name
}

// UserData returns the value previously set with SetUserData
func (a *Allocation) UserData() any {
	return a.userData
}

// SetUserData attaches an arbitrary value to the Allocation
func (a *Allocation) SetUserData(userData any) {
	a.userData = userData
}

// References returns the current reference count of the Allocation
func (a *Allocation) References() int {
	return int(a.refs.Load())
}

// Retain adds a reference to the Allocation. Every call to Retain must be balanced by a call to Release.
func (a *Allocation) Retain() *Allocation {
	if a.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("attempted to retain allocation %s after its last reference was released", a))
	}
	return a
}

// Release drops a reference to the Allocation. When the last reference is dropped, the allocation's
// memory is returned to the heap.
func (a *Allocation) Release() {
	remaining := a.refs.Add(-1)
	if remaining > 0 {
		return
	}
	if remaining < 0 {
		panic(fmt.Sprintf("allocation %s was released more times than it was retained", a))
	}

	switch a.allocationType {
	case allocationTypeBlock:
		a.pool.free(a)
		if a.chunk.release() == 0 {
			panic(fmt.Sprintf("%s lost the reference held by its pool", a.chunk))
		}
	case allocationTypeDedicated:
		a.chunk.heap.freeDedicatedMemory(a)
	default:
		panic(fmt.Sprintf("attempted to release an allocation with an unknown type: %s", a.allocationType))
	}
}

func (a *Allocation) block() metadata.Block {
	return metadata.Block{Chunk: a.chunk.index, Start: a.offset, End: a.offset + a.size}
}

func (a *Allocation) String() string {
	if a.name != "" {
		return fmt.Sprintf("%q [%d, %d) in %s", a.name, a.offset, a.End(), a.chunk)
	}
	return fmt.Sprintf("[%d, %d) in %s", a.offset, a.End(), a.chunk)
}

func (a *Allocation) printParameters(json *jwriter.ObjectState) {
	json.Name("Type").String(a.allocationType.String())
	json.Name("Offset").Int(a.offset)
	json.Name("Size").Int(a.Size())

	if a.userData != nil {
		json.Name("CustomData").String(fmt.Sprintf("%+v", a.userData))
	}

	if a.name != "" {
		json.Name("Name").String(a.name)
	}
}

func (a *Allocation) nextDedicatedAlloc() *Allocation {
	return a.dedicatedData.nextAlloc
}

func (a *Allocation) prevDedicatedAlloc() *Allocation {
	return a.dedicatedData.prevAlloc
}

func (a *Allocation) setNext(alloc *Allocation) {
	a.dedicatedData.nextAlloc = alloc
}

func (a *Allocation) setPrev(alloc *Allocation) {
	a.dedicatedData.prevAlloc = alloc
}
