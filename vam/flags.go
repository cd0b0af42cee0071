package vam

import "github.com/vkngwrapper/core/v2/common"

// Tiling is the layout category of the resources that will be bound to an allocation. Chunks holding
// linear (row-major) resources and chunks holding non-linear (implementation-defined) resources are
// never shared, so each tiling has its own pools.
type Tiling uint32

const (
	// TilingLinear is used for buffers and for images with a row-major layout, such as staging images
	TilingLinear Tiling = iota
	// TilingNonLinear is used for images with an implementation-defined layout
	TilingNonLinear
)

var tilingMapping = make(map[Tiling]string)

func (t Tiling) String() string {
	return tilingMapping[t]
}

// Lifetime indicates when the memory of an allocation is expected to be reclaimed
type Lifetime uint32

const (
	// LifetimeStatic allocations live until their last reference is released, and their memory
	// is immediately available for reuse afterward
	LifetimeStatic Lifetime = iota
	// LifetimeFrame allocations are bump-allocated and their memory is only reclaimed in bulk
	// by DeviceHeap.ClearFrame
	LifetimeFrame
)

var lifetimeMapping = make(map[Lifetime]string)

func (l Lifetime) String() string {
	return lifetimeMapping[l]
}

// AllocationCreateFlags exposes several options for allocation behavior that can be applied.
type AllocationCreateFlags int32

var allocationCreateFlagsMapping = common.NewFlagStringMapping[AllocationCreateFlags]()

func (f AllocationCreateFlags) Register(str string) {
	allocationCreateFlagsMapping.Register(f, str)
}
func (f AllocationCreateFlags) String() string {
	return allocationCreateFlagsMapping.FlagsToString(f)
}

const (
	// AllocationCreateDedicatedMemory instructs the heap to give this allocation its own backing
	// allocation instead of carving it from a pool
	AllocationCreateDedicatedMemory AllocationCreateFlags = 1 << iota
	// AllocationCreateNeverAllocate instructs the heap to only try to allocate from existing
	// chunks and never create new chunks
	//
	// If a new allocation cannot be placed in any of the existing chunks, allocation fails with
	// an error wrapping memutils.ErrOutOfDeviceMemory
	AllocationCreateNeverAllocate
)

func init() {
	tilingMapping[TilingLinear] = "TilingLinear"
	tilingMapping[TilingNonLinear] = "TilingNonLinear"

	lifetimeMapping[LifetimeStatic] = "LifetimeStatic"
	lifetimeMapping[LifetimeFrame] = "LifetimeFrame"

	AllocationCreateDedicatedMemory.Register("AllocationCreateDedicatedMemory")
	AllocationCreateNeverAllocate.Register("AllocationCreateNeverAllocate")
}
