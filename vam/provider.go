package vam

//go:generate mockgen -source provider.go -destination ./mocks/provider.go -package mock_vam

import (
	"unsafe"

	"github.com/vkngwrapper/core/v2/core1_0"
)

// BackingHandle is an opaque reference to a single allocation made by a BackingProvider. The heap
// never inspects it: it is only handed back to the provider that created it.
type BackingHandle any

// AllocateInfo describes a single backing allocation requested from a BackingProvider
type AllocateInfo struct {
	// Size is the size of the allocation in bytes
	Size int
	// MemoryTypeIndex is the index into the provider's MemoryProperties().MemoryTypes that the
	// allocation should be made from
	MemoryTypeIndex int
	// Dedicated is the resource that will be the sole occupant of this allocation, such as a
	// core1_0.Buffer or core1_0.Image, or nil if the allocation will be carved into many regions
	Dedicated any
}

// BackingProvider is the source of the chunks that a DeviceHeap carves up. The heap calls Allocate
// rarely and for large sizes; the provider should expect that each call is expensive.
type BackingProvider interface {
	// MemoryProperties returns the memory types and heaps available from this provider. The heap
	// reads it once, during New.
	MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties
	// Allocate creates a new backing allocation. When the provider is out of memory, the returned
	// error should wrap memutils.ErrOutOfDeviceMemory.
	Allocate(info AllocateInfo) (BackingHandle, error)
	// Map persistently maps the whole of a backing allocation into host address space. It is only
	// called for memory types that are host visible.
	Map(handle BackingHandle, size int) (unsafe.Pointer, error)
	// Free releases a backing allocation, unmapping it if it was mapped
	Free(handle BackingHandle)
}
