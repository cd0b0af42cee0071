// Package hostmem implements a vam.BackingProvider on top of host memory. It reports a configurable set
// of memory types and heaps, and can be used to run a vam.DeviceHeap without a graphics device.
package hostmem

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/chunkheap/memutils"
	"github.com/vkngwrapper/chunkheap/vam"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// Memory is the vam.BackingHandle produced by Provider
type Memory struct {
	data      []byte
	typeIndex int
	heapIndex int
	dedicated any
}

// Size returns the size of the memory in bytes
func (m *Memory) Size() int { return len(m.data) }

// MemoryTypeIndex returns the memory type the memory was allocated from
func (m *Memory) MemoryTypeIndex() int { return m.typeIndex }

// Dedicated returns the resource the memory was allocated for, if any
func (m *Memory) Dedicated() any { return m.dedicated }

// Provider allocates backing memory from the host. Each memory heap has a fixed capacity: once the
// memory allocated from a heap reaches its size, further allocations from that heap fail with an error
// wrapping memutils.ErrOutOfDeviceMemory. All methods are safe for concurrent use.
type Provider struct {
	properties *core1_0.PhysicalDeviceMemoryProperties

	mutex     sync.Mutex
	allocated []int
	live      map[*Memory]struct{}
}

var _ vam.BackingProvider = &Provider{}

// New creates a Provider reporting the provided memory properties
func New(properties core1_0.PhysicalDeviceMemoryProperties) (*Provider, error) {
	if len(properties.MemoryTypes) == 0 {
		return nil, errors.New("at least one memory type is required")
	}

	for typeIndex, memoryType := range properties.MemoryTypes {
		if memoryType.HeapIndex < 0 || memoryType.HeapIndex >= len(properties.MemoryHeaps) {
			return nil, errors.Newf("memory type %d refers to heap %d, but there are only %d heaps", typeIndex, memoryType.HeapIndex, len(properties.MemoryHeaps))
		}
	}

	return &Provider{
		properties: &properties,
		allocated:  make([]int, len(properties.MemoryHeaps)),
		live:       make(map[*Memory]struct{}),
	}, nil
}

// NewDefault creates a Provider with a single heap of the provided size and three memory types
// resembling an integrated GPU: device local, host visible and coherent, and all three at once
func NewDefault(heapSize int) *Provider {
	provider, err := New(core1_0.PhysicalDeviceMemoryProperties{
		MemoryTypes: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 0},
			{PropertyFlags: core1_0.MemoryPropertyDeviceLocal | core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 0},
		},
		MemoryHeaps: []core1_0.MemoryHeap{
			{Size: heapSize, Flags: core1_0.MemoryHeapDeviceLocal},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("unexpected error building default memory properties: %+v", err))
	}
	return provider
}

func (p *Provider) MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties {
	return p.properties
}

func (p *Provider) Allocate(info vam.AllocateInfo) (vam.BackingHandle, error) {
	if info.Size < 1 {
		return nil, errors.Newf("allocation size must be at least 1, but was %d", info.Size)
	}
	if info.MemoryTypeIndex < 0 || info.MemoryTypeIndex >= len(p.properties.MemoryTypes) {
		return nil, errors.Newf("memory type %d does not exist", info.MemoryTypeIndex)
	}
	heapIndex := p.properties.MemoryTypes[info.MemoryTypeIndex].HeapIndex

	p.mutex.Lock()
	defer p.mutex.Unlock()

	heapSize := p.properties.MemoryHeaps[heapIndex].Size
	if info.Size > heapSize-p.allocated[heapIndex] {
		return nil, errors.Wrapf(memutils.ErrOutOfDeviceMemory, "heap %d has %d of %d bytes allocated and cannot fit %d more", heapIndex, p.allocated[heapIndex], heapSize, info.Size)
	}

	data, err := allocBytes(info.Size)
	if err != nil {
		return nil, errors.Mark(err, memutils.ErrOutOfDeviceMemory)
	}

	memory := &Memory{
		data:      data,
		typeIndex: info.MemoryTypeIndex,
		heapIndex: heapIndex,
		dedicated: info.Dedicated,
	}
	p.allocated[heapIndex] += info.Size
	p.live[memory] = struct{}{}

	return memory, nil
}

func (p *Provider) Map(handle vam.BackingHandle, size int) (unsafe.Pointer, error) {
	memory, err := p.lookup(handle)
	if err != nil {
		return nil, err
	}

	flags := p.properties.MemoryTypes[memory.typeIndex].PropertyFlags
	if flags&core1_0.MemoryPropertyHostVisible == 0 {
		return nil, errors.Newf("memory type %d is not host visible", memory.typeIndex)
	}
	if size > len(memory.data) {
		return nil, errors.Newf("attempted to map %d bytes of a %d byte allocation", size, len(memory.data))
	}

	return unsafe.Pointer(&memory.data[0]), nil
}

func (p *Provider) Free(handle vam.BackingHandle) {
	p.mutex.Lock()
	memory, err := p.lookupLocked(handle)
	if err == nil {
		delete(p.live, memory)
		p.allocated[memory.heapIndex] -= len(memory.data)
	}
	p.mutex.Unlock()

	if err != nil {
		panic(fmt.Sprintf("attempted to free memory not owned by this provider: %+v", err))
	}

	err = freeBytes(memory.data)
	if err != nil {
		panic(fmt.Sprintf("failed to release host memory: %+v", err))
	}
	memory.data = nil
}

func (p *Provider) lookup(handle vam.BackingHandle) (*Memory, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.lookupLocked(handle)
}

func (p *Provider) lookupLocked(handle vam.BackingHandle) (*Memory, error) {
	memory, ok := handle.(*Memory)
	if !ok || memory == nil {
		return nil, errors.Newf("handle of type %T was not created by a hostmem.Provider", handle)
	}

	_, live := p.live[memory]
	if !live {
		return nil, errors.New("memory has already been freed or belongs to a different provider")
	}

	return memory, nil
}

// Allocated returns the number of bytes currently allocated from the provided heap
func (p *Provider) Allocated(heapIndex int) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.allocated[heapIndex]
}

// LiveCount returns the number of allocations that have not been freed
func (p *Provider) LiveCount() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return len(p.live)
}
