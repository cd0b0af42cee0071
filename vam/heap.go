package vam

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/chunkheap/memutils"
	"github.com/vkngwrapper/chunkheap/vam/internal/ledger"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

var allTilings = []Tiling{TilingLinear, TilingNonLinear}
var allLifetimes = []Lifetime{LifetimeStatic, LifetimeFrame}

type poolKey struct {
	typeIndex int
	tiling    Tiling
	lifetime  Lifetime
}

// HeapInfo is a point-in-time summary of one memory heap's pooled memory
type HeapInfo struct {
	// Reserved is the number of bytes held in pool chunks allocated from the heap
	Reserved int
	// Used is the number of reserved bytes that are currently unavailable for new allocations
	Used int
}

// AllocationCreateInfo describes where and how an allocation should be made
type AllocationCreateInfo struct {
	// Flags indicates specific allocation behaviors to activate or deactivate
	Flags AllocationCreateFlags
	// MemoryTypeIndex is the memory type the allocation will be made from
	MemoryTypeIndex int
	// Tiling is the layout category of the resource that will be bound to the allocation
	Tiling Tiling
	// Lifetime indicates whether the allocation is freed individually or reclaimed by ClearFrame
	Lifetime Lifetime

	// DedicatedTarget is the buffer or image that will be bound to a dedicated allocation. It is passed
	// to the BackingProvider and ignored unless AllocationCreateDedicatedMemory is set.
	DedicatedTarget any

	// Name is an optional name that can be used to identify the allocation in BuildStatsString
	Name string
	// UserData is an optional value that will be attached to the allocation
	UserData any
}

// DeviceHeap is the entry point for sub-allocating device memory. It owns one chunk pool for every
// combination of memory type, Tiling, and Lifetime, and routes each allocation request to the matching
// pool. Requests for dedicated memory bypass the pools and receive a backing allocation of their own.
//
// Choosing a memory type for a resource is left to the consumer. See the vam/vulkan package for a
// reference policy.
type DeviceHeap struct {
	logger           *slog.Logger
	provider         BackingProvider
	memoryProperties *core1_0.PhysicalDeviceMemoryProperties
	useMutex         bool
	createFlags      CreateFlags
	callbacks        memoryCallbacks
	ledger           *ledger.HeapLedger

	preferredLargeHeapChunkSize int

	pools     *swiss.Map[poolKey, *chunkPool]
	poolList  []*chunkPool
	dedicated []dedicatedAllocationList
}

// MemoryProperties returns the memory types and heaps reported by the BackingProvider
func (h *DeviceHeap) MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties {
	return h.memoryProperties
}

// Alloc sub-allocates memory that satisfies the provided requirements from the static pool for the
// memory type and tiling.
//
// reqs - The size, alignment, and compatible memory types of the resource. If MemoryTypeBits is
// nonzero, typeIndex must be one of the types it contains.
//
// typeIndex - The memory type to allocate from
//
// tiling - The layout category of the resource that will be bound to the allocation
func (h *DeviceHeap) Alloc(reqs core1_0.MemoryRequirements, typeIndex int, tiling Tiling) (*Allocation, error) {
	h.logger.Debug("DeviceHeap::Alloc")

	err := h.checkMemoryTypeBits(reqs.MemoryTypeBits, typeIndex)
	if err != nil {
		return nil, err
	}

	return h.Allocate(reqs.Size, uint(reqs.Alignment), AllocationCreateInfo{
		MemoryTypeIndex: typeIndex,
		Tiling:          tiling,
		Lifetime:        LifetimeStatic,
	})
}

// AllocDedicated allocates a backing allocation of exactly the required size for a single resource.
// The resulting Allocation covers its whole chunk and never touches any pool.
//
// target - The buffer or image that will be bound to the allocation, or nil
func (h *DeviceHeap) AllocDedicated(reqs core1_0.MemoryRequirements, typeIndex int, tiling Tiling, target any) (*Allocation, error) {
	h.logger.Debug("DeviceHeap::AllocDedicated")

	err := h.checkMemoryTypeBits(reqs.MemoryTypeBits, typeIndex)
	if err != nil {
		return nil, err
	}

	return h.Allocate(reqs.Size, uint(reqs.Alignment), AllocationCreateInfo{
		Flags:           AllocationCreateDedicatedMemory,
		MemoryTypeIndex: typeIndex,
		Tiling:          tiling,
		DedicatedTarget: target,
	})
}

func (h *DeviceHeap) checkMemoryTypeBits(memoryTypeBits uint32, typeIndex int) error {
	if memoryTypeBits == 0 || typeIndex < 0 || typeIndex >= 32 {
		return nil
	}

	if memoryTypeBits&(1<<typeIndex) == 0 {
		return errors.Newf("memory type %d is not compatible with the requested memory type bits %b", typeIndex, memoryTypeBits)
	}

	return nil
}

// Allocate is the general form of Alloc and AllocDedicated
//
// size - The size of the allocation in bytes. It must be at least 1.
//
// alignment - The required alignment of the allocation's offset. It must be a power of two.
//
// o - Which memory type, tiling, and lifetime to allocate from, as well as other options
func (h *DeviceHeap) Allocate(size int, alignment uint, o AllocationCreateInfo) (*Allocation, error) {
	h.logger.Debug("DeviceHeap::Allocate")

	if size < 1 {
		return nil, errors.Newf("allocation size must be at least 1, but was %d", size)
	}
	err := memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return nil, err
	}
	if o.MemoryTypeIndex < 0 || o.MemoryTypeIndex >= len(h.memoryProperties.MemoryTypes) {
		return nil, errors.Newf("memory type %d does not exist: there are %d memory types", o.MemoryTypeIndex, len(h.memoryProperties.MemoryTypes))
	}
	if _, ok := tilingMapping[o.Tiling]; !ok {
		return nil, errors.Newf("unknown tiling %d", o.Tiling)
	}
	if _, ok := lifetimeMapping[o.Lifetime]; !ok {
		return nil, errors.Newf("unknown lifetime %d", o.Lifetime)
	}

	var alloc *Allocation
	if o.Flags&AllocationCreateDedicatedMemory != 0 {
		alloc, err = h.allocateDedicatedMemory(size, o)
	} else {
		pool, ok := h.pools.Get(poolKey{typeIndex: o.MemoryTypeIndex, tiling: o.Tiling, lifetime: o.Lifetime})
		if !ok {
			return nil, errors.Newf("no pool exists for memory type %d with %s and %s", o.MemoryTypeIndex, o.Tiling, o.Lifetime)
		}

		alloc, err = pool.alloc(size, alignment, o.Flags&AllocationCreateNeverAllocate != 0)
	}
	if err != nil {
		return nil, err
	}

	alloc.SetName(o.Name)
	alloc.SetUserData(o.UserData)
	return alloc, nil
}

func (h *DeviceHeap) allocateDedicatedMemory(size int, o AllocationCreateInfo) (*Allocation, error) {
	if o.Flags&AllocationCreateNeverAllocate != 0 {
		return nil, errors.Wrap(memutils.ErrOutOfDeviceMemory, "dedicated memory was requested, but allocating new memory is not allowed")
	}

	chunk, err := h.allocateChunk(size, o.MemoryTypeIndex, o.Tiling, o.Lifetime, o.DedicatedTarget)
	if err != nil {
		return nil, err
	}
	chunk.index = -1
	chunk.dedicated = true

	alloc := newDedicatedAllocation(chunk)
	h.ledger.AddAllocation(chunk.heapIndex, size)
	h.dedicated[o.MemoryTypeIndex].Register(alloc)

	h.logger.LogAttrs(context.Background(), slog.LevelDebug, "    Allocated DedicatedMemory",
		slog.Int("MemoryTypeIndex", o.MemoryTypeIndex),
		slog.Int("Size", size),
	)

	return alloc, nil
}

func (h *DeviceHeap) freeDedicatedMemory(alloc *Allocation) {
	chunk := alloc.chunk
	h.dedicated[chunk.typeIndex].Unregister(alloc)
	h.ledger.RemoveAllocation(chunk.heapIndex, chunk.size)

	if chunk.release() != 0 {
		panic(fmt.Sprintf("%s is still referenced after its allocation was released", chunk))
	}
	h.freeChunk(chunk)
}

// allocateChunk requests new backing memory from the provider and maps it if the memory type is host
// visible. The returned chunk holds a single reference.
func (h *DeviceHeap) allocateChunk(size int, typeIndex int, tiling Tiling, lifetime Lifetime, dedicated any) (*BackingChunk, error) {
	memoryType := h.memoryProperties.MemoryTypes[typeIndex]
	heapIndex := memoryType.HeapIndex

	err := h.ledger.AddBlock(heapIndex, size)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to allocate %d bytes of memory type %d", size, typeIndex)
	}

	handle, err := h.provider.Allocate(AllocateInfo{
		Size:            size,
		MemoryTypeIndex: typeIndex,
		Dedicated:       dedicated,
	})
	if err != nil {
		h.ledger.RemoveBlock(heapIndex, size)
		return nil, errors.Wrapf(errors.Mark(err, memutils.ErrOutOfDeviceMemory), "failed to allocate %d bytes of memory type %d", size, typeIndex)
	}

	chunk := &BackingChunk{
		heap:      h,
		handle:    handle,
		size:      size,
		typeIndex: typeIndex,
		heapIndex: heapIndex,
		tiling:    tiling,
		lifetime:  lifetime,
	}
	chunk.refs.Store(1)

	if memoryType.PropertyFlags&core1_0.MemoryPropertyHostVisible != 0 {
		chunk.mapped, err = h.provider.Map(handle, size)
		if err != nil {
			h.provider.Free(handle)
			h.ledger.RemoveBlock(heapIndex, size)
			return nil, errors.Wrapf(err, "failed to map %d bytes of memory type %d", size, typeIndex)
		}
	}

	h.callbacks.Allocate(typeIndex, handle, size)

	return chunk, nil
}

func (h *DeviceHeap) freeChunk(chunk *BackingChunk) {
	if chunk.References() != 0 {
		panic(fmt.Sprintf("attempted to free %s while it still has %d references", chunk, chunk.References()))
	}

	h.callbacks.Free(chunk.typeIndex, chunk.handle, chunk.size)
	h.provider.Free(chunk.handle)
	h.ledger.RemoveBlock(chunk.heapIndex, chunk.size)

	chunk.handle = nil
	chunk.mapped = nil
}

// ClearFrame reclaims all memory handed out with LifetimeFrame at once. Every frame allocation must
// have been released before ClearFrame is called; the heap panics otherwise.
func (h *DeviceHeap) ClearFrame() {
	h.logger.Debug("DeviceHeap::ClearFrame")

	for _, pool := range h.poolList {
		if pool.lifetime == LifetimeFrame {
			pool.clear()
		}
	}
}

// Heaps reports the reserved and used bytes of pooled memory for every memory heap. Dedicated
// allocations are not included. Each pool is inspected in turn, so the result may be inconsistent
// while other goroutines are allocating.
func (h *DeviceHeap) Heaps() []HeapInfo {
	heaps := make([]HeapInfo, len(h.memoryProperties.MemoryHeaps))

	for _, pool := range h.poolList {
		used, reserved := pool.usage()
		heaps[pool.heapIndex].Used += used
		heaps[pool.heapIndex].Reserved += reserved
	}

	return heaps
}

// HeapStatistics retrieves a snapshot of all backing memory allocated from a memory heap and all
// allocations handed out from it, including dedicated allocations
func (h *DeviceHeap) HeapStatistics(heapIndex int) (memutils.Statistics, error) {
	var stats memutils.Statistics
	if heapIndex < 0 || heapIndex >= len(h.memoryProperties.MemoryHeaps) {
		return stats, errors.Newf("heap %d does not exist: there are %d memory heaps", heapIndex, len(h.memoryProperties.MemoryHeaps))
	}

	h.ledger.HeapStatistics(heapIndex, &stats)
	return stats, nil
}

// CalculateStatistics sums the usage of every pool and dedicated allocation into stats
func (h *DeviceHeap) CalculateStatistics(stats *memutils.Statistics) {
	for _, pool := range h.poolList {
		pool.AddStatistics(stats)
	}

	for typeIndex := range h.dedicated {
		h.dedicated[typeIndex].AddStatistics(stats)
	}
}

// Validate performs internal consistency checks on every pool. When the heap is functioning correctly,
// it should not be possible for this method to return an error.
func (h *DeviceHeap) Validate() error {
	for _, pool := range h.poolList {
		err := pool.Validate()
		if err != nil {
			return err
		}
	}

	for typeIndex := range h.dedicated {
		err := h.dedicated[typeIndex].Validate()
		if err != nil {
			return err
		}
	}

	return nil
}

// BuildStatsString produces a json document describing the heap's memory usage
//
// detailed - If true, the document also describes every pool and dedicated allocation
func (h *DeviceHeap) BuildStatsString(detailed bool) string {
	memutils.DebugValidate(h)

	writer := jwriter.NewWriter()
	rootObj := writer.Object()

	generalObj := rootObj.Name("General").Object()
	generalObj.Name("MemoryHeapCount").Int(len(h.memoryProperties.MemoryHeaps))
	generalObj.Name("MemoryTypeCount").Int(len(h.memoryProperties.MemoryTypes))
	generalObj.Name("Flags").String(h.createFlags.String())
	generalObj.End()

	var total memutils.Statistics
	h.CalculateStatistics(&total)
	totalObj := rootObj.Name("Total").Object()
	printStatistics(&totalObj, &total)
	totalObj.End()

	heaps := h.Heaps()
	heapsObj := rootObj.Name("MemoryHeaps").Object()
	for heapIndex, heapInfo := range heaps {
		heapProps := h.memoryProperties.MemoryHeaps[heapIndex]
		heapObj := heapsObj.Name("Heap " + strconv.Itoa(heapIndex)).Object()

		heapObj.Name("Size").Int(heapProps.Size)
		heapObj.Name("Flags").String(heapProps.Flags.String())
		heapObj.Name("Limit").Int(h.ledger.HeapLimit(heapIndex))
		heapObj.Name("Reserved").Int(heapInfo.Reserved)
		heapObj.Name("Used").Int(heapInfo.Used)

		var heapStats memutils.Statistics
		h.ledger.HeapStatistics(heapIndex, &heapStats)
		statsObj := heapObj.Name("Stats").Object()
		printStatistics(&statsObj, &heapStats)
		statsObj.End()

		typesObj := heapObj.Name("MemoryTypes").Object()
		for typeIndex, memoryType := range h.memoryProperties.MemoryTypes {
			if memoryType.HeapIndex != heapIndex {
				continue
			}

			typeObj := typesObj.Name("Type " + strconv.Itoa(typeIndex)).Object()
			typeObj.Name("Flags").String(memoryType.PropertyFlags.String())
			typeObj.End()
		}
		typesObj.End()

		heapObj.End()
	}
	heapsObj.End()

	if detailed {
		poolsObj := rootObj.Name("DefaultPools").Object()
		for _, pool := range h.poolList {
			poolObj := poolsObj.Name(fmt.Sprintf("Type %d %s %s", pool.typeIndex, pool.tiling, pool.lifetime)).Object()
			pool.PrintDetailedMap(&poolObj)
			poolObj.End()
		}
		poolsObj.End()

		dedicatedObj := rootObj.Name("DedicatedAllocations").Object()
		for typeIndex := range h.dedicated {
			if h.dedicated[typeIndex].IsEmpty() {
				continue
			}

			h.dedicated[typeIndex].BuildStatsString(dedicatedObj.Name("Type " + strconv.Itoa(typeIndex)))
		}
		dedicatedObj.End()
	}

	rootObj.End()
	return string(writer.Bytes())
}

func printStatistics(json *jwriter.ObjectState, stats *memutils.Statistics) {
	json.Name("BlockCount").Int(stats.BlockCount)
	json.Name("BlockBytes").Int(stats.BlockBytes)
	json.Name("AllocationCount").Int(stats.AllocationCount)
	json.Name("AllocationBytes").Int(stats.AllocationBytes)
	json.Name("UnusedRangeCount").Int(stats.UnusedRangeCount)
	json.Name("UnusedRangeSizeMax").Int(stats.UnusedRangeSizeMax)
}

// Destroy frees all backing memory owned by the heap. Every Allocation must have been released
// first: live dedicated allocations produce an error, and live pooled allocations cause a panic.
func (h *DeviceHeap) Destroy() error {
	h.logger.Debug("DeviceHeap::Destroy")

	for typeIndex := range h.dedicated {
		memutils.DebugValidate(&h.dedicated[typeIndex])
		if !h.dedicated[typeIndex].IsEmpty() {
			h.dedicated[typeIndex].logUnreleasedAllocations(h.logger)
			return errors.Newf("memory type %d still has %d dedicated allocations that remain unreleased", typeIndex, h.dedicated[typeIndex].Count())
		}
	}

	for _, pool := range h.poolList {
		pool.destroy()
	}

	return nil
}
