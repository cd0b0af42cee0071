package vam

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/chunkheap/memutils"
	"github.com/vkngwrapper/chunkheap/vam/internal/ledger"
	"github.com/vkngwrapper/core/v2/common"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific heap behaviors to activate or deactivate
type CreateFlags int32

var heapCreateFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	heapCreateFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return heapCreateFlagsMapping.FlagsToString(f)
}

const (
	// AllocatorCreateExternallySynchronized ensures that this heap and all objects created from it
	// will not be synchronized internally. The consumer must guarantee they are used from only one
	// goroutine at a time or are synchronized by some other mechanism, but performance may improve because
	// internal mutexes are not used.
	AllocatorCreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	AllocatorCreateExternallySynchronized.Register("AllocatorCreateExternallySynchronized")
}

const (
	// defaultLargeHeapChunkSize is the value that is used as the PreferredLargeHeapChunkSize when none
	// is provided via CreateOptions. It is equal to 256Mb.
	defaultLargeHeapChunkSize int = 256 * 1024 * 1024
	// defaultMinAlignment is the smallest alignment any region is carved with when none is provided
	// via CreateOptions
	defaultMinAlignment uint = 32

	smallHeapMaxSize int = 1024 * 1024 * 1024 // 1 GB
)

// CreateOptions contains optional settings when creating a DeviceHeap
type CreateOptions struct {
	// Flags indicates specific heap behaviors to activate or deactivate
	Flags CreateFlags

	// ChunkSize is the size of the chunks requested from the BackingProvider when a pool grows.
	// Requests larger than ChunkSize grow the pool by a multiple of ChunkSize. If it is 0, the chunk
	// size is chosen per memory type: PreferredLargeHeapChunkSize for heaps larger than a gigabyte,
	// and an eighth of the heap for smaller heaps.
	ChunkSize int
	// PreferredLargeHeapChunkSize is the chunk size to use when allocating from heaps larger
	// than a gigabyte and ChunkSize is 0
	PreferredLargeHeapChunkSize int
	// MinAlignment is the smallest alignment that regions are carved with. It must be a power of
	// two. If it is 0, 32 is used.
	MinAlignment uint

	// MemoryCallbackOptions is an optional set of callbacks that will be executed when backing memory
	// is allocated or freed by this heap
	MemoryCallbackOptions *MemoryCallbackOptions

	// HeapSizeLimits can be left empty. If it is provided, though, it must be a slice
	// with a number of entries corresponding to the number of memory heaps reported by the
	// BackingProvider. Each entry must be either the maximum number of bytes that should be
	// allocated from the corresponding memory heap, or 0 indicating no limit.
	//
	// Heap memory limits will be enforced at runtime: allocations that would require new backing
	// memory beyond the limit fail with an error wrapping memutils.ErrOutOfDeviceMemory.
	HeapSizeLimits []int
}

// New creates a new DeviceHeap
//
// logger - The logger that heap activity will be reported to
//
// provider - The source of backing memory for the heap
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, provider BackingProvider, options CreateOptions) (*DeviceHeap, error) {
	if provider == nil {
		return nil, errors.New("a BackingProvider is required")
	}

	memoryProperties := provider.MemoryProperties()
	if memoryProperties == nil || len(memoryProperties.MemoryTypes) == 0 {
		return nil, errors.New("the BackingProvider did not report any memory types")
	}

	for typeIndex, memoryType := range memoryProperties.MemoryTypes {
		if memoryType.HeapIndex < 0 || memoryType.HeapIndex >= len(memoryProperties.MemoryHeaps) {
			return nil, errors.Newf("memory type %d refers to heap %d, but there are only %d heaps", typeIndex, memoryType.HeapIndex, len(memoryProperties.MemoryHeaps))
		}
	}

	if options.ChunkSize < 0 {
		return nil, errors.Newf("CreateOptions.ChunkSize must not be negative, but was %d", options.ChunkSize)
	}

	minAlignment := options.MinAlignment
	if minAlignment == 0 {
		minAlignment = defaultMinAlignment
	}
	err := memutils.CheckPow2(minAlignment, "CreateOptions.MinAlignment")
	if err != nil {
		return nil, err
	}

	heapLedger, err := ledger.New(len(memoryProperties.MemoryHeaps), options.HeapSizeLimits)
	if err != nil {
		return nil, err
	}

	useMutex := options.Flags&AllocatorCreateExternallySynchronized == 0
	typeCount := len(memoryProperties.MemoryTypes)

	heap := &DeviceHeap{
		logger:           logger,
		provider:         provider,
		memoryProperties: memoryProperties,
		useMutex:         useMutex,
		createFlags:      options.Flags,
		ledger:           heapLedger,

		preferredLargeHeapChunkSize: options.PreferredLargeHeapChunkSize,

		pools:     swiss.NewMap[poolKey, *chunkPool](uint32(typeCount * len(allTilings) * len(allLifetimes))),
		dedicated: make([]dedicatedAllocationList, typeCount),
	}
	heap.callbacks = memoryCallbacks{
		Callbacks: options.MemoryCallbackOptions,
		Heap:      heap,
	}

	if heap.preferredLargeHeapChunkSize == 0 {
		heap.preferredLargeHeapChunkSize = defaultLargeHeapChunkSize
	}

	// Initialize chunk pools
	for typeIndex := 0; typeIndex < typeCount; typeIndex++ {
		chunkSize := options.ChunkSize
		if chunkSize == 0 {
			chunkSize = heap.calculatePreferredChunkSize(typeIndex)
		}

		for _, tiling := range allTilings {
			for _, lifetime := range allLifetimes {
				pool := &chunkPool{}
				pool.Init(heap, useMutex, typeIndex, tiling, lifetime, chunkSize, minAlignment)

				heap.pools.Put(poolKey{typeIndex: typeIndex, tiling: tiling, lifetime: lifetime}, pool)
				heap.poolList = append(heap.poolList, pool)
			}
		}

		heap.dedicated[typeIndex].Init(useMutex)
	}

	return heap, nil
}

func (h *DeviceHeap) calculatePreferredChunkSize(memTypeIndex int) int {
	heapIndex := h.memoryProperties.MemoryTypes[memTypeIndex].HeapIndex

	heapSize := h.memoryProperties.MemoryHeaps[heapIndex].Size
	rawSize := h.preferredLargeHeapChunkSize
	if heapSize <= smallHeapMaxSize {
		rawSize = heapSize / 8
	}

	return memutils.Max(memutils.AlignUp(rawSize, 32), 32)
}
