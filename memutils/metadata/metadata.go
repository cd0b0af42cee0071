package metadata

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/chunkheap/memutils"
)

// Strategy tracks which byte ranges of a growing set of chunks are in use. It does not own any
// memory: the consumer allocates each chunk, registers its size with AddChunk, and maps the Block
// values returned by Alloc onto that memory. A Strategy never grows by itself. When Alloc returns
// false, the consumer is expected to register a new chunk and try again.
//
// Implementations are not safe for concurrent use.
type Strategy interface {
	// Kind returns the StrategyKind of the implementation
	Kind() StrategyKind

	// Used returns the number of bytes currently considered allocated, including any space the
	// implementation cannot hand out again until Clear is called
	Used() int
	// Capacity returns the sum of all chunk sizes registered with AddChunk
	Capacity() int
	// ChunkCount returns the number of chunks registered with AddChunk
	ChunkCount() int

	// AddChunk registers a new chunk of the provided size in bytes. The chunk's index is the number
	// of chunks registered before it.
	AddChunk(size int)
	// Alloc attempts to carve size bytes at an offset that is a multiple of alignment from the
	// registered chunks. Size is rounded up to a multiple of alignment, which must be a power of two.
	// The second return value is false if no registered chunk currently has room.
	Alloc(size int, alignment uint) (Block, bool)
	// Free returns a Block previously returned by Alloc
	Free(block Block)
	// Clear forgets every allocation while keeping all registered chunks
	Clear()

	// Validate performs internal consistency checks. When the implementation is functioning
	// correctly, it should not be possible for this method to return an error.
	Validate() error
	// AddStatistics sums this strategy's usage into the provided memutils.Statistics object
	AddStatistics(stats *memutils.Statistics)
	// BlockJsonData populates a json object with information about this strategy's chunks
	BlockJsonData(json *jwriter.ObjectState)
}

// StrategyBase holds the chunk size ledger shared by all implementations
type StrategyBase struct {
	chunkSizes []int
	capacity   int
}

// Capacity returns the sum of all chunk sizes registered with AddChunk
func (m *StrategyBase) Capacity() int { return m.capacity }

// ChunkCount returns the number of chunks registered with AddChunk
func (m *StrategyBase) ChunkCount() int { return len(m.chunkSizes) }

// ChunkSize returns the size in bytes of the chunk at the provided index
func (m *StrategyBase) ChunkSize(chunk int) int { return m.chunkSizes[chunk] }

func (m *StrategyBase) addChunk(size int) int {
	if size <= 0 {
		panic("attempted to add a chunk with a size of 0")
	}

	m.chunkSizes = append(m.chunkSizes, size)
	m.capacity += size
	return len(m.chunkSizes) - 1
}

// WriteBlockJson populates a json object with the values shared by all implementations
func (m *StrategyBase) WriteBlockJson(json *jwriter.ObjectState, usedBytes, allocationCount, unusedRangeCount int) {
	json.Name("Chunks").Int(len(m.chunkSizes))
	json.Name("TotalBytes").Int(m.capacity)
	json.Name("UnusedBytes").Int(m.capacity - usedBytes)
	json.Name("Allocations").Int(allocationCount)
	json.Name("UnusedRanges").Int(unusedRangeCount)
}
