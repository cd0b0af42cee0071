package vam

import (
	"context"
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/chunkheap/memutils"
	"github.com/vkngwrapper/chunkheap/memutils/metadata"
	"github.com/vkngwrapper/chunkheap/vam/internal/utils"
	"golang.org/x/exp/slog"
)

// chunkPool carves allocations for a single memory type, tiling, and lifetime out of a growing list of
// chunks. Static pools use a free list; frame pools use a linear strategy that is only reset in bulk.
//
// Every operation holds the pool's mutex for its full duration, including the allocation of new chunks.
type chunkPool struct {
	logger *slog.Logger
	heap   *DeviceHeap

	typeIndex    int
	heapIndex    int
	tiling       Tiling
	lifetime     Lifetime
	chunkSize    int
	minAlignment uint

	mutex    utils.OptionalMutex
	strategy metadata.Strategy
	chunks   []*BackingChunk
}

func (p *chunkPool) Init(
	heap *DeviceHeap,
	useMutex bool,
	typeIndex int,
	tiling Tiling,
	lifetime Lifetime,
	chunkSize int,
	minAlignment uint,
) {
	p.logger = heap.logger
	p.heap = heap
	p.typeIndex = typeIndex
	p.heapIndex = heap.memoryProperties.MemoryTypes[typeIndex].HeapIndex
	p.tiling = tiling
	p.lifetime = lifetime
	p.chunkSize = chunkSize
	p.minAlignment = minAlignment
	p.mutex = utils.OptionalMutex{UseMutex: useMutex}
	p.strategy = metadata.NewStrategy(strategyForLifetime(lifetime))
}

func strategyForLifetime(lifetime Lifetime) metadata.StrategyKind {
	switch lifetime {
	case LifetimeStatic:
		return metadata.StrategyFreeList
	case LifetimeFrame:
		return metadata.StrategyLinear
	}

	panic(fmt.Sprintf("unknown lifetime: %s", lifetime))
}

func (p *chunkPool) String() string {
	return fmt.Sprintf("pool (type %d, %s, %s)", p.typeIndex, p.tiling, p.lifetime)
}

func (p *chunkPool) alloc(size int, alignment uint, neverAllocate bool) (*Allocation, error) {
	alignment = memutils.Max(alignment, p.minAlignment)
	if alignment > uint(math.MaxInt) || size > math.MaxInt-int(alignment) {
		return nil, errors.Wrapf(memutils.ErrOutOfDeviceMemory, "%d bytes with alignment %d cannot be addressed", size, alignment)
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	block, success := p.strategy.Alloc(size, alignment)
	if !success {
		if neverAllocate {
			return nil, errors.Wrapf(memutils.ErrOutOfDeviceMemory, "no existing chunk in %s can hold %d bytes and allocating new chunks is not allowed", p, size)
		}

		minSize := memutils.AlignUp(size, alignment)
		if minSize > math.MaxInt-p.chunkSize {
			return nil, errors.Wrapf(memutils.ErrOutOfDeviceMemory, "%d bytes is too large to allocate a new chunk for in %s", minSize, p)
		}

		err := p.addChunk(minSize)
		if err != nil {
			return nil, err
		}

		block, success = p.strategy.Alloc(size, alignment)
		if !success {
			panic(fmt.Sprintf("failed to allocate %d bytes with alignment %d from %s immediately after adding a chunk", size, alignment, p))
		}
	}

	chunk := p.chunks[block.Chunk]
	chunk.retain()
	p.heap.ledger.AddAllocation(p.heapIndex, block.Size())

	return newBlockAllocation(p, chunk, block), nil
}

func (p *chunkPool) addChunk(minSize int) error {
	newSize := memutils.Max(p.chunkSize, memutils.RoundUp(minSize, p.chunkSize))

	chunk, err := p.heap.allocateChunk(newSize, p.typeIndex, p.tiling, p.lifetime, nil)
	if err != nil {
		return err
	}

	chunk.index = len(p.chunks)
	p.chunks = append(p.chunks, chunk)
	p.strategy.AddChunk(newSize)

	p.logger.LogAttrs(context.Background(), slog.LevelDebug, "chunkPool::addChunk",
		slog.Int("MemoryTypeIndex", p.typeIndex),
		slog.String("Tiling", p.tiling.String()),
		slog.String("Lifetime", p.lifetime.String()),
		slog.Int("ChunkIndex", chunk.index),
		slog.Int("Size", newSize),
	)

	return nil
}

func (p *chunkPool) free(alloc *Allocation) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	index := alloc.chunk.index
	if alloc.pool != p || index < 0 || index >= len(p.chunks) || p.chunks[index] != alloc.chunk {
		panic(fmt.Sprintf("attempted to free allocation %s into %s, which does not own it", alloc, p))
	}

	p.strategy.Free(alloc.block())
	p.heap.ledger.RemoveAllocation(p.heapIndex, alloc.size)
}

func (p *chunkPool) usage() (used, reserved int) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.strategy.Used(), p.strategy.Capacity()
}

// clear reclaims every region of every chunk at once. No allocation from this pool may still be live.
func (p *chunkPool) clear() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.requireUnreferenced("clear")
	p.strategy.Clear()
}

// destroy frees every chunk owned by the pool. No allocation from this pool may still be live.
func (p *chunkPool) destroy() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.requireUnreferenced("destroy")

	for _, chunk := range p.chunks {
		chunk.release()
		p.heap.freeChunk(chunk)
	}

	p.chunks = nil
	p.strategy = metadata.NewStrategy(p.strategy.Kind())
}

func (p *chunkPool) requireUnreferenced(operation string) {
	unreleased := 0
	for _, chunk := range p.chunks {
		refs := chunk.References()
		if refs == 1 {
			continue
		}

		unreleased++
		p.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] chunk is still referenced",
			slog.Int("MemoryTypeIndex", p.typeIndex),
			slog.String("Tiling", p.tiling.String()),
			slog.String("Lifetime", p.lifetime.String()),
			slog.Int("ChunkIndex", chunk.index),
			slog.Int("Allocations", refs-1),
		)
	}

	if unreleased > 0 {
		panic(fmt.Sprintf("attempted to %s %s while %d of its chunks are still referenced by live allocations", operation, p, unreleased))
	}
}

func (p *chunkPool) Validate() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.chunks) != p.strategy.ChunkCount() {
		return errors.Newf("%s has %d chunks, but its strategy has %d", p, len(p.chunks), p.strategy.ChunkCount())
	}

	for index, chunk := range p.chunks {
		if chunk.index != index {
			return errors.Newf("chunk at index %d of %s believes its index is %d", index, p, chunk.index)
		}
		if chunk.References() < 1 {
			return errors.Newf("chunk at index %d of %s has no references", index, p)
		}
	}

	return p.strategy.Validate()
}

func (p *chunkPool) AddStatistics(stats *memutils.Statistics) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.strategy.AddStatistics(stats)
}

func (p *chunkPool) PrintDetailedMap(json *jwriter.ObjectState) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	json.Name("Strategy").String(p.strategy.Kind().String())
	json.Name("ChunkSize").Int(p.chunkSize)
	p.strategy.BlockJsonData(json)

	arrayState := json.Name("ChunkReferences").Array()
	defer arrayState.End()

	for _, chunk := range p.chunks {
		arrayState.Int(chunk.References())
	}
}
