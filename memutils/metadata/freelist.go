package metadata

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/chunkheap/memutils"
	"golang.org/x/exp/slices"
)

// FreeListStrategy is a Strategy that keeps every free range of every chunk in a single list sorted
// by chunk and offset. Alloc takes the first range that can hold the aligned request and Free merges
// the returned range with its free neighbors, so that no two free ranges in the same chunk are ever
// adjacent.
type FreeListStrategy struct {
	StrategyBase

	free            []Block
	used            int
	allocationCount int
}

var _ Strategy = &FreeListStrategy{}

func NewFreeListStrategy() *FreeListStrategy {
	return &FreeListStrategy{}
}

func (m *FreeListStrategy) Kind() StrategyKind { return StrategyFreeList }

func (m *FreeListStrategy) Used() int { return m.used }

// FreeBlocks returns a copy of the current free list in (Chunk, Start) order
func (m *FreeListStrategy) FreeBlocks() []Block {
	return slices.Clone(m.free)
}

func (m *FreeListStrategy) AddChunk(size int) {
	chunk := m.addChunk(size)

	// The new chunk has the highest index, so it always belongs at the end of the list
	m.free = append(m.free, Block{Chunk: chunk, Start: 0, End: size})

	memutils.DebugValidate(m)
}

func (m *FreeListStrategy) Alloc(size int, alignment uint) (Block, bool) {
	if size <= 0 {
		panic(fmt.Sprintf("attempted to allocate %d bytes", size))
	}
	memutils.DebugCheckPow2(alignment, "alignment")

	size = memutils.AlignUp(size, alignment)
	if size <= 0 {
		panic(fmt.Sprintf("allocation size overflowed when aligned to %d", alignment))
	}

	for index, block := range m.free {
		offset := memutils.AlignUp(block.Start, alignment)
		if offset > block.End || size > block.End-offset {
			continue
		}

		remainder := Block{Chunk: block.Chunk, Start: offset + size, End: block.End}
		if remainder.IsEmpty() {
			m.free = slices.Delete(m.free, index, index+1)
		} else {
			m.free[index] = remainder
		}

		if offset > block.Start {
			m.free = slices.Insert(m.free, index, Block{Chunk: block.Chunk, Start: block.Start, End: offset})
		}

		m.used += size
		m.allocationCount++

		memutils.DebugValidate(m)
		return Block{Chunk: block.Chunk, Start: offset, End: offset + size}, true
	}

	return Block{}, false
}

func (m *FreeListStrategy) Free(block Block) {
	if block.IsEmpty() {
		panic(fmt.Sprintf("attempted to free an empty block: %s", block))
	}
	if block.Chunk < 0 || block.Chunk >= len(m.chunkSizes) || block.Start < 0 || block.End > m.chunkSizes[block.Chunk] {
		panic(fmt.Sprintf("attempted to free a block outside of the registered chunks: %s", block))
	}

	m.used -= block.Size()
	m.allocationCount--

	index := slices.IndexFunc(m.free, func(candidate Block) bool {
		return candidate.orderedAfter(block)
	})
	if index < 0 {
		index = len(m.free)
	}

	mergeLeft := false
	if index > 0 {
		left := m.free[index-1]
		if left.Chunk == block.Chunk && left.End > block.Start {
			panic(fmt.Sprintf("attempted to free %s, which overlaps free block %s", block, left))
		}
		mergeLeft = left.Chunk == block.Chunk && left.End == block.Start
	}

	mergeRight := false
	if index < len(m.free) {
		right := m.free[index]
		if right.Chunk == block.Chunk && right.Start < block.End {
			panic(fmt.Sprintf("attempted to free %s, which overlaps free block %s", block, right))
		}
		mergeRight = right.Chunk == block.Chunk && right.Start == block.End
	}

	switch {
	case mergeLeft && mergeRight:
		m.free[index-1].End = m.free[index].End
		m.free = slices.Delete(m.free, index, index+1)
	case mergeLeft:
		m.free[index-1].End = block.End
	case mergeRight:
		m.free[index].Start = block.Start
	default:
		m.free = slices.Insert(m.free, index, block)
	}

	memutils.DebugValidate(m)
}

func (m *FreeListStrategy) Clear() {
	m.free = m.free[:0]
	for chunk, size := range m.chunkSizes {
		m.free = append(m.free, Block{Chunk: chunk, Start: 0, End: size})
	}

	m.used = 0
	m.allocationCount = 0
}

func (m *FreeListStrategy) Validate() error {
	if m.used < 0 {
		return errors.Errorf("used byte count is negative: %d", m.used)
	}
	if m.allocationCount < 0 {
		return errors.Errorf("allocation count is negative: %d", m.allocationCount)
	}

	sumFree := 0
	for index, block := range m.free {
		if block.IsEmpty() {
			return errors.Errorf("free block at index %d is empty: %s", index, block)
		}
		if block.Chunk < 0 || block.Chunk >= len(m.chunkSizes) {
			return errors.Errorf("free block at index %d refers to unknown chunk: %s", index, block)
		}
		if block.Start < 0 || block.End > m.chunkSizes[block.Chunk] {
			return errors.Errorf("free block at index %d extends outside of chunk of size %d: %s", index, m.chunkSizes[block.Chunk], block)
		}

		if index > 0 {
			prev := m.free[index-1]
			if !block.orderedAfter(prev) {
				return errors.Errorf("free block at index %d (%s) is not ordered after the previous block (%s)", index, block, prev)
			}
			if prev.Chunk == block.Chunk && prev.End > block.Start {
				return errors.Errorf("free block at index %d (%s) overlaps the previous block (%s)", index, block, prev)
			}
			if prev.Chunk == block.Chunk && prev.End == block.Start {
				return errors.Errorf("free block at index %d (%s) is adjacent to the previous block (%s) and should have been merged", index, block, prev)
			}
		}

		sumFree += block.Size()
	}

	if m.used+sumFree != m.capacity {
		return errors.Errorf("used bytes %d and free bytes %d don't add up to the capacity %d", m.used, sumFree, m.capacity)
	}

	return nil
}

func (m *FreeListStrategy) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount += len(m.chunkSizes)
	stats.BlockBytes += m.capacity
	stats.AllocationCount += m.allocationCount
	stats.AllocationBytes += m.used

	for _, block := range m.free {
		stats.AddUnusedRange(block.Size())
	}
}

func (m *FreeListStrategy) BlockJsonData(json *jwriter.ObjectState) {
	m.WriteBlockJson(json, m.used, m.allocationCount, len(m.free))

	arrayState := json.Name("FreeBlocks").Array()
	defer arrayState.End()

	for _, block := range m.free {
		obj := arrayState.Object()
		obj.Name("Chunk").Int(block.Chunk)
		obj.Name("Offset").Int(block.Start)
		obj.Name("Size").Int(block.Size())
		obj.End()
	}
}
