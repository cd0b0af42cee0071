package metadata

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/chunkheap/memutils"
)

// LinearStrategy is a Strategy that hands out memory by bumping an offset forward through its chunks
// in registration order. Free does nothing: memory is only reclaimed, all at once, by Clear. This makes
// it suitable for memory whose lifetime ends at a well-known point, such as the end of a frame.
//
// When a request does not fit in the current chunk, the strategy moves on to the first later chunk
// that can hold it at offset 0. The unused tail of every chunk left behind counts as used until the
// next Clear.
type LinearStrategy struct {
	StrategyBase

	currentChunk    int
	offset          int
	consumed        int
	allocationCount int
}

var _ Strategy = &LinearStrategy{}

func NewLinearStrategy() *LinearStrategy {
	return &LinearStrategy{}
}

func (m *LinearStrategy) Kind() StrategyKind { return StrategyLinear }

// Used returns the bytes of all chunks before the current chunk plus the bump offset within the
// current chunk
func (m *LinearStrategy) Used() int { return m.consumed + m.offset }

// CurrentChunk returns the index of the chunk that the next allocation will be attempted in
func (m *LinearStrategy) CurrentChunk() int { return m.currentChunk }

func (m *LinearStrategy) AddChunk(size int) {
	m.addChunk(size)
	memutils.DebugValidate(m)
}

func (m *LinearStrategy) Alloc(size int, alignment uint) (Block, bool) {
	if size <= 0 {
		panic(fmt.Sprintf("attempted to allocate %d bytes", size))
	}
	memutils.DebugCheckPow2(alignment, "alignment")

	if len(m.chunkSizes) == 0 {
		return Block{}, false
	}

	size = memutils.AlignUp(size, alignment)
	if size <= 0 {
		panic(fmt.Sprintf("allocation size overflowed when aligned to %d", alignment))
	}

	offset := memutils.AlignUp(m.offset, alignment)
	if offset <= m.chunkSizes[m.currentChunk] && size <= m.chunkSizes[m.currentChunk]-offset {
		return m.commit(offset, size), true
	}

	for chunk := m.currentChunk + 1; chunk < len(m.chunkSizes); chunk++ {
		if size > m.chunkSizes[chunk] {
			continue
		}

		for skipped := m.currentChunk; skipped < chunk; skipped++ {
			m.consumed += m.chunkSizes[skipped]
		}
		m.currentChunk = chunk
		m.offset = 0

		return m.commit(0, size), true
	}

	return Block{}, false
}

func (m *LinearStrategy) commit(offset, size int) Block {
	m.offset = offset + size
	m.allocationCount++

	memutils.DebugValidate(m)
	return Block{Chunk: m.currentChunk, Start: offset, End: offset + size}
}

// Free is a no-op: memory in a LinearStrategy is only reclaimed by Clear
func (m *LinearStrategy) Free(block Block) {}

func (m *LinearStrategy) Clear() {
	m.currentChunk = 0
	m.offset = 0
	m.consumed = 0
	m.allocationCount = 0
}

func (m *LinearStrategy) Validate() error {
	if len(m.chunkSizes) == 0 {
		if m.currentChunk != 0 || m.offset != 0 || m.consumed != 0 {
			return errors.New("linear strategy with no chunks has a nonzero position")
		}
		return nil
	}

	if m.currentChunk < 0 || m.currentChunk >= len(m.chunkSizes) {
		return errors.Errorf("current chunk %d is outside of the %d registered chunks", m.currentChunk, len(m.chunkSizes))
	}
	if m.offset < 0 || m.offset > m.chunkSizes[m.currentChunk] {
		return errors.Errorf("offset %d is outside of current chunk %d of size %d", m.offset, m.currentChunk, m.chunkSizes[m.currentChunk])
	}

	consumed := 0
	for chunk := 0; chunk < m.currentChunk; chunk++ {
		consumed += m.chunkSizes[chunk]
	}
	if consumed != m.consumed {
		return errors.Errorf("consumed byte count %d does not match the %d bytes in chunks before chunk %d", m.consumed, consumed, m.currentChunk)
	}

	if m.Used() > m.capacity {
		return errors.Errorf("used bytes %d exceed capacity %d", m.Used(), m.capacity)
	}

	return nil
}

func (m *LinearStrategy) AddStatistics(stats *memutils.Statistics) {
	stats.BlockCount += len(m.chunkSizes)
	stats.BlockBytes += m.capacity
	stats.AllocationCount += m.allocationCount
	stats.AllocationBytes += m.Used()

	m.visitUnusedRanges(stats.AddUnusedRange)
}

func (m *LinearStrategy) visitUnusedRanges(visit func(size int)) {
	if len(m.chunkSizes) == 0 {
		return
	}

	if tail := m.chunkSizes[m.currentChunk] - m.offset; tail > 0 {
		visit(tail)
	}

	for chunk := m.currentChunk + 1; chunk < len(m.chunkSizes); chunk++ {
		visit(m.chunkSizes[chunk])
	}
}

func (m *LinearStrategy) BlockJsonData(json *jwriter.ObjectState) {
	unusedRangeCount := 0
	m.visitUnusedRanges(func(size int) {
		unusedRangeCount++
	})

	m.WriteBlockJson(json, m.Used(), m.allocationCount, unusedRangeCount)
	json.Name("CurrentChunk").Int(m.currentChunk)
	json.Name("Offset").Int(m.offset)
}
