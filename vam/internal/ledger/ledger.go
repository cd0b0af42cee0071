package ledger

import (
	"fmt"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/chunkheap/memutils"
	"github.com/vkngwrapper/core/v2/common"
)

// HeapLedger tracks, per memory heap, how much memory has been taken from the backing provider and how
// much of it has been handed out to consumers. All methods are safe for concurrent use.
type HeapLedger struct {
	// Number of backing allocations that have been made from each heap
	blockCount [common.MaxMemoryHeaps]int32
	// Number of live allocations handed out to consumers- this includes dedicated allocations
	// as well as regions carved from chunks
	allocationCount [common.MaxMemoryHeaps]int32
	// Size of backing allocations that have been made from each heap
	blockBytes [common.MaxMemoryHeaps]int64
	// Size of live allocations handed out to consumers
	allocationBytes [common.MaxMemoryHeaps]int64

	heapLimits []int
}

// New creates a HeapLedger. heapLimits may be empty; otherwise it has one entry per heap, which is
// either the maximum number of bytes that may be allocated from that heap or a value <= 0 for no limit.
func New(heapCount int, heapLimits []int) (*HeapLedger, error) {
	if heapCount > common.MaxMemoryHeaps {
		return nil, errors.Newf("%d memory heaps were provided, but no more than %d are supported", heapCount, common.MaxMemoryHeaps)
	}
	if len(heapLimits) > 0 && len(heapLimits) != heapCount {
		return nil, errors.Newf("heap size limits were provided for %d heaps, but there are %d heaps", len(heapLimits), heapCount)
	}

	limits := make([]int, heapCount)
	copy(limits, heapLimits)

	return &HeapLedger{heapLimits: limits}, nil
}

// AddBlock records a new backing allocation of the provided size. If the heap has a limit and the
// allocation would exceed it, nothing is recorded and an error wrapping memutils.ErrOutOfDeviceMemory
// is returned.
func (l *HeapLedger) AddBlock(heapIndex int, size int) error {
	limit := l.heapLimits[heapIndex]
	if limit <= 0 {
		atomic.AddInt64(&l.blockBytes[heapIndex], int64(size))
		atomic.AddInt32(&l.blockCount[heapIndex], 1)
		return nil
	}

	for {
		currentVal := atomic.LoadInt64(&l.blockBytes[heapIndex])
		if int64(size) > int64(limit)-currentVal {
			return errors.Wrapf(memutils.ErrOutOfDeviceMemory, "allocating %d bytes would exceed the %d byte limit of heap %d, which already has %d bytes allocated", size, limit, heapIndex, currentVal)
		}

		if atomic.CompareAndSwapInt64(&l.blockBytes[heapIndex], currentVal, currentVal+int64(size)) {
			break
		}
	}

	atomic.AddInt32(&l.blockCount[heapIndex], 1)
	return nil
}

func (l *HeapLedger) RemoveBlock(heapIndex, size int) {
	newVal := atomic.AddInt64(&l.blockBytes[heapIndex], int64(-size))
	if newVal < 0 {
		panic(fmt.Sprintf("block bytes for heapIndex %d went negative", heapIndex))
	}

	newCountVal := atomic.AddInt32(&l.blockCount[heapIndex], -1)
	if newCountVal < 0 {
		panic(fmt.Sprintf("block count for heapIndex %d went negative", heapIndex))
	}
}

func (l *HeapLedger) AddAllocation(heapIndex int, size int) {
	atomic.AddInt64(&l.allocationBytes[heapIndex], int64(size))
	atomic.AddInt32(&l.allocationCount[heapIndex], 1)
}

func (l *HeapLedger) RemoveAllocation(heapIndex int, size int) {
	newSizeVal := atomic.AddInt64(&l.allocationBytes[heapIndex], int64(-size))
	if newSizeVal < 0 {
		panic(fmt.Sprintf("allocation bytes for heapIndex %d went negative", heapIndex))
	}

	newCountVal := atomic.AddInt32(&l.allocationCount[heapIndex], -1)
	if newCountVal < 0 {
		panic(fmt.Sprintf("allocation count for heapIndex %d went negative", heapIndex))
	}
}

// HeapLimit returns the byte limit of the heap, or 0 if it has none
func (l *HeapLedger) HeapLimit(heapIndex int) int {
	return l.heapLimits[heapIndex]
}

// HeapStatistics populates stats with a snapshot of the provided heap's counters. Because each counter
// is read separately, the snapshot may be inconsistent while other goroutines are allocating.
func (l *HeapLedger) HeapStatistics(heapIndex int, stats *memutils.Statistics) {
	stats.BlockCount = int(atomic.LoadInt32(&l.blockCount[heapIndex]))
	stats.AllocationCount = int(atomic.LoadInt32(&l.allocationCount[heapIndex]))
	stats.BlockBytes = int(atomic.LoadInt64(&l.blockBytes[heapIndex]))
	stats.AllocationBytes = int(atomic.LoadInt64(&l.allocationBytes[heapIndex]))
}
