package vam

import (
	"context"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/chunkheap/memutils"
	"github.com/vkngwrapper/chunkheap/vam/internal/utils"
	"golang.org/x/exp/slog"
)

// dedicatedAllocationList tracks the live dedicated allocations of one memory type so they can be
// reported in statistics and caught at teardown
type dedicatedAllocationList struct {
	mutex utils.OptionalRWMutex

	count              int
	allocationListHead *Allocation
	allocationListTail *Allocation
}

func (l *dedicatedAllocationList) Init(useMutex bool) {
	l.mutex = utils.OptionalRWMutex{UseMutex: useMutex}
}

func (l *dedicatedAllocationList) Validate() error {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	declaredCount := l.count
	actualCount := 0

	for alloc := l.allocationListHead; alloc != nil; alloc = alloc.nextDedicatedAlloc() {
		if !alloc.IsDedicated() {
			return errors.Errorf("allocation %s is in the dedicated allocation list, but is not dedicated", alloc)
		}
		actualCount++
	}

	if declaredCount != actualCount {
		return errors.Errorf("the listed number of dedicated allocations in the list (%d) does not match the actual number of allocations (%d)", declaredCount, actualCount)
	}

	return nil
}

func (l *dedicatedAllocationList) AddStatistics(stats *memutils.Statistics) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for item := l.allocationListHead; item != nil; item = item.nextDedicatedAlloc() {
		size := item.Size()
		stats.BlockCount++
		stats.BlockBytes += size
		stats.AllocationCount++
		stats.AllocationBytes += size
	}
}

func (l *dedicatedAllocationList) BuildStatsString(writer *jwriter.Writer) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	s := writer.Array()
	defer s.End()

	for alloc := l.allocationListHead; alloc != nil; alloc = alloc.nextDedicatedAlloc() {
		o := s.Object()
		alloc.printParameters(&o)
		o.End()
	}
}

func (l *dedicatedAllocationList) logUnreleasedAllocations(logger *slog.Logger) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for alloc := l.allocationListHead; alloc != nil; alloc = alloc.nextDedicatedAlloc() {
		name := alloc.Name()
		if name == "" {
			name = "empty"
		}

		logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unreleased dedicated allocation",
			slog.Int("MemoryTypeIndex", alloc.MemoryTypeIndex()),
			slog.Int("size", alloc.Size()),
			slog.Any("userData", alloc.UserData()),
			slog.String("name", name),
		)
	}
}

func (l *dedicatedAllocationList) IsEmpty() bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.count == 0
}

func (l *dedicatedAllocationList) Count() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.count
}

func (l *dedicatedAllocationList) Register(alloc *Allocation) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.pushAllocation(alloc)
}

func (l *dedicatedAllocationList) Unregister(alloc *Allocation) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.removeAllocation(alloc)
}

func (l *dedicatedAllocationList) removeAllocation(alloc *Allocation) {
	prev := alloc.prevDedicatedAlloc()
	next := alloc.nextDedicatedAlloc()

	if prev != nil {
		prev.setNext(next)
	} else {
		l.allocationListHead = next
	}

	if next != nil {
		next.setPrev(prev)
	} else {
		l.allocationListTail = prev
	}

	alloc.setNext(nil)
	alloc.setPrev(nil)

	l.count--
}

func (l *dedicatedAllocationList) pushAllocation(alloc *Allocation) {
	if l.count == 0 {
		l.allocationListHead = alloc
		l.allocationListTail = alloc
		l.count = 1
	} else {
		alloc.setPrev(l.allocationListTail)
		l.allocationListTail.setNext(alloc)

		l.allocationListTail = alloc
		l.count++
	}
}
