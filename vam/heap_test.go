package vam_test

import (
	"encoding/json"
	"io"
	"math"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/chunkheap/memutils"
	"github.com/vkngwrapper/chunkheap/vam"
	"github.com/vkngwrapper/chunkheap/vam/hostmem"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

const (
	typeDeviceLocal = 0
	typeHostVisible = 1
	typeUnified     = 2
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard))
}

func readyHeap(t *testing.T, heapSize int, options vam.CreateOptions) (*vam.DeviceHeap, *hostmem.Provider) {
	provider := hostmem.NewDefault(heapSize)
	heap, err := vam.New(testLogger(), provider, options)
	require.NoError(t, err)

	return heap, provider
}

func TestAllocGrowsPool(t *testing.T) {
	heap, provider := readyHeap(t, 1<<20, vam.CreateOptions{ChunkSize: 1024})

	small, err := heap.Alloc(core1_0.MemoryRequirements{Size: 100, Alignment: 1}, typeDeviceLocal, vam.TilingLinear)
	require.NoError(t, err)
	require.Equal(t, 0, small.Offset())
	require.Equal(t, 128, small.Size())
	require.Equal(t, 1024, small.Chunk().Size())
	require.Equal(t, []vam.HeapInfo{{Reserved: 1024, Used: 128}}, heap.Heaps())

	// 3000 bytes doesn't fit in the rest of the first chunk, so the pool grows by the request
	// rounded up to a multiple of the chunk size
	large, err := heap.Alloc(core1_0.MemoryRequirements{Size: 3000, Alignment: 1}, typeDeviceLocal, vam.TilingLinear)
	require.NoError(t, err)
	require.Equal(t, 0, large.Offset())
	require.Equal(t, 3008, large.Size())
	require.Equal(t, 3072, large.Chunk().Size())
	require.Equal(t, 1, large.Chunk().Index())
	require.Equal(t, []vam.HeapInfo{{Reserved: 4096, Used: 3136}}, heap.Heaps())
	require.Equal(t, 4096, provider.Allocated(0))

	small.Release()
	large.Release()
	require.Equal(t, []vam.HeapInfo{{Reserved: 4096, Used: 0}}, heap.Heaps())
	require.NoError(t, heap.Validate())

	require.NoError(t, heap.Destroy())
	require.Equal(t, 0, provider.Allocated(0))
	require.Equal(t, 0, provider.LiveCount())
}

func TestAllocReusesFreedMemory(t *testing.T) {
	heap, provider := readyHeap(t, 1<<20, vam.CreateOptions{ChunkSize: 1024})

	first, err := heap.Alloc(core1_0.MemoryRequirements{Size: 256, Alignment: 64}, typeDeviceLocal, vam.TilingNonLinear)
	require.NoError(t, err)
	second, err := heap.Alloc(core1_0.MemoryRequirements{Size: 256, Alignment: 64}, typeDeviceLocal, vam.TilingNonLinear)
	require.NoError(t, err)
	require.Equal(t, 256, second.Offset())

	first.Release()

	third, err := heap.Alloc(core1_0.MemoryRequirements{Size: 200, Alignment: 64}, typeDeviceLocal, vam.TilingNonLinear)
	require.NoError(t, err)
	require.Equal(t, 0, third.Offset())
	require.Same(t, second.Chunk(), third.Chunk())
	require.Equal(t, 1, provider.LiveCount())

	second.Release()
	third.Release()
	require.NoError(t, heap.Destroy())
}

func TestAllocSeparatesTilings(t *testing.T) {
	heap, provider := readyHeap(t, 1<<20, vam.CreateOptions{ChunkSize: 1024})

	linear, err := heap.Alloc(core1_0.MemoryRequirements{Size: 64, Alignment: 1}, typeDeviceLocal, vam.TilingLinear)
	require.NoError(t, err)
	nonLinear, err := heap.Alloc(core1_0.MemoryRequirements{Size: 64, Alignment: 1}, typeDeviceLocal, vam.TilingNonLinear)
	require.NoError(t, err)

	require.NotSame(t, linear.Chunk(), nonLinear.Chunk())
	require.Equal(t, vam.TilingLinear, linear.Tiling())
	require.Equal(t, vam.TilingNonLinear, nonLinear.Tiling())
	require.Equal(t, vam.LifetimeStatic, nonLinear.Lifetime())
	require.Equal(t, 2, provider.LiveCount())

	linear.Release()
	nonLinear.Release()
	require.NoError(t, heap.Destroy())
}

func TestAllocMinAlignment(t *testing.T) {
	heap, _ := readyHeap(t, 1<<20, vam.CreateOptions{ChunkSize: 4096, MinAlignment: 256})

	first, err := heap.Allocate(1, 1, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal})
	require.NoError(t, err)
	second, err := heap.Allocate(1, 16, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal})
	require.NoError(t, err)

	require.Equal(t, 0, first.Offset())
	require.Equal(t, 256, second.Offset())
	require.Equal(t, 256, first.Size())

	first.Release()
	second.Release()
	require.NoError(t, heap.Destroy())
}

func TestAllocDedicated(t *testing.T) {
	heap, provider := readyHeap(t, 1<<20, vam.CreateOptions{ChunkSize: 1024})

	alloc, err := heap.AllocDedicated(core1_0.MemoryRequirements{Size: 5000, Alignment: 256}, typeHostVisible, vam.TilingNonLinear, "target")
	require.NoError(t, err)

	require.True(t, alloc.IsDedicated())
	require.True(t, alloc.WholeSize())
	require.True(t, alloc.Chunk().IsDedicated())
	require.Equal(t, -1, alloc.Chunk().Index())
	require.Equal(t, 0, alloc.Offset())
	require.Equal(t, 5000, alloc.Size())
	require.Equal(t, 5000, alloc.End())
	require.Len(t, alloc.Bytes(), 5000)
	require.Equal(t, "target", alloc.Memory().(*hostmem.Memory).Dedicated())

	// Dedicated allocations never touch the pools
	require.Equal(t, []vam.HeapInfo{{Reserved: 0, Used: 0}}, heap.Heaps())

	stats, err := heap.HeapStatistics(0)
	require.NoError(t, err)
	require.Equal(t, memutils.Statistics{
		BlockCount:      1,
		BlockBytes:      5000,
		AllocationCount: 1,
		AllocationBytes: 5000,
	}, stats)
	require.Equal(t, 5000, provider.Allocated(0))

	alloc.Release()
	require.Equal(t, 0, provider.LiveCount())

	stats, err = heap.HeapStatistics(0)
	require.NoError(t, err)
	require.Equal(t, memutils.Statistics{}, stats)

	require.NoError(t, heap.Destroy())
}

func TestAllocNeverAllocate(t *testing.T) {
	heap, provider := readyHeap(t, 1<<20, vam.CreateOptions{ChunkSize: 1024})

	_, err := heap.Allocate(64, 1, vam.AllocationCreateInfo{
		Flags:           vam.AllocationCreateNeverAllocate,
		MemoryTypeIndex: typeDeviceLocal,
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrOutOfDeviceMemory))
	require.Equal(t, 0, provider.LiveCount())

	_, err = heap.Allocate(64, 1, vam.AllocationCreateInfo{
		Flags:           vam.AllocationCreateNeverAllocate | vam.AllocationCreateDedicatedMemory,
		MemoryTypeIndex: typeDeviceLocal,
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrOutOfDeviceMemory))

	first, err := heap.Allocate(64, 1, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal})
	require.NoError(t, err)

	second, err := heap.Allocate(64, 1, vam.AllocationCreateInfo{
		Flags:           vam.AllocationCreateNeverAllocate,
		MemoryTypeIndex: typeDeviceLocal,
	})
	require.NoError(t, err)
	require.Same(t, first.Chunk(), second.Chunk())

	_, err = heap.Allocate(2048, 1, vam.AllocationCreateInfo{
		Flags:           vam.AllocationCreateNeverAllocate,
		MemoryTypeIndex: typeDeviceLocal,
	})
	require.True(t, errors.Is(err, memutils.ErrOutOfDeviceMemory))
	require.Equal(t, 1, provider.LiveCount())

	first.Release()
	second.Release()
	require.NoError(t, heap.Destroy())
}

func TestAllocHeapSizeLimit(t *testing.T) {
	heap, provider := readyHeap(t, 1<<20, vam.CreateOptions{
		ChunkSize:      1024,
		HeapSizeLimits: []int{2048},
	})

	first, err := heap.Allocate(1000, 1, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal})
	require.NoError(t, err)
	second, err := heap.Allocate(1000, 1, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal})
	require.NoError(t, err)
	require.NotSame(t, first.Chunk(), second.Chunk())

	_, err = heap.Allocate(1000, 1, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal})
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrOutOfDeviceMemory))
	require.Equal(t, 2, provider.LiveCount())

	_, err = heap.Allocate(1000, 1, vam.AllocationCreateInfo{
		Flags:           vam.AllocationCreateDedicatedMemory,
		MemoryTypeIndex: typeDeviceLocal,
	})
	require.True(t, errors.Is(err, memutils.ErrOutOfDeviceMemory))

	first.Release()
	second.Release()
	require.NoError(t, heap.Destroy())
}

func TestAllocProviderOutOfMemory(t *testing.T) {
	heap, provider := readyHeap(t, 1024, vam.CreateOptions{ChunkSize: 1024})

	first, err := heap.Allocate(512, 1, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal})
	require.NoError(t, err)

	_, err = heap.Allocate(512, 1, vam.AllocationCreateInfo{MemoryTypeIndex: typeHostVisible})
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrOutOfDeviceMemory))

	stats, err := heap.HeapStatistics(0)
	require.NoError(t, err)
	require.Equal(t, 1, stats.BlockCount)
	require.Equal(t, 1024, stats.BlockBytes)

	first.Release()
	require.NoError(t, heap.Destroy())
	require.Equal(t, 0, provider.LiveCount())
}

func TestAllocInvalidArguments(t *testing.T) {
	heap, provider := readyHeap(t, 1<<20, vam.CreateOptions{ChunkSize: 1024})

	_, err := heap.Allocate(0, 1, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal})
	require.Error(t, err)

	_, err = heap.Allocate(64, 3, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal})
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.PowerOfTwoError))

	_, err = heap.Allocate(64, 1, vam.AllocationCreateInfo{MemoryTypeIndex: 3})
	require.Error(t, err)

	_, err = heap.Allocate(64, 1, vam.AllocationCreateInfo{MemoryTypeIndex: -1})
	require.Error(t, err)

	_, err = heap.Alloc(core1_0.MemoryRequirements{Size: 64, Alignment: 1, MemoryTypeBits: 0b010}, typeDeviceLocal, vam.TilingLinear)
	require.Error(t, err)

	_, err = heap.Allocate(64, 1, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal, Tiling: vam.Tiling(7)})
	require.Error(t, err)

	_, err = heap.AllocDedicated(core1_0.MemoryRequirements{Size: 64, Alignment: 1}, typeDeviceLocal, vam.Tiling(7), nil)
	require.Error(t, err)

	_, err = heap.Allocate(64, 1, vam.AllocationCreateInfo{
		MemoryTypeIndex: typeDeviceLocal,
		Lifetime:        vam.Lifetime(9),
		Flags:           vam.AllocationCreateDedicatedMemory,
	})
	require.Error(t, err)

	require.Equal(t, 0, provider.LiveCount())
	require.NoError(t, heap.Destroy())
}

func TestAllocOverflowingSize(t *testing.T) {
	heap, provider := readyHeap(t, 1<<20, vam.CreateOptions{ChunkSize: 1024})

	// Aligning the size would wrap around
	_, err := heap.Allocate(math.MaxInt-8, 32, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal})
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrOutOfDeviceMemory))

	// Rounding the size up to a multiple of the chunk size would wrap around
	_, err = heap.Allocate(math.MaxInt-2000, 32, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal, Lifetime: vam.LifetimeFrame})
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrOutOfDeviceMemory))

	_, err = heap.Allocate(64, uint(math.MaxInt)+1, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal})
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrOutOfDeviceMemory))

	_, err = heap.Allocate(math.MaxInt-8, 32, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal, Flags: vam.AllocationCreateDedicatedMemory})
	require.Error(t, err)
	require.True(t, errors.Is(err, memutils.ErrOutOfDeviceMemory))

	require.Equal(t, 0, provider.LiveCount())
	require.Equal(t, []vam.HeapInfo{{Reserved: 0, Used: 0}}, heap.Heaps())

	alloc, err := heap.Allocate(64, 32, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal})
	require.NoError(t, err)
	require.Equal(t, 64, alloc.Size())
	alloc.Release()

	require.NoError(t, heap.Validate())
	require.NoError(t, heap.Destroy())
}

func TestNewInvalidOptions(t *testing.T) {
	provider := hostmem.NewDefault(1 << 20)

	_, err := vam.New(testLogger(), nil, vam.CreateOptions{})
	require.Error(t, err)

	_, err = vam.New(testLogger(), provider, vam.CreateOptions{ChunkSize: -1})
	require.Error(t, err)

	_, err = vam.New(testLogger(), provider, vam.CreateOptions{MinAlignment: 48})
	require.Error(t, err)

	_, err = vam.New(testLogger(), provider, vam.CreateOptions{HeapSizeLimits: []int{1024, 1024}})
	require.Error(t, err)
}

func TestDefaultChunkSize(t *testing.T) {
	heap, provider := readyHeap(t, 1<<20, vam.CreateOptions{})

	alloc, err := heap.Allocate(64, 1, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal})
	require.NoError(t, err)

	// Heaps no larger than a gigabyte use an eighth of the heap per chunk
	require.Equal(t, 1<<17, alloc.Chunk().Size())
	require.Equal(t, 1<<17, provider.Allocated(0))

	alloc.Release()
	require.NoError(t, heap.Destroy())
}

func TestClearFrame(t *testing.T) {
	heap, _ := readyHeap(t, 1<<20, vam.CreateOptions{ChunkSize: 1024})

	frame := vam.AllocationCreateInfo{MemoryTypeIndex: typeHostVisible, Lifetime: vam.LifetimeFrame}

	first, err := heap.Allocate(100, 1, frame)
	require.NoError(t, err)
	require.Equal(t, vam.LifetimeFrame, first.Lifetime())
	require.Equal(t, 0, first.Offset())
	first.Release()

	// Released frame memory is not reused until the frame is cleared
	second, err := heap.Allocate(100, 1, frame)
	require.NoError(t, err)
	require.Equal(t, 128, second.Offset())
	require.Equal(t, []vam.HeapInfo{{Reserved: 1024, Used: 256}}, heap.Heaps())

	// Clearing a frame with live allocations is a consumer bug
	require.Panics(t, func() {
		heap.ClearFrame()
	})

	second.Release()
	heap.ClearFrame()
	require.Equal(t, []vam.HeapInfo{{Reserved: 1024, Used: 0}}, heap.Heaps())

	third, err := heap.Allocate(100, 1, frame)
	require.NoError(t, err)
	require.Equal(t, 0, third.Offset())

	// Static pools are untouched by ClearFrame
	static, err := heap.Allocate(100, 1, vam.AllocationCreateInfo{MemoryTypeIndex: typeHostVisible})
	require.NoError(t, err)
	third.Release()
	heap.ClearFrame()
	require.Equal(t, 1, static.References())
	require.Equal(t, []vam.HeapInfo{{Reserved: 2048, Used: 128}}, heap.Heaps())

	static.Release()
	require.NoError(t, heap.Destroy())
}

func TestDestroyWithLiveAllocation(t *testing.T) {
	heap, provider := readyHeap(t, 1<<20, vam.CreateOptions{ChunkSize: 1024})

	alloc, err := heap.Allocate(64, 1, vam.AllocationCreateInfo{MemoryTypeIndex: typeUnified})
	require.NoError(t, err)

	require.Panics(t, func() {
		_ = heap.Destroy()
	})

	alloc.Release()
	require.NoError(t, heap.Destroy())
	require.Equal(t, 0, provider.LiveCount())
}

func TestDestroyWithLiveDedicatedAllocation(t *testing.T) {
	heap, provider := readyHeap(t, 1<<20, vam.CreateOptions{ChunkSize: 1024})

	alloc, err := heap.Allocate(64, 1, vam.AllocationCreateInfo{
		Flags:           vam.AllocationCreateDedicatedMemory,
		MemoryTypeIndex: typeUnified,
		Name:            "leaked",
	})
	require.NoError(t, err)

	require.Error(t, heap.Destroy())

	alloc.Release()
	require.NoError(t, heap.Destroy())
	require.Equal(t, 0, provider.LiveCount())
}

func TestMemoryCallbacks(t *testing.T) {
	var allocated, freed []int
	var heapSeen *vam.DeviceHeap

	heap, _ := readyHeap(t, 1<<20, vam.CreateOptions{
		ChunkSize: 1024,
		MemoryCallbackOptions: &vam.MemoryCallbackOptions{
			Allocate: func(heap *vam.DeviceHeap, memoryType int, memory vam.BackingHandle, size int, userData interface{}) {
				require.Equal(t, "callback data", userData)
				require.NotNil(t, memory)
				heapSeen = heap
				allocated = append(allocated, size)
			},
			Free: func(heap *vam.DeviceHeap, memoryType int, memory vam.BackingHandle, size int, userData interface{}) {
				require.Equal(t, "callback data", userData)
				freed = append(freed, size)
			},
			UserData: "callback data",
		},
	})

	pooled, err := heap.Allocate(64, 1, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal})
	require.NoError(t, err)
	dedicated, err := heap.Allocate(300, 1, vam.AllocationCreateInfo{
		Flags:           vam.AllocationCreateDedicatedMemory,
		MemoryTypeIndex: typeDeviceLocal,
	})
	require.NoError(t, err)

	require.Same(t, heap, heapSeen)
	require.Equal(t, []int{1024, 300}, allocated)
	require.Empty(t, freed)

	dedicated.Release()
	require.Equal(t, []int{300}, freed)

	pooled.Release()
	require.Equal(t, []int{300}, freed)

	require.NoError(t, heap.Destroy())
	require.Equal(t, []int{300, 1024}, freed)
}

func TestBuildStatsString(t *testing.T) {
	heap, _ := readyHeap(t, 1<<20, vam.CreateOptions{ChunkSize: 1024})

	pooled, err := heap.Allocate(100, 1, vam.AllocationCreateInfo{MemoryTypeIndex: typeDeviceLocal})
	require.NoError(t, err)
	dedicated, err := heap.Allocate(300, 1, vam.AllocationCreateInfo{
		Flags:           vam.AllocationCreateDedicatedMemory,
		MemoryTypeIndex: typeHostVisible,
		Name:            "vertex buffer",
		UserData:        7,
	})
	require.NoError(t, err)

	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(heap.BuildStatsString(false)), &summary))
	require.NotContains(t, summary, "DefaultPools")

	general := summary["General"].(map[string]any)
	require.Equal(t, float64(1), general["MemoryHeapCount"])
	require.Equal(t, float64(3), general["MemoryTypeCount"])

	total := summary["Total"].(map[string]any)
	require.Equal(t, float64(2), total["BlockCount"])
	require.Equal(t, float64(1324), total["BlockBytes"])
	require.Equal(t, float64(2), total["AllocationCount"])
	require.Equal(t, float64(428), total["AllocationBytes"])

	heap0 := summary["MemoryHeaps"].(map[string]any)["Heap 0"].(map[string]any)
	require.Equal(t, float64(1<<20), heap0["Size"])
	require.Equal(t, float64(1024), heap0["Reserved"])
	require.Equal(t, float64(128), heap0["Used"])
	require.Len(t, heap0["MemoryTypes"], 3)

	var detailed map[string]any
	require.NoError(t, json.Unmarshal([]byte(heap.BuildStatsString(true)), &detailed))

	pools := detailed["DefaultPools"].(map[string]any)
	require.Len(t, pools, 12)
	pool := pools["Type 0 TilingLinear LifetimeStatic"].(map[string]any)
	require.Equal(t, "StrategyFreeList", pool["Strategy"])
	require.Equal(t, []any{float64(2)}, pool["ChunkReferences"])

	dedicatedList := detailed["DedicatedAllocations"].(map[string]any)["Type 1"].([]any)
	require.Len(t, dedicatedList, 1)
	entry := dedicatedList[0].(map[string]any)
	require.Equal(t, "vertex buffer", entry["Name"])
	require.Equal(t, float64(300), entry["Size"])
	require.Equal(t, "7", entry["CustomData"])

	pooled.Release()
	dedicated.Release()
	require.NoError(t, heap.Destroy())
}

func TestConcurrentAllocations(t *testing.T) {
	heap, provider := readyHeap(t, 64<<20, vam.CreateOptions{ChunkSize: 64 << 10})

	const workers = 8
	const allocsPerWorker = 200
	alignments := []uint{1, 16, 32, 64, 256}

	var mutex sync.Mutex
	var allocations []*vam.Allocation
	var markers []byte

	var wg sync.WaitGroup
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			random := rand.New(rand.NewSource(int64(1337 + worker)))

			var live []*vam.Allocation
			for i := 0; i < allocsPerWorker; i++ {
				if len(live) > 0 && random.Intn(4) == 0 {
					index := random.Intn(len(live))
					live[index].Release()
					live = append(live[:index], live[index+1:]...)
					continue
				}

				alloc, err := heap.Allocate(1+random.Intn(2000), alignments[random.Intn(len(alignments))], vam.AllocationCreateInfo{
					MemoryTypeIndex: typeHostVisible,
					Tiling:          vam.Tiling(random.Intn(2)),
				})
				if err != nil {
					t.Error(err)
					return
				}
				live = append(live, alloc)
			}

			mutex.Lock()
			defer mutex.Unlock()
			for _, alloc := range live {
				marker := byte(len(allocations)%251 + 1)
				for i := range alloc.Bytes() {
					alloc.Bytes()[i] = marker
				}
				allocations = append(allocations, alloc)
				markers = append(markers, marker)
			}
		}(worker)
	}
	wg.Wait()

	require.NoError(t, heap.Validate())

	// No two live allocations may share a byte
	for index, alloc := range allocations {
		for _, b := range alloc.Bytes() {
			require.Equal(t, markers[index], b)
		}
	}

	sorted := append([]*vam.Allocation(nil), allocations...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Chunk() != sorted[j].Chunk() {
			return uintptr(sorted[i].Chunk().MappedData()) < uintptr(sorted[j].Chunk().MappedData())
		}
		return sorted[i].Offset() < sorted[j].Offset()
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Chunk() == sorted[i-1].Chunk() {
			require.LessOrEqual(t, sorted[i-1].End(), sorted[i].Offset())
		}
	}

	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for index := worker; index < len(allocations); index += workers {
				allocations[index].Release()
			}
		}(worker)
	}
	wg.Wait()

	require.NoError(t, heap.Validate())
	for _, info := range heap.Heaps() {
		require.Equal(t, 0, info.Used)
	}

	require.NoError(t, heap.Destroy())
	require.Equal(t, 0, provider.LiveCount())
}
