package vam

type AllocateBackingMemoryCallback func(
	heap *DeviceHeap,
	memoryType int,
	memory BackingHandle,
	size int,
	userData interface{},
)

type FreeBackingMemoryCallback func(
	heap *DeviceHeap,
	memoryType int,
	memory BackingHandle,
	size int,
	userData interface{},
)

type MemoryCallbackOptions struct {
	Allocate AllocateBackingMemoryCallback
	Free     FreeBackingMemoryCallback
	UserData interface{}
}

type memoryCallbacks struct {
	Callbacks *MemoryCallbackOptions
	Heap      *DeviceHeap
}

func (c *memoryCallbacks) Allocate(
	memoryType int,
	memory BackingHandle,
	size int,
) {
	if c.Callbacks != nil && c.Callbacks.Allocate != nil {
		c.Callbacks.Allocate(c.Heap, memoryType, memory, size, c.Callbacks.UserData)
	}
}

func (c *memoryCallbacks) Free(
	memoryType int,
	memory BackingHandle,
	size int,
) {
	if c.Callbacks != nil && c.Callbacks.Free != nil {
		c.Callbacks.Free(c.Heap, memoryType, memory, size, c.Callbacks.UserData)
	}
}
