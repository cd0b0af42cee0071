// Package vulkan backs a vam.DeviceHeap with Vulkan device memory and provides the memory type
// selection helpers that consumers use to choose a memory type for a resource.
package vulkan

//go:generate mockgen -source provider.go -destination ./mocks/device.go -package mock_vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/chunkheap/memutils"
	"github.com/vkngwrapper/chunkheap/vam"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
	"github.com/vkngwrapper/extensions/v2/khr_dedicated_allocation"
)

// MemoryAllocator is the portion of core1_0.Device that Provider allocates memory through
type MemoryAllocator interface {
	AllocateMemory(allocationCallbacks *driver.AllocationCallbacks, o core1_0.MemoryAllocateInfo) (core1_0.DeviceMemory, common.VkResult, error)
}

// Provider is a vam.BackingProvider that allocates core1_0.DeviceMemory objects from a Vulkan
// device. The vam.BackingHandle of every chunk it produces is a core1_0.DeviceMemory, so resources
// can be bound with:
//
//	buffer.BindBufferMemory(alloc.Memory().(core1_0.DeviceMemory), alloc.Offset())
type Provider struct {
	device              MemoryAllocator
	memoryProperties    *core1_0.PhysicalDeviceMemoryProperties
	allocationCallbacks *driver.AllocationCallbacks
	extensionData       *ExtensionData
}

var _ vam.BackingProvider = &Provider{}

// New creates a Provider
//
// physicalDevice - The PhysicalDevice that owns the provided Device
//
// device - The Device that memory will be allocated from
//
// allocationCallbacks - Optional host allocation callbacks passed to Vulkan on every allocate and free
func New(physicalDevice core1_0.PhysicalDevice, device core1_0.Device, allocationCallbacks *driver.AllocationCallbacks) (*Provider, error) {
	if physicalDevice == nil {
		return nil, errors.New("attempted to create a provider with a nil PhysicalDevice")
	} else if device == nil {
		return nil, errors.New("attempted to create a provider with a nil Device")
	}

	return newProvider(device, physicalDevice.MemoryProperties(), allocationCallbacks, NewExtensionData(device)), nil
}

func newProvider(device MemoryAllocator, memoryProperties *core1_0.PhysicalDeviceMemoryProperties, allocationCallbacks *driver.AllocationCallbacks, extensionData *ExtensionData) *Provider {
	return &Provider{
		device:              device,
		memoryProperties:    memoryProperties,
		allocationCallbacks: allocationCallbacks,
		extensionData:       extensionData,
	}
}

// ExtensionData returns the optional memory capabilities detected on the device
func (p *Provider) ExtensionData() *ExtensionData {
	return p.extensionData
}

func (p *Provider) MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties {
	return p.memoryProperties
}

// Allocate allocates a new core1_0.DeviceMemory. If info.Dedicated is a core1_0.Buffer or
// core1_0.Image and dedicated allocations are supported by the device, the allocation is
// made with khr_dedicated_allocation.MemoryDedicatedAllocateInfo.
func (p *Provider) Allocate(info vam.AllocateInfo) (vam.BackingHandle, error) {
	allocInfo := core1_0.MemoryAllocateInfo{
		AllocationSize:  info.Size,
		MemoryTypeIndex: info.MemoryTypeIndex,
	}

	if p.extensionData.DedicatedAllocations {
		dedicatedAllocInfo := khr_dedicated_allocation.MemoryDedicatedAllocateInfo{}
		switch target := info.Dedicated.(type) {
		case core1_0.Buffer:
			dedicatedAllocInfo.Buffer = target
			dedicatedAllocInfo.Next = allocInfo.Next
			allocInfo.Next = dedicatedAllocInfo
		case core1_0.Image:
			dedicatedAllocInfo.Image = target
			dedicatedAllocInfo.Next = allocInfo.Next
			allocInfo.Next = dedicatedAllocInfo
		}
	}

	memory, res, err := p.device.AllocateMemory(p.allocationCallbacks, allocInfo)
	if err != nil {
		if res == core1_0.VKErrorOutOfDeviceMemory || res == core1_0.VKErrorOutOfHostMemory {
			err = errors.Mark(err, memutils.ErrOutOfDeviceMemory)
		}
		return nil, errors.Wrapf(err, "vkAllocateMemory failed with %s", res)
	}

	return memory, nil
}

// Map persistently maps the whole of a DeviceMemory. The mapping lasts until the memory is freed.
func (p *Provider) Map(handle vam.BackingHandle, size int) (unsafe.Pointer, error) {
	memory, ok := handle.(core1_0.DeviceMemory)
	if !ok {
		return nil, errors.Newf("handle of type %T is not a core1_0.DeviceMemory", handle)
	}

	data, res, err := memory.Map(0, size, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "vkMapMemory failed with %s", res)
	}

	return data, nil
}

// Free frees a DeviceMemory, implicitly unmapping it
func (p *Provider) Free(handle vam.BackingHandle) {
	handle.(core1_0.DeviceMemory).Free(p.allocationCallbacks)
}
