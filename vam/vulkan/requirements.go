package vulkan

import (
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_1"
	"github.com/vkngwrapper/extensions/v2/khr_dedicated_allocation"
)

// Requirements are a resource's memory requirements along with the driver's opinion of whether it
// should receive a dedicated allocation
type Requirements struct {
	core1_0.MemoryRequirements

	RequiresDedicated bool
	PrefersDedicated  bool
}

// Dedicated returns true if the resource should be allocated with vam.DeviceHeap.AllocDedicated
func (r Requirements) Dedicated() bool {
	return r.RequiresDedicated || r.PrefersDedicated
}

// BufferRequirements retrieves the memory requirements of a buffer. The dedicated allocation hints
// are only populated when khr_dedicated_allocation is active.
func (p *Provider) BufferRequirements(buffer core1_0.Buffer) (Requirements, error) {
	var reqs Requirements
	if p.extensionData.DedicatedAllocations && p.extensionData.GetMemoryRequirements != nil {
		dedicatedReqs := khr_dedicated_allocation.MemoryDedicatedRequirements{}
		memReqs := core1_1.MemoryRequirements2{
			NextOutData: common.NextOutData{
				Next: &dedicatedReqs,
			},
		}

		err := p.extensionData.GetMemoryRequirements.BufferMemoryRequirements2(
			core1_1.BufferMemoryRequirementsInfo2{
				Buffer: buffer,
			},
			&memReqs)
		if err != nil {
			return reqs, err
		}

		reqs.MemoryRequirements = memReqs.MemoryRequirements
		reqs.RequiresDedicated = dedicatedReqs.RequiresDedicatedAllocation
		reqs.PrefersDedicated = dedicatedReqs.PrefersDedicatedAllocation
		return reqs, nil
	}

	reqs.MemoryRequirements = *buffer.MemoryRequirements()
	return reqs, nil
}

// ImageRequirements retrieves the memory requirements of an image. The dedicated allocation hints
// are only populated when khr_dedicated_allocation is active.
func (p *Provider) ImageRequirements(image core1_0.Image) (Requirements, error) {
	var reqs Requirements
	if p.extensionData.DedicatedAllocations && p.extensionData.GetMemoryRequirements != nil {
		dedicatedReqs := khr_dedicated_allocation.MemoryDedicatedRequirements{}
		memReqs := core1_1.MemoryRequirements2{
			NextOutData: common.NextOutData{
				Next: &dedicatedReqs,
			},
		}

		err := p.extensionData.GetMemoryRequirements.ImageMemoryRequirements2(
			core1_1.ImageMemoryRequirementsInfo2{
				Image: image,
			},
			&memReqs)
		if err != nil {
			return reqs, err
		}

		reqs.MemoryRequirements = memReqs.MemoryRequirements
		reqs.RequiresDedicated = dedicatedReqs.RequiresDedicatedAllocation
		reqs.PrefersDedicated = dedicatedReqs.PrefersDedicatedAllocation
		return reqs, nil
	}

	reqs.MemoryRequirements = *image.MemoryRequirements()
	return reqs, nil
}
