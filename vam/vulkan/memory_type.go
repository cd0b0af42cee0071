package vulkan

import (
	"math"
	"math/bits"

	"github.com/vkngwrapper/core/v2/core1_0"
)

// MemoryMapping indicates whether a resource needs to be accessed from the host
type MemoryMapping int

const (
	// MemoryMappingDeviceLocal selects memory that is fast for the device to access and is never
	// mapped
	MemoryMappingDeviceLocal MemoryMapping = iota
	// MemoryMappingMapped selects host visible, host coherent memory that is persistently mapped
	MemoryMappingMapped
)

var memoryMappingMapping = make(map[MemoryMapping]string)

func (m MemoryMapping) String() string {
	return memoryMappingMapping[m]
}

func init() {
	memoryMappingMapping[MemoryMappingDeviceLocal] = "MemoryMappingDeviceLocal"
	memoryMappingMapping[MemoryMappingMapped] = "MemoryMappingMapped"
}

// PropertyFlags returns the memory property flags a memory type must have to serve this mapping
func (m MemoryMapping) PropertyFlags() core1_0.MemoryPropertyFlags {
	if m == MemoryMappingMapped {
		return core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent
	}
	return core1_0.MemoryPropertyDeviceLocal
}

// FindMemoryTypeIndex returns the first memory type that is permitted by memoryTypeBits and has all of
// the requested property flags. Drivers list memory types in order of performance, so the first
// match is usually the best one.
func FindMemoryTypeIndex(props *core1_0.PhysicalDeviceMemoryProperties, memoryTypeBits uint32, flags core1_0.MemoryPropertyFlags) (int, bool) {
	for memTypeIndex, memType := range props.MemoryTypes {
		if memoryTypeBits&(1<<memTypeIndex) == 0 {
			continue
		}

		if memType.PropertyFlags&flags == flags {
			return memTypeIndex, true
		}
	}

	return -1, false
}

// FindMemoryTypeIndexForMapping returns the first memory type that satisfies the requirements and
// serves the requested mapping
func FindMemoryTypeIndexForMapping(props *core1_0.PhysicalDeviceMemoryProperties, reqs core1_0.MemoryRequirements, mapping MemoryMapping) (int, bool) {
	return FindMemoryTypeIndex(props, reqs.MemoryTypeBits, mapping.PropertyFlags())
}

// FindPreferredMemoryTypeIndex returns the memory type permitted by memoryTypeBits that has all the
// required flags and the lowest cost. The cost of a memory type is the number of preferred flags it
// is missing plus the number of not-preferred flags it has.
func FindPreferredMemoryTypeIndex(
	props *core1_0.PhysicalDeviceMemoryProperties,
	memoryTypeBits uint32,
	requiredFlags, preferredFlags, notPreferredFlags core1_0.MemoryPropertyFlags,
) (int, bool) {
	bestMemoryTypeIndex := -1
	minCost := math.MaxInt

	for memTypeIndex, memType := range props.MemoryTypes {
		if memoryTypeBits&(1<<memTypeIndex) == 0 {
			// This memory type is banned by the bitmask
			continue
		}

		flags := memType.PropertyFlags
		if requiredFlags&flags != requiredFlags {
			// This memory type is missing required flags
			continue
		}

		missingPreferredFlags := preferredFlags & ^flags
		presentNotPreferredFlags := notPreferredFlags & flags
		cost := bits.OnesCount32(uint32(missingPreferredFlags)) + bits.OnesCount32(uint32(presentNotPreferredFlags))
		if cost == 0 {
			return memTypeIndex, true
		} else if cost < minCost {
			bestMemoryTypeIndex = memTypeIndex
			minCost = cost
		}
	}

	return bestMemoryTypeIndex, bestMemoryTypeIndex >= 0
}
