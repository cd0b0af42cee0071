package metadata

import "fmt"

// StrategyKind identifies one of the Strategy implementations in this package
type StrategyKind uint32

const (
	// StrategyFreeList is an address-ordered first-fit free list that coalesces neighboring free
	// ranges as they are returned. Allocations may be freed individually.
	StrategyFreeList StrategyKind = iota
	// StrategyLinear is a bump allocator that walks forward through its chunks. Individual frees are
	// ignored and memory is only reclaimed by Clear.
	StrategyLinear
)

var strategyKindMapping = make(map[StrategyKind]string)

func init() {
	strategyKindMapping[StrategyFreeList] = "StrategyFreeList"
	strategyKindMapping[StrategyLinear] = "StrategyLinear"
}

func (k StrategyKind) String() string {
	return strategyKindMapping[k]
}

// NewStrategy creates an empty Strategy of the requested kind
func NewStrategy(kind StrategyKind) Strategy {
	switch kind {
	case StrategyFreeList:
		return NewFreeListStrategy()
	case StrategyLinear:
		return NewLinearStrategy()
	}

	panic(fmt.Sprintf("unknown strategy kind: %d", kind))
}
