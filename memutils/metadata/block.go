package metadata

import "fmt"

// Block is a byte range [Start, End) inside a single chunk registered with a Strategy. The chunk is
// identified by the order in which it was passed to Strategy.AddChunk.
type Block struct {
	Chunk int
	Start int
	End   int
}

// Offset returns the offset in bytes of the block from the beginning of its chunk
func (b Block) Offset() int { return b.Start }

// Size returns the length of the block in bytes
func (b Block) Size() int { return b.End - b.Start }

// IsEmpty returns true if the block covers no bytes. Empty blocks are never stored by a Strategy.
func (b Block) IsEmpty() bool { return b.End <= b.Start }

func (b Block) String() string {
	return fmt.Sprintf("chunk %d [%d, %d)", b.Chunk, b.Start, b.End)
}

// orderedAfter returns true if b sorts after other in (Chunk, Start) order
func (b Block) orderedAfter(other Block) bool {
	if b.Chunk != other.Chunk {
		return b.Chunk > other.Chunk
	}
	return b.Start > other.Start
}
