package seam

import (
	"fmt"
	"sort"
)

// Index maps a dataset-global sample number to a shard and an in-shard
// offset via prefix sums over shard sample counts.
//
// An Index is read-only after construction. Shard order must match the
// order shard descriptors were produced.
type Index struct {
	shardSizes []int64
	offsets    []int64
	size       int64
}

// NewIndex builds an Index over the given per-shard sample counts.
func NewIndex(shardSizes []int64) *Index {
	offsets := make([]int64, len(shardSizes)+1)
	for i, size := range shardSizes {
		offsets[i+1] = offsets[i] + size
	}
	return &Index{
		shardSizes: append([]int64(nil), shardSizes...),
		offsets:    offsets,
		size:       offsets[len(offsets)-1],
	}
}

// NewIndexFromReaders builds an Index over the sample counts of the
// given shard readers, in order.
func NewIndexFromReaders(readers []Reader) *Index {
	sizes := make([]int64, len(readers))
	for i, r := range readers {
		sizes[i] = int64(r.NumSamples())
	}
	return NewIndex(sizes)
}

// NumSamples returns the total sample count across all shards.
func (ix *Index) NumSamples() int64 { return ix.size }

// NumShards returns the shard count.
func (ix *Index) NumShards() int { return len(ix.shardSizes) }

// Find returns the shard holding the dataset-global sample idx and the
// sample's offset within that shard. A global index equal to a shard
// boundary belongs to the shard starting at that boundary. Fails with
// ErrOutOfRange outside [0, NumSamples).
func (ix *Index) Find(idx int64) (shard int, offset int64, err error) {
	if idx < 0 || idx >= ix.size {
		return 0, 0, fmt.Errorf("seam: sample %d of %d: %w", idx, ix.size, ErrOutOfRange)
	}
	// Largest shard whose starting offset is <= idx.
	shard = sort.Search(len(ix.offsets), func(i int) bool {
		return ix.offsets[i] > idx
	}) - 1
	return shard, idx - ix.offsets[shard], nil
}
