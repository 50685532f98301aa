// Package seam implements the shard-level storage engine of a
// dataset-streaming library.
//
// Seam defines how a logical dataset (an ordered sequence of structured
// samples) is encoded into immutable shard files, how those files are
// described and randomly accessed, and how a dataset-global sample number
// is mapped to a shard and an in-shard offset.
//
// Seam does not implement dataset iteration order, shuffling, remote
// fetch, or caching. Those layers compose on top of the Writer, Reader,
// and Index types defined here.
package seam

import (
	"errors"
	"iter"
)

// -----------------------------------------------------------------------------
// Core types
// -----------------------------------------------------------------------------

// Sample is one dataset record: a mapping from column name to value.
type Sample = map[string]any

// FileInfo records validation metadata for one physical shard file.
//
// It is produced by a Writer when the file is finalized and consumed
// before a Reader trusts a downloaded file. Immutable once constructed.
type FileInfo struct {
	// Basename is the file's name within the shard directory.
	Basename string `json:"basename"`

	// Bytes is the persisted file size.
	Bytes int64 `json:"bytes"`

	// Hashes maps hash algorithm name to hex digest of the file contents.
	Hashes map[string]string `json:"hashes"`
}

// FilePair groups the raw and optionally compressed variants of one
// physical shard file. Zip is nil when the shard was written without
// compression.
type FilePair struct {
	Raw *FileInfo
	Zip *FileInfo
}

// -----------------------------------------------------------------------------
// Shard descriptor
// -----------------------------------------------------------------------------

// ShardVersion is the shard descriptor format version this package
// reads and writes. Descriptors with any other version are rejected.
const ShardVersion = 2

// IndexBasename is the name of the dataset index manifest written by
// Writer.Finish, listing every shard descriptor in flush order.
const IndexBasename = "index.json"

// Shard is an immutable shard descriptor: the JSON-serializable record
// of one flushed shard, combining codec configuration, sample count,
// and file validation info.
//
// Concrete descriptors are produced by Writer.Finish and reconstructed
// from JSON by ReaderFromJSON.
type Shard interface {
	// Format returns the shard format name ("mds", "csv", "tsv", "xsv",
	// or "json").
	Format() string

	// NumSamples returns the number of samples persisted in the shard.
	NumSamples() int

	// FilePairs returns the shard's physical files as raw/compressed
	// pairs. Split shards list the meta pair before the data pair.
	FilePairs() []FilePair
}

// -----------------------------------------------------------------------------
// Reader
// -----------------------------------------------------------------------------

// Reader provides random access to the samples of one shard.
//
// Shards are immutable once flushed, so any number of Readers may be
// used concurrently over the same files. A Reader never mutates the
// files it reads.
type Reader interface {
	// NumSamples returns the shard's declared sample count. The count
	// comes from the descriptor and is never recomputed by scanning.
	NumSamples() int

	// Get returns the decoded sample at index idx. It fails with
	// ErrOutOfRange when idx is outside [0, NumSamples).
	Get(idx int) (Sample, error)

	// Shard returns the descriptor this Reader was constructed from.
	Shard() Shard
}

// Iterate returns a restartable sequence over all samples of a shard,
// in insertion order. Each invocation of the returned sequence is a
// fresh pass of repeated Get calls from index 0. Iteration stops after
// yielding the first error.
func Iterate(r Reader) iter.Seq2[Sample, error] {
	return func(yield func(Sample, error) bool) {
		for i := range r.NumSamples() {
			sample, err := r.Get(i)
			if !yield(sample, err) || err != nil {
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrOutOfRange indicates a sample index outside the valid range of
	// a Reader or Index.
	ErrOutOfRange = errors.New("sample index out of range")

	// ErrUnknownFormat indicates a shard descriptor whose format name
	// is not in the reader registry.
	ErrUnknownFormat = errors.New("unknown shard format")

	// ErrUnsupportedVersion indicates a shard descriptor with a version
	// tag other than ShardVersion.
	ErrUnsupportedVersion = errors.New("unsupported shard version")

	// ErrUnknownEncoding indicates a column encoding name that is not
	// registered for the codec in use.
	ErrUnknownEncoding = errors.New("unknown column encoding")

	// ErrSizeMismatch indicates a fixed-size column whose encoded value
	// does not match its declared size.
	ErrSizeMismatch = errors.New("encoded size mismatch")
)
