package seam

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/justapithecus/seam/compression"
	"github.com/justapithecus/seam/hashing"
)

// DefaultSizeLimit is the shard size limit used when none is configured.
const DefaultSizeLimit = 1 << 26

// -----------------------------------------------------------------------------
// Writer configuration
// -----------------------------------------------------------------------------

// writerOptions holds the resolved configuration shared by all shard
// writers.
type writerOptions struct {
	compression string
	hashes      []string
	sizeLimit   int64
	newline     string
	newlineSet  bool
}

// WriterOption configures shard writer construction.
type WriterOption func(*writerOptions) error

// WithCompression sets the compression scheme applied to every shard
// file, as a name with optional level ("zstd", "zstd:7", "gz:1").
// Default: no compression.
func WithCompression(scheme string) WriterOption {
	return func(o *writerOptions) error {
		if !compression.IsScheme(scheme) {
			return fmt.Errorf("unknown compression scheme %q", scheme)
		}
		o.compression = scheme
		return nil
	}
}

// WithHashes sets the hash algorithms applied to every shard file.
// Default: none.
func WithHashes(algorithms ...string) WriterOption {
	return func(o *writerOptions) error {
		for _, algo := range algorithms {
			if !hashing.IsAlgorithm(algo) {
				return fmt.Errorf("unknown hash algorithm %q", algo)
			}
		}
		o.hashes = append([]string(nil), algorithms...)
		sort.Strings(o.hashes)
		return nil
	}
}

// WithSizeLimit sets the shard size limit in bytes, after which the
// writer rolls over to a new shard. A limit of 0 disables rollover and
// puts all samples in one shard. Default: DefaultSizeLimit.
func WithSizeLimit(limit int64) WriterOption {
	return func(o *writerOptions) error {
		if limit < 0 {
			return fmt.Errorf("size limit must not be negative, got %d", limit)
		}
		o.sizeLimit = limit
		return nil
	}
}

// WithNewline sets the row terminator for the delimited and JSON-lines
// codecs. Default: "\n". The packed columnar codec rejects this option.
func WithNewline(newline string) WriterOption {
	return func(o *writerOptions) error {
		if newline == "" {
			return errors.New("newline must not be empty")
		}
		o.newline = newline
		o.newlineSet = true
		return nil
	}
}

func resolveWriterOptions(opts []WriterOption) (*writerOptions, error) {
	o := &writerOptions{
		sizeLimit: DefaultSizeLimit,
		newline:   "\n",
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("seam: %w", err)
		}
	}
	return o, nil
}

// sizeLimitField returns the descriptor representation of the size
// limit, with nil meaning unbounded.
func (o *writerOptions) sizeLimitField() *int64 {
	if o.sizeLimit == 0 {
		return nil
	}
	limit := o.sizeLimit
	return &limit
}

// compressionField returns the descriptor representation of the
// compression scheme, with nil meaning none.
func (o *writerOptions) compressionField() *string {
	if o.compression == "" {
		return nil
	}
	scheme := o.compression
	return &scheme
}

func (o *writerOptions) hashesField() []string {
	if o.hashes == nil {
		return []string{}
	}
	return o.hashes
}

// -----------------------------------------------------------------------------
// Shard codec
// -----------------------------------------------------------------------------

// writtenFile pairs the validation info of one logical shard file's raw
// and optionally compressed variants.
type writtenFile struct {
	raw FileInfo
	zip *FileInfo
}

// shardCodec is the capability set a concrete shard format supplies to
// the base writer: per-sample encoding, whole-shard serialization, size
// accounting overheads, and descriptor construction.
type shardCodec interface {
	// format returns the format name used in file extensions and
	// descriptors.
	format() string

	// split reports whether the codec produces a separate meta file in
	// addition to the data file.
	split() bool

	// perSampleOverhead is the fixed byte cost each buffered sample adds
	// to the shard beyond its encoded length.
	perSampleOverhead() int64

	// perShardOverhead is the fixed byte cost of an empty shard.
	perShardOverhead() int64

	// encodeSample serializes one sample to bytes.
	encodeSample(sample Sample) ([]byte, error)

	// encodeShard serializes the buffered samples. meta is nil for
	// joint codecs.
	encodeShard(samples [][]byte) (data, meta []byte, err error)

	// shard builds the descriptor for a flushed shard. meta is nil for
	// joint codecs.
	shard(numSamples int, data writtenFile, meta *writtenFile) Shard
}

// -----------------------------------------------------------------------------
// Writer
// -----------------------------------------------------------------------------

// Writer accumulates encoded samples in memory and flushes them to
// immutable shard files, rolling over when the accumulated size would
// exceed the configured limit.
//
// A Writer is single-producer: it must not be shared across goroutines
// without external serialization. Shard files become read-only artifacts
// the moment their descriptor is produced.
type Writer struct {
	dirname string
	opts    *writerOptions
	codec   shardCodec

	samples   [][]byte
	shardSize int64
	shards    []Shard
	finished  bool
}

func newWriter(dirname string, opts *writerOptions, codec shardCodec) (*Writer, error) {
	if err := os.MkdirAll(dirname, 0o755); err != nil {
		return nil, fmt.Errorf("seam: create dataset directory: %w", err)
	}
	w := &Writer{
		dirname: dirname,
		opts:    opts,
		codec:   codec,
	}
	w.resetCache()
	return w, nil
}

// resetCache clears the shard-building buffer. Called on construction
// and after each flush.
func (w *Writer) resetCache() {
	w.samples = nil
	w.shardSize = w.codec.perShardOverhead()
}

// Write encodes and buffers one sample, first flushing the current
// shard when adding the sample would push the buffered size past the
// limit. Encoding failures abort the add; nothing is buffered.
func (w *Writer) Write(sample Sample) error {
	if w.finished {
		return errors.New("seam: writer already finished")
	}
	data, err := w.codec.encodeSample(sample)
	if err != nil {
		return err
	}
	size := int64(len(data)) + w.codec.perSampleOverhead()
	if limit := w.opts.sizeLimit; limit > 0 && limit < w.shardSize+size && len(w.samples) > 0 {
		if err := w.flushShard(); err != nil {
			return err
		}
	}
	w.samples = append(w.samples, data)
	w.shardSize += size
	return nil
}

// Finish flushes any remaining buffered samples as a final partial
// shard, writes the dataset index manifest, and returns all shard
// descriptors in flush order. The Writer accepts no further samples.
func (w *Writer) Finish() ([]Shard, error) {
	if w.finished {
		return nil, errors.New("seam: writer already finished")
	}
	if len(w.samples) > 0 {
		if err := w.flushShard(); err != nil {
			return nil, err
		}
	}
	if err := w.writeIndex(); err != nil {
		return nil, err
	}
	w.finished = true
	return append([]Shard(nil), w.shards...), nil
}

// flushShard serializes the buffered samples into shard files, writes
// and hashes them, and records the shard descriptor.
func (w *Writer) flushShard() error {
	data, meta, err := w.codec.encodeShard(w.samples)
	if err != nil {
		return err
	}

	dataFile, err := w.processFile(data, w.shardBasename(""))
	if err != nil {
		return err
	}

	var metaFile *writtenFile
	if w.codec.split() {
		mf, err := w.processFile(meta, w.shardBasename("meta"))
		if err != nil {
			return err
		}
		metaFile = &mf
	}

	w.shards = append(w.shards, w.codec.shard(len(w.samples), dataFile, metaFile))
	w.resetCache()
	return nil
}

// shardBasename names the next shard file: shard.<index>.<format>, with
// an optional extra extension ("meta") and no compression extension.
func (w *Writer) shardBasename(extension string) string {
	name := fmt.Sprintf("shard.%05d.%s", len(w.shards), w.codec.format())
	if extension != "" {
		name += "." + extension
	}
	return name
}

// processFile hashes the raw blob, optionally compresses and hashes the
// compressed variant, and persists exactly one of the two (the
// compressed file when compression is configured, the raw file
// otherwise).
func (w *Writer) processFile(raw []byte, basename string) (writtenFile, error) {
	rawInfo, err := w.fileInfo(basename, raw)
	if err != nil {
		return writtenFile{}, err
	}

	persisted := raw
	persistedName := basename
	var zipInfo *FileInfo

	if scheme := w.opts.compression; scheme != "" {
		ext, err := compression.Extension(scheme)
		if err != nil {
			return writtenFile{}, fmt.Errorf("seam: %w", err)
		}
		zipData, err := compression.Compress(scheme, raw)
		if err != nil {
			return writtenFile{}, fmt.Errorf("seam: compress shard file: %w", err)
		}
		zipName := basename + "." + ext
		info, err := w.fileInfo(zipName, zipData)
		if err != nil {
			return writtenFile{}, err
		}
		zipInfo = &info
		persisted = zipData
		persistedName = zipName
	}

	if err := w.writeFile(persistedName, persisted); err != nil {
		return writtenFile{}, err
	}
	return writtenFile{raw: rawInfo, zip: zipInfo}, nil
}

func (w *Writer) fileInfo(basename string, data []byte) (FileInfo, error) {
	hashes := make(map[string]string, len(w.opts.hashes))
	for _, algo := range w.opts.hashes {
		digest, err := hashing.Hash(algo, data)
		if err != nil {
			return FileInfo{}, fmt.Errorf("seam: %w", err)
		}
		hashes[algo] = digest
	}
	return FileInfo{
		Basename: basename,
		Bytes:    int64(len(data)),
		Hashes:   hashes,
	}, nil
}

// writeFile persists one shard file. Shards are write-once, so an
// existing file at the target path is an error, never overwritten.
func (w *Writer) writeFile(basename string, data []byte) error {
	name := filepath.Join(w.dirname, basename)
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("seam: write shard file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("seam: write shard file %s: %w", basename, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("seam: write shard file %s: %w", basename, err)
	}
	return nil
}

// indexManifest is the shape of the dataset index manifest.
type indexManifest struct {
	Shards  []Shard `json:"shards"`
	Version int     `json:"version"`
}

func (w *Writer) writeIndex() error {
	shards := w.shards
	if shards == nil {
		shards = []Shard{}
	}
	data, err := jsonCodec.Marshal(&indexManifest{
		Shards:  shards,
		Version: ShardVersion,
	})
	if err != nil {
		return fmt.Errorf("seam: marshal index manifest: %w", err)
	}
	name := filepath.Join(w.dirname, IndexBasename)
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return fmt.Errorf("seam: write index manifest: %w", err)
	}
	return nil
}
