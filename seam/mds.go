package seam

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// The MDS format packs each sample as a size header for its
// variable-width columns followed by the concatenated column values,
// and embeds the offset table and config in the single data file:
//
//	[samples: u32]
//	[offsets: (samples+1) x u32]   first points past the header
//	[config: UTF-8 JSON]
//	[sample blocks]
const mdsFormat = "mds"

// -----------------------------------------------------------------------------
// Descriptor
// -----------------------------------------------------------------------------

// mdsShard is the MDS shard descriptor. Fields are declared in sorted
// JSON-key order so serialization is deterministic.
type mdsShard struct {
	ColumnEncodings []string  `json:"column_encodings"`
	ColumnNames     []string  `json:"column_names"`
	ColumnSizes     []*uint32 `json:"column_sizes"`
	Compression     *string   `json:"compression"`
	FormatName      string    `json:"format"`
	Hashes          []string  `json:"hashes"`
	RawData         FileInfo  `json:"raw_data"`
	Samples         int       `json:"samples"`
	SizeLimit       *int64    `json:"size_limit"`
	Version         int       `json:"version"`
	ZipData         *FileInfo `json:"zip_data"`
}

func (s *mdsShard) Format() string  { return s.FormatName }
func (s *mdsShard) NumSamples() int { return s.Samples }

func (s *mdsShard) FilePairs() []FilePair {
	return []FilePair{{Raw: &s.RawData, Zip: s.ZipData}}
}

// mdsConfig is the config blob embedded in every MDS shard file so a
// reader can decode samples without external schema.
type mdsConfig struct {
	ColumnEncodings []string  `json:"column_encodings"`
	ColumnNames     []string  `json:"column_names"`
	ColumnSizes     []*uint32 `json:"column_sizes"`
	Compression     *string   `json:"compression"`
	FormatName      string    `json:"format"`
	Hashes          []string  `json:"hashes"`
	SizeLimit       *int64    `json:"size_limit"`
	Version         int       `json:"version"`
}

// -----------------------------------------------------------------------------
// Writer
// -----------------------------------------------------------------------------

// mdsCodec implements shardCodec for the packed columnar format.
type mdsCodec struct {
	columnNames     []string
	columnEncodings []string
	columnSizes     []*uint32
	opts            *writerOptions
	configData      []byte
}

// NewMDSWriter creates a Writer producing packed columnar (MDS) shards.
//
// columns maps column name to encoding name. Columns are stored in
// lexicographic name order regardless of map order. Unknown encodings
// fail immediately.
func NewMDSWriter(dirname string, columns map[string]string, opts ...WriterOption) (*Writer, error) {
	o, err := resolveWriterOptions(opts)
	if err != nil {
		return nil, err
	}
	if o.newlineSet {
		return nil, fmt.Errorf("seam: the %s format does not take a newline", mdsFormat)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("seam: the %s format needs at least one column", mdsFormat)
	}

	names := make([]string, 0, len(columns))
	for name := range columns {
		names = append(names, name)
	}
	sort.Strings(names)

	codec := &mdsCodec{opts: o}
	for _, name := range names {
		encoding := columns[name]
		if !IsMDSEncoding(encoding) {
			return nil, fmt.Errorf("seam: column %q: %w: %q", name, ErrUnknownEncoding, encoding)
		}
		var size *uint32
		if n, fixed := MDSEncodedSize(encoding); fixed {
			size = &n
		}
		codec.columnNames = append(codec.columnNames, name)
		codec.columnEncodings = append(codec.columnEncodings, encoding)
		codec.columnSizes = append(codec.columnSizes, size)
	}

	codec.configData, err = jsonCodec.Marshal(codec.config())
	if err != nil {
		return nil, fmt.Errorf("seam: marshal %s config: %w", mdsFormat, err)
	}

	return newWriter(dirname, o, codec)
}

func (c *mdsCodec) config() *mdsConfig {
	return &mdsConfig{
		ColumnEncodings: c.columnEncodings,
		ColumnNames:     c.columnNames,
		ColumnSizes:     c.columnSizes,
		Compression:     c.opts.compressionField(),
		FormatName:      mdsFormat,
		Hashes:          c.opts.hashesField(),
		SizeLimit:       c.opts.sizeLimitField(),
		Version:         ShardVersion,
	}
}

func (c *mdsCodec) format() string { return mdsFormat }
func (c *mdsCodec) split() bool    { return false }

// Each sample costs one offset table slot beyond its encoded length.
func (c *mdsCodec) perSampleOverhead() int64 { return 4 }

// Sample count, the final offset slot, and the embedded config.
func (c *mdsCodec) perShardOverhead() int64 { return 4 + 4 + int64(len(c.configData)) }

func (c *mdsCodec) encodeSample(sample Sample) ([]byte, error) {
	var sizes []uint32
	var body []byte
	for i, name := range c.columnNames {
		value, ok := sample[name]
		if !ok {
			return nil, fmt.Errorf("seam: sample is missing column %q", name)
		}
		datum, err := mdsEncode(c.columnEncodings[i], value)
		if err != nil {
			return nil, fmt.Errorf("seam: column %q: %w", name, err)
		}
		if declared := c.columnSizes[i]; declared == nil {
			sizes = append(sizes, uint32(len(datum)))
		} else if int(*declared) != len(datum) {
			return nil, fmt.Errorf("seam: column %q: %w: declared %d bytes, encoded %d",
				name, ErrSizeMismatch, *declared, len(datum))
		}
		body = append(body, datum...)
	}
	out := make([]byte, 0, 4*len(sizes)+len(body))
	for _, size := range sizes {
		out = binary.LittleEndian.AppendUint32(out, size)
	}
	return append(out, body...), nil
}

func (c *mdsCodec) encodeShard(samples [][]byte) (data, meta []byte, err error) {
	headerSize := 4 + 4*(len(samples)+1) + len(c.configData)

	total := headerSize
	for _, sample := range samples {
		total += len(sample)
	}

	out := make([]byte, 0, total)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(samples)))
	offset := uint32(headerSize)
	out = binary.LittleEndian.AppendUint32(out, offset)
	for _, sample := range samples {
		offset += uint32(len(sample))
		out = binary.LittleEndian.AppendUint32(out, offset)
	}
	out = append(out, c.configData...)
	for _, sample := range samples {
		out = append(out, sample...)
	}
	return out, nil, nil
}

func (c *mdsCodec) shard(numSamples int, data writtenFile, _ *writtenFile) Shard {
	cfg := c.config()
	return &mdsShard{
		ColumnEncodings: cfg.ColumnEncodings,
		ColumnNames:     cfg.ColumnNames,
		ColumnSizes:     cfg.ColumnSizes,
		Compression:     cfg.Compression,
		FormatName:      cfg.FormatName,
		Hashes:          cfg.Hashes,
		RawData:         data.raw,
		Samples:         numSamples,
		SizeLimit:       cfg.SizeLimit,
		Version:         cfg.Version,
		ZipData:         data.zip,
	}
}

// -----------------------------------------------------------------------------
// Reader
// -----------------------------------------------------------------------------

// mdsReader provides random access to the samples of an MDS shard.
type mdsReader struct {
	dirname string
	split   string
	desc    *mdsShard
}

func newMDSReader(dirname, split string, raw []byte) (Reader, error) {
	var desc mdsShard
	if err := strictJSON.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("seam: parse %s shard descriptor: %w", mdsFormat, err)
	}
	if len(desc.ColumnNames) != len(desc.ColumnEncodings) ||
		len(desc.ColumnNames) != len(desc.ColumnSizes) {
		return nil, fmt.Errorf("seam: %s shard descriptor: column layout lengths disagree", mdsFormat)
	}
	for i, encoding := range desc.ColumnEncodings {
		if !IsMDSEncoding(encoding) {
			return nil, fmt.Errorf("seam: column %q: %w: %q",
				desc.ColumnNames[i], ErrUnknownEncoding, encoding)
		}
	}
	return &mdsReader{dirname: dirname, split: split, desc: &desc}, nil
}

func (r *mdsReader) NumSamples() int { return r.desc.Samples }
func (r *mdsReader) Shard() Shard    { return r.desc }

func (r *mdsReader) Get(idx int) (Sample, error) {
	if idx < 0 || idx >= r.desc.Samples {
		return nil, fmt.Errorf("seam: sample %d of %d: %w", idx, r.desc.Samples, ErrOutOfRange)
	}
	data, err := r.sampleData(idx)
	if err != nil {
		return nil, err
	}
	return r.decodeSample(data)
}

// sampleData reads two consecutive offset table entries from the data
// file, then the byte range between them.
func (r *mdsReader) sampleData(idx int) ([]byte, error) {
	name := filepath.Join(r.dirname, r.split, r.desc.RawData.Basename)
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("seam: open shard data: %w", err)
	}
	defer func() { _ = f.Close() }()

	var pair [8]byte
	if _, err := f.ReadAt(pair[:], int64(4*(1+idx))); err != nil {
		return nil, fmt.Errorf("seam: read offset table: %w", err)
	}
	begin := binary.LittleEndian.Uint32(pair[0:4])
	end := binary.LittleEndian.Uint32(pair[4:8])
	if end < begin {
		return nil, fmt.Errorf("seam: corrupt offset table: sample %d spans [%d, %d)", idx, begin, end)
	}

	data := make([]byte, end-begin)
	if _, err := f.ReadAt(data, int64(begin)); err != nil {
		return nil, fmt.Errorf("seam: read sample data: %w", err)
	}
	return data, nil
}

// decodeSample walks columns in stored order, consuming the declared
// fixed size or the next entry of the sample's size header.
func (r *mdsReader) decodeSample(data []byte) (Sample, error) {
	sizes := make([]uint32, len(r.desc.ColumnNames))
	pos := 0
	for i, declared := range r.desc.ColumnSizes {
		if declared != nil {
			sizes[i] = *declared
			continue
		}
		if pos+4 > len(data) {
			return nil, fmt.Errorf("seam: corrupt sample: truncated size header")
		}
		sizes[i] = binary.LittleEndian.Uint32(data[pos : pos+4])
		pos += 4
	}

	sample := make(Sample, len(r.desc.ColumnNames))
	for i, name := range r.desc.ColumnNames {
		size := int(sizes[i])
		if pos+size > len(data) {
			return nil, fmt.Errorf("seam: corrupt sample: column %q overruns sample data", name)
		}
		value, err := mdsDecode(r.desc.ColumnEncodings[i], data[pos:pos+size])
		if err != nil {
			return nil, fmt.Errorf("seam: column %q: %w", name, err)
		}
		sample[name] = value
		pos += size
	}
	return sample, nil
}

// Ensure the mds types satisfy the package contracts.
var (
	_ shardCodec = (*mdsCodec)(nil)
	_ Shard      = (*mdsShard)(nil)
	_ Reader     = (*mdsReader)(nil)
)
