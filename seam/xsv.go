package seam

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// The XSV format stores separator-joined, newline-terminated text rows
// in the data file behind a header row, and keeps the offset table in a
// companion meta file so the small metadata is fetchable independently
// of the bulk payload:
//
//	data: [header row][sample rows]
//	meta: [samples: u32][offsets: (samples+1) x u32][config: UTF-8 JSON]
//
// The first offset is the header row's byte length.
const (
	xsvFormat = "xsv"
	csvFormat = "csv"
	tsvFormat = "tsv"

	csvSeparator = ","
	tsvSeparator = "\t"
)

// Column is one ordered column of a delimited shard: unlike MDS, column
// order is significant and defines the header row.
type Column struct {
	Name     string
	Encoding string
}

// -----------------------------------------------------------------------------
// Descriptor
// -----------------------------------------------------------------------------

// xsvShard is the shard descriptor shared by the xsv, csv, and tsv
// formats. Fields are declared in sorted JSON-key order.
type xsvShard struct {
	ColumnEncodings []string  `json:"column_encodings"`
	ColumnNames     []string  `json:"column_names"`
	Compression     *string   `json:"compression"`
	FormatName      string    `json:"format"`
	Hashes          []string  `json:"hashes"`
	Newline         string    `json:"newline"`
	RawData         FileInfo  `json:"raw_data"`
	RawMeta         FileInfo  `json:"raw_meta"`
	Samples         int       `json:"samples"`
	Separator       string    `json:"separator"`
	SizeLimit       *int64    `json:"size_limit"`
	Version         int       `json:"version"`
	ZipData         *FileInfo `json:"zip_data"`
	ZipMeta         *FileInfo `json:"zip_meta"`
}

func (s *xsvShard) Format() string  { return s.FormatName }
func (s *xsvShard) NumSamples() int { return s.Samples }

func (s *xsvShard) FilePairs() []FilePair {
	return []FilePair{
		{Raw: &s.RawMeta, Zip: s.ZipMeta},
		{Raw: &s.RawData, Zip: s.ZipData},
	}
}

// xsvConfig is the config blob embedded in every XSV meta file.
type xsvConfig struct {
	ColumnEncodings []string `json:"column_encodings"`
	ColumnNames     []string `json:"column_names"`
	Compression     *string  `json:"compression"`
	FormatName      string   `json:"format"`
	Hashes          []string `json:"hashes"`
	Newline         string   `json:"newline"`
	Separator       string   `json:"separator"`
	SizeLimit       *int64   `json:"size_limit"`
	Version         int      `json:"version"`
}

// -----------------------------------------------------------------------------
// Writer
// -----------------------------------------------------------------------------

// xsvCodec implements shardCodec for the delimited text formats.
type xsvCodec struct {
	formatName string
	columns    []Column
	separator  string
	newline    string
	opts       *writerOptions
	configData []byte
}

// NewXSVWriter creates a Writer producing delimited text shards with an
// arbitrary separator. Column order is preserved and defines the header
// row. Construction fails for duplicate column names, column names
// containing the separator or newline, and encodings not in the
// text-safe registry.
func NewXSVWriter(dirname string, columns []Column, separator string, opts ...WriterOption) (*Writer, error) {
	return newXSVWriter(dirname, xsvFormat, columns, separator, opts)
}

// NewCSVWriter creates a Writer producing comma-separated shards.
func NewCSVWriter(dirname string, columns []Column, opts ...WriterOption) (*Writer, error) {
	return newXSVWriter(dirname, csvFormat, columns, csvSeparator, opts)
}

// NewTSVWriter creates a Writer producing tab-separated shards.
func NewTSVWriter(dirname string, columns []Column, opts ...WriterOption) (*Writer, error) {
	return newXSVWriter(dirname, tsvFormat, columns, tsvSeparator, opts)
}

func newXSVWriter(dirname, format string, columns []Column, separator string, opts []WriterOption) (*Writer, error) {
	o, err := resolveWriterOptions(opts)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("seam: the %s format needs at least one column", format)
	}
	if separator == "" {
		return nil, fmt.Errorf("seam: the %s format needs a separator", format)
	}
	if strings.Contains(separator, o.newline) || strings.Contains(o.newline, separator) {
		return nil, fmt.Errorf("seam: separator %q collides with newline %q", separator, o.newline)
	}

	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		if seen[col.Name] {
			return nil, fmt.Errorf("seam: duplicate column %q", col.Name)
		}
		seen[col.Name] = true
		if strings.Contains(col.Name, separator) || strings.Contains(col.Name, o.newline) {
			return nil, fmt.Errorf("seam: column name %q contains the separator or newline", col.Name)
		}
		if !IsXSVEncoding(col.Encoding) {
			return nil, fmt.Errorf("seam: column %q: %w: %q", col.Name, ErrUnknownEncoding, col.Encoding)
		}
	}

	codec := &xsvCodec{
		formatName: format,
		columns:    append([]Column(nil), columns...),
		separator:  separator,
		newline:    o.newline,
		opts:       o,
	}
	codec.configData, err = jsonCodec.Marshal(codec.config())
	if err != nil {
		return nil, fmt.Errorf("seam: marshal %s config: %w", format, err)
	}

	return newWriter(dirname, o, codec)
}

func (c *xsvCodec) columnNames() []string {
	names := make([]string, len(c.columns))
	for i, col := range c.columns {
		names[i] = col.Name
	}
	return names
}

func (c *xsvCodec) columnEncodings() []string {
	encodings := make([]string, len(c.columns))
	for i, col := range c.columns {
		encodings[i] = col.Encoding
	}
	return encodings
}

func (c *xsvCodec) config() *xsvConfig {
	return &xsvConfig{
		ColumnEncodings: c.columnEncodings(),
		ColumnNames:     c.columnNames(),
		Compression:     c.opts.compressionField(),
		FormatName:      c.formatName,
		Hashes:          c.opts.hashesField(),
		Newline:         c.newline,
		Separator:       c.separator,
		SizeLimit:       c.opts.sizeLimitField(),
		Version:         ShardVersion,
	}
}

func (c *xsvCodec) format() string { return c.formatName }
func (c *xsvCodec) split() bool    { return true }

// The offset table lives in the separately accounted meta file.
func (c *xsvCodec) perSampleOverhead() int64 { return 0 }
func (c *xsvCodec) perShardOverhead() int64  { return 0 }

func (c *xsvCodec) encodeSample(sample Sample) ([]byte, error) {
	values := make([]string, len(c.columns))
	for i, col := range c.columns {
		value, ok := sample[col.Name]
		if !ok {
			return nil, fmt.Errorf("seam: sample is missing column %q", col.Name)
		}
		text, err := xsvEncode(col.Encoding, value)
		if err != nil {
			return nil, fmt.Errorf("seam: column %q: %w", col.Name, err)
		}
		if strings.Contains(text, c.separator) || strings.Contains(text, c.newline) {
			return nil, fmt.Errorf("seam: column %q: value contains the separator or newline", col.Name)
		}
		values[i] = text
	}
	return []byte(strings.Join(values, c.separator) + c.newline), nil
}

func (c *xsvCodec) encodeShard(samples [][]byte) (data, meta []byte, err error) {
	header := []byte(strings.Join(c.columnNames(), c.separator) + c.newline)

	total := len(header)
	for _, sample := range samples {
		total += len(sample)
	}
	data = make([]byte, 0, total)
	data = append(data, header...)
	for _, sample := range samples {
		data = append(data, sample...)
	}

	meta = make([]byte, 0, 4+4*(len(samples)+1)+len(c.configData))
	meta = binary.LittleEndian.AppendUint32(meta, uint32(len(samples)))
	offset := uint32(len(header))
	meta = binary.LittleEndian.AppendUint32(meta, offset)
	for _, sample := range samples {
		offset += uint32(len(sample))
		meta = binary.LittleEndian.AppendUint32(meta, offset)
	}
	meta = append(meta, c.configData...)
	return data, meta, nil
}

func (c *xsvCodec) shard(numSamples int, data writtenFile, meta *writtenFile) Shard {
	cfg := c.config()
	return &xsvShard{
		ColumnEncodings: cfg.ColumnEncodings,
		ColumnNames:     cfg.ColumnNames,
		Compression:     cfg.Compression,
		FormatName:      cfg.FormatName,
		Hashes:          cfg.Hashes,
		Newline:         cfg.Newline,
		RawData:         data.raw,
		RawMeta:         meta.raw,
		Samples:         numSamples,
		Separator:       cfg.Separator,
		SizeLimit:       cfg.SizeLimit,
		Version:         cfg.Version,
		ZipData:         data.zip,
		ZipMeta:         meta.zip,
	}
}

// -----------------------------------------------------------------------------
// Reader
// -----------------------------------------------------------------------------

// xsvReader provides random access to the samples of a delimited shard.
type xsvReader struct {
	dirname string
	split   string
	desc    *xsvShard
}

// newXSVReader builds a delimited reader from a descriptor. For the csv
// and tsv formats the separator is fixed, and a descriptor declaring a
// different one is rejected.
func newXSVReader(dirname, split string, raw []byte, format, separator string) (Reader, error) {
	var desc xsvShard
	if err := strictJSON.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("seam: parse %s shard descriptor: %w", format, err)
	}
	if len(desc.ColumnNames) != len(desc.ColumnEncodings) {
		return nil, fmt.Errorf("seam: %s shard descriptor: column layout lengths disagree", format)
	}
	for i, encoding := range desc.ColumnEncodings {
		if !IsXSVEncoding(encoding) {
			return nil, fmt.Errorf("seam: column %q: %w: %q",
				desc.ColumnNames[i], ErrUnknownEncoding, encoding)
		}
	}
	if desc.Newline == "" {
		return nil, fmt.Errorf("seam: %s shard descriptor: missing newline", format)
	}
	if separator != "" && desc.Separator != separator {
		return nil, fmt.Errorf("seam: %s shard descriptor: separator %q, want %q",
			format, desc.Separator, separator)
	}
	if desc.Separator == "" {
		return nil, fmt.Errorf("seam: %s shard descriptor: missing separator", format)
	}
	return &xsvReader{dirname: dirname, split: split, desc: &desc}, nil
}

func (r *xsvReader) NumSamples() int { return r.desc.Samples }
func (r *xsvReader) Shard() Shard    { return r.desc }

func (r *xsvReader) Get(idx int) (Sample, error) {
	if idx < 0 || idx >= r.desc.Samples {
		return nil, fmt.Errorf("seam: sample %d of %d: %w", idx, r.desc.Samples, ErrOutOfRange)
	}
	data, err := splitSampleData(r.dirname, r.split, &r.desc.RawMeta, &r.desc.RawData, idx)
	if err != nil {
		return nil, err
	}
	return r.decodeSample(data)
}

func (r *xsvReader) decodeSample(data []byte) (Sample, error) {
	text := string(data)
	if !strings.HasSuffix(text, r.desc.Newline) {
		return nil, fmt.Errorf("seam: corrupt sample: missing row terminator")
	}
	text = strings.TrimSuffix(text, r.desc.Newline)

	parts := strings.Split(text, r.desc.Separator)
	if len(parts) != len(r.desc.ColumnNames) {
		return nil, fmt.Errorf("seam: corrupt sample: %d fields, want %d",
			len(parts), len(r.desc.ColumnNames))
	}

	sample := make(Sample, len(parts))
	for i, name := range r.desc.ColumnNames {
		value, err := xsvDecode(r.desc.ColumnEncodings[i], parts[i])
		if err != nil {
			return nil, fmt.Errorf("seam: column %q: %w", name, err)
		}
		sample[name] = value
	}
	return sample, nil
}

// splitSampleData resolves a sample's byte range for split shards: two
// consecutive u32 offsets read from the meta file, then that range read
// from the data file.
func splitSampleData(dirname, split string, rawMeta, rawData *FileInfo, idx int) ([]byte, error) {
	metaName := filepath.Join(dirname, split, rawMeta.Basename)
	mf, err := os.Open(metaName)
	if err != nil {
		return nil, fmt.Errorf("seam: open shard meta: %w", err)
	}
	defer func() { _ = mf.Close() }()

	var pair [8]byte
	if _, err := mf.ReadAt(pair[:], int64(4*(1+idx))); err != nil {
		return nil, fmt.Errorf("seam: read offset table: %w", err)
	}
	begin := binary.LittleEndian.Uint32(pair[0:4])
	end := binary.LittleEndian.Uint32(pair[4:8])
	if end < begin {
		return nil, fmt.Errorf("seam: corrupt offset table: sample %d spans [%d, %d)", idx, begin, end)
	}

	dataName := filepath.Join(dirname, split, rawData.Basename)
	df, err := os.Open(dataName)
	if err != nil {
		return nil, fmt.Errorf("seam: open shard data: %w", err)
	}
	defer func() { _ = df.Close() }()

	data := make([]byte, end-begin)
	if _, err := df.ReadAt(data, int64(begin)); err != nil {
		return nil, fmt.Errorf("seam: read sample data: %w", err)
	}
	return data, nil
}

// Ensure the xsv types satisfy the package contracts.
var (
	_ shardCodec = (*xsvCodec)(nil)
	_ Shard      = (*xsvShard)(nil)
	_ Reader     = (*xsvReader)(nil)
)
