package seam

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// The JSON format stores one JSON object per sample, newline-delimited,
// with the offset table and config in a companion meta file like XSV
// but without a header row:
//
//	data: [sample objects, newline-terminated]
//	meta: [samples: u32][offsets: (samples+1) x u32][config: UTF-8 JSON]
//
// The first offset is 0.
const jsonFormat = "json"

// jsonEncodings are the value shapes a JSON column may declare. The
// wire form is always JSON; the declared encoding pins the Go type a
// value must carry.
var jsonEncodings = map[string]bool{
	"int":   true,
	"float": true,
	"str":   true,
}

// IsJSONEncoding reports whether name is a valid JSON column encoding.
func IsJSONEncoding(name string) bool {
	return jsonEncodings[name]
}

// -----------------------------------------------------------------------------
// Descriptor
// -----------------------------------------------------------------------------

// jsonShard is the JSON shard descriptor. Fields are declared in sorted
// JSON-key order.
type jsonShard struct {
	Columns     map[string]string `json:"columns"`
	Compression *string           `json:"compression"`
	FormatName  string            `json:"format"`
	Hashes      []string          `json:"hashes"`
	Newline     string            `json:"newline"`
	RawData     FileInfo          `json:"raw_data"`
	RawMeta     FileInfo          `json:"raw_meta"`
	Samples     int               `json:"samples"`
	SizeLimit   *int64            `json:"size_limit"`
	Version     int               `json:"version"`
	ZipData     *FileInfo         `json:"zip_data"`
	ZipMeta     *FileInfo         `json:"zip_meta"`
}

func (s *jsonShard) Format() string  { return s.FormatName }
func (s *jsonShard) NumSamples() int { return s.Samples }

func (s *jsonShard) FilePairs() []FilePair {
	return []FilePair{
		{Raw: &s.RawMeta, Zip: s.ZipMeta},
		{Raw: &s.RawData, Zip: s.ZipData},
	}
}

// jsonConfig is the config blob embedded in every JSON meta file.
type jsonConfig struct {
	Columns     map[string]string `json:"columns"`
	Compression *string           `json:"compression"`
	FormatName  string            `json:"format"`
	Hashes      []string          `json:"hashes"`
	Newline     string            `json:"newline"`
	SizeLimit   *int64            `json:"size_limit"`
	Version     int               `json:"version"`
}

// -----------------------------------------------------------------------------
// Writer
// -----------------------------------------------------------------------------

// jsonlCodec implements shardCodec for the JSON-lines format.
type jsonlCodec struct {
	columns    map[string]string
	newline    string
	opts       *writerOptions
	configData []byte
}

// NewJSONWriter creates a Writer producing newline-delimited JSON
// shards. columns maps column name to one of the JSON encodings "int",
// "float", or "str".
func NewJSONWriter(dirname string, columns map[string]string, opts ...WriterOption) (*Writer, error) {
	o, err := resolveWriterOptions(opts)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("seam: the %s format needs at least one column", jsonFormat)
	}
	for name, encoding := range columns {
		if !IsJSONEncoding(encoding) {
			return nil, fmt.Errorf("seam: column %q: %w: %q", name, ErrUnknownEncoding, encoding)
		}
	}

	codec := &jsonlCodec{
		columns: columns,
		newline: o.newline,
		opts:    o,
	}
	codec.configData, err = jsonCodec.Marshal(codec.config())
	if err != nil {
		return nil, fmt.Errorf("seam: marshal %s config: %w", jsonFormat, err)
	}

	return newWriter(dirname, o, codec)
}

func (c *jsonlCodec) config() *jsonConfig {
	return &jsonConfig{
		Columns:     c.columns,
		Compression: c.opts.compressionField(),
		FormatName:  jsonFormat,
		Hashes:      c.opts.hashesField(),
		Newline:     c.newline,
		SizeLimit:   c.opts.sizeLimitField(),
		Version:     ShardVersion,
	}
}

func (c *jsonlCodec) format() string { return jsonFormat }
func (c *jsonlCodec) split() bool    { return true }

func (c *jsonlCodec) perSampleOverhead() int64 { return 0 }
func (c *jsonlCodec) perShardOverhead() int64  { return 0 }

func (c *jsonlCodec) encodeSample(sample Sample) ([]byte, error) {
	obj := make(map[string]any, len(c.columns))
	for name, encoding := range c.columns {
		value, ok := sample[name]
		if !ok {
			return nil, fmt.Errorf("seam: sample is missing column %q", name)
		}
		if err := checkJSONValue(encoding, value); err != nil {
			return nil, fmt.Errorf("seam: column %q: %w", name, err)
		}
		obj[name] = value
	}
	data, err := jsonCodec.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("seam: encode sample: %w", err)
	}
	return append(data, c.newline...), nil
}

func checkJSONValue(encoding string, value any) error {
	switch encoding {
	case "int":
		switch value.(type) {
		case int, int64:
			return nil
		}
		return fmt.Errorf("want int64, got %T", value)
	case "float":
		if _, ok := value.(float64); ok {
			return nil
		}
		return fmt.Errorf("want float64, got %T", value)
	case "str":
		if _, ok := value.(string); ok {
			return nil
		}
		return fmt.Errorf("want string, got %T", value)
	}
	return fmt.Errorf("%w: %q", ErrUnknownEncoding, encoding)
}

func (c *jsonlCodec) encodeShard(samples [][]byte) (data, meta []byte, err error) {
	total := 0
	for _, sample := range samples {
		total += len(sample)
	}
	data = make([]byte, 0, total)
	for _, sample := range samples {
		data = append(data, sample...)
	}

	meta = make([]byte, 0, 4+4*(len(samples)+1)+len(c.configData))
	meta = binary.LittleEndian.AppendUint32(meta, uint32(len(samples)))
	var offset uint32
	meta = binary.LittleEndian.AppendUint32(meta, offset)
	for _, sample := range samples {
		offset += uint32(len(sample))
		meta = binary.LittleEndian.AppendUint32(meta, offset)
	}
	meta = append(meta, c.configData...)
	return data, meta, nil
}

func (c *jsonlCodec) shard(numSamples int, data writtenFile, meta *writtenFile) Shard {
	cfg := c.config()
	return &jsonShard{
		Columns:     cfg.Columns,
		Compression: cfg.Compression,
		FormatName:  cfg.FormatName,
		Hashes:      cfg.Hashes,
		Newline:     cfg.Newline,
		RawData:     data.raw,
		RawMeta:     meta.raw,
		Samples:     numSamples,
		SizeLimit:   cfg.SizeLimit,
		Version:     cfg.Version,
		ZipData:     data.zip,
		ZipMeta:     meta.zip,
	}
}

// -----------------------------------------------------------------------------
// Reader
// -----------------------------------------------------------------------------

// jsonReader provides random access to the samples of a JSON shard.
type jsonReader struct {
	dirname string
	split   string
	desc    *jsonShard
}

func newJSONReader(dirname, split string, raw []byte) (Reader, error) {
	var desc jsonShard
	if err := strictJSON.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("seam: parse %s shard descriptor: %w", jsonFormat, err)
	}
	for name, encoding := range desc.Columns {
		if !IsJSONEncoding(encoding) {
			return nil, fmt.Errorf("seam: column %q: %w: %q", name, ErrUnknownEncoding, encoding)
		}
	}
	if desc.Newline == "" {
		return nil, fmt.Errorf("seam: %s shard descriptor: missing newline", jsonFormat)
	}
	return &jsonReader{dirname: dirname, split: split, desc: &desc}, nil
}

func (r *jsonReader) NumSamples() int { return r.desc.Samples }
func (r *jsonReader) Shard() Shard    { return r.desc }

func (r *jsonReader) Get(idx int) (Sample, error) {
	if idx < 0 || idx >= r.desc.Samples {
		return nil, fmt.Errorf("seam: sample %d of %d: %w", idx, r.desc.Samples, ErrOutOfRange)
	}
	data, err := splitSampleData(r.dirname, r.split, &r.desc.RawMeta, &r.desc.RawData, idx)
	if err != nil {
		return nil, err
	}
	return r.decodeSample(data)
}

// decodeSample parses the sample object and coerces each declared
// column back to its encoding's Go type, so numbers survive the
// round trip as int64 or float64 rather than generic JSON numbers.
func (r *jsonReader) decodeSample(data []byte) (Sample, error) {
	dec := jsonCodec.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("seam: decode sample: %w", err)
	}

	sample := make(Sample, len(r.desc.Columns))
	for name, encoding := range r.desc.Columns {
		value, ok := obj[name]
		if !ok {
			return nil, fmt.Errorf("seam: sample is missing column %q", name)
		}
		decoded, err := decodeJSONColumn(encoding, value)
		if err != nil {
			return nil, fmt.Errorf("seam: column %q: %w", name, err)
		}
		sample[name] = decoded
	}
	return sample, nil
}

func decodeJSONColumn(encoding string, value any) (any, error) {
	switch encoding {
	case "int":
		num, ok := value.(json.Number)
		if !ok {
			return nil, fmt.Errorf("want number, got %T", value)
		}
		return num.Int64()
	case "float":
		num, ok := value.(json.Number)
		if !ok {
			return nil, fmt.Errorf("want number, got %T", value)
		}
		return num.Float64()
	case "str":
		text, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", value)
		}
		return text, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, encoding)
}

// Ensure the json types satisfy the package contracts.
var (
	_ shardCodec = (*jsonlCodec)(nil)
	_ Shard      = (*jsonShard)(nil)
	_ Reader     = (*jsonReader)(nil)
)
