package seam

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// mdsEncoding is one entry of the binary-safe encoding registry used by
// the packed columnar (MDS) codec. A size of 0 with fixed false means
// variable width: the writer records the encoded length in the sample's
// size header.
type mdsEncoding struct {
	size   uint32
	fixed  bool
	encode func(value any) ([]byte, error)
	decode func(data []byte) (any, error)
}

var mdsEncodings = map[string]mdsEncoding{
	"bytes": {encode: encodeRawBytes, decode: decodeRawBytes},
	"str":   {encode: encodeUTF8, decode: decodeUTF8},
	"json":  {encode: encodeJSONValue, decode: decodeJSONValue},

	"int":   {size: 8, fixed: true, encode: encodeInt64Like, decode: decodeInt64},
	"int8":  {size: 1, fixed: true, encode: fixedEncoder[int8](), decode: fixedDecoder[int8]()},
	"int16": {size: 2, fixed: true, encode: fixedEncoder[int16](), decode: fixedDecoder[int16]()},
	"int32": {size: 4, fixed: true, encode: fixedEncoder[int32](), decode: fixedDecoder[int32]()},
	"int64": {size: 8, fixed: true, encode: encodeInt64Like, decode: decodeInt64},

	"uint8":  {size: 1, fixed: true, encode: fixedEncoder[uint8](), decode: fixedDecoder[uint8]()},
	"uint16": {size: 2, fixed: true, encode: fixedEncoder[uint16](), decode: fixedDecoder[uint16]()},
	"uint32": {size: 4, fixed: true, encode: fixedEncoder[uint32](), decode: fixedDecoder[uint32]()},
	"uint64": {size: 8, fixed: true, encode: fixedEncoder[uint64](), decode: fixedDecoder[uint64]()},

	"float32": {size: 4, fixed: true, encode: encodeFloat32, decode: decodeFloat32},
	"float64": {size: 8, fixed: true, encode: encodeFloat64, decode: decodeFloat64},
}

// IsMDSEncoding reports whether name is a registered MDS column encoding.
func IsMDSEncoding(name string) bool {
	_, ok := mdsEncodings[name]
	return ok
}

// MDSEncodings returns the registered MDS encoding names, sorted.
func MDSEncodings() []string {
	names := make([]string, 0, len(mdsEncodings))
	for name := range mdsEncodings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MDSEncodedSize returns the fixed encoded size of an MDS encoding, or
// false when the encoding is variable width.
func MDSEncodedSize(name string) (uint32, bool) {
	enc, ok := mdsEncodings[name]
	if !ok || !enc.fixed {
		return 0, false
	}
	return enc.size, true
}

func mdsEncode(name string, value any) ([]byte, error) {
	enc, ok := mdsEncodings[name]
	if !ok {
		return nil, fmt.Errorf("seam: %w: %q", ErrUnknownEncoding, name)
	}
	data, err := enc.encode(value)
	if err != nil {
		return nil, fmt.Errorf("seam: encoding %q: %w", name, err)
	}
	if enc.fixed && uint32(len(data)) != enc.size {
		return nil, fmt.Errorf("seam: encoding %q: %w: declared %d bytes, encoded %d",
			name, ErrSizeMismatch, enc.size, len(data))
	}
	return data, nil
}

func mdsDecode(name string, data []byte) (any, error) {
	enc, ok := mdsEncodings[name]
	if !ok {
		return nil, fmt.Errorf("seam: %w: %q", ErrUnknownEncoding, name)
	}
	value, err := enc.decode(data)
	if err != nil {
		return nil, fmt.Errorf("seam: decoding %q: %w", name, err)
	}
	return value, nil
}

// -----------------------------------------------------------------------------
// Variable-width encodings
// -----------------------------------------------------------------------------

func encodeRawBytes(value any) ([]byte, error) {
	data, ok := value.([]byte)
	if !ok {
		return nil, fmt.Errorf("want []byte, got %T", value)
	}
	return data, nil
}

func decodeRawBytes(data []byte) (any, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func encodeUTF8(value any) ([]byte, error) {
	text, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("want string, got %T", value)
	}
	return []byte(text), nil
}

func decodeUTF8(data []byte) (any, error) {
	return string(data), nil
}

func encodeJSONValue(value any) ([]byte, error) {
	return jsonCodec.Marshal(value)
}

func decodeJSONValue(data []byte) (any, error) {
	var value any
	if err := jsonCodec.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// -----------------------------------------------------------------------------
// Fixed-width encodings (little-endian)
// -----------------------------------------------------------------------------

type fixedInt interface {
	~int8 | ~int16 | ~int32 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

func fixedEncoder[T fixedInt]() func(value any) ([]byte, error) {
	return func(value any) ([]byte, error) {
		v, ok := value.(T)
		if !ok {
			return nil, fmt.Errorf("want %T, got %T", v, value)
		}
		return binary.LittleEndian.AppendUint64(nil, uint64(v))[:binary.Size(v)], nil
	}
}

func fixedDecoder[T fixedInt]() func(data []byte) (any, error) {
	return func(data []byte) (any, error) {
		var v T
		if len(data) != binary.Size(v) {
			return nil, fmt.Errorf("want %d bytes, got %d", binary.Size(v), len(data))
		}
		var raw uint64
		for i, b := range data {
			raw |= uint64(b) << (8 * i)
		}
		return T(raw), nil
	}
}

// encodeInt64Like accepts int or int64 and encodes 8 little-endian
// bytes. Plain int is accepted because it is the natural literal type
// for callers building samples by hand.
func encodeInt64Like(value any) ([]byte, error) {
	var v int64
	switch x := value.(type) {
	case int64:
		v = x
	case int:
		v = int64(x)
	default:
		return nil, fmt.Errorf("want int64, got %T", value)
	}
	return binary.LittleEndian.AppendUint64(nil, uint64(v)), nil
}

func decodeInt64(data []byte) (any, error) {
	if len(data) != 8 {
		return nil, fmt.Errorf("want 8 bytes, got %d", len(data))
	}
	return int64(binary.LittleEndian.Uint64(data)), nil
}

func encodeFloat32(value any) ([]byte, error) {
	v, ok := value.(float32)
	if !ok {
		return nil, fmt.Errorf("want float32, got %T", value)
	}
	return binary.LittleEndian.AppendUint32(nil, math.Float32bits(v)), nil
}

func decodeFloat32(data []byte) (any, error) {
	if len(data) != 4 {
		return nil, fmt.Errorf("want 4 bytes, got %d", len(data))
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(data)), nil
}

func encodeFloat64(value any) ([]byte, error) {
	v, ok := value.(float64)
	if !ok {
		return nil, fmt.Errorf("want float64, got %T", value)
	}
	return binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)), nil
}

func decodeFloat64(data []byte) (any, error) {
	if len(data) != 8 {
		return nil, fmt.Errorf("want 8 bytes, got %d", len(data))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
}
