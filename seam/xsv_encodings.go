package seam

import (
	"fmt"
	"sort"
	"strconv"
)

// xsvEncoding is one entry of the text-safe encoding registry used by
// the delimited (XSV) codec. Encoded values are strings; whether a
// value collides with the active separator or newline is checked by the
// writer, which knows the framing.
type xsvEncoding struct {
	encode func(value any) (string, error)
	decode func(text string) (any, error)
}

var xsvEncodings = map[string]xsvEncoding{
	"int": {
		encode: func(value any) (string, error) {
			switch x := value.(type) {
			case int64:
				return strconv.FormatInt(x, 10), nil
			case int:
				return strconv.Itoa(x), nil
			default:
				return "", fmt.Errorf("want int64, got %T", value)
			}
		},
		decode: func(text string) (any, error) {
			return strconv.ParseInt(text, 10, 64)
		},
	},
	"float": {
		encode: func(value any) (string, error) {
			x, ok := value.(float64)
			if !ok {
				return "", fmt.Errorf("want float64, got %T", value)
			}
			return strconv.FormatFloat(x, 'g', -1, 64), nil
		},
		decode: func(text string) (any, error) {
			return strconv.ParseFloat(text, 64)
		},
	},
	"str": {
		encode: func(value any) (string, error) {
			x, ok := value.(string)
			if !ok {
				return "", fmt.Errorf("want string, got %T", value)
			}
			return x, nil
		},
		decode: func(text string) (any, error) {
			return text, nil
		},
	},
}

// IsXSVEncoding reports whether name is a registered XSV column encoding.
func IsXSVEncoding(name string) bool {
	_, ok := xsvEncodings[name]
	return ok
}

// XSVEncodings returns the registered XSV encoding names, sorted.
func XSVEncodings() []string {
	names := make([]string, 0, len(xsvEncodings))
	for name := range xsvEncodings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func xsvEncode(name string, value any) (string, error) {
	enc, ok := xsvEncodings[name]
	if !ok {
		return "", fmt.Errorf("seam: %w: %q", ErrUnknownEncoding, name)
	}
	text, err := enc.encode(value)
	if err != nil {
		return "", fmt.Errorf("seam: encoding %q: %w", name, err)
	}
	return text, nil
}

func xsvDecode(name string, text string) (any, error) {
	enc, ok := xsvEncodings[name]
	if !ok {
		return nil, fmt.Errorf("seam: %w: %q", ErrUnknownEncoding, name)
	}
	value, err := enc.decode(text)
	if err != nil {
		return nil, fmt.Errorf("seam: decoding %q: %w", name, err)
	}
	return value, nil
}
