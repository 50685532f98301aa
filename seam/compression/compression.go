// Package compression compresses and decompresses whole shard files.
//
// Schemes are keyed by name with an optional level suffix, for example
// "zstd", "zstd:7", or "gz:1". The scheme name doubles as the filename
// extension appended to compressed shard files.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

type scheme struct {
	minLevel     int
	maxLevel     int
	defaultLevel int
	leveled      bool
	compress     func(level int, data []byte) ([]byte, error)
	decompress   func(data []byte) ([]byte, error)
}

var schemes = map[string]scheme{
	"br": {
		minLevel:     0,
		maxLevel:     11,
		defaultLevel: 11,
		leveled:      true,
		compress:     brCompress,
		decompress:   brDecompress,
	},
	"gz": {
		minLevel:     0,
		maxLevel:     9,
		defaultLevel: 9,
		leveled:      true,
		compress:     gzCompress,
		decompress:   gzDecompress,
	},
	"lz4": {
		minLevel:     0,
		maxLevel:     9,
		defaultLevel: 0,
		leveled:      true,
		compress:     lz4Compress,
		decompress:   lz4Decompress,
	},
	"snappy": {
		compress: func(_ int, data []byte) ([]byte, error) {
			return snappy.Encode(nil, data), nil
		},
		decompress: func(data []byte) ([]byte, error) {
			return snappy.Decode(nil, data)
		},
	},
	"zstd": {
		minLevel:     1,
		maxLevel:     22,
		defaultLevel: 3,
		leveled:      true,
		compress:     zstdCompress,
		decompress:   zstdDecompress,
	},
}

// parse splits a scheme string like "zstd:7" into its registered scheme
// and resolved level.
func parse(name string) (scheme, int, error) {
	base, levelPart, hasLevel := strings.Cut(name, ":")
	sc, ok := schemes[base]
	if !ok {
		return scheme{}, 0, fmt.Errorf("compression: unknown scheme %q", name)
	}
	if !hasLevel {
		return sc, sc.defaultLevel, nil
	}
	if !sc.leveled {
		return scheme{}, 0, fmt.Errorf("compression: scheme %q does not take a level", base)
	}
	level, err := strconv.Atoi(levelPart)
	if err != nil {
		return scheme{}, 0, fmt.Errorf("compression: bad level in %q: %w", name, err)
	}
	if level < sc.minLevel || sc.maxLevel < level {
		return scheme{}, 0, fmt.Errorf("compression: level %d out of range [%d, %d] for %q",
			level, sc.minLevel, sc.maxLevel, base)
	}
	return sc, level, nil
}

// IsScheme reports whether name is a valid scheme, with or without a
// level suffix.
func IsScheme(name string) bool {
	_, _, err := parse(name)
	return err == nil
}

// Schemes returns the registered scheme names, sorted.
func Schemes() []string {
	names := make([]string, 0, len(schemes))
	for name := range schemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Extension returns the filename extension for a scheme, which is the
// scheme name without any level suffix.
func Extension(name string) (string, error) {
	if _, _, err := parse(name); err != nil {
		return "", err
	}
	base, _, _ := strings.Cut(name, ":")
	return base, nil
}

// Compress compresses data under the named scheme.
func Compress(name string, data []byte) ([]byte, error) {
	sc, level, err := parse(name)
	if err != nil {
		return nil, err
	}
	return sc.compress(level, data)
}

// Decompress decompresses data previously compressed under the named
// scheme. Any level suffix is ignored.
func Decompress(name string, data []byte) ([]byte, error) {
	sc, _, err := parse(name)
	if err != nil {
		return nil, err
	}
	return sc.decompress(data)
}

// -----------------------------------------------------------------------------
// Scheme implementations
// -----------------------------------------------------------------------------

func brCompress(level int, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, level)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func brDecompress(data []byte) ([]byte, error) {
	return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
}

func gzCompress(level int, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

// lz4Levels maps integer levels to the lz4 frame compression levels,
// with 0 as the fast (default) mode.
var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

func lz4Compress(level int, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(lz4Levels[level])); err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lz4Decompress(data []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
}

func zstdCompress(level int, data []byte) ([]byte, error) {
	w, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, err
	}
	out := w.EncodeAll(data, nil)
	if err := w.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func zstdDecompress(data []byte) ([]byte, error) {
	r, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.DecodeAll(data, nil)
}
