// Package hashing computes the per-file content digests recorded in
// shard descriptors.
//
// Algorithms are keyed by name so that the set of digests a writer
// produces and a validator later re-checks is agreed on by string,
// not by import.
package hashing

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

var algorithms = map[string]func(data []byte) string{
	"md5": func(data []byte) string {
		sum := md5.Sum(data)
		return hex.EncodeToString(sum[:])
	},
	"sha1": func(data []byte) string {
		sum := sha1.Sum(data)
		return hex.EncodeToString(sum[:])
	},
	"sha256": func(data []byte) string {
		sum := sha256.Sum256(data)
		return hex.EncodeToString(sum[:])
	},
	"sha512": func(data []byte) string {
		sum := sha512.Sum512(data)
		return hex.EncodeToString(sum[:])
	},
	"xxh64": func(data []byte) string {
		return fmt.Sprintf("%016x", xxhash.Sum64(data))
	},
}

// IsAlgorithm reports whether name is a registered hash algorithm.
func IsAlgorithm(name string) bool {
	_, ok := algorithms[name]
	return ok
}

// Algorithms returns the registered algorithm names, sorted.
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Hash returns the hex digest of data under the named algorithm.
func Hash(name string, data []byte) (string, error) {
	fn, ok := algorithms[name]
	if !ok {
		return "", fmt.Errorf("hashing: unknown algorithm %q", name)
	}
	return fn(data), nil
}
