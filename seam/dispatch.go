package seam

import (
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
)

// readerFactory builds a concrete Reader from a raw shard descriptor.
type readerFactory func(dirname, split string, raw []byte) (Reader, error)

// readerFactories is the closed format registry. The csv and tsv
// entries pin their separator; the generic xsv entry trusts the
// descriptor's.
var readerFactories = map[string]readerFactory{
	mdsFormat: newMDSReader,
	xsvFormat: func(dirname, split string, raw []byte) (Reader, error) {
		return newXSVReader(dirname, split, raw, xsvFormat, "")
	},
	csvFormat: func(dirname, split string, raw []byte) (Reader, error) {
		return newXSVReader(dirname, split, raw, csvFormat, csvSeparator)
	},
	tsvFormat: func(dirname, split string, raw []byte) (Reader, error) {
		return newXSVReader(dirname, split, raw, tsvFormat, tsvSeparator)
	},
	jsonFormat: newJSONReader,
}

// ReaderFromJSON builds a shard Reader from a serialized descriptor.
// dirname and split locate the shard files on disk. Descriptors with a
// version other than ShardVersion or a format outside the registry are
// rejected before any reader state is constructed.
func ReaderFromJSON(dirname, split string, raw []byte) (Reader, error) {
	var probe struct {
		Format  string `json:"format"`
		Version int    `json:"version"`
	}
	if err := jsonCodec.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("seam: parse shard descriptor: %w", err)
	}
	if probe.Version != ShardVersion {
		return nil, fmt.Errorf("seam: shard version %d: %w", probe.Version, ErrUnsupportedVersion)
	}
	factory, ok := readerFactories[probe.Format]
	if !ok {
		return nil, fmt.Errorf("seam: %w: %q", ErrUnknownFormat, probe.Format)
	}
	return factory(dirname, split, raw)
}

// ReadersFromIndex loads the dataset index manifest written by
// Writer.Finish and materializes a Reader per shard, in shard order.
func ReadersFromIndex(dirname, split string) ([]Reader, error) {
	raw, err := os.ReadFile(filepath.Join(dirname, split, IndexBasename))
	if err != nil {
		return nil, fmt.Errorf("seam: read index manifest: %w", err)
	}

	var manifest struct {
		Shards  []jsoniter.RawMessage `json:"shards"`
		Version int                   `json:"version"`
	}
	if err := jsonCodec.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("seam: parse index manifest: %w", err)
	}
	if manifest.Version != ShardVersion {
		return nil, fmt.Errorf("seam: index version %d: %w", manifest.Version, ErrUnsupportedVersion)
	}

	readers := make([]Reader, 0, len(manifest.Shards))
	for i, shard := range manifest.Shards {
		reader, err := ReaderFromJSON(dirname, split, shard)
		if err != nil {
			return nil, fmt.Errorf("seam: shard %d: %w", i, err)
		}
		readers = append(readers, reader)
	}
	return readers, nil
}
