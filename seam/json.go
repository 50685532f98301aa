package seam

import jsoniter "github.com/json-iterator/go"

// jsonCodec marshals with sorted map keys and stdlib-compatible output,
// so descriptor and config JSON serializes deterministically.
var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// strictJSON additionally rejects unknown fields. Shard descriptors are
// deserialized with it so schema drift fails loudly instead of being
// silently dropped.
var strictJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	DisallowUnknownFields:  true,
}.Froze()
