package seam

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

var xsvTestColumns = []Column{
	{Name: "id", Encoding: "int"},
	{Name: "name", Encoding: "str"},
	{Name: "score", Encoding: "float"},
}

func xsvTestSample(i int) Sample {
	return Sample{
		"id":    int64(i),
		"name":  "row",
		"score": float64(i) * 0.5,
	}
}

// -----------------------------------------------------------------------------
// Encoding round trips
// -----------------------------------------------------------------------------

func TestXSVEncodings_RoundTrip(t *testing.T) {
	cases := []struct {
		encoding string
		value    any
	}{
		{"int", int64(-42)},
		{"int", int64(0)},
		{"float", 2.25},
		{"str", "plain text"},
		{"str", ""},
	}
	for _, tc := range cases {
		text, err := xsvEncode(tc.encoding, tc.value)
		if err != nil {
			t.Fatalf("encode %s: %v", tc.encoding, err)
		}
		got, err := xsvDecode(tc.encoding, text)
		if err != nil {
			t.Fatalf("decode %s: %v", tc.encoding, err)
		}
		if got != tc.value {
			t.Errorf("%s: round trip %v -> %v", tc.encoding, tc.value, got)
		}
	}
}

// -----------------------------------------------------------------------------
// CSV / TSV round trips
// -----------------------------------------------------------------------------

func TestCSVWriter_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(dir, xsvTestColumns)
	if err != nil {
		t.Fatal(err)
	}
	const n = 6
	for i := range n {
		if err := w.Write(xsvTestSample(i)); err != nil {
			t.Fatal(err)
		}
	}
	shards, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if len(shards) != 1 {
		t.Fatalf("got %d shards, want 1", len(shards))
	}

	raw, err := jsonCodec.Marshal(shards[0])
	if err != nil {
		t.Fatal(err)
	}
	r, err := ReaderFromJSON(dir, "", raw)
	if err != nil {
		t.Fatal(err)
	}
	for i := range n {
		got, err := r.Get(i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		if !reflect.DeepEqual(got, xsvTestSample(i)) {
			t.Errorf("Get(%d) = %v, want %v", i, got, xsvTestSample(i))
		}
	}
}

func TestCSVShard_DataFileLayout(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(dir, xsvTestColumns)
	if err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		if err := w.Write(xsvTestSample(i)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "shard.00000.csv"))
	if err != nil {
		t.Fatal(err)
	}
	header := "id,name,score\n"
	if !strings.HasPrefix(string(data), header) {
		t.Fatalf("data file starts with %q, want header %q", data[:min(len(data), 20)], header)
	}

	meta, err := os.ReadFile(filepath.Join(dir, "shard.00000.csv.meta"))
	if err != nil {
		t.Fatal(err)
	}
	count := binary.LittleEndian.Uint32(meta[0:4])
	if count != 3 {
		t.Fatalf("meta sample count = %d, want 3", count)
	}
	first := binary.LittleEndian.Uint32(meta[4:8])
	if int(first) != len(header) {
		t.Errorf("first offset = %d, want header length %d", first, len(header))
	}
	last := binary.LittleEndian.Uint32(meta[4+4*3 : 8+4*3])
	if int(last) != len(data) {
		t.Errorf("final offset = %d, want data length %d", last, len(data))
	}
	config := meta[4+4*4:]
	if !bytes.Contains(config, []byte(`"separator":","`)) {
		t.Errorf("meta config missing separator: %s", config)
	}
}

func TestTSVWriter_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewTSVWriter(dir, xsvTestColumns)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(xsvTestSample(7)); err != nil {
		t.Fatal(err)
	}
	shards, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}
	if shards[0].Format() != "tsv" {
		t.Fatalf("format = %q, want tsv", shards[0].Format())
	}

	raw, _ := jsonCodec.Marshal(shards[0])
	r, err := ReaderFromJSON(dir, "", raw)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, xsvTestSample(7)) {
		t.Errorf("Get(0) = %v, want %v", got, xsvTestSample(7))
	}
}

func TestXSVWriter_CustomSeparator(t *testing.T) {
	dir := t.TempDir()
	w, err := NewXSVWriter(dir, xsvTestColumns, "|")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(xsvTestSample(1)); err != nil {
		t.Fatal(err)
	}
	shards, err := w.Finish()
	if err != nil {
		t.Fatal(err)
	}

	raw, _ := jsonCodec.Marshal(shards[0])
	r, err := ReaderFromJSON(dir, "", raw)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, xsvTestSample(1)) {
		t.Errorf("Get(0) = %v, want %v", got, xsvTestSample(1))
	}
}

// -----------------------------------------------------------------------------
// Configuration errors
// -----------------------------------------------------------------------------

func TestNewXSVWriter_ConfigErrors(t *testing.T) {
	dir := t.TempDir()

	dup := []Column{{Name: "a", Encoding: "int"}, {Name: "a", Encoding: "str"}}
	if _, err := NewCSVWriter(dir, dup); err == nil {
		t.Error("duplicate column names should fail")
	}

	sepName := []Column{{Name: "a,b", Encoding: "str"}}
	if _, err := NewCSVWriter(dir, sepName); err == nil {
		t.Error("separator in column name should fail")
	}

	nlName := []Column{{Name: "a\nb", Encoding: "str"}}
	if _, err := NewCSVWriter(dir, nlName); err == nil {
		t.Error("newline in column name should fail")
	}

	binaryEnc := []Column{{Name: "a", Encoding: "bytes"}}
	if _, err := NewCSVWriter(dir, binaryEnc); !errors.Is(err, ErrUnknownEncoding) {
		t.Errorf("binary encoding in text codec: got %v, want ErrUnknownEncoding", err)
	}

	if _, err := NewXSVWriter(dir, xsvTestColumns, ""); err == nil {
		t.Error("empty separator should fail")
	}
	if _, err := NewXSVWriter(dir, xsvTestColumns, "\n"); err == nil {
		t.Error("separator equal to newline should fail")
	}
}

func TestXSVWriter_ValueCollision(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(dir, []Column{{Name: "a", Encoding: "str"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(Sample{"a": "has,comma"}); err == nil {
		t.Error("value containing the separator should fail")
	}
	if err := w.Write(Sample{"a": "has\nnewline"}); err == nil {
		t.Error("value containing the newline should fail")
	}
	if err := w.Write(Sample{"a": "clean"}); err != nil {
		t.Errorf("clean value failed: %v", err)
	}
}

func TestXSVReader_SeparatorMismatch(t *testing.T) {
	r := func() Reader {
		dir := t.TempDir()
		w, err := NewCSVWriter(dir, xsvTestColumns)
		if err != nil {
			t.Fatal(err)
		}
		if err := w.Write(xsvTestSample(0)); err != nil {
			t.Fatal(err)
		}
		shards, err := w.Finish()
		if err != nil {
			t.Fatal(err)
		}
		raw, _ := jsonCodec.Marshal(shards[0])
		r, err := ReaderFromJSON(dir, "", raw)
		if err != nil {
			t.Fatal(err)
		}
		return r
	}()

	raw, err := jsonCodec.Marshal(r.Shard())
	if err != nil {
		t.Fatal(err)
	}
	bad := bytes.Replace(raw, []byte(`"separator":","`), []byte(`"separator":";"`), 1)
	if _, err := ReaderFromJSON("", "", bad); err == nil {
		t.Error("csv descriptor with a non-comma separator should fail")
	}
}
