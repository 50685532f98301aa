package seam

import (
	"errors"
	"testing"
)

func TestIndex_Find(t *testing.T) {
	ix := NewIndex([]int64{3, 5, 2})

	if got := ix.NumSamples(); got != 10 {
		t.Fatalf("NumSamples = %d, want 10", got)
	}
	if got := ix.NumShards(); got != 3 {
		t.Fatalf("NumShards = %d, want 3", got)
	}

	cases := []struct {
		idx    int64
		shard  int
		offset int64
	}{
		{0, 0, 0},
		{1, 0, 1},
		{2, 0, 2},
		{3, 1, 0},
		{7, 1, 4},
		{8, 2, 0},
		{9, 2, 1},
	}
	for _, tc := range cases {
		shard, offset, err := ix.Find(tc.idx)
		if err != nil {
			t.Fatalf("Find(%d) failed: %v", tc.idx, err)
		}
		if shard != tc.shard || offset != tc.offset {
			t.Errorf("Find(%d) = (%d, %d), want (%d, %d)",
				tc.idx, shard, offset, tc.shard, tc.offset)
		}
	}
}

func TestIndex_Find_OutOfRange(t *testing.T) {
	ix := NewIndex([]int64{3, 5, 2})

	for _, idx := range []int64{-1, 10, 11} {
		if _, _, err := ix.Find(idx); !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Find(%d) = %v, want ErrOutOfRange", idx, err)
		}
	}
}

func TestIndex_Empty(t *testing.T) {
	ix := NewIndex(nil)

	if got := ix.NumSamples(); got != 0 {
		t.Fatalf("NumSamples = %d, want 0", got)
	}
	if _, _, err := ix.Find(0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Find(0) on empty index = %v, want ErrOutOfRange", err)
	}
}

func TestIndex_SingleShardBoundaries(t *testing.T) {
	ix := NewIndex([]int64{4})

	shard, offset, err := ix.Find(3)
	if err != nil {
		t.Fatalf("Find(3) failed: %v", err)
	}
	if shard != 0 || offset != 3 {
		t.Errorf("Find(3) = (%d, %d), want (0, 3)", shard, offset)
	}
	if _, _, err := ix.Find(4); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Find(4) = %v, want ErrOutOfRange", err)
	}
}

func TestIndex_FromReaders(t *testing.T) {
	dir := t.TempDir()
	w, err := NewMDSWriter(dir, map[string]string{"n": "int"})
	if err != nil {
		t.Fatal(err)
	}
	for i := range 7 {
		if err := w.Write(Sample{"n": int64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	readers, err := ReadersFromIndex(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	ix := NewIndexFromReaders(readers)
	if got := ix.NumSamples(); got != 7 {
		t.Fatalf("NumSamples = %d, want 7", got)
	}
	shard, offset, err := ix.Find(6)
	if err != nil {
		t.Fatal(err)
	}
	if sample, err := readers[shard].Get(int(offset)); err != nil {
		t.Fatal(err)
	} else if sample["n"] != int64(6) {
		t.Errorf("sample n = %v, want 6", sample["n"])
	}
}
