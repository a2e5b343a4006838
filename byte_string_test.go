package segio

// White box testing of byte string and snapshot functionality.

import (
	"bytes"
	"testing"

	"github.com/cespare/xxhash/v2"

	"segio/internal/testutils"
)

func TestByteString(t *testing.T) {
	t.Run("Copies its input on construction", func(t *testing.T) {
		input := []byte("abc")
		bs := NewByteString(input)
		input[0] = 'z'
		if !bs.EqualBytes([]byte("abc")) {
			t.Error("expected the byte string to be unaffected by later input mutation")
		}
	})

	t.Run("Bytes returns a defensive copy", func(t *testing.T) {
		bs := NewByteStringFromString("abc")
		bs.Bytes()[0] = 'z'
		if bs.At(0) != 'a' {
			t.Error("expected the byte string to be unaffected by mutation of Bytes")
		}
	})

	t.Run("Size and At", func(t *testing.T) {
		bs := NewByteStringFromString("abc")
		if bs.Size() != 3 {
			t.Errorf("expected size 3, got %d", bs.Size())
		}
		for i, want := range []byte("abc") {
			if got := bs.At(i); got != want {
				t.Errorf("expected byte %q at index %d, got %q", want, i, got)
			}
		}
	})

	t.Run("Hex", func(t *testing.T) {
		bs := NewByteString([]byte{0xde, 0xad, 0xbe, 0xef})
		if got := bs.Hex(); got != "deadbeef" {
			t.Errorf("expected %q, got %q", "deadbeef", got)
		}
	})

	t.Run("Compare orders lexicographically", func(t *testing.T) {
		testCases := []struct {
			name string
			a, b string
			want int
		}{
			{name: "equal", a: "abc", b: "abc", want: 0},
			{name: "less", a: "abc", b: "abd", want: -1},
			{name: "greater", a: "abd", b: "abc", want: 1},
			{name: "prefix sorts first", a: "ab", b: "abc", want: -1},
			{name: "empty sorts first", a: "", b: "a", want: -1},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				a := NewByteStringFromString(tc.a)
				b := NewByteStringFromString(tc.b)
				if got := a.Compare(b); got != tc.want {
					t.Errorf("expected %d, got %d", tc.want, got)
				}
			})
		}
	})

	t.Run("StartsWith", func(t *testing.T) {
		bs := NewByteStringFromString("abcdef")
		if !bs.StartsWith(NewByteStringFromString("abc")) {
			t.Error("expected abcdef to start with abc")
		}
		if bs.StartsWith(NewByteStringFromString("abd")) {
			t.Error("expected abcdef not to start with abd")
		}
		if !bs.StartsWith(ByteString{}) {
			t.Error("expected every byte string to start with the empty prefix")
		}
	})

	t.Run("IndexOf", func(t *testing.T) {
		testCases := []struct {
			name      string
			haystack  string
			needle    string
			fromIndex int
			want      int
		}{
			{name: "found at the start", haystack: "abcabc", needle: "abc", fromIndex: 0, want: 0},
			{name: "resumes past the first hit", haystack: "abcabc", needle: "abc", fromIndex: 1, want: 3},
			{name: "absent", haystack: "abcabc", needle: "abd", fromIndex: 0, want: -1},
			{name: "needle past the remaining bytes", haystack: "abc", needle: "bc", fromIndex: 2, want: -1},
			{name: "empty needle matches at fromIndex", haystack: "abc", needle: "", fromIndex: 2, want: 2},
			{name: "fromIndex past the end", haystack: "abc", needle: "a", fromIndex: 4, want: -1},
		}
		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				haystack := NewByteStringFromString(tc.haystack)
				needle := NewByteStringFromString(tc.needle)
				if got := haystack.IndexOf(needle, tc.fromIndex); got != tc.want {
					t.Errorf("expected index %d, got %d", tc.want, got)
				}
			})
		}
	})

	t.Run("IndexOf panics on a negative from index", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected a panic for a negative from index")
			}
		}()
		NewByteStringFromString("abc").IndexOf(NewByteStringFromString("a"), -1)
	})

	t.Run("Substring", func(t *testing.T) {
		bs := NewByteStringFromString("abcdef")
		if got := bs.Substring(1, 4); got.String() != "bcd" {
			t.Errorf("expected %q, got %q", "bcd", got.String())
		}
		if got := bs.Substring(0, 6); !got.Equal(bs) {
			t.Error("expected the full substring to equal the original")
		}
		if got := bs.Substring(3, 3); got.Size() != 0 {
			t.Errorf("expected an empty substring, got %q", got.String())
		}
	})

	t.Run("Substring panics out of range", func(t *testing.T) {
		bs := NewByteStringFromString("abc")
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected a panic for an out-of-range substring")
			}
		}()
		bs.Substring(2, 5)
	})

	t.Run("Sum64 matches a direct hash", func(t *testing.T) {
		data := testutils.Alphabet(1000)
		if got, want := NewByteString(data).Sum64(), xxhash.Sum64(data); got != want {
			t.Errorf("expected %#x, got %#x", want, got)
		}
	})
}

func TestBufferSnapshot(t *testing.T) {
	t.Run("Observes no later writes", func(t *testing.T) {
		b, _ := newTestBuffer(t)
		b.WriteString("abc")
		s := b.Snapshot()
		b.WriteString("def")

		if !s.EqualBytes([]byte("abc")) {
			t.Errorf("expected the snapshot to hold %q, got %q", "abc", s.String())
		}
		got, _ := b.ReadBytes(b.Size())
		if string(got) != "abcdef" {
			t.Errorf("expected the buffer to hold %q, got %q", "abcdef", got)
		}
	})

	t.Run("Survives consuming and refilling the buffer", func(t *testing.T) {
		b, pool := newTestBuffer(t)
		data := testutils.Alphabet(2 * SegmentSize)
		b.Write(data)
		s := b.Snapshot()

		// Drain the buffer and write fresh data. The snapshot's segments are
		// shared, so the pool must refuse them and the new writes must land
		// in fresh arrays.
		if err := b.Skip(b.Size()); err != nil {
			t.Fatal(err)
		}
		if free := pool.freeByteCount(); free != 0 {
			t.Errorf("expected shared segments to stay out of the pool, got %d free bytes", free)
		}
		b.Write(bytes.Repeat([]byte{'!'}, 2*SegmentSize))

		if !s.EqualBytes(data) {
			t.Error("expected the snapshot to keep the original bytes")
		}
	})

	t.Run("SnapshotN covers a prefix", func(t *testing.T) {
		b, _ := newTestBuffer(t)
		data := testutils.Alphabet(SegmentSize + 100)
		b.Write(data)

		s := b.SnapshotN(10)
		if !s.EqualBytes(data[:10]) {
			t.Errorf("expected the first 10 bytes, got %q", s.String())
		}

		s = b.SnapshotN(SegmentSize + 5)
		if !s.EqualBytes(data[:SegmentSize+5]) {
			t.Error("expected a prefix spanning two segments")
		}
	})

	t.Run("SnapshotN panics past the size", func(t *testing.T) {
		b, _ := newTestBuffer(t)
		b.WriteString("abc")
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected a panic for an oversized snapshot")
			}
		}()
		b.SnapshotN(4)
	})

	t.Run("At and Bytes agree across segments", func(t *testing.T) {
		b, _ := newTestBuffer(t)
		data := testutils.Alphabet(2*SegmentSize + 33)
		b.Write(data)
		s := b.Snapshot()

		if s.Size() != len(data) {
			t.Fatalf("expected size %d, got %d", len(data), s.Size())
		}
		flat := s.Bytes()
		if !bytes.Equal(flat, data) {
			t.Fatal("expected Bytes to flatten the original data")
		}
		for _, i := range []int{0, SegmentSize - 1, SegmentSize, 2 * SegmentSize, len(data) - 1} {
			if s.At(i) != flat[i] {
				t.Errorf("expected At(%d) to agree with Bytes", i)
			}
		}
	})

	t.Run("Empty buffer snapshot", func(t *testing.T) {
		b, _ := newTestBuffer(t)
		s := b.Snapshot()
		if s.Size() != 0 {
			t.Errorf("expected size 0, got %d", s.Size())
		}
		if !s.EqualBytes(nil) {
			t.Error("expected the empty snapshot to equal no bytes")
		}
	})

	t.Run("Equal walks mismatched segmentation", func(t *testing.T) {
		src, _ := newTestBuffer(t)
		data := testutils.Alphabet(3000)
		src.Write(data)
		one := src.Snapshot() // one run of 3000 bytes

		// Assemble the same bytes as two runs of 1500.
		split, _ := newTestBuffer(t)
		src.CopyTo(split, 0, 1500)
		src.CopyTo(split, 1500, 1500)
		two := split.Snapshot()

		if !one.Equal(two) || !two.Equal(one) {
			t.Error("expected snapshots with different run boundaries to be equal")
		}
		if one.Sum64() != two.Sum64() {
			t.Error("expected equal snapshots to hash alike")
		}

		split.WriteByte('!')
		if one.Equal(split.Snapshot()) {
			t.Error("expected snapshots of different sizes to differ")
		}
	})

	t.Run("Sum64 matches a flat hash", func(t *testing.T) {
		b, _ := newTestBuffer(t)
		data := testutils.Alphabet(2*SegmentSize + 7)
		b.Write(data)
		if got, want := b.Snapshot().Sum64(), xxhash.Sum64(data); got != want {
			t.Errorf("expected %#x, got %#x", want, got)
		}
	})

	t.Run("ToByteString flattens", func(t *testing.T) {
		b, _ := newTestBuffer(t)
		b.Write(testutils.Alphabet(SegmentSize + 10))
		bs := b.Snapshot().ToByteString()
		if !bs.EqualBytes(testutils.Alphabet(SegmentSize + 10)) {
			t.Error("expected the flattened byte string to match")
		}
	})

	t.Run("WriteSnapshot links shared segments", func(t *testing.T) {
		src, _ := newTestBuffer(t)
		data := testutils.Alphabet(SegmentSize + 200)
		src.Write(data)
		s := src.Snapshot()

		dst, _ := newTestBuffer(t)
		dst.WriteSnapshot(s)
		if !dst.head.shared() {
			t.Error("expected the destination to share the snapshot's arrays")
		}
		got, _ := dst.ReadBytes(dst.Size())
		if !bytes.Equal(got, data) {
			t.Error("expected the destination to read the snapshot's bytes")
		}
		if !s.EqualBytes(data) {
			t.Error("expected the snapshot to be unaffected")
		}
	})
}
