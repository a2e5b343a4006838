package segio

import (
	"bytes"
	"errors"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// SegmentedByteString is an immutable snapshot of a buffer's contents. It
// shares the buffer's segment arrays instead of copying them; the buffer
// marks those segments shared, so later writes go to fresh copies and the
// snapshot observes no mutation.
//
// The layout mirrors the ring it was taken from: segments holds one backing
// array per snapshotted segment, and directory holds 2*len(segments) ints.
// The first half is cumulative end offsets within the snapshot; the second
// half is the start position of the snapshotted range inside each backing
// array.
type SegmentedByteString struct {
	segments  [][]byte
	directory []int
}

// Snapshot returns an immutable view of the buffer's current contents.
// Nothing is consumed and no bytes are copied.
func (b *Buffer) Snapshot() *SegmentedByteString {
	return b.SnapshotN(b.size)
}

// SnapshotN returns an immutable view of the first byteCount bytes.
// Nothing is consumed and no bytes are copied.
func (b *Buffer) SnapshotN(byteCount int64) *SegmentedByteString {
	b.checkNoCursor()
	checkOffsetAndCount(b.size, 0, byteCount)
	if byteCount == 0 {
		return &SegmentedByteString{}
	}

	// Walk once to count the segments covered.
	segmentCount := 0
	offset := int64(0)
	for s := b.head; offset < byteCount; s = s.next {
		if s.limit == s.pos {
			panic(errors.New("invariant violation: empty segment in ring"))
		}
		offset += int64(s.limit - s.pos)
		segmentCount++
	}

	// Walk again to build the directory, freezing each segment as it is
	// recorded.
	segments := make([][]byte, segmentCount)
	directory := make([]int, segmentCount*2)
	offset = 0
	i := 0
	for s := b.head; offset < byteCount; s = s.next {
		segments[i] = s.data
		offset += int64(s.limit - s.pos)
		if offset > byteCount {
			offset = byteCount // The final segment is included only in part.
		}
		directory[i] = int(offset)
		directory[i+segmentCount] = s.pos
		s.markShared()
		i++
	}
	return &SegmentedByteString{segments: segments, directory: directory}
}

// Size returns the number of bytes in the snapshot.
func (s *SegmentedByteString) Size() int {
	if len(s.segments) == 0 {
		return 0
	}
	return s.directory[len(s.segments)-1]
}

// segmentIndex returns the index of the segment containing offset i.
func (s *SegmentedByteString) segmentIndex(i int) int {
	return sort.SearchInts(s.directory[:len(s.segments)], i+1)
}

// run returns the start position and length of segment i's snapshotted
// range within its backing array.
func (s *SegmentedByteString) run(i int) (start, length int) {
	segmentOffset := 0
	if i > 0 {
		segmentOffset = s.directory[i-1]
	}
	return s.directory[i+len(s.segments)], s.directory[i] - segmentOffset
}

// At returns the byte at index i.
func (s *SegmentedByteString) At(i int) byte {
	checkOffsetAndCount(int64(s.Size()), int64(i), 1)
	seg := s.segmentIndex(i)
	segmentOffset := 0
	if seg > 0 {
		segmentOffset = s.directory[seg-1]
	}
	pos := s.directory[seg+len(s.segments)]
	return s.segments[seg][pos+i-segmentOffset]
}

// forEachRun invokes fn over each byte run in order. The slices alias the
// shared backing arrays and must not be mutated.
func (s *SegmentedByteString) forEachRun(fn func(p []byte)) {
	for i := range s.segments {
		start, length := s.run(i)
		fn(s.segments[i][start : start+length])
	}
}

// Bytes returns a copy of the contents in a single slice.
func (s *SegmentedByteString) Bytes() []byte {
	out := make([]byte, 0, s.Size())
	s.forEachRun(func(p []byte) {
		out = append(out, p...)
	})
	return out
}

// ToByteString flattens the snapshot into a contiguous ByteString.
func (s *SegmentedByteString) ToByteString() ByteString {
	return ByteString{data: s.Bytes()}
}

// String returns the contents interpreted as UTF-8.
func (s *SegmentedByteString) String() string {
	return string(s.Bytes())
}

// Equal reports whether s and other hold the same bytes. The comparison
// walks both snapshots run by run; nothing is flattened.
func (s *SegmentedByteString) Equal(other *SegmentedByteString) bool {
	if s == other {
		return true
	}
	size := s.Size()
	if size != other.Size() {
		return false
	}
	var si, so, oi, oo int // segment index and intra-run offset, each side
	for remaining := size; remaining > 0; {
		sStart, sLen := s.run(si)
		oStart, oLen := other.run(oi)
		n := min(sLen-so, oLen-oo)
		sRun := s.segments[si][sStart+so : sStart+so+n]
		oRun := other.segments[oi][oStart+oo : oStart+oo+n]
		if !bytes.Equal(sRun, oRun) {
			return false
		}
		so += n
		oo += n
		if so == sLen {
			si++
			so = 0
		}
		if oo == oLen {
			oi++
			oo = 0
		}
		remaining -= n
	}
	return true
}

// EqualBytes reports whether the snapshot holds the same bytes as p.
func (s *SegmentedByteString) EqualBytes(p []byte) bool {
	if s.Size() != len(p) {
		return false
	}
	equal := true
	s.forEachRun(func(run []byte) {
		if equal && !bytes.Equal(run, p[:len(run)]) {
			equal = false
		}
		p = p[len(run):]
	})
	return equal
}

// Sum64 returns the xxHash64 digest of the contents, computed run by run
// without flattening.
func (s *SegmentedByteString) Sum64() uint64 {
	d := xxhash.New()
	s.forEachRun(func(p []byte) {
		_, _ = d.Write(p)
	})
	return d.Sum64()
}
