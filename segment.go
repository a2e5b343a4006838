package segio

import (
	"errors"
	"fmt"
)

const (
	// SegmentSize is the capacity of every segment's backing array, in bytes.
	SegmentSize = 8192

	// shareMinimum is the smallest byte count split will share instead of
	// copy. Sharing avoids the copy but freezes the bytes and pins the whole
	// backing array until every view is gone; short prefixes are cheaper to
	// copy than to pin.
	shareMinimum = 1024
)

// segmentState describes how a segment's backing array may be used.
// The state moves one way, exclusive -> shared, and never back.
type segmentState uint8

const (
	// segExclusive means exactly one segment references the backing array.
	// Bytes in [pos, limit) may be mutated or shifted in place.
	segExclusive segmentState = iota

	// segShared means other segments or byte strings view the same backing
	// array. Bytes in [pos, limit) are frozen: they may not be mutated,
	// shifted, or recycled. The single owner may still append at limit,
	// since appended bytes are invisible to views taken earlier.
	segShared
)

func (s segmentState) String() string {
	switch s {
	case segExclusive:
		return "exclusive"
	case segShared:
		return "shared"
	default:
		return "unknown"
	}
}

// segment is a fixed-size run of bytes in a buffer's circular ring.
//
// Each segment exposes a window [pos, limit) of live bytes within its backing
// array: bytes before pos have been consumed, bytes at limit and beyond have
// not been written yet.
type segment struct {
	data []byte // Backing array, always SegmentSize long.

	pos   int // Index of the next byte to read.
	limit int // Index of the first byte available for writing.

	// state records whether other views share the backing array.
	state segmentState

	// owner is true if this segment may append at limit and be recycled.
	// At most one segment per backing array is the owner.
	owner bool

	prev, next *segment // Ring links, nil while unlinked.
}

// newSegment returns an exclusively owned segment with a fresh backing array.
func newSegment() *segment {
	return &segment{data: make([]byte, SegmentSize), owner: true}
}

func (s *segment) shared() bool {
	return s.state == segShared
}

// markShared freezes the live window for copy-on-write sharing.
func (s *segment) markShared() {
	s.state = segShared
}

// sharedCopy returns a new segment viewing the same backing array and window.
// Both segments become shared; only the original remains the owner.
func (s *segment) sharedCopy() *segment {
	s.state = segShared
	return &segment{
		data:  s.data,
		pos:   s.pos,
		limit: s.limit,
		state: segShared,
	}
}

// unsharedCopy returns an exclusively owned segment holding a copy of the
// live window, taken from pool. The original is left untouched.
func (s *segment) unsharedCopy(pool *SegmentPool) *segment {
	c := pool.take()
	c.pos = s.pos
	c.limit = s.limit
	copy(c.data[s.pos:s.limit], s.data[s.pos:s.limit])
	return c
}

// push inserts incoming into the ring after s and returns incoming.
func (s *segment) push(incoming *segment) *segment {
	incoming.prev = s
	incoming.next = s.next
	s.next.prev = incoming
	s.next = incoming
	return incoming
}

// pop unlinks s from the ring and returns its successor, or nil if s was the
// only segment. The removed segment's links are cleared.
func (s *segment) pop() *segment {
	result := s.next
	if result == s {
		result = nil
	}
	s.prev.next = s.next
	s.next.prev = s.prev
	s.prev = nil
	s.next = nil
	return result
}

// split carves the first byteCount live bytes off into a new segment,
// inserts it into the ring directly before s, and returns it.
//
// Two competing goals decide how the prefix is produced: avoid copying, and
// avoid short shared segments (they are read-only, and chains of them make
// every later operation walk further). The prefix shares the backing array
// only when it is large enough to be worth freezing.
func (s *segment) split(pool *SegmentPool, byteCount int) *segment {
	if byteCount <= 0 || byteCount > s.limit-s.pos {
		panic(fmt.Errorf("illegal split of %d bytes from a segment holding %d", byteCount, s.limit-s.pos))
	}

	var prefix *segment
	if byteCount >= shareMinimum {
		prefix = s.sharedCopy()
	} else {
		prefix = pool.take()
		copy(prefix.data, s.data[s.pos:s.pos+byteCount])
	}
	prefix.limit = prefix.pos + byteCount
	s.pos += byteCount
	s.prev.push(prefix)
	return prefix
}

// writeTo moves byteCount bytes from s to the end of sink. When the tail
// space alone is not enough, the sink's consumed prefix is reclaimed first by
// shifting its live window to the front; a shared sink must never be shifted.
func (s *segment) writeTo(sink *segment, byteCount int) {
	if !sink.owner {
		panic(errors.New("illegal write to a non-owner segment"))
	}
	if sink.limit+byteCount > SegmentSize {
		if sink.shared() {
			panic(errors.New("illegal shift of a shared segment"))
		}
		if sink.limit+byteCount-sink.pos > SegmentSize {
			panic(fmt.Errorf("illegal write of %d bytes to a segment with %d free", byteCount, SegmentSize-sink.limit+sink.pos))
		}
		copy(sink.data, sink.data[sink.pos:sink.limit])
		sink.limit -= sink.pos
		sink.pos = 0
	}
	copy(sink.data[sink.limit:], s.data[s.pos:s.pos+byteCount])
	sink.limit += byteCount
	s.pos += byteCount
}

// compact merges s into its predecessor when the predecessor can absorb it,
// then unlinks s and recycles it. Keeps the ring from accumulating short
// tails after segment moves.
func (s *segment) compact(pool *SegmentPool) {
	if s.prev == s {
		panic(errors.New("illegal compact: segment has no predecessor"))
	}
	if !s.prev.owner {
		return // No-op; predecessor is read-only.
	}
	byteCount := s.limit - s.pos
	available := SegmentSize - s.prev.limit
	if !s.prev.shared() {
		available += s.prev.pos
	}
	if byteCount > available {
		return // No-op; not enough writable space ahead.
	}
	s.writeTo(s.prev, byteCount)
	s.pop()
	pool.recycle(s)
}
