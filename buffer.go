// Package segio implements byte I/O over segmented, pool-backed buffers:
// zero-copy moves between buffers, immutable snapshots, trie-based prefix
// selection, and buffered sources and sinks layered on one segment ring.
package segio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
)

// Buffer is a FIFO queue of bytes held in a circular ring of segments.
//
// Writes fill the tail segment and take fresh segments from the pool as
// needed; reads consume from the head and recycle drained segments. Whole
// segments move between buffers by relinking instead of copying, and clones
// and snapshots share segments copy-on-write.
//
// A Buffer is a single-goroutine object: callers provide their own
// synchronization when one is handed between goroutines. The zero value is
// an empty buffer backed by the process-wide default pool.
type Buffer struct {
	head *segment
	size int64

	// pool supplies and reclaims segments; nil selects the default pool.
	pool *SegmentPool

	// cursor is the open UnsafeCursor, if any. While set, every buffer
	// mutation outside the cursor is an illegal operation.
	cursor *UnsafeCursor
}

// NewBuffer creates a new, empty buffer backed by the default segment pool.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// NewBufferWithPool creates a new, empty buffer that takes and recycles
// segments through pool.
func NewBufferWithPool(pool *SegmentPool) *Buffer {
	return &Buffer{pool: pool}
}

// Size returns the number of readable bytes in the buffer.
func (b *Buffer) Size() int64 {
	return b.size
}

func (b *Buffer) poolOrDefault() *SegmentPool {
	if b.pool == nil {
		return defaultPool
	}
	return b.pool
}

// checkNoCursor panics if an unsafe cursor is open on the buffer. Every
// mutation outside the cursor is deferred to it while it is open.
func (b *Buffer) checkNoCursor() {
	if b.cursor != nil {
		panic(errors.New("illegal buffer operation while an unsafe cursor is open"))
	}
}

// checkOffsetAndCount panics unless [offset, offset+byteCount) lies within
// size.
func checkOffsetAndCount(size, offset, byteCount int64) {
	if offset < 0 || byteCount < 0 || offset+byteCount > size {
		panic(fmt.Errorf("illegal range: size=%d offset=%d byteCount=%d", size, offset, byteCount))
	}
}

// writableSegment returns a tail segment with room for at least minByteCount
// bytes, linking in a pooled segment when the tail is full or not writable.
func (b *Buffer) writableSegment(minByteCount int) *segment {
	if minByteCount < 1 || minByteCount > SegmentSize {
		panic(fmt.Errorf("illegal minimum byte count: %d", minByteCount))
	}
	if b.head == nil {
		s := b.poolOrDefault().take()
		b.head = s
		s.prev = s
		s.next = s
		return s
	}
	tail := b.head.prev
	if tail.limit+minByteCount > SegmentSize || !tail.owner {
		tail = tail.push(b.poolOrDefault().take())
	}
	return tail
}

// Write appends the contents of p to the buffer, growing it as needed.
// It implements io.Writer; the returned error is always nil.
func (b *Buffer) Write(p []byte) (n int, err error) {
	b.checkNoCursor()
	remainingBytes := p
	for len(remainingBytes) > 0 {
		tail := b.writableSegment(1)
		bytesToWrite := min(len(remainingBytes), SegmentSize-tail.limit)
		copy(tail.data[tail.limit:], remainingBytes[:bytesToWrite])
		tail.limit += bytesToWrite
		remainingBytes = remainingBytes[bytesToWrite:]
	}
	b.size += int64(len(p))
	return len(p), nil
}

// WriteByte appends a single byte.
// It implements io.ByteWriter; the returned error is always nil.
func (b *Buffer) WriteByte(c byte) error {
	b.checkNoCursor()
	tail := b.writableSegment(1)
	tail.data[tail.limit] = c
	tail.limit++
	b.size++
	return nil
}

// WriteString appends the bytes of s.
// It implements io.StringWriter; the returned error is always nil.
func (b *Buffer) WriteString(s string) (n int, err error) {
	b.checkNoCursor()
	remaining := s
	for len(remaining) > 0 {
		tail := b.writableSegment(1)
		bytesToWrite := min(len(remaining), SegmentSize-tail.limit)
		copy(tail.data[tail.limit:], remaining[:bytesToWrite])
		tail.limit += bytesToWrite
		remaining = remaining[bytesToWrite:]
	}
	b.size += int64(len(s))
	return len(s), nil
}

// WriteByteString appends the contents of bs.
func (b *Buffer) WriteByteString(bs ByteString) {
	_, _ = b.Write(bs.data)
}

// WriteSnapshot appends the contents of s without copying: the snapshot's
// backing arrays are linked into the ring as shared, read-only segments.
func (b *Buffer) WriteSnapshot(s *SegmentedByteString) {
	b.checkNoCursor()
	if s == nil || s.Size() == 0 {
		return // No-op; empty snapshot.
	}
	segmentOffset := 0
	for i := range s.segments {
		start := s.directory[i+len(s.segments)]
		end := s.directory[i]
		seg := &segment{
			data:  s.segments[i],
			pos:   start,
			limit: start + (end - segmentOffset),
			state: segShared,
		}
		if b.head == nil {
			seg.prev = seg
			seg.next = seg
			b.head = seg
		} else {
			b.head.prev.push(seg)
		}
		segmentOffset = end
	}
	b.size += int64(s.Size())
}

// WriteBuffer moves byteCount bytes from the front of source to the end of b,
// implementing the Sink contract between buffers.
//
// Moving relinks whole segments instead of copying wherever it can:
//   - When byteCount lands inside source's head segment and the bytes fit in
//     our writable tail, they are copied there and nothing is relinked.
//   - Otherwise the head segment is split at byteCount (sharing or copying
//     the prefix, see segment.split) so that a whole segment can move.
//   - Each moved segment is compacted into its predecessor when it fits, so
//     repeated small moves do not accumulate short segments.
func (b *Buffer) WriteBuffer(source *Buffer, byteCount int64) error {
	if source == b {
		panic(errors.New("illegal move: source and destination are the same buffer"))
	}
	b.checkNoCursor()
	source.checkNoCursor()
	checkOffsetAndCount(source.size, 0, byteCount)

	for byteCount > 0 {
		// Move only a prefix of source's head segment when that is all we
		// need.
		if byteCount < int64(source.head.limit-source.head.pos) {
			var tail *segment
			if b.head != nil {
				tail = b.head.prev
			}
			if tail != nil && tail.owner {
				available := int64(SegmentSize - tail.limit)
				if !tail.shared() {
					available += int64(tail.pos)
				}
				if byteCount <= available {
					// Our tail can absorb the prefix outright.
					source.head.writeTo(tail, int(byteCount))
					source.size -= byteCount
					b.size += byteCount
					return nil
				}
			}
			// The prefix will not fit; carve it into its own segment.
			source.head = source.head.split(source.poolOrDefault(), int(byteCount))
		}

		// Unlink source's head segment and link it onto our tail.
		segmentToMove := source.head
		movedByteCount := int64(segmentToMove.limit - segmentToMove.pos)
		source.head = segmentToMove.pop()
		if b.head == nil {
			b.head = segmentToMove
			segmentToMove.prev = segmentToMove
			segmentToMove.next = segmentToMove
		} else {
			tail := b.head.prev.push(segmentToMove)
			tail.compact(b.poolOrDefault())
		}
		source.size -= movedByteCount
		b.size += movedByteCount
		byteCount -= movedByteCount
	}
	return nil
}

// ReadBuffer moves up to byteCount bytes from b to sink, implementing the
// Source contract between buffers. It returns the number of bytes moved, or
// (0, io.EOF) when the buffer is empty.
func (b *Buffer) ReadBuffer(sink *Buffer, byteCount int64) (int64, error) {
	if byteCount < 0 {
		panic(fmt.Errorf("illegal byte count: %d", byteCount))
	}
	if b.size == 0 {
		return 0, io.EOF
	}
	if byteCount > b.size {
		byteCount = b.size
	}
	if err := sink.WriteBuffer(b, byteCount); err != nil {
		return 0, err
	}
	return byteCount, nil
}

// Read copies bytes into p, consuming them. It implements io.Reader: the
// error is io.EOF only when the buffer is empty.
func (b *Buffer) Read(p []byte) (n int, err error) {
	b.checkNoCursor()
	if len(p) == 0 {
		return 0, nil
	}
	if b.size == 0 {
		return 0, io.EOF
	}
	for n < len(p) && b.head != nil {
		s := b.head
		bytesToRead := min(len(p)-n, s.limit-s.pos)
		copy(p[n:], s.data[s.pos:s.pos+bytesToRead])
		n += bytesToRead
		s.pos += bytesToRead
		b.size -= int64(bytesToRead)
		if s.pos == s.limit {
			b.head = s.pop()
			b.poolOrDefault().recycle(s)
		}
	}
	return n, nil
}

// ReadByte consumes and returns the first byte.
// It implements io.ByteReader.
func (b *Buffer) ReadByte() (byte, error) {
	b.checkNoCursor()
	if b.size == 0 {
		return 0, io.EOF
	}
	s := b.head
	c := s.data[s.pos]
	s.pos++
	b.size--
	if s.pos == s.limit {
		b.head = s.pop()
		b.poolOrDefault().recycle(s)
	}
	return c, nil
}

// ReadBytes consumes byteCount bytes and returns them in a fresh slice.
// The error is io.EOF if the buffer is empty and io.ErrUnexpectedEOF if it
// holds some but not enough bytes; nothing is consumed on error.
func (b *Buffer) ReadBytes(byteCount int64) ([]byte, error) {
	if byteCount < 0 {
		panic(fmt.Errorf("illegal byte count: %d", byteCount))
	}
	if byteCount > b.size {
		if b.size == 0 {
			return nil, io.EOF
		}
		return nil, io.ErrUnexpectedEOF
	}
	out := make([]byte, byteCount)
	if _, err := b.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReadByteString consumes byteCount bytes and returns them as a ByteString.
// The error contract matches ReadBytes.
func (b *Buffer) ReadByteString(byteCount int64) (ByteString, error) {
	data, err := b.ReadBytes(byteCount)
	if err != nil {
		return ByteString{}, err
	}
	return ByteString{data: data}, nil
}

// Skip discards n bytes from the front of the buffer, recycling every
// segment it drains. It consumes as much as is available and returns io.EOF
// when the buffer runs out before n bytes.
func (b *Buffer) Skip(n int64) error {
	b.checkNoCursor()
	if n < 0 {
		panic(fmt.Errorf("illegal byte count: %d", n))
	}
	for n > 0 {
		if b.head == nil {
			return io.EOF
		}
		s := b.head
		toSkip := min(n, int64(s.limit-s.pos))
		s.pos += int(toSkip)
		b.size -= toSkip
		n -= toSkip
		if s.pos == s.limit {
			b.head = s.pop()
			b.poolOrDefault().recycle(s)
		}
	}
	return nil
}

// Reset discards all bytes, returning every non-shared segment to the pool.
func (b *Buffer) Reset() {
	_ = b.Skip(b.size)
}

// Get returns the byte at index i without consuming it.
// It panics if i is out of range.
func (b *Buffer) Get(i int64) byte {
	checkOffsetAndCount(b.size, i, 1)
	s, start := b.seek(i)
	return s.data[s.pos+int(i-start)]
}

// seek returns the segment containing offset together with the absolute
// offset of that segment's first byte. It walks forward from the head or
// backward from the tail, whichever is closer.
//
// The caller must ensure 0 <= offset < size.
func (b *Buffer) seek(offset int64) (s *segment, start int64) {
	s = b.head
	if s == nil {
		panic(errors.New("internal error: seek on an empty buffer"))
	}
	if offset < b.size-offset {
		for start = 0; ; s = s.next {
			end := start + int64(s.limit-s.pos)
			if offset < end {
				return s, start
			}
			start = end
		}
	}
	for start = b.size; start > offset; {
		s = s.prev
		start -= int64(s.limit - s.pos)
	}
	return s, start
}

// IndexOf returns the index of the first occurrence of c in
// [fromIndex, toIndex), or -1 if absent. Nothing is consumed; toIndex is
// clamped to the buffer size.
func (b *Buffer) IndexOf(c byte, fromIndex, toIndex int64) int64 {
	if fromIndex < 0 || toIndex < fromIndex {
		panic(fmt.Errorf("illegal range: fromIndex=%d toIndex=%d", fromIndex, toIndex))
	}
	if toIndex > b.size {
		toIndex = b.size
	}
	if fromIndex >= toIndex {
		return -1
	}
	s, start := b.seek(fromIndex)
	for start < toIndex {
		segFrom := s.pos + int(fromIndex-start)
		segTo := s.pos + int(min(int64(s.limit-s.pos), toIndex-start))
		if i := bytes.IndexByte(s.data[segFrom:segTo], c); i >= 0 {
			return start + int64(segFrom-s.pos) + int64(i)
		}
		start += int64(s.limit - s.pos)
		fromIndex = start
		s = s.next
	}
	return -1
}

// IndexOfBytes returns the index of the first occurrence of needle at or
// after fromIndex, or -1 if absent. Nothing is consumed.
func (b *Buffer) IndexOfBytes(needle ByteString, fromIndex int64) int64 {
	if needle.Size() == 0 {
		panic(errors.New("illegal search for an empty needle"))
	}
	if fromIndex < 0 {
		panic(fmt.Errorf("illegal from index: %d", fromIndex))
	}
	resultLimit := b.size - int64(needle.Size()) + 1
	if fromIndex >= resultLimit {
		return -1
	}

	// Scan for the lead byte segment by segment; confirm full matches with a
	// cross-segment comparison from the hit onward.
	target := needle.data
	s, start := b.seek(fromIndex)
	for start < resultLimit {
		segFrom := s.pos + int(fromIndex-start)
		segTo := s.pos + int(min(int64(s.limit-s.pos), resultLimit-start))
		for pos := segFrom; pos < segTo; {
			i := bytes.IndexByte(s.data[pos:segTo], target[0])
			if i < 0 {
				break
			}
			pos += i
			if b.rangeEqualsSegment(s, pos+1, target[1:]) {
				return start + int64(pos-s.pos)
			}
			pos++
		}
		start += int64(s.limit - s.pos)
		fromIndex = start
		s = s.next
	}
	return -1
}

// rangeEqualsSegment reports whether the bytes starting at segPos within s,
// continuing into following segments, equal target. The caller must ensure
// the range does not extend past the end of the buffer.
func (b *Buffer) rangeEqualsSegment(s *segment, segPos int, target []byte) bool {
	for len(target) > 0 {
		if segPos == s.limit {
			s = s.next
			segPos = s.pos
		}
		n := min(len(target), s.limit-segPos)
		if !bytes.Equal(s.data[segPos:segPos+n], target[:n]) {
			return false
		}
		segPos += n
		target = target[n:]
	}
	return true
}

// RangeEquals reports whether the bytes at [offset, offset+bs.Size()) equal
// bs. It returns false when the range extends past the end of the buffer.
func (b *Buffer) RangeEquals(offset int64, bs ByteString) bool {
	if offset < 0 || offset+int64(bs.Size()) > b.size {
		return false
	}
	if bs.Size() == 0 {
		return true
	}
	s, start := b.seek(offset)
	return b.rangeEqualsSegment(s, s.pos+int(offset-start), bs.data)
}

// CopyTo appends a copy of [offset, offset+byteCount) to target without
// consuming b. The copy is zero-copy: every segment touched is marked shared
// before either buffer can mutate it, and target receives shared views.
//
// Copying a buffer into itself is supported.
func (b *Buffer) CopyTo(target *Buffer, offset, byteCount int64) {
	b.checkNoCursor()
	target.checkNoCursor()
	checkOffsetAndCount(b.size, offset, byteCount)
	if byteCount == 0 {
		return // No-op; empty range.
	}

	target.size += byteCount

	// Skip segments that precede offset.
	s := b.head
	for offset >= int64(s.limit-s.pos) {
		offset -= int64(s.limit - s.pos)
		s = s.next
	}

	for byteCount > 0 {
		c := s.sharedCopy()
		c.pos += int(offset)
		if end := int64(c.pos) + byteCount; end < int64(c.limit) {
			c.limit = int(end)
		}
		if target.head == nil {
			c.prev = c
			c.next = c
			target.head = c
		} else {
			target.head.prev.push(c)
		}
		byteCount -= int64(c.limit - c.pos)
		offset = 0
		s = s.next
	}
}

// Clone returns a new buffer holding the same bytes. No bytes are copied:
// both buffers share every segment copy-on-write and advance independently.
func (b *Buffer) Clone() *Buffer {
	clone := &Buffer{pool: b.pool}
	b.CopyTo(clone, 0, b.size)
	return clone
}

// CompleteSegmentByteCount returns the number of bytes in segments that are
// full or frozen. A buffered writer can emit that many bytes eagerly without
// breaking up a tail segment that is still filling.
func (b *Buffer) CompleteSegmentByteCount() int64 {
	result := b.size
	if result == 0 {
		return 0
	}
	// Omit the tail while it is still writable.
	tail := b.head.prev
	if tail.limit < SegmentSize && tail.owner {
		result -= int64(tail.limit - tail.pos)
	}
	return result
}

// ReadFrom reads from r until io.EOF, appending everything read to the
// buffer. It implements io.ReaderFrom, filling writable tail segments
// directly.
func (b *Buffer) ReadFrom(r io.Reader) (n int64, err error) {
	b.checkNoCursor()
	for {
		nr, rerr := b.readFromOnce(r, SegmentSize)
		n += int64(nr)
		if rerr == io.EOF {
			return n, nil
		}
		if rerr != nil {
			return n, rerr
		}
	}
}

// readFromOnce performs one read from r into the writable tail, returning
// the bytes transferred. A tail segment taken for the read but left empty is
// recycled immediately so the ring never holds empty segments.
func (b *Buffer) readFromOnce(r io.Reader, byteCount int64) (int, error) {
	b.checkNoCursor()
	tail := b.writableSegment(1)
	maxToCopy := SegmentSize - tail.limit
	if byteCount < int64(maxToCopy) {
		maxToCopy = int(byteCount)
	}
	n, err := r.Read(tail.data[tail.limit : tail.limit+maxToCopy])
	if n > 0 {
		tail.limit += n
		b.size += int64(n)
	} else if tail.pos == tail.limit {
		b.head = tail.pop()
		b.poolOrDefault().recycle(tail)
	}
	return n, err
}

// WriteTo drains the whole buffer into w, consuming everything written. It
// implements io.WriterTo. Writes to a net.Conn hand all segments to
// net.Buffers at once so the runtime can use vectored I/O.
func (b *Buffer) WriteTo(w io.Writer) (n int64, err error) {
	b.checkNoCursor()
	if b.size == 0 {
		return 0, nil
	}
	if _, ok := w.(net.Conn); ok {
		return b.writeToVectored(w)
	}
	for b.head != nil {
		s := b.head
		nw, werr := w.Write(s.data[s.pos:s.limit])
		if nw > 0 {
			s.pos += nw
			b.size -= int64(nw)
			n += int64(nw)
		}
		if werr != nil {
			return n, werr
		}
		if s.pos == s.limit {
			b.head = s.pop()
			b.poolOrDefault().recycle(s)
		}
	}
	return n, nil
}

// writeToVectored writes every segment in a single vectored call and then
// consumes whatever was written.
func (b *Buffer) writeToVectored(w io.Writer) (int64, error) {
	slices := make(net.Buffers, 0, 8)
	s := b.head
	for {
		slices = append(slices, s.data[s.pos:s.limit])
		s = s.next
		if s == b.head {
			break
		}
	}
	n, err := slices.WriteTo(w)
	if n > 0 {
		if skipErr := b.Skip(n); skipErr != nil {
			panic(fmt.Errorf("internal error: drained more than buffered: %w", skipErr))
		}
	}
	return n, err
}

// drainTo writes the first byteCount bytes of the buffer into w, consuming
// them segment by segment.
func (b *Buffer) drainTo(w io.Writer, byteCount int64) error {
	b.checkNoCursor()
	checkOffsetAndCount(b.size, 0, byteCount)
	for byteCount > 0 {
		head := b.head
		toWrite := int(min(byteCount, int64(head.limit-head.pos)))
		n, err := w.Write(head.data[head.pos : head.pos+toWrite])
		if n > 0 {
			head.pos += n
			b.size -= int64(n)
			byteCount -= int64(n)
			if head.pos == head.limit {
				b.head = head.pop()
				b.poolOrDefault().recycle(head)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// forRange invokes fn over the byte runs of [offset, offset+byteCount)
// without consuming anything. The slices passed to fn alias segment memory
// and must not be retained or mutated.
func (b *Buffer) forRange(offset, byteCount int64, fn func(p []byte)) {
	checkOffsetAndCount(b.size, offset, byteCount)
	if byteCount == 0 {
		return
	}
	s, start := b.seek(offset)
	for byteCount > 0 {
		segPos := s.pos + int(offset-start)
		n := int(min(byteCount, int64(s.limit-segPos)))
		fn(s.data[segPos : segPos+n])
		byteCount -= int64(n)
		offset += int64(n)
		start = offset
		s = s.next
	}
}

// Flush implements Sink; it is a no-op.
func (b *Buffer) Flush() error {
	return nil
}

// Close implements Source and Sink; it is a no-op.
func (b *Buffer) Close() error {
	return nil
}

// String returns a debug description with a bounded hex preview of the
// contents. Nothing is consumed or shared.
func (b *Buffer) String() string {
	if b.size == 0 {
		return "Buffer(size=0)"
	}
	const maxPreview = 64
	preview := make([]byte, min(b.size, maxPreview))
	i := 0
	for s := b.head; i < len(preview); s = s.next {
		i += copy(preview[i:], s.data[s.pos:s.limit])
	}
	if int64(len(preview)) < b.size {
		return fmt.Sprintf("Buffer(size=%d hex=%x...)", b.size, preview)
	}
	return fmt.Sprintf("Buffer(size=%d hex=%x)", b.size, preview)
}
