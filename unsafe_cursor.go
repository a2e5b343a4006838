package segio

import (
	"errors"
	"fmt"
)

// UnsafeCursor exposes a buffer's segment memory for direct reads and
// writes. It is unsafe in the sense that it bypasses the Buffer API's
// copy-on-write guarantees: the caller must follow the cursor protocol
// instead of the type system.
//
// While a cursor is open its buffer rejects every other operation, so a
// buffer can never be mutated out from under a cursor. Seek positions the
// cursor on the segment containing an offset and publishes that segment's
// bytes as Data[Start:End]; Next advances to the following run. A
// read/write cursor unshares each segment it lands on, so writing through
// Data never corrupts snapshots or clones.
//
// Close detaches the cursor and reopens the buffer. A cursor is a
// single-goroutine object, like the buffer it reads.
type UnsafeCursor struct {
	Buffer    *Buffer
	ReadWrite bool

	// Offset is the absolute position of Data[Start], or -1 before the first
	// seek and after a seek past the end.
	Offset int64

	// Data is the current segment's backing array; the readable range is
	// Data[Start:End]. Writes outside that range are undefined even on a
	// read/write cursor.
	Data  []byte
	Start int
	End   int

	seg *segment
}

// ReadUnsafe opens a read-only cursor over the buffer's segments.
// It panics if a cursor is already open on this buffer.
func (b *Buffer) ReadUnsafe() *UnsafeCursor {
	return b.acquireCursor(false)
}

// ReadAndWriteUnsafe opens a read/write cursor over the buffer's segments.
// It panics if a cursor is already open on this buffer.
func (b *Buffer) ReadAndWriteUnsafe() *UnsafeCursor {
	return b.acquireCursor(true)
}

func (b *Buffer) acquireCursor(readWrite bool) *UnsafeCursor {
	if b.cursor != nil {
		panic(errors.New("illegal cursor acquisition: a cursor is already open on this buffer"))
	}
	c := &UnsafeCursor{
		Buffer:    b,
		ReadWrite: readWrite,
		Offset:    -1,
		Start:     -1,
		End:       -1,
	}
	b.cursor = c
	return c
}

func (c *UnsafeCursor) checkAttached() {
	if c.Buffer == nil {
		panic(errors.New("illegal use of a closed cursor"))
	}
}

// Next advances the cursor to the next run of bytes, returning its length,
// or -1 when the cursor reaches the end of the buffer.
func (c *UnsafeCursor) Next() int {
	c.checkAttached()
	if c.Offset == c.Buffer.size {
		panic(errors.New("illegal cursor advance: no more bytes"))
	}
	if c.Offset == -1 {
		return c.Seek(0)
	}
	return c.Seek(c.Offset + int64(c.End-c.Start))
}

// Seek positions the cursor on the segment containing offset and returns the
// number of readable bytes in Data[Start:End], or -1 when offset is -1 or
// the buffer's size. Seeking walks from the current segment, the head, or
// the tail, whichever is closest.
func (c *UnsafeCursor) Seek(offset int64) int {
	c.checkAttached()
	b := c.Buffer
	if offset < -1 || offset > b.size {
		panic(fmt.Errorf("illegal seek: offset=%d size=%d", offset, b.size))
	}
	if offset == -1 || offset == b.size {
		c.seg = nil
		c.Offset = offset
		c.Data = nil
		c.Start = -1
		c.End = -1
		return -1
	}

	// Narrow the search range using the current position before choosing the
	// cheaper walk direction.
	minOffset, maxOffset := int64(0), b.size
	head, tail := b.head, b.head
	if c.seg != nil {
		segmentOffset := c.Offset - int64(c.Start-c.seg.pos)
		if segmentOffset > offset {
			maxOffset = segmentOffset
			tail = c.seg
		} else {
			minOffset = segmentOffset
			head = c.seg
		}
	}

	var next *segment
	var nextOffset int64
	if maxOffset-offset > offset-minOffset {
		// Walk forward from the closer beginning.
		next = head
		nextOffset = minOffset
		for offset >= nextOffset+int64(next.limit-next.pos) {
			nextOffset += int64(next.limit - next.pos)
			next = next.next
		}
	} else {
		// Walk backward from the closer end.
		next = tail
		nextOffset = maxOffset
		for nextOffset > offset {
			next = next.prev
			nextOffset -= int64(next.limit - next.pos)
		}
	}

	// A read/write cursor writes through Data, so the segment it lands on
	// must be exclusively ours.
	if c.ReadWrite && next.shared() {
		unshared := next.unsharedCopy(b.poolOrDefault())
		if b.head == next {
			b.head = unshared
		}
		next = next.push(unshared)
		next.prev.pop()
	}

	c.seg = next
	c.Offset = offset
	c.Data = next.data
	c.Start = next.pos + int(offset-nextOffset)
	c.End = next.limit
	return c.End - c.Start
}

// ResizeBuffer grows or shrinks the buffer to newSize, returning the
// previous size. Growth appends writable bytes with undefined contents and
// seeks the cursor to the first of them; shrinking truncates the tail and
// seeks the cursor to the new end.
func (c *UnsafeCursor) ResizeBuffer(newSize int64) int64 {
	c.checkAttached()
	if !c.ReadWrite {
		panic(errors.New("illegal resize with a read-only cursor"))
	}
	b := c.Buffer
	oldSize := b.size

	if newSize <= oldSize {
		if newSize < 0 {
			panic(fmt.Errorf("illegal size: %d", newSize))
		}
		// Drop whole tail segments, then trim the last one.
		for bytesToSubtract := oldSize - newSize; bytesToSubtract > 0; {
			tail := b.head.prev
			tailSize := int64(tail.limit - tail.pos)
			if tailSize <= bytesToSubtract {
				b.head = tail.pop()
				b.poolOrDefault().recycle(tail)
				bytesToSubtract -= tailSize
			} else {
				tail.limit -= int(bytesToSubtract)
				break
			}
		}
		c.seg = nil
		c.Offset = newSize
		c.Data = nil
		c.Start = -1
		c.End = -1
	} else {
		needsToSeek := true
		for bytesToAdd := newSize - oldSize; bytesToAdd > 0; {
			tail := b.writableSegment(1)
			segmentBytesToAdd := int(min(bytesToAdd, int64(SegmentSize-tail.limit)))
			tail.limit += segmentBytesToAdd
			bytesToAdd -= int64(segmentBytesToAdd)

			// Seek to the first appended byte.
			if needsToSeek {
				c.seg = tail
				c.Offset = oldSize
				c.Data = tail.data
				c.Start = tail.limit - segmentBytesToAdd
				c.End = tail.limit
				needsToSeek = false
			}
		}
	}

	b.size = newSize
	return oldSize
}

// ExpandBuffer grows the buffer by at least minByteCount writable bytes with
// undefined contents, seeks the cursor to the first of them, and returns the
// number of bytes added. The whole tail segment is claimed, so the growth
// may exceed minByteCount; use ResizeBuffer afterward to trim bytes that
// were not written.
func (c *UnsafeCursor) ExpandBuffer(minByteCount int) int64 {
	c.checkAttached()
	if minByteCount <= 0 || minByteCount > SegmentSize {
		panic(fmt.Errorf("illegal minimum byte count: %d", minByteCount))
	}
	if !c.ReadWrite {
		panic(errors.New("illegal expand with a read-only cursor"))
	}
	b := c.Buffer
	oldSize := b.size

	tail := b.writableSegment(minByteCount)
	result := SegmentSize - tail.limit
	tail.limit = SegmentSize
	b.size = oldSize + int64(result)

	c.seg = tail
	c.Offset = oldSize
	c.Data = tail.data
	c.Start = SegmentSize - result
	c.End = SegmentSize
	return int64(result)
}

// Close detaches the cursor and reopens the buffer for other operations.
func (c *UnsafeCursor) Close() error {
	c.checkAttached()
	c.Buffer.cursor = nil
	c.Buffer = nil
	c.seg = nil
	c.Offset = -1
	c.Data = nil
	c.Start = -1
	c.End = -1
	return nil
}
