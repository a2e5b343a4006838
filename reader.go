package segio

import (
	"errors"
	"fmt"
	"io"
)

// maxConsecutiveEmptyReads bounds retries against a source that keeps
// returning no bytes and no error, matching bufio's tolerance.
const maxConsecutiveEmptyReads = 100

// Reader buffers a Source and answers reads from the buffer, pulling a
// segment at a time from the source only when the buffer runs dry. Probing
// operations (Request, IndexOf, Select, Peek) read ahead without consuming,
// so callers can branch on upcoming bytes before committing to them.
//
// Reader itself implements Source, io.Reader, and io.ByteReader.
type Reader struct {
	src    Source
	buf    *Buffer
	closed bool
}

// NewReader returns a reader buffering src.
func NewReader(src Source) *Reader {
	if src == nil {
		panic(errors.New("illegal reader: nil source"))
	}
	return &Reader{src: src, buf: NewBuffer()}
}

// Buffered returns the reader's internal buffer: bytes read from the source
// but not yet consumed. Mutating it mid-stream is visible to the reader.
func (r *Reader) Buffered() *Buffer {
	return r.buf
}

// fill reads one batch from the source into the buffer. It returns false at
// EOF, and io.ErrNoProgress when the source repeatedly returns nothing.
func (r *Reader) fill() (bool, error) {
	for i := 0; i < maxConsecutiveEmptyReads; i++ {
		n, err := r.src.ReadBuffer(r.buf, SegmentSize)
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, io.ErrNoProgress
}

// ReadBuffer moves up to byteCount buffered bytes into sink, filling the
// buffer from the source first when it is empty. It implements Source.
func (r *Reader) ReadBuffer(sink *Buffer, byteCount int64) (int64, error) {
	if byteCount < 0 {
		panic(fmt.Errorf("illegal byte count: %d", byteCount))
	}
	if r.closed {
		return 0, ErrClosed
	}
	if r.buf.size == 0 {
		if byteCount == 0 {
			return 0, nil
		}
		ok, err := r.fill()
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, io.EOF
		}
	}
	return r.buf.ReadBuffer(sink, min(byteCount, r.buf.size))
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if r.buf.size == 0 {
		ok, err := r.fill()
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, io.EOF
		}
	}
	return r.buf.Read(p)
}

// ReadByte consumes and returns one byte.
// It implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.Require(1); err != nil {
		return 0, err
	}
	return r.buf.ReadByte()
}

// Request reads until the buffer holds at least byteCount bytes, reporting
// false when the source runs out first. Nothing is consumed.
func (r *Reader) Request(byteCount int64) (bool, error) {
	if byteCount < 0 {
		panic(fmt.Errorf("illegal byte count: %d", byteCount))
	}
	if r.closed {
		return false, ErrClosed
	}
	for r.buf.size < byteCount {
		ok, err := r.fill()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Require reads until the buffer holds at least byteCount bytes. It returns
// io.EOF if the source ends with nothing buffered and io.ErrUnexpectedEOF
// if it ends after a partial fill; either way nothing is consumed.
func (r *Reader) Require(byteCount int64) error {
	ok, err := r.Request(byteCount)
	if err != nil {
		return err
	}
	if !ok {
		if r.buf.size == 0 {
			return io.EOF
		}
		return io.ErrUnexpectedEOF
	}
	return nil
}

// ReadFull fills p with exactly len(p) bytes. On io.EOF or
// io.ErrUnexpectedEOF nothing is consumed; partial reads stay buffered.
func (r *Reader) ReadFull(p []byte) error {
	if err := r.Require(int64(len(p))); err != nil {
		return err
	}
	_, err := r.buf.Read(p)
	return err
}

// ReadBytes consumes byteCount bytes and returns them in a fresh slice,
// reading from the source as needed. The error contract matches Require.
func (r *Reader) ReadBytes(byteCount int64) ([]byte, error) {
	if err := r.Require(byteCount); err != nil {
		return nil, err
	}
	return r.buf.ReadBytes(byteCount)
}

// ReadByteString consumes byteCount bytes and returns them as a ByteString,
// reading from the source as needed. The error contract matches Require.
func (r *Reader) ReadByteString(byteCount int64) (ByteString, error) {
	if err := r.Require(byteCount); err != nil {
		return ByteString{}, err
	}
	return r.buf.ReadByteString(byteCount)
}

// ReadAll reads the source to exhaustion and returns everything as one
// slice. Like io.ReadAll it returns an empty slice and a nil error at
// immediate EOF.
func (r *Reader) ReadAll() ([]byte, error) {
	if r.closed {
		return nil, ErrClosed
	}
	for {
		ok, err := r.fill()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}
	return r.buf.ReadBytes(r.buf.size)
}

// ReadAllTo moves the rest of the stream into sink and returns the number
// of bytes moved. Complete segments are handed over as they fill, so the
// transfer never buffers more than one partial segment ahead of the sink.
func (r *Reader) ReadAllTo(sink Sink) (int64, error) {
	if r.closed {
		return 0, ErrClosed
	}
	var total int64
	for {
		ok, err := r.fill()
		if err != nil {
			return total, err
		}
		if !ok {
			break
		}
		if emit := r.buf.CompleteSegmentByteCount(); emit > 0 {
			before := r.buf.size
			err := sink.WriteBuffer(r.buf, emit)
			total += before - r.buf.size
			if err != nil {
				return total, err
			}
		}
	}
	if r.buf.size > 0 {
		before := r.buf.size
		err := sink.WriteBuffer(r.buf, before)
		total += before - r.buf.size
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Skip discards byteCount bytes, reading from the source as needed. It
// returns io.EOF when the source runs out first; bytes already discarded
// stay discarded.
func (r *Reader) Skip(byteCount int64) error {
	if byteCount < 0 {
		panic(fmt.Errorf("illegal byte count: %d", byteCount))
	}
	if r.closed {
		return ErrClosed
	}
	for byteCount > 0 {
		if r.buf.size == 0 {
			ok, err := r.fill()
			if err != nil {
				return err
			}
			if !ok {
				return io.EOF
			}
		}
		toSkip := min(byteCount, r.buf.size)
		if err := r.buf.Skip(toSkip); err != nil {
			return err
		}
		byteCount -= toSkip
	}
	return nil
}

// Exhausted reports whether the source has no more bytes. It may read
// ahead; nothing is consumed.
func (r *Reader) Exhausted() (bool, error) {
	if r.closed {
		return false, ErrClosed
	}
	if r.buf.size > 0 {
		return false, nil
	}
	ok, err := r.fill()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// IndexOf returns the stream position of the first occurrence of c in
// [fromIndex, toIndex), reading ahead as needed, or -1 if the range or the
// source is exhausted first. Nothing is consumed; positions are relative to
// the current read position. Pass math.MaxInt64 as toIndex to search to the
// end of the stream.
func (r *Reader) IndexOf(c byte, fromIndex, toIndex int64) (int64, error) {
	if fromIndex < 0 || toIndex < fromIndex {
		panic(fmt.Errorf("illegal range: fromIndex=%d toIndex=%d", fromIndex, toIndex))
	}
	if r.closed {
		return -1, ErrClosed
	}
	for fromIndex < toIndex {
		if result := r.buf.IndexOf(c, fromIndex, toIndex); result != -1 {
			return result, nil
		}

		// Not buffered yet. Resume the search where the buffer ended after
		// the next fill.
		lastBufferSize := r.buf.size
		if lastBufferSize >= toIndex {
			return -1, nil
		}
		ok, err := r.fill()
		if err != nil {
			return -1, err
		}
		if !ok {
			return -1, nil
		}
		fromIndex = max(fromIndex, lastBufferSize)
	}
	return -1, nil
}

// Select matches the stream's leading bytes against opts, reading ahead as
// much as the candidates require, and consumes the selected option. It
// returns the index of the selected option, or -1 without consuming
// anything when no option matches.
func (r *Reader) Select(opts *Options) (int, error) {
	if r.closed {
		return -1, ErrClosed
	}
	for {
		index := r.buf.selectPrefix(opts, true)
		switch index {
		case -1:
			return -1, nil
		case selectTruncated:
			// The buffered bytes are a prefix of a longer option; read more
			// and retry. At EOF, settle for the best complete match.
			ok, err := r.fill()
			if err != nil {
				return -1, err
			}
			if ok {
				continue
			}
			index = r.buf.selectPrefix(opts, false)
			if index == -1 {
				return -1, nil
			}
		}
		matched := int64(opts.candidates[index].Size())
		if err := r.buf.Skip(matched); err != nil {
			panic(fmt.Errorf("internal error: matched option exceeds buffer: %w", err))
		}
		return index, nil
	}
}

// Peek returns a reader over the upcoming bytes that consumes nothing from
// this reader. Using this reader again invalidates the peek: the next read
// through the peeked reader panics.
func (r *Reader) Peek() *Reader {
	return NewReader(&peekSource{upstream: r, buf: r.buf})
}

// Close closes the source and discards buffered bytes. It is idempotent.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.src.Close()
	r.buf.Reset()
	return err
}

// peekSource copies bytes out of an upstream reader's buffer without
// consuming them, requesting more from the upstream as the peek advances.
// It anchors on the upstream buffer's head segment and position; any
// upstream use moves that anchor and invalidates the peek.
type peekSource struct {
	upstream *Reader
	buf      *Buffer

	expectedSegment *segment
	expectedPos     int

	pos    int64
	closed bool
}

func (p *peekSource) ReadBuffer(sink *Buffer, byteCount int64) (int64, error) {
	if byteCount < 0 {
		panic(fmt.Errorf("illegal byte count: %d", byteCount))
	}
	if p.closed {
		return 0, ErrClosed
	}
	if p.expectedSegment != nil &&
		(p.expectedSegment != p.buf.head || p.expectedPos != p.buf.head.pos) {
		panic(errors.New("illegal peek: upstream reader was used after the peek began"))
	}
	if byteCount == 0 {
		return 0, nil
	}
	ok, err := p.upstream.Request(p.pos + 1)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, io.EOF
	}
	if p.expectedSegment == nil && p.buf.head != nil {
		// Anchor only once the upstream buffer holds data.
		p.expectedSegment = p.buf.head
		p.expectedPos = p.buf.head.pos
	}
	toCopy := min(byteCount, p.buf.size-p.pos)
	p.buf.CopyTo(sink, p.pos, toCopy)
	p.pos += toCopy
	return toCopy, nil
}

func (p *peekSource) Close() error {
	p.closed = true
	return nil
}
