package segio

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// LZ4Source decompresses an lz4 frame stream as it is read.
type LZ4Source struct {
	source *Reader
	zr     *lz4.Reader
	closed bool
}

// NewLZ4Source returns a source yielding the decompressed contents of src.
func NewLZ4Source(src Source) *LZ4Source {
	r := NewReader(src)
	return &LZ4Source{source: r, zr: lz4.NewReader(r)}
}

func (l *LZ4Source) ReadBuffer(sink *Buffer, byteCount int64) (int64, error) {
	if byteCount < 0 {
		panic(fmt.Errorf("illegal byte count: %d", byteCount))
	}
	if l.closed {
		return 0, ErrClosed
	}
	if byteCount == 0 {
		return 0, nil
	}
	n, err := sink.readFromOnce(l.zr, byteCount)
	if n > 0 {
		// The decompressor's terminal error is sticky; deliver it next call.
		return int64(n), nil
	}
	return 0, err
}

// Close closes the underlying source; the lz4 decompressor holds no
// resources of its own.
func (l *LZ4Source) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.source.Close()
}

// LZ4Sink compresses everything written to it into an lz4 frame stream.
type LZ4Sink struct {
	writer *Writer
	zw     *lz4.Writer
	closed bool
}

// NewLZ4Sink returns a sink that lz4-compresses into sink.
func NewLZ4Sink(sink Sink) *LZ4Sink {
	w := NewWriter(sink)
	return &LZ4Sink{writer: w, zw: lz4.NewWriter(w)}
}

func (l *LZ4Sink) WriteBuffer(source *Buffer, byteCount int64) error {
	if l.closed {
		return ErrClosed
	}
	return source.drainTo(l.zw, byteCount)
}

// Flush flushes buffered blocks through the compressor and then the
// underlying sink.
func (l *LZ4Sink) Flush() error {
	if l.closed {
		return ErrClosed
	}
	if err := l.zw.Flush(); err != nil {
		return err
	}
	return l.writer.Flush()
}

// Close finishes the lz4 frame and closes the underlying sink. The first
// error wins; both are closed regardless.
func (l *LZ4Sink) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	err := l.zw.Close()
	if cerr := l.writer.Close(); err == nil {
		err = cerr
	}
	return err
}
