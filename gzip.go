package segio

import (
	"fmt"

	"github.com/klauspost/compress/gzip"
)

// GzipSource decompresses a gzip stream as it is read.
type GzipSource struct {
	source *Reader
	zr     *gzip.Reader
	closed bool
}

// NewGzipSource returns a source yielding the decompressed contents of src.
// The gzip header is read from src immediately.
func NewGzipSource(src Source) (*GzipSource, error) {
	r := NewReader(src)
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	return &GzipSource{source: r, zr: zr}, nil
}

func (g *GzipSource) ReadBuffer(sink *Buffer, byteCount int64) (int64, error) {
	if byteCount < 0 {
		panic(fmt.Errorf("illegal byte count: %d", byteCount))
	}
	if g.closed {
		return 0, ErrClosed
	}
	if byteCount == 0 {
		return 0, nil
	}
	n, err := sink.readFromOnce(g.zr, byteCount)
	if n > 0 {
		// The decompressor's terminal error is sticky; deliver it next call.
		return int64(n), nil
	}
	return 0, err
}

// Close closes the decompressor and then the underlying source. The first
// error wins; both are closed regardless.
func (g *GzipSource) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	err := g.zr.Close()
	if cerr := g.source.Close(); err == nil {
		err = cerr
	}
	return err
}

// GzipSink compresses everything written to it into a gzip stream.
type GzipSink struct {
	writer *Writer
	zw     *gzip.Writer
	closed bool
}

// NewGzipSink returns a sink that gzip-compresses into sink at the default
// compression level.
func NewGzipSink(sink Sink) *GzipSink {
	w := NewWriter(sink)
	return &GzipSink{writer: w, zw: gzip.NewWriter(w)}
}

// NewGzipSinkLevel is like NewGzipSink with an explicit compression level.
func NewGzipSinkLevel(sink Sink, level int) (*GzipSink, error) {
	w := NewWriter(sink)
	zw, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return nil, fmt.Errorf("gzip level: %w", err)
	}
	return &GzipSink{writer: w, zw: zw}, nil
}

func (g *GzipSink) WriteBuffer(source *Buffer, byteCount int64) error {
	if g.closed {
		return ErrClosed
	}
	return source.drainTo(g.zw, byteCount)
}

// Flush flushes the compressor and then the underlying sink. Flushing gzip
// emits an empty deflate block, which hurts the compression ratio when done
// often.
func (g *GzipSink) Flush() error {
	if g.closed {
		return ErrClosed
	}
	if err := g.zw.Flush(); err != nil {
		return err
	}
	return g.writer.Flush()
}

// Close finishes the gzip stream, writing its trailer, and closes the
// underlying sink. The first error wins; both are closed regardless.
func (g *GzipSink) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	err := g.zw.Close()
	if cerr := g.writer.Close(); err == nil {
		err = cerr
	}
	return err
}
