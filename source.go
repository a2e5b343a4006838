package segio

import (
	"errors"
	"fmt"
	"io"
)

// ErrClosed is returned by operations on a closed source, sink, reader, or
// writer.
var ErrClosed = errors.New("already closed")

// Source supplies a stream of bytes. Unlike io.Reader it transfers into a
// Buffer, so an implementation can move whole segments without copying and
// a caller can buffer as much as it likes before consuming anything.
//
// Buffer implements Source; FromReader adapts any io.Reader.
type Source interface {
	// ReadBuffer moves up to byteCount bytes from the source to the end of
	// sink. It returns the number of bytes moved, or (0, io.EOF) when the
	// source is exhausted.
	ReadBuffer(sink *Buffer, byteCount int64) (int64, error)

	// Close releases resources held by the source. Reading a closed source
	// is an error.
	Close() error
}

// Sink receives a stream of bytes. Unlike io.Writer it transfers out of a
// Buffer, so an implementation can take whole segments without copying.
//
// Buffer implements Sink; FromWriter adapts any io.Writer.
type Sink interface {
	// WriteBuffer moves byteCount bytes from the front of source into the
	// sink.
	WriteBuffer(source *Buffer, byteCount int64) error

	// Flush pushes all buffered bytes to their final destination.
	Flush() error

	// Close flushes nothing but releases resources held by the sink.
	// Writing to a closed sink is an error.
	Close() error
}

// FromReader returns a Source that pulls bytes from r one segment at a
// time. Closing the source closes r when it implements io.Closer.
func FromReader(r io.Reader) Source {
	return &readerSource{r: r}
}

type readerSource struct {
	r      io.Reader
	err    error // sticky terminal error, delivered once read bytes drain
	closed bool
}

func (s *readerSource) ReadBuffer(sink *Buffer, byteCount int64) (int64, error) {
	if byteCount < 0 {
		panic(fmt.Errorf("illegal byte count: %d", byteCount))
	}
	if s.closed {
		return 0, ErrClosed
	}
	if s.err != nil {
		return 0, s.err
	}
	if byteCount == 0 {
		return 0, nil
	}
	n, err := sink.readFromOnce(s.r, byteCount)
	if n > 0 && err != nil {
		// Deliver the bytes now and the terminal error on the next call.
		s.err = err
		err = nil
	}
	return int64(n), err
}

func (s *readerSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// FromWriter returns a Sink that pushes bytes to w segment by segment.
// Flush forwards to w when it implements Flush() error; closing the sink
// closes w when it implements io.Closer.
func FromWriter(w io.Writer) Sink {
	return &writerSink{w: w}
}

type writerSink struct {
	w      io.Writer
	closed bool
}

func (s *writerSink) WriteBuffer(source *Buffer, byteCount int64) error {
	if s.closed {
		return ErrClosed
	}
	return source.drainTo(s.w, byteCount)
}

func (s *writerSink) Flush() error {
	if s.closed {
		return ErrClosed
	}
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (s *writerSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
