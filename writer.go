package segio

import (
	"errors"
	"io"
)

// Writer buffers writes ahead of a Sink. Small writes coalesce in the
// buffer; whenever a segment fills, EmitCompleteSegments hands it to the
// sink whole, so the sink sees large writes without the writer ever copying
// or splitting a partially filled tail.
//
// Writer itself implements Sink, io.Writer, io.ByteWriter, and
// io.StringWriter.
type Writer struct {
	sink   Sink
	buf    *Buffer
	closed bool
}

// NewWriter returns a writer buffering writes to sink.
func NewWriter(sink Sink) *Writer {
	if sink == nil {
		panic(errors.New("illegal writer: nil sink"))
	}
	return &Writer{sink: sink, buf: NewBuffer()}
}

// Buffered returns the writer's internal buffer: bytes written but not yet
// handed to the sink.
func (w *Writer) Buffered() *Buffer {
	return w.buf
}

// Write appends p to the buffer and emits complete segments. The count is
// len(p) even when emitting fails; the bytes stay buffered.
// It implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	_, _ = w.buf.Write(p)
	return len(p), w.EmitCompleteSegments()
}

// WriteByte appends one byte.
// It implements io.ByteWriter.
func (w *Writer) WriteByte(c byte) error {
	if w.closed {
		return ErrClosed
	}
	_ = w.buf.WriteByte(c)
	return w.EmitCompleteSegments()
}

// WriteString appends the bytes of s.
// It implements io.StringWriter.
func (w *Writer) WriteString(s string) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	_, _ = w.buf.WriteString(s)
	return len(s), w.EmitCompleteSegments()
}

// WriteByteString appends the contents of bs.
func (w *Writer) WriteByteString(bs ByteString) error {
	if w.closed {
		return ErrClosed
	}
	w.buf.WriteByteString(bs)
	return w.EmitCompleteSegments()
}

// WriteBuffer moves byteCount bytes from the front of source into the
// writer. It implements Sink.
func (w *Writer) WriteBuffer(source *Buffer, byteCount int64) error {
	if w.closed {
		return ErrClosed
	}
	if err := w.buf.WriteBuffer(source, byteCount); err != nil {
		return err
	}
	return w.EmitCompleteSegments()
}

// ReadAllFrom reads src to exhaustion, writing everything read. It returns
// the number of bytes moved.
func (w *Writer) ReadAllFrom(src Source) (int64, error) {
	if w.closed {
		return 0, ErrClosed
	}
	var total int64
	for {
		n, err := src.ReadBuffer(w.buf, SegmentSize)
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		total += n
		if err := w.EmitCompleteSegments(); err != nil {
			return total, err
		}
	}
}

// EmitCompleteSegments hands every full or frozen segment to the sink,
// keeping a partially filled tail buffered for later writes to top up.
func (w *Writer) EmitCompleteSegments() error {
	if w.closed {
		return ErrClosed
	}
	byteCount := w.buf.CompleteSegmentByteCount()
	if byteCount == 0 {
		return nil // No-op; the tail is still filling.
	}
	return w.sink.WriteBuffer(w.buf, byteCount)
}

// Emit hands all buffered bytes to the sink, including a partial tail. It
// does not flush the sink.
func (w *Writer) Emit() error {
	if w.closed {
		return ErrClosed
	}
	if w.buf.size == 0 {
		return nil
	}
	return w.sink.WriteBuffer(w.buf, w.buf.size)
}

// Flush emits all buffered bytes and flushes the sink.
// It implements Sink.
func (w *Writer) Flush() error {
	if w.closed {
		return ErrClosed
	}
	if w.buf.size > 0 {
		if err := w.sink.WriteBuffer(w.buf, w.buf.size); err != nil {
			return err
		}
	}
	return w.sink.Flush()
}

// Close emits any buffered bytes, then closes the sink. The first error
// wins; the sink is closed even when the final emit fails. It is
// idempotent.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var firstErr error
	if w.buf.size > 0 {
		firstErr = w.sink.WriteBuffer(w.buf, w.buf.size)
	}
	if err := w.sink.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
