package segio

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrPipeClosed is returned when writing to a pipe whose source side has
// been closed: the bytes could never be read.
var ErrPipeClosed = errors.New("pipe source is closed")

// Pipe connects a sink to a source through a bounded in-memory buffer.
// Writes block while the buffer is full; reads block while it is empty.
// Segments move from the writer to the reader without copying.
//
// The sink and source may be used from different goroutines; each side is
// itself single-goroutine. Closing the sink ends the stream: readers drain
// the buffer and then see io.EOF. Closing the source abandons it: writers
// fail with ErrPipeClosed.
type Pipe struct {
	mu   sync.Mutex
	cond sync.Cond

	buf           Buffer
	maxBufferSize int64
	sinkClosed    bool
	sourceClosed  bool

	sink   pipeSink
	source pipeSource
}

// NewPipe returns a pipe buffering up to maxBufferSize bytes between its
// sink and source.
func NewPipe(maxBufferSize int64) *Pipe {
	if maxBufferSize < 1 {
		panic(fmt.Errorf("illegal pipe capacity: %d", maxBufferSize))
	}
	p := &Pipe{maxBufferSize: maxBufferSize}
	p.cond.L = &p.mu
	p.sink.p = p
	p.source.p = p
	return p
}

// Sink returns the write side of the pipe.
func (p *Pipe) Sink() Sink {
	return &p.sink
}

// Source returns the read side of the pipe.
func (p *Pipe) Source() Source {
	return &p.source
}

type pipeSink struct {
	p *Pipe
}

func (s *pipeSink) WriteBuffer(source *Buffer, byteCount int64) error {
	p := s.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sinkClosed {
		return ErrClosed
	}
	for byteCount > 0 {
		if p.sourceClosed {
			return ErrPipeClosed
		}
		space := p.maxBufferSize - p.buf.size
		if space == 0 {
			p.cond.Wait() // Wait for the source side to drain the buffer.
			continue
		}
		toWrite := min(space, byteCount)
		if err := p.buf.WriteBuffer(source, toWrite); err != nil {
			return err
		}
		byteCount -= toWrite
		p.cond.Broadcast() // Wake a blocked reader.
	}
	return nil
}

// Flush reports delivery failure when the reader can no longer drain the
// buffered bytes; the pipe itself has nowhere further to push them.
func (s *pipeSink) Flush() error {
	p := s.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sinkClosed {
		return ErrClosed
	}
	if p.sourceClosed && p.buf.size > 0 {
		return ErrPipeClosed
	}
	return nil
}

func (s *pipeSink) Close() error {
	p := s.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sinkClosed {
		return nil
	}
	if p.sourceClosed && p.buf.size > 0 {
		return ErrPipeClosed
	}
	p.sinkClosed = true
	p.cond.Broadcast() // Wake a blocked reader; it drains and sees EOF.
	return nil
}

type pipeSource struct {
	p *Pipe
}

func (s *pipeSource) ReadBuffer(sink *Buffer, byteCount int64) (int64, error) {
	if byteCount < 0 {
		panic(fmt.Errorf("illegal byte count: %d", byteCount))
	}
	p := s.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sourceClosed {
		return 0, ErrClosed
	}
	if byteCount == 0 {
		return 0, nil
	}
	for p.buf.size == 0 {
		if p.sinkClosed {
			return 0, io.EOF
		}
		p.cond.Wait() // Wait for the sink side to fill the buffer.
	}
	n, err := p.buf.ReadBuffer(sink, byteCount)
	p.cond.Broadcast() // Wake a blocked writer.
	return n, err
}

func (s *pipeSource) Close() error {
	p := s.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sourceClosed {
		return nil
	}
	p.sourceClosed = true
	p.cond.Broadcast() // Wake a blocked writer; it fails with ErrPipeClosed.
	return nil
}
