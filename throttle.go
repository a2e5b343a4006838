package segio

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttler limits the byte throughput of the sources and sinks attached to
// it. All attached streams draw on one shared token bucket, so a throttler
// caps their combined rate; attach separate throttlers to cap streams
// independently.
type Throttler struct {
	limiter *rate.Limiter
}

// NewThrottler returns a throttler allowing bytesPerSecond of sustained
// throughput with bursts of up to burst bytes.
func NewThrottler(bytesPerSecond float64, burst int) *Throttler {
	if bytesPerSecond <= 0 {
		panic(fmt.Errorf("illegal rate: %v bytes per second", bytesPerSecond))
	}
	if burst < 1 {
		panic(fmt.Errorf("illegal burst: %d bytes", burst))
	}
	return &Throttler{limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst)}
}

// take blocks until n bytes of budget are available, returning the granted
// count. Requests are clamped to the burst size so a large transfer waits
// per chunk rather than forever.
func (t *Throttler) take(ctx context.Context, n int64) (int64, error) {
	n = min(n, int64(t.limiter.Burst()))
	if err := t.limiter.WaitN(ctx, int(n)); err != nil {
		return 0, err
	}
	return n, nil
}

// Source returns a source that reads from src at the throttled rate. The
// context cancels waits for budget; it should span the stream's lifetime.
func (t *Throttler) Source(ctx context.Context, src Source) Source {
	return &throttledSource{ctx: ctx, t: t, src: src}
}

// Sink returns a sink that writes to sink at the throttled rate. The
// context cancels waits for budget; it should span the stream's lifetime.
func (t *Throttler) Sink(ctx context.Context, sink Sink) Sink {
	return &throttledSink{ctx: ctx, t: t, sink: sink}
}

type throttledSource struct {
	ctx context.Context
	t   *Throttler
	src Source
}

func (s *throttledSource) ReadBuffer(sink *Buffer, byteCount int64) (int64, error) {
	if byteCount == 0 {
		return 0, nil
	}
	allowed, err := s.t.take(s.ctx, byteCount)
	if err != nil {
		return 0, err
	}
	return s.src.ReadBuffer(sink, allowed)
}

func (s *throttledSource) Close() error {
	return s.src.Close()
}

type throttledSink struct {
	ctx  context.Context
	t    *Throttler
	sink Sink
}

func (s *throttledSink) WriteBuffer(source *Buffer, byteCount int64) error {
	for byteCount > 0 {
		allowed, err := s.t.take(s.ctx, byteCount)
		if err != nil {
			return err
		}
		if err := s.sink.WriteBuffer(source, allowed); err != nil {
			return err
		}
		byteCount -= allowed
	}
	return nil
}

func (s *throttledSink) Flush() error {
	return s.sink.Flush()
}

func (s *throttledSink) Close() error {
	return s.sink.Close()
}
