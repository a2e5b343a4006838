package segio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

const (
	KiB = 1024
	MiB = KiB * KiB

	// DefaultPoolMaxBytes caps how many free bytes the default pool retains.
	DefaultPoolMaxBytes = 64 * KiB
)

// PoolConfig holds the tunables of a SegmentPool.
type PoolConfig struct {
	// MaxBytes is the maximum number of bytes the pool retains across free
	// segments. Recycles beyond the cap drop the segment for the GC to
	// reclaim. A value of 0 disables pooling: every take allocates.
	MaxBytes int

	// Logger receives debug-level pool events. A nil logger discards them.
	Logger *slog.Logger
}

func (c PoolConfig) Validate() error {
	var errs []error
	if c.MaxBytes < 0 {
		errs = append(errs, fmt.Errorf("invalid config: MaxBytes must be >= 0, got %d", c.MaxBytes))
	}
	if c.MaxBytes%SegmentSize != 0 {
		errs = append(
			errs,
			fmt.Errorf("invalid config: MaxBytes %d must be a multiple of the segment size %d", c.MaxBytes, SegmentSize),
		)
	}
	return errors.Join(errs...)
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxBytes: DefaultPoolMaxBytes, // Retain up to 8 free segments.
	}
}

// SegmentPool is a bounded free list of segments, shared by buffers to avoid
// allocating and zero-filling a backing array on every take.
//
// One pool typically serves many buffers; take and recycle are safe for
// concurrent use and hold the pool lock only to relink the free list.
// Buffers constructed without an explicit pool use the process-wide default.
type SegmentPool struct {
	mu        sync.Mutex
	free      *segment // Free list head, linked through next.
	byteCount int      // Bytes retained across the free list.

	maxBytes int
	logger   *slog.Logger
}

// defaultPool serves buffers constructed without an explicit pool.
var defaultPool = NewSegmentPool(DefaultPoolConfig())

// NewSegmentPool creates a new, empty segment pool.
// It panics if the configuration is invalid.
func NewSegmentPool(config PoolConfig) *SegmentPool {
	if err := config.Validate(); err != nil {
		panic(err)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SegmentPool{
		maxBytes: config.MaxBytes,
		logger:   logger,
	}
}

// take returns a cleared, exclusively owned segment, reusing a free one when
// available.
func (p *SegmentPool) take() *segment {
	p.mu.Lock()
	if s := p.free; s != nil {
		p.free = s.next
		s.next = nil
		p.byteCount -= SegmentSize
		p.mu.Unlock()
		return s
	}
	p.mu.Unlock()

	// Allocate outside the lock.
	return newSegment()
}

// recycle returns a segment to the free list.
//
// Shared segments are never pooled: other views still reference their bytes,
// so the segment is dropped and the backing array stays alive until the GC
// collects the last view. Segments beyond the byte cap are dropped as well.
func (p *SegmentPool) recycle(s *segment) {
	if s.next != nil || s.prev != nil {
		panic(errors.New("illegal recycle of a segment that is still linked"))
	}
	if s.shared() {
		return // No-op; the backing array is still referenced elsewhere.
	}
	s.pos = 0
	s.limit = 0

	p.mu.Lock()
	if p.byteCount+SegmentSize > p.maxBytes {
		p.mu.Unlock()
		p.logger.Debug("segment pool is full, dropping segment", "maxBytes", p.maxBytes)
		return
	}
	p.byteCount += SegmentSize
	s.next = p.free
	p.free = s
	p.mu.Unlock()
}

// freeByteCount returns the number of bytes retained across free segments.
// It is primarily intended as a helper method in tests.
func (p *SegmentPool) freeByteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byteCount
}
