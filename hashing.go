package segio

import (
	"hash"

	"github.com/cespare/xxhash/v2"
)

// HashingSource feeds every byte it delivers into a running hash. The
// stream is unchanged; read the digest after the source is exhausted.
type HashingSource struct {
	source Source
	hash   hash.Hash
}

// NewHashingSource returns a source that mirrors src while hashing it
// with h.
func NewHashingSource(src Source, h hash.Hash) *HashingSource {
	return &HashingSource{source: src, hash: h}
}

// NewXXHashSource returns a source hashing src with xxHash64, along with
// the digest to read when done.
func NewXXHashSource(src Source) (*HashingSource, *xxhash.Digest) {
	d := xxhash.New()
	return NewHashingSource(src, d), d
}

// Hash returns the running hash.
func (h *HashingSource) Hash() hash.Hash {
	return h.hash
}

func (h *HashingSource) ReadBuffer(sink *Buffer, byteCount int64) (int64, error) {
	n, err := h.source.ReadBuffer(sink, byteCount)
	if n > 0 {
		// Hash the bytes just appended to sink, in place.
		sink.forRange(sink.size-n, n, func(p []byte) {
			_, _ = h.hash.Write(p)
		})
	}
	return n, err
}

func (h *HashingSource) Close() error {
	return h.source.Close()
}

// HashingSink feeds every byte written through it into a running hash
// before forwarding. The stream is unchanged; read the digest after the
// final flush.
type HashingSink struct {
	sink Sink
	hash hash.Hash
}

// NewHashingSink returns a sink that mirrors writes into sink while hashing
// them with h.
func NewHashingSink(sink Sink, h hash.Hash) *HashingSink {
	return &HashingSink{sink: sink, hash: h}
}

// NewXXHashSink returns a sink hashing its writes with xxHash64, along with
// the digest to read when done.
func NewXXHashSink(sink Sink) (*HashingSink, *xxhash.Digest) {
	d := xxhash.New()
	return NewHashingSink(sink, d), d
}

// Hash returns the running hash.
func (h *HashingSink) Hash() hash.Hash {
	return h.hash
}

func (h *HashingSink) WriteBuffer(source *Buffer, byteCount int64) error {
	checkOffsetAndCount(source.size, 0, byteCount)
	// Hash before forwarding; the forward consumes the bytes.
	source.forRange(0, byteCount, func(p []byte) {
		_, _ = h.hash.Write(p)
	})
	return h.sink.WriteBuffer(source, byteCount)
}

func (h *HashingSink) Flush() error {
	return h.sink.Flush()
}

func (h *HashingSink) Close() error {
	return h.sink.Close()
}
