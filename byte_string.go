package segio

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ByteString is an immutable sequence of bytes. The zero value is the empty
// byte string.
//
// Immutability is by construction: every constructor copies its input and
// every accessor copies its output, so a ByteString can be shared between
// goroutines and used as a map key via Hex or Sum64 without defensive
// copies at the call sites.
type ByteString struct {
	data []byte
}

// NewByteString returns a byte string holding a copy of data.
func NewByteString(data []byte) ByteString {
	return ByteString{data: bytes.Clone(data)}
}

// NewByteStringFromString returns a byte string holding the bytes of s.
func NewByteStringFromString(s string) ByteString {
	return ByteString{data: []byte(s)}
}

// Size returns the number of bytes.
func (bs ByteString) Size() int {
	return len(bs.data)
}

// At returns the byte at index i.
func (bs ByteString) At(i int) byte {
	return bs.data[i]
}

// Bytes returns a copy of the contents.
func (bs ByteString) Bytes() []byte {
	return bytes.Clone(bs.data)
}

// String returns the contents interpreted as UTF-8.
func (bs ByteString) String() string {
	return string(bs.data)
}

// Hex returns the contents encoded as lowercase hexadecimal.
func (bs ByteString) Hex() string {
	return hex.EncodeToString(bs.data)
}

// Equal reports whether bs and other hold the same bytes.
func (bs ByteString) Equal(other ByteString) bool {
	return bytes.Equal(bs.data, other.data)
}

// EqualBytes reports whether bs holds the same bytes as p.
func (bs ByteString) EqualBytes(p []byte) bool {
	return bytes.Equal(bs.data, p)
}

// Compare lexicographically compares bs with other, returning -1, 0, or +1.
func (bs ByteString) Compare(other ByteString) int {
	return bytes.Compare(bs.data, other.data)
}

// StartsWith reports whether bs begins with prefix.
func (bs ByteString) StartsWith(prefix ByteString) bool {
	return bytes.HasPrefix(bs.data, prefix.data)
}

// IndexOf returns the index of the first occurrence of needle at or after
// fromIndex, or -1 if absent. The empty needle matches at fromIndex.
func (bs ByteString) IndexOf(needle ByteString, fromIndex int) int {
	if fromIndex < 0 {
		panic(fmt.Errorf("illegal from index: %d", fromIndex))
	}
	if fromIndex > len(bs.data) {
		return -1
	}
	i := bytes.Index(bs.data[fromIndex:], needle.data)
	if i < 0 {
		return -1
	}
	return fromIndex + i
}

// Substring returns the bytes in [start, end) as a new byte string.
func (bs ByteString) Substring(start, end int) ByteString {
	if start < 0 || end < start || end > len(bs.data) {
		panic(fmt.Errorf("illegal substring: start=%d end=%d size=%d", start, end, len(bs.data)))
	}
	return ByteString{data: bytes.Clone(bs.data[start:end])}
}

// Sum64 returns the xxHash64 digest of the contents.
func (bs ByteString) Sum64() uint64 {
	return xxhash.Sum64(bs.data)
}
