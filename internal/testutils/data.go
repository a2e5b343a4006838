// Package testutils provides deterministic byte fixtures shared by the
// segio test suites.
package testutils

import "math/rand"

// Alphabet returns n bytes of a repeating a-z pattern.
func Alphabet(n int) []byte {
	return AlphabetAt(0, n)
}

// AlphabetAt returns n bytes of the repeating a-z pattern as it appears
// starting at position offset, so reads at arbitrary offsets can be checked
// against the pattern they were written from.
func AlphabetAt(offset, n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte('a' + (offset+i)%26) // fill with repeating a-z chars.
	}
	return data
}

// RandomBytes returns n bytes drawn from r. Tests log the seed used to
// construct r; hardcode a logged seed to reproduce an exact failure.
func RandomBytes(r *rand.Rand, n int) []byte {
	data := make([]byte, n)
	r.Read(data)
	return data
}
