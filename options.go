package segio

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrEmptyOption     = errors.New("the empty byte string is not a valid option")
	ErrDuplicateOption = errors.New("duplicate option")
)

// selectTruncated is returned by selectPrefix when the buffer ran out while
// its contents were still a proper prefix of at least one option. A
// streaming caller reads more input and retries; it is never visible to
// callers of Select.
const selectTruncated = -2

type nodeKind uint8

const (
	scanNode   nodeKind = iota // match a fixed run of bytes
	selectNode                 // branch on a single byte
)

// trieNode is one node of a compiled options trie.
//
// Targets use a compact encoding shared by next and targets: a value >= 0 is
// the index of the next node to evaluate, and a value < 0 encodes a final
// match whose option index is the bitwise complement ^value.
type trieNode struct {
	kind nodeKind

	// prefixResult is the option that ends exactly at this node, or -1. It
	// becomes the fallback result when no longer option matches.
	prefixResult int

	scan []byte // scanNode: the bytes that must match
	next int    // scanNode: target after the scan

	choices []byte // selectNode: candidate bytes, ascending
	targets []int  // selectNode: target per choice
}

// Options is an immutable, precompiled set of byte strings to match against
// buffered input. Compiling the set into a trie once lets Select run in one
// pass over the input bytes regardless of how many options there are.
//
// When one option is a prefix of another, the longer option wins only if it
// was declared first; options that can never match because an
// earlier-declared prefix shadows them are dropped at compile time.
type Options struct {
	candidates []ByteString
	nodes      []trieNode
}

// NewOptions compiles the given options into a trie. It returns an error if
// no options are given, if any option is empty, or if two options are equal.
func NewOptions(options ...ByteString) (*Options, error) {
	if len(options) == 0 {
		return nil, errors.New("at least one option is required")
	}
	for _, o := range options {
		if o.Size() == 0 {
			return nil, ErrEmptyOption
		}
	}

	sorted := make([]ByteString, len(options))
	copy(sorted, options)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Compare(sorted[j]) < 0 })
	for i := 0; i+1 < len(sorted); i++ {
		if sorted[i].Equal(sorted[i+1]) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateOption, sorted[i])
		}
	}

	// Map each sorted position back to the caller's declaration order; the
	// trie emits declaration indexes.
	indexes := make([]int, len(sorted))
	for callerIndex, o := range options {
		indexes[sort.Search(len(sorted), func(i int) bool {
			return sorted[i].Compare(o) >= 0
		})] = callerIndex
	}

	// Drop options that can never match: when an option is a proper prefix
	// of a later-declared option, the walk always commits the prefix first.
	a := 0
	for a < len(sorted) {
		prefix := sorted[a]
		b := a + 1
		for b < len(sorted) {
			if !sorted[b].StartsWith(prefix) {
				break
			}
			if indexes[b] > indexes[a] {
				sorted = append(sorted[:b], sorted[b+1:]...)
				indexes = append(indexes[:b], indexes[b+1:]...)
			} else {
				b++
			}
		}
		a++
	}

	var nodes []trieNode
	compileTrie(&nodes, sorted, indexes, 0, 0, len(sorted))

	candidates := make([]ByteString, len(options))
	copy(candidates, options)
	return &Options{candidates: candidates, nodes: nodes}, nil
}

// MustOptions is like NewOptions but panics on error. It simplifies safe
// initialization of global variables holding fixed option sets.
func MustOptions(options ...ByteString) *Options {
	o, err := NewOptions(options...)
	if err != nil {
		panic(fmt.Errorf("segio: NewOptions: %w", err))
	}
	return o
}

// Size returns the number of options as declared.
func (o *Options) Size() int {
	return len(o.candidates)
}

// Get returns the option declared at index i.
func (o *Options) Get(i int) ByteString {
	return o.candidates[i]
}

// compileTrie builds the node for sorted[fromIndex:toIndex], whose members
// all share their first byteStringOffset bytes, appends it and its children
// to nodes, and returns its index.
func compileTrie(nodes *[]trieNode, sorted []ByteString, indexes []int, byteStringOffset, fromIndex, toIndex int) int {
	if fromIndex >= toIndex {
		panic(errors.New("internal error: empty option range"))
	}

	from := sorted[fromIndex]
	to := sorted[toIndex-1]
	prefixResult := -1

	// An option that ends exactly here becomes the fallback for every longer
	// option sharing this prefix.
	if byteStringOffset == from.Size() {
		prefixResult = indexes[fromIndex]
		fromIndex++
		from = sorted[fromIndex]
	}

	nodeIndex := len(*nodes)
	*nodes = append(*nodes, trieNode{})

	if from.At(byteStringOffset) != to.At(byteStringOffset) {
		// The options diverge at this offset: branch on the next byte.
		var choices []byte
		var targets []int
		for rangeStart := fromIndex; rangeStart < toIndex; {
			rangeByte := sorted[rangeStart].At(byteStringOffset)
			rangeEnd := toIndex
			for i := rangeStart + 1; i < toIndex; i++ {
				if sorted[i].At(byteStringOffset) != rangeByte {
					rangeEnd = i
					break
				}
			}
			choices = append(choices, rangeByte)
			if rangeStart+1 == rangeEnd && byteStringOffset+1 == sorted[rangeStart].Size() {
				targets = append(targets, ^indexes[rangeStart])
			} else {
				targets = append(targets, compileTrie(nodes, sorted, indexes, byteStringOffset+1, rangeStart, rangeEnd))
			}
			rangeStart = rangeEnd
		}
		(*nodes)[nodeIndex] = trieNode{
			kind:         selectNode,
			prefixResult: prefixResult,
			choices:      choices,
			targets:      targets,
		}
		return nodeIndex
	}

	// The options agree on a run of bytes: scan it in one step.
	scanByteCount := 0
	for i := byteStringOffset; i < min(from.Size(), to.Size()) && from.At(i) == to.At(i); i++ {
		scanByteCount++
	}
	scan := make([]byte, scanByteCount)
	for i := range scan {
		scan[i] = from.At(byteStringOffset + i)
	}
	var next int
	if fromIndex+1 == toIndex {
		if byteStringOffset+scanByteCount != sorted[fromIndex].Size() {
			panic(errors.New("internal error: scan does not exhaust the final option"))
		}
		next = ^indexes[fromIndex]
	} else {
		next = compileTrie(nodes, sorted, indexes, byteStringOffset+scanByteCount, fromIndex, toIndex)
	}
	(*nodes)[nodeIndex] = trieNode{
		kind:         scanNode,
		prefixResult: prefixResult,
		scan:         scan,
		next:         next,
	}
	return nodeIndex
}

// Select matches the buffer's leading bytes against opts and consumes the
// selected option. It returns the index of the selected option, or -1
// without consuming anything when no option matches.
func (b *Buffer) Select(opts *Options) int {
	index := b.selectPrefix(opts, false)
	if index == -1 {
		return -1
	}
	matched := int64(opts.candidates[index].Size())
	if err := b.Skip(matched); err != nil {
		panic(fmt.Errorf("internal error: matched option exceeds buffer: %w", err))
	}
	return index
}

// selectPrefix matches the buffer's leading bytes against the options trie
// without consuming anything. It returns the index of the matched option, or
// -1 when none matches. When truncated is true and the buffer runs out while
// its contents are still a proper prefix of at least one option, it returns
// selectTruncated so a streaming caller can refill and retry.
func (b *Buffer) selectPrefix(opts *Options, truncated bool) int {
	s := b.head
	if s == nil {
		if truncated {
			return selectTruncated
		}
		return -1
	}
	data := s.data
	pos := s.pos
	limit := s.limit

	prefixIndex := -1
	nodeIndex := 0

	for {
		node := &opts.nodes[nodeIndex]
		if node.prefixResult != -1 {
			prefixIndex = node.prefixResult
		}
		if s == nil {
			break
		}

		var target int
		if node.kind == scanNode {
			// Compare a run of bytes, failing on the first mismatch.
			exhausted := false
			for i, want := range node.scan {
				if data[pos] != want {
					return prefixIndex
				}
				pos++
				if pos == limit {
					s = s.next
					pos = s.pos
					data = s.data
					limit = s.limit
					if s == b.head {
						if i < len(node.scan)-1 {
							exhausted = true // Ran out mid-scan.
							break
						}
						s = nil // Ran out exactly at the end of the scan.
					}
				}
			}
			if exhausted {
				break
			}
			target = node.next
		} else {
			// Branch on a single byte.
			c := data[pos]
			pos++
			i := bytes.IndexByte(node.choices, c)
			if i < 0 {
				return prefixIndex
			}
			target = node.targets[i]
			if pos == limit {
				s = s.next
				pos = s.pos
				data = s.data
				limit = s.limit
				if s == b.head {
					s = nil // The next node is the last we can evaluate.
				}
			}
		}

		if target < 0 {
			return ^target // A full option matched.
		}
		nodeIndex = target
	}

	// The buffer ran out while still a prefix of some option.
	if truncated {
		return selectTruncated
	}
	return prefixIndex
}
