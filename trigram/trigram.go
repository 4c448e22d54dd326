// Copyright 2011 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trigram extracts the set of trigrams occurring in a document
// from a fallible rune stream, using the folded alphabet from package
// alphabet.
package trigram

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/faubry/trigrex/alphabet"
)

// NumTrigrams is the size of the trigram space: 64^3.
const NumTrigrams = alphabet.NumSymbols * alphabet.NumSymbols * alphabet.NumSymbols

// Pack encodes a 3-symbol window as a single trigram ID.
func Pack(s0, s1, s2 alphabet.Symbol) uint32 {
	return 4096*uint32(s0) + 64*uint32(s1) + uint32(s2)
}

// Unpack decodes a trigram ID back into its 3-symbol window.
func Unpack(t uint32) (s0, s1, s2 alphabet.Symbol) {
	return alphabet.Symbol(t / 4096 % 64), alphabet.Symbol(t / 64 % 64), alphabet.Symbol(t % 64)
}

// Explain renders a trigram ID as a 3-character debug string using
// alphabet.Explain.
func Explain(t uint32) string {
	s0, s1, s2 := Unpack(t)
	return string([]rune{alphabet.Explain(s0), alphabet.Explain(s1), alphabet.Explain(s2)})
}

// A Set is the collection of trigrams occurring in a single document: a
// bitset over [0, NumTrigrams), with no multiplicity.
type Set struct {
	bits *bitset.BitSet
}

// NewSet returns an empty trigram set.
func NewSet() *Set {
	return &Set{bits: bitset.New(NumTrigrams)}
}

// Add records that trigram t occurs in the document.
func (s *Set) Add(t uint32) {
	s.bits.Set(uint(t))
}

// Has reports whether trigram t occurs in the document.
func (s *Set) Has(t uint32) bool {
	return s.bits.Test(uint(t))
}

// Len returns the number of distinct trigrams in the set.
func (s *Set) Len() int {
	return int(s.bits.Count())
}

// Each calls f once for every trigram in the set, in increasing order.
// Iteration order is otherwise unspecified; ascending is what the
// underlying bitset gives us for free.
func (s *Set) Each(f func(t uint32)) {
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		f(uint32(i))
	}
}

// A DecodeError wraps a failure from the underlying character source.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string { return e.Cause.Error() }
func (e *DecodeError) Unwrap() error { return e.Cause }

// ErrNulInText is returned when a NUL byte is found in the stream; the
// caller treats the document as non-text and drops the rest of it.
type ErrNulInText struct {
	Line uint64
}

func (e *ErrNulInText) Error() string {
	return fmt.Sprintf("line %d: null found: not a text file", e.Line)
}

// A CharSource is a fallible lazy sequence of runes, such as the output of
// an LZ4 decoder piped through a UTF-8 decoder. Next returns (0, false, nil)
// at the end of the stream.
type CharSource interface {
	Next() (r rune, ok bool, err error)
}

// Trigrams consumes src and returns the set of trigrams it contains.
//
// The 3-symbol window starts at (0,0,0); the first two runes therefore
// produce the padded trigrams Pack(0,0,s0) and Pack(0,s0,s1). This padding
// is intentional and is part of the index.
func Trigrams(src CharSource) (*Set, error) {
	var line uint64 = 1
	var prev [3]alphabet.Symbol
	set := NewSet()

	for off := 0; ; off++ {
		r, ok, err := src.Next()
		if err != nil {
			return nil, &DecodeError{Cause: fmt.Errorf("line %d: file char %d: failed: %w", line, off, err)}
		}
		if !ok {
			break
		}
		if r == '\n' {
			line++
		}
		if r == 0 {
			return nil, &ErrNulInText{Line: line}
		}
		prev[0] = prev[1]
		prev[1] = prev[2]
		prev[2] = alphabet.Simplify(r)
		set.Add(Pack(prev[0], prev[1], prev[2]))
	}
	return set, nil
}

// SliceSource adapts a plain []rune (no decode errors possible) to
// CharSource, for callers such as StringTrigrams that trigram in-memory
// strings with no I/O involved.
type SliceSource []rune

func (s *SliceSource) Next() (rune, bool, error) {
	if len(*s) == 0 {
		return 0, false, nil
	}
	r := (*s)[0]
	*s = (*s)[1:]
	return r, true, nil
}

// StringTrigrams returns the trigrams of s, using SliceSource. It never
// fails unless s contains a NUL byte.
func StringTrigrams(s string) (*Set, error) {
	src := SliceSource([]rune(s))
	return Trigrams(&src)
}
