// Copyright 2011 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pack walks a pack file — a 16-byte header followed by a
// sequence of 16-byte-aligned, LZ4-compressed UTF-8 chunks — yielding
// (doc-id, trigram set) pairs for the index store.
package pack

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"unicode/utf8"

	"github.com/pierrec/lz4/v4"

	"github.com/faubry/trigrex/trigram"
)

// headerLen is the size of the opaque pack-file magic/header, skipped on
// open.
const headerLen = 16

// A Reader walks the chunks of a pack file opened on r. r must also
// support Seek; chunks are read through a ReadSeeker so the reader can
// skip straight to the next 16-byte-aligned chunk boundary without
// decompressing bytes it doesn't need.
type Reader struct {
	r       io.ReadSeeker
	addend  uint64
	started bool
}

// NewReader returns a Reader over r. addend is added to every chunk's
// file offset to produce its doc-id.
func NewReader(r io.ReadSeeker, addend uint64) *Reader {
	return &Reader{r: r, addend: addend}
}

// Next reads and trigrams the next chunk, returning its doc-id and
// trigram set. It returns io.EOF when there are no more chunks (EOF
// exactly at the start of a chunk).
//
// A trigramming failure is returned with the doc-id so the caller can log
// it and continue with the next chunk; Next itself has already seeked past
// the failed chunk by the time it returns such an error. Other errors (a
// short chunk header, a failed seek, a negative payload length) are also
// returned with the doc-id, but without seeking past the chunk.
func (p *Reader) Next() (doc uint64, set *trigram.Set, err error) {
	if !p.started {
		if _, err := p.r.Seek(headerLen, io.SeekStart); err != nil {
			return 0, nil, err
		}
		p.started = true
	}

	start, err := p.r.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, nil, err
	}
	doc = uint64(start) + p.addend

	end, extraLen, err := readChunkLengths(p.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return doc, nil, io.EOF
		}
		return doc, nil, fmt.Errorf("document %d: reading chunk header: %w", doc, err)
	}

	if _, err := p.r.Seek(int64(extraLen), io.SeekCurrent); err != nil {
		return doc, nil, fmt.Errorf("document %d: skipping extra header: %w", doc, err)
	}

	payloadStart, err := p.r.Seek(0, io.SeekCurrent)
	if err != nil {
		return doc, nil, err
	}
	payloadLen := int64(end) - int64(extraLen) - headerLen
	if payloadLen < 0 {
		return doc, nil, fmt.Errorf("document %d: negative payload length", doc)
	}

	payload := io.LimitReader(p.r, payloadLen)
	set, trigErr := trigram.Trigrams(newLZ4CharSource(payload))

	// Next chunk starts at the first 16-byte boundary at or after the
	// declared end of this one.
	next := roundUp16(payloadStart + payloadLen)
	if _, err := p.r.Seek(next, io.SeekStart); err != nil {
		return doc, nil, fmt.Errorf("document %d: seeking to next chunk: %w", doc, err)
	}

	if trigErr != nil {
		return doc, nil, fmt.Errorf("document %d: trigramming failed: %w", doc, trigErr)
	}
	return doc, set, nil
}

// Each calls f for every chunk, logging (not failing the whole run on) any
// per-chunk error: trigramming failures are logged
// and iteration continues; EOF at a chunk boundary ends iteration
// cleanly.
func (p *Reader) Each(f func(doc uint64, set *trigram.Set) error) error {
	for {
		doc, set, err := p.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			log.Printf("document %d: %v", doc, err)
			continue
		}
		if err := f(doc, set); err != nil {
			return err
		}
	}
}

// readChunkLengths reads the big-endian end and extra_len fields at the
// start of a chunk.
func readChunkLengths(r io.Reader) (end, extraLen uint64, err error) {
	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, 0, err
	}
	end = binary.BigEndian.Uint64(buf[0:8])
	extraLen = binary.BigEndian.Uint64(buf[8:16])
	return end, extraLen, nil
}

// roundUp16 rounds x up to the next multiple of 16.
func roundUp16(x int64) int64 {
	if x%16 == 0 {
		return x
	}
	return x + (16 - x%16)
}

// utf8CharSource decodes a plain UTF-8 byte stream into a fallible rune
// stream, adapting trigram.CharSource to an arbitrary io.Reader. It is
// used both directly (SimpleDocument) and over an LZ4 decompressor
// (newLZ4CharSource), since both ultimately just need "the next rune from
// this reader".
type utf8CharSource struct {
	r   io.Reader
	buf []byte // undecoded trailing bytes from the last Read
}

func newLZ4CharSource(r io.Reader) *utf8CharSource {
	return &utf8CharSource{r: lz4.NewReader(r)}
}

func (c *utf8CharSource) Next() (rune, bool, error) {
	for {
		if len(c.buf) > 0 {
			r, size := utf8.DecodeRune(c.buf)
			if r != utf8.RuneError || size > 1 {
				c.buf = c.buf[size:]
				return r, true, nil
			}
			// size == 1 && r == RuneError: either a genuine bad byte, or a
			// multi-byte sequence truncated at the end of buf. Read more
			// before deciding which, unless buf is already a full
			// (invalid) encoding or as long as the longest UTF-8 sequence.
			if utf8.FullRune(c.buf) || len(c.buf) >= utf8.UTFMax {
				c.buf = c.buf[1:]
				return 0, false, fmt.Errorf("invalid UTF-8 byte sequence")
			}
		}

		var chunk [4096]byte
		n, err := c.r.Read(chunk[:])
		if n > 0 {
			c.buf = append(c.buf, chunk[:n]...)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(c.buf) > 0 {
					return 0, false, fmt.Errorf("truncated UTF-8 sequence at end of stream")
				}
				return 0, false, nil
			}
			return 0, false, err
		}
	}
}

// SimpleDocument trigrams r as a single decompressed text document (the
// --simple CLI mode), with no pack framing and no LZ4 decompression.
func SimpleDocument(r io.Reader) (*trigram.Set, error) {
	return trigram.Trigrams(&utf8CharSource{r: r})
}
