// Copyright 2011 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store implements the persistent, mmap-backed posting-list index:
// a fixed trigram-indexed directory of page pointers, and a paged,
// singly-linked-by-overflow posting store.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/faubry/trigrex/trigram"
)

// PageSize is the number of 64-bit words per page, including the header
// word.
const PageSize = 1024

// numTrigrams is the size of the directory: one entry per possible
// trigram.
const numTrigrams = trigram.NumTrigrams

// initialPages is the number of pages a freshly created pages file holds.
// Page 0 is never allocated, since a directory entry of 0 means "no list
// yet"; on a fresh store, free-page recovery stops at page 1, so page 1 is
// the first page allocated.
const initialPages = 2

// growPages is how many pages are added to the pages file each time it
// runs out of room.
const growPages = 100

// ErrCorrupt is returned when an on-disk structure fails a defensive
// sanity check, such as a page chain that does not terminate within the
// bounds of the mapped page store.
type ErrCorrupt struct {
	Reason string
}

func (e *ErrCorrupt) Error() string { return "corrupt index: " + e.Reason }

// A Store owns the directory and page-store mapped regions for one index
// and implements append-only posting-list construction.
type Store struct {
	dir      *Mapped // numTrigrams uint32 entries: trigram -> page number
	pages    *Mapped // N*PageSize uint64 words
	freePage int     // next page number to allocate
}

// Open opens (or creates) the index rooted at dir, i.e. the files
// dir/idx and dir/pages.
func Open(dir string) (*Store, error) {
	d, err := openMapped(filepath.Join(dir, "idx"), numTrigrams, size32)
	if err != nil {
		return nil, err
	}

	pagesPath := filepath.Join(dir, "pages")
	pageWords, err := pagesWordCount(pagesPath)
	if err != nil {
		d.Close()
		return nil, err
	}

	p, err := openMapped(pagesPath, pageWords, size64)
	if err != nil {
		d.Close()
		return nil, err
	}

	s := &Store{dir: d, pages: p}
	s.freePage = s.recoverFreePage()
	return s, nil
}

// pagesWordCount returns the word count a pre-existing pages file should
// be mapped with, or the default initial size if the file does not yet
// exist.
func pagesWordCount(path string) (int, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return initialPages * PageSize, nil
		}
		return 0, fmt.Errorf("statting %s: %w", path, err)
	}
	return int(fi.Size() / int64(size64)), nil
}

// recoverFreePage walks the page store downward from its high end while
// page headers are zero, stopping at the first nonzero header (or at page
// 1). This yields the smallest page index that has never been written,
// i.e. the next page to allocate.
func (s *Store) recoverFreePage() int {
	free := s.pages.Len() / PageSize
	for free > 1 && s.pages.get64((free-1)*PageSize) == 0 {
		free--
	}
	return free
}

// Close unmaps both regions. The backing files remain on disk.
func (s *Store) Close() error {
	err1 := s.dir.Close()
	err2 := s.pages.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// nextPage returns the next free page number, allocating it, and grows
// the page store by growPages pages if that exhausts the mapped region.
func (s *Store) nextPage() (int, error) {
	ret := s.freePage
	s.freePage++
	if s.freePage >= s.pages.Len()/PageSize {
		if err := s.pages.Remap(s.pages.Len() + growPages*PageSize); err != nil {
			return 0, err
		}
	}
	return ret, nil
}

// pageFor returns the page number of the tail page for trigram's chain,
// allocating one if the trigram has no list yet.
func (s *Store) pageFor(tg uint32) (int, error) {
	if tg >= numTrigrams {
		return 0, fmt.Errorf("trigram %d out of range [0,%d)", tg, numTrigrams)
	}

	page := int(s.dir.get32(int(tg)))
	if page != 0 {
		return page, nil
	}

	page, err := s.nextPage()
	if err != nil {
		return 0, err
	}
	s.dir.set32(int(tg), uint32(page))
	return page, nil
}

// Append records that doc occurs for trigram tg, extending the chain
// rooted at directory[tg].
func (s *Store) Append(tg uint32, doc uint64) error {
	page, err := s.pageFor(tg)
	if err != nil {
		return err
	}

	headerLoc, err := s.walkToTail(page)
	if err != nil {
		return err
	}

	header := s.pages.get64(headerLoc)
	if header == PageSize-1 {
		// Tail page is full: allocate a new tail and chain the old one
		// to it.
		next, err := s.nextPage()
		if err != nil {
			return err
		}
		s.pages.set64(headerLoc, uint64(next)+PageSize)
		headerLoc = next * PageSize
		header = 0
	}

	s.pages.set64(headerLoc, header+1)
	s.pages.set64(headerLoc+1+int(header), doc)
	return nil
}

// walkToTail follows the overflow chain starting at page until it finds
// the tail (a page whose header is a count rather than a forward
// pointer), returning that tail page's header word offset.
//
// The walk is bounded by the page store's capacity: a chain visiting more
// pages than exist in the store can only mean a cycle, which is treated as
// corruption.
func (s *Store) walkToTail(page int) (headerLoc int, err error) {
	maxSteps := s.pages.Len()/PageSize + 1
	for step := 0; ; step++ {
		if step > maxSteps {
			return 0, &ErrCorrupt{Reason: "page chain cycle detected"}
		}
		headerLoc = page * PageSize
		header := s.pages.get64(headerLoc)
		if header < PageSize {
			return headerLoc, nil
		}
		page = int(header - PageSize)
	}
}

// AppendTrigrams appends doc to every trigram in set. Iteration order is
// unspecified; failure of any single append aborts the rest of the batch.
func (s *Store) AppendTrigrams(set *trigram.Set, doc uint64) error {
	var firstErr error
	set.Each(func(tg uint32) {
		if firstErr != nil {
			return
		}
		if err := s.Append(tg, doc); err != nil {
			firstErr = err
		}
	})
	return firstErr
}

// Chain returns the posting list recorded for trigram tg, in insertion
// order. It is intended for tests and debugging; a production query path
// would want a streaming variant.
func (s *Store) Chain(tg uint32) ([]uint64, error) {
	if tg >= numTrigrams {
		return nil, fmt.Errorf("trigram %d out of range [0,%d)", tg, numTrigrams)
	}

	page := int(s.dir.get32(int(tg)))
	if page == 0 {
		return nil, nil
	}

	var docs []uint64
	maxSteps := s.pages.Len()/PageSize + 1
	for step := 0; ; step++ {
		if step > maxSteps {
			return nil, &ErrCorrupt{Reason: "page chain cycle detected"}
		}
		headerLoc := page * PageSize
		header := s.pages.get64(headerLoc)
		if header >= PageSize {
			count := PageSize - 1
			for i := 0; i < count; i++ {
				docs = append(docs, s.pages.get64(headerLoc+1+i))
			}
			page = int(header - PageSize)
			continue
		}
		for i := 0; i < int(header); i++ {
			docs = append(docs, s.pages.get64(headerLoc+1+i))
		}
		return docs, nil
	}
}

// FreePage returns the next page number that would be allocated. Exposed
// for tests verifying free-page recovery across reopen.
func (s *Store) FreePage() int {
	return s.freePage
}
