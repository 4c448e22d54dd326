// Copyright 2011 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"testing"

	"github.com/faubry/trigrex/trigram"
)

func newTestSet(t *testing.T, trigrams ...uint32) *trigram.Set {
	t.Helper()
	set := trigram.NewSet()
	for _, tg := range trigrams {
		set.Add(tg)
	}
	return set
}

func TestAppendAndChainRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	inputs := map[uint32][]uint64{
		10: {1, 2, 3},
		20: {5},
		30: {100, 101, 102, 103, 104},
	}
	// Interleave appends across trigrams the way AppendTrigrams would for
	// several documents, to exercise directory allocation under
	// concurrent-looking (but still single-writer) access.
	for i := 0; i < 5; i++ {
		for tg, docs := range inputs {
			if i < len(docs) {
				if err := s.Append(tg, docs[i]); err != nil {
					t.Fatalf("Append(%d, %d): %v", tg, docs[i], err)
				}
			}
		}
	}

	for tg, want := range inputs {
		got, err := s.Chain(tg)
		if err != nil {
			t.Fatalf("Chain(%d): %v", tg, err)
		}
		if len(got) != len(want) {
			t.Fatalf("Chain(%d) = %v, want %v", tg, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Chain(%d)[%d] = %d, want %d", tg, i, got[i], want[i])
			}
		}
	}
}

func TestChainOverflow(t *testing.T) {
	// Append PageSize+1 documents (0..=PageSize) to one trigram; after the
	// (PageSize-1)'th append the tail is full, and the next append must
	// chain a new page.
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	const n = PageSize // one more than a single page can hold (PageSize-1 docs/page)
	for d := uint64(0); d <= n; d++ {
		if err := s.Append(7, d); err != nil {
			t.Fatalf("Append(7, %d): %v", d, err)
		}
	}

	got, err := s.Chain(7)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != n+1 {
		t.Fatalf("Chain(7) has %d entries, want %d", len(got), n+1)
	}
	for i, v := range got {
		if v != uint64(i) {
			t.Fatalf("Chain(7)[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestChainSoundness(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for d := uint64(0); d < 3*(PageSize-1)+5; d++ {
		if err := s.Append(99, d); err != nil {
			t.Fatal(err)
		}
	}

	page := int(s.dir.get32(99))
	if page == 0 {
		t.Fatal("directory entry is 0 after appends")
	}
	for {
		headerLoc := page * PageSize
		header := s.pages.get64(headerLoc)
		if header >= PageSize {
			next := int(header - PageSize)
			if next == page {
				t.Fatalf("page %d points to itself", page)
			}
			page = next
			continue
		}
		// header < PageSize: this is the tail, a count in [0, PageSize-1].
		break
	}
}

func TestFreePageRecoveryAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	for d := uint64(0); d < 5*(PageSize-1); d++ {
		if err := s.Append(uint32(d%50), d); err != nil {
			t.Fatal(err)
		}
	}
	highWater := s.FreePage()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	if s2.FreePage() != highWater {
		t.Fatalf("recovered free page = %d, want %d", s2.FreePage(), highWater)
	}
}

func TestRemapGrowthPreservesData(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	initialPageCount := s.pages.Len() / PageSize

	// Force enough distinct trigrams/pages to exceed the initial
	// allocation and trigger at least one Remap.
	for tg := uint32(0); tg < uint32(2*growPages); tg++ {
		if err := s.Append(tg, uint64(tg)); err != nil {
			t.Fatal(err)
		}
	}

	if s.pages.Len()/PageSize <= initialPageCount {
		t.Fatalf("page store did not grow: still %d pages", s.pages.Len()/PageSize)
	}

	for tg := uint32(0); tg < uint32(2*growPages); tg++ {
		got, err := s.Chain(tg)
		if err != nil {
			t.Fatalf("Chain(%d): %v", tg, err)
		}
		if len(got) != 1 || got[0] != uint64(tg) {
			t.Fatalf("Chain(%d) = %v, want [%d]", tg, got, tg)
		}
	}
}

func TestAppendTrigramsDeduplicatesViaSet(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	set := newTestSet(t, 5, 6, 7, 6, 5)
	if err := s.AppendTrigrams(set, 1); err != nil {
		t.Fatal(err)
	}

	for _, tg := range []uint32{5, 6, 7} {
		got, err := s.Chain(tg)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0] != 1 {
			t.Fatalf("Chain(%d) = %v, want [1]", tg, got)
		}
	}
}
