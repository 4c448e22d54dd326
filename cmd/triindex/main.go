// Copyright 2011 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Triindex builds a trigram posting-list index from a pack file (or, in
// --simple mode, a single decompressed text file).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/faubry/trigrex/pack"
	"github.com/faubry/trigrex/store"
	"github.com/faubry/trigrex/trigram"
)

var usageMessage = `usage: triindex -f pack-file [-i addendum] [--simple] [-dir indexdir]

Triindex reads a pack file (or, with --simple, a single decompressed text
file) and appends its trigrams to the index rooted at -dir (default ".").
`

func usage() {
	fmt.Fprint(os.Stderr, usageMessage)
	os.Exit(2)
}

var (
	inputFile = flag.String("f", "", "pack file to read (required)")
	addendum  = flag.Uint64("i", 0, "number to add to every document offset")
	simple    = flag.Bool("simple", false, "treat input-file as a single decompressed text document")
	indexDir  = flag.String("dir", ".", "directory holding the idx and pages files")
	verbose   = flag.Bool("verbose", false, "log progress")
)

func init() {
	flag.StringVar(inputFile, "input-file", "", "pack file to read (required)")
	flag.Uint64Var(addendum, "addendum", 0, "number to add to every document offset")
}

func main() {
	log.SetPrefix("triindex: ")
	flag.Usage = usage
	flag.Parse()

	if *inputFile == "" {
		usage()
	}

	f, err := os.Open(*inputFile)
	if err != nil {
		log.Fatalf("input file must exist and be readable: %v", err)
	}
	defer f.Close()

	idx, err := store.Open(*indexDir)
	if err != nil {
		log.Fatalf("opening index: %v", err)
	}
	defer idx.Close()

	if *simple {
		set, err := pack.SimpleDocument(f)
		if err != nil {
			log.Printf("trigramming failed: %v", err)
			return
		}
		if err := idx.AppendTrigrams(set, *addendum); err != nil {
			log.Fatalf("appending: %v", err)
		}
		return
	}

	r := pack.NewReader(f, *addendum)
	if err := r.Each(func(doc uint64, set *trigram.Set) error {
		if *verbose {
			log.Printf("document %d: %d trigrams", doc, set.Len())
		}
		return idx.AppendTrigrams(set, doc)
	}); err != nil {
		log.Fatalf("appending: %v", err)
	}
}
