// Copyright 2011 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Trigrep compiles a regular expression into its conservative trigram
// query and prints the result. It does not execute the query against an
// index; posting-list intersection and document retrieval are out of
// scope (see SPEC_FULL.md).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"regexp/syntax"

	"github.com/faubry/trigrex/query"
)

var explain = flag.Bool("explain", false, "print the regex AST alongside the compiled query")

func main() {
	log.SetPrefix("trigrep: ")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: trigrep [-explain] regexp")
		os.Exit(2)
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
	}
	pattern := flag.Arg(0)

	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		log.Fatalf("parsing %q: %v", pattern, err)
	}

	if *explain {
		fmt.Println(re)
	}

	q, err := query.Compile(re)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(query.Explain(q))
}
