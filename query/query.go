// Copyright 2011 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package query compiles a parsed regular expression into a conservative
// boolean expression over trigrams: every document matching the regex is
// guaranteed to satisfy the compiled expression, though the converse need
// not hold.
package query

import (
	"fmt"
	"regexp/syntax"

	"github.com/faubry/trigrex/alphabet"
	"github.com/faubry/trigrex/trigram"
)

// An OpKind distinguishes the four shapes an Op can take.
type OpKind int

const (
	// OpAny means "no constraint derivable" — the subexpression may or
	// may not occur, so it contributes nothing to the conservative query.
	OpAny OpKind = iota
	// OpLit requires a single trigram to be present.
	OpLit
	// OpAnd requires every Sub expression to hold.
	OpAnd
	// OpOr requires at least one Sub expression to hold.
	OpOr
)

// An Op is a node in the compiled query tree.
type Op struct {
	Kind    OpKind
	Trigram uint32 // valid when Kind == OpLit
	Sub     []Op   // valid when Kind == OpAnd or OpOr
}

// Any is the query that matches unconditionally.
var Any = Op{Kind: OpAny}

// Lit returns a query requiring trigram t.
func Lit(t uint32) Op { return Op{Kind: OpLit, Trigram: t} }

// And returns a query requiring every sub-query in subs.
func And(subs ...Op) Op { return Op{Kind: OpAnd, Sub: subs} }

// Or returns a query requiring at least one sub-query in subs.
func Or(subs ...Op) Op { return Op{Kind: OpOr, Sub: subs} }

// ErrUnsupported is returned for AST shapes the compiler cannot reduce to
// a conservative trigram query.
type ErrUnsupported struct {
	Reason string
}

func (e *ErrUnsupported) Error() string { return e.Reason }

// Compile reduces a parsed regular expression to a conservative trigram
// query.
//
// re is a *syntax.Regexp from the standard library's regexp/syntax
// package. Its Op constants cover the node kinds this compiler
// recognizes: Empty, Group (capture), Concat, Alternate, Literal, and
// the Star/Plus/Quest/Repeat family for bounded and unbounded repetition.
func Compile(re *syntax.Regexp) (Op, error) {
	switch re.Op {
	case syntax.OpEmptyMatch:
		return Any, nil

	case syntax.OpCapture:
		return Compile(re.Sub[0])

	case syntax.OpLiteral:
		if re.Flags&syntax.FoldCase != 0 {
			return Op{}, &ErrUnsupported{
				Reason: fmt.Sprintf("unsupported: case insensitive matching on '%s'", string(re.Rune)),
			}
		}
		set, err := literalTrigrams(re.Rune)
		if err != nil {
			return Op{}, err
		}
		return literalOp(set), nil

	case syntax.OpConcat:
		subs, err := compileAll(re.Sub)
		if err != nil {
			return Op{}, err
		}
		return And(subs...), nil

	case syntax.OpAlternate:
		subs, err := compileAll(re.Sub)
		if err != nil {
			return Op{}, err
		}
		return Or(subs...), nil

	case syntax.OpQuest, syntax.OpStar:
		// "?" and "*": the subexpression may match zero times, so it
		// requires nothing.
		return Any, nil

	case syntax.OpRepeat:
		if re.Min == 0 {
			// "{0,max}": may match zero times.
			return Any, nil
		}
		// "{n,m}" with n>=1 inherits its subexpression's constraints.
		return Compile(re.Sub[0])

	case syntax.OpPlus:
		// "+": matches at least once, so it inherits its subexpression's
		// constraints.
		return Compile(re.Sub[0])

	default:
		return Op{}, &ErrUnsupported{Reason: fmt.Sprintf("unimplemented: %v", re.Op)}
	}
}

// compileAll compiles every element of subs, in order, stopping at the
// first error.
func compileAll(subs []*syntax.Regexp) ([]Op, error) {
	ops := make([]Op, 0, len(subs))
	for _, sub := range subs {
		op, err := Compile(sub)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// literalTrigrams returns the trigrams a literal requires wherever it
// occurs in a document, not just at the document's start.
//
// trigram.Trigrams seeds its sliding window with two zero symbols, so the
// first two windows it ever produces for a stream — Pack(0,0,s0) and
// Pack(0,s0,s1) — only recur in an indexed document if that literal sits
// at the very start of the document. Reusing them here would require
// every match of the literal to occur at document offset 0, which is
// false in general. literalTrigrams instead slides the same window but
// only emits a trigram once the window holds three real runes from the
// literal, so the result holds for an occurrence anywhere in a document.
//
// A literal shorter than three runes has no such window at all, so it
// contributes no trigram and the literal is left unconstrained — still
// sound, just uninformative.
func literalTrigrams(runes []rune) (*trigram.Set, error) {
	set := trigram.NewSet()
	var s0, s1 alphabet.Symbol
	for i, r := range runes {
		if r == 0 {
			return nil, &trigram.ErrNulInText{Line: 1}
		}
		s2 := alphabet.Simplify(r)
		if i >= 2 {
			set.Add(trigram.Pack(s0, s1, s2))
		}
		s0, s1 = s1, s2
	}
	return set, nil
}

// literalOp returns And(Lit(t) for every trigram t in set). Trigrams are
// emitted in ascending order for determinism.
func literalOp(set *trigram.Set) Op {
	var subs []Op
	set.Each(func(t uint32) {
		subs = append(subs, Lit(t))
	})
	return And(subs...)
}

// Eval reports whether doc's trigram set satisfies q. This is the
// "obvious recursion" behind the compiled query's soundness contract; it
// exists for tests, not for production intersection (that's out of scope,
// see SPEC_FULL.md).
func Eval(q Op, doc *trigram.Set) bool {
	switch q.Kind {
	case OpAny:
		return true
	case OpLit:
		return doc.Has(q.Trigram)
	case OpAnd:
		for _, sub := range q.Sub {
			if !Eval(sub, doc) {
				return false
			}
		}
		return true
	case OpOr:
		for _, sub := range q.Sub {
			if Eval(sub, doc) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// Explain renders q as a human-readable tree, in the spirit of
// a recursive tree-printer.
func Explain(q Op) string {
	switch q.Kind {
	case OpAny:
		return "Any"
	case OpLit:
		return fmt.Sprintf("Lit(%s)", trigram.Explain(q.Trigram))
	case OpAnd:
		return explainJoin("And", q.Sub)
	case OpOr:
		return explainJoin("Or", q.Sub)
	default:
		return "?"
	}
}

func explainJoin(name string, subs []Op) string {
	s := name + "["
	for i, sub := range subs {
		if i > 0 {
			s += ", "
		}
		s += Explain(sub)
	}
	return s + "]"
}
