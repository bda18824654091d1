package parse

import (
	"fmt"
	"strings"

	"github.com/relcore/filterkv/filter"
)

// Print renders f as parseable text. Precedence is '|' < '&' < '!' < atom;
// binary operators are always '&'/'|', never '&&'/'||'. Open prints as
// "open", Closed as "closed". A bound Property with bind-id 1 prints as
// "chain op ?", any other bind-id as "chain op ?[n]", matching an unbound
// Property's bare "chain op ?"; a constant prints its Go-syntax value.
// Parsing a bare "?" always yields an unbound placeholder (bind-id 0):
// the grammar has no way to tell "unbound" and "bound to 1" apart in
// text, so parse(print(x)) round-trips for every filter except one whose
// bound leaves include bind-id 1 — callers that need an exact round trip
// for such a filter should use FilterValues' snapshot
// marshal/rehydrate instead of text.
func Print(f filter.Filter) string {
	var b strings.Builder
	printOr(&b, f)
	return b.String()
}

func printOr(b *strings.Builder, f filter.Filter) {
	bn, ok := f.(filter.BinaryNode)
	if ok && bn.Kind() == filter.KindOr {
		printOr(b, bn.Left())
		b.WriteString(" | ")
		printAndOperand(b, bn.Right())
		return
	}
	printAndOperand(b, f)
}

func printAndOperand(b *strings.Builder, f filter.Filter) {
	bn, ok := f.(filter.BinaryNode)
	if ok && bn.Kind() == filter.KindAnd {
		printAnd(b, f)
		return
	}
	printAtom(b, f)
}

func printAnd(b *strings.Builder, f filter.Filter) {
	bn, ok := f.(filter.BinaryNode)
	if ok && bn.Kind() == filter.KindAnd {
		printAnd(b, bn.Left())
		b.WriteString(" & ")
		printAtom(b, bn.Right())
		return
	}
	printAtom(b, f)
}

func printAtom(b *strings.Builder, f filter.Filter) {
	switch x := f.(type) {
	case filter.BinaryNode:
		// An Or nested inside an And (or vice versa once recursion
		// descends past the level it owns) needs grouping parens.
		b.WriteByte('(')
		printOr(b, x)
		b.WriteByte(')')
	case filter.PropertyNode:
		printProperty(b, x)
	case filter.ExistsNode:
		if x.Not() {
			b.WriteByte('!')
		}
		b.WriteString(x.Chain().String())
		b.WriteByte('(')
		printOr(b, x.Sub())
		b.WriteByte(')')
	default:
		if filter.IsOpen(f) {
			b.WriteString("open")
			return
		}
		if filter.IsClosed(f) {
			b.WriteString("closed")
			return
		}
		fmt.Fprintf(b, "<%T>", f)
	}
}

func printProperty(b *strings.Builder, x filter.PropertyNode) {
	b.WriteString(x.Chain().String())
	b.WriteByte(' ')
	b.WriteString(x.Operator().String())
	b.WriteByte(' ')
	switch {
	case x.IsConstant():
		fmt.Fprintf(b, "%#v", x.Value())
	case x.BindID() == 0 || x.BindID() == 1:
		b.WriteByte('?')
	default:
		fmt.Fprintf(b, "?[%d]", int(x.BindID()))
	}
}
