// Package join rewrites filters across a one-to-many or many-to-one join
// boundary: asJoinedFrom lifts a filter on the joined type into an
// equivalent filter on the enclosing type (prefixing every chain with the
// join path), notJoinedFrom is its approximate inverse, and CollapseJoins
// rewrites any Exists whose last join is many-to-one into an equivalent
// joined Property/composite filter, since a many-to-one join has at most
// one related record and so needs no existential quantifier.
package join

import (
	"github.com/relcore/filterkv/filter"
	"github.com/relcore/filterkv/filter/normal"
)

// AsJoinedFrom prepends prefix to every chained property inside f (a
// filter over prefix.Last().ElementType) and retypes the result to owner,
// the record type that declares prefix's root segment. The prefix is
// applied to an Exists' own chained property as well as to every Property
// leaf; Exists sub-filters are left untouched, since they already apply
// to the type joined to.
func AsJoinedFrom(f filter.Filter, owner filter.RecordType, prefix filter.ChainedProperty) filter.Filter {
	if filter.IsOpen(f) {
		return filter.Open(owner)
	}
	if filter.IsClosed(f) {
		return filter.Closed(owner)
	}
	switch x := f.(type) {
	case filter.PropertyNode:
		return filter.NewProperty(owner, x.Chain().PrependChain(prefix), x.Operator(), x.BindID(), x.Value())
	case filter.ExistsNode:
		return filter.NewExists(owner, x.Chain().PrependChain(prefix), x.Sub(), x.Not())
	case filter.BinaryNode:
		l := AsJoinedFrom(x.Left(), owner, prefix)
		r := AsJoinedFrom(x.Right(), owner, prefix)
		if x.Kind() == filter.KindAnd {
			return filter.And(l, r)
		}
		return filter.Or(l, r)
	default:
		panic("join: unsupported filter kind")
	}
}

// NotJoinedFrom splits f, a filter over the enclosing type, into a pair
// (notJoined, remainder) such that notJoined is a filter over
// join.ElementType, remainder stays on f's own record type, and
// AsJoinedFrom(notJoined, f.RecordType(), single-segment chain of join)
// conjoined with remainder is equivalent to f. f is first converted to
// CNF so the split can proceed conjunct by conjunct; if f was already in
// DNF, both results are converted back to DNF for the caller's
// convenience.
func NotJoinedFrom(f filter.Filter, join filter.Segment) (notJoined, remainder filter.Filter) {
	wasDNF := normal.IsDNF(f)
	owner := f.RecordType()
	joinedType := join.ElementType
	prefix := filter.NewChainedProperty(join)

	cnfForm, _ := normal.CNF(f)

	notJoined = filter.Open(joinedType)
	remainder = filter.Open(owner)

	for _, conjunct := range flattenAnd(cnfForm) {
		if hasChainPrefix(conjunct, prefix) {
			moved := stripChainPrefix(conjunct, prefix, joinedType)
			notJoined = filter.And(notJoined, moved)
		} else {
			remainder = filter.And(remainder, conjunct)
		}
	}

	if wasDNF {
		notJoined, _ = normal.DNF(notJoined)
		remainder, _ = normal.DNF(remainder)
	}
	return notJoined, remainder
}

func flattenAnd(f filter.Filter) []filter.Filter {
	bn, ok := f.(filter.BinaryNode)
	if !ok || bn.Kind() != filter.KindAnd {
		return []filter.Filter{f}
	}
	out := flattenAnd(bn.Left())
	return append(out, flattenAnd(bn.Right())...)
}

// hasChainPrefix reports whether every chained property reachable inside
// f (through And/Or) begins with prefix.
func hasChainPrefix(f filter.Filter, prefix filter.ChainedProperty) bool {
	switch x := f.(type) {
	case filter.PropertyNode:
		return x.Chain().HasPrefix(prefix)
	case filter.ExistsNode:
		return x.Chain().HasPrefix(prefix)
	case filter.BinaryNode:
		return hasChainPrefix(x.Left(), prefix) && hasChainPrefix(x.Right(), prefix)
	default:
		// Open/Closed carry no chain; they never force a move.
		return true
	}
}

func stripChainPrefix(f filter.Filter, prefix filter.ChainedProperty, joinedType filter.RecordType) filter.Filter {
	switch x := f.(type) {
	case filter.PropertyNode:
		return filter.NewProperty(joinedType, x.Chain().StripPrefix(prefix.Len()), x.Operator(), x.BindID(), x.Value())
	case filter.ExistsNode:
		return filter.NewExists(joinedType, x.Chain().StripPrefix(prefix.Len()), x.Sub(), x.Not())
	case filter.BinaryNode:
		l := stripChainPrefix(x.Left(), prefix, joinedType)
		r := stripChainPrefix(x.Right(), prefix, joinedType)
		if x.Kind() == filter.KindAnd {
			return filter.And(l, r)
		}
		return filter.Or(l, r)
	default:
		if filter.IsOpen(f) {
			return filter.Open(joinedType)
		}
		return filter.Closed(joinedType)
	}
}

// CollapseJoins rewrites f bottom-up, replacing any Exists whose chain's
// last segment is a many-to-one join and whose sub-filter is not Open
// with an equivalent filter over the enclosing type obtained by lifting
// sub through the join via AsJoinedFrom. A many-to-one join relates to at
// most one record, so the existential quantifier is redundant; an Exists
// whose join is one-to-many, or whose sub-filter is Open, survives
// unchanged (filter.NewExists collapses only a Closed sub-filter; an
// Exists over Open stays an Exists).
func CollapseJoins(f filter.Filter) filter.Filter {
	switch x := f.(type) {
	case filter.ExistsNode:
		sub2 := CollapseJoins(x.Sub())
		last := x.Chain().Last()
		if last.ManyToOne && !filter.IsOpen(sub2) {
			lifted := AsJoinedFrom(sub2, x.RecordType(), x.Chain())
			if x.Not() {
				return filter.Not(lifted)
			}
			return lifted
		}
		if sub2 == x.Sub() {
			return f
		}
		return filter.NewExists(x.RecordType(), x.Chain(), sub2, x.Not())
	case filter.BinaryNode:
		l := CollapseJoins(x.Left())
		r := CollapseJoins(x.Right())
		if l == x.Left() && r == x.Right() {
			return f
		}
		if x.Kind() == filter.KindAnd {
			return filter.And(l, r)
		}
		return filter.Or(l, r)
	default:
		return f
	}
}
