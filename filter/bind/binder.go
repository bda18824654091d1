// Package bind implements parameter numbering (Binder), the immutable
// value-supply snapshot (FilterValues), and the cached leaf traversal order
// (PropertyFilterList) over the filter algebra in package filter.
package bind

import (
	"github.com/google/uuid"

	"github.com/relcore/filterkv/filter"
	"github.com/relcore/filterkv/filter/join"
)

// Binder numbers the unbound Property placeholders in a filter tree. Ids
// are counted from 1 separately for each (chained property, operator)
// pair, so two distinct occurrences of the same pair receive distinct,
// positive bind-ids while leaves of different pairs may share an id.
// Binding an already-bound filter again leaves its ids unchanged. The
// count persists across Bind calls on the same Binder and is shared with
// its nested Exists sub-binders, so binding a second unbound filter with
// the same Binder continues the numbering rather than restarting it.
//
// The open question of how to fix up bind-ids that collide with a freshly
// assigned one is resolved here by working directly from the invariant the
// design notes call for — every distinct occurrence of a (property,
// operator) pair gets a distinct positive id, stable across repeated
// bind — rather than replicating a two-pass fix-up: occurrences are walked
// once, and any already-bound id seen a second time for the same key is
// treated exactly like an unbound leaf (assigned the next id), since by
// definition it cannot be the stable id for both occurrences.
type Binder struct {
	scope uuid.UUID
	// high maps the canonical zero-bind-id leaf for a (chained property,
	// operator) pair to the highest bind-id assigned to it so far. Using
	// the canonical unbound Property filter itself as the key (rather than
	// a string) is exact: canonicalization guarantees there is only ever
	// one such leaf per (chain, operator) pair.
	high map[filter.Filter]int
}

// NewBinder returns a fresh top-level Binder with an empty bind-id map.
func NewBinder() *Binder {
	return &Binder{scope: uuid.New(), high: make(map[filter.Filter]int)}
}

// Scope returns an opaque identifier for this Binder's nesting scope,
// useful for diagnostics when several Exists sub-binders share one bind-id
// map but are otherwise independent.
func (b *Binder) Scope() uuid.UUID { return b.scope }

// child returns a new Binder that shares b's bind-id map, used when
// descending into an Exists sub-filter so that parameter identities do not
// collide across the join boundary.
func (b *Binder) child() *Binder {
	return &Binder{scope: uuid.New(), high: b.high}
}

// Bind returns the canonical filter with every unbound Property leaf
// assigned a bind-id.
func (b *Binder) Bind(f filter.Filter) filter.Filter {
	used := make(map[filter.Filter]map[filter.BindID]bool)
	return b.bind(f, used)
}

func (b *Binder) key(x filter.PropertyNode) filter.Filter {
	return filter.NewProperty(x.RecordType(), x.Chain(), x.Operator(), 0, nil)
}

func (b *Binder) bind(f filter.Filter, used map[filter.Filter]map[filter.BindID]bool) filter.Filter {
	switch x := f.(type) {
	case filter.PropertyNode:
		if x.IsConstant() {
			return f
		}
		key := b.key(x)
		if x.BindID() == 0 {
			b.high[key]++
			return filter.NewProperty(x.RecordType(), x.Chain(), x.Operator(), filter.BindID(b.high[key]), nil)
		}
		if used[key] == nil {
			used[key] = make(map[filter.BindID]bool)
		}
		if used[key][x.BindID()] {
			b.high[key]++
			nb := filter.BindID(b.high[key])
			used[key][nb] = true
			return filter.NewProperty(x.RecordType(), x.Chain(), x.Operator(), nb, nil)
		}
		used[key][x.BindID()] = true
		if int(x.BindID()) > b.high[key] {
			b.high[key] = int(x.BindID())
		}
		return f
	case filter.BinaryNode:
		l := b.bind(x.Left(), used)
		r := b.bind(x.Right(), used)
		if l == x.Left() && r == x.Right() {
			return f
		}
		if x.Kind() == filter.KindAnd {
			return filter.And(l, r)
		}
		return filter.Or(l, r)
	case filter.ExistsNode:
		sub2 := b.child().Bind(x.Sub())
		joined := join.AsJoinedFrom(sub2, x.RecordType(), x.Chain())
		_, remainder := join.NotJoinedFrom(joined, x.Chain().Last())
		if !filter.IsOpen(remainder) {
			panic(&filter.Error{
				Kind: filter.KindIllegalState,
				Msg:  "exists sub-filter produced a non-open remainder after joining",
			})
		}
		if sub2 == x.Sub() {
			return f
		}
		return filter.NewExists(x.RecordType(), x.Chain(), sub2, x.Not())
	default:
		return f
	}
}

// Unbind resets every non-constant Property leaf's bind-id to 0.
func Unbind(f filter.Filter) filter.Filter {
	switch x := f.(type) {
	case filter.PropertyNode:
		if x.IsConstant() || x.BindID() == 0 {
			return f
		}
		return filter.NewProperty(x.RecordType(), x.Chain(), x.Operator(), 0, nil)
	case filter.BinaryNode:
		l := Unbind(x.Left())
		r := Unbind(x.Right())
		if l == x.Left() && r == x.Right() {
			return f
		}
		if x.Kind() == filter.KindAnd {
			return filter.And(l, r)
		}
		return filter.Or(l, r)
	case filter.ExistsNode:
		sub2 := Unbind(x.Sub())
		if sub2 == x.Sub() {
			return f
		}
		return filter.NewExists(x.RecordType(), x.Chain(), sub2, x.Not())
	default:
		return f
	}
}

// IsBound reports whether every non-constant Property leaf in f carries a
// positive bind-id.
func IsBound(f filter.Filter) bool {
	switch x := f.(type) {
	case filter.BinaryNode:
		if known, val := x.BoundFlag(); known {
			return val
		}
		val := IsBound(x.Left()) && IsBound(x.Right())
		x.PublishBoundFlag(val)
		return val
	case filter.PropertyNode:
		return x.IsConstant() || x.BindID() != 0
	case filter.ExistsNode:
		return IsBound(x.Sub())
	default:
		return true
	}
}
