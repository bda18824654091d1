package bind

import (
	"fmt"
	"sync"

	"github.com/relcore/filterkv/filter"
)

// valueNode is one link of the cons-style chain of (property -> value)
// assignments a FilterValues snapshot carries.
type valueNode struct {
	prev  *valueNode
	prop  filter.PropertyNode
	value filter.Value
}

// lazyThreshold is the chain length beyond which a snapshot's supplied-value
// lookup materialises a hash map instead of walking the cons chain.
const lazyThreshold = 8

type fvState struct {
	f     filter.Filter
	tail  *valueNode
	depth int

	mapOnce sync.Once
	lazyMap map[filter.PropertyNode]filter.Value
}

// FilterValues is an immutable snapshot of a filter plus a partial (or
// complete) assignment of values to its non-constant Property placeholders.
// Every With call returns a new snapshot; the snapshot it was called on
// remains valid and usable, since snapshots form a cons list rather than a
// mutable sequence — two callers can branch from a common prefix.
type FilterValues struct {
	state *fvState
}

// Initial returns a FilterValues over f with no placeholders supplied yet.
func Initial(f filter.Filter) FilterValues {
	return FilterValues{state: &fvState{f: f}}
}

// Filter returns the filter this snapshot supplies values for.
func (fv FilterValues) Filter() filter.Filter { return fv.state.f }

func (fv FilterValues) suppliedMap() map[filter.PropertyNode]filter.Value {
	st := fv.state
	build := func() map[filter.PropertyNode]filter.Value {
		m := make(map[filter.PropertyNode]filter.Value, st.depth)
		for n := st.tail; n != nil; n = n.prev {
			if _, exists := m[n.prop]; !exists {
				m[n.prop] = n.value
			}
		}
		return m
	}
	if st.depth <= lazyThreshold {
		return build()
	}
	st.mapOnce.Do(func() { st.lazyMap = build() })
	return st.lazyMap
}

// With fills the next still-blank placeholder (skipping constants and
// already-supplied slots) with v, returning a new snapshot.
func (fv FilterValues) With(v filter.Value) (FilterValues, error) {
	list := ListFor(fv.state.f)
	supplied := fv.suppliedMap()
	for i := 0; i < list.Len(); i++ {
		leaf := list.At(i)
		if leaf.IsConstant() {
			continue
		}
		if _, ok := supplied[leaf]; ok {
			continue
		}
		next := &fvState{f: fv.state.f, tail: &valueNode{prev: fv.state.tail, prop: leaf, value: v}, depth: fv.state.depth + 1}
		return FilterValues{state: next}, nil
	}
	return fv, &filter.Error{Kind: filter.KindMissingValue, Msg: "all placeholders already supplied"}
}

// GetValues returns the supplied value for every non-constant Property
// leaf, in declared (left-to-right) order, erroring with MissingValue if
// any placeholder remains blank.
func (fv FilterValues) GetValues() ([]filter.Value, error) {
	list := ListFor(fv.state.f)
	out := make([]filter.Value, 0, list.NonConstantCount())
	supplied := fv.suppliedMap()
	for i := 0; i < list.Len(); i++ {
		leaf := list.At(i)
		if leaf.IsConstant() {
			continue
		}
		v, ok := supplied[leaf]
		if !ok {
			return nil, &filter.Error{
				Kind: filter.KindMissingValue,
				Msg:  fmt.Sprintf("missing value for %s %s ?", leaf.Chain(), leaf.Operator()),
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// GetSuppliedValues returns whatever non-constant placeholders have been
// filled so far, in declared order, without requiring completeness.
func (fv FilterValues) GetSuppliedValues() []filter.Value {
	list := ListFor(fv.state.f)
	supplied := fv.suppliedMap()
	out := make([]filter.Value, 0, len(supplied))
	for i := 0; i < list.Len(); i++ {
		leaf := list.At(i)
		if leaf.IsConstant() {
			continue
		}
		if v, ok := supplied[leaf]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Supplied returns how many non-constant placeholders have been filled.
func (fv FilterValues) Supplied() int { return len(fv.suppliedMap()) }

// Total returns the filter's total non-constant placeholder count.
func (fv FilterValues) Total() int { return ListFor(fv.state.f).NonConstantCount() }

// MarshalSnapshot returns the (filter, supplied-values) pair used to
// serialise a snapshot across a process boundary.
func (fv FilterValues) MarshalSnapshot() (filter.Filter, []filter.Value) {
	return fv.state.f, fv.GetSuppliedValues()
}

// Rehydrate rebuilds a FilterValues from a serialised (filter,
// supplied-values) pair: it re-binds f (a no-op if f is already fully and
// stably bound) and replays the supplied values in order.
func Rehydrate(f filter.Filter, supplied []filter.Value) (FilterValues, error) {
	bound := NewBinder().Bind(f)
	fv := Initial(bound)
	var err error
	for _, v := range supplied {
		fv, err = fv.With(v)
		if err != nil {
			return fv, err
		}
	}
	return fv, nil
}
