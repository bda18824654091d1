package bind

import (
	"sync"

	"github.com/relcore/filterkv/filter"
)

// PropertyFilterList is the left-to-right sequence of Property leaves in a
// filter tree (descending into Exists sub-filters, since their parameters
// share the enclosing Binder's identity map and so participate in the same
// declared-property ordering). It is built once per filter and cached on
// that filter's identity.
type PropertyFilterList struct {
	leaves         []filter.PropertyNode
	nonConstBefore []int // memoised count of non-constant leaves strictly before index i
	totalNonConst  int
}

// Len returns the number of Property leaves, constants included.
func (l *PropertyFilterList) Len() int { return len(l.leaves) }

// At returns the i'th leaf in declared order.
func (l *PropertyFilterList) At(i int) filter.PropertyNode { return l.leaves[i] }

// NonConstantCount returns the number of non-constant (parameter) leaves.
func (l *PropertyFilterList) NonConstantCount() int { return l.totalNonConst }

// RemainingForward returns the count of non-constant leaves from index i to
// the end, inclusive.
func (l *PropertyFilterList) RemainingForward(i int) int {
	return l.totalNonConst - l.nonConstBefore[i]
}

// RemainingBackward returns the count of non-constant leaves from the start
// through index i, inclusive.
func (l *PropertyFilterList) RemainingBackward(i int) int {
	n := l.nonConstBefore[i]
	if !l.leaves[i].IsConstant() {
		n++
	}
	return n
}

var listCache sync.Map // filter.Filter -> *PropertyFilterList

// ListFor returns the cached PropertyFilterList for f, building it on first
// use.
func ListFor(f filter.Filter) *PropertyFilterList {
	if v, ok := listCache.Load(f); ok {
		return v.(*PropertyFilterList)
	}
	list := buildList(f)
	actual, _ := listCache.LoadOrStore(f, list)
	return actual.(*PropertyFilterList)
}

func buildList(f filter.Filter) *PropertyFilterList {
	var leaves []filter.PropertyNode
	collectLeaves(f, &leaves)
	list := &PropertyFilterList{
		leaves:         leaves,
		nonConstBefore: make([]int, len(leaves)),
	}
	count := 0
	for i, leaf := range leaves {
		list.nonConstBefore[i] = count
		if !leaf.IsConstant() {
			count++
		}
	}
	list.totalNonConst = count
	return list
}

func collectLeaves(f filter.Filter, out *[]filter.PropertyNode) {
	switch x := f.(type) {
	case filter.PropertyNode:
		*out = append(*out, x)
	case filter.BinaryNode:
		collectLeaves(x.Left(), out)
		collectLeaves(x.Right(), out)
	case filter.ExistsNode:
		collectLeaves(x.Sub(), out)
	}
}
