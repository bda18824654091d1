package normal

import (
	"github.com/mpvl/unique"

	"github.com/relcore/filterkv/filter"
)

func opposite(k filter.BinaryKind) filter.BinaryKind {
	if k == filter.KindAnd {
		return filter.KindOr
	}
	return filter.KindAnd
}

func construct(kind filter.BinaryKind, l, r filter.Filter) filter.Filter {
	if kind == filter.KindAnd {
		return filter.And(l, r)
	}
	return filter.Or(l, r)
}

// flattenGroup recursively collects f's children through binary nodes of
// the given kind, in left-to-right order. A node not of that kind is a
// singleton group of one.
func flattenGroup(f filter.Filter, kind filter.BinaryKind) []filter.Filter {
	bn, ok := f.(filter.BinaryNode)
	if !ok || bn.Kind() != kind {
		return []filter.Filter{f}
	}
	out := flattenGroup(bn.Left(), kind)
	out = append(out, flattenGroup(bn.Right(), kind)...)
	return out
}

func setOf(fs []filter.Filter) map[filter.Filter]bool {
	m := make(map[filter.Filter]bool, len(fs))
	for _, f := range fs {
		m[f] = true
	}
	return m
}

func subsetOf(small, big map[filter.Filter]bool) bool {
	for f := range small {
		if !big[f] {
			return false
		}
	}
	return true
}

// Reduce rebuilds f, bottom-up, into its reduced form: within every
// maximal same-kind group, a member that is a sub-conjunction (dually,
// sub-disjunction) of another member is dropped, and the surviving
// members are merged back into a deterministic left-leaning tree.
func Reduce(f filter.Filter) (filter.Filter, Stats) {
	var stats Stats
	out := reduce(f, &stats)
	return out, stats
}

func reduce(f filter.Filter, stats *Stats) filter.Filter {
	switch x := f.(type) {
	case filter.BinaryNode:
		if known, val := x.ReducedFlag(); known && val {
			return f
		}
		kind := x.Kind()
		l := reduce(x.Left(), stats)
		r := reduce(x.Right(), stats)

		combined := construct(kind, l, r)
		bn2, ok := combined.(filter.BinaryNode)
		if !ok {
			// Open/Closed/duplicate collapse already reduced it fully.
			return combined
		}
		if bn2.Kind() != kind {
			// construct() can return a node of a different shape only
			// when one side collapsed to an identity of the other kind;
			// nothing left to group here.
			return combined
		}

		members := dedupeAndOrder(flattenGroup(combined, kind))
		members = absorb(kind, members, stats)
		result := fold(kind, members)
		if resBN, ok := result.(filter.BinaryNode); ok {
			resBN.PublishReducedFlag(true)
		}
		return result
	case filter.ExistsNode:
		sub2 := reduce(x.Sub(), stats)
		if sub2 != x.Sub() {
			return filter.NewExists(x.RecordType(), x.Chain(), sub2, x.Not())
		}
		return f
	default:
		return f
	}
}

// IsReduced reports whether f is already in reduced, left-leaning form.
func IsReduced(f filter.Filter) bool {
	bn, ok := f.(filter.BinaryNode)
	if !ok {
		return true
	}
	if known, val := bn.ReducedFlag(); known {
		return val
	}
	reduced, _ := Reduce(f)
	return reduced == f
}

// groupSlice adapts a []filter.Filter to mpvl/unique's Interface so that
// Sort can both order the group deterministically (by structural hash, so
// logically-equivalent groups fold to the same canonical tree regardless
// of original insertion order) and collapse exact duplicates in one pass.
type groupSlice []filter.Filter

func (g groupSlice) Len() int      { return len(g) }
func (g groupSlice) Swap(i, j int) { g[i], g[j] = g[j], g[i] }
func (g groupSlice) Less(i, j int) bool {
	if g[i].Hash() != g[j].Hash() {
		return g[i].Hash() < g[j].Hash()
	}
	return false
}

// dedupeAndOrder sorts fs by structural hash and drops consecutive
// duplicates (same canonical instance appearing more than once in the
// group), returning an insertion-ordered set made deterministic.
func dedupeAndOrder(fs []filter.Filter) []filter.Filter {
	g := make(groupSlice, len(fs))
	copy(g, fs)
	n := unique.Sort(g)
	g = g[:n]
	// unique.Sort only collapses elements Less reports as equal (tied
	// hash); fall back to an explicit identity pass for any hash
	// collisions between genuinely distinct filters.
	out := make([]filter.Filter, 0, len(g))
	seen := make(map[filter.Filter]bool, len(g))
	for _, f := range g {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func absorb(kind filter.BinaryKind, members []filter.Filter, stats *Stats) []filter.Filter {
	opp := opposite(kind)
	sets := make([]map[filter.Filter]bool, len(members))
	for i, m := range members {
		sets[i] = setOf(flattenGroup(m, opp))
	}
	removed := make([]bool, len(members))
	for i := range members {
		if removed[i] {
			continue
		}
		for j := range members {
			if i == j || removed[j] {
				continue
			}
			stats.AbsorptionsChecked++
			if subsetOf(sets[j], sets[i]) {
				removed[i] = true
				stats.AbsorptionsApplied++
				break
			}
		}
	}
	out := make([]filter.Filter, 0, len(members))
	for i, m := range members {
		if !removed[i] {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		// every member mutually absorbed (all equal); keep the first.
		return members[:1]
	}
	return out
}

func fold(kind filter.BinaryKind, members []filter.Filter) filter.Filter {
	acc := members[0]
	for _, m := range members[1:] {
		acc = construct(kind, acc, m)
	}
	return acc
}
