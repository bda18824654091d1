package normal

import "github.com/relcore/filterkv/filter"

// DNF converts f to disjunctive normal form: no Or node appears beneath an
// And node, and every child is itself in DNF.
func DNF(f filter.Filter) (filter.Filter, Stats) {
	var stats Stats
	out := toDNF(f, &stats)
	return out, stats
}

// IsDNF reports whether f is already in disjunctive normal form.
func IsDNF(f filter.Filter) bool {
	bn, ok := f.(filter.BinaryNode)
	if !ok {
		return true
	}
	if known, val := bn.DNFFlag(); known {
		return val
	}
	val := isDNFUncached(f)
	bn.PublishDNFFlag(val)
	return val
}

func isDNFUncached(f filter.Filter) bool {
	bn, ok := f.(filter.BinaryNode)
	if !ok {
		return true
	}
	if bn.Kind() == filter.KindAnd {
		if hasKindBeneath(bn.Left(), filter.KindOr) || hasKindBeneath(bn.Right(), filter.KindOr) {
			return false
		}
	}
	return IsDNF(bn.Left()) && IsDNF(bn.Right())
}

// hasKindBeneath reports whether f is, or contains anywhere beneath it, a
// binary node of the given kind.
func hasKindBeneath(f filter.Filter, kind filter.BinaryKind) bool {
	bn, ok := f.(filter.BinaryNode)
	if !ok {
		return false
	}
	if bn.Kind() == kind {
		return true
	}
	return hasKindBeneath(bn.Left(), kind) || hasKindBeneath(bn.Right(), kind)
}

func toDNF(f filter.Filter, stats *Stats) filter.Filter {
	switch x := f.(type) {
	case filter.BinaryNode:
		if known, val := x.DNFFlag(); known && val {
			return f
		}
		l := toDNF(x.Left(), stats)
		r := toDNF(x.Right(), stats)
		var out filter.Filter
		if x.Kind() == filter.KindAnd {
			out = distributeAnd(l, r, stats)
		} else {
			out = filter.Or(l, r)
			if bn, ok := out.(filter.BinaryNode); ok {
				red, s := Reduce(bn)
				stats.merge(s)
				out = red
			}
		}
		if bn, ok := out.(filter.BinaryNode); ok {
			bn.PublishDNFFlag(true)
		}
		return out
	case filter.ExistsNode:
		sub2 := toDNF(x.Sub(), stats)
		if sub2 != x.Sub() {
			return filter.NewExists(x.RecordType(), x.Chain(), sub2, x.Not())
		}
		return f
	default:
		return f
	}
}

// distributeAnd distributes an And across whichever side is an Or,
// recursively, so that the result has no Or beneath an And.
func distributeAnd(l, r filter.Filter, stats *Stats) filter.Filter {
	if lb, ok := l.(filter.BinaryNode); ok && lb.Kind() == filter.KindOr {
		stats.Distributions++
		out := filter.Or(distributeAnd(lb.Left(), r, stats), distributeAnd(lb.Right(), r, stats))
		if bn, ok := out.(filter.BinaryNode); ok {
			red, s := Reduce(bn)
			stats.merge(s)
			return red
		}
		return out
	}
	if rb, ok := r.(filter.BinaryNode); ok && rb.Kind() == filter.KindOr {
		stats.Distributions++
		out := filter.Or(distributeAnd(l, rb.Left(), stats), distributeAnd(l, rb.Right(), stats))
		if bn, ok := out.(filter.BinaryNode); ok {
			red, s := Reduce(bn)
			stats.merge(s)
			return red
		}
		return out
	}
	out := filter.And(l, r)
	if bn, ok := out.(filter.BinaryNode); ok {
		red, s := Reduce(bn)
		stats.merge(s)
		return red
	}
	return out
}
