package normal

import "github.com/relcore/filterkv/filter"

// CNF converts f to conjunctive normal form: the dual of DNF — no And node
// appears beneath an Or node.
func CNF(f filter.Filter) (filter.Filter, Stats) {
	var stats Stats
	out := toCNF(f, &stats)
	return out, stats
}

// IsCNF reports whether f is already in conjunctive normal form.
func IsCNF(f filter.Filter) bool {
	bn, ok := f.(filter.BinaryNode)
	if !ok {
		return true
	}
	if known, val := bn.CNFFlag(); known {
		return val
	}
	val := isCNFUncached(f)
	bn.PublishCNFFlag(val)
	return val
}

func isCNFUncached(f filter.Filter) bool {
	bn, ok := f.(filter.BinaryNode)
	if !ok {
		return true
	}
	if bn.Kind() == filter.KindOr {
		if hasKindBeneath(bn.Left(), filter.KindAnd) || hasKindBeneath(bn.Right(), filter.KindAnd) {
			return false
		}
	}
	return IsCNF(bn.Left()) && IsCNF(bn.Right())
}

func toCNF(f filter.Filter, stats *Stats) filter.Filter {
	switch x := f.(type) {
	case filter.BinaryNode:
		if known, val := x.CNFFlag(); known && val {
			return f
		}
		l := toCNF(x.Left(), stats)
		r := toCNF(x.Right(), stats)
		var out filter.Filter
		if x.Kind() == filter.KindOr {
			out = distributeOr(l, r, stats)
		} else {
			out = filter.And(l, r)
			if bn, ok := out.(filter.BinaryNode); ok {
				red, s := Reduce(bn)
				stats.merge(s)
				out = red
			}
		}
		if bn, ok := out.(filter.BinaryNode); ok {
			bn.PublishCNFFlag(true)
		}
		return out
	case filter.ExistsNode:
		sub2 := toCNF(x.Sub(), stats)
		if sub2 != x.Sub() {
			return filter.NewExists(x.RecordType(), x.Chain(), sub2, x.Not())
		}
		return f
	default:
		return f
	}
}

// distributeOr distributes an Or across whichever side is an And,
// recursively, so the result has no And beneath an Or.
func distributeOr(l, r filter.Filter, stats *Stats) filter.Filter {
	if lb, ok := l.(filter.BinaryNode); ok && lb.Kind() == filter.KindAnd {
		stats.Distributions++
		out := filter.And(distributeOr(lb.Left(), r, stats), distributeOr(lb.Right(), r, stats))
		if bn, ok := out.(filter.BinaryNode); ok {
			red, s := Reduce(bn)
			stats.merge(s)
			return red
		}
		return out
	}
	if rb, ok := r.(filter.BinaryNode); ok && rb.Kind() == filter.KindAnd {
		stats.Distributions++
		out := filter.And(distributeOr(l, rb.Left(), stats), distributeOr(l, rb.Right(), stats))
		if bn, ok := out.(filter.BinaryNode); ok {
			red, s := Reduce(bn)
			stats.merge(s)
			return red
		}
		return out
	}
	out := filter.Or(l, r)
	if bn, ok := out.(filter.BinaryNode); ok {
		red, s := Reduce(bn)
		stats.merge(s)
		return red
	}
	return out
}
