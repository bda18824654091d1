package filter

// PropertyNode is the exported view of a Property leaf filter, used by
// filter/normal, filter/bind, filter/join, and filter/parse to inspect a
// filter tree without access to the unexported concrete types.
type PropertyNode interface {
	Filter
	Chain() ChainedProperty
	Operator() Operator
	BindID() BindID
	IsConstant() bool
	Value() Value
}

// BinaryNode is the exported view of an And/Or filter, including the
// lazily memoised metadata flags.
type BinaryNode interface {
	Filter
	Kind() BinaryKind
	Left() Filter
	Right() Filter

	BoundFlag() (known, value bool)
	PublishBoundFlag(value bool) bool
	ReducedFlag() (known, value bool)
	PublishReducedFlag(value bool) bool
	DNFFlag() (known, value bool)
	PublishDNFFlag(value bool) bool
	CNFFlag() (known, value bool)
	PublishCNFFlag(value bool) bool
}

// ExistsNode is the exported view of an Exists filter.
type ExistsNode interface {
	Filter
	Chain() ChainedProperty
	Sub() Filter
	Not() bool
}

// Open returns the canonical Open filter (always true; identity of And)
// for typ.
func Open(typ RecordType) Filter {
	return canonicalize(globalCache, &openFilter{typ: typ})
}

// Closed returns the canonical Closed filter (always false; identity of
// Or) for typ.
func Closed(typ RecordType) Filter {
	return canonicalize(globalCache, &closedFilter{typ: typ})
}

// IsOpen reports whether f is the Open filter.
func IsOpen(f Filter) bool { _, ok := f.(*openFilter); return ok }

// IsClosed reports whether f is the Closed filter.
func IsClosed(f Filter) bool { _, ok := f.(*closedFilter); return ok }

// NewProperty builds (or retrieves the canonical instance of) a Property
// leaf `chain op ?` (bind == 0, unbound placeholder), `chain op ?[bind]`
// (bind > 0), or `chain op value` (bind == BindConstant), rooted at owner.
func NewProperty(owner RecordType, chain ChainedProperty, op Operator, bind BindID, value Value) Filter {
	if chain.Last().OuterJoin {
		panic(newErr(KindInvalidProperty, "outer join not allowed on last segment of %s", chain))
	}
	return canonicalize(globalCache, &propertyFilter{owner: owner, chain: chain, op: op, bind: bind, value: value})
}

// NewExists builds (or retrieves) an Exists filter over chain (whose last
// segment must be a join) with sub-filter sub, rooted at owner. An Exists
// whose sub-filter is Closed collapses to Closed (or Open if not); the
// many-to-one collapse to an equivalent joined Property/composite filter is
// performed by filter/join, since it requires rewriting sub into the
// enclosing type.
func NewExists(owner RecordType, chain ChainedProperty, sub Filter, not bool) Filter {
	last := chain.Last()
	if !last.IsJoin {
		panic(newErr(KindInvalidProperty, "exists requires a join property, got %s", chain))
	}
	if IsClosed(sub) {
		if not {
			return Open(owner)
		}
		return Closed(owner)
	}
	return canonicalize(globalCache, &existsFilter{owner: owner, chain: chain, sub: sub, not: not})
}

// And returns the canonical conjunction of l and r, applying the identity
// and record-type-agreement rules: Open.and(x) == x, Closed.and(x) ==
// Closed, and a type mismatch between l and r panics with InvalidFilter
// (construction errors here are programmer errors, not user input errors;
// the parser and builder shortcuts validate user input before reaching
// this point).
func And(l, r Filter) Filter {
	requireSameType(l, r)
	if IsOpen(l) {
		return r
	}
	if IsOpen(r) {
		return l
	}
	if IsClosed(l) {
		return l
	}
	if IsClosed(r) {
		return r
	}
	return canonicalize(globalCache, &binaryFilter{kind: KindAnd, left: l, right: r})
}

// Or returns the canonical disjunction of l and r, applying Open.or(x) ==
// Open, Closed.or(x) == x.
func Or(l, r Filter) Filter {
	requireSameType(l, r)
	if IsClosed(l) {
		return r
	}
	if IsClosed(r) {
		return l
	}
	if IsOpen(l) {
		return l
	}
	if IsOpen(r) {
		return r
	}
	return canonicalize(globalCache, &binaryFilter{kind: KindOr, left: l, right: r})
}

func requireSameType(l, r Filter) {
	if l.RecordType() != r.RecordType() {
		panic(newErr(KindInvalidFilter, "mismatched record types %v and %v", l.RecordType(), r.RecordType()))
	}
}

// Not pushes negation to the leaves via De Morgan for And/Or, operator
// reversal for Property, and not-flag toggling for Exists. Negating Open
// yields Closed and vice versa. Negating a Property whose chain contains
// join segments additionally flips the inner/outer join annotation on all
// but the last segment, per the algebra's invariant that negation through
// a join must also flip how that join's absence is interpreted.
func Not(f Filter) Filter {
	switch x := f.(type) {
	case *openFilter:
		return Closed(x.typ)
	case *closedFilter:
		return Open(x.typ)
	case *propertyFilter:
		return NewProperty(x.owner, flipJoinAnnotations(x.chain), x.op.Reverse(), x.bind, x.value)
	case *binaryFilter:
		if x.kind == KindAnd {
			return Or(Not(x.left), Not(x.right))
		}
		return And(Not(x.left), Not(x.right))
	case *existsFilter:
		return NewExists(x.owner, x.chain, x.sub, !x.not)
	default:
		panic(newErr(KindInvalidFilter, "not: unsupported filter kind %T", f))
	}
}

func flipJoinAnnotations(chain ChainedProperty) ChainedProperty {
	segs := chain.Segments()
	for i := 0; i < len(segs)-1; i++ {
		if segs[i].IsJoin {
			segs[i].OuterJoin = !segs[i].OuterJoin
		}
	}
	return NewChainedProperty(segs...)
}
