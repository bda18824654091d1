package filter

import (
	"fmt"
	"hash/fnv"
	"sync/atomic"
)

// Filter is the sealed sum type of the query-filter algebra: exactly six
// concrete variants implement it (Open, Closed, Property, And, Or,
// Exists). Every instance reachable from the builder methods, the parser,
// or normalization is canonical: there is at most one live Filter equal to
// any given value.
type Filter interface {
	// RecordType returns the record type this filter's tree applies to.
	RecordType() RecordType
	// Hash returns a structural hash derived from the node's kind,
	// operator, and children; used by the canonical cache.
	Hash() uint64

	isFilter()
}

// BinaryKind distinguishes the two binary node variants.
type BinaryKind int

const (
	KindAnd BinaryKind = iota
	KindOr
)

func (k BinaryKind) String() string {
	if k == KindAnd {
		return "And"
	}
	return "Or"
}

// flag bit layout within a single atomic.Uint32: two bits per memoised
// property (known, value), four properties (bound, reduced, dnf, cnf).
const (
	flagBoundKnown = 1 << iota
	flagBoundValue
	flagReducedKnown
	flagReducedValue
	flagDNFKnown
	flagDNFValue
	flagCNFKnown
	flagCNFValue
)

// memoFlags publishes the lazily computed "is bound"/"is reduced"/"is
// DNF"/"is CNF" properties of a binary node under release/acquire
// semantics: any thread that observes "not yet known" computes the answer
// and publishes it; because the properties are purely derived, a racing
// publish is harmless — both threads compute the same value.
type memoFlags struct {
	bits atomic.Uint32
}

func (m *memoFlags) get(knownBit, valueBit uint32) (known, value bool) {
	b := m.bits.Load()
	return b&knownBit != 0, b&valueBit != 0
}

func (m *memoFlags) publish(knownBit, valueBit uint32, value bool) bool {
	for {
		old := m.bits.Load()
		next := old | knownBit
		if value {
			next |= valueBit
		}
		if m.bits.CompareAndSwap(old, next) {
			return value
		}
	}
}

// openFilter is the identity element of And: open.and(x) == x.
type openFilter struct{ typ RecordType }

func (f *openFilter) RecordType() RecordType { return f.typ }
func (f *openFilter) isFilter()              {}
func (f *openFilter) Hash() uint64           { return hashTyped("open", f.typ) }

// closedFilter is the identity element of Or: closed.or(x) == x.
type closedFilter struct{ typ RecordType }

func (f *closedFilter) RecordType() RecordType { return f.typ }
func (f *closedFilter) isFilter()              {}
func (f *closedFilter) Hash() uint64           { return hashTyped("closed", f.typ) }

// propertyFilter is the leaf `p op ?` or `p op const` test.
type propertyFilter struct {
	owner RecordType // the record type the chain's first segment is rooted at
	chain ChainedProperty
	op    Operator
	bind  BindID // 0 unbound, >0 bound, BindConstant for a literal
	value Value  // only meaningful when bind == BindConstant
}

func (f *propertyFilter) RecordType() RecordType { return f.owner }
func (f *propertyFilter) isFilter()              {}
func (f *propertyFilter) Chain() ChainedProperty { return f.chain }
func (f *propertyFilter) Operator() Operator      { return f.op }
func (f *propertyFilter) BindID() BindID          { return f.bind }
func (f *propertyFilter) IsConstant() bool        { return f.bind == BindConstant }
func (f *propertyFilter) Value() Value            { return f.value }

func (f *propertyFilter) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte("prop"))
	if f.owner != nil {
		h.Write([]byte(f.owner.Name()))
	}
	h.Write([]byte(f.chain.String()))
	h.Write([]byte{byte(f.op)})
	var bindBytes [8]byte
	putUint64(bindBytes[:], uint64(int64(f.bind)))
	h.Write(bindBytes[:])
	if f.bind == BindConstant {
		h.Write([]byte(valueString(f.value)))
	}
	return h.Sum64()
}

// binaryFilter is shared storage for And and Or; kind distinguishes them.
// Both children must share left.RecordType() == right.RecordType().
type binaryFilter struct {
	kind  BinaryKind
	left  Filter
	right Filter

	flags memoFlags
}

func (f *binaryFilter) RecordType() RecordType { return f.left.RecordType() }
func (f *binaryFilter) isFilter()              {}
func (f *binaryFilter) Kind() BinaryKind        { return f.kind }
func (f *binaryFilter) Left() Filter            { return f.left }
func (f *binaryFilter) Right() Filter           { return f.right }

// BoundFlag, ReducedFlag, DNFFlag, and CNFFlag expose the node's lazily
// memoised metadata bits. known reports whether the property has been
// computed yet; value is only meaningful when known is true.
func (f *binaryFilter) BoundFlag() (known, value bool) {
	return f.flags.get(flagBoundKnown, flagBoundValue)
}
func (f *binaryFilter) PublishBoundFlag(value bool) bool {
	return f.flags.publish(flagBoundKnown, flagBoundValue, value)
}
func (f *binaryFilter) ReducedFlag() (known, value bool) {
	return f.flags.get(flagReducedKnown, flagReducedValue)
}
func (f *binaryFilter) PublishReducedFlag(value bool) bool {
	return f.flags.publish(flagReducedKnown, flagReducedValue, value)
}
func (f *binaryFilter) DNFFlag() (known, value bool) {
	return f.flags.get(flagDNFKnown, flagDNFValue)
}
func (f *binaryFilter) PublishDNFFlag(value bool) bool {
	return f.flags.publish(flagDNFKnown, flagDNFValue, value)
}
func (f *binaryFilter) CNFFlag() (known, value bool) {
	return f.flags.get(flagCNFKnown, flagCNFValue)
}
func (f *binaryFilter) PublishCNFFlag(value bool) bool {
	return f.flags.publish(flagCNFKnown, flagCNFValue, value)
}

func (f *binaryFilter) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte("bin"))
	h.Write([]byte{byte(f.kind)})
	var lb, rb [8]byte
	putUint64(lb[:], f.left.Hash())
	putUint64(rb[:], f.right.Hash())
	h.Write(lb[:])
	h.Write(rb[:])
	return h.Sum64()
}

// existsFilter is ∃ (or ¬∃, when not) a joined record satisfying sub.
type existsFilter struct {
	owner RecordType      // the record type the chain's first segment is rooted at
	chain ChainedProperty // last segment is a join
	sub   Filter          // over chain.Last().ElementType
	not   bool
}

func (f *existsFilter) RecordType() RecordType { return f.owner }
func (f *existsFilter) isFilter()              {}
func (f *existsFilter) Chain() ChainedProperty { return f.chain }
func (f *existsFilter) Sub() Filter             { return f.sub }
func (f *existsFilter) Not() bool               { return f.not }

func (f *existsFilter) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte("exists"))
	if f.owner != nil {
		h.Write([]byte(f.owner.Name()))
	}
	h.Write([]byte(f.chain.String()))
	if f.not {
		h.Write([]byte{1})
	}
	var sb [8]byte
	putUint64(sb[:], f.sub.Hash())
	h.Write(sb[:])
	return h.Sum64()
}

func hashTyped(tag string, typ RecordType) uint64 {
	h := fnv.New64a()
	h.Write([]byte(tag))
	if typ != nil {
		h.Write([]byte(typ.Name()))
	}
	return h.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}

func valueString(v Value) string {
	if x, ok := v.(interface{ String() string }); ok {
		return x.String()
	}
	return fmt.Sprintf("%v", v)
}
