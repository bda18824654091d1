package normal

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/relcore/filterkv/filter"
)

type recType string

func (t recType) Name() string { return string(t) }

var order = recType("Order")

func prop(name string, op filter.Operator, v filter.Value) filter.Filter {
	chain := filter.NewChainedProperty(filter.Segment{Name: name, ElementType: recType("string")})
	return filter.NewProperty(order, chain, op, filter.BindConstant, v)
}

func TestCNFDistributesOrOverAnd(t *testing.T) {
	a := prop("a", filter.EQ, 1)
	b := prop("b", filter.EQ, 2)
	c := prop("c", filter.EQ, 3)
	f := filter.Or(a, filter.And(b, c))

	out, stats := CNF(f)
	qt.Assert(t, qt.IsTrue(IsCNF(out)))
	qt.Assert(t, qt.Equals(stats.Distributions >= 1, true))

	bn := out.(filter.BinaryNode)
	qt.Assert(t, qt.Equals(bn.Kind(), filter.KindAnd))
}

func TestDNFDistributesAndOverOr(t *testing.T) {
	a := prop("a", filter.EQ, 1)
	b := prop("b", filter.EQ, 2)
	c := prop("c", filter.EQ, 3)
	f := filter.And(a, filter.Or(b, c))

	out, stats := DNF(f)
	qt.Assert(t, qt.IsTrue(IsDNF(out)))
	qt.Assert(t, qt.Equals(stats.Distributions >= 1, true))

	bn := out.(filter.BinaryNode)
	qt.Assert(t, qt.Equals(bn.Kind(), filter.KindOr))
}

func TestIsCNFTrivialLeaf(t *testing.T) {
	qt.Assert(t, qt.IsTrue(IsCNF(prop("a", filter.EQ, 1))))
	qt.Assert(t, qt.IsTrue(IsDNF(prop("a", filter.EQ, 1))))
}

func TestReduceIdempotentDuplicate(t *testing.T) {
	a := prop("a", filter.EQ, 1)
	f := filter.And(a, a)
	out, _ := Reduce(f)
	qt.Assert(t, qt.Equals(out, a))
}

func TestReduceAbsorption(t *testing.T) {
	a := prop("a", filter.EQ, 1)
	b := prop("b", filter.EQ, 2)
	// a & (a | b) reduces to a (absorption law).
	f := filter.And(a, filter.Or(a, b))
	out, stats := Reduce(f)
	qt.Assert(t, qt.Equals(out, a))
	qt.Assert(t, qt.Equals(stats.AbsorptionsApplied >= 1, true))
}

func TestIsReduced(t *testing.T) {
	a := prop("a", filter.EQ, 1)
	b := prop("b", filter.EQ, 2)
	f := filter.And(a, b)
	qt.Assert(t, qt.IsTrue(IsReduced(f)))

	redundant := filter.And(a, filter.Or(a, b))
	qt.Assert(t, qt.Equals(IsReduced(redundant), false))
}

func TestCNFFlagStableAcrossCalls(t *testing.T) {
	a := prop("a", filter.EQ, 1)
	b := prop("b", filter.EQ, 2)
	f := filter.Or(a, b)
	out, _ := CNF(f)
	qt.Assert(t, qt.IsTrue(IsCNF(out)))
	qt.Assert(t, qt.IsTrue(IsCNF(out))) // second call hits the memoised flag
}
