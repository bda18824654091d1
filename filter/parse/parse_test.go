package parse

import (
	"testing"

	"github.com/go-quicktest/qt"
	"github.com/google/go-cmp/cmp"
	"github.com/kr/pretty"

	"github.com/relcore/filterkv/filter"
	"github.com/relcore/filterkv/filter/descriptor"
)

func testRegistry() (descriptor.Registry, filter.RecordType, filter.RecordType) {
	orderType := descriptor.NewType("Order")
	lineItemType := descriptor.NewType("LineItem")
	stringType := descriptor.NewType("string")
	intType := descriptor.NewType("int")

	order := descriptor.NewBuilder(orderType).
		KeyField("id", intType, false).
		Field("customer", stringType, false).
		Field("total", intType, false).
		Join("lineItems", lineItemType, false).
		Build()

	lineItem := descriptor.NewBuilder(lineItemType).
		KeyField("orderID", intType, false).
		Field("sku", stringType, false).
		Join("order", orderType, true).
		Build()

	return descriptor.NewMapRegistry(order, lineItem), orderType, lineItemType
}

func TestParseSimpleProperty(t *testing.T) {
	reg, orderType, _ := testRegistry()
	f, err := Parse("", "customer = ?", orderType, reg)
	qt.Assert(t, qt.IsNil(err))
	pn := f.(filter.PropertyNode)
	qt.Assert(t, qt.Equals(pn.Chain().String(), "customer"))
	qt.Assert(t, qt.Equals(pn.Operator(), filter.EQ))
	qt.Assert(t, qt.Equals(pn.BindID(), filter.BindID(0)))
}

func TestParseAndOrPrecedence(t *testing.T) {
	reg, orderType, _ := testRegistry()
	f, err := Parse("", "customer = ? & total > ? | total < ?", orderType, reg)
	qt.Assert(t, qt.IsNil(err))
	bn := f.(filter.BinaryNode)
	qt.Assert(t, qt.Equals(bn.Kind(), filter.KindOr))
}

func TestParseNot(t *testing.T) {
	reg, orderType, _ := testRegistry()
	f, err := Parse("", "!customer = ?", orderType, reg)
	qt.Assert(t, qt.IsNil(err))
	pn := f.(filter.PropertyNode)
	qt.Assert(t, qt.Equals(pn.Operator(), filter.NE))
}

func TestParseParenGrouping(t *testing.T) {
	reg, orderType, _ := testRegistry()
	f, err := Parse("", "(customer = ? | total > ?) & total < ?", orderType, reg)
	qt.Assert(t, qt.IsNil(err))
	bn := f.(filter.BinaryNode)
	qt.Assert(t, qt.Equals(bn.Kind(), filter.KindAnd))
	left := bn.Left().(filter.BinaryNode)
	qt.Assert(t, qt.Equals(left.Kind(), filter.KindOr))
}

func TestParseJoinExists(t *testing.T) {
	reg, orderType, _ := testRegistry()
	f, err := Parse("", "lineItems(sku = ?)", orderType, reg)
	qt.Assert(t, qt.IsNil(err))
	en := f.(filter.ExistsNode)
	qt.Assert(t, qt.Equals(en.Chain().String(), "lineItems"))
	sub := en.Sub().(filter.PropertyNode)
	qt.Assert(t, qt.Equals(sub.Chain().String(), "sku"))
}

func TestParseBareJoinChain(t *testing.T) {
	reg, orderType, _ := testRegistry()
	f, err := Parse("", "lineItems.sku = ?", orderType, reg)
	qt.Assert(t, qt.IsNil(err))
	en := f.(filter.ExistsNode)
	qt.Assert(t, qt.Equals(en.Chain().String(), "lineItems"))
}

func TestParseManyToOneOuterJoin(t *testing.T) {
	reg, _, lineItemType := testRegistry()
	f, err := Parse("", "(order).customer = ?", lineItemType, reg)
	qt.Assert(t, qt.IsNil(err))
	en := f.(filter.ExistsNode)
	qt.Assert(t, qt.Equals(en.Chain().String(), "(order)"))
}

func TestParseUnknownProperty(t *testing.T) {
	reg, orderType, _ := testRegistry()
	_, err := Parse("", "nope = ?", orderType, reg)
	qt.Assert(t, qt.IsNotNil(err))
}

func TestParseTrailingInput(t *testing.T) {
	reg, orderType, _ := testRegistry()
	_, err := Parse("", "customer = ? garbage", orderType, reg)
	qt.Assert(t, qt.IsNotNil(err))
}

func TestParseOuterJoinOnNonJoinProperty(t *testing.T) {
	reg, orderType, _ := testRegistry()
	_, err := Parse("", "(customer).x = ?", orderType, reg)
	qt.Assert(t, qt.IsNotNil(err))
}

func TestParsePrintRoundTrip(t *testing.T) {
	reg, orderType, _ := testRegistry()
	exprs := []string{
		"customer = ?",
		"customer = ? & total > ?",
		"customer = ? | total > ?",
		"lineItems(sku = ?)",
	}
	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			f, err := Parse("", expr, orderType, reg)
			qt.Assert(t, qt.IsNil(err))
			printed := Print(f)
			f2, err := Parse("", printed, orderType, reg)
			qt.Assert(t, qt.IsNil(err))
			reprinted := Print(f2)
			if diff := cmp.Diff(printed, reprinted); diff != "" {
				t.Fatalf("round-trip text mismatch (-want +got):\n%s\nf:  %s\nf2: %s", diff, pretty.Sprint(f), pretty.Sprint(f2))
			}
		})
	}
}

func TestParseBoundPlaceholderPrint(t *testing.T) {
	reg, orderType, _ := testRegistry()
	f, err := Parse("", "customer = ?[3]", orderType, reg)
	qt.Assert(t, qt.IsNil(err))
	pn := f.(filter.PropertyNode)
	qt.Assert(t, qt.Equals(pn.BindID(), filter.BindID(3)))
	qt.Assert(t, qt.Equals(Print(f), "customer = ?[3]"))
}
