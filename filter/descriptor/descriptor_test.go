package descriptor

import (
	"testing"

	"github.com/go-quicktest/qt"
)

func TestBuilderAndDescriptor(t *testing.T) {
	orderType := NewType("Order")
	stringType := NewType("string")
	lineItemType := NewType("LineItem")

	order := NewBuilder(orderType).
		KeyField("id", stringType, false).
		Field("customer", stringType, false).
		Field("notes", stringType, true).
		Join("lineItems", lineItemType, false).
		Build()

	qt.Assert(t, qt.Equals(order.Type(), orderType))

	pd, ok := order.Property("customer")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(pd.Nullable, false))
	qt.Assert(t, qt.Equals(pd.PrimaryKeySeq, 0))

	join, ok := order.Property("lineItems")
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(join.IsJoin, true))
	qt.Assert(t, qt.Equals(join.ManyToOne, false))

	_, ok = order.Property("nonexistent")
	qt.Assert(t, qt.Equals(ok, false))
}

func TestBuilderPrimaryKeyOrder(t *testing.T) {
	lineItemType := NewType("LineItem")
	intType := NewType("int")

	lineItem := NewBuilder(lineItemType).
		KeyField("orderID", intType, false).
		KeyField("seq", intType, true).
		Field("sku", intType, false).
		Build()

	pk := lineItem.PrimaryKey()
	qt.Assert(t, qt.Equals(len(pk), 2))
	qt.Assert(t, qt.Equals(pk[0].Name, "orderID"))
	qt.Assert(t, qt.Equals(pk[0].PrimaryKeySeq, 1))
	qt.Assert(t, qt.Equals(pk[1].Name, "seq"))
	qt.Assert(t, qt.Equals(pk[1].PrimaryKeySeq, 2))
	qt.Assert(t, qt.Equals(pk[1].Descending, true))
}

func TestMapRegistry(t *testing.T) {
	orderType := NewType("Order")
	stringType := NewType("string")
	order := NewBuilder(orderType).KeyField("id", stringType, false).Build()

	reg := NewMapRegistry(order)
	d, ok := reg.Describe(orderType)
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(d.Type(), orderType))

	_, ok = reg.Describe(NewType("Unknown"))
	qt.Assert(t, qt.Equals(ok, false))
}

func TestPrimaryKeyReturnsDefensiveCopy(t *testing.T) {
	orderType := NewType("Order")
	stringType := NewType("string")
	order := NewBuilder(orderType).KeyField("id", stringType, false).Build()

	pk := order.PrimaryKey()
	pk[0].Name = "mutated"
	pk2 := order.PrimaryKey()
	qt.Assert(t, qt.Equals(pk2[0].Name, "id"))
}
