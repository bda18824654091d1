// Package demo builds a small fixed record schema — orders and their line
// items — used by cmd/filterkv to exercise the filter, codec, and storekv
// packages against something more concrete than bare flag values. None of
// it is meant to be a reusable ORM binding; it exists only to give the CLI
// a descriptor.Registry, a codec.Schema, and a sample in-memory store to
// run commands against.
package demo

import (
	"github.com/relcore/filterkv/codec"
	"github.com/relcore/filterkv/filter"
	"github.com/relcore/filterkv/filter/descriptor"
)

var (
	// OrderType and LineItemType are the two record types the demo
	// schema declares, joined one-to-many (Order.lineItems) and
	// many-to-one (LineItem.order).
	OrderType    = descriptor.NewType("Order")
	LineItemType = descriptor.NewType("LineItem")
	StringType   = descriptor.NewType("string")
	IntType      = descriptor.NewType("int")
)

// NewRegistry builds the descriptor.Registry for the demo schema.
func NewRegistry() descriptor.Registry {
	order := descriptor.NewBuilder(OrderType).
		KeyField("id", IntType, false).
		Field("customer", StringType, false).
		Field("total", IntType, false).
		Field("notes", StringType, true).
		Join("lineItems", LineItemType, false).
		Build()

	lineItem := descriptor.NewBuilder(LineItemType).
		KeyField("orderID", IntType, false).
		KeyField("seq", IntType, false).
		Field("sku", StringType, false).
		Field("qty", IntType, false).
		Join("order", OrderType, true).
		Build()

	return descriptor.NewMapRegistry(order, lineItem)
}

// OrderSchema is the codec.Schema for Order, used by the encode-key and
// decode-key subcommands: a single uint64 key field and three value
// fields (customer name, total, and a nullable note), matching the
// descriptor above in all but the join property, which the codec layer
// never sees — joins are resolved by filter/join, not stored inline.
func OrderSchema() codec.Schema {
	return codec.Schema{
		Key: []codec.Field{
			{Name: "id", Kind: codec.KindU64},
		},
		Value: []codec.Field{
			{Name: "customer", Kind: codec.KindString},
			{Name: "total", Kind: codec.KindI64},
			{Name: "notes", Kind: codec.KindString, Nullable: true},
		},
		Generation: 1,
	}
}

// LookupType resolves a type name as typed on the command line to the
// RecordType the demo registry actually registered descriptors under.
func LookupType(name string) (filter.RecordType, bool) {
	switch name {
	case "Order":
		return OrderType, true
	case "LineItem":
		return LineItemType, true
	default:
		return nil, false
	}
}
