// Package descriptor defines the opaque record-descriptor service consumed
// by filter/parse: given a record type, it answers which
// properties exist, their declared element type, and which ones form the
// primary key. How the descriptor is sourced (hand-written, reflection,
// code generation) is out of scope; this package also supplies a small
// in-memory builder used by this module's own tests and by cmd/filterkv,
// standing in for the record-class code generation the original ORM
// performs at run time (see design notes on code-generation of record
// classes).
package descriptor

import "github.com/relcore/filterkv/filter"

// PropertyDescriptor describes one property of a record type.
type PropertyDescriptor struct {
	Name          string
	ElementType   filter.RecordType
	Nullable      bool
	IsJoin        bool
	ManyToOne     bool // only meaningful when IsJoin
	IsDerived     bool
	PrimaryKeySeq int // 1-based position in the primary key; 0 if not a key property
	Descending    bool // declared direction within the primary key
}

// Descriptor answers property lookups for one record type.
type Descriptor interface {
	Type() filter.RecordType
	Property(name string) (PropertyDescriptor, bool)
	// PrimaryKey returns the primary-key properties in declared order.
	PrimaryKey() []PropertyDescriptor
}

// Registry resolves a RecordType's Descriptor. filter/parse consumes a
// Registry, never a bare Descriptor, since chained properties cross
// record-type boundaries through joins.
type Registry interface {
	Describe(typ filter.RecordType) (Descriptor, bool)
}

// simpleType is the RecordType implementation the builder produces.
type simpleType string

func (s simpleType) Name() string { return string(s) }

// NewType returns a RecordType identified by name; two calls with the same
// name return equal (but not necessarily identical) values — callers that
// need canonical identity should retain and reuse the first Type value.
func NewType(name string) filter.RecordType { return simpleType(name) }

// Builder assembles a Descriptor and registers it into a Registry.
type Builder struct {
	typ   filter.RecordType
	props map[string]PropertyDescriptor
	pk    []PropertyDescriptor
}

// NewBuilder starts building a descriptor for typ.
func NewBuilder(typ filter.RecordType) *Builder {
	return &Builder{typ: typ, props: make(map[string]PropertyDescriptor)}
}

// Field adds a plain (non-join, non-key) property.
func (b *Builder) Field(name string, elem filter.RecordType, nullable bool) *Builder {
	b.props[name] = PropertyDescriptor{Name: name, ElementType: elem, Nullable: nullable}
	return b
}

// KeyField adds a primary-key property at the next sequence position.
func (b *Builder) KeyField(name string, elem filter.RecordType, descending bool) *Builder {
	pd := PropertyDescriptor{Name: name, ElementType: elem, PrimaryKeySeq: len(b.pk) + 1, Descending: descending}
	b.props[name] = pd
	b.pk = append(b.pk, pd)
	return b
}

// Join adds a join property.
func (b *Builder) Join(name string, elem filter.RecordType, manyToOne bool) *Builder {
	b.props[name] = PropertyDescriptor{Name: name, ElementType: elem, IsJoin: true, ManyToOne: manyToOne}
	return b
}

// Build finalises the descriptor.
func (b *Builder) Build() Descriptor {
	return &staticDescriptor{typ: b.typ, props: b.props, pk: b.pk}
}

type staticDescriptor struct {
	typ   filter.RecordType
	props map[string]PropertyDescriptor
	pk    []PropertyDescriptor
}

func (d *staticDescriptor) Type() filter.RecordType { return d.typ }

func (d *staticDescriptor) Property(name string) (PropertyDescriptor, bool) {
	p, ok := d.props[name]
	return p, ok
}

func (d *staticDescriptor) PrimaryKey() []PropertyDescriptor {
	return append([]PropertyDescriptor(nil), d.pk...)
}

// MapRegistry is a Registry backed by a plain map, sufficient for tests and
// the CLI's fixed demo schema.
type MapRegistry struct {
	byName map[string]Descriptor
}

// NewMapRegistry builds a Registry from a set of descriptors.
func NewMapRegistry(descs ...Descriptor) *MapRegistry {
	r := &MapRegistry{byName: make(map[string]Descriptor)}
	for _, d := range descs {
		r.byName[d.Type().Name()] = d
	}
	return r
}

func (r *MapRegistry) Describe(typ filter.RecordType) (Descriptor, bool) {
	d, ok := r.byName[typ.Name()]
	return d, ok
}
