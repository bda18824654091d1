// Package storekv defines the storage capabilities RawCursor consumes —
// RawSupport for point operations and CursorSupport for positioned scans —
// plus RawCursor itself, a bounded forward/reverse iterator over a sorted
// key space. Neither interface is given a real backing-store
// implementation here; cmd/filterkv wires an in-memory fixture against
// them for demonstration only.
package storekv

import "context"

// RawSupport is the point-operation capability a record's storage adapter
// consumes. Each method maps one-for-one onto a single backing-store
// operation; blocking calls take a context the way a consumed fs.FS
// capability does for its Open/ReadDir calls.
type RawSupport interface {
	// TryLoad fetches the value stored under key, reporting found=false
	// without error if no such key exists.
	TryLoad(ctx context.Context, key []byte) (value []byte, found bool, err error)
	// TryInsert stores key/value only if key is absent, reporting
	// inserted=false without error if it already exists.
	TryInsert(ctx context.Context, key, value []byte) (inserted bool, err error)
	// Store unconditionally writes key/value, overwriting any existing
	// value.
	Store(ctx context.Context, key, value []byte) error
	// TryDelete removes key, reporting deleted=false without error if it
	// was already absent.
	TryDelete(ctx context.Context, key []byte) (deleted bool, err error)
	// Decode unmarshals data (whose layout follows the generation tag
	// read from its own bytes) into dest, handling any schema evolution
	// between generation and the caller's current schema.
	Decode(ctx context.Context, dest interface{}, generation uint32, data []byte) error
}

// CursorSupport positions a cursor over a sorted key/value space and
// reads back the key/value/record at the current position. It is
// single-threaded: RawCursor's caller holds a lock around every RawCursor
// call (see RawCursor's doc comment), so no method here needs to be safe
// for concurrent use on its own.
type CursorSupport interface {
	ToFirst(ctx context.Context) error
	ToLast(ctx context.Context) error
	// ToFirstFrom positions at the first key >= key (the seek used for an
	// inclusive or exclusive lower bound; RawCursor handles advancing past
	// an exclusive match itself).
	ToFirstFrom(ctx context.Context, key []byte) error
	// ToLastFrom positions at the last key <= key, the mirror of
	// ToFirstFrom for an upper bound.
	ToLastFrom(ctx context.Context, key []byte) error
	ToNext(ctx context.Context) error
	ToPrevious(ctx context.Context) error

	// Valid reports whether the cursor is positioned on a real entry
	// (false past either end of the underlying space).
	Valid() bool
	CurrentKey() []byte
	CurrentValue() []byte
	// InstantiateCurrent decodes the current key/value into a concrete
	// record, via RawSupport.Decode under the hood.
	InstantiateCurrent(ctx context.Context) (interface{}, error)

	// DisableKeyAndValue and EnableKeyAndValue hint that the backing
	// store need not materialise keys/values while the cursor is only
	// being advanced (the skip optimisation).
	DisableKeyAndValue()
	EnableKeyAndValue()
}
