package filter

import (
	"runtime"
	"sync"
	"weak"
)

// weakFilterRef is a type-erased weak.Pointer[T] for one concrete Filter
// implementation (*openFilter, *closedFilter, *propertyFilter, ...), so a
// single hash bucket can hold entries for every concrete kind without the
// cache itself being generic over Filter's whole sum type.
type weakFilterRef interface {
	// resolve returns the referent as a Filter, or nil once it has been
	// collected.
	resolve() Filter
}

type typedWeakRef[T any] struct {
	wp weak.Pointer[T]
}

func (r typedWeakRef[T]) resolve() Filter {
	p := r.wp.Value()
	if p == nil {
		return nil
	}
	f, _ := any(p).(Filter)
	return f
}

// canonicalCache is the process-wide weak-valued set every Filter
// construction path funnels through. filter/parse keeps a separate
// soft-valued per-(type,expr) cache for FilterFor, digest-keyed rather
// than sharing this one, but built on the same weak.Pointer technique.
type canonicalCache struct {
	mu      sync.Mutex
	buckets map[uint64][]weakFilterRef

	// sweepThreshold bounds how large a single hash bucket may grow before
	// a sweep for already-collected entries is attempted on the next
	// insert, ahead of whatever runtime.AddCleanup has already pruned.
	sweepThreshold int
}

func newCanonicalCache() *canonicalCache {
	return &canonicalCache{
		buckets:        make(map[uint64][]weakFilterRef),
		sweepThreshold: 64,
	}
}

var globalCache = newCanonicalCache()

// canonicalize returns the unique live instance structurally equal to v,
// inserting v as that instance if none is currently alive. The cache holds
// only a weak.Pointer to v, so v is reachable through the cache exactly as
// long as it is reachable from somewhere else; once every external
// reference to the returned Filter is dropped, the runtime.AddCleanup
// callback registered here removes the bucket entry, letting v itself be
// collected on the following GC cycle. This is a generic free function
// rather than a method because weak.Pointer is parameterised on v's
// concrete type, and Go methods cannot carry their own type parameters.
func canonicalize[T any](c *canonicalCache, v *T) Filter {
	f, ok := any(v).(Filter)
	if !ok {
		panic("filter: canonicalize requires a Filter-implementing pointer type")
	}
	h := f.Hash()

	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.buckets[h]
	for _, ref := range bucket {
		if existing := ref.resolve(); existing != nil && filterEqual(existing, f) {
			return existing
		}
	}

	if len(bucket) >= c.sweepThreshold {
		bucket = sweepDead(bucket)
	}

	ref := typedWeakRef[T]{wp: weak.Make(v)}
	runtime.AddCleanup(v, c.forget, cleanupArg{hash: h, ref: ref})
	c.buckets[h] = append(bucket, ref)
	return f
}

// cleanupArg is the extra value runtime.AddCleanup passes back to forget
// once v becomes unreachable; it carries everything forget needs to find
// and drop the now-stale bucket entry without re-deriving the hash.
type cleanupArg struct {
	hash uint64
	ref  weakFilterRef
}

func (c *canonicalCache) forget(arg cleanupArg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bucket := c.buckets[arg.hash]
	for i, ref := range bucket {
		if ref == arg.ref {
			c.buckets[arg.hash] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

func sweepDead(bucket []weakFilterRef) []weakFilterRef {
	out := bucket[:0]
	for _, ref := range bucket {
		if ref.resolve() != nil {
			out = append(out, ref)
		}
	}
	return out
}

// filterEqual reports deep structural equality between two filters of the
// same concrete kind. It does not rely on canonical identity, since it is
// the function canonicalize uses to discover whether an identity already
// exists.
func filterEqual(a, b Filter) bool {
	if a == nil || b == nil {
		return a == b
	}
	switch x := a.(type) {
	case *openFilter:
		y, ok := b.(*openFilter)
		return ok && x.typ == y.typ
	case *closedFilter:
		y, ok := b.(*closedFilter)
		return ok && x.typ == y.typ
	case *propertyFilter:
		y, ok := b.(*propertyFilter)
		if !ok {
			return false
		}
		if x.owner != y.owner || !x.chain.Equal(y.chain) || x.op != y.op || x.bind != y.bind {
			return false
		}
		if x.bind == BindConstant {
			return valueEqual(x.value, y.value)
		}
		return true
	case *binaryFilter:
		y, ok := b.(*binaryFilter)
		return ok && x.kind == y.kind && x.left == y.left && x.right == y.right
	case *existsFilter:
		y, ok := b.(*existsFilter)
		return ok && x.owner == y.owner && x.chain.Equal(y.chain) && x.not == y.not && x.sub == y.sub
	default:
		return false
	}
}

func valueEqual(a, b Value) bool {
	type comparer interface{ Equal(Value) bool }
	if ac, ok := a.(comparer); ok {
		return ac.Equal(b)
	}
	return a == b
}

// WeakRef is a weak, type-erased reference to a Filter, for packages
// outside filter (such as filter/parse) that want to build their own
// weak-valued cache over Filter values without access to the unexported
// concrete types underneath the interface.
type WeakRef struct{ ref weakFilterRef }

// NewWeakRef returns a WeakRef to f that does not keep f reachable.
func NewWeakRef(f Filter) WeakRef {
	switch v := f.(type) {
	case *openFilter:
		return WeakRef{ref: typedWeakRef[openFilter]{wp: weak.Make(v)}}
	case *closedFilter:
		return WeakRef{ref: typedWeakRef[closedFilter]{wp: weak.Make(v)}}
	case *propertyFilter:
		return WeakRef{ref: typedWeakRef[propertyFilter]{wp: weak.Make(v)}}
	case *binaryFilter:
		return WeakRef{ref: typedWeakRef[binaryFilter]{wp: weak.Make(v)}}
	case *existsFilter:
		return WeakRef{ref: typedWeakRef[existsFilter]{wp: weak.Make(v)}}
	default:
		panic(newErr(KindInvalidFilter, "weakref: unsupported filter kind %T", f))
	}
}

// Resolve returns the referent, or nil once it has been collected.
func (w WeakRef) Resolve() Filter {
	if w.ref == nil {
		return nil
	}
	return w.ref.resolve()
}

// AddCleanup registers cleanup to run once f becomes unreachable from
// everywhere except this call's own bookkeeping, mirroring
// runtime.AddCleanup's semantics for the concrete pointer type underneath
// the Filter interface.
func AddCleanup(f Filter, cleanup func()) {
	switch v := f.(type) {
	case *openFilter:
		runtime.AddCleanup(v, func(struct{}) { cleanup() }, struct{}{})
	case *closedFilter:
		runtime.AddCleanup(v, func(struct{}) { cleanup() }, struct{}{})
	case *propertyFilter:
		runtime.AddCleanup(v, func(struct{}) { cleanup() }, struct{}{})
	case *binaryFilter:
		runtime.AddCleanup(v, func(struct{}) { cleanup() }, struct{}{})
	case *existsFilter:
		runtime.AddCleanup(v, func(struct{}) { cleanup() }, struct{}{})
	default:
		panic(newErr(KindInvalidFilter, "addcleanup: unsupported filter kind %T", f))
	}
}
