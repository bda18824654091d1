package parse

import (
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/relcore/filterkv/filter"
	"github.com/relcore/filterkv/filter/descriptor"
)

// filterForKey identifies a cached parse result by record type and a
// content digest of the expression text, rather than the text itself —
// two textually distinct but byte-identical expressions collapse onto the
// same slot without the cache holding an arbitrary-length string live.
type filterForKey struct {
	typ filter.RecordType
	dig digest.Digest
}

// filterForEntry is a soft-valued, per-(type,expr) cache slot built on
// filter.WeakRef: it holds no strong reference to the parsed Filter, so
// the entry is reachable exactly as long as something outside this cache
// still holds the Filter it parsed. filter.AddCleanup prunes the map entry
// once that stops being true.
type filterForEntry struct {
	ref filter.WeakRef
}

var (
	filterForMu    sync.Mutex
	filterForCache = make(map[filterForKey]*filterForEntry)
)

// FilterFor parses expr against typ's descriptor in reg, memoising the
// result in a soft-valued, per-type cache so repeated calls with the same
// type and expression text return the same canonical filter without
// re-parsing. Parse errors are not cached.
func FilterFor(typ filter.RecordType, expr string, reg descriptor.Registry) (filter.Filter, error) {
	key := filterForKey{typ: typ, dig: digest.FromString(expr)}

	filterForMu.Lock()
	if e, ok := filterForCache[key]; ok {
		if f := e.ref.Resolve(); f != nil {
			filterForMu.Unlock()
			return f, nil
		}
	}
	filterForMu.Unlock()

	f, err := Parse("", expr, typ, reg)
	if err != nil {
		return nil, err
	}

	entry := &filterForEntry{ref: filter.NewWeakRef(f)}
	filter.AddCleanup(f, func() { forgetFilterFor(key, entry) })

	filterForMu.Lock()
	filterForCache[key] = entry
	filterForMu.Unlock()
	return f, nil
}

// forgetFilterFor drops key's cache slot once its Filter has become
// unreachable everywhere else, but only if the slot still holds the entry
// the cleanup was registered for — a newer parse of the same key may
// already have replaced it.
func forgetFilterFor(key filterForKey, entry *filterForEntry) {
	filterForMu.Lock()
	defer filterForMu.Unlock()
	if filterForCache[key] == entry {
		delete(filterForCache, key)
	}
}
