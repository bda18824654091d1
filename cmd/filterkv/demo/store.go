package demo

import (
	"context"
	"sort"
	"sync"

	"github.com/relcore/filterkv/codec"
	"github.com/relcore/filterkv/storekv"
)

// Store is an in-memory map[string][]byte sorted by re-sorting its keys
// each time a cursor is created, standing in for a real backing store so
// the CLI has something to
// run storekv.RawCursor against. It is explicitly a test fixture, not a
// storage engine: no durability, no indexing, O(n log n) per scan.
type Store struct {
	mu     sync.Mutex
	data   map[string][]byte
	schema codec.Schema
}

// NewStore creates an empty Store for records encoded under schema.
func NewStore(schema codec.Schema) *Store {
	return &Store{data: make(map[string][]byte), schema: schema}
}

func (s *Store) TryLoad(_ context.Context, key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) TryInsert(_ context.Context, key, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[string(key)]; ok {
		return false, nil
	}
	s.data[string(key)] = append([]byte(nil), value...)
	return true, nil
}

func (s *Store) Store(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (s *Store) TryDelete(_ context.Context, key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[string(key)]; !ok {
		return false, nil
	}
	delete(s.data, string(key))
	return true, nil
}

// Decode interprets data as the store's own codec.Schema value encoding
// and populates dest, which must be *[]interface{} — there is no
// generated record class here, so the CLI works with the raw decoded
// field slice rather than a typed struct.
func (s *Store) Decode(_ context.Context, dest interface{}, _ uint32, data []byte) error {
	out, err := codec.DecodeValue(s.schema, data)
	if err != nil {
		return err
	}
	p := dest.(*[]interface{})
	*p = out
	return nil
}

// sortedKeys returns every stored key in ascending byte order; it runs
// once per NewCursorSupport call.
func (s *Store) sortedKeys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// storeCursor is the storekv.CursorSupport a Store hands out: a position
// index into a snapshot of sorted keys taken when the cursor is created,
// so concurrent writes during a scan never shift the cursor's view.
type storeCursor struct {
	store   *Store
	keys    []string
	pos     int // index of current key, or -1/len(keys) past either end
	hinting bool
}

// NewCursorSupport returns a storekv.CursorSupport over a fresh snapshot
// of s's current keys.
func (s *Store) NewCursorSupport() storekv.CursorSupport {
	return &storeCursor{store: s, keys: s.sortedKeys(), pos: -1}
}

func (c *storeCursor) ToFirst(context.Context) error {
	c.pos = 0
	return nil
}

func (c *storeCursor) ToLast(context.Context) error {
	c.pos = len(c.keys) - 1
	return nil
}

func (c *storeCursor) ToFirstFrom(_ context.Context, key []byte) error {
	c.pos = sort.SearchStrings(c.keys, string(key))
	return nil
}

func (c *storeCursor) ToLastFrom(_ context.Context, key []byte) error {
	i := sort.SearchStrings(c.keys, string(key))
	if i < len(c.keys) && c.keys[i] == string(key) {
		c.pos = i
		return nil
	}
	c.pos = i - 1
	return nil
}

func (c *storeCursor) ToNext(context.Context) error {
	if c.pos < len(c.keys) {
		c.pos++
	}
	return nil
}

func (c *storeCursor) ToPrevious(context.Context) error {
	if c.pos >= 0 {
		c.pos--
	}
	return nil
}

func (c *storeCursor) Valid() bool {
	return c.pos >= 0 && c.pos < len(c.keys)
}

func (c *storeCursor) CurrentKey() []byte {
	if !c.Valid() {
		return nil
	}
	return []byte(c.keys[c.pos])
}

func (c *storeCursor) CurrentValue() []byte {
	if !c.Valid() {
		return nil
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return append([]byte(nil), c.store.data[c.keys[c.pos]]...)
}

func (c *storeCursor) InstantiateCurrent(ctx context.Context) (interface{}, error) {
	if !c.Valid() {
		return nil, nil
	}
	var rec []interface{}
	if err := c.store.Decode(ctx, &rec, 0, c.CurrentValue()); err != nil {
		return nil, err
	}
	return rec, nil
}

// DisableKeyAndValue and EnableKeyAndValue are no-ops here: the snapshot
// already holds every key, and CurrentValue's lookup is cheap enough that
// skipping it during a Skip call buys nothing over this fixture's map.
func (c *storeCursor) DisableKeyAndValue() { c.hinting = true }
func (c *storeCursor) EnableKeyAndValue()  { c.hinting = false }
