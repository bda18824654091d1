package storekv

import (
	"context"
	"sort"
	"testing"

	"github.com/go-quicktest/qt"
)

// fakeSupport is a CursorSupport over a fixed sorted slice of string keys,
// used to drive RawCursor without a real backing store.
type fakeSupport struct {
	keys []string
	pos  int // -1 before start, len(keys) past end
}

func newFakeSupport(keys ...string) *fakeSupport {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return &fakeSupport{keys: sorted, pos: -1}
}

func (f *fakeSupport) ToFirst(context.Context) error { f.pos = 0; return nil }
func (f *fakeSupport) ToLast(context.Context) error  { f.pos = len(f.keys) - 1; return nil }

func (f *fakeSupport) ToFirstFrom(_ context.Context, key []byte) error {
	f.pos = sort.SearchStrings(f.keys, string(key))
	return nil
}

func (f *fakeSupport) ToLastFrom(_ context.Context, key []byte) error {
	i := sort.SearchStrings(f.keys, string(key))
	if i < len(f.keys) && f.keys[i] == string(key) {
		f.pos = i
		return nil
	}
	f.pos = i - 1
	return nil
}

func (f *fakeSupport) ToNext(context.Context) error {
	if f.pos < len(f.keys) {
		f.pos++
	}
	return nil
}

func (f *fakeSupport) ToPrevious(context.Context) error {
	if f.pos >= 0 {
		f.pos--
	}
	return nil
}

func (f *fakeSupport) Valid() bool { return f.pos >= 0 && f.pos < len(f.keys) }

func (f *fakeSupport) CurrentKey() []byte {
	if !f.Valid() {
		return nil
	}
	return []byte(f.keys[f.pos])
}

func (f *fakeSupport) CurrentValue() []byte { return f.CurrentKey() }

func (f *fakeSupport) InstantiateCurrent(context.Context) (interface{}, error) {
	if !f.Valid() {
		return nil, nil
	}
	return f.keys[f.pos], nil
}

func (f *fakeSupport) DisableKeyAndValue() {}
func (f *fakeSupport) EnableKeyAndValue()  {}

func drain(t *testing.T, c *RawCursor) []interface{} {
	t.Helper()
	var out []interface{}
	ctx := context.Background()
	for {
		ok, err := c.HasNext(ctx)
		qt.Assert(t, qt.IsNil(err))
		if !ok {
			return out
		}
		rec, err := c.Next(ctx)
		qt.Assert(t, qt.IsNil(err))
		out = append(out, rec)
	}
}

func TestRawCursorForwardUnbounded(t *testing.T) {
	support := newFakeSupport("b", "a", "c")
	c, err := NewRawCursor(support, Bounds{InclusiveStart: true, InclusiveEnd: true})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(drain(t, c), []interface{}{"a", "b", "c"}))
}

func TestRawCursorReverseUnbounded(t *testing.T) {
	support := newFakeSupport("a", "b", "c")
	c, err := NewRawCursor(support, Bounds{InclusiveStart: true, InclusiveEnd: true, Reverse: true})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(drain(t, c), []interface{}{"c", "b", "a"}))
}

func TestRawCursorInclusiveBounds(t *testing.T) {
	support := newFakeSupport("a", "b", "c", "d")
	c, err := NewRawCursor(support, Bounds{Start: []byte("b"), InclusiveStart: true, End: []byte("c"), InclusiveEnd: true})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(drain(t, c), []interface{}{"b", "c"}))
}

func TestRawCursorExclusiveBounds(t *testing.T) {
	support := newFakeSupport("a", "b", "c", "d")
	c, err := NewRawCursor(support, Bounds{Start: []byte("a"), InclusiveStart: false, End: []byte("d"), InclusiveEnd: false})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(drain(t, c), []interface{}{"b", "c"}))
}

func TestRawCursorEmptyResult(t *testing.T) {
	support := newFakeSupport()
	c, err := NewRawCursor(support, Bounds{InclusiveStart: true, InclusiveEnd: true})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(len(drain(t, c)), 0))
}

func TestRawCursorNewRawCursorInvalidBounds(t *testing.T) {
	support := newFakeSupport("a")
	_, err := NewRawCursor(support, Bounds{})
	qt.Assert(t, qt.IsNotNil(err))
}

func TestRawCursorNextWithoutHasNextErrors(t *testing.T) {
	support := newFakeSupport("a")
	c, err := NewRawCursor(support, Bounds{InclusiveStart: true, InclusiveEnd: true})
	qt.Assert(t, qt.IsNil(err))
	_, err = c.Next(context.Background())
	qt.Assert(t, qt.IsNotNil(err))
	qt.Assert(t, qt.IsTrue(IsKind(err, KindIllegalState)))
}

func TestRawCursorHasNextIdempotentBeforeNext(t *testing.T) {
	support := newFakeSupport("a", "b")
	c, err := NewRawCursor(support, Bounds{InclusiveStart: true, InclusiveEnd: true})
	qt.Assert(t, qt.IsNil(err))
	ctx := context.Background()
	ok1, err := c.HasNext(ctx)
	qt.Assert(t, qt.IsNil(err))
	ok2, err := c.HasNext(ctx)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(ok1, true))
	qt.Assert(t, qt.Equals(ok2, true))
}

func TestRawCursorFalseClosesCursor(t *testing.T) {
	support := newFakeSupport()
	c, err := NewRawCursor(support, Bounds{InclusiveStart: true, InclusiveEnd: true})
	qt.Assert(t, qt.IsNil(err))
	ctx := context.Background()
	ok, err := c.HasNext(ctx)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(ok, false))
	qt.Assert(t, qt.IsNil(c.Close()))
}

func TestRawCursorSkip(t *testing.T) {
	support := newFakeSupport("a", "b", "c", "d")
	c, err := NewRawCursor(support, Bounds{InclusiveStart: true, InclusiveEnd: true})
	qt.Assert(t, qt.IsNil(err))
	ctx := context.Background()
	qt.Assert(t, qt.IsNil(c.Skip(ctx, 2)))
	ok, err := c.HasNext(ctx)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(ok, true))
	rec, err := c.Next(ctx)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(rec, "c"))
}
