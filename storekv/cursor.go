package storekv

import (
	"context"
)

// cursorState is RawCursor's internal position in the
// Uninitialised -> TryNext <-> HasNext -> Closed state machine.
type cursorState int

const (
	stateUninitialised cursorState = iota
	stateTryNext
	stateHasNext
	stateClosed
)

// RawCursor scans a sorted key/value space under Bounds, materialising
// records lazily via CursorSupport. It is single-threaded from the
// caller's perspective: the caller is expected to hold a lock around every
// call to HasNext, Next, Skip, and Close; RawCursor adds no internal
// synchronization of its own.
type RawCursor struct {
	support CursorSupport
	bounds  Bounds
	state   cursorState
	prefix  []byte
	started bool
}

// NewRawCursor creates a cursor over support constrained to bounds.
func NewRawCursor(support CursorSupport, bounds Bounds) (*RawCursor, error) {
	if err := bounds.valid(); err != nil {
		return nil, err
	}
	return &RawCursor{
		support: support,
		bounds:  bounds,
		state:   stateUninitialised,
		prefix:  bounds.commonPrefix(),
	}, nil
}

// HasNext positions the cursor if needed and reports whether a record is
// available. On the first call it seeks to the bounded first or last key
// (depending on Bounds.Reverse); on later calls it advances from the
// current position. A false result also closes the cursor, so a caller
// that stops iterating on the first false never needs to call Close
// itself.
func (c *RawCursor) HasNext(ctx context.Context) (bool, error) {
	switch c.state {
	case stateClosed:
		return false, nil
	case stateHasNext:
		return true, nil
	}

	ok, err := c.position(ctx)
	if err != nil {
		c.closeOnFailure()
		return false, err
	}
	if !ok {
		if err := c.Close(); err != nil {
			return false, err
		}
		return false, nil
	}
	c.state = stateHasNext
	return true, nil
}

// position moves to the next (or, on the very first call, the initial)
// in-bounds entry, returning false once the space or the bounds are
// exhausted.
func (c *RawCursor) position(ctx context.Context) (bool, error) {
	var err error
	if !c.started {
		c.started = true
		err = c.toBoundedFirst(ctx)
	} else if c.bounds.Reverse {
		err = c.support.ToPrevious(ctx)
	} else {
		err = c.support.ToNext(ctx)
	}
	if err != nil {
		return false, err
	}
	if !c.support.Valid() {
		return false, nil
	}
	if !c.matchesPrefix() {
		return false, nil
	}
	key := c.support.CurrentKey()
	if !c.bounds.withinBounds(key) {
		return false, nil
	}
	return true, nil
}

// toBoundedFirst performs the initial seek: to_bounded_first when
// scanning forward, to_bounded_last when scanning in reverse, advancing
// past an exclusive bound's exact match.
func (c *RawCursor) toBoundedFirst(ctx context.Context) error {
	if c.bounds.Reverse {
		return c.toBoundedLast(ctx)
	}
	if c.bounds.Start == nil {
		if err := c.support.ToFirst(ctx); err != nil {
			return err
		}
	} else {
		if err := c.support.ToFirstFrom(ctx, c.bounds.Start); err != nil {
			return err
		}
		if !c.bounds.InclusiveStart && c.support.Valid() &&
			bytesEqual(c.support.CurrentKey(), c.bounds.Start) {
			if err := c.support.ToNext(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *RawCursor) toBoundedLast(ctx context.Context) error {
	if c.bounds.End == nil {
		if err := c.support.ToLast(ctx); err != nil {
			return err
		}
	} else {
		if err := c.support.ToLastFrom(ctx, c.bounds.End); err != nil {
			return err
		}
		if !c.bounds.InclusiveEnd && c.support.Valid() &&
			bytesEqual(c.support.CurrentKey(), c.bounds.End) {
			if err := c.support.ToPrevious(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *RawCursor) matchesPrefix() bool {
	if len(c.prefix) == 0 {
		return true
	}
	key := c.support.CurrentKey()
	if len(key) < len(c.prefix) {
		return false
	}
	for i, b := range c.prefix {
		if key[i] != b {
			return false
		}
	}
	return true
}

// Next materialises the current record and returns the cursor to
// TryNext. Calling Next before HasNext has reported true is a programmer
// error and returns IllegalState.
func (c *RawCursor) Next(ctx context.Context) (interface{}, error) {
	if c.state != stateHasNext {
		return nil, errBound("Next called without a prior positioned HasNext")
	}
	rec, err := c.support.InstantiateCurrent(ctx)
	if err != nil {
		c.closeOnFailure()
		return nil, err
	}
	c.state = stateTryNext
	return rec, nil
}

// Skip advances n positions without materialising keys or values,
// toggling the backing store's disable/enable hints around the walk.
func (c *RawCursor) Skip(ctx context.Context, n int) error {
	if c.state == stateClosed {
		return errBound("Skip called on a closed cursor")
	}
	c.support.DisableKeyAndValue()
	defer c.support.EnableKeyAndValue()

	for i := 0; i < n; i++ {
		ok, err := c.HasNext(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		c.state = stateTryNext
	}
	return nil
}

// Close releases the cursor. It is idempotent: closing an already-closed
// cursor is a no-op.
func (c *RawCursor) Close() error {
	if c.state == stateClosed {
		return nil
	}
	c.state = stateClosed
	return nil
}

func (c *RawCursor) closeOnFailure() {
	// A fetch failure during positioning auto-closes the cursor; any
	// close-time error is swallowed since the original fetch error is
	// what the caller needs to see.
	c.state = stateClosed
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
