package errkind

import (
	"errors"
	"testing"

	"github.com/go-quicktest/qt"
)

func TestKindString(t *testing.T) {
	qt.Assert(t, qt.Equals(InvalidFilter.String(), "InvalidFilter"))
	qt.Assert(t, qt.Equals(Kind(999).String(), "Unknown"))
}

func TestPositionValidity(t *testing.T) {
	qt.Assert(t, qt.Equals(NoPosition.IsValid(), false))
	p := NewPosition("expr", 7)
	qt.Assert(t, qt.IsTrue(p.IsValid()))
	qt.Assert(t, qt.Equals(p.String(), "expr:offset 7"))
	qt.Assert(t, qt.Equals(NewPosition("", 7).String(), "offset 7"))
}

func TestErrorMessageFormatting(t *testing.T) {
	e := New(InvalidFilter, "bad thing: %d", 42)
	qt.Assert(t, qt.Equals(e.Error(), "InvalidFilter: bad thing: 42"))

	at := NewAt(MalformedFilter, NewPosition("f", 3), "oops")
	qt.Assert(t, qt.Equals(at.Error(), "f:offset 3: MalformedFilter: oops"))

	wrapped := Wrap(FetchFailure, errors.New("disk full"), "load failed")
	qt.Assert(t, qt.Equals(wrapped.Error(), "FetchFailure: load failed: disk full"))
	qt.Assert(t, qt.Equals(errors.Unwrap(wrapped).Error(), "disk full"))
}

func TestIs(t *testing.T) {
	e := New(TypeMismatch, "nope")
	qt.Assert(t, qt.IsTrue(Is(e, TypeMismatch)))
	qt.Assert(t, qt.Equals(Is(e, InvalidFilter), false))
	qt.Assert(t, qt.Equals(Is(errors.New("plain"), TypeMismatch), false))
}

func TestInputPositions(t *testing.T) {
	e := &Error{Kind: InvalidFilter, Pos: NewPosition("a", 1), Extra: []Position{NewPosition("b", 2)}}
	qt.Assert(t, qt.DeepEquals(e.InputPositions(), []Position{NewPosition("a", 1), NewPosition("b", 2)}))

	noPos := &Error{Kind: InvalidFilter, Extra: []Position{NewPosition("b", 2)}}
	qt.Assert(t, qt.DeepEquals(noPos.InputPositions(), []Position{NewPosition("b", 2)}))
}

func TestWithPath(t *testing.T) {
	e := New(InvalidProperty, "bad").WithPath("order", "lineItems", "sku")
	qt.Assert(t, qt.DeepEquals(e.Path(), []string{"order", "lineItems", "sku"}))
}

func TestPortableRoundTrip(t *testing.T) {
	e := NewAt(MalformedFilter, NewPosition("expr", 5), "unexpected token")
	e.Extra = []Position{NewPosition("expr", 9)}
	e.PathSegs = []string{"a", "b"}

	portable := e.ToPortable()
	restored := FromPortable(portable)

	qt.Assert(t, qt.Equals(restored.Kind, e.Kind))
	qt.Assert(t, qt.Equals(restored.Msg, e.Msg))
	qt.Assert(t, qt.Equals(restored.Pos, e.Pos))
	qt.Assert(t, qt.DeepEquals(restored.Extra, e.Extra))
	qt.Assert(t, qt.DeepEquals(restored.PathSegs, e.PathSegs))
}

func TestFormatArgs(t *testing.T) {
	e := New(InvalidFilter, "bad %s", "thing")
	format, args := e.FormatArgs()
	qt.Assert(t, qt.Equals(format, "%s"))
	qt.Assert(t, qt.DeepEquals(args, []interface{}{"bad thing"}))
}
