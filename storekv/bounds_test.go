package storekv

import (
	"testing"

	"github.com/go-quicktest/qt"
)

func TestBoundsValid(t *testing.T) {
	qt.Assert(t, qt.IsNil(Bounds{InclusiveStart: true, InclusiveEnd: true}.valid()))
	qt.Assert(t, qt.IsNotNil(Bounds{InclusiveEnd: true}.valid()))
	qt.Assert(t, qt.IsNotNil(Bounds{InclusiveStart: true}.valid()))
}

func TestBoundsCommonPrefix(t *testing.T) {
	b := Bounds{Start: []byte("order:001"), End: []byte("order:099")}
	qt.Assert(t, qt.DeepEquals(b.commonPrefix(), []byte("order:0")))
}

func TestBoundsCommonPrefixOpenEnded(t *testing.T) {
	b := Bounds{Start: []byte("order:001"), InclusiveEnd: true}
	qt.Assert(t, qt.Equals(len(b.commonPrefix()), 0))
}

func TestBoundsCommonPrefixCapped(t *testing.T) {
	b := Bounds{Start: []byte("order:001"), End: []byte("order:099"), MaxPrefix: 3}
	qt.Assert(t, qt.DeepEquals(b.commonPrefix(), []byte("ord")))
}

func TestBoundsWithinBoundsInclusive(t *testing.T) {
	b := Bounds{Start: []byte("b"), InclusiveStart: true, End: []byte("d"), InclusiveEnd: true}
	qt.Assert(t, qt.IsTrue(b.withinBounds([]byte("b"))))
	qt.Assert(t, qt.IsTrue(b.withinBounds([]byte("d"))))
	qt.Assert(t, qt.Equals(b.withinBounds([]byte("a")), false))
	qt.Assert(t, qt.Equals(b.withinBounds([]byte("e")), false))
}

func TestBoundsWithinBoundsExclusive(t *testing.T) {
	b := Bounds{Start: []byte("b"), End: []byte("d")}
	qt.Assert(t, qt.Equals(b.withinBounds([]byte("b")), false))
	qt.Assert(t, qt.Equals(b.withinBounds([]byte("d")), false))
	qt.Assert(t, qt.IsTrue(b.withinBounds([]byte("c"))))
}
