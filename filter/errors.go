package filter

import "github.com/relcore/filterkv/internal/errkind"

// Kind classifies a filter construction/use error.
type Kind = errkind.Kind

const (
	KindInvalidFilter   = errkind.InvalidFilter
	KindMalformedFilter = errkind.MalformedFilter
	KindInvalidProperty = errkind.InvalidProperty
	KindTypeMismatch    = errkind.TypeMismatch
	KindMissingValue    = errkind.MissingValue
	KindIllegalState    = errkind.IllegalState
)

// Error is the error type returned by every construction and evaluation
// path in this package and its siblings under filter/.
type Error = errkind.Error

func newErr(k Kind, format string, args ...interface{}) *Error {
	return errkind.New(k, format, args...)
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, k Kind) bool {
	return errkind.Is(err, k)
}
