package storekv

import "github.com/relcore/filterkv/internal/errkind"

// Kind re-exports the shared error-kind taxonomy so callers of storekv
// never need to import internal/errkind directly.
type Kind = errkind.Kind

const (
	KindFetchFailure = errkind.FetchFailure
	KindIllegalState = errkind.IllegalState
	KindNotFound     = errkind.NotFound
)

// Error re-exports the shared error type.
type Error = errkind.Error

func errBound(format string, args ...interface{}) error {
	return errkind.New(errkind.IllegalState, format, args...)
}

// IsKind reports whether err itself is an *Error carrying kind k; errors
// it wraps are not inspected.
func IsKind(err error, k Kind) bool { return errkind.Is(err, k) }
