// Package errkind defines the shared error kind/value pair used by every
// package under filter/, codec, and storekv, so that callers can
// distinguish failure classes with a single errors.As/Is-compatible type
// regardless of which package raised the error.
package errkind

import "fmt"

// Kind classifies an error raised by this module. The zero value is
// InvalidFilter.
type Kind int

const (
	InvalidFilter Kind = iota
	MalformedFilter
	InvalidProperty
	TypeMismatch
	MissingValue
	IllegalState
	CorruptEncoding
	UnsupportedEncoding
	FetchFailure
	NotFound
)

func (k Kind) String() string {
	switch k {
	case InvalidFilter:
		return "InvalidFilter"
	case MalformedFilter:
		return "MalformedFilter"
	case InvalidProperty:
		return "InvalidProperty"
	case TypeMismatch:
		return "TypeMismatch"
	case MissingValue:
		return "MissingValue"
	case IllegalState:
		return "IllegalState"
	case CorruptEncoding:
		return "CorruptEncoding"
	case UnsupportedEncoding:
		return "UnsupportedEncoding"
	case FetchFailure:
		return "FetchFailure"
	case NotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Position is a source position an Error may be anchored to: a source
// name (a filter expression's name, a flag, a file path) plus a byte
// offset within it. It is independent of filter/parse/token.Pos so that
// codec and storekv errors — which have nothing to do with the filter
// grammar — can still carry a position without this package depending on
// the parser.
type Position struct {
	Name   string
	Offset int
	valid  bool
}

// NoPosition is the zero value of Position; it is not a known location.
var NoPosition = Position{}

// NewPosition returns a known Position at name:offset.
func NewPosition(name string, offset int) Position {
	return Position{Name: name, Offset: offset, valid: true}
}

// IsValid reports whether p denotes a known position.
func (p Position) IsValid() bool { return p.valid }

func (p Position) String() string {
	if !p.valid {
		return "-"
	}
	if p.Name == "" {
		return fmt.Sprintf("offset %d", p.Offset)
	}
	return fmt.Sprintf("%s:offset %d", p.Name, p.Offset)
}

// Error is the concrete error type returned by filter, codec, and storekv.
// It follows an errors.Error-shaped contract (Position, InputPositions,
// Path, Error) so a caller that only knows that shape — not this
// package's concrete type — can still extract structured location and
// path information.
type Error struct {
	Kind Kind
	Msg  string
	// Cause, if non-nil, is an underlying error this one wraps.
	Cause error
	// Pos is the error's primary position, if any.
	Pos Position
	// Extra holds additional positions that contributed to the error
	// (e.g. both operands of a mismatched binary filter).
	Extra []Position
	// PathSegs is the path into the data/filter tree where the error
	// occurred, if applicable.
	PathSegs []string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	if e.Pos.IsValid() {
		msg = fmt.Sprintf("%s: %s", e.Pos, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Position returns the error's primary position. It is NoPosition for
// errors not anchored to a particular location.
func (e *Error) Position() Position { return e.Pos }

// InputPositions returns every position that contributed to the error,
// primary position first.
func (e *Error) InputPositions() []Position {
	if !e.Pos.IsValid() {
		return e.Extra
	}
	return append([]Position{e.Pos}, e.Extra...)
}

// Path returns the path into the data/filter tree where the error
// occurred, or nil if not applicable.
func (e *Error) Path() []string { return e.PathSegs }

// FormatArgs returns a printf-style format string and its already-applied
// message for human consumption, matching a Message.Msg-shaped accessor;
// since this Error formats eagerly, format is always "%s".
func (e *Error) FormatArgs() (format string, args []interface{}) {
	return "%s", []interface{}{e.Msg}
}

// WithPath attaches a data/filter-tree path to the error, returning the
// same *Error for chaining at the construction site.
func (e *Error) WithPath(path ...string) *Error {
	e.PathSegs = path
	return e
}

// New constructs an *Error of the given kind with a formatted message.
func New(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// NewAt constructs an *Error of the given kind anchored to pos.
func NewAt(k Kind, pos Position, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Pos: pos}
}

// Wrap constructs an *Error of the given kind wrapping cause.
func Wrap(k Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, k Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == k
}

// PortableError is a JSON-serialisable snapshot of an Error suitable for
// crossing a process boundary (e.g. a worker evaluating filters reporting
// a parse failure back to a coordinator), mirroring a
// PortableError/PortablePosition pair.
type PortableError struct {
	Kind           Kind               `json:"kind"`
	Position       PortablePosition   `json:"position"`
	InputPositions []PortablePosition `json:"input_positions"`
	Msg            string             `json:"msg"`
	Path           []string           `json:"path"`
}

// PortablePosition is the JSON-serialisable form of Position.
type PortablePosition struct {
	Name   string `json:"name"`
	Offset int    `json:"offset"`
}

// ToPortable converts e into its serialisable form.
func (e *Error) ToPortable() PortableError {
	inputs := make([]PortablePosition, 0, len(e.Extra)+1)
	for _, p := range e.InputPositions() {
		inputs = append(inputs, PortablePosition{Name: p.Name, Offset: p.Offset})
	}
	return PortableError{
		Kind:           e.Kind,
		Position:       PortablePosition{Name: e.Pos.Name, Offset: e.Pos.Offset},
		InputPositions: inputs,
		Msg:            e.Msg,
		Path:           e.PathSegs,
	}
}

// FromPortable reconstructs an *Error from its serialised form. The
// reconstructed error never carries a Cause, since the underlying error
// chain does not survive serialisation.
func FromPortable(p PortableError) *Error {
	pos := NoPosition
	if p.Position.Name != "" || p.Position.Offset != 0 {
		pos = NewPosition(p.Position.Name, p.Position.Offset)
	}
	extra := make([]Position, 0, len(p.InputPositions))
	for _, ip := range p.InputPositions {
		extra = append(extra, NewPosition(ip.Name, ip.Offset))
	}
	if len(extra) > 0 && extra[0] == pos {
		extra = extra[1:]
	}
	return &Error{Kind: p.Kind, Msg: p.Msg, Pos: pos, Extra: extra, PathSegs: p.Path}
}
