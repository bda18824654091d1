package codec

import "github.com/relcore/filterkv/internal/errkind"

// NullOrder controls where a null value collates relative to non-null
// values of the same property.
type NullOrder int

const (
	NullsFirst NullOrder = iota
	NullsLast
)

const notNullMarker byte = 0x01

func nullMarker(order NullOrder) byte {
	if order == NullsLast {
		return 0xFF
	}
	return 0x00
}

// EncodeNullable prefixes enc (the already-encoded non-null payload, or
// nil for a null value) with a one-byte null/not-null marker chosen so
// that order collates nulls first or last as requested. The marker value
// for "not null" (0x01) sorts strictly above NullsFirst's marker (0x00)
// and strictly below NullsLast's marker (0xFF); since a null and a
// non-null value already differ in that first byte, the payload bytes
// that follow never affect whether a null sorts before or after a
// non-null value of the same property.
func EncodeNullable(enc []byte, order NullOrder) []byte {
	if enc == nil {
		return []byte{nullMarker(order)}
	}
	out := make([]byte, 0, len(enc)+1)
	out = append(out, notNullMarker)
	return append(out, enc...)
}

// DecodeNullable reads the one-byte null/not-null marker off the front of
// b, returning whether the field is null and the remaining bytes (from
// which the caller decodes the payload with the field's own primitive
// decoder when isNull is false).
func DecodeNullable(b []byte, order NullOrder) (isNull bool, rest []byte, err error) {
	if len(b) == 0 {
		return false, nil, errkind.New(errkind.CorruptEncoding, "nullable: empty input")
	}
	switch b[0] {
	case nullMarker(order):
		return true, b[1:], nil
	case notNullMarker:
		return false, b[1:], nil
	default:
		return false, nil, errkind.New(errkind.CorruptEncoding, "nullable: invalid marker byte 0x%02x", b[0])
	}
}
