// Package codec implements the order-preserving binary key/value codec: a
// fixed family of primitive encodings chosen so that unsigned byte-wise
// comparison of the encoded form equals the declared ordering of the
// decoded value, plus the composite key/value layer that concatenates
// per-property encodings according to a Schema.
package codec

import (
	"math"

	"github.com/relcore/filterkv/internal/errkind"
)

// EncodeI64 encodes a signed 64-bit integer so that byte order matches
// numeric order: the sign bit is flipped, turning the two's-complement
// representation into an unsigned-comparable one.
func EncodeI64(v int64) []byte {
	u := uint64(v) ^ (1 << 63)
	return encodeU64(u)
}

func DecodeI64(b []byte) (int64, error) {
	u, err := decodeU64(b)
	if err != nil {
		return 0, err
	}
	return int64(u ^ (1 << 63)), nil
}

func EncodeI32(v int32) []byte { return encodeU32(uint32(v) ^ (1 << 31)) }

func DecodeI32(b []byte) (int32, error) {
	u, err := decodeU32(b)
	if err != nil {
		return 0, err
	}
	return int32(u ^ (1 << 31)), nil
}

func EncodeI16(v int16) []byte { return encodeU16(uint16(v) ^ (1 << 15)) }

func DecodeI16(b []byte) (int16, error) {
	u, err := decodeU16(b)
	if err != nil {
		return 0, err
	}
	return int16(u ^ (1 << 15)), nil
}

func EncodeI8(v int8) []byte { return []byte{byte(v) ^ 0x80} }

func DecodeI8(b []byte) (int8, error) {
	if len(b) != 1 {
		return 0, errkind.New(errkind.CorruptEncoding, "i8: want 1 byte, got %d", len(b))
	}
	return int8(b[0] ^ 0x80), nil
}

func EncodeU64(v uint64) []byte { return encodeU64(v) }
func DecodeU64(b []byte) (uint64, error) { return decodeU64(b) }

func EncodeU32(v uint32) []byte { return encodeU32(v) }
func DecodeU32(b []byte) (uint32, error) { return decodeU32(b) }

func EncodeU16(v uint16) []byte { return encodeU16(v) }
func DecodeU16(b []byte) (uint16, error) { return decodeU16(b) }

func EncodeU8(v uint8) []byte { return []byte{v} }

func DecodeU8(b []byte) (uint8, error) {
	if len(b) != 1 {
		return 0, errkind.New(errkind.CorruptEncoding, "u8: want 1 byte, got %d", len(b))
	}
	return b[0], nil
}

func encodeU64(u uint64) []byte {
	return []byte{byte(u >> 56), byte(u >> 48), byte(u >> 40), byte(u >> 32), byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)}
}

func decodeU64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, errkind.New(errkind.CorruptEncoding, "u64: want 8 bytes, got %d", len(b))
	}
	var u uint64
	for _, c := range b {
		u = u<<8 | uint64(c)
	}
	return u, nil
}

func encodeU32(u uint32) []byte {
	return []byte{byte(u >> 24), byte(u >> 16), byte(u >> 8), byte(u)}
}

func decodeU32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, errkind.New(errkind.CorruptEncoding, "u32: want 4 bytes, got %d", len(b))
	}
	var u uint32
	for _, c := range b {
		u = u<<8 | uint32(c)
	}
	return u, nil
}

func encodeU16(u uint16) []byte {
	return []byte{byte(u >> 8), byte(u)}
}

func decodeU16(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, errkind.New(errkind.CorruptEncoding, "u16: want 2 bytes, got %d", len(b))
	}
	var u uint16
	for _, c := range b {
		u = u<<8 | uint16(c)
	}
	return u, nil
}

// EncodeF64 encodes an IEEE-754 double so that byte order matches numeric
// order: if the sign bit is set (negative), all bits are flipped; if
// clear (non-negative), only the sign bit is flipped. A NaN with the sign
// bit clear sorts after +Inf; a NaN with the sign bit set sorts before -Inf.
func EncodeF64(v float64) []byte {
	bits := math.Float64bits(v)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits ^= 1 << 63
	}
	return encodeU64(bits)
}

func DecodeF64(b []byte) (float64, error) {
	bits, err := decodeU64(b)
	if err != nil {
		return 0, err
	}
	if bits&(1<<63) != 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), nil
}

func EncodeF32(v float32) []byte {
	bits := math.Float32bits(v)
	if bits&(1<<31) != 0 {
		bits = ^bits
	} else {
		bits ^= 1 << 31
	}
	return encodeU32(bits)
}

func DecodeF32(b []byte) (float32, error) {
	bits, err := decodeU32(b)
	if err != nil {
		return 0, err
	}
	if bits&(1<<31) != 0 {
		bits ^= 1 << 31
	} else {
		bits = ^bits
	}
	return math.Float32frombits(bits), nil
}

const (
	boolFalseByte byte = 0x7E
	boolTrueByte  byte = 0x7F
)

func EncodeBool(v bool) []byte {
	if v {
		return []byte{boolTrueByte}
	}
	return []byte{boolFalseByte}
}

func DecodeBool(b []byte) (bool, error) {
	if len(b) != 1 {
		return false, errkind.New(errkind.CorruptEncoding, "bool: want 1 byte, got %d", len(b))
	}
	switch b[0] {
	case boolTrueByte:
		return true, nil
	case boolFalseByte:
		return false, nil
	default:
		return false, errkind.New(errkind.CorruptEncoding, "bool: invalid byte 0x%02x", b[0])
	}
}

// EncodeChar encodes a UTF-16 code unit (the codec's "char" primitive) as
// two big-endian bytes.
func EncodeChar(v uint16) []byte { return encodeU16(v) }

func DecodeChar(b []byte) (uint16, error) { return decodeU16(b) }

// FlipBytes returns the descending variant of an ascending encoding: XOR
// every byte with 0xFF. Since bitwise complement is a monotonically
// decreasing bijection on bytes, applying it uniformly reverses the total
// order of any self-delimiting encoding, fixed- or variable-width alike;
// decoding the descending form is the same operation applied again.
func FlipBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c ^ 0xFF
	}
	return out
}
