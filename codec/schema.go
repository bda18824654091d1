package codec

import "github.com/relcore/filterkv/internal/errkind"

// FieldKind identifies which primitive encoding a Field uses.
type FieldKind int

const (
	KindI8 FieldKind = iota
	KindI16
	KindI32
	KindI64
	KindU8
	KindU16
	KindU32
	KindU64
	KindF32
	KindF64
	KindBool
	KindChar
	KindString
	KindBytes
	// KindLOBRef stores a locator handle (an opaque uint64 generated by
	// the backing store) in place of inline bytes for large-object
	// properties.
	KindLOBRef
)

// Field describes one property's encoded representation.
type Field struct {
	Name       string
	Kind       FieldKind
	Nullable   bool
	Descending bool // only meaningful for key fields
}

// Schema describes a record type's primary-key field list and remaining
// value field list, standing in for the per-type generated encoder a real
// ORM would JIT from a record class definition.
type Schema struct {
	Key        []Field
	Value      []Field
	Generation uint32
}

func fixedWidthEncode(k FieldKind, v interface{}) ([]byte, error) {
	switch k {
	case KindI8:
		i, ok := v.(int8)
		if !ok {
			return nil, typeMismatch(k, v)
		}
		return EncodeI8(i), nil
	case KindI16:
		i, ok := v.(int16)
		if !ok {
			return nil, typeMismatch(k, v)
		}
		return EncodeI16(i), nil
	case KindI32:
		i, ok := v.(int32)
		if !ok {
			return nil, typeMismatch(k, v)
		}
		return EncodeI32(i), nil
	case KindI64:
		i, ok := v.(int64)
		if !ok {
			return nil, typeMismatch(k, v)
		}
		return EncodeI64(i), nil
	case KindU8:
		u, ok := v.(uint8)
		if !ok {
			return nil, typeMismatch(k, v)
		}
		return EncodeU8(u), nil
	case KindU16:
		u, ok := v.(uint16)
		if !ok {
			return nil, typeMismatch(k, v)
		}
		return EncodeU16(u), nil
	case KindU32:
		u, ok := v.(uint32)
		if !ok {
			return nil, typeMismatch(k, v)
		}
		return EncodeU32(u), nil
	case KindU64, KindLOBRef:
		u, ok := v.(uint64)
		if !ok {
			return nil, typeMismatch(k, v)
		}
		return EncodeU64(u), nil
	case KindF32:
		f, ok := v.(float32)
		if !ok {
			return nil, typeMismatch(k, v)
		}
		return EncodeF32(f), nil
	case KindF64:
		f, ok := v.(float64)
		if !ok {
			return nil, typeMismatch(k, v)
		}
		return EncodeF64(f), nil
	case KindBool:
		bv, ok := v.(bool)
		if !ok {
			return nil, typeMismatch(k, v)
		}
		return EncodeBool(bv), nil
	case KindChar:
		c, ok := v.(uint16)
		if !ok {
			return nil, typeMismatch(k, v)
		}
		return EncodeChar(c), nil
	default:
		return nil, errkind.New(errkind.UnsupportedEncoding, "kind %d has no fixed-width encoding", k)
	}
}

func fixedWidth(k FieldKind) (int, bool) {
	switch k {
	case KindI8, KindU8, KindBool:
		return 1, true
	case KindI16, KindU16, KindChar:
		return 2, true
	case KindI32, KindU32, KindF32:
		return 4, true
	case KindI64, KindU64, KindF64, KindLOBRef:
		return 8, true
	default:
		return 0, false
	}
}

func fixedWidthDecode(k FieldKind, b []byte) (interface{}, error) {
	switch k {
	case KindI8:
		return DecodeI8(b)
	case KindI16:
		return DecodeI16(b)
	case KindI32:
		return DecodeI32(b)
	case KindI64:
		return DecodeI64(b)
	case KindU8:
		return DecodeU8(b)
	case KindU16:
		return DecodeU16(b)
	case KindU32:
		return DecodeU32(b)
	case KindU64, KindLOBRef:
		return DecodeU64(b)
	case KindF32:
		return DecodeF32(b)
	case KindF64:
		return DecodeF64(b)
	case KindBool:
		return DecodeBool(b)
	case KindChar:
		return DecodeChar(b)
	default:
		return nil, errkind.New(errkind.UnsupportedEncoding, "kind %d has no fixed-width decoding", k)
	}
}

func typeMismatch(k FieldKind, v interface{}) error {
	return errkind.New(errkind.TypeMismatch, "field kind %d: unsupported value of type %T", k, v)
}
