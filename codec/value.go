package codec

import "github.com/relcore/filterkv/internal/errkind"

// EncodeValue concatenates the non-key properties of a record into the
// value half of its encoded form: an optional leading generation tag, a
// packed bitmap of which nullable fields are null, then each field's
// payload in schema.Value order. Unlike keys, value fields never need to
// be self-delimiting relative to each other — the bitmap already tells
// the decoder which fields are absent — but string/bytes fields still
// carry their own terminator since nothing else bounds their length.
func EncodeValue(schema Schema, vals []interface{}) ([]byte, error) {
	if len(vals) != len(schema.Value) {
		return nil, errkind.New(errkind.InvalidFilter, "value: want %d values, got %d", len(schema.Value), len(vals))
	}
	var out []byte
	out = append(out, encodeGeneration(schema.Generation)...)

	nullable := nullableFields(schema.Value)
	bitmap := make([]byte, (len(nullable)+7)/8)
	for i, idx := range nullable {
		if vals[idx] == nil {
			bitmap[i/8] |= 1 << uint(i%8)
		}
	}
	out = append(out, bitmap...)

	for i, f := range schema.Value {
		if f.Nullable && vals[i] == nil {
			continue
		}
		enc, err := encodeValuePayload(f, vals[i])
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	return out, nil
}

// DecodeValue reverses EncodeValue.
func DecodeValue(schema Schema, data []byte) ([]interface{}, error) {
	gen, rest, err := decodeGeneration(data)
	if err != nil {
		return nil, err
	}
	if gen != schema.Generation {
		return nil, errkind.New(errkind.UnsupportedEncoding, "value: encoded generation %d does not match schema generation %d", gen, schema.Generation)
	}

	nullable := nullableFields(schema.Value)
	bitmapLen := (len(nullable) + 7) / 8
	if len(rest) < bitmapLen {
		return nil, errkind.New(errkind.CorruptEncoding, "value: truncated null bitmap")
	}
	bitmap := rest[:bitmapLen]
	rest = rest[bitmapLen:]

	isNull := make(map[int]bool, len(nullable))
	for i, idx := range nullable {
		if bitmap[i/8]&(1<<uint(i%8)) != 0 {
			isNull[idx] = true
		}
	}

	out := make([]interface{}, len(schema.Value))
	for i, f := range schema.Value {
		if f.Nullable && isNull[i] {
			out[i] = nil
			continue
		}
		n, v, err := decodeValuePayload(f, rest)
		if err != nil {
			return nil, err
		}
		out[i] = v
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return nil, errkind.New(errkind.CorruptEncoding, "value: %d trailing bytes", len(rest))
	}
	return out, nil
}

func nullableFields(fields []Field) []int {
	var out []int
	for i, f := range fields {
		if f.Nullable {
			out = append(out, i)
		}
	}
	return out
}

// encodeGeneration encodes generations 0-127 as a single byte and
// generations >=128 as a 4-byte big-endian integer with the high bit of
// the first byte set, so a decoder can tell which form it is looking at
// by testing that one bit.
func encodeGeneration(gen uint32) []byte {
	if gen < 128 {
		return []byte{byte(gen)}
	}
	b := encodeU32(gen)
	b[0] |= 0x80
	return b
}

func decodeGeneration(data []byte) (uint32, []byte, error) {
	if len(data) == 0 {
		return 0, nil, errkind.New(errkind.CorruptEncoding, "value: empty input, no generation tag")
	}
	if data[0]&0x80 == 0 {
		return uint32(data[0]), data[1:], nil
	}
	if len(data) < 4 {
		return 0, nil, errkind.New(errkind.CorruptEncoding, "value: truncated wide generation tag")
	}
	u, err := decodeU32(data[:4])
	if err != nil {
		return 0, nil, err
	}
	return u &^ 0x80000000, data[4:], nil
}

func encodeValuePayload(f Field, v interface{}) ([]byte, error) {
	switch f.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, typeMismatch(f.Kind, v)
		}
		return EncodeString(s), nil
	case KindBytes:
		bs, ok := v.([]byte)
		if !ok {
			return nil, typeMismatch(f.Kind, v)
		}
		return EncodeBytes(bs), nil
	default:
		return fixedWidthEncode(f.Kind, v)
	}
}

func decodeValuePayload(f Field, data []byte) (int, interface{}, error) {
	switch f.Kind {
	case KindString:
		s, n, err := DecodeString(data)
		return n, s, err
	case KindBytes:
		bs, n, err := DecodeBytes(data)
		return n, bs, err
	default:
		w, ok := fixedWidth(f.Kind)
		if !ok {
			return 0, nil, errkind.New(errkind.UnsupportedEncoding, "kind %d not valid in a value", f.Kind)
		}
		if len(data) < w {
			return 0, nil, errkind.New(errkind.CorruptEncoding, "value field: want %d bytes, got %d", w, len(data))
		}
		val, err := fixedWidthDecode(f.Kind, data[:w])
		return w, val, err
	}
}
