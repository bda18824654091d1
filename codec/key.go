package codec

import "github.com/relcore/filterkv/internal/errkind"

// EncodeKey concatenates the per-property encodings of vals, in schema.Key
// order and direction, with each field self-delimiting (fixed-width or
// terminator-terminated) so the concatenation preserves tuple-lexical
// ordering: for any two declared tuples a, b, lex_compare(EncodeKey(a),
// EncodeKey(b)) == tuple_compare(a, b) under schema.Key's per-column
// directions. vals[i] is nil for a null value of a nullable field.
func EncodeKey(schema Schema, vals []interface{}) ([]byte, error) {
	if len(vals) != len(schema.Key) {
		return nil, errkind.New(errkind.InvalidFilter, "key: want %d values, got %d", len(schema.Key), len(vals))
	}
	var out []byte
	for i, f := range schema.Key {
		enc, err := encodeKeyField(f, vals[i])
		if err != nil {
			return nil, err
		}
		if f.Descending {
			enc = FlipBytes(enc)
		}
		out = append(out, enc...)
	}
	return out, nil
}

// DecodeKey reverses EncodeKey.
func DecodeKey(schema Schema, data []byte) ([]interface{}, error) {
	out := make([]interface{}, len(schema.Key))
	for i, f := range schema.Key {
		consumed, v, err := decodeKeyField(f, data)
		if err != nil {
			return nil, err
		}
		out[i] = v
		data = data[consumed:]
	}
	if len(data) != 0 {
		return nil, errkind.New(errkind.CorruptEncoding, "key: %d trailing bytes", len(data))
	}
	return out, nil
}

func encodeKeyField(f Field, v interface{}) ([]byte, error) {
	if f.Nullable {
		if v == nil {
			return EncodeNullable(nil, NullsFirst), nil
		}
		payload, err := encodeKeyPayload(f, v)
		if err != nil {
			return nil, err
		}
		return EncodeNullable(payload, NullsFirst), nil
	}
	return encodeKeyPayload(f, v)
}

func encodeKeyPayload(f Field, v interface{}) ([]byte, error) {
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

// decodeKeyField reports how many bytes of data it consumed, so the
// caller can advance past a variable-width field. A descending field was
// encoded by flipping every byte of its (already self-delimiting)
// ascending form; since bitwise complement is applied per byte, the span
// length is found by scanning for the complemented terminator/marker
// values, then the whole span is flipped back before running the
// ordinary ascending decode logic on it.
func decodeKeyField(f Field, data []byte) (consumed int, v interface{}, err error) {
	span, err := keyFieldSpan(f, data)
	if err != nil {
		return 0, nil, err
	}
	chunk := data[:span]
	if f.Descending {
		chunk = FlipBytes(chunk)
	}
	if f.Nullable {
		isNull, rest, err := DecodeNullable(chunk, NullsFirst)
		if err != nil {
			return 0, nil, err
		}
		if isNull {
			return span, nil, nil
		}
		_, val, err := decodeKeyPayload(f, rest)
		if err != nil {
			return 0, nil, err
		}
		return span, val, nil
	}
	_, val, err := decodeKeyPayload(f, chunk)
	return span, val, err
}

// keyFieldSpan determines how many bytes of data the next field occupies
// without fully decoding it, so descending fields can be flipped back to
// ascending form as a whole before decoding.
func keyFieldSpan(f Field, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, errkind.New(errkind.CorruptEncoding, "key field: empty input")
	}
	markerLen := 0
	isNull := false
	if f.Nullable {
		b0 := data[0]
		if f.Descending {
			b0 ^= 0xFF
		}
		switch b0 {
		case nullMarker(NullsFirst):
			isNull = true
		case notNullMarker:
			isNull = false
		default:
			return 0, errkind.New(errkind.CorruptEncoding, "key field: invalid null marker byte 0x%02x", data[0])
		}
		markerLen = 1
		if isNull {
			return markerLen, nil
		}
	}
	payload := data[markerLen:]
	switch f.Kind {
	case KindString:
		n, err := scanTerminated(payload, stringTerminator, 3, f.Descending)
		return markerLen + n, err
	case KindBytes:
		n, err := scanTerminated(payload, bytesTerminator, 2, f.Descending)
		return markerLen + n, err
	default:
		w, ok := fixedWidth(f.Kind)
		if !ok {
			return 0, errkind.New(errkind.UnsupportedEncoding, "kind %d not valid in a key", f.Kind)
		}
		if len(payload) < w {
			return 0, errkind.New(errkind.CorruptEncoding, "key field: want %d bytes, got %d", w, len(payload))
		}
		return markerLen + w, nil
	}
}

// scanTerminated finds the byte offset just past a terminator byte
// (complemented when descending is true), scanning groupWidth bytes at a
// time between terminator checks, matching how DecodeString/DecodeBytes
// walk their own digit groups.
func scanTerminated(data []byte, terminator byte, groupWidth int, descending bool) (int, error) {
	want := terminator
	if descending {
		want ^= 0xFF
	}
	i := 0
	for {
		if i >= len(data) {
			return 0, errkind.New(errkind.CorruptEncoding, "key field: unterminated variable-width encoding")
		}
		if data[i] == want {
			return i + 1, nil
		}
		if i+groupWidth > len(data) {
			return 0, errkind.New(errkind.CorruptEncoding, "key field: truncated digit group")
		}
		i += groupWidth
	}
}

func decodeKeyPayload(f Field, data []byte) (int, interface{}, error) {
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
			return 0, nil, errkind.New(errkind.UnsupportedEncoding, "kind %d not valid in a key", f.Kind)
		}
		if len(data) < w {
			return 0, nil, errkind.New(errkind.CorruptEncoding, "key field: want %d bytes, got %d", w, len(data))
		}
		val, err := fixedWidthDecode(f.Kind, data[:w])
		return w, val, err
	}
}
