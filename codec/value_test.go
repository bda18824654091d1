package codec

import (
	"testing"

	"github.com/go-quicktest/qt"
)

func valueSchema(gen uint32) Schema {
	return Schema{
		Value: []Field{
			{Name: "name", Kind: KindString},
			{Name: "score", Kind: KindF64, Nullable: true},
			{Name: "active", Kind: KindBool},
			{Name: "note", Kind: KindBytes, Nullable: true},
		},
		Generation: gen,
	}
}

func TestEncodeDecodeValueRoundTrip(t *testing.T) {
	schema := valueSchema(3)
	cases := [][]interface{}{
		{"alice", 3.25, true, []byte("hi")},
		{"bob", nil, false, nil},
		{"", 0.0, true, nil},
	}
	for _, vals := range cases {
		enc, err := EncodeValue(schema, vals)
		qt.Assert(t, qt.IsNil(err))
		got, err := DecodeValue(schema, enc)
		qt.Assert(t, qt.IsNil(err))
		qt.Assert(t, qt.DeepEquals(got, vals))
	}
}

func TestEncodeValueGenerationMismatch(t *testing.T) {
	enc, err := EncodeValue(valueSchema(3), []interface{}{"x", nil, false, nil})
	qt.Assert(t, qt.IsNil(err))
	_, err = DecodeValue(valueSchema(4), enc)
	qt.Assert(t, qt.IsNotNil(err))
}

func TestGenerationTagWideForm(t *testing.T) {
	schema := valueSchema(200)
	enc, err := EncodeValue(schema, []interface{}{"x", 1.0, true, []byte("n")})
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.Equals(enc[0]&0x80 != 0, true))
	got, err := DecodeValue(schema, enc)
	qt.Assert(t, qt.IsNil(err))
	qt.Assert(t, qt.DeepEquals(got, []interface{}{"x", 1.0, true, []byte("n")}))
}

func TestEncodeValueWrongFieldCount(t *testing.T) {
	_, err := EncodeValue(valueSchema(0), []interface{}{"only one"})
	qt.Assert(t, qt.IsNotNil(err))
}
