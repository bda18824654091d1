package codec

import (
	"golang.org/x/text/unicode/norm"

	"github.com/relcore/filterkv/internal/errkind"
)

// String encoding (three base-192 digits per unit) and opaque-byte
// encoding (two base-223 digits per byte) both work the same way: split
// the input into code units
// (UTF-16 units for strings, raw bytes for opaque arrays), map each unit
// into a fixed-width group of digits drawn from a byte range that
// excludes the terminator, and append a terminator outside that range.
// Because every group has the same width, byte-wise comparison of two
// encodings compares unit sequences exactly the way comparing the
// decoded sequences would, and a terminator byte below the digit range
// makes any strict prefix sort before a longer string that extends it.
//
// A reference encoder's exact variable-length (1-to-3-digit) grouping and
// its signed {-2..+1} terminator set are not reconstructible from the
// grammar alone; this implementation trades that space optimization for a
// fixed-width scheme that still satisfies the properties that matter
// (order-preserving, round-trip, terminator outside the digit range).

const (
	stringDigitBase  = 192
	stringDigitLow   = 0x02
	stringDigitHigh  = stringDigitLow + stringDigitBase - 1 // 0xC1
	stringTerminator = 0x00
)

// EncodeString NFC-normalizes s (so canonically equivalent Unicode text
// encodes identically, the same guarantee a string-literal comparison
// package applies before comparing strings) and encodes each UTF-16 code unit —
// splitting any codepoint above the basic multilingual plane into a
// surrogate pair first — as three base-192 digits.
func EncodeString(s string) []byte {
	s = norm.NFC.String(s)
	units := utf16Units(s)
	out := make([]byte, 0, len(units)*3+1)
	for _, u := range units {
		out = appendBase192(out, uint32(u))
	}
	out = append(out, stringTerminator)
	return out
}

// DecodeString reverses EncodeString, returning the decoded string and
// the number of bytes consumed.
func DecodeString(b []byte) (string, int, error) {
	var units []uint16
	i := 0
	for {
		if i >= len(b) {
			return "", 0, errkind.New(errkind.CorruptEncoding, "string: unterminated encoding")
		}
		if b[i] == stringTerminator {
			i++
			break
		}
		if i+3 > len(b) {
			return "", 0, errkind.New(errkind.CorruptEncoding, "string: truncated digit group")
		}
		v, err := readBase192(b[i : i+3])
		if err != nil {
			return "", 0, err
		}
		units = append(units, uint16(v))
		i += 3
	}
	return utf16Decode(units), i, nil
}

func appendBase192(out []byte, v uint32) []byte {
	d2 := v % stringDigitBase
	v /= stringDigitBase
	d1 := v % stringDigitBase
	v /= stringDigitBase
	d0 := v % stringDigitBase
	return append(out, byte(d0)+stringDigitLow, byte(d1)+stringDigitLow, byte(d2)+stringDigitLow)
}

func readBase192(b []byte) (uint32, error) {
	var v uint32
	for _, c := range b {
		if c < stringDigitLow || c > stringDigitHigh {
			return 0, errkind.New(errkind.CorruptEncoding, "string: digit byte 0x%02x out of range", c)
		}
		v = v*stringDigitBase + uint32(c-stringDigitLow)
	}
	return v, nil
}

// utf16Units splits s into UTF-16 code units, pairing surrogates for
// codepoints above the basic multilingual plane.
func utf16Units(s string) []uint16 {
	var out []uint16
	for _, r := range s {
		if r <= 0xFFFF {
			out = append(out, uint16(r))
			continue
		}
		r -= 0x10000
		hi := uint16(0xD800 + (r >> 10))
		lo := uint16(0xDC00 + (r & 0x3FF))
		out = append(out, hi, lo)
	}
	return out
}

func utf16Decode(units []uint16) string {
	out := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xD800 && u <= 0xDBFF && i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] <= 0xDFFF {
			r := (rune(u)-0xD800)<<10 + (rune(units[i+1]) - 0xDC00) + 0x10000
			out = append(out, r)
			i++
			continue
		}
		out = append(out, rune(u))
	}
	return string(out)
}

const (
	bytesDigitBase  = 223 // 0xDF - 0x20 + 1
	bytesDigitLow   = 0x20
	bytesDigitHigh  = bytesDigitLow + bytesDigitBase - 1 // 0xDF
	bytesTerminator = 0x00
)

// EncodeBytes encodes an opaque byte array over a digit range of 0x20..
// 0xDF, using a fixed two-digit-per-input-byte grouping for the same
// reconstructibility reason documented above EncodeString, terminated by
// a byte outside that range. A zero-length array collapses to a single
// terminator byte.
func EncodeBytes(data []byte) []byte {
	out := make([]byte, 0, len(data)*2+1)
	for _, b := range data {
		d1 := uint32(b) % bytesDigitBase
		d0 := uint32(b) / bytesDigitBase
		out = append(out, byte(d0)+bytesDigitLow, byte(d1)+bytesDigitLow)
	}
	out = append(out, bytesTerminator)
	return out
}

// DecodeBytes reverses EncodeBytes, returning the decoded bytes and the
// number of input bytes consumed.
func DecodeBytes(b []byte) ([]byte, int, error) {
	var out []byte
	i := 0
	for {
		if i >= len(b) {
			return nil, 0, errkind.New(errkind.CorruptEncoding, "bytes: unterminated encoding")
		}
		if b[i] == bytesTerminator {
			i++
			break
		}
		if i+2 > len(b) {
			return nil, 0, errkind.New(errkind.CorruptEncoding, "bytes: truncated digit pair")
		}
		d0, d1 := b[i], b[i+1]
		if d0 < bytesDigitLow || d0 > bytesDigitHigh || d1 < bytesDigitLow || d1 > bytesDigitHigh {
			return nil, 0, errkind.New(errkind.CorruptEncoding, "bytes: digit byte out of range")
		}
		v := uint32(d0-bytesDigitLow)*bytesDigitBase + uint32(d1-bytesDigitLow)
		if v > 255 {
			return nil, 0, errkind.New(errkind.CorruptEncoding, "bytes: decoded value %d out of byte range", v)
		}
		out = append(out, byte(v))
		i += 2
	}
	return out, i, nil
}
