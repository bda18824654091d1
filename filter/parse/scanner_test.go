package parse

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/relcore/filterkv/filter/parse/token"
)

func scanAll(src string) []token.Token {
	s := newScanner("", src)
	var out []token.Token
	for {
		tok, _, _ := s.scan()
		out = append(out, tok)
		if tok == token.EOF {
			return out
		}
	}
}

func TestScannerPunctuation(t *testing.T) {
	toks := scanAll("()[].&|?=!=<<=>>=!")
	want := []token.Token{
		token.LPAREN, token.RPAREN, token.LBRACK, token.RBRACK, token.DOT,
		token.AND, token.OR, token.QUEST, token.EQ, token.NE,
		token.LT, token.LE, token.GT, token.GE, token.NOT, token.EOF,
	}
	qt.Assert(t, qt.DeepEquals(toks, want))
}

func TestScannerIdentAndInt(t *testing.T) {
	s := newScanner("", "customer123 42")
	tok, lit, _ := s.scan()
	qt.Assert(t, qt.Equals(tok, token.IDENT))
	qt.Assert(t, qt.Equals(lit, "customer123"))

	tok, lit, _ = s.scan()
	qt.Assert(t, qt.Equals(tok, token.INT))
	qt.Assert(t, qt.Equals(lit, "42"))
}

func TestScannerSkipsWhitespace(t *testing.T) {
	s := newScanner("", "  \t\na  ")
	tok, lit, pos := s.scan()
	qt.Assert(t, qt.Equals(tok, token.IDENT))
	qt.Assert(t, qt.Equals(lit, "a"))
	qt.Assert(t, qt.Equals(pos.Offset(), 4))
}

func TestScannerIllegalRune(t *testing.T) {
	s := newScanner("", "@")
	tok, lit, _ := s.scan()
	qt.Assert(t, qt.Equals(tok, token.ILLEGAL))
	qt.Assert(t, qt.Equals(lit, "@"))
}

func TestScannerPositionsAdvance(t *testing.T) {
	s := newScanner("myfilter", "a & b")
	_, _, pos0 := s.scan()
	_, _, pos1 := s.scan()
	_, _, pos2 := s.scan()
	qt.Assert(t, qt.Equals(pos0.Offset(), 0))
	qt.Assert(t, qt.Equals(pos1.Offset(), 2))
	qt.Assert(t, qt.Equals(pos2.Offset(), 4))
	qt.Assert(t, qt.Equals(pos0.String(), "myfilter:offset 0"))
}
