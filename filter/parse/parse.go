// Package parse implements the textual filter grammar: a recursive-descent
// parser that both builds a canonical filter.Filter tree and type-checks
// chained property names against a descriptor.Registry as it goes.
//
//	filter   = or
//	or       = and ( '|' and )*
//	and      = not ( '&' not )*
//	not      = [ '!' ] entity
//	entity   = '(' filter ')'  |  chained ( '.' chained_filter | '(' subfilter ')' | relop '?' )
//	relop    = '=' | '!=' | '<' | '<=' | '>' | '>='
//	chained  = identifier
//	         | innerJoin '.' chained
//	         | '(' identifier ')' '.' chained     -- outer join
package parse

import (
	"fmt"

	"github.com/relcore/filterkv/filter"
	"github.com/relcore/filterkv/filter/descriptor"
	"github.com/relcore/filterkv/filter/parse/token"
	"github.com/relcore/filterkv/internal/errkind"
)

// Parser holds the state for one parse of a single filter expression.
type Parser struct {
	sc       *scanner
	registry descriptor.Registry
	src      string
	name     string

	buf []tokenInfo // lookahead pushback, filled lazily
}

type tokenInfo struct {
	tok token.Token
	lit string
	pos token.Pos
}

// Parse parses src as a filter expression over typ, resolving chained
// property names against reg. name is used only to annotate error
// messages (e.g. a flag name or file path); pass "" if there is none.
func Parse(name, src string, typ filter.RecordType, reg descriptor.Registry) (filter.Filter, error) {
	p := &Parser{sc: newScanner(name, src), registry: reg, src: src, name: name}
	f, err := p.parseFilter(typ)
	if err != nil {
		return nil, err
	}
	tok, _, pos := p.peek(0)
	if tok != token.EOF {
		return nil, p.errorf(pos, "unexpected trailing input")
	}
	return f, nil
}

func (p *Parser) fill(n int) {
	for len(p.buf) <= n {
		tok, lit, pos := p.sc.scan()
		p.buf = append(p.buf, tokenInfo{tok, lit, pos})
	}
}

func (p *Parser) peek(n int) (token.Token, string, token.Pos) {
	p.fill(n)
	ti := p.buf[n]
	return ti.tok, ti.lit, ti.pos
}

func (p *Parser) advance() tokenInfo {
	p.fill(0)
	ti := p.buf[0]
	p.buf = p.buf[1:]
	return ti
}

func (p *Parser) expect(t token.Token) (tokenInfo, error) {
	ti := p.advance()
	if ti.tok != t {
		return ti, p.errorf(ti.pos, "expected %s, got %s", t, ti.tok)
	}
	return ti, nil
}

// errorf builds a *errkind.Error of kind MalformedFilter, anchored to pos
// and annotated with a short excerpt of the surrounding source text. pos is
// carried through the parser as a token.Pos, the same way a hand-written
// recursive-descent scanner and parser anchor their diagnostics;
// errkind.Position is derived
// from it only at the point an *errkind.Error is actually constructed, so
// codec and storekv (which never see a token.Pos) still share the same
// Error shape.
func (p *Parser) errorf(pos token.Pos, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	excerpt := p.excerpt(pos)
	position := errkind.NewPosition(p.name, pos.Offset())
	return errkind.NewAt(errkind.MalformedFilter, position, "%s (%s, near %q)", msg, pos, excerpt)
}

// excerpt returns up to 20 characters of source text centered on pos.
func (p *Parser) excerpt(pos token.Pos) string {
	const width = 20
	off := pos.Offset()
	lo := off - width/2
	if lo < 0 {
		lo = 0
	}
	hi := lo + width
	if hi > len(p.src) {
		hi = len(p.src)
		lo = hi - width
		if lo < 0 {
			lo = 0
		}
	}
	return p.src[lo:hi]
}

func (p *Parser) parseFilter(typ filter.RecordType) (filter.Filter, error) {
	return p.parseOr(typ)
}

func (p *Parser) parseOr(typ filter.RecordType) (filter.Filter, error) {
	left, err := p.parseAnd(typ)
	if err != nil {
		return nil, err
	}
	for {
		tok, _, _ := p.peek(0)
		if tok != token.OR {
			return left, nil
		}
		p.advance()
		right, err := p.parseAnd(typ)
		if err != nil {
			return nil, err
		}
		left = filter.Or(left, right)
	}
}

func (p *Parser) parseAnd(typ filter.RecordType) (filter.Filter, error) {
	left, err := p.parseNot(typ)
	if err != nil {
		return nil, err
	}
	for {
		tok, _, _ := p.peek(0)
		if tok != token.AND {
			return left, nil
		}
		p.advance()
		right, err := p.parseNot(typ)
		if err != nil {
			return nil, err
		}
		left = filter.And(left, right)
	}
}

func (p *Parser) parseNot(typ filter.RecordType) (filter.Filter, error) {
	tok, _, _ := p.peek(0)
	if tok == token.NOT {
		p.advance()
		f, err := p.parseEntity(typ)
		if err != nil {
			return nil, err
		}
		return filter.Not(f), nil
	}
	return p.parseEntity(typ)
}

func (p *Parser) parseEntity(typ filter.RecordType) (filter.Filter, error) {
	tok, _, pos := p.peek(0)
	if tok == token.LPAREN {
		if outer, ok, err := p.tryParseOuterJoinSegment(); err != nil {
			return nil, err
		} else if ok {
			return p.parseChainTail(typ, outer)
		}
		p.advance() // consume '('
		f, err := p.parseFilter(typ)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RPAREN); err != nil {
			return nil, err
		}
		return f, nil
	}
	if tok != token.IDENT {
		return nil, p.errorf(pos, "expected identifier or '(', got %s", tok)
	}
	ident := p.advance()
	return p.parseChainTail(typ, segmentCandidate{name: ident.lit, pos: ident.pos})
}

// segmentCandidate is an identifier, possibly parenthesized (outer join),
// not yet resolved against the descriptor.
type segmentCandidate struct {
	name      string
	outerJoin bool
	pos       token.Pos
}

// tryParseOuterJoinSegment looks ahead past a leading '(' to decide
// whether it opens an outer-join-wrapped identifier ('(' IDENT ')' '.')
// or a grouped sub-filter. On a non-match it leaves the scanner's
// lookahead untouched (the pushback buffer makes this a pure peek).
func (p *Parser) tryParseOuterJoinSegment() (segmentCandidate, bool, error) {
	t0, lit0, pos0 := p.peek(0) // '('
	t1, _, _ := p.peek(1)
	t2, _, _ := p.peek(2)
	if t0 == token.LPAREN && t1 == token.IDENT && t2 == token.RPAREN {
		t3, _, _ := p.peek(3)
		if t3 == token.DOT {
			p.advance() // '('
			ident := p.advance()
			p.advance() // ')'; parseChainTail consumes the '.'
			return segmentCandidate{name: ident.lit, outerJoin: true, pos: pos0}, true, nil
		}
	}
	_ = lit0
	return segmentCandidate{}, false, nil
}

// parseChainTail resolves seg against typ's descriptor and continues the
// chain: a join property either opens an explicit "(subfilter)" or is
// followed by '.' and the remainder of the chain over the joined type,
// and in both cases the result is wrapped in an Exists; a terminal
// property is followed by a relational operator and a placeholder.
func (p *Parser) parseChainTail(typ filter.RecordType, seg segmentCandidate) (filter.Filter, error) {
	desc, ok := p.registry.Describe(typ)
	if !ok {
		return nil, p.errorf(seg.pos, "no descriptor registered for type %s", typ.Name())
	}
	pd, ok := desc.Property(seg.name)
	if !ok {
		return nil, p.errorf(seg.pos, "unknown property %q on type %s", seg.name, typ.Name())
	}
	if seg.outerJoin && !pd.IsJoin {
		return nil, p.errorf(seg.pos, "outer join parentheses only legal on a join property, got %q", seg.name)
	}

	fseg := filter.Segment{Name: pd.Name, ElementType: pd.ElementType, IsJoin: pd.IsJoin, ManyToOne: pd.ManyToOne, OuterJoin: seg.outerJoin}

	if pd.IsJoin {
		tok, _, _ := p.peek(0)
		if tok == token.LPAREN {
			p.advance()
			sub, err := p.parseFilter(pd.ElementType)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(token.RPAREN); err != nil {
				return nil, err
			}
			return filter.NewExists(typ, filter.NewChainedProperty(fseg), sub, false), nil
		}
		if _, err := p.expect(token.DOT); err != nil {
			return nil, err
		}
		sub, err := p.parseEntitySuffix(pd.ElementType)
		if err != nil {
			return nil, err
		}
		return filter.NewExists(typ, filter.NewChainedProperty(fseg), sub, false), nil
	}

	tok, _, pos := p.peek(0)
	if !tok.IsRelOp() {
		return nil, p.errorf(pos, "expected relational operator after %q, got %s", seg.name, tok)
	}
	op, err := p.parseRelOp()
	if err != nil {
		return nil, err
	}
	bind, err := p.parsePlaceholder()
	if err != nil {
		return nil, err
	}
	return filter.NewProperty(typ, filter.NewChainedProperty(fseg), op, bind, nil), nil
}

// parseEntitySuffix parses the remainder of a chain after a bare (non
// explicitly-subfiltered) join, i.e. the "bare .chained relop ?" form:
// another identifier (possibly another join, recursing further) followed
// eventually by relop '?'.
func (p *Parser) parseEntitySuffix(typ filter.RecordType) (filter.Filter, error) {
	if outer, ok, err := p.tryParseOuterJoinSegment(); err != nil {
		return nil, err
	} else if ok {
		return p.parseChainTail(typ, outer)
	}
	ident, err := p.expect(token.IDENT)
	if err != nil {
		return nil, err
	}
	return p.parseChainTail(typ, segmentCandidate{name: ident.lit, pos: ident.pos})
}

func (p *Parser) parseRelOp() (filter.Operator, error) {
	ti := p.advance()
	switch ti.tok {
	case token.EQ:
		return filter.EQ, nil
	case token.NE:
		return filter.NE, nil
	case token.LT:
		return filter.LT, nil
	case token.LE:
		return filter.LE, nil
	case token.GT:
		return filter.GT, nil
	case token.GE:
		return filter.GE, nil
	default:
		return 0, p.errorf(ti.pos, "expected relational operator, got %s", ti.tok)
	}
}

// parsePlaceholder parses '?' (unbound) or '?[' INT ']' (already bound,
// accepted so that parse(print(x)) round-trips for a bound filter).
func (p *Parser) parsePlaceholder() (filter.BindID, error) {
	if _, err := p.expect(token.QUEST); err != nil {
		return 0, err
	}
	tok, _, _ := p.peek(0)
	if tok != token.LBRACK {
		return 0, nil
	}
	p.advance()
	n, err := p.expect(token.INT)
	if err != nil {
		return 0, err
	}
	if _, err := p.expect(token.RBRACK); err != nil {
		return 0, err
	}
	var v int
	if _, scanErr := fmt.Sscanf(n.lit, "%d", &v); scanErr != nil {
		return 0, p.errorf(n.pos, "invalid bind index %q", n.lit)
	}
	return filter.BindID(v), nil
}
