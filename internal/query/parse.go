package query

import (
	"fmt"
	"strings"
)

// ParseError points at the offending byte offset in the filter source.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("query: %s at position %d", e.Msg, e.Pos)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokNot
	tokAnd
	tokOr
	tokLParen
	tokRParen
)

type token struct {
	kind          tokenKind
	text          string
	caseSensitive bool
	pos           int
}

type parser struct {
	tokens []token
	idx    int
}

func parse(source string) (Expr, error) {
	tokens, err := lex(source)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, &ParseError{Pos: tok.pos, Msg: "unexpected trailing input"}
	}
	return expr, nil
}

func (p *parser) peek() token {
	return p.tokens[p.idx]
}

func (p *parser) next() token {
	tok := p.tokens[p.idx]
	if tok.kind != tokEOF {
		p.idx++
	}
	return tok
}

func (p *parser) parseOr() (Expr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	exprs := []Expr{first}
	for p.peek().kind == tokOr {
		p.next()
		operand, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, operand)
	}
	if len(exprs) == 1 {
		return first, nil
	}
	return &Or{Exprs: exprs}, nil
}

func (p *parser) parseAnd() (Expr, error) {
	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	exprs := []Expr{first}
	for p.peek().kind == tokAnd {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, operand)
	}
	if len(exprs) == 1 {
		return first, nil
	}
	return &And{Exprs: exprs}, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.peek().kind == tokNot {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{Expr: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.next()
	switch tok.kind {
	case tokString:
		return &StringMatch{Text: tok.text, CaseSensitive: tok.caseSensitive}, nil
	case tokLParen:
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		closing := p.next()
		if closing.kind != tokRParen {
			return nil, &ParseError{Pos: closing.pos, Msg: "missing closing parenthesis"}
		}
		return expr, nil
	case tokEOF:
		return nil, &ParseError{Pos: tok.pos, Msg: "missing operand"}
	default:
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %q", tok.text)}
	}
}

func lex(source string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(source) {
		c := source[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '!':
			tokens = append(tokens, token{kind: tokNot, text: "!", pos: i})
			i++
		case c == '"':
			tok, width, err := lexString(source, i, false)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i += width
		case c == 'c' && i+1 < len(source) && source[i+1] == '"':
			tok, width, err := lexString(source, i+1, true)
			if err != nil {
				return nil, err
			}
			tok.pos = i
			tokens = append(tokens, tok)
			i += width + 1
		default:
			start := i
			for i < len(source) && isWordByte(source[i]) {
				i++
			}
			if i == start {
				return nil, &ParseError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", c)}
			}
			word := source[start:i]
			switch strings.ToUpper(word) {
			case "AND":
				tokens = append(tokens, token{kind: tokAnd, text: word, pos: start})
			case "OR":
				tokens = append(tokens, token{kind: tokOr, text: word, pos: start})
			case "NOT":
				tokens = append(tokens, token{kind: tokNot, text: word, pos: start})
			default:
				return nil, &ParseError{Pos: start, Msg: fmt.Sprintf("bare word %q; string literals must be quoted", word)}
			}
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(source)})
	return tokens, nil
}

func lexString(source string, start int, caseSensitive bool) (token, int, error) {
	var b strings.Builder
	i := start + 1
	for i < len(source) {
		c := source[i]
		switch c {
		case '"':
			return token{kind: tokString, text: b.String(), caseSensitive: caseSensitive, pos: start}, i - start + 1, nil
		case '\\':
			if i+1 >= len(source) {
				return token{}, 0, &ParseError{Pos: i, Msg: "dangling escape"}
			}
			b.WriteByte(source[i+1])
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return token{}, 0, &ParseError{Pos: start, Msg: "unterminated string literal"}
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
