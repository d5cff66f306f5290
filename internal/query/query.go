package query

import (
	"strings"

	"golang.org/x/text/cases"

	"shepherd/internal/changespec"
)

// Expr is one node of a parsed filter expression.
type Expr interface {
	match(doc *document) bool
}

// StringMatch matches records whose flattened text contains Text.
type StringMatch struct {
	Text          string
	CaseSensitive bool
}

// Not inverts its operand.
type Not struct {
	Expr Expr
}

// And matches when every operand matches.
type And struct {
	Exprs []Expr
}

// Or matches when any operand matches.
type Or struct {
	Exprs []Expr
}

// Query is a compiled filter. The zero-value (and a compile of the empty
// string) matches every record.
type Query struct {
	expr Expr
	src  string
}

// Compile parses source into a Query. An empty or blank source matches
// all records.
func Compile(source string) (*Query, error) {
	if strings.TrimSpace(source) == "" {
		return &Query{src: source}, nil
	}
	expr, err := parse(source)
	if err != nil {
		return nil, err
	}
	return &Query{expr: expr, src: source}, nil
}

// Source returns the original filter text.
func (q *Query) Source() string {
	if q == nil {
		return ""
	}
	return q.src
}

// Matches evaluates the query against one record snapshot.
func (q *Query) Matches(rec *changespec.Record) bool {
	if q == nil || q.expr == nil {
		return true
	}
	text := rec.SearchText()
	doc := &document{raw: text, folded: foldCase(text)}
	return q.expr.match(doc)
}

type document struct {
	raw    string
	folded string
}

func (s *StringMatch) match(doc *document) bool {
	if s.CaseSensitive {
		return strings.Contains(doc.raw, s.Text)
	}
	return strings.Contains(doc.folded, foldCase(s.Text))
}

func (n *Not) match(doc *document) bool {
	return !n.Expr.match(doc)
}

func (a *And) match(doc *document) bool {
	for _, e := range a.Exprs {
		if !e.match(doc) {
			return false
		}
	}
	return true
}

func (o *Or) match(doc *document) bool {
	for _, e := range o.Exprs {
		if e.match(doc) {
			return true
		}
	}
	return false
}

// A cases.Caser is stateful, so build one per call instead of sharing.
func foldCase(s string) string {
	return cases.Fold().String(s)
}
