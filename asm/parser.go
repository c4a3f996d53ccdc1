package asm

import "github.com/pkg/errors"

// cursor walks a flat token stream spanning the whole source listing (all
// lines concatenated in order), so grammar that spans line breaks — such
// as Func's opening brace being allowed on the following line — can be
// expressed as ordinary lookahead instead of juggling per-line slices.
type cursor struct {
	tokens []Token
	pos    int
}

func tokenize(source []string) ([]Token, error) {
	var all []Token
	for i, raw := range source {
		line, err := LexLine(raw, i+1)
		if err != nil {
			return nil, err
		}
		all = append(all, line...)
	}
	return all, nil
}

func (c *cursor) atEnd() bool {
	return c.pos >= len(c.tokens)
}

func (c *cursor) peek() Token {
	if c.atEnd() {
		return Token{Kind: TokEnd}
	}
	return c.tokens[c.pos]
}

func (c *cursor) next() Token {
	t := c.peek()
	if !c.atEnd() {
		c.pos++
	}
	return t
}

// skipNewlines consumes any run of TokNewline tokens, per the grammar
// rule that blank statement separators are insignificant between certain
// tokens (e.g. between `Func <name>` and its opening brace).
func (c *cursor) skipNewlines() {
	for c.peek().Kind == TokNewline {
		c.pos++
	}
}

// skipToNewline discards the remainder of the current statement,
// including its newline, used by the passes to step over statements they
// do not process.
func (c *cursor) skipToNewline() {
	for !c.atEnd() && c.peek().Kind != TokNewline {
		c.pos++
	}
	if c.peek().Kind == TokNewline {
		c.pos++
	}
}

func (c *cursor) expect(kind TokenKind) (Token, error) {
	t := c.next()
	if t.Kind != kind {
		return t, errors.Errorf("line %d: expected %s, found %s %q", t.Line, kind, t.Kind, t.Text)
	}
	return t, nil
}

func lowerKey(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
