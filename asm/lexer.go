package asm

import (
	"strconv"
	"strings"

	"github.com/kiplingw/agni-go/avm"
	"github.com/pkg/errors"
)

// TokenKind enumerates the token classes the lexer can produce.
type TokenKind int

const (
	TokEnd TokenKind = iota
	TokNewline
	TokQuote
	TokComma
	TokColon
	TokOpenBracket
	TokCloseBracket
	TokOpenBrace
	TokCloseBrace
	TokInteger
	TokFloat
	TokIdentifier
	TokMnemonic
	TokDirective
	TokKeyword
	TokRegister
	TokStringBody
)

func (k TokenKind) String() string {
	names := [...]string{
		"end", "newline", "quote", "comma", "colon", "open-bracket",
		"close-bracket", "open-brace", "close-brace", "integer", "float",
		"identifier", "mnemonic", "directive", "keyword", "register",
		"string-body",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "?unknown-token?"
}

// Token is one lexed unit, with line metadata for diagnostics.
type Token struct {
	Kind TokenKind
	Text string
	Int  int32
	Flt  float32
	Line int
}

var directives = map[string]bool{
	"SetHost": true, "SetStackSize": true, "SetThreadPriority": true,
}

var keywords = map[string]bool{
	"Func": true, "Var": true, "Param": true,
}

var registers = map[string]avm.RegisterID{
	"_RegisterT0":     avm.RegisterT0,
	"_RegisterT1":     avm.RegisterT1,
	"_RegisterReturn": avm.RegisterReturn,
}

const delimiters = ",:[]{}\""

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// stripComment removes a ';'-started comment that is not inside a quoted
// string.
func stripComment(line string) string {
	inString := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inString = !inString
		case ';':
			if !inString {
				return line[:i]
			}
		}
	}
	return line
}

// LexLine strips any ';' comment and surrounding whitespace from one
// source line and tokenizes the rest into a token stream terminated by a
// TokNewline; a line left blank yields no tokens at all. lineNo is
// 1-based, used only for diagnostics.
func LexLine(raw string, lineNo int) ([]Token, error) {
	line := strings.TrimSpace(stripComment(raw))
	var tokens []Token
	if line == "" {
		return tokens, nil
	}

	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == ',':
			tokens = append(tokens, Token{Kind: TokComma, Text: ",", Line: lineNo})
			i++
		case c == ':':
			tokens = append(tokens, Token{Kind: TokColon, Text: ":", Line: lineNo})
			i++
		case c == '[':
			tokens = append(tokens, Token{Kind: TokOpenBracket, Text: "[", Line: lineNo})
			i++
		case c == ']':
			tokens = append(tokens, Token{Kind: TokCloseBracket, Text: "]", Line: lineNo})
			i++
		case c == '{':
			tokens = append(tokens, Token{Kind: TokOpenBrace, Text: "{", Line: lineNo})
			i++
		case c == '}':
			tokens = append(tokens, Token{Kind: TokCloseBrace, Text: "}", Line: lineNo})
			i++
		case c == '"':
			end := strings.IndexByte(line[i+1:], '"')
			if end < 0 {
				return nil, errors.Errorf("line %d: unterminated string literal", lineNo)
			}
			body := line[i+1 : i+1+end]
			tokens = append(tokens,
				Token{Kind: TokQuote, Text: "\"", Line: lineNo},
				Token{Kind: TokStringBody, Text: unescapeBackslashes(body), Line: lineNo},
				Token{Kind: TokQuote, Text: "\"", Line: lineNo},
			)
			i += end + 2
		case c == '-' || (c >= '0' && c <= '9'):
			start := i
			i++
			isFloat := false
			for i < len(line) && (line[i] >= '0' && line[i] <= '9' || (line[i] == '.' && !isFloat)) {
				if line[i] == '.' {
					isFloat = true
				}
				i++
			}
			text := line[start:i]
			if isFloat {
				f, err := strconv.ParseFloat(text, 32)
				if err != nil {
					return nil, errors.Wrapf(err, "line %d: invalid float literal %q", lineNo, text)
				}
				tokens = append(tokens, Token{Kind: TokFloat, Text: text, Flt: float32(f), Line: lineNo})
			} else {
				n, err := strconv.ParseInt(text, 10, 32)
				if err != nil {
					return nil, errors.Wrapf(err, "line %d: invalid integer literal %q", lineNo, text)
				}
				tokens = append(tokens, Token{Kind: TokInteger, Text: text, Int: int32(n), Line: lineNo})
			}
		case isIdentStart(c):
			start := i
			i++
			for i < len(line) && isIdentCont(line[i]) {
				i++
			}
			text := line[start:i]
			tokens = append(tokens, classifyWord(text, lineNo))
		default:
			return nil, errors.Errorf("line %d: unexpected character %q", lineNo, string(c))
		}
	}

	tokens = append(tokens, Token{Kind: TokNewline, Line: lineNo})
	return tokens, nil
}

func classifyWord(text string, lineNo int) Token {
	if _, ok := registers[text]; ok {
		return Token{Kind: TokRegister, Text: text, Line: lineNo}
	}
	if directives[text] {
		return Token{Kind: TokDirective, Text: text, Line: lineNo}
	}
	if keywords[text] {
		return Token{Kind: TokKeyword, Text: text, Line: lineNo}
	}
	if _, ok := avm.LookupMnemonic(text); ok {
		return Token{Kind: TokMnemonic, Text: text, Line: lineNo}
	}
	return Token{Kind: TokIdentifier, Text: text, Line: lineNo}
}

// unescapeBackslashes performs the lexer's "no escape processing beyond
// backslash-skip" rule: a backslash simply elides itself and passes the
// following character through literally.
func unescapeBackslashes(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
