package compiler

import (
	"strconv"

	"github.com/yunvm/yun/vm"
)

// ---------------------------------------------------------------------------
// Lexer
// ---------------------------------------------------------------------------

// Lexer tokenizes YASN source. Newlines are significant — the grammar is
// line-oriented — so they are emitted as tokens rather than skipped.
type Lexer struct {
	src     string
	start   int // start of the token being scanned
	current int // read cursor
	line    int
	tokens  []Token
}

// NewLexer creates a lexer over the given source.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1}
}

// Scan tokenizes the whole source. The token stream always ends in a
// TokenEOF; the first malformed character or literal aborts with a
// ParseError.
func (l *Lexer) Scan() ([]Token, error) {
	for l.hasNext() {
		l.start = l.current
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}
	l.trimTrailingNewlines()
	l.add(TokenEOF)
	return l.tokens, nil
}

func (l *Lexer) scanToken() error {
	c := l.next()
	switch c {
	case '(':
		l.add(TokenLParen)
	case ')':
		l.add(TokenRParen)
	case '{':
		l.add(TokenLBrace)
	case '}':
		l.add(TokenRBrace)
	case '[':
		l.add(TokenLBracket)
	case ']':
		l.add(TokenRBracket)
	case ',':
		l.add(TokenComma)
	case '=':
		l.add(TokenEquals)
	case '\n':
		l.add(TokenNewline)
		l.line++
	case ' ', '\t', '\r':
	case '$':
		return l.number()
	default:
		if isDigit(c) || c == '-' {
			return l.number()
		}
		if isAlpha(c) {
			l.identifier()
			return nil
		}
		return &vm.ParseError{Line: l.line, Message: "unexpected character " + strconv.QuoteRune(rune(c))}
	}
	return nil
}

// number scans a numeric literal, either $-prefixed (instruction operands)
// or bare (attribute values). The width is picked by suffix: 'l' widens to
// 64 bits, 'u' selects unsigned, a decimal point Float64 and a trailing
// 'f' Float32. Without a suffix, $-literals default to Int32; bare
// literals default to Uint32, the attribute grammar's unsigned counts.
func (l *Lexer) number() error {
	prefixed := l.src[l.start] == '$'
	if prefixed && l.peek() == '-' {
		l.next()
	}

	digits := l.start
	if prefixed {
		digits++
	}
	negative := l.current > digits && l.src[digits] == '-'

	for isDigit(l.peek()) {
		l.next()
	}
	if l.current == digits || (negative && l.current == digits+1) {
		return &vm.ParseError{Line: l.line, Message: "malformed numeric literal"}
	}

	isFloat := false
	if l.peek() == '.' && isDigit(l.peekNext()) {
		isFloat = true
		l.next()
		for isDigit(l.peek()) {
			l.next()
		}
	}

	text := l.src[digits:l.current]

	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return &vm.ParseError{Line: l.line, Message: "invalid literal " + strconv.Quote(text)}
		}
		if l.peek() == 'f' {
			l.next()
			l.addLiteral(TokenFloatLit, vm.ValueOf(float32(f)))
		} else {
			l.addLiteral(TokenFloatLit, vm.ValueOf(f))
		}
		return nil
	}

	unsigned := !prefixed && !negative
	wide := false
	if l.peek() == 'u' {
		unsigned = true
		l.next()
	}
	if l.peek() == 'l' {
		wide = true
		l.next()
	}

	if unsigned {
		u, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return &vm.ParseError{Line: l.line, Message: "invalid literal " + strconv.Quote(text)}
		}
		if wide {
			l.addLiteral(TokenUnsignedLit, vm.ValueOf(u))
		} else {
			l.addLiteral(TokenUnsignedLit, vm.ValueOf(uint32(u)))
		}
		return nil
	}

	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return &vm.ParseError{Line: l.line, Message: "invalid literal " + strconv.Quote(text)}
	}
	if wide {
		l.addLiteral(TokenSignedLit, vm.ValueOf(i))
	} else {
		l.addLiteral(TokenSignedLit, vm.ValueOf(int32(i)))
	}
	return nil
}

// identifier scans a bare word and classifies it: register, label (trailing
// colon), keyword, instruction mnemonic, or plain identifier.
func (l *Lexer) identifier() {
	mightBeRegister := l.src[l.start] == 'R' && isDigit(l.peek())
	for isAlpha(l.peek()) || isDigit(l.peek()) {
		if !isDigit(l.peek()) {
			mightBeRegister = false
		}
		l.next()
	}

	if mightBeRegister && l.current > l.start+1 {
		l.add(TokenRegister)
		return
	}
	if l.peek() == ':' {
		l.add(TokenLabel)
		l.next() // the colon stays out of the lexeme
		return
	}

	lexeme := l.src[l.start:l.current]
	if kw, ok := keywords[lexeme]; ok {
		l.add(kw)
		return
	}
	if op, ok := vm.FromMnemonic(lexeme); ok {
		l.tokens = append(l.tokens, Token{Type: TokenInstruction, Lexeme: lexeme, Line: l.line, Op: op})
		return
	}
	l.add(TokenId)
}

func (l *Lexer) add(t TokenType) {
	l.tokens = append(l.tokens, Token{Type: t, Lexeme: l.src[l.start:l.current], Line: l.line})
}

func (l *Lexer) addLiteral(t TokenType, v vm.Value) {
	l.tokens = append(l.tokens, Token{Type: t, Lexeme: l.src[l.start:l.current], Line: l.line, Value: v})
}

// trimTrailingNewlines drops newline tokens before EOF so an empty tail
// doesn't read as missing directives.
func (l *Lexer) trimTrailingNewlines() {
	for len(l.tokens) > 0 && l.tokens[len(l.tokens)-1].Type == TokenNewline {
		l.tokens = l.tokens[:len(l.tokens)-1]
	}
}

func (l *Lexer) hasNext() bool {
	return l.current < len(l.src)
}

func (l *Lexer) next() byte {
	c := l.src[l.current]
	l.current++
	return c
}

func (l *Lexer) peek() byte {
	if !l.hasNext() {
		return 0
	}
	return l.src[l.current]
}

func (l *Lexer) peekNext() byte {
	if l.current+1 >= len(l.src) {
		return 0
	}
	return l.src[l.current+1]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}
