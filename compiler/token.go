// Package compiler is the YASN front end: a hand-written scanner and a
// line-oriented recursive-descent parser that drives the assembler. The
// output is a ready-to-run execution unit; everything after tokenization is
// the asm and vm packages' business.
package compiler

import (
	"fmt"

	"github.com/yunvm/yun/vm"
)

// TokenType classifies a scanned token.
type TokenType uint8

const (
	TokenLParen TokenType = iota
	TokenRParen
	TokenLBrace
	TokenRBrace
	TokenLBracket
	TokenRBracket
	TokenComma
	TokenEquals
	TokenNewline

	TokenFloatLit
	TokenSignedLit
	TokenUnsignedLit
	TokenTrue
	TokenFalse
	TokenId

	TokenLabel
	TokenFunction
	TokenInstruction
	TokenRegister

	TokenRegistersAttr
	TokenReturnsAttr
	TokenParametersAttr
	TokenEOF
)

// String returns the token type's name for diagnostics.
func (t TokenType) String() string {
	switch t {
	case TokenLParen:
		return "'('"
	case TokenRParen:
		return "')'"
	case TokenLBrace:
		return "'{'"
	case TokenRBrace:
		return "'}'"
	case TokenLBracket:
		return "'['"
	case TokenRBracket:
		return "']'"
	case TokenComma:
		return "','"
	case TokenEquals:
		return "'='"
	case TokenNewline:
		return "newline"
	case TokenFloatLit:
		return "float literal"
	case TokenSignedLit:
		return "signed literal"
	case TokenUnsignedLit:
		return "unsigned literal"
	case TokenTrue:
		return "'true'"
	case TokenFalse:
		return "'false'"
	case TokenId:
		return "identifier"
	case TokenLabel:
		return "label"
	case TokenFunction:
		return "'function'"
	case TokenInstruction:
		return "instruction"
	case TokenRegister:
		return "register"
	case TokenRegistersAttr:
		return "'registers'"
	case TokenReturnsAttr:
		return "'returns'"
	case TokenParametersAttr:
		return "'parameters'"
	case TokenEOF:
		return "end of file"
	default:
		return "<err>"
	}
}

// Token is one scanned YASN token. Literal tokens additionally carry their
// constant value, pre-tagged with the width the suffix selected.
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int

	// Value holds the literal for TokenFloatLit/TokenSignedLit/
	// TokenUnsignedLit, and Op the opcode for TokenInstruction.
	Value vm.Value
	Op    vm.Opcode
}

// String renders the token for -t dumps.
func (t Token) String() string {
	switch t.Type {
	case TokenFloatLit, TokenSignedLit, TokenUnsignedLit:
		return fmt.Sprintf("%3d | %-16s %q -> %s", t.Line, t.Type, t.Lexeme, t.Value)
	case TokenInstruction:
		return fmt.Sprintf("%3d | %-16s %s", t.Line, t.Type, t.Op)
	default:
		return fmt.Sprintf("%3d | %-16s %q", t.Line, t.Type, t.Lexeme)
	}
}

// keywords maps bare identifiers that aren't mnemonics or labels.
var keywords = map[string]TokenType{
	"function":   TokenFunction,
	"true":       TokenTrue,
	"false":      TokenFalse,
	"registers":  TokenRegistersAttr,
	"returns":    TokenReturnsAttr,
	"parameters": TokenParametersAttr,
}
