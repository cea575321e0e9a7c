package compiler

import (
	"fmt"
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/yunvm/yun/asm"
	"github.com/yunvm/yun/vm"
)

var log = commonlog.GetLogger("yun.compiler")

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

// functionState accumulates one function header's attributes before the
// assembler is told to begin it.
type functionState struct {
	name       string
	registers  uint16
	parameters uint16
	returns    bool
}

// Parser consumes the token stream and drives the assembler. The grammar
// is line-oriented: attributes in brackets, a function declaration, then a
// braced block of instruction lines.
type Parser struct {
	assembler *asm.Assembler
	tokens    []Token
	current   int
	state     functionState
}

// NewParser creates a parser over a scanned token stream.
func NewParser(tokens []Token) *Parser {
	return &Parser{assembler: asm.NewAssembler(), tokens: tokens}
}

// Parse assembles every function in the stream and patches the unit under
// the given name.
func (p *Parser) Parse(unitName string) (*vm.ExecutionUnit, error) {
	for p.hasNext() {
		if err := p.function(); err != nil {
			return nil, err
		}
	}
	log.Debugf("parsed unit %s", unitName)
	return p.assembler.Patch(unitName)
}

// Compile is the whole front end in one call: scan, parse, patch.
func Compile(unitName, source string) (*vm.ExecutionUnit, error) {
	tokens, err := NewLexer(source).Scan()
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).Parse(unitName)
}

// ---------------------------------------------------------------------------
// Grammar productions
// ---------------------------------------------------------------------------

func (p *Parser) function() error {
	p.state = functionState{}
	if err := p.declaration(); err != nil {
		return err
	}
	if err := p.assembler.BeginFunction(p.state.name, p.state.registers, p.state.parameters, p.state.returns); err != nil {
		return err
	}
	if err := p.block(); err != nil {
		return err
	}
	return p.assembler.EndFunction()
}

func (p *Parser) declaration() error {
	if err := p.attributes(); err != nil {
		return err
	}
	if _, err := p.expect(TokenFunction); err != nil {
		return err
	}
	name, err := p.expect(TokenId)
	if err != nil {
		return err
	}
	p.state.name = name.Lexeme
	if _, err := p.expect(TokenLParen); err != nil {
		return err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return err
	}
	return nil
}

func (p *Parser) attributes() error {
	if _, err := p.expectPrintable(TokenLBracket); err != nil {
		return err
	}

	sawRegisters, sawParameters, sawReturns := false, false, false
	for {
		t := p.next()
		switch t.Type {
		case TokenRegistersAttr:
			if sawRegisters {
				return p.errorf(t, "attribute 'registers' given twice")
			}
			n, err := p.attributeCount()
			if err != nil {
				return err
			}
			p.state.registers = n
			sawRegisters = true
		case TokenParametersAttr:
			if sawParameters {
				return p.errorf(t, "attribute 'parameters' given twice")
			}
			n, err := p.attributeCount()
			if err != nil {
				return err
			}
			p.state.parameters = n
			sawParameters = true
		case TokenReturnsAttr:
			if sawReturns {
				return p.errorf(t, "attribute 'returns' given twice")
			}
			b, err := p.attributeBool()
			if err != nil {
				return err
			}
			p.state.returns = b
			sawReturns = true
		default:
			return p.errorf(t, "expected an attribute, got %s", t.Type)
		}

		if p.peek().Type != TokenComma {
			break
		}
		p.next()
	}

	if _, err := p.expect(TokenRBracket); err != nil {
		return err
	}
	_, err := p.expect(TokenNewline)
	return err
}

func (p *Parser) attributeCount() (uint16, error) {
	if _, err := p.expect(TokenEquals); err != nil {
		return 0, err
	}
	t, err := p.expect(TokenUnsignedLit)
	if err != nil {
		return 0, err
	}
	n := vm.As[uint32](t.Value)
	if n > 0xFFF {
		return 0, p.errorf(t, "count %d exceeds the 12-bit register space", n)
	}
	return uint16(n), nil
}

func (p *Parser) attributeBool() (bool, error) {
	if _, err := p.expect(TokenEquals); err != nil {
		return false, err
	}
	t := p.next()
	switch t.Type {
	case TokenTrue:
		return true, nil
	case TokenFalse:
		return false, nil
	default:
		return false, p.errorf(t, "expected a boolean, got %s", t.Type)
	}
}

func (p *Parser) block() error {
	if _, err := p.expectPrintable(TokenLBrace); err != nil {
		return err
	}
	if _, err := p.expect(TokenNewline); err != nil {
		return err
	}
	for {
		t := p.nextPrintable()
		if t.Type == TokenRBrace {
			return nil
		}
		if t.Type == TokenEOF {
			return p.errorf(t, "unterminated block")
		}
		p.putback()
		if err := p.line(); err != nil {
			return err
		}
	}
}

// line parses one instruction line: an optional label, then an optional
// instruction with its operands, terminated by a newline.
func (p *Parser) line() error {
	t := p.nextPrintable()

	if t.Type == TokenLabel {
		if err := p.assembler.AddLabel(t.Lexeme); err != nil {
			return err
		}
		t = p.nextPrintable()
	}
	if t.Type == TokenNewline || t.Type == TokenRBrace {
		if t.Type == TokenRBrace {
			p.putback()
		}
		return nil
	}
	if t.Type != TokenInstruction {
		return p.errorf(t, "expected an instruction, got %s", t.Type)
	}

	var err error
	switch t.Op.Arity() {
	case 0:
		err = p.assembler.AddVoid(t.Op)
	case 1:
		err = p.unaryLine(t.Op)
	default:
		err = p.binaryLine(t.Op)
	}
	if err != nil {
		return err
	}

	if end := p.next(); end.Type != TokenNewline && end.Type != TokenEOF {
		return p.errorf(end, "expected newline after instruction, got %s", end.Type)
	}
	return nil
}

func (p *Parser) unaryLine(op vm.Opcode) error {
	t := p.next()
	switch {
	case op.IsJump():
		if t.Type != TokenId {
			return p.errorf(t, "expected a label name, got %s", t.Type)
		}
		return p.assembler.AddJump(op, t.Lexeme)
	case op == vm.OpCall:
		if t.Type != TokenId {
			return p.errorf(t, "expected a function name, got %s", t.Type)
		}
		return p.assembler.AddCall(t.Lexeme)
	default:
		if t.Type != TokenRegister {
			return p.errorf(t, "expected a register, got %s", t.Type)
		}
		index, err := registerIndex(t)
		if err != nil {
			return err
		}
		return p.assembler.AddUnary(op, index)
	}
}

func (p *Parser) binaryLine(op vm.Opcode) error {
	dest, err := p.expect(TokenRegister)
	if err != nil {
		return err
	}
	destIndex, err := registerIndex(dest)
	if err != nil {
		return err
	}
	if _, err := p.expect(TokenComma); err != nil {
		return err
	}

	src := p.next()
	if op == vm.OpLdconst {
		switch src.Type {
		case TokenFloatLit, TokenSignedLit, TokenUnsignedLit:
			return p.assembler.LoadConstant(destIndex, src.Value)
		default:
			return p.errorf(src, "expected a constant, got %s", src.Type)
		}
	}
	if src.Type != TokenRegister {
		return p.errorf(src, "expected a register, got %s", src.Type)
	}
	srcIndex, err := registerIndex(src)
	if err != nil {
		return err
	}
	return p.assembler.AddBinary(op, destIndex, srcIndex)
}

func registerIndex(t Token) (uint32, error) {
	n, err := strconv.ParseUint(t.Lexeme[1:], 10, 32)
	if err != nil || n > 0xFFF {
		return 0, &vm.ParseError{Line: t.Line, Message: "register index " + t.Lexeme + " outside the 12-bit operand field"}
	}
	return uint32(n), nil
}

// ---------------------------------------------------------------------------
// Token stream helpers
// ---------------------------------------------------------------------------

func (p *Parser) hasNext() bool {
	return p.current < len(p.tokens) && p.tokens[p.current].Type != TokenEOF
}

func (p *Parser) next() Token {
	if p.current >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	t := p.tokens[p.current]
	p.current++
	return t
}

// nextPrintable skips newline tokens.
func (p *Parser) nextPrintable() Token {
	t := p.next()
	for t.Type == TokenNewline {
		t = p.next()
	}
	return t
}

func (p *Parser) peek() Token {
	if p.current >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.current]
}

func (p *Parser) putback() {
	if p.current > 0 {
		p.current--
	}
}

func (p *Parser) expect(t TokenType) (Token, error) {
	got := p.next()
	if got.Type != t {
		return Token{}, p.errorf(got, "expected %s, got %s", t, got.Type)
	}
	return got, nil
}

func (p *Parser) expectPrintable(t TokenType) (Token, error) {
	got := p.nextPrintable()
	if got.Type != t {
		return Token{}, p.errorf(got, "expected %s, got %s", t, got.Type)
	}
	return got, nil
}

func (p *Parser) errorf(t Token, format string, args ...any) error {
	return &vm.ParseError{Line: t.Line, Message: fmt.Sprintf(format, args...)}
}
