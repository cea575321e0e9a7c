package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Error kinds
// ---------------------------------------------------------------------------
//
// Every failure the toolchain or the interpreter can produce falls into one
// of the kinds below. There is no catch/recover inside the machine: build
// errors abort assembly, runtime errors abort execution, and the outermost
// driver turns the error into a message and a non-zero exit code.

// InstructionError reports a malformed instruction: an unknown opcode, an
// operand count that does not match the opcode's arity, or a patch applied
// to an opcode outside the jump/call family.
type InstructionError struct {
	Message string
}

func (e *InstructionError) Error() string {
	return "instruction error: " + e.Message
}

func instructionErrorf(format string, args ...any) *InstructionError {
	return &InstructionError{Message: fmt.Sprintf(format, args...)}
}

// TypeError reports an operand whose type tag does not match what an
// operation expects, or an invalid array element-type id.
type TypeError struct {
	Message string
}

func (e *TypeError) Error() string {
	return "type error: " + e.Message
}

func typeErrorf(format string, args ...any) *TypeError {
	return &TypeError{Message: fmt.Sprintf(format, args...)}
}

// ArithmeticError reports integer division or remainder by zero.
type ArithmeticError struct {
	Message string
}

func (e *ArithmeticError) Error() string {
	return "arithmetic error: " + e.Message
}

// AssemblerError reports a build-time failure: label redefinition, a jump to
// a missing label, an unknown call target, a register index outside the
// declared register count, a function without a terminating ret, or an
// attempt to emit outside a Begin/End pair.
type AssemblerError struct {
	Message string
}

func (e *AssemblerError) Error() string {
	return "assembler error: " + e.Message
}

// AssemblerErrorf builds an AssemblerError; the asm package reports its
// build failures through it.
func AssemblerErrorf(format string, args ...any) *AssemblerError {
	return &AssemblerError{Message: fmt.Sprintf(format, args...)}
}

// RangeError reports an array access outside [0, count).
type RangeError struct {
	Message string
}

func (e *RangeError) Error() string {
	return "range error: " + e.Message
}

func rangeErrorf(format string, args ...any) *RangeError {
	return &RangeError{Message: fmt.Sprintf(format, args...)}
}

// VMError reports a failure of the machine itself: a missing or invalid
// entry point, a program counter outside the code segment, or a symbol
// lookup that found nothing.
type VMError struct {
	Message string
}

func (e *VMError) Error() string {
	return "vm error: " + e.Message
}

func vmErrorf(format string, args ...any) *VMError {
	return &VMError{Message: fmt.Sprintf(format, args...)}
}

// ParseError reports a syntax error in YASN source. It is produced by the
// front end, before assembly begins.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error: line %d: %s", e.Line, e.Message)
	}
	return "parse error: " + e.Message
}
