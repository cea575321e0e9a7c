package vm

import (
	"fmt"
	"strings"
)

// Disassemble renders the whole unit: each symbol's signature followed by
// its instructions, one per line, with byte offsets. The output uses the
// same decoding table the interpreter dispatches on.
func (u *ExecutionUnit) Disassemble() string {
	var b strings.Builder

	fmt.Fprintf(&b, "; unit %s\n", u.name)
	if u.constants.Count() > 0 {
		b.WriteString("; constants:\n")
		b.WriteString(u.constants.Dump())
	}

	for i := 0; i != u.symbols.Count(); i++ {
		sym := u.symbols.At(i)
		fmt.Fprintf(&b, "\n%s\n", sym.Signature())
		for pc := sym.Start / InstructionSize; pc != sym.End/InstructionSize; pc++ {
			b.WriteString(disassembleWord(u.code[pc], pc))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// DisassembleInstruction renders a single packed word at the given word
// index.
func DisassembleInstruction(word uint32, pc uint32) string {
	return disassembleWord(word, pc)
}

func disassembleWord(word uint32, pc uint32) string {
	offset := pc * InstructionSize
	op := Opcode(word >> 24)
	if !op.IsValid() {
		return fmt.Sprintf("0x%04x |  <err>", offset)
	}

	in := DecodeWord(word)
	switch op.Arity() {
	case 0:
		return fmt.Sprintf("0x%04x |  %s", offset, op)
	case 1:
		if op.IsJump() {
			return fmt.Sprintf("0x%04x |  %s  %+d", offset, op, in.Dest())
		}
		if op == OpCall {
			return fmt.Sprintf("0x%04x |  %s  @0x%x", offset, op, in.Dest())
		}
		return fmt.Sprintf("0x%04x |  %s  R%d", offset, op, in.Dest())
	default:
		if op == OpLdconst {
			return fmt.Sprintf("0x%04x |  %s  R%d, $0x%x", offset, op, in.Dest(), in.Src())
		}
		return fmt.Sprintf("0x%04x |  %s  R%d, R%d", offset, op, in.Dest(), in.Src())
	}
}
