package vm

import (
	"encoding/binary"
)

// ---------------------------------------------------------------------------
// Packed instruction format
// ---------------------------------------------------------------------------
//
// Every instruction packs into exactly one 32-bit word:
//
//	 31       24 23                                           0
//	+-----------+----------------------------------------------+
//	|  opcode   |                   operands                   |
//	+-----------+----------------------------------------------+
//
// Operand layout by arity:
//   - 0 operands: low 24 bits are zero.
//   - 1 operand, jump/call: low 24 bits are a signed byte offset (jump) or,
//     after assembler patching, the callee's absolute byte start (call).
//   - 1 operand, other: bits [23:12] hold an unsigned 12-bit register index.
//   - 2 operands: bits [23:12] hold Dest, bits [11:0] hold Src. Both are
//     register indices except for ldconst, whose Src indexes the constant
//     pool.

const (
	// InstructionSize is the byte width of one packed instruction.
	InstructionSize = 4

	// operandMask selects the 12-bit register field.
	operandMask = 0xFFF

	// offsetMask selects the 24-bit jump/call field.
	offsetMask = 0xFFFFFF

	// MaxJumpOffset and MinJumpOffset bound the signed 24-bit byte offset a
	// jump or patched call can carry.
	MaxJumpOffset = 1<<23 - 1
	MinJumpOffset = -(1 << 23)
)

// Instruction is one decoded instruction. Dest and Src are kept as wide
// signed integers so jump offsets and patched call targets fit before
// packing narrows them.
type Instruction struct {
	op   Opcode
	dest int32
	src  int32
}

// NewBinary builds a two-operand instruction, validating the arity.
func NewBinary(op Opcode, dest, src int32) (Instruction, error) {
	if op.Arity() != 2 {
		return Instruction{}, instructionErrorf("%s takes %d operands, not 2", op, op.Arity())
	}
	return Instruction{op: op, dest: dest, src: src}, nil
}

// NewUnary builds a one-operand instruction: a register index for the
// conversion/neg/bnot/printreg group, or an offset placeholder for the
// jump/call group.
func NewUnary(op Opcode, operand int32) (Instruction, error) {
	if op.Arity() != 1 {
		return Instruction{}, instructionErrorf("%s takes %d operands, not 1", op, op.Arity())
	}
	return Instruction{op: op, dest: operand}, nil
}

// NewVoid builds a zero-operand instruction.
func NewVoid(op Opcode) (Instruction, error) {
	if op.Arity() != 0 {
		return Instruction{}, instructionErrorf("%s takes %d operands, not 0", op, op.Arity())
	}
	return Instruction{op: op}, nil
}

// Op returns the instruction's opcode.
func (in Instruction) Op() Opcode {
	return in.op
}

// Dest returns the first operand: a register index, or a byte offset for
// the jump/call family.
func (in Instruction) Dest() int32 {
	return in.dest
}

// Src returns the second operand.
func (in Instruction) Src() int32 {
	return in.src
}

// PatchOffset rewrites the Dest field of a jump or call once the target is
// known. Any other opcode family is an error.
func (in *Instruction) PatchOffset(offset int32) error {
	if !in.op.IsJump() && in.op != OpCall {
		return instructionErrorf("%s isn't a jump or a call", in.op)
	}
	in.dest = offset
	return nil
}

// Word packs the instruction into its 32-bit wire form.
func (in Instruction) Word() uint32 {
	w := uint32(in.op) << 24
	switch in.op.Arity() {
	case 1:
		if in.op.IsJump() || in.op == OpCall {
			w |= uint32(in.dest) & offsetMask
		} else {
			w |= (uint32(in.dest) & operandMask) << 12
		}
	case 2:
		w |= (uint32(in.dest)&operandMask)<<12 | uint32(in.src)&operandMask
	}
	return w
}

// DecodeWord is the inverse of Word, up to field widths.
func DecodeWord(w uint32) Instruction {
	op := Opcode(w >> 24)
	switch op.Arity() {
	case 1:
		if op.IsJump() || op == OpCall {
			return Instruction{op: op, dest: SignExtend24(w & offsetMask)}
		}
		return Instruction{op: op, dest: int32(w >> 12 & operandMask)}
	case 2:
		return Instruction{op: op, dest: int32(w >> 12 & operandMask), src: int32(w & operandMask)}
	default:
		return Instruction{op: op}
	}
}

// SignExtend24 widens the low 24 bits of w to a signed 32-bit integer.
func SignExtend24(w uint32) int32 {
	return int32(w<<8) >> 8
}

// ---------------------------------------------------------------------------
// Emitter
// ---------------------------------------------------------------------------

// Emitter buffers decoded instructions during assembly. Instructions stay
// decoded until Serialize so that label and call patching can rewrite them
// in place.
type Emitter struct {
	instructions []Instruction
}

// Emit appends an instruction.
func (e *Emitter) Emit(in Instruction) {
	e.instructions = append(e.instructions, in)
}

// At returns the instruction at index for in-place patching.
func (e *Emitter) At(index int) *Instruction {
	return &e.instructions[index]
}

// Count returns the number of buffered instructions.
func (e *Emitter) Count() int {
	return len(e.instructions)
}

// Size returns the serialized size in bytes.
func (e *Emitter) Size() int {
	return len(e.instructions) * InstructionSize
}

// Serialize packs the buffer into 32-bit words.
func (e *Emitter) Serialize() []uint32 {
	buf := make([]uint32, len(e.instructions))
	e.SerializeInto(buf)
	return buf
}

// SerializeInto packs the buffer into buf, returning the number of words
// written. buf must have room for Count() words.
func (e *Emitter) SerializeInto(buf []uint32) int {
	for i, in := range e.instructions {
		buf[i] = in.Word()
	}
	return len(e.instructions)
}

// Clear empties the buffer for reuse.
func (e *Emitter) Clear() {
	e.instructions = e.instructions[:0]
}

// EncodeWords flattens packed words to little-endian bytes; the image
// serializer stores code this way.
func EncodeWords(words []uint32) []byte {
	out := make([]byte, len(words)*InstructionSize)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*InstructionSize:], w)
	}
	return out
}

// DecodeWords is the inverse of EncodeWords. The byte length must be a
// multiple of the instruction size.
func DecodeWords(data []byte) ([]uint32, error) {
	if len(data)%InstructionSize != 0 {
		return nil, instructionErrorf("code segment length %d is not word-aligned", len(data))
	}
	words := make([]uint32, len(data)/InstructionSize)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*InstructionSize:])
	}
	return words, nil
}
