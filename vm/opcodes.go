package vm

// Opcode identifies one packed instruction. The numbering is dense: the
// interpreter rejects any byte above OpHlt as unknown.
type Opcode uint8

const (
	// ========================================================================
	// Arithmetic and logic, grouped by operand width
	// ========================================================================

	OpI32Neg Opcode = iota
	OpI32Add
	OpI32Sub
	OpI32Mul
	OpI32Div
	OpI32Rem
	OpI32And
	OpI32Or
	OpI32Xor
	OpI32Shl
	OpI32Shr

	OpI64Neg
	OpI64Add
	OpI64Sub
	OpI64Mul
	OpI64Div
	OpI64Rem
	OpI64And
	OpI64Or
	OpI64Xor
	OpI64Shl
	OpI64Shr

	OpU32Add
	OpU32Sub
	OpU32Mul
	OpU32Div
	OpU32Rem
	OpU32And
	OpU32Or
	OpU32Xor
	OpU32Shl
	OpU32Shr

	OpU64Add
	OpU64Sub
	OpU64Mul
	OpU64Div
	OpU64Rem
	OpU64And
	OpU64Or
	OpU64Xor
	OpU64Shl
	OpU64Shr

	OpF32Neg
	OpF32Add
	OpF32Sub
	OpF32Mul
	OpF32Div
	OpF32Rem

	OpF64Neg
	OpF64Add
	OpF64Sub
	OpF64Mul
	OpF64Div
	OpF64Rem

	OpBnot

	// ========================================================================
	// Conversions, enumerated explicitly
	// ========================================================================

	OpConvI32ToI8
	OpConvI32ToI16
	OpConvU32ToU8
	OpConvU32ToU16
	OpConvI32ToI64
	OpConvI32ToU64
	OpConvI32ToU32
	OpConvI32ToF32
	OpConvI32ToF64
	OpConvI64ToI32
	OpConvI64ToU32
	OpConvI64ToU64
	OpConvI64ToF32
	OpConvI64ToF64
	OpConvU32ToI64
	OpConvU32ToU64
	OpConvU32ToI32
	OpConvU32ToF32
	OpConvU32ToF64
	OpConvU64ToI64
	OpConvU64ToU32
	OpConvU64ToI32
	OpConvU64ToF32
	OpConvU64ToF64
	OpConvF32ToI32
	OpConvF32ToI64
	OpConvF32ToU32
	OpConvF32ToF64
	OpConvF32ToU64
	OpConvF64ToI32
	OpConvF64ToI64
	OpConvF64ToU32
	OpConvF64ToU64
	OpConvF64ToF32

	// ========================================================================
	// Comparison flavors
	// ========================================================================

	OpCmp  // unsigned 32/64
	OpIcmp // signed 32/64
	OpFcmp // float 32/64

	// ========================================================================
	// Jumps
	// ========================================================================

	OpJmp
	OpJe
	OpJne
	OpJgt
	OpJge
	OpJlt
	OpJle

	// ========================================================================
	// Routine calls
	// ========================================================================

	OpCall
	OpRet

	// ========================================================================
	// Data movement
	// ========================================================================

	OpLdconst
	OpMov

	// ========================================================================
	// Arrays
	// ========================================================================

	OpNewarray
	OpArraycount
	OpLoad
	OpStore
	OpAdvance

	// ========================================================================
	// Misc
	// ========================================================================

	OpPrintreg
	OpNop
	OpHlt
)

// opcodeCount is the number of defined opcodes; anything at or above it in
// an instruction's high byte is rejected by the decoder.
const opcodeCount = int(OpHlt) + 1

// opcodeNames is indexed by opcode.
var opcodeNames = [opcodeCount]string{
	OpI32Neg: "i32neg", OpI32Add: "i32add", OpI32Sub: "i32sub", OpI32Mul: "i32mul",
	OpI32Div: "i32div", OpI32Rem: "i32rem", OpI32And: "i32and", OpI32Or: "i32or",
	OpI32Xor: "i32xor", OpI32Shl: "i32shl", OpI32Shr: "i32shr",

	OpI64Neg: "i64neg", OpI64Add: "i64add", OpI64Sub: "i64sub", OpI64Mul: "i64mul",
	OpI64Div: "i64div", OpI64Rem: "i64rem", OpI64And: "i64and", OpI64Or: "i64or",
	OpI64Xor: "i64xor", OpI64Shl: "i64shl", OpI64Shr: "i64shr",

	OpU32Add: "u32add", OpU32Sub: "u32sub", OpU32Mul: "u32mul", OpU32Div: "u32div",
	OpU32Rem: "u32rem", OpU32And: "u32and", OpU32Or: "u32or", OpU32Xor: "u32xor",
	OpU32Shl: "u32shl", OpU32Shr: "u32shr",

	OpU64Add: "u64add", OpU64Sub: "u64sub", OpU64Mul: "u64mul", OpU64Div: "u64div",
	OpU64Rem: "u64rem", OpU64And: "u64and", OpU64Or: "u64or", OpU64Xor: "u64xor",
	OpU64Shl: "u64shl", OpU64Shr: "u64shr",

	OpF32Neg: "f32neg", OpF32Add: "f32add", OpF32Sub: "f32sub", OpF32Mul: "f32mul",
	OpF32Div: "f32div", OpF32Rem: "f32rem",

	OpF64Neg: "f64neg", OpF64Add: "f64add", OpF64Sub: "f64sub", OpF64Mul: "f64mul",
	OpF64Div: "f64div", OpF64Rem: "f64rem",

	OpBnot: "bnot",

	OpConvI32ToI8: "convi32toi8", OpConvI32ToI16: "convi32toi16",
	OpConvU32ToU8: "convu32tou8", OpConvU32ToU16: "convu32tou16",
	OpConvI32ToI64: "convi32toi64", OpConvI32ToU64: "convi32tou64",
	OpConvI32ToU32: "convi32tou32", OpConvI32ToF32: "convi32tof32",
	OpConvI32ToF64: "convi32tof64", OpConvI64ToI32: "convi64toi32",
	OpConvI64ToU32: "convi64tou32", OpConvI64ToU64: "convi64tou64",
	OpConvI64ToF32: "convi64tof32", OpConvI64ToF64: "convi64tof64",
	OpConvU32ToI64: "convu32toi64", OpConvU32ToU64: "convu32tou64",
	OpConvU32ToI32: "convu32toi32", OpConvU32ToF32: "convu32tof32",
	OpConvU32ToF64: "convu32tof64", OpConvU64ToI64: "convu64toi64",
	OpConvU64ToU32: "convu64tou32", OpConvU64ToI32: "convu64toi32",
	OpConvU64ToF32: "convu64tof32", OpConvU64ToF64: "convu64tof64",
	OpConvF32ToI32: "convf32toi32", OpConvF32ToI64: "convf32toi64",
	OpConvF32ToU32: "convf32tou32", OpConvF32ToF64: "convf32tof64",
	OpConvF32ToU64: "convf32tou64", OpConvF64ToI32: "convf64toi32",
	OpConvF64ToI64: "convf64toi64", OpConvF64ToU32: "convf64tou32",
	OpConvF64ToU64: "convf64tou64", OpConvF64ToF32: "convf64tof32",

	OpCmp: "cmp", OpIcmp: "icmp", OpFcmp: "fcmp",

	OpJmp: "jmp", OpJe: "je", OpJne: "jne", OpJgt: "jgt", OpJge: "jge",
	OpJlt: "jlt", OpJle: "jle",

	OpCall: "call", OpRet: "ret",

	OpLdconst: "ldconst", OpMov: "mov",

	OpNewarray: "newarray", OpArraycount: "arraycount", OpLoad: "load",
	OpStore: "store", OpAdvance: "advance",

	OpPrintreg: "printreg", OpNop: "nop", OpHlt: "hlt",
}

// mnemonics maps assembly names back to opcodes; built once from
// opcodeNames so the two can't drift.
var mnemonics = func() map[string]Opcode {
	m := make(map[string]Opcode, opcodeCount)
	for op, name := range opcodeNames {
		m[name] = Opcode(op)
	}
	return m
}()

// String returns the opcode's mnemonic.
func (op Opcode) String() string {
	if int(op) >= opcodeCount {
		return "<err>"
	}
	return opcodeNames[op]
}

// FromMnemonic resolves an assembly mnemonic to its opcode.
func FromMnemonic(name string) (Opcode, bool) {
	op, ok := mnemonics[name]
	return op, ok
}

// IsValid reports whether op is a defined opcode.
func (op Opcode) IsValid() bool {
	return int(op) < opcodeCount
}

// Arity returns the operand count an instruction with this opcode carries:
// 0, 1 or 2. Unknown opcodes return -1.
func (op Opcode) Arity() int {
	switch {
	case op == OpNop || op == OpHlt || op == OpRet:
		return 0
	case op == OpI32Neg || op == OpI64Neg || op == OpF32Neg || op == OpF64Neg,
		op == OpBnot,
		op >= OpConvI32ToI8 && op <= OpConvF64ToF32,
		op >= OpJmp && op <= OpJle,
		op == OpCall,
		op == OpPrintreg:
		return 1
	case op.IsValid():
		return 2
	default:
		return -1
	}
}

// IsJump reports whether op belongs to the jump family. call is not a jump:
// it patches differently and pushes a frame.
func (op Opcode) IsJump() bool {
	return op >= OpJmp && op <= OpJle
}

// IsConversion reports whether op is one of the enumerated conversions.
func (op Opcode) IsConversion() bool {
	return op >= OpConvI32ToI8 && op <= OpConvF64ToF32
}
