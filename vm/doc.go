// Package vm is the core of the Yun virtual machine: a register-based
// bytecode interpreter for a statically-typed, numerically-oriented
// low-level language.
//
// The execution pipeline runs in three stages. The asm package turns a
// directive stream into an ExecutionUnit: a symbol table of functions, a
// deduplicated constant pool, and one contiguous buffer of packed 32-bit
// instructions. A VM then drives a fetch-decode-execute loop over that
// buffer.
//
// # Instruction format
//
// Every instruction is exactly one 32-bit word: the opcode in the high
// byte, operands in the low 24 bits. Two-operand instructions carry a pair
// of 12-bit local register indices; jumps carry a signed 24-bit byte offset
// relative to the jump site; calls carry, after assembler patching, the
// callee's absolute byte start.
//
// # Value model
//
// Registers hold tagged 64-bit Values. Every operation validates its
// operand tags and fails with a TypeError on mismatch; there are no
// implicit conversions, only the enumerated conv* opcodes. References into
// the array heap are themselves Values, and the register file is the
// heap's sole owner set: every register write is mediated by the reference
// counting discipline, and a heap slot whose count reaches zero is
// reclaimed and its id queued for reuse.
//
// # Call discipline
//
// Functions own fixed register windows into one flat register file. A call
// suspends the active frame, allocates the callee's window, and copies the
// caller's trailing argument cells into the callee's head. A returning
// callee whose symbol declares a return value propagates its first
// register into the caller's last one.
//
// Assembled units can be serialized to "YUNI" images (a fixed header plus
// canonical CBOR) and cached in a SQLite-backed UnitStore keyed by source
// hash.
package vm
