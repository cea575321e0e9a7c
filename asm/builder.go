// Package asm assembles directive streams into executable units. A
// FunctionBuilder accumulates one function at a time — resolving labels,
// recording call sites, validating register indices — and the Assembler
// lays the finished functions out into a single ExecutionUnit, patching
// inter-function calls.
package asm

import (
	"github.com/yunvm/yun/vm"
)

// FunctionUnit is one finalized function: its symbol (byte extent still
// unassigned), its emitted instructions with local jumps already patched,
// and the call sites the assembler still has to resolve.
type FunctionUnit struct {
	symbol  vm.Symbol
	emitter vm.Emitter
	calls   map[int]string // instruction index -> callee name
}

// Symbol returns the function's symbol for layout and table insertion.
func (f *FunctionUnit) Symbol() *vm.Symbol {
	return &f.symbol
}

// Size returns the function's serialized size in bytes.
func (f *FunctionUnit) Size() int {
	return f.emitter.Size()
}

// At returns the instruction at index for call patching.
func (f *FunctionUnit) At(index int) *vm.Instruction {
	return f.emitter.At(index)
}

// Count returns the number of emitted instructions.
func (f *FunctionUnit) Count() int {
	return f.emitter.Count()
}

// CallMap returns the unresolved call sites.
func (f *FunctionUnit) CallMap() map[int]string {
	return f.calls
}

// SerializeInto packs the function's instructions into buf.
func (f *FunctionUnit) SerializeInto(buf []uint32) int {
	return f.emitter.SerializeInto(buf)
}

// ---------------------------------------------------------------------------
// FunctionBuilder
// ---------------------------------------------------------------------------

// FunctionBuilder accumulates one function between Begin and Finalize.
// Jumps are emitted with placeholder offsets and patched in Finalize once
// every label index is known; call sites stay unresolved until the
// assembler has laid the whole unit out.
type FunctionBuilder struct {
	name          string
	registerCount uint16
	argumentCount uint16
	doesReturn    bool

	emitter vm.Emitter
	jumps   map[int]string // instruction index -> label
	labels  map[string]int // label -> instruction index
	calls   map[int]string // instruction index -> callee name
	active  bool
}

// Begin starts a new function. Arguments may not exceed registers, and a
// function with no registers has nowhere to put a return value.
func (b *FunctionBuilder) Begin(name string, registers, arguments uint16, doesReturn bool) error {
	if b.active {
		return vm.AssemblerErrorf("function %q begun while %q is still open", name, b.name)
	}
	if arguments > registers {
		return vm.AssemblerErrorf("function %q declares %d arguments but only %d registers", name, arguments, registers)
	}
	if registers == 0 && doesReturn {
		return vm.AssemblerErrorf("function %q has no registers but declares a return value", name)
	}

	b.name = name
	b.registerCount = registers
	b.argumentCount = arguments
	b.doesReturn = doesReturn
	b.emitter.Clear()
	b.jumps = make(map[int]string)
	b.labels = make(map[string]int)
	b.calls = make(map[int]string)
	b.active = true
	return nil
}

// AddLabel binds a label to the current instruction index.
func (b *FunctionBuilder) AddLabel(label string) error {
	if !b.active {
		return vm.AssemblerErrorf("label %q outside a function", label)
	}
	if _, exists := b.labels[label]; exists {
		return vm.AssemblerErrorf("label %q redefined", label)
	}
	b.labels[label] = b.emitter.Count()
	return nil
}

// AddJump emits a jump with a placeholder offset and records the label to
// patch it with.
func (b *FunctionBuilder) AddJump(op vm.Opcode, label string) error {
	if !b.active {
		return vm.AssemblerErrorf("%s outside a function", op)
	}
	if !op.IsJump() {
		return vm.AssemblerErrorf("%s isn't a jump", op)
	}
	in, err := vm.NewUnary(op, 0)
	if err != nil {
		return err
	}
	b.jumps[b.emitter.Count()] = label
	b.emitter.Emit(in)
	return nil
}

// AddCall emits a call with a placeholder target and records the callee
// name for assembler-level patching.
func (b *FunctionBuilder) AddCall(target string) error {
	if !b.active {
		return vm.AssemblerErrorf("call outside a function")
	}
	in, err := vm.NewUnary(vm.OpCall, 0)
	if err != nil {
		return err
	}
	b.calls[b.emitter.Count()] = target
	b.emitter.Emit(in)
	return nil
}

// AddBinary emits a two-operand instruction, bounds-checking both register
// indices against the declared register count. ldconst is the exception:
// its source indexes the constant pool, not the register file.
func (b *FunctionBuilder) AddBinary(op vm.Opcode, dest, src uint32) error {
	if !b.active {
		return vm.AssemblerErrorf("%s outside a function", op)
	}
	if dest >= uint32(b.registerCount) {
		return vm.AssemblerErrorf("register R%d outside the %d registers of %q", dest, b.registerCount, b.name)
	}
	if op != vm.OpLdconst && src >= uint32(b.registerCount) {
		return vm.AssemblerErrorf("register R%d outside the %d registers of %q", src, b.registerCount, b.name)
	}
	in, err := vm.NewBinary(op, int32(dest), int32(src))
	if err != nil {
		return err
	}
	b.emitter.Emit(in)
	return nil
}

// AddUnary emits a one-operand register instruction (conversions, neg,
// bnot, printreg), bounds-checking the index.
func (b *FunctionBuilder) AddUnary(op vm.Opcode, dest uint32) error {
	if !b.active {
		return vm.AssemblerErrorf("%s outside a function", op)
	}
	if op.IsJump() || op == vm.OpCall {
		return vm.AssemblerErrorf("%s needs a label or a target, not a register", op)
	}
	if dest >= uint32(b.registerCount) {
		return vm.AssemblerErrorf("register R%d outside the %d registers of %q", dest, b.registerCount, b.name)
	}
	in, err := vm.NewUnary(op, int32(dest))
	if err != nil {
		return err
	}
	b.emitter.Emit(in)
	return nil
}

// AddVoid emits a zero-operand instruction.
func (b *FunctionBuilder) AddVoid(op vm.Opcode) error {
	if !b.active {
		return vm.AssemblerErrorf("%s outside a function", op)
	}
	in, err := vm.NewVoid(op)
	if err != nil {
		return err
	}
	b.emitter.Emit(in)
	return nil
}

// Finalize closes the function: it must end in ret, every jump's label must
// exist, and every resolved offset must fit the signed 24-bit field. The
// returned unit carries the unresolved call map for the assembler.
func (b *FunctionBuilder) Finalize() (*FunctionUnit, error) {
	if !b.active {
		return nil, vm.AssemblerErrorf("finalize outside a function")
	}
	if n := b.emitter.Count(); n == 0 || b.emitter.At(n-1).Op() != vm.OpRet {
		return nil, vm.AssemblerErrorf("function %q doesn't end in ret", b.name)
	}

	for index, label := range b.jumps {
		target, ok := b.labels[label]
		if !ok {
			return nil, vm.AssemblerErrorf("no label %q in function %q", label, b.name)
		}
		offset := (target - index) * vm.InstructionSize
		if offset > vm.MaxJumpOffset || offset < vm.MinJumpOffset {
			return nil, vm.AssemblerErrorf("jump to %q overflows the 24-bit offset field", label)
		}
		if err := b.emitter.At(index).PatchOffset(int32(offset)); err != nil {
			return nil, err
		}
	}

	unit := &FunctionUnit{
		symbol: vm.Symbol{
			Name:       b.name,
			Registers:  b.registerCount,
			Arguments:  b.argumentCount,
			DoesReturn: b.doesReturn,
		},
		calls: b.calls,
	}
	// Hand the emitted instructions over; the builder starts fresh on the
	// next Begin.
	unit.emitter = b.emitter
	b.emitter = vm.Emitter{}
	b.active = false
	return unit, nil
}

// Name returns the function currently being built.
func (b *FunctionBuilder) Name() string {
	return b.name
}
