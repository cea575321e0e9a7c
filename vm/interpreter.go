package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("yun.vm")

// EntryPoint is the function a unit starts executing at. It must take no
// arguments and return nothing.
const EntryPoint = "main"

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM executes one ExecutionUnit. All mutable state — registers, call stack,
// heap, flags — lives on the instance; two machines can run disjoint units
// in parallel without coordination, and a unit may be shared read-only.
type VM struct {
	id   uuid.UUID
	unit *ExecutionUnit

	registers *RegisterArray
	callStack CallStack
	heap      *ArrayHeap

	// flags holds the most recent comparison result: -1, 0 or +1.
	flags int32

	current Frame
	pc      int

	out   io.Writer
	trace bool
}

// Option configures a VM at construction.
type Option func(*VM)

// WithOutput redirects printreg output; the default is stdout.
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithRegisterFileSize sets the initial register file capacity.
func WithRegisterFileSize(n int) Option {
	return func(vm *VM) { vm.registers = NewRegisterArray(n) }
}

// WithHeapSize sets the initial heap slot capacity.
func WithHeapSize(n int) Option {
	return func(vm *VM) { vm.heap = NewArrayHeap(n) }
}

// WithTrace enables per-instruction debug logging.
func WithTrace(trace bool) Option {
	return func(vm *VM) { vm.trace = trace }
}

// NewVM creates a machine for the given unit.
func NewVM(unit *ExecutionUnit, opts ...Option) *VM {
	vm := &VM{
		id:        uuid.New(),
		unit:      unit,
		registers: NewRegisterArray(DefaultRegisterCount),
		heap:      NewArrayHeap(DefaultHeapSize),
		out:       os.Stdout,
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// ID returns the machine's instance id.
func (vm *VM) ID() uuid.UUID {
	return vm.id
}

// Heap exposes the array heap for inspection.
func (vm *VM) Heap() *ArrayHeap {
	return vm.heap
}

// RegisterValue reads a register by global index. Windows are only
// logically reclaimed, so the entry frame's registers remain inspectable
// after Run returns.
func (vm *VM) RegisterValue(index int) Value {
	return *vm.registers.At(index)
}

// Flags returns the comparison flag register.
func (vm *VM) Flags() int32 {
	return vm.flags
}

// DumpRegisters renders the live registers for debugging.
func (vm *VM) DumpRegisters() string {
	return vm.registers.Dump()
}

// ---------------------------------------------------------------------------
// Decode helpers
// ---------------------------------------------------------------------------

func unpack2(word uint32) (int32, int32) {
	return int32(word >> 12 & operandMask), int32(word & operandMask)
}

func unpack1(word uint32) int32 {
	return int32(word >> 12 & operandMask)
}

// jumpDelta decodes the low 24 bits as a signed byte offset and converts it
// to a signed word delta.
func jumpDelta(word uint32) int {
	return int(SignExtend24(word&offsetMask) >> 2)
}

// reg resolves a local register index against the active window.
func (vm *VM) reg(local int32) *Value {
	return vm.registers.At(vm.callStack.RelativeOffset() + int(local))
}

// setReg writes a register through the reference-counting discipline:
// release whatever the cell held, then retain the incoming value if it is a
// Reference. Every generic register write routes through here.
func (vm *VM) setReg(dst *Value, v Value) {
	if dst.IsReference() {
		vm.heap.Notify(dst.Ref().HeapID, false)
	}
	*dst = v
	if v.IsReference() {
		vm.heap.Notify(v.Ref().HeapID, true)
	}
}

// ---------------------------------------------------------------------------
// Run loop
// ---------------------------------------------------------------------------

// Run locates the entry point and executes until the call stack drains, a
// hlt is reached, or an instruction fails. Errors carry the failing pc.
func (vm *VM) Run() error {
	entry, err := vm.unit.SymbolByName(EntryPoint)
	if err != nil {
		return vmErrorf("unit %s has no %s function", vm.unit.Name(), EntryPoint)
	}
	if entry.Arguments != 0 || entry.DoesReturn {
		return vmErrorf("%s must take no arguments and return nothing", EntryPoint)
	}
	if int(entry.Start/InstructionSize) >= len(vm.unit.Code()) && entry.Start != entry.End {
		return vmErrorf("entry point outside code segment")
	}

	log.Debugf("vm %s: running unit %s", vm.id, vm.unit.Name())

	vm.current = Frame{
		RegisterCount:   entry.Registers,
		KeepReturnValue: false,
		End:             entry.End,
	}
	vm.callStack.Push(vm.current)
	vm.registers.Allocate(int(entry.Registers))
	vm.pc = int(entry.Start / InstructionSize)

	for !vm.callStack.IsEmpty() {
		if vm.pc < 0 || vm.pc >= len(vm.unit.Code()) {
			return vmErrorf("program counter 0x%x outside code segment", vm.pc*InstructionSize)
		}
		word := vm.unit.Code()[vm.pc]
		op := Opcode(word >> 24)
		if !op.IsValid() {
			return instructionErrorf("unknown opcode 0x%02x at pc 0x%x", byte(word>>24), vm.pc*InstructionSize)
		}
		if vm.trace {
			log.Debugf("vm %s: %s", vm.id, disassembleWord(word, uint32(vm.pc)))
		}

		halt, err := vm.execute(op, word)
		if err != nil {
			return fmt.Errorf("%s: pc 0x%04x: %w", vm.unit.Name(), vm.pc*InstructionSize, err)
		}
		if halt {
			return nil
		}
	}
	return nil
}

// execute runs one instruction and advances the program counter. It
// returns true when a hlt was executed.
func (vm *VM) execute(op Opcode, word uint32) (bool, error) {
	step := 1
	var err error

	switch op {
	// --- i32 ---
	case OpI32Neg:
		err = vm.unary(word, Negate[int32])
	case OpI32Add:
		err = vm.binary(word, Add[int32])
	case OpI32Sub:
		err = vm.binary(word, Subtract[int32])
	case OpI32Mul:
		err = vm.binary(word, Multiply[int32])
	case OpI32Div:
		err = vm.binary(word, Divide[int32])
	case OpI32Rem:
		err = vm.binary(word, Remainder[int32])
	case OpI32And:
		err = vm.binary(word, And[int32])
	case OpI32Or:
		err = vm.binary(word, Or[int32])
	case OpI32Xor:
		err = vm.binary(word, Xor[int32])
	case OpI32Shl:
		err = vm.binary(word, ShiftLeft[int32])
	case OpI32Shr:
		err = vm.binary(word, ShiftRight[int32])

	// --- i64 ---
	case OpI64Neg:
		err = vm.unary(word, Negate[int64])
	case OpI64Add:
		err = vm.binary(word, Add[int64])
	case OpI64Sub:
		err = vm.binary(word, Subtract[int64])
	case OpI64Mul:
		err = vm.binary(word, Multiply[int64])
	case OpI64Div:
		err = vm.binary(word, Divide[int64])
	case OpI64Rem:
		err = vm.binary(word, Remainder[int64])
	case OpI64And:
		err = vm.binary(word, And[int64])
	case OpI64Or:
		err = vm.binary(word, Or[int64])
	case OpI64Xor:
		err = vm.binary(word, Xor[int64])
	case OpI64Shl:
		err = vm.binary(word, ShiftLeft[int64])
	case OpI64Shr:
		err = vm.binary(word, ShiftRight[int64])

	// --- u32 ---
	case OpU32Add:
		err = vm.binary(word, Add[uint32])
	case OpU32Sub:
		err = vm.binary(word, Subtract[uint32])
	case OpU32Mul:
		err = vm.binary(word, Multiply[uint32])
	case OpU32Div:
		err = vm.binary(word, Divide[uint32])
	case OpU32Rem:
		err = vm.binary(word, Remainder[uint32])
	case OpU32And:
		err = vm.binary(word, And[uint32])
	case OpU32Or:
		err = vm.binary(word, Or[uint32])
	case OpU32Xor:
		err = vm.binary(word, Xor[uint32])
	case OpU32Shl:
		err = vm.binary(word, ShiftLeft[uint32])
	case OpU32Shr:
		err = vm.binary(word, ShiftRight[uint32])

	// --- u64 ---
	case OpU64Add:
		err = vm.binary(word, Add[uint64])
	case OpU64Sub:
		err = vm.binary(word, Subtract[uint64])
	case OpU64Mul:
		err = vm.binary(word, Multiply[uint64])
	case OpU64Div:
		err = vm.binary(word, Divide[uint64])
	case OpU64Rem:
		err = vm.binary(word, Remainder[uint64])
	case OpU64And:
		err = vm.binary(word, And[uint64])
	case OpU64Or:
		err = vm.binary(word, Or[uint64])
	case OpU64Xor:
		err = vm.binary(word, Xor[uint64])
	case OpU64Shl:
		err = vm.binary(word, ShiftLeft[uint64])
	case OpU64Shr:
		err = vm.binary(word, ShiftRight[uint64])

	// --- floats ---
	case OpF32Neg:
		err = vm.unary(word, Negate[float32])
	case OpF32Add:
		err = vm.binary(word, Add[float32])
	case OpF32Sub:
		err = vm.binary(word, Subtract[float32])
	case OpF32Mul:
		err = vm.binary(word, Multiply[float32])
	case OpF32Div:
		err = vm.binary(word, Divide[float32])
	case OpF32Rem:
		err = vm.binary(word, FRemainder[float32])
	case OpF64Neg:
		err = vm.unary(word, Negate[float64])
	case OpF64Add:
		err = vm.binary(word, Add[float64])
	case OpF64Sub:
		err = vm.binary(word, Subtract[float64])
	case OpF64Mul:
		err = vm.binary(word, Multiply[float64])
	case OpF64Div:
		err = vm.binary(word, Divide[float64])
	case OpF64Rem:
		err = vm.binary(word, FRemainder[float64])

	case OpBnot:
		err = vm.reg(unpack1(word)).Not()

	// --- conversions ---
	case OpConvI32ToI8:
		err = vm.unary(word, Convert[int32, int8])
	case OpConvI32ToI16:
		err = vm.unary(word, Convert[int32, int16])
	case OpConvU32ToU8:
		err = vm.unary(word, Convert[uint32, uint8])
	case OpConvU32ToU16:
		err = vm.unary(word, Convert[uint32, uint16])
	case OpConvI32ToI64:
		err = vm.unary(word, Convert[int32, int64])
	case OpConvI32ToU64:
		err = vm.unary(word, Convert[int32, uint64])
	case OpConvI32ToU32:
		err = vm.unary(word, Convert[int32, uint32])
	case OpConvI32ToF32:
		err = vm.unary(word, Convert[int32, float32])
	case OpConvI32ToF64:
		err = vm.unary(word, Convert[int32, float64])
	case OpConvI64ToI32:
		err = vm.unary(word, Convert[int64, int32])
	case OpConvI64ToU32:
		err = vm.unary(word, Convert[int64, uint32])
	case OpConvI64ToU64:
		err = vm.unary(word, Convert[int64, uint64])
	case OpConvI64ToF32:
		err = vm.unary(word, Convert[int64, float32])
	case OpConvI64ToF64:
		err = vm.unary(word, Convert[int64, float64])
	case OpConvU32ToI64:
		err = vm.unary(word, Convert[uint32, int64])
	case OpConvU32ToU64:
		err = vm.unary(word, Convert[uint32, uint64])
	case OpConvU32ToI32:
		err = vm.unary(word, Convert[uint32, int32])
	case OpConvU32ToF32:
		err = vm.unary(word, Convert[uint32, float32])
	case OpConvU32ToF64:
		err = vm.unary(word, Convert[uint32, float64])
	case OpConvU64ToI64:
		err = vm.unary(word, Convert[uint64, int64])
	case OpConvU64ToU32:
		err = vm.unary(word, Convert[uint64, uint32])
	case OpConvU64ToI32:
		err = vm.unary(word, Convert[uint64, int32])
	case OpConvU64ToF32:
		err = vm.unary(word, Convert[uint64, float32])
	case OpConvU64ToF64:
		err = vm.unary(word, Convert[uint64, float64])
	case OpConvF32ToI32:
		err = vm.unary(word, Convert[float32, int32])
	case OpConvF32ToI64:
		err = vm.unary(word, Convert[float32, int64])
	case OpConvF32ToU32:
		err = vm.unary(word, Convert[float32, uint32])
	case OpConvF32ToF64:
		err = vm.unary(word, Convert[float32, float64])
	case OpConvF32ToU64:
		err = vm.unary(word, Convert[float32, uint64])
	case OpConvF64ToI32:
		err = vm.unary(word, Convert[float64, int32])
	case OpConvF64ToI64:
		err = vm.unary(word, Convert[float64, int64])
	case OpConvF64ToU32:
		err = vm.unary(word, Convert[float64, uint32])
	case OpConvF64ToU64:
		err = vm.unary(word, Convert[float64, uint64])
	case OpConvF64ToF32:
		err = vm.unary(word, Convert[float64, float32])

	// --- comparisons ---
	case OpCmp:
		d, s := unpack2(word)
		vm.flags, err = CompareUnsigned(*vm.reg(d), *vm.reg(s))
	case OpIcmp:
		d, s := unpack2(word)
		vm.flags, err = CompareSigned(*vm.reg(d), *vm.reg(s))
	case OpFcmp:
		d, s := unpack2(word)
		vm.flags, err = CompareFloat(*vm.reg(d), *vm.reg(s))

	// --- jumps ---
	case OpJmp:
		step = jumpDelta(word)
	case OpJe:
		if vm.flags == 0 {
			step = jumpDelta(word)
		}
	case OpJne:
		if vm.flags != 0 {
			step = jumpDelta(word)
		}
	case OpJgt:
		if vm.flags > 0 {
			step = jumpDelta(word)
		}
	case OpJge:
		if vm.flags >= 0 {
			step = jumpDelta(word)
		}
	case OpJlt:
		if vm.flags < 0 {
			step = jumpDelta(word)
		}
	case OpJle:
		if vm.flags <= 0 {
			step = jumpDelta(word)
		}

	// --- calls ---
	case OpCall:
		return false, vm.call(word)
	case OpRet:
		vm.ret()
		return false, nil

	// --- data movement ---
	case OpLdconst:
		d, s := unpack2(word)
		var c Value
		if c, err = vm.unit.Constant(int(s)); err == nil {
			vm.setReg(vm.reg(d), c)
		}
	case OpMov:
		d, s := unpack2(word)
		vm.setReg(vm.reg(d), *vm.reg(s))

	// --- arrays ---
	case OpNewarray:
		err = vm.newarray(word)
	case OpArraycount:
		err = vm.arraycount(word)
	case OpLoad:
		err = vm.load(word)
	case OpStore:
		err = vm.store(word)
	case OpAdvance:
		err = vm.advance(word)

	// --- misc ---
	case OpPrintreg:
		fmt.Fprintf(vm.out, "%s\n", vm.reg(unpack1(word)))
	case OpNop:
	case OpHlt:
		return true, nil
	}

	if err != nil {
		return false, err
	}
	vm.pc += step
	return false, nil
}

func (vm *VM) binary(word uint32, f func(*Value, Value) error) error {
	d, s := unpack2(word)
	return f(vm.reg(d), *vm.reg(s))
}

func (vm *VM) unary(word uint32, f func(*Value) error) error {
	return f(vm.reg(unpack1(word)))
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// call resolves the patched absolute target, suspends the active frame, and
// enters the callee: a fresh window of callee.Registers cells with the last
// Arguments cells of the caller's window copied into its head.
func (vm *VM) call(word uint32) error {
	target := int(SignExtend24(word & offsetMask) >> 2)
	callee, err := vm.unit.SymbolByLocation(uint32(target) * InstructionSize)
	if err != nil {
		return err
	}

	vm.current.ReturnAddress = uint32(vm.pc + 1)
	vm.callStack.Push(vm.current)

	vm.registers.Allocate(int(callee.Registers))
	if callee.Arguments > 0 {
		vm.registers.Copy(int(callee.Registers), int(callee.Arguments), vm.heap)
	}

	vm.current = Frame{
		RegisterCount:   callee.Registers,
		KeepReturnValue: callee.DoesReturn,
		End:             callee.End,
	}
	vm.pc = target
	return nil
}

// ret leaves the active frame: propagate the return slot if the callee
// returns a value, release every Reference the dying window holds, and
// resume the caller.
func (vm *VM) ret() {
	prior := vm.callStack.Pop()

	if vm.current.KeepReturnValue && vm.current.RegisterCount > 0 {
		vm.registers.SaveReturnValue(int(vm.current.RegisterCount), vm.heap)
	}
	vm.registers.Deallocate(int(vm.current.RegisterCount), vm.heap)

	vm.current = prior
	vm.pc = int(prior.ReturnAddress)
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

// newarray allocates a heap array. dest holds the size and src the element
// type code; both must be Uint32. dest receives a Reference with cursor 0
// and the slot's count at 1.
func (vm *VM) newarray(word uint32) error {
	d, s := unpack2(word)
	size, typ := vm.reg(d), vm.reg(s)
	if size.Typeof() != TypeUint32 || typ.Typeof() != TypeUint32 {
		return typeErrorf("newarray expects Uint32 operands, got %s, %s", size.Typeof(), typ.Typeof())
	}

	ref, err := vm.heap.NewArrayRef(As[uint32](*size), As[uint32](*typ))
	if err != nil {
		return err
	}
	// The slot was born with count 1; a plain write hands that single
	// ownership to the register.
	size.SetRef(ref)
	return nil
}

// arraycount replaces dest with the referenced array's cell count as
// Uint64. dest's own Reference is what gets released: it is the operand
// being consumed.
func (vm *VM) arraycount(word uint32) error {
	d, s := unpack2(word)
	src := vm.reg(s)
	if !src.IsReference() {
		return typeErrorf("arraycount expects a Reference, got %s", src.Typeof())
	}
	arr, err := vm.heap.Get(src.Ref().HeapID)
	if err != nil {
		return err
	}
	vm.setReg(vm.reg(d), ValueOf(uint64(arr.Count())))
	return nil
}

// load replaces dest — which must hold a Reference — with the element at
// the Uint32 index in src. The write is raw: dest's Reference is the
// operand being consumed, and releasing it first could free the array
// mid-instruction.
func (vm *VM) load(word uint32) error {
	d, s := unpack2(word)
	dst, idx := vm.reg(d), vm.reg(s)
	if !dst.IsReference() {
		return typeErrorf("load expects a Reference, got %s", dst.Typeof())
	}
	if idx.Typeof() != TypeUint32 {
		return typeErrorf("load index must be Uint32, got %s", idx.Typeof())
	}
	arr, err := vm.heap.Get(dst.Ref().HeapID)
	if err != nil {
		return err
	}
	v, err := arr.Load(int(As[uint32](*idx)))
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// store writes src's payload into the cell dest's cursor points at. src's
// tag must match the array's element type.
func (vm *VM) store(word uint32) error {
	d, s := unpack2(word)
	dst, src := vm.reg(d), vm.reg(s)
	if !dst.IsReference() {
		return typeErrorf("store expects a Reference, got %s", dst.Typeof())
	}
	ref := dst.Ref()
	arr, err := vm.heap.Get(ref.HeapID)
	if err != nil {
		return err
	}
	return arr.Store(int(ref.ArrayIndex), *src)
}

// advance moves dest's cursor to the Uint32 offset in src, range-checked
// against the cell count.
func (vm *VM) advance(word uint32) error {
	d, s := unpack2(word)
	dst, off := vm.reg(d), vm.reg(s)
	if !dst.IsReference() {
		return typeErrorf("advance expects a Reference, got %s", dst.Typeof())
	}
	if off.Typeof() != TypeUint32 {
		return typeErrorf("advance offset must be Uint32, got %s", off.Typeof())
	}
	ref := dst.Ref()
	arr, err := vm.heap.Get(ref.HeapID)
	if err != nil {
		return err
	}
	offset := As[uint32](*off)
	if err := arr.CheckOffset(offset); err != nil {
		return err
	}
	ref.ArrayIndex = offset
	dst.SetRef(ref)
	return nil
}
