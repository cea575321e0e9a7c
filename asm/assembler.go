package asm

import (
	"github.com/tliron/commonlog"

	"github.com/yunvm/yun/vm"
)

var log = commonlog.GetLogger("yun.asm")

// Assembler drives FunctionBuilders across a whole unit. It owns the
// constant pool — constants are interned as they are loaded — and, once
// every function is finalized, Patch lays the functions out, builds the
// symbol table, resolves inter-function calls, and emits the
// ExecutionUnit.
type Assembler struct {
	constants vm.ConstantPool
	builder   FunctionBuilder
	functions []*FunctionUnit
	building  bool
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// BeginFunction opens a new function.
func (a *Assembler) BeginFunction(name string, registers, arguments uint16, doesReturn bool) error {
	if a.building {
		return vm.AssemblerErrorf("function %q begun before %q ended", name, a.builder.Name())
	}
	if err := a.builder.Begin(name, registers, arguments, doesReturn); err != nil {
		return err
	}
	a.building = true
	return nil
}

// EndFunction finalizes the open function.
func (a *Assembler) EndFunction() error {
	if !a.building {
		return vm.AssemblerErrorf("no function to end")
	}
	unit, err := a.builder.Finalize()
	if err != nil {
		return err
	}
	a.functions = append(a.functions, unit)
	a.building = false
	return nil
}

// AddLabel binds a label in the open function.
func (a *Assembler) AddLabel(label string) error {
	if !a.building {
		return vm.AssemblerErrorf("label %q outside a function", label)
	}
	return a.builder.AddLabel(label)
}

// AddJump emits a jump to a label in the open function.
func (a *Assembler) AddJump(op vm.Opcode, label string) error {
	if !a.building {
		return vm.AssemblerErrorf("%s outside a function", op)
	}
	return a.builder.AddJump(op, label)
}

// AddCall emits a call to a named function.
func (a *Assembler) AddCall(target string) error {
	if !a.building {
		return vm.AssemblerErrorf("call outside a function")
	}
	return a.builder.AddCall(target)
}

// AddBinary emits a two-operand instruction.
func (a *Assembler) AddBinary(op vm.Opcode, dest, src uint32) error {
	if !a.building {
		return vm.AssemblerErrorf("%s outside a function", op)
	}
	return a.builder.AddBinary(op, dest, src)
}

// AddUnary emits a one-operand instruction.
func (a *Assembler) AddUnary(op vm.Opcode, dest uint32) error {
	if !a.building {
		return vm.AssemblerErrorf("%s outside a function", op)
	}
	return a.builder.AddUnary(op, dest)
}

// AddVoid emits a zero-operand instruction.
func (a *Assembler) AddVoid(op vm.Opcode) error {
	if !a.building {
		return vm.AssemblerErrorf("%s outside a function", op)
	}
	return a.builder.AddVoid(op)
}

// LoadConstant interns a constant and emits ldconst against its pool
// index. Equal (tag, payload) pairs share one slot.
func (a *Assembler) LoadConstant(dest uint32, value vm.Value) error {
	if !a.building {
		return vm.AssemblerErrorf("ldconst outside a function")
	}
	index := a.constants.FindOrAdd(value)
	return a.builder.AddBinary(vm.OpLdconst, dest, uint32(index))
}

// Patch closes the unit: assign every function its byte extent by
// cumulative layout, build the symbol table, resolve every recorded call
// site to its callee's absolute byte start, and copy the patched functions
// into one contiguous buffer.
func (a *Assembler) Patch(name string) (*vm.ExecutionUnit, error) {
	if a.building {
		return nil, vm.AssemblerErrorf("function %q still open", a.builder.Name())
	}

	var symbols vm.SymbolTable
	offset := 0
	for _, f := range a.functions {
		f.Symbol().Start = uint32(offset)
		offset += f.Size()
		f.Symbol().End = uint32(offset)
		if err := symbols.Add(*f.Symbol()); err != nil {
			return nil, err
		}
	}

	buffer := make([]uint32, offset/vm.InstructionSize)
	for _, f := range a.functions {
		for i := 0; i != f.Count(); i++ {
			in := f.At(i)
			if in.Op() == vm.OpLdconst && !a.constants.Has(int(in.Src())) {
				return nil, vm.AssemblerErrorf("ldconst against unknown constant index %d", in.Src())
			}
		}
		for index, target := range f.CallMap() {
			callee, err := symbols.FindByName(target)
			if err != nil {
				return nil, vm.AssemblerErrorf("call to unknown function %q", target)
			}
			if callee.Start > vm.MaxJumpOffset {
				return nil, vm.AssemblerErrorf("call target %q at 0x%x overflows the 24-bit field", target, callee.Start)
			}
			if err := f.At(index).PatchOffset(int32(callee.Start)); err != nil {
				return nil, err
			}
		}
		f.SerializeInto(buffer[f.Symbol().Start/vm.InstructionSize:])
	}

	log.Debugf("assembled unit %s: %d functions, %d constants, %d words",
		name, len(a.functions), a.constants.Count(), len(buffer))

	return vm.NewExecutionUnit(name, symbols, a.constants, buffer), nil
}
