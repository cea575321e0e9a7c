package asm

import (
	"testing"

	"github.com/yunvm/yun/vm"
)

func begin(t *testing.T, b *FunctionBuilder, name string, registers, arguments uint16, doesReturn bool) {
	t.Helper()
	if err := b.Begin(name, registers, arguments, doesReturn); err != nil {
		t.Fatalf("Begin(%s): %v", name, err)
	}
}

func TestBeginValidation(t *testing.T) {
	var b FunctionBuilder

	if err := b.Begin("f", 2, 3, false); err == nil {
		t.Error("more arguments than registers accepted")
	}
	if err := b.Begin("f", 0, 0, true); err == nil {
		t.Error("zero registers with a return value accepted")
	}

	begin(t, &b, "f", 2, 1, true)
	if err := b.Begin("g", 1, 0, false); err == nil {
		t.Error("nested Begin accepted")
	}
}

func TestEmitOutsideFunction(t *testing.T) {
	var b FunctionBuilder
	if err := b.AddVoid(vm.OpNop); err == nil {
		t.Error("emitting outside Begin/Finalize succeeded")
	}
	if err := b.AddLabel("l"); err == nil {
		t.Error("label outside Begin/Finalize succeeded")
	}
}

func TestRegisterBounds(t *testing.T) {
	var b FunctionBuilder
	begin(t, &b, "f", 2, 0, false)

	if err := b.AddBinary(vm.OpMov, 2, 0); err == nil {
		t.Error("dest outside the register count accepted")
	}
	if err := b.AddBinary(vm.OpMov, 0, 2); err == nil {
		t.Error("src outside the register count accepted")
	}
	if err := b.AddUnary(vm.OpI32Neg, 5); err == nil {
		t.Error("unary operand outside the register count accepted")
	}
	// ldconst's src indexes the pool, not the registers.
	if err := b.AddBinary(vm.OpLdconst, 0, 500); err != nil {
		t.Errorf("ldconst with a large pool index rejected: %v", err)
	}
}

func TestLabelRedefinition(t *testing.T) {
	var b FunctionBuilder
	begin(t, &b, "f", 1, 0, false)

	if err := b.AddLabel("here"); err != nil {
		t.Fatalf("AddLabel: %v", err)
	}
	if err := b.AddLabel("here"); err == nil {
		t.Error("label redefinition accepted")
	}
}

func TestAddJumpRejectsNonJumps(t *testing.T) {
	var b FunctionBuilder
	begin(t, &b, "f", 1, 0, false)
	if err := b.AddJump(vm.OpMov, "l"); err == nil {
		t.Error("AddJump(mov) accepted")
	}
}

func TestFinalizeRequiresRet(t *testing.T) {
	var b FunctionBuilder
	begin(t, &b, "f", 1, 0, false)
	if err := b.AddVoid(vm.OpNop); err != nil {
		t.Fatalf("AddVoid: %v", err)
	}
	if _, err := b.Finalize(); err == nil {
		t.Error("function without ret finalized")
	}
}

func TestFinalizeRejectsMissingLabel(t *testing.T) {
	var b FunctionBuilder
	begin(t, &b, "f", 1, 0, false)
	if err := b.AddJump(vm.OpJmp, "nowhere"); err != nil {
		t.Fatalf("AddJump: %v", err)
	}
	if err := b.AddVoid(vm.OpRet); err != nil {
		t.Fatalf("AddVoid: %v", err)
	}
	if _, err := b.Finalize(); err == nil {
		t.Error("jump to a missing label finalized")
	}
}

func TestFinalizePatchesJumpOffsets(t *testing.T) {
	var b FunctionBuilder
	begin(t, &b, "f", 1, 0, false)

	// 0: jmp end; 1: nop; 2: end: ret
	if err := b.AddJump(vm.OpJmp, "end"); err != nil {
		t.Fatalf("AddJump: %v", err)
	}
	if err := b.AddVoid(vm.OpNop); err != nil {
		t.Fatalf("AddVoid: %v", err)
	}
	if err := b.AddLabel("end"); err != nil {
		t.Fatalf("AddLabel: %v", err)
	}
	if err := b.AddVoid(vm.OpRet); err != nil {
		t.Fatalf("AddVoid: %v", err)
	}

	f, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if got := f.At(0).Dest(); got != 2*vm.InstructionSize {
		t.Errorf("patched forward jump offset %d, want %d", got, 2*vm.InstructionSize)
	}
}

func TestFinalizePatchesBackwardJump(t *testing.T) {
	var b FunctionBuilder
	begin(t, &b, "f", 1, 0, false)

	// 0: top: nop; 1: jmp top; 2: ret
	if err := b.AddLabel("top"); err != nil {
		t.Fatalf("AddLabel: %v", err)
	}
	if err := b.AddVoid(vm.OpNop); err != nil {
		t.Fatalf("AddVoid: %v", err)
	}
	if err := b.AddJump(vm.OpJmp, "top"); err != nil {
		t.Fatalf("AddJump: %v", err)
	}
	if err := b.AddVoid(vm.OpRet); err != nil {
		t.Fatalf("AddVoid: %v", err)
	}

	f, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if got := f.At(1).Dest(); got != -vm.InstructionSize {
		t.Errorf("patched backward jump offset %d, want %d", got, -vm.InstructionSize)
	}
}

func TestFinalizeCarriesSymbolAndCalls(t *testing.T) {
	var b FunctionBuilder
	begin(t, &b, "f", 3, 1, true)
	if err := b.AddCall("g"); err != nil {
		t.Fatalf("AddCall: %v", err)
	}
	if err := b.AddVoid(vm.OpRet); err != nil {
		t.Fatalf("AddVoid: %v", err)
	}

	f, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	sym := f.Symbol()
	if sym.Name != "f" || sym.Registers != 3 || sym.Arguments != 1 || !sym.DoesReturn {
		t.Errorf("symbol %+v", sym)
	}
	if f.Size() != 2*vm.InstructionSize {
		t.Errorf("size %d, want %d", f.Size(), 2*vm.InstructionSize)
	}
	if target, ok := f.CallMap()[0]; !ok || target != "g" {
		t.Errorf("call map %v, want {0: g}", f.CallMap())
	}
}

func TestBuilderReusableAfterFinalize(t *testing.T) {
	var b FunctionBuilder
	begin(t, &b, "f", 1, 0, false)
	if err := b.AddVoid(vm.OpRet); err != nil {
		t.Fatalf("AddVoid: %v", err)
	}
	first, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	begin(t, &b, "g", 1, 0, false)
	if err := b.AddVoid(vm.OpNop); err != nil {
		t.Fatalf("AddVoid: %v", err)
	}
	if err := b.AddVoid(vm.OpRet); err != nil {
		t.Fatalf("AddVoid: %v", err)
	}
	second, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if first.Size() != vm.InstructionSize || second.Size() != 2*vm.InstructionSize {
		t.Errorf("sizes %d and %d, want %d and %d",
			first.Size(), second.Size(), vm.InstructionSize, 2*vm.InstructionSize)
	}
}
