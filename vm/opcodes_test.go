package vm

import (
	"testing"
)

func TestEveryOpcodeHasANameAndArity(t *testing.T) {
	for op := Opcode(0); op.IsValid(); op++ {
		if name := op.String(); name == "" || name == "<err>" {
			t.Errorf("opcode %d has no mnemonic", op)
		}
		if a := op.Arity(); a < 0 || a > 2 {
			t.Errorf("%s has arity %d", op, a)
		}
	}
}

func TestMnemonicRoundTrip(t *testing.T) {
	for op := Opcode(0); op.IsValid(); op++ {
		got, ok := FromMnemonic(op.String())
		if !ok || got != op {
			t.Errorf("mnemonic %q resolves to %s, want %s", op.String(), got, op)
		}
	}
	if _, ok := FromMnemonic("frobnicate"); ok {
		t.Error("unknown mnemonic resolved")
	}
}

func TestJumpFamily(t *testing.T) {
	jumps := []Opcode{OpJmp, OpJe, OpJne, OpJgt, OpJge, OpJlt, OpJle}
	for _, op := range jumps {
		if !op.IsJump() {
			t.Errorf("%s not classified as a jump", op)
		}
		if op.Arity() != 1 {
			t.Errorf("%s arity %d, want 1", op, op.Arity())
		}
	}
	for _, op := range []Opcode{OpCall, OpRet, OpMov, OpCmp, OpHlt} {
		if op.IsJump() {
			t.Errorf("%s classified as a jump", op)
		}
	}
}

func TestAritySpotChecks(t *testing.T) {
	cases := []struct {
		op    Opcode
		arity int
	}{
		{OpNop, 0}, {OpHlt, 0}, {OpRet, 0},
		{OpI32Neg, 1}, {OpBnot, 1}, {OpConvI32ToI8, 1}, {OpConvF64ToF32, 1},
		{OpJmp, 1}, {OpCall, 1}, {OpPrintreg, 1},
		{OpI32Add, 2}, {OpU64Shr, 2}, {OpCmp, 2}, {OpLdconst, 2}, {OpMov, 2},
		{OpNewarray, 2}, {OpArraycount, 2}, {OpLoad, 2}, {OpStore, 2}, {OpAdvance, 2},
	}
	for _, c := range cases {
		if got := c.op.Arity(); got != c.arity {
			t.Errorf("%s arity %d, want %d", c.op, got, c.arity)
		}
	}
}

func TestUnknownOpcodeIsInvalid(t *testing.T) {
	if Opcode(opcodeCount).IsValid() {
		t.Error("opcode past hlt is valid")
	}
	if Opcode(255).Arity() != -1 {
		t.Error("unknown opcode has an arity")
	}
}
