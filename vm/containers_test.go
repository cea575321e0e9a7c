package vm

import (
	"testing"
)

func TestCallStackRelativeOffset(t *testing.T) {
	var cs CallStack
	if !cs.IsEmpty() {
		t.Fatal("fresh stack not empty")
	}

	// The entry frame's registers sit at the bottom of the file.
	cs.Push(Frame{RegisterCount: 4})
	if cs.RelativeOffset() != 0 {
		t.Fatalf("offset after entry push %d, want 0", cs.RelativeOffset())
	}

	// A call suspends the caller; its window drops below the new one.
	cs.Push(Frame{RegisterCount: 4})
	if cs.RelativeOffset() != 4 {
		t.Fatalf("offset after call push %d, want 4", cs.RelativeOffset())
	}
	cs.Push(Frame{RegisterCount: 2})
	if cs.RelativeOffset() != 6 {
		t.Fatalf("offset after nested push %d, want 6", cs.RelativeOffset())
	}

	cs.Pop()
	if cs.RelativeOffset() != 4 {
		t.Fatalf("offset after pop %d, want 4", cs.RelativeOffset())
	}
	cs.Pop()
	if cs.RelativeOffset() != 0 {
		t.Fatalf("offset after pop %d, want 0", cs.RelativeOffset())
	}
	cs.Pop()
	if !cs.IsEmpty() || cs.RelativeOffset() != 0 {
		t.Fatalf("stack not drained: depth %d offset %d", cs.Depth(), cs.RelativeOffset())
	}
}

func TestRegisterAllocateGrowsAndZeroes(t *testing.T) {
	r := NewRegisterArray(2)
	heap := NewArrayHeap(4)

	r.Allocate(8)
	if r.Live() != 8 {
		t.Fatalf("live %d, want 8", r.Live())
	}
	for i := 0; i != 8; i++ {
		if r.At(i).Typeof() != TypeUninit {
			t.Errorf("register %d not Uninit after allocation", i)
		}
	}

	// Dirty a register, free it, reallocate: the window must be fresh.
	r.At(7).Assign(ValueOf(int32(42)))
	r.Deallocate(4, heap)
	r.Allocate(4)
	if r.At(7).Typeof() != TypeUninit {
		t.Error("reallocated register kept its old value")
	}
}

func TestDeallocateReleasesReferences(t *testing.T) {
	r := NewRegisterArray(8)
	heap := NewArrayHeap(4)

	ref, err := heap.NewArrayRef(4, uint32(TypeUint32))
	if err != nil {
		t.Fatalf("NewArrayRef: %v", err)
	}

	r.Allocate(2)
	r.At(1).SetRef(ref)
	r.Deallocate(2, heap)

	if heap.RefCount(ref.HeapID) != 0 {
		t.Errorf("refcount %d after window release, want 0", heap.RefCount(ref.HeapID))
	}
}

func TestCopyRetainsArgumentReferences(t *testing.T) {
	r := NewRegisterArray(16)
	heap := NewArrayHeap(4)

	ref, _ := heap.NewArrayRef(1, uint32(TypeInt32))

	// Caller window: 3 registers, the last two are the arguments.
	r.Allocate(3)
	r.At(1).Assign(ValueOf(int32(7)))
	r.At(2).SetRef(ref)

	// Callee window: 4 registers, 2 arguments.
	r.Allocate(4)
	r.Copy(4, 2, heap)

	if As[int32](*r.At(3)) != 7 {
		t.Errorf("first argument cell = %s, want (7: Int32)", r.At(3))
	}
	if !r.At(4).IsReference() || r.At(4).Ref() != ref {
		t.Errorf("second argument cell = %s, want the reference", r.At(4))
	}
	if heap.RefCount(ref.HeapID) != 2 {
		t.Errorf("refcount %d after argument copy, want 2", heap.RefCount(ref.HeapID))
	}
}

func TestSaveReturnValue(t *testing.T) {
	r := NewRegisterArray(16)
	heap := NewArrayHeap(4)

	// Caller: 2 registers. Callee: 3 registers, result in its first.
	r.Allocate(2)
	r.Allocate(3)
	r.At(2).Assign(ValueOf(uint64(99)))

	r.SaveReturnValue(3, heap)
	if As[uint64](*r.At(1)) != 99 {
		t.Errorf("return slot = %s, want (99: Uint64)", r.At(1))
	}
}

func TestSaveReturnValueSwapsReferenceOwnership(t *testing.T) {
	r := NewRegisterArray(16)
	heap := NewArrayHeap(4)

	oldRef, _ := heap.NewArrayRef(1, uint32(TypeInt32))
	newRef, _ := heap.NewArrayRef(1, uint32(TypeInt32))

	r.Allocate(2)
	r.At(1).SetRef(oldRef)
	r.Allocate(3)
	r.At(2).SetRef(newRef)
	heap.Notify(newRef.HeapID, true) // the callee window holds it too

	r.SaveReturnValue(3, heap)

	if heap.RefCount(oldRef.HeapID) != 0 {
		t.Errorf("overwritten reference still has count %d", heap.RefCount(oldRef.HeapID))
	}
	if heap.RefCount(newRef.HeapID) != 3 {
		t.Errorf("returned reference has count %d, want 3", heap.RefCount(newRef.HeapID))
	}
}

func TestConstantPoolFindOrAddIsIdempotent(t *testing.T) {
	var p ConstantPool

	first := p.FindOrAdd(ValueOf(int32(5)))
	second := p.FindOrAdd(ValueOf(int32(5)))
	if first != second {
		t.Errorf("indices %d and %d for equal constants", first, second)
	}
	if p.Count() != 1 {
		t.Errorf("pool grew to %d, want 1", p.Count())
	}

	// Same payload bits, different tag: a distinct constant.
	other := p.FindOrAdd(ValueOf(uint32(5)))
	if other == first {
		t.Error("Int32(5) and Uint32(5) interned to one slot")
	}
	if p.Count() != 2 {
		t.Errorf("pool has %d constants, want 2", p.Count())
	}
}

func TestConstantPoolRead(t *testing.T) {
	var p ConstantPool
	idx := p.FindOrAdd(ValueOf(float64(1.5)))

	v, err := p.Read(idx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if As[float64](v) != 1.5 {
		t.Errorf("read back %s", v)
	}
	if _, err := p.Read(99); err == nil {
		t.Error("reading outside the pool succeeded")
	}
}

func TestSymbolTableLookups(t *testing.T) {
	var st SymbolTable
	if err := st.Add(Symbol{Name: "main", Registers: 2, Start: 0, End: 12}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := st.Add(Symbol{Name: "helper", Registers: 1, Start: 12, End: 16}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := st.Add(Symbol{Name: "main"}); err == nil {
		t.Error("duplicate symbol name accepted")
	}

	sym, err := st.FindByName("helper")
	if err != nil || sym.Start != 12 {
		t.Errorf("FindByName(helper) = %+v, %v", sym, err)
	}
	sym, err = st.FindByLocation(12)
	if err != nil || sym.Name != "helper" {
		t.Errorf("FindByLocation(12) = %+v, %v", sym, err)
	}
	if _, err := st.FindByLocation(99); err == nil {
		t.Error("lookup at a bogus location succeeded")
	}
}

func TestSymbolSignature(t *testing.T) {
	s := Symbol{Name: "test", Arguments: 2, DoesReturn: true}
	if got := s.Signature(); got != "Value test(Value, Value):" {
		t.Errorf("signature %q", got)
	}
	v := Symbol{Name: "main"}
	if got := v.Signature(); got != "void main():" {
		t.Errorf("signature %q", got)
	}
}
