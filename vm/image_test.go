package vm

import (
	"bytes"
	"path/filepath"
	"testing"
)

func imageTestUnit(t *testing.T) *ExecutionUnit {
	t.Helper()
	return unitOf(t,
		[]Value{ValueOf(int32(2)), ValueOf(float64(1.5)), ValueOf(uint64(7))},
		testFn{name: "main", registers: 2, ins: []Instruction{
			mustBinary(t, OpLdconst, 0, 0),
			mustBinary(t, OpLdconst, 1, 0),
			mustBinary(t, OpI32Add, 0, 1),
			mustVoid(t, OpRet),
		}},
		testFn{name: "helper", registers: 3, arguments: 1, doesReturn: true, ins: []Instruction{
			mustBinary(t, OpMov, 1, 0),
			mustVoid(t, OpRet),
		}},
	)
}

func TestImageRoundTrip(t *testing.T) {
	u := imageTestUnit(t)

	data, err := u.ImageBytes()
	if err != nil {
		t.Fatalf("ImageBytes: %v", err)
	}
	if !bytes.HasPrefix(data, ImageMagic[:]) {
		t.Fatal("image doesn't start with the magic")
	}

	back, err := UnitFromImage(data)
	if err != nil {
		t.Fatalf("UnitFromImage: %v", err)
	}

	if back.Name() != u.Name() {
		t.Errorf("name %q, want %q", back.Name(), u.Name())
	}
	if len(back.Code()) != len(u.Code()) {
		t.Fatalf("code length %d, want %d", len(back.Code()), len(u.Code()))
	}
	for i := range u.Code() {
		if back.Code()[i] != u.Code()[i] {
			t.Errorf("code word %d = %#x, want %#x", i, back.Code()[i], u.Code()[i])
		}
	}

	sym, err := back.SymbolByName("helper")
	if err != nil {
		t.Fatalf("SymbolByName: %v", err)
	}
	orig, _ := u.SymbolByName("helper")
	if sym != orig {
		t.Errorf("helper symbol %+v, want %+v", sym, orig)
	}

	for i := 0; i != u.Constants().Count(); i++ {
		want, _ := u.Constant(i)
		got, err := back.Constant(i)
		if err != nil || got != want {
			t.Errorf("constant %d = %s (%v), want %s", i, got, err, want)
		}
	}
}

func TestImageEncodingIsCanonical(t *testing.T) {
	u := imageTestUnit(t)
	first, err := u.ImageBytes()
	if err != nil {
		t.Fatalf("ImageBytes: %v", err)
	}
	second, err := u.ImageBytes()
	if err != nil {
		t.Fatalf("ImageBytes: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("two encodings of one unit differ")
	}
}

func TestImageRejectsGarbage(t *testing.T) {
	if _, err := UnitFromImage([]byte("not an image at all")); err == nil {
		t.Error("garbage decoded as a unit")
	}
	if _, err := UnitFromImage([]byte{'Y', 'U', 'N', 'I', 99, 0, 0, 0}); err == nil {
		t.Error("unsupported version decoded")
	}
}

func TestImageSaveLoadFile(t *testing.T) {
	u := imageTestUnit(t)
	path := filepath.Join(t.TempDir(), "test.yunimg")

	if err := u.SaveImage(path); err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	back, err := LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}

	// The reloaded unit must actually run.
	machine := NewVM(back)
	if err := machine.Run(); err != nil {
		t.Fatalf("running the reloaded unit: %v", err)
	}
	if got := As[int32](machine.RegisterValue(0)); got != 4 {
		t.Errorf("R0 = %d, want 4", got)
	}
}
