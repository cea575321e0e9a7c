package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Unit image format
// ---------------------------------------------------------------------------
//
// An ExecutionUnit can be serialized to a binary image so assembled programs
// can be cached and reloaded without re-running the assembler. The layout is
// a fixed header followed by a canonical CBOR payload:
//
//	magic(4) "YUNI" | version(4, little-endian) | payload(CBOR)
//
// Canonical encoding keeps images byte-stable for equal units, which the
// unit store relies on.

// ImageMagic identifies a Yun unit image.
var ImageMagic = [4]byte{'Y', 'U', 'N', 'I'}

// ImageVersion is the current image format version.
// v1: initial format
const ImageVersion uint32 = 1

var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

// imagePayload is the CBOR shape of a serialized unit.
type imagePayload struct {
	Name      string        `cbor:"name"`
	Symbols   []imageSymbol `cbor:"symbols"`
	Constants []imageValue  `cbor:"constants"`
	Code      []byte        `cbor:"code"`
}

type imageSymbol struct {
	Name       string `cbor:"name"`
	Registers  uint16 `cbor:"registers"`
	Arguments  uint16 `cbor:"arguments"`
	Start      uint32 `cbor:"start"`
	End        uint32 `cbor:"end"`
	DoesReturn bool   `cbor:"returns"`
}

type imageValue struct {
	Type uint8  `cbor:"type"`
	Bits uint64 `cbor:"bits"`
}

// WriteImage serializes the unit to w.
func (u *ExecutionUnit) WriteImage(w io.Writer) error {
	payload := imagePayload{
		Name: u.name,
		Code: EncodeWords(u.code),
	}
	for i := 0; i != u.symbols.Count(); i++ {
		s := u.symbols.At(i)
		payload.Symbols = append(payload.Symbols, imageSymbol{
			Name:       s.Name,
			Registers:  s.Registers,
			Arguments:  s.Arguments,
			Start:      s.Start,
			End:        s.End,
			DoesReturn: s.DoesReturn,
		})
	}
	for i := 0; i != u.constants.Count(); i++ {
		c, _ := u.constants.Read(i)
		payload.Constants = append(payload.Constants, imageValue{
			Type: uint8(c.Typeof()),
			Bits: c.Bits(),
		})
	}

	encoded, err := imageEncMode.Marshal(&payload)
	if err != nil {
		return fmt.Errorf("vm: marshal unit image: %w", err)
	}

	if _, err := w.Write(ImageMagic[:]); err != nil {
		return fmt.Errorf("vm: write unit image: %w", err)
	}
	var version [4]byte
	binary.LittleEndian.PutUint32(version[:], ImageVersion)
	if _, err := w.Write(version[:]); err != nil {
		return fmt.Errorf("vm: write unit image: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("vm: write unit image: %w", err)
	}
	return nil
}

// ImageBytes serializes the unit to a byte slice.
func (u *ExecutionUnit) ImageBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := u.WriteImage(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadImage deserializes a unit image from r.
func ReadImage(r io.Reader) (*ExecutionUnit, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("vm: read unit image: %w", err)
	}
	return UnitFromImage(data)
}

// UnitFromImage rebuilds an ExecutionUnit from image bytes.
func UnitFromImage(data []byte) (*ExecutionUnit, error) {
	if len(data) < 8 || !bytes.Equal(data[:4], ImageMagic[:]) {
		return nil, fmt.Errorf("vm: not a unit image")
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != ImageVersion {
		return nil, fmt.Errorf("vm: unsupported image version %d", version)
	}

	var payload imagePayload
	if err := cbor.Unmarshal(data[8:], &payload); err != nil {
		return nil, fmt.Errorf("vm: unmarshal unit image: %w", err)
	}

	code, err := DecodeWords(payload.Code)
	if err != nil {
		return nil, fmt.Errorf("vm: unit image: %w", err)
	}

	var symbols SymbolTable
	for _, s := range payload.Symbols {
		if err := symbols.Add(Symbol{
			Name:       s.Name,
			Registers:  s.Registers,
			Arguments:  s.Arguments,
			Start:      s.Start,
			End:        s.End,
			DoesReturn: s.DoesReturn,
		}); err != nil {
			return nil, fmt.Errorf("vm: unit image: %w", err)
		}
	}

	var constants ConstantPool
	for _, c := range payload.Constants {
		v := TypedValue(Type(c.Type))
		v.SetBits(c.Bits)
		constants.FindOrAdd(v)
	}

	return NewExecutionUnit(payload.Name, symbols, constants, code), nil
}

// SaveImage writes the unit image to a file.
func (u *ExecutionUnit) SaveImage(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("vm: save unit image: %w", err)
	}
	defer f.Close()
	return u.WriteImage(f)
}

// LoadImage reads a unit image from a file.
func LoadImage(path string) (*ExecutionUnit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vm: load unit image: %w", err)
	}
	defer f.Close()
	return ReadImage(f)
}
