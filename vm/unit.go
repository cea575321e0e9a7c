package vm

// ExecutionUnit is an assembled, ready-to-run bundle: the unit's name, its
// symbol table, its constant pool, and one contiguous packed instruction
// buffer. It is immutable after assembly and may be shared read-only
// between machines.
type ExecutionUnit struct {
	name      string
	symbols   SymbolTable
	constants ConstantPool
	code      []uint32
}

// NewExecutionUnit bundles the assembler's outputs. The asm package is the
// usual caller; tests build small units by hand.
func NewExecutionUnit(name string, symbols SymbolTable, constants ConstantPool, code []uint32) *ExecutionUnit {
	return &ExecutionUnit{name: name, symbols: symbols, constants: constants, code: code}
}

// Name returns the unit's name.
func (u *ExecutionUnit) Name() string {
	return u.name
}

// Code returns the packed instruction buffer.
func (u *ExecutionUnit) Code() []uint32 {
	return u.code
}

// Constant looks a constant up by pool index.
func (u *ExecutionUnit) Constant(index int) (Value, error) {
	return u.constants.Read(index)
}

// Constants exposes the pool for serialization and disassembly.
func (u *ExecutionUnit) Constants() *ConstantPool {
	return &u.constants
}

// SymbolByName looks a function up by name.
func (u *ExecutionUnit) SymbolByName(name string) (Symbol, error) {
	return u.symbols.FindByName(name)
}

// SymbolByLocation looks a function up by the byte offset of its first
// instruction.
func (u *ExecutionUnit) SymbolByLocation(location uint32) (Symbol, error) {
	return u.symbols.FindByLocation(location)
}

// Symbols exposes the symbol table for serialization and disassembly.
func (u *ExecutionUnit) Symbols() *SymbolTable {
	return &u.symbols
}
