package console

import "errors"

var (
	ErrEndOfData        = errors.New("end of data")
	ErrNoBreakpointSlot = errors.New("no breakpoint slot available")
	ErrUnsupported      = errors.New("not supported for this guest")
)

// Translator answers whether a guest virtual address maps to readable memory
// in the address space identified by space (the guest CR3).
type Translator interface {
	IsAddressValid(space, addr uint64) bool
}

// MemoryReader copies guest virtual memory into buf. It returns the number of
// bytes copied; a short count comes with a non-nil error.
type MemoryReader interface {
	ReadVirtualRegion(space, addr uint64, buf []byte) (int, error)
}

// Memory is what the memory inspection handlers need from the translator.
type Memory interface {
	Translator
	MemoryReader
}

type BreakpointManager interface {
	// SetBreakpoint returns the index of the new breakpoint, or
	// ErrNoBreakpointSlot when the table is full.
	SetBreakpoint(space, addr uint64) (int, error)
	DeleteBreakpointByID(space uint64, id int) bool
	DeleteBreakpointByAddress(space, addr uint64) bool
}

// Symbol addresses are relative to the kernel base.
type Symbol struct {
	Name string
	Addr uint64
	Size uint64
}

// SymbolTable is queried with absolute guest addresses.
type SymbolTable interface {
	LookupExact(addr uint64) (*Symbol, bool)
	LookupNearest(addr uint64) (*Symbol, bool)
	LookupName(name string) (*Symbol, bool)
}

// Instruction is one decoded instruction. Text holds the mnemonic and its
// operands. Target is set when the decoder knows the instruction carries an
// absolute address operand.
type Instruction struct {
	Text      string
	Hex       string
	Len       int
	Target    uint64
	HasTarget bool
}

type Decoder interface {
	Decode(buf []byte, addr uint64) (Instruction, bool)
}

type ProcessRecord struct {
	CR3  uint64
	PID  int
	Name string
	// Next is the enumerator's cursor, opaque to the console.
	Next uint64
}

type ModuleRecord struct {
	Base  uint64
	Entry uint64
	Size  uint64
	Name  string
	Next  uint64
}

type SocketState int

const (
	SocketStateUnknown SocketState = iota
	SocketStateEstablished
	SocketStateListen
)

type SocketRecord struct {
	State      SocketState
	LocalIP    [4]byte
	LocalPort  uint16
	RemoteIP   [4]byte
	RemotePort uint16
	Protocol   int
	PID        int
	Next       uint64
}

// Enumerators start from prev == nil and return ErrEndOfData after the last
// record.
type ProcessEnumerator interface {
	NextProcess(space uint64, prev *ProcessRecord) (ProcessRecord, error)
}

type ModuleEnumerator interface {
	NextModule(space uint64, prev *ModuleRecord) (ModuleRecord, error)
}

type SocketEnumerator interface {
	NextSocket(space uint64, prev *SocketRecord) (SocketRecord, error)
}

// Sink renders a finished OutputBuffer.
type Sink interface {
	Refresh(out *OutputBuffer)
}
