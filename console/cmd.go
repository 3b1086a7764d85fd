package console

import (
	"github.com/sirupsen/logrus"

	"hvDbg/logflags"
)

const (
	DefaultRows = 20
	DefaultCols = 100
)

type cmdHandler struct {
	fn func(*Console, *Command)
	// resume commands hand control back to the guest and leave the screen
	// as it is.
	resume bool
}

var compiledCmds = map[Opcode]cmdHandler{
	OpHelp:             {fn: (*Console).cmdHelp},
	OpShowRegisters:    {fn: (*Console).cmdShowRegisters},
	OpShowProcesses:    {fn: (*Console).cmdShowProcesses},
	OpShowModules:      {fn: (*Console).cmdShowModules},
	OpShowSockets:      {fn: (*Console).cmdShowSockets},
	OpDumpMemory:       {fn: (*Console).cmdDumpMemory},
	OpSetBreakpoint:    {fn: (*Console).cmdSetBreakpoint},
	OpDeleteBreakpoint: {fn: (*Console).cmdDeleteBreakpoint},
	OpSingleStep:       {fn: (*Console).cmdSingleStep, resume: true},
	OpDisassemble:      {fn: (*Console).cmdDisassemble},
	OpBacktrace:        {fn: (*Console).cmdBacktrace},
	OpContinue:         {fn: (*Console).cmdContinue, resume: true},
	OpSymbol:           {fn: (*Console).cmdLookupSymbolExact},
	OpSymbolNearest:    {fn: (*Console).cmdLookupSymbolNearest},
	OpInfo:             {fn: (*Console).cmdShowInfo},
	OpUnknown:          {fn: (*Console).cmdUnknown},
}

// Config wires the console to its collaborators. Nil collaborators are
// replaced with stand-ins that report the feature as unavailable.
type Config struct {
	Memory       Memory
	Breakpoints  BreakpointManager
	Symbols      SymbolTable
	Decoder      Decoder
	Processes    ProcessEnumerator
	Modules      ModuleEnumerator
	Sockets      SocketEnumerator
	Introspector GuestIntrospector
	Sink         Sink

	Rows int
	Cols int

	// Version is shown by the info command.
	Version string
}

// Console executes one command line at a time against the guest state of
// the current exit.
type Console struct {
	state *State
	out   *OutputBuffer

	mem   Memory
	bps   BreakpointManager
	syms  SymbolTable
	dec   Decoder
	procs ProcessEnumerator
	mods  ModuleEnumerator
	socks SocketEnumerator
	intro GuestIntrospector
	sink  Sink

	version string
	log     *logrus.Entry
}

func New(state *State, cfg Config) *Console {
	if cfg.Rows <= 0 {
		cfg.Rows = DefaultRows
	}
	if cfg.Cols <= 0 {
		cfg.Cols = DefaultCols
	}
	c := &Console{
		state:   state,
		out:     NewOutputBuffer(cfg.Rows, cfg.Cols),
		mem:     cfg.Memory,
		bps:     cfg.Breakpoints,
		syms:    cfg.Symbols,
		dec:     cfg.Decoder,
		procs:   cfg.Processes,
		mods:    cfg.Modules,
		socks:   cfg.Sockets,
		intro:   cfg.Introspector,
		sink:    cfg.Sink,
		version: cfg.Version,
		log:     logflags.ConsoleLogger(),
	}
	if c.mem == nil {
		c.mem = noMemory{}
	}
	if c.bps == nil {
		c.bps = noBreakpoints{}
	}
	if c.syms == nil {
		c.syms = noSymbols{}
	}
	if c.procs == nil || c.mods == nil || c.socks == nil {
		var n noEnumerator
		if c.procs == nil {
			c.procs = n
		}
		if c.mods == nil {
			c.mods = n
		}
		if c.socks == nil {
			c.socks = n
		}
	}
	if c.intro == nil {
		c.intro = GenericIntrospector{}
	}
	if c.version == "" {
		c.version = "dev"
	}
	return c
}

// Output returns the buffer filled by the last command.
func (c *Console) Output() *OutputBuffer {
	return c.out
}

// ProcessCommand parses and runs one line. It returns true when the guest
// should be resumed and the command loop left.
func (c *Console) ProcessCommand(line string) bool {
	if len(line) == 0 {
		return false
	}

	cmd := ParseCommand(line)
	handler, ok := compiledCmds[cmd.Opcode]
	if !ok {
		handler = compiledCmds[OpUnknown]
	}

	c.log.WithFields(logrus.Fields{"op": cmd.Opcode.String(), "nargs": cmd.NArgs}).Debug("command")
	handler.fn(c, &cmd)

	if !handler.resume && c.sink != nil {
		c.sink.Refresh(c.out)
	}
	return handler.resume
}

func (c *Console) cmdContinue(_ *Command) {}

func (c *Console) cmdSingleStep(_ *Command) {
	// Written back to the guest on entry.
	c.state.Ctx.Rflags |= FlagsTF
	c.state.SingleStepping = true
}

func (c *Console) cmdUnknown(_ *Command) {
	c.out.Errorf("Unknown command")
}

type noMemory struct{}

func (noMemory) IsAddressValid(space, addr uint64) bool { return false }
func (noMemory) ReadVirtualRegion(space, addr uint64, buf []byte) (int, error) {
	return 0, ErrUnsupported
}

type noBreakpoints struct{}

func (noBreakpoints) SetBreakpoint(space, addr uint64) (int, error)     { return 0, ErrNoBreakpointSlot }
func (noBreakpoints) DeleteBreakpointByID(space uint64, id int) bool    { return false }
func (noBreakpoints) DeleteBreakpointByAddress(space, addr uint64) bool { return false }

type noSymbols struct{}

func (noSymbols) LookupExact(addr uint64) (*Symbol, bool)   { return nil, false }
func (noSymbols) LookupNearest(addr uint64) (*Symbol, bool) { return nil, false }
func (noSymbols) LookupName(name string) (*Symbol, bool)    { return nil, false }

type noEnumerator struct{}

func (noEnumerator) NextProcess(space uint64, prev *ProcessRecord) (ProcessRecord, error) {
	return ProcessRecord{}, ErrUnsupported
}

func (noEnumerator) NextModule(space uint64, prev *ModuleRecord) (ModuleRecord, error) {
	return ModuleRecord{}, ErrUnsupported
}

func (noEnumerator) NextSocket(space uint64, prev *SocketRecord) (SocketRecord, error) {
	return SocketRecord{}, ErrUnsupported
}
