package console

// Opcode identifies a console command.
type Opcode int

const (
	OpUnknown Opcode = iota
	OpHelp
	OpShowModules
	OpShowRegisters
	OpShowProcesses
	OpShowSockets
	OpDumpMemory
	OpSetBreakpoint
	OpDeleteBreakpoint
	OpSingleStep
	OpBacktrace
	OpDisassemble
	OpContinue
	OpSymbol
	OpSymbolNearest
	OpInfo
)

const (
	// MaxArgs is the number of argument slots in a Command.
	MaxArgs = 4
	// MaxArgLen is the capacity of one argument slot in bytes.
	MaxArgLen = 128
)

var opcodeChars = map[byte]Opcode{
	'h': OpHelp,
	'r': OpShowRegisters,
	'p': OpShowProcesses,
	'm': OpShowModules,
	'w': OpShowSockets,
	'x': OpDumpMemory,
	'b': OpSetBreakpoint,
	'D': OpDeleteBreakpoint,
	's': OpSingleStep,
	'd': OpDisassemble,
	'c': OpContinue,
	't': OpBacktrace,
	'S': OpSymbol,
	'n': OpSymbolNearest,
	'i': OpInfo,
}

var opcodeNames = map[Opcode]string{
	OpUnknown:          "unknown",
	OpHelp:             "help",
	OpShowModules:      "modules",
	OpShowRegisters:    "registers",
	OpShowProcesses:    "processes",
	OpShowSockets:      "sockets",
	OpDumpMemory:       "dump",
	OpSetBreakpoint:    "break",
	OpDeleteBreakpoint: "delete",
	OpSingleStep:       "step",
	OpBacktrace:        "backtrace",
	OpDisassemble:      "disassemble",
	OpContinue:         "continue",
	OpSymbol:           "symbol",
	OpSymbolNearest:    "nearest",
	OpInfo:             "info",
}

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return "unknown"
}

// Command is one parsed input line.
type Command struct {
	Opcode Opcode
	Args   [MaxArgs]string
	NArgs  int
}

func (c *Command) Arg(i int) string {
	if i < 0 || i >= c.NArgs {
		return ""
	}
	return c.Args[i]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\f'
}

// ParseCommand turns a raw line into a Command. The first non-blank character
// selects the opcode; the rest of the line is split on blanks into at most
// MaxArgs tokens, each cut to MaxArgLen bytes. Extra tokens are dropped.
func ParseCommand(line string) Command {
	var cmd Command

	p := 0
	for p < len(line) && isSpace(line[p]) {
		p++
	}
	if p >= len(line) {
		return cmd
	}

	cmd.Opcode = opcodeChars[line[p]]
	p++

	for i := 0; i < MaxArgs; i++ {
		for p < len(line) && isSpace(line[p]) {
			p++
		}
		if p >= len(line) {
			break
		}
		start := p
		for p < len(line) && !isSpace(line[p]) {
			p++
		}
		tok := line[start:p]
		if len(tok) > MaxArgLen {
			tok = tok[:MaxArgLen]
		}
		cmd.Args[i] = tok
	}

	for cmd.NArgs < MaxArgs && cmd.Args[cmd.NArgs] != "" {
		cmd.NArgs++
	}
	return cmd
}
