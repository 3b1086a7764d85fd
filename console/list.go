package console

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"hvDbg/logflags"
)

// maxListRecords guards the enumerators against cyclic guest lists.
const maxListRecords = 1 << 16

var helpLines = []struct {
	op   byte
	text string
}{
	{'h', "%c - show this help screen"},
	{'r', "%c - dump guest registers"},
	{'p', "%c - dump guest processes"},
	{'m', "%c - dump guest kernel modules"},
	{'w', "%c - dump guest network connections"},
	{'x', "%c addr|$reg [y] - dump y dwords starting from addr or register reg"},
	{'b', "%c addr|$symbol - set sw breakpoint @ address addr or at address of $symbol"},
	{'D', "%c addr|$id - delete sw breakpoint @ address addr or #id"},
	{'s', "%c - single step"},
	{'d', "%c [addr] - disassemble starting from addr (default rip)"},
	{'c', "%c - continue execution"},
	{'t', "%c n - print backtrace of n stack frames"},
	{'S', "%c addr - lookup symbol associated with address addr"},
	{'n', "%c addr - lookup nearest symbol to address addr"},
	{'i', "%c - show info on hvDbg"},
}

func (c *Console) cmdHelp(_ *Command) {
	c.out.Reset()
	c.out.Printf(0, "Available commands:")
	for i, h := range helpLines {
		c.out.Printf(i+1, h.text, h.op)
	}
}

func (c *Console) cmdShowRegisters(_ *Command) {
	ctx := c.state.Ctx
	regs := []struct {
		name string
		val  uint64
	}{
		{"RAX", ctx.Rax},
		{"RBX", ctx.Rbx},
		{"RCX", ctx.Rcx},
		{"RDX", ctx.Rdx},
		{"RSP", ctx.Rsp},
		{"RBP", ctx.Rbp},
		{"RSI", ctx.Rsi},
		{"RDI", ctx.Rdi},
		{"RIP", ctx.Rip},
		{"Resume RIP", ctx.ResumeRip},
		{"RFLAGS", ctx.Rflags},
		{"CR0", ctx.Cr0},
		{"CR3", ctx.Cr3},
		{"CR4", ctx.Cr4},
	}

	c.out.Reset()
	for i, r := range regs {
		c.out.Printf(i, "%-10s 0x%08x", r.name, r.val)
	}
	c.out.Printf(len(regs), "%-10s 0x%04x", "CS", ctx.Cs)
}

// moreMarker replaces the last row of a listing that did not fit.
const moreMarker = "... more entries not shown"

// listing collects the lines of an enumerator walk. An enumerator failure
// replaces whatever was collected with a single error line. The walk goes one
// record past the screen so an overflowing listing can be told apart from one
// that fits exactly.
type listing struct {
	c     *Console
	lines []string
}

func (l *listing) full() bool {
	return len(l.lines) > l.c.out.Rows()
}

func (l *listing) add(format string, a ...interface{}) {
	l.lines = append(l.lines, fmt.Sprintf(format, a...))
}

func (l *listing) finish(err error, errMsg string) {
	l.c.out.Reset()
	if err != nil && !errors.Is(err, ErrEndOfData) {
		if logflags.Console() {
			l.c.log.Debugf("%s: %v", strings.TrimSuffix(errMsg, "!"), err)
		}
		l.c.out.Errorf("%s", errMsg)
		return
	}
	if rows := l.c.out.Rows(); len(l.lines) > rows {
		l.lines = append(l.lines[:rows-1], moreMarker)
	}
	for i, line := range l.lines {
		l.c.out.Printf(i, "%s", line)
	}
}

func (c *Console) cmdShowProcesses(_ *Command) {
	l := listing{c: c}
	var prev *ProcessRecord
	var err error
	for i := 0; i < maxListRecords && !l.full(); i++ {
		var p ProcessRecord
		p, err = c.procs.NextProcess(c.state.space(), prev)
		if err != nil {
			break
		}
		l.add("%.2d. CR3: %08x; PID: %d; name: %s", i, p.CR3, p.PID, p.Name)
		prev = &p
	}
	l.finish(err, "error while retrieving active processes!")
}

func (c *Console) cmdShowModules(_ *Command) {
	l := listing{c: c}
	var prev *ModuleRecord
	var err error
	for i := 0; i < maxListRecords && !l.full(); i++ {
		var m ModuleRecord
		m, err = c.mods.NextModule(c.state.space(), prev)
		if err != nil {
			break
		}
		l.add("%.2d. base: %08x; entry: %08x; name: %s", i, m.Base, m.Entry, m.Name)
		prev = &m
	}
	l.finish(err, "error while retrieving kernel modules!")
}

func (c *Console) cmdShowSockets(_ *Command) {
	l := listing{c: c}
	var prev *SocketRecord
	var err error
	for i := 0; i < maxListRecords && !l.full(); i++ {
		var s SocketRecord
		s, err = c.socks.NextSocket(c.state.space(), prev)
		if err != nil {
			break
		}
		lip := net.IP(s.LocalIP[:]).String()
		switch s.State {
		case SocketStateEstablished:
			rip := net.IP(s.RemoteIP[:]).String()
			l.add("[%.3d] ESTABLISHED lip: %s lport: %d rip: %s rport: %d proto: %d pid: %d",
				i, lip, s.LocalPort, rip, s.RemotePort, s.Protocol, s.PID)
		case SocketStateListen:
			l.add("[%.3d] LISTEN lip: %s lport: %d proto: %d pid: %d", i, lip, s.LocalPort, s.Protocol, s.PID)
		default:
			l.add("[%.3d] Unknown socket state", i)
		}
		prev = &s
	}
	l.finish(err, "error while retrieving network information!")
}

const (
	bannerRow   = 8
	bannerInner = 57
	bannerPad   = 20
)

func bannerLine(text string) string {
	if len(text) > bannerInner {
		text = text[:bannerInner]
	}
	left := (bannerInner - len(text)) / 2
	right := bannerInner - len(text) - left
	pad := strings.Repeat(" ", bannerPad)
	return pad + "*" + strings.Repeat(" ", left) + text + strings.Repeat(" ", right) + "*"
}

func (c *Console) cmdShowInfo(_ *Command) {
	pad := strings.Repeat(" ", bannerPad)
	rule := pad + strings.Repeat("*", bannerInner+2)
	lines := []string{
		rule,
		bannerLine(""),
		bannerLine("hvDbg " + c.version),
		bannerLine("hypervisor-level kernel debugger console"),
		bannerLine("attach: hvdbg connect --host HOST --port PORT"),
		bannerLine(""),
		rule,
	}

	c.out.Reset()
	start := bannerRow
	if start+len(lines) > c.out.Rows() {
		start = 0
	}
	for i, l := range lines {
		c.out.Printf(start+i, "%s", l)
	}
}
