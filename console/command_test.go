package console

import (
	"strings"
	"testing"
)

func TestParseCommandOpcodes(t *testing.T) {
	for ch, want := range opcodeChars {
		cmd := ParseCommand(string(ch))
		if cmd.Opcode != want {
			t.Errorf("ParseCommand(%q).Opcode = %v, want %v", ch, cmd.Opcode, want)
		}
	}

	for _, line := range []string{"z", "q", "H", "X", "B", "?", "1", "   ", "\t\f"} {
		if op := ParseCommand(line).Opcode; op != OpUnknown {
			t.Errorf("ParseCommand(%q).Opcode = %v, want unknown", line, op)
		}
	}
}

func TestParseCommandArgs(t *testing.T) {
	tests := []struct {
		line  string
		op    Opcode
		nargs int
		args  []string
	}{
		{"x 0x1000 4", OpDumpMemory, 2, []string{"0x1000", "4"}},
		{"   t", OpBacktrace, 0, nil},
		{"b\t$start_kernel", OpSetBreakpoint, 1, []string{"$start_kernel"}},
		{"x\f$rsp  \t 8  ", OpDumpMemory, 2, []string{"$rsp", "8"}},
		{"x0x1000", OpDumpMemory, 1, []string{"0x1000"}},
		{"d 1 2 3 4 5 6", OpDisassemble, 4, []string{"1", "2", "3", "4"}},
	}

	for _, tt := range tests {
		cmd := ParseCommand(tt.line)
		if cmd.Opcode != tt.op {
			t.Errorf("%q: opcode = %v, want %v", tt.line, cmd.Opcode, tt.op)
		}
		if cmd.NArgs != tt.nargs {
			t.Errorf("%q: nargs = %d, want %d", tt.line, cmd.NArgs, tt.nargs)
			continue
		}
		for i, want := range tt.args {
			if got := cmd.Arg(i); got != want {
				t.Errorf("%q: arg %d = %q, want %q", tt.line, i, got, want)
			}
		}
		for i := tt.nargs; i < MaxArgs; i++ {
			if cmd.Args[i] != "" {
				t.Errorf("%q: unused slot %d holds %q", tt.line, i, cmd.Args[i])
			}
		}
	}
}

func TestParseCommandTruncatesLongTokens(t *testing.T) {
	long := strings.Repeat("A", 3*MaxArgLen)
	cmd := ParseCommand("S " + long + " 0x10")
	if cmd.NArgs != 2 {
		t.Fatalf("nargs = %d, want 2", cmd.NArgs)
	}
	if len(cmd.Args[0]) != MaxArgLen {
		t.Errorf("first token is %d bytes, want %d", len(cmd.Args[0]), MaxArgLen)
	}
	if cmd.Args[1] != "0x10" {
		t.Errorf("second token = %q, the long token leaked into it", cmd.Args[1])
	}

	// The command still dispatches.
	r := newTestRig()
	if r.run("S "+long) != false {
		t.Error("symbol lookup must not resume the guest")
	}
	if got := r.line(0); got != "Invalid addr parameter!" {
		t.Errorf("output = %q", got)
	}
}

func TestCommandArgOutOfRange(t *testing.T) {
	cmd := ParseCommand("x 0x10")
	if cmd.Arg(-1) != "" || cmd.Arg(1) != "" || cmd.Arg(MaxArgs) != "" {
		t.Error("Arg must return empty strings for unused slots")
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
		ok   bool
	}{
		{"0", 0, true},
		{"1234", 1234, true},
		{"0x1000", 0x1000, true},
		{"0XfFfF", 0xffff, true},
		{"0xffffffffffffffff", 0xffffffffffffffff, true},
		{"0x1ffffffffffffffff", 0, false},
		{"18446744073709551616", 0, false},
		{"", 0, false},
		{"0x", 0, false},
		{"12ab", 0, false},
		{"-1", 0, false},
		{"$rax", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseNumber(tt.in)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("ParseNumber(%q) = %#x, %v; want %#x, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRegisterLookupIgnoresCase(t *testing.T) {
	ctx := &GuestContext{
		Rax: 1, Rbx: 2, Rcx: 3, Rdx: 4, Rsp: 5, Rbp: 6, Rsi: 7, Rdi: 8,
		Rip: 9, Cr0: 10, Cr3: 11, Cr4: 12,
	}
	want := map[string]uint64{
		"rax": 1, "RBX": 2, "Rcx": 3, "rDX": 4, "rsp": 5, "RBP": 6, "rsi": 7, "RDI": 8,
		"rip": 9, "cr0": 10, "CR3": 11, "Cr4": 12,
	}
	for name, v := range want {
		got, ok := ctx.Register(name)
		if !ok || got != v {
			t.Errorf("Register(%q) = %d, %v; want %d", name, got, ok, v)
		}
	}

	for _, name := range []string{"rax", "RAX", "Rax", "raxx"} {
		if v, _ := ctx.Register(name); v != ctx.Rax {
			t.Errorf("Register(%q) = %d, want %d", name, v, ctx.Rax)
		}
	}

	for _, name := range []string{"", "ra", "r8", "eax", "cr2", "xyz"} {
		if _, ok := ctx.Register(name); ok {
			t.Errorf("Register(%q) should fail", name)
		}
	}
}
