package console

import "strings"

// FlagsTF is the RFLAGS trap flag.
const FlagsTF = 1 << 8

// GuestContext is the register snapshot taken when the guest trapped into the
// debugger. It is owned by the code handling the exit; the console borrows it
// for one command.
type GuestContext struct {
	Rax       uint64
	Rbx       uint64
	Rcx       uint64
	Rdx       uint64
	Rsp       uint64
	Rbp       uint64
	Rsi       uint64
	Rdi       uint64
	Rip       uint64
	ResumeRip uint64
	Rflags    uint64
	Cr0       uint64
	Cr3       uint64
	Cr4       uint64
	Cs        uint16
}

// Register returns the value of an architectural register. Only the first
// three characters of name are compared, ignoring case.
func (ctx *GuestContext) Register(name string) (uint64, bool) {
	if len(name) < 3 {
		return 0, false
	}
	switch strings.ToUpper(name[:3]) {
	case "RAX":
		return ctx.Rax, true
	case "RBX":
		return ctx.Rbx, true
	case "RCX":
		return ctx.Rcx, true
	case "RDX":
		return ctx.Rdx, true
	case "RSP":
		return ctx.Rsp, true
	case "RBP":
		return ctx.Rbp, true
	case "RSI":
		return ctx.Rsi, true
	case "RDI":
		return ctx.Rdi, true
	case "RIP":
		return ctx.Rip, true
	case "CR0":
		return ctx.Cr0, true
	case "CR3":
		return ctx.Cr3, true
	case "CR4":
		return ctx.Cr4, true
	}
	return 0, false
}

// State is the per-exit debugger state handed to the console. Ctx must be
// non-nil while a command runs.
type State struct {
	Ctx *GuestContext

	// KernelBase converts module-relative symbol addresses to absolute ones.
	KernelBase uint64

	// WordSize is the guest pointer width in bytes (4 or 8).
	WordSize int

	// SingleStepping is set by the single-step command and cleared by the
	// embedding code once the step trap has been taken.
	SingleStepping bool
}

func (s *State) space() uint64 {
	return s.Ctx.Cr3
}

func (s *State) wordSize() int {
	if s.WordSize == 4 {
		return 4
	}
	return 8
}
