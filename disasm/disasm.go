// Package disasm decodes guest x86 code for the console.
package disasm

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"hvDbg/console"
)

type Syntax int

const (
	GNUSyntax Syntax = iota
	IntelSyntax
	GoSyntax
)

func ParseSyntax(s string) (Syntax, error) {
	switch strings.ToLower(s) {
	case "", "gnu", "att":
		return GNUSyntax, nil
	case "intel":
		return IntelSyntax, nil
	case "go", "plan9":
		return GoSyntax, nil
	}
	return GNUSyntax, fmt.Errorf("invalid asm syntax %q", s)
}

func (s Syntax) String() string {
	switch s {
	case IntelSyntax:
		return "intel"
	case GoSyntax:
		return "go"
	}
	return "gnu"
}

// Decoder implements console.Decoder on top of x86asm.
type Decoder struct {
	bits   int
	syntax Syntax
}

// New returns a decoder for 32 or 64 bit code. Any other width decodes
// 64 bit code.
func New(bits int, syntax Syntax) *Decoder {
	if bits != 32 && bits != 16 {
		bits = 64
	}
	return &Decoder{bits: bits, syntax: syntax}
}

func (d *Decoder) Decode(buf []byte, addr uint64) (console.Instruction, bool) {
	if len(buf) == 0 {
		return console.Instruction{}, false
	}
	inst, err := x86asm.Decode(buf, d.bits)
	// A truncated instruction decodes as a bare prefix with no opcode.
	if err != nil || inst.Op == 0 || inst.Len == 0 || inst.Len > len(buf) {
		return console.Instruction{}, false
	}

	ret := console.Instruction{
		Text: d.text(inst, addr),
		Hex:  hex.EncodeToString(buf[:inst.Len]),
		Len:  inst.Len,
	}
	ret.Target, ret.HasTarget = target(&inst, addr)
	return ret, true
}

func (d *Decoder) text(inst x86asm.Inst, pc uint64) string {
	switch d.syntax {
	case IntelSyntax:
		return x86asm.IntelSyntax(inst, pc, nil)
	case GoSyntax:
		return x86asm.GoSyntax(inst, pc, nil)
	}
	return x86asm.GNUSyntax(inst, pc, nil)
}

// target returns the absolute address an instruction refers to: the
// destination of a relative branch, a rip-relative memory operand, or the
// immediate of a direct far call or jump.
func target(inst *x86asm.Inst, pc uint64) (uint64, bool) {
	next := pc + uint64(inst.Len)
	for _, a := range inst.Args {
		switch arg := a.(type) {
		case nil:
			return 0, false
		case x86asm.Rel:
			return uint64(int64(next) + int64(arg)), true
		case x86asm.Mem:
			if arg.Base == x86asm.RIP && arg.Index == 0 {
				return uint64(int64(next) + arg.Disp), true
			}
		case x86asm.Imm:
			switch inst.Op {
			case x86asm.CALL, x86asm.LCALL, x86asm.JMP, x86asm.LJMP:
				return uint64(arg), true
			}
		}
	}
	return 0, false
}
