package console

import (
	"fmt"
	"strings"
)

// DisasWindow is how many bytes are fetched ahead of the first instruction.
const DisasWindow = 128

// d [addr]
func (c *Console) cmdDisassemble(cmd *Command) {
	c.out.Reset()

	var addr uint64
	if cmd.NArgs == 0 {
		addr = c.state.Ctx.Rip
		if !c.mem.IsAddressValid(c.state.space(), addr) {
			c.log.Debugf("rip is not valid: %#x", addr)
			c.out.Errorf("Invalid RIP!")
			return
		}
	} else {
		var ok bool
		addr, ok = ParseNumber(cmd.Arg(0))
		if !ok {
			c.out.Errorf("Invalid addr parameter!")
			return
		}
		if !c.mem.IsAddressValid(c.state.space(), addr) {
			c.reportInvalidAddress(addr)
			return
		}
	}

	if c.dec == nil {
		c.out.Errorf("No disassembler available!")
		return
	}

	var window [DisasWindow]byte
	n, err := c.mem.ReadVirtualRegion(c.state.space(), addr, window[:])
	if n <= 0 {
		c.log.Debugf("read of %#x failed: %v", addr, err)
		c.out.Errorf("Unable to read memory @%08x!", addr)
		return
	}
	if n > DisasWindow {
		n = DisasWindow
	}
	buf := window[:n]

	pc := addr
	for y, off := 0, 0; y < c.out.Rows() && off < len(buf); y++ {
		inst, ok := c.dec.Decode(buf[off:], pc)
		if !ok || inst.Len <= 0 {
			break
		}

		line := fmt.Sprintf("%08x: %-24s %s", pc, inst.Hex, inst.Text)
		if target, ok := instructionTarget(inst); ok {
			if sym, found := c.syms.LookupExact(target); found {
				line += fmt.Sprintf(" <%s>", sym.Name)
			}
		}
		c.out.Printf(y, "%s", line)

		off += inst.Len
		pc += uint64(inst.Len)
	}
}

func instructionTarget(inst Instruction) (uint64, bool) {
	if inst.HasTarget {
		return inst.Target, true
	}
	return annotateOperand(inst.Text)
}

// annotateOperand guesses whether rendered instruction text ends with an
// absolute address: the last blank-separated token has to be a 0x literal of
// exactly 8 or 16 hex digits. This is a heuristic, it says nothing about the
// operand's actual kind.
func annotateOperand(text string) (uint64, bool) {
	text = strings.TrimRight(text, " \t")
	i := strings.LastIndexAny(text, " \t")
	if i < 0 {
		// A bare mnemonic has no operand.
		return 0, false
	}
	tok := text[i+1:]
	if !strings.HasPrefix(tok, "0x") {
		return 0, false
	}
	if digits := len(tok) - 2; digits != 8 && digits != 16 {
		return 0, false
	}
	return ParseNumber(tok)
}
