package console

import (
	"encoding/binary"
	"fmt"
	"strings"
)

func (c *Console) readWord(addr uint64) (uint64, bool) {
	var buf [8]byte
	ws := c.state.wordSize()
	if addr+uint64(ws)-1 < addr {
		return 0, false
	}
	n, err := c.mem.ReadVirtualRegion(c.state.space(), addr, buf[:ws])
	if err != nil || n != ws {
		return 0, false
	}
	if ws == 4 {
		return uint64(binary.LittleEndian.Uint32(buf[:4])), true
	}
	return binary.LittleEndian.Uint64(buf[:]), true
}

// t [n]
//
// Walks the saved frame pointer chain starting at RBP. The return address of
// a frame sits one word above the saved frame pointer. The walk ends at the
// first unreadable slot, at the top of the address space, after n frames (0 means no limit) or when the screen
// is full. Nothing guards against cycles besides those bounds.
func (c *Console) cmdBacktrace(cmd *Command) {
	c.out.Reset()

	var limit uint64
	if cmd.NArgs > 0 {
		var ok bool
		limit, ok = ParseNumber(cmd.Arg(0))
		if !ok {
			c.out.Errorf("Invalid stack frames number parameter!")
			return
		}
	}

	ws := uint64(c.state.wordSize())
	frame := c.state.Ctx.Rbp
	for n := 0; n < c.out.Rows(); n++ {
		if limit != 0 && uint64(n) >= limit {
			break
		}

		if frame+ws < frame {
			break
		}
		ret, ok := c.readWord(frame + ws)
		if !ok {
			break
		}

		var sym, mod string
		fi := c.intro.ResolveFrame(c.state.space(), ret)
		if fi.Symbol != "" {
			sym = fmt.Sprintf("(%s+%d)", fi.Symbol, fi.Offset)
		}
		if fi.Module != "" {
			mod = "[" + fi.Module + "]"
		}
		line := fmt.Sprintf("[%02d] @%08x %08x %-40s %s", n, frame, ret, sym, mod)
		c.out.Printf(n, "%s", strings.TrimRight(line, " "))

		next, ok := c.readWord(frame)
		if !ok {
			break
		}
		frame = next
	}
}
