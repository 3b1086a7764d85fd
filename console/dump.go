package console

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	dumpWordsPerRow = 8
	dumpWordSize    = 4
	dumpCellWidth   = 9
	dumpPlaceholder = "????????"
)

func (c *Console) reportResolveError(kind resolveError) {
	if kind == badRegister {
		c.out.Errorf("Invalid register!")
		return
	}
	c.out.Errorf("Invalid addr parameter!")
}

func (c *Console) reportInvalidAddress(addr uint64) {
	c.log.Debugf("invalid memory address: %#x", addr)
	c.out.Errorf("Invalid memory address!")
}

// x addr|$reg [count]
func (c *Console) cmdDumpMemory(cmd *Command) {
	c.out.Reset()
	if cmd.NArgs == 0 {
		c.out.Errorf("addr parameter missing!")
		return
	}

	n := uint64(1)
	if cmd.NArgs >= 2 {
		v, ok := ParseNumber(cmd.Arg(1))
		if !ok || v == 0 {
			c.out.Errorf("Invalid size parameter!")
			return
		}
		n = v
	}

	base, kind, ok := c.resolveValue(cmd.Arg(0))
	if !ok {
		c.reportResolveError(kind)
		return
	}

	if !c.mem.IsAddressValid(c.state.space(), base) {
		c.reportInvalidAddress(base)
		return
	}

	// Words that would land below the last row are never read.
	if max := uint64(c.out.Rows() * dumpWordsPerRow); n > max {
		n = max
	}
	// The dump ends at the top of the address space.
	if room := (math.MaxUint64-base)/dumpWordSize + 1; n > room {
		n = room
	}

	// The label column is as wide as the widest label, 10 for 32-bit
	// addresses.
	labelWidth := len(fmt.Sprintf("%08x->", base+(n-1)*dumpWordSize))

	var word [dumpWordSize]byte
	for i := uint64(0); i < n; i++ {
		y := int(i / dumpWordsPerRow)
		col := int(i % dumpWordsPerRow)
		addr := base + i*dumpWordSize

		if col == 0 {
			c.out.WriteAt(y, 0, fmt.Sprintf("%08x->", addr))
		}

		cell := dumpPlaceholder
		if addr+dumpWordSize-1 < addr {
			c.out.WriteAt(y, labelWidth+col*dumpCellWidth, cell)
			continue
		}
		if got, err := c.mem.ReadVirtualRegion(c.state.space(), addr, word[:]); err == nil && got == dumpWordSize {
			cell = fmt.Sprintf("%08x", binary.LittleEndian.Uint32(word[:]))
		}
		c.out.WriteAt(y, labelWidth+col*dumpCellWidth, cell)
	}
}
