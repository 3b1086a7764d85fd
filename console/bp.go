package console

import (
	"errors"
	"math"
	"strings"
)

// b addr|$symbol
func (c *Console) cmdSetBreakpoint(cmd *Command) {
	c.out.Reset()
	if cmd.NArgs == 0 {
		c.out.Errorf("parameter missing!")
		return
	}

	var addr uint64
	arg := cmd.Arg(0)
	if strings.HasPrefix(arg, "$") {
		// Symbols are trusted and skip the translator.
		sym, ok := c.syms.LookupName(arg[1:])
		if !ok {
			c.log.Debugf("undefined symbol %q", arg[1:])
			c.out.Errorf("Undefined symbol %s!", arg[1:])
			return
		}
		addr = sym.Addr + c.state.KernelBase
	} else {
		var ok bool
		addr, ok = ParseNumber(arg)
		if !ok {
			c.out.Errorf("Invalid addr parameter!")
			return
		}
		if !c.mem.IsAddressValid(c.state.space(), addr) {
			c.reportInvalidAddress(addr)
			return
		}
	}

	id, err := c.bps.SetBreakpoint(c.state.space(), addr)
	if err != nil {
		if errors.Is(err, ErrNoBreakpointSlot) {
			c.out.Errorf("Unable to set bp: no free slot")
		} else {
			c.log.Errorf("set breakpoint at %#x: %v", addr, err)
			c.out.Errorf("Unable to set bp @ 0x%08x: %v", addr, err)
		}
		return
	}
	c.out.Printf(0, "Set bp #%d @ 0x%08x", id, addr)
}

// D addr|$id
func (c *Console) cmdDeleteBreakpoint(cmd *Command) {
	c.out.Reset()
	if cmd.NArgs == 0 {
		c.out.Errorf("Parameter missing!")
		return
	}

	arg := cmd.Arg(0)
	if strings.HasPrefix(arg, "$") {
		v, ok := ParseNumber(arg[1:])
		if !ok || v > math.MaxInt32 {
			c.out.Errorf("Invalid bp id!")
			return
		}
		id := int(v)
		if !c.bps.DeleteBreakpointByID(c.state.space(), id) {
			c.out.Errorf("Bp #%d not found!", id)
			return
		}
		c.out.Printf(0, "Deleted bp #%d!", id)
		return
	}

	addr, ok := ParseNumber(arg)
	if !ok {
		c.out.Errorf("Invalid addr parameter!")
		return
	}
	if !c.mem.IsAddressValid(c.state.space(), addr) {
		c.reportInvalidAddress(addr)
		return
	}
	if !c.bps.DeleteBreakpointByAddress(c.state.space(), addr) {
		c.out.Errorf("Bp @%08x not found!", addr)
		return
	}
	c.out.Printf(0, "Bp @%08x deleted!", addr)
}
