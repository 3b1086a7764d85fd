package console

func (c *Console) symbolArg(cmd *Command) (uint64, bool) {
	c.out.Reset()
	if cmd.NArgs == 0 {
		c.out.Errorf("addr parameter missing!")
		return 0, false
	}
	addr, ok := ParseNumber(cmd.Arg(0))
	if !ok {
		c.out.Errorf("Invalid addr parameter!")
		return 0, false
	}
	return addr, true
}

// S addr
func (c *Console) cmdLookupSymbolExact(cmd *Command) {
	addr, ok := c.symbolArg(cmd)
	if !ok {
		return
	}
	if sym, found := c.syms.LookupExact(addr); found {
		c.out.Printf(0, "%08x: %s", addr, sym.Name)
		return
	}
	c.out.Printf(0, "No symbol defined for %08x", addr)
}

// n addr
func (c *Console) cmdLookupSymbolNearest(cmd *Command) {
	addr, ok := c.symbolArg(cmd)
	if !ok {
		return
	}
	if sym, found := c.syms.LookupNearest(addr); found {
		c.out.Printf(0, "Nearest symbol smaller than %08x: %s (@%08x)", addr, sym.Name, sym.Addr+c.state.KernelBase)
		return
	}
	c.out.Printf(0, "No symbol found!")
}
