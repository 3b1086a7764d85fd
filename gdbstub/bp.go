package gdbstub

import (
	"hvDbg/console"
)

const DefaultMaxBreakpoints = 32

type bpStub interface {
	InsertBreakpoint(addr uint64) error
	RemoveBreakpoint(addr uint64) error
}

type breakpoint struct {
	space uint64
	addr  uint64
	used  bool
}

// Breakpoints is a fixed-size table of software breakpoints planted with
// Z0. Ids are slot indexes; a freed slot is reused by the next set.
type Breakpoints struct {
	stub  bpStub
	slots []breakpoint
}

func NewBreakpoints(stub bpStub, max int) *Breakpoints {
	if max <= 0 {
		max = DefaultMaxBreakpoints
	}
	return &Breakpoints{stub: stub, slots: make([]breakpoint, max)}
}

func (b *Breakpoints) find(space, addr uint64) int {
	for i, bp := range b.slots {
		if bp.used && bp.space == space && bp.addr == addr {
			return i
		}
	}
	return -1
}

func (b *Breakpoints) SetBreakpoint(space, addr uint64) (int, error) {
	if i := b.find(space, addr); i >= 0 {
		return i, nil
	}
	free := -1
	for i := range b.slots {
		if !b.slots[i].used {
			free = i
			break
		}
	}
	if free < 0 {
		return 0, console.ErrNoBreakpointSlot
	}
	if !b.planted(addr, -1) {
		if err := b.stub.InsertBreakpoint(addr); err != nil {
			return 0, err
		}
	}
	b.slots[free] = breakpoint{space: space, addr: addr, used: true}
	return free, nil
}

// planted reports whether a slot other than skip holds addr. The stub knows
// nothing about address spaces, so one Z0 serves every space.
func (b *Breakpoints) planted(addr uint64, skip int) bool {
	for i, bp := range b.slots {
		if i != skip && bp.used && bp.addr == addr {
			return true
		}
	}
	return false
}

func (b *Breakpoints) remove(i int) bool {
	bp := b.slots[i]
	if !b.planted(bp.addr, i) {
		if err := b.stub.RemoveBreakpoint(bp.addr); err != nil {
			return false
		}
	}
	b.slots[i] = breakpoint{}
	return true
}

func (b *Breakpoints) DeleteBreakpointByID(space uint64, id int) bool {
	if id < 0 || id >= len(b.slots) {
		return false
	}
	if bp := b.slots[id]; !bp.used || bp.space != space {
		return false
	}
	return b.remove(id)
}

func (b *Breakpoints) DeleteBreakpointByAddress(space, addr uint64) bool {
	i := b.find(space, addr)
	if i < 0 {
		return false
	}
	return b.remove(i)
}

// Len returns the number of planted breakpoints.
func (b *Breakpoints) Len() int {
	n := 0
	for _, bp := range b.slots {
		if bp.used {
			n++
		}
	}
	return n
}
