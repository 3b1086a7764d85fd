package console

import (
	"encoding/binary"
	"errors"
)

var errUnmapped = errors.New("unmapped")

// fakeMemory is a sparse byte-addressed guest memory. An address is valid if
// a byte is stored there.
type fakeMemory struct {
	bytes       map[uint64]byte
	reads       int
	validations int
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{bytes: map[uint64]byte{}}
}

func (m *fakeMemory) write(addr uint64, data []byte) {
	for i, b := range data {
		m.bytes[addr+uint64(i)] = b
	}
}

func (m *fakeMemory) write32(addr uint64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	m.write(addr, buf[:])
}

func (m *fakeMemory) write64(addr uint64, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	m.write(addr, buf[:])
}

func (m *fakeMemory) IsAddressValid(space, addr uint64) bool {
	m.validations++
	_, ok := m.bytes[addr]
	return ok
}

func (m *fakeMemory) ReadVirtualRegion(space, addr uint64, buf []byte) (int, error) {
	m.reads++
	for i := range buf {
		b, ok := m.bytes[addr+uint64(i)]
		if !ok {
			return i, errUnmapped
		}
		buf[i] = b
	}
	return len(buf), nil
}

type bpKey struct {
	space, addr uint64
}

type fakeBreakpoints struct {
	capacity int
	nextID   int
	byID     map[int]bpKey
	sets     int
}

func newFakeBreakpoints(capacity int) *fakeBreakpoints {
	return &fakeBreakpoints{capacity: capacity, byID: map[int]bpKey{}}
}

func (b *fakeBreakpoints) SetBreakpoint(space, addr uint64) (int, error) {
	b.sets++
	if len(b.byID) >= b.capacity {
		return 0, ErrNoBreakpointSlot
	}
	id := b.nextID
	b.nextID++
	b.byID[id] = bpKey{space, addr}
	return id, nil
}

func (b *fakeBreakpoints) DeleteBreakpointByID(space uint64, id int) bool {
	k, ok := b.byID[id]
	if !ok || k.space != space {
		return false
	}
	delete(b.byID, id)
	return true
}

func (b *fakeBreakpoints) DeleteBreakpointByAddress(space, addr uint64) bool {
	for id, k := range b.byID {
		if k == (bpKey{space, addr}) {
			delete(b.byID, id)
			return true
		}
	}
	return false
}

// fakeSymbols holds module-relative symbols and answers absolute queries.
type fakeSymbols struct {
	base uint64
	syms []Symbol
}

func (s *fakeSymbols) LookupExact(addr uint64) (*Symbol, bool) {
	for i := range s.syms {
		if s.syms[i].Addr+s.base == addr {
			return &s.syms[i], true
		}
	}
	return nil, false
}

func (s *fakeSymbols) LookupNearest(addr uint64) (*Symbol, bool) {
	var best *Symbol
	for i := range s.syms {
		abs := s.syms[i].Addr + s.base
		if abs <= addr && (best == nil || abs > best.Addr+s.base) {
			best = &s.syms[i]
		}
	}
	return best, best != nil
}

func (s *fakeSymbols) LookupName(name string) (*Symbol, bool) {
	for i := range s.syms {
		if s.syms[i].Name == name {
			return &s.syms[i], true
		}
	}
	return nil, false
}

// fakeDecoder replays instructions keyed by address.
type fakeDecoder map[uint64]Instruction

func (d fakeDecoder) Decode(buf []byte, addr uint64) (Instruction, bool) {
	inst, ok := d[addr]
	if !ok || inst.Len > len(buf) {
		return Instruction{}, false
	}
	return inst, true
}

// fakeEnum serves records from slices and fails with err once failAt records
// have been returned (failAt < 0 never fails).
type fakeEnum struct {
	procs  []ProcessRecord
	mods   []ModuleRecord
	socks  []SocketRecord
	failAt int
	err    error
}

func (e *fakeEnum) index(prevNext uint64, prevNil bool, n int) (int, error) {
	idx := 0
	if !prevNil {
		idx = int(prevNext)
	}
	if e.failAt >= 0 && idx >= e.failAt {
		return 0, e.err
	}
	if idx >= n {
		return 0, ErrEndOfData
	}
	return idx, nil
}

func (e *fakeEnum) NextProcess(space uint64, prev *ProcessRecord) (ProcessRecord, error) {
	var next uint64
	if prev != nil {
		next = prev.Next
	}
	i, err := e.index(next, prev == nil, len(e.procs))
	if err != nil {
		return ProcessRecord{}, err
	}
	r := e.procs[i]
	r.Next = uint64(i + 1)
	return r, nil
}

func (e *fakeEnum) NextModule(space uint64, prev *ModuleRecord) (ModuleRecord, error) {
	var next uint64
	if prev != nil {
		next = prev.Next
	}
	i, err := e.index(next, prev == nil, len(e.mods))
	if err != nil {
		return ModuleRecord{}, err
	}
	r := e.mods[i]
	r.Next = uint64(i + 1)
	return r, nil
}

func (e *fakeEnum) NextSocket(space uint64, prev *SocketRecord) (SocketRecord, error) {
	var next uint64
	if prev != nil {
		next = prev.Next
	}
	i, err := e.index(next, prev == nil, len(e.socks))
	if err != nil {
		return SocketRecord{}, err
	}
	r := e.socks[i]
	r.Next = uint64(i + 1)
	return r, nil
}

type fakeSink struct {
	refreshes int
	last      []string
	color     Color
}

func (s *fakeSink) Refresh(out *OutputBuffer) {
	s.refreshes++
	s.last = out.Lines()
	s.color = out.Color
}

const testKernelBase = 0xffffffff81000000

type testRig struct {
	con   *Console
	state *State
	mem   *fakeMemory
	bps   *fakeBreakpoints
	syms  *fakeSymbols
	dec   fakeDecoder
	enum  *fakeEnum
	sink  *fakeSink
}

func newTestRig() *testRig {
	r := &testRig{
		state: &State{
			Ctx:        &GuestContext{Cr3: 0x1aa000},
			KernelBase: testKernelBase,
			WordSize:   8,
		},
		mem:  newFakeMemory(),
		bps:  newFakeBreakpoints(4),
		syms: &fakeSymbols{base: testKernelBase},
		dec:  fakeDecoder{},
		enum: &fakeEnum{failAt: -1},
		sink: &fakeSink{},
	}
	r.con = New(r.state, Config{
		Memory:      r.mem,
		Breakpoints: r.bps,
		Symbols:     r.syms,
		Decoder:     r.dec,
		Processes:   r.enum,
		Modules:     r.enum,
		Sockets:     r.enum,
		Sink:        r.sink,
		Version:     "test",
	})
	return r
}

func (r *testRig) run(line string) bool {
	return r.con.ProcessCommand(line)
}

func (r *testRig) line(y int) string {
	return r.con.Output().Line(y)
}
