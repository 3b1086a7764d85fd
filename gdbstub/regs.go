package gdbstub

import (
	"encoding/binary"
	"fmt"

	"hvDbg/console"
)

// Register numbers of QEMU's x86_64 target description.
const (
	RegRax = iota
	RegRbx
	RegRcx
	RegRdx
	RegRsi
	RegRdi
	RegRbp
	RegRsp
	RegR8
	RegR9
	RegR10
	RegR11
	RegR12
	RegR13
	RegR14
	RegR15
	RegRip
	RegEflags
	RegCs
	RegSs
	RegDs
	RegEs
	RegFs
	RegGs
)

const (
	RegCr0 = 60
	RegCr2 = 61
	RegCr3 = 62
	RegCr4 = 63
)

// Offsets into the 'g' block. Segment selectors and eflags are 32 bits wide.
const (
	gOffRip    = 16 * 8
	gOffEflags = gOffRip + 8
	gOffCs     = gOffEflags + 4
	gMinLen    = gOffCs + 4
)

// Regs is the full general purpose register file.
type Regs struct {
	Gpr    [16]uint64
	Rip    uint64
	Eflags uint32
	Cs     uint32
}

func parseRegs(data []byte) (*Regs, error) {
	if len(data) < gMinLen {
		return nil, fmt.Errorf("%w: insufficient register data: got %d bytes, need at least %d",
			ErrMalformed, len(data), gMinLen)
	}
	r := &Regs{}
	for i := range r.Gpr {
		r.Gpr[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	r.Rip = binary.LittleEndian.Uint64(data[gOffRip:])
	r.Eflags = binary.LittleEndian.Uint32(data[gOffEflags:])
	r.Cs = binary.LittleEndian.Uint32(data[gOffCs:])
	return r, nil
}

// GetRegs reads and decodes the 'g' block.
func (s *Stub) GetRegs() (*Regs, error) {
	data, err := s.ReadRegisters()
	if err != nil {
		return nil, err
	}
	return parseRegs(data)
}

// controlRegister reads a control register. Older QEMU builds do not expose
// them; a missing register reads as zero.
func (s *Stub) controlRegister(num int) uint64 {
	data, err := s.ReadRegister(num)
	if err != nil {
		s.log.Debugf("control register %d unavailable: %v", num, err)
		return 0
	}
	var buf [8]byte
	copy(buf[:], data)
	return binary.LittleEndian.Uint64(buf[:])
}

// Capture fills ctx from the stopped target.
func (s *Stub) Capture(ctx *console.GuestContext) error {
	r, err := s.GetRegs()
	if err != nil {
		return fmt.Errorf("failed to read registers: %w", err)
	}
	*ctx = console.GuestContext{
		Rax:       r.Gpr[RegRax],
		Rbx:       r.Gpr[RegRbx],
		Rcx:       r.Gpr[RegRcx],
		Rdx:       r.Gpr[RegRdx],
		Rsp:       r.Gpr[RegRsp],
		Rbp:       r.Gpr[RegRbp],
		Rsi:       r.Gpr[RegRsi],
		Rdi:       r.Gpr[RegRdi],
		Rip:       r.Rip,
		ResumeRip: r.Rip,
		Rflags:    uint64(r.Eflags),
		Cs:        uint16(r.Cs),
	}
	ctx.Cr0 = s.controlRegister(RegCr0)
	ctx.Cr3 = s.controlRegister(RegCr3)
	ctx.Cr4 = s.controlRegister(RegCr4)
	return nil
}

func (s *Stub) SetEflags(v uint64) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return s.WriteRegister(RegEflags, buf[:])
}
