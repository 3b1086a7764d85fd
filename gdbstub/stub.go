package gdbstub

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"hvDbg/logflags"
)

// maxMemChunk bounds the payload of one m/M packet; QEMU's packet buffer is
// 4096 bytes and every byte costs two hex digits.
const maxMemChunk = 0x800

var (
	ErrStub         = errors.New("stub returned an error")
	ErrNotSupported = errors.New("packet not supported by stub")
	ErrTargetExited = errors.New("target exited")
	ErrMalformed    = errors.New("malformed reply")
)

// StopReply is a parsed S/T/W/X packet.
type StopReply struct {
	Kind   byte
	Signal int
	Raw    string
}

// Exited reports whether the target is gone.
func (r StopReply) Exited() bool {
	return r.Kind == 'W' || r.Kind == 'X'
}

func parseStopReply(pkt string) (StopReply, error) {
	if len(pkt) < 3 {
		return StopReply{}, fmt.Errorf("%w: stop reply %q", ErrMalformed, pkt)
	}
	switch pkt[0] {
	case 'S', 'T', 'W', 'X':
	default:
		return StopReply{}, fmt.Errorf("%w: stop reply %q", ErrMalformed, pkt)
	}
	sig, err := strconv.ParseUint(pkt[1:3], 16, 8)
	if err != nil {
		return StopReply{}, fmt.Errorf("%w: stop reply %q", ErrMalformed, pkt)
	}
	return StopReply{Kind: pkt[0], Signal: int(sig), Raw: pkt}, nil
}

func checkOK(resp string) error {
	switch {
	case resp == "OK":
		return nil
	case resp == "":
		return ErrNotSupported
	case resp[0] == 'E':
		return fmt.Errorf("%w: %s", ErrStub, resp)
	}
	return fmt.Errorf("%w: %q", ErrMalformed, resp)
}

// Stub is a client for a GDB remote serial protocol server such as the one
// built into QEMU. All packet exchanges are serialized on one goroutine; only
// Interrupt bypasses it.
type Stub struct {
	conn *conn
	w    *worker
	log  *logrus.Entry
}

// Dial connects to addr ("host:port").
func Dial(ctx context.Context, addr string) (*Stub, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return NewStub(c)
}

// NewStub takes ownership of c.
func NewStub(c net.Conn) (*Stub, error) {
	s := &Stub{
		conn: newConn(c),
		w:    newWorker(),
		log:  logflags.GdbWireLogger(),
	}
	if err := s.conn.write([]byte{'+'}); err != nil {
		s.w.close()
		c.Close()
		return nil, err
	}
	return s, nil
}

// Close detaches from the target, leaving it running, and drops the
// connection.
func (s *Stub) Close() error {
	err := doErr(s.w, func() error {
		resp, err := s.conn.request("D")
		if err != nil {
			return err
		}
		return checkOK(resp)
	})
	s.w.close()
	if cerr := s.conn.close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Stub) request(data string) (string, error) {
	return do(s.w, func() (string, error) {
		return s.conn.request(data)
	})
}

// ReadMemory reads guest virtual memory through the current address space.
// It returns the number of bytes read; a short count comes with an error.
func (s *Stub) ReadMemory(addr uint64, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		chunk := len(buf) - n
		if chunk > maxMemChunk {
			chunk = maxMemChunk
		}
		resp, err := s.request(fmt.Sprintf("m%x,%x", addr+uint64(n), chunk))
		if err != nil {
			return n, err
		}
		if resp == "" || resp[0] == 'E' {
			return n, fmt.Errorf("%w: read %#x: %s", ErrStub, addr+uint64(n), resp)
		}
		data, err := hex.DecodeString(resp)
		if err != nil {
			return n, fmt.Errorf("failed to decode memory: %w", err)
		}
		n += copy(buf[n:], data)
		if len(data) < chunk {
			return n, fmt.Errorf("%w: short read at %#x", ErrStub, addr+uint64(n))
		}
	}
	return n, nil
}

// ReadRegisters returns the raw 'g' register block.
func (s *Stub) ReadRegisters() ([]byte, error) {
	resp, err := s.request("g")
	if err != nil {
		return nil, err
	}
	if resp == "" || resp[0] == 'E' {
		return nil, fmt.Errorf("%w: g: %s", ErrStub, resp)
	}
	// Unavailable registers are sent as "xx".
	data, err := hex.DecodeString(strings.ReplaceAll(resp, "xx", "00"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode registers: %w", err)
	}
	return data, nil
}

func (s *Stub) ReadRegister(num int) ([]byte, error) {
	resp, err := s.request(fmt.Sprintf("p%x", num))
	if err != nil {
		return nil, err
	}
	if resp == "" {
		return nil, ErrNotSupported
	}
	if resp[0] == 'E' {
		return nil, fmt.Errorf("%w: p%x: %s", ErrStub, num, resp)
	}
	data, err := hex.DecodeString(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to decode register %d: %w", num, err)
	}
	return data, nil
}

// WriteRegister stores val, already in target byte order and width.
func (s *Stub) WriteRegister(num int, val []byte) error {
	resp, err := s.request(fmt.Sprintf("P%x=%s", num, hex.EncodeToString(val)))
	if err != nil {
		return err
	}
	if err := checkOK(resp); err != nil {
		return fmt.Errorf("failed to set register %d: %w", num, err)
	}
	return nil
}

func (s *Stub) InsertBreakpoint(addr uint64) error {
	resp, err := s.request(fmt.Sprintf("Z0,%x,1", addr))
	if err != nil {
		return err
	}
	return checkOK(resp)
}

func (s *Stub) RemoveBreakpoint(addr uint64) error {
	resp, err := s.request(fmt.Sprintf("z0,%x,1", addr))
	if err != nil {
		return err
	}
	return checkOK(resp)
}

// Halted asks why the target stopped.
func (s *Stub) Halted() (StopReply, error) {
	resp, err := s.request("?")
	if err != nil {
		return StopReply{}, err
	}
	return parseStopReply(resp)
}

// Continue resumes the target and waits for it to stop. Cancelling ctx
// interrupts the target; the call still returns the resulting stop reply.
func (s *Stub) Continue(ctx context.Context) (StopReply, error) {
	return s.resume(ctx, "c")
}

func (s *Stub) Step(ctx context.Context) (StopReply, error) {
	return s.resume(ctx, "s")
}

func (s *Stub) resume(ctx context.Context, pkt string) (StopReply, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := s.Interrupt(); err != nil {
				s.log.Debugf("interrupt after cancel: %v", err)
			}
		case <-done:
		}
	}()

	return do(s.w, func() (StopReply, error) {
		if err := s.conn.send(pkt); err != nil {
			return StopReply{}, err
		}
		for {
			resp, err := s.conn.recv(0)
			if err != nil {
				return StopReply{}, err
			}
			// Console output from the stub while the target runs.
			if len(resp) > 0 && resp[0] == 'O' && resp != "OK" {
				continue
			}
			reply, err := parseStopReply(resp)
			if err != nil {
				return StopReply{}, err
			}
			if reply.Exited() {
				return reply, ErrTargetExited
			}
			return reply, nil
		}
	})
}

// Interrupt stops a running target. The stop reply is collected by the
// pending Continue or Step.
func (s *Stub) Interrupt() error {
	if err := s.conn.interrupt(); err != nil {
		return fmt.Errorf("failed to send interrupt: %w", err)
	}
	return nil
}

