package gdbstub

import (
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeServer is a minimal in-process RSP server backed by sparse memory.
type fakeServer struct {
	c  net.Conn
	rd *bufio.Reader

	mu      sync.Mutex
	packets []string
	mem     map[uint64]byte
	regs    []byte
	ctrl    map[int]uint64

	// autoStop answers 'c' immediately; otherwise the target runs until
	// interrupted.
	autoStop bool
	stop     string
	running  bool
}

func newFakeServer(t *testing.T) (*fakeServer, *Stub) {
	client, server := net.Pipe()
	f := &fakeServer{
		c:        server,
		rd:       bufio.NewReader(server),
		mem:      make(map[uint64]byte),
		regs:     make([]byte, gMinLen+5*4),
		ctrl:     make(map[int]uint64),
		autoStop: true,
		stop:     "T05thread:01;",
	}
	go f.serve()

	s, err := NewStub(client)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		s.w.close()
		client.Close()
		server.Close()
	})
	return f, s
}

func (f *fakeServer) write(data string) {
	fmt.Fprintf(f.c, "$%s#%02x", data, checksum(data))
}

func (f *fakeServer) serve() {
	for {
		b, err := f.rd.ReadByte()
		if err != nil {
			return
		}
		switch b {
		case '$':
		case interruptByte:
			f.mu.Lock()
			running := f.running
			f.running = false
			f.mu.Unlock()
			if running {
				f.write("T02thread:01;")
			}
			continue
		default:
			continue
		}

		body, err := f.rd.ReadString('#')
		if err != nil {
			return
		}
		var sum [2]byte
		if _, err := f.rd.Read(sum[:1]); err != nil {
			return
		}
		if _, err := f.rd.Read(sum[1:]); err != nil {
			return
		}
		f.c.Write([]byte{'+'})

		if reply, ok := f.handle(strings.TrimSuffix(body, "#")); ok {
			f.write(reply)
		}
	}
}

func (f *fakeServer) handle(pkt string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packets = append(f.packets, pkt)

	switch pkt[0] {
	case '?':
		return f.stop, true
	case 'g':
		return hex.EncodeToString(f.regs), true
	case 'p':
		n, _ := strconv.ParseUint(pkt[1:], 16, 32)
		v, ok := f.ctrl[int(n)]
		if !ok {
			return "", true
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		return hex.EncodeToString(buf[:]), true
	case 'P':
		eq := strings.IndexByte(pkt, '=')
		n, _ := strconv.ParseUint(pkt[1:eq], 16, 32)
		val, _ := hex.DecodeString(pkt[eq+1:])
		if n == RegEflags {
			copy(f.regs[gOffEflags:], val)
		}
		return "OK", true
	case 'm':
		var addr, size uint64
		fmt.Sscanf(pkt[1:], "%x,%x", &addr, &size)
		buf := make([]byte, size)
		for i := range buf {
			b, ok := f.mem[addr+uint64(i)]
			if !ok {
				return "E14", true
			}
			buf[i] = b
		}
		return hex.EncodeToString(buf), true
	case 'Z', 'z', 'D':
		return "OK", true
	case 's':
		return "T05thread:01;", true
	case 'c':
		if f.autoStop {
			return f.stop, true
		}
		f.running = true
		return "", false
	}
	return "", true
}

func (f *fakeServer) setMem(addr uint64, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range data {
		f.mem[addr+uint64(i)] = b
	}
}

func (f *fakeServer) setGpr(reg int, v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	binary.LittleEndian.PutUint64(f.regs[reg*8:], v)
}

func (f *fakeServer) setEflags(v uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	binary.LittleEndian.PutUint32(f.regs[gOffEflags:], v)
}

func (f *fakeServer) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.packets...)
}

func (f *fakeServer) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packets = nil
}
