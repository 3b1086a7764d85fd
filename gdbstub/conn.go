package gdbstub

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"hvDbg/logflags"
)

const (
	ackTimeout   = 2 * time.Second
	replyTimeout = 5 * time.Second
	sendRetries  = 3

	interruptByte = 0x03
)

var (
	ErrChecksum = errors.New("packet checksum mismatch")
	ErrNoAck    = errors.New("stub did not acknowledge packet")
)

// conn frames remote serial protocol packets over a stream.
type conn struct {
	c   net.Conn
	rd  *bufio.Reader
	wmu sync.Mutex

	log *logrus.Entry
}

func newConn(c net.Conn) *conn {
	return &conn{
		c:   c,
		rd:  bufio.NewReader(c),
		log: logflags.GdbWireLogger(),
	}
}

func checksum(data string) byte {
	var sum byte
	for i := 0; i < len(data); i++ {
		sum += data[i]
	}
	return sum
}

func escape(data string) string {
	if !strings.ContainsAny(data, "$#}*") {
		return data
	}
	var b strings.Builder
	for i := 0; i < len(data); i++ {
		switch ch := data[i]; ch {
		case '$', '#', '}', '*':
			b.WriteByte('}')
			b.WriteByte(ch ^ 0x20)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// unescape undoes binary escapes and run-length encoding.
func unescape(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '}':
			i++
			if i >= len(data) {
				return nil, errors.New("truncated escape")
			}
			out = append(out, data[i]^0x20)
		case '*':
			i++
			if i >= len(data) || len(out) == 0 {
				return nil, errors.New("malformed run length encoding")
			}
			n := int(data[i]) - 29
			last := out[len(out)-1]
			for ; n > 0; n-- {
				out = append(out, last)
			}
		default:
			out = append(out, data[i])
		}
	}
	return out, nil
}

func (c *conn) write(b []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.c.Write(b)
	return err
}

func (c *conn) send(data string) error {
	body := escape(data)
	packet := fmt.Sprintf("$%s#%02x", body, checksum(body))
	if logflags.GdbWire() {
		c.log.Debugf("-> %s", packet)
	}

	for retry := 0; retry < sendRetries; retry++ {
		if err := c.write([]byte(packet)); err != nil {
			return err
		}

		c.c.SetReadDeadline(time.Now().Add(ackTimeout))
		ack, err := c.rd.ReadByte()
		c.c.SetReadDeadline(time.Time{})
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() && retry < sendRetries-1 {
				continue
			}
			return fmt.Errorf("failed to read ack: %w", err)
		}

		switch ack {
		case '+':
			return nil
		case '-':
			continue
		default:
			// No-ack mode or a reply racing the ack; leave it for recv.
			c.rd.UnreadByte()
			return nil
		}
	}
	return ErrNoAck
}

// recv reads one packet. A zero timeout waits forever.
func (c *conn) recv(timeout time.Duration) (string, error) {
	if timeout > 0 {
		c.c.SetReadDeadline(time.Now().Add(timeout))
		defer c.c.SetReadDeadline(time.Time{})
	}

	for retry := 0; retry < sendRetries; retry++ {
		for {
			b, err := c.rd.ReadByte()
			if err != nil {
				return "", err
			}
			if b == '$' {
				break
			}
			// Stray acks and noise between packets.
		}

		body, err := c.rd.ReadBytes('#')
		if err != nil {
			return "", err
		}
		body = body[:len(body)-1]

		var sum [2]byte
		for i := range sum {
			if sum[i], err = c.rd.ReadByte(); err != nil {
				return "", err
			}
		}
		want, err := strconv.ParseUint(string(sum[:]), 16, 8)
		if err != nil || byte(want) != checksum(string(body)) {
			c.log.Debugf("bad checksum on %q", body)
			if err := c.write([]byte{'-'}); err != nil {
				return "", err
			}
			continue
		}
		if err := c.write([]byte{'+'}); err != nil {
			return "", err
		}

		data, err := unescape(body)
		if err != nil {
			return "", err
		}
		if logflags.GdbWire() {
			c.log.Debugf("<- %s", data)
		}
		return string(data), nil
	}
	return "", ErrChecksum
}

func (c *conn) request(data string) (string, error) {
	if err := c.send(data); err != nil {
		return "", err
	}
	return c.recv(replyTimeout)
}

func (c *conn) interrupt() error {
	if logflags.GdbWire() {
		c.log.Debug("-> ^C")
	}
	return c.write([]byte{interruptByte})
}

func (c *conn) close() error {
	return c.c.Close()
}
