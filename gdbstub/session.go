package gdbstub

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"hvDbg/console"
	"hvDbg/logflags"
)

// Session ties a Stub to the console state: it captures the guest context on
// every stop and applies the console's requests when the guest resumes.
type Session struct {
	stub  *Stub
	state *console.State

	Memory      *Memory
	Breakpoints *Breakpoints

	capturedFlags uint64
	log           *logrus.Entry
}

type SessionConfig struct {
	MaxBreakpoints int
	CachePages     int
}

func NewSession(stub *Stub, state *console.State, cfg SessionConfig) (*Session, error) {
	mem, err := NewMemory(stub, cfg.CachePages)
	if err != nil {
		return nil, err
	}
	if state.Ctx == nil {
		state.Ctx = &console.GuestContext{}
	}
	return &Session{
		stub:        stub,
		state:       state,
		Memory:      mem,
		Breakpoints: NewBreakpoints(stub, cfg.MaxBreakpoints),
		log:         logflags.GdbWireLogger(),
	}, nil
}

// Attach waits for the target's current stop and captures it.
func (s *Session) Attach() (StopReply, error) {
	reply, err := s.stub.Halted()
	if err != nil {
		return reply, fmt.Errorf("failed to query stop reason: %w", err)
	}
	return reply, s.capture()
}

func (s *Session) capture() error {
	s.Memory.Purge()
	if err := s.stub.Capture(s.state.Ctx); err != nil {
		return err
	}
	s.Memory.SetSpace(s.state.Ctx.Cr3)
	s.capturedFlags = s.state.Ctx.Rflags
	return nil
}

// Resume runs the guest until the next stop, single stepping if the console
// asked for it, and captures the new context.
func (s *Session) Resume(ctx context.Context) (StopReply, error) {
	s.Memory.Purge()

	flags := s.state.Ctx.Rflags
	step := s.state.SingleStepping
	if step {
		// The stub steps on its own; a TF left in rflags would trap again
		// after the step.
		flags &^= console.FlagsTF
	}
	if flags != s.capturedFlags {
		if err := s.stub.SetEflags(flags); err != nil {
			return StopReply{}, fmt.Errorf("failed to write rflags: %w", err)
		}
	}

	var reply StopReply
	var err error
	if step {
		reply, err = s.stub.Step(ctx)
		s.state.SingleStepping = false
	} else {
		reply, err = s.stub.Continue(ctx)
	}
	if err != nil {
		return reply, err
	}
	s.log.Debugf("stopped: %s", reply.Raw)
	return reply, s.capture()
}
