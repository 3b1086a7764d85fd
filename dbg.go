package main

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"

	"hvDbg/config"
	"hvDbg/console"
	"hvDbg/disasm"
	"hvDbg/gdbstub"
	"hvDbg/guest"
	"hvDbg/logflags"
	"hvDbg/screen"
	"hvDbg/symbols"
)

// TypeDbg is one attached debugging session.
type TypeDbg struct {
	conf  *config.Config
	syms  *symbols.Table
	stub  *gdbstub.Stub
	sess  *gdbstub.Session
	state *console.State
	con   *console.Console
	scr   *screen.Screen

	isStart bool
	log     *logrus.Entry
}

func loadSymbols(conf *config.Config) (*symbols.Table, error) {
	syms := symbols.NewTable(conf.KernelBase)
	if conf.SymbolFile == "" {
		return syms, nil
	}
	n, err := syms.Load(conf.SymbolFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load symbols from %s: %w", conf.SymbolFile, err)
	}
	if logflags.Symbols() {
		logflags.SymbolsLogger().Debugf("loaded %d symbols from %s", n, conf.SymbolFile)
	}
	return syms, nil
}

// Attach connects to the stub listening on host:port and wires the console
// to it. The guest is left stopped.
func Attach(ctx context.Context, conf *config.Config, host string, port int, scr *screen.Screen) (*TypeDbg, error) {
	syms, err := loadSymbols(conf)
	if err != nil {
		return nil, err
	}
	syntax, err := disasm.ParseSyntax(conf.Syntax)
	if err != nil {
		return nil, err
	}

	stub, err := gdbstub.Dial(ctx, net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}

	dbger := &TypeDbg{
		conf:  conf,
		syms:  syms,
		stub:  stub,
		state: &console.State{Ctx: &console.GuestContext{}, KernelBase: conf.KernelBase, WordSize: conf.WordSize},
		scr:   scr,
		log:   logflags.ConsoleLogger(),
	}
	dbger.sess, err = gdbstub.NewSession(stub, dbger.state, gdbstub.SessionConfig{
		MaxBreakpoints: conf.MaxBreakpoints,
		CachePages:     conf.CachePages,
	})
	if err != nil {
		stub.Close()
		return nil, err
	}

	cfg := console.Config{
		Memory:      dbger.sess.Memory,
		Breakpoints: dbger.sess.Breakpoints,
		Symbols:     syms,
		Decoder:     disasm.New(conf.Bits(), syntax),
		Sink:        scr,
		Rows:        conf.Rows,
		Cols:        conf.Cols,
		Version:     version,
	}
	if conf.GuestOS == "linux" {
		linux := guest.NewLinux(dbger.sess.Memory, syms, conf.KernelBase, conf.WordSize, conf.Linux)
		cfg.Processes = linux
		cfg.Modules = linux
		cfg.Sockets = linux
	}
	cfg.Introspector, err = console.NewIntrospector(conf.GuestOS, syms, cfg.Modules, conf.KernelBase, conf.NearestSymbolWindow)
	if err != nil {
		stub.Close()
		return nil, err
	}
	dbger.con = console.New(dbger.state, cfg)

	reply, err := dbger.sess.Attach()
	if err != nil {
		stub.Close()
		return nil, err
	}
	dbger.isStart = true
	dbger.log.Debugf("attached, stop reply %s", reply.Raw)
	return dbger, nil
}

// Detach leaves the guest running. The stub removes planted breakpoints when
// it detaches.
func (dbger *TypeDbg) Detach() error {
	dbger.isStart = false
	return dbger.stub.Close()
}

// resume runs the guest until it stops again. Cancelling ctx interrupts it.
func (dbger *TypeDbg) resume(ctx context.Context) error {
	reply, err := dbger.sess.Resume(ctx)
	if err != nil {
		return err
	}
	dbger.log.Debugf("guest stopped with signal %d", reply.Signal)
	return nil
}
