package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"
	"golang.org/x/sys/unix"

	"hvDbg/gdbstub"
)

const maxCompletions = 64

// symbolCompleter offers "$name" completions for the last word of line.
func (dbger *TypeDbg) symbolCompleter(line string) []string {
	i := strings.LastIndexByte(line, '$')
	if i < 0 {
		return []string{"$"}
	}
	names := dbger.syms.Complete(line[i+1:])
	if len(names) > maxCompletions {
		names = names[:maxCompletions]
	}
	ret := make([]string, len(names))
	for j, n := range names {
		ret[j] = "$" + n
	}
	return ret
}

func (dbger *TypeDbg) completer() *readline.PrefixCompleter {
	syms := readline.PcItemDynamic(dbger.symbolCompleter)
	return readline.NewPrefixCompleter(
		readline.PcItem("b", syms),
		readline.PcItem("D", syms),
		readline.PcItem("c"),
		readline.PcItem("s"),
		readline.PcItem("x"),
		readline.PcItem("d"),
		readline.PcItem("t"),
		readline.PcItem("S"),
		readline.PcItem("n"),
		readline.PcItem("r"),
		readline.PcItem("p"),
		readline.PcItem("m"),
		readline.PcItem("w"),
		readline.PcItem("i"),
		readline.PcItem("h"),
	)
}

func (dbger *TypeDbg) prompt() string {
	if !dbger.isStart {
		return "[hvDbg]$ "
	}
	return fmt.Sprintf("[%x]$ ", dbger.state.Ctx.Rip)
}

// Interactive reads commands until EOF or "q". A command that resumes the
// guest blocks until the guest stops again; Ctrl-C interrupts it.
func (dbger *TypeDbg) Interactive(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          dbger.prompt(),
		HistoryFile:     dbger.conf.HistoryFile,
		AutoComplete:    dbger.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "q",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		rl.SetPrompt(dbger.prompt())
		req, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if req == "q" || req == "exit" {
			return nil
		}

		if !dbger.con.ProcessCommand(req) {
			continue
		}

		runCtx, stop := signal.NotifyContext(ctx, unix.SIGINT)
		err = dbger.resume(runCtx)
		stop()
		if errors.Is(err, gdbstub.ErrTargetExited) {
			dbger.scr.Printf("guest exited\n")
			dbger.isStart = false
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to resume guest: %w", err)
		}
		dbger.scr.Rule(fmt.Sprintf("stopped @%016x", dbger.state.Ctx.Rip))
	}
}
