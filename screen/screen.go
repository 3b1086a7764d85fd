// Package screen renders console output on the terminal.
package screen

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"
	"golang.org/x/term"

	"hvDbg/console"
)

// Screen is a console.Sink writing to a terminal. Output taller than the
// terminal is paged.
type Screen struct {
	w io.Writer

	normal  *color.Color
	failure *color.Color
	rule    *color.Color

	size func() (int, int)
	more func() bool
}

func New(f *os.File) *Screen {
	s := &Screen{
		w:       colorable.NewColorable(f),
		normal:  color.New(color.FgHiGreen),
		failure: color.New(color.FgRed),
		rule:    color.New(color.FgWhite, color.Bold),
	}
	if isatty.IsTerminal(f.Fd()) {
		fd := int(f.Fd())
		s.size = func() (int, int) {
			w, h, err := term.GetSize(fd)
			if err != nil {
				return 0, 0
			}
			return w, h
		}
		s.more = confirmMore
	} else {
		s.SetColor(false)
	}
	return s
}

// SetColor turns escape sequences on or off.
func (s *Screen) SetColor(on bool) {
	for _, c := range []*color.Color{s.normal, s.failure, s.rule} {
		if on {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

func (s *Screen) termSize() (int, int) {
	if s.size == nil {
		return 0, 0
	}
	return s.size()
}

func confirmMore() bool {
	p := promptui.Prompt{
		Label:     "More",
		IsConfirm: true,
		Default:   "y",
	}
	_, err := p.Run()
	return !errors.Is(err, promptui.ErrAbort) && !errors.Is(err, promptui.ErrInterrupt)
}

// Rule prints a horizontal line with msg in its middle, as wide as the
// terminal.
func (s *Screen) Rule(msg string) {
	w, _ := s.termSize()
	if w > len(msg)+2 {
		side := strings.Repeat("-", (w-len(msg)-2)/2)
		s.rule.Fprintln(s.w, side+"["+msg+"]"+side)
		return
	}
	s.rule.Fprintln(s.w, "["+msg+"]")
}

func (s *Screen) Refresh(out *console.OutputBuffer) {
	c := s.normal
	if out.Color == console.ColorError {
		c = s.failure
	}
	_, h := s.termSize()
	page := h - 2

	for i, l := range out.Lines() {
		if page > 0 && i > 0 && i%page == 0 && (s.more == nil || !s.more()) {
			break
		}
		c.Fprintln(s.w, l)
	}
}

// Printf writes status text outside the console output area.
func (s *Screen) Printf(format string, a ...interface{}) {
	fmt.Fprintf(s.w, format, a...)
}

// Errorf writes a red status line.
func (s *Screen) Errorf(format string, a ...interface{}) {
	s.failure.Fprintf(s.w, "[ERROR] "+format+"\n", a...)
}
