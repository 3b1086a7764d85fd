package console

import (
	"fmt"
	"strings"
)

type Color int

const (
	ColorNormal Color = iota
	ColorError
)

func (c Color) String() string {
	switch c {
	case ColorNormal:
		return "normal"
	case ColorError:
		return "error"
	}
	return fmt.Sprintf("Color(%d)", int(c))
}

// OutputBuffer is one screen of console output: a fixed grid of rows, each at
// most cols bytes wide. Writes outside the grid are dropped and writes that run
// past the right edge are truncated.
type OutputBuffer struct {
	rows  int
	cols  int
	lines [][]byte
	Color Color
}

func NewOutputBuffer(rows, cols int) *OutputBuffer {
	if rows < 1 {
		rows = 1
	}
	if cols < 1 {
		cols = 1
	}
	out := &OutputBuffer{rows: rows, cols: cols, lines: make([][]byte, rows)}
	for i := range out.lines {
		out.lines[i] = make([]byte, 0, cols)
	}
	return out
}

func (out *OutputBuffer) Rows() int { return out.rows }
func (out *OutputBuffer) Cols() int { return out.cols }

// Reset blanks every row and restores the normal color.
func (out *OutputBuffer) Reset() {
	for i := range out.lines {
		out.lines[i] = out.lines[i][:0]
	}
	out.Color = ColorNormal
}

// WriteAt places s on row y starting at column x, padding with spaces when x
// lies past the current end of the row. It returns the number of bytes of s
// that fit.
func (out *OutputBuffer) WriteAt(y, x int, s string) int {
	if y < 0 || y >= out.rows || x < 0 || x >= out.cols {
		return 0
	}
	if len(s) > out.cols-x {
		s = s[:out.cols-x]
	}
	line := out.lines[y]
	for len(line) < x {
		line = append(line, ' ')
	}
	end := x + len(s)
	if end > len(line) {
		line = append(line[:x], s...)
	} else {
		copy(line[x:end], s)
	}
	out.lines[y] = line
	return len(s)
}

// Printf replaces row y with the formatted text.
func (out *OutputBuffer) Printf(y int, format string, a ...interface{}) {
	if y < 0 || y >= out.rows {
		return
	}
	out.lines[y] = out.lines[y][:0]
	out.WriteAt(y, 0, fmt.Sprintf(format, a...))
}

// Errorf resets the buffer to a single error-colored status line.
func (out *OutputBuffer) Errorf(format string, a ...interface{}) {
	out.Reset()
	out.Printf(0, format, a...)
	out.Color = ColorError
}

func (out *OutputBuffer) Line(y int) string {
	if y < 0 || y >= out.rows {
		return ""
	}
	return string(out.lines[y])
}

// Lines returns every row up to the last non-empty one.
func (out *OutputBuffer) Lines() []string {
	last := -1
	for i, l := range out.lines {
		if len(l) > 0 {
			last = i
		}
	}
	ret := make([]string, 0, last+1)
	for i := 0; i <= last; i++ {
		ret = append(ret, string(out.lines[i]))
	}
	return ret
}

func (out *OutputBuffer) String() string {
	return strings.Join(out.Lines(), "\n")
}
