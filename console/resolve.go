package console

import (
	"strconv"
	"strings"
)

// ParseNumber parses a 0x-prefixed hexadecimal or a plain decimal literal.
// Anything else, including values that overflow 64 bits, fails.
func ParseNumber(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	var v uint64
	var err error
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = strconv.ParseUint(s[2:], 16, 64)
	} else {
		v, err = strconv.ParseUint(s, 10, 64)
	}
	if err != nil {
		return 0, false
	}
	return v, true
}

type resolveError int

const (
	badLiteral resolveError = iota
	badRegister
)

// resolveValue resolves an address token that is either a literal or a
// $register reference.
func (c *Console) resolveValue(tok string) (uint64, resolveError, bool) {
	if strings.HasPrefix(tok, "$") {
		v, ok := c.state.Ctx.Register(tok[1:])
		return v, badRegister, ok
	}
	v, ok := ParseNumber(tok)
	return v, badLiteral, ok
}
