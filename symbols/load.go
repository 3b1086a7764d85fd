package symbols

import (
	"bufio"
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// LoadSystemMap reads nm-style "address type name" lines as found in
// System.map and /proc/kallsyms. It returns the number of symbols added.
func (t *Table) LoadSystemMap(r io.Reader) (int, error) {
	n := 0
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		addr, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil || len(fields[1]) != 1 {
			t.log.Debugf("line %d: malformed entry %q", lineno, scanner.Text())
			continue
		}

		typ := rune(fields[1][0])
		switch unicode.ToUpper(typ) {
		case 'U', 'N', '?':
			continue
		}
		if t.AddAbsolute(fields[2], addr, 0, kindFromNm(typ), unicode.IsUpper(typ)) {
			n++
		}
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("reading symbol map: %w", err)
	}
	return n, nil
}

func kindFromNm(typ rune) Kind {
	switch unicode.ToUpper(typ) {
	case 'T':
		return KindText
	case 'D', 'G':
		return KindData
	case 'B', 'S':
		return KindBSS
	case 'R':
		return KindRodata
	case 'W', 'V':
		return KindWeak
	}
	return KindUnknown
}

// LoadELF reads the static symbol table of a kernel image, falling back to
// the dynamic one.
func (t *Table) LoadELF(path string) (int, error) {
	file, err := elf.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	syms, err := file.Symbols()
	if errors.Is(err, elf.ErrNoSymbols) {
		syms, err = file.DynamicSymbols()
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read symbols: %w", err)
	}

	n := 0
	for _, sym := range syms {
		if sym.Name == "" {
			continue
		}
		symType := elf.ST_TYPE(sym.Info)
		if symType == elf.STT_FILE || symType == elf.STT_SECTION {
			continue
		}

		kind := KindUnknown
		switch symType {
		case elf.STT_FUNC:
			kind = KindText
		case elf.STT_OBJECT:
			kind = KindData
		}
		bind := elf.ST_BIND(sym.Info)
		if bind == elf.STB_WEAK {
			kind = KindWeak
		}

		if t.AddAbsolute(sym.Name, sym.Value, sym.Size, kind, bind == elf.STB_GLOBAL) {
			n++
		}
	}
	return n, nil
}

// Load picks the loader from the file contents.
func (t *Table) Load(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	magic := make([]byte, len(elf.ELFMAG))
	if _, err := io.ReadFull(f, magic); err == nil && bytes.Equal(magic, []byte(elf.ELFMAG)) {
		f.Close()
		return t.LoadELF(path)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return t.LoadSystemMap(f)
}
