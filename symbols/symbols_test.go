package symbols

import (
	"debug/elf"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

const base = 0xffffffff81000000

const systemMap = `ffffffff81000000 T _text
ffffffff81000000 T startup_64
ffffffff81000070 t secondary_startup_64
ffffffff810001f0 T do_one_initcall
ffffffff81000400 W arch_cpu_idle
                 U undefined_thing
0000000000000000 A fixed_percpu_data
ffffffff82000000 D init_task
ffffffff82000100 d do_not_care [module]
garbage line
zzzz T bad_address
`

func loadTestTable(t *testing.T) *Table {
	t.Helper()
	tbl := NewTable(base)
	n, err := tbl.LoadSystemMap(strings.NewReader(systemMap))
	if err != nil {
		t.Fatal(err)
	}
	if n != 7 {
		t.Fatalf("loaded %d symbols, want 7", n)
	}
	return tbl
}

func TestLoadSystemMap(t *testing.T) {
	tbl := loadTestTable(t)

	// _text and startup_64 share an address.
	if tbl.Len() != 6 {
		t.Errorf("table holds %d addresses, want 6", tbl.Len())
	}
	if _, ok := tbl.LookupName("undefined_thing"); ok {
		t.Error("undefined symbols must be skipped")
	}
	if _, ok := tbl.LookupName("fixed_percpu_data"); ok {
		t.Error("symbols below the kernel base must be skipped")
	}
	if k, err := tbl.Kind("arch_cpu_idle"); err != nil || k != KindWeak {
		t.Errorf("Kind(arch_cpu_idle) = %c, %v", k, err)
	}
	if _, err := tbl.Kind("nope"); err != ErrSymbolNotFound {
		t.Errorf("Kind(nope) error = %v", err)
	}
}

func TestLookups(t *testing.T) {
	tbl := loadTestTable(t)

	tests := []struct {
		name    string
		addr    uint64
		exact   string
		nearest string
	}{
		{"start", base, "_text", "_text"},
		{"inside", base + 0x80, "", "secondary_startup_64"},
		{"func", base + 0x1f0, "do_one_initcall", "do_one_initcall"},
		{"far", base + 0x100000, "", "arch_cpu_idle"},
		{"data", base + 0x1000100, "do_not_care", "do_not_care"},
		{"below base", 0x1000, "", ""},
	}
	for _, tt := range tests {
		sym, ok := tbl.LookupExact(tt.addr)
		if (tt.exact != "") != ok || (ok && sym.Name != tt.exact) {
			t.Errorf("%s: LookupExact(%#x) = %v, %v; want %q", tt.name, tt.addr, sym, ok, tt.exact)
		}
		sym, ok = tbl.LookupNearest(tt.addr)
		if (tt.nearest != "") != ok || (ok && sym.Name != tt.nearest) {
			t.Errorf("%s: LookupNearest(%#x) = %v, %v; want %q", tt.name, tt.addr, sym, ok, tt.nearest)
		}
	}
}

func TestAddressesAreRelative(t *testing.T) {
	tbl := loadTestTable(t)
	sym, ok := tbl.LookupName("init_task")
	if !ok {
		t.Fatal("init_task not found")
	}
	if sym.Addr != 0x1000000 {
		t.Errorf("init_task relative address = %#x", sym.Addr)
	}
	if sym, ok := tbl.LookupName("startup_64"); !ok || sym.Addr != 0 {
		t.Errorf("alias startup_64 = %v, %v", sym, ok)
	}
}

func TestDuplicatePreference(t *testing.T) {
	tbl := NewTable(0)
	tbl.Add("weak_alias", 0x100, 8, KindWeak, false)
	tbl.Add("real_func", 0x100, 8, KindText, true)
	tbl.Add("small", 0x100, 4, KindText, true)

	sym, _ := tbl.LookupExact(0x100)
	if sym.Name != "real_func" {
		t.Errorf("exact lookup = %q, want real_func", sym.Name)
	}
	if sym, ok := tbl.LookupName("weak_alias"); !ok || sym.Name != "weak_alias" {
		t.Errorf("replaced symbol must stay reachable by name: %v, %v", sym, ok)
	}
	if sym, ok := tbl.LookupName("small"); !ok || sym.Addr != 0x100 {
		t.Errorf("alias lookup = %v, %v", sym, ok)
	}
}

func TestNearestAfterLateInsert(t *testing.T) {
	tbl := NewTable(0)
	tbl.Add("b", 0x200, 0, KindText, true)
	if sym, _ := tbl.LookupNearest(0x150); sym != nil {
		t.Fatalf("nearest below first symbol = %v", sym)
	}
	tbl.Add("a", 0x100, 0, KindText, true)
	if sym, ok := tbl.LookupNearest(0x150); !ok || sym.Name != "a" {
		t.Errorf("nearest = %v, %v; want a", sym, ok)
	}
}

func TestComplete(t *testing.T) {
	tbl := loadTestTable(t)
	got := tbl.Complete("do_")
	want := []string{"do_not_care", "do_one_initcall"}
	if len(got) != len(want) {
		t.Fatalf("Complete(do_) = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Complete(do_)[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if got := tbl.Complete("zz"); len(got) != 0 {
		t.Errorf("Complete(zz) = %q", got)
	}
	if got := NewTable(0).Complete(""); got != nil {
		t.Errorf("empty table completions = %q", got)
	}
}

func TestLoadDetectsFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "System.map")
	if err := os.WriteFile(path, []byte(systemMap), 0600); err != nil {
		t.Fatal(err)
	}
	tbl := NewTable(base)
	if n, err := tbl.Load(path); err != nil || n != 7 {
		t.Fatalf("Load = %d, %v", n, err)
	}

	if _, err := NewTable(0).Load(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestLoadELF(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("test binary is not ELF")
	}
	exe, err := os.Executable()
	if err != nil {
		t.Skip(err)
	}
	f, err := elf.Open(exe)
	if err != nil {
		t.Fatal(err)
	}
	_, symErr := f.Symbols()
	f.Close()
	if errors.Is(symErr, elf.ErrNoSymbols) {
		// Stripped binaries only carry .dynsym, which does not name test
		// functions.
		t.Skip("test binary has no symbol table")
	}

	tbl := NewTable(0)
	n, err := tbl.Load(exe)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Fatal("no symbols loaded from the test binary")
	}
	sym, ok := tbl.LookupName("hvDbg/symbols.TestLoadELF")
	if !ok {
		t.Fatal("own test function not found")
	}
	if got, ok := tbl.LookupExact(sym.Addr); !ok || got.Addr != sym.Addr {
		t.Errorf("exact lookup of %#x = %v, %v", sym.Addr, got, ok)
	}
}
