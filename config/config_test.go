package config

import (
	"os"
	"path/filepath"
	"testing"

	"hvDbg/guest"
)

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
rows: 40
kernel_base: 0xffffffff9a000000
guest_os: windows
syntax: intel
linux:
  task_pid: 0x5c0
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Rows != 40 || c.Cols != Default().Cols {
		t.Errorf("geometry = %dx%d", c.Rows, c.Cols)
	}
	if c.KernelBase != 0xffffffff9a000000 {
		t.Errorf("kernel_base = %#x", c.KernelBase)
	}
	if c.GuestOS != "windows" || c.Syntax != "intel" {
		t.Errorf("guest_os = %q, syntax = %q", c.GuestOS, c.Syntax)
	}
	if c.Linux.TaskPid != 0x5c0 {
		t.Errorf("task_pid = %#x", c.Linux.TaskPid)
	}
	if c.Linux.TaskComm != guest.DefaultLinuxOffsets.TaskComm {
		t.Errorf("unset offset lost its default: %#x", c.Linux.TaskComm)
	}
}

func TestParseRejects(t *testing.T) {
	for _, doc := range []string{
		"word_size: 2",
		"rows: 0",
		"syntax: masm",
		"max_breakpoints: -1",
		"no_such_key: 1",
		"rows: [",
	} {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%q accepted", doc)
		}
	}
}

func TestDefaultConfigParses(t *testing.T) {
	c, err := Parse([]byte(defaultConfig))
	if err != nil {
		t.Fatal(err)
	}
	if c.WordSize != 8 || c.Bits() != 64 {
		t.Errorf("word size = %d", c.WordSize)
	}
}

func TestLoadConfigExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hvdbg.yml")

	if _, err := LoadConfig(path); err == nil {
		t.Error("missing explicit config file accepted")
	}

	conf := Default()
	conf.WordSize = 4
	conf.SymbolFile = "/boot/System.map"
	if err := SaveConfig(conf, path); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.WordSize != 4 || c.SymbolFile != "/boot/System.map" || c.Bits() != 32 {
		t.Errorf("loaded %+v", c)
	}
	if fi, err := os.Stat(path); err != nil || fi.Mode().Perm() != 0600 {
		t.Errorf("config file mode: %v %v", fi, err)
	}
}
