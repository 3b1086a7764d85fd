package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"hvDbg/console"
	"hvDbg/disasm"
	"hvDbg/guest"
)

const (
	configDir   string = ".hvdbg"
	configFile  string = "config.yml"
	historyFile string = "history"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Output buffer geometry.
	Rows int `yaml:"rows"`
	Cols int `yaml:"cols"`

	// Guest pointer width in bytes, 4 or 8.
	WordSize int `yaml:"word_size"`
	// KernelBase is added to symbol file addresses.
	KernelBase uint64 `yaml:"kernel_base"`
	// GuestOS selects backtrace annotation: windows, linux or generic.
	GuestOS string `yaml:"guest_os"`
	// Largest offset from a symbol still shown as symbol+offset.
	NearestSymbolWindow uint64 `yaml:"nearest_symbol_window"`

	// Disassembly syntax: gnu, intel or go.
	Syntax string `yaml:"syntax"`

	SymbolFile  string `yaml:"symbol_file"`
	HistoryFile string `yaml:"history_file"`

	MaxBreakpoints int `yaml:"max_breakpoints"`
	// Number of guest pages kept between resumes.
	CachePages int `yaml:"cache_pages"`

	Linux guest.LinuxOffsets `yaml:"linux"`
}

// Default returns the built-in configuration.
func Default() *Config {
	hist, err := GetConfigFilePath(historyFile)
	if err != nil {
		hist = ""
	}
	return &Config{
		Rows:                console.DefaultRows,
		Cols:                console.DefaultCols,
		WordSize:            8,
		KernelBase:          0xffffffff81000000,
		GuestOS:             "linux",
		NearestSymbolWindow: console.DefaultNearestSymbolWindow,
		Syntax:              "gnu",
		HistoryFile:         hist,
		MaxBreakpoints:      32,
		CachePages:          256,
		Linux:               guest.DefaultLinuxOffsets,
	}
}

// LoadConfig reads the config file at path over the defaults. An empty path
// selects $HOME/.hvdbg/config.yml, which is created with commented defaults
// when missing.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		if err := createConfigPath(); err != nil {
			return nil, fmt.Errorf("could not create config directory: %w", err)
		}
		var err error
		path, err = GetConfigFilePath(configFile)
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := createDefaultConfig(path); err != nil {
				return nil, err
			}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config data: %w", err)
	}
	return Parse(data)
}

// Parse decodes data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return nil, fmt.Errorf("unable to decode config file: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Rows <= 0 || c.Cols <= 0 {
		return fmt.Errorf("invalid output geometry %dx%d", c.Rows, c.Cols)
	}
	if c.WordSize != 4 && c.WordSize != 8 {
		return fmt.Errorf("word_size must be 4 or 8, not %d", c.WordSize)
	}
	if _, err := disasm.ParseSyntax(c.Syntax); err != nil {
		return err
	}
	if c.MaxBreakpoints <= 0 {
		return fmt.Errorf("max_breakpoints must be positive")
	}
	return nil
}

// Bits is the decoder mode matching the guest word size.
func (c *Config) Bits() int {
	return c.WordSize * 8
}

// SaveConfig will marshal and save the config struct to path.
func SaveConfig(conf *Config, path string) error {
	out, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0600)
}

func createDefaultConfig(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create config file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(defaultConfig); err != nil {
		return fmt.Errorf("unable to write default configuration: %w", err)
	}
	return nil
}

const defaultConfig = `# Configuration file for the hvdbg debugger.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Size of the command output area.
# rows: 20
# cols: 100

# Guest pointer width in bytes (4 or 8).
# word_size: 8

# Load address of the kernel image; symbol file addresses are rebased on it.
# kernel_base: 0xffffffff81000000

# Guest flavor used to annotate backtraces: linux, windows or generic.
# guest_os: linux

# Frames further than this many bytes from the nearest symbol are not annotated.
# nearest_symbol_window: 100000

# Disassembly syntax: gnu, intel or go.
# syntax: gnu

# System.map, kallsyms dump or ELF image with the guest kernel symbols.
# symbol_file: /boot/System.map

# history_file: ~/.hvdbg/history

# max_breakpoints: 32

# Guest memory pages cached while the guest is stopped.
# cache_pages: 256

# Structure offsets of the guest kernel, used to list processes and modules.
# linux:
#   task_tasks: 0x4b8
#   task_pid: 0x5b0
#   task_comm: 0x750
#   task_mm: 0x508
#   mm_pgd: 0x48
#   module_list: 0x8
#   module_name: 0x18
#   module_base: 0x140
#   module_size: 0x148
#   module_init: 0x178
#   page_offset: 0xffff888000000000
`

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return filepath.Join(userHomeDir, configDir, file), nil
}
