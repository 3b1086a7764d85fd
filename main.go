package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"hvDbg/config"
	"hvDbg/console"
	"hvDbg/logflags"
	"hvDbg/screen"
	"hvDbg/symbols"
)

const version = "0.3.0"

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path where logs should go.
	logDest string
	// configPath overrides $HOME/.hvdbg/config.yml.
	configPath string

	host       string
	port       int
	symbolFile string
	guestOS    string
	kernelBase string

	conf *config.Config
)

const hvdbgCommandLongDesc = `hvdbg is a kernel debugger console for virtual machines.

It attaches to the GDB stub of a hypervisor (for example QEMU started with -s),
stops the guest and accepts single-letter commands to inspect registers, memory,
kernel symbols, processes and modules. Type h at the prompt for the command list.`

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           "hvdbg",
		Short:         "hvdbg is a hypervisor-level kernel debugger.",
		Long:          hvdbgCommandLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logflags.Setup(log, logOutput, logDest); err != nil {
				return err
			}
			var err error
			conf, err = config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return applyFlags(cmd.Flags())
		},
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debug logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output (console, gdbwire, symbols, guest).")
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file.")
	rootCommand.PersistentFlags().StringVarP(&configPath, "config", "", "", "Path of the configuration file.")
	rootCommand.PersistentFlags().StringVarP(&symbolFile, "symbols", "", "", "System.map, kallsyms dump or ELF image of the guest kernel.")
	rootCommand.PersistentFlags().StringVarP(&kernelBase, "kernel-base", "", "", "Load address of the guest kernel.")

	connectCommand := &cobra.Command{
		Use:   "connect",
		Short: "Attach to a hypervisor GDB stub and start the console.",
		Long: `Attach to a hypervisor GDB stub and start the console.

The guest is stopped while the console accepts commands. c and s resume it;
Ctrl-C stops a running guest and returns to the prompt. q or Ctrl-D detach
and leave the guest running.`,
		Args: cobra.NoArgs,
		RunE: connectCmd,
	}
	connectCommand.Flags().StringVar(&host, "host", "127.0.0.1", "Host of the GDB stub.")
	connectCommand.Flags().IntVar(&port, "port", 1234, "Port of the GDB stub.")
	connectCommand.Flags().StringVar(&guestOS, "guest-os", "", "Guest flavor: linux, windows or generic.")
	rootCommand.AddCommand(connectCommand)

	symsCommand := &cobra.Command{
		Use:   "syms <file> [addr|name]...",
		Short: "Query a symbol file offline.",
		Long: `Load a symbol file and look up addresses or names without a guest.

Addresses print the exact symbol or the nearest one below; names print their
address. With no query the number of loaded symbols is printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: symsCmd,
	}
	rootCommand.AddCommand(symsCommand)

	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hvDbg %s\n", version)
		},
	}
	rootCommand.AddCommand(versionCommand)

	return rootCommand
}

// applyFlags lets explicitly set flags win over the config file.
func applyFlags(flags *pflag.FlagSet) error {
	if flags.Changed("symbols") {
		conf.SymbolFile = symbolFile
	}
	if flags.Changed("kernel-base") {
		v, err := strconv.ParseUint(kernelBase, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid kernel base %q: %w", kernelBase, err)
		}
		conf.KernelBase = v
	}
	if flags.Lookup("guest-os") != nil && flags.Changed("guest-os") {
		conf.GuestOS = guestOS
	}
	return conf.Validate()
}

func connectCmd(cmd *cobra.Command, args []string) error {
	scr := screen.New(os.Stdout)
	dbger, err := Attach(cmd.Context(), conf, host, port, scr)
	if err != nil {
		return err
	}
	scr.Rule(fmt.Sprintf("attached to %s:%d", host, port))

	ierr := dbger.Interactive(cmd.Context())
	if dbger.isStart {
		if err := dbger.Detach(); err != nil {
			scr.Errorf("detach failed: %v", err)
		}
	}
	return ierr
}

func symsCmd(cmd *cobra.Command, args []string) error {
	conf.SymbolFile = args[0]
	syms, err := loadSymbols(conf)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(args) == 1 {
		fmt.Fprintf(out, "%d symbols\n", syms.Len())
		return nil
	}
	for _, q := range args[1:] {
		querySymbol(out, syms, q)
	}
	return nil
}

func querySymbol(out io.Writer, syms *symbols.Table, q string) {
	base := syms.KernelBase()
	if addr, ok := console.ParseNumber(q); ok {
		if sym, ok := syms.LookupExact(addr); ok {
			fmt.Fprintf(out, "%08x: %s\n", addr, sym.Name)
			return
		}
		if sym, ok := syms.LookupNearest(addr); ok {
			fmt.Fprintf(out, "%08x: %s+%#x\n", addr, sym.Name, addr-(sym.Addr+base))
			return
		}
		fmt.Fprintf(out, "%08x: no symbol\n", addr)
		return
	}
	sym, ok := syms.LookupName(q)
	if !ok {
		fmt.Fprintf(out, "%s: undefined\n", q)
		return
	}
	kind, _ := syms.Kind(q)
	fmt.Fprintf(out, "%s: %08x %c\n", q, sym.Addr+base, byte(kind))
}

func main() {
	if err := New().ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
