package console

import (
	"fmt"
	"strings"
)

// DefaultNearestSymbolWindow bounds how far past a symbol's start a return
// address may lie and still be reported as symbol+offset.
const DefaultNearestSymbolWindow = 100000

// maxModuleWalk stops a module walk over a corrupted (cyclic) list.
const maxModuleWalk = 4096

// FrameInfo annotates one return address. Empty fields are rendered blank.
type FrameInfo struct {
	Module string
	Symbol string
	Offset uint64
}

// GuestIntrospector maps a code address to the guest module and symbol that
// contain it.
type GuestIntrospector interface {
	ResolveFrame(space, addr uint64) FrameInfo
}

// GenericIntrospector knows nothing about the guest.
type GenericIntrospector struct{}

func (GenericIntrospector) ResolveFrame(space, addr uint64) FrameInfo {
	return FrameInfo{}
}

// WindowsIntrospector resolves kernel-space addresses against the guest's
// loaded module list and the kernel symbol table. Addresses below KernelBase
// are left unresolved.
type WindowsIntrospector struct {
	Symbols    SymbolTable
	Modules    ModuleEnumerator
	KernelBase uint64
	// Window is the largest offset reported past the nearest symbol.
	// Zero means DefaultNearestSymbolWindow.
	Window uint64
}

func (w *WindowsIntrospector) ResolveFrame(space, addr uint64) FrameInfo {
	var fi FrameInfo
	if addr < w.KernelBase {
		return fi
	}

	if w.Modules != nil {
		fi.Module = w.findModule(space, addr)
	}

	if w.Symbols != nil {
		window := w.Window
		if window == 0 {
			window = DefaultNearestSymbolWindow
		}
		if sym, ok := w.Symbols.LookupNearest(addr); ok {
			start := sym.Addr + w.KernelBase
			if addr >= start && addr-start < window {
				fi.Symbol = sym.Name
				fi.Offset = addr - start
			}
		}
	}
	return fi
}

func (w *WindowsIntrospector) findModule(space, addr uint64) string {
	var prev *ModuleRecord
	for i := 0; i < maxModuleWalk; i++ {
		mod, err := w.Modules.NextModule(space, prev)
		if err != nil {
			return ""
		}
		if addr >= mod.Base && addr-mod.Base < mod.Size {
			return mod.Name
		}
		prev = &mod
	}
	return ""
}

// NewIntrospector picks the introspector for a configured guest OS name.
// Both windows and linux guests expose a module list and kernel symbols, so
// they share the same strategy.
func NewIntrospector(guestOS string, syms SymbolTable, mods ModuleEnumerator, kernelBase, window uint64) (GuestIntrospector, error) {
	switch strings.ToLower(guestOS) {
	case "", "generic", "none":
		return GenericIntrospector{}, nil
	case "windows", "linux":
		return &WindowsIntrospector{Symbols: syms, Modules: mods, KernelBase: kernelBase, Window: window}, nil
	}
	return nil, fmt.Errorf("unknown guest os %q", guestOS)
}
