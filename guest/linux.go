// Package guest walks kernel data structures of a stopped guest to list its
// processes and modules.
package guest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"hvDbg/console"
	"hvDbg/logflags"
)

const (
	taskCommLen   = 16
	moduleNameLen = 56

	// DefaultPageOffset is the x86_64 direct map base without KASLR.
	DefaultPageOffset = 0xffff888000000000
)

var ErrMissingSymbol = errors.New("required kernel symbol not found")

// LinuxOffsets are structure member offsets of the guest kernel build, as
// printed by pahole or read from the kernel's BTF.
type LinuxOffsets struct {
	TaskTasks  uint64 `yaml:"task_tasks"`
	TaskPid    uint64 `yaml:"task_pid"`
	TaskComm   uint64 `yaml:"task_comm"`
	TaskMm     uint64 `yaml:"task_mm"`
	MmPgd      uint64 `yaml:"mm_pgd"`
	ModuleList uint64 `yaml:"module_list"`
	ModuleName uint64 `yaml:"module_name"`
	ModuleBase uint64 `yaml:"module_base"`
	ModuleSize uint64 `yaml:"module_size"`
	ModuleInit uint64 `yaml:"module_init"`
	PageOffset uint64 `yaml:"page_offset"`
}

// DefaultLinuxOffsets matches a 6.1 x86_64 defconfig build.
var DefaultLinuxOffsets = LinuxOffsets{
	TaskTasks:  0x4b8,
	TaskPid:    0x5b0,
	TaskComm:   0x750,
	TaskMm:     0x508,
	MmPgd:      0x48,
	ModuleList: 0x8,
	ModuleName: 0x18,
	ModuleBase: 0x140,
	ModuleSize: 0x148,
	ModuleInit: 0x178,
	PageOffset: DefaultPageOffset,
}

// Linux enumerates processes from init_task and modules from the modules
// list. All reads go through the current address space; kernel mappings are
// shared by every process.
type Linux struct {
	mem        console.MemoryReader
	syms       console.SymbolTable
	kernelBase uint64
	wordSize   int
	off        LinuxOffsets

	log *logrus.Entry
}

func NewLinux(mem console.MemoryReader, syms console.SymbolTable, kernelBase uint64, wordSize int, off LinuxOffsets) *Linux {
	if wordSize != 4 {
		wordSize = 8
	}
	if off.PageOffset == 0 {
		off.PageOffset = DefaultPageOffset
	}
	return &Linux{
		mem:        mem,
		syms:       syms,
		kernelBase: kernelBase,
		wordSize:   wordSize,
		off:        off,
		log:        logflags.GuestLogger(),
	}
}

func (l *Linux) symbol(name string) (uint64, error) {
	if l.syms == nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingSymbol, name)
	}
	sym, ok := l.syms.LookupName(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingSymbol, name)
	}
	return sym.Addr + l.kernelBase, nil
}

func (l *Linux) read(space, addr uint64, buf []byte, what string) error {
	if _, err := l.mem.ReadVirtualRegion(space, addr, buf); err != nil {
		if logflags.Guest() {
			l.log.Debugf("unable to read %s @%08x: %v", what, addr, err)
		}
		return fmt.Errorf("read %s at %#x: %w", what, addr, err)
	}
	return nil
}

func (l *Linux) readPointer(space, addr uint64, what string) (uint64, error) {
	buf := make([]byte, l.wordSize)
	if err := l.read(space, addr, buf, what); err != nil {
		return 0, err
	}
	if l.wordSize == 4 {
		return uint64(binary.LittleEndian.Uint32(buf)), nil
	}
	return binary.LittleEndian.Uint64(buf), nil
}

func (l *Linux) readString(space, addr uint64, n int, what string) (string, error) {
	buf := make([]byte, n)
	if err := l.read(space, addr, buf, what); err != nil {
		return "", err
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

// nextEntry follows list_head.next at cur. It returns ErrEndOfData once the
// walk is back at head.
func (l *Linux) nextEntry(space, head, cur uint64) (uint64, error) {
	next, err := l.readPointer(space, cur, "list_head")
	if err != nil {
		return 0, err
	}
	if next == head {
		return 0, console.ErrEndOfData
	}
	if next == 0 {
		return 0, fmt.Errorf("null list_head at %#x", cur)
	}
	return next, nil
}

// NextProcess starts at init_task, then follows task_struct.tasks.
func (l *Linux) NextProcess(space uint64, prev *console.ProcessRecord) (console.ProcessRecord, error) {
	initTask, err := l.symbol("init_task")
	if err != nil {
		return console.ProcessRecord{}, err
	}
	head := initTask + l.off.TaskTasks

	task := initTask
	if prev != nil {
		entry, err := l.nextEntry(space, head, prev.Next)
		if err != nil {
			return console.ProcessRecord{}, err
		}
		task = entry - l.off.TaskTasks
	}
	return l.readTask(space, task)
}

func (l *Linux) readTask(space, task uint64) (console.ProcessRecord, error) {
	var pid [4]byte
	if err := l.read(space, task+l.off.TaskPid, pid[:], "task pid"); err != nil {
		return console.ProcessRecord{}, err
	}
	comm, err := l.readString(space, task+l.off.TaskComm, taskCommLen, "task comm")
	if err != nil {
		return console.ProcessRecord{}, err
	}
	mm, err := l.readPointer(space, task+l.off.TaskMm, "task mm")
	if err != nil {
		return console.ProcessRecord{}, err
	}

	// Kernel threads have no mm and run on whatever tables were loaded.
	var cr3 uint64
	if mm != 0 {
		pgd, err := l.readPointer(space, mm+l.off.MmPgd, "mm pgd")
		if err != nil {
			return console.ProcessRecord{}, err
		}
		cr3 = pgd - l.off.PageOffset
	}

	return console.ProcessRecord{
		CR3:  cr3,
		PID:  int(int32(binary.LittleEndian.Uint32(pid[:]))),
		Name: comm,
		Next: task + l.off.TaskTasks,
	}, nil
}

// NextModule follows the modules list.
func (l *Linux) NextModule(space uint64, prev *console.ModuleRecord) (console.ModuleRecord, error) {
	head, err := l.symbol("modules")
	if err != nil {
		return console.ModuleRecord{}, err
	}
	cur := head
	if prev != nil {
		cur = prev.Next
	}
	entry, err := l.nextEntry(space, head, cur)
	if err != nil {
		return console.ModuleRecord{}, err
	}
	mod := entry - l.off.ModuleList

	name, err := l.readString(space, mod+l.off.ModuleName, moduleNameLen, "module name")
	if err != nil {
		return console.ModuleRecord{}, err
	}
	base, err := l.readPointer(space, mod+l.off.ModuleBase, "module base")
	if err != nil {
		return console.ModuleRecord{}, err
	}
	var size [4]byte
	if err := l.read(space, mod+l.off.ModuleSize, size[:], "module size"); err != nil {
		return console.ModuleRecord{}, err
	}
	initFn, err := l.readPointer(space, mod+l.off.ModuleInit, "module init")
	if err != nil {
		return console.ModuleRecord{}, err
	}

	return console.ModuleRecord{
		Base:  base,
		Entry: initFn,
		Size:  uint64(binary.LittleEndian.Uint32(size[:])),
		Name:  name,
		Next:  entry,
	}, nil
}

// NextSocket is not implemented for Linux guests.
func (l *Linux) NextSocket(space uint64, prev *console.SocketRecord) (console.SocketRecord, error) {
	return console.SocketRecord{}, console.ErrUnsupported
}
