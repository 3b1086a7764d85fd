// Package symbols holds the guest kernel symbol table. Symbols are stored
// relative to the kernel base and queried with absolute addresses.
package symbols

import (
	"errors"
	"sort"

	"github.com/derekparker/trie"
	"github.com/sirupsen/logrus"

	"hvDbg/console"
	"hvDbg/logflags"
)

var ErrSymbolNotFound = errors.New("symbol not found")

type Kind byte

const (
	KindUnknown Kind = '?'
	KindText    Kind = 'T'
	KindData    Kind = 'D'
	KindBSS     Kind = 'B'
	KindRodata  Kind = 'R'
	KindWeak    Kind = 'W'
)

type entry struct {
	sym    console.Symbol
	kind   Kind
	global bool
}

// addrTree is a 256-way radix tree over the bytes of a relative address,
// most significant byte first.
type addrTree struct {
	e *entry
	p map[uint8]*addrTree
}

func (t *addrTree) insert(addr uint64, e *entry) {
	node := t
	for i := 64 - 8; i >= 0; i -= 8 {
		key := uint8((addr >> uint(i)) & 0xff)
		next, ok := node.p[key]
		if !ok {
			next = &addrTree{p: make(map[uint8]*addrTree)}
			node.p[key] = next
		}
		node = next
	}
	node.e = e
}

func (t *addrTree) find(addr uint64) *entry {
	node := t
	for i := 64 - 8; i >= 0; i -= 8 {
		next, ok := node.p[uint8((addr>>uint(i))&0xff)]
		if !ok {
			return nil
		}
		node = next
	}
	return node.e
}

// Table implements console.SymbolTable.
type Table struct {
	base uint64

	entries []*entry
	byAddr  *addrTree
	names   *trie.Trie

	sorted []*entry
	dirty  bool

	log *logrus.Entry
}

func NewTable(kernelBase uint64) *Table {
	return &Table{
		base:   kernelBase,
		byAddr: &addrTree{p: make(map[uint8]*addrTree)},
		names:  trie.New(),
		log:    logflags.SymbolsLogger(),
	}
}

func (t *Table) KernelBase() uint64 { return t.base }

func (t *Table) Len() int { return len(t.entries) }

// Add inserts a symbol whose address is already relative to the kernel base.
// When two symbols share an address the one with the larger size wins, and a
// global symbol beats a weak one of the same size.
func (t *Table) Add(name string, rel, size uint64, kind Kind, global bool) {
	if name == "" {
		return
	}
	e := &entry{sym: console.Symbol{Name: name, Addr: rel, Size: size}, kind: kind, global: global}

	if old := t.byAddr.find(rel); old != nil {
		if size > old.sym.Size || (size == old.sym.Size && global && !old.global) {
			t.log.Debugf("%s replaces %s at +%#x", name, old.sym.Name, rel)
			alias := *old
			*old = *e
			t.names.Add(alias.sym.Name, &alias)
			t.names.Add(name, old)
		} else if _, ok := t.names.Find(name); !ok {
			// Aliases stay reachable by name.
			t.names.Add(name, e)
		}
		return
	}

	t.entries = append(t.entries, e)
	t.byAddr.insert(rel, e)
	if _, ok := t.names.Find(name); !ok {
		t.names.Add(name, e)
	}
	t.dirty = true
}

// AddAbsolute inserts a symbol given its absolute address. Symbols below the
// kernel base are dropped.
func (t *Table) AddAbsolute(name string, addr, size uint64, kind Kind, global bool) bool {
	if addr < t.base {
		return false
	}
	t.Add(name, addr-t.base, size, kind, global)
	return true
}

func (t *Table) sortedEntries() []*entry {
	if !t.dirty && t.sorted != nil {
		return t.sorted
	}
	t.sorted = append(t.sorted[:0], t.entries...)
	sort.Slice(t.sorted, func(i, j int) bool {
		return t.sorted[i].sym.Addr < t.sorted[j].sym.Addr
	})
	t.dirty = false
	return t.sorted
}

func (t *Table) LookupExact(addr uint64) (*console.Symbol, bool) {
	if addr < t.base {
		return nil, false
	}
	e := t.byAddr.find(addr - t.base)
	if e == nil {
		return nil, false
	}
	return &e.sym, true
}

// LookupNearest returns the symbol with the greatest address not above addr.
// Symbol sizes are ignored.
func (t *Table) LookupNearest(addr uint64) (*console.Symbol, bool) {
	if addr < t.base {
		return nil, false
	}
	rel := addr - t.base
	sorted := t.sortedEntries()
	i := sort.Search(len(sorted), func(i int) bool {
		return sorted[i].sym.Addr > rel
	})
	if i == 0 {
		return nil, false
	}
	return &sorted[i-1].sym, true
}

func (t *Table) LookupName(name string) (*console.Symbol, bool) {
	node, ok := t.names.Find(name)
	if !ok {
		return nil, false
	}
	e, ok := node.Meta().(*entry)
	if !ok {
		return nil, false
	}
	return &e.sym, true
}

// Kind returns the type letter recorded for name.
func (t *Table) Kind(name string) (Kind, error) {
	node, ok := t.names.Find(name)
	if !ok {
		return KindUnknown, ErrSymbolNotFound
	}
	return node.Meta().(*entry).kind, nil
}

// Complete returns the symbol names starting with prefix, shortest first.
func (t *Table) Complete(prefix string) []string {
	if len(t.entries) == 0 {
		return nil
	}
	names := t.names.PrefixSearch(prefix)
	sort.SliceStable(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) < len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}
