package gdbstub

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

const (
	PageSize = 0x1000
	pageMask = PageSize - 1

	defaultCachePages = 256
)

var ErrForeignSpace = errors.New("address space is not the current one")

type memStub interface {
	ReadMemory(addr uint64, buf []byte) (int, error)
}

type pageKey struct {
	space uint64
	page  uint64
}

// Memory gives the console guest memory as seen from the stopped vCPU. The
// stub can only translate through the current CR3, so any other space is
// reported as invalid. Pages, mapped or not, are cached until Purge.
type Memory struct {
	stub  memStub
	space uint64
	cache *lru.Cache
}

func NewMemory(stub memStub, pages int) (*Memory, error) {
	if pages <= 0 {
		pages = defaultCachePages
	}
	c, err := lru.New(pages)
	if err != nil {
		return nil, err
	}
	return &Memory{stub: stub, cache: c}, nil
}

// SetSpace records the address space of the latest stop.
func (m *Memory) SetSpace(space uint64) {
	m.space = space
}

// Purge drops every cached page. The guest may change anything once it runs.
func (m *Memory) Purge() {
	m.cache.Purge()
}

// page returns the cached page at page-aligned addr, or nil if it is not
// mapped.
func (m *Memory) page(space, addr uint64) []byte {
	key := pageKey{space, addr}
	if v, ok := m.cache.Get(key); ok {
		return v.([]byte)
	}
	buf := make([]byte, PageSize)
	if _, err := m.stub.ReadMemory(addr, buf); err != nil {
		buf = nil
	}
	m.cache.Add(key, buf)
	return buf
}

func (m *Memory) IsAddressValid(space, addr uint64) bool {
	if space != m.space {
		return false
	}
	return m.page(space, addr&^pageMask) != nil
}

func (m *Memory) ReadVirtualRegion(space, addr uint64, buf []byte) (int, error) {
	if space != m.space {
		return 0, ErrForeignSpace
	}
	n := 0
	for n < len(buf) {
		cur := addr + uint64(n)
		p := m.page(space, cur&^pageMask)
		if p == nil {
			return n, fmt.Errorf("%w: %#x not mapped", ErrStub, cur)
		}
		n += copy(buf[n:], p[cur&pageMask:])
	}
	return n, nil
}
