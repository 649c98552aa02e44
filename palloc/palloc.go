// Package palloc is the page-granularity allocator the thread layer
// obtains kernel stack pages from.
//
// Pages come from a fixed pool sized at boot and are handed out from a
// free list, most recently freed first. There is no fallback: when the
// pool is empty GetPage returns nil and the caller deals with it. Each
// page carries a packed flag word recording its allocation state.
package palloc

import (
	"github.com/KosalSout1234/pintos/bitfield"
)

// PGSIZE is the size of a page in bytes.
const PGSIZE = 4096

// Flags control how GetPage behaves.
type Flags uint8

const (
	// Zero clears the page before returning it.
	Zero Flags = 1 << iota
)

// Page is one PGSIZE page plus its metadata. Data backs a thread's
// kernel stack in the running system; the free-list links are only
// meaningful while the page is free.
type Page struct {
	Data [PGSIZE]byte

	flags      uint32
	next, prev *Page
}

// Allocated reports whether p is currently handed out.
func (p *Page) Allocated() bool {
	return bitfield.UnpackPageFlags(p.flags).Allocated
}

var (
	pool      []Page
	freePages *Page
	nfree     int
)

// Init sets up a pool of npages free pages, discarding any previous
// pool. Called once at boot, before the first thread is created.
func Init(npages int) {
	pool = make([]Page, npages)
	freePages = nil
	nfree = 0
	for i := npages - 1; i >= 0; i-- {
		freeListPush(&pool[i])
	}
}

// FreePages returns the number of pages currently available.
func FreePages() int {
	return nfree
}

// GetPage allocates a single page and returns it, or nil if no free
// pages are available.
func GetPage(flags Flags) *Page {
	if freePages == nil {
		return nil
	}

	page := freePages
	freePages = page.next
	if freePages != nil {
		freePages.prev = nil
	}
	page.next = nil
	page.prev = nil
	nfree--

	zeroed := flags&Zero != 0
	if zeroed {
		page.Data = [PGSIZE]byte{}
	}
	packed, _ := bitfield.PackPageFlags(bitfield.PageFlags{
		Allocated: true,
		Kernel:    true,
		Zeroed:    zeroed,
	})
	page.flags = packed

	return page
}

// FreePage returns a previously allocated page to the pool. Freeing nil
// is a no-op; freeing a page that is not allocated is a bug in the
// caller and panics.
func FreePage(page *Page) {
	if page == nil {
		return
	}
	if !page.Allocated() {
		panic("palloc: double free")
	}
	freeListPush(page)
}

// freeListPush marks page free and pushes it onto the free-list head.
func freeListPush(page *Page) {
	packed, _ := bitfield.PackPageFlags(bitfield.PageFlags{})
	page.flags = packed
	page.next = freePages
	page.prev = nil
	if freePages != nil {
		freePages.prev = page
	}
	freePages = page
	nfree++
}
