package axsnap

import (
	"errors"
	"fmt"
	"sync"
)

// Page owns everything ref-related for one browser page: the counter
// allocator, the ref map, and one generation of snapshot history. Captures
// for the same page are serialized; captures for different pages share
// nothing and run fully concurrently.
type Page struct {
	ContextIndex int
	PageIndex    int

	provider Provider

	// capMu serializes whole captures. stateMu guards the committed state
	// and is held only briefly: during the commit swap and during ref
	// resolution, never across fetch or build work.
	capMu   sync.Mutex
	stateMu sync.RWMutex
	frame   FrameHandle
	alloc   RefAllocator
	refs    *RefMap
	prev    *Snapshot
	version uint64
}

// NewPage creates the ref state for a page rooted at the given main frame.
// Context and page indices come from the session registry and are never
// reused across the process lifetime.
func NewPage(contextIndex, pageIndex int, provider Provider, main FrameHandle) *Page {
	return &Page{
		ContextIndex: contextIndex,
		PageIndex:    pageIndex,
		provider:     provider,
		frame:        main,
		refs:         NewRefMap(),
	}
}

// Provider returns the raw capture provider backing this page.
func (p *Page) Provider() Provider {
	return p.provider
}

// MainFrame returns the current main frame handle.
func (p *Page) MainFrame() FrameHandle {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.frame
}

// Version returns the committed snapshot version, 0 before the first capture.
func (p *Page) Version() uint64 {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.version
}

// Previous returns the stored previous snapshot, or nil.
func (p *Page) Previous() *Snapshot {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.prev
}

// RefCount returns the number of live ref bindings.
func (p *Page) RefCount() int {
	return p.refs.Len()
}

// HandleNavigation is the navigation-commit callback. The stored snapshot
// and every ref binding die with the old document; the next capture is
// necessarily a full one. The counter is deliberately not reset, so refs
// from before the navigation can never alias new elements.
func (p *Page) HandleNavigation(main FrameHandle) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.frame = main
	p.prev = nil
	p.refs.Clear()
}

// ResolveRef validates a ref string against this page's scope and resolves
// it to the native node identifier. No fallback heuristics on a miss:
// correctness over convenience.
func (p *Page) ResolveRef(ref string) (int64, error) {
	id, err := ParseRef(ref)
	if err != nil {
		return 0, err
	}
	if id.Context != p.ContextIndex {
		return 0, fmt.Errorf("%w: ref %s used on context %d", ErrContextMismatch, ref, p.ContextIndex)
	}
	if id.Page != p.PageIndex {
		return 0, fmt.Errorf("%w: ref %s used on page %d", ErrPageMismatch, ref, p.PageIndex)
	}
	entry, ok := p.refs.Lookup(id.Counter)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrStaleRef, ref)
	}
	if !entry.Resolvable {
		return 0, fmt.Errorf("%w: %s", ErrUnresolvable, ref)
	}
	return entry.BackendID, nil
}

// IsScopeError reports whether err is one of the ref scope violations.
func IsScopeError(err error) bool {
	return errors.Is(err, ErrContextMismatch) || errors.Is(err, ErrPageMismatch)
}
