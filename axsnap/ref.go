package axsnap

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// RefID is the parsed form of an opaque ref string c{context}p{page}e{counter}.
// Context and page indices are assigned once when the context/page is created
// and never reused; the counter is monotonic within one page's lifetime.
type RefID struct {
	Context int
	Page    int
	Counter uint64
}

func (r RefID) String() string {
	return fmt.Sprintf("c%dp%de%d", r.Context, r.Page, r.Counter)
}

// ParseRef parses a ref string. Malformed input returns ErrInvalidRefFormat.
func ParseRef(s string) (RefID, error) {
	rest, ok := strings.CutPrefix(s, "c")
	if !ok {
		return RefID{}, fmt.Errorf("%w: %q", ErrInvalidRefFormat, s)
	}
	cPart, rest, ok := strings.Cut(rest, "p")
	if !ok {
		return RefID{}, fmt.Errorf("%w: %q", ErrInvalidRefFormat, s)
	}
	pPart, ePart, ok := strings.Cut(rest, "e")
	if !ok {
		return RefID{}, fmt.Errorf("%w: %q", ErrInvalidRefFormat, s)
	}
	ctx, err := parseIndex(cPart)
	if err != nil {
		return RefID{}, fmt.Errorf("%w: %q", ErrInvalidRefFormat, s)
	}
	page, err := parseIndex(pPart)
	if err != nil {
		return RefID{}, fmt.Errorf("%w: %q", ErrInvalidRefFormat, s)
	}
	counter, err := parseCounter(ePart)
	if err != nil {
		return RefID{}, fmt.Errorf("%w: %q", ErrInvalidRefFormat, s)
	}
	return RefID{Context: ctx, Page: page, Counter: counter}, nil
}

func parseIndex(s string) (int, error) {
	n, err := parseCounter(s)
	return int(n), err
}

func parseCounter(s string) (uint64, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	// strconv accepts a leading "+"; refs never carry signs.
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.ParseUint(s, 10, 64)
}

// RefAllocator issues strictly increasing counters for one page. Counters
// start at 1 and are never reset, not even across navigations: a counter
// once issued is never reissued for a different element.
type RefAllocator struct {
	next atomic.Uint64
}

// Next returns the next unused counter.
func (a *RefAllocator) Next() uint64 {
	return a.next.Add(1)
}

// Issued returns the highest counter issued so far.
func (a *RefAllocator) Issued() uint64 {
	return a.next.Load()
}

// RefEntry is one ref map binding. Resolvable is false for nodes the capture
// provider returned without a native identifier: the node is real but the
// interaction layer cannot target it.
type RefEntry struct {
	BackendID  int64
	Resolvable bool
}

// RefMap maps ref counters to native node identifiers for one page. It is
// replaced wholesale on full captures and patched on diff captures.
type RefMap struct {
	mu      sync.RWMutex
	entries map[uint64]RefEntry
}

func NewRefMap() *RefMap {
	return &RefMap{entries: make(map[uint64]RefEntry)}
}

// Bind records or overwrites a mapping. Idempotent.
func (m *RefMap) Bind(counter uint64, entry RefEntry) {
	m.mu.Lock()
	m.entries[counter] = entry
	m.mu.Unlock()
}

// Invalidate removes a mapping; later lookups fail.
func (m *RefMap) Invalidate(counter uint64) {
	m.mu.Lock()
	delete(m.entries, counter)
	m.mu.Unlock()
}

// Lookup returns the binding for a counter.
func (m *RefMap) Lookup(counter uint64) (RefEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[counter]
	return e, ok
}

// Replace swaps in a complete new table.
func (m *RefMap) Replace(entries map[uint64]RefEntry) {
	if entries == nil {
		entries = make(map[uint64]RefEntry)
	}
	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
}

// Clear drops every binding. Used on navigation commit.
func (m *RefMap) Clear() {
	m.Replace(nil)
}

// Len returns the number of live bindings.
func (m *RefMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
