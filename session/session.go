// Package session tracks browser contexts and pages and hands out the
// never-reused indices that scope every ref. The registry is also the
// navigation-lifecycle listener: a navigation commit clears the affected
// page's ref state through here.
package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/stephenstubbs/viewpoint/axsnap"
	"github.com/stephenstubbs/viewpoint/idgen"
)

// Registry owns all contexts and pages for one process.
type Registry struct {
	logger    *slog.Logger
	newPageID idgen.Generator

	mu          sync.Mutex
	nextContext int
	pages       map[string]*PageHandle
	order       []string // page IDs in creation order
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:    logger,
		newPageID: idgen.Prefixed("page_", idgen.NanoID(12)),
		pages:     make(map[string]*PageHandle),
	}
}

// Context is one isolated browser context. Its index is assigned once and
// never reused, even after the context is gone.
type Context struct {
	Index int

	reg *Registry

	mu       sync.Mutex
	nextPage int
}

// NewContext allocates the next context index.
func (r *Registry) NewContext() *Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := &Context{Index: r.nextContext, reg: r}
	r.nextContext++
	return c
}

// PageHandle pairs a page's ref state with its registry bookkeeping.
type PageHandle struct {
	ID   string
	Page *axsnap.Page

	mu  sync.Mutex
	url string
}

// URL returns the page's current document URL.
func (h *PageHandle) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

// NewPage creates a page in this context, backed by the given provider and
// rooted at the given main frame.
func (c *Context) NewPage(provider axsnap.Provider, main axsnap.FrameHandle, url string) *PageHandle {
	c.mu.Lock()
	pageIndex := c.nextPage
	c.nextPage++
	c.mu.Unlock()

	h := &PageHandle{
		ID:   c.reg.newPageID(),
		Page: axsnap.NewPage(c.Index, pageIndex, provider, main),
		url:  url,
	}

	c.reg.mu.Lock()
	c.reg.pages[h.ID] = h
	c.reg.order = append(c.reg.order, h.ID)
	c.reg.mu.Unlock()

	c.reg.logger.Info("session: page created",
		"page_id", h.ID, "context", c.Index, "page", pageIndex, "url", url)
	return h
}

// Page looks up a page by registry ID.
func (r *Registry) Page(id string) (*PageHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.pages[id]
	if !ok {
		return nil, fmt.Errorf("session: unknown page %q", id)
	}
	return h, nil
}

// Pages returns all live pages in creation order.
func (r *Registry) Pages() []*PageHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*PageHandle, 0, len(r.order))
	for _, id := range r.order {
		if h, ok := r.pages[id]; ok {
			out = append(out, h)
		}
	}
	return out
}

// NavigationCommitted is the navigation-commit callback. The page's stored
// snapshot and ref map are cleared; indices and the ref counter survive.
func (r *Registry) NavigationCommitted(pageID string, main axsnap.FrameHandle, url string) {
	h, err := r.Page(pageID)
	if err != nil {
		r.logger.Warn("session: navigation for unknown page", "page_id", pageID, "url", url)
		return
	}
	h.Page.HandleNavigation(main)
	h.mu.Lock()
	h.url = url
	h.mu.Unlock()
	r.logger.Info("session: navigation committed, refs invalidated",
		"page_id", pageID, "url", url)
}

// ClosePage removes a page from the registry. Its indices are never handed
// out again.
func (r *Registry) ClosePage(id string) {
	r.mu.Lock()
	delete(r.pages, id)
	r.mu.Unlock()
}
