package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/stephenstubbs/viewpoint/axsnap"
)

// Tab wraps a Rod page with capture-specific setup: stealth creation,
// navigation with timeout, and main-frame navigation tracking.
type Tab struct {
	Page    *rod.Page
	PageURL string
}

// OpenTab creates a new tab with stealth applied and navigates to the URL.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Tab{Page: page, PageURL: pageURL}, nil
}

// MainFrame returns the handle of the tab's main frame.
func (t *Tab) MainFrame(ctx context.Context) (axsnap.FrameHandle, error) {
	res, err := proto.PageGetFrameTree{}.Call(t.Page.Context(ctx))
	if err != nil {
		return axsnap.FrameHandle{}, fmt.Errorf("browser: frame tree: %w", err)
	}
	root := res.FrameTree.Frame
	return axsnap.FrameHandle{ID: string(root.ID), URL: root.URL}, nil
}

// WatchNavigation invokes onCommit for every main-frame navigation commit
// until ctx is done. The session registry uses this to invalidate a page's
// snapshot and ref map the moment the document changes.
func (t *Tab) WatchNavigation(ctx context.Context, onCommit func(main axsnap.FrameHandle, url string)) {
	go t.Page.Context(ctx).EachEvent(func(e *proto.PageFrameNavigated) {
		if e.Frame.ParentID != "" {
			return // child frame, handled by the next capture
		}
		onCommit(axsnap.FrameHandle{ID: string(e.Frame.ID), URL: e.Frame.URL}, e.Frame.URL)
	})()
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
