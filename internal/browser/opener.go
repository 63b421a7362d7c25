package browser

import (
	"context"
	"log/slog"

	"github.com/stephenstubbs/viewpoint/axsnap"
	"github.com/stephenstubbs/viewpoint/session"
)

// Opener creates registry pages backed by real browser tabs. It satisfies
// the opener contract of both the HTTP API and the MCP server.
type Opener struct {
	mgr    *Manager
	reg    *session.Registry
	sess   *session.Context
	logger *slog.Logger

	watchCtx context.Context
}

// NewOpener builds an opener that registers pages in the given context.
// watchCtx bounds the navigation watchers of every opened tab.
func NewOpener(watchCtx context.Context, mgr *Manager, reg *session.Registry, sess *session.Context, logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{mgr: mgr, reg: reg, sess: sess, logger: logger, watchCtx: watchCtx}
}

// OpenPage opens a tab at url, registers it as a page and starts the
// navigation watcher that invalidates its refs on document change.
func (o *Opener) OpenPage(ctx context.Context, url string) (*session.PageHandle, error) {
	tab, err := OpenTab(ctx, o.mgr, url)
	if err != nil {
		return nil, err
	}

	main, err := tab.MainFrame(ctx)
	if err != nil {
		tab.Close()
		return nil, err
	}

	prov := NewProvider(tab, o.logger)
	h := o.sess.NewPage(prov, main, url)

	tab.WatchNavigation(o.watchCtx, func(main axsnap.FrameHandle, navURL string) {
		o.reg.NavigationCommitted(h.ID, main, navURL)
	})
	return h, nil
}
