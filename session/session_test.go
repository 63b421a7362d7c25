package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stephenstubbs/viewpoint/axsnap"
	"github.com/stephenstubbs/viewpoint/axsnap/axhtml"
)

func testRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testProvider(t *testing.T, url, src string) *axhtml.Provider {
	t.Helper()
	prov, err := axhtml.New(url, map[string]string{url: src})
	if err != nil {
		t.Fatal(err)
	}
	return prov
}

func TestContextIndicesMonotonic(t *testing.T) {
	reg := testRegistry()
	for want := 0; want < 3; want++ {
		if c := reg.NewContext(); c.Index != want {
			t.Fatalf("context index = %d, want %d", c.Index, want)
		}
	}
}

func TestPageIndicesPerContext(t *testing.T) {
	reg := testRegistry()
	c0, c1 := reg.NewContext(), reg.NewContext()
	prov := testProvider(t, "https://a", "<html><body></body></html>")
	main := prov.MainFrame()

	p0 := c0.NewPage(prov, main, "https://a")
	p1 := c0.NewPage(prov, main, "https://a")
	q0 := c1.NewPage(prov, main, "https://a")

	if p0.Page.PageIndex != 0 || p1.Page.PageIndex != 1 {
		t.Errorf("c0 page indices = %d, %d", p0.Page.PageIndex, p1.Page.PageIndex)
	}
	// Page indices are per-context: a new context starts at 0 again.
	if q0.Page.ContextIndex != 1 || q0.Page.PageIndex != 0 {
		t.Errorf("c1 page scope = c%dp%d", q0.Page.ContextIndex, q0.Page.PageIndex)
	}
	if !strings.HasPrefix(p0.ID, "page_") || p0.ID == p1.ID {
		t.Errorf("page ids = %q, %q", p0.ID, p1.ID)
	}
}

func TestPageLookup(t *testing.T) {
	reg := testRegistry()
	c := reg.NewContext()
	prov := testProvider(t, "https://a", "<html><body></body></html>")
	h := c.NewPage(prov, prov.MainFrame(), "https://a")

	got, err := reg.Page(h.ID)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if got != h {
		t.Fatal("lookup returned a different handle")
	}
	if _, err := reg.Page("page_nope"); err == nil {
		t.Fatal("expected error for unknown page")
	}
}

func TestPagesCreationOrder(t *testing.T) {
	reg := testRegistry()
	c := reg.NewContext()
	prov := testProvider(t, "https://a", "<html><body></body></html>")
	var want []string
	for i := 0; i < 3; i++ {
		want = append(want, c.NewPage(prov, prov.MainFrame(), "https://a").ID)
	}
	reg.ClosePage(want[1])

	pages := reg.Pages()
	if len(pages) != 2 || pages[0].ID != want[0] || pages[1].ID != want[2] {
		t.Fatalf("pages = %+v, want [%s %s]", pages, want[0], want[2])
	}
}

func TestNavigationCommitted(t *testing.T) {
	reg := testRegistry()
	c := reg.NewContext()
	prov, err := axhtml.New("https://a", map[string]string{
		"https://a": "<html><body><button>Go</button></body></html>",
		"https://b": "<html><body><button>Go</button></body></html>",
	})
	if err != nil {
		t.Fatal(err)
	}
	h := c.NewPage(prov, prov.MainFrame(), "https://a")

	engine := axsnap.New(axsnap.Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if _, err := engine.Capture(context.Background(), h.Page, axsnap.DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Page.ResolveRef("c0p0e1"); err != nil {
		t.Fatalf("pre-navigation resolve: %v", err)
	}

	reg.NavigationCommitted(h.ID, axsnap.FrameHandle{ID: "https://b", URL: "https://b"}, "https://b")

	if h.URL() != "https://b" {
		t.Errorf("url = %q", h.URL())
	}
	if _, err := h.Page.ResolveRef("c0p0e1"); !errors.Is(err, axsnap.ErrStaleRef) {
		t.Fatalf("post-navigation resolve err = %v, want ErrStaleRef", err)
	}

	// Capture against the new document: counters continue, never reset.
	res, err := engine.Capture(context.Background(), h.Page, axsnap.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Full.Root.Children[0].Ref; got != "c0p0e2" {
		t.Fatalf("post-navigation ref = %q, want c0p0e2", got)
	}
}

func TestNavigationUnknownPage(t *testing.T) {
	reg := testRegistry()
	// Must not panic; the warning path absorbs races with page close.
	reg.NavigationCommitted("page_gone", axsnap.FrameHandle{ID: "x"}, "https://x")
}

func TestClosePage(t *testing.T) {
	reg := testRegistry()
	c := reg.NewContext()
	prov := testProvider(t, "https://a", "<html><body></body></html>")
	h := c.NewPage(prov, prov.MainFrame(), "https://a")

	reg.ClosePage(h.ID)
	if _, err := reg.Page(h.ID); err == nil {
		t.Fatal("closed page still resolvable")
	}
	// Closing again is harmless.
	reg.ClosePage(h.ID)

	// The context index is not reused by a later page.
	h2 := c.NewPage(prov, prov.MainFrame(), "https://a")
	if h2.Page.PageIndex != 1 {
		t.Fatalf("page index after close = %d, want 1", h2.Page.PageIndex)
	}
}
