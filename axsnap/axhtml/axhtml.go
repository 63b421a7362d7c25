// Package axhtml provides an axsnap.Provider over static HTML documents.
//
// It backs offline snapshots (captured HTML on disk, no browser) and the
// test fixtures for the engine. Frames are modeled as a set of documents
// keyed by URL: an <iframe src> whose URL is present in the set behaves
// like a same-origin frame, anything else degrades to an opaque boundary,
// which is exactly how a cross-origin frame looks through a real browser.
package axhtml

import (
	"context"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/net/html"

	"github.com/stephenstubbs/viewpoint/axsnap"
)

// Provider serves raw trees parsed from static HTML.
type Provider struct {
	main string
	docs map[string]*document
}

type document struct {
	root   *axsnap.RawNode
	frames []axsnap.FrameHandle
}

// New parses the given documents. docs maps URL to HTML source and must
// contain mainURL. Parsing happens once, up front; fetches afterwards are
// lookups and safe for concurrent use.
func New(mainURL string, docs map[string]string) (*Provider, error) {
	p := &Provider{main: mainURL, docs: make(map[string]*document, len(docs))}
	for url, src := range docs {
		doc, err := parseDocument(url, src)
		if err != nil {
			return nil, fmt.Errorf("axhtml: parse %s: %w", url, err)
		}
		p.docs[url] = doc
	}
	if p.docs[mainURL] == nil {
		return nil, fmt.Errorf("axhtml: main document %s not in set", mainURL)
	}
	return p, nil
}

// MainFrame returns the handle for the main document.
func (p *Provider) MainFrame() axsnap.FrameHandle {
	return axsnap.FrameHandle{ID: p.main, URL: p.main}
}

// FetchTree implements axsnap.Provider.
func (p *Provider) FetchTree(ctx context.Context, frame axsnap.FrameHandle) (*axsnap.RawNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc := p.docs[frame.ID]
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", axsnap.ErrFrameUnavailable, frame.ID)
	}
	return doc.root, nil
}

// ChildFrames implements axsnap.Provider. Every iframe with a src is
// reported; unfetchable ones fail at FetchTree and degrade there.
func (p *Provider) ChildFrames(ctx context.Context, frame axsnap.FrameHandle) ([]axsnap.FrameHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc := p.docs[frame.ID]
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", axsnap.ErrFrameUnavailable, frame.ID)
	}
	return doc.frames, nil
}

func parseDocument(url, src string) (*document, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	doc := &document{}
	conv := &converter{url: url, doc: doc}
	htmlNode := findElement(root, "html")
	if htmlNode == nil {
		return nil, fmt.Errorf("no html element")
	}
	doc.root = conv.element(htmlNode, "")
	return doc, nil
}

// converter walks the x/net/html tree into RawNodes. Native identifiers
// are synthesized from the element's structural path, so an element that
// does not move keeps the same identifier across reparses — the property
// the ref-stability guarantees lean on.
type converter struct {
	url string
	doc *document
}

func (c *converter) element(n *html.Node, parentPath string) *axsnap.RawNode {
	path := c.childPath(n, parentPath)
	raw := &axsnap.RawNode{
		Tag:       n.Data,
		BackendID: c.backendID(path),
	}
	if len(n.Attr) > 0 {
		raw.Attrs = make(map[string]string, len(n.Attr))
		for _, a := range n.Attr {
			raw.Attrs[a.Key] = a.Val
		}
	}

	var text []string
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case html.TextNode:
			if s := strings.TrimSpace(child.Data); s != "" {
				text = append(text, s)
			}
		case html.ElementNode:
			raw.Children = append(raw.Children, c.element(child, path))
		}
	}
	raw.Text = strings.Join(text, " ")

	if n.Data == "iframe" {
		if src := raw.Attr("src"); src != "" {
			raw.Frame = &axsnap.FrameRef{ID: src, Name: raw.Attr("name"), URL: src}
			c.doc.frames = append(c.doc.frames, axsnap.FrameHandle{ID: src, URL: src})
		}
	}
	return raw
}

// childPath builds a /html[1]/body[1]/button[2] style path with per-tag
// sibling indices.
func (c *converter) childPath(n *html.Node, parentPath string) string {
	idx := 1
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && sib.Data == n.Data {
			idx++
		}
	}
	return fmt.Sprintf("%s/%s[%d]", parentPath, n.Data, idx)
}

func (c *converter) backendID(path string) int64 {
	id := int64(xxhash.Sum64String(c.url+"|"+path) & (1<<62 - 1))
	if id == 0 {
		id = 1
	}
	return id
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}
