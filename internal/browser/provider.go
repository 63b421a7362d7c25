package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/stephenstubbs/viewpoint/axsnap"
)

// CDPProvider implements axsnap.Provider over one tab. Each frame fetch is
// a single CDP round trip; the engine fans them out concurrently, so every
// method here must be safe under parallel calls.
type CDPProvider struct {
	page   *rod.Page
	logger *slog.Logger
}

// NewProvider creates a provider for the given tab.
func NewProvider(tab *Tab, logger *slog.Logger) *CDPProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CDPProvider{page: tab.Page, logger: logger}
}

// FetchTree implements axsnap.Provider. The main frame fetches via
// DOM.getDocument; child frames resolve their owner element first and
// describe its content document. Cross-origin frames live in another
// renderer process and come back without content: ErrFrameUnavailable.
func (p *CDPProvider) FetchTree(ctx context.Context, frame axsnap.FrameHandle) (*axsnap.RawNode, error) {
	pg := p.page.Context(ctx)
	depth := -1

	main, err := p.mainFrameID(pg)
	if err != nil {
		return nil, err
	}

	var node *proto.DOMNode
	if frame.ID == string(main) {
		doc, err := proto.DOMGetDocument{Depth: &depth}.Call(pg)
		if err != nil {
			return nil, fmt.Errorf("browser: DOM.getDocument: %w", err)
		}
		node = doc.Root
	} else {
		owner, err := proto.DOMGetFrameOwner{FrameID: proto.PageFrameID(frame.ID)}.Call(pg)
		if err != nil {
			return nil, fmt.Errorf("%w: frame %s: %v", axsnap.ErrFrameUnavailable, frame.ID, err)
		}
		desc, err := proto.DOMDescribeNode{BackendNodeID: owner.BackendNodeID, Depth: &depth}.Call(pg)
		if err != nil {
			return nil, fmt.Errorf("browser: DOM.describeNode: %w", err)
		}
		if desc.Node == nil || desc.Node.ContentDocument == nil || len(desc.Node.ContentDocument.Children) == 0 {
			return nil, fmt.Errorf("%w: frame %s has no reachable document", axsnap.ErrFrameUnavailable, frame.ID)
		}
		node = desc.Node.ContentDocument
	}

	raw := convertNode(node)
	if raw == nil {
		return nil, fmt.Errorf("browser: frame %s: empty document", frame.ID)
	}
	return raw, nil
}

// ChildFrames implements axsnap.Provider using the page frame tree.
func (p *CDPProvider) ChildFrames(ctx context.Context, frame axsnap.FrameHandle) ([]axsnap.FrameHandle, error) {
	pg := p.page.Context(ctx)
	res, err := proto.PageGetFrameTree{}.Call(pg)
	if err != nil {
		return nil, fmt.Errorf("browser: frame tree: %w", err)
	}
	sub := findFrameTree(res.FrameTree, proto.PageFrameID(frame.ID))
	if sub == nil {
		return nil, nil
	}
	var out []axsnap.FrameHandle
	for _, child := range sub.ChildFrames {
		out = append(out, axsnap.FrameHandle{ID: string(child.Frame.ID), URL: child.Frame.URL})
	}
	return out, nil
}

func (p *CDPProvider) mainFrameID(pg *rod.Page) (proto.PageFrameID, error) {
	res, err := proto.PageGetFrameTree{}.Call(pg)
	if err != nil {
		return "", fmt.Errorf("browser: frame tree: %w", err)
	}
	return res.FrameTree.Frame.ID, nil
}

func findFrameTree(t *proto.PageFrameTree, id proto.PageFrameID) *proto.PageFrameTree {
	if t == nil {
		return nil
	}
	if t.Frame.ID == id {
		return t
	}
	for _, c := range t.ChildFrames {
		if found := findFrameTree(c, id); found != nil {
			return found
		}
	}
	return nil
}

// convertNode maps a CDP DOM node to the provider-neutral payload. Document
// nodes collapse to their root element; text nodes fold into their parent's
// Text; iframe elements become frame markers with no inline children.
//
// A node the protocol returns without a backend identifier stays in the
// tree with BackendID zero: present but unresolvable, and surfaced as such
// at resolve time instead of being silently dropped.
func convertNode(node *proto.DOMNode) *axsnap.RawNode {
	if node == nil {
		return nil
	}
	if node.NodeType == 9 { // document
		for _, c := range node.Children {
			if c.NodeType == 1 {
				return convertNode(c)
			}
		}
		return nil
	}
	if node.NodeType != 1 {
		return nil
	}

	raw := &axsnap.RawNode{
		Tag:       strings.ToLower(node.NodeName),
		BackendID: int64(node.BackendNodeID),
	}
	if len(node.Attributes) >= 2 {
		raw.Attrs = make(map[string]string, len(node.Attributes)/2)
		for i := 0; i+1 < len(node.Attributes); i += 2 {
			raw.Attrs[strings.ToLower(node.Attributes[i])] = node.Attributes[i+1]
		}
	}

	if raw.Tag == "iframe" || raw.Tag == "frame" {
		raw.Frame = &axsnap.FrameRef{
			ID:   string(node.FrameID),
			Name: raw.Attr("name"),
			URL:  raw.Attr("src"),
		}
		return raw
	}

	var text []string
	for _, c := range node.Children {
		switch c.NodeType {
		case 3: // text
			if s := strings.TrimSpace(c.NodeValue); s != "" {
				text = append(text, s)
			}
		case 1:
			if child := convertNode(c); child != nil {
				raw.Children = append(raw.Children, child)
			}
		}
	}
	raw.Text = strings.Join(text, " ")
	return raw
}
