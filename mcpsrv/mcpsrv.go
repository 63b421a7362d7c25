// Package mcpsrv registers viewpoint's snapshot tools on an MCP server so
// agents can read and reference page structure without raw DOM access.
package mcpsrv

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/stephenstubbs/viewpoint/axsnap"
	"github.com/stephenstubbs/viewpoint/internal/config"
	"github.com/stephenstubbs/viewpoint/kit"
	"github.com/stephenstubbs/viewpoint/session"
)

// Opener creates pages on demand, same contract as the HTTP API's opener.
type Opener interface {
	OpenPage(ctx context.Context, url string) (*session.PageHandle, error)
}

// Service exposes the snapshot engine as MCP tools.
type Service struct {
	logger  *slog.Logger
	reg     *session.Registry
	engine  *axsnap.Engine
	opener  Opener
	capture config.CaptureConfig
}

// NewService builds the MCP tool service.
func NewService(logger *slog.Logger, reg *session.Registry, engine *axsnap.Engine, opener Opener, capture config.CaptureConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, reg: reg, engine: engine, opener: opener, capture: capture}
}

// RegisterMCP registers all viewpoint tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerOpenPageTool(srv)
	s.registerListPagesTool(srv)
	s.registerSnapshotTool(srv)
	s.registerResolveRefTool(srv)
}

func mcpEnrich(ctx context.Context) context.Context {
	return kit.WithTransport(ctx, "mcp")
}

// PageSummary is the tool-facing view of a live page.
type PageSummary struct {
	PageID       string `json:"page_id"`
	ContextIndex int    `json:"context_index"`
	PageIndex    int    `json:"page_index"`
	URL          string `json:"url"`
	Version      uint64 `json:"version"`
	RefCount     int    `json:"ref_count"`
}

func pageSummary(h *session.PageHandle) PageSummary {
	return PageSummary{
		PageID:       h.ID,
		ContextIndex: h.Page.ContextIndex,
		PageIndex:    h.Page.PageIndex,
		URL:          h.URL(),
		Version:      h.Page.Version(),
		RefCount:     h.Page.RefCount(),
	}
}

// --- open_page ---

type openPageRequest struct {
	URL string `json:"url"`
}

func (s *Service) registerOpenPageTool(srv *mcp.Server) {
	spec := kit.ToolSpec{
		Name:        "viewpoint_open_page",
		Description: "Open a page and register it for snapshotting. Returns the page ID used by the other tools.",
		Properties: map[string]any{
			"url": map[string]any{"type": "string", "description": "Document URL to open"},
		},
		Required: []string{"url"},
	}

	kit.RegisterTool[openPageRequest](srv, spec, mcpEnrich, func(ctx context.Context, req any) (any, error) {
		r := req.(*openPageRequest)
		if r.URL == "" {
			return nil, fmt.Errorf("url required")
		}
		h, err := s.opener.OpenPage(ctx, r.URL)
		if err != nil {
			return nil, err
		}
		return pageSummary(h), nil
	})
}

// --- list_pages ---

type listPagesRequest struct{}

func (s *Service) registerListPagesTool(srv *mcp.Server) {
	spec := kit.ToolSpec{
		Name:        "viewpoint_list_pages",
		Description: "List all open pages with their IDs, scope indices and snapshot versions.",
		Properties:  map[string]any{},
	}

	kit.RegisterTool[listPagesRequest](srv, spec, mcpEnrich, func(_ context.Context, _ any) (any, error) {
		pages := s.reg.Pages()
		out := make([]PageSummary, 0, len(pages))
		for _, h := range pages {
			out = append(out, pageSummary(h))
		}
		return map[string]any{"pages": out}, nil
	})
}

// --- snapshot ---

type snapshotRequest struct {
	PageID       string `json:"page_id"`
	Format       string `json:"format,omitempty"` // "text" (default) or "tree"
	IncludeRefs  *bool  `json:"include_refs,omitempty"`
	SinceVersion uint64 `json:"since_version,omitempty"`
}

func (s *Service) registerSnapshotTool(srv *mcp.Server) {
	spec := kit.ToolSpec{
		Name: "viewpoint_snapshot",
		Description: "Capture the accessibility tree of a page. Pass since_version to get a diff " +
			"against an earlier capture. Refs in the output can be passed to viewpoint_resolve_ref.",
		Properties: map[string]any{
			"page_id":       map[string]any{"type": "string", "description": "Page ID from viewpoint_open_page or viewpoint_list_pages"},
			"format":        map[string]any{"type": "string", "enum": []any{"text", "tree"}, "description": "Output format (default: text)"},
			"include_refs":  map[string]any{"type": "boolean", "description": "Assign element refs (default: true)"},
			"since_version": map[string]any{"type": "integer", "description": "Return a diff relative to this snapshot version"},
		},
		Required: []string{"page_id"},
	}

	kit.RegisterTool[snapshotRequest](srv, spec, mcpEnrich, func(ctx context.Context, req any) (any, error) {
		r := req.(*snapshotRequest)
		if r.PageID == "" {
			return nil, fmt.Errorf("page_id required")
		}
		h, err := s.reg.Page(r.PageID)
		if err != nil {
			return nil, err
		}

		opts := axsnap.DefaultOptions()
		opts.IncludeRefs = true
		opts.MaxConcurrency = s.capture.MaxConcurrency
		opts.FanOutThreshold = s.capture.FanOutThreshold
		opts.Deadline = s.capture.Deadline
		if r.IncludeRefs != nil {
			opts.IncludeRefs = *r.IncludeRefs
		}
		opts.SinceVersion = r.SinceVersion

		res, err := s.engine.Capture(ctx, h.Page, opts)
		if err != nil {
			return nil, err
		}

		if r.Format == "tree" || res.Full == nil {
			return res, nil
		}
		return map[string]any{
			"version":    res.Full.Version,
			"node_count": res.Full.NodeCount(),
			"partial":    res.Partial,
			"outline":    res.Full.Outline(),
		}, nil
	})
}

// --- resolve_ref ---

type resolveRefRequest struct {
	PageID string `json:"page_id"`
	Ref    string `json:"ref"`
}

func (s *Service) registerResolveRefTool(srv *mcp.Server) {
	spec := kit.ToolSpec{
		Name: "viewpoint_resolve_ref",
		Description: "Resolve a snapshot ref (e.g. c0p0e5) to the page's native node identifier. " +
			"Fails when the ref belongs to another page or was invalidated by navigation.",
		Properties: map[string]any{
			"page_id": map[string]any{"type": "string", "description": "Page ID the ref belongs to"},
			"ref":     map[string]any{"type": "string", "description": "Ref string from a snapshot"},
		},
		Required: []string{"page_id", "ref"},
	}

	kit.RegisterTool[resolveRefRequest](srv, spec, mcpEnrich, func(_ context.Context, req any) (any, error) {
		r := req.(*resolveRefRequest)
		if r.PageID == "" || r.Ref == "" {
			return nil, fmt.Errorf("page_id and ref required")
		}
		h, err := s.reg.Page(r.PageID)
		if err != nil {
			return nil, err
		}
		backendID, err := h.Page.ResolveRef(r.Ref)
		if err != nil {
			return nil, err
		}
		return map[string]any{"ref": r.Ref, "backend_id": backendID}, nil
	})
}
