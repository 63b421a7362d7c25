// Package httpapi exposes the snapshot engine over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stephenstubbs/viewpoint/archive"
	"github.com/stephenstubbs/viewpoint/axsnap"
	"github.com/stephenstubbs/viewpoint/idgen"
	"github.com/stephenstubbs/viewpoint/internal/config"
	"github.com/stephenstubbs/viewpoint/kit"
	"github.com/stephenstubbs/viewpoint/session"
)

// Opener creates pages on demand. The browser wiring implements it; tests
// substitute a static-document opener.
type Opener interface {
	OpenPage(ctx context.Context, url string) (*session.PageHandle, error)
}

// Service holds the handler dependencies.
type Service struct {
	logger   *slog.Logger
	reg      *session.Registry
	engine   *axsnap.Engine
	opener   Opener
	arch     *archive.Store // nil when the archive is disabled
	capture  config.CaptureConfig
	newReqID idgen.Generator
}

// NewService wires the HTTP API. arch may be nil.
func NewService(logger *slog.Logger, reg *session.Registry, engine *axsnap.Engine, opener Opener, arch *archive.Store, capture config.CaptureConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:   logger,
		reg:      reg,
		engine:   engine,
		opener:   opener,
		arch:     arch,
		capture:  capture,
		newReqID: idgen.Prefixed("req_", idgen.NanoID(12)),
	}
}

// Router builds the chi router for the service.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestContext)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/pages", func(r chi.Router) {
		r.Post("/", s.handleOpenPage)
		r.Get("/", s.handleListPages)
		r.Route("/{pageID}", func(r chi.Router) {
			r.Delete("/", s.handleClosePage)
			r.Post("/snapshot", s.handleSnapshot)
			r.Get("/snapshot/text", s.handleSnapshotText)
			r.Post("/resolve", s.handleResolve)
			r.Get("/history", s.handleHistory)
		})
	})

	return r
}

// requestContext tags every request with an ID and the transport name.
func (s *Service) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithRequestID(r.Context(), s.newReqID())
		ctx = kit.WithTransport(ctx, "http")
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OpenPageRequest is the body for POST /pages.
type OpenPageRequest struct {
	URL string `json:"url"`
}

// PageInfo describes a live page.
type PageInfo struct {
	PageID       string `json:"page_id"`
	ContextIndex int    `json:"context_index"`
	PageIndex    int    `json:"page_index"`
	URL          string `json:"url"`
	Version      uint64 `json:"version"`
	RefCount     int    `json:"ref_count"`
}

func pageInfo(h *session.PageHandle) PageInfo {
	return PageInfo{
		PageID:       h.ID,
		ContextIndex: h.Page.ContextIndex,
		PageIndex:    h.Page.PageIndex,
		URL:          h.URL(),
		Version:      h.Page.Version(),
		RefCount:     h.Page.RefCount(),
	}
}

func (s *Service) handleOpenPage(w http.ResponseWriter, r *http.Request) {
	var req OpenPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "url required")
		return
	}

	h, err := s.opener.OpenPage(r.Context(), req.URL)
	if err != nil {
		s.logger.Error("httpapi: open page", "url", req.URL, "error", err)
		writeError(w, http.StatusBadGateway, "open_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, pageInfo(h))
}

func (s *Service) handleListPages(w http.ResponseWriter, r *http.Request) {
	pages := s.reg.Pages()
	out := make([]PageInfo, 0, len(pages))
	for _, h := range pages {
		out = append(out, pageInfo(h))
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": out})
}

func (s *Service) handleClosePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "pageID")
	if _, err := s.reg.Page(id); err != nil {
		writeError(w, http.StatusNotFound, "unknown_page", err.Error())
		return
	}
	s.reg.ClosePage(id)
	w.WriteHeader(http.StatusNoContent)
}

// SnapshotRequest is the body for POST /pages/{pageID}/snapshot.
// All fields are optional; zero values fall back to the configured defaults.
type SnapshotRequest struct {
	IncludeRefs    *bool  `json:"include_refs,omitempty"`
	SinceVersion   uint64 `json:"since_version,omitempty"`
	MaxConcurrency int    `json:"max_concurrency,omitempty"`
	DeadlineMs     int    `json:"deadline_ms,omitempty"`
}

func (s *Service) captureOptions(req SnapshotRequest) axsnap.Options {
	opts := axsnap.DefaultOptions()
	opts.IncludeRefs = true
	opts.MaxConcurrency = s.capture.MaxConcurrency
	opts.FanOutThreshold = s.capture.FanOutThreshold
	opts.Deadline = s.capture.Deadline

	if req.IncludeRefs != nil {
		opts.IncludeRefs = *req.IncludeRefs
	}
	opts.SinceVersion = req.SinceVersion
	if req.MaxConcurrency > 0 {
		opts.MaxConcurrency = req.MaxConcurrency
	}
	if req.DeadlineMs > 0 {
		opts.Deadline = time.Duration(req.DeadlineMs) * time.Millisecond
	}
	return opts
}

func (s *Service) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookupPage(w, r)
	if !ok {
		return
	}

	var req SnapshotRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
			return
		}
	}

	res, err := s.engine.Capture(r.Context(), h.Page, s.captureOptions(req))
	if err != nil {
		s.writeCaptureError(w, h.ID, err)
		return
	}
	s.record(r.Context(), h, res)
	writeJSON(w, http.StatusOK, res)
}

// handleSnapshotText is a read of page state, so it must not advance the
// snapshot version or rebind refs. It renders the last committed snapshot
// when one exists, and otherwise falls back to a structure-only capture,
// which commits nothing.
func (s *Service) handleSnapshotText(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookupPage(w, r)
	if !ok {
		return
	}

	snap := h.Page.Previous()
	if snap == nil {
		opts := s.captureOptions(SnapshotRequest{})
		opts.IncludeRefs = false
		res, err := s.engine.Capture(r.Context(), h.Page, opts)
		if err != nil {
			s.writeCaptureError(w, h.ID, err)
			return
		}
		snap = res.Full
	}
	if snap == nil {
		writeError(w, http.StatusInternalServerError, "internal", "no snapshot available")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	axsnap.WriteOutline(w, snap)
}

// ResolveRequest is the body for POST /pages/{pageID}/resolve.
type ResolveRequest struct {
	Ref string `json:"ref"`
}

// ResolveResponse maps a ref back to its native node identifier.
type ResolveResponse struct {
	Ref       string `json:"ref"`
	BackendID int64  `json:"backend_id"`
}

func (s *Service) handleResolve(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookupPage(w, r)
	if !ok {
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	backendID, err := h.Page.ResolveRef(req.Ref)
	if err != nil {
		status, code := resolveStatus(err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ResolveResponse{Ref: req.Ref, BackendID: backendID})
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookupPage(w, r)
	if !ok {
		return
	}
	if s.arch == nil {
		writeError(w, http.StatusNotFound, "archive_disabled", "capture archive is not enabled")
		return
	}
	events, err := s.arch.ListByPage(r.Context(), h.ID, 50)
	if err != nil {
		s.logger.Error("httpapi: history", "page_id", h.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "archive query failed")
		return
	}
	if events == nil {
		events = []*archive.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Service) lookupPage(w http.ResponseWriter, r *http.Request) (*session.PageHandle, bool) {
	id := chi.URLParam(r, "pageID")
	h, err := s.reg.Page(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_page", err.Error())
		return nil, false
	}
	return h, true
}

// record archives the capture outcome. Archive failures never fail the request.
func (s *Service) record(ctx context.Context, h *session.PageHandle, res *axsnap.Result) {
	if s.arch == nil {
		return
	}
	eventID := ""
	if res.Full != nil {
		eventID = res.Full.ID
	} else {
		eventID = idgen.New()
	}
	info := archive.PageInfo{
		ID:           h.ID,
		URL:          h.URL(),
		ContextIndex: h.Page.ContextIndex,
		PageIndex:    h.Page.PageIndex,
	}
	if _, err := s.arch.RecordCapture(ctx, eventID, info, res); err != nil {
		s.logger.Warn("httpapi: archive record failed", "page_id", h.ID, "error", err)
	}
}

func (s *Service) writeCaptureError(w http.ResponseWriter, pageID string, err error) {
	s.logger.Error("httpapi: capture failed", "page_id", pageID, "error", err)
	switch {
	case errors.Is(err, axsnap.ErrCaptureTimeout):
		writeError(w, http.StatusGatewayTimeout, "capture_timeout", err.Error())
	case errors.Is(err, axsnap.ErrFrameUnavailable):
		writeError(w, http.StatusBadGateway, "frame_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "capture_failed", err.Error())
	}
}

func resolveStatus(err error) (int, string) {
	switch {
	case errors.Is(err, axsnap.ErrInvalidRefFormat):
		return http.StatusBadRequest, "invalid_ref"
	case errors.Is(err, axsnap.ErrContextMismatch):
		return http.StatusNotFound, "context_mismatch"
	case errors.Is(err, axsnap.ErrPageMismatch):
		return http.StatusNotFound, "page_mismatch"
	case errors.Is(err, axsnap.ErrStaleRef):
		return http.StatusGone, "stale_ref"
	case errors.Is(err, axsnap.ErrUnresolvable):
		return http.StatusUnprocessableEntity, "unresolvable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}
