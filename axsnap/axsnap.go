// Package axsnap captures structured accessibility snapshots of live pages,
// including nested frames, and manages the scoped refs external callers use
// to act on nodes later.
//
// A capture fetches raw per-frame data concurrently, builds one hashed Node
// tree per frame in parallel, stitches child frames into their boundary
// nodes, then diffs the result against the page's previous snapshot to
// decide which refs survive. Refs are opaque strings scoped by context and
// page indices; a counter once issued is never reissued for a different
// element within a page's lifetime.
package axsnap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stephenstubbs/viewpoint/idgen"
)

// Snapshot is one full capture. The caller owns it; the page keeps the most
// recent one internally to diff the next capture against.
type Snapshot struct {
	ID           string         `json:"id"`
	Root         *Node          `json:"root"`
	Version      uint64         `json:"version"`
	ContextIndex int            `json:"context_index"`
	PageIndex    int            `json:"page_index"`
	CapturedAt   time.Time      `json:"captured_at"`
	Partial      []FrameFailure `json:"partial,omitempty"`
}

// NodeCount returns the number of content nodes in the snapshot. The
// synthetic document root is a container, not content.
func (s *Snapshot) NodeCount() int {
	return s.Root.subtreeCount() - 1
}

// FrameFailure records a child frame whose capture failed. The snapshot
// still succeeded; the frame degraded to a boundary-only node.
type FrameFailure struct {
	FrameID string `json:"frame_id"`
	URL     string `json:"url,omitempty"`
	Reason  string `json:"reason"`
}

// Result is the outcome of a capture: exactly one of Full or Diff is set.
// Partial mirrors the frame failures either way.
type Result struct {
	Full    *Snapshot      `json:"full,omitempty"`
	Diff    *Diff          `json:"diff,omitempty"`
	Partial []FrameFailure `json:"partial,omitempty"`
}

// Options controls one capture.
type Options struct {
	// MaxConcurrency bounds concurrent frame fetches (I/O only; CPU work
	// is bounded by hardware parallelism). Default 50.
	MaxConcurrency int

	// IncludeRefs assigns refs and commits the capture. When false the
	// capture is structure-only: no ref assignment, no ref map mutation,
	// no version advance. This is the fast path for callers who only want
	// to look.
	IncludeRefs bool

	// SinceVersion requests a diff against that stored version. Zero, or a
	// version the page no longer has, degrades to a full result; we never
	// guess at history we do not hold.
	SinceVersion uint64

	// Deadline bounds the whole capture. On expiry the capture fails with
	// ErrCaptureTimeout and commits nothing. Zero means no deadline.
	Deadline time.Duration

	// FanOutThreshold is the sibling-group size beyond which tree
	// construction parallelizes. Default 16.
	FanOutThreshold int
}

// DefaultOptions returns the options used when a caller passes nothing.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency:  50,
		IncludeRefs:     true,
		FanOutThreshold: 16,
	}
}

// Config configures an Engine.
type Config struct {
	// Parallelism bounds CPU fan-out for build and diff work. Default
	// GOMAXPROCS.
	Parallelism int
	Logger      *slog.Logger
}

// Engine runs captures. One Engine serves any number of pages; per-page
// state lives on the Page.
type Engine struct {
	parallelism int
	logger      *slog.Logger
	newID       idgen.Generator
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.GOMAXPROCS(0)
	}
	return &Engine{
		parallelism: cfg.Parallelism,
		logger:      cfg.Logger,
		newID:       idgen.Prefixed("cap_", idgen.Default),
	}
}

// Capture produces a stitched snapshot of the page and, when the requested
// SinceVersion matches the stored one, a diff instead of the full tree.
// Refs on unchanged and modified nodes are preserved whether or not a diff
// was requested; only navigation severs ref identity.
func (e *Engine) Capture(ctx context.Context, p *Page, opts Options) (*Result, error) {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 50
	}
	if opts.FanOutThreshold <= 0 {
		opts.FanOutThreshold = 16
	}
	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	p.capMu.Lock()
	defer p.capMu.Unlock()

	start := time.Now()
	main := p.MainFrame()

	trees, failures, err := e.fetchFrames(ctx, p.Provider(), main, opts.MaxConcurrency)
	if err != nil {
		return nil, timeoutOr(ctx, err)
	}

	built, err := e.buildFrames(ctx, trees, opts.FanOutThreshold)
	if err != nil {
		return nil, timeoutOr(ctx, err)
	}

	root := built[main.ID]
	if root == nil {
		return nil, fmt.Errorf("axsnap: main frame %q missing from capture", main.ID)
	}
	stitchFrames(root, built)
	root.rehash()

	// Nothing is committed past a blown deadline: a partial commit would
	// break the ref-stability guarantees.
	if ctx.Err() != nil {
		return nil, timeoutOr(ctx, ctx.Err())
	}

	snap := &Snapshot{
		ID:           e.newID(),
		Root:         root,
		ContextIndex: p.ContextIndex,
		PageIndex:    p.PageIndex,
		CapturedAt:   time.Now(),
		Partial:      failures,
	}

	res, err := e.commit(p, snap, opts)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("axsnap: capture complete",
		"context", p.ContextIndex,
		"page", p.PageIndex,
		"version", snap.Version,
		"nodes", snap.NodeCount(),
		"partial_frames", len(failures),
		"diff", res.Diff != nil,
		"elapsed", time.Since(start))
	return res, nil
}

// commit diffs against the stored snapshot, assigns refs, and swaps the new
// state in. The state lock is held only here; all expensive work already
// happened.
func (e *Engine) commit(p *Page, snap *Snapshot, opts Options) (*Result, error) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if !opts.IncludeRefs {
		// Structure-only: report against the committed version, touch nothing.
		snap.Version = p.version
		return &Result{Full: snap, Partial: snap.Partial}, nil
	}

	snap.Version = p.version + 1
	prev := p.prev
	g := newGate(e.parallelism)

	if prev == nil {
		assignRefs(snap.Root, &p.alloc, p.ContextIndex, p.PageIndex)
		entries, err := refEntries(snap.Root, true)
		if err != nil {
			return nil, err
		}
		p.refs.Replace(entries)
		p.prev = snap
		p.version = snap.Version
		return &Result{Full: snap, Partial: snap.Partial}, nil
	}

	acc := compareRoots(prev.Root, snap.Root, g)
	assignRefs(snap.Root, &p.alloc, p.ContextIndex, p.PageIndex)

	wantDiff := opts.SinceVersion != 0 && prev.Version == opts.SinceVersion
	if wantDiff {
		// Incremental ref map update: removed refs die, added refs bind,
		// everything carried stays untouched.
		for _, ref := range acc.removed {
			id, err := ParseRef(ref)
			if err != nil {
				return nil, fmt.Errorf("axsnap: corrupt ref in diff: %w", err)
			}
			p.refs.Invalidate(id.Counter)
		}
		for _, added := range acc.added {
			entries, err := refEntries(added, false)
			if err != nil {
				return nil, err
			}
			for counter, entry := range entries {
				p.refs.Bind(counter, entry)
			}
		}
		p.prev = snap
		p.version = snap.Version
		d := &Diff{
			Added:     acc.added,
			Removed:   acc.removed,
			Modified:  acc.modified,
			Unchanged: acc.unchanged,
			Version:   snap.Version,
		}
		return &Result{Diff: d, Partial: snap.Partial}, nil
	}

	// Full result: refs were still carried across the comparison (identity
	// outlives the response shape), but the map is rebuilt wholesale.
	entries, err := refEntries(snap.Root, true)
	if err != nil {
		return nil, err
	}
	p.refs.Replace(entries)
	p.prev = snap
	p.version = snap.Version
	return &Result{Full: snap, Partial: snap.Partial}, nil
}

// fetchFrames fetches the main frame and, concurrently, every discovered
// child frame. Discovery is top-down within the same pass: a frame's
// children are scheduled as soon as that frame's data arrives. Child
// failures degrade to boundary-only nodes; a main frame failure is fatal.
func (e *Engine) fetchFrames(ctx context.Context, prov Provider, main FrameHandle, limit int) (map[string]*RawNode, []FrameFailure, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var mu sync.Mutex
	trees := make(map[string]*RawNode)
	var failures []FrameFailure

	var fetchOne func(h FrameHandle, isMain bool) error
	fetchOne = func(h FrameHandle, isMain bool) error {
		raw, err := prov.FetchTree(gctx, h)
		if err != nil {
			if isMain {
				return fmt.Errorf("axsnap: main frame capture: %w", err)
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
			e.logger.Warn("axsnap: child frame capture failed",
				"frame", h.ID, "url", h.URL, "error", err)
			mu.Lock()
			failures = append(failures, FrameFailure{FrameID: h.ID, URL: h.URL, Reason: err.Error()})
			mu.Unlock()
			return nil
		}
		mu.Lock()
		trees[h.ID] = raw
		mu.Unlock()

		children, err := prov.ChildFrames(gctx, h)
		if err != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			e.logger.Warn("axsnap: child frame discovery failed",
				"frame", h.ID, "error", err)
			return nil
		}
		for _, child := range children {
			child := child
			// TryGo keeps the pool bounded without deadlocking: when every
			// slot is busy the child fetch runs inline on this slot.
			if !g.TryGo(func() error { return fetchOne(child, false) }) {
				if err := fetchOne(child, false); err != nil {
					return err
				}
			}
		}
		return nil
	}

	g.Go(func() error { return fetchOne(main, true) })
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return trees, failures, nil
}

// buildFrames builds each fetched frame's tree. Frames are independent
// subtrees with no cross-frame data dependency, so they build in parallel.
func (e *Engine) buildFrames(ctx context.Context, trees map[string]*RawNode, threshold int) (map[string]*Node, error) {
	built := make(map[string]*Node, len(trees))
	cpuGate := newGate(e.parallelism)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	var mu sync.Mutex
	for id, raw := range trees {
		id, raw := id, raw
		g.Go(func() error {
			node, err := buildFrame(gctx, raw, threshold, cpuGate)
			if err != nil {
				return err
			}
			mu.Lock()
			built[id] = node
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return built, nil
}

// stitchFrames attaches each captured child document under its boundary
// node. Recursion covers nested frames: a stitched child's own boundary
// nodes resolve from the same map. Unfetched frames stay boundary-only.
func stitchFrames(n *Node, built map[string]*Node) {
	if n.FrameBoundary && len(n.Children) == 0 {
		if doc := built[n.FrameID]; doc != nil {
			n.Children = doc.Children
		}
	}
	for _, c := range n.Children {
		stitchFrames(c, built)
	}
}

func timeoutOr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrCaptureTimeout, err)
	}
	return err
}
