package axsnap

import "context"

// RawNode is the provider-neutral capture payload for one DOM node. Providers
// produce one RawNode tree per frame; the builder turns it into Nodes.
type RawNode struct {
	Tag      string            // lowercase element tag
	Attrs    map[string]string // element attributes, nil when none
	Text     string            // direct text content, unnormalized
	Children []*RawNode

	// BackendID is the native node identifier the interaction layer acts
	// on. Zero when the provider could not supply one.
	BackendID int64

	// Frame is set on iframe elements. The builder emits a frame-boundary
	// node for them; the orchestrator stitches the child document in.
	Frame *FrameRef
}

// Attr returns the named attribute, or "" when absent.
func (r *RawNode) Attr(name string) string {
	return r.Attrs[name]
}

// HasAttr reports attribute presence. HTML boolean attributes (disabled,
// checked, ...) are present-with-empty-value, so Attr alone cannot tell.
func (r *RawNode) HasAttr(name string) bool {
	_, ok := r.Attrs[name]
	return ok
}

// FrameRef identifies a child frame from within its parent's payload.
type FrameRef struct {
	ID   string
	Name string
	URL  string
}

// FrameHandle identifies one frame for fetching. Token carries
// provider-private state and is opaque to the engine.
type FrameHandle struct {
	ID    string
	URL   string
	Token any
}

// Provider fetches raw accessibility data. One FetchTree call per frame,
// no streaming. Implementations must be safe for concurrent use: the
// orchestrator fans out across frames.
type Provider interface {
	// FetchTree returns the raw DOM tree of one frame. Frames whose content
	// cannot be fetched (cross-origin, detached) return an error wrapping
	// ErrFrameUnavailable.
	FetchTree(ctx context.Context, frame FrameHandle) (*RawNode, error)

	// ChildFrames lists the directly nested frames of the given frame.
	ChildFrames(ctx context.Context, frame FrameHandle) ([]FrameHandle, error)
}
