package axsnap

import (
	"context"
	"fmt"
	"sync"
)

// gate is a CPU-parallelism budget shared across the recursive build and
// diff fan-outs. Acquisition never blocks: when the budget is exhausted the
// caller proceeds inline, which keeps nested fan-outs deadlock-free.
type gate chan struct{}

func newGate(n int) gate {
	if n < 1 {
		n = 1
	}
	return make(gate, n)
}

func (g gate) tryAcquire() bool {
	select {
	case g <- struct{}{}:
		return true
	default:
		return false
	}
}

func (g gate) release() {
	<-g
}

// builder turns one frame's raw payload into a Node subtree, hashing
// bottom-up as it goes. Refs are not assigned here: that is a separate,
// strictly sequential pass so counters follow document order
// deterministically.
type builder struct {
	idx       *docIndex
	threshold int // sibling count beyond which children build in parallel
	gate      gate
}

// buildFrame builds the Node tree for one frame. The returned root is a
// synthetic document node: it represents the frame itself, carries no ref
// and is excluded from node counts.
func buildFrame(ctx context.Context, raw *RawNode, threshold int, g gate) (*Node, error) {
	b := &builder{idx: indexDocument(raw), threshold: threshold, gate: g}
	root := &Node{Role: "document"}
	children, err := b.buildChildren(ctx, raw, false)
	if err != nil {
		return nil, err
	}
	root.Children = children
	root.computeHash()
	return root, nil
}

// emit converts one raw node into zero or more Nodes. Generic nodes with
// nothing interesting on them are hoisted: their children replace them in
// the parent's child list, so wrapper divs never clutter the tree.
func (b *builder) emit(ctx context.Context, raw *RawNode) ([]*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if skippedTags[raw.Tag] {
		return nil, nil
	}
	if raw.Frame != nil {
		n := &Node{
			Role:          "iframe",
			FrameBoundary: true,
			FrameID:       raw.Frame.ID,
			FrameName:     raw.Frame.Name,
			FrameURL:      raw.Frame.URL,
			BackendID:     raw.BackendID,
		}
		n.computeHash()
		return []*Node{n}, nil
	}

	role, level := resolveRole(raw)
	name := computeName(raw, role, b.idx)
	states := computeStates(raw)
	value := computeValue(raw, role)

	if role == "generic" && name == nil && len(states) == 0 && value == "" {
		var out []*Node
		if t := normalizeSpace(raw.Text); t != "" {
			out = append(out, textNode(t, raw.BackendID))
		}
		for _, c := range raw.Children {
			sub, err := b.emit(ctx, c)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		return out, nil
	}

	n := &Node{
		Role:        role,
		Name:        name,
		Description: computeDescription(raw, name, b.idx),
		States:      states,
		Level:       level,
		Value:       value,
		BackendID:   raw.BackendID,
	}
	children, err := b.buildChildren(ctx, raw, nameFromContent[role])
	if err != nil {
		return nil, err
	}
	n.Children = children
	n.computeHash()
	return []*Node{n}, nil
}

// buildChildren builds the child list of a kept node. Direct text becomes a
// text child unless the parent already absorbed it as its name. Sibling
// groups past the fan-out threshold build in parallel; small groups build
// sequentially, the bookkeeping would cost more than it saves.
func (b *builder) buildChildren(ctx context.Context, raw *RawNode, textConsumed bool) ([]*Node, error) {
	var out []*Node
	if !textConsumed {
		if t := normalizeSpace(raw.Text); t != "" {
			out = append(out, textNode(t, raw.BackendID))
		}
	}

	if len(raw.Children) < b.threshold {
		for _, c := range raw.Children {
			sub, err := b.emit(ctx, c)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
		return out, nil
	}

	results := make([][]*Node, len(raw.Children))
	errs := make([]error, len(raw.Children))
	var wg sync.WaitGroup
	for i, c := range raw.Children {
		if b.gate.tryAcquire() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer b.gate.release()
				results[i], errs[i] = b.emit(ctx, c)
			}()
		} else {
			results[i], errs[i] = b.emit(ctx, c)
		}
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	for _, sub := range results {
		out = append(out, sub...)
	}
	return out, nil
}

func textNode(text string, backendID int64) *Node {
	n := &Node{Role: "text", Name: &text, BackendID: backendID}
	n.computeHash()
	return n
}

// assignRefs is the sequential document-order ref pass. Nodes that kept a
// ref from the previous snapshot are left alone; everything else gets a
// fresh counter, so added nodes always carry the highest counters issued.
// The synthetic document root is skipped.
func assignRefs(root *Node, alloc *RefAllocator, contextIndex, pageIndex int) {
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.Ref == "" {
			n.Ref = RefID{Context: contextIndex, Page: pageIndex, Counter: alloc.Next()}.String()
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	for _, c := range root.Children {
		walk(c)
	}
}

// refEntries walks a subtree and collects counter -> native id bindings for
// every node carrying a ref.
func refEntries(root *Node, skipRoot bool) (map[uint64]RefEntry, error) {
	entries := make(map[uint64]RefEntry)
	var walk func(n *Node) error
	walk = func(n *Node) error {
		if n.Ref != "" {
			id, err := ParseRef(n.Ref)
			if err != nil {
				return fmt.Errorf("axsnap: corrupt ref on node: %w", err)
			}
			entries[id.Counter] = RefEntry{BackendID: n.BackendID, Resolvable: n.BackendID != 0}
		}
		for _, c := range n.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if skipRoot {
		for _, c := range root.Children {
			if err := walk(c); err != nil {
				return nil, err
			}
		}
		return entries, nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return entries, nil
}
