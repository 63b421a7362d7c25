package axsnap

import (
	"fmt"
	"io"
	"strings"
)

// Snapshots keep a stable text form for humans and logs: one line per node,
// two-space indentation, frame boundaries annotated with their URL. The
// output is deterministic for a given tree, so it also serves as a diffable
// artifact in test fixtures and the archive.

// Outline renders the snapshot as an indented outline.
func (s *Snapshot) Outline() string {
	var b strings.Builder
	WriteOutline(&b, s)
	return b.String()
}

// WriteOutline writes the outline form of a snapshot to w.
func WriteOutline(w io.Writer, s *Snapshot) {
	for _, c := range s.Root.Children {
		writeNode(w, c, 0)
	}
}

func writeNode(w io.Writer, n *Node, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%s- %s", indent, n.Role)
	if n.FrameBoundary {
		if n.FrameName != "" {
			fmt.Fprintf(w, " %q", n.FrameName)
		}
		fmt.Fprintf(w, " (frame: %s)", n.FrameURL)
		if len(n.Children) == 0 {
			fmt.Fprint(w, " [no access]")
		}
	} else {
		if n.Name != nil {
			fmt.Fprintf(w, " %q", *n.Name)
		}
		if n.Level > 0 {
			fmt.Fprintf(w, " (level=%d)", n.Level)
		}
		for _, st := range n.States {
			fmt.Fprintf(w, " [%s]", st)
		}
		if n.Value != "" {
			fmt.Fprintf(w, " value=%q", n.Value)
		}
	}
	if n.Ref != "" {
		fmt.Fprintf(w, " [ref=%s]", n.Ref)
	}
	fmt.Fprintln(w)
	for _, c := range n.Children {
		writeNode(w, c, depth+1)
	}
}
