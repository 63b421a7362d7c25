package axsnap

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Node is one accessibility tree node. Children are owned exclusively by
// their parent and appear in document order.
//
// Name is a pointer because "no accessible name" and "empty accessible name"
// are different things and callers must be able to tell them apart.
type Node struct {
	Role        string   `json:"role"`
	Name        *string  `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	States      []string `json:"states,omitempty"` // sorted
	Level       int      `json:"level,omitempty"`  // headings only
	Value       string   `json:"value,omitempty"`  // range widgets
	Children    []*Node  `json:"children,omitempty"`

	// Frame boundary markers. A boundary node represents an iframe: either
	// stitched (same-origin, children attached) or opaque (cross-origin,
	// no children).
	FrameBoundary bool   `json:"frame_boundary,omitempty"`
	FrameID       string `json:"-"`
	FrameName     string `json:"frame_name,omitempty"`
	FrameURL      string `json:"frame_url,omitempty"`

	// Ref is the opaque scoped identifier, empty when refs were disabled
	// for the capture.
	Ref string `json:"ref,omitempty"`

	// Hash is the content hash over role, name, states, level, value and
	// the ordered child hashes. Refs never feed the hash: two captures of
	// an unchanged DOM hash identically regardless of ref history.
	Hash uint64 `json:"-"`

	// BackendID is the native browser-protocol node identifier. Zero means
	// the provider could not supply one: the node is present but cannot be
	// resolved for interaction.
	BackendID int64 `json:"-"`
}

// computeHash fills n.Hash from n's own content and the already-computed
// hashes of its children. Boundary nodes hash their frame metadata instead
// of their content fields, so an unfetched cross-origin frame still has a
// deterministic hash; stitched children are folded in afterwards.
func (n *Node) computeHash() {
	d := xxhash.New()
	if n.FrameBoundary {
		hashString(d, "frame")
		hashString(d, n.FrameName)
		hashString(d, n.FrameURL)
	} else {
		hashString(d, n.Role)
		if n.Name != nil {
			d.Write([]byte{1})
			hashString(d, *n.Name)
		} else {
			d.Write([]byte{0})
		}
		for _, s := range n.States {
			hashString(d, s)
		}
		hashUint(d, uint64(n.Level))
		hashString(d, n.Value)
	}
	for _, c := range n.Children {
		hashUint(d, c.Hash)
	}
	n.Hash = d.Sum64()
}

// rehash recomputes hashes bottom-up for the whole subtree. Needed after
// stitching, which attaches children to already-hashed boundary nodes.
func (n *Node) rehash() {
	for _, c := range n.Children {
		c.rehash()
	}
	n.computeHash()
}

// subtreeCount returns the number of nodes in the subtree rooted at n,
// including n itself.
func (n *Node) subtreeCount() int {
	total := 1
	for _, c := range n.Children {
		total += c.subtreeCount()
	}
	return total
}

// sameContent reports whether two nodes carry identical own content,
// ignoring children, refs and native identifiers.
func sameContent(a, b *Node) bool {
	if a.FrameBoundary != b.FrameBoundary {
		return false
	}
	if a.FrameBoundary {
		return a.FrameName == b.FrameName && a.FrameURL == b.FrameURL
	}
	if a.Role != b.Role || a.Level != b.Level || a.Value != b.Value {
		return false
	}
	if (a.Name == nil) != (b.Name == nil) {
		return false
	}
	if a.Name != nil && *a.Name != *b.Name {
		return false
	}
	if len(a.States) != len(b.States) {
		return false
	}
	for i := range a.States {
		if a.States[i] != b.States[i] {
			return false
		}
	}
	return true
}

func hashString(d *xxhash.Digest, s string) {
	hashUint(d, uint64(len(s)))
	d.WriteString(s)
}

func hashUint(d *xxhash.Digest, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	d.Write(buf[:])
}
