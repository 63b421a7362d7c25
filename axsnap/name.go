package axsnap

import (
	"sort"
	"strconv"
	"strings"
)

// docIndex is the per-frame lookup state the name algorithm needs for
// cross-node references: aria-labelledby / aria-describedby targets and
// <label> association.
type docIndex struct {
	byID   map[string]*RawNode
	labels map[*RawNode]*RawNode // form control -> its label element
}

// indexDocument walks one frame's raw tree and builds the reference index.
// Runs once per frame before any name is computed.
func indexDocument(root *RawNode) *docIndex {
	idx := &docIndex{
		byID:   make(map[string]*RawNode),
		labels: make(map[*RawNode]*RawNode),
	}
	var collect func(n *RawNode)
	collect = func(n *RawNode) {
		if id := n.Attr("id"); id != "" {
			if _, dup := idx.byID[id]; !dup {
				idx.byID[id] = n
			}
		}
		for _, c := range n.Children {
			collect(c)
		}
	}
	collect(root)

	var associate func(n *RawNode)
	associate = func(n *RawNode) {
		if n.Tag == "label" {
			if target := idx.byID[n.Attr("for")]; target != nil {
				idx.labels[target] = n
			} else if ctl := firstFormControl(n); ctl != nil {
				// Wrapping label: <label>Text <input></label>.
				idx.labels[ctl] = n
			}
		}
		for _, c := range n.Children {
			associate(c)
		}
	}
	associate(root)
	return idx
}

func firstFormControl(n *RawNode) *RawNode {
	for _, c := range n.Children {
		if formControlTags[c.Tag] {
			return c
		}
		if ctl := firstFormControl(c); ctl != nil {
			return ctl
		}
	}
	return nil
}

// resolveRole returns the node's role and heading level. An explicit role
// attribute wins; otherwise the implicit table decides. Unknown tags are
// "generic".
func resolveRole(raw *RawNode) (string, int) {
	role := strings.ToLower(strings.TrimSpace(raw.Attr("role")))
	if i := strings.IndexByte(role, ' '); i >= 0 {
		// Fallback role lists: first token wins.
		role = role[:i]
	}
	level := 0
	if role == "" {
		role = implicitRoles[raw.Tag]
		if raw.Tag == "input" {
			role = inputRoles[raw.Attr("type")]
			if role == "" {
				role = "textbox"
			}
		}
		if role == "heading" {
			level = int(raw.Tag[1] - '0')
		}
	}
	if role == "heading" {
		if lv, err := strconv.Atoi(raw.Attr("aria-level")); err == nil && lv > 0 {
			level = lv
		} else if level == 0 {
			level = 2
		}
	}
	if role == "" {
		role = "generic"
	}
	return role, level
}

// computeName runs the accessible-name precedence chain. First non-empty
// result wins; nil means the node has no name at all, which is not the same
// as an empty name.
func computeName(raw *RawNode, role string, idx *docIndex) *string {
	if idx != nil {
		if ids := strings.Fields(raw.Attr("aria-labelledby")); len(ids) > 0 {
			var parts []string
			for _, id := range ids {
				if target := idx.byID[id]; target != nil {
					if s := textContent(target); s != "" {
						parts = append(parts, s)
					}
				}
			}
			if len(parts) > 0 {
				s := strings.Join(parts, " ")
				return &s
			}
		}
	}
	if s := normalizeSpace(raw.Attr("aria-label")); s != "" {
		return &s
	}
	if idx != nil && formControlTags[raw.Tag] {
		if label := idx.labels[raw]; label != nil {
			if s := textContent(label); s != "" {
				return &s
			}
		}
	}
	if raw.Tag == "img" || raw.Tag == "area" {
		if s := normalizeSpace(raw.Attr("alt")); s != "" {
			return &s
		}
	}
	if nameFromContent[role] {
		if s := textContent(raw); s != "" {
			return &s
		}
	}
	if s := normalizeSpace(raw.Attr("title")); s != "" {
		return &s
	}
	return nil
}

// computeDescription resolves aria-describedby, falling back to the title
// attribute when title was not already consumed as the name.
func computeDescription(raw *RawNode, name *string, idx *docIndex) string {
	if idx != nil {
		if ids := strings.Fields(raw.Attr("aria-describedby")); len(ids) > 0 {
			var parts []string
			for _, id := range ids {
				if target := idx.byID[id]; target != nil {
					if s := textContent(target); s != "" {
						parts = append(parts, s)
					}
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, " ")
			}
		}
	}
	if title := normalizeSpace(raw.Attr("title")); title != "" {
		if name == nil || *name != title {
			return title
		}
	}
	return ""
}

// computeStates collects the node's boolean states, sorted so the content
// hash is order-independent of attribute order.
func computeStates(raw *RawNode) []string {
	var states []string
	add := func(s string) { states = append(states, s) }

	if raw.HasAttr("disabled") || raw.Attr("aria-disabled") == "true" {
		add("disabled")
	}
	if raw.HasAttr("checked") || raw.Attr("aria-checked") == "true" {
		add("checked")
	}
	switch raw.Attr("aria-expanded") {
	case "true":
		add("expanded")
	case "false":
		add("collapsed")
	}
	if raw.HasAttr("selected") || raw.Attr("aria-selected") == "true" {
		add("selected")
	}
	if raw.Attr("aria-pressed") == "true" {
		add("pressed")
	}
	if raw.HasAttr("required") || raw.Attr("aria-required") == "true" {
		add("required")
	}
	if raw.HasAttr("readonly") || raw.Attr("aria-readonly") == "true" {
		add("readonly")
	}
	sort.Strings(states)
	return states
}

// computeValue surfaces the current value of range widgets.
func computeValue(raw *RawNode, role string) string {
	if !rangeRoles[role] {
		return ""
	}
	if v := raw.Attr("aria-valuenow"); v != "" {
		return v
	}
	return raw.Attr("value")
}

// textContent concatenates the rendered text of a subtree in document order,
// whitespace-normalized. Skipped tags contribute nothing.
func textContent(n *RawNode) string {
	var parts []string
	var walk func(n *RawNode)
	walk = func(n *RawNode) {
		if skippedTags[n.Tag] {
			return
		}
		if s := normalizeSpace(n.Text); s != "" {
			parts = append(parts, s)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, " ")
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
