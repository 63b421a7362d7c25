package axsnap

import (
	"testing"
)

// docTree builds a hashed, reffed document tree from the given children and
// returns it along with its allocator so a mutated successor can share the
// counter history.
func docTree(children ...*Node) *Node {
	root := &Node{Role: "document", Children: children}
	root.rehash()
	return root
}

func reffed(root *Node, alloc *RefAllocator) *Node {
	assignRefs(root, alloc, 0, 0)
	return root
}

func heading(text string, level int) *Node {
	return &Node{Role: "heading", Name: strp(text), Level: level}
}

func button(text string, states ...string) *Node {
	return &Node{Role: "button", Name: strp(text), States: states}
}

func TestDiffFastPath(t *testing.T) {
	var alloc RefAllocator
	old := reffed(docTree(heading("Title", 1), button("Go")), &alloc)
	new := docTree(heading("Title", 1), button("Go"))

	acc := compareRoots(old, new, newGate(2))
	if len(acc.added)+len(acc.removed)+len(acc.modified) != 0 {
		t.Fatalf("acc = %+v, want empty", acc)
	}
	if acc.unchanged != 2 {
		t.Fatalf("unchanged = %d, want 2", acc.unchanged)
	}
	if new.Children[0].Ref != "c0p0e1" || new.Children[1].Ref != "c0p0e2" {
		t.Fatalf("refs not carried: %q %q", new.Children[0].Ref, new.Children[1].Ref)
	}
}

// One node's own content changed: it is modified, keeps its ref, and its
// unchanged sibling is counted, not listed.
func TestDiffModified(t *testing.T) {
	var alloc RefAllocator
	old := reffed(docTree(heading("Title", 1), button("Go")), &alloc)
	new := docTree(heading("Title", 1), button("Go", "disabled"))

	acc := compareRoots(old, new, newGate(2))
	if len(acc.modified) != 1 {
		t.Fatalf("modified = %d, want 1", len(acc.modified))
	}
	if acc.modified[0].Ref != "c0p0e2" {
		t.Fatalf("modified ref = %q, want carried c0p0e2", acc.modified[0].Ref)
	}
	if len(acc.added) != 0 || len(acc.removed) != 0 {
		t.Fatalf("acc = %+v", acc)
	}
	if acc.unchanged != 1 {
		t.Fatalf("unchanged = %d, want 1", acc.unchanged)
	}
}

// An added subtree is reported by its root only; a removed subtree lists
// every ref it held.
func TestDiffAddedAndRemoved(t *testing.T) {
	var alloc RefAllocator
	removedList := &Node{Role: "list", Children: []*Node{
		{Role: "listitem", Name: strp("one")},
		{Role: "listitem", Name: strp("two")},
	}}
	old := reffed(docTree(heading("Title", 1), removedList), &alloc)

	addedForm := &Node{Role: "form", Children: []*Node{
		button("Send"),
	}}
	new := docTree(heading("Title", 1), addedForm)

	acc := compareRoots(old, new, newGate(2))
	if len(acc.added) != 1 || acc.added[0].Role != "form" {
		t.Fatalf("added = %+v", acc.added)
	}
	if len(acc.removed) != 3 {
		t.Fatalf("removed = %v, want all 3 list refs", acc.removed)
	}
	want := map[string]bool{"c0p0e2": true, "c0p0e3": true, "c0p0e4": true}
	for _, ref := range acc.removed {
		if !want[ref] {
			t.Fatalf("unexpected removed ref %q", ref)
		}
	}
	if acc.unchanged != 1 {
		t.Fatalf("unchanged = %d, want 1 (the heading)", acc.unchanged)
	}
}

// Hash-equal subtrees short-circuit: nothing below them is reported even
// when a sibling changed.
func TestDiffShortCircuitCarriesSubtreeRefs(t *testing.T) {
	var alloc RefAllocator
	stable := &Node{Role: "navigation", Children: []*Node{
		{Role: "link", Name: strp("Home")},
		{Role: "link", Name: strp("About")},
	}}
	old := reffed(docTree(stable, button("Go")), &alloc)

	stable2 := &Node{Role: "navigation", Children: []*Node{
		{Role: "link", Name: strp("Home")},
		{Role: "link", Name: strp("About")},
	}}
	new := docTree(stable2, button("Stop"))

	acc := compareRoots(old, new, newGate(2))
	if acc.unchanged != 3 {
		t.Fatalf("unchanged = %d, want 3 (nav subtree)", acc.unchanged)
	}
	if new.Children[0].Children[1].Ref != "c0p0e3" {
		t.Fatalf("deep ref not carried: %q", new.Children[0].Children[1].Ref)
	}
	if len(acc.modified) != 1 || acc.modified[0].Ref != "c0p0e4" {
		t.Fatalf("modified = %+v", acc.modified)
	}
}

// A child pushed out of position by an insertion of a different role still
// matches its old self through the fallback scan instead of being torn down
// and recreated.
func TestMatchChildrenPositionalFallback(t *testing.T) {
	old := []*Node{
		{Role: "button", Name: strp("Go")},
	}
	new := []*Node{
		{Role: "heading", Name: strp("New section")},
		{Role: "button", Name: strp("Go")},
	}

	pairs, removed, added := matchChildren(old, new)
	if len(pairs) != 1 || *pairs[0].old.Name != "Go" || *pairs[0].new.Name != "Go" {
		t.Fatalf("pairs = %+v", pairs)
	}
	if len(removed) != 0 {
		t.Fatalf("removed = %+v", removed)
	}
	if len(added) != 1 || added[0].Role != "heading" {
		t.Fatalf("added = %+v", added)
	}
}

// A same-role insertion at the head must not steal the shifted siblings'
// identity: the existing items re-pair with their old selves by name and
// the new head is the addition.
func TestMatchChildrenSameRoleInsertion(t *testing.T) {
	old := []*Node{
		{Role: "listitem", Name: strp("alpha")},
		{Role: "listitem", Name: strp("beta")},
	}
	new := []*Node{
		{Role: "listitem", Name: strp("inserted")},
		{Role: "listitem", Name: strp("alpha")},
		{Role: "listitem", Name: strp("beta")},
	}

	pairs, removed, added := matchChildren(old, new)
	if len(pairs) != 2 {
		t.Fatalf("pairs = %d, want 2", len(pairs))
	}
	for _, p := range pairs {
		if *p.old.Name != *p.new.Name {
			t.Fatalf("misaligned pair: %q paired with %q", *p.old.Name, *p.new.Name)
		}
	}
	if len(removed) != 0 {
		t.Fatalf("removed = %+v", removed)
	}
	if len(added) != 1 || *added[0].Name != "inserted" {
		t.Fatalf("added = %+v, want the inserted item", added)
	}
}

// Removing the first of two same-role siblings must not let the survivor be
// claimed by the removed node's position: the survivor pairs with its old
// self and the removed node is the one reported.
func TestMatchChildrenSameRoleRemoval(t *testing.T) {
	old := []*Node{
		{Role: "button", Name: strp("Gone"), Ref: "c0p0e1"},
		{Role: "button", Name: strp("Other"), Ref: "c0p0e2"},
	}
	new := []*Node{
		{Role: "button", Name: strp("Other")},
	}

	pairs, removed, added := matchChildren(old, new)
	if len(pairs) != 1 || pairs[0].old.Ref != "c0p0e2" {
		t.Fatalf("pairs = %+v, want survivor paired with its old self", pairs)
	}
	if len(removed) != 1 || removed[0].Ref != "c0p0e1" {
		t.Fatalf("removed = %+v, want the first button", removed)
	}
	if len(added) != 0 {
		t.Fatalf("added = %+v", added)
	}
}

// A lone rename still pairs through the ordered same-role tier instead of
// tearing the node down.
func TestMatchChildrenRename(t *testing.T) {
	old := []*Node{{Role: "button", Name: strp("Submit"), Ref: "c0p0e1"}}
	new := []*Node{{Role: "button", Name: strp("Send")}}

	pairs, removed, added := matchChildren(old, new)
	if len(pairs) != 1 || pairs[0].old.Ref != "c0p0e1" {
		t.Fatalf("pairs = %+v, want the renamed button paired", pairs)
	}
	if len(removed) != 0 || len(added) != 0 {
		t.Fatalf("removed = %d added = %d", len(removed), len(added))
	}
}

func TestMatchChildrenRoleChange(t *testing.T) {
	old := []*Node{{Role: "button", Name: strp("Go")}}
	new := []*Node{{Role: "link", Name: strp("Go")}}

	pairs, removed, added := matchChildren(old, new)
	if len(pairs) != 0 {
		t.Fatalf("pairs = %d, want 0 (role change is remove+add)", len(pairs))
	}
	if len(removed) != 1 || len(added) != 1 {
		t.Fatalf("removed = %d added = %d", len(removed), len(added))
	}
}

func TestRoleMatchBoundary(t *testing.T) {
	a := &Node{FrameBoundary: true, FrameURL: "https://x", FrameName: "w"}
	b := &Node{FrameBoundary: true, FrameURL: "https://x/v2", FrameName: "w"}
	if !roleMatch(a, b) {
		t.Fatal("same-name boundary did not match")
	}
	c := &Node{FrameBoundary: true, FrameURL: "https://y", FrameName: "other"}
	if roleMatch(a, c) {
		t.Fatal("unrelated boundary matched")
	}
	d := &Node{Role: "iframe"}
	if roleMatch(a, d) {
		t.Fatal("boundary matched non-boundary")
	}
}

func TestNamesCompatible(t *testing.T) {
	cases := []struct {
		a, b *string
		want bool
	}{
		{nil, nil, true},
		{nil, strp("x"), false},
		{strp("x"), nil, false},
		{strp("Save"), strp("Save"), true},
		{strp("Save"), strp("Save draft"), true},
		{strp("Save draft"), strp("Save"), true},
		{strp("Save"), strp("Delete"), false},
	}
	for _, tc := range cases {
		if got := namesCompatible(tc.a, tc.b); got != tc.want {
			t.Errorf("namesCompatible(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCarryRefsLengthGuard(t *testing.T) {
	old := &Node{Ref: "c0p0e1", Children: []*Node{{Ref: "c0p0e2"}}}
	new := &Node{Children: []*Node{{}, {}}}
	carryRefs(old, new)
	if new.Ref != "c0p0e1" {
		t.Fatal("root ref not carried")
	}
	if new.Children[0].Ref != "" {
		t.Fatal("mismatched children received refs")
	}
}

func TestCollectRefs(t *testing.T) {
	n := &Node{Ref: "c0p0e1", Children: []*Node{
		{Ref: "c0p0e2"},
		{Children: []*Node{{Ref: "c0p0e3"}}},
	}}
	got := collectRefs(n)
	want := []string{"c0p0e1", "c0p0e2", "c0p0e3"}
	if len(got) != len(want) {
		t.Fatalf("refs = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("refs = %v, want %v", got, want)
		}
	}
}
