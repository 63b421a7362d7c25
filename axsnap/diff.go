package axsnap

import (
	"strings"
	"sync"
)

// Diff describes what changed between the stored snapshot and a new capture.
// Added holds subtree roots (their descendants are implied); Removed lists
// every invalidated ref, descendants included, because each of those refs
// must die individually.
type Diff struct {
	Added     []*Node  `json:"added"`
	Removed   []string `json:"removed"`
	Modified  []*Node  `json:"modified"`
	Unchanged int      `json:"unchanged_count"`
	Version   uint64   `json:"version"`
}

type diffAcc struct {
	added     []*Node
	removed   []string
	modified  []*Node
	unchanged int
}

func (a *diffAcc) merge(b diffAcc) {
	a.added = append(a.added, b.added...)
	a.removed = append(a.removed, b.removed...)
	a.modified = append(a.modified, b.modified...)
	a.unchanged += b.unchanged
}

// compareRoots diffs two capture trees. As a side effect it carries refs
// from matched old nodes onto their new counterparts; added nodes are left
// ref-less for the sequential assignment pass.
func compareRoots(old, new *Node, g gate) diffAcc {
	if old.Hash == new.Hash {
		carryRefs(old, new)
		return diffAcc{unchanged: new.subtreeCount() - 1}
	}
	return compareChildren(old.Children, new.Children, g)
}

// compareNodes diffs one matched pair. Hash-equal subtrees short-circuit:
// every node below is unchanged and keeps its ref without being visited
// for content.
func compareNodes(old, new *Node, g gate) diffAcc {
	if old.Hash == new.Hash {
		carryRefs(old, new)
		return diffAcc{unchanged: new.subtreeCount()}
	}
	new.Ref = old.Ref // identity survives content change
	var acc diffAcc
	if !sameContent(old, new) {
		acc.modified = append(acc.modified, new)
	}
	acc.merge(compareChildren(old.Children, new.Children, g))
	return acc
}

func compareChildren(old, new []*Node, g gate) diffAcc {
	pairs, removed, added := matchChildren(old, new)

	var acc diffAcc
	for _, n := range added {
		acc.added = append(acc.added, n)
	}
	for _, o := range removed {
		acc.removed = append(acc.removed, collectRefs(o)...)
	}

	if len(pairs) == 0 {
		return acc
	}
	results := make([]diffAcc, len(pairs))
	var wg sync.WaitGroup
	for i, p := range pairs {
		if g.tryAcquire() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer g.release()
				results[i] = compareNodes(p.old, p.new, g)
			}()
		} else {
			results[i] = compareNodes(p.old, p.new, g)
		}
	}
	wg.Wait()
	for _, r := range results {
		acc.merge(r)
	}
	return acc
}

type nodePair struct {
	old, new *Node
}

// matchChildren pairs corresponding children across two sibling groups.
// Position alone never claims a pair: the positional pass also requires a
// compatible name, so removing the first of two same-role siblings cannot
// hand the removed node's ref to the survivor. Shifted siblings re-pair by
// role and name in document order; leftover same-role nodes pair in order
// so a rename still reads as the same logical node. Everything else is one
// removal plus one addition. Deliberately not tree-edit-distance; heavy
// reorders over-report.
func matchChildren(old, new []*Node) (pairs []nodePair, removed, added []*Node) {
	usedOld := make([]bool, len(old))
	match := make([]int, len(new))
	for i := range match {
		match[i] = -1
	}

	// Same index, same role, compatible name: in-place content updates.
	for i, n := range new {
		if i < len(old) && !usedOld[i] && roleMatch(old[i], n) && namesCompatible(old[i].Name, n.Name) {
			usedOld[i] = true
			match[i] = i
		}
	}
	// Position shifted: claim the first unclaimed old sibling with the same
	// role and a compatible name.
	for i, n := range new {
		if match[i] >= 0 {
			continue
		}
		for j, o := range old {
			if !usedOld[j] && roleMatch(o, n) && namesCompatible(o.Name, n.Name) {
				usedOld[j] = true
				match[i] = j
				break
			}
		}
	}
	// Renames: leftover same-role nodes pair in document order.
	for i, n := range new {
		if match[i] >= 0 {
			continue
		}
		for j, o := range old {
			if !usedOld[j] && roleMatch(o, n) {
				usedOld[j] = true
				match[i] = j
				break
			}
		}
	}

	for i, n := range new {
		if j := match[i]; j >= 0 {
			pairs = append(pairs, nodePair{old: old[j], new: n})
		} else {
			added = append(added, n)
		}
	}
	for j, o := range old {
		if !usedOld[j] {
			removed = append(removed, o)
		}
	}
	return pairs, removed, added
}

func roleMatch(o, n *Node) bool {
	if o.FrameBoundary != n.FrameBoundary {
		return false
	}
	if o.FrameBoundary {
		return o.FrameURL == n.FrameURL || o.FrameName == n.FrameName
	}
	return o.Role == n.Role
}

func namesCompatible(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	if *a == *b {
		return true
	}
	return strings.HasPrefix(*a, *b) || strings.HasPrefix(*b, *a)
}

// carryRefs copies refs across two structurally identical subtrees. Only
// called on hash-equal pairs, so shapes line up; the length guard is for
// hash collisions, where dropping a ref is the safe failure.
func carryRefs(old, new *Node) {
	new.Ref = old.Ref
	if len(old.Children) != len(new.Children) {
		return
	}
	for i := range new.Children {
		carryRefs(old.Children[i], new.Children[i])
	}
}

// collectRefs gathers every ref in a subtree, document order.
func collectRefs(n *Node) []string {
	var refs []string
	var walk func(n *Node)
	walk = func(n *Node) {
		if n.Ref != "" {
			refs = append(refs, n.Ref)
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(n)
	return refs
}
