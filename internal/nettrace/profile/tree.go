// Package profile is the post-pass: inclusive/exclusive CPU accounting
// per method, and CPU/allocation flame-graph tree construction (spec
// §4.10). Grounded on the teacher's staged-builder pattern
// (internal/heap/analyzer/graph.go's buildGraphStages), adapted from a
// linear pipeline of named stages to a two-tree accumulate-then-flatten
// build.
package profile

import (
	"sort"

	"github.com/austenc/nettrace/internal/nettrace/model"
)

// treeNode is the mutable accumulator used while walking stacks; it is
// flattened into model.FlameNode once every stack has been folded in.
type treeNode struct {
	name      string
	weight    uint64
	totalSize uint64
	byType    map[string]*model.TypeSizeCount
	children  map[string]*treeNode
}

func newTreeNode(name string) *treeNode {
	return &treeNode{name: name, children: make(map[string]*treeNode)}
}

// insert credits weight (and, for the allocation variant, totalSize and
// byType) to every node along path, root included — each node represents
// a call-stack prefix and accumulates over every stack that passes
// through it.
func (n *treeNode) insert(path []string, weight, totalSize uint64, byType map[string]*model.TypeSizeCount) {
	cur := n
	cur.credit(weight, totalSize, byType)
	for _, name := range path {
		child, ok := cur.children[name]
		if !ok {
			child = newTreeNode(name)
			cur.children[name] = child
		}
		child.credit(weight, totalSize, byType)
		cur = child
	}
}

func (n *treeNode) credit(weight, totalSize uint64, byType map[string]*model.TypeSizeCount) {
	n.weight += weight
	n.totalSize += totalSize
	if len(byType) == 0 {
		return
	}
	if n.byType == nil {
		n.byType = make(map[string]*model.TypeSizeCount)
	}
	for typeName, tsc := range byType {
		existing := n.byType[typeName]
		if existing == nil {
			existing = &model.TypeSizeCount{}
			n.byType[typeName] = existing
		}
		existing.Count += tsc.Count
		existing.Size += tsc.Size
	}
}

// sortedChildren returns n's children ordered by descending weight, ties
// broken by name for deterministic output (spec §4.10: "descending weight
// order for stable layout").
func (n *treeNode) sortedChildren() []*treeNode {
	out := make([]*treeNode, 0, len(n.children))
	for _, c := range n.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].weight != out[j].weight {
			return out[i].weight > out[j].weight
		}
		return out[i].name < out[j].name
	})
	return out
}

// flatten walks the accumulated tree and emits one model.FlameNode per
// child, recursively, with [0,1]-relative Start/Width computed from each
// child's share of its parent's weight.
func flatten(parent *treeNode, depth int, start, width float64, out *[]*model.FlameNode) {
	if parent.weight == 0 {
		return
	}
	childStart := start
	for _, c := range parent.sortedChildren() {
		childWidth := width * float64(c.weight) / float64(parent.weight)
		node := &model.FlameNode{
			Name:      c.name,
			Depth:     depth,
			Weight:    c.weight,
			Start:     childStart,
			Width:     childWidth,
			TotalSize: c.totalSize,
			ByType:    c.byType,
		}
		*out = append(*out, node)
		flatten(c, depth+1, childStart, childWidth, out)
		childStart += childWidth
	}
}

// buildFlame walks every (path, weight) pair into a tree rooted at an
// invisible accumulator, then flattens it into the [0,1]-positioned node
// list spec §4.10 describes.
func buildFlame(stacks []flameStack) []*model.FlameNode {
	root := newTreeNode("")
	for _, s := range stacks {
		root.insert(s.path, s.weight, s.totalSize, s.byType)
	}
	var out []*model.FlameNode
	flatten(root, 0, 0, 1, &out)
	return out
}

// flameStack is one stack's contribution to a flame tree: path runs from
// the deepest caller (tree root) to the top-of-stack frame (leaf).
type flameStack struct {
	path      []string
	weight    uint64
	totalSize uint64
	byType    map[string]*model.TypeSizeCount
}
