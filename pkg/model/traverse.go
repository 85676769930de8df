package model

import (
	"errors"
	"fmt"
)

// Walk visits every node below (and including) start in pre-order, children
// in insertion order. Returning false from fn skips that node's children.
// The traversal uses an explicit stack so tree depth is not bounded by the
// goroutine stack.
func (t *Tree) Walk(start NodeID, fn func(n *Node) bool) {
	if t.Node(start) == nil {
		return
	}
	stack := []NodeID{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := t.nodes[id]
		if n == nil || !fn(n) {
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
}

// Preorder returns the ids reachable from root in pre-order.
func (t *Tree) Preorder() []NodeID {
	ids := make([]NodeID, 0, t.live)
	t.Walk(RootID, func(n *Node) bool {
		ids = append(ids, n.ID)
		return true
	})
	return ids
}

// PostOrder visits every node below start with children before parents.
func (t *Tree) PostOrder(start NodeID, fn func(n *Node)) {
	if t.Node(start) == nil {
		return
	}
	type frame struct {
		id   NodeID
		next int
	}
	stack := []frame{{id: start}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		n := t.nodes[top.id]
		if top.next < len(n.Children) {
			child := n.Children[top.next]
			top.next++
			stack = append(stack, frame{id: child})
			continue
		}
		stack = stack[:len(stack)-1]
		fn(n)
	}
}

// NodesAtRung returns every node on the given rung in pre-order.
func (t *Tree) NodesAtRung(rung int) []*Node {
	type item struct {
		id   NodeID
		rung int
	}
	var out []*Node
	stack := []item{{RootID, 0}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := t.nodes[it.id]
		if it.rung == rung {
			out = append(out, n)
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, item{n.Children[i], it.rung + 1})
		}
	}
	return out
}

// SubtreeImageCounts returns, indexed by NodeID, the number of images held
// by each node and all of its descendants.
func (t *Tree) SubtreeImageCounts() []int {
	counts := make([]int, len(t.nodes))
	t.PostOrder(RootID, func(n *Node) {
		c := len(n.Images)
		for _, child := range n.Children {
			c += counts[child]
		}
		counts[n.ID] = c
	})
	return counts
}

// CountBranches returns how many nodes under id hold images and how many
// images they hold in total.
func (t *Tree) CountBranches(id NodeID) (branches, images int) {
	t.Walk(id, func(n *Node) bool {
		if len(n.Images) > 0 {
			branches++
			images += len(n.Images)
		}
		return true
	})
	return branches, images
}

// TotalImages counts every image in the tree.
func (t *Tree) TotalImages() int {
	_, images := t.CountBranches(RootID)
	return images
}

// Clone returns a deep copy that shares nothing with t. Node ids are kept.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		nodes:    make([]*Node, len(t.nodes)),
		live:     t.live,
		names:    make(map[string]NodeID, len(t.names)),
		paths:    t.PathEntries(),
		aliases:  make(map[NodeID][]string, len(t.aliases)),
		virtual:  t.VirtualEntries(),
		Mode:     t.Mode.Clone(),
		Weighted: t.Weighted,
	}
	for i, n := range t.nodes {
		if n != nil {
			c.nodes[i] = n.clone()
		}
	}
	for k, v := range t.names {
		c.names[k] = v
	}
	for k, v := range t.aliases {
		c.aliases[k] = append([]string(nil), v...)
	}
	return c
}

// Validate checks the structural invariants: unique names, exactly one
// parent per non-root node, children pointing back at their parent, and
// every live node reachable from root.
func (t *Tree) Validate() error {
	root := t.Node(RootID)
	if root == nil || root.Name != RootName || root.Parent != NoNode {
		return errors.New("invalid root node")
	}
	seen := make(map[NodeID]bool, t.live)
	var err error
	t.Walk(RootID, func(n *Node) bool {
		if seen[n.ID] {
			err = fmt.Errorf("node %q reached twice", n.Name)
			return false
		}
		seen[n.ID] = true
		if id, ok := t.names[n.Name]; !ok || id != n.ID {
			err = fmt.Errorf("node %q missing from name index", n.Name)
			return false
		}
		for _, c := range n.Children {
			child := t.Node(c)
			if child == nil {
				err = fmt.Errorf("node %q has dangling child %d", n.Name, c)
				return false
			}
			if child.Parent != n.ID {
				err = fmt.Errorf("child %q of %q points at parent %d", child.Name, n.Name, child.Parent)
				return false
			}
		}
		return err == nil
	})
	if err != nil {
		return err
	}
	if len(seen) != t.live {
		return fmt.Errorf("%d live nodes but %d reachable from root", t.live, len(seen))
	}
	if len(t.names) != t.live {
		return fmt.Errorf("name index has %d entries for %d nodes", len(t.names), t.live)
	}
	for p, id := range t.paths {
		if t.Node(id) == nil {
			return fmt.Errorf("path %q points at removed node %d", p, id)
		}
	}
	for p, id := range t.virtual {
		if t.Node(id) == nil {
			return fmt.Errorf("virtual entry %q points at removed node %d", p, id)
		}
	}
	return nil
}

// Restore rebuilds a tree from nodes indexed by id (nil entries are holes)
// plus the path and virtual indices. Children lists must already be
// populated. The result is validated before it is returned.
func Restore(nodes []*Node, paths, virtual map[string]NodeID) (*Tree, error) {
	if len(nodes) == 0 || nodes[0] == nil {
		return nil, errors.New("restore: missing root node")
	}
	t := &Tree{
		nodes:   nodes,
		names:   make(map[string]NodeID, len(nodes)),
		paths:   make(map[string]NodeID, len(paths)),
		aliases: make(map[NodeID][]string),
		virtual: make(map[string]NodeID, len(virtual)),
	}
	for i, n := range nodes {
		if n == nil {
			continue
		}
		if n.ID != NodeID(i) {
			return nil, fmt.Errorf("restore: node %q stored at %d has id %d", n.Name, i, n.ID)
		}
		if _, dup := t.names[n.Name]; dup {
			return nil, fmt.Errorf("restore: duplicate node name %q", n.Name)
		}
		t.names[n.Name] = n.ID
		t.live++
	}
	for p, id := range paths {
		t.paths[p] = id
		t.aliases[id] = append(t.aliases[id], p)
	}
	for p, id := range virtual {
		t.virtual[p] = id
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return t, nil
}
