package model

import (
	"fmt"

	"github.com/vanderheijden86/slidetree/pkg/mode"
)

// Tree is an arena of nodes plus three lookup indices: by canonical name
// (unique), by source path (many paths may alias one node) and by specific
// file path for virtual nodes.
//
// A Tree is not safe for concurrent mutation.
type Tree struct {
	nodes   []*Node
	live    int
	names   map[string]NodeID
	paths   map[string]NodeID
	aliases map[NodeID][]string
	virtual map[string]NodeID

	// Mode is the mode the tree was built or last distributed with.
	Mode mode.Map
	// Weighted is true while node weights reflect the current structure.
	Weighted bool
}

// New returns a tree holding only the root node.
func New() *Tree {
	t := &Tree{
		names:   make(map[string]NodeID),
		paths:   make(map[string]NodeID),
		aliases: make(map[NodeID][]string),
		virtual: make(map[string]NodeID),
	}
	root := &Node{
		ID:             RootID,
		Name:           RootName,
		WeightModifier: 100,
		IsPercentage:   true,
		Parent:         NoNode,
	}
	t.nodes = append(t.nodes, root)
	t.live = 1
	t.names[RootName] = RootID
	return t
}

// Node returns the node with the given id, or nil if it does not exist.
func (t *Tree) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Root returns the sentinel root.
func (t *Tree) Root() *Node { return t.nodes[RootID] }

// Len returns the number of live nodes, root included.
func (t *Tree) Len() int { return t.live }

// LookupName finds a node by canonical name.
func (t *Tree) LookupName(name string) (*Node, bool) {
	id, ok := t.names[name]
	if !ok {
		return nil, false
	}
	return t.nodes[id], true
}

// LookupPath finds a node by source path, including flattened aliases.
func (t *Tree) LookupPath(path string) (*Node, bool) {
	id, ok := t.paths[CleanPath(path)]
	if !ok {
		return nil, false
	}
	return t.nodes[id], true
}

// LookupVirtual finds the virtual node synthesized for a specific file.
func (t *Tree) LookupVirtual(path string) (*Node, bool) {
	id, ok := t.virtual[CleanPath(path)]
	if !ok {
		return nil, false
	}
	return t.nodes[id], true
}

// PathsOf returns every path-index key that resolves to id.
func (t *Tree) PathsOf(id NodeID) []string {
	return append([]string(nil), t.aliases[id]...)
}

// PathEntries returns a copy of the path index.
func (t *Tree) PathEntries() map[string]NodeID {
	out := make(map[string]NodeID, len(t.paths))
	for k, v := range t.paths {
		out[k] = v
	}
	return out
}

// VirtualEntries returns a copy of the virtual index.
func (t *Tree) VirtualEntries() map[string]NodeID {
	out := make(map[string]NodeID, len(t.virtual))
	for k, v := range t.virtual {
		out[k] = v
	}
	return out
}

// AliasPath points path at id, replacing any previous mapping.
func (t *Tree) AliasPath(path string, id NodeID) {
	key := CleanPath(path)
	if key == "" {
		return
	}
	if old, ok := t.paths[key]; ok {
		if old == id {
			return
		}
		t.aliases[old] = removeString(t.aliases[old], key)
	}
	t.paths[key] = id
	t.aliases[id] = append(t.aliases[id], key)
}

// MoveAliases re-points every path and virtual entry of from at to.
func (t *Tree) MoveAliases(from, to NodeID) {
	for _, p := range t.aliases[from] {
		t.paths[p] = to
		t.aliases[to] = append(t.aliases[to], p)
	}
	delete(t.aliases, from)
	for k, v := range t.virtual {
		if v == from {
			t.virtual[k] = to
		}
	}
}

// SetVirtual records the virtual node created for a specific file.
func (t *Tree) SetVirtual(path string, id NodeID) {
	t.virtual[CleanPath(path)] = id
}

// Rung counts parent hops from id up to root (root = 0). It is computed on
// every call so it stays correct across restructuring.
func (t *Tree) Rung(id NodeID) int {
	rung := 0
	for n := t.Node(id); n != nil && n.Parent != NoNode; n = t.nodes[n.Parent] {
		rung++
	}
	return rung
}

// insert adds a bare node named name below its canonical parent.
func (t *Tree) insert(name, path string) (*Node, error) {
	parentName := ParentName(name)
	pid, ok := t.names[parentName]
	if !ok {
		return nil, fmt.Errorf("%w: %q (inserting %q)", ErrMissingParent, parentName, name)
	}
	id := NodeID(len(t.nodes))
	n := &Node{
		ID:             id,
		Name:           name,
		Path:           path,
		WeightModifier: 100,
		IsPercentage:   true,
		Parent:         pid,
	}
	t.nodes = append(t.nodes, n)
	t.live++
	t.nodes[pid].Children = append(t.nodes[pid].Children, id)
	t.names[name] = id
	if path != "" {
		t.AliasPath(path, id)
	}
	return n, nil
}

// InsertNode adds a node under its canonical parent, which must already
// exist. An existing node with the same name is returned unchanged.
func (t *Tree) InsertNode(name, path string) (*Node, error) {
	if n, ok := t.LookupName(name); ok {
		return n, nil
	}
	return t.insert(name, path)
}

// EnsureName creates every missing structural node along a canonical name
// and returns the id of the last one. Synthetic nodes use their name as path.
func (t *Tree) EnsureName(name string) (NodeID, error) {
	segs := NameSegments(name)
	cur := RootID
	for i := 1; i <= len(segs); i++ {
		n := JoinName(segs[:i]...)
		if id, ok := t.names[n]; ok {
			cur = id
			continue
		}
		node, err := t.insert(n, n)
		if err != nil {
			return NoNode, err
		}
		cur = node.ID
	}
	return cur, nil
}

// EnsureParents creates the structural ancestors of a source path, each
// carrying the matching source-path prefix, and returns the direct parent.
func (t *Tree) EnsureParents(path string) (NodeID, error) {
	sp := splitSource(path)
	if !sp.absolute && sp.volume == "" {
		return NoNode, fmt.Errorf("%w: %s", ErrRelativePath, path)
	}
	cur := RootID
	for i := 1; i < len(sp.segments); i++ {
		p := sp.prefix(i)
		name := CanonicalName(p)
		if id, ok := t.names[name]; ok {
			cur = id
			continue
		}
		node, err := t.insert(name, p)
		if err != nil {
			return NoNode, err
		}
		cur = node.ID
	}
	return cur, nil
}

// CreateNode creates (or updates) the node for a source path, creating its
// ancestors on demand. When a node with the same canonical name exists its
// attributes and images are replaced and path is aliased to it.
func (t *Tree) CreateNode(path string, a Attrs, images []string) (*Node, error) {
	if _, err := t.EnsureParents(path); err != nil {
		return nil, err
	}
	name := CanonicalName(path)
	n, ok := t.LookupName(name)
	if ok {
		t.AliasPath(path, n.ID)
	} else {
		var err error
		if n, err = t.insert(name, CleanPath(path)); err != nil {
			return nil, err
		}
	}
	n.apply(a)
	n.Images = images
	return n, nil
}

// Rename changes a node's canonical name. It fails if the name is taken.
func (t *Tree) Rename(id NodeID, name string) error {
	n := t.Node(id)
	if n == nil {
		return ErrNodeNotFound
	}
	if other, ok := t.names[name]; ok && other != id {
		return fmt.Errorf("rename %q: name %q already in use", n.Name, name)
	}
	if t.names[n.Name] == id {
		delete(t.names, n.Name)
	}
	n.Name = name
	t.names[name] = id
	return nil
}

// DropName removes a node's name from the name index while leaving the node
// in place. It is used to rename whole subtrees in one pass; the node must be
// renamed or removed afterwards.
func (t *Tree) DropName(id NodeID) {
	n := t.Node(id)
	if n == nil {
		return
	}
	if t.names[n.Name] == id {
		delete(t.names, n.Name)
	}
}

// Detach unlinks id from its parent.
func (t *Tree) Detach(id NodeID) {
	n := t.Node(id)
	if n == nil || n.Parent == NoNode {
		return
	}
	p := t.nodes[n.Parent]
	p.Children = removeID(p.Children, id)
	n.Parent = NoNode
}

// Attach appends id to parent's children.
func (t *Tree) Attach(id, parent NodeID) {
	n := t.Node(id)
	p := t.Node(parent)
	if n == nil || p == nil {
		return
	}
	n.Parent = parent
	p.Children = append(p.Children, id)
}

// Remove deletes a childless node from the tree and from every index.
func (t *Tree) Remove(id NodeID) error {
	n := t.Node(id)
	if n == nil {
		return ErrNodeNotFound
	}
	if n.IsRoot() {
		return fmt.Errorf("cannot remove root")
	}
	if len(n.Children) > 0 {
		return fmt.Errorf("cannot remove %q: node has %d children", n.Name, len(n.Children))
	}
	if t.names[n.Name] == id {
		delete(t.names, n.Name)
	}
	for _, p := range t.aliases[id] {
		if t.paths[p] == id {
			delete(t.paths, p)
		}
	}
	delete(t.aliases, id)
	for k, v := range t.virtual {
		if v == id {
			delete(t.virtual, k)
		}
	}
	t.Detach(id)
	t.nodes[id] = nil
	t.live--
	return nil
}

// Invalidate marks computed weights as stale.
func (t *Tree) Invalidate() { t.Weighted = false }

func removeID(ids []NodeID, id NodeID) []NodeID {
	out := ids[:0]
	for _, c := range ids {
		if c != id {
			out = append(out, c)
		}
	}
	return out
}

func removeString(ss []string, s string) []string {
	out := ss[:0]
	for _, v := range ss {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
