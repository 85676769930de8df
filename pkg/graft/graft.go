// Package graft relocates subtrees to a different nominal rung.
package graft

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vanderheijden86/slidetree/pkg/debug"
	"github.com/vanderheijden86/slidetree/pkg/metrics"
	"github.com/vanderheijden86/slidetree/pkg/model"
)

// ErrInvalidLevel is returned for graft levels below 1.
var ErrInvalidLevel = errors.New("graft level must be at least 1")

// Grafter moves nodes of one tree. It is not safe for concurrent use.
type Grafter struct {
	tree   *model.Tree
	groups map[string]model.GroupConfig
	warn   func(string)
}

// Option configures a Grafter.
type Option func(*Grafter)

// WithGroups supplies the group configurations consulted for graft level
// fallbacks and shared proportions.
func WithGroups(groups map[string]model.GroupConfig) Option {
	return func(g *Grafter) { g.groups = groups }
}

// WithWarningHandler receives non-fatal problems such as unknown paths.
func WithWarningHandler(fn func(string)) Option {
	return func(g *Grafter) { g.warn = fn }
}

// New returns a Grafter for tree.
func New(tree *model.Tree, opts ...Option) *Grafter {
	g := &Grafter{tree: tree, warn: func(string) {}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type rename struct {
	id   model.NodeID
	name string
}

// Graft relocates the node built from path so that it sits on the given
// level, falling back to the group's configured level. It returns the id
// of the node that now holds the content, or model.NoNode when nothing was
// grafted. A path that is not in the tree is reported as a warning.
func (g *Grafter) Graft(path string, level *int, group string) (model.NodeID, error) {
	defer metrics.Timer(metrics.Graft)()

	cfg, hasGroup := g.groups[group]
	target := 0
	switch {
	case level != nil && *level != 0:
		target = *level
	case hasGroup && cfg.GraftLevel != nil:
		target = *cfg.GraftLevel
	default:
		return model.NoNode, nil
	}
	if target < 1 {
		return model.NoNode, fmt.Errorf("%w: %d for %s", ErrInvalidLevel, target, path)
	}

	t := g.tree
	anchor, ok := t.LookupPath(path)
	if !ok {
		g.warn(fmt.Sprintf("node %q not found for grafting, skipping", path))
		return model.NoNode, nil
	}
	if anchor.IsRoot() {
		return model.NoNode, fmt.Errorf("cannot graft root (from %s)", path)
	}
	if group != "" {
		anchor.Group = group
	}

	newName := LevelledName(anchor.Name, target, group)
	result := anchor.ID
	if newName != anchor.Name {
		var err error
		if result, err = g.relocate(anchor.ID, newName); err != nil {
			return model.NoNode, err
		}
		t.Invalidate()
		debug.Assert(t.Rung(result) == target, fmt.Sprintf("%s grafted off rung %d", path, target))
	}

	if hasGroup {
		g.applyGroup(result, cfg)
	}
	return result, nil
}

// relocate moves the subtree rooted at anchor so that anchor is named
// newName. Every new name and the target parent are settled before any
// index entry changes, so a failure leaves the tree untouched.
func (g *Grafter) relocate(anchor model.NodeID, newName string) (model.NodeID, error) {
	t := g.tree
	a := t.Node(anchor)
	oldPrefix := a.Name
	oldParent := a.Parent

	parentName := model.ParentName(newName)
	if parentName == oldPrefix || strings.HasPrefix(parentName, oldPrefix+"/") {
		return model.NoNode, fmt.Errorf("cannot graft %q below itself as %q", oldPrefix, newName)
	}

	var plan []rename
	var stray string
	t.Walk(anchor, func(n *model.Node) bool {
		if n.ID != anchor && !strings.HasPrefix(n.Name, oldPrefix+"/") {
			stray = n.Name
		}
		plan = append(plan, rename{id: n.ID, name: newName + strings.TrimPrefix(n.Name, oldPrefix)})
		return true
	})
	if stray != "" {
		return model.NoNode, fmt.Errorf("node %q is not named below %q", stray, oldPrefix)
	}

	parentID, err := t.EnsureName(parentName)
	if err != nil {
		return model.NoNode, err
	}

	for _, r := range plan {
		t.DropName(r.id)
	}
	t.Detach(anchor)

	result := anchor
	var folded []model.NodeID
	for i, r := range plan {
		n := t.Node(r.id)
		if existing, ok := t.LookupName(r.name); ok {
			// Children that do not fold are re-homed below existing when
			// their turn comes; the ones that fold detach themselves here.
			t.Detach(n.ID)
			fold(t, n, existing)
			folded = append(folded, n.ID)
			if i == 0 {
				result = existing.ID
			}
			continue
		}
		if err := t.Rename(r.id, r.name); err != nil {
			return model.NoNode, err
		}
		pid := parentID
		if i > 0 {
			p, ok := t.LookupName(model.ParentName(r.name))
			if !ok {
				return model.NoNode, fmt.Errorf("%w: %q", model.ErrMissingParent, model.ParentName(r.name))
			}
			pid = p.ID
		}
		if n.Parent != pid {
			t.Detach(n.ID)
			t.Attach(n.ID, pid)
		}
	}

	for i := len(folded) - 1; i >= 0; i-- {
		if err := t.Remove(folded[i]); err != nil {
			return model.NoNode, fmt.Errorf("removing folded node: %w", err)
		}
	}

	g.prune(oldParent)
	if debug.Enabled() {
		debug.AssertNoError(t.Validate(), "graft "+oldPrefix)
	}
	return result, nil
}

// fold merges src into dst, which already carries src's new name. Children
// of src are re-homed when their own renames are applied.
func fold(t *model.Tree, src, dst *model.Node) {
	dst.Images = append(dst.Images, src.Images...)
	src.Images = nil
	if dst.Proportion == nil && src.Proportion != nil {
		v := *src.Proportion
		dst.Proportion = &v
	}
	if dst.UserProportion == nil && src.UserProportion != nil {
		v := *src.UserProportion
		dst.UserProportion = &v
	}
	if len(dst.ModeModifier) == 0 {
		dst.ModeModifier = src.ModeModifier.Clone()
	}
	if dst.Video == nil && src.Video != nil {
		v := *src.Video
		dst.Video = &v
	}
	if dst.Group == "" {
		dst.Group = src.Group
	}
	t.MoveAliases(src.ID, dst.ID)
}

// prune removes now-empty ancestors starting at id, stopping at the first
// non-empty node or at root.
func (g *Grafter) prune(id model.NodeID) {
	t := g.tree
	for n := t.Node(id); n != nil && !n.IsRoot() && n.Empty(); {
		parent := n.Parent
		if err := t.Remove(n.ID); err != nil {
			g.warn(fmt.Sprintf("pruning %q: %v", n.Name, err))
			return
		}
		n = t.Node(parent)
	}
}

// applyGroup writes the group's shared proportion and mode onto the anchor,
// or onto its ancestor on the group's configured level when the anchor sits
// deeper.
func (g *Grafter) applyGroup(anchor model.NodeID, cfg model.GroupConfig) {
	t := g.tree
	level := -1
	switch {
	case cfg.GraftLevel != nil:
		level = *cfg.GraftLevel
	case len(cfg.ModeModifier) > 0:
		level, _ = cfg.ModeModifier.Lowest()
	}

	target := t.Node(anchor)
	if level >= 0 {
		for target != nil && t.Rung(target.ID) > level {
			target = t.Node(target.Parent)
		}
	}
	if target == nil || target.IsRoot() {
		return
	}

	if cfg.UserProportion != nil {
		v := *cfg.UserProportion
		target.UserProportion = &v
	}
	if cfg.Proportion != nil {
		v := *cfg.Proportion
		target.Proportion = &v
	}
	if len(cfg.ModeModifier) > 0 {
		target.ModeModifier = target.ModeModifier.Overlay(cfg.ModeModifier)
	}
}
