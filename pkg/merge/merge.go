// Package merge combines independently built trees left to right. The first
// tree decides where nodes live; later trees add content and fill metadata.
package merge

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/vanderheijden86/slidetree/pkg/debug"
	"github.com/vanderheijden86/slidetree/pkg/graft"
	"github.com/vanderheijden86/slidetree/pkg/logging"
	"github.com/vanderheijden86/slidetree/pkg/metrics"
	"github.com/vanderheijden86/slidetree/pkg/model"
)

var (
	// ErrNoSources is returned when Merge is called without a usable tree.
	ErrNoSources = errors.New("no source trees to merge")

	// ErrBelowFloor is wrapped by FloorError.
	ErrBelowFloor = errors.New("graft offset places content above the lowest rung")
)

// FloorError reports an image-bearing node that a graft offset moved to a
// rung shallower than the lowest configured mode level.
type FloorError struct {
	Source string
	Node   string
	Rung   int
	Floor  int
}

func (e *FloorError) Error() string {
	return fmt.Sprintf("%s: node %q lands on rung %d, lowest rung is %d", e.Source, e.Node, e.Rung, e.Floor)
}

func (e *FloorError) Unwrap() error { return ErrBelowFloor }

// Source is one built tree taking part in a merge.
type Source struct {
	Label string
	Tree  *model.Tree
	// GraftOffset shifts the rung of nodes this source adds at top level.
	GraftOffset int
}

// Result is the merged tree plus bookkeeping.
type Result struct {
	Tree     *model.Tree
	Warnings []string
	Added    int
	Updated  int
}

// Merger merges trees. LowestRung is the floor enforced on offset sources.
type Merger struct {
	LowestRung     int
	WarningHandler func(string)
}

// Merge combines sources in order. The first non-nil tree is cloned, so no
// input is modified. The result is unweighted.
func (m *Merger) Merge(sources []Source) (*Result, error) {
	defer metrics.Timer(metrics.Merge)()

	res := &Result{}
	warn := logging.Warner("merge", func(s string) {
		res.Warnings = append(res.Warnings, s)
	})
	if m.WarningHandler != nil {
		warn = func(s string) {
			res.Warnings = append(res.Warnings, s)
			m.WarningHandler(s)
		}
	}

	first := -1
	for i, s := range sources {
		if s.Tree != nil {
			first = i
			break
		}
		warn(fmt.Sprintf("source %s has no tree, skipping", label(s, i)))
	}
	if first < 0 {
		return nil, ErrNoSources
	}

	res.Tree = sources[first].Tree.Clone()
	for i := first + 1; i < len(sources); i++ {
		s := sources[i]
		if s.Tree == nil {
			warn(fmt.Sprintf("source %s has no tree, skipping", label(s, i)))
			continue
		}
		mg := &merger{
			base:    res.Tree,
			in:      s.Tree,
			src:     s,
			label:   label(s, i),
			floor:   m.LowestRung,
			mapping: map[model.NodeID]model.NodeID{model.RootID: model.RootID},
			warn:    warn,
		}
		added, updated, err := mg.run()
		if err != nil {
			return nil, err
		}
		res.Added += added
		res.Updated += updated
	}
	res.Tree.Invalidate()
	if debug.Enabled() {
		debug.AssertNoError(res.Tree.Validate(), "merge")
	}
	return res, nil
}

func label(s Source, i int) string {
	if s.Label != "" {
		return s.Label
	}
	return fmt.Sprintf("#%d", i)
}

// merger folds one incoming tree into the accumulator.
type merger struct {
	base, in *model.Tree
	src      Source
	label    string
	floor    int
	// mapping takes incoming ids to their counterpart in base.
	mapping map[model.NodeID]model.NodeID
	warn    func(string)
}

func (mg *merger) run() (added, updated int, err error) {
	virtual := make(map[model.NodeID][]string)
	for p, id := range mg.in.VirtualEntries() {
		virtual[id] = append(virtual[id], p)
	}

	for _, id := range mg.in.Preorder() {
		if id == model.RootID {
			continue
		}
		n := mg.in.Node(id)

		target, ok := mg.base.LookupPath(n.Path)
		switch {
		case ok:
			if mergeNode(target, n) {
				updated++
			}
		default:
			var created bool
			if target, created, err = mg.add(n); err != nil {
				return added, updated, err
			}
			if created {
				added++
			} else {
				updated++
			}
		}
		mg.mapping[id] = target.ID

		for _, p := range mg.in.PathsOf(id) {
			if _, taken := mg.base.LookupPath(p); !taken {
				mg.base.AliasPath(p, target.ID)
			}
		}
		for _, p := range virtual[id] {
			mg.base.SetVirtual(p, target.ID)
		}
	}
	return added, updated, nil
}

// add places an unmatched node under its parent's counterpart. Children of
// the incoming root are shifted by the source's graft offset. A name that is
// already taken folds into the existing node.
func (mg *merger) add(n *model.Node) (*model.Node, bool, error) {
	var name string
	if n.Parent == model.RootID {
		name = n.Name
		if off := mg.src.GraftOffset; off != 0 {
			name = graft.LevelledName(n.Name, model.NameRung(n.Name)+off, n.Group)
		}
	} else {
		pid, ok := mg.mapping[n.Parent]
		if !ok {
			return nil, false, fmt.Errorf("%s: %w for %q", mg.label, model.ErrMissingParent, n.Name)
		}
		leaf := model.NameSegments(n.Name)
		name = model.JoinName(append(model.NameSegments(mg.base.Node(pid).Name), leaf[len(leaf)-1])...)
	}

	if rung := model.NameRung(name); mg.src.GraftOffset != 0 && len(n.Images) > 0 && rung < mg.floor {
		return nil, false, &FloorError{Source: mg.label, Node: name, Rung: rung, Floor: mg.floor}
	}

	if existing, ok := mg.base.LookupName(name); ok {
		mg.warn(fmt.Sprintf("%s: %s collides with %s, merging", mg.label, n.Path, existing.Name))
		mergeNode(existing, n)
		return existing, false, nil
	}
	if _, err := mg.base.EnsureName(model.ParentName(name)); err != nil {
		return nil, false, fmt.Errorf("%s: %w", mg.label, err)
	}
	created, err := mg.base.InsertNode(name, n.Path)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", mg.label, err)
	}
	copyNode(created, n)
	return created, true, nil
}

func copyNode(dst, src *model.Node) {
	dst.Group = src.Group
	dst.WeightModifier = src.WeightModifier
	dst.IsPercentage = src.IsPercentage
	dst.Proportion = cloneFloat(src.Proportion)
	dst.UserProportion = cloneFloat(src.UserProportion)
	dst.ModeModifier = src.ModeModifier.Clone()
	dst.Flat = src.Flat
	dst.Video = cloneBool(src.Video)
	dst.Images = append([]string(nil), src.Images...)
}

// mergeNode applies incoming onto target and reports whether anything
// changed. Placement and name stay with target.
func mergeNode(target, incoming *model.Node) bool {
	changed := replaceImages(target, incoming)

	if incoming.UserProportion != nil && !sameFloat(target.UserProportion, incoming.UserProportion) {
		target.UserProportion = cloneFloat(incoming.UserProportion)
		changed = true
	}
	if target.WeightModifier != incoming.WeightModifier {
		target.WeightModifier = incoming.WeightModifier
		changed = true
	}
	if target.IsPercentage != incoming.IsPercentage {
		target.IsPercentage = incoming.IsPercentage
		changed = true
	}

	if target.Proportion == nil && incoming.Proportion != nil {
		target.Proportion = cloneFloat(incoming.Proportion)
		changed = true
	}
	if len(target.ModeModifier) == 0 && len(incoming.ModeModifier) > 0 {
		target.ModeModifier = incoming.ModeModifier.Clone()
		changed = true
	}
	if target.Video == nil && incoming.Video != nil {
		target.Video = cloneBool(incoming.Video)
		changed = true
	}
	if target.Group == "" && incoming.Group != "" {
		target.Group = incoming.Group
		changed = true
	}
	return changed
}

// replaceImages swaps out the images target holds from incoming's own path
// for incoming's images. Images that reached target through other aliases
// are kept.
func replaceImages(target, incoming *model.Node) bool {
	if len(incoming.Images) == 0 {
		return false
	}
	owners := map[string]bool{model.CleanPath(incoming.Path): true}
	for _, img := range incoming.Images {
		if d := model.Dir(img); d != "" {
			owners[d] = true
		}
	}
	root := model.CleanPath(incoming.Path)

	kept := make([]string, 0, len(target.Images))
	for _, img := range target.Images {
		dir := model.Dir(img)
		if owners[dir] || (incoming.Flat && beneath(dir, root)) {
			continue
		}
		kept = append(kept, img)
	}
	next := append(kept, incoming.Images...)
	if slices.Equal(next, target.Images) {
		return false
	}
	target.Images = next
	return true
}

func beneath(dir, root string) bool {
	if root == "" {
		return false
	}
	sep := "/"
	if strings.Contains(root, `\`) {
		sep = `\`
	}
	return strings.HasPrefix(dir, strings.TrimSuffix(root, sep)+sep)
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
