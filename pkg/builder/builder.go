// Package builder populates a Tree from source descriptors: scanned
// directories, single files and weighted image lists.
package builder

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vanderheijden86/slidetree/pkg/config"
	"github.com/vanderheijden86/slidetree/pkg/debug"
	"github.com/vanderheijden86/slidetree/pkg/filter"
	"github.com/vanderheijden86/slidetree/pkg/graft"
	"github.com/vanderheijden86/slidetree/pkg/loader"
	"github.com/vanderheijden86/slidetree/pkg/logging"
	"github.com/vanderheijden86/slidetree/pkg/metrics"
	"github.com/vanderheijden86/slidetree/pkg/model"
	"github.com/vanderheijden86/slidetree/pkg/weights"
)

// ImagesBranch names the synthetic child that holds the images of a
// directory which also has subdirectories.
const ImagesBranch = "images"

// fallbackRepeat is used for virtual images when the tree has no branches
// to average over.
const fallbackRepeat = 100

// Builder adds content to one tree. It is not safe for concurrent use.
type Builder struct {
	tree     *model.Tree
	filter   filter.Admitter
	settings config.Settings
	groups   map[string]model.GroupConfig
	grafter  *graft.Grafter
	warn     func(string)
}

// Option configures a Builder.
type Option func(*Builder)

// WithFilter sets the admission filter consulted for every directory.
func WithFilter(f filter.Admitter) Option {
	return func(b *Builder) {
		if f != nil {
			b.filter = f
		}
	}
}

// WithSettings sets the resolved global settings.
func WithSettings(s config.Settings) Option {
	return func(b *Builder) { b.settings = s }
}

// WithGroups supplies group configurations for grafting.
func WithGroups(groups map[string]model.GroupConfig) Option {
	return func(b *Builder) { b.groups = groups }
}

// WithWarningHandler receives non-fatal problems.
func WithWarningHandler(fn func(string)) Option {
	return func(b *Builder) {
		if fn != nil {
			b.warn = fn
		}
	}
}

// New returns a Builder that adds to tree.
func New(tree *model.Tree, opts ...Option) *Builder {
	b := &Builder{
		tree:     tree,
		filter:   filter.New(),
		settings: config.Builtin(),
		warn:     logging.Warner("builder", nil),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.settings.MaxDepth <= 0 {
		b.settings.MaxDepth = config.DefaultMaxDepth
	}
	b.grafter = graft.New(tree, graft.WithGroups(b.groups), graft.WithWarningHandler(b.warn))
	return b
}

// Tree returns the tree being built.
func (b *Builder) Tree() *model.Tree { return b.tree }

// Build scans every root and then adds the specific images as virtual
// nodes. Roots that are not directories are skipped with a warning.
func (b *Builder) Build(roots []model.RootSource, images []model.ImageSource) error {
	defer metrics.Timer(metrics.TreeBuild)()
	defer debug.LogEnterExit("builder.Build")()

	for _, r := range roots {
		if err := b.addRoot(r); err != nil {
			return err
		}
	}
	if len(images) > 0 {
		if err := b.addImages(images); err != nil {
			return err
		}
	}
	b.tree.Invalidate()
	return nil
}

func (b *Builder) addRoot(r model.RootSource) error {
	info, err := os.Stat(r.Path)
	if err != nil || !info.IsDir() {
		b.warn(fmt.Sprintf("root %q is not a directory, skipping", r.Path))
		return nil
	}

	// The structural node carries the descriptor's metadata even when the
	// directory turns out to be empty.
	if _, ok := b.tree.LookupPath(r.Path); !ok {
		if _, err := b.tree.CreateNode(r.Path, r.Attrs, nil); err != nil {
			return fmt.Errorf("root %s: %w", r.Path, err)
		}
	}

	stop := metrics.Timer(metrics.DirScan)
	video := b.videoAllowed(r.Attrs.Video)
	if r.Attrs.Flat {
		err = b.flatten(r.Path, video)
	} else {
		err = b.scan(r.Path, video, 0)
	}
	stop()
	if err != nil {
		return fmt.Errorf("root %s: %w", r.Path, err)
	}

	if _, err := b.grafter.Graft(r.Path, r.GraftLevel, r.Attrs.Group); err != nil {
		return fmt.Errorf("root %s: %w", r.Path, err)
	}
	return nil
}

func (b *Builder) videoAllowed(override *bool) bool {
	if override != nil {
		return *override
	}
	return b.settings.Video
}

// listing is one directory's admissible content.
type listing struct {
	images []string
	dirs   []string
}

// list reads one directory without following symlinks. A read failure is
// logged and treated as an empty directory.
func (b *Builder) list(dir string, video, wantImages bool) listing {
	metrics.DirsScanned.Add(1)
	entries, err := os.ReadDir(dir)
	if err != nil {
		metrics.ScanErrors.Add(1)
		debug.Log("scan %s: %v", dir, err)
		return listing{}
	}
	var l listing
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		switch {
		case e.Type()&fs.ModeSymlink != 0:
			continue
		case e.IsDir():
			l.dirs = append(l.dirs, full)
		case wantImages && e.Type().IsRegular():
			if !loader.IsImageFile(full) && !(video && loader.IsVideoFile(full)) {
				continue
			}
			if b.filter.IgnoresFile(full) {
				continue
			}
			l.images = append(l.images, full)
		}
	}
	metrics.ImagesFound.Add(len(l.images))
	return l
}

// scan walks dir depth-first, consulting the filter for every directory.
func (b *Builder) scan(dir string, video bool, depth int) error {
	v := b.filter.Verdict(dir)
	process := v.Process()
	descend := v.Descend() && !b.settings.DontRecurse
	if depth >= b.settings.MaxDepth {
		if descend {
			b.warn(fmt.Sprintf("max depth %d reached at %q", b.settings.MaxDepth, dir))
		}
		descend = false
	}
	if !process && !descend {
		return nil
	}

	l := b.list(dir, video, process)
	if process && len(l.images) > 0 {
		if err := b.addContent(dir, l.images, len(l.dirs) > 0); err != nil {
			return err
		}
	}
	if descend {
		for _, sub := range l.dirs {
			if err := b.scan(sub, video, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// addContent attaches images to the node for dir, or to a synthetic images
// child when dir also has subdirectories.
func (b *Builder) addContent(dir string, images []string, hasDirs bool) error {
	target := dir
	if hasDirs {
		target = filepath.Join(dir, ImagesBranch)
	}
	_, err := b.attach(target, images)
	return err
}

// attach adds images to the node that path resolves to, creating it when
// missing. A real subdirectory named like the synthetic images child shares
// that node, so images already there are kept.
func (b *Builder) attach(path string, images []string) (*model.Node, error) {
	n, ok := b.tree.LookupPath(path)
	if !ok {
		if n, ok = b.tree.LookupName(model.CanonicalName(path)); ok {
			b.tree.AliasPath(path, n.ID)
		}
	}
	if !ok {
		return b.tree.CreateNode(path, model.DefaultAttrs(), images)
	}
	n.Images = appendMissing(n.Images, images)
	return n, nil
}

func appendMissing(dst, src []string) []string {
	if len(dst) == 0 {
		return src
	}
	have := make(map[string]bool, len(dst))
	for _, p := range dst {
		have[p] = true
	}
	for _, p := range src {
		if !have[p] {
			dst = append(dst, p)
			have[p] = true
		}
	}
	return dst
}

// flatten gathers every image beneath root into root's node and aliases
// each image-bearing subdirectory to it.
func (b *Builder) flatten(root string, video bool) error {
	n, ok := b.tree.LookupPath(root)
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrNodeNotFound, root)
	}

	var all []string
	type frame struct {
		dir   string
		depth int
	}
	stack := []frame{{root, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		l := b.list(f.dir, video, true)
		if len(l.images) > 0 {
			all = append(all, l.images...)
			b.tree.AliasPath(f.dir, n.ID)
		}
		if f.depth+1 >= b.settings.MaxDepth {
			continue
		}
		for i := len(l.dirs) - 1; i >= 0; i-- {
			stack = append(stack, frame{l.dirs[i], f.depth + 1})
		}
	}
	n.Images = all
	return nil
}

// addImages turns single files into virtual nodes whose image list repeats
// the file so it competes with directories of typical size.
func (b *Builder) addImages(images []model.ImageSource) error {
	branches, total := b.tree.CountBranches(model.RootID)
	repeat := fallbackRepeat
	if branches > 0 {
		repeat = max(1, total/branches)
	}

	for _, src := range images {
		if b.filter.Verdict(src.Path) != filter.Admit || b.filter.IgnoresFile(src.Path) {
			continue
		}
		count := repeat
		if !src.Attrs.IsPercentage {
			count = max(0, src.Attrs.WeightModifier)
		}
		list := make([]string, count)
		for i := range list {
			list[i] = src.Path
		}

		nodePath := strings.TrimSuffix(src.Path, filepath.Ext(src.Path))
		attrs := src.Attrs
		attrs.Flat = false
		n, err := b.tree.CreateNode(nodePath, attrs, list)
		if err != nil {
			return fmt.Errorf("image %s: %w", src.Path, err)
		}
		b.tree.SetVirtual(src.Path, n.ID)
		metrics.ImagesFound.Add(1)

		if _, err := b.grafter.Graft(nodePath, src.GraftLevel, attrs.Group); err != nil {
			return fmt.Errorf("image %s: %w", src.Path, err)
		}
	}
	return nil
}

// BuildFromList adds a weighted image list. Entries are grouped into one
// node per directory, and every node on the way up gets the share of the
// summed weights found beneath it as its proportion and user proportion, so
// sibling sets reproduce the list's relative weights. A directory whose
// subdirectories are also listed keeps its own images in a synthetic images
// child. Images within one directory share its weight equally.
func (b *Builder) BuildFromList(entries []loader.ListEntry) error {
	defer metrics.Timer(metrics.TreeBuild)()

	var order []string
	byDir := make(map[string][]loader.ListEntry)
	for _, e := range entries {
		if !model.IsAbs(e.Path) {
			b.warn(fmt.Sprintf("list entry %q is not an absolute path, skipping", e.Path))
			continue
		}
		dir := model.Dir(e.Path)
		if _, ok := byDir[dir]; !ok {
			order = append(order, dir)
		}
		byDir[dir] = append(byDir[dir], e)
	}

	// Names of every listed directory's ancestors.
	parents := make(map[string]bool)
	for _, dir := range order {
		for name := model.CanonicalName(dir); name != model.RootName; {
			name = model.ParentName(name)
			parents[name] = true
		}
	}

	sums := make(map[model.NodeID]float64)
	var total float64
	for _, dir := range order {
		target := dir
		if name := model.CanonicalName(dir); name == model.RootName || parents[name] {
			target = filepath.Join(dir, ImagesBranch)
		}
		items := byDir[dir]
		paths := make([]string, len(items))
		var sum float64
		for i, e := range items {
			paths[i] = e.Path
			if e.Weight > 0 {
				sum += e.Weight
			} else {
				sum++
			}
		}
		n, err := b.attach(target, paths)
		if err != nil {
			return fmt.Errorf("list directory %s: %w", dir, err)
		}
		for id := n.ID; id != model.RootID && id != model.NoNode; id = b.tree.Node(id).Parent {
			sums[id] += sum
		}
		total += sum
	}

	if total > 0 {
		for id, sum := range sums {
			n := b.tree.Node(id)
			n.Proportion = model.Float(sum / total * 100)
			n.UserProportion = model.Float(sum / total * 100)
		}
	}
	b.tree.Invalidate()
	return nil
}

// Finish fails when the tree holds no images and otherwise distributes
// weights under the configured mode.
func (b *Builder) Finish() error {
	if b.tree.TotalImages() == 0 {
		return model.ErrNoImages
	}
	weights.Distribute(b.tree, b.settings.Mode)
	return nil
}

// BuildTree builds a fresh tree from roots and images and distributes its
// weights. It fails with model.ErrNoImages when nothing was found.
func BuildTree(roots []model.RootSource, images []model.ImageSource, opts ...Option) (*model.Tree, error) {
	b := New(model.New(), opts...)
	if err := b.Build(roots, images); err != nil {
		return nil, err
	}
	if err := b.Finish(); err != nil {
		if errors.Is(err, model.ErrNoImages) {
			return b.tree, err
		}
		return nil, err
	}
	return b.tree, nil
}
