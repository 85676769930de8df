package datasource

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/slidetree/pkg/builder"
	"github.com/vanderheijden86/slidetree/pkg/config"
	"github.com/vanderheijden86/slidetree/pkg/debug"
	"github.com/vanderheijden86/slidetree/pkg/filter"
	"github.com/vanderheijden86/slidetree/pkg/loader"
	"github.com/vanderheijden86/slidetree/pkg/logging"
	"github.com/vanderheijden86/slidetree/pkg/merge"
	"github.com/vanderheijden86/slidetree/pkg/model"
	"github.com/vanderheijden86/slidetree/pkg/snapshot"
	"github.com/vanderheijden86/slidetree/pkg/weights"
)

// ErrNoInputs is returned when Build is called without inputs.
var ErrNoInputs = errors.New("no inputs given")

// Pipeline builds one weighted tree from many inputs.
type Pipeline struct {
	// Flags are the settings given on the command line. They beat
	// everything else.
	Flags config.Layer
	// Defaults is the config file layer, consulted after every input.
	Defaults config.Layer
	// Filter carries rules given on the command line. Source lists add
	// theirs to it in input order. If nil an empty filter is used.
	Filter *filter.Filter
	// GraftOffset shifts the top-level nodes of every source after the first.
	GraftOffset int
	// SearchDirs are tried for relative inputs that do not exist as given.
	SearchDirs []string
	// Concurrency bounds the build phase. If 0, uses GOMAXPROCS.
	Concurrency int
	// WarningHandler receives every warning. If nil, warnings go to the logger.
	WarningHandler func(string)
}

// Outcome is the merged, weighted result of a build.
type Outcome struct {
	Tree     *model.Tree
	Settings config.Settings
	Sources  []Source
	Warnings []string
	Added    int
	Updated  int
}

// job is one source travelling from the parse phase to the merge.
type job struct {
	src    Source
	list   *loader.SourceList
	filter *filter.Filter
	tree   *model.Tree
	layer  config.Layer
}

// Build classifies and parses inputs in order, builds their trees
// concurrently, merges them left to right and distributes weights under the
// resolved mode. It fails with model.ErrNoImages when no source holds an
// image.
func (p *Pipeline) Build(ctx context.Context, inputs []string) (*Outcome, error) {
	defer debug.LogEnterExit("datasource.Build")()
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}

	out := &Outcome{}
	var mu sync.Mutex
	sink := p.WarningHandler
	if sink == nil {
		sink = logging.Warner("datasource", nil)
	}
	warn := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		out.Warnings = append(out.Warnings, s)
		sink(s)
	}

	base := p.Filter
	if base == nil {
		base = filter.New()
	}
	groups := make(map[string]model.GroupConfig)

	jobs, err := p.parse(inputs, base, groups, warn)
	if err != nil {
		return nil, err
	}

	layers := []config.Layer{p.Flags}
	for _, j := range jobs {
		layers = append(layers, j.layer)
	}
	layers = append(layers, p.Defaults)
	settings := config.Resolve(layers...)
	out.Settings = settings
	debug.Log("resolved mode %s from %d layers", settings.Mode, len(layers))
	debug.Dump("settings", settings)

	lowest, hasLowest := settings.Mode.Lowest()
	for _, j := range jobs {
		if j.filter == nil {
			continue
		}
		if hasLowest {
			j.filter.ConfigureIgnoreBelowBottom(settings.IgnoreBelowBottom, &lowest)
		} else {
			j.filter.ConfigureIgnoreBelowBottom(false, nil)
		}
	}

	if err := p.build(ctx, jobs, settings, groups, warn); err != nil {
		return nil, err
	}

	var sources []merge.Source
	for _, j := range jobs {
		images := 0
		if j.tree != nil {
			images = j.tree.TotalImages()
		}
		if images == 0 {
			warn(fmt.Sprintf("source %s contributed no images, skipping", j.src.Label))
			continue
		}
		j.src.Images = images
		offset := 0
		if len(sources) > 0 {
			offset = p.GraftOffset
		}
		sources = append(sources, merge.Source{Label: j.src.Label, Tree: j.tree, GraftOffset: offset})
		out.Sources = append(out.Sources, j.src)
	}
	if len(sources) == 0 {
		return nil, model.ErrNoImages
	}

	m := &merge.Merger{LowestRung: lowest, WarningHandler: warn}
	res, err := m.Merge(sources)
	if err != nil {
		return nil, err
	}
	if res.Tree.TotalImages() == 0 {
		return nil, model.ErrNoImages
	}
	weights.Distribute(res.Tree, settings.Mode)

	out.Tree = res.Tree
	out.Added = res.Added
	out.Updated = res.Updated
	logging.Info().
		Int("sources", len(sources)).
		Int("added", res.Added).
		Int("updated", res.Updated).
		Int("images", res.Tree.TotalImages()).
		Msg("merged inputs")
	return out, nil
}

// parse runs sequentially: source lists mutate the shared filter and groups
// in input order, and every source keeps a snapshot of the filter as it was
// when the source was parsed.
func (p *Pipeline) parse(inputs []string, base *filter.Filter, groups map[string]model.GroupConfig, warn func(string)) ([]*job, error) {
	var jobs []*job
	for _, entry := range inputs {
		path, err := ResolveInput(entry, p.SearchDirs...)
		if err != nil {
			warn(err.Error())
			continue
		}
		more, err := p.parseOne(entry, path, base, groups, warn, 0)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry, err)
		}
		jobs = append(jobs, more...)
	}
	for i, j := range jobs {
		j.src.Index = i
	}
	return jobs, nil
}

func (p *Pipeline) parseOne(entry, path string, base *filter.Filter, groups map[string]model.GroupConfig, warn func(string), depth int) ([]*job, error) {
	if depth > loader.MaxNestingDepth {
		return nil, fmt.Errorf("%w: %s", loader.ErrNestingTooDeep, path)
	}
	src := Source{Label: entry, Path: path, Kind: Classify(path)}
	opts := loader.ParseOptions{WarningHandler: warn, Filter: base}

	switch src.Kind {
	case KindText:
		list, err := loader.LoadSourceList(path, opts)
		if err != nil {
			return nil, err
		}
		maps.Copy(groups, list.Groups)
		for _, r := range list.Roots {
			src.Refs = append(src.Refs, r.Path)
		}
		for _, img := range list.Images {
			src.Refs = append(src.Refs, img.Path)
		}
		jobs := []*job{{src: src, list: list, filter: base.Clone(), layer: list.Globals}}
		for _, nested := range list.Nested {
			more, err := p.parseOne(nested, nested, base, groups, warn, depth+1)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, more...)
		}
		return jobs, nil

	case KindFolder, KindImage:
		_, mods := loader.SplitEntry(entry)
		list, err := loader.ParseEntry(strings.TrimSpace(path+" "+strings.Join(mods, " ")), opts)
		if err != nil {
			return nil, err
		}
		return []*job{{src: src, list: list, filter: base.Clone()}}, nil

	case KindList, KindDatabase:
		return []*job{{src: src, filter: base.Clone()}}, nil

	case KindTree:
		tree, err := snapshot.LoadFile(path)
		if err == nil {
			return []*job{{src: src, tree: tree, layer: config.Layer{Mode: tree.Mode.Clone()}}}, nil
		}
		if !errors.Is(err, snapshot.ErrStaleSnapshot) {
			warn(fmt.Sprintf("skipping unreadable snapshot: %v", err))
			return nil, nil
		}
		alt, ok := siblingList(path)
		if !ok {
			warn(fmt.Sprintf("skipping stale snapshot %s", path))
			return nil, nil
		}
		warn(fmt.Sprintf("snapshot %s is stale, rebuilding from %s", path, alt))
		jobs, err := p.parseOne(alt, alt, base, groups, warn, depth+1)
		for _, j := range jobs {
			j.src.FallbackFrom = path
		}
		return jobs, err
	}

	warn(fmt.Sprintf("unsupported input %s, skipping", path))
	return nil, nil
}

// build fills in the tree of every job that does not have one yet. Each
// tree is owned by exactly one goroutine.
func (p *Pipeline) build(ctx context.Context, jobs []*job, settings config.Settings, groups map[string]model.GroupConfig, warn func(string)) error {
	g, ctx := errgroup.WithContext(ctx)
	limit := p.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(limit)

	for _, j := range jobs {
		if j.tree != nil {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			tree, err := buildOne(j, settings, groups, warn)
			if err != nil {
				return fmt.Errorf("%s: %w", j.src.Label, err)
			}
			j.tree = tree
			return nil
		})
	}
	return g.Wait()
}

func buildOne(j *job, settings config.Settings, groups map[string]model.GroupConfig, warn func(string)) (*model.Tree, error) {
	b := builder.New(model.New(),
		builder.WithFilter(j.filter),
		builder.WithSettings(settings),
		builder.WithGroups(groups),
		builder.WithWarningHandler(warn),
	)

	var err error
	switch j.src.Kind {
	case KindList:
		var entries []loader.ListEntry
		if entries, err = loader.LoadImageList(j.src.Path, loader.ParseOptions{WarningHandler: warn}); err == nil {
			err = b.BuildFromList(entries)
		}
	case KindDatabase:
		var entries []loader.ListEntry
		if entries, err = loadDatabase(j.src.Path); err == nil {
			err = b.BuildFromList(entries)
		}
	default:
		err = b.Build(j.list.Roots, j.list.Images)
	}
	if err != nil {
		return nil, err
	}
	return b.Tree(), nil
}

func loadDatabase(path string) ([]loader.ListEntry, error) {
	r, err := NewSQLiteReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.LoadEntries()
}
