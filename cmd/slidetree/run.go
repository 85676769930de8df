package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vanderheijden86/slidetree/internal/datasource"
	"github.com/vanderheijden86/slidetree/pkg/config"
	"github.com/vanderheijden86/slidetree/pkg/export"
	"github.com/vanderheijden86/slidetree/pkg/filter"
	"github.com/vanderheijden86/slidetree/pkg/hooks"
	"github.com/vanderheijden86/slidetree/pkg/logging"
	"github.com/vanderheijden86/slidetree/pkg/snapshot"
	"github.com/vanderheijden86/slidetree/pkg/watcher"
)

// tempPrefix names the temp files the exporters write before renaming.
const tempPrefix = ".slidetree-"

// run loads config, builds once and writes the requested outputs. With
// --watch it keeps rebuilding on input changes until ctx is done.
func run(ctx context.Context, opts *cliOptions, stdout io.Writer) error {
	var (
		cfg config.Config
		err error
	)
	if opts.ConfigPath != "" {
		cfg, err = config.LoadFrom(opts.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	setupLogging(opts, cfg)

	defaults, err := cfg.Layer()
	if err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}
	resolveOutputs(opts, cfg.Output.Dir)

	p := &datasource.Pipeline{
		Flags:       opts.Flags,
		Defaults:    defaults,
		GraftOffset: opts.GraftOffset,
	}
	if cwd, err := os.Getwd(); err == nil {
		p.SearchDirs = []string{cwd}
	}

	out, err := buildOnce(ctx, p, opts, stdout)
	if err != nil {
		return err
	}
	if !opts.Watch {
		return nil
	}
	return watch(ctx, p, opts, out, stdout)
}

// resolveOutputs puts relative output paths under dir, when one is set.
func resolveOutputs(opts *cliOptions, dir string) {
	if dir == "" {
		return
	}
	for _, p := range []*string{&opts.OutList, &opts.OutTree, &opts.OutSQLite, &opts.Chart} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// outputs lists the files a build writes.
func outputs(opts *cliOptions) []string {
	var out []string
	for _, o := range []string{opts.OutList, opts.OutTree, opts.OutSQLite, opts.Chart} {
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

// buildOnce runs the pipeline and writes every requested output.
func buildOnce(ctx context.Context, p *datasource.Pipeline, opts *cliOptions, stdout io.Writer) (*datasource.Outcome, error) {
	f := filter.New()
	for _, kw := range opts.Exclude {
		f.AddMustNotContain(kw)
	}
	p.Filter = f

	start := time.Now()
	out, err := p.Build(ctx, opts.Inputs)
	if err != nil {
		return nil, err
	}
	tree := out.Tree

	cwd, _ := os.Getwd()
	hookRun, err := hooks.RunHooks(cwd, hooks.ExportContext{
		Outputs:    outputs(opts),
		Mode:       out.Settings.Mode.String(),
		ImageCount: tree.TotalImages(),
		Timestamp:  start,
	}, opts.NoHooks)
	if err != nil {
		return nil, err
	}
	if hookRun != nil {
		if err := hookRun.RunPreExport(); err != nil {
			return nil, err
		}
	}

	if opts.OutList != "" {
		meta := export.ListMeta{
			Inputs:  opts.Inputs,
			Mode:    out.Settings.Mode.String(),
			Uniform: out.Settings.Random,
		}
		if err := export.SaveImageList(opts.OutList, tree, meta); err != nil {
			return nil, fmt.Errorf("writing image list: %w", err)
		}
	}
	if opts.OutTree != "" {
		if err := snapshot.SaveFile(opts.OutTree, tree); err != nil {
			return nil, fmt.Errorf("writing snapshot: %w", err)
		}
	}
	if opts.OutSQLite != "" {
		if err := export.NewSQLiteExporter(tree, opts.Inputs).Export(opts.OutSQLite); err != nil {
			return nil, fmt.Errorf("writing database: %w", err)
		}
	}
	if opts.Chart != "" {
		err := export.SaveWeightChart(export.ChartOptions{
			Path:  opts.Chart,
			Title: strings.Join(opts.Inputs, ", "),
			Tree:  tree,
		})
		if err != nil && !errors.Is(err, export.ErrEmptyChart) {
			return nil, fmt.Errorf("writing chart: %w", err)
		}
	}
	if opts.Print {
		fmt.Fprint(stdout, export.RenderTree(tree, export.RenderOptions{
			MaxDepth: opts.Depth,
			Color:    stdout == io.Writer(os.Stdout) && export.StdoutIsTerminal(),
		}))
	}

	if hookRun != nil {
		if err := hookRun.RunPostExport(); err != nil {
			logging.Warn().Err(err).Msg("post-export hooks failed")
		}
		logging.Debug().Msg(hookRun.Summary())
	}

	logging.Info().
		Int("images", tree.TotalImages()).
		Int("warnings", len(out.Warnings)).
		Str("mode", out.Settings.Mode.String()).
		Dur("took", time.Since(start)).
		Msg("build complete")
	return out, nil
}

// watch rebuilds whenever a source changes. A failed rebuild is logged and
// the previous outputs stay in place.
func watch(ctx context.Context, p *datasource.Pipeline, opts *cliOptions, out *datasource.Outcome, stdout io.Writer) error {
	var paths []string
	seen := make(map[string]bool)
	for _, s := range out.Sources {
		for _, path := range s.WatchPaths() {
			if !seen[path] {
				seen[path] = true
				paths = append(paths, path)
			}
		}
	}

	written := make(map[string]bool)
	for _, o := range outputs(opts) {
		if abs, err := filepath.Abs(o); err == nil {
			written[abs] = true
		}
	}
	skip := func(path string) bool {
		if strings.HasPrefix(filepath.Base(path), tempPrefix) {
			return true
		}
		for o := range written {
			// Covers sqlite's -journal and -wal siblings too
			if strings.HasPrefix(path, o) {
				return true
			}
		}
		return false
	}

	log := logging.With("watch")
	w, err := watcher.NewWatcher(paths,
		watcher.WithIgnore(skip),
		watcher.WithOnError(func(err error) {
			log.Warn().Err(err).Msg("watcher error")
		}),
	)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	log.Info().
		Int("paths", len(paths)).
		Bool("polling", w.IsPolling()).
		Str("fs", w.FilesystemType().String()).
		Msg("watching for changes")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Changed():
			if _, err := buildOnce(ctx, p, opts, stdout); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Msg("rebuild failed")
			}
		}
	}
}
