// Command slidetree builds a weighted sampling tree from directories, source
// lists, weighted image lists and saved snapshots, and writes the result for
// a slideshow or any other weighted sampler.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"

	"github.com/vanderheijden86/slidetree/pkg/config"
	"github.com/vanderheijden86/slidetree/pkg/logging"
	"github.com/vanderheijden86/slidetree/pkg/metrics"
	"github.com/vanderheijden86/slidetree/pkg/mode"
	"github.com/vanderheijden86/slidetree/pkg/model"
	"github.com/vanderheijden86/slidetree/pkg/version"
)

// cliOptions is everything the command line can say.
type cliOptions struct {
	Inputs      []string
	Flags       config.Layer
	ConfigPath  string
	GraftOffset int
	Exclude     []string

	OutList   string
	OutTree   string
	OutSQLite string
	Chart     string
	Print     bool
	Depth     int
	Watch     bool
	Stats     bool
	NoHooks   bool

	LogLevel   string
	LogFormat  string
	CPUProfile string
	Version    bool
}

type stringList []string

func (s *stringList) String() string     { return fmt.Sprint(*s) }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

// parseFlags reads args into options. Settings flags are only put into the
// flag layer when given explicitly, so input files and the config file can
// fill in the rest.
func parseFlags(args []string, stderr io.Writer) (*cliOptions, error) {
	fs := flag.NewFlagSet("slidetree", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &cliOptions{}
	modeFlag := fs.String("mode", "", "Weighting mode, e.g. w1 or b1w3,20")
	random := fs.Bool("random", false, "Sample uniformly, ignoring weights")
	dontRecurse := fs.Bool("dont-recurse", false, "Do not descend below the given directories")
	video := fs.Bool("video", false, "Include video files")
	noVideo := fs.Bool("no-video", false, "Exclude video files")
	mute := fs.Bool("mute", false, "Start videos muted")
	maxDepth := fs.Int("max-depth", 0, "Maximum directory depth to scan (0 = config default)")
	ibb := fs.Bool("ignore-below-bottom", false, "Skip directories deeper than the lowest mode level")
	fs.StringVar(&opts.ConfigPath, "config", "", "Config file (default: "+config.ConfigPath()+")")
	fs.IntVar(&opts.GraftOffset, "graft-offset", 0, "Shift the top-level nodes of every input after the first by this many rungs")
	fs.Var((*stringList)(&opts.Exclude), "exclude", "Skip paths containing this keyword (repeatable)")

	fs.StringVar(&opts.OutList, "out-list", "", "Write the weighted image list (.lst)")
	fs.StringVar(&opts.OutTree, "out-tree", "", "Write a snapshot of the tree (.tree)")
	fs.StringVar(&opts.OutSQLite, "out-sqlite", "", "Write a SQLite database of nodes and items")
	fs.StringVar(&opts.Chart, "chart", "", "Write a branch weight chart (.svg or .png)")
	fs.BoolVar(&opts.Print, "print", false, "Print the tree with weights")
	fs.IntVar(&opts.Depth, "print-depth", 0, "Limit --print to this many rungs (0 = all)")
	fs.BoolVar(&opts.Watch, "watch", false, "Rebuild whenever an input changes")
	fs.BoolVar(&opts.Stats, "stats", false, "Print timing metrics as JSON to stderr")
	fs.BoolVar(&opts.NoHooks, "no-hooks", false, "Skip the hooks in .slidetree/hooks.yaml")

	fs.StringVar(&opts.LogLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	fs.StringVar(&opts.LogFormat, "log-format", "", "Log format: console or json")
	fs.StringVar(&opts.CPUProfile, "cpu-profile", "", "Write CPU profile to file")
	fs.BoolVar(&opts.Version, "version", false, "Show version")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: slidetree [options] <input> [input...]")
		fmt.Fprintln(stderr, "\nInputs are directories, image files, .txt source lists, .lst image lists,")
		fmt.Fprintln(stderr, ".tree snapshots or exported .db files. Modifiers may follow a path: \"photos [50%]\".")
		fmt.Fprintln(stderr)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.Inputs = fs.Args()

	if *video && *noVideo {
		return nil, errors.New("--video and --no-video are mutually exclusive")
	}

	var parseErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			m, err := mode.Parse(*modeFlag)
			if err != nil {
				parseErr = fmt.Errorf("--mode: %w", err)
				return
			}
			opts.Flags.Mode = m
		case "random":
			opts.Flags.Random = model.Bool(*random)
		case "dont-recurse":
			opts.Flags.DontRecurse = model.Bool(*dontRecurse)
		case "video":
			opts.Flags.Video = model.Bool(*video)
		case "no-video":
			opts.Flags.Video = model.Bool(!*noVideo)
		case "mute":
			opts.Flags.Mute = model.Bool(*mute)
		case "max-depth":
			opts.Flags.MaxDepth = model.Int(*maxDepth)
		case "ignore-below-bottom":
			opts.Flags.IgnoreBelowBottom = model.Bool(*ibb)
		}
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if opts.Version {
		fmt.Printf("slidetree %s\n", version.String())
		os.Exit(0)
	}

	// CPU profiling support
	if opts.CPUProfile != "" {
		f, err := os.Create(opts.CPUProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.Stats {
		metrics.SetEnabled(true)
	}

	code := 0
	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		code = 1
	}
	if opts.Stats {
		_ = metrics.WriteJSON(os.Stderr)
	}
	if code != 0 {
		pprof.StopCPUProfile()
		os.Exit(code)
	}
}

// setupLogging applies flags over the config file's logging section.
func setupLogging(opts *cliOptions, cfg config.Config) {
	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	format := cfg.Logging.Format
	if opts.LogFormat != "" {
		format = opts.LogFormat
	}
	logging.Init(logging.Config{Level: level, Format: format})
}
