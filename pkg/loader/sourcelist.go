package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/vanderheijden86/slidetree/pkg/config"
	"github.com/vanderheijden86/slidetree/pkg/filter"
	"github.com/vanderheijden86/slidetree/pkg/mode"
	"github.com/vanderheijden86/slidetree/pkg/model"
)

// ErrNestingTooDeep is returned when nested .txt lists exceed MaxNestingDepth.
var ErrNestingTooDeep = errors.New("source lists nested too deeply")

var (
	modifierRe   = regexp.MustCompile(`\[.*?\]`)
	weightRe     = regexp.MustCompile(`^\d+%?$`)
	proportionRe = regexp.MustCompile(`^%\d+%?$`)
	graftRe      = regexp.MustCompile(`(?i)^g\d+$`)
	modeRe       = regexp.MustCompile(`(?i)^[bw]\d`)
)

// SourceList is everything declared by one source list and the lists it
// includes.
type SourceList struct {
	Path   string
	Roots  []model.RootSource
	Images []model.ImageSource
	// Nested holds .lst and .tree files referenced from the list. They are
	// built as separate sources.
	Nested []string
	Filter *filter.Filter
	Groups map[string]model.GroupConfig
	// Globals carries settings declared on "*" lines and [r].
	Globals config.Layer
}

// Empty reports whether the list declared no sources.
func (s *SourceList) Empty() bool {
	return len(s.Roots) == 0 && len(s.Images) == 0 && len(s.Nested) == 0
}

// LoadSourceList reads a .txt source list from disk. Relative paths inside
// it resolve against the list's directory.
func LoadSourceList(path string, opts ParseOptions) (*SourceList, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open source list: %w", err)
	}
	defer file.Close()

	p := newParser(opts)
	p.list.Path = abs
	if err := p.parse(file, abs, 0); err != nil {
		return nil, err
	}
	return p.list, nil
}

// ParseSourceList reads a source list stream. base is the directory that
// relative paths resolve against.
func ParseSourceList(r io.Reader, base string, opts ParseOptions) (*SourceList, error) {
	p := newParser(opts)
	if err := p.parse(r, filepath.Join(base, "-"), 0); err != nil {
		return nil, err
	}
	return p.list, nil
}

// ParseEntry interprets a single command-line input, a directory or file
// optionally followed by modifiers, exactly like one line of a source list.
func ParseEntry(entry string, opts ParseOptions) (*SourceList, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	p := newParser(opts)
	if err := p.line(strings.TrimSpace(strings.ReplaceAll(entry, `"`, "")), filepath.Join(cwd, "-"), 0); err != nil {
		return nil, err
	}
	return p.list, nil
}

// SplitEntry separates an entry into its path, without quotes, and its
// bracketed modifiers.
func SplitEntry(entry string) (path string, mods []string) {
	entry = strings.ReplaceAll(entry, `"`, "")
	return strings.TrimSpace(modifierRe.ReplaceAllString(entry, "")), modifierRe.FindAllString(entry, -1)
}

// EntryPath returns the path part of an entry.
func EntryPath(entry string) string {
	path, _ := SplitEntry(entry)
	return path
}

type parser struct {
	opts ParseOptions
	warn func(string)
	list *SourceList
}

func newParser(opts ParseOptions) *parser {
	f := opts.Filter
	if f == nil {
		f = filter.New()
	}
	return &parser{
		opts: opts,
		warn: opts.warn(),
		list: &SourceList{Filter: f, Groups: make(map[string]model.GroupConfig)},
	}
}

// parse reads one list. origin is the list file itself; its directory is
// the base for relative paths.
func (p *parser) parse(r io.Reader, origin string, depth int) error {
	return readLines(r, p.opts, func(n int, line string) error {
		if strings.HasPrefix(line, "#") {
			return nil
		}
		line = strings.TrimSpace(strings.ReplaceAll(line, `"`, ""))
		if line == "" {
			return nil
		}
		if err := p.line(line, origin, depth); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(origin), n, err)
		}
		return nil
	})
}

func (p *parser) resolve(origin, path string) string {
	if filepath.IsAbs(path) || model.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(filepath.Dir(origin), path)
}

func (p *parser) line(line, origin string, depth int) error {
	switch {
	case strings.HasPrefix(line, "[r]"):
		p.list.Globals.Random = model.Bool(true)
		return nil
	case strings.HasPrefix(line, "[+]"):
		if kw := strings.TrimSpace(line[3:]); kw != "" {
			p.list.Filter.AddMustContain(kw)
		}
		return nil
	case strings.HasPrefix(line, "[-]"):
		target := strings.TrimSpace(line[3:])
		if target == "" {
			return nil
		}
		if filepath.IsAbs(target) || model.IsAbs(target) {
			if info, err := os.Stat(target); err == nil && !info.IsDir() {
				p.list.Filter.AddIgnoredFile(target)
			} else {
				p.list.Filter.AddIgnoredDir(target)
			}
			return nil
		}
		p.list.Filter.AddMustNotContain(target)
		return nil
	}

	mods := modifierRe.FindAllString(line, -1)
	path := strings.TrimSpace(modifierRe.ReplaceAllString(line, ""))
	if path == "" {
		p.warn(fmt.Sprintf("line %q has modifiers but no path", line))
		return nil
	}
	if path != "*" {
		path = p.resolve(origin, path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return p.include(path, depth)
	case ".lst", ".tree":
		p.list.Nested = append(p.list.Nested, path)
		return nil
	}

	st, err := p.modifiers(mods, path, line)
	if err != nil {
		return err
	}

	if path == "*" {
		p.globals(st, depth)
		return nil
	}

	info, err := os.Stat(path)
	switch {
	case err != nil:
		p.warn(fmt.Sprintf("path %q is neither a file nor a directory", path))
	case info.IsDir():
		p.list.Roots = append(p.list.Roots, model.RootSource{
			Path:       path,
			Attrs:      st.attrs,
			GraftLevel: p.graftLevel(st.graft, path),
		})
	case IsImageFile(path) || IsVideoFile(path):
		st.attrs.Flat = false
		p.list.Images = append(p.list.Images, model.ImageSource{
			Path:       path,
			Attrs:      st.attrs,
			GraftLevel: p.graftLevel(st.graft, path),
		})
	default:
		p.warn(fmt.Sprintf("file %q is not an image or video, skipping", path))
	}
	return nil
}

func (p *parser) include(path string, depth int) error {
	if depth+1 > MaxNestingDepth {
		return fmt.Errorf("%w: %s", ErrNestingTooDeep, path)
	}
	file, err := os.Open(path)
	if err != nil {
		p.warn(fmt.Sprintf("cannot open nested list %q: %v", path, err))
		return nil
	}
	defer file.Close()
	return p.parse(file, path, depth+1)
}

// graftLevel applies the graft offset to an explicit level, or to the
// path's natural rung when only an offset is set. With neither, the level
// stays unset so a group's configured level can apply.
func (p *parser) graftLevel(explicit *int, path string) *int {
	switch {
	case explicit != nil:
		return model.Int(*explicit + p.opts.GraftOffset)
	case p.opts.GraftOffset != 0:
		return model.Int(model.NameRung(model.CanonicalName(path)) + p.opts.GraftOffset)
	}
	return nil
}

type lineState struct {
	attrs       model.Attrs
	graft       *int
	mute        *bool
	dontRecurse *bool
	ibb         *bool
}

func (p *parser) modifiers(mods []string, path, line string) (lineState, error) {
	st := lineState{attrs: model.DefaultAttrs()}
	for _, raw := range mods {
		mod := strings.TrimSpace(strings.Trim(raw, "[]"))
		lower := strings.ToLower(mod)
		switch {
		case weightRe.MatchString(mod):
			st.attrs.IsPercentage = strings.HasSuffix(mod, "%")
			v, err := strconv.Atoi(strings.TrimSuffix(mod, "%"))
			if err != nil {
				return st, fmt.Errorf("weight modifier [%s]: %w", mod, err)
			}
			st.attrs.WeightModifier = v
		case proportionRe.MatchString(mod):
			v, err := strconv.ParseFloat(strings.Trim(mod, "%"), 64)
			if err != nil {
				return st, fmt.Errorf("proportion modifier [%s]: %w", mod, err)
			}
			st.attrs.Proportion = model.Float(v)
			st.attrs.UserProportion = model.Float(v)
		case graftRe.MatchString(mod):
			v, err := strconv.Atoi(mod[1:])
			if err != nil {
				return st, fmt.Errorf("graft modifier [%s]: %w", mod, err)
			}
			st.graft = model.Int(v)
		case strings.HasPrefix(mod, ">"):
			st.attrs.Group = strings.TrimSpace(mod[1:])
		case modeRe.MatchString(mod):
			m, err := mode.Parse(mod)
			if err != nil {
				return st, err
			}
			st.attrs.ModeModifier = m
		case lower == "f":
			st.attrs.Flat = true
		case lower == "v":
			st.attrs.Video = model.Bool(true)
		case lower == "nv":
			st.attrs.Video = model.Bool(false)
		case lower == "m":
			st.mute = model.Bool(true)
		case lower == "nm":
			st.mute = model.Bool(false)
		case lower == "/":
			st.dontRecurse = model.Bool(true)
			if path != "*" {
				p.list.Filter.AddDontRecurseBeyond(path)
			}
		case lower == "ibb":
			st.ibb = model.Bool(true)
		default:
			p.warn(fmt.Sprintf("unknown modifier [%s] in line: %s", mod, line))
		}
	}
	return st, nil
}

// globals handles "*" lines: group definitions, or global settings.
func (p *parser) globals(st lineState, depth int) {
	if g := st.attrs.Group; g != "" {
		p.list.Groups[g] = model.GroupConfig{
			Proportion:     st.attrs.Proportion,
			UserProportion: st.attrs.UserProportion,
			GraftLevel:     st.graft,
			ModeModifier:   st.attrs.ModeModifier,
		}
		return
	}
	if st.attrs.Video != nil {
		p.list.Globals.Video = st.attrs.Video
	}
	if st.mute != nil {
		p.list.Globals.Mute = st.mute
	}
	if st.ibb != nil {
		p.list.Globals.IgnoreBelowBottom = st.ibb
	}
	if depth == 0 && !p.opts.IgnoreGlobalMode {
		if len(st.attrs.ModeModifier) > 0 {
			p.list.Globals.Mode = st.attrs.ModeModifier
		}
		if st.dontRecurse != nil {
			p.list.Globals.DontRecurse = st.dontRecurse
		}
	}
}
