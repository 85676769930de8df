// Package filter decides which paths a tree build admits.
package filter

import (
	"sort"
	"strings"

	"github.com/vanderheijden86/slidetree/pkg/model"
)

// Verdict is the four-way answer for a candidate path.
type Verdict int

const (
	// Admit processes the path's content and descends into it.
	Admit Verdict = 0
	// Prune neither processes nor descends.
	Prune Verdict = 1
	// Skip ignores the path's own content but descends into children.
	Skip Verdict = 2
	// AdmitAndPrune processes the content but does not descend.
	AdmitAndPrune Verdict = 3
)

func (v Verdict) String() string {
	switch v {
	case Admit:
		return "admit"
	case Prune:
		return "prune"
	case Skip:
		return "skip"
	case AdmitAndPrune:
		return "admit-and-prune"
	default:
		return "unknown"
	}
}

// Process reports whether the path's own files are considered.
func (v Verdict) Process() bool { return v == Admit || v == AdmitAndPrune }

// Descend reports whether the walk continues into subdirectories.
func (v Verdict) Descend() bool { return v == Admit || v == Skip }

// Admitter is consulted by the builder for every candidate path.
type Admitter interface {
	Verdict(path string) Verdict
	IgnoresFile(path string) bool
}

// Filter is the keyword and path based Admitter configured from source lists
// and command-line flags. The zero value admits everything.
type Filter struct {
	MustContain       []string
	MustNotContain    []string
	IgnoredDirs       map[string]struct{}
	IgnoredFiles      map[string]struct{}
	DontRecurseBeyond map[string]struct{}

	// IgnoreBelowBottom skips content above the lowest configured rung.
	IgnoreBelowBottom bool
	LowestRung        *int
}

// New returns an empty filter.
func New() *Filter {
	return &Filter{
		IgnoredDirs:       make(map[string]struct{}),
		IgnoredFiles:      make(map[string]struct{}),
		DontRecurseBeyond: make(map[string]struct{}),
	}
}

func (f *Filter) AddMustContain(keyword string) {
	f.MustContain = appendUnique(f.MustContain, keyword)
}

func (f *Filter) AddMustNotContain(keyword string) {
	f.MustNotContain = appendUnique(f.MustNotContain, keyword)
}

func (f *Filter) AddIgnoredDir(dir string) {
	if f.IgnoredDirs == nil {
		f.IgnoredDirs = make(map[string]struct{})
	}
	f.IgnoredDirs[model.CleanPath(dir)] = struct{}{}
}

func (f *Filter) AddIgnoredFile(file string) {
	if f.IgnoredFiles == nil {
		f.IgnoredFiles = make(map[string]struct{})
	}
	f.IgnoredFiles[model.CleanPath(file)] = struct{}{}
}

func (f *Filter) AddDontRecurseBeyond(dir string) {
	if f.DontRecurseBeyond == nil {
		f.DontRecurseBeyond = make(map[string]struct{})
	}
	f.DontRecurseBeyond[model.CleanPath(dir)] = struct{}{}
}

// ConfigureIgnoreBelowBottom enables skipping of paths whose depth is above
// the given floor rung. A nil floor disables the check.
func (f *Filter) ConfigureIgnoreBelowBottom(enabled bool, lowest *int) {
	f.IgnoreBelowBottom = enabled
	if enabled && lowest != nil {
		v := *lowest
		f.LowestRung = &v
		return
	}
	f.LowestRung = nil
}

// Verdict evaluates the rules in a fixed order: ignored directory, excluded
// keyword, missing required keyword, depth floor, recursion stop.
func (f *Filter) Verdict(path string) Verdict {
	clean := model.CleanPath(path)
	if _, ok := f.IgnoredDirs[clean]; ok {
		return Prune
	}
	for _, kw := range f.MustNotContain {
		if strings.Contains(path, kw) {
			return Skip
		}
	}
	if len(f.MustContain) > 0 && !containsAny(path, f.MustContain) {
		return Skip
	}
	if f.IgnoreBelowBottom && f.LowestRung != nil && model.NameRung(model.CanonicalName(path)) < *f.LowestRung {
		return Skip
	}
	if _, ok := f.DontRecurseBeyond[clean]; ok {
		return AdmitAndPrune
	}
	return Admit
}

// IgnoresFile reports whether a single file was excluded explicitly.
func (f *Filter) IgnoresFile(path string) bool {
	_, ok := f.IgnoredFiles[model.CleanPath(path)]
	return ok
}

// Empty reports whether the filter has no rules.
func (f *Filter) Empty() bool {
	return len(f.MustContain) == 0 && len(f.MustNotContain) == 0 &&
		len(f.IgnoredDirs) == 0 && len(f.IgnoredFiles) == 0 &&
		len(f.DontRecurseBeyond) == 0 && !f.IgnoreBelowBottom
}

// Clone returns an independent copy. Each source snapshots the filter at the
// moment it was parsed so later source lists cannot change earlier builds.
func (f *Filter) Clone() *Filter {
	c := &Filter{
		MustContain:       append([]string(nil), f.MustContain...),
		MustNotContain:    append([]string(nil), f.MustNotContain...),
		IgnoredDirs:       cloneSet(f.IgnoredDirs),
		IgnoredFiles:      cloneSet(f.IgnoredFiles),
		DontRecurseBeyond: cloneSet(f.DontRecurseBeyond),
		IgnoreBelowBottom: f.IgnoreBelowBottom,
	}
	if f.LowestRung != nil {
		v := *f.LowestRung
		c.LowestRung = &v
	}
	return c
}

// Rules lists the configured rules in a stable order, for logging.
func (f *Filter) Rules() []string {
	var out []string
	for _, kw := range f.MustContain {
		out = append(out, "+"+kw)
	}
	for _, kw := range f.MustNotContain {
		out = append(out, "-"+kw)
	}
	for _, set := range []struct {
		prefix string
		m      map[string]struct{}
	}{
		{"ignore-dir:", f.IgnoredDirs},
		{"ignore-file:", f.IgnoredFiles},
		{"no-recurse:", f.DontRecurseBeyond},
	} {
		keys := make([]string, 0, len(set.m))
		for k := range set.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, set.prefix+k)
		}
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func appendUnique(ss []string, s string) []string {
	for _, v := range ss {
		if v == s {
			return ss
		}
	}
	return append(ss, s)
}

func cloneSet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
