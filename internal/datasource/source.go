// Package datasource turns the inputs given on the command line into one
// weighted tree. It classifies every input, parses source lists in order,
// builds the independent trees concurrently and merges them left to right.
package datasource

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vanderheijden86/slidetree/pkg/loader"
)

// ErrInputNotFound is returned when an input resolves to no existing path.
var ErrInputNotFound = errors.New("input not found")

// SourceKind identifies how an input is turned into a tree.
type SourceKind string

const (
	// KindText is a .txt source list.
	KindText SourceKind = "txt"
	// KindList is a .lst weighted image list.
	KindList SourceKind = "lst"
	// KindTree is a .tree snapshot.
	KindTree SourceKind = "tree"
	// KindDatabase is a database written by the SQLite exporter.
	KindDatabase SourceKind = "db"
	// KindFolder is a directory scanned directly.
	KindFolder SourceKind = "folder"
	// KindImage is a single image or video file.
	KindImage SourceKind = "image"
	// KindUnknown is anything else; it is skipped with a warning.
	KindUnknown SourceKind = "unknown"
)

// Classify decides the kind of an input path. Directories are detected on
// disk; everything else goes by extension.
func Classify(path string) SourceKind {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return KindFolder
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt":
		return KindText
	case ".lst":
		return KindList
	case ".tree":
		return KindTree
	case ".db", ".sqlite":
		return KindDatabase
	}
	if loader.IsImageFile(path) || loader.IsVideoFile(path) {
		return KindImage
	}
	return KindUnknown
}

// Source is one input taking part in a build.
type Source struct {
	// Label is the input as given, used in messages.
	Label string `json:"label"`
	// Path is the resolved absolute path.
	Path string `json:"path"`
	// Kind is the classification of Path.
	Kind SourceKind `json:"kind"`
	// Index is the position in the merge order.
	Index int `json:"index"`
	// Images is the number of images the source contributed.
	Images int `json:"images"`
	// FallbackFrom is set when a stale snapshot was replaced by a sibling list.
	FallbackFrom string `json:"fallback_from,omitempty"`
	// Refs are the directories and images a source list points at.
	Refs []string `json:"refs,omitempty"`
}

// WatchPaths lists every file or directory whose change affects the source.
func (s Source) WatchPaths() []string {
	paths := []string{s.Path}
	if s.FallbackFrom != "" {
		paths = append(paths, s.FallbackFrom)
	}
	return append(paths, s.Refs...)
}

// String returns a human-readable description of the source
func (s Source) String() string {
	desc := fmt.Sprintf("%s (%s, #%d, images=%d)", s.Path, s.Kind, s.Index, s.Images)
	if s.FallbackFrom != "" {
		desc += " instead of stale " + s.FallbackFrom
	}
	return desc
}

// ResolveInput finds the file or directory an entry refers to. Entries may
// carry modifiers; only the path part is resolved. Relative paths are tried
// against the working directory and then against each search directory.
func ResolveInput(entry string, searchDirs ...string) (string, error) {
	path := loader.EntryPath(entry)
	if path == "" {
		return "", fmt.Errorf("%w: empty entry", ErrInputNotFound)
	}
	if _, err := os.Stat(path); err == nil {
		return filepath.Abs(path)
	}
	if !filepath.IsAbs(path) {
		for _, dir := range searchDirs {
			if dir == "" {
				continue
			}
			candidate := filepath.Join(dir, path)
			if _, err := os.Stat(candidate); err == nil {
				return filepath.Abs(candidate)
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInputNotFound, path)
}

// siblingList looks next to a snapshot for a list with the same base name,
// preferring .lst over .txt.
func siblingList(treePath string) (string, bool) {
	base := strings.TrimSuffix(treePath, filepath.Ext(treePath))
	for _, ext := range []string{".lst", ".txt"} {
		if info, err := os.Stat(base + ext); err == nil && !info.IsDir() {
			return base + ext, true
		}
	}
	return "", false
}
