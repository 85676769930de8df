package model

import (
	"strings"
)

// RootName is the canonical name of the sentinel root node.
const RootName = "root"

const nameSep = "/"

// sourcePath is a source path split into its volume prefix and segments.
type sourcePath struct {
	volume   string // "C:" or `\\server\share`, empty on POSIX
	absolute bool
	segments []string
	sep      string
}

func isSep(c byte) bool { return c == '/' || c == '\\' }

func splitSource(p string) sourcePath {
	sp := sourcePath{sep: "/"}
	if strings.Contains(p, `\`) && !strings.Contains(p, "/") {
		sp.sep = `\`
	}

	rest := p
	switch {
	case len(p) >= 2 && isSep(p[0]) && isSep(p[1]):
		// UNC: the first two segments name the share and belong to the volume.
		parts := splitSegments(p[2:])
		n := min(2, len(parts))
		sp.volume = sp.sep + sp.sep + strings.Join(parts[:n], sp.sep)
		sp.absolute = true
		sp.segments = parts[n:]
		return sp
	case len(p) >= 2 && p[1] == ':' && isLetter(p[0]):
		sp.volume = p[:2]
		rest = p[2:]
	}
	if len(rest) > 0 && isSep(rest[0]) {
		sp.absolute = true
	}
	sp.segments = splitSegments(rest)
	return sp
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func splitSegments(p string) []string {
	fields := strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
	out := fields[:0]
	for _, f := range fields {
		if f == "." {
			continue
		}
		out = append(out, f)
	}
	return out
}

// prefix renders the source path truncated to its first n segments.
func (sp sourcePath) prefix(n int) string {
	var b strings.Builder
	b.WriteString(sp.volume)
	if sp.absolute {
		b.WriteString(sp.sep)
	}
	b.WriteString(strings.Join(sp.segments[:n], sp.sep))
	return b.String()
}

// CanonicalName converts a filesystem path into its node name: the volume
// prefix is dropped, the remaining segments are lower-cased and joined under
// "root". Paths that canonicalize identically address the same node.
//
//	CanonicalName(`C:\Photos\2020`) == "root/photos/2020"
//	CanonicalName("/photos/2020/")  == "root/photos/2020"
func CanonicalName(path string) string {
	sp := splitSource(path)
	if len(sp.segments) == 0 {
		return RootName
	}
	parts := make([]string, 0, len(sp.segments)+1)
	parts = append(parts, RootName)
	for _, s := range sp.segments {
		parts = append(parts, strings.ToLower(s))
	}
	return strings.Join(parts, nameSep)
}

// CleanPath normalizes a source path for use as a path-index key: duplicate
// and trailing separators and "." segments are removed, the volume and the
// separator style are kept. ".." is left alone.
func CleanPath(path string) string {
	if path == "" {
		return ""
	}
	sp := splitSource(path)
	if len(sp.segments) == 0 {
		if sp.volume == "" && sp.absolute {
			return sp.sep
		}
		return sp.prefix(0)
	}
	return sp.prefix(len(sp.segments))
}

// IsAbs reports whether path carries a POSIX root, a drive letter or a UNC
// prefix.
func IsAbs(path string) bool {
	sp := splitSource(path)
	return sp.absolute || sp.volume != ""
}

// Dir returns the cleaned parent directory of a source path, or "" when it
// has none.
func Dir(path string) string {
	sp := splitSource(path)
	if len(sp.segments) <= 1 {
		if sp.absolute || sp.volume != "" {
			return sp.prefix(0)
		}
		return ""
	}
	return sp.prefix(len(sp.segments) - 1)
}

// NameSegments returns the segments of a canonical name below root.
func NameSegments(name string) []string {
	if name == RootName || name == "" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(name, RootName+nameSep), nameSep)
}

// JoinName builds a canonical name from segments below root.
func JoinName(segments ...string) string {
	if len(segments) == 0 {
		return RootName
	}
	return RootName + nameSep + strings.Join(segments, nameSep)
}

// NameRung is the rung a node with this canonical name sits on (root = 0).
func NameRung(name string) int {
	return len(NameSegments(name))
}

// ParentName returns the canonical name of the parent, or "" for root.
func ParentName(name string) string {
	if name == RootName {
		return ""
	}
	i := strings.LastIndex(name, nameSep)
	if i < 0 {
		return RootName
	}
	return name[:i]
}

// BaseName returns the last segment of a canonical name.
func BaseName(name string) string {
	i := strings.LastIndex(name, nameSep)
	if i < 0 {
		return name
	}
	return name[i+1:]
}
