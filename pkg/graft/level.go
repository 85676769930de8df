package graft

import (
	"fmt"
	"strings"

	"github.com/vanderheijden86/slidetree/pkg/model"
)

// unnamedGroup names synthetic segments inserted without a group.
const unnamedGroup = "unnamed"

// LevelledName moves a canonical name so that its leaf sits on the given
// rung (root = 0). With a group, intermediate segments are replaced by
// "<group>_<i>". When the node moves up, intermediate segments beyond
// level-1 are dropped; when it moves down, "<group|unnamed>_<k>" segments are
// inserted before the leaf.
//
//	LevelledName("root/a/b/c/d/e", 2, "")  == "root/a/e"
//	LevelledName("root/a/b", 4, "")        == "root/a/unnamed_2/unnamed_3/b"
//	LevelledName("root/a/b/c", 3, "Trips") == "root/trips_1/trips_2/c"
func LevelledName(name string, level int, group string) string {
	segs := model.NameSegments(name)
	n := len(segs)
	if n == 0 || level < 1 {
		return name
	}
	leaf := segs[n-1]
	mid := append([]string(nil), segs[:n-1]...)

	g := strings.ToLower(group)
	if g != "" {
		for i := range mid {
			mid[i] = fmt.Sprintf("%s_%d", g, i+1)
		}
	}
	ext := g
	if ext == "" {
		ext = unnamedGroup
	}

	var out []string
	if level <= n {
		out = append(mid[:level-1], leaf)
	} else {
		out = mid
		for k := n; k < level; k++ {
			out = append(out, fmt.Sprintf("%s_%d", ext, k))
		}
		out = append(out, leaf)
	}
	return model.JoinName(out...)
}
