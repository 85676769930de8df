// Package testutil provides fixture generators for image libraries of
// various shapes. All generators produce deterministic output for
// reproducible tests.
package testutil

import (
	"fmt"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"sort"

	json "github.com/goccy/go-json"
)

// LibraryFixture is an image library described by relative, slash separated
// paths. Materialize writes it to disk.
type LibraryFixture struct {
	Description string     `json:"description"`
	Dirs        []string   `json:"dirs"`
	Images      []string   `json:"images"`
	Properties  Properties `json:"properties,omitempty"`
}

// Properties holds metadata about the fixture.
type Properties struct {
	MaxDepth int `json:"max_depth,omitempty"`
	Leaves   int `json:"leaves,omitempty"`
}

// GeneratorConfig controls library generation.
type GeneratorConfig struct {
	Seed       int64    // Random seed for determinism (0 = use a fixed seed)
	DirPrefix  string   // Prefix for directory names (default: "d")
	Extensions []string // Image extensions to cycle through (default: .jpg)
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:       42,
		DirPrefix:  "d",
		Extensions: []string{".jpg"},
	}
}

// Generator creates library fixtures with various shapes.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
	n   int
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	if cfg.DirPrefix == "" {
		cfg.DirPrefix = "d"
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".jpg"}
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// NewDefault creates a Generator with default config.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

// ============================================================================
// Library Shape Generators
// ============================================================================

// Flat puts every image directly in the library root.
func (g *Generator) Flat(images int) LibraryFixture {
	lf := LibraryFixture{Description: fmt.Sprintf("flat library with %d images", images)}
	g.fill(&lf, "", images)
	lf.Properties.Leaves = 1
	return lf
}

// Chain nests one directory per level with perDir images in each.
func (g *Generator) Chain(depth, perDir int) LibraryFixture {
	lf := LibraryFixture{Description: fmt.Sprintf("chain of depth %d", depth)}
	dir := ""
	for i := 0; i < depth; i++ {
		dir = path.Join(dir, fmt.Sprintf("%s%d", g.cfg.DirPrefix, i))
		lf.Dirs = append(lf.Dirs, dir)
		g.fill(&lf, dir, perDir)
	}
	lf.Properties.MaxDepth = depth
	lf.Properties.Leaves = 1
	return lf
}

// Tree creates a balanced tree of directories. Only leaf directories hold
// images, perLeaf each.
func (g *Generator) Tree(depth, breadth, perLeaf int) LibraryFixture {
	lf := LibraryFixture{Description: fmt.Sprintf("tree depth=%d breadth=%d", depth, breadth)}
	var walk func(dir string, level int)
	walk = func(dir string, level int) {
		if level == depth {
			g.fill(&lf, dir, perLeaf)
			lf.Properties.Leaves++
			return
		}
		for i := 0; i < breadth; i++ {
			child := path.Join(dir, fmt.Sprintf("%s%d_%d", g.cfg.DirPrefix, level, i))
			lf.Dirs = append(lf.Dirs, child)
			walk(child, level+1)
		}
	}
	walk("", 0)
	lf.Properties.MaxDepth = depth
	return lf
}

// Skewed creates top-level branches whose image counts grow geometrically:
// branch i holds base*factor^i images. Useful for telling the weighting
// policies apart.
func (g *Generator) Skewed(branches, base, factor int) LibraryFixture {
	lf := LibraryFixture{Description: fmt.Sprintf("%d skewed branches", branches)}
	count := base
	for i := 0; i < branches; i++ {
		dir := fmt.Sprintf("%s%d", g.cfg.DirPrefix, i)
		lf.Dirs = append(lf.Dirs, dir)
		g.fill(&lf, dir, count)
		count *= factor
	}
	lf.Properties.MaxDepth = 1
	lf.Properties.Leaves = branches
	return lf
}

// RandomLibrary creates dirs directories attached to random earlier ones,
// each holding between 1 and maxImages images.
func (g *Generator) RandomLibrary(dirs, maxImages int) LibraryFixture {
	lf := LibraryFixture{Description: fmt.Sprintf("random library with %d dirs", dirs)}
	hasChild := make(map[string]bool)
	for i := 0; i < dirs; i++ {
		parent := ""
		if len(lf.Dirs) > 0 && g.rng.Intn(3) > 0 {
			parent = lf.Dirs[g.rng.Intn(len(lf.Dirs))]
		}
		dir := path.Join(parent, fmt.Sprintf("%s%d", g.cfg.DirPrefix, i))
		lf.Dirs = append(lf.Dirs, dir)
		hasChild[parent] = true
		g.fill(&lf, dir, 1+g.rng.Intn(maxImages))
		if depth := depthOf(dir); depth > lf.Properties.MaxDepth {
			lf.Properties.MaxDepth = depth
		}
	}
	for _, d := range lf.Dirs {
		if !hasChild[d] {
			lf.Properties.Leaves++
		}
	}
	return lf
}

// ============================================================================
// Output
// ============================================================================

// Materialize writes the fixture under root. Image files hold a few bytes
// of placeholder content.
func Materialize(root string, lf LibraryFixture) error {
	for _, d := range lf.Dirs {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0o755); err != nil {
			return err
		}
	}
	for _, img := range lf.Images {
		p := filepath.Join(root, filepath.FromSlash(img))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte("img"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// ImagesUnder returns the fixture's images inside dir, sorted.
func (lf LibraryFixture) ImagesUnder(dir string) []string {
	var out []string
	for _, img := range lf.Images {
		if dir == "" || img == dir || len(img) > len(dir) && img[:len(dir)+1] == dir+"/" {
			out = append(out, img)
		}
	}
	sort.Strings(out)
	return out
}

// ToJSON encodes the fixture.
func ToJSON(lf LibraryFixture) ([]byte, error) {
	return json.MarshalIndent(lf, "", "  ")
}

// FromJSON decodes a fixture written by ToJSON.
func FromJSON(data []byte) (LibraryFixture, error) {
	var lf LibraryFixture
	err := json.Unmarshal(data, &lf)
	return lf, err
}

// Helper methods

func (g *Generator) fill(lf *LibraryFixture, dir string, n int) {
	for i := 0; i < n; i++ {
		ext := g.cfg.Extensions[g.n%len(g.cfg.Extensions)]
		lf.Images = append(lf.Images, path.Join(dir, fmt.Sprintf("img%04d%s", g.n, ext)))
		g.n++
	}
}

func depthOf(dir string) int {
	if dir == "" {
		return 0
	}
	depth := 1
	for _, c := range dir {
		if c == '/' {
			depth++
		}
	}
	return depth
}
