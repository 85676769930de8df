//go:build ignore

// generate_testdata.go creates image libraries for benchmarking.
// Usage: go run scripts/generate_testdata.go [output-dir]
//
// Creates, under testdata/libraries by default:
//
//	small/   (~100 images, random layout)
//	medium/  (~1000 images, balanced tree)
//	large/   (~5000 images, skewed branches)
//	huge/    (~20000 images, random layout)
//
// Each library is accompanied by a <name>.json fixture description.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vanderheijden86/slidetree/pkg/testutil"
)

type datasetSpec struct {
	name string
	desc string
	make func(g *testutil.Generator) testutil.LibraryFixture
}

var datasets = []datasetSpec{
	{"small", "random layout, 30 dirs", func(g *testutil.Generator) testutil.LibraryFixture {
		return g.RandomLibrary(30, 6)
	}},
	{"medium", "balanced tree 3x5, 8 per leaf", func(g *testutil.Generator) testutil.LibraryFixture {
		return g.Tree(3, 5, 8)
	}},
	{"large", "7 skewed branches, factor 3", func(g *testutil.Generator) testutil.LibraryFixture {
		return g.Skewed(7, 3, 3)
	}},
	{"huge", "random layout, 2000 dirs", func(g *testutil.Generator) testutil.LibraryFixture {
		return g.RandomLibrary(2000, 18)
	}},
}

func main() {
	outputDir := "testdata/libraries"
	if len(os.Args) > 1 {
		outputDir = os.Args[1]
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	for i, ds := range datasets {
		// Reproducible per dataset
		gen := testutil.New(testutil.GeneratorConfig{
			Seed:       int64(i + 1),
			Extensions: []string{".jpg", ".png", ".webp"},
		})
		lf := ds.make(gen)
		lf.Description = ds.desc

		fmt.Printf("Generating %s library (%d images, %d dirs)...\n", ds.name, len(lf.Images), len(lf.Dirs))

		root := filepath.Join(outputDir, ds.name)
		if err := os.RemoveAll(root); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to clear %s: %v\n", root, err)
			os.Exit(1)
		}
		if err := testutil.Materialize(root, lf); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", root, err)
			os.Exit(1)
		}

		data, err := testutil.ToJSON(lf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode %s: %v\n", ds.name, err)
			os.Exit(1)
		}
		fixturePath := filepath.Join(outputDir, ds.name+".json")
		if err := os.WriteFile(fixturePath, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", fixturePath, err)
			os.Exit(1)
		}

		fmt.Printf("  Written %s (max depth %d, %d leaves)\n", root, lf.Properties.MaxDepth, lf.Properties.Leaves)
	}

	fmt.Println("\nDone! Libraries created in", outputDir)
}
