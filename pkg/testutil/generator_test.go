package testutil

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestFlat(t *testing.T) {
	lf := NewDefault().Flat(5)
	if len(lf.Images) != 5 {
		t.Fatalf("Flat(5) images = %d, want 5", len(lf.Images))
	}
	if len(lf.Dirs) != 0 {
		t.Errorf("Flat should not create directories, got %v", lf.Dirs)
	}
	for _, img := range lf.Images {
		if strings.Contains(img, "/") {
			t.Errorf("image %s should sit in the root", img)
		}
	}
}

func TestChain(t *testing.T) {
	tests := []struct {
		name       string
		depth      int
		perDir     int
		wantImages int
	}{
		{"chain_1", 1, 2, 2},
		{"chain_3", 3, 1, 3},
		{"chain_5", 5, 2, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lf := NewDefault().Chain(tt.depth, tt.perDir)
			if len(lf.Images) != tt.wantImages {
				t.Errorf("images = %d, want %d", len(lf.Images), tt.wantImages)
			}
			if len(lf.Dirs) != tt.depth {
				t.Errorf("dirs = %d, want %d", len(lf.Dirs), tt.depth)
			}
			if lf.Properties.MaxDepth != tt.depth {
				t.Errorf("max depth = %d, want %d", lf.Properties.MaxDepth, tt.depth)
			}
			last := lf.Dirs[len(lf.Dirs)-1]
			if got := strings.Count(last, "/") + 1; got != tt.depth {
				t.Errorf("deepest dir %s has depth %d", last, got)
			}
		})
	}
}

func TestTree(t *testing.T) {
	tests := []struct {
		depth, breadth, perLeaf int
		wantLeaves              int
		wantDirs                int
	}{
		{1, 3, 2, 3, 3},
		{2, 2, 1, 4, 6},
		{3, 2, 1, 8, 14},
	}
	for _, tt := range tests {
		lf := NewDefault().Tree(tt.depth, tt.breadth, tt.perLeaf)
		if lf.Properties.Leaves != tt.wantLeaves {
			t.Errorf("Tree(%d,%d) leaves = %d, want %d", tt.depth, tt.breadth, lf.Properties.Leaves, tt.wantLeaves)
		}
		if len(lf.Dirs) != tt.wantDirs {
			t.Errorf("Tree(%d,%d) dirs = %d, want %d", tt.depth, tt.breadth, len(lf.Dirs), tt.wantDirs)
		}
		if len(lf.Images) != tt.wantLeaves*tt.perLeaf {
			t.Errorf("Tree(%d,%d) images = %d, want %d", tt.depth, tt.breadth, len(lf.Images), tt.wantLeaves*tt.perLeaf)
		}
	}
}

func TestSkewed(t *testing.T) {
	lf := NewDefault().Skewed(3, 1, 4)
	want := map[string]int{"d0": 1, "d1": 4, "d2": 16}
	for dir, n := range want {
		if got := len(lf.ImagesUnder(dir)); got != n {
			t.Errorf("%s holds %d images, want %d", dir, got, n)
		}
	}
}

func TestRandomLibrary_Deterministic(t *testing.T) {
	a := New(GeneratorConfig{Seed: 7}).RandomLibrary(20, 5)
	b := New(GeneratorConfig{Seed: 7}).RandomLibrary(20, 5)
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed should give the same library")
	}
	c := New(GeneratorConfig{Seed: 8}).RandomLibrary(20, 5)
	if reflect.DeepEqual(a.Dirs, c.Dirs) && reflect.DeepEqual(a.Images, c.Images) {
		t.Error("different seeds should differ")
	}
	if a.Properties.Leaves == 0 || a.Properties.MaxDepth == 0 {
		t.Errorf("properties not filled: %+v", a.Properties)
	}
}

func TestExtensionsCycle(t *testing.T) {
	lf := New(GeneratorConfig{Extensions: []string{".jpg", ".png"}}).Flat(4)
	if !strings.HasSuffix(lf.Images[0], ".jpg") || !strings.HasSuffix(lf.Images[1], ".png") {
		t.Errorf("extensions should alternate: %v", lf.Images)
	}
}

func TestImagesUnder_PrefixIsNotEnough(t *testing.T) {
	lf := LibraryFixture{Images: []string{"d1/a.jpg", "d10/b.jpg", "d1/x/c.jpg"}}
	got := lf.ImagesUnder("d1")
	want := []string{"d1/a.jpg", "d1/x/c.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ImagesUnder(d1) = %v, want %v", got, want)
	}
}

func TestMaterialize(t *testing.T) {
	lf := NewDefault().Tree(2, 2, 2)
	root := WriteLibrary(t, lf)
	for _, img := range lf.Images {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(img))); err != nil {
			t.Errorf("missing %s: %v", img, err)
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	lf := NewDefault().Skewed(2, 2, 2)
	data, err := ToJSON(lf)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	back, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if !reflect.DeepEqual(lf, back) {
		t.Errorf("round trip changed the fixture:\n%+v\n%+v", lf, back)
	}
}
