package testutil

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/vanderheijden86/slidetree/pkg/model"
	"github.com/vanderheijden86/slidetree/pkg/weights"
)

// Tolerance is the slack allowed when comparing weights.
const Tolerance = 1e-6

// AssertImageCount verifies the number of images the tree holds.
func AssertImageCount(t *testing.T, tree *model.Tree, expected int) {
	t.Helper()
	if got := tree.TotalImages(); got != expected {
		t.Errorf("expected %d images, got %d", expected, got)
	}
}

// AssertValid verifies the structural invariants of the tree and, when it
// is weighted, that every sibling set sums to its parent.
func AssertValid(t *testing.T, tree *model.Tree) {
	t.Helper()
	if err := tree.Validate(); err != nil {
		t.Errorf("tree invalid: %v", err)
	}
	if tree.Weighted {
		if err := weights.Check(tree); err != nil {
			t.Errorf("weights inconsistent: %v", err)
		}
	}
}

// AssertWeightsSum verifies that the flattened item weights add up to want.
func AssertWeightsSum(t *testing.T, tree *model.Tree, want float64) {
	t.Helper()
	_, ws, err := weights.Flatten(tree)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	sum := 0.0
	for _, w := range ws {
		sum += w
	}
	if math.Abs(sum-want) > Tolerance {
		t.Errorf("weights sum to %v, want %v", sum, want)
	}
}

// AssertNoDuplicateItems verifies that no image is listed twice.
func AssertNoDuplicateItems(t *testing.T, tree *model.Tree) {
	t.Helper()
	items, _, err := weights.Flatten(tree)
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if seen[it] {
			t.Errorf("duplicate item: %s", it)
		}
		seen[it] = true
	}
}

// AssertNodeWeight verifies the weight of the node registered under path.
func AssertNodeWeight(t *testing.T, tree *model.Tree, path string, want float64) {
	t.Helper()
	n, ok := tree.LookupPath(path)
	if !ok {
		t.Errorf("node %s not found", path)
		return
	}
	if math.Abs(n.Weight-want) > Tolerance {
		t.Errorf("node %s: weight %v, want %v", path, n.Weight, want)
	}
}

// AssertSameWeights verifies two item lists carry the same weight for each
// item, regardless of order.
func AssertSameWeights(t *testing.T, a, b *model.Tree) {
	t.Helper()
	ia, wa, err := weights.Flatten(a)
	if err != nil {
		t.Fatalf("flatten a: %v", err)
	}
	ib, wb, err := weights.Flatten(b)
	if err != nil {
		t.Fatalf("flatten b: %v", err)
	}
	if len(ia) != len(ib) {
		t.Errorf("item counts differ: %d vs %d", len(ia), len(ib))
		return
	}
	byItem := make(map[string]float64, len(ia))
	for i, it := range ia {
		byItem[it] = wa[i]
	}
	for i, it := range ib {
		w, ok := byItem[it]
		if !ok {
			t.Errorf("item %s only in second tree", it)
			continue
		}
		if math.Abs(w-wb[i]) > Tolerance {
			t.Errorf("item %s: %v vs %v", it, w, wb[i])
		}
	}
}

// WriteLibrary materializes lf under a fresh temp dir and returns its path.
func WriteLibrary(t *testing.T, lf LibraryFixture) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "lib")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := Materialize(root, lf); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	return root
}
