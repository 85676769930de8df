package export

import (
	"bytes"
	"database/sql"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/slidetree/pkg/loader"
	"github.com/vanderheijden86/slidetree/pkg/mode"
	"github.com/vanderheijden86/slidetree/pkg/model"
	"github.com/vanderheijden86/slidetree/pkg/weights"
)

// makeTestTree builds and weights a small two-branch tree.
func makeTestTree(t *testing.T) *model.Tree {
	t.Helper()
	tree := model.New()
	nodes := []struct {
		path   string
		images []string
	}{
		{"/lib/a", []string{"/lib/a/1.jpg", "/lib/a/2.jpg"}},
		{"/lib/b", []string{"/lib/b/3.jpg"}},
		{"/pics/c", []string{"/pics/c/4.jpg", "/pics/c/5.jpg", "/pics/c/6.jpg"}},
	}
	for _, n := range nodes {
		if _, err := tree.CreateNode(n.path, model.DefaultAttrs(), n.images); err != nil {
			t.Fatalf("CreateNode(%s): %v", n.path, err)
		}
	}
	weights.Distribute(tree, mode.MustParse("w1"))
	return tree
}

func TestWriteImageList(t *testing.T) {
	var buf bytes.Buffer
	meta := ListMeta{
		Written: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		Inputs:  []string{"a.txt", "b.lst"},
		Mode:    "b1w3",
	}
	if err := WriteImageList(&buf, []string{"/x/1.jpg", "/x/2,3.jpg"}, []float64{12.5, 0.25}, meta); err != nil {
		t.Fatalf("WriteImageList: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"# Written: 2024-03-01 12:30:00\n",
		"# Input files: a.txt, b.lst\n",
		"# Mode arguments: b1w3\n",
		"# Format: image_path,weight\n",
		"/x/1.jpg,12.5\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	entries, err := loader.ParseImageList(strings.NewReader(out), loader.ParseOptions{})
	if err != nil {
		t.Fatalf("ParseImageList: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries back, got %d", len(entries))
	}
	if entries[1].Path != "/x/2,3.jpg" || entries[1].Weight != 0.25 {
		t.Errorf("comma in file name should survive, got %+v", entries[1])
	}
}

func TestWriteImageList_LengthMismatch(t *testing.T) {
	err := WriteImageList(&bytes.Buffer{}, []string{"a"}, nil, ListMeta{})
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestSaveImageList(t *testing.T) {
	tree := makeTestTree(t)
	path := filepath.Join(t.TempDir(), "out", "list.lst")
	if err := SaveImageList(path, tree, ListMeta{Inputs: []string{"lib"}}); err != nil {
		t.Fatalf("SaveImageList: %v", err)
	}

	entries, err := loader.LoadImageList(path, loader.ParseOptions{})
	if err != nil {
		t.Fatalf("LoadImageList: %v", err)
	}
	items, ws, _ := weights.Flatten(tree)
	if len(entries) != len(items) {
		t.Fatalf("expected %d entries, got %d", len(items), len(entries))
	}
	for i, e := range entries {
		if e.Path != items[i] || math.Abs(e.Weight-ws[i]) > 1e-9 {
			t.Errorf("entry %d: got %+v, want %s,%v", i, e, items[i], ws[i])
		}
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "# Mode arguments: w1\n") {
		t.Errorf("mode should default to the tree's mode:\n%s", data)
	}
}

func TestSaveImageList_Uniform(t *testing.T) {
	tree := makeTestTree(t)
	path := filepath.Join(t.TempDir(), "random.lst")
	if err := SaveImageList(path, tree, ListMeta{Uniform: true}); err != nil {
		t.Fatalf("SaveImageList: %v", err)
	}
	entries, err := loader.LoadImageList(path, loader.ParseOptions{})
	if err != nil {
		t.Fatalf("LoadImageList: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("expected 6 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Weight != 1 {
			t.Errorf("%s: weight %v, want 1", e.Path, e.Weight)
		}
	}
}

func TestSaveImageList_Stale(t *testing.T) {
	tree := makeTestTree(t)
	tree.Invalidate()
	err := SaveImageList(filepath.Join(t.TempDir(), "x.lst"), tree, ListMeta{})
	if !errors.Is(err, weights.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestExport_CreatesDatabase(t *testing.T) {
	tree := makeTestTree(t)
	dbPath := filepath.Join(t.TempDir(), "tree.db")

	exp := NewSQLiteExporter(tree, []string{"lib", "pics"})
	exp.Config.Title = "holiday"
	if err := exp.Export(dbPath); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var version, title string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version); err != nil {
		t.Fatalf("schema_version: %v", err)
	}
	if version != "1" {
		t.Errorf("expected schema_version 1, got %s", version)
	}
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'title'`).Scan(&title); err != nil || title != "holiday" {
		t.Errorf("expected title holiday, got %q (%v)", title, err)
	}

	var nodeCount int
	db.QueryRow(`SELECT COUNT(*) FROM nodes`).Scan(&nodeCount)
	if nodeCount != tree.Len() {
		t.Errorf("expected %d nodes, got %d", tree.Len(), nodeCount)
	}

	rows, err := db.Query(`SELECT path, weight FROM items ORDER BY id`)
	if err != nil {
		t.Fatalf("query items: %v", err)
	}
	defer rows.Close()
	items, ws, _ := weights.Flatten(tree)
	i := 0
	for rows.Next() {
		var path string
		var w float64
		if err := rows.Scan(&path, &w); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if i >= len(items) || path != items[i] || math.Abs(w-ws[i]) > 1e-9 {
			t.Errorf("item %d: got %s,%v", i, path, w)
		}
		i++
	}
	if i != len(items) {
		t.Errorf("expected %d items, got %d", len(items), i)
	}

	var rootParent sql.NullInt64
	db.QueryRow(`SELECT parent_id FROM nodes WHERE id = 0`).Scan(&rootParent)
	if rootParent.Valid {
		t.Errorf("root should have no parent, got %d", rootParent.Int64)
	}

	var total float64
	db.QueryRow(`SELECT SUM(item_weight) FROM node_totals`).Scan(&total)
	if math.Abs(total-100) > 1e-6 {
		t.Errorf("expected item weights to sum to 100, got %v", total)
	}
}

func TestExport_ReplacesExisting(t *testing.T) {
	tree := makeTestTree(t)
	dbPath := filepath.Join(t.TempDir(), "tree.db")
	if err := os.WriteFile(dbPath, []byte("not a database"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := NewSQLiteExporter(tree, nil).Export(dbPath); err != nil {
		t.Fatalf("Export over existing file: %v", err)
	}
	if err := NewSQLiteExporter(tree, nil).Export(dbPath); err != nil {
		t.Fatalf("second Export: %v", err)
	}
}

func TestExport_Stale(t *testing.T) {
	tree := makeTestTree(t)
	tree.Invalidate()
	err := NewSQLiteExporter(tree, nil).Export(filepath.Join(t.TempDir(), "x.db"))
	if !errors.Is(err, weights.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestSaveWeightChart_SVGAndPNG(t *testing.T) {
	tree := makeTestTree(t)
	tmp := t.TempDir()
	cases := []struct {
		name string
		file string
	}{
		{"svg", "chart.svg"},
		{"png", "chart.png"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := filepath.Join(tmp, tc.file)
			if err := SaveWeightChart(ChartOptions{Path: out, Tree: tree}); err != nil {
				t.Fatalf("SaveWeightChart error: %v", err)
			}
			info, err := os.Stat(out)
			if err != nil {
				t.Fatalf("output not created: %v", err)
			}
			if info.Size() == 0 {
				t.Fatalf("output file is empty")
			}
		})
	}

	svgData, _ := os.ReadFile(filepath.Join(tmp, "chart.svg"))
	for _, want := range []string{"<svg", ">lib<", ">pics<", "mode: w1"} {
		if !strings.Contains(string(svgData), want) {
			t.Errorf("svg missing %q", want)
		}
	}
}

func TestSaveWeightChart_Errors(t *testing.T) {
	tree := makeTestTree(t)
	if err := SaveWeightChart(ChartOptions{Path: "chart.txt", Format: "txt", Tree: tree}); err == nil {
		t.Error("expected error for invalid format")
	}
	if err := SaveWeightChart(ChartOptions{Path: "chart.svg"}); err == nil {
		t.Error("expected error without a tree")
	}
	tree.Invalidate()
	if err := SaveWeightChart(ChartOptions{Path: filepath.Join(t.TempDir(), "c.svg"), Tree: tree}); !errors.Is(err, weights.ErrStale) {
		t.Errorf("expected ErrStale, got %v", err)
	}
}

func TestRenderTree(t *testing.T) {
	tree := makeTestTree(t)
	out := RenderTree(tree, RenderOptions{})

	for _, want := range []string{"root", "lib", "pics", "[3]", "w=", "p="} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
	if lines := len(strings.Split(strings.TrimRight(out, "\n"), "\n")); lines != tree.Len() {
		t.Errorf("expected one line per node (%d), got %d:\n%s", tree.Len(), lines, out)
	}
}

func TestRenderTree_DepthAndWidth(t *testing.T) {
	tree := model.New()
	if _, err := tree.CreateNode("/a_very_long_directory_name/inner", model.DefaultAttrs(), []string{"/x.jpg"}); err != nil {
		t.Fatal(err)
	}
	weights.Distribute(tree, mode.DefaultMap())

	out := RenderTree(tree, RenderOptions{MaxDepth: 1, NameWidth: 8})
	if strings.Contains(out, "a_very_long_directory_name") {
		t.Errorf("name should be truncated:\n%s", out)
	}
	if !strings.Contains(out, "… 1 more") {
		t.Errorf("expected depth cut marker:\n%s", out)
	}
	if strings.Contains(out, "inner") {
		t.Errorf("nodes below MaxDepth should not render:\n%s", out)
	}
}
