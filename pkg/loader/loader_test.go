package loader

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vanderheijden86/slidetree/pkg/filter"
	"github.com/vanderheijden86/slidetree/pkg/mode"
)

func TestParseListLine(t *testing.T) {
	tests := []struct {
		line   string
		ok     bool
		path   string
		weight float64
	}{
		{"/a/b.jpg,2.5", true, "/a/b.jpg", 2.5},
		{"/a/b.jpg", true, "/a/b.jpg", 1},
		{"/a/b,c.jpg", true, "/a/b,c.jpg", 1},
		{"/a/b,c.jpg,3", true, "/a/b,c.jpg", 3},
		{"/a/b.jpg,-4", true, "/a/b.jpg", 1},
		{"/a/b.jpg,0", true, "/a/b.jpg", 1},
		{`"/a/b.jpg",2`, true, "/a/b.jpg", 2},
		{"# comment", false, "", 0},
		{"   ", false, "", 0},
	}
	for _, tt := range tests {
		e, ok := ParseListLine(tt.line)
		if ok != tt.ok {
			t.Errorf("ParseListLine(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			continue
		}
		if ok && (e.Path != tt.path || e.Weight != tt.weight) {
			t.Errorf("ParseListLine(%q) = %+v, want {%s %v}", tt.line, e, tt.path, tt.weight)
		}
	}
}

func TestParseImageList(t *testing.T) {
	input := "\xEF\xBB\xBF# header\n/p/a.jpg,1\n\n/p/b.jpg,3\n/p/" + strings.Repeat("x", 200) + ".jpg,1\n/p/c.jpg\n"

	var warnings []string
	entries, err := ParseImageList(strings.NewReader(input), ParseOptions{
		BufferSize:     64,
		WarningHandler: func(s string) { warnings = append(warnings, s) },
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}
	if entries[1].Path != "/p/b.jpg" || entries[1].Weight != 3 {
		t.Errorf("unexpected entry %+v", entries[1])
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "too long") {
		t.Errorf("expected one long-line warning, got %v", warnings)
	}
}

func TestLoadImageList_Missing(t *testing.T) {
	if _, err := LoadImageList(filepath.Join(t.TempDir(), "none.lst"), ParseOptions{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFileClassification(t *testing.T) {
	if !IsImageFile("/a/B.JPG") || IsImageFile("/a/b.mp4") {
		t.Error("image classification wrong")
	}
	if !IsVideoFile("/a/b.MKV") || IsVideoFile("/a/b.png") {
		t.Error("video classification wrong")
	}
	if !IsListFile("x.txt") || !IsListFile("x.LST") || IsListFile("x.tree") {
		t.Error("list classification wrong")
	}
	if !IsTreeFile("x.Tree") {
		t.Error("tree classification wrong")
	}
}

// fixture lays out a small photo library under a temp dir.
func fixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, d := range []string{"pics/cats", "pics/dogs", "holiday"} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range []string{"pics/cats/1.jpg", "holiday/beach.png", "notes.doc"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadSourceList(t *testing.T) {
	dir := fixture(t)
	writeFile(t, filepath.Join(dir, "more.txt"), "holiday/beach.png [200] [g4]\n* [v] [b9]\n")
	writeFile(t, filepath.Join(dir, "main.txt"), `# slideshow
[r]
[+]pics
[-]private
[-]`+filepath.Join(dir, "pics", "dogs")+`
* [b1w2,30] [/] [m]
* [>pets] [%40] [g2] [b3]
"pics/cats" [50%] [%25] [>pets] [f] [zz]
pics/dogs [/] [nv]
more.txt
extra.lst
missing
notes.doc
`)

	var warnings []string
	list, err := LoadSourceList(filepath.Join(dir, "main.txt"), ParseOptions{
		WarningHandler: func(s string) { warnings = append(warnings, s) },
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if list.Globals.Random == nil || !*list.Globals.Random {
		t.Error("expected [r] to set random")
	}
	if !list.Globals.Mode.Equal(mode.MustParse("b1w2,30")) {
		t.Errorf("expected global mode b1w2,30, got %s", list.Globals.Mode)
	}
	if list.Globals.DontRecurse == nil || list.Globals.Mute == nil || !*list.Globals.Mute {
		t.Error("expected dont-recurse and mute globals")
	}
	if list.Globals.Video == nil || !*list.Globals.Video {
		t.Error("expected nested list to set the video global")
	}

	g, ok := list.Groups["pets"]
	if !ok || *g.UserProportion != 40 || *g.GraftLevel != 2 || g.ModeModifier.Resolve(3).Policy != mode.Balanced {
		t.Errorf("unexpected group config %+v", g)
	}

	if len(list.Roots) != 2 {
		t.Fatalf("expected 2 roots, got %+v", list.Roots)
	}
	cats := list.Roots[0]
	if cats.Path != filepath.Join(dir, "pics", "cats") {
		t.Errorf("expected resolved path, got %q", cats.Path)
	}
	a := cats.Attrs
	if a.WeightModifier != 50 || !a.IsPercentage || *a.UserProportion != 25 || a.Group != "pets" || !a.Flat {
		t.Errorf("unexpected attrs %+v", a)
	}
	if cats.GraftLevel != nil {
		t.Errorf("no explicit level and no offset should leave graft level unset, got %d", *cats.GraftLevel)
	}
	if dogs := list.Roots[1]; dogs.Attrs.Video == nil || *dogs.Attrs.Video {
		t.Errorf("expected [nv] on dogs")
	}

	if len(list.Images) != 1 {
		t.Fatalf("expected 1 image, got %+v", list.Images)
	}
	img := list.Images[0]
	if img.Attrs.WeightModifier != 200 || img.Attrs.IsPercentage || *img.GraftLevel != 4 {
		t.Errorf("unexpected image source %+v", img)
	}

	if len(list.Nested) != 1 || list.Nested[0] != filepath.Join(dir, "extra.lst") {
		t.Errorf("expected nested .lst reference, got %v", list.Nested)
	}

	f := list.Filter
	if len(f.MustContain) != 1 || len(f.MustNotContain) != 1 {
		t.Errorf("unexpected keyword rules %v", f.Rules())
	}
	// the ignore rule wins over [/] on the same directory
	if v := f.Verdict(filepath.Join(dir, "pics", "dogs")); v != filter.Prune {
		t.Errorf("expected dogs pruned, got %v", v)
	}
	if _, ok := f.DontRecurseBeyond[filepath.Join(dir, "pics", "dogs")]; !ok {
		t.Error("expected [/] recorded for dogs")
	}

	joined := strings.Join(warnings, "\n")
	for _, want := range []string{"[zz]", "neither a file nor a directory", "not an image"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected warning containing %q, got:\n%s", want, joined)
		}
	}
}

func TestParseSourceList_NestedModeIgnored(t *testing.T) {
	dir := fixture(t)
	writeFile(t, filepath.Join(dir, "inner.txt"), "* [b4]\n")
	list, err := ParseSourceList(strings.NewReader("inner.txt\n"), dir, ParseOptions{WarningHandler: func(string) {}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if list.Globals.Mode != nil {
		t.Errorf("nested list must not set the global mode, got %s", list.Globals.Mode)
	}
}

func TestParseSourceList_GraftOffset(t *testing.T) {
	dir := fixture(t)
	list, err := ParseSourceList(strings.NewReader("pics/cats\npics/dogs [g2]\n"), dir, ParseOptions{GraftOffset: 1})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	natural := len(strings.Split(strings.Trim(filepath.ToSlash(filepath.Join(dir, "pics", "cats")), "/"), "/"))
	if got := *list.Roots[0].GraftLevel; got != natural+1 {
		t.Errorf("expected natural rung %d plus offset, got %d", natural, got)
	}
	if got := *list.Roots[1].GraftLevel; got != 3 {
		t.Errorf("expected explicit level plus offset 3, got %d", got)
	}
}

func TestParseSourceList_BadMode(t *testing.T) {
	dir := fixture(t)
	_, err := ParseSourceList(strings.NewReader("\npics/cats [w1,500]\n"), dir, ParseOptions{})
	var pe *mode.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if !strings.Contains(err.Error(), ":2:") {
		t.Errorf("expected line number in error, got %v", err)
	}
}

func TestParseSourceList_SharedFilter(t *testing.T) {
	dir := fixture(t)
	shared := filter.New()
	list, err := ParseSourceList(strings.NewReader("[+]cats\n"), dir, ParseOptions{Filter: shared})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if list.Filter != shared || len(shared.MustContain) != 1 {
		t.Error("expected rules added to the supplied filter")
	}
}

func TestLoadSourceList_NestingTooDeep(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loop.txt")
	writeFile(t, path, "loop.txt\n")
	_, err := LoadSourceList(path, ParseOptions{})
	if !errors.Is(err, ErrNestingTooDeep) {
		t.Errorf("expected ErrNestingTooDeep, got %v", err)
	}
}

func TestParseEntry(t *testing.T) {
	dir := fixture(t)
	list, err := ParseEntry(filepath.Join(dir, "holiday")+" [30%] [g1]", ParseOptions{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(list.Roots) != 1 || list.Roots[0].Attrs.WeightModifier != 30 || *list.Roots[0].GraftLevel != 1 {
		t.Errorf("unexpected entry %+v", list.Roots)
	}
}

func TestSplitEntry(t *testing.T) {
	path, mods := SplitEntry(`"/pics/my cats" [50%] [g2]`)
	if path != "/pics/my cats" {
		t.Errorf("unexpected path %q", path)
	}
	if len(mods) != 2 || mods[0] != "[50%]" || mods[1] != "[g2]" {
		t.Errorf("unexpected modifiers %v", mods)
	}
	if got := EntryPath("plain"); got != "plain" {
		t.Errorf("EntryPath(plain) = %q", got)
	}
}
