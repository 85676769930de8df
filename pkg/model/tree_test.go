package model_test

import (
	"errors"
	"testing"

	"github.com/vanderheijden86/slidetree/pkg/model"
)

// =============================================================================
// PathCodec
// =============================================================================

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/Photos/2020", "root/photos/2020"},
		{"/photos//2020/", "root/photos/2020"},
		{`C:\Photos\2020`, "root/photos/2020"},
		{`\\server\share\Dept\Set`, "root/dept/set"},
		{"/a/./b", "root/a/b"},
		{"/", "root"},
		{"", "root"},
	}
	for _, tt := range tests {
		if got := model.CanonicalName(tt.in); got != tt.want {
			t.Errorf("CanonicalName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanPathAndDir(t *testing.T) {
	if got := model.CleanPath("/x//y/"); got != "/x/y" {
		t.Errorf("CleanPath = %q", got)
	}
	if got := model.CleanPath(`C:\x\\y\`); got != `C:\x\y` {
		t.Errorf("CleanPath windows = %q", got)
	}
	if got := model.Dir("/x/a.jpg"); got != "/x" {
		t.Errorf("Dir = %q", got)
	}
	if got := model.Dir("a.jpg"); got != "" {
		t.Errorf("Dir of bare name = %q, want empty", got)
	}
}

func TestNameHelpers(t *testing.T) {
	name := "root/a/b/c"
	if model.NameRung(name) != 3 {
		t.Errorf("NameRung = %d", model.NameRung(name))
	}
	if model.ParentName(name) != "root/a/b" {
		t.Errorf("ParentName = %q", model.ParentName(name))
	}
	if model.ParentName("root/a") != model.RootName {
		t.Errorf("ParentName of rung-1 node should be root")
	}
	if model.ParentName(model.RootName) != "" {
		t.Errorf("root has no parent name")
	}
	if model.BaseName(name) != "c" {
		t.Errorf("BaseName = %q", model.BaseName(name))
	}
	if model.JoinName("a", "b") != "root/a/b" {
		t.Errorf("JoinName = %q", model.JoinName("a", "b"))
	}
}

// =============================================================================
// Tree construction
// =============================================================================

func TestCreateNode_CreatesAncestors(t *testing.T) {
	tree := model.New()
	n, err := tree.CreateNode("/media/Photos/2020", model.DefaultAttrs(), []string{"/media/Photos/2020/a.jpg"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if n.Name != "root/media/photos/2020" {
		t.Errorf("expected canonical name, got %q", n.Name)
	}
	if tree.Rung(n.ID) != 3 {
		t.Errorf("expected rung 3, got %d", tree.Rung(n.ID))
	}
	parent, ok := tree.LookupPath("/media/Photos")
	if !ok {
		t.Fatal("expected structural parent indexed by its source path")
	}
	if parent.Name != "root/media/photos" {
		t.Errorf("unexpected parent name %q", parent.Name)
	}
	if tree.Len() != 4 {
		t.Errorf("expected 4 nodes (root + 3), got %d", tree.Len())
	}
	if err := tree.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestCreateNode_SameCanonicalNameIsSameNode(t *testing.T) {
	tree := model.New()
	a, _ := tree.CreateNode("/Media/X", model.DefaultAttrs(), []string{"1.jpg"})
	b, err := tree.CreateNode("/media/x/", model.DefaultAttrs(), []string{"2.jpg"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("expected one node, got %d and %d", a.ID, b.ID)
	}
	if len(b.Images) != 1 || b.Images[0] != "2.jpg" {
		t.Errorf("expected images replaced, got %v", b.Images)
	}
	if n, ok := tree.LookupPath("/Media/X"); !ok || n.ID != a.ID {
		t.Error("expected first spelling to stay indexed")
	}
	if n, ok := tree.LookupPath("/media/x"); !ok || n.ID != a.ID {
		t.Error("expected second spelling aliased to the same node")
	}
}

func TestCreateNode_RejectsRelativePath(t *testing.T) {
	tree := model.New()
	_, err := tree.CreateNode("photos/2020", model.DefaultAttrs(), nil)
	if !errors.Is(err, model.ErrRelativePath) {
		t.Errorf("expected ErrRelativePath, got %v", err)
	}
}

func TestInsertNode_MissingParent(t *testing.T) {
	tree := model.New()
	_, err := tree.InsertNode("root/a/b", "/a/b")
	if !errors.Is(err, model.ErrMissingParent) {
		t.Errorf("expected ErrMissingParent, got %v", err)
	}
}

func TestEnsureName(t *testing.T) {
	tree := model.New()
	id, err := tree.EnsureName("root/g_1/g_2/leaf")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if tree.Node(id).Name != "root/g_1/g_2/leaf" {
		t.Errorf("unexpected name %q", tree.Node(id).Name)
	}
	if tree.Rung(id) != 3 {
		t.Errorf("expected rung 3, got %d", tree.Rung(id))
	}
}

func TestRemove_DropsEveryIndex(t *testing.T) {
	tree := model.New()
	n, _ := tree.CreateNode("/a/b", model.DefaultAttrs(), nil)
	tree.AliasPath("/a/b/c", n.ID)
	tree.SetVirtual("/a/b/c.jpg", n.ID)

	if err := tree.Remove(n.ID); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := tree.LookupName("root/a/b"); ok {
		t.Error("name still indexed")
	}
	if _, ok := tree.LookupPath("/a/b/c"); ok {
		t.Error("alias still indexed")
	}
	if _, ok := tree.LookupVirtual("/a/b/c.jpg"); ok {
		t.Error("virtual entry still indexed")
	}
	if err := tree.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestRemove_RefusesParents(t *testing.T) {
	tree := model.New()
	tree.CreateNode("/a/b", model.DefaultAttrs(), nil)
	a, _ := tree.LookupName("root/a")
	if err := tree.Remove(a.ID); err == nil {
		t.Error("expected error removing a node with children")
	}
}

// =============================================================================
// Traversal
// =============================================================================

func buildSample(t *testing.T) *model.Tree {
	t.Helper()
	tree := model.New()
	for _, src := range []struct {
		path   string
		images []string
	}{
		{"/a/x", []string{"1", "2"}},
		{"/a/y", []string{"3"}},
		{"/b", []string{"4", "5", "6"}},
	} {
		if _, err := tree.CreateNode(src.path, model.DefaultAttrs(), src.images); err != nil {
			t.Fatalf("CreateNode(%s): %v", src.path, err)
		}
	}
	return tree
}

func TestWalkOrder(t *testing.T) {
	tree := buildSample(t)
	var names []string
	tree.Walk(model.RootID, func(n *model.Node) bool {
		names = append(names, n.Name)
		return true
	})
	want := []string{"root", "root/a", "root/a/x", "root/a/y", "root/b"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], names[i])
		}
	}
}

func TestSubtreeImageCounts(t *testing.T) {
	tree := buildSample(t)
	counts := tree.SubtreeImageCounts()
	a, _ := tree.LookupName("root/a")
	if counts[a.ID] != 3 {
		t.Errorf("expected 3 images under a, got %d", counts[a.ID])
	}
	if counts[model.RootID] != 6 {
		t.Errorf("expected 6 images in total, got %d", counts[model.RootID])
	}
	branches, images := tree.CountBranches(model.RootID)
	if branches != 3 || images != 6 {
		t.Errorf("CountBranches = (%d, %d), want (3, 6)", branches, images)
	}
}

func TestNodesAtRung(t *testing.T) {
	tree := buildSample(t)
	nodes := tree.NodesAtRung(1)
	if len(nodes) != 2 || nodes[0].Name != "root/a" || nodes[1].Name != "root/b" {
		t.Errorf("unexpected rung-1 nodes: %v", nodes)
	}
	if got := tree.NodesAtRung(2); len(got) != 2 {
		t.Errorf("expected 2 rung-2 nodes, got %d", len(got))
	}
}

func TestDeepTreeDoesNotRecurse(t *testing.T) {
	tree := model.New()
	name := model.RootName
	for i := 0; i < 2000; i++ {
		name += "/d"
	}
	id, err := tree.EnsureName(name)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if tree.Rung(id) != 2000 {
		t.Errorf("expected rung 2000, got %d", tree.Rung(id))
	}
	visited := 0
	tree.PostOrder(model.RootID, func(*model.Node) { visited++ })
	if visited != 2001 {
		t.Errorf("expected 2001 visits, got %d", visited)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tree := buildSample(t)
	c := tree.Clone()
	n, _ := c.LookupName("root/b")
	n.Images = append(n.Images, "7")
	n.UserProportion = model.Float(50)

	orig, _ := tree.LookupName("root/b")
	if len(orig.Images) != 3 {
		t.Errorf("clone mutated original images: %v", orig.Images)
	}
	if orig.UserProportion != nil {
		t.Error("clone mutated original user proportion")
	}
	if _, err := c.CreateNode("/c", model.DefaultAttrs(), nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := tree.LookupName("root/c"); ok {
		t.Error("clone shares the name index with the original")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	tree := buildSample(t)
	nodes := make([]*model.Node, 0, tree.Len())
	for id := model.NodeID(0); int(id) < tree.Len(); id++ {
		nodes = append(nodes, tree.Node(id))
	}
	restored, err := model.Restore(nodes, tree.PathEntries(), tree.VirtualEntries())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if restored.Len() != tree.Len() {
		t.Errorf("expected %d nodes, got %d", tree.Len(), restored.Len())
	}
	if _, ok := restored.LookupPath("/a/x"); !ok {
		t.Error("expected path index restored")
	}
}
