// Package snapshot saves and restores built trees as versioned JSON blobs.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/vanderheijden86/slidetree/pkg/metrics"
	"github.com/vanderheijden86/slidetree/pkg/mode"
	"github.com/vanderheijden86/slidetree/pkg/model"
)

// SchemaVersion is bumped whenever the stored layout changes. Blobs with any
// other version are rejected.
const SchemaVersion = 3

// MaxSize bounds the blob Load will read (256MB).
const MaxSize = 256 << 20

// ErrStaleSnapshot is wrapped by VersionError.
var ErrStaleSnapshot = errors.New("snapshot schema is out of date")

// VersionError reports a snapshot written with a different schema version.
// Found is 0 when the blob carries no version at all.
type VersionError struct {
	Found int
	Want  int
}

func (e *VersionError) Error() string {
	if e.Found == 0 {
		return fmt.Sprintf("snapshot has no schema version (want %d)", e.Want)
	}
	return fmt.Sprintf("snapshot schema version %d, want %d", e.Found, e.Want)
}

func (e *VersionError) Unwrap() error { return ErrStaleSnapshot }

type document struct {
	SchemaVersion int                     `json:"schema_version"`
	WrittenAt     time.Time               `json:"written_at"`
	Mode          string                  `json:"mode,omitempty"`
	Weighted      bool                    `json:"weighted"`
	Nodes         []*nodeRecord           `json:"nodes"`
	Paths         map[string]model.NodeID `json:"paths"`
	Virtual       map[string]model.NodeID `json:"virtual,omitempty"`
}

type nodeRecord struct {
	ID             model.NodeID   `json:"id"`
	Name           string         `json:"name"`
	Path           string         `json:"path,omitempty"`
	Group          string         `json:"group,omitempty"`
	Parent         model.NodeID   `json:"parent"`
	Children       []model.NodeID `json:"children,omitempty"`
	Proportion     *float64       `json:"proportion,omitempty"`
	UserProportion *float64       `json:"user_proportion,omitempty"`
	Weight         float64        `json:"weight"`
	WeightModifier int            `json:"weight_modifier"`
	IsPercentage   bool           `json:"is_percentage"`
	ModeModifier   string         `json:"mode_modifier,omitempty"`
	Flat           bool           `json:"flat,omitempty"`
	Video          *bool          `json:"video,omitempty"`
	Images         []string       `json:"images,omitempty"`
}

// Save writes tree to w.
func Save(w io.Writer, tree *model.Tree) error {
	defer metrics.Timer(metrics.SnapshotSave)()

	doc := document{
		SchemaVersion: SchemaVersion,
		WrittenAt:     time.Now().UTC(),
		Mode:          tree.Mode.String(),
		Weighted:      tree.Weighted,
		Paths:         tree.PathEntries(),
		Virtual:       tree.VirtualEntries(),
	}
	hi := maxID(tree)
	doc.Nodes = make([]*nodeRecord, hi)
	for id := range hi {
		doc.Nodes[id] = record(tree.Node(model.NodeID(id)))
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return nil
}

// maxID is one past the highest live node id.
func maxID(tree *model.Tree) int {
	hi := 0
	tree.Walk(model.RootID, func(n *model.Node) bool {
		if int(n.ID) >= hi {
			hi = int(n.ID) + 1
		}
		return true
	})
	return hi
}

func record(n *model.Node) *nodeRecord {
	if n == nil {
		return nil
	}
	return &nodeRecord{
		ID:             n.ID,
		Name:           n.Name,
		Path:           n.Path,
		Group:          n.Group,
		Parent:         n.Parent,
		Children:       n.Children,
		Proportion:     n.Proportion,
		UserProportion: n.UserProportion,
		Weight:         n.Weight,
		WeightModifier: n.WeightModifier,
		IsPercentage:   n.IsPercentage,
		ModeModifier:   n.ModeModifier.String(),
		Flat:           n.Flat,
		Video:          n.Video,
		Images:         n.Images,
	}
}

// Load reads a snapshot. A blob with a missing or different schema version
// fails with a *VersionError before any node is decoded.
func Load(r io.Reader) (*model.Tree, error) {
	defer metrics.Timer(metrics.SnapshotLoad)()

	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("snapshot exceeds %d bytes", MaxSize)
	}

	var head struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	if head.SchemaVersion != SchemaVersion {
		return nil, &VersionError{Found: head.SchemaVersion, Want: SchemaVersion}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}

	nodes := make([]*model.Node, len(doc.Nodes))
	for i, rec := range doc.Nodes {
		if rec == nil {
			continue
		}
		n, err := rec.node()
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", rec.Name, err)
		}
		nodes[i] = n
	}

	tree, err := model.Restore(nodes, doc.Paths, doc.Virtual)
	if err != nil {
		return nil, err
	}
	if doc.Mode != "" {
		if tree.Mode, err = mode.Parse(doc.Mode); err != nil {
			return nil, fmt.Errorf("snapshot mode: %w", err)
		}
	}
	tree.Weighted = doc.Weighted
	return tree, nil
}

func (rec *nodeRecord) node() (*model.Node, error) {
	n := &model.Node{
		ID:             rec.ID,
		Name:           rec.Name,
		Path:           rec.Path,
		Group:          rec.Group,
		Parent:         rec.Parent,
		Children:       rec.Children,
		Proportion:     rec.Proportion,
		UserProportion: rec.UserProportion,
		Weight:         rec.Weight,
		WeightModifier: rec.WeightModifier,
		IsPercentage:   rec.IsPercentage,
		Flat:           rec.Flat,
		Video:          rec.Video,
		Images:         rec.Images,
	}
	if rec.ModeModifier != "" {
		m, err := mode.Parse(rec.ModeModifier)
		if err != nil {
			return nil, err
		}
		n.ModeModifier = m
	}
	return n, nil
}

// SaveFile writes the snapshot atomically: it goes to a temp file in the
// same directory which is then renamed over path.
func SaveFile(path string, tree *model.Tree) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".slidetree-*.tree")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := Save(tmp, tree); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming snapshot: %w", err)
	}
	return nil
}

// LoadFile reads a snapshot from disk.
func LoadFile(path string) (*model.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tree, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tree, nil
}
