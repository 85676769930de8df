package export

import (
	"github.com/vanderheijden86/slidetree/pkg/model"
	"github.com/vanderheijden86/slidetree/pkg/weights"
)

// NodeRow is one row of the nodes table.
type NodeRow struct {
	ID             int64
	Name           string
	Path           string
	ParentID       *int64
	Rung           int
	Group          string
	Proportion     *float64
	UserProportion *float64
	Weight         float64
	WeightModifier int
	IsPercentage   bool
	ModeModifier   string
	Flat           bool
	Video          *bool
	ImageCount     int
}

// ItemRow is one row of the items table.
type ItemRow struct {
	Path   string
	Weight float64
	NodeID int64
}

// SQLiteExportConfig configures the SQLite export process.
type SQLiteExportConfig struct {
	// Title is stored in the meta table when set.
	Title string
	// PageSize for the final VACUUM. Default: 4096.
	PageSize int
}

// DefaultSQLiteExportConfig returns sensible defaults.
func DefaultSQLiteExportConfig() SQLiteExportConfig {
	return SQLiteExportConfig{PageSize: 4096}
}

// collectRows turns a weighted tree into table rows. Items follow the same
// pre-order as weights.Flatten.
func collectRows(tree *model.Tree) ([]NodeRow, []ItemRow, error) {
	if !tree.Weighted {
		return nil, nil, weights.ErrStale
	}
	var nodes []NodeRow
	var items []ItemRow
	tree.Walk(model.RootID, func(n *model.Node) bool {
		row := NodeRow{
			ID:             int64(n.ID),
			Name:           n.Name,
			Path:           n.Path,
			Rung:           tree.Rung(n.ID),
			Group:          n.Group,
			Proportion:     n.Proportion,
			UserProportion: n.UserProportion,
			Weight:         n.Weight,
			WeightModifier: n.WeightModifier,
			IsPercentage:   n.IsPercentage,
			ModeModifier:   n.ModeModifier.String(),
			Flat:           n.Flat,
			Video:          n.Video,
			ImageCount:     len(n.Images),
		}
		if n.Parent != model.NoNode {
			p := int64(n.Parent)
			row.ParentID = &p
		}
		nodes = append(nodes, row)

		w := weights.ItemWeight(n)
		for _, img := range n.Images {
			items = append(items, ItemRow{Path: img, Weight: w, NodeID: int64(n.ID)})
		}
		return true
	})
	return nodes, items, nil
}
