package weights

import (
	"errors"
	"fmt"
	"math"

	"github.com/vanderheijden86/slidetree/pkg/debug"
	"github.com/vanderheijden86/slidetree/pkg/model"
)

// ErrStale is returned when weights are read from a tree that was changed
// after its last distribution pass.
var ErrStale = errors.New("weights are stale; run Distribute first")

// Flatten returns the sampler-facing output: one entry per image in
// pre-order, each weighted by its node's weight divided by the image count
// (percentage nodes) or by the weight modifier (absolute nodes).
func Flatten(tree *model.Tree) ([]string, []float64, error) {
	if !tree.Weighted {
		return nil, nil, ErrStale
	}
	var items []string
	var ws []float64
	tree.Walk(model.RootID, func(n *model.Node) bool {
		if len(n.Images) == 0 {
			return true
		}
		w := ItemWeight(n)
		for _, img := range n.Images {
			items = append(items, img)
			ws = append(ws, w)
		}
		return true
	})
	return items, ws, nil
}

// ItemWeight is the normalized weight of each image held directly by n.
func ItemWeight(n *model.Node) float64 {
	var div float64
	if n.IsPercentage {
		div = float64(len(n.Images))
	} else {
		div = float64(n.WeightModifier)
	}
	if div == 0 {
		return 0
	}
	return n.Weight / div
}

// Branch summarizes one node of the starting sibling set.
type Branch struct {
	Name       string
	Weight     float64
	Proportion float64
	Images     int
	// ItemWeight sums the normalized weights of every image in the branch.
	ItemWeight float64
}

// BranchTotals reports the starting sibling set of a weighted tree, in
// tree order.
func BranchTotals(tree *model.Tree) []Branch {
	start, _ := startNodes(tree, tree.Mode)
	counts := tree.SubtreeImageCounts()
	out := make([]Branch, 0, len(start))
	for _, s := range start {
		b := Branch{
			Name:       s.Name,
			Weight:     s.Weight,
			Proportion: s.ProportionValue(),
			Images:     counts[s.ID],
		}
		tree.Walk(s.ID, func(n *model.Node) bool {
			b.ItemWeight += ItemWeight(n) * float64(len(n.Images))
			return true
		})
		out = append(out, b)
	}
	return out
}

// Report writes per-branch weight sums to the debug log.
func Report(tree *model.Tree) {
	if !debug.Enabled() {
		return
	}
	debug.Section("branch weights")
	for _, b := range BranchTotals(tree) {
		debug.Log("%s: proportion=%.4f weight=%.4f images=%d item_sum=%.4f",
			b.Name, b.Proportion, b.Weight, b.Images, b.ItemWeight)
	}
}

// Check returns an error describing the first sibling set, at or below the
// starting rung, whose proportions do not sum to 100 within Tolerance.
func Check(tree *model.Tree) error {
	if !tree.Weighted {
		return ErrStale
	}
	start, rung := startNodes(tree, tree.Mode)
	if err := checkSet(start, fmt.Sprintf("rung %d", rung)); err != nil {
		return err
	}
	for _, s := range start {
		var err error
		tree.Walk(s.ID, func(n *model.Node) bool {
			if err != nil {
				return false
			}
			if len(n.Children) == 0 {
				return true
			}
			children := make([]*model.Node, len(n.Children))
			for i, c := range n.Children {
				children[i] = tree.Node(c)
			}
			err = checkSet(children, "children of "+n.Name)
			return err == nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func checkSet(nodes []*model.Node, label string) error {
	var sum float64
	for _, n := range nodes {
		if n.Proportion == nil {
			return fmt.Errorf("%s: %s has no proportion", label, n.Name)
		}
		sum += *n.Proportion
	}
	if math.Abs(sum-100) > Tolerance {
		return fmt.Errorf("%s: proportions sum to %.9f, want 100", label, sum)
	}
	return nil
}
