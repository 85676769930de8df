// Package weights resolves sibling proportions and top-down node weights,
// and flattens a weighted tree into (item, weight) pairs for a sampler.
package weights

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/vanderheijden86/slidetree/pkg/metrics"
	"github.com/vanderheijden86/slidetree/pkg/mode"
	"github.com/vanderheijden86/slidetree/pkg/model"
)

// TotalWeight is the budget handed to the starting sibling set.
const TotalWeight = 100.0

// Tolerance bounds the drift allowed when checking that proportions sum
// to 100.
const Tolerance = 1e-6

// minExponent keeps extreme slopes from collapsing every share to 1.
const minExponent = 0.01

type options struct {
	ignoreUserProportion bool
}

// Option tunes a distribution pass.
type Option func(*options)

// IgnoreUserProportion recomputes every proportion, discarding sticky user
// overrides for this pass.
func IgnoreUserProportion() Option {
	return func(o *options) { o.ignoreUserProportion = true }
}

// Distribute computes every node's proportion and weight under m and marks
// the tree as weighted. Nodes above the starting rung keep weight 0.
func Distribute(tree *model.Tree, m mode.Map, opts ...Option) {
	defer metrics.Timer(metrics.Distribute)()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	tree.Walk(model.RootID, func(n *model.Node) bool {
		n.Weight = 0
		if !o.ignoreUserProportion && n.UserProportion != nil {
			v := *n.UserProportion
			n.Proportion = &v
		} else {
			n.Proportion = nil
		}
		return true
	})

	counts := tree.SubtreeImageCounts()
	start, rung := startNodes(tree, m)
	FillMissingProportions(start, m.Resolve(rung), counts)

	type frame struct {
		id     model.NodeID
		weight float64
		rung   int
		scope  mode.Map
	}
	stack := make([]frame, 0, len(start))
	for i := len(start) - 1; i >= 0; i-- {
		n := start[i]
		if n.Proportion == nil {
			n.Proportion = model.Float(100)
		}
		stack = append(stack, frame{
			id:     n.ID,
			weight: TotalWeight * (*n.Proportion / 100),
			rung:   rung,
			scope:  inheritedScope(tree, n, m),
		})
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := tree.Node(f.id)

		if n.IsPercentage {
			n.Weight = f.weight * float64(n.WeightModifier) / 100
		} else {
			n.Weight = f.weight
		}
		if len(n.Children) == 0 {
			continue
		}

		scope := f.scope.Overlay(n.ModeModifier)
		children := make([]*model.Node, len(n.Children))
		for i, c := range n.Children {
			children[i] = tree.Node(c)
		}
		FillMissingProportions(children, scope.Resolve(f.rung+1), counts)

		for i := len(children) - 1; i >= 0; i-- {
			c := children[i]
			stack = append(stack, frame{
				id:     c.ID,
				weight: n.Weight * (c.ProportionValue() / 100),
				rung:   f.rung + 1,
				scope:  scope,
			})
		}
	}

	tree.Mode = m.Clone()
	tree.Weighted = true

	Report(tree)
}

// startNodes returns the sibling set distribution starts from: every node on
// the lowest configured rung, or root alone when there is none.
func startNodes(tree *model.Tree, m mode.Map) ([]*model.Node, int) {
	if lowest, ok := m.Lowest(); ok {
		if nodes := tree.NodesAtRung(lowest); len(nodes) > 0 {
			return nodes, lowest
		}
	}
	return []*model.Node{tree.Root()}, 0
}

// inheritedScope overlays the mode modifiers of n's ancestors, outermost
// first, onto the global map.
func inheritedScope(tree *model.Tree, n *model.Node, m mode.Map) mode.Map {
	var chain []*model.Node
	for p := tree.Node(n.Parent); p != nil; p = tree.Node(p.Parent) {
		chain = append(chain, p)
	}
	scope := m
	for i := len(chain) - 1; i >= 0; i-- {
		scope = scope.Overlay(chain[i].ModeModifier)
	}
	return scope
}

// FillMissingProportions assigns proportions to the unset members of a
// sibling set and then rescales the whole set to sum to exactly 100.
//
// Balanced (and BelowFloor) split the remainder equally. Weighted gives each
// unset node a raw share of count^e with e = max(0.01, 1-slope/100), or
// (1/count)^e with e = max(0.01, 1+slope/100) for negative slopes, where
// count is the node's subtree image count (at least 1).
func FillMissingProportions(nodes []*model.Node, level mode.Level, counts []int) {
	if len(nodes) == 0 {
		return
	}
	var set float64
	var unset []*model.Node
	for _, n := range nodes {
		if n.Proportion != nil {
			set += *n.Proportion
		} else {
			unset = append(unset, n)
		}
	}
	remaining := math.Max(0, 100-set)

	if len(unset) > 0 {
		shares := make([]float64, len(unset))
		switch level.Policy {
		case mode.Weighted:
			slope := float64(level.Slope[0])
			for i, n := range unset {
				c := 1.0
				if int(n.ID) < len(counts) && counts[n.ID] > 1 {
					c = float64(counts[n.ID])
				}
				if slope >= 0 {
					shares[i] = math.Pow(c, math.Max(minExponent, 1-slope/100))
				} else {
					shares[i] = math.Pow(1/c, math.Max(minExponent, 1+slope/100))
				}
			}
			total := floats.Sum(shares)
			if total == 0 {
				total = 1
			}
			floats.Scale(remaining/total, shares)
		default:
			for i := range shares {
				shares[i] = remaining / float64(len(unset))
			}
		}
		for i, n := range unset {
			v := shares[i]
			n.Proportion = &v
		}
	}

	props := make([]float64, len(nodes))
	for i, n := range nodes {
		props[i] = *n.Proportion
	}
	total := floats.Sum(props)
	if total <= 0 {
		return
	}
	floats.Scale(100/total, props)
	for i, n := range nodes {
		*n.Proportion = props[i]
	}
}
