package model

import "github.com/vanderheijden86/slidetree/pkg/mode"

// NodeID addresses a node in a Tree's arena. IDs are stable for the lifetime
// of the tree; removed nodes leave a hole rather than shifting others.
type NodeID int32

const (
	// NoNode marks an absent parent.
	NoNode NodeID = -1
	// RootID is always the sentinel root.
	RootID NodeID = 0
)

// Node is one entry of the sampling tree.
type Node struct {
	ID   NodeID
	Name string // canonical, unique within the tree
	Path string // source path the node was built from
	// Group labels nodes relocated into a synthetic group.
	Group string

	// Proportion is the resolved share among siblings (0-100). It is
	// recomputed on every distribution pass.
	Proportion *float64
	// UserProportion survives recomputation; nil means derive automatically.
	UserProportion *float64

	Weight         float64
	WeightModifier int
	IsPercentage   bool
	ModeModifier   mode.Map
	Flat           bool
	Video          *bool

	Images   []string
	Children []NodeID
	Parent   NodeID
}

// Empty reports whether the node holds neither images nor children.
func (n *Node) Empty() bool {
	return len(n.Images) == 0 && len(n.Children) == 0
}

// IsRoot reports whether n is the sentinel root.
func (n *Node) IsRoot() bool { return n.ID == RootID }

// HasProportion reports whether a proportion is currently resolved.
func (n *Node) HasProportion() bool { return n.Proportion != nil }

// ProportionValue returns the resolved proportion or 0 when unset.
func (n *Node) ProportionValue() float64 {
	if n.Proportion == nil {
		return 0
	}
	return *n.Proportion
}

// apply copies descriptor attributes onto the node.
func (n *Node) apply(a Attrs) {
	n.WeightModifier = a.WeightModifier
	n.IsPercentage = a.IsPercentage
	n.Proportion = cloneFloat(a.Proportion)
	n.UserProportion = cloneFloat(a.UserProportion)
	n.ModeModifier = a.ModeModifier.Clone()
	n.Flat = a.Flat
	n.Video = cloneBool(a.Video)
	if a.Group != "" {
		n.Group = a.Group
	}
}

func (n *Node) clone() *Node {
	c := *n
	c.Proportion = cloneFloat(n.Proportion)
	c.UserProportion = cloneFloat(n.UserProportion)
	c.ModeModifier = n.ModeModifier.Clone()
	c.Video = cloneBool(n.Video)
	c.Images = append([]string(nil), n.Images...)
	c.Children = append([]NodeID(nil), n.Children...)
	return &c
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
