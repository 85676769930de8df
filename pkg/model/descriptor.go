package model

import "github.com/vanderheijden86/slidetree/pkg/mode"

// Attrs are the per-node settings carried by a source descriptor.
type Attrs struct {
	WeightModifier int
	IsPercentage   bool
	Proportion     *float64
	UserProportion *float64
	ModeModifier   mode.Map
	Flat           bool
	Video          *bool
	Group          string
}

// DefaultAttrs returns the attributes of an unmodified source: 100% of the
// inherited weight, proportion derived automatically.
func DefaultAttrs() Attrs {
	return Attrs{WeightModifier: 100, IsPercentage: true}
}

// RootSource describes one directory to scan.
type RootSource struct {
	Path       string
	Attrs      Attrs
	GraftLevel *int
}

// ImageSource describes one file that becomes its own virtual node.
type ImageSource struct {
	Path       string
	Attrs      Attrs
	GraftLevel *int
}

// GroupConfig is shared configuration for every source tagged with a group.
type GroupConfig struct {
	Proportion     *float64
	UserProportion *float64
	GraftLevel     *int
	ModeModifier   mode.Map
}

// Float returns a pointer to v. Handy for optional proportions.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
