package config

import (
	"fmt"

	"github.com/vanderheijden86/slidetree/pkg/mode"
)

// DefaultMaxDepth bounds directory recursion.
const DefaultMaxDepth = 64

// Settings is the flat, resolved view of every build default. It is computed
// once per run and never mutated afterwards.
type Settings struct {
	Mode              mode.Map
	Random            bool
	DontRecurse       bool
	Video             bool
	Mute              bool
	MaxDepth          int
	IgnoreBelowBottom bool
}

// Builtin returns the settings used when nothing else is configured.
func Builtin() Settings {
	return Settings{Mode: mode.DefaultMap(), MaxDepth: DefaultMaxDepth}
}

// Layer is one partial source of settings: command-line flags, globals
// declared in an input file, or the config file. Nil fields are unset.
type Layer struct {
	Mode              mode.Map
	Random            *bool
	DontRecurse       *bool
	Video             *bool
	Mute              *bool
	MaxDepth          *int
	IgnoreBelowBottom *bool
}

// Layer converts the config file defaults into a settings layer.
func (c Config) Layer() (Layer, error) {
	d := c.Defaults
	l := Layer{
		Random:            &d.Random,
		DontRecurse:       &d.DontRecurse,
		Video:             &d.Video,
		Mute:              &d.Mute,
		IgnoreBelowBottom: &d.IgnoreBelowBottom,
	}
	if d.MaxDepth > 0 {
		l.MaxDepth = &d.MaxDepth
	}
	if d.Mode != "" {
		m, err := mode.Parse(d.Mode)
		if err != nil {
			return Layer{}, fmt.Errorf("defaults.mode: %w", err)
		}
		l.Mode = m
	}
	return l, nil
}

// Resolve merges layers into Settings. Layers are given from highest to
// lowest precedence; the first layer that sets a field wins and Builtin
// fills whatever is left.
func Resolve(layers ...Layer) Settings {
	s := Builtin()
	for _, l := range layers {
		if len(l.Mode) > 0 {
			s.Mode = l.Mode.Clone()
			break
		}
	}
	pick(&s.Random, layers, func(l Layer) *bool { return l.Random })
	pick(&s.DontRecurse, layers, func(l Layer) *bool { return l.DontRecurse })
	pick(&s.Video, layers, func(l Layer) *bool { return l.Video })
	pick(&s.Mute, layers, func(l Layer) *bool { return l.Mute })
	pick(&s.IgnoreBelowBottom, layers, func(l Layer) *bool { return l.IgnoreBelowBottom })
	pick(&s.MaxDepth, layers, func(l Layer) *int {
		if l.MaxDepth != nil && *l.MaxDepth <= 0 {
			return nil
		}
		return l.MaxDepth
	})
	return s
}

func pick[T any](dst *T, layers []Layer, get func(Layer) *T) {
	for _, l := range layers {
		if v := get(l); v != nil {
			*dst = *v
			return
		}
	}
}
