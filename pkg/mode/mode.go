// Package mode models the per-rung weighting policy that decides how sibling
// proportions are filled in during distribution.
package mode

import (
	"sort"
	"strconv"
	"strings"
)

// Policy selects how unset sibling proportions are derived.
type Policy uint8

const (
	// Weighted biases shares by each sibling's total descendant item count.
	Weighted Policy = iota
	// Balanced splits the remaining share equally.
	Balanced
	// BelowFloor marks rungs above the lowest configured rung. Distribution
	// never starts there; when consulted it behaves like Balanced.
	BelowFloor
)

// String returns the single-letter code used in mode strings.
func (p Policy) String() string {
	switch p {
	case Balanced:
		return "b"
	case BelowFloor:
		return "l"
	default:
		return "w"
	}
}

// Slope holds the bias exponent pair. Only the first value shapes weighting;
// the second is carried through serialization untouched.
type Slope [2]int

// Level is the policy applied to one rung.
type Level struct {
	Policy Policy
	Slope  Slope
}

// Map is a validated rung -> policy mapping.
type Map map[int]Level

// DefaultMap is the built-in mode: weighted from rung 1.
func DefaultMap() Map {
	return Map{1: {Policy: Weighted}}
}

// Lowest returns the smallest configured rung.
func (m Map) Lowest() (int, bool) {
	if len(m) == 0 {
		return 0, false
	}
	first := true
	lowest := 0
	for rung := range m {
		if first || rung < lowest {
			lowest = rung
			first = false
		}
	}
	return lowest, true
}

// Resolve returns the policy for a rung. An empty map means weighted with no
// slope everywhere; rungs below the lowest configured rung are BelowFloor;
// unconfigured rungs at or beyond it fall back to weighted.
func (m Map) Resolve(rung int) Level {
	lowest, ok := m.Lowest()
	if !ok {
		return Level{Policy: Weighted}
	}
	if rung < lowest {
		return Level{Policy: BelowFloor}
	}
	if l, ok := m[rung]; ok {
		return l
	}
	return Level{Policy: Weighted}
}

// Overlay returns a copy of m with every level of other applied on top.
func (m Map) Overlay(other Map) Map {
	if len(other) == 0 {
		return m
	}
	out := make(Map, len(m)+len(other))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy. A nil map stays nil.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Equal reports whether both maps configure the same levels identically.
func (m Map) Equal(other Map) bool {
	if len(m) != len(other) {
		return false
	}
	for k, v := range m {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Levels returns the configured rungs in ascending order.
func (m Map) Levels() []int {
	levels := make([]int, 0, len(m))
	for k := range m {
		levels = append(levels, k)
	}
	sort.Ints(levels)
	return levels
}

// String serializes the map into canonical mode-string form, levels
// ascending. Parse(m.String()) reproduces m.
func (m Map) String() string {
	var b strings.Builder
	for _, rung := range m.Levels() {
		l := m[rung]
		p := l.Policy
		if p == BelowFloor {
			p = Balanced
		}
		b.WriteString(p.String())
		b.WriteString(strconv.Itoa(rung))
		if l.Slope[0] != 0 || l.Slope[1] != 0 {
			b.WriteByte(',')
			b.WriteString(strconv.Itoa(l.Slope[0]))
		}
		if l.Slope[1] != 0 {
			b.WriteByte(',')
			b.WriteString(strconv.Itoa(l.Slope[1]))
		}
	}
	return b.String()
}

// MarshalText implements encoding.TextMarshaler so config files and
// snapshots carry the string form.
func (m Map) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields a nil
// map.
func (m *Map) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*m = nil
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
