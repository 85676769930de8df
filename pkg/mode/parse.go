package mode

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxSlope bounds the absolute value of a slope.
const MaxSlope = 100

// ParseError describes the first invalid token of a mode string.
type ParseError struct {
	Input  string
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid mode %q at offset %d: %s", e.Input, e.Offset, e.Reason)
}

// Parse reads one or more blocks of the form
//
//	[bw]<level>(,<slope>)?(,<slope>)?
//
// case-insensitively, e.g. "b1w3,20". Any token outside that grammar, a
// repeated level, or a slope outside [-100,100] rejects the whole string.
func Parse(s string) (Map, error) {
	src := strings.TrimSpace(s)
	if src == "" {
		return nil, &ParseError{Input: s, Reason: "empty mode string"}
	}

	lx := lexer{src: src}
	m := make(Map)
	for !lx.done() {
		start := lx.pos

		policy, err := lx.policy()
		if err != nil {
			return nil, err
		}
		level, err := lx.integer(false)
		if err != nil {
			return nil, err
		}

		var slope Slope
		for i := 0; i < len(slope) && lx.peek() == ','; i++ {
			lx.pos++
			at := lx.pos
			v, err := lx.integer(true)
			if err != nil {
				return nil, err
			}
			if v < -MaxSlope || v > MaxSlope {
				return nil, lx.fail(at, fmt.Sprintf("slope %d outside [-%d,%d]", v, MaxSlope, MaxSlope))
			}
			slope[i] = v
		}
		if lx.peek() == ',' {
			return nil, lx.fail(lx.pos, "too many slope values")
		}

		if _, dup := m[level]; dup {
			return nil, lx.fail(start, fmt.Sprintf("level %d configured twice", level))
		}
		m[level] = Level{Policy: policy, Slope: slope}
	}
	return m, nil
}

// MustParse is Parse for compile-time constants; it panics on error.
func MustParse(s string) Map {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

type lexer struct {
	src string
	pos int
}

func (lx *lexer) done() bool { return lx.pos >= len(lx.src) }

func (lx *lexer) peek() byte {
	if lx.done() {
		return 0
	}
	return lx.src[lx.pos]
}

func (lx *lexer) fail(at int, reason string) *ParseError {
	return &ParseError{Input: lx.src, Offset: at, Reason: reason}
}

func (lx *lexer) policy() (Policy, error) {
	switch lx.peek() {
	case 'b', 'B':
		lx.pos++
		return Balanced, nil
	case 'w', 'W':
		lx.pos++
		return Weighted, nil
	case 0:
		return 0, lx.fail(lx.pos, "unexpected end of input, want 'b' or 'w'")
	default:
		return 0, lx.fail(lx.pos, fmt.Sprintf("unexpected %q, want 'b' or 'w'", lx.peek()))
	}
}

func (lx *lexer) integer(signed bool) (int, error) {
	start := lx.pos
	if signed && (lx.peek() == '-' || lx.peek() == '+') {
		lx.pos++
	}
	digits := lx.pos
	for !lx.done() && lx.src[lx.pos] >= '0' && lx.src[lx.pos] <= '9' {
		lx.pos++
	}
	if lx.pos == digits {
		if lx.done() {
			return 0, lx.fail(lx.pos, "unexpected end of input, want digits")
		}
		return 0, lx.fail(lx.pos, fmt.Sprintf("unexpected %q, want digits", lx.peek()))
	}
	v, err := strconv.Atoi(lx.src[start:lx.pos])
	if err != nil {
		return 0, lx.fail(start, "number out of range")
	}
	return v, nil
}
