package export

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltree "github.com/charmbracelet/lipgloss/tree"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/vanderheijden86/slidetree/pkg/model"
)

// RenderOptions controls RenderTree.
type RenderOptions struct {
	// NameWidth truncates node names to this many cells. Default: 40.
	NameWidth int
	// MaxDepth stops descending below this many rungs. 0 means no limit.
	MaxDepth int
	// Color enables styling. Use StdoutIsTerminal to decide.
	Color bool
}

// StdoutIsTerminal reports whether stdout is attached to a terminal.
func StdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

type treeStyles struct {
	name   lipgloss.Style
	weight lipgloss.Style
	muted  lipgloss.Style
	enum   lipgloss.Style
}

func newTreeStyles(color bool) treeStyles {
	if !color {
		plain := lipgloss.NewStyle()
		return treeStyles{name: plain, weight: plain, muted: plain, enum: plain}
	}
	return treeStyles{
		name:   lipgloss.NewStyle().Bold(true),
		weight: lipgloss.NewStyle().Foreground(lipgloss.Color("#5E81AC")),
		muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("#7B8496")),
		enum:   lipgloss.NewStyle().Foreground(lipgloss.Color("#4C566A")),
	}
}

// RenderTree draws the tree with each node's weight, proportion and image
// count.
func RenderTree(tree *model.Tree, opts RenderOptions) string {
	if opts.NameWidth <= 0 {
		opts.NameWidth = 40
	}
	r := &treeRenderer{tree: tree, opts: opts, styles: newTreeStyles(opts.Color)}
	return r.subtree(tree.Root(), 0).String()
}

type treeRenderer struct {
	tree   *model.Tree
	opts   RenderOptions
	styles treeStyles
}

func (r *treeRenderer) subtree(n *model.Node, depth int) *ltree.Tree {
	t := ltree.Root(r.label(n)).
		Enumerator(ltree.RoundedEnumerator).
		EnumeratorStyle(r.styles.enum)

	if r.opts.MaxDepth > 0 && depth >= r.opts.MaxDepth {
		if len(n.Children) > 0 {
			t.Child(r.styles.muted.Render(fmt.Sprintf("… %d more", len(n.Children))))
		}
		return t
	}
	for _, id := range n.Children {
		c := r.tree.Node(id)
		if c == nil {
			continue
		}
		if len(c.Children) == 0 {
			t.Child(r.label(c))
			continue
		}
		t.Child(r.subtree(c, depth+1))
	}
	return t
}

func (r *treeRenderer) label(n *model.Node) string {
	name := "root"
	if !n.IsRoot() {
		name = model.BaseName(n.Name)
	}
	name = runewidth.Truncate(name, r.opts.NameWidth, "…")

	var b strings.Builder
	b.WriteString(r.styles.name.Render(name))
	b.WriteString("  ")
	b.WriteString(r.styles.weight.Render(fmt.Sprintf("w=%.2f", n.Weight)))
	if n.Proportion != nil {
		b.WriteString(r.styles.muted.Render(fmt.Sprintf(" p=%.1f%%", *n.Proportion)))
	}
	if n.UserProportion != nil {
		b.WriteString(r.styles.muted.Render(" (set)"))
	}
	if len(n.Images) > 0 {
		b.WriteString(r.styles.muted.Render(fmt.Sprintf(" [%d]", len(n.Images))))
	}
	if n.Group != "" {
		b.WriteString(r.styles.muted.Render(" >" + n.Group))
	}
	return b.String()
}
