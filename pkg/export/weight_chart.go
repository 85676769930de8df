package export

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"git.sr.ht/~sbinet/gg"
	"github.com/ajstarks/svgo"
	"golang.org/x/image/font/basicfont"

	"github.com/vanderheijden86/slidetree/pkg/model"
	"github.com/vanderheijden86/slidetree/pkg/weights"
)

// ErrEmptyChart is returned when the tree has no branch to draw.
var ErrEmptyChart = errors.New("no branches to chart")

// ChartOptions controls weight chart export.
type ChartOptions struct {
	Path   string // Output path; format inferred from extension when Format empty
	Format string // "svg" or "png" (case-insensitive). If empty, inferred from Path.
	Title  string
	Tree   *model.Tree
}

var (
	colorBackdrop = color.RGBA{R: 250, G: 250, B: 247, A: 255}
	colorHeaderBG = color.RGBA{R: 236, G: 239, B: 244, A: 255}
	colorBar      = color.RGBA{R: 94, G: 129, B: 172, A: 255}
	colorBarAlt   = color.RGBA{R: 136, G: 192, B: 208, A: 255}
	colorText     = color.RGBA{R: 46, G: 52, B: 64, A: 255}
	colorSubtle   = color.RGBA{R: 96, G: 104, B: 120, A: 255}
	colorGrid     = color.RGBA{R: 216, G: 222, B: 233, A: 255}
)

// SaveWeightChart renders a horizontal bar chart of the starting branches of
// a weighted tree, one bar per branch sized by its share.
func SaveWeightChart(opts ChartOptions) error {
	if opts.Tree == nil {
		return fmt.Errorf("tree is required for chart export")
	}
	if !opts.Tree.Weighted {
		return weights.ErrStale
	}

	format := strings.ToLower(strings.TrimPrefix(opts.Format, "."))
	if format == "" {
		switch strings.ToLower(filepath.Ext(opts.Path)) {
		case ".png":
			format = "png"
		default:
			format = "svg"
			if opts.Path != "" && filepath.Ext(opts.Path) == "" {
				opts.Path += ".svg"
			}
		}
	}
	if format != "svg" && format != "png" {
		return fmt.Errorf("unsupported format %q (want svg or png)", format)
	}
	if opts.Path == "" {
		return fmt.Errorf("output path is required")
	}

	layout := buildChart(opts)
	if len(layout.Bars) == 0 {
		return ErrEmptyChart
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	switch format {
	case "png":
		return renderChartPNG(opts.Path, layout)
	default:
		file, err := os.Create(opts.Path)
		if err != nil {
			return err
		}
		defer file.Close()
		return renderChartSVG(file, layout)
	}
}

type chartBar struct {
	Label  string
	Share  float64 // 0-100
	Images int
	Y      float64
	W      float64
}

type chartLayout struct {
	Title  string
	Mode   string
	Images int
	Bars   []chartBar
	Width  int
	Height int
	Header float64
	LabelW float64
	PlotW  float64
}

func buildChart(opts ChartOptions) chartLayout {
	const (
		width   = 960
		padding = 24.0
		header  = 84.0
		labelW  = 280.0
		rowH    = 26.0
	)

	branches := weights.BranchTotals(opts.Tree)
	title := opts.Title
	if title == "" {
		title = "Branch weights"
	}
	l := chartLayout{
		Title:  title,
		Mode:   opts.Tree.Mode.String(),
		Images: opts.Tree.TotalImages(),
		Width:  width,
		Header: header,
		LabelW: labelW,
		PlotW:  width - labelW - 2*padding - 80,
	}

	var total float64
	for _, b := range branches {
		total += b.Proportion
	}
	for i, b := range branches {
		share := 0.0
		if total > 0 {
			share = b.Proportion / total * 100
		}
		l.Bars = append(l.Bars, chartBar{
			Label:  truncate(model.BaseName(b.Name), 36),
			Share:  share,
			Images: b.Images,
			Y:      header + padding + float64(i)*rowH,
			W:      l.PlotW * share / 100,
		})
	}
	l.Height = int(header + 2*padding + float64(len(l.Bars))*rowH)
	return l
}

func renderChartPNG(path string, l chartLayout) error {
	const barH = 18.0
	dc := gg.NewContext(l.Width, l.Height)
	dc.SetColor(colorBackdrop)
	dc.Clear()

	dc.SetColor(colorHeaderBG)
	dc.DrawRoundedRectangle(16, 16, float64(l.Width)-32, l.Header-24, 10)
	dc.Fill()

	dc.SetFontFace(basicfont.Face7x13)
	dc.SetColor(colorText)
	dc.DrawStringAnchored(l.Title, 32, 40, 0, 0.5)
	dc.SetColor(colorSubtle)
	dc.DrawStringAnchored(fmt.Sprintf("mode: %s  branches: %d  images: %d", l.Mode, len(l.Bars), l.Images), 32, 60, 0, 0.5)

	x0 := 24 + l.LabelW
	dc.SetColor(colorGrid)
	dc.SetLineWidth(1)
	dc.DrawLine(x0, l.Header+16, x0, float64(l.Height)-16)
	dc.Stroke()

	for i, b := range l.Bars {
		dc.SetColor(colorText)
		dc.DrawStringAnchored(b.Label, x0-8, b.Y+barH/2, 1, 0.5)
		dc.SetColor(barColor(i))
		dc.DrawRectangle(x0, b.Y, b.W, barH)
		dc.Fill()
		dc.SetColor(colorSubtle)
		dc.DrawStringAnchored(fmt.Sprintf("%.1f%%", b.Share), x0+b.W+6, b.Y+barH/2, 0, 0.5)
	}

	return dc.SavePNG(path)
}

func renderChartSVG(w io.Writer, l chartLayout) error {
	const barH = 18
	canvas := svg.New(w)
	canvas.Start(l.Width, l.Height)
	canvas.Rect(0, 0, l.Width, l.Height, fmt.Sprintf("fill:%s", css(colorBackdrop)))
	canvas.Roundrect(16, 16, l.Width-32, int(l.Header-24), 10, 10, fmt.Sprintf("fill:%s", css(colorHeaderBG)))
	canvas.Text(32, 44, l.Title, fmt.Sprintf("fill:%s;font-size:16px;font-family:monospace;font-weight:bold", css(colorText)))
	canvas.Text(32, 64, fmt.Sprintf("mode: %s  branches: %d  images: %d", l.Mode, len(l.Bars), l.Images),
		fmt.Sprintf("fill:%s;font-size:13px;font-family:monospace", css(colorSubtle)))

	x0 := 24 + int(l.LabelW)
	canvas.Line(x0, int(l.Header)+16, x0, l.Height-16, fmt.Sprintf("stroke:%s;stroke-width:1", css(colorGrid)))

	for i, b := range l.Bars {
		y := int(b.Y)
		canvas.Text(x0-8, y+barH-4, b.Label,
			fmt.Sprintf("fill:%s;font-size:12px;font-family:monospace;text-anchor:end", css(colorText)))
		canvas.Rect(x0, y, int(b.W), barH, fmt.Sprintf("fill:%s", css(barColor(i))))
		canvas.Text(x0+int(b.W)+6, y+barH-4, fmt.Sprintf("%.1f%% (%d)", b.Share, b.Images),
			fmt.Sprintf("fill:%s;font-size:11px;font-family:monospace", css(colorSubtle)))
	}

	canvas.End()
	return nil
}

func barColor(i int) color.RGBA {
	if i%2 == 0 {
		return colorBar
	}
	return colorBarAlt
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func css(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
