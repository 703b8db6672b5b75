// Package figure renders diagnostic PNGs for detections.
//
// Each figure is a proper-motion scatter coloured by cluster label with an
// inset colour-magnitude diagram in the upper-left corner.
package figure

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/thebtf/clusterscan/pkg/models"
	"github.com/thebtf/clusterscan/pkg/units"
)

var (
	// ErrNoData is returned when a detection carries no observations.
	ErrNoData = errors.New("no observations to plot")
	// ErrLabelMismatch is returned when labels and observations are not index aligned.
	ErrLabelMismatch = errors.New("labels do not match observations")
)

// Default canvas size, 8x6 inches.
const (
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 6 * vg.Inch
)

// maxLegendClusters caps legend entries on crowded patches.
const maxLegendClusters = 8

var noiseColor = color.NRGBA{R: 128, G: 128, B: 128, A: 96}

// Renderer writes one PNG per detection into a directory.
type Renderer struct {
	dir    string
	width  vg.Length
	height vg.Length
}

// NewRenderer creates dir if needed.
func NewRenderer(dir string) (*Renderer, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create figures dir: %w", err)
	}
	return &Renderer{dir: dir, width: DefaultWidth, height: DefaultHeight}, nil
}

// FileName returns the figure name for a patch center.
func FileName(ra, dec float64) string {
	return "cluster_RA" + units.FormatDecimal(ra) + "_DEC" + units.FormatDecimal(dec) + ".png"
}

// Path returns where the figure for a patch center is written.
func (r *Renderer) Path(ra, dec float64) string {
	return filepath.Join(r.dir, FileName(ra, dec))
}

// Write renders the detection. It lets a Renderer act as a detection sink.
func (r *Renderer) Write(_ context.Context, d models.Detection, data models.PatchData) error {
	path, err := r.Render(d, data)
	if err != nil {
		return err
	}
	log.Debug().Str("figure", path).Str("patch", d.PatchID()).Msg("Figure written")
	return nil
}

func (r *Renderer) Close() error { return nil }

// Render draws the figure and returns its path. The file is written to a
// temporary name first and renamed into place.
func (r *Renderer) Render(d models.Detection, data models.PatchData) (string, error) {
	if len(data.Observations) == 0 {
		return "", ErrNoData
	}
	if len(data.Labels) != len(data.Observations) {
		return "", fmt.Errorf("%w: %d labels for %d observations", ErrLabelMismatch, len(data.Labels), len(data.Observations))
	}
	for i, l := range data.Labels {
		if l < models.NoiseLabel {
			return "", fmt.Errorf("%w: label %d at %d", ErrLabelMismatch, l, i)
		}
	}

	groups := groupByLabel(data)

	motion, err := motionPlot(d, groups)
	if err != nil {
		return "", fmt.Errorf("motion plot: %w", err)
	}
	cmd, err := cmdPlot(groups)
	if err != nil {
		return "", fmt.Errorf("cmd plot: %w", err)
	}

	img := vgimg.New(r.width, r.height)
	dc := draw.New(img)
	motion.Draw(dc)

	w := dc.Max.X - dc.Min.X
	h := dc.Max.Y - dc.Min.Y
	inset := draw.Crop(dc, 0.18*w, -0.57*w, 0.6*h, -0.15*h)
	cmd.Draw(inset)

	path := r.Path(d.RA, d.Dec)
	tmp, err := os.CreateTemp(r.dir, ".cluster-*.png")
	if err != nil {
		return "", fmt.Errorf("create figure: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(tmp); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("encode figure: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close figure: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename figure: %w", err)
	}
	return path, nil
}

// group is the observations sharing one label.
type group struct {
	label  int
	motion plotter.XYs
	cmd    plotter.XYs
}

// groupByLabel splits observations by label. Noise comes first, then clusters
// in label order.
func groupByLabel(data models.PatchData) []group {
	maxLabel := models.NoiseLabel
	for _, l := range data.Labels {
		if l > maxLabel {
			maxLabel = l
		}
	}

	groups := make([]group, maxLabel+2)
	for i := range groups {
		groups[i].label = i - 1
	}
	for i, o := range data.Observations {
		g := &groups[data.Labels[i]+1]
		g.motion = append(g.motion, plotter.XY{X: o.PMRA, Y: o.PMDec})
		g.cmd = append(g.cmd, plotter.XY{X: o.BPRP, Y: o.GMag})
	}
	return groups
}

// clusterColors assigns one heat-palette colour per cluster label. The
// palette gets one spare entry so its near-white end is never used.
func clusterColors(groups []group) []color.Color {
	n := len(groups) - 1
	if n < 1 {
		return nil
	}
	return palette.Heat(n+1, 0.6).Colors()[:n]
}

func motionPlot(d models.Detection, groups []group) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Clusters at RA: %s, Dec: %s (score %.3f)",
		units.FormatDecimal(d.RA), units.FormatDecimal(d.Dec), d.Score)
	p.X.Label.Text = "Proper Motion in RA (mas/yr)"
	p.Y.Label.Text = "Proper Motion in Dec (mas/yr)"
	p.Add(plotter.NewGrid())

	colors := clusterColors(groups)
	legend := len(groups)-1 <= maxLegendClusters
	for _, g := range groups {
		if len(g.motion) == 0 {
			continue
		}
		sc, err := scatter(g.motion, groupColor(g.label, colors), vg.Points(1.5))
		if err != nil {
			return nil, err
		}
		p.Add(sc)
		if legend {
			p.Legend.Add(groupName(g.label), sc)
		}
	}
	p.Legend.Top = true
	return p, nil
}

func cmdPlot(groups []group) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Clustered CMD"
	p.X.Label.Text = "BP - RP Color"
	p.Y.Label.Text = "G-band Magnitude"
	p.Y.Scale = plot.InvertedScale{Normalizer: p.Y.Scale}

	small := vg.Points(7)
	p.Title.TextStyle.Font.Size = small
	p.X.Label.TextStyle.Font.Size = small
	p.Y.Label.TextStyle.Font.Size = small
	p.X.Tick.Label.Font.Size = small
	p.Y.Tick.Label.Font.Size = small

	colors := clusterColors(groups)
	for _, g := range groups {
		if len(g.cmd) == 0 {
			continue
		}
		sc, err := scatter(g.cmd, groupColor(g.label, colors), vg.Points(1))
		if err != nil {
			return nil, err
		}
		p.Add(sc)
	}
	return p, nil
}

func scatter(xys plotter.XYs, c color.Color, radius vg.Length) (*plotter.Scatter, error) {
	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, err
	}
	sc.GlyphStyle.Color = c
	sc.GlyphStyle.Radius = radius
	sc.GlyphStyle.Shape = draw.CircleGlyph{}
	return sc, nil
}

func groupColor(label int, colors []color.Color) color.Color {
	if label == models.NoiseLabel || len(colors) == 0 {
		return noiseColor
	}
	return colors[label%len(colors)]
}

func groupName(label int) string {
	if label == models.NoiseLabel {
		return "noise"
	}
	return fmt.Sprintf("cluster %d", label)
}
