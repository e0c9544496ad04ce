// Package report renders pipeline results to disk: ROC and PCA figures,
// the trained model and a Prometheus textfile with the run's metrics.
package report

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/heartrisk/dataset"
	"github.com/YuminosukeSato/heartrisk/pipeline"
	"github.com/YuminosukeSato/heartrisk/pkg/errors"
)

// File names written into the output directory.
const (
	ROCFile        = "roc_curve.png"
	ComponentsFile = "pca_transformed.png"
)

const figureSize = 5 * vg.Inch

var (
	green = color.RGBA{G: 128, A: 153}
	red   = color.RGBA{R: 220, A: 153}
)

// PlotROC draws the mean cross-validated ROC curve with the chance diagonal.
func PlotROC(path string, stats pipeline.CVStats) error {
	if len(stats.FPR) == 0 || len(stats.FPR) != len(stats.TPR) {
		return errors.NewDimensionError("PlotROC", len(stats.FPR), len(stats.TPR), 0)
	}
	p := plot.New()
	p.X.Label.Text = "1 - Specificity"
	p.Y.Label.Text = "Sensitivity"
	p.X.Min, p.X.Max = -0.05, 1.05
	p.Y.Min, p.Y.Max = -0.05, 1.05

	pts := make(plotter.XYs, len(stats.FPR))
	for i := range pts {
		pts[i].X = stats.FPR[i]
		pts[i].Y = stats.TPR[i]
	}
	curve, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrap(err, "roc line")
	}
	curve.LineStyle.Width = vg.Points(1.5)
	curve.LineStyle.Color = color.RGBA{B: 180, A: 255}

	diagonal, err := plotter.NewLine(plotter.XYs{{X: 0, Y: 0}, {X: 1, Y: 1}})
	if err != nil {
		return errors.Wrap(err, "diagonal line")
	}
	diagonal.LineStyle.Color = color.RGBA{R: 255, A: 255}
	diagonal.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	p.Add(curve, diagonal)
	p.Legend.Add(fmt.Sprintf("ROC AUC: %.2f", stats.AUC), curve)
	p.Legend.Left = false
	p.Legend.Top = false

	return save(p, path)
}

// PlotComponents scatters the first two principal components of projected,
// green circles for label 0 and red crosses for label 1, on symmetric log
// axes.
func PlotComponents(path string, projected *dataset.Frame, labels *mat.VecDense, varianceRatio []float64) error {
	n, c := projected.Dims()
	if c < 2 || len(varianceRatio) < 2 {
		return errors.NewValueError("PlotComponents", "at least two components are required")
	}
	if labels.Len() != n {
		return errors.NewDimensionError("PlotComponents", n, labels.Len(), 0)
	}

	var noRisk, risk plotter.XYs
	for i := 0; i < n; i++ {
		pt := plotter.XY{X: projected.X.At(i, 0), Y: projected.X.At(i, 1)}
		if labels.AtVec(i) == 1 {
			risk = append(risk, pt)
		} else {
			noRisk = append(noRisk, pt)
		}
	}

	p := plot.New()
	p.X.Label.Text = fmt.Sprintf("PC1 %.1f%%", varianceRatio[0]*100)
	p.Y.Label.Text = fmt.Sprintf("PC2 %.1f%%", varianceRatio[1]*100)
	p.X.Scale = symLogScale{}
	p.Y.Scale = symLogScale{}
	p.X.Tick.Marker = symLogTicks{}
	p.Y.Tick.Marker = symLogTicks{}
	p.Legend.Top = false

	for _, group := range []struct {
		name  string
		pts   plotter.XYs
		color color.Color
		shape draw.GlyphDrawer
	}{
		{"No risk", noRisk, green, draw.CircleGlyph{}},
		{"Risk", risk, red, draw.CrossGlyph{}},
	} {
		if len(group.pts) == 0 {
			continue
		}
		s, err := plotter.NewScatter(group.pts)
		if err != nil {
			return errors.Wrapf(err, "scatter %s", group.name)
		}
		s.GlyphStyle.Color = group.color
		s.GlyphStyle.Shape = group.shape
		s.GlyphStyle.Radius = vg.Points(2.5)
		p.Add(s)
		p.Legend.Add(group.name, s)
	}
	return save(p, path)
}

func save(p *plot.Plot, path string) error {
	if err := p.Save(figureSize, figureSize, path); err != nil {
		return errors.Wrapf(err, "save %s", filepath.Base(path))
	}
	return nil
}

// symLog is linear within one unit of zero and logarithmic beyond it.
func symLog(x float64) float64 {
	return math.Copysign(math.Log1p(math.Abs(x)), x)
}

// symLogScale implements plot.Normalizer for a symmetric log axis.
type symLogScale struct{}

func (symLogScale) Normalize(min, max, x float64) float64 {
	lo, hi := symLog(min), symLog(max)
	if hi == lo {
		return 0.5
	}
	return (symLog(x) - lo) / (hi - lo)
}

// symLogTicks places major ticks at 0 and signed powers of ten.
type symLogTicks struct{}

func (symLogTicks) Ticks(min, max float64) []plot.Tick {
	var ticks []plot.Tick
	add := func(v float64) {
		if v >= min && v <= max {
			ticks = append(ticks, plot.Tick{Value: v, Label: fmt.Sprintf("%g", v)})
		}
	}
	bound := math.Max(math.Abs(min), math.Abs(max))
	var powers []float64
	for v := 1.0; v <= bound*10 && len(powers) < 12; v *= 10 {
		powers = append(powers, v)
	}
	for i := len(powers) - 1; i >= 0; i-- {
		add(-powers[i])
	}
	add(0)
	for _, v := range powers {
		add(v)
	}
	if len(ticks) < 2 {
		return plot.DefaultTicks{}.Ticks(min, max)
	}
	return ticks
}
