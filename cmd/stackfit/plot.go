package main

import (
	"image/color"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/YuminosukeSato/mlstack/pkg/errors"
)

var palette = []color.Color{
	color.RGBA{R: 31, G: 119, B: 180, A: 255},
	color.RGBA{R: 255, G: 127, B: 14, A: 255},
	color.RGBA{R: 44, G: 160, B: 44, A: 255},
	color.RGBA{R: 214, G: 39, B: 40, A: 255},
	color.RGBA{R: 148, G: 103, B: 189, A: 255},
}

// plotOutOfFold scatters every prediction column against the targets of
// the held-out rows (the last P.rows rows of y) and saves the figure; the
// format follows the file extension.
func plotOutOfFold(path, title string, y, P mat.Matrix, names []string) error {
	yr, _ := y.Dims()
	pr, pc := P.Dims()
	offset := yr - pr

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "target"
	p.Y.Label.Text = "out-of-fold prediction"
	p.Add(plotter.NewGrid())

	lo, hi := 0.0, 0.0
	for j := 0; j < pc; j++ {
		pts := make(plotter.XYs, pr)
		for i := range pts {
			pts[i].X = y.At(offset+i, 0)
			pts[i].Y = P.At(i, j)
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return errors.Wrap(err, "scatter")
		}
		s.GlyphStyle.Color = palette[j%len(palette)]
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		s.GlyphStyle.Radius = vg.Points(2)
		p.Add(s)
		p.Legend.Add(names[j], s)

		xs := make([]float64, pr)
		for i := range pts {
			xs[i] = pts[i].X
		}
		if j == 0 {
			lo, hi = floats.Min(xs), floats.Max(xs)
		}
	}

	diag, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return errors.Wrap(err, "diagonal")
	}
	diag.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(diag)
	p.Legend.Top = true

	return errors.Wrapf(p.Save(6*vg.Inch, 6*vg.Inch, path), "save %s", path)
}
