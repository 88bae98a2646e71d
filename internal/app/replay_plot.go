package app

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/relabs-tech/fall_monitor/internal/fall"
)

var (
	freeFallColor = color.RGBA{B: 200, A: 255}
	impactColor   = color.RGBA{R: 200, A: 255}
	decisionColor = color.RGBA{R: 230, G: 120, A: 255}
)

// PlotReplay renders the magnitude trace of a replay with the free fall and
// impact thresholds and the decisions. The format follows the extension of
// path (.png, .svg, .pdf).
func PlotReplay(res ReplayResult, settings fall.Settings, path string) error {
	if len(res.Trace) == 0 {
		return fmt.Errorf("replay %s: no samples to plot", res.Scenario)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Scenario %s - acceleration magnitude", res.Scenario)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "|a| (m/s²)"

	pts := make(plotter.XYs, len(res.Trace))
	for i, tp := range res.Trace {
		pts[i] = plotter.XY{X: tp.Offset.Seconds(), Y: tp.Magnitude}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("|a|", line)

	threshold := func(v float64, c color.Color, label string) {
		fn := plotter.NewFunction(func(float64) float64 { return v })
		fn.Color = c
		fn.Width = vg.Points(1)
		fn.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(fn)
		p.Legend.Add(label, fn)
	}
	threshold(settings.FreeFallThreshold, freeFallColor, "free fall")
	threshold(settings.ImpactThreshold, impactColor, "impact")

	if len(res.Decisions) > 0 {
		marks := make(plotter.XYs, len(res.Decisions))
		for i, d := range res.Decisions {
			marks[i] = plotter.XY{X: d.Offset.Seconds(), Y: d.Magnitude}
		}
		sc, err := plotter.NewScatter(marks)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = decisionColor
		sc.GlyphStyle.Radius = vg.Points(4)
		p.Add(sc)
		p.Legend.Add("decision", sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(12*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}
