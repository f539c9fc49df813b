package report

import (
	"math"
	"strconv"

	"rekord/internal/core"
)

// Fixed chart captions.
const (
	ChartTitle  = "Liczba zgłoszeń w podziale na lata"
	ChartXLabel = "Rok"
	ChartYLabel = "Liczba zgłoszeń"
)

// ChartOptions controls the drawing area in SVG user units.
type ChartOptions struct {
	Width, Height float64
	MarginTop     float64
	MarginRight   float64
	MarginBottom  float64
	MarginLeft    float64
	BarGap        float64 // fraction of a slot left empty, 0..1
	LabelRotation float64 // degrees, applied to x tick labels
}

// DefaultChartOptions mirrors a 10x6 figure.
func DefaultChartOptions() ChartOptions {
	return ChartOptions{
		Width:         800,
		Height:        480,
		MarginTop:     56,
		MarginRight:   24,
		MarginBottom:  80,
		MarginLeft:    72,
		BarGap:        0.5,
		LabelRotation: -45,
	}
}

// Bar is one year's bar with its annotation positions.
type Bar struct {
	Year  int
	Count int
	Label string
	X, Y  float64
	W, H  float64
	TextX float64 // count label, centered above the bar
	TextY float64
	TickX float64 // year label anchor below the axis
	TickY float64
}

// Tick is a y-axis gridline.
type Tick struct {
	Value int
	Y     float64
}

// Chart is a fully laid out vertical bar chart.
type Chart struct {
	Title, XLabel, YLabel string
	Width, Height         float64
	PlotLeft, PlotTop     float64
	PlotRight, PlotBottom float64
	LabelRotation         float64
	Bars                  []Bar
	Ticks                 []Tick
	Total                 int
}

// BuildChart lays out one bar per aggregate row, heights scaled to the
// largest count.
func BuildChart(counts []core.YearCount, opts ChartOptions) Chart {
	c := Chart{
		Title:         ChartTitle,
		XLabel:        ChartXLabel,
		YLabel:        ChartYLabel,
		Width:         opts.Width,
		Height:        opts.Height,
		PlotLeft:      opts.MarginLeft,
		PlotTop:       opts.MarginTop,
		PlotRight:     opts.Width - opts.MarginRight,
		PlotBottom:    opts.Height - opts.MarginBottom,
		LabelRotation: opts.LabelRotation,
		Total:         Total(counts),
	}
	if len(counts) == 0 {
		return c
	}

	plotW := c.PlotRight - c.PlotLeft
	plotH := c.PlotBottom - c.PlotTop
	step, top := niceScale(Max(counts))

	for v := 0; v <= top; v += step {
		c.Ticks = append(c.Ticks, Tick{Value: v, Y: c.PlotBottom - plotH*float64(v)/float64(top)})
	}

	slot := plotW / float64(len(counts))
	barW := slot * (1 - clamp(opts.BarGap, 0, 0.95))
	for i, yc := range counts {
		h := plotH * float64(yc.Count) / float64(top)
		x := c.PlotLeft + slot*float64(i) + (slot-barW)/2
		y := c.PlotBottom - h
		c.Bars = append(c.Bars, Bar{
			Year:  yc.Year,
			Count: yc.Count,
			Label: strconv.Itoa(yc.Year),
			X:     round2(x),
			Y:     round2(y),
			W:     round2(barW),
			H:     round2(h),
			TextX: round2(x + barW/2),
			TextY: round2(y - 6),
			TickX: round2(x + barW/2),
			TickY: round2(c.PlotBottom + 18),
		})
	}
	return c
}

// niceScale picks a 1/2/5 tick step and an axis maximum at least max.
func niceScale(max int) (step, top int) {
	if max <= 0 {
		return 1, 1
	}
	raw := float64(max) / 5
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	var s float64
	switch norm := raw / mag; {
	case norm <= 1:
		s = mag
	case norm <= 2:
		s = 2 * mag
	case norm <= 5:
		s = 5 * mag
	default:
		s = 10 * mag
	}
	step = int(math.Max(1, s))
	top = ((max + step - 1) / step) * step
	return step, top
}

func clamp(v, lo, hi float64) float64 { return math.Min(hi, math.Max(lo, v)) }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
