// Package chart renders signal context charts to PNG. Each image shows the
// close price around a signal bar, any indicator overlays the rule used,
// and a marker on the signal bar itself.
package chart

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"quantengine/internal/indicator"
	"quantengine/internal/model"
	"quantengine/internal/rule"
)

// Config sizes the rendered image and the candle window around the signal.
type Config struct {
	Width      int // default 900
	Height     int // default 450
	WindowBars int // bars before the signal bar, default 60
}

// Renderer turns a signal bar plus its indicator context into a PNG.
type Renderer struct {
	cfg Config
}

// New creates a renderer with defaults filled in.
func New(cfg Config) *Renderer {
	if cfg.Width <= 0 {
		cfg.Width = 900
	}
	if cfg.Height <= 0 {
		cfg.Height = 450
	}
	if cfg.WindowBars <= 0 {
		cfg.WindowBars = 60
	}
	return &Renderer{cfg: cfg}
}

// Render draws the window ending at signal index idx. Bands are overlaid on
// the price axis; RSI, when present, goes on the secondary axis. Undefined
// indicator values are skipped rather than drawn as zeros.
func (r *Renderer) Render(s *model.Series, idx int, sig model.Signal, ind *rule.IndicatorSet) ([]byte, error) {
	if idx < 0 || idx >= len(s.Candles) {
		return nil, fmt.Errorf("chart: signal index %d out of range (%d candles)", idx, len(s.Candles))
	}
	lo := idx - r.cfg.WindowBars
	if lo < 0 {
		lo = 0
	}

	times := make([]time.Time, 0, idx-lo+1)
	closes := make([]float64, 0, idx-lo+1)
	for i := lo; i <= idx; i++ {
		times = append(times, s.Candles[i].TS)
		closes = append(closes, s.Candles[i].Close)
	}
	if len(times) < 2 {
		return nil, fmt.Errorf("chart: window too small (%d bars)", len(times))
	}

	series := []chart.Series{
		chart.TimeSeries{
			Name:    "close",
			XValues: times,
			YValues: closes,
			Style: chart.Style{
				StrokeColor: drawing.ColorBlue,
				StrokeWidth: 1.5,
			},
		},
	}

	if ind != nil && ind.Bollinger != nil {
		if up := indicatorWindow(ind.Bollinger.Upper, lo, idx); up != nil {
			series = append(series, bandSeries("bb upper", up.times(times, lo), up.values))
		}
		if dn := indicatorWindow(ind.Bollinger.Lower, lo, idx); dn != nil {
			series = append(series, bandSeries("bb lower", dn.times(times, lo), dn.values))
		}
	}
	if ind != nil && ind.FastMA != nil {
		if w := indicatorWindow(ind.FastMA, lo, idx); w != nil {
			series = append(series, lineSeries("fast ma", w.times(times, lo), w.values, drawing.ColorFromHex("e67e22"), chart.YAxisPrimary))
		}
	}
	if ind != nil && ind.SlowMA != nil {
		if w := indicatorWindow(ind.SlowMA, lo, idx); w != nil {
			series = append(series, lineSeries("slow ma", w.times(times, lo), w.values, drawing.ColorFromHex("8e44ad"), chart.YAxisPrimary))
		}
	}
	if ind != nil && ind.RSI != nil {
		if w := indicatorWindow(ind.RSI, lo, idx); w != nil {
			series = append(series, lineSeries("rsi", w.times(times, lo), w.values, drawing.ColorFromHex("16a085"), chart.YAxisSecondary))
		}
	}
	if ind != nil && ind.MACDHist != nil {
		if w := indicatorWindow(ind.MACDHist, lo, idx); w != nil {
			series = append(series, lineSeries("macd hist", w.times(times, lo), w.values, drawing.ColorFromHex("7f8c8d"), chart.YAxisSecondary))
		}
	}

	marker := "entry"
	markerColor := drawing.ColorGreen
	if sig == model.SignalBearish {
		marker = "exit"
		markerColor = drawing.ColorRed
	}
	series = append(series, chart.AnnotationSeries{
		Annotations: []chart.Value2{{
			XValue: chart.TimeToFloat64(s.Candles[idx].TS),
			YValue: s.Candles[idx].Close,
			Label:  marker,
		}},
		Style: chart.Style{
			StrokeColor: markerColor,
			FillColor:   markerColor.WithAlpha(64),
		},
	})

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s %s", s.Symbol, s.EffectiveInterval),
		Width:  r.cfg.Width,
		Height: r.cfg.Height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("01-02 15:04"),
		},
		Series: series,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render: %w", err)
	}
	return buf.Bytes(), nil
}

// window holds the defined slice of an indicator over [lo, idx], aligned to
// the candle indexes it came from.
type window struct {
	offsets []int
	values  []float64
}

func (w *window) times(ts []time.Time, lo int) []time.Time {
	out := make([]time.Time, len(w.offsets))
	for i, off := range w.offsets {
		out[i] = ts[off-lo]
	}
	return out
}

func indicatorWindow(vals []float64, lo, idx int) *window {
	w := &window{}
	for i := lo; i <= idx && i < len(vals); i++ {
		if !indicator.Defined(vals[i]) {
			continue
		}
		w.offsets = append(w.offsets, i)
		w.values = append(w.values, vals[i])
	}
	if len(w.values) < 2 {
		return nil
	}
	return w
}

func lineSeries(name string, ts []time.Time, vals []float64, color drawing.Color, axis chart.YAxisType) chart.Series {
	return chart.TimeSeries{
		Name:    name,
		XValues: ts,
		YValues: vals,
		YAxis:   axis,
		Style: chart.Style{
			StrokeColor: color,
			StrokeWidth: 1.0,
		},
	}
}

func bandSeries(name string, ts []time.Time, vals []float64) chart.Series {
	return chart.TimeSeries{
		Name:    name,
		XValues: ts,
		YValues: vals,
		Style: chart.Style{
			StrokeColor:     drawing.ColorFromHex("95a5a6"),
			StrokeWidth:     1.0,
			StrokeDashArray: []float64{4, 2},
		},
	}
}
