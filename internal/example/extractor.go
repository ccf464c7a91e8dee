// Package example selects recent signal occurrences and packages each with
// a forward-looking outcome and a rendered chart artifact.
package example

import (
	"fmt"
	"log"

	"quantengine/internal/metrics"
	"quantengine/internal/model"
	"quantengine/internal/rule"
)

// Renderer draws one signal bar in its indicator context.
type Renderer interface {
	Render(s *model.Series, idx int, sig model.Signal, ind *rule.IndicatorSet) ([]byte, error)
}

// ArtifactSink persists rendered bytes under a stable name and returns a
// reference the serving layer can resolve.
type ArtifactSink interface {
	Write(name string, data []byte) (ref string, err error)
}

// Extractor pairs a renderer with a sink.
type Extractor struct {
	renderer Renderer
	sink     ArtifactSink
	met      *metrics.Metrics
}

// New creates an extractor. Metrics may be nil.
func New(r Renderer, sink ArtifactSink, met *metrics.Metrics) *Extractor {
	return &Extractor{renderer: r, sink: sink, met: met}
}

// Select walks the combined signal backward and returns up to count
// examples for the most recent non-neutral bars, most recent first. The
// outcome is the fractional close-to-close change over lookaheadBars; it is
// nil when the window runs past the series end. An example whose render
// fails is dropped from the batch, not fatal to it.
func (e *Extractor) Select(s *model.Series, combined []model.Signal, ind *rule.IndicatorSet, count, lookaheadBars int) ([]model.Example, error) {
	if len(combined) != len(s.Candles) {
		return nil, fmt.Errorf("example: signal length %d does not match %d candles",
			len(combined), len(s.Candles))
	}
	if count <= 0 {
		return nil, nil
	}
	if lookaheadBars < 1 {
		lookaheadBars = 1
	}

	var picked []int
	for i := len(combined) - 1; i >= 0 && len(picked) < count; i-- {
		if combined[i] != model.SignalNeutral {
			picked = append(picked, i)
		}
	}

	examples := make([]model.Example, 0, len(picked))
	for _, idx := range picked {
		candle := s.Candles[idx]

		var outcome *float64
		if last := idx + lookaheadBars; last < len(s.Candles) && candle.Close != 0 {
			pct := (s.Candles[last].Close - candle.Close) / candle.Close
			outcome = &pct
		}

		png, err := e.renderer.Render(s, idx, combined[idx], ind)
		if err != nil {
			log.Printf("[example] render failed for %s@%s bar %d: %v",
				s.Symbol, s.EffectiveInterval, idx, err)
			if e.met != nil {
				e.met.RenderFailures.Inc()
			}
			continue
		}
		name := ArtifactName(s.Symbol, s.EffectiveInterval, candle.TS)
		ref, err := e.sink.Write(name, png)
		if err != nil {
			log.Printf("[example] artifact write failed for %s: %v", name, err)
			if e.met != nil {
				e.met.RenderFailures.Inc()
			}
			continue
		}

		examples = append(examples, model.Example{
			TS:         candle.TS,
			Signal:     combined[idx],
			OutcomePct: outcome,
			Artifact:   ref,
		})
		if e.met != nil {
			e.met.ExamplesExtracted.Inc()
		}
	}
	return examples, nil
}
