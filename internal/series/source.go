package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"quantengine/internal/metrics"
	"quantengine/internal/model"
)

// Cache is a read-through cache for whole fetched series. Lookup misses and
// cache errors are equivalent; the source just falls through to upstream.
type Cache interface {
	Get(ctx context.Context, symbol, interval string, start, end time.Time) (*model.Series, bool)
	Put(ctx context.Context, symbol, interval string, start, end time.Time, s *model.Series)
}

// Store persists fetched candles durably. Persistence failures are logged
// and do not fail the fetch.
type Store interface {
	SaveCandles(ctx context.Context, symbol, interval string, candles []model.Candle) error
}

// Source resolves series requests against the primary provider with
// automatic fallback to the secondary, fronted by an optional cache and
// backed by an optional durable store.
type Source struct {
	primary  Provider
	fallback Provider
	cache    Cache
	store    Store
	met      *metrics.Metrics
	log      *slog.Logger
}

// SourceOption configures optional source collaborators.
type SourceOption func(*Source)

func WithCache(c Cache) SourceOption              { return func(s *Source) { s.cache = c } }
func WithStore(st Store) SourceOption             { return func(s *Source) { s.store = st } }
func WithMetrics(m *metrics.Metrics) SourceOption { return func(s *Source) { s.met = m } }

// NewSource builds a source over a primary and a fallback provider.
func NewSource(primary, fallback Provider, logger *slog.Logger, opts ...SourceOption) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Source{primary: primary, fallback: fallback, log: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Fetch returns the series for [start, end]. The primary is tried first;
// a failing or refusing primary falls through to the secondary at a
// possibly coarser interval, with the result flagged Degraded. When both
// sides fail the error wraps model.ErrDataUnavailable together with both
// causes. Context cancellation aborts with no partial result.
func (s *Source) Fetch(ctx context.Context, symbol, interval string, start, end time.Time) (*model.Series, error) {
	if _, err := model.IntervalDuration(interval); err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, fmt.Errorf("invalid range: start %s not before end %s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	start, end = start.UTC(), end.UTC()

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, symbol, interval, start, end); ok {
			if s.met != nil {
				s.met.CacheHits.Inc()
				s.met.CandlesServed.Add(float64(len(cached.Candles)))
			}
			return cached, nil
		}
		if s.met != nil {
			s.met.CacheMisses.Inc()
		}
	}

	primarySeries, primaryErr := s.fetchFrom(ctx, s.primary, symbol, interval, start, end)
	if primaryErr == nil {
		s.finish(ctx, primarySeries, start, end)
		return primarySeries, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.log.Warn("primary provider failed, falling back",
		"provider", s.primary.Name(), "symbol", symbol, "interval", interval, "err", primaryErr)

	// The fallback serves daily requests at any span, but hourly ones only
	// up to its pivot; everything else takes the span's granularity.
	effective := interval
	if effective != "1d" {
		effective = EffectiveInterval(start, end)
	}
	fbSeries, fbErr := s.fetchFrom(ctx, s.fallback, symbol, effective, start, end)
	if fbErr == nil {
		fbSeries.Interval = interval
		fbSeries.EffectiveInterval = effective
		fbSeries.Degraded = true
		if s.met != nil {
			s.met.Fallbacks.Inc()
			if effective != interval {
				s.met.IntervalDowngrades.Inc()
			}
		}
		s.log.Info("served degraded series from fallback",
			"provider", s.fallback.Name(), "symbol", symbol,
			"requested_interval", interval, "effective_interval", effective,
			"candles", len(fbSeries.Candles))
		s.finish(ctx, fbSeries, start, end)
		return fbSeries, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return nil, fmt.Errorf("%w: %s %s..%s: primary %s: %v; fallback %s: %v",
		model.ErrDataUnavailable, symbol,
		start.Format(time.RFC3339), end.Format(time.RFC3339),
		s.primary.Name(), primaryErr, s.fallback.Name(), fbErr)
}

func (s *Source) fetchFrom(ctx context.Context, p Provider, symbol, interval string, start, end time.Time) (*model.Series, error) {
	began := time.Now()
	series, err := p.Fetch(ctx, symbol, interval, start, end)
	if s.met != nil {
		s.met.ProviderFetchDur.WithLabelValues(p.Name()).Observe(time.Since(began).Seconds())
		outcome := "ok"
		switch {
		case errors.Is(err, ErrUnsupported):
			outcome = "unsupported"
		case err != nil:
			outcome = "error"
		}
		s.met.ProviderRequests.WithLabelValues(p.Name(), outcome).Inc()
	}
	return series, err
}

// finish records serving metrics and writes through to cache and store.
func (s *Source) finish(ctx context.Context, series *model.Series, start, end time.Time) {
	if s.met != nil {
		s.met.CandlesServed.Add(float64(len(series.Candles)))
	}
	if s.cache != nil {
		s.cache.Put(ctx, series.Symbol, series.Interval, start, end, series)
	}
	if s.store != nil {
		began := time.Now()
		err := s.store.SaveCandles(ctx, series.Symbol, series.EffectiveInterval, series.Candles)
		if s.met != nil {
			s.met.StoreWriteDur.Observe(time.Since(began).Seconds())
		}
		if err != nil {
			if s.met != nil {
				s.met.StoreCommitErr.Inc()
			}
			s.log.Warn("candle persistence failed",
				"symbol", series.Symbol, "interval", series.EffectiveInterval, "err", err)
		}
	}
}
