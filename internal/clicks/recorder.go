// Package clicks builds click events and appends them to a link's history.
package clicks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joshdurbin/shortlinks/internal/domain"
	"github.com/joshdurbin/shortlinks/internal/geo"
	"github.com/joshdurbin/shortlinks/internal/metrics"
)

// DefaultGeoTimeout bounds a single geolocation lookup
const DefaultGeoTimeout = 2 * time.Second

// Appender is the part of the link store the recorder writes to
type Appender interface {
	AppendClick(ctx context.Context, code string, event domain.ClickEvent) error
}

// Recorder enriches clicks with geolocation and appends them to the store.
// The lookup runs before the store is touched, so no store lock is held
// while waiting on it. Stamping and appending happen under appendMu, so a
// code's history is ordered by timestamp.
type Recorder struct {
	appendMu sync.Mutex

	appender   Appender
	locator    geo.Locator
	geoTimeout time.Duration
	now        func() time.Time
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewRecorder creates a recorder. A nil locator disables geolocation and a
// non-positive timeout selects DefaultGeoTimeout.
func NewRecorder(appender Appender, locator geo.Locator, geoTimeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Recorder {
	if locator == nil {
		locator = geo.Noop{}
	}
	if geoTimeout <= 0 {
		geoTimeout = DefaultGeoTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		appender:   appender,
		locator:    locator,
		geoTimeout: geoTimeout,
		now:        time.Now,
		metrics:    m,
		logger:     logger.With("component", "click_recorder"),
	}
}

// WithClock replaces the time source (for testing)
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.now = now
	return r
}

// Record appends a click for code. An empty referrer is stored as absent.
// Geolocation failures never fail the call; only the append can.
func (r *Recorder) Record(ctx context.Context, code, clientAddr, referrer string) error {
	event := domain.ClickEvent{
		Geo: r.locate(ctx, clientAddr),
	}
	if referrer != "" {
		event.Referrer = &referrer
	}

	// The redirect is already decided; a client hanging up must not drop the click
	err := r.appendStamped(context.WithoutCancel(ctx), code, event)
	r.metrics.ObserveClick(err)
	if err != nil {
		return fmt.Errorf("failed to append click for %s: %w", code, err)
	}
	return nil
}

// appendStamped takes the timestamp and appends in one step, after any slow lookup
func (r *Recorder) appendStamped(ctx context.Context, code string, event domain.ClickEvent) error {
	r.appendMu.Lock()
	defer r.appendMu.Unlock()

	event.Timestamp = r.now()
	return r.appender.AppendClick(ctx, code, event)
}

// locate resolves addr within the configured timeout, degrading to an empty Geo
func (r *Recorder) locate(ctx context.Context, addr string) domain.Geo {
	ctx, cancel := context.WithTimeout(ctx, r.geoTimeout)
	defer cancel()

	type result struct {
		geo domain.Geo
		err error
	}
	done := make(chan result, 1)
	start := time.Now()

	go func() {
		g, err := r.locator.Locate(ctx, addr)
		done <- result{geo: g, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	elapsed := time.Since(start)

	switch {
	case res.err == nil:
		r.metrics.ObserveGeoLookup(metrics.GeoHit, elapsed)
		return res.geo
	case errors.Is(res.err, geo.ErrNoData):
		r.metrics.ObserveGeoLookup(metrics.GeoMiss, elapsed)
	default:
		r.metrics.ObserveGeoLookup(metrics.GeoError, elapsed)
		r.logger.Debug("geolocation lookup failed", "addr", addr, "error", res.err)
	}
	return domain.Geo{}
}
