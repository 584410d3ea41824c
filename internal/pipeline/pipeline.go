// Package pipeline fuses the parser façade and the alert manager into the
// single processing step both ingest paths (the pushed NWWS stream and the
// polled REST feed) share, and drives the REST side's poll loop.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/alertwx/internal/alertmanager"
	"github.com/couchcryptid/alertwx/internal/domain"
	"github.com/couchcryptid/alertwx/internal/observability"
	"github.com/couchcryptid/alertwx/internal/wx/alertparse"
)

// GeometryPopulator fills in a polygon for alerts that arrived with only a
// list of affected zone/county codes and no LAT...LON block or GeoJSON
// geometry of their own. Implemented by *geometry.Resolver.
type GeometryPopulator interface {
	Populate(ctx context.Context, alert *domain.Alert, maxConcurrent int) error
}

// Processor runs one raw product through the parser façade and, on success,
// into the alert manager's active set. Both the NWWS client's per-message
// handler and the REST poller's per-feature loop call Process.
type Processor struct {
	manager          *alertmanager.Manager
	geometry         GeometryPopulator
	maxGeometryFetch int
	logger           *slog.Logger
	metrics          *observability.Metrics
}

// NewProcessor creates a Processor over the given alert manager. geometry may
// be nil to skip polygon backfill entirely.
func NewProcessor(manager *alertmanager.Manager, geo GeometryPopulator, maxGeometryFetch int, logger *slog.Logger, metrics *observability.Metrics) *Processor {
	return &Processor{
		manager:          manager,
		geometry:         geo,
		maxGeometryFetch: maxGeometryFetch,
		logger:           logger,
		metrics:          metrics,
	}
}

// Process parses raw and, if it yields an alert, backfills its polygon from
// zone geometry when needed and adds it to the active set. A deliberate
// rejection is not an error: it is logged at debug level and counted by
// reason.
func (p *Processor) Process(ctx context.Context, raw alertparse.RawProduct) error {
	result, ok, reason, err := alertparse.Parse(p.logger, raw)
	if err != nil {
		return err
	}
	if !ok {
		p.metrics.AlertsRejected.WithLabelValues(string(reason)).Inc()
		p.logger.Debug("product rejected", "reason", reason, "source", raw.Source, "awips_id", raw.AWIPSID)
		return nil
	}

	if p.geometry != nil {
		if err := p.geometry.Populate(ctx, &result.Alert, p.maxGeometryFetch); err != nil {
			p.logger.Warn("geometry backfill failed", "product_id", result.Alert.ProductID, "err", err)
		}
	}

	p.metrics.AlertsParsed.WithLabelValues(raw.Source).Inc()
	p.manager.Add(result.Alert)
	return nil
}

// contextDone is a small helper so callers can bail out of a batch loop
// without importing context in every caller just to check cancellation.
func contextDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
