package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/alertwx/internal/adapter/nwsapi"
	"github.com/couchcryptid/alertwx/internal/observability"
	"github.com/couchcryptid/alertwx/internal/wx/alertparse"
)

// AlertFetcher lists currently active alerts. Implemented by
// *nwsapi.Client.
type AlertFetcher interface {
	FetchActiveAlerts(ctx context.Context) ([]nwsapi.ActiveAlertsFeature, error)
}

// Poller periodically lists active alerts from the NWS REST API and feeds
// them through a Processor, the redundant feed alongside the NWWS stream.
type Poller struct {
	fetcher         AlertFetcher
	processor       *Processor
	clock           clockwork.Clock
	logger          *slog.Logger
	metrics         *observability.Metrics
	interval        time.Duration
	filterStates    []string
	targetPhenomena []string
	ready           atomic.Bool
}

// NewPoller creates a Poller. interval is the time between poll cycles.
func NewPoller(fetcher AlertFetcher, processor *Processor, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, interval time.Duration, filterStates, targetPhenomena []string) *Poller {
	return &Poller{
		fetcher:         fetcher,
		processor:       processor,
		clock:           clock,
		logger:          logger,
		metrics:         metrics,
		interval:        interval,
		filterStates:    filterStates,
		targetPhenomena: targetPhenomena,
	}
}

// CheckReadiness returns nil once the poller has completed at least one
// cycle without error.
func (p *Poller) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("rest poller has not completed a poll cycle yet")
	}
	return nil
}

// Run ticks every interval until ctx is cancelled, running one poll cycle
// per tick. The first cycle runs immediately rather than waiting a full
// interval.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("rest poller started", "interval", p.interval)

	if err := p.pollOnce(ctx); err != nil {
		p.logger.Error("poll cycle failed", "err", err)
	}

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("rest poller stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			if err := p.pollOnce(ctx); err != nil {
				p.logger.Error("poll cycle failed", "err", err)
			}
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) error {
	start := p.clock.Now()
	features, err := p.fetcher.FetchActiveAlerts(ctx)
	p.metrics.APIPollDuration.Observe(p.clock.Now().Sub(start).Seconds())
	if err != nil {
		p.metrics.APIPollErrors.Inc()
		return fmt.Errorf("pipeline: fetch active alerts: %w", err)
	}

	now := p.clock.Now()
	for _, f := range features {
		if contextDone(ctx) {
			return nil
		}
		raw, ok := convertFeature(f, now, p.filterStates, p.targetPhenomena)
		if !ok {
			continue
		}
		if err := p.processor.Process(ctx, raw); err != nil {
			p.logger.Warn("failed to process polled alert", "id", f.ID, "err", err)
		}
	}

	p.ready.Store(true)
	return nil
}

// convertFeature normalizes one NWS API GeoJSON alert feature into the
// parser façade's common input shape: the raw P-VTEC strings and UGC
// geocode from its properties stand in for the lines a text bulletin would
// carry, and the feature's own geometry supplies the polygon the façade
// would otherwise extract from a LAT...LON block.
func convertFeature(f nwsapi.ActiveAlertsFeature, now time.Time, filterStates, targetPhenomena []string) (alertparse.RawProduct, bool) {
	props := f.Properties
	if props == nil {
		return alertparse.RawProduct{}, false
	}

	text := buildSyntheticText(props)
	if text == "" {
		return alertparse.RawProduct{}, false
	}

	return alertparse.RawProduct{
		Text:            text,
		MessageID:       f.ID,
		AWIPSID:         stringField(props, "messageType"),
		Office:          stringField(props, "senderName"),
		Source:          "api",
		ParsedAt:        now,
		GeoJSONGeometry: f.Geometry,
		FilterStates:    filterStates,
		TargetPhenomena: targetPhenomena,
	}, true
}

// buildSyntheticText assembles the minimal text the parser façade's regexes
// need: one line per P-VTEC string, then the UGC header line, then the
// free-text headline, description and instruction the façade falls back to
// when no VTEC is present.
func buildSyntheticText(props map[string]any) string {
	var out string

	for _, v := range stringSlice(props["parameters"], "VTEC") {
		out += v + "\n"
	}

	if ugcLine := buildUGCLine(props); ugcLine != "" {
		out += ugcLine + "\n"
	}

	if headline := stringField(props, "headline"); headline != "" {
		out += headline + "\n"
	}
	if description := stringField(props, "description"); description != "" {
		out += description + "\n"
	}
	if instruction := stringField(props, "instruction"); instruction != "" {
		out += instruction + "\n"
	}

	return out
}

// buildUGCLine reconstructs a UGC header line ("OHC049-TXC001-DDHHMM-") from
// the feature's geocode.UGC list and its expires timestamp, each zone
// written out in full so the decoder doesn't need range-compressed tokens.
func buildUGCLine(props map[string]any) string {
	codes := stringSlice(props["geocode"], "UGC")
	if len(codes) == 0 {
		return ""
	}

	expires, ok := parseTimeField(props, "expires")
	if !ok {
		expires, ok = parseTimeField(props, "ends")
	}
	if !ok {
		return ""
	}

	stamp := expires.UTC().Format("021504")
	line := ""
	for _, c := range codes {
		line += c + "-"
	}
	return line + stamp + "-"
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func parseTimeField(m map[string]any, key string) (time.Time, bool) {
	s, ok := m[key].(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func stringSlice(container any, key string) []string {
	m, ok := container.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
