// Package geometry resolves UGC zone and county codes to polygon boundaries
// fetched from the NWS API, backed by a TTL cache (including negative
// caching of "no geometry available" results) with at-most-one in-flight
// fetch per code and optional disk persistence across restarts.
package geometry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/alertwx/internal/domain"
	"github.com/couchcryptid/alertwx/internal/observability"
)

// Ring is one polygon ring as [lat, lon] pairs.
type Ring [][2]float64

// Fetcher retrieves raw GeoJSON geometry for a UGC zone or county code from
// an upstream source. Implemented by internal/adapter/nwsapi.
type Fetcher interface {
	FetchZoneGeometry(ctx context.Context, ugcCode string) (map[string]any, error)
	FetchCountyGeometry(ctx context.Context, ugcCode string) (map[string]any, error)
}

var zoneCodePattern = regexp.MustCompile(`^[A-Z]{2}([CZ])\d{3}$`)

func zoneType(ugcCode string) (byte, bool) {
	m := zoneCodePattern.FindStringSubmatch(ugcCode)
	if m == nil {
		return 0, false
	}
	return m[1][0], true
}

type cacheEntry struct {
	Geometry []Ring    `json:"geometry"`
	CachedAt time.Time `json:"cached_at"`
}

// Resolver is the zone geometry cache and fetch coordinator.
type Resolver struct {
	fetcher Fetcher
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	ttl  time.Duration
	path string

	mu      sync.Mutex
	entries map[string]cacheEntry

	group singleflight.Group
}

// New creates a Resolver. persistencePath may be empty to disable disk
// persistence entirely.
func New(fetcher Fetcher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, ttl time.Duration, persistencePath string) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
		ttl:     ttl,
		path:    persistencePath,
		entries: make(map[string]cacheEntry),
	}
}

// Resolve returns the cached or freshly fetched rings for a single UGC code.
// A nil, non-error result means no geometry is available for this code: the
// code is not a valid county/zone UGC, the upstream returned none, or the
// fetch failed (logged and counted). Each of these is negative-cached for
// the TTL.
func (r *Resolver) Resolve(ctx context.Context, ugcCode string) ([]Ring, error) {
	if rings, ok := r.lookup(ugcCode); ok {
		r.metrics.GeometryCacheHits.Inc()
		return rings, nil
	}
	r.metrics.GeometryCacheMisses.Inc()

	v, err, _ := r.group.Do(ugcCode, func() (any, error) {
		return r.fetchAndCache(ctx, ugcCode)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Ring), nil
}

func (r *Resolver) lookup(ugcCode string) ([]Ring, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[ugcCode]
	if !ok {
		return nil, false
	}
	if r.clock.Now().Sub(entry.CachedAt) >= r.ttl {
		return nil, false
	}
	return entry.Geometry, true
}

func (r *Resolver) store(ugcCode string, rings []Ring) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[ugcCode] = cacheEntry{Geometry: rings, CachedAt: r.clock.Now()}
}

func (r *Resolver) fetchAndCache(ctx context.Context, ugcCode string) ([]Ring, error) {
	kind, ok := zoneType(ugcCode)
	if !ok {
		r.logger.Debug("invalid UGC code format for geometry lookup", "ugc", ugcCode)
		r.store(ugcCode, nil)
		return nil, nil
	}

	start := r.clock.Now()
	var geojson map[string]any
	var err error
	if kind == 'Z' {
		geojson, err = r.fetcher.FetchZoneGeometry(ctx, ugcCode)
	} else {
		geojson, err = r.fetcher.FetchCountyGeometry(ctx, ugcCode)
	}
	r.metrics.GeometryFetchDuration.Observe(r.clock.Now().Sub(start).Seconds())

	if err != nil {
		r.metrics.GeometryFetchErrors.Inc()
		r.logger.Warn("error fetching zone geometry", "ugc", ugcCode, "err", err)
		r.store(ugcCode, nil)
		return nil, nil
	}
	if geojson == nil {
		r.store(ugcCode, nil)
		return nil, nil
	}

	rings := parseGeoJSON(geojson)
	r.store(ugcCode, rings)
	return rings, nil
}

func parseGeoJSON(geom map[string]any) []Ring {
	gtype, _ := geom["type"].(string)
	coords, _ := geom["coordinates"].([]any)
	if coords == nil {
		return nil
	}

	var rings []Ring
	switch gtype {
	case "Polygon":
		if len(coords) == 0 {
			return nil
		}
		if outer, ok := coords[0].([]any); ok {
			rings = append(rings, ringFromCoords(outer))
		}
	case "MultiPolygon":
		for _, poly := range coords {
			polyCoords, ok := poly.([]any)
			if !ok || len(polyCoords) == 0 {
				continue
			}
			if outer, ok := polyCoords[0].([]any); ok {
				rings = append(rings, ringFromCoords(outer))
			}
		}
	}
	if len(rings) == 0 {
		return nil
	}
	return rings
}

func ringFromCoords(raw []any) Ring {
	ring := make(Ring, 0, len(raw))
	for _, p := range raw {
		pair, ok := p.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		lon, ok1 := toFloat(pair[0])
		lat, ok2 := toFloat(pair[1])
		if !ok1 || !ok2 {
			continue
		}
		ring = append(ring, [2]float64{lat, lon})
	}
	return ring
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// Populate fetches geometry for every zone/county code in alert.AffectedAreas
// and concatenates the resulting rings onto alert.Polygon, bounded to at
// most maxConcurrent in-flight fetches. It is a no-op if alert already
// carries a polygon.
func (r *Resolver) Populate(ctx context.Context, alert *domain.Alert, maxConcurrent int) error {
	if len(alert.Polygon) > 0 || len(alert.AffectedAreas) == 0 {
		return nil
	}

	codes := make([]string, 0, len(alert.AffectedAreas))
	for _, code := range alert.AffectedAreas {
		if _, ok := zoneType(code); ok {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return nil
	}

	sem := make(chan struct{}, maxConcurrent)
	results := make([][]Ring, len(codes))
	errs := make([]error, len(codes))
	done := make(chan int, len(codes))

	for i, code := range codes {
		go func(i int, code string) {
			sem <- struct{}{}
			defer func() { <-sem }()
			rings, err := r.Resolve(ctx, code)
			results[i] = rings
			errs[i] = err
			done <- i
		}(i, code)
	}
	for range codes {
		<-done
	}

	var polygon [][][2]float64
	for i, rings := range results {
		if errs[i] != nil {
			r.logger.Warn("zone fetch failed during populate", "ugc", codes[i], "err", errs[i])
			continue
		}
		for _, ring := range rings {
			polygon = append(polygon, [][2]float64(ring))
		}
	}
	if len(polygon) > 0 {
		alert.Polygon = polygon
	}
	return nil
}

// Save persists the cache to disk as JSON. A no-op if no path was configured.
func (r *Resolver) Save() error {
	if r.path == "" {
		return nil
	}
	r.mu.Lock()
	snapshot := make(map[string]cacheEntry, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = v
	}
	r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("geometry: creating persistence dir: %w", err)
	}

	payload := struct {
		SavedAt time.Time             `json:"saved_at"`
		TTL     float64               `json:"cache_ttl_hours"`
		Entries map[string]cacheEntry `json:"entries"`
	}{
		SavedAt: r.clock.Now(),
		TTL:     r.ttl.Hours(),
		Entries: snapshot,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("geometry: marshaling cache: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("geometry: writing cache file: %w", err)
	}
	r.logger.Info("saved zone geometry cache", "entries", len(snapshot), "path", r.path)
	return nil
}

// Load restores the cache from disk, discarding entries already past TTL.
// Missing files are not an error.
func (r *Resolver) Load() (int, error) {
	if r.path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("geometry: reading cache file: %w", err)
	}

	var payload struct {
		Entries map[string]cacheEntry `json:"entries"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, fmt.Errorf("geometry: unmarshaling cache file: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	loaded := 0
	for ugcCode, entry := range payload.Entries {
		if now.Sub(entry.CachedAt) < r.ttl {
			r.entries[ugcCode] = entry
			loaded++
		}
	}
	r.logger.Info("loaded zone geometry cache", "entries", loaded, "path", r.path)
	return loaded, nil
}

// Stats reports cache population for observability endpoints.
type Stats struct {
	TotalEntries   int
	ValidEntries   int
	WithGeometry   int
	WithoutGeometry int
}

// CacheStats summarizes the current cache contents.
func (r *Resolver) CacheStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()

	var stats Stats
	stats.TotalEntries = len(r.entries)
	for _, entry := range r.entries {
		if now.Sub(entry.CachedAt) >= r.ttl {
			continue
		}
		stats.ValidEntries++
		if len(entry.Geometry) > 0 {
			stats.WithGeometry++
		} else {
			stats.WithoutGeometry++
		}
	}
	return stats
}
