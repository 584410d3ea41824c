// Package alertmanager holds the active set of weather alerts, merges
// updates and cancellations, sweeps expired entries, and notifies
// consumers (the fan-out broker) of every transition in the order it
// occurred.
package alertmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/alertwx/internal/domain"
	"github.com/couchcryptid/alertwx/internal/observability"
)

// RecentProduct is a lightweight record of a recently-seen product, kept in
// a bounded ring buffer independent of the active set: a product can expire
// out of the active set and still remain in recent history.
type RecentProduct struct {
	ProductID  string     `json:"product_id"`
	EventName  string     `json:"event_name"`
	Headline   string     `json:"headline"`
	Source     string     `json:"source"`
	IssuedTime *time.Time `json:"issued_time,omitempty"`
}

// Statistics summarizes the active set for status/dashboard consumers.
type Statistics struct {
	TotalAlerts  int            `json:"total_alerts"`
	Warnings     int            `json:"warnings"`
	Watches      int            `json:"watches"`
	HighPriority int            `json:"high_priority"`
	ByPhenomenon map[string]int `json:"by_phenomenon"`
	BySource     map[string]int `json:"by_source"`
}

// Manager holds the active set of weather alerts, keyed by ProductID.
type Manager struct {
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	cleanupInterval time.Duration
	maxRecent       int
	persistencePath string

	mu     sync.Mutex
	alerts map[string]*domain.Alert
	recent []RecentProduct

	events chan domain.ManagerEvent
}

// New creates a Manager. persistencePath may be empty to disable disk
// persistence entirely.
func New(clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, cleanupInterval time.Duration, maxRecent int, persistencePath string) *Manager {
	return &Manager{
		clock:           clock,
		logger:          logger,
		metrics:         metrics,
		cleanupInterval: cleanupInterval,
		maxRecent:       maxRecent,
		persistencePath: persistencePath,
		alerts:          make(map[string]*domain.Alert),
		events:          make(chan domain.ManagerEvent, 256),
	}
}

// Events returns the channel of state-transition notifications, delivered in
// the order mutations occurred. Consumers must keep draining it; a full
// buffer backpressures Add/Remove/Sweep.
func (m *Manager) Events() <-chan domain.ManagerEvent {
	return m.events
}

// Run periodically sweeps expired alerts until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.Sweep()
		}
	}
}

// Add applies an incoming alert to the active set. A brand-new ProductID is
// inserted; a known ProductID is merged via Alert.MarkUpdated; a
// cancellation for a known ProductID removes it, and a cancellation for an
// unknown one is silently dropped. Reports whether the active set changed.
func (m *Manager) Add(alert domain.Alert) bool {
	if alert.ProductID == "" {
		m.logger.Warn("refusing to add alert without product_id")
		return false
	}

	now := m.clock.Now()

	m.mu.Lock()
	existing, known := m.alerts[alert.ProductID]

	var event *domain.ManagerEvent
	var op string

	switch {
	case known && alert.Status == domain.StatusCancelled:
		delete(m.alerts, alert.ProductID)
		existing.MarkCancelled()
		snapshot := *existing
		event = &domain.ManagerEvent{Kind: domain.EventRemoved, Alert: snapshot, Reason: "cancelled"}
		op = "removed"

	case known:
		existing.MarkUpdated(alert, now)
		snapshot := *existing
		event = &domain.ManagerEvent{Kind: domain.EventUpdated, Alert: snapshot}
		op = "updated"

	case alert.Status == domain.StatusCancelled:
		m.mu.Unlock()
		m.logger.Debug("ignoring cancellation for unknown alert", "product_id", alert.ProductID)
		return false

	default:
		stored := alert
		stored.LastUpdated = now
		m.alerts[alert.ProductID] = &stored
		m.pushRecentLocked(RecentProduct{
			ProductID:  stored.ProductID,
			EventName:  stored.EventName,
			Headline:   stored.Headline,
			Source:     stored.Source,
			IssuedTime: stored.IssuedTime,
		})
		event = &domain.ManagerEvent{Kind: domain.EventAdded, Alert: stored}
		op = "added"
	}

	activeCount := len(m.alerts)
	m.mu.Unlock()

	m.metrics.AlertManagerOps.WithLabelValues(op).Inc()
	m.metrics.ActiveAlerts.Set(float64(activeCount))
	if event != nil {
		m.events <- *event
	}
	m.logger.Info("alert manager mutation", "op", op, "product_id", alert.ProductID)
	return true
}

// Remove manually deletes an alert from the active set, e.g. an operator
// action rather than a parsed cancellation.
func (m *Manager) Remove(productID, reason string) bool {
	m.mu.Lock()
	alert, ok := m.alerts[productID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.alerts, productID)
	alert.MarkCancelled()
	snapshot := *alert
	activeCount := len(m.alerts)
	m.mu.Unlock()

	m.metrics.AlertManagerOps.WithLabelValues("removed").Inc()
	m.metrics.ActiveAlerts.Set(float64(activeCount))
	m.events <- domain.ManagerEvent{Kind: domain.EventRemoved, Alert: snapshot, Reason: reason}
	m.logger.Info("alert manager removal", "product_id", productID, "reason", reason)
	return true
}

// Sweep removes every alert whose expiration has passed and returns the
// count removed.
func (m *Manager) Sweep() int {
	now := m.clock.Now()

	m.mu.Lock()
	var removed []domain.Alert
	for id, alert := range m.alerts {
		if alert.IsExpired(now) {
			alert.MarkExpired()
			removed = append(removed, *alert)
			delete(m.alerts, id)
		}
	}
	activeCount := len(m.alerts)
	m.mu.Unlock()

	if len(removed) == 0 {
		return 0
	}

	m.metrics.ActiveAlerts.Set(float64(activeCount))
	for _, alert := range removed {
		m.metrics.AlertManagerOps.WithLabelValues("expired").Inc()
		m.events <- domain.ManagerEvent{Kind: domain.EventRemoved, Alert: alert, Reason: "expired"}
	}
	m.logger.Info("expired alerts swept", "count", len(removed))
	return len(removed)
}

func (m *Manager) pushRecentLocked(rp RecentProduct) {
	m.recent = append([]RecentProduct{rp}, m.recent...)
	if len(m.recent) > m.maxRecent {
		m.recent = m.recent[:m.maxRecent]
	}
}

// Get returns a single alert by ProductID.
func (m *Manager) Get(productID string) (domain.Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[productID]
	if !ok {
		return domain.Alert{}, false
	}
	return *a, true
}

// All returns every active alert in arbitrary order.
func (m *Manager) All() []domain.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		out = append(out, *a)
	}
	return out
}

// AllSorted returns every active alert ordered by domain.SortByPriority.
func (m *Manager) AllSorted() []domain.Alert {
	out := m.All()
	domain.SortByPriority(out)
	return out
}

// ByPhenomenon returns active alerts matching a 2-3 letter phenomenon code.
func (m *Manager) ByPhenomenon(phenomenon string) []domain.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Alert
	for _, a := range m.alerts {
		if a.Phenomenon == phenomenon {
			out = append(out, *a)
		}
	}
	return out
}

// ByState returns active alerts with at least one affected-area UGC code
// beginning with the given two-letter state abbreviation.
func (m *Manager) ByState(state string) []domain.Alert {
	state = strings.ToUpper(state)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Alert
	for _, a := range m.alerts {
		for _, ugc := range a.AffectedAreas {
			if strings.HasPrefix(ugc, state) {
				out = append(out, *a)
				break
			}
		}
	}
	return out
}

// Count returns the number of alerts currently in the active set.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.alerts)
}

// CountsByPhenomenon groups the active set by phenomenon code.
func (m *Manager) CountsByPhenomenon() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, a := range m.alerts {
		key := a.Phenomenon
		if key == "" {
			key = "UNKNOWN"
		}
		counts[key]++
	}
	return counts
}

// RecentProducts returns up to limit recent products, newest first. limit<=0
// returns everything retained.
func (m *Manager) RecentProducts(limit int) []RecentProduct {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.recent) {
		limit = len(m.recent)
	}
	out := make([]RecentProduct, limit)
	copy(out, m.recent[:limit])
	return out
}

// Statistics summarizes the active set.
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Statistics{
		ByPhenomenon: make(map[string]int),
		BySource:     make(map[string]int),
	}
	for _, a := range m.alerts {
		stats.TotalAlerts++
		if a.IsWarning() {
			stats.Warnings++
		}
		if a.IsWatch() {
			stats.Watches++
		}
		if a.IsHighPriority() {
			stats.HighPriority++
		}
		key := a.Phenomenon
		if key == "" {
			key = "UNKNOWN"
		}
		stats.ByPhenomenon[key]++
		src := a.Source
		if src == "" {
			src = "unknown"
		}
		stats.BySource[src]++
	}
	return stats
}

// ClearAll removes every alert without emitting per-alert removal events,
// and returns the number removed.
func (m *Manager) ClearAll() int {
	m.mu.Lock()
	count := len(m.alerts)
	m.alerts = make(map[string]*domain.Alert)
	m.recent = nil
	m.mu.Unlock()
	m.metrics.ActiveAlerts.Set(0)
	m.logger.Info("cleared all alerts", "count", count)
	return count
}

// Save persists the active set to disk as JSON. A no-op if no path was
// configured.
func (m *Manager) Save() error {
	if m.persistencePath == "" {
		return nil
	}

	m.mu.Lock()
	alerts := make([]domain.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		alerts = append(alerts, *a)
	}
	m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.persistencePath), 0o755); err != nil {
		return fmt.Errorf("alertmanager: creating persistence dir: %w", err)
	}

	payload := struct {
		SavedAt    time.Time      `json:"saved_at"`
		AlertCount int            `json:"alert_count"`
		Alerts     []domain.Alert `json:"alerts"`
	}{
		SavedAt:    m.clock.Now(),
		AlertCount: len(alerts),
		Alerts:     alerts,
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("alertmanager: marshaling alerts: %w", err)
	}
	if err := os.WriteFile(m.persistencePath, data, 0o644); err != nil {
		return fmt.Errorf("alertmanager: writing persistence file: %w", err)
	}
	m.logger.Info("saved active alerts", "count", len(alerts), "path", m.persistencePath)
	return nil
}

// Load restores the active set from disk, discarding entries already past
// expiration. Missing files are not an error.
func (m *Manager) Load() (int, error) {
	if m.persistencePath == "" {
		return 0, nil
	}
	data, err := os.ReadFile(m.persistencePath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("alertmanager: reading persistence file: %w", err)
	}

	var payload struct {
		Alerts []domain.Alert `json:"alerts"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, fmt.Errorf("alertmanager: unmarshaling persistence file: %w", err)
	}

	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	loaded := 0
	for _, alert := range payload.Alerts {
		if alert.IsExpired(now) {
			continue
		}
		a := alert
		m.alerts[a.ProductID] = &a
		loaded++
	}
	m.metrics.ActiveAlerts.Set(float64(len(m.alerts)))
	m.logger.Info("loaded active alerts", "count", loaded, "path", m.persistencePath)
	return loaded, nil
}
