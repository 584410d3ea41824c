package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/alertwx/internal/adapter/nwsapi"
	"github.com/couchcryptid/alertwx/internal/observability"
)

type fakeFetcher struct {
	features []nwsapi.ActiveAlertsFeature
	err      error
	calls    int
}

func (f *fakeFetcher) FetchActiveAlerts(ctx context.Context) ([]nwsapi.ActiveAlertsFeature, error) {
	f.calls++
	return f.features, f.err
}

func sampleFeature() nwsapi.ActiveAlertsFeature {
	return nwsapi.ActiveAlertsFeature{
		ID: "https://api.weather.gov/alerts/urn:oid:sample",
		Properties: map[string]any{
			"messageType": "Alert",
			"senderName":  "KCLE",
			"headline":    "Severe Thunderstorm Warning issued",
			"description": "WIND GUST TO 60 MPH AND QUARTER SIZE HAIL",
			"expires":     "2025-07-31T19:00:00Z",
			"parameters": map[string]any{
				"VTEC": []any{"/O.NEW.KCLE.SV.W.0042.250731T1800Z-250731T1900Z/"},
			},
			"geocode": map[string]any{
				"UGC": []any{"OHC035", "OHC041"},
			},
		},
	}
}

func TestConvertFeatureProducesParseableProduct(t *testing.T) {
	raw, ok := convertFeature(sampleFeature(), time.Now(), nil, nil)
	require.True(t, ok)
	assert.Equal(t, "api", raw.Source)
	assert.Contains(t, raw.Text, "/O.NEW.KCLE.SV.W.0042.250731T1800Z-250731T1900Z/")
	assert.Contains(t, raw.Text, "OHC035-OHC041-")
}

func TestConvertFeatureWithoutPropertiesIsRejected(t *testing.T) {
	_, ok := convertFeature(nwsapi.ActiveAlertsFeature{ID: "x"}, time.Now(), nil, nil)
	assert.False(t, ok)
}

func TestConvertFeatureFallsBackToEndsWhenNoExpires(t *testing.T) {
	f := sampleFeature()
	delete(f.Properties, "expires")
	f.Properties["ends"] = "2025-07-31T19:30:00Z"

	raw, ok := convertFeature(f, time.Now(), nil, nil)
	require.True(t, ok)
	assert.Contains(t, raw.Text, "OHC035-OHC041-")
}

func TestPollOnceAddsAlertToManager(t *testing.T) {
	clock := clockwork.NewFakeClock()
	processor, mgr := newTestProcessor(t, clock)
	fetcher := &fakeFetcher{features: []nwsapi.ActiveAlertsFeature{sampleFeature()}}

	p := NewPoller(fetcher, processor, clock, testLogger(), observability.NewMetricsForTesting(), time.Minute, nil, nil)

	require.NoError(t, p.pollOnce(context.Background()))
	assert.Equal(t, 1, mgr.Count())
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPollOnceSurfacesFetchError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	processor, _ := newTestProcessor(t, clock)
	fetcher := &fakeFetcher{err: assert.AnError}

	p := NewPoller(fetcher, processor, clock, testLogger(), observability.NewMetricsForTesting(), time.Minute, nil, nil)

	err := p.pollOnce(context.Background())
	require.Error(t, err)
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestRunPollsImmediatelyBeforeFirstTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	processor, mgr := newTestProcessor(t, clock)
	fetcher := &fakeFetcher{features: []nwsapi.ActiveAlertsFeature{sampleFeature()}}

	p := NewPoller(fetcher, processor, clock, testLogger(), observability.NewMetricsForTesting(), time.Minute, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	clock.BlockUntil(1)
	assert.Equal(t, 1, mgr.Count())
	assert.Equal(t, 1, fetcher.calls)

	cancel()
	<-done
}
