package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/alertwx/internal/alertmanager"
	"github.com/couchcryptid/alertwx/internal/domain"
	"github.com/couchcryptid/alertwx/internal/observability"
	"github.com/couchcryptid/alertwx/internal/wx/alertparse"
)

type fakeGeometryPopulator struct {
	calls int
	ring  [][2]float64
}

func (f *fakeGeometryPopulator) Populate(ctx context.Context, alert *domain.Alert, maxConcurrent int) error {
	f.calls++
	if f.ring != nil {
		alert.Polygon = [][][2]float64{f.ring}
	}
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newTestProcessor(t *testing.T, clock clockwork.Clock) (*Processor, *alertmanager.Manager) {
	t.Helper()
	mgr := alertmanager.New(clock, testLogger(), observability.NewMetricsForTesting(), time.Minute, 50, "")
	return NewProcessor(mgr, nil, 10, testLogger(), observability.NewMetricsForTesting()), mgr
}

const sampleBulletin = "OHC035-041-201900-\n" +
	"/O.NEW.KCLE.SV.W.0042.250731T1800Z-250731T1900Z/\n" +
	"SEVERE THUNDERSTORM WARNING\n" +
	"WIND GUST TO 60 MPH AND QUARTER SIZE HAIL\n"

func TestProcessAddsParseableProductToManager(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p, mgr := newTestProcessor(t, clock)

	err := p.Process(context.Background(), alertparse.RawProduct{
		Text:      sampleBulletin,
		MessageID: "1.1",
		AWIPSID:   "SVRCLE",
		Office:    "KCLE",
		Source:    "nwws",
		ParsedAt:  clock.Now(),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, mgr.Count())
}

func TestProcessRejectsInformationalHeaderWithoutError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p, mgr := newTestProcessor(t, clock)

	err := p.Process(context.Background(), alertparse.RawProduct{
		Text:     "HOURLY WEATHER ROUNDUP",
		AWIPSID:  "HWO",
		Source:   "nwws",
		ParsedAt: clock.Now(),
	})

	require.NoError(t, err)
	assert.Equal(t, 0, mgr.Count())
}

func TestProcessBackfillsPolygonViaGeometryPopulator(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mgr := alertmanager.New(clock, testLogger(), observability.NewMetricsForTesting(), time.Minute, 50, "")
	geo := &fakeGeometryPopulator{ring: [][2]float64{{41.5, -81.7}, {41.6, -81.6}, {41.5, -81.6}, {41.5, -81.7}}}
	p := NewProcessor(mgr, geo, 10, testLogger(), observability.NewMetricsForTesting())

	err := p.Process(context.Background(), alertparse.RawProduct{
		Text:      sampleBulletin,
		MessageID: "1.1",
		AWIPSID:   "SVRCLE",
		Office:    "KCLE",
		Source:    "nwws",
		ParsedAt:  clock.Now(),
	})

	require.NoError(t, err)
	require.Equal(t, 1, geo.calls)
	alert, ok := mgr.Get("SV.CLE.0042")
	require.True(t, ok)
	assert.NotEmpty(t, alert.Polygon)
}
