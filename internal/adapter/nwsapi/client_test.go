package nwsapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestFetchActiveAlertsSetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		json.NewEncoder(w).Encode(activeAlertsResponse{Features: []ActiveAlertsFeature{{ID: "alert-1"}}})
	}))
	defer srv.Close()

	c := New(srv.URL, "alertwx/test (test@example.com)", 5*time.Second, testLogger())
	features, err := c.FetchActiveAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "alertwx/test (test@example.com)", gotUA)
}

func TestDoWithRetryRetriesOn503(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(activeAlertsResponse{Features: []ActiveAlertsFeature{{ID: "ok"}}})
	}))
	defer srv.Close()

	c := New(srv.URL, "alertwx/test", 5*time.Second, testLogger())
	c.limiter.SetLimit(1000) // avoid real rate-limit delay inflating test time
	c.retryBaseDelay = time.Millisecond
	c.retryMaxDelay = 5 * time.Millisecond

	features, err := c.FetchActiveAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.EqualValues(t, 3, calls)
}

func TestDoWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "alertwx/test", 5*time.Second, testLogger())
	c.limiter.SetLimit(1000)
	c.retryBaseDelay = time.Millisecond
	c.retryMaxDelay = 5 * time.Millisecond

	_, err := c.FetchActiveAlerts(context.Background())
	assert.Error(t, err)
	assert.EqualValues(t, maxAttempts, calls)
}

func TestDoWithRetryDoesNotRetryOn404(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, "alertwx/test", 5*time.Second, testLogger())
	c.limiter.SetLimit(1000)

	_, err := c.FetchAlert(context.Background(), "missing")
	assert.Error(t, err)
	assert.EqualValues(t, 1, calls)
}

func TestFetchZoneGeometry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(zoneResponse{Geometry: map[string]any{"type": "Polygon"}})
	}))
	defer srv.Close()

	c := New(srv.URL, "alertwx/test", 5*time.Second, testLogger())
	c.limiter.SetLimit(1000)

	geom, err := c.FetchZoneGeometry(context.Background(), "OHZ049")
	require.NoError(t, err)
	assert.Equal(t, "Polygon", geom["type"])
}
