package wxtime

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestParseVTECTimestampBasic(t *testing.T) {
	logger := testLogger()
	dt, ok, err := ParseVTECTimestamp(logger, "250731T1800Z")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 7, 31, 18, 0, 0, 0, time.UTC), dt)
}

func TestParseVTECTimestampUndefined(t *testing.T) {
	logger := testLogger()
	dt, ok, err := ParseVTECTimestamp(logger, "000000T0000Z")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, dt.IsZero())
}

func TestParseVTECTimestampPre1971Rejected(t *testing.T) {
	logger := testLogger()
	_, ok, err := ParseVTECTimestamp(logger, "700101T0000Z")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestParseVTECTimestampYearRollover(t *testing.T) {
	logger := testLogger()
	dt, ok, err := ParseVTECTimestamp(logger, "710101T0000Z")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1971, dt.Year())
}

func TestParseISOTimestamp(t *testing.T) {
	dt, err := ParseISOTimestamp("2025-01-20T15:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2025, dt.Year())

	dt2, err := ParseISOTimestamp("2025-01-20T15:30:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, 20, dt2.In(time.UTC).Day())
}

func TestParseISOTimestampInvalid(t *testing.T) {
	_, err := ParseISOTimestamp("not a timestamp")
	assert.Error(t, err)
}

func TestParseNWWSTimestamp(t *testing.T) {
	logger := testLogger()
	text := "339 PM CDT Mon Aug 8 2022\nSome more text after"
	dt, ok := ParseNWWSTimestamp(logger, text)
	require.True(t, ok)
	assert.Equal(t, 2022, dt.Year())
	assert.Equal(t, time.August, dt.Month())
	assert.Equal(t, 8, dt.Day())
	assert.Equal(t, 15, dt.Hour())
	assert.Equal(t, 39, dt.Minute())
}

func TestParseTextTimeRollsOverToNextDay(t *testing.T) {
	logger := testLogger()
	reference := time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC)
	result, err := ParseTextTime(logger, "100", "AM", "UTC", reference)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Day())
	assert.Equal(t, time.August, result.Month())
}

func TestParseTextTimeNoonMidnight(t *testing.T) {
	logger := testLogger()
	reference := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	noon, err := ParseTextTime(logger, "1200", "PM", "UTC", reference)
	require.NoError(t, err)
	assert.Equal(t, 12, noon.Hour())

	midnight, err := ParseTextTime(logger, "1200", "AM", "UTC", reference)
	require.NoError(t, err)
	assert.Equal(t, 0, midnight.Hour())
}

func TestTimezoneForWFOStripsKPrefix(t *testing.T) {
	logger := testLogger()
	loc, err := TimezoneForWFO(logger, "KCLE")
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestTimezoneForWFOUnrecognized(t *testing.T) {
	logger := testLogger()
	_, err := TimezoneForWFO(logger, "ZZZ")
	assert.Error(t, err)
}
