package ugc

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

func TestParseLineExpandsRange(t *testing.T) {
	reference := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	parsed, err := ParseLine(testLogger(), "OHC049-041-061>065-201530-", reference)
	require.NoError(t, err)

	require.Len(t, parsed.Codes, 7)
	assert.Equal(t, Code{State: "OH", ZoneType: 'C', Number: 49}, parsed.Codes[0])
	assert.Equal(t, Code{State: "OH", ZoneType: 'C', Number: 41}, parsed.Codes[1])
	assert.Equal(t, Code{State: "OH", ZoneType: 'C', Number: 61}, parsed.Codes[2])
	assert.Equal(t, Code{State: "OH", ZoneType: 'C', Number: 65}, parsed.Codes[6])
}

func TestParseLineMultiStatePrefix(t *testing.T) {
	reference := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	parsed, err := ParseLine(testLogger(), "OHC049-INC001-201530-", reference)
	require.NoError(t, err)

	require.Len(t, parsed.Codes, 2)
	assert.Equal(t, Code{State: "OH", ZoneType: 'C', Number: 49}, parsed.Codes[0])
	assert.Equal(t, Code{State: "IN", ZoneType: 'C', Number: 1}, parsed.Codes[1])
}

func TestParseLineReversedRangeSwapped(t *testing.T) {
	reference := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	parsed, err := ParseLine(testLogger(), "TXC065>061-201530-", reference)
	require.NoError(t, err)
	require.Len(t, parsed.Codes, 5)
	assert.Equal(t, 61, parsed.Codes[0].Number)
	assert.Equal(t, 65, parsed.Codes[4].Number)
}

func TestParseLineExpirationRollsOverMonth(t *testing.T) {
	reference := time.Date(2026, 7, 31, 23, 0, 0, 0, time.UTC)
	parsed, err := ParseLine(testLogger(), "OHC049-010000-", reference)
	require.NoError(t, err)
	assert.Equal(t, time.August, parsed.Expiration.Month())
	assert.Equal(t, 1, parsed.Expiration.Day())
}

func TestCodeFIPSCountyOnly(t *testing.T) {
	county := Code{State: "OH", ZoneType: 'C', Number: 49}
	assert.Equal(t, "39049", county.FIPS())

	zone := Code{State: "OH", ZoneType: 'Z', Number: 49}
	assert.Equal(t, "", zone.FIPS())
}

func TestFilterByStates(t *testing.T) {
	codes := []Code{
		{State: "OH", ZoneType: 'C', Number: 1},
		{State: "IN", ZoneType: 'C', Number: 2},
	}
	filtered := FilterByStates(codes, []string{"oh"})
	require.Len(t, filtered, 1)
	assert.Equal(t, "OH", filtered[0].State)

	assert.Equal(t, codes, FilterByStates(codes, nil))
}

func TestJoinContinuationLines(t *testing.T) {
	lines := []string{"OHC049-041-", "061>065-", "201530-"}
	joined := JoinContinuationLines(lines)
	assert.Equal(t, "OHC049-041-061>065-201530-", joined)
}

func TestParseLineInvalidFormat(t *testing.T) {
	_, err := ParseLine(testLogger(), "not a ugc line", time.Now())
	assert.Error(t, err)
}
