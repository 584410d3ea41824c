package nwws

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/alertwx/internal/observability"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestConfigJIDs(t *testing.T) {
	cfg := Config{
		Username:     "alertwx",
		Domain:       "nwws-oi.weather.gov",
		Resource:     "nwws",
		RoomDomain:   "conference.nwws-oi.weather.gov",
		RoomNickname: "alertwx-abcd",
	}
	assert.Equal(t, "alertwx@nwws-oi.weather.gov/nwws", cfg.jid())
	assert.Equal(t, "nwws@conference.nwws-oi.weather.gov/alertwx-abcd", cfg.roomJID())
}

func TestRawProductFromExtensionDecodesEntitiesAndTrims(t *testing.T) {
	ext := MessageExtension{
		Text:    "WIND GUST TO 70 MPH &amp; HAIL",
		Cccc:    "KCLE",
		Ttaaii:  "WUUS53",
		Issue:   "2025-07-31T18:00:00Z",
		AwipsID: " SVRCLE ",
		ID:      "4821.117",
	}
	rp := rawProductFromExtension(ext)
	assert.Equal(t, "WIND GUST TO 70 MPH & HAIL", rp.Text)
	assert.Equal(t, "SVRCLE", rp.AWIPSID)
	assert.Equal(t, "KCLE", rp.Office)
	assert.Equal(t, "WUUS53", rp.TTAAII)
	assert.Equal(t, "4821.117", rp.MessageID)
}

func TestNicknameOfExtractsResourcePart(t *testing.T) {
	assert.Equal(t, "alertwx-abcd", nicknameOf("nwws@conference.nwws-oi.weather.gov/alertwx-abcd"))
	assert.Equal(t, "", nicknameOf("no-resource-here"))
}

func TestSleepOrDoneReturnsFalseOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepOrDone(ctx, time.Second))
}

func TestSleepOrDoneReturnsTrueAfterElapsed(t *testing.T) {
	assert.True(t, sleepOrDone(context.Background(), time.Millisecond))
}

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Config{}, func(RawProduct) {}, testLogger(), observability.NewMetricsForTesting())
	assert.Equal(t, 3*time.Second, c.cfg.ConnectTimeout)
	assert.Equal(t, "nwws", c.cfg.Resource)
}

func TestStopWithNoConnectionIsNoop(t *testing.T) {
	c := New(Config{}, func(RawProduct) {}, testLogger(), observability.NewMetricsForTesting())
	c.Stop()
}
