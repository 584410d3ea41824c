package broker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/couchcryptid/alertwx/internal/alertmanager"
	"github.com/couchcryptid/alertwx/internal/domain"
	"github.com/couchcryptid/alertwx/internal/observability"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newTestBroker(t *testing.T, clock clockwork.Clock) (*Broker, *alertmanager.Manager) {
	t.Helper()
	mgr := alertmanager.New(clock, testLogger(), observability.NewMetricsForTesting(), time.Minute, 50, "")
	b := New(mgr, clock, testLogger(), observability.NewMetricsForTesting())
	return b, mgr
}

func readEnvelope(t *testing.T, ch <-chan []byte) outboundEnvelope {
	t.Helper()
	select {
	case payload := <-ch:
		var env outboundEnvelope
		require.NoError(t, json.Unmarshal(payload, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broker message")
		return outboundEnvelope{}
	}
}

func TestDispatchEventDeliversToMatchingTopicFilter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b, _ := newTestBroker(t, clock)

	sess := domain.NewSubscriberSession("s1", clock.Now())
	sess.Subscribe("SV")
	cl := &client{session: sess, send: make(chan []byte, 4)}
	b.clients["s1"] = cl

	b.dispatchEvent(domain.ManagerEvent{Kind: domain.EventAdded, Alert: domain.Alert{ProductID: "a", Phenomenon: "SV"}})

	env := readEnvelope(t, cl.send)
	assert.Equal(t, string(TypeAlertNew), env.Type)
}

func TestDispatchEventSkipsNonMatchingTopicFilter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b, _ := newTestBroker(t, clock)

	sess := domain.NewSubscriberSession("s1", clock.Now())
	sess.Subscribe("TO")
	cl := &client{session: sess, send: make(chan []byte, 4)}
	b.clients["s1"] = cl

	b.dispatchEvent(domain.ManagerEvent{Kind: domain.EventAdded, Alert: domain.Alert{ProductID: "a", Phenomenon: "SV"}})

	select {
	case <-cl.send:
		t.Fatal("did not expect a message for a filtered-out topic")
	default:
	}
}

func TestDispatchEventRemovedCarriesReason(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b, _ := newTestBroker(t, clock)

	sess := domain.NewSubscriberSession("s1", clock.Now())
	cl := &client{session: sess, send: make(chan []byte, 4)}
	b.clients["s1"] = cl

	b.dispatchEvent(domain.ManagerEvent{Kind: domain.EventRemoved, Alert: domain.Alert{ProductID: "a"}, Reason: "expired"})

	env := readEnvelope(t, cl.send)
	assert.Equal(t, string(TypeAlertRemove), env.Type)
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "expired", data["reason"])
}

func TestHandleSubscribeNarrowsSessionFilter(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b, _ := newTestBroker(t, clock)
	sess := domain.NewSubscriberSession("s1", clock.Now())

	handleSubscribe(context.Background(), b, sess, json.RawMessage(`{"topics":["TO","SV"]}`))

	assert.True(t, sess.WantsTopic("TO"))
	assert.True(t, sess.WantsTopic("SV"))
	assert.False(t, sess.WantsTopic("FF"))
}

func TestHandleUnsubscribeRemovesTopic(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b, _ := newTestBroker(t, clock)
	sess := domain.NewSubscriberSession("s1", clock.Now())
	sess.Subscribe("TO", "SV")

	handleUnsubscribe(context.Background(), b, sess, json.RawMessage(`{"topics":["SV"]}`))

	assert.True(t, sess.WantsTopic("TO"))
	assert.False(t, sess.WantsTopic("SV"))
}

func TestHandlePingTouchesSessionAndRepliesPong(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b, _ := newTestBroker(t, clock)
	sess := domain.NewSubscriberSession("s1", clock.Now())
	cl := &client{session: sess, send: make(chan []byte, 4)}
	b.clients["s1"] = cl

	clock.Advance(time.Minute)
	handlePing(context.Background(), b, sess, nil)

	assert.Equal(t, clock.Now(), sess.LastPingAt)
	env := readEnvelope(t, cl.send)
	assert.Equal(t, string(TypePong), env.Type)
}

func TestHandleGetStatusReportsConnectedClients(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b, _ := newTestBroker(t, clock)
	sess := domain.NewSubscriberSession("s1", clock.Now())
	cl := &client{session: sess, send: make(chan []byte, 4)}
	b.clients["s1"] = cl

	handleGetStatus(context.Background(), b, sess, nil)

	env := readEnvelope(t, cl.send)
	assert.Equal(t, string(TypeSystemStatus), env.Type)
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, data["connected_clients"])
}

func TestUnknownInboundTypeSendsError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b, _ := newTestBroker(t, clock)
	sess := domain.NewSubscriberSession("s1", clock.Now())
	cl := &client{session: sess, send: make(chan []byte, 4)}
	b.clients["s1"] = cl

	b.handleInbound(context.Background(), cl, []byte(`{"type":"chaser_position_update","data":{}}`))

	env := readEnvelope(t, cl.send)
	assert.Equal(t, string(TypeError), env.Type)
}

func TestServeHTTPConnectSequence(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b, mgr := newTestBroker(t, clock)
	mgr.Add(domain.Alert{ProductID: "SV.CLE.0042", EventName: "Severe Thunderstorm Warning", Status: domain.StatusActive})
	<-mgr.Events()

	srv := httptest.NewServer(b)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, ackPayload, err := conn.Read(ctx)
	require.NoError(t, err)
	var ack outboundEnvelope
	require.NoError(t, json.Unmarshal(ackPayload, &ack))
	assert.Equal(t, string(TypeConnectionAck), ack.Type)

	_, bulkPayload, err := conn.Read(ctx)
	require.NoError(t, err)
	var bulk outboundEnvelope
	require.NoError(t, json.Unmarshal(bulkPayload, &bulk))
	assert.Equal(t, string(TypeAlertBulk), bulk.Type)
}

func TestBroadcastStatusIgnoresTopicFilters(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b, _ := newTestBroker(t, clock)
	sess := domain.NewSubscriberSession("s1", clock.Now())
	sess.Subscribe("TO")
	cl := &client{session: sess, send: make(chan []byte, 4)}
	b.clients["s1"] = cl

	b.BroadcastStatus(map[string]any{"connected_clients": 1})

	env := readEnvelope(t, cl.send)
	assert.Equal(t, string(TypeSystemStatus), env.Type)
}
