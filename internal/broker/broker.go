// Package broker fans active-set changes out to websocket subscribers:
// a connect sequence of connection_ack followed by an alert_bulk snapshot,
// then a dispatch loop translating alertmanager.Manager events into
// topic-filtered envelopes, plus a small inbound command surface
// (ping/subscribe/unsubscribe/get_alerts/get_status).
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"nhooyr.io/websocket"

	"github.com/couchcryptid/alertwx/internal/alertmanager"
	"github.com/couchcryptid/alertwx/internal/domain"
	"github.com/couchcryptid/alertwx/internal/observability"
)

// OutboundType is a server-to-client envelope type. Chaser-position
// tracking types from the dashboard this service was modeled on are
// intentionally not implemented here; alerting has no notion of a chaser.
type OutboundType string

const (
	TypeAlertNew      OutboundType = "alert_new"
	TypeAlertUpdate   OutboundType = "alert_update"
	TypeAlertRemove   OutboundType = "alert_remove"
	TypeAlertBulk     OutboundType = "alert_bulk"
	TypeSystemStatus  OutboundType = "system_status"
	TypeConnectionAck OutboundType = "connection_ack"
	TypeError         OutboundType = "error"
	TypePong          OutboundType = "pong"
)

// Inbound client-to-server message types with built-in handlers.
const (
	InPing        = "ping"
	InSubscribe   = "subscribe"
	InUnsubscribe = "unsubscribe"
	InGetAlerts   = "get_alerts"
	InGetStatus   = "get_status"
)

type outboundEnvelope struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type inboundEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// InboundHandler processes one client-to-server message.
type InboundHandler func(ctx context.Context, b *Broker, sess *domain.SubscriberSession, data json.RawMessage)

type client struct {
	conn    *websocket.Conn
	session *domain.SubscriberSession
	send    chan []byte
}

// Broker holds the set of connected subscriber sessions and the inbound
// handler table.
type Broker struct {
	manager *alertmanager.Manager
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	clients  map[string]*client
	handlers map[string]InboundHandler
}

// New creates a Broker wired to an alert manager's event stream and
// registers the default inbound handlers.
func New(manager *alertmanager.Manager, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Broker {
	b := &Broker{
		manager:  manager,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		clients:  make(map[string]*client),
		handlers: make(map[string]InboundHandler),
	}
	b.RegisterHandler(InPing, handlePing)
	b.RegisterHandler(InSubscribe, handleSubscribe)
	b.RegisterHandler(InUnsubscribe, handleUnsubscribe)
	b.RegisterHandler(InGetAlerts, handleGetAlerts)
	b.RegisterHandler(InGetStatus, handleGetStatus)
	return b
}

// RegisterHandler installs or replaces the handler for an inbound message
// type.
func (b *Broker) RegisterHandler(msgType string, h InboundHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[msgType] = h
}

// ConnectedClients reports the number of live subscriber sessions.
func (b *Broker) ConnectedClients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Run consumes alertmanager.Manager events and fans them out until ctx is
// cancelled or the event channel closes.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-b.manager.Events():
			if !ok {
				return
			}
			b.dispatchEvent(ev)
		}
	}
}

func (b *Broker) dispatchEvent(ev domain.ManagerEvent) {
	var t OutboundType
	var data any

	switch ev.Kind {
	case domain.EventAdded:
		t, data = TypeAlertNew, ev.Alert
	case domain.EventUpdated:
		t, data = TypeAlertUpdate, ev.Alert
	case domain.EventRemoved:
		t = TypeAlertRemove
		data = map[string]string{
			"product_id": ev.Alert.ProductID,
			"event_name": ev.Alert.EventName,
			"reason":     ev.Reason,
		}
	default:
		return
	}

	b.broadcastFiltered(t, data, ev.Alert.Phenomenon)
}

// BroadcastStatus sends a system_status envelope to every connected client,
// ignoring topic filters.
func (b *Broker) BroadcastStatus(status any) {
	for _, cl := range b.snapshotClients() {
		b.sendEnvelope(cl, TypeSystemStatus, status)
	}
}

func (b *Broker) broadcastFiltered(t OutboundType, data any, topic string) {
	for _, cl := range b.snapshotClients() {
		if cl.session.WantsTopic(topic) {
			b.sendEnvelope(cl, t, data)
		}
	}
}

func (b *Broker) snapshotClients() []*client {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*client, 0, len(b.clients))
	for _, cl := range b.clients {
		out = append(out, cl)
	}
	return out
}

// ServeHTTP upgrades the connection, runs the connect sequence
// (connection_ack then an alert_bulk snapshot), then services inbound
// messages until the client disconnects.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		b.logger.Warn("broker: websocket accept failed", "err", err)
		return
	}

	now := b.clock.Now()
	sess := domain.NewSubscriberSession(uuid.NewString(), now)
	cl := &client{conn: conn, session: sess, send: make(chan []byte, 32)}

	b.mu.Lock()
	b.clients[sess.ID] = cl
	count := len(b.clients)
	b.mu.Unlock()
	b.metrics.BrokerConnectedClients.Set(float64(count))
	b.logger.Info("broker client connected", "client_id", sess.ID, "total", count)

	ctx := r.Context()
	writerDone := make(chan struct{})
	go b.writeLoop(ctx, cl, writerDone)

	b.sendEnvelope(cl, TypeConnectionAck, map[string]any{
		"client_id":   sess.ID,
		"server_time": now,
	})
	b.sendEnvelope(cl, TypeAlertBulk, bulkPayload(b.manager.AllSorted()))

	b.readLoop(ctx, cl)

	b.mu.Lock()
	delete(b.clients, sess.ID)
	remaining := len(b.clients)
	b.mu.Unlock()
	b.metrics.BrokerConnectedClients.Set(float64(remaining))
	b.logger.Info("broker client disconnected", "client_id", sess.ID, "total", remaining)

	close(cl.send)
	<-writerDone
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func bulkPayload(alerts []domain.Alert) any {
	return map[string]any{"count": len(alerts), "alerts": alerts}
}

func (b *Broker) writeLoop(ctx context.Context, cl *client, done chan<- struct{}) {
	defer close(done)
	for payload := range cl.send {
		wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := cl.conn.Write(wctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			b.logger.Warn("broker: write failed", "client_id", cl.session.ID, "err", err)
			b.metrics.BrokerBroadcastErrors.Inc()
			return
		}
	}
}

func (b *Broker) readLoop(ctx context.Context, cl *client) {
	for {
		_, data, err := cl.conn.Read(ctx)
		if err != nil {
			return
		}
		b.handleInbound(ctx, cl, data)
	}
}

func (b *Broker) handleInbound(ctx context.Context, cl *client, raw []byte) {
	var msg inboundEnvelope
	if err := json.Unmarshal(raw, &msg); err != nil {
		b.sendEnvelope(cl, TypeError, map[string]string{"error": "invalid json"})
		return
	}

	b.mu.Lock()
	handler, ok := b.handlers[msg.Type]
	b.mu.Unlock()
	if !ok {
		b.sendEnvelope(cl, TypeError, map[string]string{"error": fmt.Sprintf("unknown message type: %s", msg.Type)})
		return
	}
	handler(ctx, b, cl.session, msg.Data)
}

func (b *Broker) sendEnvelope(cl *client, t OutboundType, data any) {
	payload, err := json.Marshal(outboundEnvelope{Type: string(t), Data: data, Timestamp: b.clock.Now()})
	if err != nil {
		b.logger.Error("broker: marshal envelope failed", "type", t, "err", err)
		return
	}

	select {
	case cl.send <- payload:
		b.metrics.BrokerMessagesSent.WithLabelValues(string(t)).Inc()
	default:
		b.logger.Warn("broker: client send buffer full, dropping message", "client_id", cl.session.ID, "type", t)
	}
}

func (b *Broker) sendToSession(sessionID string, t OutboundType, data any) {
	b.mu.Lock()
	cl, ok := b.clients[sessionID]
	b.mu.Unlock()
	if !ok {
		return
	}
	b.sendEnvelope(cl, t, data)
}

func handlePing(ctx context.Context, b *Broker, sess *domain.SubscriberSession, data json.RawMessage) {
	sess.Touch(b.clock.Now())
	b.sendToSession(sess.ID, TypePong, map[string]any{"timestamp": b.clock.Now()})
}

type topicsPayload struct {
	Topics []string `json:"topics"`
}

func handleSubscribe(ctx context.Context, b *Broker, sess *domain.SubscriberSession, data json.RawMessage) {
	var p topicsPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	sess.Subscribe(p.Topics...)
}

func handleUnsubscribe(ctx context.Context, b *Broker, sess *domain.SubscriberSession, data json.RawMessage) {
	var p topicsPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	sess.Unsubscribe(p.Topics...)
}

func handleGetAlerts(ctx context.Context, b *Broker, sess *domain.SubscriberSession, data json.RawMessage) {
	b.sendToSession(sess.ID, TypeAlertBulk, bulkPayload(b.manager.AllSorted()))
}

func handleGetStatus(ctx context.Context, b *Broker, sess *domain.SubscriberSession, data json.RawMessage) {
	b.sendToSession(sess.ID, TypeSystemStatus, map[string]any{
		"connected_clients": b.ConnectedClients(),
		"server_time":       b.clock.Now(),
	})
}
