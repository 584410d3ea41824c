// Package nwws maintains a persistent NWWS-OI multi-user-chat session and
// hands decoded text products to a caller-supplied handler. The feed is
// XMPP/MUC rather than CAP-over-HTTP: products arrive as groupchat messages
// carrying a <x xmlns="nwws-oi"> child element instead of <body>.
package nwws

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gosrc.io/xmpp"
	"gosrc.io/xmpp/stanza"

	"github.com/couchcryptid/alertwx/internal/observability"
)

const (
	minReconnectDelay = 5 * time.Second
	maxReconnectDelay = 300 * time.Second
)

// RawProduct is one text product delivered over the NWWS-OI stream, shaped
// for internal/wx/alertparse.Parse.
type RawProduct struct {
	Text      string
	MessageID string
	AWIPSID   string
	TTAAII    string
	Office    string
	Issue     string
}

// Handler receives each decoded product as it arrives. It must not block for
// long: it runs on the XMPP read loop's goroutine.
type Handler func(RawProduct)

// Config configures a Client's connection to the NWWS-OI feed. See
// https://www.weather.gov/nwws/#access for the public server addresses.
type Config struct {
	PrimaryAddr  string // e.g. "nwws-oi-cprk.weather.gov:5222"
	BackupAddr   string // e.g. "nwws-oi-bldr.weather.gov:5222"
	Domain       string // "nwws-oi.weather.gov"
	Username     string
	Password     string
	Resource     string // XMPP resource, conventionally "nwws"
	RoomDomain   string // "conference.nwws-oi.weather.gov"
	RoomNickname string

	ConnectTimeout time.Duration
}

func (c Config) jid() string {
	return fmt.Sprintf("%s@%s/%s", c.Username, c.Domain, c.Resource)
}

func (c Config) roomJID() string {
	return fmt.Sprintf("nwws@%s/%s", c.RoomDomain, c.RoomNickname)
}

// Client maintains a persistent MUC session against the NWWS-OI feed,
// reconnecting with exponential backoff whenever the session drops.
type Client struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger
	metrics *observability.Metrics

	mu       sync.Mutex
	xmppConn *xmpp.Client
}

// New creates a Client. Run must be called to establish and hold the
// connection; it blocks until ctx is cancelled.
func New(cfg Config, handler Handler, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 3 * time.Second
	}
	if cfg.Resource == "" {
		cfg.Resource = "nwws"
	}
	return &Client{cfg: cfg, handler: handler, logger: logger, metrics: metrics}
}

// Run connects and stays connected until ctx is cancelled, reconnecting with
// exponential backoff (5s, doubling, capped at 300s) between attempts. Only
// one reconnect attempt is ever outstanding, and a freshly established
// session resets the backoff back to its floor.
func (c *Client) Run(ctx context.Context) error {
	delay := minReconnectDelay

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		disconnected := make(chan struct{}, 1)
		conn, err := c.connect(disconnected)
		if err != nil {
			c.logger.Warn("nwws connect failed, backing off", "err", err, "delay", delay)
			c.metrics.NWWSReconnects.Inc()
			if !sleepOrDone(ctx, delay) {
				return ctx.Err()
			}
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		delay = minReconnectDelay
		c.logger.Info("nwws session established", "room", c.cfg.roomJID())

		select {
		case <-ctx.Done():
			c.disconnect(conn)
			return ctx.Err()
		case <-disconnected:
			c.logger.Warn("nwws session lost, reconnecting")
			c.metrics.NWWSReconnects.Inc()
		}
	}
}

// Stop closes the current session, if any, sending MUC "unavailable"
// presence first. Safe to call even if Run has already returned.
func (c *Client) Stop() {
	c.mu.Lock()
	conn := c.xmppConn
	c.xmppConn = nil
	c.mu.Unlock()

	if conn != nil {
		c.disconnect(conn)
	}
}

func (c *Client) disconnect(conn *xmpp.Client) {
	_ = conn.Send(stanza.Presence{
		Attrs: stanza.Attrs{To: c.cfg.roomJID(), Type: stanza.PresenceTypeUnavailable},
	})
	_ = conn.Disconnect()
}

func (c *Client) connect(disconnected chan<- struct{}) (*xmpp.Client, error) {
	router := xmpp.NewRouter()
	router.HandleFunc("message", c.routeMessage)
	router.HandleFunc("presence", c.routePresence)

	errorHandler := func(err error) {
		c.logger.Error("nwws xmpp stream error", "err", err)
		select {
		case disconnected <- struct{}{}:
		default:
		}
	}

	xmppCfg := xmpp.Config{
		Jid:            c.cfg.jid(),
		Credential:     xmpp.Password(c.cfg.Password),
		ConnectTimeout: int(c.cfg.ConnectTimeout.Seconds()),
		TransportConfiguration: xmpp.TransportConfiguration{
			Address: c.cfg.PrimaryAddr,
			Domain:  c.cfg.Domain,
		},
	}

	conn, err := xmpp.NewClient(&xmppCfg, router, errorHandler)
	if err == nil {
		if err = conn.Connect(); err == nil {
			return c.afterConnect(conn)
		}
		_ = conn.Disconnect()
	}

	if c.cfg.BackupAddr == "" {
		return nil, fmt.Errorf("nwws: connect to %s: %w", c.cfg.PrimaryAddr, err)
	}

	c.logger.Warn("nwws primary site unreachable, trying backup", "primary", c.cfg.PrimaryAddr, "err", err)
	xmppCfg.TransportConfiguration = xmpp.TransportConfiguration{
		Address: c.cfg.BackupAddr,
		Domain:  c.cfg.Domain,
	}
	conn, err = xmpp.NewClient(&xmppCfg, router, errorHandler)
	if err != nil {
		return nil, fmt.Errorf("nwws: build client for backup site: %w", err)
	}
	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("nwws: connect to backup %s: %w", c.cfg.BackupAddr, err)
	}
	return c.afterConnect(conn)
}

func (c *Client) afterConnect(conn *xmpp.Client) (*xmpp.Client, error) {
	err := conn.Send(stanza.Presence{
		Attrs: stanza.Attrs{To: c.cfg.roomJID()},
		Extensions: []stanza.PresExtension{
			stanza.MucPresence{History: stanza.History{MaxStanzas: stanza.NewNullableInt(0)}},
		},
	})
	if err != nil {
		_ = conn.Disconnect()
		return nil, fmt.Errorf("nwws: join muc %s: %w", c.cfg.roomJID(), err)
	}

	c.mu.Lock()
	c.xmppConn = conn
	c.mu.Unlock()
	return conn, nil
}

func (c *Client) routeMessage(s xmpp.Sender, p stanza.Packet) {
	msg, ok := p.(stanza.Message)
	if !ok {
		return
	}

	var ext MessageExtension
	if !msg.Get(&ext) {
		return
	}

	if nicknameOf(msg.From) == c.cfg.RoomNickname {
		// Our own presence/echo in the room, not a product.
		return
	}

	c.metrics.NWWSMessagesReceived.Inc()
	c.handler(rawProductFromExtension(ext))
}

func rawProductFromExtension(ext MessageExtension) RawProduct {
	return RawProduct{
		Text:      html.UnescapeString(ext.Text),
		MessageID: ext.ID,
		AWIPSID:   strings.TrimSpace(ext.AwipsID),
		TTAAII:    ext.Ttaaii,
		Office:    ext.Cccc,
		Issue:     ext.Issue,
	}
}

func (c *Client) routePresence(s xmpp.Sender, p stanza.Packet) {
	presence, ok := p.(*stanza.Presence)
	if !ok {
		return
	}
	if presence.Type == stanza.PresenceTypeError {
		c.logger.Warn("nwws muc presence error", "from", presence.From)
	}
}

func nicknameOf(fullJID string) string {
	idx := strings.LastIndex(fullJID, "/")
	if idx == -1 {
		return ""
	}
	return fullJID[idx+1:]
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
