package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/deckscan-core/internal/infrastructure/config"
)

// Logger is the logging surface the client and bridge need.
// *logging.Logger and *slog.Logger both satisfy it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Client is one instrument's connection to the broker.
//
// Everything it publishes lives under deckscan/{instrument}/. The retained
// status topic reads "online" while connected, "offline" with reason
// graceful_shutdown after Close, and "offline" with reason
// unexpected_disconnect (the LWT) after a crash or network loss.
//
// All methods are safe for concurrent use.
type Client struct {
	conn   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	mu           sync.RWMutex
	online       bool
	onConnect    func()
	onDisconnect func(error)
	logger       Logger

	subMu         sync.RWMutex
	subscriptions map[string]subscription
}

// Connect dials the broker configured in cfg and announces instrumentID as
// online.
//
// Parameters:
//   - cfg: the mqtt config section; Enabled must be true
//   - instrumentID: second level of every topic this client uses
//
// Returns:
//   - *Client: connected client; reconnects on its own afterwards
//   - error: ErrDisabled, or ErrConnectionFailed when the first connect
//     does not succeed within 10s
func Connect(cfg config.MQTTConfig, instrumentID string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	c := &Client{
		cfg:           cfg,
		topics:        Topics{Instrument: instrumentID},
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if log := c.log(); log != nil {
			log.Warn("mqtt reconnecting", "broker", brokerURL(cfg.Broker), "instrument", instrumentID)
		}
	})

	c.conn = pahomqtt.NewClient(opts)
	if err := await(c.conn.Connect(), ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The OnConnect handler runs asynchronously; mark the link up now so
	// callers can publish as soon as Connect returns.
	c.setOnline(true)
	return c, nil
}

// Topics returns the topic builder of this client's instrument.
func (c *Client) Topics() Topics {
	return c.topics
}

// IsConnected reports the last known link state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online && c.conn != nil && c.conn.IsConnected()
}

// HealthCheck returns nil while the broker link is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close publishes the graceful offline status and disconnects, giving
// in-flight messages up to a second to drain.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce(statusOffline, reasonShutdown).WaitTimeout(ackTimeout)
	}
	c.conn.Disconnect(quiesceMillis)
	c.setOnline(false)
	return nil
}

// SetOnConnect registers fn to run after the first connect and every reconnect.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect registers fn to run when the link is lost.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger sets where handler failures and reconnects are reported.
// Without a logger they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// ─── Connection events ─────────────────────────────────────────────

func (c *Client) connected() {
	c.setOnline(true)
	c.resubscribe()
	c.announce(statusOnline, "")

	c.mu.RLock()
	fn := c.onConnect
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) lost(err error) {
	c.setOnline(false)

	c.mu.RLock()
	fn := c.onDisconnect
	c.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Client) announce(status, reason string) pahomqtt.Token {
	payload := statusPayload(c.topics.Instrument, c.cfg.Broker.ClientID, status, reason)
	return c.conn.Publish(c.topics.Status(), byte(c.cfg.QoS), true, payload)
}

func (c *Client) setOnline(v bool) {
	c.mu.Lock()
	c.online = v
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}
