package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/schoolhub-core/internal/infrastructure/config"
)

// Client publishes session events to the broker and relays events from
// other SchoolHub instances. Safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	connected atomic.Bool

	subMu         sync.RWMutex
	subscriptions map[string]subscription

	hookMu sync.RWMutex
	hooks  hooks
}

type hooks struct {
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is the subset of logging.Logger the client needs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Connect dials the broker and blocks until the session is up. The broker
// publishes a retained offline status on schoolhub/system/status if this
// instance drops without a clean Close.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onConnected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The paho OnConnect callback may not have run yet.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) currentHooks() hooks {
	c.hookMu.RLock()
	defer c.hookMu.RUnlock()
	return c.hooks
}

func (c *Client) onConnected() {
	c.connected.Store(true)
	c.resubscribe()
	c.publishStatus(buildOnlinePayload(c.cfg.Broker.ClientID))

	if fn := c.currentHooks().onConnect; fn != nil {
		fn()
	}
}

func (c *Client) onConnectionLost(err error) {
	c.connected.Store(false)

	h := c.currentHooks()
	if h.logger != nil {
		h.logger.Warn("MQTT connection lost", "error", err)
	}
	if h.onDisconnect != nil {
		h.onDisconnect(err)
	}
}

func (c *Client) publishStatus(payload string) pahomqtt.Token {
	return c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
}

// Close publishes a graceful offline status and disconnects. It is a no-op
// for a client that never connected.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.publishStatus(buildOfflinePayload(c.cfg.Broker.ClientID)).WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether events can currently be published.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// ClientID returns the configured client id. Events carry it as their
// origin so an instance can skip its own relayed events.
func (c *Client) ClientID() string {
	return c.cfg.Broker.ClientID
}

// SetOnConnect sets a callback run on every (re)connect.
func (c *Client) SetOnConnect(fn func()) {
	c.hookMu.Lock()
	c.hooks.onConnect = fn
	c.hookMu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.hookMu.Lock()
	c.hooks.onDisconnect = fn
	c.hookMu.Unlock()
}

// SetLogger sets the logger for dropped connections and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.hookMu.Lock()
	c.hooks.logger = logger
	c.hookMu.Unlock()
}
