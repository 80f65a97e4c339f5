package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-dashsync/internal/infrastructure/config"
)

// Logger is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one message on a paho goroutine. A returned
// error is logged and the message is dropped.
type MessageHandler func(topic string, payload []byte) error

// hooks are the callbacks and logger installed after Connect.
type hooks struct {
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Client is the broker connection used to mirror device state and take
// commands. It is safe for concurrent use. Subscriptions survive
// reconnects.
type Client struct {
	paho     pahomqtt.Client
	topics   Topics
	qos      byte
	clientID string

	up atomic.Bool

	hooksMu sync.RWMutex
	hooks   hooks

	subsMu sync.Mutex
	subs   map[string]subscription
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// newClient prepares the client and its paho options without dialling.
func newClient(cfg config.MQTTConfig) *Client {
	c := &Client{
		topics:   NewTopics(cfg.TopicPrefix),
		qos:      byte(cfg.QoS),
		clientID: cfg.Broker.ClientID,
		subs:     make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, c.clientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })

	c.paho = pahomqtt.NewClient(opts)
	return c
}

// Connect dials the broker. Once up, the client announces itself with a
// retained online status; the broker publishes the offline will if the
// connection dies without Close.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	if err := await(c.paho.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}
	// connected() also runs from paho, but asynchronously.
	c.up.Store(true)
	return c, nil
}

// await waits for a paho token and wraps a timeout or failure in kind.
func await(token pahomqtt.Token, timeout time.Duration, kind error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", kind, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics { return c.topics }

// QoS returns the configured default QoS.
func (c *Client) QoS() byte { return c.qos }

func (c *Client) connected() {
	c.up.Store(true)
	c.resubscribe()
	c.paho.Publish(c.topics.SystemStatus(), c.qos, true, statusPayload(StatusOnline, c.clientID, "", time.Now()))

	if fn := c.currentHooks().onConnect; fn != nil {
		fn()
	}
}

func (c *Client) lost(err error) {
	c.up.Store(false)

	h := c.currentHooks()
	if h.logger != nil {
		h.logger.Warn("mqtt connection lost", "error", err)
	}
	if h.onDisconnect != nil {
		h.onDisconnect(err)
	}
}

func (c *Client) resubscribe() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for topic, sub := range c.subs {
		c.paho.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// Close replaces the retained status with a graceful offline message and
// disconnects. A nil or never-connected client is fine.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		payload := statusPayload(StatusOffline, c.clientID, "graceful_shutdown", time.Now())
		c.paho.Publish(c.topics.SystemStatus(), c.qos, true, payload).WaitTimeout(defaultPublishTimeout)
		c.paho.Disconnect(defaultDisconnectQuiesce)
	}
	c.up.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the connection is currently up.
func (c *Client) IsConnected() bool {
	return c.up.Load() && c.paho.IsConnected()
}

// SetOnConnect sets the callback run after the first connect and every
// reconnect.
func (c *Client) SetOnConnect(fn func()) {
	c.hooksMu.Lock()
	c.hooks.onConnect = fn
	c.hooksMu.Unlock()
}

// SetOnDisconnect sets the callback run when the connection drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.hooksMu.Lock()
	c.hooks.onDisconnect = fn
	c.hooksMu.Unlock()
}

// SetLogger sets where connection losses and handler failures are logged.
func (c *Client) SetLogger(logger Logger) {
	c.hooksMu.Lock()
	c.hooks.logger = logger
	c.hooksMu.Unlock()
}

func (c *Client) currentHooks() hooks {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.hooks
}

func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(handler, msg.Topic(), msg.Payload())
	}
}

// dispatch runs handler and logs its error or panic.
func (c *Client) dispatch(handler MessageHandler, topic string, payload []byte) {
	logger := c.currentHooks().logger
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("mqtt handler panic recovered", "topic", topic, "panic", r)
		}
	}()

	if err := handler(topic, payload); err != nil && logger != nil {
		logger.Warn("mqtt handler returned error", "topic", topic, "error", err)
	}
}
