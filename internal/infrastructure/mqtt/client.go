package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/liminal-dev/liminal-core/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for one liminal device.
//
// The first connection is driven by the caller without blocking: BeginConnect
// starts an attempt and Poll collects its outcome, so a control loop can
// space attempts with its own cooldown. Once connected, paho's auto-reconnect
// takes over and subscriptions are restored on every reconnect.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client   pahomqtt.Client
	cfg      config.MQTTConfig
	topics   Topics
	clientID string

	// subscriptions tracks subscriptions for (re-)subscription on connect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	// established is set after the first successful connection; from then
	// on paho owns reconnection.
	established bool
	pending     pahomqtt.Token
	connMu      sync.RWMutex

	onConnect  func()
	callbackMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the logging surface used by the client.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on paho's goroutines and must not block; hand the message to
// the consumer (typically over a channel) and return.
type MessageHandler func(topic string, payload []byte) error

// New creates a client for the device addressed by topics. No connection is
// made until BeginConnect or Connect is called.
func New(cfg config.MQTTConfig, topics Topics, clientID string) *Client {
	c := &Client{
		cfg:           cfg,
		topics:        topics,
		clientID:      clientID,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg, clientID)
	configureLWT(opts, topics, clientID, c.qos())

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Debug("MQTT reconnecting", "client_id", c.clientID)
		}
	})

	c.client = pahomqtt.NewClient(opts)
	return c
}

// ClientID returns the identifier presented to the broker.
func (c *Client) ClientID() string {
	return c.clientID
}

// Topics returns the topic builder bound to this client.
func (c *Client) Topics() Topics {
	return c.topics
}

func (c *Client) qos() byte {
	if c.cfg.QoS < 0 || c.cfg.QoS > maxQoS {
		return 1
	}
	return byte(c.cfg.QoS) // #nosec G115 -- range checked above
}

// BeginConnect starts a connection attempt and returns immediately.
//
// It is a no-op while connected, and after the first successful connection
// (paho then reconnects on its own). Returns ErrConnectPending while an
// earlier attempt is still in flight.
func (c *Client) BeginConnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.connected || c.established {
		return nil
	}
	if c.pending != nil {
		select {
		case <-c.pending.Done():
		default:
			return ErrConnectPending
		}
	}
	c.pending = c.client.Connect()
	return nil
}

// Poll reports on the attempt started by BeginConnect without blocking.
// pending is true while the attempt is in flight. Once it finishes, Poll
// returns its error (wrapped in ErrConnectionFailed) exactly once.
func (c *Client) Poll() (pending bool, err error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.pending == nil {
		return false, nil
	}
	select {
	case <-c.pending.Done():
	default:
		return true, nil
	}

	tokenErr := c.pending.Error()
	c.pending = nil
	if tokenErr != nil {
		return false, fmt.Errorf("%w: %w", ErrConnectionFailed, tokenErr)
	}
	c.markConnectedLocked()
	return false, nil
}

// Connect starts an attempt and waits for its outcome or for ctx to end.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.BeginConnect(); err != nil && !errors.Is(err, ErrConnectPending) {
		return err
	}

	c.connMu.RLock()
	token := c.pending
	c.connMu.RUnlock()
	if token == nil {
		return nil
	}

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
	_, err := c.Poll()
	return err
}

func (c *Client) markConnectedLocked() {
	// The OnConnect handler runs asynchronously and may not have executed
	// yet, so the state is also set here.
	c.connected = true
	c.established = true
}

// handleConnect runs on every successful (re)connection.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.markConnectedLocked()
	c.connMu.Unlock()

	c.restoreSubscriptions()
	c.publishPresence(PresenceOnline, "")

	if logger := c.getLogger(); logger != nil {
		logger.Info("MQTT connected", "client_id", c.clientID)
	}

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "client_id", c.clientID, "error", err)
	}
}

func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

func (c *Client) publishPresence(status, reason string) pahomqtt.Token {
	payload := presencePayload(Presence{
		Status:    status,
		DeviceID:  c.topics.DeviceID,
		ClientID:  c.clientID,
		Reason:    reason,
		Timestamp: nowStamp(),
	})
	return c.client.Publish(c.topics.Status(), c.qos(), true, payload)
}

// Close publishes a graceful offline marker and disconnects.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.publishPresence(PresenceOffline, "graceful_shutdown")
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	return nil
}

// HealthCheck reports whether the connection is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnectionOpen()
}

// SetOnConnect sets a callback invoked on every (re)connection.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection events and handler failures.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
