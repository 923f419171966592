package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/liminal-dev/liminal-core/internal/infrastructure/config"
)

const testTimeout = 5 * time.Second

var testTopics = Topics{Root: "liminal", DeviceID: "esp32-001"}

// freePort asks the kernel for an unused TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startBroker runs an embedded broker for the duration of the test.
func startBroker(t *testing.T, creds config.MQTTAuthConfig) int {
	t.Helper()
	port := freePort(t)
	b, err := NewBroker(config.EmbeddedBrokerConfig{
		Enabled: true,
		Address: "127.0.0.1:" + strconv.Itoa(port),
	}, creds, quietLogger())
	if err != nil {
		t.Fatalf("NewBroker() error = %v", err)
	}
	b.Start()
	t.Cleanup(func() { b.Close() })
	return port
}

func testConfig(port int) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:           "127.0.0.1",
			Port:           port,
			ClientIDPrefix: "test-",
		},
		QoS:       1,
		KeepAlive: 5 * time.Second,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
		},
	}
}

func newTestClient(t *testing.T, cfg config.MQTTConfig, topics Topics, id string) *Client {
	t.Helper()
	c := New(cfg, topics, id)
	c.SetLogger(quietLogger())
	t.Cleanup(func() { c.Close() })
	return c
}

func connectedClient(t *testing.T, port int, topics Topics, id string) *Client {
	t.Helper()
	c := newTestClient(t, testConfig(port), topics, id)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return c
}

type received struct {
	topic   string
	payload []byte
}

// collector subscribes handlers that push into a channel.
func collector() (chan received, MessageHandler) {
	ch := make(chan received, 16)
	return ch, func(topic string, payload []byte) error {
		ch <- received{topic: topic, payload: append([]byte(nil), payload...)}
		return nil
	}
}

func waitMessage(t *testing.T, ch <-chan received) received {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for message")
		return received{}
	}
}

func TestClient_ConnectAndClose(t *testing.T) {
	port := startBroker(t, config.MQTTAuthConfig{})
	c := connectedClient(t, port, testTopics, "test-connect")

	if !c.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClient_CloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestClient_BeginConnectRefused(t *testing.T) {
	port := freePort(t) // nothing listening
	c := newTestClient(t, testConfig(port), testTopics, "test-refused")

	if err := c.BeginConnect(); err != nil {
		t.Fatalf("BeginConnect() error = %v", err)
	}

	deadline := time.Now().Add(testTimeout)
	for {
		pending, err := c.Poll()
		if !pending {
			if !errors.Is(err, ErrConnectionFailed) {
				t.Fatalf("Poll() error = %v, want ErrConnectionFailed", err)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("connection attempt never finished")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The outcome is reported once.
	if pending, err := c.Poll(); pending || err != nil {
		t.Errorf("second Poll() = (%v, %v), want (false, nil)", pending, err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after refused attempt")
	}
}

func TestClient_BeginConnectWhileConnectedIsNoop(t *testing.T) {
	port := startBroker(t, config.MQTTAuthConfig{})
	c := connectedClient(t, port, testTopics, "test-noop")

	if err := c.BeginConnect(); err != nil {
		t.Errorf("BeginConnect() error = %v", err)
	}
	if pending, err := c.Poll(); pending || err != nil {
		t.Errorf("Poll() = (%v, %v), want (false, nil)", pending, err)
	}
}

func TestClient_PresenceOnConnect(t *testing.T) {
	port := startBroker(t, config.MQTTAuthConfig{})
	observer := connectedClient(t, port, Topics{Root: "liminal", DeviceID: "observer"}, "test-observer")

	ch, handler := collector()
	if err := observer.Subscribe(testTopics.Status(), 1, handler); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	device := connectedClient(t, port, testTopics, "test-device")

	msg := waitMessage(t, ch)
	if msg.topic != "liminal/status/esp32-001" {
		t.Errorf("topic = %q", msg.topic)
	}
	var p Presence
	if err := json.Unmarshal(msg.payload, &p); err != nil {
		t.Fatalf("unmarshal presence: %v", err)
	}
	if p.Status != PresenceOnline || p.DeviceID != "esp32-001" || p.ClientID != device.ClientID() {
		t.Errorf("presence = %+v", p)
	}

	device.Close()
	msg = waitMessage(t, ch)
	if err := json.Unmarshal(msg.payload, &p); err != nil {
		t.Fatalf("unmarshal presence: %v", err)
	}
	if p.Status != PresenceOffline || p.Reason != "graceful_shutdown" {
		t.Errorf("presence after Close = %+v, want graceful offline", p)
	}
}

func TestClient_SubscribeBeforeConnect(t *testing.T) {
	port := startBroker(t, config.MQTTAuthConfig{})
	device := newTestClient(t, testConfig(port), testTopics, "test-early-sub")

	ch, handler := collector()
	if err := device.Subscribe(testTopics.Commands(), 1, handler); err != nil {
		t.Fatalf("Subscribe() before connect error = %v", err)
	}
	if !device.HasSubscription(testTopics.Commands()) {
		t.Fatal("subscription not tracked")
	}

	connected := make(chan struct{}, 1)
	device.SetOnConnect(func() { connected <- struct{}{} })

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := device.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	select {
	case <-connected:
	case <-time.After(testTimeout):
		t.Fatal("OnConnect callback not invoked")
	}

	sender := connectedClient(t, port, Topics{Root: "liminal", DeviceID: "sender"}, "test-sender")
	// Subscriptions are restored asynchronously by the OnConnect handler; retry
	// the publish until it lands.
	deadline := time.Now().Add(testTimeout)
	for {
		if err := sender.Publish(testTopics.Command("status_led"), []byte(`{"state":true}`), 1, false); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		select {
		case msg := <-ch:
			if msg.topic != "liminal/commands/esp32-001/status_led" || string(msg.payload) != `{"state":true}` {
				t.Errorf("received %q %q", msg.topic, msg.payload)
			}
			return
		case <-time.After(100 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("command never delivered")
		}
	}
}

func TestClient_HandlerPanicRecovered(t *testing.T) {
	port := startBroker(t, config.MQTTAuthConfig{})
	c := connectedClient(t, port, testTopics, "test-panic")

	done := make(chan struct{}, 4)
	err := c.Subscribe("liminal/panic", 1, func(string, []byte) error {
		done <- struct{}{}
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := c.Publish("liminal/panic", []byte("x"), 1, false); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		select {
		case <-done:
		case <-time.After(testTimeout):
			t.Fatalf("handler call %d not observed", i+1)
		}
	}

	if !c.IsConnected() {
		t.Error("client disconnected after handler panic")
	}
}

func TestClient_PublishValidation(t *testing.T) {
	port := startBroker(t, config.MQTTAuthConfig{})
	c := connectedClient(t, port, testTopics, "test-validate")

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"wildcard topic", "liminal/#", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "liminal/x", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "liminal/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"nil payload", "liminal/x", nil, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClient_SendWhenDisconnected(t *testing.T) {
	c := newTestClient(t, testConfig(freePort(t)), testTopics, "test-offline")

	if err := c.Send(testTopics.Status(), []byte("{}"), true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
	if err := c.SendJSON(testTopics.Status(), map[string]any{"ok": true}, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendJSON() error = %v, want ErrNotConnected", err)
	}
	if err := c.SendJSON(testTopics.Status(), func() {}, true); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("SendJSON(func) error = %v, want ErrPublishFailed", err)
	}
}

func TestClient_SendJSONDelivered(t *testing.T) {
	port := startBroker(t, config.MQTTAuthConfig{})
	device := connectedClient(t, port, testTopics, "test-sendjson")
	observer := connectedClient(t, port, Topics{Root: "liminal", DeviceID: "observer"}, "test-sendjson-obs")

	ch, handler := collector()
	topic := testTopics.Sensor("orientation")
	if err := observer.Subscribe(topic, 1, handler); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := device.SendJSON(topic, map[string]string{"sensor_name": "main_imu"}, false); err != nil {
		t.Fatalf("SendJSON() error = %v", err)
	}

	msg := waitMessage(t, ch)
	if string(msg.payload) != `{"sensor_name":"main_imu"}` {
		t.Errorf("payload = %s", msg.payload)
	}
}

func TestClient_UnsubscribeAndCounts(t *testing.T) {
	c := newTestClient(t, testConfig(freePort(t)), testTopics, "test-unsub")
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v", err)
	}
	if err := c.Subscribe("a/b", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v", err)
	}
	if err := c.Subscribe("a/b", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v", err)
	}

	for _, topic := range []string{"a/b", "a/c", "a/b"} {
		if err := c.Subscribe(topic, 1, noop); err != nil {
			t.Fatalf("Subscribe(%q) error = %v", topic, err)
		}
	}
	if got := c.SubscriptionCount(); got != 2 {
		t.Errorf("SubscriptionCount() = %d, want 2", got)
	}

	if err := c.Unsubscribe("a/b"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.HasSubscription("a/b") || !c.HasSubscription("a/c") {
		t.Error("Unsubscribe removed the wrong subscription")
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) error = %v", err)
	}
}

func TestBroker_RejectsBadCredentials(t *testing.T) {
	creds := config.MQTTAuthConfig{Username: "device", Password: "secret"}
	port := startBroker(t, creds)

	good := testConfig(port)
	good.Auth = creds
	c := newTestClient(t, good, testTopics, "test-auth-good")
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect() with valid credentials error = %v", err)
	}

	bad := testConfig(port)
	bad.Auth = config.MQTTAuthConfig{Username: "device", Password: "wrong"}
	b := newTestClient(t, bad, testTopics, "test-auth-bad")
	if err := b.Connect(ctx); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() with bad password error = %v, want ErrConnectionFailed", err)
	}
}

func TestTopics(t *testing.T) {
	topics := NewTopics(config.DeviceConfig{ID: "esp32-001", TopicRoot: "liminal"})

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"status", topics.Status(), "liminal/status/esp32-001"},
		{"sensor", topics.Sensor("orientation"), "liminal/sensors/esp32-001/orientation"},
		{"command root", topics.CommandRoot(), "liminal/commands/esp32-001"},
		{"command", topics.Command("status_led"), "liminal/commands/esp32-001/status_led"},
		{"commands wildcard", topics.Commands(), "liminal/commands/esp32-001/#"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestClientID(t *testing.T) {
	hw := net.HardwareAddr{0xb8, 0x27, 0xeb, 0x12, 0xab, 0x34}
	if got := clientIDFrom("liminal-", hw); got != "liminal-b827eb12ab34" {
		t.Errorf("clientIDFrom() = %q", got)
	}

	id := ClientID("liminal-", "no-such-interface0")
	if len(id) <= len("liminal-") || id[:len("liminal-")] != "liminal-" {
		t.Errorf("ClientID() = %q, want liminal- prefix and a suffix", id)
	}
}
