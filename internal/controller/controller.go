package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/liminal-dev/liminal-core/internal/command"
	"github.com/liminal-dev/liminal-core/internal/infrastructure/config"
	"github.com/liminal-dev/liminal-core/internal/infrastructure/influxdb"
	"github.com/liminal-dev/liminal-core/internal/infrastructure/mqtt"
	"github.com/liminal-dev/liminal-core/internal/journal"
	"github.com/liminal-dev/liminal-core/internal/link"
	"github.com/liminal-dev/liminal-core/internal/peripheral"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("controller: stopped")

const journalTimeout = 2 * time.Second

// Transport is the publish/subscribe collaborator. *mqtt.Client satisfies it.
type Transport interface {
	BeginConnect() error
	Poll() (pending bool, err error)
	IsConnected() bool
	ClientID() string
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	SendJSON(topic string, v any, retained bool) error
}

// Link reports network link state. *link.Monitor satisfies it.
type Link interface {
	Update(now time.Time)
	State() link.State
}

// Telemetry receives readings and health samples. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteReading(deviceID string, r peripheral.Reading)
	WriteDeviceHealth(deviceID string, h influxdb.DeviceHealth, at time.Time)
}

// Logger is the logging surface used by the controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps are the collaborators of a Controller. Registries and Transport are
// required; the rest are optional.
type Deps struct {
	Actuators *peripheral.Registry[peripheral.Actuator]
	Sensors   *peripheral.Registry[peripheral.Sensor]
	Transport Transport
	Link      Link
	Telemetry Telemetry
	Journal   journal.Repository
	Logger    Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// message is one inbound transport message waiting for the loop.
type message struct {
	topic   string
	payload []byte
}

type request struct {
	fn   func(now time.Time)
	done chan struct{}
}

// Controller is the single-threaded control loop of the device.
//
// All peripheral state is owned by the goroutine running Run. Transport
// callbacks only enqueue messages; API handlers reach the registries through
// Do, which executes a function on the loop between ticks.
type Controller struct {
	cfg     *config.Config
	version string

	actuators *peripheral.Registry[peripheral.Actuator]
	sensors   *peripheral.Registry[peripheral.Sensor]
	router    *command.Router
	topics    mqtt.Topics
	transport Transport
	link      Link
	telemetry Telemetry
	journal   journal.Repository
	logger    Logger
	clock     func() time.Time

	inbox    chan message
	requests chan request
	stopped  chan struct{}

	// transportErr holds a configuration error that keeps the transport idle.
	transportErr error

	started           time.Time
	lastConnect       time.Time
	lastSensorPublish time.Time
	lastStatusReport  time.Time
	lastWritten       map[string]time.Time
}

// New wires a controller. Nothing runs until Run.
func New(cfg *config.Config, version string, deps Deps) (*Controller, error) {
	if deps.Actuators == nil || deps.Sensors == nil {
		return nil, errors.New("controller: registries are required")
	}
	if deps.Transport == nil {
		return nil, errors.New("controller: transport is required")
	}

	c := &Controller{
		cfg:         cfg,
		version:     version,
		actuators:   deps.Actuators,
		sensors:     deps.Sensors,
		topics:      mqtt.NewTopics(cfg.Device),
		transport:   deps.Transport,
		link:        deps.Link,
		telemetry:   deps.Telemetry,
		journal:     deps.Journal,
		logger:      deps.Logger,
		clock:       deps.Clock,
		inbox:       make(chan message, max(cfg.Scheduler.InboxSize, cfg.Scheduler.MaxMessagesPerTick)),
		requests:    make(chan request),
		stopped:     make(chan struct{}),
		lastWritten: make(map[string]time.Time),
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	c.transportErr = cfg.MQTT.Configured()

	router, err := command.NewRouter(c.topics.CommandRoot(), c.actuators)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	router.SetLogger(c.logger)
	c.router = router

	return c, nil
}

// Start initializes peripherals and registers the command subscription.
// Run calls it; tests driving Tick directly call it once themselves.
func (c *Controller) Start(now time.Time) {
	c.started = now

	if err := c.actuators.InitializeAll(now); err != nil {
		c.logger.Warn("some actuators failed to initialize", "error", err)
	}
	if err := c.sensors.InitializeAll(now); err != nil {
		c.logger.Warn("some sensors failed to initialize", "error", err)
	}

	if c.transportErr != nil {
		c.logger.Error("transport disabled: broker not configured",
			"host", c.cfg.MQTT.Broker.Host,
			"port", c.cfg.MQTT.Broker.Port,
			"error", c.transportErr,
		)
		return
	}

	if err := c.transport.Subscribe(c.router.Subscription(), c.qos(), c.enqueue); err != nil {
		c.logger.Error("command subscription failed", "topic", c.router.Subscription(), "error", err)
	}
}

func (c *Controller) qos() byte {
	if c.cfg.MQTT.QoS < 0 || c.cfg.MQTT.QoS > 2 {
		return 1
	}
	return byte(c.cfg.MQTT.QoS) // #nosec G115 -- range checked above
}

// enqueue runs on the transport's goroutines. It never blocks.
func (c *Controller) enqueue(topic string, payload []byte) error {
	select {
	case c.inbox <- message{topic: topic, payload: payload}:
		return nil
	default:
		return fmt.Errorf("controller: inbox full, dropped message on %s", topic)
	}
}

// Run executes the loop until ctx is cancelled, then closes the registries.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)

	c.Start(c.clock())

	ticker := time.NewTicker(c.cfg.Scheduler.TickInterval)
	defer ticker.Stop()

	c.logger.Info("control loop started",
		"tick", c.cfg.Scheduler.TickInterval,
		"actuators", c.actuators.Len(),
		"sensors", c.sensors.Len(),
	)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case <-ticker.C:
			c.Tick(c.clock())
		case req := <-c.requests:
			req.fn(c.clock())
			close(req.done)
		}
	}
}

func (c *Controller) shutdown() {
	c.logger.Info("control loop stopping")
	if err := c.actuators.Close(); err != nil {
		c.logger.Warn("closing actuators", "error", err)
	}
	if err := c.sensors.Close(); err != nil {
		c.logger.Warn("closing sensors", "error", err)
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (c *Controller) Do(ctx context.Context, fn func(now time.Time)) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case c.requests <- req:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick performs one pass of the loop: drain a bounded batch of inbound
// messages, update every registry, maintain the link and transport, and
// publish whatever is due.
func (c *Controller) Tick(now time.Time) {
	c.drainInbox(now)

	c.actuators.UpdateAll(now)
	c.sensors.UpdateAll(now)

	if c.link != nil {
		c.link.Update(now)
	}
	c.maintainTransport(now)

	if c.lastSensorPublish.IsZero() || now.Sub(c.lastSensorPublish) >= c.cfg.Scheduler.SensorPublishInterval {
		c.lastSensorPublish = now
		c.publishSensors()
	}
	if c.lastStatusReport.IsZero() || now.Sub(c.lastStatusReport) >= c.cfg.Scheduler.StatusReportInterval {
		c.lastStatusReport = now
		c.publishStatus(now)
	}

	if elapsed := c.clock().Sub(now); elapsed > c.cfg.Scheduler.TickInterval {
		c.logger.Warn("tick overran interval", "elapsed", elapsed, "interval", c.cfg.Scheduler.TickInterval)
	}
}

func (c *Controller) drainInbox(now time.Time) {
	for i := 0; i < c.cfg.Scheduler.MaxMessagesPerTick; i++ {
		select {
		case msg := <-c.inbox:
			c.handleMessage(msg, now)
		default:
			return
		}
	}
}

func (c *Controller) handleMessage(msg message, now time.Time) {
	out, _ := c.router.Route(msg.topic, msg.payload, now)
	if c.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := c.journal.Record(ctx, journal.FromOutcome(c.cfg.Device.ID, out)); err != nil {
		c.logger.Warn("journal write failed", "id", out.ID.String(), "error", err)
	}
}

// maintainTransport drives the first connection without blocking. Attempts
// are spaced by the connect cooldown and wait for the link when one is
// monitored. After the first success paho owns reconnection.
func (c *Controller) maintainTransport(now time.Time) {
	if c.transportErr != nil {
		return
	}

	pending, err := c.transport.Poll()
	if pending {
		return
	}
	if err != nil {
		c.logger.Warn("transport connect failed", "error", err)
	}
	if c.transport.IsConnected() {
		return
	}
	if c.link != nil && !c.cfg.MQTT.Embedded.Enabled && !c.link.State().Connected {
		return
	}
	if !c.lastConnect.IsZero() && now.Sub(c.lastConnect) < c.cfg.MQTT.ConnectCooldown {
		return
	}

	c.lastConnect = now
	if err := c.transport.BeginConnect(); err != nil && !errors.Is(err, mqtt.ErrConnectPending) {
		c.logger.Warn("transport connect not started", "error", err)
	}
}

func (c *Controller) publishSensors() {
	connected := c.transport.IsConnected()
	for _, r := range c.sensors.AllSensorData() {
		r.DeviceID = c.cfg.Device.ID

		if connected {
			if err := c.transport.SendJSON(c.topics.Sensor(string(r.SensorType)), r, false); err != nil {
				c.logger.Warn("sensor publish failed", "sensor", r.SensorName, "error", err)
			}
		}

		// Telemetry gets each sample once.
		if c.telemetry != nil && r.Timestamp.After(c.lastWritten[r.SensorName]) {
			c.lastWritten[r.SensorName] = r.Timestamp
			c.telemetry.WriteReading(c.cfg.Device.ID, r)
		}
	}
}

func (c *Controller) publishStatus(now time.Time) {
	report := c.StatusReport(now)

	if c.telemetry != nil {
		c.telemetry.WriteDeviceHealth(c.cfg.Device.ID, influxdb.DeviceHealth{
			Uptime:          now.Sub(c.started),
			MemoryFree:      report.Memory.Free,
			MemoryTotal:     report.Memory.Total,
			ReadyActuators:  countReady(report.Actuators),
			ReadySensors:    countReady(report.Sensors),
			LinkConnected:   report.Link.Connected,
			BrokerConnected: report.Transport.Connected,
		}, now)
	}

	if !report.Transport.Connected {
		return
	}
	if err := c.transport.SendJSON(c.topics.Status(), report, true); err != nil {
		c.logger.Warn("status publish failed", "error", err)
	}
}

func countReady(r peripheral.Report) int {
	n := 0
	for _, e := range r.Peripherals {
		if e.Status == peripheral.StatusReady {
			n++
		}
	}
	return n
}

// Actuators returns the actuator registry. Only call its methods on the loop.
func (c *Controller) Actuators() *peripheral.Registry[peripheral.Actuator] {
	return c.actuators
}

// Sensors returns the sensor registry. Only call its methods on the loop.
func (c *Controller) Sensors() *peripheral.Registry[peripheral.Sensor] {
	return c.sensors
}

// TransportError returns the configuration error keeping the transport
// idle, or nil. Fixed at construction.
func (c *Controller) TransportError() error {
	return c.transportErr
}
