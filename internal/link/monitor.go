package link

import (
	"time"

	"github.com/liminal-dev/liminal-core/internal/infrastructure/config"
)

// refreshInterval bounds how often interface state is re-read.
const refreshInterval = time.Second

// State is the link summary carried in the status report.
type State struct {
	Connected bool   `json:"connected"`
	Interface string `json:"interface,omitempty"`
	Address   string `json:"address,omitempty"`
	MAC       string `json:"mac,omitempty"`
	Signal    int    `json:"signal"`
	// Reachable is nil until the first probe completes, or when no probe
	// host is configured.
	Reachable *bool `json:"reachable,omitempty"`
	RTTMs     int64 `json:"rtt_ms,omitempty"`
}

// Logger is the logging surface used by the monitor.
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

type probeResult struct {
	rtt time.Duration
	err error
}

// Monitor tracks link state. It is owned by a single goroutine; only the
// probe runs elsewhere and reports back over a channel.
type Monitor struct {
	cfg    config.LinkConfig
	source Source
	prober Prober
	logger Logger

	// reconnect is invoked while the link is down, at most once per cooldown.
	reconnect func(iface string) error

	state       State
	refreshed   time.Time
	lastAttempt time.Time
	lastProbe   time.Time
	probing     bool
	results     chan probeResult
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSource replaces the kernel interface reader.
func WithSource(s Source) Option {
	return func(m *Monitor) { m.source = s }
}

// WithProber replaces the ICMP prober.
func WithProber(p Prober) Option {
	return func(m *Monitor) { m.prober = p }
}

// WithReconnect sets the hook fired while the link is down.
func WithReconnect(fn func(iface string) error) Option {
	return func(m *Monitor) { m.reconnect = fn }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMonitor creates a monitor. Nothing is read until the first Update.
func NewMonitor(cfg config.LinkConfig, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:     cfg,
		source:  NetSource{},
		prober:  PingProber{},
		logger:  noopLogger{},
		results: make(chan probeResult, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the last observed link state.
func (m *Monitor) State() State {
	return m.state
}

// Connected reports whether the link was up at the last refresh.
func (m *Monitor) Connected() bool {
	return m.state.Connected
}

// Update refreshes link state if due. It never blocks on the network.
func (m *Monitor) Update(now time.Time) {
	m.collectProbe()

	if !m.refreshed.IsZero() && now.Sub(m.refreshed) < refreshInterval {
		return
	}
	m.refreshed = now

	wasConnected := m.state.Connected
	obs, err := m.source.Observe(m.cfg.Interface)
	m.state.Interface = obs.Interface
	m.state.MAC = obs.MAC
	m.state.Address = obs.Address
	m.state.Signal = obs.Signal
	m.state.Connected = err == nil && obs.Up && obs.Address != ""

	switch {
	case m.state.Connected && !wasConnected:
		m.logger.Info("link up", "interface", obs.Interface, "address", obs.Address, "signal", obs.Signal)
	case !m.state.Connected && wasConnected:
		m.logger.Warn("link down", "interface", obs.Interface, "error", err)
	}

	if !m.state.Connected {
		m.state.Reachable = nil
		m.state.RTTMs = 0
		m.attemptReconnect(now, err)
		return
	}
	m.startProbe(now)
}

func (m *Monitor) cooldownElapsed(last, now time.Time) bool {
	return last.IsZero() || now.Sub(last) >= m.cfg.ReconnectCooldown
}

func (m *Monitor) attemptReconnect(now time.Time, cause error) {
	if !m.cooldownElapsed(m.lastAttempt, now) {
		return
	}
	m.lastAttempt = now

	if m.reconnect == nil {
		m.logger.Debug("link down, waiting for interface", "interface", m.cfg.Interface, "error", cause)
		return
	}
	m.logger.Info("link down, attempting reconnect", "interface", m.cfg.Interface)
	if err := m.reconnect(m.cfg.Interface); err != nil {
		m.logger.Warn("link reconnect failed", "interface", m.cfg.Interface, "error", err)
	}
}

func (m *Monitor) startProbe(now time.Time) {
	if m.cfg.ProbeHost == "" || m.probing || !m.cooldownElapsed(m.lastProbe, now) {
		return
	}
	m.lastProbe = now
	m.probing = true

	host, timeout, prober, results := m.cfg.ProbeHost, m.cfg.ProbeTimeout, m.prober, m.results
	go func() {
		rtt, err := prober.Probe(host, timeout)
		results <- probeResult{rtt: rtt, err: err}
	}()
}

func (m *Monitor) collectProbe() {
	select {
	case res := <-m.results:
		m.probing = false
		if !m.state.Connected {
			return
		}
		reachable := res.err == nil
		m.state.Reachable = &reachable
		m.state.RTTMs = res.rtt.Milliseconds()
		if res.err != nil {
			m.logger.Warn("link probe failed", "host", m.cfg.ProbeHost, "error", res.err)
		}
	default:
	}
}
