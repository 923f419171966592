package mqtt

import (
	"fmt"
	"log/slog"

	mqttbroker "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/liminal-dev/liminal-core/internal/infrastructure/config"
)

// Broker is an in-process MQTT broker for bench setups without Mosquitto.
//
// With credentials configured only that username/password pair may
// connect; otherwise every client is allowed.
type Broker struct {
	server *mqttbroker.Server
	addr   string
	logger *slog.Logger
}

// NewBroker creates the broker and binds its TCP listener. Call Start to
// begin accepting clients.
func NewBroker(cfg config.EmbeddedBrokerConfig, creds config.MQTTAuthConfig, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "mqtt-broker"))

	server := mqttbroker.New(&mqttbroker.Options{
		Logger: logger,
	})

	if creds.Username != "" {
		ledger := &auth.Ledger{
			Auth: auth.AuthRules{
				{Username: auth.RString(creds.Username), Password: auth.RString(creds.Password), Allow: true},
			},
		}
		if err := server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}); err != nil {
			return nil, fmt.Errorf("%w: auth hook: %w", ErrBrokerStart, err)
		}
	} else if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("%w: allow hook: %w", ErrBrokerStart, err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: cfg.Address})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("%w: listen %s: %w", ErrBrokerStart, cfg.Address, err)
	}

	return &Broker{server: server, addr: cfg.Address, logger: logger}, nil
}

// Addr returns the configured listen address.
func (b *Broker) Addr() string {
	return b.addr
}

// Start begins serving in the background.
func (b *Broker) Start() {
	go func() {
		if err := b.server.Serve(); err != nil {
			b.logger.Error("embedded broker stopped", "error", err)
		}
	}()
}

// Close stops the listener and disconnects all clients.
func (b *Broker) Close() error {
	if b == nil || b.server == nil {
		return nil
	}
	return b.server.Close()
}
