package mqtt

import (
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/liminal-dev/liminal-core/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds a single connection attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 500 // milliseconds

	defaultKeepAlive    = 15 * time.Second
	defaultMaxReconnect = time.Minute

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Presence states published on the status topic.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Presence is the retained online/offline marker on the status topic.
// The broker publishes the offline variant as the Last Will.
type Presence struct {
	Status    string `json:"status"`
	DeviceID  string `json:"device_id"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// buildClientOptions creates paho options from the transport config.
//
// Auto-reconnect is enabled, but ConnectRetry is not: the first connection
// is driven by the caller through BeginConnect so a missing broker never
// blocks the control loop.
func buildClientOptions(cfg config.MQTTConfig, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	maxDelay := cfg.Reconnect.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxReconnect
	}
	opts.SetMaxReconnectInterval(maxDelay)
	opts.SetConnectTimeout(defaultConnectTimeout)

	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// configureLWT registers the retained offline marker the broker publishes
// if this client drops without a clean disconnect.
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string, qos byte) {
	opts.SetWill(topics.Status(), string(presencePayload(Presence{
		Status:   PresenceOffline,
		DeviceID: topics.DeviceID,
		ClientID: clientID,
		Reason:   "unexpected_disconnect",
	})), qos, true)
}

func presencePayload(p Presence) []byte {
	b, _ := json.Marshal(p) // only string fields, cannot fail
	return b
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ClientID derives a stable client identifier from the hardware address of
// iface (or the first non-loopback interface when iface is empty or has no
// address). Falls back to a random UUID when no hardware address exists.
//
// Example: liminal-b827eb12ab34
func ClientID(prefix, iface string) string {
	if iface != "" {
		if ifc, err := net.InterfaceByName(iface); err == nil && len(ifc.HardwareAddr) > 0 {
			return clientIDFrom(prefix, ifc.HardwareAddr)
		}
	}

	ifaces, err := net.Interfaces()
	if err == nil {
		for _, ifc := range ifaces {
			if ifc.Flags&net.FlagLoopback != 0 || len(ifc.HardwareAddr) == 0 {
				continue
			}
			return clientIDFrom(prefix, ifc.HardwareAddr)
		}
	}

	return prefix + uuid.NewString()
}

func clientIDFrom(prefix string, hw net.HardwareAddr) string {
	return prefix + hex.EncodeToString(hw)
}
