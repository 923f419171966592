package mqtt

import (
	"strings"

	"github.com/liminal-dev/liminal-core/internal/infrastructure/config"
)

// Topics builds the topic hierarchy for one device:
//
//	<root>/status/<device-id>                 retained status report and presence
//	<root>/sensors/<device-id>/<sensor-type>  sensor readings
//	<root>/commands/<device-id>/.../<name>    inbound actuator commands
type Topics struct {
	Root     string
	DeviceID string
}

// NewTopics returns the topic builder for the configured device.
func NewTopics(d config.DeviceConfig) Topics {
	return Topics{Root: d.TopicRoot, DeviceID: d.ID}
}

// Status returns the status and presence topic.
//
// Example: liminal/status/esp32-001
func (t Topics) Status() string {
	return t.Root + "/status/" + t.DeviceID
}

// Sensor returns the reading topic for a sensor type.
//
// Example: liminal/sensors/esp32-001/orientation
func (t Topics) Sensor(sensorType string) string {
	return t.Root + "/sensors/" + t.DeviceID + "/" + sensorType
}

// CommandRoot returns the prefix every command topic for this device starts with.
//
// Example: liminal/commands/esp32-001
func (t Topics) CommandRoot() string {
	return t.Root + "/commands/" + t.DeviceID
}

// Command returns the command topic addressing a single peripheral.
//
// Example: liminal/commands/esp32-001/status_led
func (t Topics) Command(name string) string {
	return t.CommandRoot() + "/" + name
}

// Commands returns the wildcard subscription covering every command topic.
//
// Example: liminal/commands/esp32-001/#
func (t Topics) Commands() string {
	return t.CommandRoot() + "/#"
}

// validPublishTopic reports whether topic can be published to: non-empty and
// free of wildcard characters.
func validPublishTopic(topic string) bool {
	return topic != "" && !strings.ContainsAny(topic, "+#")
}
