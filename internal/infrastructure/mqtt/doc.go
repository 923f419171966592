// Package mqtt is the publish/subscribe transport of a liminal device.
//
// It wraps paho.mqtt.golang with:
//   - a non-blocking first connection (BeginConnect/Poll) so the control
//     loop never waits on a missing broker
//   - auto-reconnect with subscriptions restored on every connection
//   - a retained online/offline presence marker on the status topic, with
//     the offline variant registered as Last Will and Testament
//   - panic recovery around message handlers
//
// It also provides Broker, an embedded mochi-mqtt broker for bench setups
// and tests.
//
// # Topics
//
//	<root>/status/<device-id>                 status report + presence (retained)
//	<root>/sensors/<device-id>/<sensor-type>  sensor readings
//	<root>/commands/<device-id>/#             inbound commands
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.Device)
//	client := mqtt.New(cfg.MQTT, topics, mqtt.ClientID(cfg.MQTT.Broker.ClientIDPrefix, cfg.Link.Interface))
//	_ = client.Subscribe(topics.Commands(), 1, handler)
//	_ = client.BeginConnect()
//	// later, from the loop:
//	if pending, err := client.Poll(); !pending && err != nil { ... }
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS) for any broker outside the local host
//   - The embedded broker allows anonymous clients unless mqtt.auth is set
package mqtt
