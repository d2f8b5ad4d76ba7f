// Package mqtt is Printwatch Core's outbound announcement bus.
//
// # Architecture
//
// Retained connection-status snapshots and one-shot job events let
// dashboards and automations follow the printer fleet without polling:
//
//	Printwatch Core → MQTT Broker → Dashboards / Automations
//
// The client is publish-only; nothing in the service reacts to inbound
// broker traffic. Reconnection is handled by paho's auto-reconnect, and
// a retained last-will message on the system status topic flips the
// service to offline if it dies without a graceful disconnect.
//
// Topic layout (see topics.go):
//
//	printwatch/status/<printer>  retained connection snapshots
//	printwatch/job/<printer>     one-shot finished-job events
//	printwatch/system/status     service online/offline + LWT
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.PrinterStatus("voron-350")
//	client.Publish(topic, []byte(`{"phase":"connected"}`), 1, true)
//
// Enable cfg.Broker.TLS for anything beyond local development; payloads
// are not encrypted beyond the transport.
package mqtt
