// Package mqtt connects a deckscan instrument to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - The experiment Bridge (progress out, commands in)
//
// # Architecture
//
// The broker is optional. When enabled, lab dashboards and automation
// scripts follow the instrument without polling the HTTP API:
//
//	Orchestrator ──progress/state/events──▶ Bridge ──▶ Broker ──▶ dashboards
//	Orchestrator ◀──Start/RequestStop/Reset── Bridge ◀── command topic
//
// See topics.go for the topic hierarchy.
//
// # Commands
//
// Publish to deckscan/{instrument}/command/experiment:
//
//	{"action": "start", "request_id": "r-1"}
//
// The result arrives on the reply topic:
//
//	{"request_id": "r-1", "action": "start", "ok": true, "run_id": "...", "state": "RUNNING", ...}
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) outside an isolated lab network
//   - Anyone who can publish to the command topic can start and stop runs;
//     restrict it in the broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Instrument.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	bridge := mqtt.NewBridge(client, client.Topics(), orch, byte(cfg.MQTT.QoS))
//	orch.OnProgress(bridge.PublishProgress)
//	orch.AddRecorder(bridge)
//	if err := bridge.Start(); err != nil {
//	    return err
//	}
package mqtt
