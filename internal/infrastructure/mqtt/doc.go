// Package mqtt publishes SchoolHub auth and session events to an MQTT broker.
//
// The broker is optional. When mqtt.enabled is set, Core connects at
// startup and publishes:
//
//	schoolhub/core/event/{type}   login, login_failed, logout, refresh, ...
//	schoolhub/system/status       retained online/offline, with an LWT
//
// Every instance also subscribes to schoolhub/core/event/+ so events raised
// on another instance reach this instance's WebSocket clients.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.PublishEvent("login", payload)
//
// Use TLS (mqtt.broker.tls) outside local development. Event payloads carry
// usernames and user ids, never tokens or passwords.
package mqtt
