// Package api implements the HTTP REST API and WebSocket event feed for
// SchoolHub Core.
//
// This package provides:
//   - Login, refresh, logout and self-service endpoints under /api/v1/auth
//   - Admin user and classroom management, and the audit trail
//   - A WebSocket feed of auth and session events, authenticated by tickets
//   - Prometheus metrics at /metrics
//
// # Access control
//
// Protected routes name a permission; requireAuth turns it into the roles
// that hold it and asks the access guard to check the bearer token. Guard
// failures map to statuses in writeAuthError: a bad or missing token is 403,
// an unknown user 404, and an inactive user or missing role is 400 (403 when
// security.forbidden_status says so).
//
// # Optional backends
//
// MQTT and InfluxDB are optional. Without MQTT, events reach only this
// instance's WebSocket clients; without InfluxDB, login attempts are counted
// in Prometheus only.
package api
