package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementLoginAttempts   = "login_attempts"
	MeasurementGuardRejections = "guard_rejections"
	MeasurementSessionEvents   = "session_events"
)

// Login outcomes, used as the "outcome" tag.
const (
	OutcomeSuccess         = "success"
	OutcomeInvalidUsername = "invalid_username"
	OutcomeInvalidPassword = "invalid_password"
	OutcomeError           = "error"
)

// WriteLoginAttempt records one login attempt. The username is a field,
// not a tag, to keep series cardinality bounded.
//
//	client.WriteLoginAttempt("admin1", influxdb.OutcomeSuccess, "admin")
func (c *Client) WriteLoginAttempt(username, outcome, role string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(loginAttemptPoint(username, outcome, role, time.Now()))
}

// WriteGuardRejection records a refused protected call. reason is the
// rejection class (unauthorized, inactive, insufficient_role, not_found).
func (c *Client) WriteGuardRejection(reason, route string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(guardRejectionPoint(reason, route, time.Now()))
}

// WriteSessionEvent records a refresh or logout, tagged by action and role.
func (c *Client) WriteSessionEvent(action, role string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(sessionEventPoint(action, role, time.Now()))
}

func loginAttemptPoint(username, outcome, role string, at time.Time) *write.Point {
	tags := map[string]string{"outcome": outcome}
	if role != "" {
		tags["role"] = role
	}
	return write.NewPoint(
		MeasurementLoginAttempts,
		tags,
		map[string]any{
			"count":    1,
			"username": username,
		},
		at,
	)
}

func guardRejectionPoint(reason, route string, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementGuardRejections,
		map[string]string{
			"reason": reason,
			"route":  route,
		},
		map[string]any{"count": 1},
		at,
	)
}

func sessionEventPoint(action, role string, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementSessionEvents,
		map[string]string{
			"action": action,
			"role":   role,
		},
		map[string]any{"count": 1},
		at,
	)
}
