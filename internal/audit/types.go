// Package audit records and queries the trail of authentication and
// administrative actions.
package audit

import "time"

// Action names recorded in audit_logs.action.
const (
	ActionLogin          = "login"
	ActionLoginFailed    = "login_failed"
	ActionLogout         = "logout"
	ActionRefresh        = "refresh"
	ActionPasswordChange = "password_change"
	ActionCreate         = "create"
	ActionUpdate         = "update"
	ActionDelete         = "delete"
)

// Entity types recorded in audit_logs.entity_type.
const (
	EntityUser      = "user"
	EntitySession   = "session"
	EntityClassroom = "classroom"
)

// Sources recorded in audit_logs.source.
const (
	SourceAPI    = "api"
	SourceSystem = "system"
)

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"` // uuid of the acting user
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which audit logs to return. Empty fields match anything.
type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	UserID     string
	Limit      int // default 50, max 200
	Offset     int
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}
