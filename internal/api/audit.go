package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nerrad567/schoolhub-core/internal/audit"
)

// auditChanSize is the buffer size for the async audit log channel.
// Entries beyond this are dropped so a slow disk never stalls a login.
const auditChanSize = 256

// auditLog enqueues an audit entry for the background writer. When the
// channel is full the entry is dropped and a warning is logged.
func (s *Server) auditLog(action, entityType, entityID, userID string, details map[string]any) {
	if s.auditRepo == nil || s.auditCh == nil {
		return
	}

	entry := &audit.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		Source:     audit.SourceAPI,
		Details:    details,
	}

	select {
	case s.auditCh <- entry:
	default:
		s.logger.Warn("audit log channel full, dropping entry",
			"action", action,
			"entity_type", entityType,
		)
	}
}

// drainAuditLog writes queued entries one at a time, matching SQLite's
// single-writer model. On cancellation it flushes what is left and returns.
func (s *Server) drainAuditLog(ctx context.Context) {
	for {
		select {
		case entry := <-s.auditCh:
			s.writeAuditEntry(entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-s.auditCh:
					s.writeAuditEntry(entry)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) writeAuditEntry(entry *audit.AuditLog) {
	// Detached from the request: the entry outlives it.
	if err := s.auditRepo.Create(context.Background(), entry); err != nil {
		s.logger.Error("audit log write failed",
			"action", entry.Action,
			"entity_type", entry.EntityType,
			"error", err,
		)
	}
}

// handleListAuditLogs returns paginated audit entries, newest first.
//
// Query parameters:
//   - action: login, login_failed, logout, refresh, password_change, create, update, delete
//   - entity_type: user, session, classroom
//   - entity_id, user_id: exact match on a uuid or classroom id
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeInternalError(w, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		UserID:     q.Get("user_id"),
	}

	var ok bool
	if filter.Limit, ok = queryInt(q.Get("limit"), 0); !ok {
		writeValidationError(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, ok = queryInt(q.Get("offset"), 0); !ok {
		writeValidationError(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.requestLogger(r).Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// queryInt parses a non-negative integer query value, returning def when
// the value is empty.
func queryInt(v string, def int) (int, bool) {
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
