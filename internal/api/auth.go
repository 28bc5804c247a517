package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/schoolhub-core/internal/audit"
	"github.com/nerrad567/schoolhub-core/internal/auth"
	"github.com/nerrad567/schoolhub-core/internal/infrastructure/config"
	"github.com/nerrad567/schoolhub-core/internal/infrastructure/influxdb"
)

// defaultTicketTTL applies when websocket.ticket_ttl is unset.
const defaultTicketTTL = 60 * time.Second

// ─── Request/Response Types ────────────────────────────────────────

// credentialsRequest is the JSON form of POST /auth/login.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type updateMeRequest struct {
	FullName *string         `json:"full_name"`
	Profile  json.RawMessage `json:"profile"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ─── Login / Refresh / Logout ──────────────────────────────────────

// handleLogin accepts form-encoded or JSON credentials and returns a token
// pair. Failures are audited and counted; the password never is.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeCredentials(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeValidationError(w, "username and password are required")
		return
	}

	pair, user, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		outcome := loginOutcome(err)
		s.recordLogin(req.Username, outcome, "")

		var le *auth.LoginError
		if errors.As(err, &le) && errors.Is(err, auth.ErrInvalidCredentials) {
			s.auditLog(audit.ActionLoginFailed, audit.EntitySession, "", "", map[string]any{
				"username": req.Username,
				"reason":   outcome,
				"ip":       clientIP(r),
			})
			s.emit(Event{Type: audit.ActionLoginFailed, Username: req.Username})
		}
		s.writeAuthError(w, r, err)
		return
	}

	s.recordLogin(user.Username, influxdb.OutcomeSuccess, string(user.Role))
	s.auditLog(audit.ActionLogin, audit.EntitySession, user.UUID, user.UUID, map[string]any{
		"username": user.Username,
		"ip":       clientIP(r),
	})
	s.emit(Event{Type: audit.ActionLogin, Username: user.Username, UserUUID: user.UUID, Role: string(user.Role)})

	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh exchanges a refresh token for a new pair. Every token
// failure answers 403.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeBadRequest(w, "invalid form body")
			return
		}
		req.RefreshToken = r.PostFormValue("refresh_token")
	}

	if req.RefreshToken == "" {
		s.writeAuthError(w, r, auth.ErrUnauthorized)
		return
	}

	pair, user, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.auditLog(audit.ActionRefresh, audit.EntitySession, user.UUID, user.UUID, nil)
	s.recordSessionEvent(audit.ActionRefresh, user.Role)
	s.emit(Event{Type: audit.ActionRefresh, Username: user.Username, UserUUID: user.UUID, Role: string(user.Role)})

	writeJSON(w, http.StatusOK, pair)
}

// handleLogout revokes the caller's refresh token. Repeating it is harmless.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	if err := s.auth.Logout(r.Context(), user.ID); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.auditLog(audit.ActionLogout, audit.EntitySession, user.UUID, user.UUID, nil)
	s.recordSessionEvent(audit.ActionLogout, user.Role)
	s.emit(Event{Type: audit.ActionLogout, Username: user.Username, UserUUID: user.UUID, Role: string(user.Role)})

	w.WriteHeader(http.StatusNoContent)
}

// ─── Current user ──────────────────────────────────────────────────

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{User: user, Permissions: auth.PermissionsForRole(user.Role)})
}

// meResponse is the caller's account plus what their role may do.
type meResponse struct {
	*auth.User
	Permissions []auth.Permission `json:"permissions"`
}

// handleUpdateMe lets a user edit their own name and profile detail.
// A student cannot move themselves between classrooms.
func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	var req updateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			writeValidationError(w, "full_name cannot be empty")
			return
		}
		user.FullName = name
	}

	if len(req.Profile) > 0 {
		profile, err := auth.DecodeProfile(user.Role, req.Profile)
		if err != nil {
			s.writeAuthError(w, r, err)
			return
		}
		keepClassroom(user.Profile, profile)
		user.Profile = profile
	}

	if err := s.users.Update(r.Context(), user); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.auditLog(audit.ActionUpdate, audit.EntityUser, user.UUID, user.UUID, map[string]any{"self": true})
	writeJSON(w, http.StatusOK, user)
}

// handleChangePassword replaces the caller's password and ends their session.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.auth.ChangePassword(r.Context(), user, req.CurrentPassword, req.NewPassword)
	if errors.Is(err, auth.ErrInvalidPassword) {
		writeUnauthorized(w, msgPasswordInvalid)
		return
	}
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.auditLog(audit.ActionPasswordChange, audit.EntityUser, user.UUID, user.UUID, nil)
	s.emit(Event{Type: audit.ActionPasswordChange, Username: user.Username, UserUUID: user.UUID, Role: string(user.Role)})

	w.WriteHeader(http.StatusNoContent)
}

// keepClassroom carries a student's classroom over to a self-edited profile.
func keepClassroom(current, next auth.ProfileDetail) {
	nextStudent, ok := next.(*auth.StudentProfile)
	if !ok {
		return
	}
	nextStudent.ClassroomID = nil
	if cur, ok := current.(*auth.StudentProfile); ok && cur.ClassroomID != nil {
		id := *cur.ClassroomID
		nextStudent.ClassroomID = &id
	}
}

// ─── Credential parsing ────────────────────────────────────────────

// decodeCredentials reads username and password from a JSON body or from
// an application/x-www-form-urlencoded (or multipart) form.
func decodeCredentials(r *http.Request, req *credentialsRequest) error {
	if isJSON(r) {
		return json.NewDecoder(r.Body).Decode(req)
	}
	if err := r.ParseForm(); err != nil {
		return err
	}
	req.Username = r.PostFormValue("username")
	req.Password = r.PostFormValue("password")
	return nil
}

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// loginOutcome maps a login error to a metrics outcome label.
func loginOutcome(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidUsername):
		return influxdb.OutcomeInvalidUsername
	case errors.Is(err, auth.ErrInvalidPassword):
		return influxdb.OutcomeInvalidPassword
	default:
		return influxdb.OutcomeError
	}
}

// recordLogin counts a login attempt in Prometheus and, when configured,
// InfluxDB.
func (s *Server) recordLogin(username, outcome, role string) {
	s.metrics.logins.WithLabelValues(outcome).Inc()
	if s.influx != nil {
		s.influx.WriteLoginAttempt(username, outcome, role)
	}
}

// recordSessionEvent writes a refresh or logout to InfluxDB when configured.
func (s *Server) recordSessionEvent(action string, role auth.Role) {
	if s.influx != nil {
		s.influx.WriteSessionEvent(action, string(role))
	}
}

// ─── WebSocket tickets ─────────────────────────────────────────────

// ticketStore holds pending WebSocket tickets. Tickets are single-use.
type ticketStore struct {
	ttl     time.Duration
	tickets map[string]ticketEntry
	mu      sync.Mutex
}

type ticketEntry struct {
	userUUID  string
	username  string
	role      auth.Role
	expiresAt time.Time
}

func newTicketStore(ttl time.Duration) *ticketStore {
	return &ticketStore{
		ttl:     ttl,
		tickets: make(map[string]ticketEntry),
	}
}

func ticketTTL(cfg config.WebSocketConfig) time.Duration {
	if cfg.TicketTTL <= 0 {
		return defaultTicketTTL
	}
	return time.Duration(cfg.TicketTTL) * time.Second
}

// issue stores a fresh ticket for user and returns it.
func (t *ticketStore) issue(user *auth.User) string {
	ticket := generateTicket()

	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{
		userUUID:  user.UUID,
		username:  user.Username,
		role:      user.Role,
		expiresAt: time.Now().Add(t.ttl),
	}
	t.mu.Unlock()

	return ticket
}

// redeem consumes a ticket. It fails for unknown, reused or expired tickets.
func (t *ticketStore) redeem(ticket string) (ticketEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}
	delete(t.tickets, ticket)

	if !time.Now().Before(entry.expiresAt) {
		return ticketEntry{}, false
	}
	return entry, true
}

func (t *ticketStore) cleanExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for ticket, entry := range t.tickets {
		if now.After(entry.expiresAt) {
			delete(t.tickets, ticket)
		}
	}
}

func (t *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(t.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.cleanExpired()
		}
	}
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// handleWSTicket issues a single-use ticket so the JWT never appears in a URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     s.tickets.issue(user),
		"expires_in": int(s.tickets.ttl.Seconds()),
	})
}
