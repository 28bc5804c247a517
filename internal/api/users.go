package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/schoolhub-core/internal/audit"
	"github.com/nerrad567/schoolhub-core/internal/auth"
)

// ─── Request/Response Types ────────────────────────────────────────

type createUserRequest struct {
	Username string          `json:"username"`
	Password string          `json:"password"`
	FullName string          `json:"full_name"`
	Role     auth.Role       `json:"role"`
	IsActive *bool           `json:"is_active,omitempty"`
	Profile  json.RawMessage `json:"profile,omitempty"`
}

type updateUserRequest struct {
	FullName *string         `json:"full_name,omitempty"`
	IsActive *bool           `json:"is_active,omitempty"`
	Profile  json.RawMessage `json:"profile,omitempty"`
}

// ─── Handlers ──────────────────────────────────────────────────────

// handleListUsers pages through accounts.
//
// Query parameters:
//   - skip: rows to skip (default 0)
//   - limit: page size (default 100, max 500)
//   - order_by: asc or desc by creation
//   - role: admin, teacher or student
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	skip, ok := queryInt(q.Get("skip"), 0)
	if !ok {
		writeValidationError(w, "skip must be a non-negative integer")
		return
	}
	limit, ok := queryInt(q.Get("limit"), 0)
	if !ok {
		writeValidationError(w, "limit must be a non-negative integer")
		return
	}
	order, ok := auth.ParseSortOrder(q.Get("order_by"))
	if !ok {
		writeValidationError(w, "order_by must be asc or desc")
		return
	}
	role := auth.Role(q.Get("role"))
	if role != "" && !auth.IsValidRole(role) {
		writeValidationError(w, "role must be admin, teacher or student")
		return
	}

	users, err := s.users.List(r.Context(), auth.ListOptions{
		Skip:  skip,
		Limit: limit,
		Order: order,
		Role:  role,
	})
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": users,
		"count": len(users),
	})
}

// handleCreateUser registers an account with its role profile.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	admin, _ := userFromContext(r.Context())

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	req.FullName = strings.TrimSpace(req.FullName)
	if req.Username == "" || req.Password == "" || req.FullName == "" {
		writeValidationError(w, "username, password and full_name are required")
		return
	}
	if !auth.IsValidRole(req.Role) {
		writeValidationError(w, "role must be admin, teacher or student")
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	profile, err := auth.DecodeProfile(req.Role, req.Profile)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	user := &auth.User{
		Username:     req.Username,
		PasswordHash: hash,
		FullName:     req.FullName,
		Role:         req.Role,
		IsActive:     req.IsActive == nil || *req.IsActive,
		Profile:      profile,
	}
	if err := s.users.Create(r.Context(), user); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.requestLogger(r).Info("user created", "uuid", user.UUID, "username", user.Username, "role", user.Role, "created_by", admin.Username)
	s.auditLog(audit.ActionCreate, audit.EntityUser, user.UUID, admin.UUID, map[string]any{
		"username": user.Username,
		"role":     user.Role,
	})

	writeJSON(w, http.StatusCreated, user)
}

// handleGetUser returns one account by uuid.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetByUUID(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleUpdateUser patches full_name, is_active and the profile detail.
// The role and username are fixed at creation.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	admin, _ := userFromContext(r.Context())

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.users.GetByUUID(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	changed := make([]string, 0, 3)
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			writeValidationError(w, "full_name cannot be empty")
			return
		}
		user.FullName = name
		changed = append(changed, "full_name")
	}
	if req.IsActive != nil {
		if user.ID == admin.ID && !*req.IsActive {
			writeValidationError(w, "cannot deactivate your own account")
			return
		}
		user.IsActive = *req.IsActive
		changed = append(changed, "is_active")
	}
	if len(req.Profile) > 0 {
		profile, err := auth.DecodeProfile(user.Role, req.Profile)
		if err != nil {
			s.writeAuthError(w, r, err)
			return
		}
		user.Profile = profile
		changed = append(changed, "profile")
	}

	if err := s.users.Update(r.Context(), user); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.auditLog(audit.ActionUpdate, audit.EntityUser, user.UUID, admin.UUID, map[string]any{
		"fields": changed,
	})
	writeJSON(w, http.StatusOK, user)
}

// handleDeleteUser removes an account together with its profile and session.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	admin, _ := userFromContext(r.Context())

	user, err := s.users.GetByUUID(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	if user.ID == admin.ID {
		writeValidationError(w, "cannot delete your own account")
		return
	}

	if err := s.users.Delete(r.Context(), user.ID); err != nil {
		s.writeAuthError(w, r, err)
		return
	}

	s.requestLogger(r).Info("user deleted", "uuid", user.UUID, "username", user.Username, "deleted_by", admin.Username)
	s.auditLog(audit.ActionDelete, audit.EntityUser, user.UUID, admin.UUID, map[string]any{
		"username": user.Username,
	})

	w.WriteHeader(http.StatusNoContent)
}
