package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/schoolhub-core/internal/auth"
	"github.com/nerrad567/schoolhub-core/internal/classroom"
)

// Error is the JSON error body. Detail repeats Message for clients written
// against the {detail} shape.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// Error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeUnauthorized    = "unauthorised"
	ErrCodeForbidden       = "forbidden"
	ErrCodeConflict        = "conflict"
	ErrCodeInternal        = "internal_error"
	ErrCodeValidation      = "validation_error"
	ErrCodeTooManyRequests = "too_many_requests"
	ErrCodeBadCredentials  = "invalid_credentials"
	ErrCodeInactive        = "inactive_user"
)

// User-facing messages for auth failures.
const (
	msgUsernameInvalid    = "Username invalid"
	msgPasswordInvalid    = "Password invalid"
	msgInvalidCredentials = "Invalid credentials"
	msgCouldNotValidate   = "Could not validate credentials"
	msgUserNotFound       = "User not found"
	msgInactiveUser       = "Inactive user"
	msgNoPrivileges       = "User doesn't have privileges"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
		Detail:  message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

func writeTooManyRequests(w http.ResponseWriter) {
	writeError(w, http.StatusTooManyRequests, ErrCodeTooManyRequests, "Too many requests")
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeAuthError maps auth, guard and repository errors to responses.
// Token failures of every kind collapse into one 403 message. Anything
// unrecognised is logged and reported as a bare 500.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		msg := msgInvalidCredentials
		if !s.secCfg.UnifyCredentialErrors {
			switch {
			case errors.Is(err, auth.ErrInvalidUsername):
				msg = msgUsernameInvalid
			case errors.Is(err, auth.ErrInvalidPassword):
				msg = msgPasswordInvalid
			}
		}
		writeError(w, http.StatusUnauthorized, ErrCodeBadCredentials, msg)

	// Checked before ErrUserNotFound: a reused username is wrapped in both.
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusForbidden, ErrCodeUnauthorized, msgCouldNotValidate)

	case errors.Is(err, auth.ErrUserNotFound):
		writeNotFound(w, msgUserNotFound)

	case errors.Is(err, auth.ErrUserInactive):
		writeError(w, s.forbiddenStatus(), ErrCodeInactive, msgInactiveUser)

	case errors.Is(err, auth.ErrInsufficientRole):
		writeError(w, s.forbiddenStatus(), ErrCodeForbidden, msgNoPrivileges)

	case errors.Is(err, auth.ErrUsernameExists):
		writeConflict(w, "Username already registered")

	case errors.Is(err, classroom.ErrClassroomExists):
		writeConflict(w, "Classroom already exists")

	case errors.Is(err, classroom.ErrClassroomNotFound):
		writeNotFound(w, "Classroom not found")

	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidProfile),
		errors.Is(err, auth.ErrProfileMismatch),
		errors.Is(err, auth.ErrInvalidRole),
		errors.Is(err, auth.ErrInvalidUsername),
		errors.Is(err, classroom.ErrInvalidName):
		writeValidationError(w, err.Error())

	default:
		s.requestLogger(r).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeInternalError(w, "internal server error")
	}
}

// forbiddenStatus is the status for inactive accounts and missing roles.
func (s *Server) forbiddenStatus() int {
	if s.secCfg.ForbiddenStatus == http.StatusForbidden {
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}
