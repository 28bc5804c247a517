package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-32 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,32}$`)

// maxUsernameLength matches the users.username column width.
const maxUsernameLength = 32

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// Role is the account type of a user. It selects the profile detail variant
// and is fixed at creation.
type Role string

const (
	// RoleAdmin manages accounts, classrooms and the audit trail.
	RoleAdmin Role = "admin"

	// RoleTeacher is a staff member. Can read classrooms and edit their own profile.
	RoleTeacher Role = "teacher"

	// RoleStudent is enrolled in at most one classroom.
	RoleStudent Role = "student"
)

// ValidRoles is the set of roles an account can hold.
var ValidRoles = []Role{RoleAdmin, RoleTeacher, RoleStudent}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User is a stored identity. ID is internal; UUID is the external reference.
type User struct {
	ID           int64         `json:"-"`
	UUID         string        `json:"uuid"`
	Username     string        `json:"username"`
	PasswordHash string        `json:"-"` // never serialised
	FullName     string        `json:"full_name"`
	Role         Role          `json:"role"`
	IsActive     bool          `json:"is_active"`
	Profile      ProfileDetail `json:"profile,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Session is the session ledger record of one user.
type Session struct {
	UserID      int64     `json:"-"`
	TokenHash   string    `json:"-"` // empty after logout
	ExpiresAt   time.Time `json:"expires_at"`
	LoginCount  int64     `json:"login_count"`
	LastLoginAt time.Time `json:"last_login_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Active reports whether the session still holds an unexpired refresh token.
func (s *Session) Active(now time.Time) bool {
	return s.TokenHash != "" && now.Before(s.ExpiresAt)
}

// TokenPair is returned to the client after login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUsername    = errors.New("username invalid")
	ErrInvalidPassword    = errors.New("password invalid")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidRole        = errors.New("invalid role")
	ErrWeakPassword       = errors.New("password too weak")
	ErrInsufficientRole   = errors.New("user doesn't have privileges")
	ErrUnauthorized       = errors.New("could not validate credentials")

	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenSignature = errors.New("token signature is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenKind      = errors.New("token kind not accepted")
	ErrTokenRevoked   = errors.New("token has been revoked")
	ErrMissingSecret  = errors.New("signing secret is not configured")

	ErrSessionNotFound = errors.New("session not found")
	ErrProfileMismatch = errors.New("profile detail does not match role")
	ErrInvalidProfile  = errors.New("invalid profile detail")
)
