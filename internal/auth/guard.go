package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Guard authorises bearer tokens on protected calls.
type Guard struct {
	codec *TokenCodec
	users UserRepository
}

// NewGuard creates a guard over the given codec and credential store.
func NewGuard(codec *TokenCodec, users UserRepository) *Guard {
	return &Guard{codec: codec, users: users}
}

// Authorize resolves an access token to a live user. The user is re-read on
// every call so deactivation takes effect immediately. Checks run in order:
// token (ErrUnauthorized), existence (ErrUserNotFound), active flag
// (ErrUserInactive), then role (ErrInsufficientRole) when required is set.
func (g *Guard) Authorize(ctx context.Context, token string, required ...Role) (*User, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}

	claims, err := g.codec.Decode(token, TokenKindAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	user, err := g.users.GetByUsername(ctx, claims.Username())
	if err != nil {
		return nil, err
	}
	if claims.UserUUID != "" && claims.UserUUID != user.UUID {
		// Username was reused by a newer account.
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, ErrUserNotFound)
	}

	if !user.IsActive {
		return nil, ErrUserInactive
	}
	if len(required) > 0 && !slices.Contains(required, user.Role) {
		return nil, ErrInsufficientRole
	}
	return user, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// IsGuardRejection reports whether err came from a failed Authorize check
// rather than an internal fault.
func IsGuardRejection(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrUserInactive) ||
		errors.Is(err, ErrInsufficientRole)
}
