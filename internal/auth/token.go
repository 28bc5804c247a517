package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind distinguishes access tokens from refresh tokens. Both share the
// signing key, so the kind claim is what stops a refresh token being used
// as a bearer credential.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Claims is the signed token payload.
type Claims struct {
	jwt.RegisteredClaims
	UserUUID string    `json:"uid"`
	Role     Role      `json:"role"`
	Kind     TokenKind `json:"kind"`
}

// Username returns the identity the token was minted for.
func (c *Claims) Username() string {
	return c.Subject
}

// TokenCodec signs and verifies HS256 tokens with a process-wide secret.
// It is safe for concurrent use.
type TokenCodec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenCodec creates a codec. An empty secret is a configuration error.
func NewTokenCodec(secret string, accessTTL, refreshTTL time.Duration) (*TokenCodec, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute //nolint:mnd // default access token lifetime
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour //nolint:mnd // default refresh token lifetime
	}
	return &TokenCodec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// TTL returns the lifetime used for tokens of the given kind.
func (c *TokenCodec) TTL(kind TokenKind) time.Duration {
	if kind == TokenKindRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Issue mints a signed token of the given kind for user.
func (c *TokenCodec) Issue(user *User, kind TokenKind) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.TTL(kind))

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		UserUUID: user.UUID,
		Role:     user.Role,
		Kind:     kind,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing %s token: %w", kind, err)
	}
	return signed, expiresAt, nil
}

// Decode verifies a token and returns its claims. Every failure matches
// ErrTokenInvalid; the specific cause (ErrTokenSignature, ErrTokenExpired,
// ErrTokenMalformed, ErrTokenKind) is wrapped alongside it.
func (c *TokenCodec) Decode(tokenString string, want TokenKind) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrTokenInvalid, classifyJWTError(err), err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, ErrTokenMalformed)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: %w: missing subject", ErrTokenInvalid, ErrTokenMalformed)
	}
	if claims.Kind != want {
		return nil, fmt.Errorf("%w: %w: got %q, want %q", ErrTokenInvalid, ErrTokenKind, claims.Kind, want)
	}

	return claims, nil
}

func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenSignature
	default:
		return ErrTokenMalformed
	}
}
