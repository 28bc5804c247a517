package auth

import (
	"context"
	"errors"
	"fmt"
)

// LoginStage is a step of the login protocol. Stages only move forward;
// any failure ends the attempt in StageRejected.
type LoginStage int

const (
	StageStart LoginStage = iota
	StageCredentialChecked
	StageTokenIssued
	StageSessionRecorded
	StageDone
	StageRejected
)

func (s LoginStage) String() string {
	switch s {
	case StageStart:
		return "start"
	case StageCredentialChecked:
		return "credential_checked"
	case StageTokenIssued:
		return "token_issued"
	case StageSessionRecorded:
		return "session_recorded"
	case StageDone:
		return "done"
	case StageRejected:
		return "rejected"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// LoginError reports the last stage a rejected login reached.
type LoginError struct {
	Stage LoginStage
	Err   error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login rejected after %s: %v", e.Stage, e.Err)
}

func (e *LoginError) Unwrap() error {
	return e.Err
}

// MinPasswordLength is the shortest password accepted on create or change.
const MinPasswordLength = 8

// ValidatePassword checks a new password against the length rule.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, MinPasswordLength)
	}
	return nil
}

// Authenticator runs the login, refresh and logout protocols.
type Authenticator struct {
	users  UserRepository
	ledger SessionLedger
	codec  *TokenCodec
}

// NewAuthenticator wires the credential store, session ledger and codec.
func NewAuthenticator(users UserRepository, ledger SessionLedger, codec *TokenCodec) *Authenticator {
	return &Authenticator{users: users, ledger: ledger, codec: codec}
}

// Login verifies credentials, mints a token pair and records the session.
// Tokens are only returned once the ledger write has succeeded. The user
// the pair was issued for is returned alongside it.
//
// Inactive accounts can log in; the guard refuses them on protected calls.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*TokenPair, *User, error) {
	stage := StageStart

	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			burnVerify(password)
			return nil, nil, &LoginError{Stage: stage, Err: fmt.Errorf("%w: %w", ErrInvalidUsername, ErrInvalidCredentials)}
		}
		return nil, nil, &LoginError{Stage: stage, Err: err}
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return nil, nil, &LoginError{Stage: stage, Err: fmt.Errorf("%w: %w", ErrInvalidPassword, ErrInvalidCredentials)}
	}
	stage = StageCredentialChecked

	pair, refreshToken, err := a.issuePair(user)
	if err != nil {
		return nil, nil, &LoginError{Stage: stage, Err: err}
	}
	stage = StageTokenIssued

	if _, err := a.ledger.Upsert(ctx, user.ID, refreshToken, a.codec.TTL(TokenKindRefresh)); err != nil {
		return nil, nil, &LoginError{Stage: stage, Err: err}
	}

	return pair, user, nil
}

// Refresh exchanges a current refresh token for a new pair and returns the
// session's owner. The presented token stops working once this returns.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*TokenPair, *User, error) {
	claims, err := a.codec.Decode(refreshToken, TokenKindRefresh)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	userID, err := a.ledger.Redeem(ctx, refreshToken)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return nil, nil, fmt.Errorf("%w: %w", ErrUnauthorized, ErrTokenRevoked)
	case errors.Is(err, ErrTokenExpired):
		return nil, nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case err != nil:
		return nil, nil, err
	}

	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return nil, nil, err
	}
	if user.Username != claims.Username() {
		return nil, nil, fmt.Errorf("%w: token subject does not own session", ErrUnauthorized)
	}
	if !user.IsActive {
		return nil, nil, ErrUserInactive
	}

	pair, newRefresh, err := a.issuePair(user)
	if err != nil {
		return nil, nil, err
	}
	if err := a.ledger.Rotate(ctx, user.ID, refreshToken, newRefresh, a.codec.TTL(TokenKindRefresh)); err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			return nil, nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return nil, nil, err
	}
	return pair, user, nil
}

// Logout revokes the user's refresh token. Logging out without a session
// is not an error.
func (a *Authenticator) Logout(ctx context.Context, userID int64) error {
	if err := a.ledger.Revoke(ctx, userID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return nil
}

// ChangePassword replaces the user's password after checking the current
// one, then revokes the session so other clients must log in again.
func (a *Authenticator) ChangePassword(ctx context.Context, user *User, current, next string) error {
	if !VerifyPassword(current, user.PasswordHash) {
		return ErrInvalidPassword
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}

	hash, err := HashPassword(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := a.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	return a.Logout(ctx, user.ID)
}

func (a *Authenticator) issuePair(user *User) (*TokenPair, string, error) {
	access, _, err := a.codec.Issue(user, TokenKindAccess)
	if err != nil {
		return nil, "", err
	}
	refresh, _, err := a.codec.Issue(user, TokenKindRefresh)
	if err != nil {
		return nil, "", err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(a.codec.TTL(TokenKindAccess).Seconds()),
	}, refresh, nil
}
