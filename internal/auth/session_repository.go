package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/schoolhub-core/internal/infrastructure/database"
)

// SessionLedger tracks the single session record each user owns.
type SessionLedger interface {
	// Upsert records a successful login: it creates the user's record or
	// overwrites it, incrementing login_count by exactly one.
	Upsert(ctx context.Context, userID int64, refreshToken string, ttl time.Duration) (*Session, error)

	// Redeem returns the owner of a stored, unexpired refresh token.
	Redeem(ctx context.Context, refreshToken string) (int64, error)

	// Rotate swaps oldToken for newToken if oldToken is still current.
	Rotate(ctx context.Context, userID int64, oldToken, newToken string, ttl time.Duration) error

	// Revoke clears the stored token. The record and its counter remain.
	Revoke(ctx context.Context, userID int64) error

	Get(ctx context.Context, userID int64) (*Session, error)
	ClearExpired(ctx context.Context) (int64, error)
}

// SQLiteSessionLedger implements SessionLedger using SQLite.
type SQLiteSessionLedger struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionLedger creates a new SQLite-backed session ledger.
func NewSessionLedger(db *sql.DB) *SQLiteSessionLedger {
	return &SQLiteSessionLedger{db: db, now: time.Now}
}

// HashToken computes the SHA-256 hash of a raw token string for storage.
// Raw tokens are never stored, only their hashes.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

const sessionColumns = "user_id, token_hash, expires_at, login_count, last_login_at, created_at, updated_at"

// Upsert is a single statement, so concurrent logins of the same user
// serialise inside SQLite and no increment is lost. The returned record is
// the row as written.
func (l *SQLiteSessionLedger) Upsert(ctx context.Context, userID int64, refreshToken string, ttl time.Duration) (*Session, error) {
	now := l.now()
	ts := database.FormatTime(now)

	row := l.db.QueryRowContext(ctx,
		`INSERT INTO user_sessions (user_id, token_hash, expires_at, login_count, last_login_at, created_at, updated_at)
		 VALUES (?, ?, ?, 1, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			token_hash    = excluded.token_hash,
			expires_at    = excluded.expires_at,
			login_count   = user_sessions.login_count + 1,
			last_login_at = excluded.last_login_at,
			updated_at    = excluded.updated_at
		 RETURNING `+sessionColumns,
		userID, HashToken(refreshToken), database.FormatTime(now.Add(ttl)), ts, ts, ts,
	)

	s, err := scanSession(row)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("recording session: %w", err)
	}
	return s, nil
}

// Redeem looks up the record holding refreshToken. An expired record yields
// ErrTokenExpired and is left for the next login to overwrite.
func (l *SQLiteSessionLedger) Redeem(ctx context.Context, refreshToken string) (int64, error) {
	row := l.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM user_sessions WHERE token_hash = ?",
		HashToken(refreshToken),
	)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redeeming session: %w", err)
	}

	if !s.Active(l.now()) {
		return 0, ErrTokenExpired
	}
	return s.UserID, nil
}

// Rotate is a compare-and-swap on the stored hash; login_count is untouched.
// If another refresh or a logout got there first it returns ErrTokenRevoked.
func (l *SQLiteSessionLedger) Rotate(ctx context.Context, userID int64, oldToken, newToken string, ttl time.Duration) error {
	now := l.now()

	res, err := l.db.ExecContext(ctx,
		`UPDATE user_sessions SET token_hash = ?, expires_at = ?, updated_at = ?
		 WHERE user_id = ? AND token_hash = ?`,
		HashToken(newToken), database.FormatTime(now.Add(ttl)), database.FormatTime(now),
		userID, HashToken(oldToken),
	)
	if err != nil {
		return fmt.Errorf("rotating session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrTokenRevoked
	}
	return nil
}

// Revoke clears the user's stored refresh token.
func (l *SQLiteSessionLedger) Revoke(ctx context.Context, userID int64) error {
	res, err := l.db.ExecContext(ctx,
		"UPDATE user_sessions SET token_hash = NULL, updated_at = ? WHERE user_id = ?",
		database.FormatTime(l.now()), userID,
	)
	if err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // always succeeds on SQLite
		return ErrSessionNotFound
	}
	return nil
}

// Get returns the user's session record.
func (l *SQLiteSessionLedger) Get(ctx context.Context, userID int64) (*Session, error) {
	row := l.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM user_sessions WHERE user_id = ?", userID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return s, nil
}

// ClearExpired drops refresh-token hashes that are past expiry. Records
// are kept so login counters survive.
func (l *SQLiteSessionLedger) ClearExpired(ctx context.Context) (int64, error) {
	now := database.FormatTime(l.now())
	res, err := l.db.ExecContext(ctx,
		"UPDATE user_sessions SET token_hash = NULL, updated_at = ? WHERE token_hash IS NOT NULL AND expires_at <= ?",
		now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("clearing expired sessions: %w", err)
	}
	n, _ := res.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return n, nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var s Session
	var tokenHash sql.NullString
	var expiresAt, lastLoginAt, createdAt, updatedAt string

	if err := row.Scan(&s.UserID, &tokenHash, &expiresAt, &s.LoginCount,
		&lastLoginAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	s.TokenHash = tokenHash.String
	s.ExpiresAt = database.ParseTime(expiresAt)
	s.LastLoginAt = database.ParseTime(lastLoginAt)
	s.CreatedAt = database.ParseTime(createdAt)
	s.UpdatedAt = database.ParseTime(updatedAt)
	return &s, nil
}
