package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "test-secret-key-for-jwt-signing-32+"

func testCodec(t *testing.T) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(testSecret, 30*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	return codec
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	codec := testCodec(t)
	user := &User{UUID: "3f1c9a2e-0000-4000-8000-000000000001", Username: "admin1", Role: RoleAdmin}

	token, expiresAt, err := codec.Issue(user, TokenKindAccess)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if token == "" {
		t.Fatal("Issue() returned empty token")
	}

	claims, err := codec.Decode(token, TokenKindAccess)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if claims.Username() != "admin1" {
		t.Errorf("Username() = %q, want %q", claims.Username(), "admin1")
	}
	if claims.UserUUID != user.UUID {
		t.Errorf("UserUUID = %q, want %q", claims.UserUUID, user.UUID)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", claims.Role, RoleAdmin)
	}
	if claims.Kind != TokenKindAccess {
		t.Errorf("Kind = %q, want %q", claims.Kind, TokenKindAccess)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
	if diff := claims.ExpiresAt.Time.Sub(expiresAt); diff > time.Second || diff < -time.Second {
		t.Errorf("ExpiresAt drift = %v", diff)
	}
}

func TestTokenCodec_Expiry(t *testing.T) {
	codec := testCodec(t)
	issuedAt := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	codec.now = func() time.Time { return issuedAt }

	token, _, err := codec.Issue(&User{Username: "teacher1", Role: RoleTeacher}, TokenKindAccess)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	codec.now = func() time.Time { return issuedAt.Add(30*time.Minute - 2*time.Second) }
	if _, err := codec.Decode(token, TokenKindAccess); err != nil {
		t.Fatalf("Decode() before expiry error = %v", err)
	}

	codec.now = func() time.Time { return issuedAt.Add(30*time.Minute + time.Second) }
	_, err = codec.Decode(token, TokenKindAccess)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Decode() after expiry error = %v, want ErrTokenExpired", err)
	}
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expired token error should also match ErrTokenInvalid")
	}
}

func TestTokenCodec_RefreshTTL(t *testing.T) {
	codec := testCodec(t)
	now := time.Now()
	codec.now = func() time.Time { return now }

	_, expiresAt, err := codec.Issue(&User{Username: "student1", Role: RoleStudent}, TokenKindRefresh)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if got := expiresAt.Sub(now); got != 7*24*time.Hour {
		t.Errorf("refresh lifetime = %v, want %v", got, 7*24*time.Hour)
	}
}

func TestTokenCodec_KindMismatch(t *testing.T) {
	codec := testCodec(t)
	user := &User{Username: "student1", Role: RoleStudent}

	refresh, _, err := codec.Issue(user, TokenKindRefresh)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = codec.Decode(refresh, TokenKindAccess)
	if !errors.Is(err, ErrTokenKind) {
		t.Errorf("Decode(refresh as access) error = %v, want ErrTokenKind", err)
	}

	if _, err := codec.Decode(refresh, TokenKindRefresh); err != nil {
		t.Errorf("Decode(refresh as refresh) error = %v", err)
	}
}

func TestTokenCodec_WrongSecret(t *testing.T) {
	codec := testCodec(t)
	other, err := NewTokenCodec("another-secret-key-for-jwt-signing", 0, 0)
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}

	token, _, err := other.Issue(&User{Username: "admin1", Role: RoleAdmin}, TokenKindAccess)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = codec.Decode(token, TokenKindAccess)
	if !errors.Is(err, ErrTokenSignature) {
		t.Errorf("Decode() error = %v, want ErrTokenSignature", err)
	}
}

func TestTokenCodec_Malformed(t *testing.T) {
	codec := testCodec(t)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-valid-jwt"},
		{"two segments", "abc.def"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.token, TokenKindAccess)
			if !errors.Is(err, ErrTokenMalformed) {
				t.Errorf("Decode(%q) error = %v, want ErrTokenMalformed", tt.token, err)
			}
		})
	}
}

func TestTokenCodec_TamperedPayload(t *testing.T) {
	codec := testCodec(t)
	token, _, err := codec.Issue(&User{Username: "student1", Role: RoleStudent}, TokenKindAccess)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// Swap the payload for one minted for a different user.
	forged, _, err := codec.Issue(&User{Username: "admin1", Role: RoleAdmin}, TokenKindAccess)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	parts := strings.Split(token, ".")
	forgedParts := strings.Split(forged, ".")
	tampered := parts[0] + "." + forgedParts[1] + "." + parts[2]

	if _, err := codec.Decode(tampered, TokenKindAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Decode(tampered) error = %v, want ErrTokenInvalid", err)
	}
}

func TestNewTokenCodec_MissingSecret(t *testing.T) {
	if _, err := NewTokenCodec("", time.Minute, time.Hour); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("NewTokenCodec(\"\") error = %v, want ErrMissingSecret", err)
	}
}

func TestNewTokenCodec_DefaultTTLs(t *testing.T) {
	codec, err := NewTokenCodec(testSecret, 0, 0)
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	if codec.TTL(TokenKindAccess) != 30*time.Minute {
		t.Errorf("access TTL = %v, want 30m", codec.TTL(TokenKindAccess))
	}
	if codec.TTL(TokenKindRefresh) != 7*24*time.Hour {
		t.Errorf("refresh TTL = %v, want 168h", codec.TTL(TokenKindRefresh))
	}
}
