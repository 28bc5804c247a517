package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nerrad567/schoolhub-core/internal/infrastructure/database"
	_ "github.com/nerrad567/schoolhub-core/migrations" // registers the schema
)

const testPassword = "correct-horse-battery"

var (
	testHashOnce sync.Once
	testHash     string
)

// testDB opens a temp-file SQLite database with every migration applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

// testPasswordHash hashes testPassword once per test binary.
func testPasswordHash(t *testing.T) string {
	t.Helper()
	testHashOnce.Do(func() {
		var err error
		if testHash, err = HashPassword(testPassword); err != nil {
			t.Fatalf("hashing test password: %v", err)
		}
	})
	return testHash
}

// seedTestUser creates an active user whose password is testPassword.
func seedTestUser(t *testing.T, db *sql.DB, username string, role Role) *User {
	t.Helper()

	u := &User{
		Username:     username,
		FullName:     "Test " + username,
		PasswordHash: testPasswordHash(t),
		Role:         role,
		IsActive:     true,
	}
	if err := NewUserRepository(db).Create(context.Background(), u); err != nil {
		t.Fatalf("seeding user %s: %v", username, err)
	}
	return u
}

func insertClassroom(t *testing.T, db *sql.DB, name string) int64 {
	t.Helper()
	res, err := db.Exec("INSERT INTO classrooms (name) VALUES (?)", name)
	if err != nil {
		t.Fatalf("inserting classroom: %v", err)
	}
	id, _ := res.LastInsertId() //nolint:errcheck // always succeeds on SQLite
	return id
}
