package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

const seedPasswordBytes = 16

// SeedOptions configures the first-boot admin account.
type SeedOptions struct {
	Username string
	FullName string
	Password string // generated when empty
}

// SeedAdmin creates an admin account when the user table is empty, so a fresh
// install can be logged into. A generated password is logged once and
// returned; the result is empty when seeding was skipped.
func SeedAdmin(ctx context.Context, users UserRepository, opts SeedOptions, logger *slog.Logger) (string, error) {
	count, err := users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Debug("users exist, skipping admin seed")
		return "", nil
	}

	if opts.Username == "" {
		opts.Username = "admin"
	}
	if opts.FullName == "" {
		opts.FullName = "Administrator"
	}

	password := opts.Password
	generated := password == ""
	if generated {
		buf := make([]byte, seedPasswordBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generating seed password: %w", err)
		}
		password = hex.EncodeToString(buf)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	admin := &User{
		Username:     opts.Username,
		FullName:     opts.FullName,
		PasswordHash: hash,
		Role:         RoleAdmin,
		IsActive:     true,
	}
	if err := users.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("creating seed admin: %w", err)
	}

	if generated {
		logger.Warn("seed admin account created",
			"username", admin.Username,
			"initial_password", password,
			"action_required", "change this password immediately",
		)
	} else {
		logger.Info("seed admin account created", "username", admin.Username)
	}
	return password, nil
}
