// Package auth authenticates users and tracks their sessions.
//
// Three roles exist (admin, teacher, student), each with its own profile
// detail record. Passwords are stored as Argon2id PHC strings. Tokens are
// HS256 JWTs carrying a kind claim, so a refresh token is never accepted
// where an access token is expected.
//
// Every user has at most one session ledger row. A login overwrites it and
// increments login_count in the same statement; refresh rotates the stored
// token hash with a compare-and-swap; logout clears it.
//
// The Guard re-reads the user on every protected call, so deactivating an
// account takes effect on the next request without revoking tokens.
package auth
