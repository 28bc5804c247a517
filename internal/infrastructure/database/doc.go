// Package database opens the SQLite store and applies schema migrations.
//
// Every table is created STRICT and stores timestamps as RFC 3339 TEXT in UTC
// (see FormatTime and ParseTime). Foreign keys are enforced on every
// connection, which the profile and session tables rely on for cascading
// deletes.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are embedded by the top-level migrations package and applied in
// filename order. Each version has an .up.sql and, where reversible, a
// .down.sql file.
package database
