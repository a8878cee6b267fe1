// Package database provides the SQLite database behind the capture catalog.
//
// It opens the database in WAL mode with a busy timeout, applies the
// embedded schema migrations and exposes health checks. All queries use
// parameterised statements and the database file is kept at mode 0600.
//
// Usage:
//
//	db, err := database.Open(database.FromConfig(cfg.Database))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are YYYYMMDD_HHMMSS_description.up.sql files with an optional
// matching .down.sql, applied in version order.
package database
