// Package database provides SQLite connectivity for Tracker Core.
//
// SQLite holds the motion baselines (one row per device serial) so that
// the moved-event hysteresis survives a restart. The package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Versioned schema migrations loaded from an fs.FS
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql, and are embedded by the top-level migrations package.
package database
