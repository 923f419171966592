// Package database provides SQLite connectivity for Liminal Core.
//
// It opens the local database file with WAL mode and a busy timeout, and
// applies versioned SQL migrations from an fs.FS (normally the embedded
// migrations package).
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Journal.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// The database holds the command journal only. Peripheral state is never
// stored here and never restored at startup.
package database
