// Package database provides the SQLite connection and schema migrations
// for the experiment run history.
//
// This package manages:
//   - Database connection with WAL mode and a busy timeout
//   - Schema migrations read from an fs.FS (the embedded migrations package)
//   - Lifecycle and health checks
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//	repo := experiment.NewSQLiteRepository(db.DB)
//
// Migration Strategy:
//
// Migrations are additive-only:
//   - New columns must be NULLABLE or have DEFAULT values
//   - Never DROP or RENAME columns in an up migration
//   - Each migration has both .up.sql and .down.sql
package database
