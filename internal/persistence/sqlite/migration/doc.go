// Package migration applies versioned SQL migrations to a SQLite database.
//
// Migrations are read from an fs.FS, usually an embed.FS compiled into the
// binary, and must be named {version}_{description}.sql (for example
// "001_series.sql"). Applied versions are tracked in the schema_migrations
// table so that every migration runs exactly once.
//
// Example usage:
//
//	manager := migration.NewManager(db, migration.NewScanner(files, "migrations"), logger)
//	if err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
