// Package migration opens configured SQLite connections and applies the
// embedded schema migrations.
//
// Migrations live in sql/ as goose-annotated files named
// {version}_{description}.sql and are compiled into the binary. Applied
// versions are tracked by goose in the goose_db_version table.
//
// Example usage:
//
//	db, err := NewConnectionManager(DefaultSQLiteConfig("inventory.db")).GetConnection()
//	if err != nil {
//		return err
//	}
//	migrator, err := NewMigrator(db, logger)
//	if err != nil {
//		return err
//	}
//	if err := migrator.Up(ctx); err != nil {
//		return err
//	}
package migration
