// Package database provides the SQLite store used for bridge state that must
// survive a restart, such as the announced sink address.
//
// Schema changes are applied from embedded SQL files by Migrate. File names
// follow YYYYMMDD_HHMMSS_description.up.sql with an optional .down.sql.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
