// Package database provides the SQLite connection used by the dashsync
// mutation journal.
//
// The connection is opened in WAL mode with a busy timeout and a single
// writer. Schema changes are plain SQL files applied by Migrate from any
// fs.FS, normally the embedded migrations package:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive. New columns must be nullable or carry a default,
// and every .up.sql ships with a .down.sql.
package database
