// Package database owns the SQLite connection behind the message store.
//
// The workload is one append-heavy table: the poller inserts, the API
// and the dedup merger read. WAL mode keeps reads flowing during
// writes, and the pool is pinned to a single connection because SQLite
// permits one writer at a time. Schema migrations are embedded into the
// binary by the migrations package and applied at startup.
//
// The database file is chmodded to owner-only; message bodies may carry
// private mesh traffic.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive-only: new columns are NULLABLE or carry a
// DEFAULT, and nothing is dropped or renamed outside a major release.
// Every version ships an .up.sql and a matching .down.sql.
package database
